// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/relabs-tech/road_qualifier/internal/config"
	"github.com/relabs-tech/road_qualifier/internal/gps"
	"github.com/relabs-tech/road_qualifier/internal/history"
	"github.com/relabs-tech/road_qualifier/internal/qualifier"
	"github.com/relabs-tech/road_qualifier/internal/quality"
	"github.com/relabs-tech/road_qualifier/internal/telemetry"
	"github.com/relabs-tech/road_qualifier/internal/timeutil"
)

// beginRetryDelay is the pause between failed startup attempts.
const beginRetryDelay = 10 * time.Second

// segmentSource is the part of the qualifier the run loop drives.
type segmentSource interface {
	QualifySegment(ctx context.Context) error
	SegmentQuality() quality.SegmentQuality
}

type loopStats struct {
	valid, invalid, publishErrors int
}

// qualifyLoop scores segments back to back and publishes every valid one
// until ctx is cancelled or the qualifier fails. stamp returns the time to
// attach to a segment; the zero time means unknown.
func qualifyLoop(ctx context.Context, src segmentSource, sink telemetry.Sink, stamp func() time.Time) (loopStats, error) {
	var st loopStats
	for {
		err := src.QualifySegment(ctx)
		switch {
		case err == nil:
			st.valid++
			q := src.SegmentQuality()
			if err := sink.Publish(q, stamp()); err != nil {
				st.publishErrors++
				log.Printf("qualifier: publish failed: %v", err)
			}
		case errors.Is(err, qualifier.ErrSegmentInvalid):
			st.invalid++
		case ctx.Err() != nil:
			return st, nil
		default:
			return st, err
		}
	}
}

// gpsStamp uses the satellite time when the receiver decodes it.
func gpsStamp(rx gps.Receiver) func() time.Time {
	c, ok := rx.(gps.Clocked)
	if !ok {
		return func() time.Time { return time.Time{} }
	}
	return func() time.Time {
		t, ok := c.DateTime()
		if !ok {
			return time.Time{}
		}
		return t
	}
}

// openSinks connects every configured segment destination.
func openSinks(cfg *config.Config, deviceID string) (telemetry.MultiSink, func(), error) {
	var (
		sinks   telemetry.MultiSink
		closers []func()
	)
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	if cfg.MQTTBroker != "" {
		client, err := telemetry.Connect(cfg.MQTTBroker, telemetry.ClientID(cfg.MQTTClientID, "road-qualifier"))
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, telemetry.NewMQTTSink(client, cfg.TopicSegment, deviceID))
		closers = append(closers, func() { client.Disconnect(250) })
	}

	if cfg.HistoryDB != "" {
		db, err := history.Open(cfg.HistoryDB, deviceID)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		sinks = append(sinks, db)
		closers = append(closers, func() { db.Close() })
	}

	if len(sinks) == 0 {
		log.Println("qualifier: no MQTT_BROKER or HISTORY_DB configured, segments are only logged")
		sinks = append(sinks, logSink{})
	}
	return sinks, closeAll, nil
}

type logSink struct{}

func (logSink) Publish(q quality.SegmentQuality, _ time.Time) error {
	log.Printf("segment: lat=%.6f lon=%.6f quality=%d", q.Latitude, q.Longitude, q.Quality)
	return nil
}

// RunQualifier brings the road unit up and scores segments until SIGINT or SIGTERM.
func RunQualifier() error {
	cfg := config.Get()
	opts, err := qualifier.FromConfig(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clock := timeutil.RealClock{}
	devs, err := openDevices(cfg, clock, true)
	if err != nil {
		return err
	}
	defer devs.Close()

	deviceID := telemetry.ClientID(cfg.DeviceID, "road")
	sink, closeSinks, err := openSinks(cfg, deviceID)
	if err != nil {
		return err
	}
	defer closeSinks()

	q := qualifier.New(devs.acc, devs.rx, devs.dev, opts, clock)
	for {
		err := q.Begin(ctx)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return nil
		}
		log.Printf("qualifier: startup failed: %v, retrying in %v", err, beginRetryDelay)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(beginRetryDelay):
		}
	}
	log.Printf("qualifier: device %s scoring %.1f m segments", deviceID, opts.Segment.Length)

	st, err := qualifyLoop(ctx, q, sink, gpsStamp(devs.rx))
	log.Printf("qualifier: stopped after %d valid and %d invalid segments (%d publish errors)",
		st.valid, st.invalid, st.publishErrors)
	if err != nil {
		return fmt.Errorf("qualifier: %w", err)
	}
	return nil
}
