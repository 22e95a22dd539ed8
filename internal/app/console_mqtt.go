// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/relabs-tech/road_qualifier/internal/config"
	"github.com/relabs-tech/road_qualifier/internal/telemetry"
)

// qualityBar renders a 0-255 score as a 16 character gauge.
func qualityBar(q uint8) string {
	n := (int(q) + 8) / 16
	if n > 16 {
		n = 16
	}
	return strings.Repeat("#", n) + strings.Repeat(".", 16-n)
}

func formatSegment(r telemetry.Record) string {
	ts := "unknown time"
	if t := r.Time(); !t.IsZero() {
		ts = t.Format(time.RFC3339)
	}
	return fmt.Sprintf("[SEG] %s lat=%.6f lon=%.6f quality=%3d [%s] device=%s",
		ts, r.Lat, r.Lon, r.Bumpiness, qualityBar(r.Bumpiness), r.DeviceID)
}

// RunConsoleMQTT prints every published segment until Ctrl+C.
func RunConsoleMQTT(out io.Writer) error {
	cfg := config.Get()

	client, err := telemetry.Connect(cfg.MQTTBroker, telemetry.ClientID(cfg.MQTTClientIDConsole, "road-console"))
	if err != nil {
		return err
	}

	if err := telemetry.Subscribe(client, cfg.TopicSegment, func(r telemetry.Record) {
		fmt.Fprintln(out, formatSegment(r))
	}); err != nil {
		return err
	}

	// Wait for Ctrl+C
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("console: shutting down")
	client.Disconnect(250)
	return nil
}
