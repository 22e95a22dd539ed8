// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package qualifier scores road roughness one fixed-length segment at a time.
//
// A Qualifier is brought up with Begin, which self-tests the accelerometer,
// loads the calibration record from flash (or calibrates and stores a new
// one) and waits for the GPS to report an antenna, a location and a speed.
// Afterwards every QualifySegment call follows the vehicle over one segment
// and scores its peak acceleration delta against the calibration bounds.
package qualifier

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/relabs-tech/road_qualifier/internal/calibration"
	"github.com/relabs-tech/road_qualifier/internal/flash"
	"github.com/relabs-tech/road_qualifier/internal/gps"
	"github.com/relabs-tech/road_qualifier/internal/imu"
	"github.com/relabs-tech/road_qualifier/internal/quality"
	"github.com/relabs-tech/road_qualifier/internal/segment"
	"github.com/relabs-tech/road_qualifier/internal/timeutil"
)

// State is the lifecycle stage of a Qualifier.
type State int

const (
	Uninitialized State = iota
	Initializing
	Ready
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// antennaPoll is the pause between receiver polls while waiting for the
// antenna status sentence.
const antennaPoll = 10 * time.Millisecond

// Qualifier owns the accelerometer, the GPS receiver and the flash device.
// It is not safe for concurrent use.
type Qualifier struct {
	acc   imu.Accelerometer
	nav   *gps.Navigator
	dev   flash.BlockDevice
	clock timeutil.Clock
	opts  Options

	store      *calibration.Store
	calibrator *calibration.Calibrator
	tracker    *segment.Tracker
	quantizer  quality.Quantizer

	state      State
	flashReady bool
	bounds     calibration.Bounds
	last       quality.SegmentQuality
	lastResult segment.Result
}

// New wires a qualifier. Nothing touches the hardware until Begin.
func New(acc imu.Accelerometer, rx gps.Receiver, dev flash.BlockDevice, opts Options, clock timeutil.Clock) *Qualifier {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	nav := gps.NewNavigator(rx)
	return &Qualifier{
		acc:        acc,
		nav:        nav,
		dev:        dev,
		clock:      clock,
		opts:       opts,
		store:      calibration.NewStore(dev, opts.Signature),
		calibrator: calibration.NewCalibrator(acc, clock, opts.CalibrationSampleDelay),
		tracker:    segment.New(acc, nav, clock, opts.Segment),
		quantizer:  quality.Quantizer{Policy: opts.Policy},
	}
}

// Begin runs the startup sequence. On failure the qualifier stays
// Uninitialized and Begin may be called again; every stage is repeated.
func (q *Qualifier) Begin(ctx context.Context) error {
	q.state = Initializing
	if err := q.begin(ctx); err != nil {
		q.state = Uninitialized
		log.Printf("qualifier: begin failed: %v", err)
		return err
	}
	q.state = Ready
	log.Printf("qualifier: ready, min delta %d, max delta %d", q.bounds.MinDelta, q.bounds.MaxDelta)

	if q.opts.SettleDelay > 0 {
		q.clock.Sleep(q.opts.SettleDelay)
	}
	return nil
}

func (q *Qualifier) begin(ctx context.Context) error {
	log.Println("qualifier: initializing")

	if err := q.acc.SelfTest(); err != nil {
		return fmt.Errorf("%w: %w", ErrSensorInit, err)
	}
	log.Println("qualifier: accelerometer ok")

	if err := q.dev.Init(); err != nil {
		return fmt.Errorf("%w: %w", ErrFlashInit, err)
	}
	q.flashReady = true
	log.Printf("qualifier: flash ready (erase %d, program %d)", q.dev.EraseSize(), q.dev.ProgramSize())

	if d, ok := q.store.Load(); ok {
		q.bounds = d.Bounds()
		log.Println("qualifier: calibration loaded from flash")
	} else {
		log.Println("qualifier: no valid calibration found, calibrating")
		if err := q.calibrate(ctx); err != nil {
			return err
		}
	}

	if err := q.waitForAntenna(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrGPSAcquisition, err)
	}
	if err := q.waitFor(ctx, "location", func() bool { return q.nav.AcquireLocation(q.opts.LocationMaxAge) }); err != nil {
		return fmt.Errorf("%w: %w", ErrGPSAcquisition, err)
	}
	log.Printf("qualifier: location %.6f, %.6f", q.nav.Lat, q.nav.Lon)
	if err := q.waitFor(ctx, "speed", q.nav.UpdateSpeed); err != nil {
		return fmt.Errorf("%w: %w", ErrGPSAcquisition, err)
	}
	log.Printf("qualifier: speed %.1f km/h", q.nav.SpeedKmph)
	return nil
}

// calibrate measures fresh bounds and writes them to flash.
func (q *Qualifier) calibrate(ctx context.Context) error {
	b, err := q.calibrator.Calibrate(ctx, q.opts.CalibrationTime)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCalibration, err)
	}
	if err := q.store.Save(calibration.NewData(b, q.opts.Signature)); err != nil {
		return fmt.Errorf("%w: %w", ErrFlashIO, err)
	}
	q.bounds = b
	log.Println("qualifier: calibration saved to flash")
	return nil
}

func (q *Qualifier) waitForAntenna(ctx context.Context) error {
	log.Println("qualifier: waiting for gps antenna status")
	start := q.clock.Now()
	for q.clock.Since(start) < q.opts.AntennaTimeout {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := q.nav.Poll(); err != nil {
			return err
		}
		if f := q.nav.Receiver().Antenna(); f.Updated {
			if f.Value != gps.AntennaOK {
				return fmt.Errorf("antenna reports %q", f.Value)
			}
			log.Println("qualifier: gps antenna connected")
			return nil
		}
		q.clock.Sleep(antennaPoll)
	}
	return errors.New("no antenna status within timeout")
}

// waitFor polls the receiver until ok reports success or GPSWaitTimeout passes.
func (q *Qualifier) waitFor(ctx context.Context, what string, ok func() bool) error {
	log.Printf("qualifier: waiting for gps %s", what)
	end := q.clock.Now().Add(q.opts.GPSWaitTimeout)
	for q.clock.Now().Before(end) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := q.nav.Poll(); err != nil {
			return err
		}
		if ok() {
			return nil
		}
		q.clock.Sleep(q.opts.GPSPollInterval)
	}
	return fmt.Errorf("no valid %s within %v", what, q.opts.GPSWaitTimeout)
}

// IsReady reports whether Begin has succeeded.
func (q *Qualifier) IsReady() bool { return q.state == Ready }

// State returns the lifecycle stage.
func (q *Qualifier) State() State { return q.state }

// Bounds returns the calibration bounds in use.
func (q *Qualifier) Bounds() calibration.Bounds { return q.bounds }

// CalibrationReport returns statistics of the last calibration run in this
// process. It is zero when the bounds came from flash.
func (q *Qualifier) CalibrationReport() calibration.Report { return q.calibrator.LastReport() }

// QualifySegment follows the vehicle over one segment and scores it. It
// blocks for the whole traversal. ErrSegmentInvalid means the segment was
// discarded and the previous score is kept.
func (q *Qualifier) QualifySegment(ctx context.Context) error {
	if q.state != Ready {
		return ErrNotReady
	}

	res, err := q.tracker.Run(ctx)
	q.lastResult = res
	if err != nil {
		return err
	}
	if !res.Valid {
		log.Printf("qualifier: segment invalid: %s within the first %.2f m", res.Reason,
			q.opts.Segment.Length*q.opts.Segment.EarlyLockFraction)
		return fmt.Errorf("%w: %s", ErrSegmentInvalid, res.Reason)
	}

	q.last = quality.SegmentQuality{
		Latitude:  res.StartLat,
		Longitude: res.StartLon,
		Quality:   q.quantizer.Quantify(res.PeakDelta, q.bounds),
	}

	if q.opts.Debug {
		log.Printf("qualifier: segment complete: start %.6f, %.6f; peak delta %d; quality %d; %.2f m in %d iterations at %.1f km/h",
			q.last.Latitude, q.last.Longitude, res.PeakDelta, q.last.Quality, res.Distance, res.Iterations, res.SpeedKmph)
	}
	return nil
}

// SegmentQuality returns the score of the last valid segment. It is only
// meaningful after QualifySegment has returned nil at least once.
func (q *Qualifier) SegmentQuality() quality.SegmentQuality { return q.last }

// LastResult returns the raw outcome of the last segment run, valid or not.
func (q *Qualifier) LastResult() segment.Result { return q.lastResult }

// Recalibrate measures fresh bounds and overwrites the stored record. It
// brings up the accelerometer and the flash device itself when Begin has not
// done so, and leaves the lifecycle state untouched. The vehicle should be at
// rest with the engine running.
func (q *Qualifier) Recalibrate(ctx context.Context) error {
	if !q.flashReady {
		if err := q.acc.SelfTest(); err != nil {
			return fmt.Errorf("%w: %w", ErrSensorInit, err)
		}
		if err := q.dev.Init(); err != nil {
			return fmt.Errorf("%w: %w", ErrFlashInit, err)
		}
		q.flashReady = true
	}
	return q.calibrate(ctx)
}
