// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package segment follows the vehicle over one fixed-length stretch of road,
// tracking the peak acceleration delta and the position the stretch started at.
package segment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/relabs-tech/road_qualifier/internal/gps"
	"github.com/relabs-tech/road_qualifier/internal/imu"
	"github.com/relabs-tech/road_qualifier/internal/timeutil"
)

// Reasons a segment is discarded.
const (
	ReasonNoFix   = "no GPS fix"
	ReasonNoSpeed = "no speed"
)

// Params shape a segment.
type Params struct {
	Length            float64       // meters
	EarlyLockFraction float64       // share of Length within which fix and speed must arrive
	IterationDelay    time.Duration // pause between iterations
}

// DefaultParams are the values the road unit ships with.
func DefaultParams() Params {
	return Params{
		Length:            1.0,
		EarlyLockFraction: 0.1,
		IterationDelay:    10 * time.Millisecond,
	}
}

// Validate rejects parameters that would never complete a segment.
func (p Params) Validate() error {
	if p.Length <= 0 {
		return fmt.Errorf("segment: length must be > 0, got %g", p.Length)
	}
	if p.EarlyLockFraction < 0 || p.EarlyLockFraction > 1 {
		return fmt.Errorf("segment: early lock fraction must be in [0,1], got %g", p.EarlyLockFraction)
	}
	if p.IterationDelay < 0 {
		return errors.New("segment: iteration delay must be >= 0")
	}
	return nil
}

// Result describes one traversal.
type Result struct {
	Valid      bool
	Reason     string // why the segment was discarded, empty when Valid
	StartLat   float64
	StartLon   float64
	PeakDelta  int32
	Distance   float64 // meters travelled when the run ended
	Iterations int
	SpeedKmph  float64 // speed at the end of the run
}

// Tracker runs segments. It is not safe for concurrent use.
type Tracker struct {
	acc    imu.Accelerometer
	nav    *gps.Navigator
	clock  timeutil.Clock
	params Params
}

// New returns a tracker sampling acc and following nav.
func New(acc imu.Accelerometer, nav *gps.Navigator, clock timeutil.Clock, params Params) *Tracker {
	return &Tracker{acc: acc, nav: nav, clock: clock, params: params}
}

// Params returns the tracker's segment shape.
func (t *Tracker) Params() Params { return t.params }

// Run traverses one segment and blocks until it completes, is discarded,
// or ctx is cancelled.
//
// Distance is integrated from the last known speed over the wall time of each
// iteration. A fresh fix and a fresh speed must both arrive while the distance
// is still inside the early lock window, otherwise the segment is discarded
// with Valid false and a nil error. The navigator keeps being updated after
// the start position is latched.
func (t *Tracker) Run(ctx context.Context) (Result, error) {
	window := t.params.Length * t.params.EarlyLockFraction

	var (
		res       Result
		haveFix   bool
		haveSpeed bool
	)

	prev, err := t.acc.ReadAxis()
	if err != nil {
		return res, fmt.Errorf("segment: first sample: %w", err)
	}
	iterationEnd := t.clock.Now()

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		iterationStart := iterationEnd
		res.Iterations++

		if err := t.nav.Poll(); err != nil {
			return res, fmt.Errorf("segment: gps: %w", err)
		}

		if t.nav.UpdateLocation() && res.Distance <= window && !haveFix {
			haveFix = true
			res.StartLat, res.StartLon = t.nav.Lat, t.nav.Lon
		} else if !haveFix && res.Distance > window {
			res.Reason = ReasonNoFix
			break
		}

		if t.nav.UpdateSpeed() && res.Distance <= window && !haveSpeed {
			haveSpeed = true
		} else if !haveSpeed && res.Distance > window {
			res.Reason = ReasonNoSpeed
			break
		}

		cur, err := t.acc.ReadAxis()
		if err != nil {
			return res, fmt.Errorf("segment: sample %d: %w", res.Iterations, err)
		}
		if d := imu.Delta(prev, cur); d > res.PeakDelta {
			res.PeakDelta = d
		}
		prev = cur

		iterationEnd = t.clock.Now()
		elapsedMs := float64(iterationEnd.Sub(iterationStart)) / float64(time.Millisecond)
		// km/h * ms / 3600 = m
		res.Distance += t.nav.SpeedKmph * elapsedMs / 3600.0

		complete := res.Distance >= t.params.Length
		t.clock.Sleep(t.params.IterationDelay)
		if complete {
			res.Valid = true
			break
		}
	}

	res.SpeedKmph = t.nav.SpeedKmph
	return res, nil
}
