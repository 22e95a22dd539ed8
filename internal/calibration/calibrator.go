// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package calibration

import (
	"context"
	"fmt"
	"log"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/relabs-tech/road_qualifier/internal/imu"
	"github.com/relabs-tech/road_qualifier/internal/timeutil"
)

// Report summarises the last calibration run.
type Report struct {
	Bounds
	Samples  int           `json:"samples"` // number of deltas
	Mean     float64       `json:"mean"`
	StdDev   float64       `json:"stddev"`
	Duration time.Duration `json:"duration"`
}

// Calibrator samples the accelerometer for a fixed wall-clock window and
// records the smallest and largest sample-to-sample delta.
type Calibrator struct {
	acc         imu.Accelerometer
	clock       timeutil.Clock
	sampleDelay time.Duration
	report      Report
}

// NewCalibrator samples acc with sampleDelay between reads.
func NewCalibrator(acc imu.Accelerometer, clock timeutil.Clock, sampleDelay time.Duration) *Calibrator {
	return &Calibrator{acc: acc, clock: clock, sampleDelay: sampleDelay}
}

// Calibrate runs for duration and returns the observed delta bounds.
// The vehicle should be at rest with the engine running.
func (c *Calibrator) Calibrate(ctx context.Context, duration time.Duration) (Bounds, error) {
	log.Printf("calibration: sampling accelerations for %v", duration)
	start := c.clock.Now()
	end := start.Add(duration)

	cur, err := c.acc.ReadAxis()
	if err != nil {
		return Bounds{}, fmt.Errorf("calibration: first sample: %w", err)
	}

	var b Bounds
	deltas := make([]float64, 0, 1024)
	for c.clock.Now().Before(end) {
		if err := ctx.Err(); err != nil {
			return Bounds{}, fmt.Errorf("calibration: %w", err)
		}

		prev := cur
		if cur, err = c.acc.ReadAxis(); err != nil {
			return Bounds{}, fmt.Errorf("calibration: sample %d: %w", len(deltas)+1, err)
		}
		d := imu.Delta(prev, cur)

		if d > b.MaxDelta {
			b.MaxDelta = d
		}
		// Zero doubles as "no minimum yet": a zero delta is replaced by
		// the next delta, so MinDelta is 0 only if the last delta was 0.
		if d < b.MinDelta || b.MinDelta == 0 {
			b.MinDelta = d
		}
		deltas = append(deltas, float64(d))

		c.clock.Sleep(c.sampleDelay)
	}

	if len(deltas) == 0 {
		return Bounds{}, fmt.Errorf("calibration: no samples taken in %v", duration)
	}

	c.report = Report{Bounds: b, Samples: len(deltas), Duration: c.clock.Since(start)}
	if len(deltas) > 1 {
		c.report.Mean, c.report.StdDev = stat.MeanStdDev(deltas, nil)
	} else {
		c.report.Mean = deltas[0]
	}

	log.Printf("calibration: complete, min delta %d, max delta %d (%d samples, mean %.1f, stddev %.1f)",
		b.MinDelta, b.MaxDelta, c.report.Samples, c.report.Mean, c.report.StdDev)
	return b, nil
}

// LastReport returns the statistics of the last successful run.
func (c *Calibrator) LastReport() Report {
	return c.report
}
