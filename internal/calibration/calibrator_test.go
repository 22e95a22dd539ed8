// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package calibration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/road_qualifier/internal/imu"
	"github.com/relabs-tech/road_qualifier/internal/timeutil"
)

const sampleDelay = 5 * time.Millisecond

func newClock() *timeutil.MockClock {
	return timeutil.NewMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
}

// runFor calibrates over exactly len(samples)-1 deltas.
func runFor(t *testing.T, samples ...int16) (Bounds, *Calibrator, *imu.Replay) {
	t.Helper()
	acc := &imu.Replay{Samples: samples}
	c := NewCalibrator(acc, newClock(), sampleDelay)
	b, err := c.Calibrate(context.Background(), time.Duration(len(samples)-1)*sampleDelay)
	require.NoError(t, err)
	return b, c, acc
}

func TestCalibrateMinMax(t *testing.T) {
	// deltas: 5 2 10 3 4
	b, c, acc := runFor(t, 0, 5, 7, 17, 14, 18)
	assert.Equal(t, Bounds{MinDelta: 2, MaxDelta: 10}, b)
	assert.Equal(t, 6, acc.Reads())

	r := c.LastReport()
	assert.Equal(t, 5, r.Samples)
	assert.InDelta(t, 4.8, r.Mean, 1e-9)
	assert.Greater(t, r.StdDev, 0.0)
	assert.Equal(t, b, r.Bounds)
	assert.Equal(t, 25*time.Millisecond, r.Duration)
}

func TestCalibrateZeroDeltaIsOverwritten(t *testing.T) {
	// deltas: 5 2 10 3 0 16. The zero resets the minimum and the next delta replaces it.
	b, _, _ := runFor(t, 0, 5, 7, 17, 14, 14, 30)
	assert.Equal(t, Bounds{MinDelta: 16, MaxDelta: 16}, b)
}

func TestCalibrateTrailingZeroDeltaSticks(t *testing.T) {
	// deltas: 5 0
	b, _, _ := runFor(t, 0, 5, 5)
	assert.Equal(t, Bounds{MinDelta: 0, MaxDelta: 5}, b)
}

func TestCalibrateHandlesFullRange(t *testing.T) {
	b, _, _ := runFor(t, -32768, 32767, -32768)
	assert.Equal(t, Bounds{MinDelta: 65535, MaxDelta: 65535}, b)
}

func TestCalibrateErrors(t *testing.T) {
	boom := errors.New("i2c nack")

	_, err := NewCalibrator(&imu.Replay{ReadErr: boom}, newClock(), sampleDelay).
		Calibrate(context.Background(), time.Second)
	assert.ErrorIs(t, err, boom)

	_, err = NewCalibrator(&imu.Replay{Samples: []int16{1, 2}}, newClock(), sampleDelay).
		Calibrate(context.Background(), 0)
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewCalibrator(&imu.Replay{Samples: []int16{1, 2}}, newClock(), sampleDelay).
		Calibrate(ctx, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}
