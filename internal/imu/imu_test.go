// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"
)

func TestDelta(t *testing.T) {
	assert.Equal(t, int32(5), Delta(10, 15))
	assert.Equal(t, int32(5), Delta(15, 10))
	assert.Equal(t, int32(0), Delta(-7, -7))
	assert.Equal(t, int32(65535), Delta(math.MinInt16, math.MaxInt16))
}

func TestSimulatedStaysInRange(t *testing.T) {
	acc := NewSimulated(42)
	require.NoError(t, acc.SelfTest())

	var sum float64
	const n = 5000
	for i := 0; i < n; i++ {
		v, err := acc.ReadAxis()
		require.NoError(t, err)
		assert.GreaterOrEqual(t, v, SimulatedMin)
		assert.LessOrEqual(t, v, SimulatedMax)
		sum += float64(v)
	}
	// Mean of the distribution is 0; allow a generous margin.
	assert.InDelta(t, 0, sum/n, 500)
}

func TestSimulatedSpreadAndSeed(t *testing.T) {
	a, b := NewSimulated(7), NewSimulated(7)
	samples := make([]float64, 5000)
	for i := range samples {
		va, err := a.ReadAxis()
		require.NoError(t, err)
		vb, err := b.ReadAxis()
		require.NoError(t, err)
		require.Equal(t, va, vb, "sample %d", i)
		samples[i] = float64(va)
	}

	// Sigma is a sixth of the range; clamping trims only the far tails.
	want := (float64(SimulatedMax) - float64(SimulatedMin)) / 6
	assert.InDelta(t, want, stat.StdDev(samples, nil), want*0.05)
}

func TestReplayCycles(t *testing.T) {
	r := &Replay{Samples: []int16{1, 2, 3}}
	var got []int16
	for i := 0; i < 5; i++ {
		v, err := r.ReadAxis()
		require.NoError(t, err)
		got = append(got, v)
	}
	assert.Equal(t, []int16{1, 2, 3, 1, 2}, got)
	assert.Equal(t, 5, r.Reads())
}

func TestReplayErrors(t *testing.T) {
	boom := errors.New("boom")
	r := &Replay{SelfTestErr: boom}
	assert.ErrorIs(t, r.SelfTest(), boom)

	_, err := (&Replay{}).ReadAxis()
	assert.Error(t, err)

	_, err = (&Replay{Samples: []int16{1}, ReadErr: boom}).ReadAxis()
	assert.ErrorIs(t, err, boom)
}
