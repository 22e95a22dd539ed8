// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import (
	"errors"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// Raw limits of the simulated Z axis (±2g).
const (
	SimulatedMin int16 = -16384
	SimulatedMax int16 = 16384
)

type simulated struct {
	dist distuv.Normal
}

// NewSimulated creates an accelerometer that produces normally distributed
// Z samples centred between SimulatedMin and SimulatedMax, with about 99.7%
// of samples inside that range. Samples outside it are clamped.
func NewSimulated(seed int64) Accelerometer {
	return &simulated{dist: distuv.Normal{
		Mu:    (float64(SimulatedMin) + float64(SimulatedMax)) / 2,
		Sigma: (float64(SimulatedMax) - float64(SimulatedMin)) / 6,
		Src:   rand.NewPCG(uint64(seed), 0),
	}}
}

func (s *simulated) SelfTest() error { return nil }

func (s *simulated) ReadAxis() (int16, error) {
	v := s.dist.Rand()
	v = math.Max(float64(SimulatedMin), math.Min(float64(SimulatedMax), v))
	return int16(v), nil
}

// Replay plays back recorded samples in order, cycling when it runs out.
// A non-nil SelfTestErr or ReadErr is returned from the matching call.
type Replay struct {
	Samples     []int16
	SelfTestErr error
	ReadErr     error

	next  int
	reads int
}

func (r *Replay) SelfTest() error { return r.SelfTestErr }

func (r *Replay) ReadAxis() (int16, error) {
	if r.ReadErr != nil {
		return 0, r.ReadErr
	}
	if len(r.Samples) == 0 {
		return 0, errors.New("imu: replay has no samples")
	}
	v := r.Samples[r.next]
	r.next = (r.next + 1) % len(r.Samples)
	r.reads++
	return v, nil
}

// Reads returns how many samples have been read.
func (r *Replay) Reads() int { return r.reads }
