// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gps

import (
	"strconv"
	"time"

	"github.com/relabs-tech/road_qualifier/internal/timeutil"
)

// MetersPerDegreeLat is the approximate length of one degree of latitude.
const MetersPerDegreeLat = 111139.0

// Default start position of the simulated receiver.
const (
	SimulatedLat = 46.012015
	SimulatedLon = 8.961104
)

// Simulated is a receiver that always has a fresh fix and drives north at a
// constant speed, so consecutive segments start at increasing latitudes.
type Simulated struct {
	clock     timeutil.Clock
	start     time.Time
	lat, lon  float64
	speedKmph float64
}

var (
	_ Receiver = (*Simulated)(nil)
	_ Clocked  = (*Simulated)(nil)
)

// NewSimulated starts a simulated drive at lat/lon.
func NewSimulated(clock timeutil.Clock, lat, lon, speedKmph float64) *Simulated {
	return &Simulated{
		clock:     clock,
		start:     clock.Now(),
		lat:       lat,
		lon:       lon,
		speedKmph: speedKmph,
	}
}

func (s *Simulated) Poll() error { return nil }

func (s *Simulated) Location() Location {
	meters := s.speedKmph / 3.6 * s.clock.Since(s.start).Seconds()
	return Location{
		Updated: true,
		Valid:   true,
		Lat:     s.lat + meters/MetersPerDegreeLat,
		Lon:     s.lon,
	}
}

func (s *Simulated) Speed() Field {
	return Field{Updated: true, Value: strconv.FormatFloat(s.speedKmph, 'f', 1, 64)}
}

func (s *Simulated) Antenna() Field {
	return Field{Updated: true, Value: AntennaOK}
}

func (s *Simulated) DateTime() (time.Time, bool) {
	return s.clock.Now().UTC(), true
}
