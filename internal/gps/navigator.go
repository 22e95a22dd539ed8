// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gps

import (
	"log"
	"strconv"
	"time"
)

// Navigator keeps the most recent position and speed read from a Receiver.
// The values survive across segments; each segment starts from them.
type Navigator struct {
	rx Receiver

	Lat       float64
	Lon       float64
	SpeedKmph float64
}

// NewNavigator wraps rx.
func NewNavigator(rx Receiver) *Navigator {
	return &Navigator{rx: rx}
}

// Receiver returns the wrapped receiver.
func (n *Navigator) Receiver() Receiver { return n.rx }

// Poll drains pending receiver input.
func (n *Navigator) Poll() error { return n.rx.Poll() }

// UpdateLocation takes the receiver's location if a new valid fix arrived.
func (n *Navigator) UpdateLocation() bool {
	loc := n.rx.Location()
	if !loc.Updated || !loc.Valid {
		return false
	}
	n.Lat, n.Lon = loc.Lat, loc.Lon
	return true
}

// AcquireLocation takes the receiver's location if it holds a valid fix
// younger than maxAge, whether or not it is new.
func (n *Navigator) AcquireLocation(maxAge time.Duration) bool {
	loc := n.rx.Location()
	if !loc.Valid || loc.Age >= maxAge {
		return false
	}
	n.Lat, n.Lon = loc.Lat, loc.Lon
	return true
}

// UpdateSpeed takes the receiver's speed if a new, non-empty value arrived.
// A value that is not a number is ignored.
func (n *Navigator) UpdateSpeed() bool {
	f := n.rx.Speed()
	if !f.Updated || f.Value == "" {
		return false
	}
	v, err := strconv.ParseFloat(f.Value, 64)
	if err != nil {
		log.Printf("gps: ignoring speed %q: %v", f.Value, err)
		return false
	}
	n.SpeedKmph = v
	return true
}
