// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gps

import "time"

// AntennaOK is the antenna status text a healthy u-blox style module reports.
const AntennaOK = "ANTENNA OK"

// Location is the last position decoded from the receiver.
type Location struct {
	Updated bool          // a new fix arrived since the previous read
	Valid   bool          // at least one fix has been received
	Age     time.Duration // time since that fix
	Lat     float64       // decimal degrees
	Lon     float64       // decimal degrees
}

// Field is a raw text field from a sentence, e.g. speed in km/h or antenna status.
type Field struct {
	Updated bool
	Value   string
}

// Receiver is a polled GPS module. Poll drains whatever bytes arrived since
// the previous call without blocking; the accessors return the decoded state.
// Reading a field clears its Updated flag.
type Receiver interface {
	Poll() error
	Location() Location
	Speed() Field
	Antenna() Field
}

// Clocked is implemented by receivers that decode the satellite date and time.
type Clocked interface {
	DateTime() (time.Time, bool)
}
