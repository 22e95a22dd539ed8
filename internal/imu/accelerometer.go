// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

// Accelerometer is the single-axis acceleration source the qualifier samples.
// Values are raw counts as reported by the sensor (±16384 for ±2g on an MPU).
type Accelerometer interface {
	// SelfTest brings the sensor up and checks it responds.
	SelfTest() error
	// ReadAxis returns the current raw sample of the vertical axis.
	ReadAxis() (int16, error)
}

// Delta returns |cur - prev| widened to int32 so the full int16 range cannot overflow.
func Delta(prev, cur int16) int32 {
	d := int32(cur) - int32(prev)
	if d < 0 {
		return -d
	}
	return d
}
