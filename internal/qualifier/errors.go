// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package qualifier

import "errors"

// Stage errors. Failures are wrapped as "<stage>: <cause>", so errors.Is
// matches both the stage and the underlying cause.
var (
	ErrSensorInit     = errors.New("qualifier: sensor initialization failed")
	ErrFlashInit      = errors.New("qualifier: flash initialization failed")
	ErrFlashIO        = errors.New("qualifier: flash write failed")
	ErrCalibration    = errors.New("qualifier: calibration failed")
	ErrGPSAcquisition = errors.New("qualifier: gps acquisition failed")
	ErrNotReady       = errors.New("qualifier: not ready, call Begin first")

	// ErrSegmentInvalid means the segment was discarded because a fix or a
	// speed did not arrive early enough. It is not fatal; try the next segment.
	ErrSegmentInvalid = errors.New("qualifier: segment invalid")
)
