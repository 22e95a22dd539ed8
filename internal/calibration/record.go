// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package calibration derives the vehicle's accelerometer noise baseline and
// persists it as a signed record at the start of a flash block device.
package calibration

import (
	"encoding/binary"
	"fmt"
)

// Signature marks a calibration record as written by this firmware.
const Signature uint32 = 0xDEADBEEF

// RecordSize is the encoded size of Data: signature, min delta, max delta.
const RecordSize = 12

// Bounds is the range of sample-to-sample deltas seen while the vehicle was quiet.
type Bounds struct {
	MinDelta int32 `json:"min_delta"`
	MaxDelta int32 `json:"max_delta"`
}

// Data is the on-flash calibration record.
//
// Layout (little endian):
//
//	0..3   signature (uint32)
//	4..7   min delta (int32)
//	8..11  max delta (int32)
type Data struct {
	Signature uint32
	MinDelta  int32
	MaxDelta  int32
}

// NewData signs b with signature.
func NewData(b Bounds, signature uint32) Data {
	return Data{Signature: signature, MinDelta: b.MinDelta, MaxDelta: b.MaxDelta}
}

// Bounds returns the calibration range held by the record.
func (d Data) Bounds() Bounds {
	return Bounds{MinDelta: d.MinDelta, MaxDelta: d.MaxDelta}
}

// MarshalBinary encodes the record in its fixed layout.
func (d Data) MarshalBinary() ([]byte, error) {
	buf := make([]byte, RecordSize)
	binary.LittleEndian.PutUint32(buf[0:4], d.Signature)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(d.MinDelta))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(d.MaxDelta))
	return buf, nil
}

// UnmarshalBinary decodes a record. It does not check the signature.
func (d *Data) UnmarshalBinary(buf []byte) error {
	if len(buf) < RecordSize {
		return fmt.Errorf("calibration: record needs %d bytes, got %d", RecordSize, len(buf))
	}
	d.Signature = binary.LittleEndian.Uint32(buf[0:4])
	d.MinDelta = int32(binary.LittleEndian.Uint32(buf[4:8]))
	d.MaxDelta = int32(binary.LittleEndian.Uint32(buf[8:12]))
	return nil
}
