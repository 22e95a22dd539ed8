// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package quality turns a segment's peak acceleration delta into a one-byte
// roughness score scaled against the vehicle's calibration bounds.
package quality

import (
	"fmt"
	"strings"

	"github.com/relabs-tech/road_qualifier/internal/calibration"
)

// SegmentQuality is the score of one completed segment, tagged with the
// position the segment started at.
type SegmentQuality struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Quality   uint8   `json:"quality"` // 0 smooth .. 255 rough
}

// FallbackMaxDelta is the upper bound used when calibration produced no range:
// the largest possible delta of a ±2g axis at 16384 counts per g.
const FallbackMaxDelta int32 = 2 * 16384

// Quantize rescales value from [min, max] to [0, 255], rounding to nearest.
// A degenerate range (min >= max) yields 0.
func Quantize(value, min, max int32) uint8 {
	if min >= max {
		return 0
	}
	if value <= min {
		return 0
	}
	if value >= max {
		return 255
	}

	rng := uint64(int64(max) - int64(min))
	num := uint64(int64(value)-int64(min))*255 + rng/2
	q := num / rng
	if q > 255 {
		q = 255
	}
	return uint8(q)
}

// DegeneratePolicy decides what happens when the calibration bounds leave no range.
type DegeneratePolicy int

const (
	// PolicyZero scores every segment 0.
	PolicyZero DegeneratePolicy = iota
	// PolicyFallbackRange scores against [0, FallbackMaxDelta].
	PolicyFallbackRange
)

func (p DegeneratePolicy) String() string {
	switch p {
	case PolicyZero:
		return "zero"
	case PolicyFallbackRange:
		return "fallback"
	default:
		return fmt.Sprintf("DegeneratePolicy(%d)", int(p))
	}
}

// ParsePolicy accepts "zero" or "fallback".
func ParsePolicy(s string) (DegeneratePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "zero":
		return PolicyZero, nil
	case "fallback":
		return PolicyFallbackRange, nil
	default:
		return PolicyZero, fmt.Errorf("quality: unknown degenerate policy %q (want zero or fallback)", s)
	}
}

// Quantizer scores peak deltas against calibration bounds.
type Quantizer struct {
	Policy DegeneratePolicy
}

// Quantify scores peak against b, applying the policy when b has no range.
func (q Quantizer) Quantify(peak int32, b calibration.Bounds) uint8 {
	min, max := b.MinDelta, b.MaxDelta
	if min >= max && q.Policy == PolicyFallbackRange {
		min, max = 0, FallbackMaxDelta
	}
	return Quantize(peak, min, max)
}
