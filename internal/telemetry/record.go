// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package telemetry ships scored segments off the vehicle.
package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/relabs-tech/road_qualifier/internal/quality"
)

// ContentType is the payload type the backend consumer accepts.
const ContentType = "application/json"

// Record is the wire form of a scored segment.
type Record struct {
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Timestamp uint64  `json:"timestamp"` // unix seconds, 0 when unknown
	Bumpiness uint8   `json:"bumpiness"`
	DeviceID  string  `json:"device_id"`
}

// NewRecord tags q with the time it was measured and the device that measured it.
// A zero ts is sent as 0.
func NewRecord(q quality.SegmentQuality, ts time.Time, deviceID string) Record {
	r := Record{
		Lat:       q.Latitude,
		Lon:       q.Longitude,
		Bumpiness: q.Quality,
		DeviceID:  deviceID,
	}
	if !ts.IsZero() && ts.Unix() > 0 {
		r.Timestamp = uint64(ts.Unix())
	}
	return r
}

// Quality returns the segment score carried by the record.
func (r Record) Quality() quality.SegmentQuality {
	return quality.SegmentQuality{Latitude: r.Lat, Longitude: r.Lon, Quality: r.Bumpiness}
}

// Time returns the measurement time, or the zero time when unknown.
func (r Record) Time() time.Time {
	if r.Timestamp == 0 {
		return time.Time{}
	}
	return time.Unix(int64(r.Timestamp), 0).UTC()
}

// DecodeRecord parses a payload and checks the position is plausible.
func DecodeRecord(payload []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(payload, &r); err != nil {
		return Record{}, fmt.Errorf("telemetry: decode: %w", err)
	}
	if r.Lat < -90 || r.Lat > 90 || r.Lon < -180 || r.Lon > 180 {
		return Record{}, fmt.Errorf("telemetry: position %f, %f out of range", r.Lat, r.Lon)
	}
	return r, nil
}

// Sink receives every scored segment.
type Sink interface {
	Publish(q quality.SegmentQuality, ts time.Time) error
}

// MultiSink publishes to every sink, continuing past failures.
type MultiSink []Sink

func (m MultiSink) Publish(q quality.SegmentQuality, ts time.Time) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(q, ts); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
