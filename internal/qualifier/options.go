// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package qualifier

import (
	"fmt"
	"time"

	"github.com/relabs-tech/road_qualifier/internal/calibration"
	"github.com/relabs-tech/road_qualifier/internal/config"
	"github.com/relabs-tech/road_qualifier/internal/quality"
	"github.com/relabs-tech/road_qualifier/internal/segment"
)

// Options tune the qualifier. Zero values are not defaults; start from
// DefaultOptions or FromConfig.
type Options struct {
	Segment segment.Params

	CalibrationTime        time.Duration
	CalibrationSampleDelay time.Duration
	Signature              uint32
	Policy                 quality.DegeneratePolicy

	AntennaTimeout  time.Duration // wait for the antenna status sentence
	GPSWaitTimeout  time.Duration // wait for a location, then again for a speed
	GPSPollInterval time.Duration
	LocationMaxAge  time.Duration
	SettleDelay     time.Duration // pause after Begin succeeds

	Debug bool // log every segment
}

// DefaultOptions returns the firmware's timings.
func DefaultOptions() Options {
	return Options{
		Segment:                segment.DefaultParams(),
		CalibrationTime:        20 * time.Second,
		CalibrationSampleDelay: 5 * time.Millisecond,
		Signature:              calibration.Signature,
		Policy:                 quality.PolicyZero,
		AntennaTimeout:         5 * time.Second,
		GPSWaitTimeout:         20 * time.Second,
		GPSPollInterval:        500 * time.Millisecond,
		LocationMaxAge:         2 * time.Second,
		SettleDelay:            5 * time.Second,
	}
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// FromConfig builds Options from a loaded configuration.
func FromConfig(cfg *config.Config) (Options, error) {
	policy, err := quality.ParsePolicy(cfg.DegeneratePolicy)
	if err != nil {
		return Options{}, err
	}
	opts := Options{
		Segment: segment.Params{
			Length:            cfg.SegmentLengthM,
			EarlyLockFraction: cfg.EarlyLockFraction,
			IterationDelay:    ms(cfg.IterationDelayMs),
		},
		CalibrationTime:        ms(cfg.CalibrationTimeMs),
		CalibrationSampleDelay: ms(cfg.CalibrationSampleMs),
		Signature:              cfg.CalibrationSignature,
		Policy:                 policy,
		AntennaTimeout:         ms(cfg.AntennaWaitMs),
		GPSWaitTimeout:         ms(cfg.GPSWaitMs),
		GPSPollInterval:        ms(cfg.GPSPollMs),
		LocationMaxAge:         ms(cfg.LocationMaxAgeMs),
		SettleDelay:            ms(cfg.SettleDelayMs),
		Debug:                  cfg.Debug,
	}
	return opts, opts.Validate()
}

// Validate reports options that can never lead to a ready qualifier.
func (o Options) Validate() error {
	if err := o.Segment.Validate(); err != nil {
		return err
	}
	if o.CalibrationTime <= 0 {
		return fmt.Errorf("qualifier: calibration time must be > 0, got %v", o.CalibrationTime)
	}
	if o.GPSPollInterval <= 0 {
		return fmt.Errorf("qualifier: gps poll interval must be > 0, got %v", o.GPSPollInterval)
	}
	if o.LocationMaxAge <= 0 {
		return fmt.Errorf("qualifier: location max age must be > 0, got %v", o.LocationMaxAge)
	}
	return nil
}
