// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/relabs-tech/road_qualifier/internal/calibration"
	"github.com/relabs-tech/road_qualifier/internal/config"
	"github.com/relabs-tech/road_qualifier/internal/qualifier"
	"github.com/relabs-tech/road_qualifier/internal/timeutil"
)

// CalibrationOutput is what the calibration tool prints.
type CalibrationOutput struct {
	Previous *calibration.Bounds `json:"previous,omitempty"`
	calibration.Report
}

// RunCalibration discards the stored calibration, measures a new one and
// writes the result to out as JSON. The vehicle must be at rest with the
// engine running.
func RunCalibration(out io.Writer) error {
	cfg := config.Get()
	opts, err := qualifier.FromConfig(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clock := timeutil.RealClock{}
	devs, err := openDevices(cfg, clock, false)
	if err != nil {
		return err
	}
	defer devs.Close()

	return recalibrate(ctx, qualifier.New(devs.acc, devs.rx, devs.dev, opts, clock), devs, opts, out)
}

func recalibrate(ctx context.Context, q *qualifier.Qualifier, devs *devices, opts qualifier.Options, out io.Writer) error {
	var res CalibrationOutput
	if err := devs.dev.Init(); err == nil {
		if d, ok := calibration.NewStore(devs.dev, opts.Signature).Load(); ok {
			b := d.Bounds()
			res.Previous = &b
		}
	}

	log.Printf("calibration: keep the vehicle still for %v", opts.CalibrationTime)
	if err := q.Recalibrate(ctx); err != nil {
		return fmt.Errorf("calibration: %w", err)
	}
	res.Report = q.CalibrationReport()

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
