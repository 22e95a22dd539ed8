// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"
	"log"
	"time"

	"github.com/relabs-tech/road_qualifier/internal/config"
	"github.com/relabs-tech/road_qualifier/internal/flash"
	"github.com/relabs-tech/road_qualifier/internal/gps"
	"github.com/relabs-tech/road_qualifier/internal/imu"
	"github.com/relabs-tech/road_qualifier/internal/sensors"
	"github.com/relabs-tech/road_qualifier/internal/timeutil"
)

// devices are the three capabilities the qualifier needs.
type devices struct {
	acc    imu.Accelerometer
	rx     gps.Receiver
	dev    flash.BlockDevice
	closer []func() error
}

func (d *devices) Close() {
	for i := len(d.closer) - 1; i >= 0; i-- {
		if err := d.closer[i](); err != nil {
			log.Printf("devices: close: %v", err)
		}
	}
}

// openDevices builds real or simulated devices from cfg. With
// SIMULATE_SENSORS the flash is still file-backed when FLASH_PATH is set, so
// a simulated run keeps its calibration across restarts. Without needGPS the
// serial port is left alone and the receiver stays silent.
func openDevices(cfg *config.Config, clock timeutil.Clock, needGPS bool) (*devices, error) {
	d := &devices{}

	if cfg.FlashPath != "" {
		fd := flash.NewFileDevice(cfg.FlashPath, cfg.FlashSize, cfg.FlashEraseSize, cfg.FlashProgramSize)
		d.dev = fd
		d.closer = append(d.closer, fd.Close)
	} else {
		log.Println("devices: FLASH_PATH not set, calibration is kept in memory only")
		d.dev = flash.NewMemDevice(cfg.FlashSize, cfg.FlashEraseSize, cfg.FlashProgramSize)
	}

	if cfg.SimulateSensors {
		log.Printf("devices: using simulated accelerometer and GPS (%.1f km/h)", cfg.SimulatedSpeedKmph)
		d.acc = imu.NewSimulated(time.Now().UnixNano())
		d.rx = gps.NewSimulated(clock, gps.SimulatedLat, gps.SimulatedLon, cfg.SimulatedSpeedKmph)
		return d, nil
	}

	d.acc = sensors.NewMPU9250(cfg.IMUSPIDevice, cfg.IMUCSPin)
	if !needGPS {
		d.rx = gps.NewReplay(clock)
		return d, nil
	}

	rx, err := gps.OpenSerial(cfg.GPSSerialPort, cfg.GPSBaudRate, clock)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("devices: %w", err)
	}
	d.rx = rx
	d.closer = append(d.closer, rx.Close)
	return d, nil
}
