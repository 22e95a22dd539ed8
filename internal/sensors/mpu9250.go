// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"
	"log"

	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/devices/v3/mpu9250"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/road_qualifier/internal/imu"
)

// MPU9250 reads the vertical (Z) accelerometer axis of an MPU9250 over SPI.
// The device is brought up by SelfTest, so a missing sensor shows up as a
// failed self-test rather than a construction error.
type MPU9250 struct {
	spiDev string
	csPin  string
	dev    *mpu9250.MPU9250
}

var _ imu.Accelerometer = (*MPU9250)(nil)

// NewMPU9250 describes an MPU9250 on the given SPI device and chip-select pin.
func NewMPU9250(spiDev, csPin string) *MPU9250 {
	return &MPU9250{spiDev: spiDev, csPin: csPin}
}

// SelfTest initialises the sensor, runs the built-in self-test and the
// offset calibration. It is safe to call again after a failure.
func (m *MPU9250) SelfTest() error {
	if m.dev != nil {
		return nil
	}

	if _, err := host.Init(); err != nil {
		return fmt.Errorf("IMU: periph host init: %w", err)
	}

	cs := gpioreg.ByName(m.csPin)
	if cs == nil {
		return fmt.Errorf("IMU: CS pin %q not found", m.csPin)
	}

	tr, err := mpu9250.NewSpiTransport(m.spiDev, cs)
	if err != nil {
		return fmt.Errorf("IMU: SPI transport (%s): %w", m.spiDev, err)
	}

	dev, err := mpu9250.New(*tr)
	if err != nil {
		return fmt.Errorf("IMU: device creation: %w", err)
	}

	if err := dev.Init(); err != nil {
		return fmt.Errorf("IMU: initialization: %w", err)
	}

	res, err := dev.SelfTest()
	if err != nil {
		return fmt.Errorf("IMU: self-test: %w", err)
	}
	log.Printf("IMU: self-test passed: %+v", res)

	// Offsets only improve the absolute reading; roughness uses sample deltas.
	if err := dev.Calibrate(); err != nil {
		log.Printf("Warning: IMU offset calibration failed: %v", err)
	} else {
		log.Println("IMU: offset calibration complete")
	}

	m.dev = dev
	return nil
}

// ReadAxis returns the raw Z acceleration.
func (m *MPU9250) ReadAxis() (int16, error) {
	if m.dev == nil {
		return 0, fmt.Errorf("IMU: not initialized")
	}
	az, err := m.dev.GetAccelerationZ()
	if err != nil {
		return 0, fmt.Errorf("IMU accel Z: %w", err)
	}
	return az, nil
}
