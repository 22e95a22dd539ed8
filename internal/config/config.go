// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Config holds all application configuration values.
// Durations are in milliseconds, as written in the file.
type Config struct {
	// Segment
	SegmentLengthM    float64
	EarlyLockFraction float64
	IterationDelayMs  int

	// GPS acquisition during begin
	GPSWaitMs        int
	GPSPollMs        int
	AntennaWaitMs    int
	LocationMaxAgeMs int

	// Calibration
	CalibrationTimeMs    int
	CalibrationSampleMs  int
	CalibrationSignature uint32
	DegeneratePolicy     string // "zero" or "fallback"

	// Runtime
	SettleDelayMs      int
	Debug              bool
	SimulateSensors    bool
	SimulatedSpeedKmph float64

	// IMU Hardware
	IMUSPIDevice string
	IMUCSPin     string

	// GPS
	GPSSerialPort string
	GPSBaudRate   int

	// Flash (file-backed block device)
	FlashPath        string
	FlashSize        int64
	FlashEraseSize   int64
	FlashProgramSize int64

	// MQTT
	MQTTBroker          string
	MQTTClientID        string
	MQTTClientIDConsole string
	MQTTClientIDWeb     string
	MQTTClientIDDisplay string
	TopicSegment        string
	DeviceID            string

	// Local history
	HistoryDB string

	// Web Server
	WebServerPort int

	// Display
	DisplayI2CBus         string
	DisplayUpdateInterval int // milliseconds
}

var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Default returns the configuration the road unit ships with. Keys present in
// a config file override these values.
func Default() *Config {
	return &Config{
		SegmentLengthM:    1.0,
		EarlyLockFraction: 0.1,
		IterationDelayMs:  10,

		GPSWaitMs:        20000,
		GPSPollMs:        500,
		AntennaWaitMs:    5000,
		LocationMaxAgeMs: 2000,

		CalibrationTimeMs:    20000,
		CalibrationSampleMs:  5,
		CalibrationSignature: 0xDEADBEEF,
		DegeneratePolicy:     "zero",

		SettleDelayMs:      5000,
		SimulatedSpeedKmph: 30,

		GPSBaudRate: 9600,

		FlashSize:        4096,
		FlashEraseSize:   4096,
		FlashProgramSize: 8,

		TopicSegment: "roadsense/segments",

		WebServerPort:         8080,
		DisplayUpdateInterval: 500,
	}
}

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := Default()
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func parseInt(key, value string, min int) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if v < min {
		return 0, fmt.Errorf("%s must be >= %d, got %d", key, min, v)
	}
	return v, nil
}

func parseFloat(key, value string) (float64, error) {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return v, nil
}

func parseBool(key, value string) (bool, error) {
	v, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return v, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error
	switch key {
	// Segment
	case "SEGMENT_LENGTH_M":
		c.SegmentLengthM, err = parseFloat(key, value)
		if err == nil && c.SegmentLengthM <= 0 {
			err = fmt.Errorf("SEGMENT_LENGTH_M must be > 0, got %g", c.SegmentLengthM)
		}
	case "EARLY_LOCK_FRACTION":
		c.EarlyLockFraction, err = parseFloat(key, value)
		if err == nil && (c.EarlyLockFraction < 0 || c.EarlyLockFraction > 1) {
			err = fmt.Errorf("EARLY_LOCK_FRACTION must be 0-1, got %g", c.EarlyLockFraction)
		}
	case "ITERATION_DELAY_MS":
		c.IterationDelayMs, err = parseInt(key, value, 0)

	// GPS acquisition
	case "GPS_WAIT_MS":
		c.GPSWaitMs, err = parseInt(key, value, 0)
	case "GPS_POLL_MS":
		c.GPSPollMs, err = parseInt(key, value, 1)
	case "ANTENNA_WAIT_MS":
		c.AntennaWaitMs, err = parseInt(key, value, 0)
	case "LOCATION_MAX_AGE_MS":
		c.LocationMaxAgeMs, err = parseInt(key, value, 1)

	// Calibration
	case "CALIBRATION_TIME_MS":
		c.CalibrationTimeMs, err = parseInt(key, value, 1)
	case "CALIBRATION_SAMPLE_MS":
		c.CalibrationSampleMs, err = parseInt(key, value, 0)
	case "CALIBRATION_SIGNATURE":
		sig, perr := strconv.ParseUint(value, 0, 32)
		if perr != nil {
			return fmt.Errorf("invalid CALIBRATION_SIGNATURE %q: %w", value, perr)
		}
		c.CalibrationSignature = uint32(sig)
	case "DEGENERATE_POLICY":
		switch strings.ToLower(value) {
		case "zero", "fallback":
			c.DegeneratePolicy = strings.ToLower(value)
		default:
			return fmt.Errorf("DEGENERATE_POLICY must be zero or fallback, got %q", value)
		}

	// Runtime
	case "SETTLE_DELAY_MS":
		c.SettleDelayMs, err = parseInt(key, value, 0)
	case "DEBUG":
		c.Debug, err = parseBool(key, value)
	case "SIMULATE_SENSORS":
		c.SimulateSensors, err = parseBool(key, value)
	case "SIMULATED_SPEED_KMPH":
		c.SimulatedSpeedKmph, err = parseFloat(key, value)

	// IMU Hardware
	case "IMU_SPI_DEVICE":
		c.IMUSPIDevice = value
	case "IMU_CS_PIN":
		c.IMUCSPin = value

	// GPS
	case "GPS_SERIAL_PORT":
		c.GPSSerialPort = value
	case "GPS_BAUD_RATE":
		c.GPSBaudRate, err = parseInt(key, value, 1)

	// Flash
	case "FLASH_PATH":
		c.FlashPath = value
	case "FLASH_SIZE", "FLASH_ERASE_SIZE", "FLASH_PROGRAM_SIZE":
		n, perr := strconv.ParseInt(value, 0, 64)
		if perr != nil {
			return fmt.Errorf("invalid %s %q: %w", key, value, perr)
		}
		if n <= 0 {
			return fmt.Errorf("%s must be > 0, got %d", key, n)
		}
		switch key {
		case "FLASH_SIZE":
			c.FlashSize = n
		case "FLASH_ERASE_SIZE":
			c.FlashEraseSize = n
		default:
			c.FlashProgramSize = n
		}

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID":
		c.MQTTClientID = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value
	case "MQTT_CLIENT_ID_DISPLAY":
		c.MQTTClientIDDisplay = value
	case "TOPIC_SEGMENT":
		c.TopicSegment = value
	case "DEVICE_ID":
		c.DeviceID = value

	// History
	case "HISTORY_DB":
		c.HistoryDB = value

	// Web Server
	case "WEB_SERVER_PORT":
		c.WebServerPort, err = parseInt(key, value, 1)

	// Display
	case "DISPLAY_I2C_BUS":
		c.DisplayI2CBus = value
	case "DISPLAY_UPDATE_INTERVAL":
		c.DisplayUpdateInterval, err = parseInt(key, value, 1)

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return err
}

// validate checks cross-field rules and that hardware settings are present
// when real sensors are used.
func (c *Config) validate() error {
	if c.FlashEraseSize%c.FlashProgramSize != 0 {
		return fmt.Errorf("FLASH_ERASE_SIZE (%d) must be a multiple of FLASH_PROGRAM_SIZE (%d)", c.FlashEraseSize, c.FlashProgramSize)
	}
	if c.FlashSize%c.FlashEraseSize != 0 {
		return fmt.Errorf("FLASH_SIZE (%d) must be a multiple of FLASH_ERASE_SIZE (%d)", c.FlashSize, c.FlashEraseSize)
	}
	if c.SimulateSensors {
		return nil
	}
	if c.IMUSPIDevice == "" {
		return fmt.Errorf("IMU_SPI_DEVICE is required")
	}
	if c.GPSSerialPort == "" {
		return fmt.Errorf("GPS_SERIAL_PORT is required")
	}
	if c.FlashPath == "" {
		return fmt.Errorf("FLASH_PATH is required")
	}
	return nil
}

// InitGlobal initializes the global configuration from file.
// Only the first call has any effect.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance, or nil before InitGlobal.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
