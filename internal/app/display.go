// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"
	"image"
	"log"
	"sync"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/road_qualifier/internal/config"
	"github.com/relabs-tech/road_qualifier/internal/telemetry"
)

// displayLines is what the 128x64 panel shows, one entry per text row.
func displayLines(r telemetry.Record, have bool, segments int) []string {
	if !have {
		return []string{"Road quality", "Waiting for", "segments..."}
	}

	latDir, lat := "N", r.Lat
	if lat < 0 {
		latDir, lat = "S", -lat
	}
	lonDir, lon := "E", r.Lon
	if lon < 0 {
		lonDir, lon = "W", -lon
	}
	return []string{
		fmt.Sprintf("%.5f%s", lat, latDir),
		fmt.Sprintf("%.5f%s", lon, lonDir),
		fmt.Sprintf("Q:%3d #%d", r.Bumpiness, segments),
		qualityBar(r.Bumpiness),
	}
}

// renderLines draws lines on a blank panel image with the 7x13 font.
func renderLines(lines []string) *image1bit.VerticalLSB {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, 128, 64))
	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	for i, line := range lines {
		drawer.Dot = fixed.P(0, 13*(i+1))
		drawer.DrawString(line)
	}
	return img
}

// RunDisplay shows the latest published segment on an SSD1306 OLED.
func RunDisplay() error {
	cfg := config.Get()

	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}

	bus, err := i2creg.Open(cfg.DisplayI2CBus)
	if err != nil {
		return fmt.Errorf("failed to open I2C bus: %w", err)
	}
	defer bus.Close()

	dev, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize display: %w", err)
	}
	log.Println("display: initialized")

	var (
		mu       sync.Mutex
		last     telemetry.Record
		have     bool
		segments int
	)

	if err := dev.Draw(dev.Bounds(), renderLines(displayLines(last, false, 0)), image.Point{}); err != nil {
		log.Printf("display: error showing splash: %v", err)
	}

	client, err := telemetry.Connect(cfg.MQTTBroker, telemetry.ClientID(cfg.MQTTClientIDDisplay, "road-display"))
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	if err := telemetry.Subscribe(client, cfg.TopicSegment, func(r telemetry.Record) {
		mu.Lock()
		last, have = r, true
		segments++
		mu.Unlock()
	}); err != nil {
		return err
	}

	ticker := time.NewTicker(time.Duration(cfg.DisplayUpdateInterval) * time.Millisecond)
	defer ticker.Stop()

	log.Println("display: starting update loop")
	shown := -1
	for range ticker.C {
		mu.Lock()
		r, h, n := last, have, segments
		mu.Unlock()
		if n == shown {
			continue
		}
		if err := dev.Draw(dev.Bounds(), renderLines(displayLines(r, h, n)), image.Point{}); err != nil {
			log.Printf("display: error updating display: %v", err)
			continue
		}
		shown = n
	}
	return nil
}
