// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Forces a fresh noise-baseline calibration and stores it in the flash
// record, replacing whatever was there. Run it with the vehicle parked and
// the engine running:
//
//	sudo ./calibration -config ./road_qualifier_config.txt
//
// The report (previous bounds, new bounds, sample statistics) is printed as JSON.
package main

import (
	"flag"
	"log"
	"os"

	"github.com/relabs-tech/road_qualifier/internal/app"
	"github.com/relabs-tech/road_qualifier/internal/config"
)

func main() {
	configPath := flag.String("config", "./road_qualifier_config.txt", "path to configuration file")
	flag.Parse()

	log.Println("starting road qualifier calibration")

	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunCalibration(os.Stdout); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
