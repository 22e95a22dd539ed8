// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"log"

	"github.com/relabs-tech/road_qualifier/internal/app"
	"github.com/relabs-tech/road_qualifier/internal/config"
)

func main() {
	configPath := flag.String("config", "./road_qualifier_config.txt", "path to configuration file")
	flag.Parse()

	log.Println("starting road qualifier (accelerometer + GPS -> segment quality)")

	// Load configuration
	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunQualifier(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
