// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package calibration

import (
	"bytes"
	"fmt"
	"log"

	"github.com/relabs-tech/road_qualifier/internal/flash"
)

// Store loads and saves the calibration record at offset 0 of a block device.
// It must be the only user of the device.
type Store struct {
	dev       flash.BlockDevice
	signature uint32
}

// NewStore returns a Store that trusts only records carrying signature.
func NewStore(dev flash.BlockDevice, signature uint32) *Store {
	return &Store{dev: dev, signature: signature}
}

// Load returns the stored record. Erased flash, a torn write, a foreign format
// and read failures all look the same to the caller: no calibration.
func (s *Store) Load() (Data, bool) {
	buf := make([]byte, RecordSize)
	if err := s.dev.Read(buf, 0); err != nil {
		log.Printf("calibration: read failed, treating as uncalibrated: %v", err)
		return Data{}, false
	}

	var d Data
	if err := d.UnmarshalBinary(buf); err != nil {
		return Data{}, false
	}
	if d.Signature != s.signature {
		return Data{}, false
	}
	return d, true
}

// Save erases the blocks covering the record and programs it in one call,
// padded to the program size with erased bytes.
//
// A power loss between erase and program leaves erased or partly programmed
// flash; the next Load then fails the signature check and triggers a fresh
// calibration. Nothing stronger is guaranteed.
func (s *Store) Save(d Data) error {
	rec, err := d.MarshalBinary()
	if err != nil {
		return err
	}

	eraseSize := s.dev.EraseSize()
	eraseBlocks := (int64(RecordSize) + eraseSize - 1) / eraseSize
	if err := s.dev.Erase(0, eraseBlocks*eraseSize); err != nil {
		return fmt.Errorf("calibration: erase: %w", err)
	}

	programSize := s.dev.ProgramSize()
	bufSize := ((int64(RecordSize) + programSize - 1) / programSize) * programSize
	buf := bytes.Repeat([]byte{flash.ErasedByte}, int(bufSize))
	copy(buf, rec)

	if err := s.dev.Program(buf, 0); err != nil {
		return fmt.Errorf("calibration: program: %w", err)
	}
	return nil
}
