// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package flash models the NOR-style block device the calibration record
// lives on. Erased bytes read as ErasedByte and programming can only clear
// bits, so a record written without a prior erase is corrupted the same way
// it would be on real flash.
package flash

import (
	"errors"
	"fmt"
)

// ErasedByte is the value every byte holds after an erase.
const ErasedByte = 0xFF

var (
	ErrNotInitialized = errors.New("flash: device not initialized")
	ErrOutOfRange     = errors.New("flash: access out of range")
	ErrUnaligned      = errors.New("flash: access not aligned to block size")
)

// BlockDevice is the capability the calibration store needs from storage.
type BlockDevice interface {
	// Init prepares the device. Calling it again on an initialized device is a no-op.
	Init() error
	// Read fills buf starting at offset.
	Read(buf []byte, offset int64) error
	// Erase resets size bytes starting at offset to ErasedByte. Both values
	// must be multiples of EraseSize.
	Erase(offset, size int64) error
	// Program writes data at offset. Offset and length must be multiples of ProgramSize.
	Program(data []byte, offset int64) error
	// ProgramSize is the program granularity in bytes.
	ProgramSize() int64
	// EraseSize is the erase granularity in bytes.
	EraseSize() int64
}

func checkGeometry(size, eraseSize, programSize int64) error {
	if eraseSize <= 0 || programSize <= 0 {
		return fmt.Errorf("flash: invalid block sizes (erase=%d, program=%d)", eraseSize, programSize)
	}
	if size <= 0 || size%eraseSize != 0 {
		return fmt.Errorf("flash: size %d is not a positive multiple of erase size %d", size, eraseSize)
	}
	if eraseSize%programSize != 0 {
		return fmt.Errorf("flash: erase size %d is not a multiple of program size %d", eraseSize, programSize)
	}
	return nil
}

func checkRange(offset, length, size int64) error {
	if offset < 0 || length < 0 || offset+length > size {
		return fmt.Errorf("%w: offset=%d length=%d size=%d", ErrOutOfRange, offset, length, size)
	}
	return nil
}

func checkAligned(offset, length, block int64) error {
	if offset%block != 0 || length%block != 0 {
		return fmt.Errorf("%w: offset=%d length=%d block=%d", ErrUnaligned, offset, length, block)
	}
	return nil
}

// programBits applies NOR program semantics: a bit can go from 1 to 0 only.
func programBits(dst, src []byte) {
	for i := range src {
		dst[i] &= src[i]
	}
}
