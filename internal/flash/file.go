// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package flash

import (
	"bytes"
	"fmt"
	"log"
	"os"

	"golang.org/x/sys/unix"
)

// FileDevice emulates a flash partition on top of a regular file, e.g. on the
// board's persistent data partition. Init takes an exclusive, non-blocking
// flock on the file so only one process can own the calibration record.
type FileDevice struct {
	path        string
	size        int64
	eraseSize   int64
	programSize int64
	f           *os.File
}

// NewFileDevice describes a file-backed device. Nothing is opened until Init.
func NewFileDevice(path string, size, eraseSize, programSize int64) *FileDevice {
	return &FileDevice{
		path:        path,
		size:        size,
		eraseSize:   eraseSize,
		programSize: programSize,
	}
}

func (d *FileDevice) Init() error {
	if d.f != nil {
		return nil
	}
	if err := checkGeometry(d.size, d.eraseSize, d.programSize); err != nil {
		return err
	}

	f, err := os.OpenFile(d.path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("flash: open %s: %w", d.path, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return fmt.Errorf("flash: %s is in use by another process: %w", d.path, err)
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("flash: stat %s: %w", d.path, err)
	}
	// A fresh or short backing file reads as erased flash.
	if st.Size() < d.size {
		pad := bytes.Repeat([]byte{ErasedByte}, int(d.size-st.Size()))
		if _, err := f.WriteAt(pad, st.Size()); err != nil {
			f.Close()
			return fmt.Errorf("flash: format %s: %w", d.path, err)
		}
		if err := f.Sync(); err != nil {
			f.Close()
			return fmt.Errorf("flash: sync %s: %w", d.path, err)
		}
		log.Printf("flash: formatted %s (%d bytes)", d.path, d.size)
	}

	d.f = f
	return nil
}

func (d *FileDevice) Read(buf []byte, offset int64) error {
	if d.f == nil {
		return ErrNotInitialized
	}
	if err := checkRange(offset, int64(len(buf)), d.size); err != nil {
		return err
	}
	if _, err := d.f.ReadAt(buf, offset); err != nil {
		return fmt.Errorf("flash: read %s: %w", d.path, err)
	}
	return nil
}

func (d *FileDevice) Erase(offset, size int64) error {
	if d.f == nil {
		return ErrNotInitialized
	}
	if err := checkAligned(offset, size, d.eraseSize); err != nil {
		return err
	}
	if err := checkRange(offset, size, d.size); err != nil {
		return err
	}
	if _, err := d.f.WriteAt(bytes.Repeat([]byte{ErasedByte}, int(size)), offset); err != nil {
		return fmt.Errorf("flash: erase %s: %w", d.path, err)
	}
	return d.f.Sync()
}

func (d *FileDevice) Program(data []byte, offset int64) error {
	if d.f == nil {
		return ErrNotInitialized
	}
	if err := checkAligned(offset, int64(len(data)), d.programSize); err != nil {
		return err
	}
	if err := checkRange(offset, int64(len(data)), d.size); err != nil {
		return err
	}

	cur := make([]byte, len(data))
	if _, err := d.f.ReadAt(cur, offset); err != nil {
		return fmt.Errorf("flash: program %s: %w", d.path, err)
	}
	programBits(cur, data)
	if _, err := d.f.WriteAt(cur, offset); err != nil {
		return fmt.Errorf("flash: program %s: %w", d.path, err)
	}
	return d.f.Sync()
}

func (d *FileDevice) ProgramSize() int64 { return d.programSize }
func (d *FileDevice) EraseSize() int64   { return d.eraseSize }

// Close releases the lock and the file.
func (d *FileDevice) Close() error {
	if d.f == nil {
		return nil
	}
	unix.Flock(int(d.f.Fd()), unix.LOCK_UN)
	err := d.f.Close()
	d.f = nil
	return err
}
