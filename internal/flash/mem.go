// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package flash

import "bytes"

// MemDevice is an in-memory BlockDevice. It backs simulated runs and tests.
type MemDevice struct {
	data        []byte
	eraseSize   int64
	programSize int64
	initialized bool
}

// NewMemDevice returns an erased device of the given geometry.
func NewMemDevice(size, eraseSize, programSize int64) *MemDevice {
	if size < 0 {
		size = 0
	}
	return &MemDevice{
		data:        bytes.Repeat([]byte{ErasedByte}, int(size)),
		eraseSize:   eraseSize,
		programSize: programSize,
	}
}

func (m *MemDevice) Init() error {
	if m.initialized {
		return nil
	}
	if err := checkGeometry(int64(len(m.data)), m.eraseSize, m.programSize); err != nil {
		return err
	}
	m.initialized = true
	return nil
}

func (m *MemDevice) Read(buf []byte, offset int64) error {
	if !m.initialized {
		return ErrNotInitialized
	}
	if err := checkRange(offset, int64(len(buf)), int64(len(m.data))); err != nil {
		return err
	}
	copy(buf, m.data[offset:])
	return nil
}

func (m *MemDevice) Erase(offset, size int64) error {
	if !m.initialized {
		return ErrNotInitialized
	}
	if err := checkAligned(offset, size, m.eraseSize); err != nil {
		return err
	}
	if err := checkRange(offset, size, int64(len(m.data))); err != nil {
		return err
	}
	for i := offset; i < offset+size; i++ {
		m.data[i] = ErasedByte
	}
	return nil
}

func (m *MemDevice) Program(data []byte, offset int64) error {
	if !m.initialized {
		return ErrNotInitialized
	}
	if err := checkAligned(offset, int64(len(data)), m.programSize); err != nil {
		return err
	}
	if err := checkRange(offset, int64(len(data)), int64(len(m.data))); err != nil {
		return err
	}
	programBits(m.data[offset:offset+int64(len(data))], data)
	return nil
}

func (m *MemDevice) ProgramSize() int64 { return m.programSize }
func (m *MemDevice) EraseSize() int64   { return m.eraseSize }

// Bytes returns a copy of the raw contents.
func (m *MemDevice) Bytes() []byte {
	out := make([]byte, len(m.data))
	copy(out, m.data)
	return out
}
