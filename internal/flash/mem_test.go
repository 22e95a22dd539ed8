// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package flash

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemDeviceStartsErased(t *testing.T) {
	d := NewMemDevice(256, 64, 8)
	require.NoError(t, d.Init())

	buf := make([]byte, 16)
	require.NoError(t, d.Read(buf, 0))
	assert.Equal(t, bytes.Repeat([]byte{0xFF}, 16), buf)
}

func TestMemDeviceRequiresInit(t *testing.T) {
	d := NewMemDevice(256, 64, 8)
	assert.ErrorIs(t, d.Read(make([]byte, 4), 0), ErrNotInitialized)
	assert.ErrorIs(t, d.Erase(0, 64), ErrNotInitialized)
	assert.ErrorIs(t, d.Program(make([]byte, 8), 0), ErrNotInitialized)
}

func TestMemDeviceInitRejectsBadGeometry(t *testing.T) {
	assert.Error(t, NewMemDevice(100, 64, 8).Init())
	assert.Error(t, NewMemDevice(128, 64, 0).Init())
	assert.Error(t, NewMemDevice(128, 64, 48).Init())
}

func TestMemDeviceProgramOnlyClearsBits(t *testing.T) {
	d := NewMemDevice(128, 64, 8)
	require.NoError(t, d.Init())

	require.NoError(t, d.Program([]byte{0x0F, 0xF0, 0, 0, 0xFF, 0xFF, 0xFF, 0xFF}, 0))
	// Programming again without an erase cannot set bits back to 1.
	require.NoError(t, d.Program([]byte{0xF0, 0xFF, 0xFF, 0xFF, 0xAA, 0xFF, 0xFF, 0xFF}, 0))

	buf := make([]byte, 8)
	require.NoError(t, d.Read(buf, 0))
	assert.Equal(t, []byte{0x00, 0xF0, 0, 0, 0xAA, 0xFF, 0xFF, 0xFF}, buf)

	require.NoError(t, d.Erase(0, 64))
	require.NoError(t, d.Read(buf, 0))
	assert.Equal(t, bytes.Repeat([]byte{0xFF}, 8), buf)
}

func TestMemDeviceAlignmentAndRange(t *testing.T) {
	d := NewMemDevice(128, 64, 8)
	require.NoError(t, d.Init())

	assert.ErrorIs(t, d.Erase(0, 12), ErrUnaligned)
	assert.ErrorIs(t, d.Erase(32, 64), ErrUnaligned)
	assert.ErrorIs(t, d.Program(make([]byte, 12), 0), ErrUnaligned)
	assert.ErrorIs(t, d.Program(make([]byte, 8), 4), ErrUnaligned)
	assert.ErrorIs(t, d.Erase(64, 128), ErrOutOfRange)
	assert.ErrorIs(t, d.Read(make([]byte, 16), 120), ErrOutOfRange)
}
