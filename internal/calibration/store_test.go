// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package calibration

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/road_qualifier/internal/flash"
)

func newDevice(t *testing.T, eraseSize, programSize int64) *flash.MemDevice {
	t.Helper()
	dev := flash.NewMemDevice(4*eraseSize, eraseSize, programSize)
	require.NoError(t, dev.Init())
	return dev
}

func TestDataLayout(t *testing.T) {
	d := Data{Signature: Signature, MinDelta: -5, MaxDelta: 300}
	raw, err := d.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, []byte{
		0xEF, 0xBE, 0xAD, 0xDE,
		0xFB, 0xFF, 0xFF, 0xFF,
		0x2C, 0x01, 0x00, 0x00,
	}, raw)

	var back Data
	require.NoError(t, back.UnmarshalBinary(raw))
	assert.Equal(t, d, back)

	assert.Error(t, back.UnmarshalBinary(raw[:8]))
}

func TestStoreRoundTrip(t *testing.T) {
	cases := []Data{
		NewData(Bounds{MinDelta: 12, MaxDelta: 4000}, Signature),
		NewData(Bounds{MinDelta: 0, MaxDelta: 1}, Signature),
		NewData(Bounds{MinDelta: math.MinInt32, MaxDelta: math.MaxInt32}, Signature),
	}
	for _, want := range cases {
		store := NewStore(newDevice(t, 64, 8), Signature)
		require.NoError(t, store.Save(want))

		got, ok := store.Load()
		require.True(t, ok)
		assert.Equal(t, want, got)
		assert.Equal(t, want.Bounds(), got.Bounds())
	}
}

func TestStoreOverwrite(t *testing.T) {
	store := NewStore(newDevice(t, 64, 8), Signature)
	require.NoError(t, store.Save(NewData(Bounds{MinDelta: 1, MaxDelta: 2}, Signature)))
	require.NoError(t, store.Save(NewData(Bounds{MinDelta: 100, MaxDelta: 200}, Signature)))

	got, ok := store.Load()
	require.True(t, ok)
	assert.Equal(t, Bounds{MinDelta: 100, MaxDelta: 200}, got.Bounds())
}

func TestStoreErasedFlashIsUncalibrated(t *testing.T) {
	store := NewStore(newDevice(t, 64, 8), Signature)
	_, ok := store.Load()
	assert.False(t, ok)
}

func TestStoreRejectsForeignSignature(t *testing.T) {
	dev := newDevice(t, 64, 8)
	require.NoError(t, NewStore(dev, 0xCAFEF00D).Save(NewData(Bounds{MinDelta: 1, MaxDelta: 9}, 0xCAFEF00D)))

	_, ok := NewStore(dev, Signature).Load()
	assert.False(t, ok)
}

func TestStoreRejectsCorruptSignature(t *testing.T) {
	dev := newDevice(t, 64, 8)
	store := NewStore(dev, Signature)
	require.NoError(t, store.Save(NewData(Bounds{MinDelta: 1, MaxDelta: 9}, Signature)))

	// Clearing bits in the signature is what a torn or foreign write looks like.
	require.NoError(t, dev.Program([]byte{0x00, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}, 0))
	_, ok := store.Load()
	assert.False(t, ok)
}

func TestStorePadsToProgramSize(t *testing.T) {
	dev := newDevice(t, 64, 16)
	store := NewStore(dev, Signature)
	require.NoError(t, store.Save(NewData(Bounds{MinDelta: 3, MaxDelta: 7}, Signature)))

	raw := dev.Bytes()
	assert.Equal(t, bytes.Repeat([]byte{0xFF}, 4), raw[12:16])
	assert.Equal(t, bytes.Repeat([]byte{0xFF}, len(raw)-16), raw[16:])
}

func TestStoreLoadReadFailure(t *testing.T) {
	// Not initialised, so every read fails.
	store := NewStore(flash.NewMemDevice(64, 64, 8), Signature)
	_, ok := store.Load()
	assert.False(t, ok)
	assert.Error(t, store.Save(NewData(Bounds{MinDelta: 1, MaxDelta: 2}, Signature)))
}
