// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/road_qualifier/internal/calibration"
	"github.com/relabs-tech/road_qualifier/internal/config"
	"github.com/relabs-tech/road_qualifier/internal/flash"
	"github.com/relabs-tech/road_qualifier/internal/gps"
	"github.com/relabs-tech/road_qualifier/internal/history"
	"github.com/relabs-tech/road_qualifier/internal/imu"
	"github.com/relabs-tech/road_qualifier/internal/qualifier"
	"github.com/relabs-tech/road_qualifier/internal/quality"
	"github.com/relabs-tech/road_qualifier/internal/telemetry"
	"github.com/relabs-tech/road_qualifier/internal/timeutil"
)

// scriptedSource returns one scripted error per call and cancels ctx when it runs out.
type scriptedSource struct {
	errs   []error
	cancel context.CancelFunc
	calls  int
}

func (s *scriptedSource) QualifySegment(ctx context.Context) error {
	if s.calls >= len(s.errs) {
		s.cancel()
		return ctx.Err()
	}
	err := s.errs[s.calls]
	s.calls++
	return err
}

func (s *scriptedSource) SegmentQuality() quality.SegmentQuality {
	return quality.SegmentQuality{Latitude: 46, Longitude: 8, Quality: uint8(s.calls)}
}

type memSink struct {
	got []quality.SegmentQuality
	ts  []time.Time
	err error
}

func (m *memSink) Publish(q quality.SegmentQuality, ts time.Time) error {
	m.got = append(m.got, q)
	m.ts = append(m.ts, ts)
	return m.err
}

func TestQualifyLoopPublishesValidSegments(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	invalid := fmt.Errorf("%w: no GPS fix", qualifier.ErrSegmentInvalid)
	src := &scriptedSource{errs: []error{nil, invalid, nil, invalid, invalid, nil}, cancel: cancel}
	sink := &memSink{}
	stamp := time.Unix(1774269319, 0)

	st, err := qualifyLoop(ctx, src, sink, func() time.Time { return stamp })
	require.NoError(t, err)
	assert.Equal(t, loopStats{valid: 3, invalid: 3}, st)
	require.Len(t, sink.got, 3)
	assert.Equal(t, []uint8{1, 3, 6}, []uint8{sink.got[0].Quality, sink.got[1].Quality, sink.got[2].Quality})
	assert.Equal(t, stamp, sink.ts[0])
}

func TestQualifyLoopStopsOnFatalError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	boom := errors.New("spi bus gone")
	src := &scriptedSource{errs: []error{nil, boom, nil}, cancel: cancel}
	sink := &memSink{err: errors.New("broker down")}

	st, err := qualifyLoop(ctx, src, sink, func() time.Time { return time.Time{} })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, loopStats{valid: 1, publishErrors: 1}, st)
}

func TestGPSStamp(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2026, 3, 23, 12, 0, 0, 0, time.UTC))
	sim := gps.NewSimulated(clock, 0, 0, 30)
	assert.Equal(t, clock.Now(), gpsStamp(sim)())

	// A replay decodes RMC date and time, but has none before the first sentence.
	rx := gps.NewReplay(clock, []string{gps.Sentence("GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230326,003.1,W")})
	stamp := gpsStamp(rx)
	assert.True(t, stamp().IsZero())
	require.NoError(t, rx.Poll())
	assert.Equal(t, time.Date(2026, 3, 23, 12, 35, 19, 0, time.UTC), stamp())
}

func TestOpenDevicesSimulated(t *testing.T) {
	cfg := config.Default()
	cfg.SimulateSensors = true
	clock := timeutil.RealClock{}

	devs, err := openDevices(cfg, clock, true)
	require.NoError(t, err)
	assert.IsType(t, &flash.MemDevice{}, devs.dev)
	assert.IsType(t, &gps.Simulated{}, devs.rx)
	devs.Close()

	cfg.FlashPath = filepath.Join(t.TempDir(), "flash.bin")
	devs, err = openDevices(cfg, clock, true)
	require.NoError(t, err)
	require.IsType(t, &flash.FileDevice{}, devs.dev)
	require.NoError(t, devs.dev.Init())
	devs.Close()
}

func TestRecalibrateWritesReport(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2026, 3, 23, 12, 0, 0, 0, time.UTC))
	dev := flash.NewMemDevice(4096, 4096, 8)
	require.NoError(t, dev.Init())
	require.NoError(t, calibration.NewStore(dev, calibration.Signature).Save(
		calibration.NewData(calibration.Bounds{MinDelta: 1, MaxDelta: 2}, calibration.Signature)))

	devs := &devices{
		acc: &imu.Replay{Samples: []int16{0, 5, 7, 17, 14, 18, 16}},
		rx:  gps.NewReplay(clock),
		dev: dev,
	}
	opts := qualifier.DefaultOptions()
	opts.CalibrationTime = 30 * time.Millisecond
	q := qualifier.New(devs.acc, devs.rx, devs.dev, opts, clock)

	var out bytes.Buffer
	require.NoError(t, recalibrate(context.Background(), q, devs, opts, &out))

	var got struct {
		Previous *calibration.Bounds `json:"previous"`
		MinDelta int32               `json:"min_delta"`
		MaxDelta int32               `json:"max_delta"`
		Samples  int                 `json:"samples"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	require.NotNil(t, got.Previous)
	assert.Equal(t, calibration.Bounds{MinDelta: 1, MaxDelta: 2}, *got.Previous)
	assert.Equal(t, int32(2), got.MinDelta)
	assert.Equal(t, int32(10), got.MaxDelta)
	assert.Equal(t, 6, got.Samples)

	d, ok := calibration.NewStore(dev, calibration.Signature).Load()
	require.True(t, ok)
	assert.Equal(t, calibration.Bounds{MinDelta: 2, MaxDelta: 10}, d.Bounds())
}

func TestFormatSegment(t *testing.T) {
	line := formatSegment(telemetry.Record{Lat: 46.012015, Lon: 8.961104, Timestamp: 1774269319, Bumpiness: 128, DeviceID: "van-7"})
	assert.Equal(t, "[SEG] 2026-03-23T12:35:19Z lat=46.012015 lon=8.961104 quality=128 [########........] device=van-7", line)

	assert.Contains(t, formatSegment(telemetry.Record{}), "unknown time")
	assert.Equal(t, "................", qualityBar(0))
	assert.Equal(t, "################", qualityBar(255))
}

func TestDisplayLines(t *testing.T) {
	assert.Equal(t, []string{"Road quality", "Waiting for", "segments..."}, displayLines(telemetry.Record{}, false, 0))

	lines := displayLines(telemetry.Record{Lat: -33.5, Lon: -70.25, Bumpiness: 7}, true, 12)
	assert.Equal(t, []string{"33.50000S", "70.25000W", "Q:  7 #12", qualityBar(7)}, lines)

	img := renderLines(lines)
	assert.Equal(t, image.Rect(0, 0, 128, 64), img.Bounds())
	lit := 0
	for _, b := range img.Pix {
		if b != 0 {
			lit++
		}
	}
	assert.Greater(t, lit, 0)
}

func TestSegmentHubRecent(t *testing.T) {
	hub := newSegmentHub(3)
	for i := 1; i <= 5; i++ {
		hub.add(telemetry.Record{Bumpiness: uint8(i)})
	}
	got := hub.Recent(10)
	require.Len(t, got, 3)
	assert.Equal(t, []uint8{5, 4, 3}, []uint8{got[0].Bumpiness, got[1].Bumpiness, got[2].Bumpiness})
	assert.Len(t, hub.Recent(1), 1)
}

func TestSegmentWebSocket(t *testing.T) {
	hub := newSegmentHub(10)
	hub.add(telemetry.Record{Lat: 1, Lon: 2, Bumpiness: 3, DeviceID: "a"})

	srv := httptest.NewServer(newWebMux(hub, nil, ""))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/segments"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var backlog telemetry.Record
	require.NoError(t, conn.ReadJSON(&backlog))
	assert.Equal(t, uint8(3), backlog.Bumpiness)

	live := telemetry.Record{Lat: 4, Lon: 5, Bumpiness: 6, DeviceID: "a"}
	hub.add(live)
	var got telemetry.Record
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, live, got)
}

func TestSegmentWebSocketStalledBacklog(t *testing.T) {
	defer func(d time.Duration) { wsWriteTimeout = d }(wsWriteTimeout)
	wsWriteTimeout = 100 * time.Millisecond

	// A backlog far larger than the socket buffers of a client that never reads.
	const n = 20000
	hub := newSegmentHub(n)
	big := strings.Repeat("x", 1000)
	for i := 0; i < n; i++ {
		hub.add(telemetry.Record{DeviceID: big})
	}

	srv := httptest.NewServer(newWebMux(hub, nil, ""))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/segments"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	time.Sleep(20 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		hub.add(telemetry.Record{Bumpiness: 1})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("add blocked behind a stalled websocket client")
	}

	hub.mu.Lock()
	defer hub.mu.Unlock()
	assert.Empty(t, hub.clients)
}

func TestSegmentsAPI(t *testing.T) {
	hub := newSegmentHub(10)
	hub.add(telemetry.Record{Bumpiness: 1})
	hub.add(telemetry.Record{Bumpiness: 2})

	srv := httptest.NewServer(newWebMux(hub, nil, ""))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/segments?limit=1")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, telemetry.ContentType, resp.Header.Get("Content-Type"))
	var recs []telemetry.Record
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&recs))
	require.Len(t, recs, 1)
	assert.Equal(t, uint8(2), recs[0].Bumpiness)

	bad, err := http.Get(srv.URL + "/api/segments?limit=zero")
	require.NoError(t, err)
	bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)

	noLog, err := http.Get(srv.URL + "/api/summary")
	require.NoError(t, err)
	noLog.Body.Close()
	assert.Equal(t, http.StatusNotFound, noLog.StatusCode)
}

func TestSegmentsAPIFromHistory(t *testing.T) {
	db, err := history.Open(filepath.Join(t.TempDir(), "history.db"), "van-7")
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Publish(quality.SegmentQuality{Latitude: 46, Longitude: 8, Quality: 99}, time.Time{}))

	srv := httptest.NewServer(newWebMux(newSegmentHub(10), db, ""))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/segments")
	require.NoError(t, err)
	defer resp.Body.Close()
	var entries []history.Entry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries))
	require.Len(t, entries, 1)
	assert.Equal(t, uint8(99), entries[0].Bumpiness)
	assert.Equal(t, "van-7", entries[0].DeviceID)

	sresp, err := http.Get(srv.URL + "/api/summary")
	require.NoError(t, err)
	defer sresp.Body.Close()
	var s history.Summary
	require.NoError(t, json.NewDecoder(sresp.Body).Decode(&s))
	assert.Equal(t, history.Summary{Segments: 1, MeanQuality: 99, MaxQuality: 99}, s)
}
