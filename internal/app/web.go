// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/road_qualifier/internal/config"
	"github.com/relabs-tech/road_qualifier/internal/history"
	"github.com/relabs-tech/road_qualifier/internal/telemetry"
)

const recentSegments = 200

var wsWriteTimeout = 2 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // status page is served on the vehicle's local network
	},
}

// segmentHub keeps the latest segments and fans them out to websocket clients.
type segmentHub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
	recent  []telemetry.Record // oldest first
	limit   int
}

func newSegmentHub(limit int) *segmentHub {
	return &segmentHub{clients: make(map[*websocket.Conn]struct{}), limit: limit}
}

// add records r and sends it to every client. Clients that fail to keep up are dropped.
func (h *segmentHub) add(r telemetry.Record) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.recent = append(h.recent, r)
	if len(h.recent) > h.limit {
		h.recent = h.recent[len(h.recent)-h.limit:]
	}

	for conn := range h.clients {
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(r); err != nil {
			log.Printf("web: dropping websocket client %s: %v", conn.RemoteAddr(), err)
			conn.Close()
			delete(h.clients, conn)
		}
	}
}

// Recent returns up to n segments, newest first.
func (h *segmentHub) Recent(n int) []telemetry.Record {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n > len(h.recent) {
		n = len(h.recent)
	}
	out := make([]telemetry.Record, 0, n)
	for i := len(h.recent) - 1; i >= len(h.recent)-n; i-- {
		out = append(out, h.recent[i])
	}
	return out
}

// handleWS streams segments to one client: the backlog first, then live.
func (h *segmentHub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("web: websocket upgrade error: %v", err)
		return
	}

	h.mu.Lock()
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	for _, rec := range h.recent {
		if err := conn.WriteJSON(rec); err != nil {
			h.mu.Unlock()
			conn.Close()
			return
		}
	}
	h.clients[conn] = struct{}{}
	h.mu.Unlock()

	// Reads only detect the client going away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("web: websocket error: %v", err)
			}
			break
		}
	}

	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	conn.Close()
}

// segmentLog is the read side of the local history.
type segmentLog interface {
	Recent(limit int) ([]history.Entry, error)
	Summary() (history.Summary, error)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", telemetry.ContentType)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("web: json encode error: %v", err)
	}
}

// newWebMux serves the status API. segLog may be nil, in which case only the
// segments seen since startup are available.
func newWebMux(hub *segmentHub, segLog segmentLog, staticDir string) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/segments", hub.handleWS)

	mux.HandleFunc("/api/segments", func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 || n > 1000 {
				http.Error(w, "limit must be 1-1000", http.StatusBadRequest)
				return
			}
			limit = n
		}

		if segLog == nil {
			writeJSON(w, hub.Recent(limit))
			return
		}
		entries, err := segLog.Recent(limit)
		if err != nil {
			log.Printf("web: history: %v", err)
			http.Error(w, "history unavailable", http.StatusInternalServerError)
			return
		}
		writeJSON(w, entries)
	})

	mux.HandleFunc("/api/summary", func(w http.ResponseWriter, r *http.Request) {
		if segLog == nil {
			http.Error(w, "no history configured", http.StatusNotFound)
			return
		}
		s, err := segLog.Summary()
		if err != nil {
			log.Printf("web: history: %v", err)
			http.Error(w, "history unavailable", http.StatusInternalServerError)
			return
		}
		writeJSON(w, s)
	})

	if staticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(staticDir)))
	}
	return mux
}

// RunWeb serves the segment status page, fed from MQTT and the local history.
func RunWeb() error {
	cfg := config.Get()
	hub := newSegmentHub(recentSegments)

	client, err := telemetry.Connect(cfg.MQTTBroker, telemetry.ClientID(cfg.MQTTClientIDWeb, "road-web"))
	if err != nil {
		return err
	}
	defer client.Disconnect(250)
	if err := telemetry.Subscribe(client, cfg.TopicSegment, hub.add); err != nil {
		return err
	}

	var segLog segmentLog
	if cfg.HistoryDB != "" {
		db, err := history.Open(cfg.HistoryDB, cfg.DeviceID)
		if err != nil {
			return err
		}
		defer db.Close()
		segLog = db
	}

	addr := fmt.Sprintf(":%d", cfg.WebServerPort)
	log.Printf("web: server listening on %s", addr)
	return http.ListenAndServe(addr, newWebMux(hub, segLog, "web"))
}
