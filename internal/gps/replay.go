// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gps

import (
	"fmt"

	"github.com/relabs-tech/road_qualifier/internal/timeutil"
)

// Replay plays back recorded NMEA sentences: every Poll delivers the next
// batch of lines. After the last batch, Poll delivers nothing.
type Replay struct {
	*Decoder
	batches [][]string
	polls   int
}

var _ Receiver = (*Replay)(nil)

// NewReplay returns a receiver for the given batches of sentences.
func NewReplay(clock timeutil.Clock, batches ...[]string) *Replay {
	return &Replay{Decoder: NewDecoder(clock), batches: batches}
}

func (r *Replay) Poll() error {
	if r.polls < len(r.batches) {
		for _, line := range r.batches[r.polls] {
			r.Write([]byte(line + "\r\n"))
		}
	}
	r.polls++
	return nil
}

// Polls returns how many times Poll has been called.
func (r *Replay) Polls() int { return r.polls }

// Sentence frames an NMEA body (without '$' and checksum) as a complete
// sentence, e.g. Sentence("GPTXT,01,01,01,ANTENNA OK").
func Sentence(body string) string {
	var cs byte
	for i := 0; i < len(body); i++ {
		cs ^= body[i]
	}
	return fmt.Sprintf("$%s*%02X", body, cs)
}
