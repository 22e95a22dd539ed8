// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gps

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sync"

	serial "github.com/jacobsa/go-serial/serial"

	"github.com/relabs-tech/road_qualifier/internal/timeutil"
)

// StreamReceiver decodes NMEA from a byte stream such as a serial port.
// A background goroutine moves bytes from the stream into a channel so
// Poll only consumes what has already arrived.
type StreamReceiver struct {
	*Decoder

	src   io.ReadCloser
	chunk chan []byte
	err   error

	done      chan struct{} // closed by Close
	closeOnce sync.Once
	exited    chan struct{} // closed when readLoop returns
}

var errReceiverClosed = errors.New("receiver closed")

var _ Receiver = (*StreamReceiver)(nil)

// NewStreamReceiver starts reading src in the background.
func NewStreamReceiver(src io.ReadCloser, clock timeutil.Clock) *StreamReceiver {
	r := &StreamReceiver{
		Decoder: NewDecoder(clock),
		src:     src,
		chunk:   make(chan []byte, 64),
		done:    make(chan struct{}),
		exited:  make(chan struct{}),
	}
	go r.readLoop()
	return r
}

// OpenSerial opens the GPS UART and returns a receiver reading from it.
func OpenSerial(portName string, baudRate int, clock timeutil.Clock) (*StreamReceiver, error) {
	opts := serial.OpenOptions{
		PortName:              portName,
		BaudRate:              uint(baudRate),
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}
	port, err := serial.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("gps: open %s: %w", portName, err)
	}
	log.Printf("gps: serial port opened on %s at %d baud", portName, baudRate)
	return NewStreamReceiver(port, clock), nil
}

func (r *StreamReceiver) readLoop() {
	defer close(r.exited)
	defer close(r.chunk)

	buf := make([]byte, 256)
	for {
		n, err := r.src.Read(buf)
		if n > 0 {
			b := make([]byte, n)
			copy(b, buf[:n])
			select {
			case r.chunk <- b:
			case <-r.done:
				r.err = errReceiverClosed
				return
			}
		}
		if err != nil {
			select {
			case <-r.done:
				r.err = errReceiverClosed
			default:
				r.err = err
			}
			return
		}
	}
}

// Poll feeds every chunk received so far into the decoder. Once the stream
// has failed, Poll keeps returning that error.
func (r *StreamReceiver) Poll() error {
	for {
		select {
		case b, ok := <-r.chunk:
			if !ok {
				return fmt.Errorf("gps: stream closed: %w", r.err)
			}
			r.Write(b)
		default:
			return nil
		}
	}
}

// Close closes the underlying stream and stops the read goroutine, even
// when nobody is polling any more.
func (r *StreamReceiver) Close() error {
	r.closeOnce.Do(func() { close(r.done) })
	return r.src.Close()
}
