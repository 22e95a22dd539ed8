// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gps

import (
	"math"
	"strings"
	"time"

	nmea "github.com/adrianmo/go-nmea"

	"github.com/relabs-tech/road_qualifier/internal/timeutil"
)

// maxSentenceLen bounds a line; NMEA 0183 allows 82 characters.
const maxSentenceLen = 128

// vtgSpeedKPHField is the index of the km/h ground speed in a VTG sentence.
const vtgSpeedKPHField = 6

// Decoder turns an NMEA byte stream into Location, speed and antenna fields.
// Position comes from RMC and GGA, speed from VTG, antenna status from TXT.
type Decoder struct {
	clock timeutil.Clock
	line  []byte

	locUpdated bool
	locValid   bool
	lat, lon   float64
	fixAt      time.Time

	speed   Field
	antenna Field

	dateTime     time.Time
	haveDateTime bool

	sentences int
	rejected  int
}

// NewDecoder returns a Decoder that timestamps fixes with clock.
func NewDecoder(clock timeutil.Clock) *Decoder {
	return &Decoder{clock: clock}
}

// Encode feeds one byte. It returns true when the byte completed a sentence
// that was parsed successfully.
func (d *Decoder) Encode(c byte) bool {
	switch c {
	case '\n':
		line := strings.TrimSpace(string(d.line))
		d.line = d.line[:0]
		return d.parse(line)
	case '$':
		d.line = append(d.line[:0], c)
		return false
	}
	if len(d.line) >= maxSentenceLen {
		d.line = d.line[:0]
		return false
	}
	d.line = append(d.line, c)
	return false
}

// Write feeds p through Encode. It never fails.
func (d *Decoder) Write(p []byte) (int, error) {
	for _, c := range p {
		d.Encode(c)
	}
	return len(p), nil
}

func (d *Decoder) parse(line string) bool {
	if !strings.HasPrefix(line, "$") {
		return false
	}
	sentence, err := nmea.Parse(line)
	if err != nil {
		// noisy receivers emit partial lines and unsupported types
		d.rejected++
		return false
	}
	d.sentences++

	switch sentence.DataType() {
	case nmea.TypeRMC:
		m := sentence.(nmea.RMC)
		if m.Validity == nmea.ValidRMC {
			d.commitLocation(m.Latitude, m.Longitude)
		}
		if m.Date.Valid && m.Time.Valid {
			d.dateTime = time.Date(2000+m.Date.YY, time.Month(m.Date.MM), m.Date.DD,
				m.Time.Hour, m.Time.Minute, m.Time.Second, m.Time.Millisecond*int(time.Millisecond), time.UTC)
			d.haveDateTime = true
		}
	case nmea.TypeGGA:
		m := sentence.(nmea.GGA)
		if m.FixQuality != nmea.Invalid {
			d.commitLocation(m.Latitude, m.Longitude)
		}
	case nmea.TypeVTG:
		m := sentence.(nmea.VTG)
		value := ""
		if len(m.Fields) > vtgSpeedKPHField {
			value = strings.TrimSpace(m.Fields[vtgSpeedKPHField])
		}
		d.speed = Field{Updated: true, Value: value}
	case nmea.TypeTXT:
		m := sentence.(nmea.TXT)
		d.antenna = Field{Updated: true, Value: strings.TrimSpace(m.Message)}
	}
	return true
}

func (d *Decoder) commitLocation(lat, lon float64) {
	d.lat, d.lon = lat, lon
	d.locValid = true
	d.locUpdated = true
	d.fixAt = d.clock.Now()
}

func (d *Decoder) Location() Location {
	loc := Location{
		Updated: d.locUpdated,
		Valid:   d.locValid,
		Age:     time.Duration(math.MaxInt64),
		Lat:     d.lat,
		Lon:     d.lon,
	}
	if d.locValid {
		loc.Age = d.clock.Since(d.fixAt)
	}
	d.locUpdated = false
	return loc
}

func (d *Decoder) Speed() Field {
	f := d.speed
	d.speed.Updated = false
	return f
}

func (d *Decoder) Antenna() Field {
	f := d.antenna
	d.antenna.Updated = false
	return f
}

// DateTime returns the UTC date and time from the last RMC sentence carrying both.
func (d *Decoder) DateTime() (time.Time, bool) {
	return d.dateTime, d.haveDateTime
}

// Stats reports how many sentences were parsed and rejected.
func (d *Decoder) Stats() (parsed, rejected int) {
	return d.sentences, d.rejected
}
