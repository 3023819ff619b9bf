/*
   FluxKeep - vintage floppy media preservation toolkit
   Copyright (c) 2026, The FluxKeep Authors

   This file is part of FluxKeep.

   FluxKeep is free software: you can redistribute it and/or modify
   it under the terms of the GNU General Public License as published by
   the Free Software Foundation, either version 3 of the License, or
   (at your option) any later version.

   FluxKeep is distributed in the hope that it will be useful,
   but WITHOUT ANY WARRANTY; without even the implied warranty of
   MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
   GNU General Public License for more details.

   You should have received a copy of the GNU General Public License
   along with FluxKeep. If not, see <http://www.gnu.org/licenses/>.
*/

// Package ipf reads the CTRaw flux variant of the CAPS/IPF container
// family. The file is a stream of big-endian records; flux lives in DUMP
// records, one per track side.
package ipf

import (
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"

	"github.com/fluxkeep/fluxkeep/pkg/binutil"
	"github.com/fluxkeep/fluxkeep/pkg/disk"
)

const (
	recHeaderSize = 12

	// DefaultSampleRate applies when no CTEI record is present.
	DefaultSampleRate = 25000000
)

// Dump is one track's flux from a DUMP record, in sample ticks.
type Dump struct {
	Track    int
	Side     int
	IndexPos uint32
	Flux     []uint32
}

// Image is a parsed CTRaw file.
type Image struct {
	SampleRate uint32
	MinTrack   int
	MaxTrack   int
	MinSide    int
	MaxSide    int
	Records    int
	Dumps      []*Dump
}

// TickNS converts a tick count at the image's sample rate to nanoseconds.
func (img *Image) TickNS(ticks uint32) uint32 {
	return uint32(uint64(ticks) * 1e9 / uint64(img.SampleRate))
}

//
func (img *Image) DumpAt(track, side int) *Dump {
	for _, d := range img.Dumps {
		if d.Track == track && d.Side == side {
			return d
		}
	}
	return nil
}

// Parse walks the record stream. The first record must be CAPS; unknown
// record types are skipped by their declared length.
func Parse(data []byte) (*Image, error) {

	r := binutil.NewReader(data)
	img := &Image{SampleRate: DefaultSampleRate}

	pos := 0
	for pos+recHeaderSize <= r.Size() {

		hdr, err := r.Read(pos, recHeaderSize)
		if err != nil {
			break
		}
		typ := string(hdr[:4])
		length := int(binutil.U32BE(hdr[4:]))

		if length < recHeaderSize || pos+length > r.Size() {
			return nil, fmt.Errorf(
				"CTRaw record %q at %d has bad length %d", typ, pos, length)
		}
		payload, _ := r.Read(pos+recHeaderSize, length-recHeaderSize)

		if pos == 0 && typ != "CAPS" {
			return nil, fmt.Errorf("not a CTRaw image")
		}
		img.Records++

		switch typ {

		case "CAPS":
			// file signature, no payload of interest

		case "INFO":
			if len(payload) >= 40 {
				img.MinTrack = int(binutil.U32BE(payload[24:]))
				img.MaxTrack = int(binutil.U32BE(payload[28:]))
				img.MinSide = int(binutil.U32BE(payload[32:]))
				img.MaxSide = int(binutil.U32BE(payload[36:]))
			}

		case "CTEI":
			if len(payload) >= 4 {
				if rate := binutil.U32BE(payload); rate > 0 {
					img.SampleRate = rate
				}
			}

		case "DUMP":
			if err := img.parseDump(payload); err != nil {
				log.WithError(err).Warn("skipping DUMP record")
			}

		default:
			log.WithField("type", typ).Debug("skipping CTRaw record")
		}

		pos += length
	}

	if img.Records == 0 {
		return nil, fmt.Errorf("not a CTRaw image")
	}
	return img, nil
}

//
func (img *Image) parseDump(payload []byte) error {

	if len(payload) < 16 {
		return fmt.Errorf("DUMP header truncated")
	}

	d := &Dump{
		Track:    int(binutil.U32BE(payload)),
		Side:     int(binutil.U32BE(payload[4:])),
		IndexPos: binutil.U32BE(payload[12:]),
	}
	count := int(binutil.U32BE(payload[8:]))

	if len(payload) < 16+count*2 {
		return fmt.Errorf("DUMP flux truncated: want %d cells", count)
	}

	d.Flux = make([]uint32, count)
	for i := 0; i < count; i++ {
		d.Flux[i] = uint32(binutil.U16BE(payload[16+i*2:]))
	}

	img.Dumps = append(img.Dumps, d)
	return nil
}

// Codec adapts CTRaw images to the shared disk model.
type Codec struct{}

//
func New() *Codec {
	return &Codec{}
}

//
func (c *Codec) Name() string {
	return "ipf"
}

//
func (c *Codec) Probe(data []byte) bool {
	return len(data) >= recHeaderSize && string(data[:4]) == "CAPS"
}

//
func (c *Codec) Open(data []byte, par *disk.Params) (*disk.Disk, error) {

	img, err := Parse(data)
	if err != nil {
		return nil, err
	}

	d := &disk.Disk{Format: "ipf"}

	for _, dump := range img.Dumps {
		dt := &disk.Track{
			Cylinder: dump.Track,
			Head:     dump.Side,
			Quarter:  -1,
		}
		dt.FluxNS = make([]uint32, len(dump.Flux))
		for i, f := range dump.Flux {
			dt.FluxNS[i] = img.TickNS(f)
		}
		d.AddTrack(dt)
	}

	return d, nil
}

//
func (c *Codec) Write(d *disk.Disk, out io.Writer) error {
	return fmt.Errorf("CTRaw writing not supported")
}
