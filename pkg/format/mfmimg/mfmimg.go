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

// Package mfmimg implements a small round-trippable bitstream container:
// a fixed header, a track table, then raw track bits in write order.
package mfmimg

import (
	"fmt"
	"io"

	"github.com/fluxkeep/fluxkeep/pkg/binutil"
	"github.com/fluxkeep/fluxkeep/pkg/disk"
)

const (
	Magic      = "MFM_IMG "
	headerSize = 48
	entrySize  = 16
)

// Track is one stored bitstream.
type Track struct {
	Bits      []byte
	LengthBits int
}

// Image is a parsed MFM bitstream container.
type Image struct {
	SpindleTimeNS uint64
	DataBitRate   uint64
	SamplingRate  uint64
	Tracks        []*Track
}

//
func Parse(data []byte) (*Image, error) {

	r := binutil.NewReader(data)

	hdr, err := r.Read(0, headerSize)
	if err != nil {
		return nil, fmt.Errorf("MFM image header truncated")
	}
	if string(hdr[:8]) != Magic {
		return nil, fmt.Errorf("not an MFM bitstream image")
	}

	tableOff := binutil.U64LE(hdr[8:])
	numTracks := binutil.U64LE(hdr[16:])

	img := &Image{
		SpindleTimeNS: binutil.U64LE(hdr[24:]),
		DataBitRate:   binutil.U64LE(hdr[32:]),
		SamplingRate:  binutil.U64LE(hdr[40:]),
	}

	for t := uint64(0); t < numTracks; t++ {

		entry, err := r.Read(int(tableOff)+int(t)*entrySize, entrySize)
		if err != nil {
			return nil, fmt.Errorf("MFM track table truncated at %d", t)
		}
		off := binutil.U64LE(entry)
		bits := binutil.U64LE(entry[8:])

		raw, err := r.Read(int(off), int((bits+7)/8))
		if err != nil {
			return nil, fmt.Errorf("MFM track %d data truncated", t)
		}

		img.Tracks = append(img.Tracks, &Track{
			Bits:       binutil.Dup(raw),
			LengthBits: int(bits),
		})
	}

	return img, nil
}

// Writer appends tracks sequentially and patches the header and table
// when closed. It buffers in memory so the table can be written at the
// front of a plain io.Writer.
type Writer struct {
	SpindleTimeNS uint64
	DataBitRate   uint64
	SamplingRate  uint64

	tracks []*Track
	closed bool
}

//
func NewWriter() *Writer {
	return &Writer{}
}

// AddTrack appends a bitstream; lengthBits of bits are significant.
func (w *Writer) AddTrack(bits []byte, lengthBits int) error {
	if w.closed {
		return fmt.Errorf("writer already closed")
	}
	byteCount := (lengthBits + 7) / 8
	if byteCount > len(bits) {
		return fmt.Errorf(
			"track of %d bits needs %d bytes, got %d",
			lengthBits, byteCount, len(bits))
	}
	w.tracks = append(w.tracks, &Track{
		Bits:       binutil.Dup(bits[:byteCount]),
		LengthBits: lengthBits,
	})
	return nil
}

// Close lays out header, table and track data and writes the lot.
func (w *Writer) Close(out io.Writer) error {

	if w.closed {
		return fmt.Errorf("writer already closed")
	}
	w.closed = true

	buf := make([]byte, headerSize+len(w.tracks)*entrySize)
	copy(buf, Magic)
	binutil.PutU64LE(buf, 8, headerSize)
	binutil.PutU64LE(buf, 16, uint64(len(w.tracks)))
	binutil.PutU64LE(buf, 24, w.SpindleTimeNS)
	binutil.PutU64LE(buf, 32, w.DataBitRate)
	binutil.PutU64LE(buf, 40, w.SamplingRate)

	for i, trk := range w.tracks {
		binutil.PutU64LE(buf, headerSize+i*entrySize, uint64(len(buf)))
		binutil.PutU64LE(
			buf, headerSize+i*entrySize+8, uint64(trk.LengthBits))
		buf = append(buf, trk.Bits...)
	}

	_, err := out.Write(buf)
	return err
}

// Codec adapts MFM bitstream images to the shared disk model.
type Codec struct{}

//
func New() *Codec {
	return &Codec{}
}

//
func (c *Codec) Name() string {
	return "mfm"
}

//
func (c *Codec) Probe(data []byte) bool {
	return len(data) >= headerSize && string(data[:8]) == Magic
}

//
func (c *Codec) Open(data []byte, par *disk.Params) (*disk.Disk, error) {

	img, err := Parse(data)
	if err != nil {
		return nil, err
	}

	d := &disk.Disk{Format: "mfm"}
	for i, trk := range img.Tracks {
		d.AddTrack(&disk.Track{
			Cylinder: i / 2,
			Head:     i % 2,
			Quarter:  -1,
			Encoding: disk.EncMFM,
			Bits:     trk.Bits,
			BitCount: trk.LengthBits,
		})
	}
	return d, nil
}

//
func (c *Codec) Write(d *disk.Disk, out io.Writer) error {

	w := NewWriter()
	for _, t := range d.Tracks {
		if len(t.Bits) == 0 {
			continue
		}
		if err := w.AddTrack(t.Bits, t.BitCount); err != nil {
			return err
		}
	}
	return w.Close(out)
}
