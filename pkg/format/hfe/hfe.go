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

// Package hfe reads version 3 HxC floppy emulator images. Unlike the v1
// layout, v3 references tracks through a list table, stores each side as
// a contiguous half of the track block, and allows RLE compression.
package hfe

import (
	"fmt"
	"io"

	"github.com/fluxkeep/fluxkeep/pkg/binutil"
	"github.com/fluxkeep/fluxkeep/pkg/disk"
)

const (
	SignatureV3 = "HXCHFE3\x00"
	signatureV1 = "HXCPICFE"

	headerSize = 512
	blockSize  = 512
)

// Track encodings from the header.
const (
	EncISOIBMMFM = 0x00
	EncAmigaMFM  = 0x01
	EncISOIBMFM  = 0x02
)

// Compression flags, first byte of each track block.
const (
	CompressNone = 0x00
	CompressRLE  = 0x01
)

// Track holds the decompressed side data of one cylinder.
type Track struct {
	Cylinder int
	Side0    []byte
	Side1    []byte
}

// Image is a parsed HFE v3 file.
type Image struct {
	NumTracks int
	Sides     int
	Encoding  byte
	BitrateK  uint16
	RPM       uint16
	WriteProt bool
	Tracks    []*Track
}

//
func Parse(data []byte) (*Image, error) {

	r := binutil.NewReader(data)

	sig, err := r.Read(0, 8)
	if err != nil {
		return nil, fmt.Errorf("HFE header truncated")
	}
	if string(sig) == signatureV1 {
		return nil, fmt.Errorf("HFE v1 image, v3 required")
	}
	if string(sig) != SignatureV3 {
		return nil, fmt.Errorf("not an HFE v3 image")
	}

	hdr, err := r.Read(0, headerSize)
	if err != nil {
		return nil, fmt.Errorf("HFE header truncated")
	}

	img := &Image{
		NumTracks: int(hdr[9]),
		Sides:     int(hdr[10]),
		Encoding:  hdr[11],
		BitrateK:  binutil.U16LE(hdr[12:]),
		RPM:       binutil.U16LE(hdr[14:]),
		WriteProt: hdr[20] == 0x00,
	}
	if img.NumTracks == 0 || img.Sides < 1 || img.Sides > 2 {
		return nil, fmt.Errorf(
			"implausible HFE geometry: %d tracks, %d sides",
			img.NumTracks, img.Sides)
	}

	lutOff := int(binutil.U16LE(hdr[18:])) * blockSize

	for t := 0; t < img.NumTracks; t++ {

		entry, err := r.Read(lutOff+t*8, 8)
		if err != nil {
			return nil, fmt.Errorf("HFE track table truncated at %d", t)
		}
		trackOff := int(binutil.U32LE(entry))
		trackLen := int(binutil.U32LE(entry[4:]))

		raw, err := r.Read(trackOff, trackLen)
		if err != nil {
			return nil, fmt.Errorf("HFE track %d data truncated", t)
		}
		if trackLen < 1 {
			return nil, fmt.Errorf("HFE track %d empty", t)
		}

		payload, err := decompress(raw[0], raw[1:])
		if err != nil {
			return nil, fmt.Errorf("HFE track %d: %v", t, err)
		}

		// sides are contiguous halves, side 1 takes the remainder
		trk := &Track{Cylinder: t}
		if img.Sides == 2 {
			half := len(payload) / 2
			trk.Side0 = payload[:half]
			trk.Side1 = payload[half:]
		} else {
			trk.Side0 = payload
		}
		img.Tracks = append(img.Tracks, trk)
	}

	return img, nil
}

// decompress expands a track payload. RLE uses 0x00 as escape:
// 0x00 count value emits count copies of value, anything else is literal.
func decompress(flag byte, data []byte) ([]byte, error) {

	switch flag {

	case CompressNone:
		return data, nil

	case CompressRLE:
		var out []byte
		for i := 0; i < len(data); {
			if data[i] != 0x00 {
				out = append(out, data[i])
				i++
				continue
			}
			if i+2 >= len(data) {
				return nil, fmt.Errorf("truncated RLE escape")
			}
			count, value := int(data[i+1]), data[i+2]
			for n := 0; n < count; n++ {
				out = append(out, value)
			}
			i += 3
		}
		return out, nil

	default:
		return nil, fmt.Errorf("unknown compression flag 0x%02x", flag)
	}
}

// Codec adapts HFE v3 images to the shared disk model.
type Codec struct{}

//
func New() *Codec {
	return &Codec{}
}

//
func (c *Codec) Name() string {
	return "hfe"
}

//
func (c *Codec) Probe(data []byte) bool {
	return len(data) >= 8 && string(data[:8]) == SignatureV3
}

//
func (c *Codec) Open(data []byte, par *disk.Params) (*disk.Disk, error) {

	img, err := Parse(data)
	if err != nil {
		return nil, err
	}

	enc := disk.EncMFM
	switch img.Encoding {
	case EncISOIBMFM:
		enc = disk.EncFM
	case EncAmigaMFM:
		enc = disk.EncAmiga
	}

	d := &disk.Disk{Format: "hfe", WriteProt: img.WriteProt}

	for _, trk := range img.Tracks {
		d.AddTrack(&disk.Track{
			Cylinder: trk.Cylinder,
			Head:     0,
			Quarter:  -1,
			Encoding: enc,
			Bits:     trk.Side0,
			BitCount: len(trk.Side0) * 8,
		})
		if img.Sides == 2 {
			d.AddTrack(&disk.Track{
				Cylinder: trk.Cylinder,
				Head:     1,
				Quarter:  -1,
				Encoding: enc,
				Bits:     trk.Side1,
				BitCount: len(trk.Side1) * 8,
			})
		}
	}

	return d, nil
}

//
func (c *Codec) Write(d *disk.Disk, out io.Writer) error {
	return fmt.Errorf("HFE writing not supported")
}
