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

// Package dmk reads TRS-80 DMK images. DMK is the only byte-level
// container here that can mix FM and MFM recording on one disk, which the
// IDAM pointer tables encode per sector.
package dmk

import (
	"fmt"
	"io"

	"github.com/fluxkeep/fluxkeep/pkg/binutil"
	"github.com/fluxkeep/fluxkeep/pkg/disk"
)

const (
	headerSize = 16
	idamTable  = 128
	maxIDAMs   = 64

	idamDensityBit = 0x8000
	idamOffsetMask = 0x3FFF
)

// Density classifies the recording of a track or image.
type Density int

const (
	DensityUnknown Density = iota
	DensityFM
	DensityMFM
	DensityMixed
)

//
func (d Density) String() string {
	switch d {
	case DensityFM:
		return "FM"
	case DensityMFM:
		return "MFM"
	case DensityMixed:
		return "mixed"
	default:
		return "unknown"
	}
}

// IDAM is one pointer table entry.
type IDAM struct {
	Offset int
	MFM    bool
}

// Track is one head position's raw bytes plus its pointer table.
type Track struct {
	Cylinder int
	Head     int
	IDAMs    []IDAM
	Data     []byte // track bytes after the pointer table
	Density  Density
}

// Image is a parsed DMK file.
type Image struct {
	WriteProt   bool
	NumTracks   int
	TrackLength int
	Sides       int
	Tracks      []*Track
	Density     Density
}

//
func Parse(data []byte) (*Image, error) {

	r := binutil.NewReader(data)

	hdr, err := r.Read(0, headerSize)
	if err != nil {
		return nil, fmt.Errorf("DMK header truncated")
	}

	img := &Image{
		WriteProt:   hdr[0] == 0xFF,
		NumTracks:   int(hdr[1]),
		TrackLength: int(binutil.U16LE(hdr[2:])),
		Sides:       2,
	}
	if hdr[4]&0x10 != 0 {
		img.Sides = 1
	}

	if img.TrackLength <= idamTable || img.NumTracks == 0 {
		return nil, fmt.Errorf(
			"implausible DMK geometry: %d tracks of %d bytes",
			img.NumTracks, img.TrackLength)
	}
	if headerSize+img.NumTracks*img.Sides*img.TrackLength > r.Size() {
		return nil, fmt.Errorf("DMK track data truncated")
	}

	for cyl := 0; cyl < img.NumTracks; cyl++ {
		for head := 0; head < img.Sides; head++ {

			off := headerSize + (cyl*img.Sides+head)*img.TrackLength
			raw, err := r.Read(off, img.TrackLength)
			if err != nil {
				return nil, err
			}

			trk := &Track{
				Cylinder: cyl,
				Head:     head,
				Data:     raw[idamTable:],
			}
			trk.classify(raw)
			img.Tracks = append(img.Tracks, trk)
			img.Density = combine(img.Density, trk.Density)
		}
	}

	return img, nil
}

// classify reads the pointer table; with no pointers at all it falls back
// to scanning the data area for MFM sync triples.
func (t *Track) classify(raw []byte) {

	fm, mfm := false, false

	for i := 0; i < maxIDAMs; i++ {
		ptr := binutil.U16LE(raw[i*2:])
		if ptr == 0 {
			continue
		}
		idam := IDAM{
			Offset: int(ptr & idamOffsetMask),
			MFM:    ptr&idamDensityBit != 0,
		}
		t.IDAMs = append(t.IDAMs, idam)
		if idam.MFM {
			mfm = true
		} else {
			fm = true
		}
	}

	switch {
	case fm && mfm:
		t.Density = DensityMixed
	case mfm:
		t.Density = DensityMFM
	case fm:
		t.Density = DensityFM
	default:
		if hasMFMSync(t.Data) {
			t.Density = DensityMFM
		}
	}
}

//
func hasMFMSync(data []byte) bool {
	for i := 0; i+2 < len(data); i++ {
		if data[i] == 0xA1 && data[i+1] == 0xA1 && data[i+2] == 0xA1 {
			return true
		}
	}
	return false
}

//
func combine(a, b Density) Density {
	if a == DensityUnknown {
		return b
	}
	if b == DensityUnknown || a == b {
		return a
	}
	return DensityMixed
}

// Codec adapts DMK images to the shared disk model.
type Codec struct{}

//
func New() *Codec {
	return &Codec{}
}

//
func (c *Codec) Name() string {
	return "dmk"
}

// Probe checks that the header geometry is self-consistent with the file
// size; DMK has no signature bytes.
func (c *Codec) Probe(data []byte) bool {
	if len(data) < headerSize {
		return false
	}
	trackLen := int(binutil.U16LE(data[2:]))
	numTracks := int(data[1])
	sides := 2
	if data[4]&0x10 != 0 {
		sides = 1
	}
	return trackLen > idamTable && numTracks > 0 && numTracks <= 88 &&
		headerSize+numTracks*sides*trackLen == len(data)
}

//
func (c *Codec) Open(data []byte, par *disk.Params) (*disk.Disk, error) {

	img, err := Parse(data)
	if err != nil {
		return nil, err
	}

	d := &disk.Disk{Format: "dmk", WriteProt: img.WriteProt}
	if img.Density == DensityMixed {
		d.Protection |= disk.ProtMixedDensity
	}

	for _, trk := range img.Tracks {
		dt := &disk.Track{
			Cylinder: trk.Cylinder,
			Head:     trk.Head,
			Quarter:  -1,
			Bits:     trk.Data,
			BitCount: len(trk.Data) * 8,
		}
		switch trk.Density {
		case DensityFM:
			dt.Encoding = disk.EncFM
		case DensityMFM:
			dt.Encoding = disk.EncMFM
		case DensityMixed:
			dt.Encoding = disk.EncMFM
			dt.Protection |= disk.ProtMixedDensity
		}
		d.AddTrack(dt)
	}

	return d, nil
}

//
func (c *Codec) Write(d *disk.Disk, out io.Writer) error {
	return fmt.Errorf("DMK writing not supported")
}
