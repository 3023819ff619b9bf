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

package atr

import (
	"bytes"
	"fmt"
	"io"

	"github.com/fluxkeep/fluxkeep/pkg/disk"
)

// Codec adapts Atari sector images to the shared disk model. Tracks
// carry raw sector bytes, not a bitstream; Atari SD/ED disks are FM,
// DD/QD disks are MFM.
type Codec struct{}

//
func New() *Codec {
	return &Codec{}
}

//
func (c *Codec) Name() string {
	return "atr"
}

// Probe matches the ATR header only. Raw XFD dumps have no signature
// and must be opened explicitly.
func (c *Codec) Probe(data []byte) bool {
	return len(data) >= headerSize && data[0] == magicLo && data[1] == magicHi
}

//
func (c *Codec) Open(data []byte, par *disk.Params) (*disk.Disk, error) {

	var img *Image
	var err error
	if c.Probe(data) {
		img, err = ParseATR(data)
	} else {
		img, err = ParseXFD(data)
	}
	if err != nil {
		return nil, err
	}

	enc := disk.EncFM
	if img.Geometry.SectorSize == 256 {
		enc = disk.EncMFM
	}

	d := &disk.Disk{Format: "atr"}

	for trk := 0; trk < img.Geometry.Tracks; trk++ {
		for side := 0; side < img.Geometry.Sides; side++ {
			b := img.TrackBytes(trk, side)
			if len(b) == 0 {
				continue
			}
			d.AddTrack(&disk.Track{
				Cylinder: trk,
				Head:     side,
				Quarter:  -1,
				Encoding: enc,
				Bits:     b,
				BitCount: len(b) * 8,
			})
		}
	}

	return d, nil
}

// Write reassembles the sector area from the track bytes and emits an
// ATR file.
func (c *Codec) Write(d *disk.Disk, out io.Writer) error {

	var buf bytes.Buffer
	for cyl := 0; cyl < 256; cyl++ {
		found := false
		for head := 0; head < 2; head++ {
			if t := d.TrackAt(cyl, head); t != nil {
				buf.Write(t.Bits)
				found = true
			}
		}
		if !found {
			break
		}
	}

	if buf.Len() == 0 {
		return fmt.Errorf("disk carries no sector data")
	}

	img := &Image{
		Geometry: geometryFor(DetectDensity(buf.Len()), buf.Len()),
		Data:     buf.Bytes(),
	}
	return img.WriteATR(out)
}
