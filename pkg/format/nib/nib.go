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

// Package nib reads Apple II nibble images. The container is headerless,
// so the track layout is inferred purely from file size; half-track
// variants exist because protected disks hide sectors between the
// nominal positions.
package nib

import (
	"fmt"
	"io"

	"github.com/fluxkeep/fluxkeep/pkg/disk"
)

// TrackSize is the fixed nibble buffer per track.
const TrackSize = 6656

// Mode describes the track layout of an image.
type Mode int

const (
	Mode35Full Mode = iota
	Mode40Full
	Mode35Half
	Mode40Half
	ModeRaw
)

//
func (m Mode) String() string {
	switch m {
	case Mode35Full:
		return "35 tracks"
	case Mode40Full:
		return "40 tracks"
	case Mode35Half:
		return "35 tracks + half tracks"
	case Mode40Half:
		return "40 tracks + half tracks"
	default:
		return "raw"
	}
}

//
func (m Mode) halfStep() bool {
	return m == Mode35Half || m == Mode40Half
}

// Track is one nibble buffer plus its analysis.
type Track struct {
	// Position is the physical head position in whole tracks; half
	// positions end in .5.
	Position float64
	Data     []byte

	SyncRuns  int // runs of >= 5 consecutive 0xFF
	Prologues int // D5 AA 96 address prologue count
	Empty     bool
}

// Image is a parsed NIB file.
type Image struct {
	Mode    Mode
	Tracks  []*Track
	HasCopyProtection bool
}

//
func Parse(data []byte) (*Image, error) {

	img := &Image{}

	switch len(data) {
	case 35 * TrackSize:
		img.Mode = Mode35Full
	case 40 * TrackSize:
		img.Mode = Mode40Full
	case 70 * TrackSize:
		img.Mode = Mode35Half
	case 80 * TrackSize:
		img.Mode = Mode40Half
	default:
		if len(data) == 0 || len(data)%TrackSize != 0 ||
			len(data)/TrackSize > 80 {
			return nil, fmt.Errorf(
				"not a NIB image: unexpected size %d", len(data))
		}
		img.Mode = ModeRaw
	}

	for i := 0; i*TrackSize < len(data); i++ {

		trk := &Track{
			Position: float64(i),
			Data:     data[i*TrackSize : (i+1)*TrackSize],
		}
		if img.Mode.halfStep() {
			trk.Position = float64(i) / 2
		}
		analyze(trk)
		img.Tracks = append(img.Tracks, trk)

		// unique data parked on a half-track position is the classic
		// protection signature
		onHalf := img.Mode.halfStep() && i%2 == 1
		if onHalf && !trk.Empty && trk.Prologues >= 1 {
			img.HasCopyProtection = true
		}
	}

	return img, nil
}

//
func analyze(trk *Track) {

	run := 0
	nonSync := 0

	for i, b := range trk.Data {
		if b == 0xFF {
			run++
		} else {
			if run >= 5 {
				trk.SyncRuns++
			}
			run = 0
			if b != 0 {
				nonSync++
			}
		}

		if b == 0x96 && i >= 2 &&
			trk.Data[i-2] == 0xD5 && trk.Data[i-1] == 0xAA {
			trk.Prologues++
		}
	}
	if run >= 5 {
		trk.SyncRuns++
	}

	trk.Empty = nonSync < len(trk.Data)*5/100
}

// Codec adapts NIB images to the shared disk model.
type Codec struct{}

//
func New() *Codec {
	return &Codec{}
}

//
func (c *Codec) Name() string {
	return "nib"
}

// Probe matches on size alone; NIB has no signature, so it must be the
// last codec consulted.
func (c *Codec) Probe(data []byte) bool {
	return len(data) > 0 && len(data)%TrackSize == 0 &&
		len(data)/TrackSize <= 80
}

//
func (c *Codec) Open(data []byte, par *disk.Params) (*disk.Disk, error) {

	img, err := Parse(data)
	if err != nil {
		return nil, err
	}

	d := &disk.Disk{Format: "nib"}

	for _, trk := range img.Tracks {
		if trk.Empty {
			continue
		}
		dt := &disk.Track{
			Cylinder: int(trk.Position),
			Head:     0,
			Quarter:  int(trk.Position * 4),
			Encoding: disk.EncGCR,
			Bits:     trk.Data,
			BitCount: len(trk.Data) * 8,
		}
		if trk.Position != float64(int(trk.Position)) {
			dt.Protection |= disk.ProtHalfTracks
		}
		d.AddTrack(dt)
	}

	return d, nil
}

//
func (c *Codec) Write(d *disk.Disk, out io.Writer) error {
	return fmt.Errorf("NIB writing not supported")
}
