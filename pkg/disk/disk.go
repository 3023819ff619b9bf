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

// Package disk holds the in-memory model shared by all container codecs:
// disks own tracks, tracks own their revolutions, flux arrays and
// bitstreams. Nothing in here points back up the ownership chain.
package disk

import (
	"fmt"
	"math"
)

// Encoding tags the modulation scheme detected or declared for a track.
type Encoding int

const (
	EncUnknown Encoding = iota
	EncFM
	EncMFM
	EncGCR
	EncAmiga
)

//
func (e Encoding) String() string {
	switch e {
	case EncFM:
		return "FM"
	case EncMFM:
		return "MFM"
	case EncGCR:
		return "GCR"
	case EncAmiga:
		return "Amiga"
	default:
		return "unknown"
	}
}

// Protection flags are accumulated per track and never cleared by the
// core; anomalies are preserved, not repaired.
const (
	ProtWeakBits uint32 = 1 << iota
	ProtFuzzyBits
	ProtLongTrack
	ProtMixedDensity
	ProtHalfTracks
	ProtExtraPeaks
	ProtTimingSkew
	ProtNoiseFloor
)

// Revolution is one rotation's worth of flux timing. PreIndex and
// PostIndex split the cell straddling the index signal; they sum to that
// cell's total ticks.
type Revolution struct {
	Flux      []uint32 // ticks between transitions
	PreIndex  uint32
	PostIndex uint32
	TimeTicks uint64 // full rotation time in sample ticks

	Stats RevStats
}

// RevStats are derived once from the flux slice.
type RevStats struct {
	Mean       float64
	StdDev     float64
	Min        uint32
	Max        uint32
	ShortCount int // cells below 1µs
	LongCount  int // cells above 500µs
	Histogram  [256]uint32
}

// ComputeStats derives the revolution statistics for the given sample
// clock. The 256-bin histogram buckets ticks by value>>4 saturating at
// the top bin.
func (r *Revolution) ComputeStats(sckHz float64) {

	s := RevStats{}
	if len(r.Flux) == 0 {
		r.Stats = s
		return
	}

	shortLimit := uint32(sckHz / 1e6)       // 1µs in ticks
	longLimit := uint32(sckHz / 1e6 * 500)  // 500µs in ticks

	var sum uint64
	s.Min = r.Flux[0]
	for _, f := range r.Flux {
		sum += uint64(f)
		if f < s.Min {
			s.Min = f
		}
		if f > s.Max {
			s.Max = f
		}
		if f < shortLimit {
			s.ShortCount++
		}
		if f > longLimit {
			s.LongCount++
		}
		bin := f >> 4
		if bin > 255 {
			bin = 255
		}
		s.Histogram[bin]++
	}

	s.Mean = float64(sum) / float64(len(r.Flux))

	var sq float64
	for _, f := range r.Flux {
		d := float64(f) - s.Mean
		sq += d * d
	}
	s.StdDev = math.Sqrt(sq / float64(len(r.Flux)))

	r.Stats = s
}

// Track is identified by physical cylinder and head, or by quarter-track
// position for Apple media (Quarter is position*4, -1 when unused).
type Track struct {
	Cylinder int
	Head     int
	Quarter  int

	Encoding  Encoding
	BitCellNS float64

	Revolutions []*Revolution
	BestRev     int

	// Decoded bitstream view, if the container carries one.
	Bits     []byte
	BitCount int

	// Merged flux view in nanoseconds, if the container carries flux.
	FluxNS []uint32

	WeakMask      []byte
	WeakBitCount  int
	Protection    uint32
}

//
func (t *Track) HasFlux() bool {
	return len(t.FluxNS) > 0 || len(t.Revolutions) > 0
}

//
func (t *Track) String() string {
	if t.Quarter >= 0 {
		return fmt.Sprintf("track %.2f head %d", float64(t.Quarter)/4, t.Head)
	}
	return fmt.Sprintf("cyl %d head %d", t.Cylinder, t.Head)
}

// Disk exclusively owns its tracks.
type Disk struct {
	Format     string
	Tracks     []*Track
	WriteProt  bool
	Protection uint32
	Comment    string
}

//
func (d *Disk) AddTrack(t *Track) {
	d.Tracks = append(d.Tracks, t)
	d.Protection |= t.Protection
}

// TrackAt returns the track for the given cylinder and head, or nil.
func (d *Disk) TrackAt(cyl, head int) *Track {
	for _, t := range d.Tracks {
		if t.Cylinder == cyl && t.Head == head {
			return t
		}
	}
	return nil
}

// TrackAtQuarter returns the track mapped to the given quarter-track
// position, or nil.
func (d *Disk) TrackAtQuarter(q int) *Track {
	for _, t := range d.Tracks {
		if t.Quarter == q {
			return t
		}
	}
	return nil
}
