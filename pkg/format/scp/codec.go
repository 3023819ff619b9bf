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

package scp

import (
	"io"

	"github.com/fluxkeep/fluxkeep/pkg/disk"
)

// Codec adapts SCP images to the shared disk model.
type Codec struct{}

//
func New() *Codec {
	return &Codec{}
}

//
func (c *Codec) Name() string {
	return "scp"
}

//
func (c *Codec) Probe(data []byte) bool {
	return len(data) >= headerSize && string(data[:3]) == signature
}

//
func (c *Codec) Open(data []byte, par *disk.Params) (*disk.Disk, error) {

	img, err := Parse(data, par)
	if err != nil {
		return nil, err
	}

	d := &disk.Disk{Format: "scp"}

	for _, trk := range img.Tracks {
		if trk == nil || len(trk.Revolutions) == 0 {
			continue
		}

		dt := &disk.Track{
			Cylinder: trk.Number / 2,
			Head:     trk.Number % 2,
			Quarter:  -1,
			BestRev:  trk.BestRev,
		}

		for _, rev := range trk.Revolutions {
			dr := &disk.Revolution{
				Flux:      rev.Flux,
				TimeTicks: uint64(rev.IndexTime),
			}
			dr.ComputeStats(SckHz)
			dt.Revolutions = append(dt.Revolutions, dr)
		}

		best := trk.Revolutions[trk.BestRev]
		dt.FluxNS = make([]uint32, len(best.Flux))
		for i, f := range best.Flux {
			dt.FluxNS[i] = f * TickNS
		}

		if trk.HasWeakBits {
			dt.Protection |= disk.ProtWeakBits
			dt.WeakBitCount = trk.WeakBitCount
		}

		d.AddTrack(dt)
	}

	return d, nil
}

//
func (c *Codec) Write(d *disk.Disk, out io.Writer) error {
	return FromDisk(d).WriteTo(out)
}

// FromDisk assembles an SCP image from the shared model. Flux ticks are
// assumed to already be at SCP resolution when the disk came from an SCP
// parse; tracks carrying only nanosecond flux are requantized.
func FromDisk(d *disk.Disk) *Image {

	img := &Image{
		Version:    0x22,
		DiskType:   DiskOther,
		Flags:      FlagIndex | Flag2Sided,
		Resolution: 0,
		StartTrack: 0xFF,
	}

	for _, t := range d.Tracks {

		num := t.Cylinder*2 + t.Head
		if num < 0 || num >= MaxTracks {
			continue
		}

		trk := &Track{Number: num, BestRev: t.BestRev}

		if len(t.Revolutions) > 0 {
			for _, r := range t.Revolutions {
				trk.Revolutions = append(trk.Revolutions, &Revolution{
					IndexTime: uint32(r.TimeTicks),
					Flux:      r.Flux,
				})
			}
		} else if len(t.FluxNS) > 0 {
			flux := make([]uint32, len(t.FluxNS))
			var total uint32
			for i, ns := range t.FluxNS {
				flux[i] = ns / TickNS
				total += flux[i]
			}
			trk.Revolutions = []*Revolution{{IndexTime: total, Flux: flux}}
		} else {
			continue
		}

		if byte(len(trk.Revolutions)) > img.RevCount {
			img.RevCount = byte(len(trk.Revolutions))
		}
		if byte(num) < img.StartTrack {
			img.StartTrack = byte(num)
		}
		if byte(num) > img.EndTrack {
			img.EndTrack = byte(num)
		}

		img.Tracks[num] = trk
		img.TrackCount++
	}

	if img.TrackCount == 0 {
		img.StartTrack = 0
	}

	return img
}
