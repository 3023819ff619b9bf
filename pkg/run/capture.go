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

package run

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/fluxkeep/fluxkeep/pkg/disk"
	"github.com/fluxkeep/fluxkeep/pkg/drive"
	"github.com/fluxkeep/fluxkeep/pkg/format"
	"github.com/fluxkeep/fluxkeep/pkg/format/scp"
)

//
func NewCapture() *Capture {

	c := &Capture{}
	c.Runner = *NewRunner(
		"capture -d|--device {serial device} -o|--output {image file}",
		"capture flux from a drive into an SCP image",
		`
Use the capture command to read a disk through a flux-capable serial adapter
and store the result as an SCP image. Multiple revolutions per track improve
weak bit detection on protected disks.`,
		"", runnerHelpEpilogue, c.Run)

	c.AddSetting(&c.Device, "device", "d", "FLUXKEEP_DEVICE", nil,
		"serial device of the adapter", true)
	c.AddSetting(&c.Output, "output", "o", "", nil, "output image file", true)
	c.AddSetting(&c.Cylinders, "cylinders", "c", "", 80,
		"number of cylinders to capture", false)
	c.AddSetting(&c.Heads, "heads", "e", "", 2,
		"number of heads to capture", false)
	c.AddSetting(&c.Revs, "revs", "n", "", 3,
		"revolutions to capture per track", false)
	c.AddSetting(&c.HighDensity, "high-density", "g", "", false,
		"select high density", false)

	return c
}

//
type Capture struct {
	Runner
	//
	Device      string
	Output      string
	Cylinders   int
	Heads       int
	Revs        int
	HighDensity bool
}

//
func (c *Capture) Run() error {

	c.ParseSettings()

	drv, err := drive.OpenSerial(c.Device)
	if err != nil {
		return err
	}
	defer drv.Close()

	d, err := captureDisk(drv, c.Cylinders, c.Heads, c.Revs, c.HighDensity)
	if err != nil {
		return err
	}

	codec, err := format.New("scp")
	if err != nil {
		return err
	}

	out, err := os.Create(c.Output)
	if err != nil {
		return err
	}
	defer out.Close()

	if err := codec.Write(d, out); err != nil {
		os.Remove(c.Output)
		return err
	}

	fmt.Printf("captured %d tracks to %s\n", len(d.Tracks), c.Output)
	return nil
}

// captureDisk reads the given geometry off the transport and assembles
// the shared disk model, with flux requantized to the SCP tick.
func captureDisk(drv drive.Drive, cyls, heads, revs int,
	highDensity bool) (*disk.Disk, error) {

	caps := drv.Caps()
	if !caps.FluxRead {
		return nil, fmt.Errorf("transport cannot capture flux: %w",
			drive.ErrNotSupported)
	}
	if caps.MaxCylinders > 0 && cyls > caps.MaxCylinders {
		cyls = caps.MaxCylinders
	}
	if caps.MaxHeads > 0 && heads > caps.MaxHeads {
		heads = caps.MaxHeads
	}

	if caps.Density {
		if err := drv.SetDensity(highDensity); err != nil {
			return nil, err
		}
	}
	if err := drv.SetMotor(true); err != nil {
		return nil, err
	}
	defer drv.SetMotor(false)

	d := &disk.Disk{Format: "scp"}

	for cyl := 0; cyl < cyls; cyl++ {
		for head := 0; head < heads; head++ {

			got, err := drv.ReadFlux(cyl, head, revs)
			if err != nil {
				return nil, fmt.Errorf("cyl %d head %d: %v", cyl, head, err)
			}

			t := &disk.Track{Cylinder: cyl, Head: head, Quarter: -1}
			for i := range got.Revolutions {
				t.Revolutions = append(t.Revolutions,
					requantize(&got.Revolutions[i], got.SampleHz))
			}
			d.AddTrack(t)

			log.WithFields(log.Fields{
				"track": t.String(),
				"revs":  len(t.Revolutions),
			}).Debug("track captured")
		}
	}

	return d, nil
}

// scpClockHz is the 25 ns SCP tick as a sample rate.
const scpClockHz = 1e9 / scp.TickNS

// requantize rescales a captured revolution from the transport's sample
// clock to the SCP tick. A transport that reports no clock is taken to
// run at SCP resolution already.
func requantize(r *disk.Revolution, sampleHz float64) *disk.Revolution {

	scale := 1.0
	if sampleHz > 0 {
		scale = scpClockHz / sampleHz
	}

	out := &disk.Revolution{
		Flux:      make([]uint32, len(r.Flux)),
		PreIndex:  uint32(float64(r.PreIndex) * scale),
		PostIndex: uint32(float64(r.PostIndex) * scale),
		TimeTicks: uint64(float64(r.TimeTicks) * scale),
	}
	for i, f := range r.Flux {
		out.Flux[i] = uint32(float64(f) * scale)
	}
	out.ComputeStats(scpClockHz)

	return out
}
