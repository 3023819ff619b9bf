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

//go:build linux

package run

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/fluxkeep/fluxkeep/pkg/drive"
)

//
func NewDump() *Dump {

	d := &Dump{}
	d.Runner = *NewRunner(
		"dump -d|--device {floppy device} -o|--output {image file}",
		"dump sectors from a PC floppy drive into a raw image",
		`
Use the dump command to read a disk sector by sector through the legacy PC
floppy controller. This yields a plain sector image; for flux level capture
of protected disks, use the capture command with a flux adapter instead.`,
		"", runnerHelpEpilogue, d.Run)

	d.AddSetting(&d.Device, "device", "d", "FLUXKEEP_DEVICE", "/dev/fd0",
		"floppy device node", false)
	d.AddSetting(&d.Output, "output", "o", "", nil, "output image file", true)
	d.AddSetting(&d.Cylinders, "cylinders", "c", "", 80,
		"number of cylinders to read", false)
	d.AddSetting(&d.Heads, "heads", "e", "", 2,
		"number of heads to read", false)
	d.AddSetting(&d.Sectors, "sectors", "s", "", 18,
		"sectors per track", false)
	d.AddSetting(&d.SizeCode, "size-code", "z", "", 2,
		"sector size code (2 = 512 bytes)", false)
	d.AddSetting(&d.HighDensity, "high-density", "g", "", true,
		"select high density", false)

	return d
}

//
type Dump struct {
	Runner
	//
	Device      string
	Output      string
	Cylinders   int
	Heads       int
	Sectors     int
	SizeCode    int
	HighDensity bool
}

//
func (d *Dump) Run() error {

	d.ParseSettings()

	fdc, err := drive.OpenFDC(d.Device)
	if err != nil {
		return err
	}
	defer fdc.Close()

	if err := fdc.SetDensity(d.HighDensity); err != nil {
		return err
	}
	if err := fdc.Recalibrate(); err != nil {
		return err
	}

	out, err := os.Create(d.Output)
	if err != nil {
		return err
	}
	defer out.Close()

	sectorSize := 128 << uint(d.SizeCode)
	bad := 0

	for cyl := 0; cyl < d.Cylinders; cyl++ {
		for head := 0; head < d.Heads; head++ {
			for sec := 1; sec <= d.Sectors; sec++ {

				data, err := fdc.ReadSector(cyl, head, sec, d.SizeCode)
				if err != nil {
					log.WithFields(log.Fields{
						"cylinder": cyl,
						"head":     head,
						"sector":   sec,
					}).Warnf("read failed: %v", err)
					data = make([]byte, sectorSize)
					bad++
				}
				if _, err := out.Write(data); err != nil {
					os.Remove(d.Output)
					return err
				}
			}
		}
	}

	total := d.Cylinders * d.Heads * d.Sectors
	fmt.Printf("dumped %d sectors to %s (%d unreadable)\n",
		total, d.Output, bad)
	return nil
}
