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
)

//
func NewProbe() *Probe {

	p := &Probe{}
	p.Runner = *NewRunner(
		"probe -i|--input {image file} [--detail]",
		"identify a disk image and summarize its structure",
		`
Use the probe command to run a disk image through the format probe chain. The
image is parsed fully, so a successful probe also validates the container.`,
		"", runnerHelpEpilogue, p.Run)

	p.AddSetting(&p.Input, "input", "i", "", nil, "disk image file", true)
	p.AddSetting(&p.Detail, "detail", "", "", false, "per-track detail", false)

	return p
}

//
type Probe struct {
	Runner
	//
	Input  string
	Detail bool
}

//
func (p *Probe) Run() error {

	p.ParseSettings()

	d, codec, err := openImage(p.Input, "")
	if err != nil {
		return err
	}

	fmt.Printf("\nformat:     %s\n", codec.Name())
	fmt.Printf("tracks:     %d\n", len(d.Tracks))
	if d.WriteProt {
		fmt.Println("write protected")
	}
	if d.Protection != 0 {
		fmt.Printf("protection: 0x%08x\n", d.Protection)
	}
	if d.Comment != "" {
		fmt.Printf("comment:    %s\n", d.Comment)
	}

	if p.Detail {
		fmt.Println()
		for _, t := range d.Tracks {
			line := fmt.Sprintf("%-18s %-7s %8d bits", t, t.Encoding, t.BitCount)
			if t.HasFlux() {
				line += "  flux"
			}
			if t.WeakBitCount > 0 {
				line += fmt.Sprintf("  %d weak", t.WeakBitCount)
			}
			fmt.Println(line)
		}
	}

	fmt.Println()
	return nil
}
