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

//go:build !linux

package run

import (
	"fmt"
)

//
func NewDump() *Dump {

	d := &Dump{}
	d.Runner = *NewRunner(
		"dump -d|--device {floppy device} -o|--output {image file}",
		"dump sectors from a PC floppy drive into a raw image",
		`
The dump command drives the legacy PC floppy controller and is only available
on Linux. For flux level capture through a serial adapter, use the capture
command instead.`,
		"", runnerHelpEpilogue, d.Run)

	return d
}

//
type Dump struct {
	Runner
}

//
func (d *Dump) Run() error {
	return fmt.Errorf("the dump command is only supported on Linux")
}
