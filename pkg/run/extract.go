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
	"io/ioutil"
)

//
func NewExtract() *Extract {

	e := &Extract{}
	e.Runner = *NewRunner(
		"extract -i|--input {image file} -n|--name {file name} [-o|--output {file}]",
		"extract a file from a filesystem image",
		`
Use the extract command to copy a file out of an Atari DOS or FAT volume. When
no output file is given, the file is written to the current directory under its
own name.`,
		"", runnerHelpEpilogue, e.Run)

	e.AddSetting(&e.Input, "input", "i", "", nil, "disk image file", true)
	e.AddSetting(&e.Name, "name", "n", "", nil, "file to extract", true)
	e.AddSetting(&e.Output, "output", "o", "", nil, "output file", false)

	return e
}

//
type Extract struct {
	Runner
	//
	Input  string
	Name   string
	Output string
}

//
func (e *Extract) Run() error {

	e.ParseSettings()

	m, err := mountImage(e.Input)
	if err != nil {
		return err
	}

	data, err := m.extract(e.Name)
	if err != nil {
		return err
	}

	out := e.Output
	if out == "" {
		out = e.Name
	}
	if err := ioutil.WriteFile(out, data, 0644); err != nil {
		return err
	}

	fmt.Printf("extracted %s (%d bytes) to %s\n", e.Name, len(data), out)
	return nil
}
