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
	"path/filepath"
	"strings"
)

//
func NewPut() *Put {

	p := &Put{}
	p.Runner = *NewRunner(
		`put -i|--input {image file} -s|--source {file} [-n|--name {file name}]
      [--delete]`,
		"write a file into a filesystem image, or delete one",
		`
Use the put command to copy a local file into an Atari DOS or FAT volume. The
image file is modified in place. With --delete, the named file is removed from
the volume instead.`,
		"", runnerHelpEpilogue, p.Run)

	p.AddSetting(&p.Input, "input", "i", "", nil, "disk image file", true)
	p.AddSetting(&p.Source, "source", "s", "", nil,
		"local file to copy in; not needed with --delete", false)
	p.AddSetting(&p.Name, "name", "n", "", nil,
		"name on the volume, defaults to the source file name", false)
	p.AddSetting(&p.Delete, "delete", "", "", false,
		"delete the named file from the volume", false)

	return p
}

//
type Put struct {
	Runner
	//
	Input  string
	Source string
	Name   string
	Delete bool
}

//
func (p *Put) Run() error {

	p.ParseSettings()

	m, err := mountImage(p.Input)
	if err != nil {
		return err
	}

	if p.Delete {
		if p.Name == "" {
			return fmt.Errorf("--delete needs --name")
		}
		if err := m.remove(p.Name); err != nil {
			return err
		}
		if err := m.save(p.Input); err != nil {
			return err
		}
		fmt.Printf("deleted %s from %s\n", p.Name, p.Input)
		return nil
	}

	if p.Source == "" {
		return fmt.Errorf("you need to specify the --source command line flag")
	}

	data, err := ioutil.ReadFile(p.Source)
	if err != nil {
		return err
	}

	name := p.Name
	if name == "" {
		name = strings.ToUpper(filepath.Base(p.Source))
	}

	if err := m.put(name, data); err != nil {
		return err
	}
	if err := m.save(p.Input); err != nil {
		return err
	}

	fmt.Printf("wrote %s (%d bytes) into %s\n", name, len(data), p.Input)
	return nil
}
