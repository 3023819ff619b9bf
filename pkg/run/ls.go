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
func NewList() *List {

	l := &List{}
	l.Runner = *NewRunner(
		"ls -i|--input {image file} [--deleted]",
		"list the files in a filesystem image",
		`
Use the ls command to list the root directory of an Atari DOS or FAT volume.
Deleted but still recoverable entries can be included with --deleted.`,
		"", runnerHelpEpilogue, l.Run)

	l.AddSetting(&l.Input, "input", "i", "", nil, "disk image file", true)
	l.AddSetting(&l.Deleted, "deleted", "", "", false,
		"include deleted entries", false)

	return l
}

//
type List struct {
	Runner
	//
	Input   string
	Deleted bool
}

//
func (l *List) Run() error {

	l.ParseSettings()

	m, err := mountImage(l.Input)
	if err != nil {
		return err
	}

	fmt.Printf("\n%s\n\n", m.describe())

	if m.fat != nil {
		if label := m.fat.Label(); label != "" {
			fmt.Printf("volume label: %s\n\n", label)
		}
		for _, e := range m.fat.List() {
			kind := " "
			if e.IsDir() {
				kind = "d"
			}
			fmt.Printf("%s %-12s %10d\n", kind, e.FullName(), e.Size)
		}
		fmt.Printf("\n%d bytes free\n\n", m.fat.FreeSpace())
		return nil
	}

	for _, e := range m.atari.List() {
		lock := " "
		if e.Locked() {
			lock = "*"
		}
		fmt.Printf("%s %-12s %4d sectors\n", lock, e.FullName(), e.SectorCount)
	}
	if l.Deleted {
		for _, e := range m.atari.ListDeleted() {
			fmt.Printf("x %-12s %4d sectors\n", e.FullName(), e.SectorCount)
		}
	}
	fmt.Printf("\n%d sectors free\n\n", m.atari.FreeSectors())
	return nil
}
