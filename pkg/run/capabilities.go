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
	"strings"

	"github.com/fluxkeep/fluxkeep/pkg/capability"
)

//
func NewCapabilities() *Capabilities {

	c := &Capabilities{}
	c.Runner = *NewRunner(
		`capabilities [-f|--format {format}] [-w|--hardware {hardware}]
      [--op {operation}] [--from {format} --to {format}]`,
		"show the capability matrix, or answer a specific query",
		`
Without flags, the capabilities command prints the format and hardware tables.
With a format, hardware and operation, it answers whether that combination is
supported and at what quality. With --from and --to, it shows the conversion
path between two formats.`,
		"", runnerHelpEpilogue, c.Run)

	c.AddSetting(&c.Format, "format", "f", "", nil, "format name", false)
	c.AddSetting(&c.Hardware, "hardware", "w", "", nil, "hardware name", false)
	c.AddSetting(&c.Op, "op", "", "", nil,
		"operation, e.g. READ, WRITE, FLUX", false)
	c.AddSetting(&c.From, "from", "", "", nil, "conversion source format", false)
	c.AddSetting(&c.To, "to", "", "", nil, "conversion target format", false)

	return c
}

//
type Capabilities struct {
	Runner
	//
	Format   string
	Hardware string
	Op       string
	From     string
	To       string
}

//
func (c *Capabilities) Run() error {

	c.ParseSettings()

	if c.From != "" || c.To != "" {
		return c.runPath()
	}
	if c.Format != "" {
		return c.runQuery()
	}

	c.printMatrix()
	return nil
}

//
func (c *Capabilities) runPath() error {

	from := capability.FormatByName(c.From)
	to := capability.FormatByName(c.To)
	if from == capability.FormatUnknown || to == capability.FormatUnknown {
		return fmt.Errorf("unknown format in %s/%s", c.From, c.To)
	}

	path := capability.ConversionPath(from, to)
	if path == nil {
		fmt.Printf("\nno conversion path from %s to %s\n\n", from, to)
		return nil
	}

	steps := make([]string, len(path))
	for i, f := range path {
		steps[i] = f.String()
	}
	fmt.Printf("\n%s\n\n", strings.Join(steps, " -> "))
	return nil
}

//
func (c *Capabilities) runQuery() error {

	f := capability.FormatByName(c.Format)
	if f == capability.FormatUnknown {
		return fmt.Errorf("unknown format: %s", c.Format)
	}

	hw := capability.HWNone
	if c.Hardware != "" {
		if hw = capability.HardwareByName(c.Hardware); hw == capability.HWNone {
			return fmt.Errorf("unknown hardware: %s", c.Hardware)
		}
	}

	op := capability.CapRead
	if c.Op != "" {
		if op = capability.ParseCaps(c.Op); op == 0 {
			return fmt.Errorf("unknown operation: %s", c.Op)
		}
	}

	res := capability.Query(f, hw, op)

	fmt.Println()
	if res.Supported {
		fmt.Printf("supported, quality %d\n", res.Quality)
	} else {
		fmt.Println("not supported")
	}
	if res.Message != "" {
		fmt.Println(res.Message)
	}
	if res.Suggestion != "" {
		fmt.Printf("note: %s\n", res.Suggestion)
	}
	fmt.Printf("capabilities: %s\n\n", res.Caps)
	return nil
}

//
func (c *Capabilities) printMatrix() {

	fmt.Printf("\nFORMAT EXTENSIONS   CAPABILITIES\n")
	for _, f := range capability.Formats() {
		info := capability.FormatInfoOf(f)
		fmt.Printf("%-6s %-12s %s\n",
			info.Name, strings.Join(info.Extensions, ","), info.Caps)
	}

	fmt.Printf("\nHARDWARE       CAPABILITIES\n")
	for _, h := range capability.HardwareList() {
		info := capability.HardwareInfoOf(h)
		fmt.Printf("%-14s %s\n", info.Name, info.Caps)
	}
	fmt.Println()
}
