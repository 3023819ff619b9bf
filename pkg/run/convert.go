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

	"github.com/fluxkeep/fluxkeep/pkg/capability"
	"github.com/fluxkeep/fluxkeep/pkg/format"
)

//
func NewConvert() *Convert {

	c := &Convert{}
	c.Runner = *NewRunner(
		`convert -i|--input {image file} -o|--output {image file}
      [-f|--from {type}] [-t|--to {type}]`,
		"convert a disk image between container formats",
		`
Use the convert command to rewrite a disk image in a different container format.
Source and target types are inferred from the file extensions when not given
explicitly. Conversions that cannot preserve flux or protection data degrade to
what the target container can carry; check first with the capabilities command.`,
		"", runnerHelpEpilogue, c.Run)

	c.AddSetting(&c.Input, "input", "i", "", nil, "source image file", true)
	c.AddSetting(&c.Output, "output", "o", "", nil, "target image file", true)
	c.AddSetting(&c.From, "from", "f", "", nil,
		"source format type, probed when omitted", false)
	c.AddSetting(&c.To, "to", "t", "", nil,
		"target format type, from output extension when omitted", false)

	return c
}

//
type Convert struct {
	Runner
	//
	Input  string
	Output string
	From   string
	To     string
}

//
func (c *Convert) Run() error {

	c.ParseSettings()

	d, src, err := openImage(c.Input, c.From)
	if err != nil {
		return err
	}

	typ := c.To
	if typ == "" {
		typ = getExtension(c.Output)
	}
	tgt, err := format.New(typ)
	if err != nil {
		return err
	}

	logConversionLoss(src.Name(), tgt.Name())

	out, err := os.Create(c.Output)
	if err != nil {
		return err
	}
	defer out.Close()

	if err := tgt.Write(d, out); err != nil {
		os.Remove(c.Output)
		return fmt.Errorf("cannot write %s: %v", tgt.Name(), err)
	}

	fmt.Printf("converted %s (%s) to %s (%s)\n",
		c.Input, src.Name(), c.Output, tgt.Name())
	return nil
}

// logConversionLoss warns when the capability matrix says the target
// carries less than the source.
func logConversionLoss(srcName, tgtName string) {

	src := capability.FormatByName(srcName)
	tgt := capability.FormatByName(tgtName)
	if src == capability.FormatUnknown || tgt == capability.FormatUnknown {
		return
	}

	lost := capability.FormatCaps(src) &^ capability.FormatCaps(tgt)
	lost &= capability.CapFlux | capability.CapProtection | capability.CapWeakBits
	if lost != 0 {
		log.Warnf("conversion drops: %s", lost)
	}
}
