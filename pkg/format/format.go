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

// Package format dispatches over disk image container codecs. Each codec
// lives in its own sub-package and satisfies the Codec interface; this
// package only knows how to pick one.
package format

import (
	"fmt"
	"io"

	"github.com/fluxkeep/fluxkeep/pkg/disk"
	"github.com/fluxkeep/fluxkeep/pkg/format/atr"
	"github.com/fluxkeep/fluxkeep/pkg/format/dmk"
	"github.com/fluxkeep/fluxkeep/pkg/format/hfe"
	"github.com/fluxkeep/fluxkeep/pkg/format/ipf"
	"github.com/fluxkeep/fluxkeep/pkg/format/mfmimg"
	"github.com/fluxkeep/fluxkeep/pkg/format/nib"
	"github.com/fluxkeep/fluxkeep/pkg/format/scp"
	"github.com/fluxkeep/fluxkeep/pkg/format/woz"
)

// Codec reads and writes one disk image container format.
type Codec interface {
	// Name returns the canonical format name
	Name() string
	// Probe reports whether the data looks like this format
	Probe(data []byte) bool
	// Open parses the data into an in-memory disk
	Open(data []byte, par *disk.Params) (*disk.Disk, error)
	// Write serializes a disk; codecs without write support return an
	// error
	Write(d *disk.Disk, out io.Writer) error
}

//
func New(typ string) (Codec, error) {

	switch typ {

	case "scp":
		return scp.New(), nil

	case "woz":
		return woz.New(), nil

	case "nib":
		return nib.New(), nil

	case "ipf", "ctraw":
		return ipf.New(), nil

	case "dmk":
		return dmk.New(), nil

	case "hfe":
		return hfe.New(), nil

	case "mfm":
		return mfmimg.New(), nil

	case "atr", "xfd":
		return atr.New(), nil

	default:
		return nil, fmt.Errorf("unsupported image format: %s", typ)
	}
}

// Detect probes the data against all codecs, content before file name.
// Ambiguous headerless formats (NIB, XFD) probe last since they match on
// size alone.
func Detect(data []byte) (Codec, error) {

	for _, typ := range []string{
		"scp", "woz", "ipf", "hfe", "mfm", "dmk", "atr", "nib"} {
		c, err := New(typ)
		if err != nil {
			return nil, err
		}
		if c.Probe(data) {
			return c, nil
		}
	}

	return nil, fmt.Errorf("unrecognized image format")
}
