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
	"bytes"
	"fmt"
	"io/ioutil"

	"github.com/fluxkeep/fluxkeep/pkg/format/atr"
	"github.com/fluxkeep/fluxkeep/pkg/fs/atari"
	"github.com/fluxkeep/fluxkeep/pkg/fs/fat"
)

// mounted is a filesystem image opened for file operations; exactly one
// of the two filesystem fields is set.
type mounted struct {
	atari *atari.FS
	fat   *fat.Volume
	img   *atr.Image
}

// mountImage loads an image file and mounts its filesystem. A valid BPB
// mounts as FAT, anything that parses as ATR or XFD mounts as Atari DOS.
func mountImage(file string) (*mounted, error) {

	data, err := readImageFile(file)
	if err != nil {
		return nil, err
	}

	if det := fat.Detect(data); det.Valid {
		vol, err := fat.Open(data)
		if err != nil {
			return nil, err
		}
		return &mounted{fat: vol}, nil
	}

	img, err := atr.ParseATR(data)
	if err != nil {
		if img, err = atr.ParseXFD(data); err != nil {
			return nil, fmt.Errorf("%s: no mountable filesystem", file)
		}
	}

	fs, err := atari.Open(img)
	if err != nil {
		return nil, err
	}
	return &mounted{atari: fs, img: img}, nil
}

//
func (m *mounted) describe() string {
	if m.fat != nil {
		return m.fat.Type.String()
	}
	return m.atari.Kind.String()
}

//
func (m *mounted) extract(name string) ([]byte, error) {
	if m.fat != nil {
		return m.fat.Extract(name)
	}
	return m.atari.Extract(name)
}

//
func (m *mounted) put(name string, data []byte) error {
	if m.fat != nil {
		return m.fat.WriteFile(name, data)
	}
	return m.atari.WriteFile(name, data)
}

//
func (m *mounted) remove(name string) error {
	if m.fat != nil {
		return m.fat.Delete(name)
	}
	return m.atari.Delete(name)
}

// save writes the modified image back, preserving the input framing:
// headerless images stay headerless.
func (m *mounted) save(file string) error {

	if m.fat != nil {
		return ioutil.WriteFile(file, m.fat.Bytes(), 0644)
	}

	if !m.img.HadHeader {
		return ioutil.WriteFile(file, m.img.Data, 0644)
	}

	var buf bytes.Buffer
	if err := m.img.WriteATR(&buf); err != nil {
		return err
	}
	return ioutil.WriteFile(file, buf.Bytes(), 0644)
}
