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

package atari

import (
	"fmt"
	"strings"

	"github.com/fluxkeep/fluxkeep/pkg/binutil"
)

// Entry is one directory slot.
type Entry struct {
	Index       int
	Status      byte
	SectorCount int
	FirstSector int
	Name        string
	Ext         string
}

//
func (e *Entry) InUse() bool {
	return e.Status&FlagInUse != 0 && e.Status&FlagDeleted == 0
}

//
func (e *Entry) Deleted() bool {
	return e.Status&FlagDeleted != 0
}

//
func (e *Entry) Locked() bool {
	return e.Status&FlagLocked != 0
}

// FullName joins name and extension the way DOS displays them.
func (e *Entry) FullName() string {
	if e.Ext != "" {
		return e.Name + "." + e.Ext
	}
	return e.Name
}

func (fs *FS) entriesPerSector() int {
	n := fs.Img.Geometry.SectorLen(DirStart) / EntrySize
	if n < 1 {
		n = 1
	}
	return n
}

func (fs *FS) readEntry(index int) (*Entry, []byte) {
	per := fs.entriesPerSector()
	sec := fs.Img.ReadSector(DirStart + index/per)
	if sec == nil {
		return nil, nil
	}
	raw := sec[(index%per)*EntrySize : (index%per)*EntrySize+EntrySize]

	e := &Entry{
		Index:       index,
		Status:      raw[0],
		SectorCount: int(binutil.U16LE(raw[1:])),
		FirstSector: int(binutil.U16LE(raw[3:])),
		Name:        strings.TrimRight(string(raw[5:13]), " \x00"),
		Ext:         strings.TrimRight(string(raw[13:16]), " \x00"),
	}
	return e, raw
}

func (fs *FS) writeEntry(index int, status byte, count, first int, name, ext string) error {
	per := fs.entriesPerSector()
	secNum := DirStart + index/per
	sec := fs.Img.ReadSector(secNum)
	if sec == nil {
		return fmt.Errorf("cannot read directory sector %d", secNum)
	}

	buf := make([]byte, len(sec))
	copy(buf, sec)
	raw := buf[(index%per)*EntrySize:]

	raw[0] = status
	binutil.PutU16LE(raw, 1, uint16(count))
	binutil.PutU16LE(raw, 3, uint16(first))
	copy(raw[5:13], []byte(fmt.Sprintf("%-8s", name)))
	copy(raw[13:16], []byte(fmt.Sprintf("%-3s", ext)))

	return fs.Img.WriteSector(secNum, buf)
}

// List returns the in-use directory entries. A zero status byte
// terminates scanning, as DOS 2.x does.
func (fs *FS) List() []*Entry {
	var out []*Entry
	for i := 0; i < MaxFiles; i++ {
		e, _ := fs.readEntry(i)
		if e == nil || e.Status == 0 {
			break
		}
		if e.InUse() {
			out = append(out, e)
		}
	}
	return out
}

// ListDeleted returns deleted entries still present in the directory.
func (fs *FS) ListDeleted() []*Entry {
	var out []*Entry
	for i := 0; i < MaxFiles; i++ {
		e, _ := fs.readEntry(i)
		if e == nil || e.Status == 0 {
			break
		}
		if e.Deleted() {
			out = append(out, e)
		}
	}
	return out
}

// Lookup finds a file by name. The name goes through ParseFilename, so
// drive prefixes and lower case are accepted.
func (fs *FS) Lookup(filename string) (*Entry, error) {
	name, ext, err := ParseFilename(filename)
	if err != nil {
		return nil, err
	}
	for i := 0; i < MaxFiles; i++ {
		e, _ := fs.readEntry(i)
		if e == nil || e.Status == 0 {
			break
		}
		if e.InUse() && e.Name == name && e.Ext == ext {
			return e, nil
		}
	}
	return nil, ErrNotFound
}

// freeEntryIndex returns the first unused or deleted directory slot.
func (fs *FS) freeEntryIndex() int {
	for i := 0; i < MaxFiles; i++ {
		e, _ := fs.readEntry(i)
		if e == nil {
			return -1
		}
		if e.Status == 0 || e.Deleted() {
			return i
		}
	}
	return -1
}

// ParseFilename splits a DOS filename into its padded-out name and
// extension parts. An optional D: or D1:..D8: drive prefix is
// stripped; the result is uppercased and checked against the DOS
// character set (A-Z, 0-9, underscore).
func ParseFilename(input string) (name, ext string, err error) {
	s := strings.ToUpper(strings.TrimSpace(input))

	if len(s) >= 2 && s[0] == 'D' {
		if s[1] == ':' {
			s = s[2:]
		} else if len(s) >= 3 && s[1] >= '1' && s[1] <= '8' && s[2] == ':' {
			s = s[3:]
		}
	}

	if i := strings.IndexByte(s, '.'); i >= 0 {
		name, ext = s[:i], s[i+1:]
	} else {
		name = s
	}

	if name == "" || len(name) > 8 || len(ext) > 3 {
		return "", "", ErrBadName
	}
	for _, part := range []string{name, ext} {
		for _, c := range part {
			if (c < 'A' || c > 'Z') && (c < '0' || c > '9') && c != '_' {
				return "", "", ErrBadName
			}
		}
	}
	return name, ext, nil
}
