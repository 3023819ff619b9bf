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

	log "github.com/sirupsen/logrus"
)

// Sector-link trailer, the last 3 bytes of every data sector:
//
//	byte -3: file number in bits 7..2, next-sector bits 9..8 in bits 1..0
//	byte -2: next-sector bits 7..0
//	byte -1: SD/ED short flag in bit 7 + count in bits 6..0; DD full count
//
// A zero next-sector ends the chain.
type link struct {
	FileNum int
	Next    int
	Used    int
	Short   bool
}

func (fs *FS) parseLink(sec []byte) link {
	t := sec[len(sec)-3:]
	l := link{
		FileNum: int(t[0] >> 2),
		Next:    int(t[0]&0x03)<<8 | int(t[1]),
	}
	if fs.Img.Geometry.SectorSize == 256 && len(sec) == 256 {
		l.Used = int(t[2])
	} else {
		l.Short = t[2]&0x80 != 0
		l.Used = int(t[2] & 0x7F)
	}
	return l
}

func (fs *FS) putLink(sec []byte, l link) {
	t := sec[len(sec)-3:]
	t[0] = byte(l.FileNum<<2) | byte(l.Next>>8)&0x03
	t[1] = byte(l.Next)
	if fs.Img.Geometry.SectorSize == 256 && len(sec) == 256 {
		t[2] = byte(l.Used)
	} else {
		t[2] = byte(l.Used) & 0x7F
		if l.Short {
			t[2] |= 0x80
		}
	}
}

// payload returns the data capacity of one sector.
func (fs *FS) payload(sector int) int {
	return fs.Img.Geometry.SectorLen(sector) - 3
}

// chain walks a file's sector chain, calling fn per sector. The walk
// is bounded so a corrupted link loop cannot run away.
func (fs *FS) chain(first int, fn func(sector int, l link, data []byte) error) error {
	limit := fs.Img.Geometry.TotalSectors + 10
	cur := first
	for n := 0; cur != 0 && n < limit; n++ {
		sec := fs.Img.ReadSector(cur)
		if sec == nil {
			return fmt.Errorf("chain leaves the volume at sector %d", cur)
		}
		l := fs.parseLink(sec)
		if err := fn(cur, l, sec[:len(sec)-3]); err != nil {
			return err
		}
		cur = l.Next
	}
	if cur != 0 {
		return fmt.Errorf("sector chain from %d does not terminate", first)
	}
	return nil
}

// Extract returns the file content by walking its sector chain.
func (fs *FS) Extract(filename string) ([]byte, error) {
	e, err := fs.Lookup(filename)
	if err != nil {
		return nil, err
	}

	var out []byte
	err = fs.chain(e.FirstSector, func(sector int, l link, data []byte) error {
		if l.Used > len(data) {
			return fmt.Errorf("sector %d claims %d payload bytes, has %d",
				sector, l.Used, len(data))
		}
		out = append(out, data[:l.Used]...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// freeChain releases every sector of a partial or complete chain.
func (fs *FS) freeChain(first int) {
	_ = fs.chain(first, func(sector int, l link, data []byte) error {
		fs.Free(sector)
		return nil
	})
}

// WriteFile creates a new file. Sectors are allocated one at a time
// with a moving hint so chains come out roughly contiguous; after each
// allocation the previous sector's trailer is re-written to point at
// it. If the volume runs out mid-write, everything allocated so far is
// freed again.
func (fs *FS) WriteFile(filename string, data []byte) error {
	name, ext, err := ParseFilename(filename)
	if err != nil {
		return err
	}
	if _, err := fs.Lookup(filename); err == nil {
		return ErrExists
	}

	index := fs.freeEntryIndex()
	if index < 0 {
		return ErrDirFull
	}

	per := fs.payload(4)
	needed := (len(data) + per - 1) / per
	if needed == 0 {
		needed = 1
	}
	if needed > fs.FreeSectors() {
		return ErrDiskFull
	}

	first, prev := 0, 0
	hint := 4
	written := 0

	for i := 0; i < needed; i++ {
		sector := fs.FindFree(hint)
		if sector == 0 {
			if first != 0 {
				fs.freeChain(first)
				fs.flush()
			}
			return ErrDiskFull
		}
		fs.Allocate(sector)
		hint = sector + 1

		n := len(data) - written
		if n > per {
			n = per
		}

		sec := make([]byte, fs.Img.Geometry.SectorLen(sector))
		copy(sec, data[written:written+n])
		fs.putLink(sec, link{
			FileNum: index,
			Next:    0,
			Used:    n,
			Short:   n < per,
		})
		if err := fs.Img.WriteSector(sector, sec); err != nil {
			fs.freeChain(first)
			fs.flush()
			return err
		}

		if prev != 0 {
			psec := fs.Img.ReadSector(prev)
			l := fs.parseLink(psec)
			l.Next = sector
			buf := make([]byte, len(psec))
			copy(buf, psec)
			fs.putLink(buf, l)
			if err := fs.Img.WriteSector(prev, buf); err != nil {
				fs.freeChain(first)
				fs.flush()
				return err
			}
		}

		if first == 0 {
			first = sector
		}
		prev = sector
		written += n
	}

	if err := fs.writeEntry(index, FlagInUse|FlagDOS2, needed, first, name, ext); err != nil {
		fs.freeChain(first)
		fs.flush()
		return err
	}
	if err := fs.flush(); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"file":    filename,
		"sectors": needed,
		"first":   first,
	}).Debug("file written")

	return nil
}

// Delete removes a file: the chain is freed and the directory entry
// is flagged deleted, leaving its contents recoverable.
func (fs *FS) Delete(filename string) error {
	e, err := fs.Lookup(filename)
	if err != nil {
		return err
	}
	if e.Locked() {
		return ErrLocked
	}

	fs.freeChain(e.FirstSector)
	if err := fs.writeEntry(e.Index, e.Status|FlagDeleted, e.SectorCount,
		e.FirstSector, e.Name, e.Ext); err != nil {
		return err
	}
	return fs.flush()
}

// Rename changes a file's name in the directory only.
func (fs *FS) Rename(oldName, newName string) error {
	name, ext, err := ParseFilename(newName)
	if err != nil {
		return err
	}
	if _, err := fs.Lookup(newName); err == nil {
		return ErrExists
	}
	e, err := fs.Lookup(oldName)
	if err != nil {
		return err
	}
	if e.Locked() {
		return ErrLocked
	}
	return fs.writeEntry(e.Index, e.Status, e.SectorCount, e.FirstSector, name, ext)
}

// SetLocked toggles the directory lock bit.
func (fs *FS) SetLocked(filename string, locked bool) error {
	e, err := fs.Lookup(filename)
	if err != nil {
		return err
	}
	status := e.Status &^ byte(FlagLocked)
	if locked {
		status |= FlagLocked
	}
	return fs.writeEntry(e.Index, status, e.SectorCount, e.FirstSector, e.Name, e.Ext)
}
