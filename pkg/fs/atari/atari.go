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

// Package atari implements the Atari DOS 2.x / 2.5 / MyDOS filesystem
// on top of ATR/XFD sector images. The VTOC bitmap is MSB-first within
// each byte and a set bit means FREE. The classic DOS 2.0 bitmap spans
// 90 bytes and cannot address sector 720; that quirk is preserved here
// and only MyDOS volumes may allocate it.
package atari

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/fluxkeep/fluxkeep/pkg/binutil"
	"github.com/fluxkeep/fluxkeep/pkg/format/atr"
)

const (
	VTOCSector  = 360
	VTOC2Sector = 1024
	DirStart    = 361
	DirSectors  = 8
	MaxFiles    = 64
	EntrySize   = 16

	bitmapStart = 10
	bitmapBytes = 90

	// DOS 2.5 second VTOC: bitmap for sectors 720..1023 at byte 84,
	// free count above 719 at bytes 122..123.
	vtoc2BitmapStart = 84
	vtoc2BitmapBase  = 720
	vtoc2FreeOff     = 122
)

// Directory entry status bits.
const (
	FlagOpen    = 0x01
	FlagDOS2    = 0x02
	FlagLocked  = 0x20
	FlagInUse   = 0x40
	FlagDeleted = 0x80
)

var (
	ErrNotFound = errors.New("file not found")
	ErrExists   = errors.New("file already exists")
	ErrDiskFull = errors.New("disk full")
	ErrDirFull  = errors.New("directory full")
	ErrBadName  = errors.New("invalid Atari filename")
	ErrLocked   = errors.New("file is locked")
)

// DOSKind is the DOS flavour a volume was formatted with.
type DOSKind int

const (
	KindUnknown DOSKind = iota
	KindDOS1
	KindDOS2
	KindDOS25
	KindMyDOS
	KindSparta
)

//
func (k DOSKind) String() string {
	switch k {
	case KindDOS1:
		return "Atari DOS 1"
	case KindDOS2:
		return "Atari DOS 2.x"
	case KindDOS25:
		return "Atari DOS 2.5"
	case KindMyDOS:
		return "MyDOS"
	case KindSparta:
		return "SpartaDOS"
	}
	return "unknown"
}

// FS is a mounted Atari DOS volume. All mutations happen in place in
// the underlying image buffer.
type FS struct {
	Img  *atr.Image
	Kind DOSKind

	vtoc  []byte
	vtoc2 []byte
}

// Open mounts an Atari DOS filesystem from a sector image.
func Open(img *atr.Image) (*FS, error) {
	if img == nil {
		return nil, fmt.Errorf("nil image")
	}
	if img.Geometry.TotalSectors < DirStart+DirSectors {
		return nil, fmt.Errorf("image too small for a DOS 2.x volume: %d sectors",
			img.Geometry.TotalSectors)
	}

	fs := &FS{Img: img}
	fs.vtoc = img.ReadSector(VTOCSector)
	if fs.vtoc == nil {
		return nil, fmt.Errorf("cannot read VTOC sector %d", VTOCSector)
	}
	if img.Geometry.Density == atr.DensityED &&
		img.Geometry.TotalSectors >= VTOC2Sector {
		fs.vtoc2 = img.ReadSector(VTOC2Sector)
	}

	fs.Kind = fs.detectKind()

	log.WithFields(log.Fields{
		"dos":  fs.Kind,
		"free": fs.FreeSectors(),
	}).Debug("Atari volume mounted")

	return fs, nil
}

// detectKind reads the VTOC version code. Code 2 is shared by DOS 2.x,
// DOS 2.5 and MyDOS; density and the total-sector count (MyDOS counts
// sector 720 as usable) tell them apart.
func (fs *FS) detectKind() DOSKind {
	switch fs.vtoc[0] {
	case 0:
		if boot := fs.Img.ReadSector(1); boot != nil && boot[0] == 'S' && boot[1] == 'D' {
			return KindSparta
		}
		return KindDOS1
	case 1:
		return KindDOS2
	case 2:
		if fs.Img.Geometry.Density == atr.DensityED {
			return KindDOS25
		}
		if fs.vtoc[100] != 0 || fs.vtoc[101] != 0 || fs.TotalSectors()%2 == 0 {
			return KindMyDOS
		}
		return KindDOS2
	}
	return KindUnknown
}

// TotalSectors returns the usable sector count recorded in the VTOC.
func (fs *FS) TotalSectors() int {
	return int(binutil.U16LE(fs.vtoc[1:]))
}

// FreeSectors returns the free count, including the DOS 2.5 extension
// area when present.
func (fs *FS) FreeSectors() int {
	n := int(binutil.U16LE(fs.vtoc[3:]))
	if fs.vtoc2 != nil {
		n += int(binutil.U16LE(fs.vtoc2[vtoc2FreeOff:]))
	}
	return n
}

// FreeBytes returns the free space in payload bytes.
func (fs *FS) FreeBytes() int {
	return fs.FreeSectors() * (fs.Img.Geometry.SectorSize - 3)
}

// bitmapLimit is the highest sector the primary bitmap may address.
// DOS 2.0 stops at 719; MyDOS extends the bitmap across the rest of
// the VTOC sector.
func (fs *FS) bitmapLimit() int {
	if fs.Kind == KindMyDOS {
		max := (fs.Img.Geometry.SectorLen(VTOCSector)-bitmapStart)*8 - 1
		if max > fs.Img.Geometry.TotalSectors {
			max = fs.Img.Geometry.TotalSectors
		}
		return max
	}
	return bitmapBytes*8 - 1 // 719: position 720 does not fit
}

// IsFree reports whether a sector is marked free.
func (fs *FS) IsFree(sector int) bool {
	if sector <= vtoc2BitmapBase-1 || fs.Kind == KindMyDOS {
		if sector > fs.bitmapLimit() {
			return false
		}
		b := fs.vtoc[bitmapStart+sector/8]
		return b&(1<<uint(7-sector%8)) != 0
	}
	if fs.vtoc2 != nil && sector >= vtoc2BitmapBase && sector <= 1023 {
		pos := sector - vtoc2BitmapBase
		b := fs.vtoc2[vtoc2BitmapStart+pos/8]
		return b&(1<<uint(7-pos%8)) != 0
	}
	return false
}

func (fs *FS) setBit(sector int, free bool) {
	var buf []byte
	var byteIdx int
	var bit uint

	if sector <= vtoc2BitmapBase-1 || fs.Kind == KindMyDOS {
		buf = fs.vtoc
		byteIdx = bitmapStart + sector/8
		bit = uint(7 - sector%8)
	} else if fs.vtoc2 != nil && sector >= vtoc2BitmapBase && sector <= 1023 {
		pos := sector - vtoc2BitmapBase
		buf = fs.vtoc2
		byteIdx = vtoc2BitmapStart + pos/8
		bit = uint(7 - pos%8)
	} else {
		return
	}

	if free {
		buf[byteIdx] |= 1 << bit
	} else {
		buf[byteIdx] &^= 1 << bit
	}
}

func (fs *FS) adjustFree(sector, delta int) {
	if fs.vtoc2 != nil && sector >= vtoc2BitmapBase && fs.Kind != KindMyDOS {
		n := int(binutil.U16LE(fs.vtoc2[vtoc2FreeOff:])) + delta
		binutil.PutU16LE(fs.vtoc2, vtoc2FreeOff, uint16(n))
		return
	}
	n := int(binutil.U16LE(fs.vtoc[3:])) + delta
	binutil.PutU16LE(fs.vtoc, 3, uint16(n))
}

// Allocate marks a sector used and decrements the free count.
func (fs *FS) Allocate(sector int) {
	if !fs.IsFree(sector) {
		return
	}
	fs.setBit(sector, false)
	fs.adjustFree(sector, -1)
}

// Free marks a sector free and increments the free count.
func (fs *FS) Free(sector int) {
	if fs.IsFree(sector) {
		return
	}
	fs.setBit(sector, true)
	fs.adjustFree(sector, 1)
}

// FindFree returns the first free data sector at or after the hint,
// wrapping around once. System sectors and, outside MyDOS, sector 720
// are never returned. Zero means the volume is full.
func (fs *FS) FindFree(hint int) int {
	total := fs.Img.Geometry.TotalSectors
	if fs.vtoc2 == nil && fs.Kind != KindMyDOS && total > 719 {
		total = 719
	}
	if hint < 4 {
		hint = 4
	}

	check := func(s int) bool {
		if s >= VTOCSector && s <= DirStart+DirSectors-1 {
			return false
		}
		if s == 720 && fs.Kind != KindMyDOS {
			return false
		}
		return fs.IsFree(s)
	}

	for s := hint; s <= total; s++ {
		if check(s) {
			return s
		}
	}
	for s := 4; s < hint; s++ {
		if check(s) {
			return s
		}
	}
	return 0
}

// flush writes the cached VTOC sectors back to the image.
func (fs *FS) flush() error {
	if err := fs.Img.WriteSector(VTOCSector, fs.vtoc); err != nil {
		return err
	}
	if fs.vtoc2 != nil {
		return fs.Img.WriteSector(VTOC2Sector, fs.vtoc2)
	}
	return nil
}

// Format initializes an empty DOS filesystem on the image and mounts
// it. DOS 2.0 writes the classic 90-byte bitmap that cannot address
// sector 720; MyDOS counts sector 720 as usable and records one more
// total sector. DOS 2.5 on an ED volume additionally writes the second
// VTOC covering sectors above 719.
func Format(img *atr.Image, kind DOSKind) (*FS, error) {
	if img == nil {
		return nil, fmt.Errorf("nil image")
	}
	g := &img.Geometry
	if g.TotalSectors < DirStart+DirSectors {
		return nil, fmt.Errorf("%d sectors is too small for DOS 2.x", g.TotalSectors)
	}
	if kind == KindDOS25 && g.Density != atr.DensityED {
		return nil, fmt.Errorf("DOS 2.5 format requires an ED volume")
	}

	fs := &FS{Img: img, Kind: kind}
	fs.vtoc = make([]byte, g.SectorLen(VTOCSector))
	fs.vtoc[0] = 2

	// Clear the directory.
	empty := make([]byte, g.SectorLen(DirStart))
	for s := DirStart; s < DirStart+DirSectors; s++ {
		if err := img.WriteSector(s, empty); err != nil {
			return nil, err
		}
	}

	limit := g.TotalSectors
	if kind == KindMyDOS {
		if span := (g.SectorLen(VTOCSector)-bitmapStart)*8 - 1; limit > span {
			limit = span
		}
	} else if limit > 719 {
		limit = 719
	}

	free := 0
	for s := 4; s <= limit; s++ {
		if s >= VTOCSector && s <= DirStart+DirSectors-1 {
			continue
		}
		fs.vtoc[bitmapStart+s/8] |= 1 << uint(7-s%8)
		free++
	}

	// MyDOS reaches one sector further than DOS 2.0, so its recorded
	// total comes out one higher on the same geometry.
	binutil.PutU16LE(fs.vtoc, 1, uint16(free))
	binutil.PutU16LE(fs.vtoc, 3, uint16(free))

	if kind == KindDOS25 && g.TotalSectors >= VTOC2Sector {
		fs.vtoc2 = make([]byte, g.SectorLen(VTOC2Sector))
		free2 := 0
		// Sector 720 stays allocated for DOS 2.0 compatibility.
		for s := 721; s <= 1023 && s <= g.TotalSectors; s++ {
			pos := s - vtoc2BitmapBase
			fs.vtoc2[vtoc2BitmapStart+pos/8] |= 1 << uint(7-pos%8)
			free2++
		}
		binutil.PutU16LE(fs.vtoc2, vtoc2FreeOff, uint16(free2))
	}

	if err := fs.flush(); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"dos":  kind,
		"free": fs.FreeSectors(),
	}).Info("Atari volume formatted")

	return fs, nil
}
