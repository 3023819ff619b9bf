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

// Package atr handles Atari 8-bit sector images: ATR files with their
// 16-byte header, and headerless XFD dumps whose geometry is inferred
// from the file size. The first three sectors of an Atari disk are
// always 128 bytes, which makes double-density offsets irregular.
package atr

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/fluxkeep/fluxkeep/pkg/binutil"
)

const (
	headerSize = 16

	magicLo = 0x96
	magicHi = 0x02

	bootSectorSize = 128
)

// Standard XFD file sizes.
const (
	SizeSD     = 92160  // 720 x 128
	SizeED     = 133120 // 1040 x 128
	SizeDD     = 184320 // 720 x 256
	SizeDDBoot = 183936 // 3 x 128 + 717 x 256
	SizeQD     = 368640 // 1440 x 256
)

// Density of an Atari disk.
type Density int

const (
	DensityUnknown Density = iota
	DensitySD
	DensityED
	DensityDD
	DensityQD
	DensityCustom
)

//
func (d Density) String() string {
	switch d {
	case DensitySD:
		return "SD"
	case DensityED:
		return "ED"
	case DensityDD:
		return "DD"
	case DensityQD:
		return "QD"
	case DensityCustom:
		return "custom"
	}
	return "unknown"
}

// Geometry describes the sector layout of an image.
type Geometry struct {
	Density         Density
	SectorSize      int
	TotalSectors    int
	Tracks          int
	SectorsPerTrack int
	Sides           int
}

// SectorOffset returns the byte offset of a sector in the data area.
// Sectors are numbered from 1; the first three are always 128 bytes.
func (g *Geometry) SectorOffset(sector int) int {
	if sector < 1 {
		return 0
	}
	if sector <= 3 || g.SectorSize == 128 {
		return (sector - 1) * 128
	}
	return 3*128 + (sector-4)*256
}

// SectorLen returns the size of the given sector.
func (g *Geometry) SectorLen(sector int) int {
	if sector <= 3 {
		return bootSectorSize
	}
	return g.SectorSize
}

// DataSize returns the expected data-area size for the geometry.
func (g *Geometry) DataSize() int {
	if g.SectorSize == 128 || g.TotalSectors <= 3 {
		return g.TotalSectors * 128
	}
	return 3*128 + (g.TotalSectors-3)*256
}

// DOSType is the operating system detected in the boot area.
type DOSType int

const (
	DOSUnknown DOSType = iota
	DOSNone
	DOS2x
	DOSMyDOS
	DOSSparta
	DOSTurbo
	DOSBW
)

//
func (t DOSType) String() string {
	switch t {
	case DOSNone:
		return "no DOS"
	case DOS2x:
		return "Atari DOS 2.x"
	case DOSMyDOS:
		return "MyDOS"
	case DOSSparta:
		return "SpartaDOS"
	case DOSTurbo:
		return "Turbo-DOS"
	case DOSBW:
		return "BW-DOS"
	}
	return "unknown"
}

// BootInfo summarizes the boot sector.
type BootInfo struct {
	Flag        byte
	BootSectors int
	LoadAddr    uint16
	InitAddr    uint16
	DOS         DOSType
}

// Image is a loaded Atari sector image. Data holds the sector area
// without any container header.
type Image struct {
	Geometry  Geometry
	Boot      BootInfo
	Data      []byte
	HadHeader bool
}

// DetectDensity maps an XFD file size to a density.
func DetectDensity(size int) Density {
	switch size {
	case SizeSD:
		return DensitySD
	case SizeED:
		return DensityED
	case SizeDD, SizeDDBoot:
		return DensityDD
	case SizeQD:
		return DensityQD
	}
	return DensityCustom
}

func geometryFor(density Density, size int) Geometry {
	switch density {
	case DensitySD:
		return Geometry{DensitySD, 128, 720, 40, 18, 1}
	case DensityED:
		return Geometry{DensityED, 128, 1040, 40, 26, 1}
	case DensityDD:
		return Geometry{DensityDD, 256, 720, 40, 18, 1}
	case DensityQD:
		return Geometry{DensityQD, 256, 1440, 80, 18, 2}
	}

	g := Geometry{Density: DensityCustom}
	switch {
	case size%256 == 0:
		g.SectorSize = 256
		g.TotalSectors = size / 256
	case size%128 == 0:
		g.SectorSize = 128
		g.TotalSectors = size / 128
	default:
		g.SectorSize = 128
		g.TotalSectors = (size + 127) / 128
	}
	g.SectorsPerTrack = 18
	g.Tracks = (g.TotalSectors + 17) / 18
	if g.Tracks > 40 {
		g.Sides = 2
	} else {
		g.Sides = 1
	}
	return g
}

// ParseXFD interprets a headerless sector dump.
func ParseXFD(data []byte) (*Image, error) {
	if len(data) < bootSectorSize {
		return nil, fmt.Errorf("XFD too small: %d bytes", len(data))
	}
	if data[0] == magicLo && data[1] == magicHi {
		return nil, fmt.Errorf("file carries an ATR header, not a raw XFD dump")
	}

	img := &Image{
		Geometry: geometryFor(DetectDensity(len(data)), len(data)),
		Data:     binutil.Dup(data),
	}
	img.detectDOS()

	log.WithFields(log.Fields{
		"density": img.Geometry.Density,
		"sectors": img.Geometry.TotalSectors,
		"dos":     img.Boot.DOS,
	}).Debug("XFD image loaded")

	return img, nil
}

// ParseATR interprets a headered ATR image.
func ParseATR(data []byte) (*Image, error) {
	if len(data) < headerSize+bootSectorSize {
		return nil, fmt.Errorf("ATR too small: %d bytes", len(data))
	}
	if data[0] != magicLo || data[1] != magicHi {
		return nil, fmt.Errorf("bad ATR magic: %02x %02x", data[0], data[1])
	}

	paragraphs := int(binutil.U16LE(data[2:])) | int(data[6])<<16
	sectorSize := int(binutil.U16LE(data[4:]))
	dataSize := paragraphs * 16

	if sectorSize != 128 && sectorSize != 256 {
		return nil, fmt.Errorf("unsupported ATR sector size %d", sectorSize)
	}
	if headerSize+dataSize > len(data) {
		return nil, fmt.Errorf("ATR header claims %d data bytes, file has %d",
			dataSize, len(data)-headerSize)
	}

	body := data[headerSize : headerSize+dataSize]

	var total int
	if sectorSize == 128 {
		total = dataSize / 128
	} else {
		total = 3 + (dataSize-3*128)/256
	}

	density := DensityCustom
	switch {
	case sectorSize == 128 && total == 720:
		density = DensitySD
	case sectorSize == 128 && total == 1040:
		density = DensityED
	case sectorSize == 256 && total == 720:
		density = DensityDD
	case sectorSize == 256 && total == 1440:
		density = DensityQD
	}

	g := geometryFor(density, dataSize)
	if density == DensityCustom {
		g.SectorSize = sectorSize
		g.TotalSectors = total
	}

	img := &Image{
		Geometry:  g,
		Data:      binutil.Dup(body),
		HadHeader: true,
	}
	img.detectDOS()
	return img, nil
}

// ReadSector returns the payload of a sector, or nil when the sector
// number is out of range.
func (img *Image) ReadSector(sector int) []byte {
	g := &img.Geometry
	if sector < 1 || sector > g.TotalSectors {
		return nil
	}
	off := g.SectorOffset(sector)
	n := g.SectorLen(sector)
	if off+n > len(img.Data) {
		return nil
	}
	return img.Data[off : off+n]
}

// WriteSector overwrites a sector in place.
func (img *Image) WriteSector(sector int, b []byte) error {
	g := &img.Geometry
	if sector < 1 || sector > g.TotalSectors {
		return fmt.Errorf("sector %d out of range 1..%d", sector, g.TotalSectors)
	}
	n := g.SectorLen(sector)
	if len(b) != n {
		return fmt.Errorf("sector %d expects %d bytes, got %d", sector, n, len(b))
	}
	copy(img.Data[g.SectorOffset(sector):], b)
	return nil
}

func (img *Image) detectDOS() {
	b := &img.Boot
	bs := img.ReadSector(1)
	if bs == nil {
		return
	}

	b.Flag = bs[0]
	b.BootSectors = int(bs[1])
	b.LoadAddr = binutil.U16LE(bs[2:])
	b.InitAddr = binutil.U16LE(bs[4:])

	if b.Flag == 0 && b.BootSectors == 0 {
		b.DOS = DOSNone
		return
	}

	tail := string(bs[16:])
	switch {
	case bs[7] == 'S':
		b.DOS = DOSSparta
	case strings.Contains(tail, "MYDOS"):
		b.DOS = DOSMyDOS
	case strings.Contains(tail, "TURBO"):
		b.DOS = DOSTurbo
	case strings.Contains(tail, "BW-DOS") || strings.Contains(tail, "BWDOS"):
		b.DOS = DOSBW
	case b.Flag != 0:
		b.DOS = DOS2x
	}

	if b.DOS == DOSUnknown || b.DOS == DOS2x {
		// MyDOS boots look like DOS 2.x; the VTOC version byte and a
		// JMP at offset 6 tell them apart.
		vtoc := img.ReadSector(360)
		if vtoc != nil && vtoc[0] == 0x02 && bs[6] == 0x4C &&
			binutil.U16LE(vtoc[3:]) >= 1 && img.Geometry.TotalSectors > 720 {
			b.DOS = DOSMyDOS
		}
	}
}

// WriteATR writes the image with an ATR header. XFD data is copied
// through unchanged: the sector area layout is identical in both
// containers.
func (img *Image) WriteATR(out io.Writer) error {
	hdr := make([]byte, headerSize)
	hdr[0] = magicLo
	hdr[1] = magicHi

	paragraphs := len(img.Data) / 16
	binutil.PutU16LE(hdr, 2, uint16(paragraphs&0xFFFF))
	binutil.PutU16LE(hdr, 4, uint16(img.Geometry.SectorSize))
	hdr[6] = byte(paragraphs >> 16)

	if _, err := out.Write(hdr); err != nil {
		return err
	}
	_, err := out.Write(img.Data)
	return err
}

// TrackBytes returns the concatenated sector payloads of one physical
// track. Track numbering follows the logical sector order: track t side
// s covers sectors [base+1, base+spt] with base = (t*sides+s)*spt.
func (img *Image) TrackBytes(track, side int) []byte {
	g := &img.Geometry
	if g.SectorsPerTrack == 0 {
		return nil
	}
	base := (track*g.Sides + side) * g.SectorsPerTrack
	var buf bytes.Buffer
	for s := base + 1; s <= base+g.SectorsPerTrack && s <= g.TotalSectors; s++ {
		buf.Write(img.ReadSector(s))
	}
	return buf.Bytes()
}
