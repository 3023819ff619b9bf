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

// Package woz reads Applesauce WOZ images, versions 1 through 2.1.
// Quarter-track positions are first-class here since Apple II protection
// schemes park data between the nominal tracks.
package woz

import (
	"fmt"
	"hash/crc32"
	"io"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/fluxkeep/fluxkeep/pkg/binutil"
	"github.com/fluxkeep/fluxkeep/pkg/disk"
)

const (
	headerSize = 12
	MaxTracks  = 160

	v1TrackSize = 6656
	v1DataSize  = 6646
	blockSize   = 512

	// FluxTickNS is the WOZ 2.1 flux resolution.
	FluxTickNS = 125
)

// Disk types from INFO.
const (
	Disk525 = 1
	Disk35  = 2
)

// TrackData is one physical track slot from TRKS.
type TrackData struct {
	Bits     []byte
	BitCount int
	// TimingTicks is the bit cell width in 125 ns units.
	TimingTicks byte
	// FluxNS overrides the bitstream when non-empty (WOZ 2.1).
	FluxNS []uint32
}

// Image is a parsed WOZ file.
type Image struct {
	Version     int // container version, 1 or 2
	InfoVersion byte
	DiskType    byte
	WriteProt   bool
	Sync        bool
	Cleaned     bool
	Creator     string
	Sides       byte
	BootFormat  byte
	BitTiming   byte // 125 ns units per cell
	LargestTrk  uint16
	FluxBlock   uint16

	TMap   [MaxTracks]byte
	Tracks [MaxTracks]*TrackData
	Meta   map[string]string
}

// IsV21 reports whether the image carries 2.1 semantics; the container
// signature stays "WOZ2", only info_version advances.
func (img *Image) IsV21() bool {
	return img.Version == 2 && img.InfoVersion >= 3
}

// TracksPresent is the number of TRKS slots addressed by the track map.
func (img *Image) TracksPresent() int {
	present := 0
	for _, m := range img.TMap {
		if m != 0xFF && int(m)+1 > present {
			present = int(m) + 1
		}
	}
	return present
}

// TrackAtQuarter resolves a quarter-track position through the map.
func (img *Image) TrackAtQuarter(q int) *TrackData {
	if q < 0 || q >= MaxTracks || img.TMap[q] == 0xFF {
		return nil
	}
	return img.Tracks[img.TMap[q]]
}

//
func Parse(data []byte) (*Image, error) {

	r := binutil.NewReader(data)

	hdr, err := r.Read(0, headerSize)
	if err != nil {
		return nil, fmt.Errorf("WOZ header truncated")
	}

	img := &Image{Meta: map[string]string{}}
	switch string(hdr[:4]) {
	case "WOZ1":
		img.Version = 1
	case "WOZ2":
		img.Version = 2
	default:
		return nil, fmt.Errorf("not a WOZ image")
	}
	if hdr[4] != 0xFF || hdr[5] != 0x0A || hdr[6] != 0x0D || hdr[7] != 0x0A {
		return nil, fmt.Errorf("corrupt WOZ magic")
	}

	if stored := binutil.U32LE(hdr[8:]); stored != 0 {
		if crc32.ChecksumIEEE(data[headerSize:]) != stored {
			log.Warn("WOZ CRC mismatch, continuing")
		}
	}

	for i := range img.TMap {
		img.TMap[i] = 0xFF
	}

	// TRKS needs INFO's bit timing, so chunks are located first
	type chunk struct{ off, size int }
	chunks := map[string]chunk{}

	for off := headerSize; off+8 <= r.Size(); {
		id, err := r.Read(off, 4)
		if err != nil {
			break
		}
		size, err := r.U32LE(off + 4)
		if err != nil {
			break
		}
		chunks[string(id)] = chunk{off: off + 8, size: int(size)}
		off += 8 + int(size)
	}

	info, ok := chunks["INFO"]
	if !ok {
		return nil, fmt.Errorf("WOZ INFO chunk missing")
	}
	if err := img.parseInfo(r, info.off, info.size); err != nil {
		return nil, err
	}

	if c, ok := chunks["TMAP"]; ok {
		img.parseTMap(r, c.off, c.size)
	}

	if c, ok := chunks["TRKS"]; ok {
		if img.Version == 1 {
			img.parseTracksV1(r, c.off, c.size)
		} else {
			img.parseTracksV2(r, c.off, c.size, data)
		}
	}

	if c, ok := chunks["FLUX"]; ok && img.IsV21() {
		img.parseFlux(r, c.off, c.size, data)
	}

	if c, ok := chunks["META"]; ok {
		img.parseMeta(r, c.off, c.size)
	}

	return img, nil
}

//
func (img *Image) parseInfo(r *binutil.Reader, off, size int) error {

	if size < 37 {
		return fmt.Errorf("WOZ INFO chunk too small: %d", size)
	}
	buf, err := r.Read(off, size)
	if err != nil {
		return fmt.Errorf("WOZ INFO chunk truncated")
	}

	img.InfoVersion = buf[0]
	img.DiskType = buf[1]
	img.WriteProt = buf[2] != 0
	img.Sync = buf[3] != 0
	img.Cleaned = buf[4] != 0
	img.Creator = strings.TrimRight(string(buf[5:37]), " \x00")

	if img.Version == 1 || size < 45 {
		img.Sides = 1
		if img.DiskType == Disk35 {
			img.BitTiming = 16
		} else {
			img.BitTiming = 32
		}
		return nil
	}

	img.Sides = buf[37]
	img.BootFormat = buf[38]
	img.BitTiming = buf[39]
	img.LargestTrk = binutil.U16LE(buf[44:])
	if img.InfoVersion >= 3 && size >= 48 {
		img.FluxBlock = binutil.U16LE(buf[46:])
	}
	return nil
}

//
func (img *Image) parseTMap(r *binutil.Reader, off, size int) {
	if size > MaxTracks {
		size = MaxTracks
	}
	buf, err := r.Read(off, size)
	if err != nil {
		return
	}
	copy(img.TMap[:], buf)
}

//
func (img *Image) parseTracksV1(r *binutil.Reader, off, size int) {

	n := size / v1TrackSize
	if n > MaxTracks {
		n = MaxTracks
	}

	for t := 0; t < n; t++ {
		buf, err := r.Read(off+t*v1TrackSize, v1TrackSize)
		if err != nil {
			continue
		}
		bitCount := int(binutil.U16LE(buf[v1DataSize:]))
		if bitCount == 0 {
			continue
		}
		img.Tracks[t] = &TrackData{
			Bits:        binutil.Dup(buf[:(bitCount+7)/8]),
			BitCount:    bitCount,
			TimingTicks: img.BitTiming,
		}
	}
}

//
func (img *Image) parseTracksV2(r *binutil.Reader, off, size int, data []byte) {

	n := size / 8
	if n > MaxTracks {
		n = MaxTracks
	}

	for t := 0; t < n; t++ {
		entry, err := r.Read(off+t*8, 8)
		if err != nil {
			continue
		}
		startBlock := int(binutil.U16LE(entry))
		blockCount := int(binutil.U16LE(entry[2:]))
		bitCount := int(binutil.U32LE(entry[4:]))

		if startBlock == 0 && blockCount == 0 {
			continue
		}

		raw, err := r.Read(startBlock*blockSize, blockCount*blockSize)
		if err != nil {
			log.WithField("track", t).Warn("WOZ track data beyond file")
			continue
		}
		byteCount := (bitCount + 7) / 8
		if byteCount > len(raw) {
			byteCount = len(raw)
			bitCount = byteCount * 8
		}
		img.Tracks[t] = &TrackData{
			Bits:        binutil.Dup(raw[:byteCount]),
			BitCount:    bitCount,
			TimingTicks: img.BitTiming,
		}
	}
}

// parseFlux reads WOZ 2.1 FLUX entries. Track data is a byte stream of
// 125 ns tick counts; 0xFF carries into the next byte without emitting a
// transition.
func (img *Image) parseFlux(r *binutil.Reader, off, size int, data []byte) {

	n := size / 8
	if n > MaxTracks {
		n = MaxTracks
	}

	for t := 0; t < n; t++ {
		entry, err := r.Read(off+t*8, 8)
		if err != nil {
			continue
		}
		startBlock := int(binutil.U16LE(entry))
		blockCount := int(binutil.U16LE(entry[2:]))
		fluxCount := int(binutil.U32LE(entry[4:]))

		if startBlock == 0 || fluxCount == 0 {
			continue
		}

		raw, err := r.Read(startBlock*blockSize, blockCount*blockSize)
		if err != nil {
			log.WithField("track", t).Warn("WOZ flux data beyond file")
			continue
		}
		if fluxCount > len(raw) {
			fluxCount = len(raw)
		}

		var flux []uint32
		var acc uint32
		for _, b := range raw[:fluxCount] {
			acc += uint32(b)
			if b != 0xFF {
				flux = append(flux, acc*FluxTickNS)
				acc = 0
			}
		}

		if img.Tracks[t] == nil {
			img.Tracks[t] = &TrackData{TimingTicks: img.BitTiming}
		}
		img.Tracks[t].FluxNS = flux
	}
}

//
func (img *Image) parseMeta(r *binutil.Reader, off, size int) {
	buf, err := r.Read(off, size)
	if err != nil {
		return
	}
	for _, line := range strings.Split(string(buf), "\n") {
		if k, v, ok := cut(line, '\t'); ok {
			img.Meta[k] = v
		}
	}
}

//
func cut(s string, sep byte) (string, string, bool) {
	if i := strings.IndexByte(s, sep); i >= 0 {
		return s[:i], s[i+1:], true
	}
	return s, "", false
}

// FluxTimed returns the flux view of the track at a quarter-track
// position, in nanoseconds. Real flux data wins over the bitstream; a
// track carrying only bits gets one synthesized pulse per 1-bit.
func (img *Image) FluxTimed(q int) []uint32 {
	trk := img.TrackAtQuarter(q)
	if trk == nil {
		return nil
	}
	if len(trk.FluxNS) > 0 {
		return trk.FluxNS
	}
	return SynthesizeFlux(trk.Bits, trk.BitCount, trk.TimingTicks)
}

// SynthesizeFlux expands a bitstream into flux intervals, one transition
// per 1-bit, cells of timing ticks at 125 ns each. Trailing 0-bits fold
// into the final interval.
func SynthesizeFlux(bits []byte, bitCount int, timingTicks byte) []uint32 {

	cellNS := uint32(timingTicks) * FluxTickNS
	var flux []uint32
	var acc uint32

	for i := 0; i < bitCount; i++ {
		acc += cellNS
		if bits[i/8]&(0x80>>(i%8)) != 0 {
			flux = append(flux, acc)
			acc = 0
		}
	}
	return flux
}

// Codec adapts WOZ images to the shared disk model.
type Codec struct{}

//
func New() *Codec {
	return &Codec{}
}

//
func (c *Codec) Name() string {
	return "woz"
}

//
func (c *Codec) Probe(data []byte) bool {
	return len(data) >= headerSize &&
		(string(data[:4]) == "WOZ1" || string(data[:4]) == "WOZ2") &&
		data[4] == 0xFF
}

//
func (c *Codec) Open(data []byte, par *disk.Params) (*disk.Disk, error) {

	img, err := Parse(data)
	if err != nil {
		return nil, err
	}

	d := &disk.Disk{
		Format:    "woz",
		WriteProt: img.WriteProt,
		Comment:   img.Creator,
	}

	seen := map[byte]bool{}
	halfTracks := false

	for q := 0; q < MaxTracks; q++ {
		slot := img.TMap[q]
		if slot == 0xFF || seen[slot] {
			continue
		}
		seen[slot] = true
		trk := img.Tracks[slot]
		if trk == nil {
			continue
		}

		dt := &disk.Track{
			Cylinder:  q / 4,
			Head:      0,
			Quarter:   q,
			Encoding:  disk.EncGCR,
			BitCellNS: float64(trk.TimingTicks) * FluxTickNS,
			Bits:      trk.Bits,
			BitCount:  trk.BitCount,
		}
		if q%4 != 0 {
			halfTracks = true
			dt.Protection |= disk.ProtHalfTracks
		}

		if len(trk.FluxNS) > 0 {
			dt.FluxNS = trk.FluxNS
		} else if trk.BitCount > 0 {
			dt.FluxNS = SynthesizeFlux(trk.Bits, trk.BitCount, trk.TimingTicks)
		}

		d.AddTrack(dt)
	}

	if halfTracks {
		log.Debug("WOZ image populates off-track positions")
	}

	return d, nil
}

//
func (c *Codec) Write(d *disk.Disk, out io.Writer) error {
	return fmt.Errorf("WOZ writing not supported")
}
