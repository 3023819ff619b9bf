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

// Package scp handles SuperCard Pro flux container files. SCP stores up
// to five revolutions per track at a fixed 25 ns tick, which makes it the
// interchange format every flux path converts through.
package scp

import (
	"fmt"
	"io"
	"math"

	log "github.com/sirupsen/logrus"

	"github.com/fluxkeep/fluxkeep/pkg/binutil"
	"github.com/fluxkeep/fluxkeep/pkg/disk"
)

const (
	signature  = "SCP"
	headerSize = 16
	MaxTracks  = 168

	// TickNS is the SCP capture resolution, 40 MHz base clock.
	TickNS = 25
	SckHz  = 1e9 / TickNS

	fluxShort = 40    // 1 µs in ticks
	fluxLong  = 20000 // 500 µs in ticks
)

// Disk type IDs from the header.
const (
	DiskC64     = 0x00
	DiskAmiga   = 0x04
	DiskAtariST = 0x10
	DiskAppleII = 0x20
	DiskPC360K  = 0x40
	DiskPC720K  = 0x41
	DiskPC1200K = 0x42
	DiskPC1440K = 0x43
	DiskOther   = 0xC0
)

// Header flags.
const (
	FlagIndex  = 0x01
	FlagTPI96  = 0x02
	FlagRPM360 = 0x04
	Flag2Sided = 0x10
)

// Score rates one revolution or track; components are in [0..1] and the
// composite weights flux timing quality highest.
type Score struct {
	Flux        float64
	Timing      float64
	Consistency float64
	Decode      float64
	Structure   float64
	Overall     float64
}

//
func perfectScore() Score {
	return Score{Flux: 1, Timing: 1, Consistency: 1, Decode: 1, Structure: 1}
}

//
func (s *Score) calculate() {
	s.Overall = s.Flux*0.25 + s.Timing*0.20 + s.Consistency*0.20 +
		s.Decode*0.20 + s.Structure*0.15
	if s.Overall < 0 {
		s.Overall = 0
	}
	if s.Overall > 1 {
		s.Overall = 1
	}
}

// Revolution is one captured rotation.
type Revolution struct {
	IndexTime uint32 // ticks from previous index
	Flux      []uint32
	Score     Score
	RPM       float64
}

// Track groups the revolutions captured at one head position. The SCP
// track number is cylinder*2+head for two-sided captures.
type Track struct {
	Number       int
	Revolutions  []*Revolution
	BestRev      int
	HasWeakBits  bool
	WeakBitCount int
	RPM          float64
	Score        Score
}

// Image is a parsed SCP file.
type Image struct {
	Version      byte
	DiskType     byte
	RevCount     byte
	StartTrack   byte
	EndTrack     byte
	Flags        byte
	BitCellWidth byte
	Heads        byte
	Resolution   byte
	Checksum     uint32
	ChecksumOK   bool

	Tracks        [MaxTracks]*Track
	TrackCount    int
	AverageRPM    float64
	Score         Score
	HasProtection bool
}

// ExpectedRPM is derived from the disk type: 1.2M and 1.44M PC media spin
// at 360, everything else at 300.
func (img *Image) ExpectedRPM() float64 {
	if img.DiskType >= DiskPC1200K && img.DiskType <= DiskPC1440K {
		return 360
	}
	return 300
}

//
func rpm(indexTime uint32) float64 {
	if indexTime == 0 {
		return 0
	}
	return 60 / (float64(indexTime) * TickNS / 1e9)
}

// Parse reads a complete SCP image from memory. Structural damage in
// individual tracks is logged and skipped, a bad header fails the parse.
func Parse(data []byte, par *disk.Params) (*Image, error) {

	r := binutil.NewReader(data)

	sig, err := r.Read(0, 3)
	if err != nil || string(sig) != signature {
		return nil, fmt.Errorf("not an SCP image")
	}

	img := &Image{}
	hdr, err := r.Read(0, headerSize)
	if err != nil {
		return nil, fmt.Errorf("SCP header truncated")
	}
	img.Version = hdr[3]
	img.DiskType = hdr[4]
	img.RevCount = hdr[5]
	img.StartTrack = hdr[6]
	img.EndTrack = hdr[7]
	img.Flags = hdr[8]
	img.BitCellWidth = hdr[9]
	img.Heads = hdr[10]
	img.Resolution = hdr[11]
	img.Checksum = binutil.U32LE(hdr[12:])

	img.ChecksumOK = verifyChecksum(data, img.Checksum)
	if !img.ChecksumOK {
		log.WithField("stored", fmt.Sprintf("%08x", img.Checksum)).
			Warn("SCP checksum mismatch, continuing")
	}

	first, last := int(img.StartTrack), int(img.EndTrack)
	for t := first; t <= last && t < MaxTracks; t++ {
		if !par.Step((t - first) * 100 / (last - first + 1)) {
			return nil, fmt.Errorf("parse cancelled at track %d", t)
		}
		off, err := r.U32LE(headerSize + t*4)
		if err != nil || off == 0 {
			continue
		}
		trk, err := parseTrack(r, t, int(off), int(img.RevCount))
		if err != nil {
			log.WithError(err).WithField("track", t).Warn("skipping track")
			continue
		}
		img.scoreTrack(trk, par)
		img.Tracks[t] = trk
		img.TrackCount++
	}

	img.finish()
	return img, nil
}

// checksum covers every byte after the header
func verifyChecksum(data []byte, stored uint32) bool {
	if stored == 0 {
		return true
	}
	var sum uint32
	for _, b := range data[headerSize:] {
		sum += uint32(b)
	}
	return sum == stored
}

//
func parseTrack(r *binutil.Reader, num, off, revs int) (*Track, error) {

	tdh, err := r.Read(off, 4)
	if err != nil {
		return nil, fmt.Errorf("track header beyond file: %v", err)
	}
	if string(tdh[:3]) != "TRK" {
		return nil, fmt.Errorf("invalid TRK signature")
	}
	if int(tdh[3]) != num {
		log.WithFields(log.Fields{"want": num, "got": tdh[3]}).
			Warn("track number mismatch in TDH")
	}

	trk := &Track{Number: num}

	for rv := 0; rv < revs; rv++ {

		entry, err := r.Read(off+4+rv*12, 12)
		if err != nil {
			break
		}
		indexTime := binutil.U32LE(entry)
		fluxCount := binutil.U32LE(entry[4:])
		dataOff := binutil.U32LE(entry[8:])

		if fluxCount == 0 || dataOff == 0 {
			continue
		}

		raw, err := r.Read(off+int(dataOff), int(fluxCount)*2)
		if err != nil {
			log.WithFields(log.Fields{"track": num, "rev": rv}).
				Warn("flux data truncated")
			continue
		}

		rev := &Revolution{
			IndexTime: indexTime,
			Flux:      make([]uint32, fluxCount),
			RPM:       rpm(indexTime),
		}
		for f := 0; f < int(fluxCount); f++ {
			rev.Flux[f] = uint32(binutil.U16BE(raw[f*2:]))
		}

		trk.Revolutions = append(trk.Revolutions, rev)
	}

	return trk, nil
}

// scoreTrack rates each revolution, picks the best one, and runs the
// weak-bit comparison when at least two revolutions were captured.
func (img *Image) scoreTrack(trk *Track, par *disk.Params) {

	expected := img.ExpectedRPM()

	best := 0
	bestScore := -1.0
	var fluxSum, timingSum float64

	for i, rev := range trk.Revolutions {
		scoreRevolution(rev, expected)
		fluxSum += rev.Score.Flux
		timingSum += rev.Score.Timing
		if rev.Score.Overall > bestScore {
			bestScore = rev.Score.Overall
			best = i
		}
	}
	trk.BestRev = best

	trk.Score = perfectScore()
	if n := len(trk.Revolutions); n > 0 {
		trk.Score.Flux = fluxSum / float64(n)
		trk.Score.Timing = timingSum / float64(n)
		trk.RPM = trk.Revolutions[0].RPM
	}

	if len(trk.Revolutions) >= 2 {
		r0, r1 := trk.Revolutions[0], trk.Revolutions[1]
		if len(r1.Flux) > 0 {
			ratio := float64(len(r0.Flux)) / float64(len(r1.Flux))
			if ratio < 0.95 || ratio > 1.05 {
				trk.Score.Consistency = 0.8
			}
		}
		threshold := 0.20
		if par != nil && par.DetectWeakBits {
			threshold = par.WeakThreshold
		}
		if par == nil || par.DetectWeakBits {
			detectWeakBits(trk, threshold)
		}
	}

	trk.Score.calculate()
}

//
func scoreRevolution(rev *Revolution, expectedRPM float64) {

	rev.Score = perfectScore()

	if n := len(rev.Flux); n > 0 {

		var sum uint64
		var short, long int
		for _, f := range rev.Flux {
			sum += uint64(f)
			if f < fluxShort {
				short++
			}
			if f > fluxLong {
				long++
			}
		}
		mean := float64(sum) / float64(n)

		var sq float64
		for _, f := range rev.Flux {
			d := float64(f) - mean
			sq += d * d
		}
		cv := math.Sqrt(sq/float64(n)) / mean

		if cv > 1 {
			cv = 1
		}
		rev.Score.Flux = (1 - cv) * (1 - float64(short+long)/float64(n))
	}

	if rev.IndexTime > 0 {
		rpmErr := math.Abs(rev.RPM-expectedRPM) / expectedRPM
		if rpmErr > 0.1 {
			rpmErr = 0.1
		}
		rev.Score.Timing = 1 - rpmErr
	}

	rev.Score.calculate()
}

// detectWeakBits walks the first two revolutions in lockstep, comparing
// the accumulated time on each side. Weak bits read differently on every
// pass, so a protected track shows many transitions whose timing ratio
// falls outside 1 ± threshold.
func detectWeakBits(trk *Track, threshold float64) {

	r0, r1 := trk.Revolutions[0], trk.Revolutions[1]

	weak := 0
	pos0, pos1 := 0, 0
	var time0, time1 uint64

	for pos0 < len(r0.Flux) && pos1 < len(r1.Flux) {
		time0 += uint64(r0.Flux[pos0])
		time1 += uint64(r1.Flux[pos1])

		ratio := float64(time0) / float64(time1)
		if ratio < 1-threshold || ratio > 1+threshold {
			weak++
		}

		if time0 < time1 {
			pos0++
		} else {
			pos1++
		}
	}

	if weak > 100 {
		trk.HasWeakBits = true
		trk.WeakBitCount = weak
		log.WithFields(log.Fields{"track": trk.Number, "count": weak}).
			Info("weak/inconsistent transitions detected")
	}
}

//
func (img *Image) finish() {

	var rpmSum, scoreSum float64
	rpmCount := 0

	for _, trk := range img.Tracks {
		if trk == nil {
			continue
		}
		if trk.RPM > 0 {
			rpmSum += trk.RPM
			rpmCount++
		}
		scoreSum += trk.Score.Overall
		if trk.HasWeakBits {
			img.HasProtection = true
		}
	}

	if rpmCount > 0 {
		img.AverageRPM = rpmSum / float64(rpmCount)
	}
	img.Score = perfectScore()
	if img.TrackCount > 0 {
		img.Score.Overall = scoreSum / float64(img.TrackCount)
	} else {
		img.Score.Overall = 0
	}
}

// DetectProtection names the copy protection scheme suggested by the
// weak-bit and consistency evidence, with a confidence estimate.
func (img *Image) DetectProtection() (string, float64, bool) {

	weakTracks := 0
	inconsistent := 0

	for _, trk := range img.Tracks {
		if trk == nil {
			continue
		}
		if trk.HasWeakBits {
			weakTracks++
		}
		if trk.Score.Consistency < 0.8 {
			inconsistent++
		}
	}

	if img.DiskType == DiskC64 && weakTracks > 0 {
		return "C64 Weak Bit Protection", 0.85, true
	}
	if weakTracks > 3 {
		return "Weak Bit Protection", 0.75, true
	}
	if inconsistent > 5 {
		return "Timing Protection", 0.70, true
	}
	return "", 0, false
}

// WriteTo serializes the image; the emitted file parses back to the same
// track count and per-revolution flux counts.
func (img *Image) WriteTo(out io.Writer) error {

	buf := make([]byte, headerSize+MaxTracks*4)
	copy(buf, signature)
	buf[3] = img.Version
	buf[4] = img.DiskType
	buf[5] = img.RevCount
	buf[6] = img.StartTrack
	buf[7] = img.EndTrack
	buf[8] = img.Flags
	buf[9] = img.BitCellWidth
	buf[10] = img.Heads
	buf[11] = img.Resolution

	for t, trk := range img.Tracks {
		if trk == nil || len(trk.Revolutions) == 0 {
			continue
		}

		binutil.PutU32LE(buf, headerSize+t*4, uint32(len(buf)))

		tdh := make([]byte, 4+len(trk.Revolutions)*12)
		copy(tdh, "TRK")
		tdh[3] = byte(t)

		fluxOff := uint32(len(tdh))
		var flux []byte
		for r, rev := range trk.Revolutions {
			binutil.PutU32LE(tdh, 4+r*12, rev.IndexTime)
			binutil.PutU32LE(tdh, 8+r*12, uint32(len(rev.Flux)))
			binutil.PutU32LE(tdh, 12+r*12, fluxOff)
			fluxOff += uint32(len(rev.Flux)) * 2

			cell := make([]byte, 2)
			for _, f := range rev.Flux {
				if f > 0xFFFF {
					f = 0xFFFF
				}
				binutil.PutU16BE(cell, 0, uint16(f))
				flux = append(flux, cell...)
			}
		}

		buf = append(buf, tdh...)
		buf = append(buf, flux...)
	}

	var sum uint32
	for _, b := range buf[headerSize:] {
		sum += uint32(b)
	}
	binutil.PutU32LE(buf, 12, sum)

	_, err := out.Write(buf)
	return err
}
