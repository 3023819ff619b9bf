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

package track

import (
	log "github.com/sirupsen/logrus"

	"github.com/fluxkeep/fluxkeep/pkg/disk"
)

// Sector status bits. Every bit is an independent condition; phases only
// ever OR bits in, nothing clears them.
const (
	StatCRCIDBad uint32 = 1 << iota
	StatCRCDataBad
	StatMissingData
	StatTruncated
	StatDuplicateID
	StatWeakSync
	StatDeletedData
)

// Address mark tag bytes.
const (
	markIDAM       = 0xFE
	markDAM        = 0xFB
	markDeletedDAM = 0xF8
)

// DefaultMaxSearchGap bounds the forward search from an ID record to its
// data record. Nominal IBM gap2 is 22+12 bytes; anything far beyond that
// is another sector's territory.
const DefaultMaxSearchGap = 128

// Sector pairs an ID record with its data record. Either half may be
// missing or damaged; the Status bits say which. Data is always a copy,
// never a view into the track buffer.
type Sector struct {
	Cyl      byte
	Head     byte
	Sec      byte
	SizeCode byte

	CRCIDRead  uint16
	CRCIDCalc  uint16
	DataMark   byte
	Data       []byte
	CRCDRead   uint16
	CRCDCalc   uint16

	Status uint32

	idPos  int // byte offset of the ID sync in the track buffer
	idEnd  int // first byte after the ID CRC
}

//
func (s *Sector) Size() int {
	if s.SizeCode > 7 {
		return 0
	}
	return 128 << s.SizeCode
}

// Warning records a non-fatal oddity found during the scan.
type Warning struct {
	Kind string
	Pos  int
}

// Result is what a track parse always returns; the parser never fails.
type Result struct {
	Encoding disk.Encoding
	Sectors  []*Sector
	Warnings []Warning
}

// Options qualifies a parse. MarkMask, when non-nil, is a parallel bit
// array (one bit per track byte, MSB first) declaring which bytes carried
// genuine address-mark clock violations; syncs not covered by it are
// skipped. Without a mask, sync patterns cannot be told apart from data
// bytes, so every record gets StatWeakSync.
type Options struct {
	Encoding     disk.Encoding
	MarkMask     []byte
	MaxSearchGap int
}

// Parse scans a decoded track byte stream for FM/MFM sector records. It
// runs as two explicit passes: an ID scan, then data pairing. Combining
// the passes misclassifies duplicate IDs, so they stay separate.
func Parse(data []byte, opts Options) *Result {

	res := &Result{Encoding: opts.Encoding}

	if opts.Encoding == disk.EncUnknown {
		res.Encoding = DetectEncoding(data)
	}
	gap := opts.MaxSearchGap
	if gap <= 0 {
		gap = DefaultMaxSearchGap
	}

	scanIDs(data, opts, res)
	pairData(data, opts, gap, res)

	log.WithFields(log.Fields{
		"encoding": res.Encoding,
		"sectors":  len(res.Sectors),
		"warnings": len(res.Warnings),
	}).Debug("track parsed")

	return res
}

// DetectEncoding reports MFM when any A1 A1 A1 sync triple is present,
// FM otherwise.
func DetectEncoding(data []byte) disk.Encoding {
	for i := 0; i+2 < len(data); i++ {
		if data[i] == 0xA1 && data[i+1] == 0xA1 && data[i+2] == 0xA1 {
			return disk.EncMFM
		}
	}
	return disk.EncFM
}

//
func syncBytes(enc disk.Encoding) []byte {
	if enc == disk.EncFM {
		return []byte{0x00, 0x00, 0x00}
	}
	return []byte{0xA1, 0xA1, 0xA1}
}

//
func syncAt(data []byte, i int, enc disk.Encoding) bool {
	sync := syncBytes(enc)
	if i+len(sync) > len(data) {
		return false
	}
	for j, b := range sync {
		if data[i+j] != b {
			return false
		}
	}
	return true
}

// maskHit reports whether the mark mask confirms a clock violation at
// byte position i.
func maskHit(mask []byte, i int) bool {
	if i/8 >= len(mask) {
		return false
	}
	return mask[i/8]&(0x80>>uint(i%8)) != 0
}

// phase 1: sweep for sync + IDAM, append an ID record per hit.
func scanIDs(data []byte, opts Options, res *Result) {

	for i := 0; i+3 < len(data); {

		if !syncAt(data, i, res.Encoding) {
			i++
			continue
		}
		if opts.MarkMask != nil && !maskHit(opts.MarkMask, i) {
			i++
			continue
		}

		mark := data[i+3]

		switch mark {
		case markIDAM:
			i = consumeID(data, i, opts, res)
		case markDAM, markDeletedDAM:
			// data records are picked up in phase 2
			i += 4
		default:
			if res.Encoding == disk.EncMFM {
				res.Warnings = append(res.Warnings,
					Warning{Kind: "unusual mark", Pos: i + 3})
				i += 4
			} else {
				// FM gap and sync fields are indistinguishable
				// from the sync pattern itself
				i++
			}
		}
	}
}

// consumeID reads the 4 ID bytes and CRC following the IDAM at sync
// position pos and appends the record. Returns the next scan position.
func consumeID(data []byte, pos int, opts Options, res *Result) int {

	sec := &Sector{idPos: pos}
	if opts.MarkMask == nil {
		sec.Status |= StatWeakSync
	}

	idStart := pos + 4 // after sync + mark
	if idStart+6 > len(data) {
		// truncated mid-ID: keep what we can read
		sec.Status |= StatTruncated
		for j := 0; idStart+j < len(data) && j < 4; j++ {
			switch j {
			case 0:
				sec.Cyl = data[idStart]
			case 1:
				sec.Head = data[idStart+1]
			case 2:
				sec.Sec = data[idStart+2]
			case 3:
				sec.SizeCode = data[idStart+3]
			}
		}
		sec.idEnd = len(data)
		res.Sectors = append(res.Sectors, sec)
		res.Warnings = append(res.Warnings,
			Warning{Kind: "truncated ID record", Pos: pos})
		return len(data)
	}

	sec.Cyl = data[idStart]
	sec.Head = data[idStart+1]
	sec.Sec = data[idStart+2]
	sec.SizeCode = data[idStart+3]
	sec.CRCIDRead = uint16(data[idStart+4])<<8 | uint16(data[idStart+5])
	sec.CRCIDCalc = CRC16(data[pos:idStart+4], 0xFFFF)
	if sec.CRCIDCalc != sec.CRCIDRead {
		sec.Status |= StatCRCIDBad
	}
	sec.idEnd = idStart + 6

	for _, prev := range res.Sectors {
		if prev.Cyl == sec.Cyl && prev.Head == sec.Head &&
			prev.Sec == sec.Sec && prev.SizeCode == sec.SizeCode {
			prev.Status |= StatDuplicateID
			sec.Status |= StatDuplicateID
			res.Warnings = append(res.Warnings,
				Warning{Kind: "duplicate sector ID", Pos: pos})
			break
		}
	}

	res.Sectors = append(res.Sectors, sec)
	return sec.idEnd
}

// phase 2: for each ID record, find the following data record within the
// search gap and attach payload and CRC state.
func pairData(data []byte, opts Options, gap int, res *Result) {

	for _, sec := range res.Sectors {

		if sec.Status&StatTruncated != 0 && sec.idEnd >= len(data) {
			continue
		}

		damPos := -1
		limit := sec.idEnd + gap
		if limit > len(data) {
			limit = len(data)
		}

		for i := sec.idEnd; i+3 < limit; i++ {
			if !syncAt(data, i, res.Encoding) {
				continue
			}
			if opts.MarkMask != nil && !maskHit(opts.MarkMask, i) {
				continue
			}
			m := data[i+3]
			if m == markDAM || m == markDeletedDAM {
				damPos = i
				break
			}
			if m == markIDAM {
				break // next sector's ID, no data record for this one
			}
		}

		if damPos < 0 {
			sec.Status |= StatMissingData
			res.Warnings = append(res.Warnings,
				Warning{Kind: "missing data record", Pos: sec.idEnd})
			continue
		}

		sec.DataMark = data[damPos+3]
		if sec.DataMark == markDeletedDAM {
			sec.Status |= StatDeletedData
		}

		size := sec.Size()
		dataStart := damPos + 4

		if dataStart+size > len(data) {
			sec.Status |= StatTruncated
			sec.Data = append([]byte(nil), data[dataStart:]...)
			res.Warnings = append(res.Warnings,
				Warning{Kind: "truncated data record", Pos: damPos})
			continue
		}

		sec.Data = append([]byte(nil), data[dataStart:dataStart+size]...)

		if dataStart+size+2 > len(data) {
			sec.Status |= StatTruncated
			res.Warnings = append(res.Warnings,
				Warning{Kind: "truncated data CRC", Pos: dataStart + size})
			continue
		}

		sec.CRCDRead = uint16(data[dataStart+size])<<8 |
			uint16(data[dataStart+size+1])
		sec.CRCDCalc = CRC16(data[damPos:dataStart+size], 0xFFFF)
		if sec.CRCDCalc != sec.CRCDRead {
			sec.Status |= StatCRCDataBad
		}
	}
}
