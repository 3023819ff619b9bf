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

// Package kryoflux decodes KryoFlux raw stream files: a variable-length
// flux block grammar interleaved with out-of-band control blocks. The
// decoder validates the stream-position invariant at every StreamInfo
// checkpoint and reconstructs per-revolution timing from the index
// pulses, including the sub-cell split of the cell straddling each
// index signal.
package kryoflux

import (
	"fmt"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

// ErrorKind classifies a fatal stream error.
type ErrorKind int

const (
	MissingData ErrorKind = iota
	InvalidCode
	WrongPosition
	DeviceBufferOverflow
	DeviceNoIndex
	InvalidOOB
	MissingEnd
	IndexReferencePastEnd
	MissingIndex
)

//
func (k ErrorKind) String() string {
	switch k {
	case MissingData:
		return "missing data"
	case InvalidCode:
		return "invalid code"
	case WrongPosition:
		return "wrong stream position"
	case DeviceBufferOverflow:
		return "device buffer overflow"
	case DeviceNoIndex:
		return "device detected no index signal"
	case InvalidOOB:
		return "invalid OOB block"
	case MissingEnd:
		return "missing stream end"
	case IndexReferencePastEnd:
		return "index reference past end of stream"
	case MissingIndex:
		return "missing or inconsistent index"
	default:
		return "unknown"
	}
}

// StreamError is the only error type the decoder returns.
type StreamError struct {
	Kind ErrorKind
	Pos  int // byte offset into the input where the error was detected
}

//
func (e *StreamError) Error() string {
	return fmt.Sprintf("kryoflux stream: %s at offset %d", e.Kind, e.Pos)
}

//
func streamErr(kind ErrorKind, pos int) error {
	return &StreamError{Kind: kind, Pos: pos}
}

// Default clocks. The exact rational form matters: statistics must be
// bit-exact reproducible.
const (
	sckNumerator = 18432000 * 73
)

//
func DefaultSck() float64 {
	return float64(sckNumerator) / 14 / 4
}

//
func DefaultIck() float64 {
	return DefaultSck() / 8
}

// Index locates one index-pulse event within the flux sequence.
type Index struct {
	StreamPos     uint32
	SampleCounter uint32
	IndexCounter  uint32

	// derived during index analysis
	FluxPos   int
	PreIndex  uint32 // ticks from cell start to the index signal
	PostIndex uint32 // ticks from the signal to cell end
	RevTicks  uint64 // revolution time, zero for the first index
}

// Statistics over the decoded stream.
type Statistics struct {
	MeanFlux     float64
	MinFlux      uint32
	MaxFlux      uint32
	AvgFluxPerRev float64 // transitions per complete revolution
	TransferRate float64  // bytes per second, from StreamInfo aggregation
	AvgRPM       float64
	MinRPM       float64
	MaxRPM       float64
	Revolutions  int
}

// Stream is a fully decoded KryoFlux stream file.
type Stream struct {
	Flux    []uint32 // ticks between transitions
	FluxPos []uint32 // stream position of each cell's emitting block
	Indices []Index

	HWInfo string
	SckHz  float64
	IckHz  float64

	Stats Statistics
}

// decoder states; the grammar is a small state machine, not a soup of
// early returns.
type state int

const (
	stAccumulating state = iota
	stTerminated
)

//
type decoder struct {
	data []byte
	pos  int // raw input offset

	st        state
	streamPos uint32 // decoded byte count, OOB blocks excluded
	acc       uint32 // Ovl16 accumulator

	out *Stream

	sawEnd       bool
	statDataPos  uint32
	statDataTime uint32
}

// Decode parses a raw KryoFlux stream. On any fatal condition it returns
// a StreamError and no partial output.
func Decode(data []byte) (*Stream, error) {

	d := &decoder{
		data: data,
		out: &Stream{
			SckHz: DefaultSck(),
			IckHz: DefaultIck(),
		},
	}

	if err := d.run(); err != nil {
		return nil, err
	}
	if err := d.analyzeIndices(); err != nil {
		return nil, err
	}
	d.fillStatistics()

	log.WithFields(log.Fields{
		"flux":    len(d.out.Flux),
		"indices": len(d.out.Indices),
		"sck":     d.out.SckHz,
	}).Debug("kryoflux stream decoded")

	return d.out, nil
}

//
func (d *decoder) run() error {

	if len(d.data) == 0 {
		return streamErr(MissingData, 0)
	}

	for d.st != stTerminated {

		if d.pos >= len(d.data) {
			return streamErr(MissingEnd, d.pos)
		}

		hdr := d.data[d.pos]

		switch {
		case hdr <= 0x07: // Flux2
			if d.pos+1 >= len(d.data) {
				return streamErr(MissingData, d.pos)
			}
			d.emit(uint32(hdr)<<8 | uint32(d.data[d.pos+1]))
			d.advance(2)

		case hdr == 0x08: // Nop1
			d.advance(1)

		case hdr == 0x09: // Nop2
			if d.pos+1 >= len(d.data) {
				return streamErr(MissingData, d.pos)
			}
			d.advance(2)

		case hdr == 0x0A: // Nop3
			if d.pos+2 >= len(d.data) {
				return streamErr(MissingData, d.pos)
			}
			d.advance(3)

		case hdr == 0x0B: // Ovl16
			d.acc += 0x10000
			d.advance(1)

		case hdr == 0x0C: // Flux3
			if d.pos+2 >= len(d.data) {
				return streamErr(MissingData, d.pos)
			}
			d.emit(uint32(d.data[d.pos+1])<<8 | uint32(d.data[d.pos+2]))
			d.advance(3)

		case hdr == 0x0D: // OOB
			if err := d.oob(); err != nil {
				return err
			}

		default: // 0x0E..0xFF, Flux1
			d.emit(uint32(hdr))
			d.advance(1)
		}
	}

	return nil
}

// advance moves past a flux-layer block, counting its bytes into the
// stream position.
func (d *decoder) advance(n int) {
	d.pos += n
	d.streamPos += uint32(n)
}

// emit records one flux cell. The emitting block's stream position is
// kept so overflow bytes between it and an index signal can be counted
// later.
func (d *decoder) emit(v uint32) {
	d.out.Flux = append(d.out.Flux, d.acc+v)
	d.out.FluxPos = append(d.out.FluxPos, d.streamPos)
	d.acc = 0
}

//
func (d *decoder) oob() error {

	if d.pos+1 >= len(d.data) {
		return streamErr(MissingData, d.pos)
	}

	typ := d.data[d.pos+1]

	if typ == 0x0D { // EOF, no payload follows
		d.st = stTerminated
		d.pos += 2
		return nil
	}

	if d.pos+4 > len(d.data) {
		return streamErr(MissingData, d.pos)
	}
	size := int(d.data[d.pos+2]) | int(d.data[d.pos+3])<<8
	if d.pos+4+size > len(d.data) {
		return streamErr(MissingData, d.pos)
	}
	payload := d.data[d.pos+4 : d.pos+4+size]

	switch typ {

	case 0x01: // StreamInfo
		if size < 8 {
			return streamErr(InvalidOOB, d.pos)
		}
		pos := le32(payload, 0)
		if pos != d.streamPos {
			return streamErr(WrongPosition, d.pos)
		}
		d.statDataPos = pos
		d.statDataTime = le32(payload, 4)

	case 0x02: // Index
		if size < 12 {
			return streamErr(InvalidOOB, d.pos)
		}
		d.out.Indices = append(d.out.Indices, Index{
			StreamPos:     le32(payload, 0),
			SampleCounter: le32(payload, 4),
			IndexCounter:  le32(payload, 8),
		})

	case 0x03: // StreamEnd
		if size < 8 {
			return streamErr(InvalidOOB, d.pos)
		}
		switch status := le32(payload, 4); status {
		case 0:
			d.sawEnd = true
		case 1:
			return streamErr(DeviceBufferOverflow, d.pos)
		case 2:
			return streamErr(DeviceNoIndex, d.pos)
		default:
			return streamErr(InvalidOOB, d.pos)
		}

	case 0x04: // HWInfo
		d.parseHWInfo(string(payload))

	default:
		return streamErr(InvalidOOB, d.pos)
	}

	d.pos += 4 + size
	return nil
}

// parseHWInfo scans the name=value list for clock overrides.
func (d *decoder) parseHWInfo(info string) {

	if d.out.HWInfo == "" {
		d.out.HWInfo = info
	} else {
		d.out.HWInfo += "," + info
	}

	for _, kv := range strings.Split(info, ",") {
		parts := strings.SplitN(strings.TrimSpace(kv), "=", 2)
		if len(parts) != 2 {
			continue
		}
		val, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil || val <= 0 {
			continue
		}
		switch strings.TrimSpace(parts[0]) {
		case "sck":
			d.out.SckHz = val
		case "ick":
			d.out.IckHz = val
		}
	}
}

// analyzeIndices associates every index pulse with the flux cell whose
// emitting block first reaches its stream position, splits that cell
// into pre/post-signal sub-times, and derives revolution times.
func (d *decoder) analyzeIndices() error {

	s := d.out
	fidx := 0

	for i := range s.Indices {

		idx := &s.Indices[i]

		for fidx < len(s.Flux) && s.FluxPos[fidx] < idx.StreamPos {
			fidx++
		}

		if fidx >= len(s.Flux) {
			// incomplete last cell: the signal arrived at the current
			// end of the decoded stream
			if idx.StreamPos > d.streamPos {
				return streamErr(IndexReferencePastEnd, d.pos)
			}
			if idx.SampleCounter == 0 {
				return streamErr(MissingIndex, d.pos)
			}
			idx.FluxPos = len(s.Flux)
			idx.PreIndex = idx.SampleCounter
			idx.PostIndex = 0
		} else {
			total := s.Flux[fidx]
			icOverflows := total >> 16
			preOverflows := s.FluxPos[fidx] - idx.StreamPos
			if icOverflows < preOverflows {
				return streamErr(MissingIndex, d.pos)
			}
			idx.FluxPos = fidx
			idx.PreIndex = (icOverflows-preOverflows)<<16 + idx.SampleCounter
			if idx.PreIndex > total {
				return streamErr(MissingIndex, d.pos)
			}
			idx.PostIndex = total - idx.PreIndex
		}

		if i > 0 {
			prev := &s.Indices[i-1]
			var sum uint64
			start := prev.FluxPos
			if start > len(s.Flux) {
				start = len(s.Flux)
			}
			end := idx.FluxPos
			if end > len(s.Flux) {
				end = len(s.Flux)
			}
			for j := start; j < end; j++ {
				sum += uint64(s.Flux[j])
			}
			// swap the straddling cells' shares between neighbours
			sum -= uint64(prev.PreIndex)
			sum += uint64(idx.PreIndex)
			idx.RevTicks = sum

			if idx.RevTicks == 0 && idx.SampleCounter == 0 &&
				idx.PreIndex == 0 && idx.PostIndex == 0 {
				return streamErr(MissingIndex, d.pos)
			}
		}
	}

	return nil
}

//
func (d *decoder) fillStatistics() {

	s := d.out
	st := &s.Stats

	if len(s.Flux) > 0 {
		var sum uint64
		st.MinFlux = s.Flux[0]
		for _, f := range s.Flux {
			sum += uint64(f)
			if f < st.MinFlux {
				st.MinFlux = f
			}
			if f > st.MaxFlux {
				st.MaxFlux = f
			}
		}
		st.MeanFlux = float64(sum) / float64(len(s.Flux))
	}

	if d.statDataTime > 0 {
		st.TransferRate =
			float64(d.statDataPos) * 1000 / float64(d.statDataTime)
	}

	// revolutions: the first index opens an incomplete revolution which
	// is excluded from the averages
	if len(s.Indices) >= 2 {
		n := len(s.Indices) - 1
		st.Revolutions = n

		var totalTicks uint64
		minTicks := s.Indices[1].RevTicks
		maxTicks := s.Indices[1].RevTicks
		for _, idx := range s.Indices[1:] {
			totalTicks += idx.RevTicks
			if idx.RevTicks < minTicks {
				minTicks = idx.RevTicks
			}
			if idx.RevTicks > maxTicks {
				maxTicks = idx.RevTicks
			}
		}

		if totalTicks > 0 {
			st.AvgRPM = s.SckHz * float64(n) * 60 / float64(totalTicks)
		}
		if maxTicks > 0 {
			st.MinRPM = s.SckHz * 60 / float64(maxTicks)
		}
		if minTicks > 0 {
			st.MaxRPM = s.SckHz * 60 / float64(minTicks)
		}

		first := s.Indices[0].FluxPos
		last := s.Indices[len(s.Indices)-1].FluxPos
		if last > first {
			st.AvgFluxPerRev = float64(last-first) / float64(n)
		}
	}
}

// Revolution extracts the flux slice and sub-cell timing for complete
// revolution i (0-based; revolution i runs from index i to index i+1).
func (s *Stream) Revolution(i int) ([]uint32, uint32, uint32, error) {
	if i < 0 || i+1 >= len(s.Indices) {
		return nil, 0, 0, fmt.Errorf("no revolution %d in stream", i)
	}
	from := s.Indices[i].FluxPos
	to := s.Indices[i+1].FluxPos
	if to > len(s.Flux) {
		to = len(s.Flux)
	}
	return s.Flux[from:to], s.Indices[i].PostIndex, s.Indices[i+1].PreIndex, nil
}

//
func le32(b []byte, off int) uint32 {
	return uint32(b[off]) | uint32(b[off+1])<<8 |
		uint32(b[off+2])<<16 | uint32(b[off+3])<<24
}
