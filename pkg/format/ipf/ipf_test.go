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

package ipf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxkeep/fluxkeep/pkg/binutil"
	"github.com/fluxkeep/fluxkeep/pkg/disk"
)

//
func record(typ string, payload []byte) []byte {
	out := make([]byte, recHeaderSize, recHeaderSize+len(payload))
	copy(out, typ)
	binutil.PutU32BE(out, 4, uint32(recHeaderSize+len(payload)))
	return append(out, payload...)
}

//
func dumpRecord(track, side int, indexPos uint32, flux []uint16) []byte {
	payload := make([]byte, 16+len(flux)*2)
	binutil.PutU32BE(payload, 0, uint32(track))
	binutil.PutU32BE(payload, 4, uint32(side))
	binutil.PutU32BE(payload, 8, uint32(len(flux)))
	binutil.PutU32BE(payload, 12, indexPos)
	for i, f := range flux {
		binutil.PutU16BE(payload, 16+i*2, f)
	}
	return record("DUMP", payload)
}

//
func infoRecord(minTrack, maxTrack, minSide, maxSide uint32) []byte {
	payload := make([]byte, 84)
	binutil.PutU32BE(payload, 24, minTrack)
	binutil.PutU32BE(payload, 28, maxTrack)
	binutil.PutU32BE(payload, 32, minSide)
	binutil.PutU32BE(payload, 36, maxSide)
	return record("INFO", payload)
}

func TestParseCTRaw(t *testing.T) {

	var buf []byte
	buf = append(buf, record("CAPS", nil)...)
	buf = append(buf, infoRecord(0, 79, 0, 1)...)
	buf = append(buf, dumpRecord(0, 0, 10, []uint16{100, 150, 200})...)
	buf = append(buf, dumpRecord(0, 1, 0, []uint16{50, 50})...)

	img, err := Parse(buf)
	require.NoError(t, err)

	assert.Equal(t, uint32(DefaultSampleRate), img.SampleRate)
	assert.Equal(t, 79, img.MaxTrack)
	assert.Equal(t, 1, img.MaxSide)
	require.Len(t, img.Dumps, 2)

	d := img.DumpAt(0, 0)
	require.NotNil(t, d)
	assert.Equal(t, uint32(10), d.IndexPos)
	assert.Equal(t, []uint32{100, 150, 200}, d.Flux)

	// 100 ticks at 25 MHz is 4 µs
	assert.Equal(t, uint32(4000), img.TickNS(100))
}

func TestCTEISampleRate(t *testing.T) {

	ctei := make([]byte, 64)
	binutil.PutU32BE(ctei, 0, 40000000)

	var buf []byte
	buf = append(buf, record("CAPS", nil)...)
	buf = append(buf, record("CTEI", ctei)...)
	buf = append(buf, dumpRecord(5, 0, 0, []uint16{40})...)

	img, err := Parse(buf)
	require.NoError(t, err)

	assert.Equal(t, uint32(40000000), img.SampleRate)
	assert.Equal(t, uint32(1000), img.TickNS(40)) // 40 ticks at 40 MHz
}

func TestUnknownRecordsSkipped(t *testing.T) {

	var buf []byte
	buf = append(buf, record("CAPS", nil)...)
	buf = append(buf, record("XYZZ", make([]byte, 20))...)
	buf = append(buf, dumpRecord(1, 0, 0, []uint16{80})...)

	img, err := Parse(buf)
	require.NoError(t, err)
	require.Len(t, img.Dumps, 1)
	assert.Equal(t, 1, img.Dumps[0].Track)
}

func TestParseRejects(t *testing.T) {

	// first record must be CAPS
	_, err := Parse(record("INFO", make([]byte, 84)))
	assert.Error(t, err)

	// declared length beyond file end
	bad := record("CAPS", nil)
	binutil.PutU32BE(bad, 4, 4096)
	_, err = Parse(bad)
	assert.Error(t, err)

	_, err = Parse(nil)
	assert.Error(t, err)
}

func TestOpenMapsToDiskModel(t *testing.T) {

	var buf []byte
	buf = append(buf, record("CAPS", nil)...)
	buf = append(buf, dumpRecord(2, 1, 0, []uint16{100, 100})...)

	par := disk.DefaultParams()
	d, err := New().Open(buf, &par)
	require.NoError(t, err)

	assert.Equal(t, "ipf", d.Format)
	require.Len(t, d.Tracks, 1)

	trk := d.TrackAt(2, 1)
	require.NotNil(t, trk)
	assert.Equal(t, []uint32{4000, 4000}, trk.FluxNS)
}
