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

package dmk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxkeep/fluxkeep/pkg/binutil"
	"github.com/fluxkeep/fluxkeep/pkg/disk"
)

const testTrackLen = 1024

// build assembles a single-sided DMK image from per-track pointer tables
// and data areas.
func build(tracks ...[]byte) []byte {

	hdr := make([]byte, headerSize)
	hdr[1] = byte(len(tracks))
	binutil.PutU16LE(hdr, 2, testTrackLen)
	hdr[4] = 0x10 // single sided

	out := hdr
	for _, t := range tracks {
		buf := make([]byte, testTrackLen)
		copy(buf, t)
		out = append(out, buf...)
	}
	return out
}

// track builds a track buffer with IDAM pointers; mfmMask bit i set means
// pointer i is MFM.
func track(offsets []int, mfmMask uint64) []byte {
	buf := make([]byte, testTrackLen)
	for i, off := range offsets {
		ptr := uint16(off) & idamOffsetMask
		if mfmMask&(1<<uint(i)) != 0 {
			ptr |= idamDensityBit
		}
		binutil.PutU16LE(buf, i*2, ptr)
	}
	return buf
}

func TestClassifyPerTrack(t *testing.T) {

	img, err := Parse(build(
		track([]int{200, 500}, 0x3), // both MFM
		track([]int{200, 500}, 0x0), // both FM
		track([]int{200, 500}, 0x1), // mixed on one track
	))
	require.NoError(t, err)

	require.Len(t, img.Tracks, 3)
	assert.Equal(t, DensityMFM, img.Tracks[0].Density)
	assert.Equal(t, DensityFM, img.Tracks[1].Density)
	assert.Equal(t, DensityMixed, img.Tracks[2].Density)
	assert.Equal(t, DensityMixed, img.Density)

	require.Len(t, img.Tracks[0].IDAMs, 2)
	assert.Equal(t, 200, img.Tracks[0].IDAMs[0].Offset)
	assert.True(t, img.Tracks[0].IDAMs[0].MFM)
	assert.False(t, img.Tracks[1].IDAMs[0].MFM)
}

func TestImageWideUnion(t *testing.T) {

	// per-track pure FM and pure MFM still union to mixed
	img, err := Parse(build(
		track([]int{200}, 0x0),
		track([]int{200}, 0x1),
	))
	require.NoError(t, err)

	assert.Equal(t, DensityFM, img.Tracks[0].Density)
	assert.Equal(t, DensityMFM, img.Tracks[1].Density)
	assert.Equal(t, DensityMixed, img.Density)
}

func TestEmptyTableFallback(t *testing.T) {

	// no IDAM pointers, but the data area carries MFM sync triples
	buf := make([]byte, testTrackLen)
	buf[idamTable+50] = 0xA1
	buf[idamTable+51] = 0xA1
	buf[idamTable+52] = 0xA1

	img, err := Parse(build(buf))
	require.NoError(t, err)
	assert.Equal(t, DensityMFM, img.Tracks[0].Density)

	// nothing at all stays unknown
	img, err = Parse(build(make([]byte, testTrackLen)))
	require.NoError(t, err)
	assert.Equal(t, DensityUnknown, img.Tracks[0].Density)
}

func TestParseRejects(t *testing.T) {

	_, err := Parse(nil)
	assert.Error(t, err)

	// header promises more tracks than the file holds
	data := build(track([]int{200}, 0))
	data[1] = 40
	_, err = Parse(data)
	assert.Error(t, err)
}

func TestProbe(t *testing.T) {
	c := New()
	assert.True(t, c.Probe(build(track([]int{200}, 0))))
	assert.False(t, c.Probe(make([]byte, 5000)))
	assert.False(t, c.Probe(nil))
}

func TestOpenMapsToDiskModel(t *testing.T) {

	data := build(
		track([]int{200}, 0x1),
		track([]int{200}, 0x0),
	)
	data[0] = 0xFF // write protected

	par := disk.DefaultParams()
	d, err := New().Open(data, &par)
	require.NoError(t, err)

	assert.Equal(t, "dmk", d.Format)
	assert.True(t, d.WriteProt)
	assert.NotZero(t, d.Protection&disk.ProtMixedDensity)
	require.Len(t, d.Tracks, 2)
	assert.Equal(t, disk.EncMFM, d.Tracks[0].Encoding)
	assert.Equal(t, disk.EncFM, d.Tracks[1].Encoding)
	assert.Len(t, d.Tracks[0].Bits, testTrackLen-idamTable)
}
