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

package woz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxkeep/fluxkeep/pkg/binutil"
	"github.com/fluxkeep/fluxkeep/pkg/disk"
)

//
func chunk(id string, payload []byte) []byte {
	out := make([]byte, 8, 8+len(payload))
	copy(out, id)
	binutil.PutU32LE(out, 4, uint32(len(payload)))
	return append(out, payload...)
}

// buildV21 assembles a two-track WOZ 2.1 image: quarter-track 0 carries
// both a bitstream and overriding flux data, quarter-track 4 carries bits
// only. Track data lives in 512-byte blocks 3, 4 and 5.
func buildV21() []byte {

	var buf []byte
	buf = append(buf, "WOZ2"...)
	buf = append(buf, 0xFF, 0x0A, 0x0D, 0x0A, 0, 0, 0, 0)

	info := make([]byte, 60)
	info[0] = 3 // info version, makes this 2.1
	info[1] = Disk525
	copy(info[5:], "FluxKeep fixtures")
	info[37] = 1  // sides
	info[39] = 32 // bit timing, 4 µs cells
	binutil.PutU16LE(info, 44, 1) // largest track
	binutil.PutU16LE(info, 46, 5) // flux block
	buf = append(buf, chunk("INFO", info)...)

	tmap := make([]byte, MaxTracks)
	for i := range tmap {
		tmap[i] = 0xFF
	}
	tmap[0] = 0
	tmap[4] = 1
	buf = append(buf, chunk("TMAP", tmap)...)

	trks := make([]byte, 16)
	binutil.PutU16LE(trks, 0, 3)    // slot 0: block 3
	binutil.PutU16LE(trks, 2, 1)    // 1 block
	binutil.PutU32LE(trks, 4, 800)  // bits
	binutil.PutU16LE(trks, 8, 4)    // slot 1: block 4
	binutil.PutU16LE(trks, 10, 1)
	binutil.PutU32LE(trks, 12, 800)
	buf = append(buf, chunk("TRKS", trks)...)

	fluxEntries := make([]byte, 8)
	binutil.PutU16LE(fluxEntries, 0, 5)   // slot 0 only
	binutil.PutU16LE(fluxEntries, 2, 1)
	binutil.PutU32LE(fluxEntries, 4, 300)
	buf = append(buf, chunk("FLUX", fluxEntries)...)

	for len(buf) < 3*512 {
		buf = append(buf, 0)
	}

	track := make([]byte, 512)
	for i := 0; i < 100; i++ {
		track[i] = 0xAA
	}
	buf = append(buf, track...) // block 3
	buf = append(buf, track...) // block 4

	flux := make([]byte, 512)
	for i := 0; i < 300; i++ {
		flux[i] = 0x20 // 32 ticks = 4 µs
	}
	buf = append(buf, flux...) // block 5

	return buf
}

func TestParseV21(t *testing.T) {

	img, err := Parse(buildV21())
	require.NoError(t, err)

	assert.Equal(t, 2, img.Version)
	assert.True(t, img.IsV21())
	assert.Equal(t, byte(Disk525), img.DiskType)
	assert.Equal(t, byte(32), img.BitTiming)
	assert.Equal(t, "FluxKeep fixtures", img.Creator)
	assert.Equal(t, 2, img.TracksPresent())
}

func TestFluxOverride(t *testing.T) {

	img, err := Parse(buildV21())
	require.NoError(t, err)

	// quarter 0 has a FLUX entry: real flux wins over the bitstream
	flux := img.FluxTimed(0)
	require.Len(t, flux, 300)
	for _, f := range flux {
		assert.Equal(t, uint32(32*FluxTickNS), f)
	}

	// quarter 4 has bits only: one pulse per 1-bit, 0xAA alternates so
	// the first pulse is one cell and the rest are two
	flux = img.FluxTimed(4)
	require.Len(t, flux, 400)
	assert.Equal(t, uint32(4000), flux[0])
	for _, f := range flux[1:] {
		assert.Equal(t, uint32(8000), f)
	}

	assert.Nil(t, img.FluxTimed(8))
}

func TestParseV1(t *testing.T) {

	var buf []byte
	buf = append(buf, "WOZ1"...)
	buf = append(buf, 0xFF, 0x0A, 0x0D, 0x0A, 0, 0, 0, 0)

	info := make([]byte, 60)
	info[0] = 1
	info[1] = Disk525
	copy(info[5:], "old capture")
	buf = append(buf, chunk("INFO", info)...)

	tmap := make([]byte, MaxTracks)
	for i := range tmap {
		tmap[i] = 0xFF
	}
	tmap[0] = 0
	buf = append(buf, chunk("TMAP", tmap)...)

	track := make([]byte, v1TrackSize)
	track[0], track[1], track[2] = 0xD5, 0xAA, 0x96
	binutil.PutU16LE(track, v1DataSize, 24)
	buf = append(buf, chunk("TRKS", track)...)

	img, err := Parse(buf)
	require.NoError(t, err)

	assert.Equal(t, 1, img.Version)
	assert.False(t, img.IsV21())
	assert.Equal(t, byte(32), img.BitTiming) // 5.25" default
	assert.Equal(t, 1, img.TracksPresent())

	trk := img.TrackAtQuarter(0)
	require.NotNil(t, trk)
	assert.Equal(t, 24, trk.BitCount)
	assert.Equal(t, []byte{0xD5, 0xAA, 0x96}, trk.Bits)
}

func TestParseRejects(t *testing.T) {
	_, err := Parse([]byte("SCP junk data..."))
	assert.Error(t, err)

	_, err = Parse([]byte("WOZ2\x00\x0A\x0D\x0A????"))
	assert.Error(t, err)
}

func TestOpenMapsToDiskModel(t *testing.T) {

	par := disk.DefaultParams()
	d, err := New().Open(buildV21(), &par)
	require.NoError(t, err)

	assert.Equal(t, "woz", d.Format)
	require.Len(t, d.Tracks, 2)

	t0 := d.TrackAtQuarter(0)
	require.NotNil(t, t0)
	assert.Equal(t, disk.EncGCR, t0.Encoding)
	assert.Equal(t, 4000.0, t0.BitCellNS)
	assert.Len(t, t0.FluxNS, 300)

	t1 := d.TrackAtQuarter(4)
	require.NotNil(t, t1)
	assert.Equal(t, 1, t1.Cylinder)
	assert.Len(t, t1.FluxNS, 400)
}

func TestSynthesizeFlux(t *testing.T) {

	// 1111: four pulses of one cell each
	flux := SynthesizeFlux([]byte{0xF0}, 4, 8)
	assert.Equal(t, []uint32{1000, 1000, 1000, 1000}, flux)

	// 1001: the zeros fold into the following pulse
	flux = SynthesizeFlux([]byte{0x90}, 4, 8)
	assert.Equal(t, []uint32{1000, 3000}, flux)
}
