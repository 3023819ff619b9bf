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

package mfmimg

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxkeep/fluxkeep/pkg/disk"
)

func TestRoundTrip(t *testing.T) {

	w := NewWriter()
	w.SpindleTimeNS = 200000000
	w.DataBitRate = 250000
	w.SamplingRate = 24027428

	trk0 := bytes.Repeat([]byte{0x92, 0x54}, 100)
	require.NoError(t, w.AddTrack(trk0, 1600))
	require.NoError(t, w.AddTrack([]byte{0xFF, 0x80}, 9))

	var buf bytes.Buffer
	require.NoError(t, w.Close(&buf))

	img, err := Parse(buf.Bytes())
	require.NoError(t, err)

	assert.Equal(t, uint64(200000000), img.SpindleTimeNS)
	assert.Equal(t, uint64(250000), img.DataBitRate)
	assert.Equal(t, uint64(24027428), img.SamplingRate)
	require.Len(t, img.Tracks, 2)

	assert.Equal(t, trk0, img.Tracks[0].Bits)
	assert.Equal(t, 1600, img.Tracks[0].LengthBits)

	// 9 bits truncate to 2 bytes
	assert.Equal(t, []byte{0xFF, 0x80}, img.Tracks[1].Bits)
	assert.Equal(t, 9, img.Tracks[1].LengthBits)
}

func TestWriterValidation(t *testing.T) {

	w := NewWriter()
	assert.Error(t, w.AddTrack([]byte{0xFF}, 9)) // 9 bits need 2 bytes

	var buf bytes.Buffer
	require.NoError(t, w.Close(&buf))
	assert.Error(t, w.AddTrack([]byte{0xFF}, 8))
	assert.Error(t, w.Close(&buf))
}

func TestEmptyImage(t *testing.T) {

	var buf bytes.Buffer
	require.NoError(t, NewWriter().Close(&buf))

	img, err := Parse(buf.Bytes())
	require.NoError(t, err)
	assert.Empty(t, img.Tracks)
}

func TestParseRejects(t *testing.T) {
	_, err := Parse([]byte("SCP"))
	assert.Error(t, err)

	_, err = Parse(bytes.Repeat([]byte{0}, headerSize))
	assert.Error(t, err)
}

func TestCodecRoundTrip(t *testing.T) {

	d := &disk.Disk{Format: "mfm"}
	d.AddTrack(&disk.Track{
		Cylinder: 0, Head: 0, Quarter: -1,
		Encoding: disk.EncMFM,
		Bits:     bytes.Repeat([]byte{0xAA}, 50),
		BitCount: 400,
	})
	d.AddTrack(&disk.Track{
		Cylinder: 0, Head: 1, Quarter: -1,
		Encoding: disk.EncMFM,
		Bits:     bytes.Repeat([]byte{0x55}, 50),
		BitCount: 400,
	})

	var buf bytes.Buffer
	c := New()
	require.NoError(t, c.Write(d, &buf))
	assert.True(t, c.Probe(buf.Bytes()))

	par := disk.DefaultParams()
	re, err := c.Open(buf.Bytes(), &par)
	require.NoError(t, err)

	require.Len(t, re.Tracks, 2)
	assert.Equal(t, d.Tracks[0].Bits, re.Tracks[0].Bits)
	assert.Equal(t, 400, re.Tracks[0].BitCount)
	assert.Equal(t, 1, re.Tracks[1].Head)
}
