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

package atr

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxkeep/fluxkeep/pkg/disk"
)

// buildSD creates a 90K single-density dump where every sector is
// filled with its own sector number.
func buildSD() []byte {
	data := make([]byte, SizeSD)
	for s := 1; s <= 720; s++ {
		off := (s - 1) * 128
		for i := 0; i < 128; i++ {
			data[off+i] = byte(s)
		}
	}
	// Bootable DOS 2.x style boot sector.
	data[0] = 0x01
	data[1] = 0x03
	data[2], data[3] = 0x00, 0x07
	return data
}

func TestParseXFDSingleDensity(t *testing.T) {

	img, err := ParseXFD(buildSD())
	require.NoError(t, err)

	assert.Equal(t, DensitySD, img.Geometry.Density)
	assert.Equal(t, 128, img.Geometry.SectorSize)
	assert.Equal(t, 720, img.Geometry.TotalSectors)
	assert.Equal(t, 40, img.Geometry.Tracks)
	assert.Equal(t, 1, img.Geometry.Sides)

	sec := img.ReadSector(100)
	require.Len(t, sec, 128)
	assert.Equal(t, byte(100), sec[0])

	assert.Equal(t, DOS2x, img.Boot.DOS)
	assert.Equal(t, 3, img.Boot.BootSectors)
	assert.Equal(t, uint16(0x0700), img.Boot.LoadAddr)
}

func TestParseXFDDoubleDensityBootVariant(t *testing.T) {

	data := make([]byte, SizeDDBoot)
	img, err := ParseXFD(data)
	require.NoError(t, err)

	assert.Equal(t, DensityDD, img.Geometry.Density)
	assert.Equal(t, 256, img.Geometry.SectorSize)
	assert.Equal(t, 720, img.Geometry.TotalSectors)

	// Boot sectors stay 128 bytes; sector 4 starts right after them.
	assert.Equal(t, 384, img.Geometry.SectorOffset(4))
	assert.Len(t, img.ReadSector(2), 128)
	assert.Len(t, img.ReadSector(4), 256)
}

func TestParseXFDRejects(t *testing.T) {

	_, err := ParseXFD(make([]byte, 64))
	assert.Error(t, err)

	headered := make([]byte, SizeSD)
	headered[0], headered[1] = 0x96, 0x02
	_, err = ParseXFD(headered)
	assert.Error(t, err)
}

func TestATRRoundTrip(t *testing.T) {

	src, err := ParseXFD(buildSD())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, src.WriteATR(&buf))

	img, err := ParseATR(buf.Bytes())
	require.NoError(t, err)

	assert.True(t, img.HadHeader)
	assert.Equal(t, DensitySD, img.Geometry.Density)
	assert.Equal(t, src.Data, img.Data)
}

func TestParseATRRejects(t *testing.T) {

	_, err := ParseATR(nil)
	assert.Error(t, err)

	bad := make([]byte, 1024)
	bad[0], bad[1] = 0x96, 0x03
	_, err = ParseATR(bad)
	assert.Error(t, err)

	// Header claims more data than the file holds.
	short := make([]byte, 1024)
	short[0], short[1] = 0x96, 0x02
	short[2], short[3] = 0x00, 0x20 // 8192 paragraphs = 128K
	short[4] = 128
	_, err = ParseATR(short)
	assert.Error(t, err)
}

func TestDetectDOSVariants(t *testing.T) {

	data := buildSD()
	data[7] = 'S'
	img, err := ParseXFD(data)
	require.NoError(t, err)
	assert.Equal(t, DOSSparta, img.Boot.DOS)

	blank := make([]byte, SizeSD)
	img, err = ParseXFD(blank)
	require.NoError(t, err)
	assert.Equal(t, DOSNone, img.Boot.DOS)
}

func TestWriteSector(t *testing.T) {

	img, err := ParseXFD(buildSD())
	require.NoError(t, err)

	sec := make([]byte, 128)
	sec[0] = 0xAB
	require.NoError(t, img.WriteSector(50, sec))
	assert.Equal(t, byte(0xAB), img.ReadSector(50)[0])

	assert.Error(t, img.WriteSector(0, sec))
	assert.Error(t, img.WriteSector(721, sec))
	assert.Error(t, img.WriteSector(50, sec[:64]))
}

func TestCodecProbe(t *testing.T) {

	c := New()
	var buf bytes.Buffer
	src, _ := ParseXFD(buildSD())
	require.NoError(t, src.WriteATR(&buf))

	assert.True(t, c.Probe(buf.Bytes()))
	assert.False(t, c.Probe(buildSD()))
	assert.False(t, c.Probe(nil))
}

func TestCodecOpenAndWrite(t *testing.T) {

	c := New()
	d, err := c.Open(buildSD(), nil)
	require.NoError(t, err)

	assert.Len(t, d.Tracks, 40)

	trk := d.TrackAt(0, 0)
	require.NotNil(t, trk)
	assert.Equal(t, disk.EncFM, trk.Encoding)
	assert.Len(t, trk.Bits, 18*128)
	// Track 5 starts at sector 91.
	trk = d.TrackAt(5, 0)
	require.NotNil(t, trk)
	assert.Equal(t, byte(91), trk.Bits[0])

	var buf bytes.Buffer
	require.NoError(t, c.Write(d, &buf))

	img, err := ParseATR(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, buildSD(), img.Data)
}
