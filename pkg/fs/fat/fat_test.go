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

package fat

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxkeep/fluxkeep/pkg/binutil"
)

// build360k creates a freshly formatted 5.25" DSDD 360K FAT12 image:
// 720 sectors of 512 bytes, 2 sectors per cluster, 2 FATs of 2
// sectors, 112 root entries.
func build360k() []byte {
	data := make([]byte, 368640)
	copy(data[3:11], "MSDOS5.0")
	binutil.PutU16LE(data, 11, 512)
	data[13] = 2
	binutil.PutU16LE(data, 14, 1)
	data[16] = 2
	binutil.PutU16LE(data, 17, 112)
	binutil.PutU16LE(data, 19, 720)
	data[21] = 0xFD
	binutil.PutU16LE(data, 22, 2)
	binutil.PutU16LE(data, 510, bootSig)

	for _, off := range []int{512, 1536} {
		data[off], data[off+1], data[off+2] = 0xFD, 0xFF, 0xFF
	}
	return data
}

// buildBoundary creates a minimal FAT image whose data area holds
// exactly the given number of clusters (one sector each).
func buildBoundary(clusters int) []byte {
	const fatSectors = 16
	total := 1 + 2*fatSectors + 1 + clusters
	data := make([]byte, total*512)
	copy(data[3:11], "MSDOS5.0")
	binutil.PutU16LE(data, 11, 512)
	data[13] = 1
	binutil.PutU16LE(data, 14, 1)
	data[16] = 2
	binutil.PutU16LE(data, 17, 16)
	binutil.PutU16LE(data, 19, uint16(total))
	data[21] = 0xF8
	binutil.PutU16LE(data, 22, fatSectors)
	binutil.PutU16LE(data, 510, bootSig)
	return data
}

func TestDetect360K(t *testing.T) {

	det := Detect(build360k())
	require.True(t, det.Valid)

	assert.Equal(t, TypeFAT12, det.Type)
	assert.GreaterOrEqual(t, det.Confidence, 90)
	require.NotNil(t, det.Geometry)
	assert.Contains(t, det.Geometry.Name, "360K")
	assert.Equal(t, PlatformPC, det.Platform)
	assert.False(t, det.BootSigMissing)
	assert.False(t, det.FATMismatch)
}

func TestDetectRejects(t *testing.T) {

	det := Detect(make([]byte, 100))
	assert.False(t, det.Valid)

	// Right size for a 720K disk but no BPB: low-confidence guess.
	det = Detect(make([]byte, 1440*512))
	assert.False(t, det.Valid)
	assert.Equal(t, 20, det.Confidence)
	require.NotNil(t, det.Geometry)

	junk := make([]byte, 4096)
	junk[11] = 13 // absurd sector size
	det = Detect(junk)
	assert.False(t, det.Valid)
	assert.Equal(t, 0, det.Confidence)
}

func TestClusterCountBoundary(t *testing.T) {

	// Exactly 4085 data clusters tips the volume into FAT16.
	det := Detect(buildBoundary(4085))
	require.True(t, det.Valid)
	assert.Equal(t, TypeFAT16, det.Type)

	det = Detect(buildBoundary(4084))
	require.True(t, det.Valid)
	assert.Equal(t, TypeFAT12, det.Type)
}

func TestFAT12PackedEntries(t *testing.T) {

	v, err := Open(build360k())
	require.NoError(t, err)
	assert.Equal(t, TypeFAT12, v.Type)
	assert.Equal(t, 354, v.DataClusters)

	require.NoError(t, v.SetEntry(2, 0xABC))
	require.NoError(t, v.SetEntry(3, 0x123))

	e, err := v.Entry(2)
	require.NoError(t, err)
	assert.Equal(t, 0xABC, e)
	e, err = v.Entry(3)
	require.NoError(t, err)
	assert.Equal(t, 0x123, e)

	// Rewriting one half must not disturb the other.
	require.NoError(t, v.SetEntry(2, 0xFFF))
	e, _ = v.Entry(3)
	assert.Equal(t, 0x123, e)

	_, err = v.Entry(1)
	assert.True(t, IsKind(err, ErrRange))
	_, err = v.Entry(v.LastCluster + 1)
	assert.True(t, IsKind(err, ErrRange))
}

func TestFreeSpaceMatchesClusters(t *testing.T) {

	v, err := Open(build360k())
	require.NoError(t, err)

	assert.Equal(t, 1024, v.ClusterSize())
	assert.Equal(t, v.FreeClusters()*1024, v.FreeSpace())
	assert.Equal(t, 354, v.FreeClusters())
}

func TestWriteExtractDelete(t *testing.T) {

	v, err := Open(build360k())
	require.NoError(t, err)

	data := bytes.Repeat([]byte{0x5A}, 3000)
	require.NoError(t, v.WriteFile("HELLO.TXT", data))

	entries := v.List()
	require.Len(t, entries, 1)
	assert.Equal(t, "HELLO.TXT", entries[0].FullName())
	assert.Equal(t, 3000, entries[0].Size)
	assert.Equal(t, 354-3, v.FreeClusters())

	got, err := v.Extract("hello.txt")
	require.NoError(t, err)
	assert.Equal(t, data, got)

	// The FAT copies must be identical after the write.
	img := v.Bytes()
	assert.Equal(t, img[512:1536], img[1536:2560])

	assert.True(t, IsKind(v.WriteFile("HELLO.TXT", nil), ErrExists))

	require.NoError(t, v.Delete("HELLO.TXT"))
	assert.Equal(t, 354, v.FreeClusters())
	_, err = v.Extract("HELLO.TXT")
	assert.True(t, IsKind(err, ErrNotFound))
}

func TestChainLoopDetection(t *testing.T) {

	v, err := Open(build360k())
	require.NoError(t, err)

	require.NoError(t, v.SetEntry(2, 3))
	require.NoError(t, v.SetEntry(3, 2))

	clusters, loops := v.Chain(2)
	assert.True(t, loops)
	assert.Equal(t, []int{2, 3}, clusters)
}

func TestAllocChainUndo(t *testing.T) {

	v, err := Open(build360k())
	require.NoError(t, err)

	_, err = v.AllocChain(v.DataClusters + 1)
	assert.True(t, IsKind(err, ErrFull))
	assert.Equal(t, 354, v.FreeClusters())
}

func TestAllocChainContinuesAfterLastAlloc(t *testing.T) {

	v, err := Open(build360k())
	require.NoError(t, err)

	first, err := v.AllocChain(3)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 4}, first)

	// freed clusters below the last allocation are not revisited
	require.NoError(t, v.SetEntry(2, 0))

	second, err := v.AllocChain(2)
	require.NoError(t, err)
	assert.Equal(t, []int{5, 6}, second)
}

func TestMirrorMismatchRefusesWrites(t *testing.T) {

	data := build360k()
	data[1600] = 0xAB // corrupt FAT2

	v, err := Open(data)
	require.NoError(t, err)
	assert.True(t, v.MirrorMismatch)

	err = v.WriteFile("X.DAT", []byte{1})
	assert.True(t, IsKind(err, ErrMirror))
	assert.True(t, IsKind(v.SetEntry(2, 1), ErrMirror))

	v.HealMirrors()
	assert.False(t, v.MirrorMismatch)
	assert.Equal(t, data[512:1536], data[1536:2560])
	require.NoError(t, v.WriteFile("X.DAT", []byte{1}))
}

func TestLabelSync(t *testing.T) {

	v, err := Open(build360k())
	require.NoError(t, err)
	assert.Equal(t, "", v.Label())

	require.NoError(t, v.SetLabel("testdisk"))
	assert.Equal(t, "TESTDISK", v.Label())

	// Both copies present: BPB region and a VOLUME_ID root entry.
	assert.Equal(t, []byte("TESTDISK   "), v.Bytes()[43:54])
	found := false
	for i := 0; i < v.RootEntries; i++ {
		if e := v.readDirEntry(i); e != nil && e.IsLabel() {
			found = true
		}
	}
	assert.True(t, found)

	// The label entry does not show up as a file.
	assert.Empty(t, v.List())
}
