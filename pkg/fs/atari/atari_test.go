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

package atari

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxkeep/fluxkeep/pkg/format/atr"
)

func blankSD(t *testing.T) *atr.Image {
	t.Helper()
	img, err := atr.ParseXFD(make([]byte, atr.SizeSD))
	require.NoError(t, err)
	return img
}

func blankED(t *testing.T) *atr.Image {
	t.Helper()
	img, err := atr.ParseXFD(make([]byte, atr.SizeED))
	require.NoError(t, err)
	return img
}

func TestFormatSD(t *testing.T) {

	fs, err := Format(blankSD(t), KindDOS2)
	require.NoError(t, err)

	// 716 data sectors minus VTOC and directory; sector 720 is out of
	// the classic bitmap's reach.
	assert.Equal(t, 707, fs.FreeSectors())
	assert.Equal(t, 707, fs.TotalSectors())
	assert.Equal(t, KindDOS2, fs.Kind)

	assert.False(t, fs.IsFree(1))
	assert.False(t, fs.IsFree(360))
	assert.False(t, fs.IsFree(365))
	assert.False(t, fs.IsFree(720))
	assert.True(t, fs.IsFree(4))
	assert.True(t, fs.IsFree(719))
	assert.Empty(t, fs.List())
}

func TestFormatMyDOSReachesSector720(t *testing.T) {

	fs, err := Format(blankSD(t), KindMyDOS)
	require.NoError(t, err)

	assert.Equal(t, 708, fs.FreeSectors())
	assert.True(t, fs.IsFree(720))

	// The allocator may hand out 720 only on MyDOS.
	for s := fs.FindFree(700); s != 720; s = fs.FindFree(s + 1) {
		require.NotZero(t, s)
		fs.Allocate(s)
	}
}

func TestDOS2NeverAllocatesSector720(t *testing.T) {

	fs, err := Format(blankSD(t), KindDOS2)
	require.NoError(t, err)

	for s := fs.FindFree(4); s != 0; s = fs.FindFree(s + 1) {
		require.NotEqual(t, 720, s)
		fs.Allocate(s)
	}
	assert.Equal(t, 0, fs.FreeSectors())
}

func TestFormatDOS25SecondVTOC(t *testing.T) {

	fs, err := Format(blankED(t), KindDOS25)
	require.NoError(t, err)

	// 707 below 720 plus 721..1023; sector 720 stays reserved.
	assert.Equal(t, 707+303, fs.FreeSectors())
	assert.False(t, fs.IsFree(720))
	assert.True(t, fs.IsFree(721))
	assert.True(t, fs.IsFree(1023))

	fs.Allocate(721)
	assert.False(t, fs.IsFree(721))
	assert.Equal(t, 707+302, fs.FreeSectors())

	_, err = Format(blankSD(t), KindDOS25)
	assert.Error(t, err)
}

func TestWriteAndExtract(t *testing.T) {

	fs, err := Format(blankSD(t), KindDOS2)
	require.NoError(t, err)

	data := bytes.Repeat([]byte{0xAA}, 300)
	require.NoError(t, fs.WriteFile("TEST.DAT", data))

	entries := fs.List()
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, byte(FlagInUse|FlagDOS2), e.Status)
	assert.Equal(t, 3, e.SectorCount)
	assert.Equal(t, 4, e.FirstSector)
	assert.Equal(t, "TEST.DAT", e.FullName())

	assert.Equal(t, 704, fs.FreeSectors())

	got, err := fs.Extract("TEST.DAT")
	require.NoError(t, err)
	assert.Equal(t, data, got)

	// Remount from the raw image and read it back again.
	fs2, err := Open(fs.Img)
	require.NoError(t, err)
	got, err = fs2.Extract("D1:test.dat")
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestWriteRejectsDuplicateAndFull(t *testing.T) {

	fs, err := Format(blankSD(t), KindDOS2)
	require.NoError(t, err)

	require.NoError(t, fs.WriteFile("A.BIN", []byte{1}))
	assert.Equal(t, ErrExists, fs.WriteFile("A.BIN", []byte{2}))

	big := make([]byte, 707*125)
	assert.Equal(t, ErrDiskFull, fs.WriteFile("BIG.DAT", big))
}

func TestWriteUndoOnExhaustion(t *testing.T) {

	fs, err := Format(blankSD(t), KindDOS2)
	require.NoError(t, err)

	// Inflate the free counter so the up-front check passes while the
	// bitmap can only satisfy part of the request.
	for s := fs.FindFree(4); s != 0; s = fs.FindFree(s + 1) {
		fs.Allocate(s)
	}
	fs.Free(4)
	fs.Free(5)
	fs.adjustFree(4, 5)
	before := fs.FreeSectors()

	err = fs.WriteFile("TOOBIG.DAT", make([]byte, 5*125))
	assert.Equal(t, ErrDiskFull, err)

	// The two real sectors were given back.
	assert.True(t, fs.IsFree(4))
	assert.True(t, fs.IsFree(5))
	assert.Equal(t, before, fs.FreeSectors())
	assert.Empty(t, fs.List())
}

func TestDeleteAndRecoverSpace(t *testing.T) {

	fs, err := Format(blankSD(t), KindDOS2)
	require.NoError(t, err)

	require.NoError(t, fs.WriteFile("GONE.TXT", make([]byte, 500)))
	free := fs.FreeSectors()

	require.NoError(t, fs.Delete("GONE.TXT"))
	assert.Equal(t, free+4, fs.FreeSectors())
	assert.Empty(t, fs.List())
	assert.Len(t, fs.ListDeleted(), 1)

	_, err = fs.Extract("GONE.TXT")
	assert.Equal(t, ErrNotFound, err)
}

func TestLockedFile(t *testing.T) {

	fs, err := Format(blankSD(t), KindDOS2)
	require.NoError(t, err)

	require.NoError(t, fs.WriteFile("KEEP.ME", []byte{1, 2, 3}))
	require.NoError(t, fs.SetLocked("KEEP.ME", true))

	assert.Equal(t, ErrLocked, fs.Delete("KEEP.ME"))
	assert.Equal(t, ErrLocked, fs.Rename("KEEP.ME", "NEW.ME"))

	require.NoError(t, fs.SetLocked("KEEP.ME", false))
	require.NoError(t, fs.Rename("KEEP.ME", "NEW.ME"))
	_, err = fs.Lookup("NEW.ME")
	assert.NoError(t, err)
}

func TestBackPatchedChain(t *testing.T) {

	fs, err := Format(blankSD(t), KindDOS2)
	require.NoError(t, err)

	require.NoError(t, fs.WriteFile("CHAIN.DAT", make([]byte, 300)))

	// First sector links to the second, file number is the entry index.
	sec := fs.Img.ReadSector(4)
	l := fs.parseLink(sec)
	assert.Equal(t, 0, l.FileNum)
	assert.Equal(t, 5, l.Next)
	assert.Equal(t, 125, l.Used)
	assert.False(t, l.Short)

	last := fs.Img.ReadSector(6)
	l = fs.parseLink(last)
	assert.Equal(t, 0, l.Next)
	assert.Equal(t, 50, l.Used)
	assert.True(t, l.Short)
}

func TestParseFilename(t *testing.T) {

	name, ext, err := ParseFilename("D1:games.bas")
	require.NoError(t, err)
	assert.Equal(t, "GAMES", name)
	assert.Equal(t, "BAS", ext)

	name, ext, err = ParseFilename("D:README")
	require.NoError(t, err)
	assert.Equal(t, "README", name)
	assert.Equal(t, "", ext)

	for _, bad := range []string{"", "WAYTOOLONGNAME.X", "A.LONG", "BAD NAME", "A*B"} {
		_, _, err := ParseFilename(bad)
		assert.Equal(t, ErrBadName, err, bad)
	}
}
