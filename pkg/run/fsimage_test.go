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

package run

import (
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxkeep/fluxkeep/pkg/format/atr"
	"github.com/fluxkeep/fluxkeep/pkg/fs/atari"
)

// writeAtariImage builds a DOS 2.0 SD disk with one file and writes it
// to dir, in ATR framing when header is set, XFD otherwise.
func writeAtariImage(t *testing.T, dir string, header bool) string {

	img, err := atr.ParseXFD(make([]byte, atr.SizeSD))
	require.NoError(t, err)

	fs, err := atari.Format(img, atari.KindDOS2)
	require.NoError(t, err)
	require.NoError(t,
		fs.WriteFile("HELLO.TXT", bytes.Repeat([]byte{0x55}, 300)))

	file := filepath.Join(dir, "test.xfd")
	data := img.Data
	if header {
		file = filepath.Join(dir, "test.atr")
		var buf bytes.Buffer
		require.NoError(t, img.WriteATR(&buf))
		data = buf.Bytes()
	}
	require.NoError(t, ioutil.WriteFile(file, data, 0644))
	return file
}

func TestMountAtari(t *testing.T) {

	file := writeAtariImage(t, t.TempDir(), true)

	m, err := mountImage(file)
	require.NoError(t, err)
	require.NotNil(t, m.atari)
	assert.Nil(t, m.fat)
	assert.Equal(t, "Atari DOS 2.x", m.describe())

	data, err := m.extract("HELLO.TXT")
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{0x55}, 300), data)

	_, err = m.extract("NOPE.TXT")
	assert.Error(t, err)
}

func TestMountRejectsJunk(t *testing.T) {

	file := filepath.Join(t.TempDir(), "junk.bin")
	require.NoError(t, ioutil.WriteFile(file, []byte("not a disk"), 0644))

	_, err := mountImage(file)
	assert.Error(t, err)
}

func TestPutRemoveSaveRoundTrip(t *testing.T) {

	for _, header := range []bool{true, false} {

		file := writeAtariImage(t, t.TempDir(), header)
		before, err := ioutil.ReadFile(file)
		require.NoError(t, err)

		m, err := mountImage(file)
		require.NoError(t, err)

		require.NoError(t, m.put("EXTRA.DAT", []byte("fresh content")))
		require.NoError(t, m.remove("HELLO.TXT"))
		require.NoError(t, m.save(file))

		after, err := ioutil.ReadFile(file)
		require.NoError(t, err)
		assert.Equal(t, len(before), len(after), "framing must be preserved")

		m, err = mountImage(file)
		require.NoError(t, err)

		data, err := m.extract("EXTRA.DAT")
		require.NoError(t, err)
		assert.Equal(t, []byte("fresh content"), data)

		_, err = m.extract("HELLO.TXT")
		assert.Error(t, err)
	}
}

func TestReadImageFileRepoRef(t *testing.T) {

	dir := t.TempDir()
	file := writeAtariImage(t, dir, true)

	os.Setenv("FLUXKEEP_REPO", dir)
	defer os.Unsetenv("FLUXKEEP_REPO")

	viaRepo, err := readImageFile("repo://" + filepath.Base(file))
	require.NoError(t, err)
	direct, err := ioutil.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, direct, viaRepo)
}
