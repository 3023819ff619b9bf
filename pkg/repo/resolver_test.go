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

package repo

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsReference(t *testing.T) {
	assert.True(t, IsReference("repo://disks/game.atr"))
	assert.False(t, IsReference("/tmp/game.atr"))
	assert.False(t, IsReference("game.atr"))
}

func TestResolve(t *testing.T) {

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "disks"), 0755))
	require.NoError(t, ioutil.WriteFile(
		filepath.Join(dir, "disks", "game.atr"), []byte("payload"), 0644))

	data, err := ReadImage("repo://disks/game.atr", dir)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)

	_, err = ReadImage("repo://disks/missing.atr", dir)
	assert.Error(t, err)

	_, err = ReadImage("repo://game.atr", "")
	assert.EqualError(t, err, "image repository is not enabled")

	_, err = ReadImage("/etc/passwd", dir)
	assert.Error(t, err)
}

func TestResolveRejectsEscape(t *testing.T) {
	for _, ref := range []string{
		"repo://../secret",
		"repo://disks/../../secret",
		"repo:///etc/passwd",
	} {
		_, err := Resolve(ref, t.TempDir())
		assert.Error(t, err, ref)
	}
}
