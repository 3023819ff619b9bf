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
	log "github.com/sirupsen/logrus"
)

// Extract reads a file by walking its cluster chain. Looped chains
// return what was gathered before the loop together with an error.
func (v *Volume) Extract(filename string) ([]byte, error) {
	e, err := v.Lookup(filename)
	if err != nil {
		return nil, err
	}
	if e.Size == 0 || e.Cluster < firstCluster {
		return nil, nil
	}

	clusters, loops := v.Chain(e.Cluster)
	out := make([]byte, 0, e.Size)
	for _, c := range clusters {
		data, err := v.ReadCluster(c)
		if err != nil {
			return nil, err
		}
		out = append(out, data...)
	}
	if len(out) > e.Size {
		out = out[:e.Size]
	}
	if loops {
		return out, errf(ErrInvalid, "%s: cluster chain loops", filename)
	}
	return out, nil
}

// WriteFile creates a new root-directory file. Clusters are allocated
// as a linked chain; on failure nothing is left allocated.
func (v *Volume) WriteFile(filename string, data []byte) error {
	if err := v.guardWrite(); err != nil {
		return err
	}
	name, ext, err := split83(filename)
	if err != nil {
		return err
	}
	if _, err := v.Lookup(filename); err == nil {
		return errf(ErrExists, "%s already exists", filename)
	}

	idx := v.freeDirIndex()
	if idx < 0 {
		return errf(ErrDirFull, "root directory is full")
	}

	first := 0
	if len(data) > 0 {
		cs := v.ClusterSize()
		needed := (len(data) + cs - 1) / cs
		chain, err := v.AllocChain(needed)
		if err != nil {
			return err
		}
		for i, c := range chain {
			end := (i + 1) * cs
			if end > len(data) {
				end = len(data)
			}
			if err := v.WriteCluster(c, data[i*cs:end]); err != nil {
				v.FreeChain(chain[0])
				return err
			}
		}
		first = chain[0]
	}

	v.writeDirEntry(idx, name, ext, AttrArchive, first, len(data))
	v.Flush()

	log.WithFields(log.Fields{
		"file":  filename,
		"bytes": len(data),
	}).Debug("file written")

	return nil
}

// Delete removes a file: its chain is freed and the directory slot is
// marked reusable.
func (v *Volume) Delete(filename string) error {
	if err := v.guardWrite(); err != nil {
		return err
	}
	e, err := v.Lookup(filename)
	if err != nil {
		return err
	}
	if e.Cluster >= firstCluster {
		v.FreeChain(e.Cluster)
	}
	v.data[v.rootOffset(e.Index)] = direntFree
	v.Flush()
	return nil
}
