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
	"strings"

	"github.com/fluxkeep/fluxkeep/pkg/binutil"
)

// Directory entry attributes.
const (
	AttrReadOnly = 0x01
	AttrHidden   = 0x02
	AttrSystem   = 0x04
	AttrVolumeID = 0x08
	AttrDir      = 0x10
	AttrArchive  = 0x20
)

const (
	direntEnd  = 0x00
	direntFree = 0xE5
	direntSize = 32
)

// DirEntry is one 8.3 root-directory slot.
type DirEntry struct {
	Index   int
	Name    string
	Ext     string
	Attr    byte
	Cluster int
	Size    int
}

//
func (e *DirEntry) IsDir() bool {
	return e.Attr&AttrDir != 0
}

//
func (e *DirEntry) IsLabel() bool {
	return e.Attr == AttrVolumeID
}

// FullName joins name and extension.
func (e *DirEntry) FullName() string {
	if e.Ext != "" {
		return e.Name + "." + e.Ext
	}
	return e.Name
}

func (v *Volume) rootOffset(index int) int {
	return v.RootDirSector*v.BytesPerSector + index*direntSize
}

func (v *Volume) readDirEntry(index int) *DirEntry {
	off := v.rootOffset(index)
	if off+direntSize > len(v.data) {
		return nil
	}
	raw := v.data[off : off+direntSize]
	return &DirEntry{
		Index:   index,
		Name:    trimPadded(raw[0:8]),
		Ext:     trimPadded(raw[8:11]),
		Attr:    raw[11],
		Cluster: int(binutil.U16LE(raw[26:])),
		Size:    int(binutil.U32LE(raw[28:])),
	}
}

func (v *Volume) writeDirEntry(index int, name, ext string, attr byte, cluster, size int) {
	off := v.rootOffset(index)
	raw := v.data[off : off+direntSize]
	for i := range raw {
		raw[i] = 0
	}
	copy(raw[0:8], pad(name, 8))
	copy(raw[8:11], pad(ext, 3))
	raw[11] = attr
	binutil.PutU16LE(raw, 26, uint16(cluster))
	binutil.PutU32LE(raw, 28, uint32(size))
}

func pad(s string, n int) []byte {
	b := bytes.Repeat([]byte{' '}, n)
	copy(b, s)
	return b
}

// List returns the in-use file entries of the root directory. The
// volume label and deleted slots are skipped; a zero first byte ends
// the scan.
func (v *Volume) List() []*DirEntry {
	var out []*DirEntry
	for i := 0; i < v.RootEntries; i++ {
		e := v.readDirEntry(i)
		if e == nil {
			break
		}
		first := v.data[v.rootOffset(i)]
		if first == direntEnd {
			break
		}
		if first == direntFree || e.IsLabel() {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Lookup finds a root-directory entry by 8.3 name.
func (v *Volume) Lookup(filename string) (*DirEntry, error) {
	name, ext, err := split83(filename)
	if err != nil {
		return nil, err
	}
	for _, e := range v.List() {
		if e.Name == name && e.Ext == ext {
			return e, nil
		}
	}
	return nil, errf(ErrNotFound, "%s not found", filename)
}

func (v *Volume) freeDirIndex() int {
	for i := 0; i < v.RootEntries; i++ {
		first := v.data[v.rootOffset(i)]
		if first == direntEnd || first == direntFree {
			return i
		}
	}
	return -1
}

func split83(filename string) (name, ext string, err error) {
	s := strings.ToUpper(strings.TrimSpace(filename))
	if i := strings.IndexByte(s, '.'); i >= 0 {
		name, ext = s[:i], s[i+1:]
	} else {
		name = s
	}
	if name == "" || len(name) > 8 || len(ext) > 3 {
		return "", "", errf(ErrInvalid, "%q is not a valid 8.3 name", filename)
	}
	return name, ext, nil
}

// Label returns the volume label, preferring the root-directory entry
// over the BPB copy.
func (v *Volume) Label() string {
	for i := 0; i < v.RootEntries; i++ {
		first := v.data[v.rootOffset(i)]
		if first == direntEnd {
			break
		}
		if first == direntFree {
			continue
		}
		e := v.readDirEntry(i)
		if e != nil && e.IsLabel() {
			return strings.TrimRight(e.Name+e.Ext, " ")
		}
	}
	b := readBPB(v.data)
	return b.Label
}

// SetLabel stores the label in both the BPB extended region and the
// root-directory volume entry, creating the latter if absent.
func (v *Volume) SetLabel(label string) error {
	if err := v.guardWrite(); err != nil {
		return err
	}
	up := strings.ToUpper(label)
	if len(up) > 11 {
		up = up[:11]
	}

	copy(v.data[43:54], pad(up, 11))
	v.data[38] = extBootSig

	idx := -1
	for i := 0; i < v.RootEntries; i++ {
		first := v.data[v.rootOffset(i)]
		if first == direntEnd {
			break
		}
		if first == direntFree {
			continue
		}
		if e := v.readDirEntry(i); e != nil && e.IsLabel() {
			idx = i
			break
		}
	}
	if idx < 0 {
		idx = v.freeDirIndex()
		if idx < 0 {
			return errf(ErrDirFull, "no room for a label entry")
		}
	}

	name, ext := up, ""
	if len(up) > 8 {
		name, ext = up[:8], up[8:]
	}
	v.writeDirEntry(idx, name, ext, AttrVolumeID, 0, 0)
	return nil
}
