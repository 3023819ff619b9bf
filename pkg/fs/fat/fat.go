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

// Package fat implements FAT12 and FAT16 on floppy-sized images. The
// FAT type is decided by cluster count alone, never by the media byte.
// All mutations happen in place in the loaded image buffer; the FAT is
// cached and written back identically to every FAT copy.
package fat

import (
	"bytes"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/fluxkeep/fluxkeep/pkg/binutil"
)

const (
	firstCluster = 2

	fat12Bad    = 0xFF7
	fat12EOFMin = 0xFF8
	fat12EOF    = 0xFFF
	fat16Bad    = 0xFFF7
	fat16EOFMin = 0xFFF8
	fat16EOF    = 0xFFFF

	bootSig    = 0xAA55
	extBootSig = 0x29
)

// ErrorKind classifies package errors.
type ErrorKind int

const (
	ErrInvalid ErrorKind = iota
	ErrNotFAT
	ErrFull
	ErrNotFound
	ErrExists
	ErrDirFull
	ErrMirror
	ErrRange
)

// Error is the package error type; Kind makes failures matchable
// without string comparison.
type Error struct {
	Kind ErrorKind
	Msg  string
}

//
func (e *Error) Error() string {
	return e.Msg
}

func errf(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// IsKind reports whether err is a package Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == kind
}

// Type is the FAT variant.
type Type int

const (
	TypeUnknown Type = iota
	TypeFAT12
	TypeFAT16
)

//
func (t Type) String() string {
	switch t {
	case TypeFAT12:
		return "FAT12"
	case TypeFAT16:
		return "FAT16"
	}
	return "unknown"
}

// Platform is the system dialect guessed from the boot sector.
type Platform int

const (
	PlatformPC Platform = iota
	PlatformMSX
	PlatformAtariST
	PlatformPC98
	PlatformHuman68K
)

//
func (p Platform) String() string {
	switch p {
	case PlatformMSX:
		return "MSX-DOS"
	case PlatformAtariST:
		return "Atari ST"
	case PlatformPC98:
		return "PC-98"
	case PlatformHuman68K:
		return "Human68K"
	}
	return "PC"
}

// Geometry is a standard floppy layout matched by total sector count.
type Geometry struct {
	Name            string
	TotalSectors    int
	Cylinders       int
	Heads           int
	SectorsPerTrack int
}

var stdGeometries = []Geometry{
	{"5.25\" SSDD 160K", 320, 40, 1, 8},
	{"5.25\" SSDD 180K", 360, 40, 1, 9},
	{"5.25\" DSDD 320K", 640, 40, 2, 8},
	{"5.25\" DSDD 360K", 720, 40, 2, 9},
	{"3.5\" DSDD 720K", 1440, 80, 2, 9},
	{"5.25\" DSHD 1.2M", 2400, 80, 2, 15},
	{"3.5\" DSHD 1.44M", 2880, 80, 2, 18},
	{"3.5\" DSED 2.88M", 5760, 80, 2, 36},
}

// GeometryForSectors returns the standard geometry with the given
// total sector count, or nil.
func GeometryForSectors(sectors int) *Geometry {
	for i := range stdGeometries {
		if stdGeometries[i].TotalSectors == sectors {
			return &stdGeometries[i]
		}
	}
	return nil
}

// bpb is the decoded BIOS parameter block.
type bpb struct {
	OEMName        string
	BytesPerSector int
	SecPerCluster  int
	Reserved       int
	NumFATs        int
	RootEntries    int
	TotalSectors   int
	Media          byte
	FATSize        int
	ExtSig         byte
	Serial         uint32
	Label          string
}

func readBPB(data []byte) *bpb {
	b := &bpb{
		OEMName:        string(data[3:11]),
		BytesPerSector: int(binutil.U16LE(data[11:])),
		SecPerCluster:  int(data[13]),
		Reserved:       int(binutil.U16LE(data[14:])),
		NumFATs:        int(data[16]),
		RootEntries:    int(binutil.U16LE(data[17:])),
		TotalSectors:   int(binutil.U16LE(data[19:])),
		Media:          data[21],
		FATSize:        int(binutil.U16LE(data[22:])),
		ExtSig:         data[38],
	}
	if b.TotalSectors == 0 {
		b.TotalSectors = int(binutil.U32LE(data[32:]))
	}
	if b.ExtSig == extBootSig {
		b.Serial = binutil.U32LE(data[39:])
		b.Label = trimPadded(data[43:54])
	}
	return b
}

func trimPadded(b []byte) string {
	return string(bytes.TrimRight(b, " \x00"))
}

func (b *bpb) valid(imageSize int) bool {
	switch b.BytesPerSector {
	case 512, 1024, 2048, 4096:
	default:
		return false
	}
	if b.SecPerCluster == 0 || b.SecPerCluster&(b.SecPerCluster-1) != 0 {
		return false
	}
	if b.Reserved == 0 {
		return false
	}
	if b.NumFATs == 0 || b.NumFATs > 4 {
		return false
	}
	if b.RootEntries == 0 {
		// FAT32 keeps its root directory in the data area; out of
		// scope for floppy media.
		return false
	}
	if b.TotalSectors == 0 || b.FATSize == 0 {
		return false
	}
	expected := b.TotalSectors * b.BytesPerSector
	if expected > imageSize*2 || expected < imageSize/2 {
		return false
	}
	return true
}

func typeFor(dataClusters int) Type {
	switch {
	case dataClusters < 4085:
		return TypeFAT12
	case dataClusters < 65525:
		return TypeFAT16
	}
	return TypeUnknown
}

func platformFor(data []byte, b *bpb) Platform {
	oem := data[3:11]
	switch {
	case bytes.HasPrefix(oem, []byte("MSX")):
		return PlatformMSX
	case bytes.HasPrefix(oem, []byte("Human")), bytes.HasPrefix(oem, []byte("X68")):
		return PlatformHuman68K
	case bytes.HasPrefix(oem, []byte("NECPC-98")), bytes.HasPrefix(oem, []byte("NEC")):
		return PlatformPC98
	}
	if b.Media == 0xF8 && (b.TotalSectors == 720 || b.TotalSectors == 1440) {
		return PlatformAtariST
	}
	return PlatformPC
}

// Detection is the result of probing an image for a FAT filesystem.
type Detection struct {
	Valid          bool
	Type           Type
	Platform       Platform
	Geometry       *Geometry
	Confidence     int
	BootSigMissing bool
	FATMismatch    bool
	Description    string
}

// Detect probes an image. Confidence is additive: 50 for a valid BPB,
// 20 for the boot signature, 20 for a standard geometry, 10 for
// matching FAT copies.
func Detect(data []byte) *Detection {
	res := &Detection{}
	if len(data) < 512 {
		res.Description = "too small for a boot sector"
		return res
	}

	res.BootSigMissing = binutil.U16LE(data[510:]) != bootSig

	b := readBPB(data)
	if !b.valid(len(data)) {
		if g := GeometryForSectors(len(data) / 512); g != nil {
			res.Geometry = g
			res.Confidence = 20
			res.Description = fmt.Sprintf("possible %s (no valid BPB)", g.Name)
		} else {
			res.Description = "not a FAT filesystem"
		}
		return res
	}

	rootDirSectors := (b.RootEntries*32 + b.BytesPerSector - 1) / b.BytesPerSector
	dataStart := b.Reserved + b.NumFATs*b.FATSize + rootDirSectors
	if dataStart >= b.TotalSectors {
		res.Description = "no data area"
		return res
	}
	dataClusters := (b.TotalSectors - dataStart) / b.SecPerCluster

	res.Type = typeFor(dataClusters)
	if res.Type == TypeUnknown {
		res.Confidence = 30
		res.Description = "FAT32 volume (unsupported)"
		return res
	}

	res.Platform = platformFor(data, b)
	res.Geometry = GeometryForSectors(b.TotalSectors)

	if b.NumFATs >= 2 {
		fatBytes := b.FATSize * b.BytesPerSector
		f1 := b.Reserved * b.BytesPerSector
		f2 := f1 + fatBytes
		if f2+fatBytes <= len(data) {
			res.FATMismatch = !bytes.Equal(data[f1:f1+fatBytes], data[f2:f2+fatBytes])
		}
	}

	res.Confidence = 50
	if !res.BootSigMissing {
		res.Confidence += 20
	}
	if res.Geometry != nil {
		res.Confidence += 20
	}
	if !res.FATMismatch {
		res.Confidence += 10
	}
	res.Valid = true

	if res.Geometry != nil {
		res.Description = fmt.Sprintf("%s %s (%s)", res.Type, res.Geometry.Name, res.Platform)
	} else {
		res.Description = fmt.Sprintf("%s %d sectors (%s)", res.Type, b.TotalSectors, res.Platform)
	}
	return res
}

// Volume is a mounted FAT filesystem.
type Volume struct {
	Type     Type
	Platform Platform

	BytesPerSector int
	SecPerCluster  int
	Reserved       int
	NumFATs        int
	RootEntries    int
	FATSize        int
	TotalSectors   int
	Media          byte

	RootDirSector  int
	RootDirSectors int
	DataStart      int
	DataClusters   int
	LastCluster    int

	OEMName string
	Serial  uint32

	// MirrorMismatch is set when the FAT copies disagree at mount
	// time. Writes are refused until HealMirrors resolves it.
	MirrorMismatch bool

	data      []byte
	fat       []byte
	fatDirty  bool
	lastAlloc int
}

// Open mounts a FAT volume over the image buffer. The buffer is not
// copied; modifications land in it directly.
func Open(data []byte) (*Volume, error) {
	det := Detect(data)
	if !det.Valid {
		return nil, errf(ErrNotFAT, "not a usable FAT volume: %s", det.Description)
	}

	b := readBPB(data)
	v := &Volume{
		Type:           det.Type,
		Platform:       det.Platform,
		BytesPerSector: b.BytesPerSector,
		SecPerCluster:  b.SecPerCluster,
		Reserved:       b.Reserved,
		NumFATs:        b.NumFATs,
		RootEntries:    b.RootEntries,
		FATSize:        b.FATSize,
		TotalSectors:   b.TotalSectors,
		Media:          b.Media,
		OEMName:        trimPadded([]byte(b.OEMName)),
		Serial:         b.Serial,
		MirrorMismatch: det.FATMismatch,
		data:           data,
		lastAlloc:      firstCluster,
	}

	v.RootDirSectors = (v.RootEntries*32 + v.BytesPerSector - 1) / v.BytesPerSector
	v.RootDirSector = v.Reserved + v.NumFATs*v.FATSize
	v.DataStart = v.RootDirSector + v.RootDirSectors
	v.DataClusters = (v.TotalSectors - v.DataStart) / v.SecPerCluster
	v.LastCluster = v.DataClusters + firstCluster - 1

	fatBytes := v.FATSize * v.BytesPerSector
	off := v.Reserved * v.BytesPerSector
	if off+fatBytes > len(data) {
		return nil, errf(ErrInvalid, "FAT extends past the image")
	}
	v.fat = make([]byte, fatBytes)
	copy(v.fat, data[off:])

	log.WithFields(log.Fields{
		"type":     v.Type,
		"clusters": v.DataClusters,
		"platform": v.Platform,
	}).Debug("FAT volume mounted")

	return v, nil
}

// guardWrite refuses mutation while the FAT mirrors disagree.
func (v *Volume) guardWrite() error {
	if v.MirrorMismatch {
		return errf(ErrMirror, "FAT copies disagree; run HealMirrors first")
	}
	return nil
}

// HealMirrors re-reads FAT1 as the authoritative copy and rewrites all
// mirrors from it.
func (v *Volume) HealMirrors() {
	off := v.Reserved * v.BytesPerSector
	copy(v.fat, v.data[off:off+len(v.fat)])
	v.MirrorMismatch = false
	v.fatDirty = true
	v.Flush()
}

// Entry reads a FAT entry. FAT12 entries are 12-bit packed pairs.
func (v *Volume) Entry(cluster int) (int, error) {
	if cluster < firstCluster || cluster > v.LastCluster {
		return 0, errf(ErrRange, "cluster %d out of range 2..%d", cluster, v.LastCluster)
	}
	if v.Type == TypeFAT12 {
		off := cluster + cluster/2
		if off+1 >= len(v.fat) {
			return 0, errf(ErrRange, "cluster %d beyond the FAT", cluster)
		}
		raw := int(v.fat[off]) | int(v.fat[off+1])<<8
		if cluster&1 != 0 {
			return raw >> 4, nil
		}
		return raw & 0xFFF, nil
	}
	if cluster*2+1 >= len(v.fat) {
		return 0, errf(ErrRange, "cluster %d beyond the FAT", cluster)
	}
	return int(binutil.U16LE(v.fat[cluster*2:])), nil
}

// SetEntry writes a FAT entry, preserving the neighbouring nybble on
// FAT12.
func (v *Volume) SetEntry(cluster, value int) error {
	if err := v.guardWrite(); err != nil {
		return err
	}
	if cluster < firstCluster || cluster > v.LastCluster {
		return errf(ErrRange, "cluster %d out of range 2..%d", cluster, v.LastCluster)
	}
	if v.Type == TypeFAT12 {
		off := cluster + cluster/2
		if off+1 >= len(v.fat) {
			return errf(ErrRange, "cluster %d beyond the FAT", cluster)
		}
		if cluster&1 != 0 {
			v.fat[off] = v.fat[off]&0x0F | byte(value&0x0F)<<4
			v.fat[off+1] = byte(value >> 4)
		} else {
			v.fat[off] = byte(value)
			v.fat[off+1] = v.fat[off+1]&0xF0 | byte(value>>8)&0x0F
		}
	} else {
		if cluster*2+1 >= len(v.fat) {
			return errf(ErrRange, "cluster %d beyond the FAT", cluster)
		}
		binutil.PutU16LE(v.fat, cluster*2, uint16(value))
	}
	v.fatDirty = true
	return nil
}

// Value classes.

//
func (v *Volume) IsFree(cluster int) bool {
	e, err := v.Entry(cluster)
	return err == nil && e == 0
}

//
func (v *Volume) IsEOF(cluster int) bool {
	e, err := v.Entry(cluster)
	if err != nil {
		return false
	}
	if v.Type == TypeFAT12 {
		return e >= fat12EOFMin
	}
	return e >= fat16EOFMin
}

//
func (v *Volume) IsBad(cluster int) bool {
	e, err := v.Entry(cluster)
	if err != nil {
		return false
	}
	if v.Type == TypeFAT12 {
		return e == fat12Bad
	}
	return e == fat16Bad
}

func (v *Volume) eofValue() int {
	if v.Type == TypeFAT12 {
		return fat12EOF
	}
	return fat16EOF
}

// Chain walks a cluster chain from start. A visited bitmap catches
// loops; the walk is additionally bounded by DataClusters+10.
func (v *Volume) Chain(start int) (clusters []int, hasLoops bool) {
	if start < firstCluster {
		return nil, false
	}
	visited := make([]byte, (v.LastCluster+8)/8)
	limit := v.DataClusters + 10
	cur := start

	for cur >= firstCluster && cur <= v.LastCluster && len(clusters) < limit {
		if visited[cur/8]&(1<<uint(cur%8)) != 0 {
			return clusters, true
		}
		visited[cur/8] |= 1 << uint(cur%8)
		clusters = append(clusters, cur)

		if v.IsEOF(cur) {
			break
		}
		next, err := v.Entry(cur)
		if err != nil || next < firstCluster {
			break
		}
		cur = next
	}
	return clusters, false
}

// AllocCluster claims the first free cluster at or after the hint,
// wrapping around once, and marks it EOF. Hint 0 continues from the
// last allocation.
func (v *Volume) AllocCluster(hint int) (int, error) {
	if err := v.guardWrite(); err != nil {
		return 0, err
	}
	if hint < firstCluster || hint > v.LastCluster {
		hint = v.lastAlloc
	}
	for c := hint; c <= v.LastCluster; c++ {
		if v.IsFree(c) {
			v.SetEntry(c, v.eofValue())
			v.lastAlloc = c
			return c, nil
		}
	}
	for c := firstCluster; c < hint; c++ {
		if v.IsFree(c) {
			v.SetEntry(c, v.eofValue())
			v.lastAlloc = c
			return c, nil
		}
	}
	return 0, errf(ErrFull, "no free clusters")
}

// AllocChain allocates n linked clusters; on any failure everything
// claimed so far is freed again.
func (v *Volume) AllocChain(n int) ([]int, error) {
	if n <= 0 {
		return nil, errf(ErrInvalid, "chain length %d", n)
	}
	var chain []int
	hint := 0 // continue from the last allocation
	for i := 0; i < n; i++ {
		c, err := v.AllocCluster(hint)
		if err != nil {
			for _, prev := range chain {
				v.SetEntry(prev, 0)
			}
			return nil, err
		}
		if i > 0 {
			v.SetEntry(chain[i-1], c)
		}
		chain = append(chain, c)
		hint = c + 1
	}
	return chain, nil
}

// FreeChain clears every entry of a chain.
func (v *Volume) FreeChain(start int) error {
	if err := v.guardWrite(); err != nil {
		return err
	}
	clusters, _ := v.Chain(start)
	for _, c := range clusters {
		v.SetEntry(c, 0)
	}
	return nil
}

// ClusterSize returns the cluster size in bytes.
func (v *Volume) ClusterSize() int {
	return v.SecPerCluster * v.BytesPerSector
}

func (v *Volume) clusterOffset(cluster int) int {
	sector := v.DataStart + (cluster-firstCluster)*v.SecPerCluster
	return sector * v.BytesPerSector
}

// ReadCluster returns a copy of one cluster's data.
func (v *Volume) ReadCluster(cluster int) ([]byte, error) {
	if cluster < firstCluster || cluster > v.LastCluster {
		return nil, errf(ErrRange, "cluster %d out of range", cluster)
	}
	off := v.clusterOffset(cluster)
	size := v.ClusterSize()
	if off+size > len(v.data) {
		return nil, errf(ErrInvalid, "cluster %d extends past the image", cluster)
	}
	return binutil.Dup(v.data[off : off+size]), nil
}

// WriteCluster overwrites one cluster in place.
func (v *Volume) WriteCluster(cluster int, b []byte) error {
	if err := v.guardWrite(); err != nil {
		return err
	}
	if cluster < firstCluster || cluster > v.LastCluster {
		return errf(ErrRange, "cluster %d out of range", cluster)
	}
	size := v.ClusterSize()
	if len(b) > size {
		return errf(ErrInvalid, "cluster payload %d exceeds cluster size %d", len(b), size)
	}
	off := v.clusterOffset(cluster)
	buf := make([]byte, size)
	copy(buf, b)
	copy(v.data[off:], buf)
	return nil
}

// FreeClusters counts unallocated clusters.
func (v *Volume) FreeClusters() int {
	n := 0
	for c := firstCluster; c <= v.LastCluster; c++ {
		if v.IsFree(c) {
			n++
		}
	}
	return n
}

// FreeSpace returns the free space in bytes.
func (v *Volume) FreeSpace() int {
	return v.FreeClusters() * v.ClusterSize()
}

// Flush writes the cached FAT back to every FAT copy in the image.
func (v *Volume) Flush() {
	if !v.fatDirty {
		return
	}
	for i := 0; i < v.NumFATs; i++ {
		off := (v.Reserved + i*v.FATSize) * v.BytesPerSector
		copy(v.data[off:], v.fat)
	}
	v.fatDirty = false
}

// Bytes returns the backing image buffer.
func (v *Volume) Bytes() []byte {
	return v.data
}
