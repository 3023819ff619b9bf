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

// Package binutil provides bounds-checked field readers over byte slices.
// Container parsers use it instead of raw slice expressions so that a
// truncated image surfaces as an error rather than a panic.
package binutil

import (
	"encoding/binary"
	"fmt"
)

// ErrOutOfBounds is returned when a read reaches past the end of the data.
type ErrOutOfBounds struct {
	Off, Len, Size int
}

//
func (e *ErrOutOfBounds) Error() string {
	return fmt.Sprintf(
		"read of %d bytes at offset %d exceeds data size %d",
		e.Len, e.Off, e.Size)
}

// Dup returns a full copy of the input slice.
func Dup(in []byte) []byte {
	out := make([]byte, len(in))
	copy(out, in)
	return out
}

// Reader reads fixed-width fields from a byte slice by offset and length.
// Slices returned by Read alias the underlying data; integer accessors
// copy.
type Reader struct {
	data []byte
}

//
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

//
func (r *Reader) Size() int {
	return len(r.data)
}

//
func (r *Reader) Read(off, length int) ([]byte, error) {
	if off < 0 || length < 0 || off+length > len(r.data) {
		return nil, &ErrOutOfBounds{Off: off, Len: length, Size: len(r.data)}
	}
	return r.data[off : off+length], nil
}

//
func (r *Reader) Byte(off int) (byte, error) {
	b, err := r.Read(off, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

//
func (r *Reader) U16LE(off int) (uint16, error) {
	b, err := r.Read(off, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

//
func (r *Reader) U16BE(off int) (uint16, error) {
	b, err := r.Read(off, 2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

//
func (r *Reader) U32LE(off int) (uint32, error) {
	b, err := r.Read(off, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

//
func (r *Reader) U32BE(off int) (uint32, error) {
	b, err := r.Read(off, 4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

//
func (r *Reader) U64LE(off int) (uint64, error) {
	b, err := r.Read(off, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// Package-level getters for callers that already hold a validated slice.
func U16LE(b []byte) uint16 {
	return binary.LittleEndian.Uint16(b)
}

//
func U16BE(b []byte) uint16 {
	return binary.BigEndian.Uint16(b)
}

//
func U32LE(b []byte) uint32 {
	return binary.LittleEndian.Uint32(b)
}

//
func U32BE(b []byte) uint32 {
	return binary.BigEndian.Uint32(b)
}

//
func U64LE(b []byte) uint64 {
	return binary.LittleEndian.Uint64(b)
}

// PutU16LE writes v into buf at off. Helpers for the write paths; callers
// size their buffers up front, so these panic on misuse like the stdlib
// binary package does.
func PutU16LE(buf []byte, off int, v uint16) {
	binary.LittleEndian.PutUint16(buf[off:], v)
}

//
func PutU16BE(buf []byte, off int, v uint16) {
	binary.BigEndian.PutUint16(buf[off:], v)
}

//
func PutU32LE(buf []byte, off int, v uint32) {
	binary.LittleEndian.PutUint32(buf[off:], v)
}

//
func PutU32BE(buf []byte, off int, v uint32) {
	binary.BigEndian.PutUint32(buf[off:], v)
}

//
func PutU64LE(buf []byte, off int, v uint64) {
	binary.LittleEndian.PutUint64(buf[off:], v)
}
