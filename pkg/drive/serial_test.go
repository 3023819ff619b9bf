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

package drive

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxkeep/fluxkeep/pkg/binutil"
	"github.com/fluxkeep/fluxkeep/pkg/disk"
)

// fakePort feeds a pre-scripted adapter byte stream and records what the
// host sends.
type fakePort struct {
	in     *bytes.Buffer
	out    bytes.Buffer
	closed bool
}

func (p *fakePort) Read(b []byte) (int, error)  { return p.in.Read(b) }
func (p *fakePort) Write(b []byte) (int, error) { return p.out.Write(b) }
func (p *fakePort) Close() error                { p.closed = true; return nil }

func u32(v uint32) []byte {
	b := make([]byte, 4)
	binutil.PutU32LE(b, 0, v)
	return b
}

// script builds the adapter side of a session: garbage noise, the hello
// with a 24 MHz clock and full capabilities, then the given frames.
func script(frames ...[]byte) *fakePort {
	var in bytes.Buffer
	in.Write([]byte{0x00, 0x47, 0xFF}) // line noise before the greeting
	in.Write(helloAdapter)
	in.Write(u32(24000000))
	in.WriteByte(adapterFluxRead | adapterFluxWrite | adapterMultiRev | adapterDensity)
	for _, f := range frames {
		in.Write(f)
	}
	return &fakePort{in: &in}
}

func TestHandshake(t *testing.T) {

	port := script()
	s, err := NewSerial(port)
	require.NoError(t, err)

	assert.Equal(t, 24000000.0, s.SampleClock())
	assert.True(t, s.Caps().FluxRead)
	assert.True(t, s.Caps().MultiRev)
	assert.Equal(t, helloHost, port.out.Bytes())
}

func TestHandshakeTruncated(t *testing.T) {

	port := &fakePort{in: bytes.NewBuffer([]byte("hfl"))}
	_, err := NewSerial(port)
	require.Error(t, err)
	assert.True(t, port.closed)
}

func TestSeekAndHead(t *testing.T) {

	port := script(replyAck, replyAck)
	s, err := NewSerial(port)
	require.NoError(t, err)

	require.NoError(t, s.Seek(40))
	require.NoError(t, s.SelectHead(1))

	sent := port.out.Bytes()[len(helloHost):]
	assert.Equal(t, append(append([]byte{}, cmdSeek...), 40), sent[:5])
	assert.Equal(t, append(append([]byte{}, cmdHead...), 1), sent[5:])

	assert.Error(t, s.Seek(200))
	assert.Error(t, s.SelectHead(2))
}

func TestCommandRejected(t *testing.T) {

	port := script(append(append([]byte{}, replyErr...), 7))
	s, err := NewSerial(port)
	require.NoError(t, err)

	err = s.Seek(10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "code 7")
}

func TestReadFlux(t *testing.T) {

	rev := func(samples ...uint32) []byte {
		var f bytes.Buffer
		f.Write(replyRev)
		f.Write(u32(uint32(len(samples))))
		f.Write(u32(200000))
		for _, v := range samples {
			f.Write(u32(v))
		}
		return f.Bytes()
	}

	port := script(
		replyAck, // seek
		replyAck, // head select
		replyAck, // read command
		rev(100, 120, 80),
		rev(101, 119, 81),
	)
	s, err := NewSerial(port)
	require.NoError(t, err)

	capture, err := s.ReadFlux(5, 0, 2)
	require.NoError(t, err)

	assert.Equal(t, 24000000.0, capture.SampleHz)
	require.Len(t, capture.Revolutions, 2)
	assert.Equal(t, []uint32{100, 120, 80}, capture.Revolutions[0].Flux)
	assert.Equal(t, uint64(200000), capture.Revolutions[0].TimeTicks)
	assert.NotZero(t, capture.Revolutions[0].Stats.Mean)

	// positioning happens once, further reads reuse it
	_, err = s.ReadFlux(5, 0, 1)
	require.Error(t, err) // script exhausted, no more acks
}

func TestReadFluxDesync(t *testing.T) {

	port := script(
		replyAck, replyAck, replyAck,
		[]byte("junk"),
	)
	s, err := NewSerial(port)
	require.NoError(t, err)

	_, err = s.ReadFlux(0, 0, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "desync")
}

func TestWriteFlux(t *testing.T) {

	port := script(replyAck, replyAck, replyAck, replyAck)
	s, err := NewSerial(port)
	require.NoError(t, err)

	rev := &disk.Revolution{Flux: []uint32{10, 20, 30}}
	require.NoError(t, s.WriteFlux(2, 1, rev))

	sent := port.out.Bytes()[len(helloHost):]
	// seek 2, head 1, wrfx with count, then the payload
	assert.Equal(t, byte(2), sent[4])
	assert.Equal(t, byte(1), sent[9])
	assert.Equal(t, cmdWriteFlux, sent[10:14])
	assert.Equal(t, uint32(3), binutil.U32LE(sent[14:]))
	assert.Equal(t, uint32(10), binutil.U32LE(sent[18:]))
	assert.Equal(t, uint32(30), binutil.U32LE(sent[26:]))

	assert.Error(t, s.WriteFlux(2, 1, &disk.Revolution{}))
}

func TestCapabilityGates(t *testing.T) {

	var in bytes.Buffer
	in.Write(helloAdapter)
	in.Write(u32(0))
	in.WriteByte(0) // no capabilities at all
	port := &fakePort{in: &in}

	s, err := NewSerial(port)
	require.NoError(t, err)

	assert.Equal(t, 0.0, s.SampleClock())

	_, err = s.ReadFlux(0, 0, 1)
	assert.Equal(t, ErrNotSupported, err)
	assert.Equal(t, ErrNotSupported, s.WriteFlux(0, 0, &disk.Revolution{Flux: []uint32{1}}))
	assert.Equal(t, ErrNotSupported, s.SetDensity(true))
}
