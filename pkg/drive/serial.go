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
	"fmt"
	"io"

	"github.com/jacobsa/go-serial/serial"
	log "github.com/sirupsen/logrus"

	"github.com/fluxkeep/fluxkeep/pkg/binutil"
	"github.com/fluxkeep/fluxkeep/pkg/disk"
)

//
const commandLength = 4
const maxRevolutions = 16

// adapter greeting, followed by a u32 LE sample clock in Hz (0 when the
// adapter has no calibrated clock) and a capability byte
var helloAdapter = []byte("hflx")
var helloHost = []byte("hfxd")

// capability byte bits
const (
	adapterFluxRead = 1 << iota
	adapterFluxWrite
	adapterMultiRev
	adapterDensity
)

//
var cmdSeek = []byte("seek")
var cmdHead = []byte("head")
var cmdMotor = []byte("motr")
var cmdDensity = []byte("dens")
var cmdReadFlux = []byte("rdfx")
var cmdWriteFlux = []byte("wrfx")

var replyAck = []byte("ack ")
var replyErr = []byte("err ")
var replyRev = []byte("rev ")

// Serial drives a flux adapter over a serial line. The framing follows
// the adapter firmware: 4-byte ASCII commands with fixed-size binary
// arguments, u32 little-endian flux ticks.
type Serial struct {
	port io.ReadWriteCloser
	caps Caps
	sck  float64
	cyl  int
	head int
}

// OpenSerial connects to a flux adapter on the named port and performs
// the hello handshake.
func OpenSerial(port string) (*Serial, error) {

	p, err := serial.Open(serial.OpenOptions{
		PortName:        port,
		BaudRate:        1000000,
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("cannot open %s: %v", port, err)
	}

	return NewSerial(p)
}

// NewSerial wraps an already open conduit; used directly in tests.
func NewSerial(port io.ReadWriteCloser) (*Serial, error) {
	s := &Serial{port: port, cyl: -1, head: -1}
	if err := s.syncOnHello(); err != nil {
		port.Close()
		return nil, err
	}
	return s, nil
}

// syncOnHello scans the byte stream for the adapter greeting, reads the
// clock and capability trailer, and answers with the host greeting.
func (s *Serial) syncOnHello() error {

	log.Info("syncing with flux adapter")

	hello := make([]byte, commandLength)
	for !bytes.Equal(hello, helloAdapter) {
		shiftLeft(hello)
		if err := s.receive(hello[len(hello)-1:]); err != nil {
			return err
		}
	}

	trailer := make([]byte, 5)
	if err := s.receive(trailer); err != nil {
		return fmt.Errorf("error reading hello trailer: %v", err)
	}

	s.sck = float64(binutil.U32LE(trailer))

	flags := trailer[4]
	s.caps = Caps{
		FluxRead:     flags&adapterFluxRead != 0,
		FluxWrite:    flags&adapterFluxWrite != 0,
		MultiRev:     flags&adapterMultiRev != 0,
		Density:      flags&adapterDensity != 0,
		MaxCylinders: 84,
		MaxHeads:     2,
	}

	if err := s.send(helloHost); err != nil {
		return fmt.Errorf("error sending host hello: %v", err)
	}

	log.WithFields(log.Fields{
		"sck":  s.sck,
		"caps": fmt.Sprintf("%+v", s.caps),
	}).Info("synced with flux adapter")

	return nil
}

//
func shiftLeft(b []byte) {
	copy(b, b[1:])
}

//
func (s *Serial) receive(data []byte) error {
	_, err := io.ReadFull(s.port, data)
	return err
}

//
func (s *Serial) send(data []byte) error {
	_, err := s.port.Write(data)
	return err
}

// command sends one framed command and waits for the ack/err reply.
func (s *Serial) command(cmd []byte, args ...byte) error {

	frame := make([]byte, 0, commandLength+len(args))
	frame = append(frame, cmd...)
	frame = append(frame, args...)

	if err := s.send(frame); err != nil {
		return fmt.Errorf("error sending %s: %v", cmd, err)
	}
	return s.awaitAck(cmd)
}

//
func (s *Serial) awaitAck(cmd []byte) error {

	reply := make([]byte, commandLength)
	if err := s.receive(reply); err != nil {
		return fmt.Errorf("error reading %s reply: %v", cmd, err)
	}

	switch {
	case bytes.Equal(reply, replyAck):
		return nil
	case bytes.Equal(reply, replyErr):
		code := make([]byte, 1)
		if err := s.receive(code); err != nil {
			return err
		}
		return fmt.Errorf("adapter rejected %s, code %d", cmd, code[0])
	default:
		return fmt.Errorf("protocol desync on %s reply: %q", cmd, reply)
	}
}

//
func (s *Serial) Caps() Caps {
	return s.caps
}

//
func (s *Serial) SampleClock() float64 {
	return s.sck
}

//
func (s *Serial) Seek(cyl int) error {
	if cyl < 0 || cyl > s.caps.MaxCylinders {
		return fmt.Errorf("cylinder %d out of range", cyl)
	}
	if err := s.command(cmdSeek, byte(cyl)); err != nil {
		return err
	}
	s.cyl = cyl
	return nil
}

//
func (s *Serial) SelectHead(head int) error {
	if head < 0 || head >= s.caps.MaxHeads {
		return fmt.Errorf("head %d out of range", head)
	}
	if err := s.command(cmdHead, byte(head)); err != nil {
		return err
	}
	s.head = head
	return nil
}

//
func (s *Serial) SetMotor(on bool) error {
	arg := byte(0)
	if on {
		arg = 1
	}
	return s.command(cmdMotor, arg)
}

//
func (s *Serial) SetDensity(high bool) error {
	if !s.caps.Density {
		return ErrNotSupported
	}
	arg := byte(0)
	if high {
		arg = 1
	}
	return s.command(cmdDensity, arg)
}

// position seeks and selects as needed before a track transfer.
func (s *Serial) position(cyl, head int) error {
	if s.cyl != cyl {
		if err := s.Seek(cyl); err != nil {
			return err
		}
	}
	if s.head != head {
		if err := s.SelectHead(head); err != nil {
			return err
		}
	}
	return nil
}

// ReadFlux captures revolutions from one track. Each revolution arrives
// as a "rev " frame carrying a u32 sample count and a u32 rotation time,
// followed by the samples as u32 little-endian ticks.
func (s *Serial) ReadFlux(cyl, head, revolutions int) (*Capture, error) {

	if !s.caps.FluxRead {
		return nil, ErrNotSupported
	}
	if revolutions < 1 || revolutions > maxRevolutions {
		return nil, fmt.Errorf("revolution count %d out of range", revolutions)
	}
	if revolutions > 1 && !s.caps.MultiRev {
		revolutions = 1
	}
	if err := s.position(cyl, head); err != nil {
		return nil, err
	}

	if err := s.command(cmdReadFlux, byte(revolutions)); err != nil {
		return nil, err
	}

	out := &Capture{SampleHz: s.sck}
	head4 := make([]byte, commandLength)

	for r := 0; r < revolutions; r++ {

		if err := s.receive(head4); err != nil {
			return nil, fmt.Errorf("error reading revolution header: %v", err)
		}
		if !bytes.Equal(head4, replyRev) {
			return nil, fmt.Errorf("protocol desync in flux stream: %q", head4)
		}

		meta := make([]byte, 8)
		if err := s.receive(meta); err != nil {
			return nil, err
		}
		count := int(binutil.U32LE(meta))
		ticks := binutil.U32LE(meta[4:])

		raw := make([]byte, count*4)
		if err := s.receive(raw); err != nil {
			return nil, fmt.Errorf("error reading flux samples: %v", err)
		}

		rev := disk.Revolution{
			Flux:      make([]uint32, count),
			TimeTicks: uint64(ticks),
		}
		for i := 0; i < count; i++ {
			rev.Flux[i] = binutil.U32LE(raw[i*4:])
		}
		rev.ComputeStats(s.sck)

		out.Revolutions = append(out.Revolutions, rev)
	}

	log.WithFields(log.Fields{
		"cyl": cyl, "head": head, "revs": revolutions,
	}).Debug("flux captured")

	return out, nil
}

// WriteFlux streams one revolution back to the adapter. The adapter acks
// the command before the sample payload and again after writing.
func (s *Serial) WriteFlux(cyl, head int, rev *disk.Revolution) error {

	if !s.caps.FluxWrite {
		return ErrNotSupported
	}
	if len(rev.Flux) == 0 {
		return fmt.Errorf("empty revolution")
	}
	if err := s.position(cyl, head); err != nil {
		return err
	}

	arg := make([]byte, 4)
	binutil.PutU32LE(arg, 0, uint32(len(rev.Flux)))
	if err := s.command(cmdWriteFlux, arg...); err != nil {
		return err
	}

	raw := make([]byte, len(rev.Flux)*4)
	for i, v := range rev.Flux {
		binutil.PutU32LE(raw, i*4, v)
	}
	if err := s.send(raw); err != nil {
		return fmt.Errorf("error sending flux samples: %v", err)
	}

	return s.awaitAck(cmdWriteFlux)
}

//
func (s *Serial) Close() error {
	return s.port.Close()
}
