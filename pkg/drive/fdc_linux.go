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

//go:build linux

package drive

import (
	"fmt"
	"unsafe"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/fluxkeep/fluxkeep/pkg/disk"
)

// ioctl numbers and flags from linux/fd.h
const (
	fdRawCmd = 0x0258
	fdReset  = 0x0254

	fdResetIfNeeded = 2

	rawRead     = 0x01
	rawWrite    = 0x02
	rawIntr     = 0x08
	rawSpin     = 0x10
	rawNeedDisk = 0x40
	rawNeedSeek = 0x80
)

// FDC command opcodes, MFM and skip bits included where applicable
const (
	fdcReadData    = 0xE6
	fdcWriteData   = 0xC5
	fdcReadID      = 0x4A
	fdcFormatTrack = 0x4D
	fdcRecalibrate = 0x07
	fdcSeek        = 0x0F
)

// Data rates for the rate field.
const (
	Rate500k = 0
	Rate300k = 1
	Rate250k = 2
	Rate1M   = 3
)

// rawCmd mirrors struct floppy_raw_cmd.
type rawCmd struct {
	Flags        uint32
	Data         uintptr
	KernelData   uintptr
	Next         uintptr
	Length       int64
	PhysLength   int64
	BufferLength int32
	Rate         uint8
	CmdCount     uint8
	Cmd          [16]uint8
	ReplyCount   uint8
	Reply        [16]uint8
	Track        int32
	ResultCode   int32
	Reserved1    int32
	Reserved2    int32
}

// SectorID is an address mark as returned by the controller.
type SectorID struct {
	Cylinder int
	Head     int
	Sector   int
	SizeCode int // sector bytes = 128 << SizeCode
}

// FDC drives a floppy through the Linux raw-command interface. It is a
// sector transport: flux operations report ErrNotSupported, the §-level
// callers fall back to sector reads.
type FDC struct {
	fd   int
	dev  string
	rate uint8
	cyl  int
	head int
}

// OpenFDC opens a floppy device node, e.g. /dev/fd0, and resets the
// controller.
func OpenFDC(dev string) (*FDC, error) {

	fd, err := unix.Open(dev, unix.O_RDWR|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("cannot open %s: %v", dev, err)
	}

	f := &FDC{fd: fd, dev: dev, rate: Rate250k, cyl: -1, head: -1}

	if _, _, errno := unix.Syscall(unix.SYS_IOCTL,
		uintptr(fd), fdReset, fdResetIfNeeded); errno != 0 {
		unix.Close(fd)
		return nil, fmt.Errorf("controller reset failed: %v", errno)
	}

	log.WithField("dev", dev).Info("floppy controller opened")
	return f, nil
}

// SetRate selects the data rate for subsequent transfers.
func (f *FDC) SetRate(rate uint8) {
	f.rate = rate
}

//
func (f *FDC) raw(cmd *rawCmd) error {
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL,
		uintptr(f.fd), fdRawCmd, uintptr(unsafe.Pointer(cmd))); errno != 0 {
		return fmt.Errorf("raw command failed: %v", errno)
	}
	if cmd.ReplyCount > 0 && cmd.Reply[0]&0xC0 != 0 {
		return fmt.Errorf("controller error, ST0=%02x ST1=%02x ST2=%02x",
			cmd.Reply[0], cmd.Reply[1], cmd.Reply[2])
	}
	return nil
}

//
func (f *FDC) Caps() Caps {
	return Caps{MaxCylinders: 82, MaxHeads: 2, Density: true}
}

//
func (f *FDC) SampleClock() float64 {
	return 0
}

//
func (f *FDC) Seek(cyl int) error {

	cmd := rawCmd{
		Flags:    rawIntr,
		Rate:     f.rate,
		CmdCount: 3,
		Track:    int32(cyl),
	}
	cmd.Cmd[0] = fdcSeek
	cmd.Cmd[1] = byte(f.headBits())
	cmd.Cmd[2] = byte(cyl)

	if err := f.raw(&cmd); err != nil {
		return err
	}
	f.cyl = cyl
	return nil
}

//
func (f *FDC) SelectHead(head int) error {
	if head < 0 || head > 1 {
		return fmt.Errorf("head %d out of range", head)
	}
	f.head = head
	return nil
}

// SetMotor is handled by the kernel driver around each raw command.
func (f *FDC) SetMotor(on bool) error {
	return nil
}

//
func (f *FDC) SetDensity(high bool) error {
	if high {
		f.rate = Rate500k
	} else {
		f.rate = Rate250k
	}
	return nil
}

//
func (f *FDC) ReadFlux(cyl, head, revolutions int) (*Capture, error) {
	return nil, ErrNotSupported
}

//
func (f *FDC) WriteFlux(cyl, head int, rev *disk.Revolution) error {
	return ErrNotSupported
}

//
func (f *FDC) headBits() int {
	if f.head > 0 {
		return 4
	}
	return 0
}

// Recalibrate steps the head back to cylinder 0.
func (f *FDC) Recalibrate() error {

	cmd := rawCmd{
		Flags:    rawIntr,
		Rate:     f.rate,
		CmdCount: 2,
	}
	cmd.Cmd[0] = fdcRecalibrate
	cmd.Cmd[1] = byte(f.headBits())

	if err := f.raw(&cmd); err != nil {
		return err
	}
	f.cyl = 0
	return nil
}

// ReadID reads the next address mark passing under the head.
func (f *FDC) ReadID(cyl, head int) (*SectorID, error) {

	if err := f.SelectHead(head); err != nil {
		return nil, err
	}

	cmd := rawCmd{
		Flags:    rawIntr | rawNeedDisk | rawNeedSeek | rawSpin,
		Rate:     f.rate,
		CmdCount: 2,
		Track:    int32(cyl),
	}
	cmd.Cmd[0] = fdcReadID
	cmd.Cmd[1] = byte(f.headBits())

	if err := f.raw(&cmd); err != nil {
		return nil, err
	}

	return &SectorID{
		Cylinder: int(cmd.Reply[3]),
		Head:     int(cmd.Reply[4]),
		Sector:   int(cmd.Reply[5]),
		SizeCode: int(cmd.Reply[6]),
	}, nil
}

// ReadSector transfers one sector. Sector numbering follows the address
// marks on the media, normally starting at 1.
func (f *FDC) ReadSector(cyl, head, sector, sizeCode int) ([]byte, error) {

	if err := f.SelectHead(head); err != nil {
		return nil, err
	}

	size := 128 << uint(sizeCode)
	buf := make([]byte, size)

	cmd := rawCmd{
		Flags:    rawRead | rawIntr | rawNeedDisk | rawNeedSeek | rawSpin,
		Data:     uintptr(unsafe.Pointer(&buf[0])),
		Length:   int64(size),
		Rate:     f.rate,
		CmdCount: 9,
		Track:    int32(cyl),
	}
	cmd.Cmd[0] = fdcReadData
	cmd.Cmd[1] = byte(f.headBits())
	cmd.Cmd[2] = byte(cyl)
	cmd.Cmd[3] = byte(head)
	cmd.Cmd[4] = byte(sector)
	cmd.Cmd[5] = byte(sizeCode)
	cmd.Cmd[6] = byte(sector) // end of track: transfer a single sector
	cmd.Cmd[7] = 0x1B         // gap length
	cmd.Cmd[8] = 0xFF

	if err := f.raw(&cmd); err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteSector transfers one sector to the media.
func (f *FDC) WriteSector(cyl, head, sector, sizeCode int, data []byte) error {

	size := 128 << uint(sizeCode)
	if len(data) != size {
		return fmt.Errorf("sector data length %d, want %d", len(data), size)
	}
	if err := f.SelectHead(head); err != nil {
		return err
	}

	buf := make([]byte, size)
	copy(buf, data)

	cmd := rawCmd{
		Flags:    rawWrite | rawIntr | rawNeedDisk | rawNeedSeek | rawSpin,
		Data:     uintptr(unsafe.Pointer(&buf[0])),
		Length:   int64(size),
		Rate:     f.rate,
		CmdCount: 9,
		Track:    int32(cyl),
	}
	cmd.Cmd[0] = fdcWriteData
	cmd.Cmd[1] = byte(f.headBits())
	cmd.Cmd[2] = byte(cyl)
	cmd.Cmd[3] = byte(head)
	cmd.Cmd[4] = byte(sector)
	cmd.Cmd[5] = byte(sizeCode)
	cmd.Cmd[6] = byte(sector)
	cmd.Cmd[7] = 0x1B
	cmd.Cmd[8] = 0xFF

	return f.raw(&cmd)
}

// FormatTrack lays down fresh address marks for one track.
func (f *FDC) FormatTrack(cyl, head, sectors, sizeCode int, filler byte) error {

	if err := f.SelectHead(head); err != nil {
		return err
	}

	// 4 bytes per sector: C, H, R, N
	buf := make([]byte, sectors*4)
	for s := 0; s < sectors; s++ {
		buf[s*4] = byte(cyl)
		buf[s*4+1] = byte(head)
		buf[s*4+2] = byte(s + 1)
		buf[s*4+3] = byte(sizeCode)
	}

	cmd := rawCmd{
		Flags:    rawWrite | rawIntr | rawNeedDisk | rawNeedSeek | rawSpin,
		Data:     uintptr(unsafe.Pointer(&buf[0])),
		Length:   int64(len(buf)),
		Rate:     f.rate,
		CmdCount: 6,
		Track:    int32(cyl),
	}
	cmd.Cmd[0] = fdcFormatTrack
	cmd.Cmd[1] = byte(f.headBits())
	cmd.Cmd[2] = byte(sizeCode)
	cmd.Cmd[3] = byte(sectors)
	cmd.Cmd[4] = 0x54 // format gap
	cmd.Cmd[5] = filler

	return f.raw(&cmd)
}

//
func (f *FDC) Close() error {
	return unix.Close(f.fd)
}
