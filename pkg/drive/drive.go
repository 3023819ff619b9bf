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

// Package drive abstracts physical floppy transports. The core treats a
// transport as an opaque flux pipe: it asks for revolutions of timing
// data, or hands them back for writing, and never sees the wire
// protocol underneath.
package drive

import (
	"errors"

	"github.com/fluxkeep/fluxkeep/pkg/disk"
)

// ErrNotSupported is returned for operations the connected transport
// cannot perform, e.g. flux capture over a plain FDC.
var ErrNotSupported = errors.New("operation not supported by transport")

// Caps advertises what a connected transport can do.
type Caps struct {
	FluxRead     bool
	FluxWrite    bool
	MultiRev     bool
	Density      bool
	MaxCylinders int
	MaxHeads     int
}

// Capture is one track's worth of flux as delivered by a transport.
// SampleHz is the transport's flux clock; zero means the transport did
// not report one and the caller should assume a default.
type Capture struct {
	SampleHz    float64
	Revolutions []disk.Revolution
}

// Drive is a flux-capable floppy transport. Implementations are not safe
// for concurrent use; one goroutine drives one transport.
type Drive interface {
	// Caps reports the transport's capability set
	Caps() Caps
	// SampleClock returns the flux clock in Hz, 0 when unreported
	SampleClock() float64
	// Seek moves the head assembly to a cylinder
	Seek(cyl int) error
	// SelectHead picks the active head
	SelectHead(head int) error
	// SetMotor switches the spindle motor
	SetMotor(on bool) error
	// SetDensity switches the density select line
	SetDensity(high bool) error
	// ReadFlux captures the given number of revolutions from the
	// current track
	ReadFlux(cyl, head, revolutions int) (*Capture, error)
	// WriteFlux writes one revolution's worth of flux to the current
	// track
	WriteFlux(cyl, head int, rev *disk.Revolution) error
	// Close releases the transport
	Close() error
}
