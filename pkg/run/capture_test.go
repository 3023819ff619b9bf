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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxkeep/fluxkeep/pkg/disk"
	"github.com/fluxkeep/fluxkeep/pkg/drive"
)

// fakeDrive serves canned flux at a 24 MHz sample clock.
type fakeDrive struct {
	caps     drive.Caps
	reads    int
	motorOn  bool
	motorOff bool
}

func (f *fakeDrive) Caps() drive.Caps      { return f.caps }
func (f *fakeDrive) SampleClock() float64  { return 24e6 }
func (f *fakeDrive) Seek(cyl int) error    { return nil }
func (f *fakeDrive) SelectHead(int) error  { return nil }
func (f *fakeDrive) SetDensity(bool) error { return nil }
func (f *fakeDrive) Close() error          { return nil }

func (f *fakeDrive) SetMotor(on bool) error {
	if on {
		f.motorOn = true
	} else {
		f.motorOff = true
	}
	return nil
}

func (f *fakeDrive) ReadFlux(cyl, head, revs int) (*drive.Capture, error) {
	f.reads++
	out := &drive.Capture{SampleHz: 24e6}
	for i := 0; i < revs; i++ {
		out.Revolutions = append(out.Revolutions, disk.Revolution{
			Flux:      []uint32{96, 144, 192},
			TimeTicks: 4800000,
		})
	}
	return out, nil
}

func (f *fakeDrive) WriteFlux(cyl, head int, rev *disk.Revolution) error {
	return drive.ErrNotSupported
}

func TestCaptureDisk(t *testing.T) {

	drv := &fakeDrive{caps: drive.Caps{
		FluxRead: true, MultiRev: true, MaxCylinders: 84, MaxHeads: 2,
	}}

	d, err := captureDisk(drv, 40, 2, 3, false)
	require.NoError(t, err)

	assert.Equal(t, 80, len(d.Tracks))
	assert.Equal(t, 80, drv.reads)
	assert.True(t, drv.motorOn)
	assert.True(t, drv.motorOff)

	trk := d.TrackAt(0, 0)
	require.NotNil(t, trk)
	require.Len(t, trk.Revolutions, 3)

	// 24 MHz ticks rescaled to the 40 MHz SCP clock
	rev := trk.Revolutions[0]
	assert.Equal(t, []uint32{160, 240, 320}, rev.Flux)
	assert.Equal(t, uint64(8000000), rev.TimeTicks)
	assert.NotZero(t, rev.Stats.Mean)
}

func TestCaptureDiskClampsGeometry(t *testing.T) {

	drv := &fakeDrive{caps: drive.Caps{
		FluxRead: true, MaxCylinders: 35, MaxHeads: 1,
	}}

	d, err := captureDisk(drv, 80, 2, 1, false)
	require.NoError(t, err)
	assert.Equal(t, 35, len(d.Tracks))
}

func TestCaptureDiskNeedsFluxRead(t *testing.T) {

	drv := &fakeDrive{}
	_, err := captureDisk(drv, 40, 2, 1, false)
	assert.Error(t, err)
}
