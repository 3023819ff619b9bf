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

package disk

// MergeStrategy selects how multiple revolutions are fused into the
// track's merged flux view.
type MergeStrategy string

const (
	MergeVote    MergeStrategy = "vote"
	MergeBest    MergeStrategy = "best"
	MergeAverage MergeStrategy = "average"
)

// PLLMode selects the bit-recovery loop.
type PLLMode string

const (
	PLLSimple   PLLMode = "simple"
	PLLAdaptive PLLMode = "adaptive"
	PLLKalman   PLLMode = "kalman"
)

// Params is the per-call parser configuration. Zero value is not usable,
// construct via DefaultParams.
type Params struct {
	MinRevolutions int
	MaxRevolutions int

	FilterSpikes   bool
	SpikeThreshold uint32 // ticks

	MultiRevMerge  bool
	MergeStrategy  MergeStrategy
	MergeThreshold float64

	DetectWeakBits   bool
	WeakThreshold    float64
	PreserveWeakBits bool

	PLLMode      PLLMode
	PLLBandwidth float64
	PLLGain      float64

	AutoDetectFormat bool
	ForcedFormat     string
	ForcedEncoding   Encoding

	TimingTolerance float64 // fractional RPM deviation before flagging

	DetectProtection   bool
	PreserveProtection bool

	VerifyAfterWrite bool

	// Progress is invoked by disk-wide operations; returning false
	// aborts the operation.
	Progress func(percent int) bool
}

//
func DefaultParams() Params {
	return Params{
		MinRevolutions:     1,
		MaxRevolutions:     16,
		MultiRevMerge:      true,
		MergeStrategy:      MergeBest,
		MergeThreshold:     0.10,
		DetectWeakBits:     true,
		WeakThreshold:      0.20,
		PreserveWeakBits:   true,
		PLLMode:            PLLAdaptive,
		PLLBandwidth:       0.05,
		PLLGain:            0.65,
		AutoDetectFormat:   true,
		TimingTolerance:    0.05,
		DetectProtection:   true,
		PreserveProtection: true,
	}
}

// Step reports progress and returns false when the caller cancelled.
// Safe on a nil receiver, since parsers accept nil params.
func (p *Params) Step(percent int) bool {
	if p == nil || p.Progress == nil {
		return true
	}
	return p.Progress(percent)
}
