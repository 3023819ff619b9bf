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

// Package flux analyzes raw flux timing distributions. A formatted track
// shows a small number of sharp peaks in its timing histogram; their
// positions identify the encoding, and deviations from the clean pattern
// identify copy-protection artifacts.
package flux

import (
	"math"
)

// HistBins is the histogram size; bin index equals the flux value in
// sample ticks, saturating at the top bin.
const HistBins = 1024

// MaxPeaks bounds peak detection.
const MaxPeaks = 8

// Classification of a flux timing distribution.
type Class int

const (
	ClassUnknown Class = iota
	ClassMFMDD
	ClassMFMHD
	ClassMFMED
	ClassFMSD
	ClassGCR
	ClassAmigaDD
	ClassProtected
	ClassEmpty
)

//
func (c Class) String() string {
	switch c {
	case ClassMFMDD:
		return "MFM DD"
	case ClassMFMHD:
		return "MFM HD"
	case ClassMFMED:
		return "MFM ED"
	case ClassFMSD:
		return "FM SD"
	case ClassGCR:
		return "GCR"
	case ClassAmigaDD:
		return "Amiga DD"
	case ClassProtected:
		return "PROTECTED"
	case ClassEmpty:
		return "empty/unformatted"
	default:
		return "unknown"
	}
}

// Protection anomaly flags.
const (
	ProtFuzzyBits uint32 = 1 << iota
	ProtNoiseFloor
	ProtExtraPeaks
	ProtTimingSkew
)

// Peak is one detected histogram maximum.
type Peak struct {
	Bin     int // flux value in ticks
	TimeUS  float64
	Count   uint32
	Percent float64
	Width   int // FWHM in bins
}

// Histogram is the analysis result for one flux array.
type Histogram struct {
	Bins       [HistBins]uint32
	Total      uint32
	MinFlux    uint32
	MaxFlux    uint32
	SckHz      float64
	Peaks      []Peak
	Encoding   Class
	// BaseEncoding keeps the standard encoding detected before any
	// protection override, so callers can still infer the carrier.
	BaseEncoding Class
	ProtFlags    uint32
	NoiseRatio   float64
}

// Analyze builds the histogram for the given flux values and sample
// clock, detects peaks and classifies the encoding.
func Analyze(flux []uint32, sckHz float64) *Histogram {

	h := &Histogram{SckHz: sckHz, MinFlux: math.MaxUint32}

	for _, v := range flux {
		if v < h.MinFlux {
			h.MinFlux = v
		}
		if v > h.MaxFlux {
			h.MaxFlux = v
		}
		bin := v
		if bin >= HistBins {
			bin = HistBins - 1
		}
		h.Bins[bin]++
		h.Total++
	}
	if h.Total == 0 {
		h.MinFlux = 0
	}

	h.findPeaks()
	h.classify()

	return h
}

//
func (h *Histogram) binUS(i int) float64 {
	return float64(i) / h.SckHz * 1e6
}

// findPeaks scans for bins whose 7-point moving average clears the
// threshold and whose raw count is strictly greater than every bin
// within ±3. FWHM is measured where the count drops below half-peak.
func (h *Histogram) findPeaks() {

	threshold := h.Total / 100
	if threshold < 10 {
		threshold = 10
	}

	for i := 3; i < HistBins-3 && len(h.Peaks) < MaxPeaks; i++ {

		var sum uint32
		for j := -3; j <= 3; j++ {
			sum += h.Bins[i+j]
		}
		if sum/7 < threshold {
			continue
		}

		center := h.Bins[i]
		isPeak := true
		for j := -3; j <= 3; j++ {
			if j == 0 {
				continue
			}
			if h.Bins[i+j] >= center {
				isPeak = false
				break
			}
		}
		if !isPeak {
			continue
		}

		half := center / 2
		left, right := i, i
		for left > 0 && h.Bins[left] > half {
			left--
		}
		for right < HistBins-1 && h.Bins[right] > half {
			right++
		}

		h.Peaks = append(h.Peaks, Peak{
			Bin:     i,
			TimeUS:  h.binUS(i),
			Count:   center,
			Percent: float64(center) * 100 / float64(h.Total),
			Width:   right - left,
		})

		i = right + 2
	}
}

// tripleIn reports whether any ordered triple of detected peaks falls
// into the three given µs windows. All combinations are tried so that
// protection peaks cannot defeat detection of the carrier encoding.
func (h *Histogram) tripleIn(lo0, hi0, lo1, hi1, lo2, hi2 float64) bool {
	n := len(h.Peaks)
	for i := 0; i < n-2; i++ {
		for j := i + 1; j < n-1; j++ {
			for k := j + 1; k < n; k++ {
				p0 := h.Peaks[i].TimeUS
				p1 := h.Peaks[j].TimeUS
				p2 := h.Peaks[k].TimeUS
				if p0 > lo0 && p0 < hi0 &&
					p1 > lo1 && p1 < hi1 &&
					p2 > lo2 && p2 < hi2 {
					return true
				}
			}
		}
	}
	return false
}

//
func (h *Histogram) classify() {

	if len(h.Peaks) == 0 {
		h.Encoding = ClassEmpty
		h.BaseEncoding = ClassEmpty
		return
	}

	h.computeNoiseRatio()

	switch {
	case len(h.Peaks) >= 3:
		if h.tripleIn(3.3, 4.7, 5.3, 6.7, 7.3, 8.7) {
			h.Encoding = ClassMFMDD
		} else if h.tripleIn(1.5, 2.5, 2.5, 3.5, 3.5, 4.5) {
			h.Encoding = ClassMFMHD
		} else if h.tripleIn(3.0, 4.8, 5.0, 7.0, 7.0, 9.0) {
			h.Encoding = ClassAmigaDD
		}
	case len(h.Peaks) == 2:
		p0, p1 := h.Peaks[0].TimeUS, h.Peaks[1].TimeUS
		if p0 > 3.5 && p0 < 4.5 && p1 > 7.5 && p1 < 8.5 {
			h.Encoding = ClassFMSD
		}
	}
	h.BaseEncoding = h.Encoding

	if h.NoiseRatio > 0.25 {
		h.ProtFlags |= ProtNoiseFloor
	}

	if (h.Encoding == ClassMFMDD || h.Encoding == ClassMFMHD) &&
		len(h.Peaks) > 3 {
		h.ProtFlags |= ProtExtraPeaks
	}

	for _, p := range h.Peaks {
		if p.Width > 12 {
			h.ProtFlags |= ProtFuzzyBits
			break
		}
	}

	if h.Encoding == ClassMFMDD && len(h.Peaks) >= 3 {
		ratio := h.Peaks[1].TimeUS / h.Peaks[0].TimeUS
		if math.Abs(ratio-1.5) > 0.15 {
			h.ProtFlags |= ProtTimingSkew
		}
	}

	// strong anomalies override the classification, the peak data stays
	// so the carrier encoding can still be inferred
	if h.ProtFlags&(ProtExtraPeaks|ProtFuzzyBits|ProtTimingSkew) != 0 &&
		h.Encoding != ClassUnknown {
		h.Encoding = ClassProtected
	}
}

// noise ratio compares flux counts between peaks to counts within the
// half-width spans of the peaks.
func (h *Histogram) computeNoiseRatio() {

	var peakTotal, noiseTotal uint32

	for i := 0; i < HistBins; i++ {
		inPeak := false
		for _, p := range h.Peaks {
			halfW := p.Width/2 + 1
			if i >= p.Bin-halfW && i <= p.Bin+halfW {
				inPeak = true
				break
			}
		}
		if inPeak {
			peakTotal += h.Bins[i]
		} else {
			noiseTotal += h.Bins[i]
		}
	}

	if peakTotal > 0 {
		h.NoiseRatio = float64(noiseTotal) / float64(peakTotal)
	}
}
