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

// Package capability is the static contract surface: which operations each
// image format and each drive controller supports, how well a given pairing
// works, and how to route a conversion between two formats. The tables are
// populated at init and never mutated afterwards, so they can be shared
// freely between goroutines.
package capability

import (
	"strings"
)

// Cap is a format capability bitmask.
type Cap uint32

const (
	CapRead Cap = 1 << iota
	CapWrite
	CapConvertFrom
	CapConvertTo
	CapAnalyze
	CapRecover
	CapVerify
	CapFlux
	CapProtection
	CapMultiRev
	CapWeakBits
	CapHalfTracks
	CapVariableRPM
	CapIndexSync

	capCount = 14
)

var capNames = [capCount]string{
	"READ", "WRITE", "CONVERT_FROM", "CONVERT_TO", "ANALYZE", "RECOVER",
	"VERIFY", "FLUX", "PROTECTION", "MULTI_REV", "WEAK_BITS", "HALF_TRACKS",
	"VARIABLE_RPM", "INDEX_SYNC",
}

// String renders a capability mask as a pipe-separated flag list.
func (c Cap) String() string {
	var parts []string
	for i := 0; i < capCount; i++ {
		if c&(1<<uint(i)) != 0 {
			parts = append(parts, capNames[i])
		}
	}
	return strings.Join(parts, "|")
}

// ParseCaps inverts Cap.String. Separators may be '|' or ','; unknown
// flag names are ignored.
func ParseCaps(s string) Cap {
	var caps Cap
	for _, tok := range strings.FieldsFunc(s, func(r rune) bool {
		return r == '|' || r == ','
	}) {
		tok = strings.TrimSpace(tok)
		for i := 0; i < capCount; i++ {
			if strings.EqualFold(tok, capNames[i]) {
				caps |= 1 << uint(i)
				break
			}
		}
	}
	return caps
}

// HWCap is a hardware capability bitmask.
type HWCap uint32

const (
	HWRead HWCap = 1 << iota
	HWWrite
	HWFluxRead
	HWFluxWrite
	HWMultiRev
	HWIndex
	HWDensity
	HWSideSelect
	HWMotorCtrl
	HWErase
	HWPrecomp
	HWHighDensity
	HWExtraDensity
	HW8Inch

	hwCapCount = 14
)

var hwCapNames = [hwCapCount]string{
	"READ", "WRITE", "FLUX_READ", "FLUX_WRITE", "MULTI_REV", "INDEX",
	"DENSITY", "SIDE_SEL", "MOTOR_CTRL", "ERASE", "PRECOMP", "HD", "ED",
	"8INCH",
}

// String renders a hardware capability mask as a pipe-separated flag list.
func (c HWCap) String() string {
	var parts []string
	for i := 0; i < hwCapCount; i++ {
		if c&(1<<uint(i)) != 0 {
			parts = append(parts, hwCapNames[i])
		}
	}
	return strings.Join(parts, "|")
}

// Support is a per-platform support level.
type Support int

const (
	Unsupported Support = iota
	Experimental
	Partial
	Full
)

//
func (s Support) String() string {
	switch s {
	case Full:
		return "Full"
	case Partial:
		return "Partial"
	case Experimental:
		return "Experimental"
	default:
		return "Unsupported"
	}
}

// Format identifies an image container format.
type Format int

const (
	FormatUnknown Format = iota
	ADF
	D64
	G64
	SCP
	HFE
	WOZ
	A2R
	IPF
	IMG
	IMD
	TD0
	DMK
	NIB
	DO
	PO
	ATR
	ATX
	STX
)

//
func (f Format) String() string {
	if info := FormatInfoOf(f); info != nil {
		return info.Name
	}
	return "UNKNOWN"
}

// Hardware identifies a drive controller.
type Hardware int

const (
	HWNone Hardware = iota
	Greaseweazle
	FluxEngine
	KryoFlux
	SuperCardPro
	FC5025
	XUM1541
)

//
func (h Hardware) String() string {
	if info := HardwareInfoOf(h); info != nil {
		return info.Name
	}
	return "NONE"
}

// FormatInfo describes one image format: what it can express and the
// geometry range it covers. Sector bounds of zero mean the format is not
// sector-addressed.
type FormatInfo struct {
	Format       Format
	Name         string
	Description  string
	Extensions   []string
	Caps         Cap
	MinCylinders int
	MaxCylinders int
	MinHeads     int
	MaxHeads     int
	MinSectors   int
	MaxSectors   int
	Version      string
	Origin       string
}

// HardwareInfo describes one drive controller. Sample rates are in Hz;
// zero means the device reports no flux clock.
type HardwareInfo struct {
	Hardware      Hardware
	Name          string
	Description   string
	Vendor        string
	Caps          HWCap
	MinSampleRate int
	MaxSampleRate int
	MaxCylinders  int
	MaxHeads      int
	Media         string
	Linux         Support
	MacOS         Support
	Windows       Support
	Connection    string
	URL           string
}

// CompatEntry records a tested format/hardware pairing.
type CompatEntry struct {
	Format      Format
	Hardware    Hardware
	Caps        Cap
	Quality     int
	Notes       string
	Limitations string
}

// Result is the answer to a capability query.
type Result struct {
	Supported  bool
	Caps       Cap
	Quality    int
	Message    string
	Suggestion string
}

var formatDB = []FormatInfo{
	{ADF, "ADF", "Amiga Disk File", []string{"adf"},
		CapRead | CapWrite | CapConvertFrom | CapConvertTo | CapAnalyze | CapVerify,
		80, 84, 2, 2, 11, 22, "1.0", "Commodore"},

	{D64, "D64", "Commodore 64 Disk Image", []string{"d64"},
		CapRead | CapWrite | CapConvertFrom | CapConvertTo | CapAnalyze | CapProtection,
		35, 42, 1, 1, 17, 21, "1.0", "Commodore"},

	{G64, "G64", "Commodore 64 GCR Image", []string{"g64"},
		CapRead | CapWrite | CapConvertFrom | CapFlux | CapProtection | CapHalfTracks,
		35, 84, 1, 2, 0, 0, "1.0", "VICE"},

	{SCP, "SCP", "SuperCard Pro Flux", []string{"scp"},
		CapRead | CapWrite | CapConvertFrom | CapFlux | CapMultiRev |
			CapWeakBits | CapProtection | CapIndexSync,
		0, 255, 1, 2, 0, 0, "3.0", "SCP"},

	{HFE, "HFE", "HxC Floppy Emulator Image", []string{"hfe"},
		CapRead | CapWrite | CapConvertFrom | CapConvertTo | CapFlux,
		0, 255, 1, 2, 0, 0, "3.0", "HxC"},

	{WOZ, "WOZ", "Apple II Flux Image", []string{"woz"},
		CapRead | CapWrite | CapConvertFrom | CapFlux | CapMultiRev |
			CapWeakBits | CapHalfTracks,
		0, 80, 1, 2, 0, 0, "2.1", "Applesauce"},

	{A2R, "A2R", "Applesauce Raw Flux", []string{"a2r"},
		CapRead | CapConvertFrom | CapFlux | CapMultiRev | CapWeakBits | CapIndexSync,
		0, 80, 1, 2, 0, 0, "3.0", "Applesauce"},

	{IPF, "IPF", "Interchangeable Preservation Format", []string{"ipf"},
		CapRead | CapConvertFrom | CapFlux | CapProtection | CapWeakBits,
		0, 255, 1, 2, 0, 0, "2.0", "SPS/CAPS"},

	{IMG, "IMG", "Raw Sector Image", []string{"img", "ima", "dsk"},
		CapRead | CapWrite | CapConvertFrom | CapConvertTo | CapAnalyze | CapVerify,
		40, 82, 1, 2, 8, 36, "1.0", "PC"},

	{IMD, "IMD", "ImageDisk", []string{"imd"},
		CapRead | CapWrite | CapConvertFrom | CapConvertTo | CapAnalyze,
		0, 255, 1, 2, 0, 255, "1.18", "ImageDisk"},

	{TD0, "TD0", "Teledisk", []string{"td0"},
		CapRead | CapConvertFrom | CapAnalyze,
		0, 255, 1, 2, 0, 255, "2.0", "Sydex"},

	{DMK, "DMK", "David M. Keil TRS-80 Format", []string{"dmk"},
		CapRead | CapWrite | CapConvertFrom | CapFlux,
		0, 255, 1, 2, 0, 0, "1.0", "TRS-80"},

	{NIB, "NIB", "Apple II Nibble Image", []string{"nib"},
		CapRead | CapWrite | CapConvertFrom | CapFlux,
		35, 40, 1, 1, 0, 0, "1.0", "Apple"},

	{DO, "DO", "Apple DOS Order", []string{"do", "dsk"},
		CapRead | CapWrite | CapConvertFrom | CapConvertTo,
		35, 40, 1, 1, 16, 16, "1.0", "Apple"},

	{PO, "PO", "Apple ProDOS Order", []string{"po"},
		CapRead | CapWrite | CapConvertFrom | CapConvertTo,
		35, 40, 1, 1, 16, 16, "1.0", "Apple"},

	{ATR, "ATR", "Atari 8-bit Disk Image", []string{"atr"},
		CapRead | CapWrite | CapConvertFrom | CapConvertTo | CapAnalyze,
		1, 80, 1, 2, 18, 26, "1.0", "Atari"},

	{ATX, "ATX", "Atari Extended Disk Image", []string{"atx"},
		CapRead | CapConvertFrom | CapProtection | CapWeakBits,
		1, 80, 1, 2, 0, 0, "1.0", "VAPI"},

	{STX, "STX", "Atari ST Pasti Image", []string{"stx"},
		CapRead | CapConvertFrom | CapFlux | CapProtection,
		0, 86, 1, 2, 0, 0, "1.0", "Pasti"},
}

var hardwareDB = []HardwareInfo{
	{Greaseweazle, "Greaseweazle", "Open source USB floppy adapter", "Keir Fraser",
		HWRead | HWWrite | HWFluxRead | HWFluxWrite | HWMultiRev | HWIndex |
			HWDensity | HWSideSelect | HWHighDensity | HWPrecomp,
		4000000, 84000000, 84, 2, `3.5",5.25",8"`,
		Full, Full, Full, "USB",
		"https://github.com/keirf/greaseweazle"},

	{FluxEngine, "FluxEngine", "Cypress PSoC5 based USB adapter", "David Given",
		HWRead | HWWrite | HWFluxRead | HWFluxWrite | HWMultiRev | HWIndex | HWDensity,
		1000000, 12000000, 83, 2, `3.5",5.25"`,
		Full, Full, Full, "USB",
		"http://cowlark.com/fluxengine/"},

	{KryoFlux, "KryoFlux", "Professional USB floppy controller", "SPS",
		HWRead | HWFluxRead | HWMultiRev | HWIndex | HWDensity |
			HWHighDensity | HW8Inch,
		1000000, 24000000, 84, 2, `3.5",5.25",8"`,
		Full, Partial, Full, "USB",
		"https://kryoflux.com/"},

	{SuperCardPro, "SuperCard Pro", "Professional flux controller", "Jim Drew",
		HWRead | HWWrite | HWFluxRead | HWFluxWrite | HWMultiRev | HWIndex |
			HWHighDensity,
		1000000, 50000000, 84, 2, `3.5",5.25"`,
		Full, Partial, Full, "USB",
		"https://www.cbmstuff.com/"},

	{FC5025, "FC5025", "Device Side Data USB controller", "Device Side Data",
		HWRead | HWWrite | HWDensity,
		0, 0, 80, 1, `5.25"`,
		Partial, Partial, Full, "USB",
		"http://www.deviceside.com/"},

	{XUM1541, "XUM1541", "Commodore disk drive interface", "OpenCBM",
		HWRead | HWWrite,
		0, 0, 42, 1, "1541,1571,1581",
		Full, Partial, Partial, "USB",
		"https://github.com/OpenCBM/OpenCBM"},
}

var compatDB = []CompatEntry{
	{ADF, Greaseweazle,
		CapRead | CapWrite | CapFlux | CapVerify, 100,
		"Full support", ""},
	{D64, Greaseweazle,
		CapRead | CapWrite | CapFlux | CapProtection, 95,
		"Excellent with 1541 drive profile", ""},
	{SCP, Greaseweazle,
		CapRead | CapWrite | CapFlux | CapMultiRev, 100,
		"Native format", ""},

	{ADF, FluxEngine,
		CapRead | CapWrite | CapFlux, 95,
		"Good support", ""},
	{D64, FluxEngine,
		CapRead | CapWrite | CapFlux, 90,
		"Good support", "May need timing adjustments"},

	{IPF, KryoFlux,
		CapRead | CapFlux | CapProtection, 100,
		"Best for preservation", "Write limited"},
	{SCP, KryoFlux,
		CapRead | CapFlux | CapMultiRev, 95,
		"Excellent read quality", "Write limited"},

	{D64, XUM1541,
		CapRead | CapWrite, 100,
		"Native Commodore support", "Requires 1541/1571 drive"},
	{G64, XUM1541,
		CapRead | CapWrite | CapProtection, 95,
		"GCR support via nibbler tools", ""},
}

// Formats lists every known format.
func Formats() []Format {
	list := make([]Format, len(formatDB))
	for i := range formatDB {
		list[i] = formatDB[i].Format
	}
	return list
}

// HardwareList lists every known controller.
func HardwareList() []Hardware {
	list := make([]Hardware, len(hardwareDB))
	for i := range hardwareDB {
		list[i] = hardwareDB[i].Hardware
	}
	return list
}

// FormatInfoOf returns the database record for a format, nil if unknown.
func FormatInfoOf(f Format) *FormatInfo {
	for i := range formatDB {
		if formatDB[i].Format == f {
			return &formatDB[i]
		}
	}
	return nil
}

// HardwareInfoOf returns the database record for a controller, nil if
// unknown.
func HardwareInfoOf(h Hardware) *HardwareInfo {
	for i := range hardwareDB {
		if hardwareDB[i].Hardware == h {
			return &hardwareDB[i]
		}
	}
	return nil
}

// FormatByName resolves a format by its canonical name, case insensitive.
func FormatByName(name string) Format {
	for i := range formatDB {
		if strings.EqualFold(formatDB[i].Name, name) {
			return formatDB[i].Format
		}
	}
	return FormatUnknown
}

// FormatByExtension resolves a format by file extension. A leading dot is
// accepted. Ambiguous extensions (dsk) resolve to the first match in
// database order.
func FormatByExtension(ext string) Format {
	ext = strings.TrimPrefix(ext, ".")
	for i := range formatDB {
		for _, e := range formatDB[i].Extensions {
			if strings.EqualFold(e, ext) {
				return formatDB[i].Format
			}
		}
	}
	return FormatUnknown
}

// HardwareByName resolves a controller by name, case insensitive.
func HardwareByName(name string) Hardware {
	for i := range hardwareDB {
		if strings.EqualFold(hardwareDB[i].Name, name) {
			return hardwareDB[i].Hardware
		}
	}
	return HWNone
}

// FormatCaps returns the capability mask of a format, zero if unknown.
func FormatCaps(f Format) Cap {
	if info := FormatInfoOf(f); info != nil {
		return info.Caps
	}
	return 0
}

// HardwareCaps returns the capability mask of a controller, zero if
// unknown.
func HardwareCaps(h Hardware) HWCap {
	if info := HardwareInfoOf(h); info != nil {
		return info.Caps
	}
	return 0
}

// Check reports whether a format supports a capability.
func Check(f Format, c Cap) bool {
	return FormatCaps(f)&c != 0
}

// CompatLookup returns the tested pairing entry, nil when the pairing has
// no dedicated entry.
func CompatLookup(f Format, h Hardware) *CompatEntry {
	for i := range compatDB {
		if compatDB[i].Format == f && compatDB[i].Hardware == h {
			return &compatDB[i]
		}
	}
	return nil
}

// Compatible resolves a format/hardware pairing. A tested entry wins;
// otherwise the generic intersection of the two capability masks decides,
// restricted to READ and WRITE, at quality 50.
func Compatible(f Format, h Hardware) Result {
	if e := CompatLookup(f, h); e != nil {
		return Result{
			Supported:  true,
			Caps:       e.Caps,
			Quality:    e.Quality,
			Message:    e.Notes,
			Suggestion: e.Limitations,
		}
	}

	fc := FormatCaps(f)
	hc := HardwareCaps(h)

	var caps Cap
	if fc&CapRead != 0 && hc&HWRead != 0 {
		caps |= CapRead
	}
	if fc&CapWrite != 0 && hc&HWWrite != 0 {
		caps |= CapWrite
	}

	return Result{
		Supported:  caps != 0,
		Caps:       caps,
		Quality:    50,
		Message:    "Generic compatibility",
		Suggestion: "Check specific format requirements",
	}
}

// Query answers whether an operation is available for a format, optionally
// constrained to a controller. With HWNone the format capabilities alone
// decide, at quality 100.
func Query(f Format, h Hardware, op Cap) Result {
	if h == HWNone {
		caps := FormatCaps(f)
		res := Result{
			Supported: caps&op != 0,
			Caps:      caps,
		}
		if res.Supported {
			res.Quality = 100
			res.Message = "Format supports operation"
		} else {
			res.Message = "Format does not support operation"
		}
		return res
	}

	res := Compatible(f, h)
	res.Supported = res.Supported && res.Caps&op != 0
	return res
}

// FormatsWith lists the formats carrying a capability.
func FormatsWith(c Cap) []Format {
	var list []Format
	for i := range formatDB {
		if formatDB[i].Caps&c != 0 {
			list = append(list, formatDB[i].Format)
		}
	}
	return list
}

// FormatsFor lists the formats usable with a controller.
func FormatsFor(h Hardware) []Format {
	var list []Format
	for i := range formatDB {
		if Compatible(formatDB[i].Format, h).Supported {
			list = append(list, formatDB[i].Format)
		}
	}
	return list
}

// HardwareWith lists the controllers carrying a hardware capability.
func HardwareWith(c HWCap) []Hardware {
	var list []Hardware
	for i := range hardwareDB {
		if hardwareDB[i].Caps&c != 0 {
			list = append(list, hardwareDB[i].Hardware)
		}
	}
	return list
}

// BestHardware picks the highest-quality tested controller for an
// operation on a format, HWNone when no tested pairing covers it.
func BestHardware(f Format, op Cap) Hardware {
	best := HWNone
	quality := 0
	for i := range compatDB {
		e := &compatDB[i]
		if e.Format == f && e.Caps&op != 0 && e.Quality > quality {
			best = e.Hardware
			quality = e.Quality
		}
	}
	return best
}

// SuggestTarget picks the writable format that best preserves the
// requested capabilities, scored FLUX 10, PROTECTION 8, WEAK_BITS 5.
// FormatUnknown when no candidate preserves anything requested.
func SuggestTarget(source Format, preserve Cap) Format {
	best := FormatUnknown
	bestScore := 0

	for i := range formatDB {
		info := &formatDB[i]
		if info.Format == source || info.Caps&CapConvertTo == 0 {
			continue
		}

		score := 0
		if preserve&CapFlux != 0 && info.Caps&CapFlux != 0 {
			score += 10
		}
		if preserve&CapProtection != 0 && info.Caps&CapProtection != 0 {
			score += 8
		}
		if preserve&CapWeakBits != 0 && info.Caps&CapWeakBits != 0 {
			score += 5
		}

		if score > bestScore {
			best = info.Format
			bestScore = score
		}
	}

	return best
}

// ConversionPath finds a conversion route between two formats. A direct
// route needs CONVERT_FROM on the source and CONVERT_TO on the target;
// failing that a 3-step route via the flux-universal SCP container is
// tried. Returns the hop sequence including both endpoints, nil when no
// route exists.
func ConversionPath(source, target Format) []Format {
	sc := FormatCaps(source)
	tc := FormatCaps(target)

	if sc&CapConvertFrom != 0 && tc&CapConvertTo != 0 {
		return []Format{source, target}
	}

	if source != SCP && target != SCP {
		if sc&CapFlux != 0 && tc&CapFlux != 0 &&
			sc&CapConvertFrom != 0 && tc&CapWrite != 0 {
			return []Format{source, SCP, target}
		}
	}

	return nil
}
