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

package control

import (
	"github.com/fluxkeep/fluxkeep/pkg/capability"
)

//
type FormatReply struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Extensions   []string `json:"extensions"`
	Capabilities string   `json:"capabilities"`
	MinCylinders int      `json:"minCylinders"`
	MaxCylinders int      `json:"maxCylinders"`
}

//
func newFormatReply(info *capability.FormatInfo) *FormatReply {
	return &FormatReply{
		Name:         info.Name,
		Description:  info.Description,
		Extensions:   info.Extensions,
		Capabilities: info.Caps.String(),
		MinCylinders: info.MinCylinders,
		MaxCylinders: info.MaxCylinders,
	}
}

//
type HardwareReply struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	Vendor       string `json:"vendor"`
	Capabilities string `json:"capabilities"`
	SampleRateLo int    `json:"sampleRateLo"`
	SampleRateHi int    `json:"sampleRateHi"`
	Linux        string `json:"linux"`
	MacOS        string `json:"macos"`
	Windows      string `json:"windows"`
}

//
func newHardwareReply(info *capability.HardwareInfo) *HardwareReply {
	return &HardwareReply{
		Name:         info.Name,
		Description:  info.Description,
		Vendor:       info.Vendor,
		Capabilities: info.Caps.String(),
		SampleRateLo: info.MinSampleRate,
		SampleRateHi: info.MaxSampleRate,
		Linux:        info.Linux.String(),
		MacOS:        info.MacOS.String(),
		Windows:      info.Windows.String(),
	}
}

//
type QueryReply struct {
	Supported    bool   `json:"supported"`
	Capabilities string `json:"capabilities"`
	Quality      int    `json:"quality"`
	Message      string `json:"message,omitempty"`
	Suggestion   string `json:"suggestion,omitempty"`
}

//
type PathReply struct {
	Steps []string `json:"steps"`
	Hops  int      `json:"hops"`
}

//
type MatrixReply struct {
	Formats  []*FormatReply   `json:"formats"`
	Hardware []*HardwareReply `json:"hardware"`
}

//
type TrackReply struct {
	Cylinder   int    `json:"cylinder"`
	Head       int    `json:"head"`
	Encoding   string `json:"encoding"`
	Bits       int    `json:"bits"`
	Flux       bool   `json:"flux"`
	WeakBits   int    `json:"weakBits,omitempty"`
	Protection uint32 `json:"protection,omitempty"`
}

//
type ProbeReply struct {
	Format     string        `json:"format"`
	Tracks     int           `json:"tracks"`
	Protection uint32        `json:"protection,omitempty"`
	WriteProt  bool          `json:"writeProtected,omitempty"`
	Detail     []*TrackReply `json:"detail,omitempty"`
}

//
type FileReply struct {
	Name    string `json:"name"`
	Size    int    `json:"size"`
	Locked  bool   `json:"locked,omitempty"`
	Deleted bool   `json:"deleted,omitempty"`
}

//
type ListReply struct {
	Filesystem string       `json:"filesystem"`
	Label      string       `json:"label,omitempty"`
	FreeBytes  int          `json:"freeBytes"`
	Files      []*FileReply `json:"files"`
}
