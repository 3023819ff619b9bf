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
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/fluxkeep/fluxkeep/pkg/capability"
)

//
func (a *api) capabilities(w http.ResponseWriter, req *http.Request) {

	reply := &MatrixReply{}
	for _, f := range capability.Formats() {
		reply.Formats = append(reply.Formats,
			newFormatReply(capability.FormatInfoOf(f)))
	}
	for _, h := range capability.HardwareList() {
		reply.Hardware = append(reply.Hardware,
			newHardwareReply(capability.HardwareInfoOf(h)))
	}
	sendJSONReply(reply, http.StatusOK, w)
}

//
func (a *api) formats(w http.ResponseWriter, req *http.Request) {

	var reply []*FormatReply
	for _, f := range capability.Formats() {
		reply = append(reply, newFormatReply(capability.FormatInfoOf(f)))
	}
	sendJSONReply(reply, http.StatusOK, w)
}

//
func (a *api) format(w http.ResponseWriter, req *http.Request) {

	name := mux.Vars(req)["name"]
	f := capability.FormatByName(name)
	if f == capability.FormatUnknown {
		f = capability.FormatByExtension(name)
	}
	if f == capability.FormatUnknown {
		handleError(fmt.Errorf("unknown format: %s", name),
			http.StatusNotFound, w)
		return
	}
	sendJSONReply(newFormatReply(capability.FormatInfoOf(f)), http.StatusOK, w)
}

//
func (a *api) hardware(w http.ResponseWriter, req *http.Request) {

	var reply []*HardwareReply
	for _, h := range capability.HardwareList() {
		reply = append(reply, newHardwareReply(capability.HardwareInfoOf(h)))
	}
	sendJSONReply(reply, http.StatusOK, w)
}

//
func (a *api) hardwareOne(w http.ResponseWriter, req *http.Request) {

	name := mux.Vars(req)["name"]
	h := capability.HardwareByName(name)
	if h == capability.HWNone {
		handleError(fmt.Errorf("unknown hardware: %s", name),
			http.StatusNotFound, w)
		return
	}
	sendJSONReply(newHardwareReply(capability.HardwareInfoOf(h)), http.StatusOK, w)
}

// query answers /query?format=SCP&hardware=KryoFlux&op=READ; hardware is
// optional.
func (a *api) query(w http.ResponseWriter, req *http.Request) {

	name, err := getArg(req, "format")
	if handleError(err, http.StatusUnprocessableEntity, w) {
		return
	}
	f := capability.FormatByName(name)
	if f == capability.FormatUnknown {
		handleError(fmt.Errorf("unknown format: %s", name),
			http.StatusUnprocessableEntity, w)
		return
	}

	hw := capability.HWNone
	if name, err = getArg(req, "hardware"); err == nil && name != "" {
		if hw = capability.HardwareByName(name); hw == capability.HWNone {
			handleError(fmt.Errorf("unknown hardware: %s", name),
				http.StatusUnprocessableEntity, w)
			return
		}
	}

	opStr, err := getArg(req, "op")
	if handleError(err, http.StatusUnprocessableEntity, w) {
		return
	}
	op := capability.ParseCaps(opStr)
	if op == 0 {
		handleError(fmt.Errorf("unknown operation: %s", opStr),
			http.StatusUnprocessableEntity, w)
		return
	}

	res := capability.Query(f, hw, op)
	sendJSONReply(&QueryReply{
		Supported:    res.Supported,
		Capabilities: res.Caps.String(),
		Quality:      res.Quality,
		Message:      res.Message,
		Suggestion:   res.Suggestion,
	}, http.StatusOK, w)
}

//
func (a *api) convertPath(w http.ResponseWriter, req *http.Request) {

	from, to, ok := a.formatPair(w, req, "from", "to")
	if !ok {
		return
	}

	path := capability.ConversionPath(from, to)
	reply := &PathReply{Hops: -1}
	for _, f := range path {
		reply.Steps = append(reply.Steps, f.String())
	}
	if path != nil {
		reply.Hops = len(path)
	}
	sendJSONReply(reply, http.StatusOK, w)
}

//
func (a *api) suggest(w http.ResponseWriter, req *http.Request) {

	name, err := getArg(req, "source")
	if handleError(err, http.StatusUnprocessableEntity, w) {
		return
	}
	src := capability.FormatByName(name)
	if src == capability.FormatUnknown {
		handleError(fmt.Errorf("unknown format: %s", name),
			http.StatusUnprocessableEntity, w)
		return
	}

	maskStr, err := getArg(req, "preserve")
	if handleError(err, http.StatusUnprocessableEntity, w) {
		return
	}

	target := capability.SuggestTarget(src, capability.ParseCaps(maskStr))
	if target == capability.FormatUnknown {
		handleError(fmt.Errorf("no target preserves %s", maskStr),
			http.StatusNotFound, w)
		return
	}
	sendJSONReply(newFormatReply(capability.FormatInfoOf(target)),
		http.StatusOK, w)
}

//
func (a *api) formatPair(w http.ResponseWriter, req *http.Request,
	argA, argB string) (capability.Format, capability.Format, bool) {

	nameA, err := getArg(req, argA)
	if handleError(err, http.StatusUnprocessableEntity, w) {
		return 0, 0, false
	}
	nameB, err := getArg(req, argB)
	if handleError(err, http.StatusUnprocessableEntity, w) {
		return 0, 0, false
	}

	fa := capability.FormatByName(nameA)
	fb := capability.FormatByName(nameB)
	if fa == capability.FormatUnknown || fb == capability.FormatUnknown {
		handleError(fmt.Errorf("unknown format in %s/%s", nameA, nameB),
			http.StatusUnprocessableEntity, w)
		return 0, 0, false
	}
	return fa, fb, true
}
