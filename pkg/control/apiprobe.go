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
	"io/ioutil"
	"net/http"

	"github.com/fluxkeep/fluxkeep/pkg/disk"
	"github.com/fluxkeep/fluxkeep/pkg/format"
	"github.com/fluxkeep/fluxkeep/pkg/format/atr"
	"github.com/fluxkeep/fluxkeep/pkg/fs/atari"
	"github.com/fluxkeep/fluxkeep/pkg/fs/fat"
	"github.com/fluxkeep/fluxkeep/pkg/repo"
)

// readImage fetches the image to operate on, either from the request
// body or, when a ?ref= argument is present, from the image repository.
func (a *api) readImage(w http.ResponseWriter, req *http.Request) []byte {

	if ref, _ := getArg(req, "ref"); ref != "" {
		data, err := repo.ReadImage(ref, a.repository)
		if handleError(err, http.StatusUnprocessableEntity, w) {
			return nil
		}
		return data
	}

	data, err := ioutil.ReadAll(
		http.MaxBytesReader(w, req.Body, maxImageBytes))
	req.Body.Close()
	if handleError(err, http.StatusRequestEntityTooLarge, w) {
		return nil
	}
	if len(data) == 0 {
		handleError(fmt.Errorf("empty request body"),
			http.StatusUnprocessableEntity, w)
		return nil
	}
	return data
}

// probe runs the image in the request body through the codec probe chain
// and returns a structural summary. ?detail=true adds per-track records.
func (a *api) probe(w http.ResponseWriter, req *http.Request) {

	data := a.readImage(w, req)
	if data == nil {
		return
	}

	codec, err := format.Detect(data)
	if err != nil {
		handleError(err, http.StatusUnprocessableEntity, w)
		return
	}

	par := disk.DefaultParams()
	d, err := codec.Open(data, &par)
	if err != nil {
		handleError(fmt.Errorf("%s image corrupted: %v", codec.Name(), err),
			http.StatusUnprocessableEntity, w)
		return
	}

	reply := &ProbeReply{
		Format:     d.Format,
		Tracks:     len(d.Tracks),
		Protection: d.Protection,
		WriteProt:  d.WriteProt,
	}

	if detail, _ := getArg(req, "detail"); detail == "true" {
		for _, t := range d.Tracks {
			reply.Detail = append(reply.Detail, &TrackReply{
				Cylinder:   t.Cylinder,
				Head:       t.Head,
				Encoding:   t.Encoding.String(),
				Bits:       t.BitCount,
				Flux:       t.HasFlux(),
				WeakBits:   t.WeakBitCount,
				Protection: t.Protection,
			})
		}
	}

	sendJSONReply(reply, http.StatusOK, w)
}

// fsList mounts the filesystem in the posted image and returns its root
// directory. Atari DOS and FAT volumes are told apart by their anchors:
// a valid BPB wins, otherwise the ATR/XFD geometry is tried.
func (a *api) fsList(w http.ResponseWriter, req *http.Request) {

	data := a.readImage(w, req)
	if data == nil {
		return
	}

	if det := fat.Detect(data); det.Valid {
		a.listFAT(w, data)
		return
	}

	img, err := atr.ParseATR(data)
	if err != nil {
		if img, err = atr.ParseXFD(data); err != nil {
			handleError(fmt.Errorf("no mountable filesystem found"),
				http.StatusUnprocessableEntity, w)
			return
		}
	}
	a.listAtari(w, img)
}

//
func (a *api) listFAT(w http.ResponseWriter, data []byte) {

	vol, err := fat.Open(data)
	if handleError(err, http.StatusUnprocessableEntity, w) {
		return
	}

	reply := &ListReply{
		Filesystem: vol.Type.String(),
		Label:      vol.Label(),
		FreeBytes:  vol.FreeSpace(),
	}
	for _, e := range vol.List() {
		reply.Files = append(reply.Files, &FileReply{
			Name:   e.FullName(),
			Size:   e.Size,
			Locked: e.Attr&fat.AttrReadOnly != 0,
		})
	}

	sendJSONReply(reply, http.StatusOK, w)
}

//
func (a *api) listAtari(w http.ResponseWriter, img *atr.Image) {

	fs, err := atari.Open(img)
	if handleError(err, http.StatusUnprocessableEntity, w) {
		return
	}

	reply := &ListReply{
		Filesystem: fs.Kind.String(),
		FreeBytes:  fs.FreeBytes(),
	}
	for _, e := range fs.List() {
		reply.Files = append(reply.Files, &FileReply{
			Name:   e.FullName(),
			Size:   e.SectorCount * img.Geometry.SectorSize,
			Locked: e.Locked(),
		})
	}

	sendJSONReply(reply, http.StatusOK, w)
}
