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
	"bytes"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxkeep/fluxkeep/pkg/format/atr"
	"github.com/fluxkeep/fluxkeep/pkg/fs/atari"
)

//
func doRequest(t *testing.T, method, target string, body []byte) *httptest.ResponseRecorder {
	a := &api{}
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	a.router().ServeHTTP(rec, req)
	return rec
}

//
func decode(t *testing.T, rec *httptest.ResponseRecorder, into interface{}) {
	require.Equal(t, "application/json; charset=UTF-8",
		rec.Header().Get("Content-Type"))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), into))
}

// atariImage builds a DOS 2.0 SD disk with one file and returns it in
// ATR framing.
func atariImage(t *testing.T) []byte {

	img, err := atr.ParseXFD(make([]byte, atr.SizeSD))
	require.NoError(t, err)

	fs, err := atari.Format(img, atari.KindDOS2)
	require.NoError(t, err)
	require.NoError(t, fs.WriteFile("README.TXT", bytes.Repeat([]byte{0x41}, 200)))

	var buf bytes.Buffer
	require.NoError(t, img.WriteATR(&buf))
	return buf.Bytes()
}

func TestCapabilitiesEndpoint(t *testing.T) {

	rec := doRequest(t, "GET", "/capabilities", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var reply MatrixReply
	decode(t, rec, &reply)
	assert.Len(t, reply.Formats, 18)
	assert.Len(t, reply.Hardware, 6)
}

func TestFormatEndpoint(t *testing.T) {

	rec := doRequest(t, "GET", "/formats/scp", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var reply FormatReply
	decode(t, rec, &reply)
	assert.Equal(t, "SCP", reply.Name)
	assert.Contains(t, reply.Capabilities, "FLUX")

	// extension fallback
	rec = doRequest(t, "GET", "/formats/ima", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &reply)
	assert.Equal(t, "IMG", reply.Name)

	rec = doRequest(t, "GET", "/formats/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestQueryEndpoint(t *testing.T) {

	rec := doRequest(t, "GET",
		"/query?format=SCP&hardware=Greaseweazle&op=READ", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var reply QueryReply
	decode(t, rec, &reply)
	assert.True(t, reply.Supported)
	assert.Equal(t, 100, reply.Quality)
	assert.Equal(t, "Native format", reply.Message)

	rec = doRequest(t, "GET", "/query?format=IPF&op=WRITE", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &reply)
	assert.False(t, reply.Supported)

	rec = doRequest(t, "GET", "/query?format=IPF&op=FROB", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestConvertPathEndpoint(t *testing.T) {

	rec := doRequest(t, "GET", "/convert/path?from=IPF&to=HFE", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var reply PathReply
	decode(t, rec, &reply)
	assert.Equal(t, 2, reply.Hops)
	assert.Equal(t, []string{"IPF", "HFE"}, reply.Steps)

	rec = doRequest(t, "GET", "/convert/path?from=G64&to=WOZ", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &reply)
	assert.Equal(t, 3, reply.Hops)
	assert.Equal(t, []string{"G64", "SCP", "WOZ"}, reply.Steps)

	rec = doRequest(t, "GET", "/convert/path?from=TD0&to=A2R", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &reply)
	assert.Equal(t, -1, reply.Hops)
}

func TestSuggestEndpoint(t *testing.T) {

	rec := doRequest(t, "GET", "/convert/suggest?source=SCP&preserve=FLUX", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var reply FormatReply
	decode(t, rec, &reply)
	assert.Equal(t, "HFE", reply.Name)

	rec = doRequest(t, "GET",
		"/convert/suggest?source=SCP&preserve=PROTECTION", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProbeEndpoint(t *testing.T) {

	rec := doRequest(t, "PUT", "/probe?detail=true", atariImage(t))
	require.Equal(t, http.StatusOK, rec.Code)

	var reply ProbeReply
	decode(t, rec, &reply)
	assert.Equal(t, "atr", reply.Format)
	assert.Equal(t, 40, reply.Tracks)
	require.Len(t, reply.Detail, 40)
	assert.Equal(t, "FM", reply.Detail[0].Encoding)

	rec = doRequest(t, "PUT", "/probe", []byte{0xDE, 0xAD})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = doRequest(t, "PUT", "/probe", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestFsListEndpoint(t *testing.T) {

	rec := doRequest(t, "PUT", "/fs/list", atariImage(t))
	require.Equal(t, http.StatusOK, rec.Code)

	var reply ListReply
	decode(t, rec, &reply)
	assert.Contains(t, reply.Filesystem, "Atari")
	require.Len(t, reply.Files, 1)
	assert.Equal(t, "README.TXT", reply.Files[0].Name)
	assert.NotZero(t, reply.FreeBytes)

	rec = doRequest(t, "PUT", "/fs/list", []byte("not an image at all"))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestProbeFromRepository(t *testing.T) {

	dir := t.TempDir()
	require.NoError(t,
		ioutil.WriteFile(filepath.Join(dir, "test.atr"), atariImage(t), 0644))

	a := &api{repository: dir}
	req := httptest.NewRequest("PUT", "/probe?ref=repo%3A%2F%2Ftest.atr", nil)
	rec := httptest.NewRecorder()
	a.router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var reply ProbeReply
	decode(t, rec, &reply)
	assert.Equal(t, "atr", reply.Format)

	req = httptest.NewRequest("PUT", "/probe?ref=repo%3A%2F%2Fmissing.atr", nil)
	rec = httptest.NewRecorder()
	a.router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
