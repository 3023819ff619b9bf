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
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/fluxkeep/fluxkeep/pkg/disk"
	"github.com/fluxkeep/fluxkeep/pkg/format"
	"github.com/fluxkeep/fluxkeep/pkg/repo"
)

//
const runnerHelpPrologue = ""
const runnerHelpEpilogue = `- When a flag can be set via environment variable, the variable name is given
  in parenthesis at the end of the flag explanation. Note however that a flag,
  when specified overrides an environment variable.
`

/*
	NewRunner creates a base runner for commands to use. The parameters are
	passed to the base command wrapped by this runner.
*/
func NewRunner(use, short, long, helpPrologue, helpEpilogue string,
	exec func() error) *Runner {
	return &Runner{
		Command: *NewCommand(
			use, short, long, helpPrologue, helpEpilogue, exec),
	}
}

//
type Runner struct {
	//
	Command
	//
	Port int
}

//
func (r *Runner) AddBaseSettings() {
	// Implementation Note: This cannot be included in NewRunner, but rather has
	// to be called from the top level command type. Otherwise, we will confuse
	// Cobra/Viper and the settings will not be filled with their values.
	r.AddSetting(&r.Port, "port", "p", "FLUXKEEP_PORT", 8855,
		"port of the API server", false)
}

//
func (r *Runner) apiCall(method, path string, json bool,
	body io.Reader) (io.ReadCloser, error) {

	client := &http.Client{}
	req, err := http.NewRequest(
		method, fmt.Sprintf("http://127.0.0.1:%d%s", r.Port, path), body)
	if err != nil {
		return nil, err
	}

	if json {
		req.Header.Add("Content-Type", "application/json")
		req.Header.Add("Accept", "application/json")
	} else {
		req.Header.Add("Content-Type", "text/plain")
		req.Header.Add("Accept", "text/plain")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}

	return resp.Body, nil
}

//
func getExtension(file string) string {
	return strings.TrimPrefix(filepath.Ext(file), ".")
}

// readImageFile loads a disk image from a local file or, for repo://
// references, from the repository directory set via FLUXKEEP_REPO.
func readImageFile(file string) ([]byte, error) {
	if repo.IsReference(file) {
		return repo.ReadImage(file, os.Getenv("FLUXKEEP_REPO"))
	}
	return ioutil.ReadFile(file)
}

// openImage loads a disk image file and parses it through the probe chain,
// or through the codec for the given type when set.
func openImage(file, typ string) (*disk.Disk, format.Codec, error) {

	data, err := readImageFile(file)
	if err != nil {
		return nil, nil, err
	}

	var codec format.Codec
	if typ != "" {
		codec, err = format.New(typ)
	} else {
		codec, err = format.Detect(data)
	}
	if err != nil {
		return nil, nil, err
	}

	par := disk.DefaultParams()
	d, err := codec.Open(data, &par)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot open %s as %s: %v",
			file, codec.Name(), err)
	}
	return d, codec, nil
}
