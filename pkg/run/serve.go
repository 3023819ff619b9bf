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
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/fluxkeep/fluxkeep/pkg/control"
)

//
func NewServe() *Serve {

	s := &Serve{}
	s.Runner = *NewRunner(
		"serve [-a|--address {address}] [-r|--repo {directory}]",
		"API server command",
		`
Use the serve command to run the API server. It exposes the capability matrix
and the probe and filesystem listing endpoints over HTTP. When a repository
directory is set, the probe and fs endpoints also accept repo:// references
instead of an image in the request body.`,
		"", `- Logging can be configured with these environment variables:

  LOG_FORMAT		set to 'json' for JSON logging
  LOG_FORCE_COLORS	set to non-empty for forcing colorized log entries
  LOG_METHODS		set to non-empty for including methods in log
  LOG_LEVEL		panic, fatal, error, warn, info, debug, trace

`+runnerHelpEpilogue, s.Run)

	s.AddBaseSettings()
	s.AddSetting(&s.Address, "address", "a", "FLUXKEEP_ADDRESS", "0.0.0.0:8855",
		"listen address for the API server", false)
	s.AddSetting(&s.Repo, "repo", "r", "FLUXKEEP_REPO", "",
		"image repository directory", false)

	return s
}

//
type Serve struct {
	Runner
	//
	Address string
	//
	Repo string
}

//
func (s *Serve) Run() error {

	s.ParseSettings()

	srv := control.NewAPIServer(s.Address, s.Repo)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info("shutting down")
		if err := srv.Stop(); err != nil {
			log.Errorf("error stopping API server: %v", err)
		}
	}()

	return srv.Serve()
}
