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

package main

import (
	"fmt"
	"os"

	"github.com/fluxkeep/fluxkeep/pkg/run"
)

// set via -ldflags at build time
var FluxKeepVersion string

//
func synopsis() {
	fmt.Print(`
synopsis: fluxkeep {probe|convert|capture|dump|ls|extract|put|capabilities|serve|version} ...

run 'fluxkeep {action} -h|--help' to see detailed info

`)
}

//
func version() {
	fmt.Printf("\nFluxKeep %s\n\n", FluxKeepVersion)
}

//
func main() {

	var action string
	var args []string

	if len(os.Args) > 1 {
		action = os.Args[1]
	}

	if len(os.Args) > 2 {
		args = os.Args[2:]
	}

	switch action {

	case "probe":
		run.DieOnError(run.NewProbe().Execute(args))

	case "convert":
		run.DieOnError(run.NewConvert().Execute(args))

	case "capture":
		run.DieOnError(run.NewCapture().Execute(args))

	case "dump":
		run.DieOnError(run.NewDump().Execute(args))

	case "ls":
		run.DieOnError(run.NewList().Execute(args))

	case "extract":
		run.DieOnError(run.NewExtract().Execute(args))

	case "put":
		run.DieOnError(run.NewPut().Execute(args))

	case "capabilities":
		run.DieOnError(run.NewCapabilities().Execute(args))

	case "serve":
		version()
		run.DieOnError(run.NewServe().Execute(args))

	case "version":
		version()

	case "":
		fallthrough
	case "-h":
		fallthrough
	case "--help":
		synopsis()

	default:
		run.Die("unknown action: %s\n", action)
	}
}
