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

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStepNilSafe(t *testing.T) {

	var par *Params
	assert.True(t, par.Step(50))

	par = &Params{}
	assert.True(t, par.Step(50))

	par.Progress = func(percent int) bool { return percent < 75 }
	assert.True(t, par.Step(50))
	assert.False(t, par.Step(90))
}
