// This file is part of Gopher2600.
//
// Gopher2600 is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Gopher2600 is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Gopher2600.  If not, see <https://www.gnu.org/licenses/>.

// Package power is a very rough and ready leaf-level power sampler: it
// turns the activity recorded in a hart's performance counters into a
// dynamic/static/total power estimate for a single instant, the way the
// collaborating model's get_instant_power call does. There is no report
// tree here, only the one leaf sample the instruction core itself can
// produce; aggregating samples across a chip is outside this module's
// scope.
package power

import (
	"github.com/gvsoc-go/iss-core/hardware/cpu/csr"
)

// Sample is one instant's power estimate, in arbitrary model units.
type Sample struct {
	Dynamic float64
	Static  float64
	Total   float64
}

// Coefficients scales a hart's activity counts into power units. The zero
// value produces an all-zero Sample, which is a reasonable default for a
// hart nobody has characterised yet.
type Coefficients struct {
	// PerCycle is the static (leakage) power drawn per cycle, regardless
	// of activity.
	PerCycle float64

	// PerInstruction is the dynamic power drawn per retired instruction.
	PerInstruction float64
}

// Probe samples a single hart's CSR file.
type Probe struct {
	coeff Coefficients
}

// NewProbe is the preferred method of initialisation for Probe.
func NewProbe(coeff Coefficients) *Probe {
	return &Probe{coeff: coeff}
}

// Sample reads the current performance counters from f and produces a
// power estimate. It does not reset or otherwise mutate f.
func (p *Probe) Sample(f *csr.File) Sample {
	cycles := f.PCCR(csr.EventCycles)
	retired := f.PCCR(csr.EventInstRetired)

	static := float64(cycles) * p.coeff.PerCycle
	dynamic := float64(retired) * p.coeff.PerInstruction

	return Sample{
		Dynamic: dynamic,
		Static:  static,
		Total:   dynamic + static,
	}
}
