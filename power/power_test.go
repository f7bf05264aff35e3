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

package power_test

import (
	"testing"

	"github.com/gvsoc-go/iss-core/hardware/cpu/csr"
	"github.com/gvsoc-go/iss-core/power"
	"github.com/gvsoc-go/iss-core/test"
)

func TestSampleZeroCoefficientsIsZero(t *testing.T) {
	p := power.NewProbe(power.Coefficients{})
	f := csr.NewFile(0)
	f.SetPCMR(1)
	f.SetPCER(1<<csr.EventCycles | 1<<csr.EventInstRetired)
	f.AccountCycles(10, true)

	s := p.Sample(f)
	test.Equate(t, s.Total, float64(0))
}

func TestSampleCombinesDynamicAndStatic(t *testing.T) {
	p := power.NewProbe(power.Coefficients{PerCycle: 0.5, PerInstruction: 2})
	f := csr.NewFile(0)
	f.SetPCMR(1)
	f.SetPCER(1<<csr.EventCycles | 1<<csr.EventInstRetired)
	f.AccountCycles(10, true)
	f.AccountCycles(10, true)

	s := p.Sample(f)
	test.ExpectApproximate(t, s.Static, 10.0, 0.001)
	test.ExpectApproximate(t, s.Dynamic, 4.0, 0.001)
	test.ExpectApproximate(t, s.Total, 14.0, 0.001)
}
