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

package sim_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gvsoc-go/iss-core/debugger/halt"
	"github.com/gvsoc-go/iss-core/hardware/cpu/core"
	"github.com/gvsoc-go/iss-core/hardware/cpu/csr"
	"github.com/gvsoc-go/iss-core/hardware/cpu/decode"
	"github.com/gvsoc-go/iss-core/hardware/cpu/prefetch"
	"github.com/gvsoc-go/iss-core/hardware/io"
	"github.com/gvsoc-go/iss-core/logger"
	"github.com/gvsoc-go/iss-core/power"
	"github.com/gvsoc-go/iss-core/sim"
	"github.com/gvsoc-go/iss-core/test"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	fn := filepath.Join(t.TempDir(), "config.yaml")
	test.ExpectSuccess(t, os.WriteFile(fn, []byte(contents), 0o600))
	return fn
}

func nopDecoder(addr uint64, opcode uint32) (*decode.Instruction, error) {
	return &decode.Instruction{Addr: addr, Opcode: opcode}, nil
}

// newTestHart builds a fully wired core.Core of the kind a Simulator
// would register, advancing the PC by 4 every tick.
func newTestHart(t *testing.T) *core.Core {
	t.Helper()
	port := io.NewMockPort(0x10000, 0)
	buf := prefetch.NewBuffer(port)
	dc := decode.NewCache(buf, nopDecoder)
	cs := csr.NewFile(0)
	hc := halt.NewController()
	log := logger.NewLogger(16)
	return core.NewCore(cs, dc, hc, func(insn *decode.Instruction, fast bool) (uint64, error) {
		return insn.Addr + 4, nil
	}, log)
}

func openedSimulator(t *testing.T) *sim.Simulator {
	t.Helper()
	fn := writeConfig(t, "config_path: /etc/sim/chip.yaml\napi_mode: sync\n")
	s := sim.New()
	test.ExpectSuccess(t, s.Open(fn))
	return s
}

func TestOpenTwiceFails(t *testing.T) {
	s := openedSimulator(t)
	err := s.Open(writeConfig(t, "config_path: /etc/sim/chip.yaml\napi_mode: sync\n"))
	test.ExpectFailure(t, err)
}

func TestStepUntilBeforeOpenFails(t *testing.T) {
	s := sim.New()
	_, err := s.StepUntil(10)
	test.ExpectFailure(t, err)
}

func TestStartBeforeOpenFails(t *testing.T) {
	s := sim.New()
	err := s.Start()
	test.ExpectFailure(t, err)
}

func TestStepUntilAdvancesTime(t *testing.T) {
	s := openedSimulator(t)
	test.ExpectSuccess(t, s.Start())

	hart := newTestHart(t)
	s.AddCore(sim.WrapCore(hart))

	now, err := s.StepUntil(5)
	test.ExpectSuccess(t, err)
	test.Equate(t, now, uint64(5))
	test.Equate(t, hart.PC, uint64(20))
}

func TestStepUntilIsIdempotentAtSameDeadline(t *testing.T) {
	s := openedSimulator(t)
	test.ExpectSuccess(t, s.Start())

	hart := newTestHart(t)
	s.AddCore(sim.WrapCore(hart))

	now1, err := s.StepUntil(5)
	test.ExpectSuccess(t, err)
	now2, err := s.StepUntil(5)
	test.ExpectSuccess(t, err)

	test.Equate(t, now1, now2)
	test.Equate(t, hart.PC, uint64(20))
}

func TestStepUntilAdvancesMultipleCoresTogether(t *testing.T) {
	s := openedSimulator(t)
	test.ExpectSuccess(t, s.Start())

	hartA := newTestHart(t)
	hartB := newTestHart(t)
	s.AddCore(sim.WrapCore(hartA))
	s.AddCore(sim.WrapCore(hartB))

	_, err := s.StepUntil(3)
	test.ExpectSuccess(t, err)

	test.Equate(t, hartA.PC, uint64(12))
	test.Equate(t, hartB.PC, uint64(12))
}

func TestRetainKeepsSimulatorOpenAcrossClose(t *testing.T) {
	s := openedSimulator(t)
	s.Retain()

	test.ExpectSuccess(t, s.Close())

	// still open: StepUntil should not fail with SimulatorNotOpen
	test.ExpectSuccess(t, s.Start())
	_, err := s.StepUntil(1)
	test.ExpectSuccess(t, err)
}

func TestReleaseBalancesRetainSoCloseSucceeds(t *testing.T) {
	s := openedSimulator(t)
	s.Retain()
	test.ExpectSuccess(t, s.Close())

	s.Release()
	test.ExpectSuccess(t, s.Close())

	_, err := s.StepUntil(1)
	test.ExpectFailure(t, err)
}

func TestGetInstantPowerAggregatesCores(t *testing.T) {
	s := openedSimulator(t)
	test.ExpectSuccess(t, s.Start())
	s.SetPowerCoefficients(power.Coefficients{PerCycle: 1, PerInstruction: 1})

	hartA := newTestHart(t)
	hartA.CSR.SetPCMR(1)
	hartA.CSR.SetPCER(1<<csr.EventCycles | 1<<csr.EventInstRetired)

	hartB := newTestHart(t)
	hartB.CSR.SetPCMR(1)
	hartB.CSR.SetPCER(1<<csr.EventCycles | 1<<csr.EventInstRetired)

	s.AddCore(sim.WrapCore(hartA))
	s.AddCore(sim.WrapCore(hartB))

	_, err := s.StepUntil(4)
	test.ExpectSuccess(t, err)

	sample := s.GetInstantPower()
	test.ExpectApproximate(t, sample.Total, 16.0, 0.001)
}

func TestReportGetMatchesGetInstantPower(t *testing.T) {
	s := openedSimulator(t)
	test.ExpectSuccess(t, s.Start())
	s.SetPowerCoefficients(power.Coefficients{PerCycle: 0.5})

	hart := newTestHart(t)
	hart.CSR.SetPCMR(1)
	hart.CSR.SetPCER(1 << csr.EventCycles)
	s.AddCore(sim.WrapCore(hart))

	_, err := s.StepUntil(4)
	test.ExpectSuccess(t, err)

	test.Equate(t, s.ReportGet(), s.GetInstantPower())
}

func TestRunAndStopTerminatesJoin(t *testing.T) {
	s := openedSimulator(t)
	test.ExpectSuccess(t, s.Start())
	s.AddCore(sim.WrapCore(newTestHart(t)))

	test.ExpectSuccess(t, s.Run())
	s.Stop()
	err := s.Join()
	test.ExpectSuccess(t, err)
}

func TestCloseWithoutRetainClosesImmediately(t *testing.T) {
	s := openedSimulator(t)
	test.ExpectSuccess(t, s.Close())

	_, err := s.StepUntil(1)
	test.ExpectFailure(t, err)
}
