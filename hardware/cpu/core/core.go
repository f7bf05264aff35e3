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

// Package core implements the fetch-decode-execute pipeline of one hart.
// Every instruction passes through Tick, which fetches the opcode at the
// program counter, decodes it (caching the decode), and dispatches to
// either a fast or traced handler depending on whether anyone is watching
// the performance-counter plane. Stalls - a pending line fill, a
// load-use dependency - suspend the tick and resume it later without the
// core ever being aware of which kind of stall it was.
package core

import (
	"github.com/gvsoc-go/iss-core/debugger/halt"
	"github.com/gvsoc-go/iss-core/errors"
	"github.com/gvsoc-go/iss-core/hardware/cpu/csr"
	"github.com/gvsoc-go/iss-core/hardware/cpu/decode"
	"github.com/gvsoc-go/iss-core/logger"
)

// Handler executes one decoded instruction's semantics and returns the
// address of the next instruction to fetch. fast is true when the
// performance-counter plane is inactive and the core has switched to its
// cheaper dispatch path; handlers that don't care about the distinction
// can ignore it.
type Handler func(insn *decode.Instruction, fast bool) (nextPC uint64, err error)

// Core is one hart's execution pipeline.
type Core struct {
	PC uint64

	CSR    *csr.File
	Decode *decode.Cache
	Halt   *halt.Controller

	handler Handler

	log     *logger.Logger
	stalled int

	loadStallCycles uint64
}

// NewCore is the preferred method of initialisation for Core.
func NewCore(c *csr.File, dc *decode.Cache, h *halt.Controller, handler Handler, log *logger.Logger) *Core {
	return &Core{
		CSR:     c,
		Decode:  dc,
		Halt:    h,
		handler: handler,
		log:     log,
	}
}

// switchToFast reports whether the core should use its fast dispatch path:
// true whenever the performance-counter plane is inactive, since there is
// nothing for the traced path to account that the fast path wouldn't skip
// for free.
func (c *Core) switchToFast() bool {
	return !c.CSR.Active()
}

// stalledInc increments the stall counter, entered exactly once per
// suspended fetch. Load-use dependency stalls are counted separately in
// loadStallCycles and do not touch this counter.
func (c *Core) stalledInc() {
	c.stalled++
}

// stalledDec decrements the stall counter. Decrementing an already-zero
// counter is a programming error elsewhere in the pipeline; it is logged
// as a force-warning and otherwise ignored, never panics.
func (c *Core) stalledDec() {
	if c.stalled == 0 {
		c.log.Log(logger.Allow, "core", errors.Errorf(errors.StalledUnderflow))
		return
	}
	c.stalled--
}

// Stalled reports whether the core currently has an outstanding stall.
func (c *Core) Stalled() bool {
	return c.stalled > 0
}

// Tick executes one step of the pipeline: if halted, it does nothing and
// returns immediately; otherwise it fetches and decodes the instruction at
// PC, dispatches it through the fast or traced handler depending on the
// performance-counter plane's state, accounts the cycles it took, and
// advances PC. Retiring an instruction also notifies the halt controller
// in case a single step was armed.
//
// A fetch that stalls on a pending line fill leaves PC untouched and
// simply returns; the prefetch buffer's own callback resolves the fill
// asynchronously, and the next Tick re-decodes the same PC, which by then
// either completes immediately (line now resident) or stalls again.
func (c *Core) Tick() error {
	if c.Halt.Halted() {
		return nil
	}

	insn, fetchLatency, err := c.Decode.Decode(c.PC)
	if err != nil {
		return err
	}
	if insn == nil {
		// stalledInc only fires on the 0->1 transition: a stall that
		// spans several polls of Tick (an outstanding async fetch the
		// bus has not yet resolved) must not inflate the counter past
		// 1, since there is still exactly one outstanding suspension.
		if c.stalled == 0 {
			c.stalledInc()
		}
		return nil
	}
	if c.stalled > 0 {
		c.stalledDec()
	}

	if c.loadStallCycles > 0 {
		// a dependency-stall cycle both feeds LD_STALL and still counts
		// as a cycle the instruction spends executing; CYCLES must
		// reflect it the same as any other cycle, just without retiring
		// an instruction (spec 4.4/8 scenario 4).
		c.CSR.AccountLoadStall(1)
		c.CSR.AccountCycles(1, false)
		c.loadStallCycles--
		return nil
	}

	fast := c.switchToFast()

	nextPC, err := c.handler(insn, fast)
	if err != nil {
		return err
	}

	// account for the instruction's own cycle the same way the
	// collaborating model does: a non-stalling instruction costs exactly
	// one cycle, plus whatever latency a synchronously-completing fetch
	// reported (spec 4.2: folded into the initiator's own accounting
	// rather than charged as a separate stall).
	c.CSR.AccountCycles(1+fetchLatency, true)

	c.PC = nextPC

	c.Halt.AfterInstruction()

	return nil
}

// RequestLoadStall tells the core to account cycles cycles of load-use
// dependency stall before the next instruction can dispatch. This is
// called by a Handler whose instruction depends on a load that has not
// yet completed.
func (c *Core) RequestLoadStall(cycles uint64) {
	c.loadStallCycles += cycles
}
