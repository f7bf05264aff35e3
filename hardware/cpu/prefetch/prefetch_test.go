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

package prefetch_test

import (
	"testing"

	"github.com/gvsoc-go/iss-core/engine/event"
	"github.com/gvsoc-go/iss-core/hardware/cpu/prefetch"
	"github.com/gvsoc-go/iss-core/hardware/io"
	"github.com/gvsoc-go/iss-core/test"
)

func TestFastHit(t *testing.T) {
	port := io.NewMockPort(0x10000, 0)
	port.Poke(0, 1, 0x11)
	port.Poke(1, 1, 0x22)
	port.Poke(2, 1, 0x33)
	port.Poke(3, 1, 0x44)

	buf := prefetch.NewBuffer(port)

	var got uint32
	ok, _, err := buf.Fetch(0, true, func(opcode uint32) { got = opcode })
	test.ExpectSuccess(t, err)
	test.Equate(t, ok, true)
	test.Equate(t, got, uint32(0x44332211))
	test.Equate(t, port.Transactions(), 1)

	// second fetch within the same line is a fast-hit: no further bus
	// activity required.
	ok, _, err = buf.Fetch(4, true, func(opcode uint32) { got = opcode })
	test.ExpectSuccess(t, err)
	test.Equate(t, ok, true)
	test.Equate(t, port.Transactions(), 1)
}

func TestLineMiss(t *testing.T) {
	port := io.NewMockPort(0x10000, 0)
	for i := uint64(0); i < 4; i++ {
		port.Poke(0x20+i, 1, uint64(0x10+i))
	}

	buf := prefetch.NewBuffer(port)

	var got uint32
	ok, _, err := buf.Fetch(0x20, true, func(opcode uint32) { got = opcode })
	test.ExpectSuccess(t, err)
	test.Equate(t, ok, true)
	test.Equate(t, got, uint32(0x13121110))
}

func TestSynchronousLatencyFoldsIntoFetch(t *testing.T) {
	port := io.NewMockPort(0x10000, 3)
	buf := prefetch.NewBuffer(port)

	_, latency, err := buf.Fetch(0, true, func(uint32) {})
	test.ExpectSuccess(t, err)
	test.Equate(t, latency, uint64(3))

	// a fast-hit on the same line prices no further latency.
	_, latency, err = buf.Fetch(4, true, func(uint32) {})
	test.ExpectSuccess(t, err)
	test.Equate(t, latency, uint64(0))
}

func TestFlushForcesRefill(t *testing.T) {
	port := io.NewMockPort(0x10000, 0)
	port.Poke(0, 1, 0xaa)

	buf := prefetch.NewBuffer(port)

	var got uint32
	buf.Fetch(0, true, func(opcode uint32) { got = opcode })
	test.Equate(t, got&0xff, uint32(0xaa))

	buf.Flush()

	port.Poke(0, 1, 0xbb)
	buf.Fetch(0, true, func(opcode uint32) { got = opcode })
	test.Equate(t, got&0xff, uint32(0xbb))
	test.Equate(t, port.Transactions(), 2)
}

func TestNoValueReplayDoesNotDecode(t *testing.T) {
	port := io.NewMockPort(0x10000, 0)
	buf := prefetch.NewBuffer(port)

	// prime the line
	buf.Fetch(0, true, func(uint32) {})

	called := false
	ok, _, err := buf.Fetch(4, false, func(uint32) { called = true })
	test.ExpectSuccess(t, err)
	test.Equate(t, ok, true)
	test.Equate(t, called, false)
}

func TestSplitOpcodeAcrossLines(t *testing.T) {
	port := io.NewMockPort(0x10000, 0)
	// opcode straddling byte 14..17, across the 16-byte line boundary.
	bytes := []uint64{0x01, 0x02, 0x03, 0x04}
	for i, b := range bytes {
		port.Poke(14+uint64(i), 1, b)
	}

	buf := prefetch.NewBuffer(port)

	var got uint32
	ok, _, err := buf.Fetch(14, true, func(opcode uint32) { got = opcode })
	test.ExpectSuccess(t, err)
	test.Equate(t, ok, true)
	test.Equate(t, got, uint32(0x04030201))
	test.Equate(t, port.Transactions(), 2)
}

// TestLineCrossingSplitBusTransactions reproduces spec scenario 2 exactly:
// a 4-byte opcode at 0x100E spans the lines based at 0x1000 and 0x1010, and
// must cost exactly two bus transactions reassembled into one opcode.
func TestLineCrossingSplitBusTransactions(t *testing.T) {
	port := io.NewMockPort(0x10000, 0)
	port.Poke(0x100e, 1, 0xaa)
	port.Poke(0x100f, 1, 0xbb)
	port.Poke(0x1010, 1, 0xcc)
	port.Poke(0x1011, 1, 0xdd)

	buf := prefetch.NewBuffer(port)

	var got uint32
	ok, _, err := buf.Fetch(0x100e, true, func(opcode uint32) { got = opcode })
	test.ExpectSuccess(t, err)
	test.Equate(t, ok, true)
	test.Equate(t, got, uint32(0xddccbbaa))
	test.Equate(t, port.Transactions(), 2)
}

// TestAsyncMissStallsAndResumes reproduces spec scenario 3: a fetch whose
// target is scripted to return Pending and resolve 7 cycles later must
// stall (Fetch returns false, no decode) and later resolve through exactly
// the bus transaction the first attempt issued - a repeated poll before
// resolution must not issue a second one.
func TestAsyncMissStallsAndResumes(t *testing.T) {
	q := event.NewQueue()
	port := io.NewMockPort(0x10000, 0)
	port.AttachQueue(q)
	port.Defer(0x2000, 7)
	port.Poke(0x2000, 1, 0x13)

	buf := prefetch.NewBuffer(port)

	var got uint32
	var decoded bool
	ok, _, err := buf.Fetch(0x2000, true, func(opcode uint32) { got = opcode; decoded = true })
	test.ExpectSuccess(t, err)
	test.Equate(t, ok, false)
	test.Equate(t, decoded, false)
	test.Equate(t, port.Transactions(), 1)

	// polling again before the response arrives must not issue a second
	// bus transaction.
	ok, _, err = buf.Fetch(0x2000, true, func(opcode uint32) { got = opcode; decoded = true })
	test.ExpectSuccess(t, err)
	test.Equate(t, ok, false)
	test.Equate(t, port.Transactions(), 1)

	q.RunUntil(7)
	test.Equate(t, decoded, true)
	test.Equate(t, got&0xff, uint32(0x13))

	// now that the line is resident, a fresh poll completes synchronously
	// with no further bus activity.
	ok, _, err = buf.Fetch(0x2000, true, func(uint32) {})
	test.ExpectSuccess(t, err)
	test.Equate(t, ok, true)
	test.Equate(t, port.Transactions(), 1)
}

// TestInvalidAddressIsForceWarningNotFatal reproduces spec.md 4.2/7: a bus
// target rejecting an out-of-range address is a force-warning, not a fault.
// Fetch must complete (the initiator continues with indeterminate data)
// rather than returning an error, and the decoder must still be invoked
// exactly once so the resulting opcode can become a synthetic illegal
// instruction further up the pipeline.
func TestInvalidAddressIsForceWarningNotFatal(t *testing.T) {
	port := io.NewMockPort(8, 0)

	buf := prefetch.NewBuffer(port)

	var calls int
	ok, _, err := buf.Fetch(0, true, func(uint32) { calls++ })
	test.ExpectSuccess(t, err)
	test.Equate(t, ok, true)
	test.Equate(t, calls, 1)
}
