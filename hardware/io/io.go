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

// Package io defines the request/response shape used by the instruction
// pipeline to reach memory and peripherals. It mirrors the split seen
// elsewhere in this codebase between the CPU's view of the bus and a
// separate debugging view: Port is the CPU's view (one outstanding request
// at a time, asynchronous completion via a callback), DebugPort is the
// out-of-band peek/poke view used by tooling.
package io

import (
	"github.com/gvsoc-go/iss-core/engine/event"
	"github.com/gvsoc-go/iss-core/errors"
)

// Kind distinguishes a read from a write request.
type Kind int

// The two request kinds a Port can be asked to perform.
const (
	Read Kind = iota
	Write
)

// Status reports the outcome of a Request once it completes.
type Status int

// Possible completion statuses for a Request. Pending is only ever
// observed between Issue returning and the initiator's callback firing: a
// Request never settles at Pending, it is a transient marker an initiator
// may inspect while it waits.
const (
	OK Status = iota
	Invalid
	Pending
)

// Request describes one pending bus transaction. Addr and Size are set by
// the initiator. For accesses of up to 8 bytes (register-sized loads,
// stores and CSR-style access), Data holds the value to write or the value
// read back. For wider accesses (a prefetch line fill), Bytes holds the
// raw transfer instead; Data is left unused. Latency is the number of
// cycles the target reports the transfer costing; it is set on every
// completion, including one made inline within Issue, and an initiator
// folds it into its own cycle accounting.
type Request struct {
	Kind    Kind
	Addr    uint64
	Size    int
	Data    uint64
	Bytes   []byte
	Status  Status
	Latency uint64
}

// Callback is invoked by a Port once an issued Request completes.
type Callback func(*Request)

// Port is implemented by anything the instruction pipeline issues memory
// and I/O requests through. Only one request may be outstanding on a Port
// at a time; issuing a second request before the first completes is a
// programming error and returns a curated BusDoubleIssue error (which
// carries no BusInvalid category).
type Port interface {
	// Issue starts req. If the target can complete synchronously it calls
	// done before Issue returns; otherwise it schedules done to run later
	// via the event queue and returns immediately.
	Issue(req *Request, done Callback) error
}

// DebugPort is the out-of-band view used by debugging and tracing tools. It
// never goes through the stall/latency machinery a Port does.
type DebugPort interface {
	Peek(addr uint64, size int) (uint64, error)
	Poke(addr uint64, size int, value uint64) error
}

// MockPort is a trivial in-memory, byte-addressable Port used by tests. A
// multi-byte Request is served by packing/unpacking consecutive bytes
// little-endian, the way a real memory target would for a burst access;
// reads of never-written bytes return zero. Any address range extending
// past Size is rejected with BusInvalid.
//
// By default every request completes synchronously, inline within Issue.
// Attaching an event.Queue with AttachQueue and scripting one or more
// addresses with Defer lets a test reproduce the PENDING-then-resolve
// round trip of spec scenario 3: Issue returns immediately without calling
// done, leaving Status at Pending, and done fires later when the queue
// reaches the scripted deadline.
type MockPort struct {
	mem     map[uint64]byte
	size    uint64
	latency uint64
	busy    bool

	transactions int

	queue    *event.Queue
	deferred map[uint64]uint64
}

// NewMockPort is the preferred method of initialisation for MockPort. size
// is the number of addressable bytes; latency is the fixed completion
// delay every request reports.
func NewMockPort(size uint64, latency uint64) *MockPort {
	return &MockPort{
		mem:     make(map[uint64]byte),
		size:    size,
		latency: latency,
	}
}

// AttachQueue gives the port an event.Queue to schedule deferred
// completions on. Without one, Defer has no effect and every request
// completes synchronously regardless of scripting.
func (m *MockPort) AttachQueue(q *event.Queue) {
	m.queue = q
}

// Defer scripts any request touching addr to return Pending and resolve
// delay cycles later via the attached queue, mimicking a target whose
// response crosses a real bus round trip.
func (m *MockPort) Defer(addr uint64, delay uint64) {
	if m.deferred == nil {
		m.deferred = make(map[uint64]uint64)
	}
	m.deferred[addr] = delay
}

// Transactions returns the number of Issue calls this port has accepted,
// including ones that ultimately completed with Invalid. Double-issue
// attempts that were rejected outright are not counted.
func (m *MockPort) Transactions() int {
	return m.transactions
}

// deferredDelay reports the scripted delay for the first scripted address
// within [addr, addr+n), if any.
func (m *MockPort) deferredDelay(addr, n uint64) (uint64, bool) {
	for a, delay := range m.deferred {
		if a >= addr && a < addr+n {
			return delay, true
		}
	}
	return 0, false
}

// transfer moves bytes between req and the backing store, assuming addr
// has already been validated as in range.
func (m *MockPort) transfer(req *Request) {
	n := uint64(req.Size)
	if n == 0 {
		n = 1
	}

	if n > 8 {
		if req.Kind == Write {
			for i := uint64(0); i < n; i++ {
				m.mem[req.Addr+i] = req.Bytes[i]
			}
		} else {
			req.Bytes = make([]byte, n)
			for i := uint64(0); i < n; i++ {
				req.Bytes[i] = m.mem[req.Addr+i]
			}
		}
	} else if req.Kind == Write {
		for i := uint64(0); i < n; i++ {
			m.mem[req.Addr+i] = byte(req.Data >> (8 * i))
		}
	} else {
		var v uint64
		for i := uint64(0); i < n; i++ {
			v |= uint64(m.mem[req.Addr+i]) << (8 * i)
		}
		req.Data = v
	}
}

// Issue implements Port.
func (m *MockPort) Issue(req *Request, done Callback) error {
	if m.busy {
		return errors.Errorf(errors.BusDoubleIssue)
	}

	n := uint64(req.Size)
	if n == 0 {
		n = 1
	}

	if req.Addr+n > m.size {
		m.transactions++
		req.Status = Invalid
		req.Latency = m.latency
		if done != nil {
			done(req)
		}
		return errors.Errorf(errors.BusInvalidAddress, req.Addr)
	}

	if delay, ok := m.deferredDelay(req.Addr, n); ok && m.queue != nil {
		m.transactions++
		m.busy = true
		req.Status = Pending
		m.queue.Enqueue(delay, "mockport-resolve", func() {
			m.busy = false
			m.transfer(req)
			req.Status = OK
			req.Latency = m.latency
			if done != nil {
				done(req)
			}
		})
		return nil
	}

	m.transactions++
	m.transfer(req)
	req.Status = OK
	req.Latency = m.latency

	if done != nil {
		done(req)
	}
	return nil
}

// Peek implements DebugPort.
func (m *MockPort) Peek(addr uint64, size int) (uint64, error) {
	n := uint64(size)
	if n == 0 {
		n = 1
	}
	if addr+n > m.size {
		return 0, errors.Errorf(errors.BusInvalidAddress, addr)
	}
	var v uint64
	for i := uint64(0); i < n && i < 8; i++ {
		v |= uint64(m.mem[addr+i]) << (8 * i)
	}
	return v, nil
}

// Poke implements DebugPort.
func (m *MockPort) Poke(addr uint64, size int, value uint64) error {
	n := uint64(size)
	if n == 0 {
		n = 1
	}
	if addr+n > m.size {
		return errors.Errorf(errors.BusInvalidAddress, addr)
	}
	for i := uint64(0); i < n; i++ {
		m.mem[addr+i] = byte(value >> (8 * i))
	}
	return nil
}
