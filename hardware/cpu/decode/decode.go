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

// Package decode caches the result of decoding an opcode at a given
// address, so that an instruction executed repeatedly (the body of a loop)
// only pays the decode cost once. The actual decoding - turning an opcode
// word into an Instruction - is delegated to an external Decoder; this
// package is only concerned with identity-stable caching and invalidation.
package decode

import (
	"io"

	"github.com/bradleyjkemp/memviz"

	"github.com/gvsoc-go/iss-core/hardware/cpu/prefetch"
)

// Instruction is the decoded form of one opcode. Fields beyond Addr and
// Opcode are entirely owned by the Decoder; this package never inspects
// them.
type Instruction struct {
	Addr   uint64
	Opcode uint32

	// Semantics is whatever the external Decoder attached to describe how
	// to execute this instruction. The decode cache treats it opaquely.
	Semantics interface{}
}

// Decoder turns a raw opcode word fetched from addr into an Instruction.
// It returns a curated DecodeError if the opcode is not recognised.
type Decoder func(addr uint64, opcode uint32) (*Instruction, error)

// Cache maps an address to its decoded Instruction, reusing the same
// *Instruction pointer across repeated decodes of the same address so that
// callers may safely compare pointers for identity.
type Cache struct {
	prefetch *prefetch.Buffer
	decode   Decoder
	entries  map[uint64]*Instruction
}

// NewCache is the preferred method of initialisation for Cache. buf is the
// prefetch buffer the cache fetches opcodes through; decode is the external
// collaborator that turns opcode bytes into instruction semantics.
func NewCache(buf *prefetch.Buffer, decode Decoder) *Cache {
	return &Cache{
		prefetch: buf,
		decode:   decode,
		entries:  make(map[uint64]*Instruction),
	}
}

// Decode returns the Instruction at pc, decoding and caching it on first
// use, plus the number of extra cycles the underlying fetch's bus
// transaction(s) reported costing (folded straight into the caller's
// cycle accounting per spec 4.2, zero for a pure cache hit with no
// bus activity). A cache miss asks the prefetch buffer for the opcode
// bytes and decodes them; a cache hit only asks it to confirm the line is
// still resident (a novalue fetch), since there is nothing left to decode.
// A nil Instruction with a nil error means the fetch stalled.
func (c *Cache) Decode(pc uint64) (*Instruction, uint64, error) {
	if insn, ok := c.entries[pc]; ok {
		ok, latency, err := c.prefetch.Fetch(pc, false, nil)
		if err != nil {
			return nil, 0, err
		}
		if !ok {
			return nil, 0, nil
		}
		return insn, latency, nil
	}

	var insn *Instruction
	var decodeErr error

	ok, latency, err := c.prefetch.Fetch(pc, true, func(opcode uint32) {
		insn, decodeErr = c.decode(pc, opcode)
	})
	if err != nil {
		return nil, 0, err
	}
	if !ok {
		// stalled on a line fill; the caller will retry once the stall
		// clears and the prefetch buffer has the line resident.
		return nil, 0, nil
	}
	if decodeErr != nil {
		return nil, 0, decodeErr
	}

	c.entries[pc] = insn
	return insn, latency, nil
}

// Flush discards every cached Instruction whose address falls within
// [lo, hi), and flushes the prefetch buffer behind it so that a subsequent
// Decode re-fetches fresh opcode bytes rather than trusting stale ones.
// This is used when the simulated program's instruction memory has been
// written to, for example by a loader or self-modifying code.
func (c *Cache) Flush(lo, hi uint64) {
	for addr := range c.entries {
		if addr >= lo && addr < hi {
			delete(c.entries, addr)
		}
	}
	c.prefetch.Flush()
}

// FlushAll discards every cached Instruction and flushes the prefetch
// buffer.
func (c *Cache) FlushAll() {
	c.entries = make(map[uint64]*Instruction)
	c.prefetch.Flush()
}

// Len returns the number of instructions currently cached.
func (c *Cache) Len() int {
	return len(c.entries)
}

// Dump writes a graph of the cache's current contents to w, for
// interactive debugging of decode-cache behaviour.
func (c *Cache) Dump(w io.Writer) {
	memviz.Map(w, c.entries)
}
