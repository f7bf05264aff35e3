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

// Package memcheck tracks heap allocations inside a simulated memory region
// so that overlapping allocations and mismatched frees can be reported as
// the simulated program runs, the way a host-side sanitizer would for a
// real process.
//
// A region is opened once (mem_open in the collaborating model) and then
// accumulates Alloc/Free calls for the lifetime of the simulation. There is
// no ordered-map or interval-tree dependency anywhere in the corpus this
// module draws on, so the allocation list is kept sorted by offset and
// searched with sort.Search: O(log n) lookup, O(n) insertion, which is
// adequate for the allocation counts a single simulated heap produces.
package memcheck

import (
	"sort"
	"sync"

	"github.com/gvsoc-go/iss-core/errors"
)

// allocation is one live allocation within a region, sorted by Offset.
type allocation struct {
	offset uint64
	size   uint64
}

func (a allocation) end() uint64 {
	return a.offset + a.size
}

func (a allocation) overlaps(offset, size uint64) bool {
	return offset < a.end() && offset+size > a.offset
}

// region is one opened memory region under tracking.
type region struct {
	base   uint64
	size   uint64
	vbase  uint64
	allocs []allocation
}

// Tracker owns every open region. A single Tracker is typically shared
// across every core in a multi-cluster simulation, since allocations in a
// shared heap must be visible to whichever core frees them; Tracker is
// therefore safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	regions map[uint64]*region
}

// NewTracker is the preferred method of initialisation for Tracker.
func NewTracker() *Tracker {
	return &Tracker{
		regions: make(map[uint64]*region),
	}
}

// Open begins tracking a new region identified by id. base/size describe
// the region's physical extent; vbase is the address the simulated program
// sees (often equal to base, but not always, when a region is
// double-mapped). Opening an id that is already open returns a curated
// MemcheckRegionOpen error.
func (tr *Tracker) Open(id, base, size, vbase uint64) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	if _, ok := tr.regions[id]; ok {
		return errors.Errorf(errors.MemcheckRegionOpen, id)
	}
	tr.regions[id] = &region{base: base, size: size, vbase: vbase}
	return nil
}

// Close stops tracking a region and discards every allocation recorded
// within it. Closing an unknown id returns a curated MemcheckRegionUnknown
// error.
func (tr *Tracker) Close(id uint64) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	if _, ok := tr.regions[id]; !ok {
		return errors.Errorf(errors.MemcheckRegionUnknown, id)
	}
	delete(tr.regions, id)
	return nil
}

// Alloc records a new allocation of size bytes at ptr within region id,
// where ptr is expressed in the region's physical (base) address space. It
// returns the mapped virtual pointer ptr-base+vbase the simulated program
// should see, or a curated MemcheckOverlap error if the new allocation
// would overlap one already recorded, without recording it.
func (tr *Tracker) Alloc(id, ptr, size uint64) (uint64, error) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	r, ok := tr.regions[id]
	if !ok {
		return 0, errors.Errorf(errors.MemcheckRegionUnknown, id)
	}

	offset := ptr - r.base

	i := sort.Search(len(r.allocs), func(i int) bool {
		return r.allocs[i].offset >= offset
	})

	if i > 0 && r.allocs[i-1].overlaps(offset, size) {
		return 0, errors.Errorf(errors.MemcheckOverlap, id, offset, size)
	}
	if i < len(r.allocs) && r.allocs[i].overlaps(offset, size) {
		return 0, errors.Errorf(errors.MemcheckOverlap, id, offset, size)
	}

	r.allocs = append(r.allocs, allocation{})
	copy(r.allocs[i+1:], r.allocs[i:])
	r.allocs[i] = allocation{offset: offset, size: size}

	return offset + r.vbase, nil
}

// Free releases an allocation previously recorded by Alloc. The offset and
// size must match exactly what was allocated; partial frees, frees of the
// wrong size, and frees of memory never allocated all return a curated
// MemcheckBadFree error.
func (tr *Tracker) Free(id, ptr, size uint64) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	r, ok := tr.regions[id]
	if !ok {
		return errors.Errorf(errors.MemcheckRegionUnknown, id)
	}

	offset := ptr - r.base

	i := sort.Search(len(r.allocs), func(i int) bool {
		return r.allocs[i].offset >= offset
	})

	if i >= len(r.allocs) || r.allocs[i].offset != offset || r.allocs[i].size != size {
		return errors.Errorf(errors.MemcheckBadFree, id, offset, size)
	}

	r.allocs = append(r.allocs[:i], r.allocs[i+1:]...)
	return nil
}

// Live returns the number of allocations currently open in region id, or
// zero if the region is not open. Intended for tests and diagnostics.
func (tr *Tracker) Live(id uint64) int {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	r, ok := tr.regions[id]
	if !ok {
		return 0
	}
	return len(r.allocs)
}
