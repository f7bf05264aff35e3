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

// Package csr models the control/status register file attached to the
// execution core, including the performance-counter bank (PCER/PCMR/PCCR)
// that the core accounts cycles and retired instructions into.
package csr

// NumPerfEvents is the number of distinct countable events the PCER mask
// and PCCR bank support.
const NumPerfEvents = 32

// Perf event indices into PCCR/PCER. Only a handful are given names here;
// the rest are available for external probes via RegisterExternalEvent.
const (
	EventCycles Perf = iota
	EventInstRetired
	EventLoadStall
	NumBuiltinEvents
)

// Perf identifies one countable event.
type Perf int

// PCMR mode bits.
const (
	pcmrActive   = 1 << 0
	pcmrSaturate = 1 << 1
)

// File is the CSR register file for one hart. The zero value is a
// power-on-reset File with every register cleared.
type File struct {
	Status   uint64
	EPC      uint64
	DEPC     uint64
	DCSR     uint64
	MTVec    uint64
	MCause   uint64
	MScratch uint64
	Scratch0 uint64
	Scratch1 uint64

	StackConf  uint64
	StackStart uint64
	StackEnd   uint64

	FCSR    uint64
	MISA    uint64
	MHartID uint64

	HWLoop     bool
	HWLoopRegs []uint64

	pccr [NumPerfEvents]uint64
	pcer uint32
	pcmr uint32

	external []externalEvent
}

type externalEvent struct {
	index Perf
	probe func() uint64
	prev  uint64
}

// NewFile is the preferred method of initialisation for File. hwloopRegs is
// the number of hardware-loop configuration registers the hart exposes
// (zero if the hart has no hardware loop extension).
func NewFile(hwloopRegs int) *File {
	return &File{
		HWLoopRegs: make([]uint64, hwloopRegs),
	}
}

// Reset clears every register to its power-on value. active mirrors the
// hart's debug-reset-active line: while true, PCMR.ACTIVE stays clear
// regardless of what was last written to it.
func (f *File) Reset(active bool) {
	*f = File{HWLoopRegs: make([]uint64, len(f.HWLoopRegs))}
	if active {
		f.pcmr &^= pcmrActive
	}
}

// PCER returns the current performance-counter enable mask.
func (f *File) PCER() uint32 {
	return f.pcer
}

// SetPCER sets the performance-counter enable mask.
func (f *File) SetPCER(mask uint32) {
	f.pcer = mask
}

// PCMR returns the current performance-counter mode register.
func (f *File) PCMR() uint32 {
	return f.pcmr
}

// SetPCMR sets the performance-counter mode register.
func (f *File) SetPCMR(mode uint32) {
	f.pcmr = mode
}

// Active reports whether the performance counters are currently active:
// PCMR.ACTIVE is set.
func (f *File) Active() bool {
	return f.pcmr&pcmrActive != 0
}

// PCCR returns the retained count for the given event.
func (f *File) PCCR(p Perf) uint64 {
	if p < 0 || int(p) >= NumPerfEvents {
		return 0
	}
	return f.pccr[p]
}

// SetPCCR sets the retained count for the given event, used by software
// writing the counter bank directly (e.g. to reset a single counter).
func (f *File) SetPCCR(p Perf, value uint64) {
	if p < 0 || int(p) >= NumPerfEvents {
		return
	}
	f.pccr[p] = value
}

// RegisterExternalEvent attaches an external probe to a PCCR slot. On every
// AccountCycles call, if the event is enabled in PCER and the counters are
// active, the probe's delta since the last call is added to the slot. This
// is how components outside the core (caches, the memory system) feed the
// counter bank without the core knowing about them directly.
func (f *File) RegisterExternalEvent(index Perf, probe func() uint64) {
	f.external = append(f.external, externalEvent{index: index, probe: probe})
}

// enabled reports whether the given event is both active and enabled.
func (f *File) enabled(p Perf) bool {
	if !f.Active() {
		return false
	}
	if int(p) >= 32 {
		return false
	}
	return f.pcer&(1<<uint(p)) != 0
}

// AccountCycles is called once per core tick. cycles is the number of
// cycles the just-completed step took; retired reports whether an
// instruction retired on this step (for EventInstRetired).
func (f *File) AccountCycles(cycles uint64, retired bool) {
	if f.enabled(EventCycles) {
		f.pccr[EventCycles] += cycles
	}
	if retired && f.enabled(EventInstRetired) {
		f.pccr[EventInstRetired]++
	}

	for i := range f.external {
		ev := &f.external[i]
		cur := ev.probe()
		delta := cur - ev.prev
		ev.prev = cur
		if f.enabled(ev.index) {
			f.pccr[ev.index] += delta
		}
	}
}

// AccountLoadStall records a load-use stall cycle, independent of
// AccountCycles since a stall cycle does not retire an instruction.
func (f *File) AccountLoadStall(cycles uint64) {
	if f.enabled(EventLoadStall) {
		f.pccr[EventLoadStall] += cycles
	}
}
