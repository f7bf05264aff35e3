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

package errors

// error messages
const (
	// configuration
	ConfigMissing        = "config error: no config path supplied"
	ConfigNotValid       = "config error: not a valid configuration document (%s): %v"
	ConfigUnknownAPIMode = "config error: unrecognised api_mode (%v)"
	ConfigPathRequired   = "config error: document at (%s) is missing the required config_path option"

	// event queue
	EventQueueEmpty = "event queue error: no events pending"

	// I/O port
	BusInvalidAddress = "bus error: invalid address (%#x)"
	BusDoubleIssue    = "bus error: port already has an outstanding request"

	// prefetch / decode
	DecodeUnrecognisedOpcode = "decode error: unrecognised opcode (%#x) at (%#x)"
	PrefetchMisaligned       = "prefetch error: line base is not aligned (%#x)"

	// memcheck
	MemcheckRegionOpen    = "memcheck error: region already open (%v)"
	MemcheckRegionUnknown = "memcheck error: no such region (%v)"
	MemcheckOverlap       = "memcheck error: allocation overlaps existing allocation (region %v, offset %#x, size %#x)"
	MemcheckBadFree       = "memcheck error: free does not match a prior allocation (region %v, offset %#x, size %#x)"

	// core / CSR
	StalledUnderflow = "core warning: stalled counter decremented below zero"
	MidInstruction   = "core error: cannot start a new instruction mid-instruction"

	// simulator facade
	SimulatorNotOpen     = "simulator error: simulator has not been opened"
	SimulatorAlreadyOpen = "simulator error: simulator is already open"
)
