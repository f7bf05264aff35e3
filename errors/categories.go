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

// Errno identifies the category of a curated error, so that callers can
// branch on the kind of failure without string-matching a message.
type Errno int

// list of error categories raised by the simulation core.
const (
	// ConfigError is raised when the configuration document is malformed
	// or missing. Fatal at Open().
	ConfigError Errno = iota

	// BusInvalid is raised when an I/O target rejects an address. The
	// prefetch buffer treats it as a completed fill and continues with
	// indeterminate data; it does not log it.
	BusInvalid

	// BadFree is raised by memcheck when a free does not exactly match a
	// prior allocation.
	BadFree

	// Overlap is raised by memcheck when an allocation intersects an
	// existing allocation in the same region.
	Overlap

	// DecodeError is raised when the decoder is handed an opcode it does
	// not recognise.
	DecodeError

	// InternalInvariant is raised for programming errors that are logged
	// at warning level and otherwise ignored, such as decrementing the
	// stall counter below zero.
	InternalInvariant
)

// String names the category, mainly for log messages.
func (e Errno) String() string {
	switch e {
	case ConfigError:
		return "config error"
	case BusInvalid:
		return "bus invalid"
	case BadFree:
		return "bad free"
	case Overlap:
		return "overlap"
	case DecodeError:
		return "decode error"
	case InternalInvariant:
		return "internal invariant"
	default:
		return "unknown"
	}
}

// Unclassified is the category reported by CategoryOf for a curated error
// whose message doesn't fall into one of the guest-fault/host-fatal
// categories above, or for anything that isn't a curated error at all.
const Unclassified Errno = -1

// categoryByMessage maps each message constant that corresponds to one of
// the categories above back to its Errno. Messages with no entry here
// (double-issue misuse, unknown memcheck region, simulator lifecycle
// misuse, ...) are host-API-level mistakes rather than guest faults and
// report Unclassified.
var categoryByMessage = map[string]Errno{
	ConfigMissing:            ConfigError,
	ConfigNotValid:           ConfigError,
	ConfigUnknownAPIMode:     ConfigError,
	ConfigPathRequired:       ConfigError,
	BusInvalidAddress:        BusInvalid,
	MemcheckBadFree:          BadFree,
	MemcheckOverlap:          Overlap,
	DecodeUnrecognisedOpcode: DecodeError,
	StalledUnderflow:         InternalInvariant,
}

// CategoryOf reports the Errno category of err. It returns Unclassified if
// err is not a curated error, or if its message carries no category.
func CategoryOf(err error) Errno {
	er, ok := err.(curated)
	if !ok {
		return Unclassified
	}
	if cat, ok := categoryByMessage[er.message]; ok {
		return cat
	}
	return Unclassified
}

// IsCategory reports whether err is a curated error in category cat. This
// is the mechanism spec.md §7's guest-fault/host-fatal split relies on:
// callers branch on the kind of failure without string-matching the exact
// message, which Is/Has alone require.
func IsCategory(err error, cat Errno) bool {
	return CategoryOf(err) == cat
}
