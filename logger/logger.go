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

// Package logger implements a small leveled trace sink with no back
// pressure. Every simulation component logs through a *Logger rather than
// directly to stdout, so that trace output can be captured, tailed, or
// silenced independently of whether the simulation is otherwise healthy.
//
// A failing write to the underlying io.Writer is never fatal: Write and
// Tail are best-effort, matching the "trace output is best-effort" policy
// applied throughout the simulation core.
package logger

import (
	"fmt"
	"strings"
	"sync"
)

// Permission is implemented by anything that wants a say in whether a
// particular log entry should be recorded. The core's stalled-counter
// underflow warning is logged with Allow so it is never silently dropped.
// A rejected bus address is not logged: the prefetch buffer absorbs it
// without writing a log entry.
type Permission interface {
	AllowLogging() bool
}

// Allow is a Permission that always allows logging.
const Allow = allowAll(true)

type allowAll bool

func (a allowAll) AllowLogging() bool {
	return bool(a)
}

type entry struct {
	tag    string
	detail string
}

func (e entry) String() string {
	return fmt.Sprintf("%s: %s\n", e.tag, e.detail)
}

// Logger is a ring buffer of leveled trace entries. The zero value is not
// usable; construct with NewLogger.
type Logger struct {
	mu      sync.Mutex
	entries []entry
	limit   int
}

// NewLogger is the preferred method of initialisation for Logger. limit is
// the maximum number of entries retained; the oldest entry is discarded
// once the limit is exceeded.
func NewLogger(limit int) *Logger {
	return &Logger{
		entries: make([]entry, 0, limit),
		limit:   limit,
	}
}

// detailString converts detail into the string that will be recorded,
// favouring error/Stringer interfaces over a generic %v format.
func detailString(detail interface{}) string {
	switch d := detail.(type) {
	case string:
		return d
	case error:
		return d.Error()
	case fmt.Stringer:
		return d.String()
	default:
		return fmt.Sprintf("%v", d)
	}
}

// Log records a new entry if perm allows it.
func (l *Logger) Log(perm Permission, tag string, detail interface{}) {
	if perm == nil || !perm.AllowLogging() {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.entries) == l.limit {
		l.entries = l.entries[1:]
	}
	l.entries = append(l.entries, entry{tag: tag, detail: detailString(detail)})
}

// Logf is Log with the detail built from a format string and arguments.
func (l *Logger) Logf(perm Permission, tag string, format string, args ...interface{}) {
	l.Log(perm, tag, fmt.Sprintf(format, args...))
}

// Clear empties the logger.
func (l *Logger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = l.entries[:0]
}

// Write dumps every retained entry to w, oldest first. A write error is
// swallowed: a failing trace sink must never interrupt simulation.
func (l *Logger) Write(w interface{ Write([]byte) (int, error) }) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var b strings.Builder
	for _, e := range l.entries {
		b.WriteString(e.String())
	}
	_, _ = w.Write([]byte(b.String()))
}

// Tail dumps the n most recently retained entries to w, oldest first. If n
// exceeds the number of retained entries, every entry is written.
func (l *Logger) Tail(w interface{ Write([]byte) (int, error) }, n int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n > len(l.entries) {
		n = len(l.entries)
	}
	start := len(l.entries) - n

	var b strings.Builder
	for _, e := range l.entries[start:] {
		b.WriteString(e.String())
	}
	_, _ = w.Write([]byte(b.String()))
}
