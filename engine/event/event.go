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

// Package event implements the discrete-event queue that drives the
// simulation clock. Every timed effect in the simulation - a stall
// expiring, a prefetch line arriving, a CSR-driven callback - is scheduled
// here rather than being ticked on every cycle, so that time can advance in
// jumps between events instead of one cycle at a time.
//
// The queue is a single-owner data structure: Enqueue, Cancel and RunUntil
// must only ever be called from the goroutine that owns the Queue.
// Queue.CheckOwner is used by tests and by callers that want to fail loudly
// rather than silently race.
package event

import (
	"container/heap"

	"github.com/gvsoc-go/iss-core/assert"
	"github.com/gvsoc-go/iss-core/errors"
)

// Payload is the function invoked when a scheduled event fires.
type Payload func()

// Handle identifies a previously enqueued event, for later cancellation.
// Handles are never reused, so a stale Cancel is always a harmless no-op.
type Handle uint64

// entry is one item in the heap. seq breaks ties between events scheduled
// for the same timestamp, preserving insertion order (a FIFO among
// simultaneous events, matching the single-threaded cooperative model).
type entry struct {
	deadline uint64
	seq      uint64
	handle   Handle
	label    string
	payload  Payload
	canceled bool
}

type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].deadline != h[j].deadline {
		return h[i].deadline < h[j].deadline
	}
	return h[i].seq < h[j].seq
}

func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *entryHeap) Push(x interface{}) {
	*h = append(*h, x.(*entry))
}

func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// Queue is a priority queue of timed callbacks, ordered by deadline with
// FIFO tie-break on equal deadlines. A Queue is single-owner: every method
// must be called from the goroutine that called NewQueue.
type Queue struct {
	owner   uint64
	now     uint64
	seq     uint64
	nextID  uint64
	heap    entryHeap
	pending map[Handle]*entry
}

// NewQueue is the preferred method of initialisation for Queue. It records
// the calling goroutine as the queue's owner for later CheckOwner calls.
func NewQueue() *Queue {
	return &Queue{
		owner:   assert.GetGoRoutineID(),
		pending: make(map[Handle]*entry),
	}
}

// CheckOwner reports whether the calling goroutine is the one that created
// the queue. Simulation components call this in assert-style guards around
// Enqueue/Cancel/RunUntil rather than on every call, since GetGoRoutineID
// parses a stack trace and is too costly to run on every tick.
func (q *Queue) CheckOwner() bool {
	return assert.GetGoRoutineID() == q.owner
}

// Now returns the queue's current simulated time.
func (q *Queue) Now() uint64 {
	return q.now
}

// Pending reports the number of events still scheduled, including any that
// have been canceled but not yet popped.
func (q *Queue) Pending() int {
	return len(q.heap)
}

// Enqueue schedules payload to run when the queue's clock reaches
// q.Now()+delay. delay of zero fires on the very next RunUntil call that
// reaches the current time. The returned Handle can be passed to Cancel.
func (q *Queue) Enqueue(delay uint64, label string, payload Payload) Handle {
	q.nextID++
	h := Handle(q.nextID)

	q.seq++
	e := &entry{
		deadline: q.now + delay,
		seq:      q.seq,
		handle:   h,
		label:    label,
		payload:  payload,
	}

	q.pending[h] = e
	heap.Push(&q.heap, e)

	return h
}

// Cancel prevents a previously enqueued event from firing. Canceling an
// unknown or already-fired handle is a no-op.
func (q *Queue) Cancel(h Handle) {
	e, ok := q.pending[h]
	if !ok {
		return
	}
	e.canceled = true
	delete(q.pending, h)
}

// RunUntil advances the queue's clock to deadline, firing every
// non-canceled event whose deadline falls at or before it, in timestamp
// order with FIFO tie-break. Payloads may themselves call Enqueue; events
// they schedule for a time at or before deadline are also fired within this
// same call.
//
// RunUntil never runs the clock backwards: calling it with a deadline
// earlier than Now is a no-op save for advancing nothing.
func (q *Queue) RunUntil(deadline uint64) {
	if deadline < q.now {
		return
	}

	for len(q.heap) > 0 && q.heap[0].deadline <= deadline {
		e := heap.Pop(&q.heap).(*entry)
		if e.canceled {
			continue
		}
		delete(q.pending, e.handle)
		q.now = e.deadline
		e.payload()
	}

	if deadline > q.now {
		q.now = deadline
	}
}

// NextDeadline returns the deadline of the earliest non-canceled event and
// true, or (0, false) if the queue is empty.
func (q *Queue) NextDeadline() (uint64, bool) {
	for len(q.heap) > 0 {
		if !q.heap[0].canceled {
			return q.heap[0].deadline, true
		}
		heap.Pop(&q.heap)
	}
	return 0, false
}

// Drain pops and runs every remaining non-canceled event regardless of
// deadline, advancing Now() to the last deadline reached. It returns
// errors.EventQueueEmpty wrapped as a curated error if the queue was
// already empty, matching the error-reporting convention used elsewhere in
// the simulation core.
func (q *Queue) Drain() error {
	if len(q.heap) == 0 {
		return errors.Errorf(errors.EventQueueEmpty)
	}
	for len(q.heap) > 0 {
		e := heap.Pop(&q.heap).(*entry)
		if e.canceled {
			continue
		}
		delete(q.pending, e.handle)
		q.now = e.deadline
		e.payload()
	}
	return nil
}
