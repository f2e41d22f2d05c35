// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package worktask

import (
	"reflect"
	"sort"
	"sync"
	"time"
)

// idleCeiling is the outer I/O multiplexer's maximum reported idle time
// when no timed task is sooner.
const idleCeiling = 2 * time.Second

// Dispatcher holds the four work-task lists and drains them in a fixed
// order: Immediate fully, Interleave up to the prior cycle's tail
// snapshot, Timed while due, Event only when flagged.
type Dispatcher struct {
	mu sync.Mutex

	nextID TaskID

	immediate  []*Task
	interleave []*Task
	timed      []*Task // kept sorted ascending by Event
	event      []*Task

	byID map[TaskID]*Task
}

// NewDispatcher creates an empty Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{byID: make(map[TaskID]*Task)}
}

// SetTask inserts a new task at the tail of its list; a Timed task is
// instead inserted in Event order.
func (d *Dispatcher) SetTask(kind Kind, event time.Time, fn Func, parm1, parm2, parm3 any) *Task {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	t := &Task{ID: d.nextID, Kind: kind, Event: event, Fn: fn, Parm1: parm1, Parm2: parm2, Parm3: parm3}
	d.byID[t.ID] = t

	switch kind {
	case Immediate:
		d.immediate = append(d.immediate, t)
	case Interleave:
		d.interleave = append(d.interleave, t)
	case Timed:
		d.insertTimed(t)
	case DeferredEvent, DeferredComplete:
		t.delayEntry = true
		d.event = append(d.event, t)
	}
	return t
}

// insertTimed inserts t keeping d.timed sorted ascending by Event,
// ties broken by insertion order.
func (d *Dispatcher) insertTimed(t *Task) {
	i := sort.Search(len(d.timed), func(i int) bool {
		return d.timed[i].Event.After(t.Event)
	})
	d.timed = append(d.timed, nil)
	copy(d.timed[i+1:], d.timed[i:])
	d.timed[i] = t
}

// DeleteTask unlinks task from whichever list holds it and frees it.
func (d *Dispatcher) DeleteTask(id TaskID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.deleteTaskLocked(id)
}

func (d *Dispatcher) deleteTaskLocked(id TaskID) bool {
	t, ok := d.byID[id]
	if !ok {
		return false
	}
	delete(d.byID, id)
	d.immediate = removeTask(d.immediate, t)
	d.interleave = removeTask(d.interleave, t)
	d.timed = removeTask(d.timed, t)
	d.event = removeTask(d.event, t)
	return true
}

func removeTask(list []*Task, t *Task) []*Task {
	for i, v := range list {
		if v == t {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// FindByParm1Func locates tasks by pointer identity on Parm1 and/or Fn,
// per mode. A nil fn matches any function.
func (d *Dispatcher) FindByParm1Func(parm1 any, fn Func, all bool) []*Task {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*Task
	for _, list := range [][]*Task{d.immediate, d.interleave, d.timed, d.event} {
		for _, t := range list {
			if t.Parm1 == parm1 && (fn == nil || sameFunc(fn, t.Fn)) {
				out = append(out, t)
				if !all {
					return out
				}
			}
		}
	}
	return out
}

// DeleteTaskByParm1Func is the cancellation primitive: a request
// waiting on a deferred reply is cancelled by deleting its work-task,
// keyed on the request pointer.
func (d *Dispatcher) DeleteTaskByParm1Func(parm1 any, fn Func, all bool) int {
	matches := d.FindByParm1Func(parm1, fn, all)
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, t := range matches {
		if d.deleteTaskLocked(t.ID) {
			n++
		}
	}
	return n
}

// sameFunc compares two Func values by code-pointer identity, since Go
// funcs aren't otherwise comparable. Callers that need precise matching
// pass the same top-level function or the same stored closure variable
// they registered with SetTask.
func sameFunc(a, b Func) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
}

// ConvertTask moves a pending task to a different list.
func (d *Dispatcher) ConvertTask(id TaskID, kind Kind, event time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.byID[id]
	if !ok {
		return false
	}
	d.immediate = removeTask(d.immediate, t)
	d.interleave = removeTask(d.interleave, t)
	d.timed = removeTask(d.timed, t)
	d.event = removeTask(d.event, t)

	t.Kind = kind
	t.Event = event
	switch kind {
	case Immediate:
		d.immediate = append(d.immediate, t)
	case Interleave:
		d.interleave = append(d.interleave, t)
	case Timed:
		d.insertTimed(t)
	case DeferredEvent, DeferredComplete:
		t.delayEntry = true
		d.event = append(d.event, t)
	}
	return true
}

// Cycle drains the dispatcher once and returns the idle duration the
// outer I/O multiplexer should wait before the next Cycle (clipped to
// idleCeiling).
func (d *Dispatcher) Cycle(now time.Time) time.Duration {
	d.drainImmediate()
	d.drainInterleave()
	d.drainTimed(now)
	return d.nextIdle(now)
}

// drainImmediate fully drains the Immediate list every cycle. New Immediate tasks appended by a
// dispatched task's Fn are drained too, within the same Cycle call, so
// all Immediate work completes before any Interleave runs.
func (d *Dispatcher) drainImmediate() {
	for {
		d.mu.Lock()
		if len(d.immediate) == 0 {
			d.mu.Unlock()
			return
		}
		t := d.immediate[0]
		d.immediate = d.immediate[1:]
		delete(d.byID, t.ID)
		d.mu.Unlock()
		if t.Fn != nil {
			t.Fn(t)
		}
	}
}

// drainInterleave drains only up to the prior-tail snapshot taken at the
// start of this call, so interleaved work appended during dispatch waits
// one cycle.
func (d *Dispatcher) drainInterleave() {
	d.mu.Lock()
	tail := len(d.interleave)
	d.mu.Unlock()

	for i := 0; i < tail; i++ {
		d.mu.Lock()
		if len(d.interleave) == 0 {
			d.mu.Unlock()
			return
		}
		t := d.interleave[0]
		d.interleave = d.interleave[1:]
		delete(d.byID, t.ID)
		d.mu.Unlock()
		if t.Fn != nil {
			t.Fn(t)
		}
	}
}

// drainTimed drains the Timed list while its head's event <= now, in
// event-time order with insertion-order tie-breaks (insertTimed already
// maintains that ordering).
func (d *Dispatcher) drainTimed(now time.Time) {
	for {
		d.mu.Lock()
		if len(d.timed) == 0 || d.timed[0].Event.After(now) {
			d.mu.Unlock()
			return
		}
		t := d.timed[0]
		d.timed = d.timed[1:]
		delete(d.byID, t.ID)
		d.mu.Unlock()
		if t.Fn != nil {
			t.Fn(t)
		}
	}
}

// DrainEvent sweeps the Event list, dispatching every task whose
// delayEntry flag is raised.
func (d *Dispatcher) DrainEvent() {
	for {
		d.mu.Lock()
		var next *Task
		idx := -1
		for i, t := range d.event {
			if t.delayEntry {
				next = t
				idx = i
				break
			}
		}
		if next == nil {
			d.mu.Unlock()
			return
		}
		d.event = append(d.event[:idx], d.event[idx+1:]...)
		delete(d.byID, next.ID)
		d.mu.Unlock()
		if next.Fn != nil {
			next.Fn(next)
		}
	}
}

// nextIdle reports how long the outer I/O multiplexer should wait:
// the residual Timed head's event-now, clipped to idleCeiling.
func (d *Dispatcher) nextIdle(now time.Time) time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.timed) == 0 {
		return idleCeiling
	}
	wait := d.timed[0].Event.Sub(now)
	if wait <= 0 {
		return 0
	}
	if wait > idleCeiling {
		return idleCeiling
	}
	return wait
}

// TimedLen reports the number of pending Timed tasks (test helper for
// the sorted-invariant property check).
func (d *Dispatcher) TimedLen() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.timed)
}

// TimedEventAt returns the event time of the i-th pending Timed task
// (test helper).
func (d *Dispatcher) TimedEventAt(i int) time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timed[i].Event
}
