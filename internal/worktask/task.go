// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package worktask implements the server's single-threaded event pump:
// four ordered lists of deferred work (Immediate, Interleave, Timed,
// Event) drained every cycle in a fixed order. List membership is
// tracked by TaskID handles in indexed slices rather than intrusive
// links.
package worktask

import "time"

// Kind is the list a Task belongs to.
type Kind int

const (
	Immediate Kind = iota
	Interleave
	Timed
	DeferredEvent
	DeferredComplete
)

// TaskID is an opaque handle identifying one pending task.
type TaskID uint64

// Func is the callable invoked when a task is dispatched.
type Func func(t *Task)

// Task is one deferred unit of work.
type Task struct {
	ID    TaskID
	Kind  Kind
	Event time.Time // meaningful only for Kind == Timed
	Fn    Func
	Parm1 any
	Parm2 any
	Parm3 any

	// delayEntry marks a Task on the Event list whose completion is
	// awaited by a still-open request; only such tasks are swept by
	// DrainEvent.
	delayEntry bool
}

// DelayEntry reports whether this task's reply is deferred (used by
// the request processor to decide whether to reply immediately or wait
// for the completion callback).
func (t *Task) DelayEntry() bool { return t.delayEntry }
