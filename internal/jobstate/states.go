// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package jobstate implements the job state machine: the transition
// table and guards for Transit/Queued/Held/Waiting/Running/Exiting/
// Expired/Finished/Moved/Begun/Suspended, plus the shutdown/checkpoint/
// rerun-or-kill guard chain.
package jobstate

import "github.com/jontk/batchsched/internal/entity"

// State is one of the twelve single-letter job states.
type State byte

const (
	Transit   State = 'T'
	Queued    State = 'Q'
	Held      State = 'H'
	Waiting   State = 'W'
	Running   State = 'R'
	Exiting   State = 'E'
	Expired   State = 'X'
	Finished  State = 'F'
	Moved     State = 'M'
	Begun     State = 'B'
	Suspended State = 'S'
	Userbusy  State = 'U'
)

func (s State) String() string { return string(byte(s)) }

// Substate refines a State.
type Substate int

const (
	SubNone Substate = iota
	SubStarting
	SubRunning
	SubSuspended
	SubProvisioning
	SubPreRun
	SubExitingComplete
)

// legalTransitions enumerates the legal job-state edges. A transition
// not in this set is rejected.
var legalTransitions = map[State]map[State]bool{
	Queued:   {Held: true, Running: true, Waiting: true, Moved: true},
	Held:     {Queued: true, Moved: true},
	Waiting:  {Queued: true, Moved: true},
	Running:  {Exiting: true, Queued: true, Moved: true, Suspended: true},
	Exiting:  {Finished: true, Moved: true},
	Finished: {},
	Suspended: {Running: true, Moved: true},
	Transit:  {Queued: true, Moved: true},
	Expired:  {Moved: true},
	Begun:    {Running: true, Moved: true},
	Moved:    {},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to State) bool {
	if from == to {
		return true
	}
	if to == Moved {
		return true // "any -> M (moved)"
	}
	edges, ok := legalTransitions[from]
	if !ok {
		return false
	}
	return edges[to]
}

// ReadState returns the job's current state from its QuickSave header.
func ReadState(j *entity.Job) State { return State(j.QuickSave.State) }

// WriteState sets the job's QuickSave state/substate.
func WriteState(j *entity.Job, s State, sub Substate) {
	j.QuickSave.State = int(s)
	j.QuickSave.Substate = int(sub)
}
