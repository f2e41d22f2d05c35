// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package resvstate implements the reservation state machine and the standing-reservation
// recurrence cycling that rebinds a finished occurrence's window from
// internal/recurrence.
package resvstate

import "github.com/jontk/batchsched/internal/entity"

// State is one of the reservation lifecycle states.
type State int

const (
	Unconfirmed State = iota
	Confirmed
	Waiting
	TimeToRun
	Running
	Finished
	Degraded
	BeingDeleted
)

func (s State) String() string {
	switch s {
	case Unconfirmed:
		return "Unconfirmed"
	case Confirmed:
		return "Confirmed"
	case Waiting:
		return "Waiting"
	case TimeToRun:
		return "Time_to_run"
	case Running:
		return "Running"
	case Finished:
		return "Finished"
	case Degraded:
		return "Degraded"
	case BeingDeleted:
		return "Being_Deleted"
	default:
		return "Unknown"
	}
}

// legalTransitions enumerates the legal reservation edges. Degraded is
// reachable from any live (non-terminal) state, and any state can move
// to Being_Deleted.
var legalTransitions = map[State]map[State]bool{
	Unconfirmed:  {Confirmed: true},
	Confirmed:    {Waiting: true, Degraded: true},
	Waiting:      {TimeToRun: true, Degraded: true},
	TimeToRun:    {Running: true, Degraded: true},
	Running:      {Finished: true, Degraded: true},
	Finished:     {Waiting: true}, // standing reservation cycles to its next occurrence
	Degraded:     {Confirmed: true, Waiting: true, Running: true, Finished: true},
	BeingDeleted: {},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to State) bool {
	if from == to {
		return true
	}
	if to == BeingDeleted {
		return true
	}
	edges, ok := legalTransitions[from]
	if !ok {
		return false
	}
	return edges[to]
}

// ReadState returns the reservation's current state from its
// QuickSave header.
func ReadState(r *entity.Reservation) State { return State(r.QuickSave.State) }

// WriteState sets the reservation's QuickSave state.
func WriteState(r *entity.Reservation, s State) { r.QuickSave.State = int(s) }
