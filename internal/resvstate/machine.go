// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package resvstate

import (
	"time"

	"github.com/jontk/batchsched/internal/attr"
	"github.com/jontk/batchsched/internal/entity"
	"github.com/jontk/batchsched/internal/recurrence"
	"github.com/jontk/batchsched/pkg/errors"
)

// Allocator hands out node/resource assignments for a reservation's
// window.
type Allocator interface {
	CanAllocate(r *entity.Reservation) bool
}

// Machine drives reservation transitions.
type Machine struct {
	Sched Allocator
}

// Confirm moves an Unconfirmed reservation to Confirmed once the
// scheduler accepts its placement.
func (m *Machine) Confirm(r *entity.Reservation) error {
	if ReadState(r) != Unconfirmed {
		return errors.Newf(errors.KindStaleState, "reservation %s is in state %s, not Unconfirmed", r.Name, ReadState(r))
	}
	if m.Sched != nil && !m.Sched.CanAllocate(r) {
		return errors.New(errors.KindStaleState, "scheduler rejected reservation placement")
	}
	WriteState(r, Confirmed)
	return nil
}

// ToWaiting advances a Confirmed reservation to Waiting once it is
// bound to its next occurrence window.
func (m *Machine) ToWaiting(r *entity.Reservation) error {
	if ReadState(r) != Confirmed {
		return errors.Newf(errors.KindStaleState, "reservation %s is in state %s, not Confirmed", r.Name, ReadState(r))
	}
	WriteState(r, Waiting)
	return nil
}

// TimeToRun fires when the current time reaches the occurrence's start
// time.
func (m *Machine) TimeToRun(r *entity.Reservation, now time.Time) error {
	if ReadState(r) != Waiting {
		return errors.Newf(errors.KindStaleState, "reservation %s is in state %s, not Waiting", r.Name, ReadState(r))
	}
	start := timeAttr(r, entity.ResvAttrStart)
	if now.Before(start) {
		return errors.New(errors.KindStaleState, "occurrence start time has not arrived yet")
	}
	WriteState(r, TimeToRun)
	return nil
}

// Run transitions Time_to_run -> Running once the jobs inside the
// reservation have been dispatched.
func (m *Machine) Run(r *entity.Reservation) error {
	if ReadState(r) != TimeToRun {
		return errors.Newf(errors.KindStaleState, "reservation %s is in state %s, not Time_to_run", r.Name, ReadState(r))
	}
	WriteState(r, Running)
	return nil
}

// Finish transitions a Running reservation to Finished at its
// occurrence's end time. For a standing reservation (one
// carrying an RRULE) it immediately advances the occurrence index and
// cycles back to Waiting with the next occurrence's start/end window
// bound in; a one-shot reservation stays Finished.
func (m *Machine) Finish(r *entity.Reservation) error {
	if ReadState(r) != Running {
		return errors.Newf(errors.KindStaleState, "reservation %s is in state %s, not Running", r.Name, ReadState(r))
	}
	WriteState(r, Finished)

	rrule := stringAttrVal(r, entity.ResvAttrRRule)
	if rrule == "" {
		return nil
	}
	return m.advanceOccurrence(r, rrule)
}

// advanceOccurrence re-parses the reservation's RRULE against its
// original first-occurrence start/duration, advances the occurrence
// index, and rebinds start/end to the next occurrence -- or leaves the
// reservation Finished once occurrences are exhausted.
func (m *Machine) advanceOccurrence(r *entity.Reservation, rrule string) error {
	duration := durationAttrVal(r, entity.ResvAttrDuration)
	tzid := stringAttrVal(r, entity.ResvAttrTZ)
	dtstart := timeAttr(r, entity.ResvAttrDTStart)

	rec, err := recurrence.ParseRRule(rrule, dtstart, duration, tzid)
	if err != nil {
		return err
	}
	idx := longAttrVal(r, entity.ResvAttrOccurrence) + 1
	next, err := recurrence.Occurrence(rec, int(idx))
	if err != nil {
		// occurrences exhausted: stays Finished.
		return nil
	}
	r.Attrs[entity.ResvAttrOccurrence] = longAttr(idx)
	r.Attrs[entity.ResvAttrStart] = timeAttrSet(next)
	r.Attrs[entity.ResvAttrEnd] = timeAttrSet(next.Add(duration))
	WriteState(r, Waiting)
	return nil
}

// Degrade marks a reservation Degraded when its resource backing is no
// longer satisfiable.
func (m *Machine) Degrade(r *entity.Reservation) error {
	cur := ReadState(r)
	if cur == BeingDeleted || cur == Finished {
		return errors.Newf(errors.KindStaleState, "reservation %s is in terminal state %s", r.Name, cur)
	}
	WriteState(r, Degraded)
	return nil
}

// Delete marks a reservation Being_Deleted from any state.
func (m *Machine) Delete(r *entity.Reservation) {
	WriteState(r, BeingDeleted)
}

func timeAttr(r *entity.Reservation, slot int) time.Time {
	t, _ := r.Attrs[slot].Payload.(time.Time)
	return t
}

func timeAttrSet(t time.Time) attr.Attribute {
	return attr.Attribute{Type: attr.TypeTime, Payload: t, Flags: attr.FlagSet}
}

func durationAttrVal(r *entity.Reservation, slot int) time.Duration {
	d, _ := r.Attrs[slot].Payload.(time.Duration)
	return d
}

func stringAttrVal(r *entity.Reservation, slot int) string {
	s, _ := r.Attrs[slot].Payload.(string)
	return s
}

func longAttrVal(r *entity.Reservation, slot int) int64 {
	n, _ := r.Attrs[slot].Payload.(int64)
	return n
}

func longAttr(v int64) attr.Attribute {
	return attr.Attribute{Type: attr.TypeLong, Payload: v, Flags: attr.FlagSet}
}
