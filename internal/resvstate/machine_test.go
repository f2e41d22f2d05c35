// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package resvstate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jontk/batchsched/internal/attr"
	"github.com/jontk/batchsched/internal/entity"
)

type allowAllocator struct{ allow bool }

func (a allowAllocator) CanAllocate(*entity.Reservation) bool { return a.allow }

func newUnconfirmed(t *testing.T, start time.Time, dur time.Duration) *entity.Reservation {
	t.Helper()
	r := entity.NewReservation("R1.server")
	r.Attrs[entity.ResvAttrStart] = attr.Attribute{Type: attr.TypeTime, Payload: start, Flags: attr.FlagSet}
	r.Attrs[entity.ResvAttrDTStart] = attr.Attribute{Type: attr.TypeTime, Payload: start, Flags: attr.FlagSet}
	r.Attrs[entity.ResvAttrDuration] = attr.Attribute{Type: attr.TypeDuration, Payload: dur, Flags: attr.FlagSet}
	WriteState(r, Unconfirmed)
	return r
}

func TestLifecycleUnconfirmedToRunning(t *testing.T) {
	start := time.Date(2026, 8, 3, 9, 0, 0, 0, time.UTC)
	r := newUnconfirmed(t, start, time.Hour)
	m := &Machine{Sched: allowAllocator{allow: true}}

	require.NoError(t, m.Confirm(r))
	assert.Equal(t, Confirmed, ReadState(r))

	require.NoError(t, m.ToWaiting(r))
	assert.Equal(t, Waiting, ReadState(r))

	require.Error(t, m.TimeToRun(r, start.Add(-time.Minute)))
	require.NoError(t, m.TimeToRun(r, start))
	assert.Equal(t, TimeToRun, ReadState(r))

	require.NoError(t, m.Run(r))
	assert.Equal(t, Running, ReadState(r))
}

func TestConfirmRejectedByScheduler(t *testing.T) {
	r := newUnconfirmed(t, time.Now(), time.Hour)
	m := &Machine{Sched: allowAllocator{allow: false}}
	err := m.Confirm(r)
	require.Error(t, err)
	assert.Equal(t, Unconfirmed, ReadState(r))
}

func TestDegradeFromConfirmedAndRunning(t *testing.T) {
	r := newUnconfirmed(t, time.Now(), time.Hour)
	m := &Machine{}
	require.NoError(t, m.Confirm(r))
	require.NoError(t, m.Degrade(r))
	assert.Equal(t, Degraded, ReadState(r))
}

func TestDeleteFromAnyState(t *testing.T) {
	r := newUnconfirmed(t, time.Now(), time.Hour)
	m := &Machine{}
	m.Delete(r)
	assert.Equal(t, BeingDeleted, ReadState(r))
}

// A standing reservation with a weekly RRULE (COUNT=4) cycles
// Finished -> Waiting for each of its occurrences and stays Finished
// once the fourth has completed.
func TestStandingReservationCyclesThroughOccurrences(t *testing.T) {
	start := time.Date(2026, 8, 3, 9, 0, 0, 0, time.UTC) // a Monday
	dur := time.Hour
	r := newUnconfirmed(t, start, dur)
	r.Attrs[entity.ResvAttrRRule] = attr.Attribute{Type: attr.TypeString, Payload: "FREQ=WEEKLY;COUNT=4;BYDAY=MO", Flags: attr.FlagSet}
	r.Attrs[entity.ResvAttrTZ] = attr.Attribute{Type: attr.TypeString, Payload: "UTC", Flags: attr.FlagSet}

	m := &Machine{Sched: allowAllocator{allow: true}}
	require.NoError(t, m.Confirm(r))
	require.NoError(t, m.ToWaiting(r))

	for occurrence := 0; occurrence < 4; occurrence++ {
		assert.Equal(t, Waiting, ReadState(r))
		require.NoError(t, m.TimeToRun(r, timeOf(r)))
		require.NoError(t, m.Run(r))
		require.NoError(t, m.Finish(r))

		if occurrence < 3 {
			assert.Equal(t, Waiting, ReadState(r), "occurrence %d should cycle back to Waiting", occurrence)
			assert.Equal(t, int64(occurrence+1), longAttrVal(r, entity.ResvAttrOccurrence))
		} else {
			assert.Equal(t, Finished, ReadState(r), "fourth occurrence exhausts COUNT=4 and stays Finished")
		}
	}
}

func timeOf(r *entity.Reservation) time.Time {
	return timeAttr(r, entity.ResvAttrStart)
}
