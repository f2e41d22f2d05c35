// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package request

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jontk/batchsched/internal/attr"
	"github.com/jontk/batchsched/internal/entity"
	"github.com/jontk/batchsched/internal/resvstate"
)

type alwaysAllocates struct{}

func (alwaysAllocates) CanAllocate(*entity.Reservation) bool { return true }

func submitResv(t *testing.T, p *Processor, start time.Time, duration time.Duration, rrule string) *Reply {
	t.Helper()
	req := New(OpSubmit, Credentials{User: "alice", Priv: attr.PrivUser}, "")
	req.Changes = []attr.Change{
		{Name: "reserve_start", Op: attr.OpSet, Value: start.Format(time.RFC3339)},
		{Name: "reserve_duration", Op: attr.OpSet, Value: formatSeconds(duration)},
	}
	if rrule != "" {
		req.Changes = append(req.Changes,
			attr.Change{Name: "reserve_rrule", Op: attr.OpSet, Value: rrule},
			attr.Change{Name: "reserve_timezone", Op: attr.OpSet, Value: "UTC"},
		)
	}
	return p.SubmitReservation(req)
}

func formatSeconds(d time.Duration) string {
	return time.Time{}.Add(d).Format("15:04:05")
}

func TestStandingReservationLifecycle(t *testing.T) {
	p, store, _, _, _ := newTestProcessor()
	p.Resvs = &resvstate.Machine{Sched: alwaysAllocates{}}

	// Next Monday 10:00 UTC, weekly for 4 occurrences, 1 hour each.
	start := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	reply := submitResv(t, p, start, time.Hour, "FREQ=WEEKLY;COUNT=4;BYDAY=MO")
	require.Equal(t, 0, reply.Code, reply.Message)
	name := reply.Message

	r, ok := store.Reservation(name)
	require.True(t, ok)
	assert.Equal(t, resvstate.Unconfirmed, resvstate.ReadState(r))

	require.NoError(t, p.ConfirmReservation(name))
	assert.Equal(t, resvstate.Waiting, resvstate.ReadState(r))

	// First occurrence window opens and closes; the standing reservation
	// cycles back to Waiting bound to occurrence 2.
	p.Tasks.Cycle(start.Add(time.Second))
	assert.Equal(t, resvstate.Running, resvstate.ReadState(r))

	p.Tasks.Cycle(start.Add(time.Hour).Add(time.Second))
	assert.Equal(t, resvstate.Waiting, resvstate.ReadState(r))

	nextStart, _ := r.Attrs[entity.ResvAttrStart].Payload.(time.Time)
	assert.Equal(t, start.AddDate(0, 0, 7), nextStart.UTC(), "next occurrence is one week on")
	occ, _ := r.Attrs[entity.ResvAttrOccurrence].Payload.(int64)
	assert.Equal(t, int64(1), occ)
}

func TestReservationRejectsBadRRule(t *testing.T) {
	p, _, _, _, _ := newTestProcessor()
	start := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)

	reply := submitResv(t, p, start, time.Hour, "FREQ=WEEKLY;COUNT=4;UNTIL=20270101T000000Z")
	assert.NotEqual(t, 0, reply.Code, "COUNT and UNTIL are mutually exclusive")

	reply = submitResv(t, p, start, 2*time.Hour, "FREQ=HOURLY;COUNT=4")
	assert.NotEqual(t, 0, reply.Code, "duration exceeding the frequency granularity is rejected")
}

func TestReservationRequiresStartAndDuration(t *testing.T) {
	p, _, _, _, _ := newTestProcessor()
	req := New(OpSubmit, Credentials{User: "alice", Priv: attr.PrivUser}, "")
	reply := p.SubmitReservation(req)
	assert.NotEqual(t, 0, reply.Code)
}

func TestDeleteReservationDropsWindowTasks(t *testing.T) {
	p, store, _, _, _ := newTestProcessor()
	p.Resvs = &resvstate.Machine{Sched: alwaysAllocates{}}

	start := time.Now().Add(time.Hour)
	reply := submitResv(t, p, start, 30*time.Minute, "")
	require.Equal(t, 0, reply.Code, reply.Message)
	name := reply.Message
	require.NoError(t, p.ConfirmReservation(name))

	req := New(OpDelete, Credentials{User: "alice", Priv: attr.PrivUser}, name)
	del := p.DeleteReservation(req)
	require.Equal(t, 0, del.Code)

	_, ok := store.Reservation(name)
	assert.False(t, ok)

	// The pending window task was removed with it.
	assert.Empty(t, p.Tasks.FindByParm1Func(name, nil, true))
}
