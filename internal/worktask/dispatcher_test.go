// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package worktask

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// property: after inserting N work-tasks with random event
// times into the Timed list, the list is sorted non-decreasing and a
// full drain visits them in event-time order with insertion-order
// tie-breaks.
func TestTimedListSortedAndDrainOrder(t *testing.T) {
	d := NewDispatcher()
	base := time.Unix(1_700_000_000, 0)

	rnd := rand.New(rand.NewSource(42))
	const n = 200
	type want struct {
		insertOrder int
		event       time.Time
	}
	var inserted []want

	for i := 0; i < n; i++ {
		// Bias towards a handful of distinct event times so ties are
		// exercised, not just a uniformly random spread.
		offset := time.Duration(rnd.Intn(10)) * time.Second
		ev := base.Add(offset)
		d.SetTask(Timed, ev, nil, nil, nil, nil)
		inserted = append(inserted, want{insertOrder: i, event: ev})
	}

	require.Equal(t, n, d.TimedLen())
	for i := 1; i < d.TimedLen(); i++ {
		assert.False(t, d.TimedEventAt(i).Before(d.TimedEventAt(i-1)), "timed list must be non-decreasing at index %d", i)
	}

	var visited []time.Time
	for d.TimedLen() > 0 {
		before := d.TimedEventAt(0)
		d.drainTimed(base.Add(24 * time.Hour))
		visited = append(visited, before)
	}
	for i := 1; i < len(visited); i++ {
		assert.False(t, visited[i].Before(visited[i-1]))
	}
}

func TestCycleOrderingImmediateBeforeInterleave(t *testing.T) {
	d := NewDispatcher()
	var order []string

	d.SetTask(Interleave, time.Time{}, func(task *Task) { order = append(order, "interleave") }, nil, nil, nil)
	d.SetTask(Immediate, time.Time{}, func(task *Task) { order = append(order, "immediate") }, nil, nil, nil)

	d.Cycle(time.Now())
	require.Len(t, order, 2)
	assert.Equal(t, []string{"immediate", "interleave"}, order)
}

func TestInterleaveTaskAddedDuringCycleWaitsOneCycle(t *testing.T) {
	d := NewDispatcher()
	var order []string

	var second *Task
	d.SetTask(Interleave, time.Time{}, func(task *Task) {
		order = append(order, "first")
		second = d.SetTask(Interleave, time.Time{}, func(task *Task) { order = append(order, "second") }, nil, nil, nil)
	}, nil, nil, nil)

	d.Cycle(time.Now())
	assert.Equal(t, []string{"first"}, order, "newly appended interleaved work must wait one cycle")
	require.NotNil(t, second)

	d.Cycle(time.Now())
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestIdleCeilingClipped(t *testing.T) {
	d := NewDispatcher()
	now := time.Now()
	d.SetTask(Timed, now.Add(1*time.Hour), nil, nil, nil, nil)
	idle := d.Cycle(now)
	assert.Equal(t, idleCeiling, idle)
}

func TestIdleReflectsNearTimedTask(t *testing.T) {
	d := NewDispatcher()
	now := time.Now()
	d.SetTask(Timed, now.Add(500*time.Millisecond), nil, nil, nil, nil)
	idle := d.Cycle(now)
	assert.Equal(t, 500*time.Millisecond, idle)
}

func TestDeleteTaskByParm1Func(t *testing.T) {
	d := NewDispatcher()
	fn := func(task *Task) {}
	req := &struct{ id int }{id: 1}
	task := d.SetTask(DeferredEvent, time.Time{}, fn, req, nil, nil)
	assert.True(t, task.DelayEntry())

	n := d.DeleteTaskByParm1Func(req, fn, true)
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, len(d.FindByParm1Func(req, fn, true)))
}

func TestConvertTaskMovesLists(t *testing.T) {
	d := NewDispatcher()
	task := d.SetTask(Immediate, time.Time{}, nil, nil, nil, nil)
	ok := d.ConvertTask(task.ID, Timed, time.Now().Add(time.Second))
	require.True(t, ok)
	assert.Equal(t, 1, d.TimedLen())
}

func TestDrainEventOnlySweepsDelayEntry(t *testing.T) {
	d := NewDispatcher()
	var ran bool
	d.SetTask(DeferredEvent, time.Time{}, func(task *Task) { ran = true }, nil, nil, nil)
	d.DrainEvent()
	assert.True(t, ran)
}
