// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package watch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPollerEmitsNewAndStateChange(t *testing.T) {
	var mu sync.Mutex
	gen := 0
	snapshots := [][]Snapshot[string]{
		{{ID: "1", State: "Q"}},
		{{ID: "1", State: "R"}},
		{{ID: "1", State: "R"}},
	}

	list := func(ctx context.Context) ([]Snapshot[string], error) {
		mu.Lock()
		defer mu.Unlock()
		idx := gen
		if idx >= len(snapshots) {
			idx = len(snapshots) - 1
		}
		gen++
		return snapshots[idx], nil
	}

	p := NewPoller(list).WithPollInterval(5 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var got []Event[string]
	for ev := range p.Watch(ctx) {
		got = append(got, ev)
	}

	require.NotEmpty(t, got)
	foundChange := false
	for _, ev := range got {
		if ev.Type == EventStateChange && ev.PreviousState == "Q" && ev.NewState == "R" {
			foundChange = true
		}
	}
	require.True(t, foundChange)
}

func TestPollerEmitsCompleted(t *testing.T) {
	var mu sync.Mutex
	gen := 0
	snapshots := [][]Snapshot[string]{
		{{ID: "1", State: "R"}},
		{},
	}

	list := func(ctx context.Context) ([]Snapshot[string], error) {
		mu.Lock()
		defer mu.Unlock()
		idx := gen
		if idx >= len(snapshots) {
			idx = len(snapshots) - 1
		}
		gen++
		return snapshots[idx], nil
	}

	p := NewPoller(list).WithPollInterval(5 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()

	var completed bool
	for ev := range p.Watch(ctx) {
		if ev.Type == EventCompleted && ev.ID == "1" {
			completed = true
		}
	}
	require.True(t, completed)
}
