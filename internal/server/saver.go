// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"time"

	"github.com/jontk/batchsched/internal/persistence"
	"github.com/jontk/batchsched/internal/worktask"
	pkgcontext "github.com/jontk/batchsched/pkg/context"
	"github.com/jontk/batchsched/pkg/logging"
	"github.com/jontk/batchsched/pkg/retry"
)

// Saver queues persistence saves as interleaved work-tasks so a burst
// of entity mutations inside one request doesn't stall the request on
// store round-trips. Saves coalesce per entity: a second schedule for
// the same (kind, name) before the first runs just widens the pending
// save-type bitset and replaces the row snapshot.
type Saver struct {
	bridge *persistence.Bridge
	tasks  *worktask.Dispatcher
	logger logging.Logger

	// backoff governs reattempts after a save failure; the bridge has
	// already marked the store connection unhealthy, so each retry
	// reconnects first.
	backoff retry.BackoffStrategy

	pending map[string]*pendingSave
}

type pendingSave struct {
	row      persistence.Row
	saveType persistence.SaveType
	queued   bool
}

// NewSaver builds a Saver draining into bridge via tasks.
func NewSaver(bridge *persistence.Bridge, tasks *worktask.Dispatcher, logger logging.Logger) *Saver {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Saver{
		bridge:  bridge,
		tasks:   tasks,
		logger:  logger,
		backoff: retry.NewExponentialBackoff(),
		pending: map[string]*pendingSave{},
	}
}

// ScheduleSave records the row for saving and queues a flush task if
// none is pending for this entity yet.
func (s *Saver) ScheduleSave(row persistence.Row, saveType persistence.SaveType) {
	key := row.Kind + "/" + row.Name
	p, ok := s.pending[key]
	if !ok {
		p = &pendingSave{}
		s.pending[key] = p
	}
	p.row = row
	p.saveType |= saveType
	if !p.queued {
		p.queued = true
		s.tasks.SetTask(worktask.Interleave, time.Time{}, func(*worktask.Task) { s.flush(key) }, key, nil, nil)
	}
}

func (s *Saver) flush(key string) {
	p, ok := s.pending[key]
	if !ok {
		return
	}
	delete(s.pending, key)

	ctx, cancel := pkgcontext.WithTimeout(context.Background(), pkgcontext.OpSave, nil)
	defer cancel()

	err := retry.Retry(ctx, s.backoff, func() error {
		return s.bridge.Save(ctx, p.row, p.saveType, nil)
	})
	if err != nil {
		s.logger.Error("entity save abandoned after retries", "entity", key, "error", err)
	}
}

// Flush forces every pending save through immediately, used at
// shutdown so quick-save state reaches the store before exit.
func (s *Saver) Flush() {
	for key := range s.pending {
		s.flush(key)
	}
}
