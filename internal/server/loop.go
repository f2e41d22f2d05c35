// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"time"

	"github.com/jontk/batchsched/internal/worktask"
	"github.com/jontk/batchsched/pkg/logging"
)

// Multiplexer is the external I/O wait the loop parks in between work
// cycles. Wait blocks up to timeout for one ready descriptor and
// returns its handler; ok is false on a clean timeout. Implementations
// wrap the request-channel listener, the execution-daemon sockets, and
// the scheduler command channel.
type Multiplexer interface {
	Wait(timeout time.Duration) (handle func(), ok bool)
}

// Loop is the single-threaded cooperative pump: drain work-tasks, wait
// on the multiplexer for at most the delay to the next timed task, then
// handle one ready descriptor. Everything that touches entity state
// runs on this goroutine.
type Loop struct {
	Tasks  *worktask.Dispatcher
	Mux    Multiplexer
	Logger logging.Logger

	calls chan func()
}

// NewLoop builds a loop around a dispatcher and multiplexer.
func NewLoop(tasks *worktask.Dispatcher, mux Multiplexer, logger logging.Logger) *Loop {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Loop{Tasks: tasks, Mux: mux, Logger: logger, calls: make(chan func(), 64)}
}

// Run pumps until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	l.Logger.Info("server loop started")
	for {
		select {
		case <-ctx.Done():
			l.Logger.Info("server loop stopped")
			return
		default:
		}

		idle := l.Tasks.Cycle(time.Now())
		l.Tasks.DrainEvent()
		l.drainCalls()

		if l.Mux != nil {
			if handle, ok := l.Mux.Wait(idle); ok && handle != nil {
				handle()
				continue
			}
			continue
		}

		// No multiplexer attached (tests, embedded use): park on the
		// call channel instead so Call still wakes the loop.
		select {
		case <-ctx.Done():
		case fn := <-l.calls:
			fn()
		case <-time.After(idle):
		}
	}
}

// Call runs fn on the loop goroutine and waits for it to finish. The
// diagnostic HTTP surface serves from its own goroutines, so every read
// it makes of entity state funnels through here to keep the
// single-thread ownership discipline intact.
func (l *Loop) Call(fn func()) {
	done := make(chan struct{})
	l.calls <- func() {
		fn()
		close(done)
	}
	<-done
}

func (l *Loop) drainCalls() {
	for {
		select {
		case fn := <-l.calls:
			fn()
		default:
			return
		}
	}
}
