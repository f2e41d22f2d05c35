// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"time"

	"github.com/jontk/batchsched/internal/jobstate"
	pkgcontext "github.com/jontk/batchsched/pkg/context"
	"github.com/jontk/batchsched/pkg/logging"
	"github.com/jontk/batchsched/pkg/retry"
)

// ExecTransport is the raw wire to one execution daemon. Calls fail
// with an error when the daemon is unreachable; the RetryingDaemon
// above it owns the redelivery policy.
type ExecTransport interface {
	RequestCheckpoint(ctx context.Context, jobName string) (migratable bool, busy bool, err error)
	Dispatch(ctx context.Context, jobName string, a jobstate.Assignment) error
	Signal(ctx context.Context, jobName, signal string) error
}

// RetryingDaemon wraps an ExecTransport with the per-node redelivery
// policy: transient failures are retried with exponential backoff, and
// only after the attempts are exhausted does the error surface so the
// caller can requeue or abort the job.
type RetryingDaemon struct {
	transport ExecTransport
	logger    logging.Logger
	timeout   time.Duration

	newBackoff func() retry.BackoffStrategy
}

// NewRetryingDaemon builds the redelivery wrapper. maxRetries bounds
// attempts per call; waitMin/waitMax bound the backoff between them.
func NewRetryingDaemon(transport ExecTransport, maxRetries int, waitMin, waitMax time.Duration, logger logging.Logger) *RetryingDaemon {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &RetryingDaemon{
		transport: transport,
		logger:    logger,
		timeout:   time.Minute,
		newBackoff: func() retry.BackoffStrategy {
			b := retry.NewExponentialBackoff()
			b.MaxAttempts = maxRetries
			b.InitialDelay = waitMin
			b.MaxDelay = waitMax
			return b
		},
	}
}

// RequestCheckpoint forwards a checkpoint request. Busy replies are not
// retried: the daemon answered, the answer is "later".
func (d *RetryingDaemon) RequestCheckpoint(jobName string) (migratable, busy bool, err error) {
	ctx, cancel := pkgcontext.EnsureTimeout(context.Background(), d.timeout)
	defer cancel()

	err = retry.Retry(ctx, d.newBackoff(), func() error {
		var cerr error
		migratable, busy, cerr = d.transport.RequestCheckpoint(ctx, jobName)
		if busy {
			return nil
		}
		return cerr
	})
	return migratable, busy, err
}

// Dispatch delivers a run assignment, retrying per the redelivery
// policy before giving up.
func (d *RetryingDaemon) Dispatch(jobName string, a jobstate.Assignment) error {
	ctx, cancel := pkgcontext.EnsureTimeout(context.Background(), d.timeout)
	defer cancel()

	err := retry.Retry(ctx, d.newBackoff(), func() error {
		return d.transport.Dispatch(ctx, jobName, a)
	})
	if err != nil {
		d.logger.Warn("execution daemon unreachable", "job", jobName, "error", err)
	}
	return err
}

// Signal forwards a signal to the job's execution daemon.
func (d *RetryingDaemon) Signal(jobName, signal string) error {
	ctx, cancel := pkgcontext.EnsureTimeout(context.Background(), d.timeout)
	defer cancel()

	return retry.Retry(ctx, d.newBackoff(), func() error {
		return d.transport.Signal(ctx, jobName, signal)
	})
}
