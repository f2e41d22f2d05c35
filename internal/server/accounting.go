// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"sync"
	"time"

	"github.com/jontk/batchsched/pkg/logging"
)

// AcctRecord is one accounting entry: a record-type letter (Q enqueue,
// S start, E end), the job it concerns, and when it was emitted.
type AcctRecord struct {
	Kind    byte
	JobName string
	At      time.Time
}

// AccountingLog records job lifecycle events. Records land both in the
// structured log and in an in-memory ring the diagnostic surface can
// page through; a real deployment tails the structured log.
type AccountingLog struct {
	mu      sync.Mutex
	logger  logging.Logger
	records []AcctRecord
	limit   int
}

// NewAccountingLog builds a log retaining the most recent limit records
// (0 means a default of 10000).
func NewAccountingLog(logger logging.Logger, limit int) *AccountingLog {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	if limit <= 0 {
		limit = 10000
	}
	return &AccountingLog{logger: logger, limit: limit}
}

// Record appends one accounting record.
func (a *AccountingLog) Record(kind byte, jobName string) {
	rec := AcctRecord{Kind: kind, JobName: jobName, At: time.Now()}
	a.logger.Info("accounting", "record", string(kind), "job", jobName)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, rec)
	if len(a.records) > a.limit {
		a.records = a.records[len(a.records)-a.limit:]
	}
}

// Records returns a copy of the retained records, oldest first.
func (a *AccountingLog) Records() []AcctRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]AcctRecord, len(a.records))
	copy(out, a.records)
	return out
}
