// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package preempt implements the preempt ordering table: a fixed sequence of walltime bands, each naming
// the preemption methods available to jobs whose walltime falls in
// that band. Selection takes the first row whose [low, high] contains
// the job's walltime; row order breaks ties (first match wins).
package preempt

import (
	"time"

	"github.com/jontk/batchsched/pkg/errors"
)

// Method is one preemption technique a row may offer.
type Method int

const (
	Suspend Method = iota
	Checkpoint
	Requeue
	Delete
)

func (m Method) String() string {
	switch m {
	case Suspend:
		return "suspend"
	case Checkpoint:
		return "checkpoint"
	case Requeue:
		return "requeue"
	case Delete:
		return "delete"
	default:
		return "unknown"
	}
}

// Row is one band of the preempt ordering table.
type Row struct {
	Low, High time.Duration
	Methods   []Method
}

// Table is an ordered sequence of Rows, matched top to bottom.
type Table struct {
	Rows []Row
}

// MethodsFor returns the methods available to a job of the given
// walltime: the first row whose [Low, High] contains it.
func (t *Table) MethodsFor(walltime time.Duration) ([]Method, error) {
	for _, r := range t.Rows {
		if walltime >= r.Low && walltime <= r.High {
			return r.Methods, nil
		}
	}
	return nil, errors.Newf(errors.KindBadValue, "no preempt row covers walltime %s", walltime)
}

// DefaultTable is the standard 20-row shape: geometrically
// widening walltime bands from zero to unbounded, offering
// increasingly disruptive methods as jobs get longer (short jobs are
// merely suspended or checkpointed; the longest-running jobs are
// candidates for requeue or outright deletion under pressure).
func DefaultTable() *Table {
	bounds := []time.Duration{
		0, 1 * time.Minute, 5 * time.Minute, 10 * time.Minute, 30 * time.Minute,
		1 * time.Hour, 2 * time.Hour, 4 * time.Hour, 6 * time.Hour, 8 * time.Hour,
		12 * time.Hour, 16 * time.Hour, 24 * time.Hour, 2 * 24 * time.Hour, 3 * 24 * time.Hour,
		5 * 24 * time.Hour, 7 * 24 * time.Hour, 14 * 24 * time.Hour, 30 * 24 * time.Hour,
		time.Duration(1<<62 - 1),
	}
	rows := make([]Row, 0, len(bounds))
	for i := 0; i < len(bounds); i++ {
		low := bounds[i]
		high := time.Duration(1<<62 - 1)
		if i+1 < len(bounds) {
			high = bounds[i+1] - time.Nanosecond
		}
		rows = append(rows, Row{Low: low, High: high, Methods: methodsForBand(i, len(bounds))})
	}
	return &Table{Rows: rows}
}

// methodsForBand escalates disruptiveness with band index: early bands
// (short jobs) only suspend; mid bands add checkpoint; late bands add
// requeue; the final bands also permit outright deletion.
func methodsForBand(i, total int) []Method {
	switch {
	case i < total/4:
		return []Method{Suspend}
	case i < total/2:
		return []Method{Suspend, Checkpoint}
	case i < total*3/4:
		return []Method{Suspend, Checkpoint, Requeue}
	default:
		return []Method{Suspend, Checkpoint, Requeue, Delete}
	}
}
