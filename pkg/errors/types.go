// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package errors defines the closed set of error kinds the server surfaces
// to requesters and to its own logs, along with the numeric wire codes that
// accompany every reply.
package errors

import (
	"fmt"
	"time"
)

// Kind is one member of the closed error-kind set a request can fail with.
type Kind string

const (
	KindPermissionDenied  Kind = "permission-denied"
	KindUnknownAttribute  Kind = "unknown-attribute"
	KindUnknownResource   Kind = "unknown-resource"
	KindBadValue          Kind = "bad-value"
	KindBadType           Kind = "bad-type"
	KindBadTimeSpec       Kind = "bad-time-spec"
	KindBadRRuleSyntax    Kind = "bad-rrule-syntax"
	KindBadRRuleFrequency Kind = "bad-rrule-frequency"
	KindAOEChunkMismatch  Kind = "aoe-chunk-mismatch"
	KindReadOnly          Kind = "read-only"
	KindStaleState        Kind = "stale-state"
	KindUnknownQueue      Kind = "unknown-queue"
	KindUnknownJob        Kind = "unknown-job"
	KindCheckpointBusy    Kind = "checkpoint-busy"
	KindSystem            Kind = "system"
	KindInternal          Kind = "internal"
)

// Category groups kinds for retry and logging policy.
type Category string

const (
	CategoryAttribute  Category = "ATTRIBUTE"
	CategoryAuth       Category = "AUTH"
	CategoryState      Category = "STATE"
	CategoryRecurrence Category = "RECURRENCE"
	CategorySystem     Category = "SYSTEM"
)

// wireCode assigns every kind a stable numeric code carried in the wire
// reply. The table follows the order kinds were introduced in the
// closed set; the numbering is flat and local to this wire format.
var wireCode = map[Kind]int{
	KindPermissionDenied:  15001,
	KindUnknownAttribute:  15002,
	KindUnknownResource:   15003,
	KindBadValue:          15004,
	KindBadType:           15005,
	KindBadTimeSpec:       15006,
	KindBadRRuleSyntax:    15007,
	KindBadRRuleFrequency: 15008,
	KindAOEChunkMismatch:  15009,
	KindReadOnly:          15010,
	KindStaleState:        15011,
	KindUnknownQueue:      15012,
	KindUnknownJob:        15013,
	KindCheckpointBusy:    15014,
	KindSystem:            15015,
	KindInternal:          15016,
}

var category = map[Kind]Category{
	KindPermissionDenied:  CategoryAuth,
	KindUnknownAttribute:  CategoryAttribute,
	KindUnknownResource:   CategoryAttribute,
	KindBadValue:          CategoryAttribute,
	KindBadType:           CategoryAttribute,
	KindBadTimeSpec:       CategoryRecurrence,
	KindBadRRuleSyntax:    CategoryRecurrence,
	KindBadRRuleFrequency: CategoryRecurrence,
	KindAOEChunkMismatch:  CategoryAttribute,
	KindReadOnly:          CategoryAttribute,
	KindStaleState:        CategoryState,
	KindUnknownQueue:      CategoryState,
	KindUnknownJob:        CategoryState,
	KindCheckpointBusy:    CategoryState,
	KindSystem:            CategorySystem,
	KindInternal:          CategorySystem,
}

var retryable = map[Kind]bool{
	KindStaleState:     true,
	KindCheckpointBusy: true,
	KindSystem:         true,
}

// CoreError is the structured error every server-facing operation returns.
// It is deliberately narrow: a request either fails cleanly with one of the
// closed kinds, or the caller has a genuine bug.
type CoreError struct {
	Kind      Kind
	Message   string
	Timestamp time.Time
	// AttrIndex is the 1-based offending attribute index within a batch,
	// or 0 when the error isn't attribute-scoped.
	AttrIndex int
	Cause     error
}

func (e *CoreError) Error() string {
	if e.AttrIndex > 0 {
		return fmt.Sprintf("[%s #%d] %s (index %d)", e.Kind, e.WireCode(), e.Message, e.AttrIndex)
	}
	return fmt.Sprintf("[%s #%d] %s", e.Kind, e.WireCode(), e.Message)
}

func (e *CoreError) Unwrap() error { return e.Cause }

func (e *CoreError) Is(target error) bool {
	t, ok := target.(*CoreError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// WireCode returns the numeric code carried in the wire reply.
func (e *CoreError) WireCode() int { return wireCode[e.Kind] }

// Category returns the handling bucket for this kind.
func (e *CoreError) Category() Category { return category[e.Kind] }

// IsRetryable reports whether the propagation policy allows retrying the
// operation that produced this error.
func (e *CoreError) IsRetryable() bool { return retryable[e.Kind] }

// New creates a CoreError with no attribute index and no cause.
func New(kind Kind, message string) *CoreError {
	return &CoreError{Kind: kind, Message: message, Timestamp: time.Now()}
}

// Newf creates a CoreError with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *CoreError {
	return New(kind, fmt.Sprintf(format, args...))
}

// WithCause attaches an underlying cause.
func (e *CoreError) WithCause(cause error) *CoreError {
	e2 := *e
	e2.Cause = cause
	return &e2
}

// WithIndex attaches the 1-based offending attribute index.
func (e *CoreError) WithIndex(idx int) *CoreError {
	e2 := *e
	e2.AttrIndex = idx
	return &e2
}

// AsCoreError extracts a *CoreError from err, if any, via errors.As semantics
// handled by the caller (errors.As(err, &ce)) — this helper exists so
// packages that only need the kind don't import errors.As boilerplate.
func AsCoreError(err error) (*CoreError, bool) {
	ce, ok := err.(*CoreError)
	return ce, ok
}
