// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package request implements the batch request processor: it
// authenticates a decoded request against the operation's minimum
// privilege, resolves the target entity, applies any attribute change
// list atomically, runs the operation-specific guard, and guarantees
// exactly one reply per request — sent synchronously or from a deferred
// completion work-task.
package request

import (
	"time"

	"github.com/google/uuid"

	"github.com/jontk/batchsched/internal/attr"
	"github.com/jontk/batchsched/internal/entity"
	"github.com/jontk/batchsched/internal/jobstate"
)

// Op is a batch request's operation code.
type Op int

const (
	OpSubmit Op = iota
	OpModify
	OpSignal
	OpHold
	OpRelease
	OpMove
	OpRun
	OpRerun
	OpDelete
	OpStatus
	OpShutdown
)

func (o Op) String() string {
	switch o {
	case OpSubmit:
		return "submit"
	case OpModify:
		return "modify"
	case OpSignal:
		return "signal"
	case OpHold:
		return "hold"
	case OpRelease:
		return "release"
	case OpMove:
		return "move"
	case OpRun:
		return "run"
	case OpRerun:
		return "rerun"
	case OpDelete:
		return "delete"
	case OpStatus:
		return "status"
	case OpShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// minPrivilege is each operation's required caller privilege. Run and
// rerun come from the scheduler or an operator, never a plain user;
// shutdown requires operator or manager.
var minPrivilege = map[Op]attr.Privilege{
	OpSubmit:   attr.PrivUser,
	OpModify:   attr.PrivUser,
	OpSignal:   attr.PrivUser,
	OpHold:     attr.PrivUser,
	OpRelease:  attr.PrivUser,
	OpMove:     attr.PrivOperator,
	OpRun:      attr.PrivOperator,
	OpRerun:    attr.PrivOperator,
	OpDelete:   attr.PrivUser,
	OpStatus:   attr.PrivUser,
	OpShutdown: attr.PrivOperator,
}

// Credentials identify the authenticated requester.
type Credentials struct {
	User string
	Priv attr.Privilege
}

// Request is one decoded batch request: operation, credentials, target
// identity, optional attribute change list, and the operation-specific
// payload fields.
type Request struct {
	ID      string
	Op      Op
	Creds   Credentials
	Target  string
	Changes []attr.Change

	// Operation-specific payloads.
	Signal         string
	HoldType       string
	Destination    string
	Assignment     jobstate.Assignment
	ShutdownType   entity.ShutdownType
	ShutdownTarget entity.ShutdownTarget

	Received time.Time
}

// New builds a request with a fresh correlation ID.
func New(op Op, creds Credentials, target string) *Request {
	return &Request{
		ID:       uuid.NewString(),
		Op:       op,
		Creds:    creds,
		Target:   target,
		Received: time.Now(),
	}
}

// StatusEntry is one entity's status snapshot in a status reply.
type StatusEntry struct {
	Kind  string
	Name  string
	State string
	Attrs []attr.EncodedEntry
}

// Reply is the single response every request receives: a numeric code
// (0 on success), a textual description, the 1-based offending
// attribute index for attribute errors, and status data when the
// operation produces any.
type Reply struct {
	RequestID string
	Code      int
	Message   string
	AttrIndex int
	Status    []StatusEntry
}

// ReplyFunc delivers the reply for one request. Deferred operations
// hold onto it and invoke it from their completion work-task.
type ReplyFunc func(*Reply)

func okReply(req *Request) *Reply {
	return &Reply{RequestID: req.ID}
}

func errReply(req *Request, err error) *Reply {
	r := &Reply{RequestID: req.ID, Code: -1, Message: err.Error()}
	if ce, ok := coreErr(err); ok {
		r.Code = ce.WireCode()
		r.AttrIndex = ce.AttrIndex
		r.Message = ce.Message
	}
	return r
}
