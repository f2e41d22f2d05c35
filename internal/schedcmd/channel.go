// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package schedcmd implements the scheduler command channel: the server's persistent
// duplex link to the pluggable scheduler, used to push run/preempt
// directives and receive placement replies, plus the sort-formula
// fingerprint the scheduler uses to detect a policy change without the
// server resending the whole formula text on every cycle. Built on
// pkg/streaming's duplex WebSocket hub: a persistent push channel fits
// this better than request/response polling.
package schedcmd

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/jontk/batchsched/internal/preempt"
	"github.com/jontk/batchsched/pkg/errors"
	"github.com/jontk/batchsched/pkg/logging"
	"github.com/jontk/batchsched/pkg/streaming"
)

// CommandKind tags a Command's payload.
type CommandKind string

const (
	CmdRun     CommandKind = "run"
	CmdPreempt CommandKind = "preempt"
	CmdCancel  CommandKind = "cancel"
)

// Command is one directive pushed to the scheduler.
type Command struct {
	ID      string         `json:"id"`
	Kind    CommandKind    `json:"kind"`
	JobName string         `json:"job_name"`
	Method  preempt.Method `json:"method,omitempty"`
}

// Reply is the scheduler's response to a Command, correlated by ID.
type Reply struct {
	ID       string `json:"id"`
	Accepted bool   `json:"accepted"`
	Error    string `json:"error,omitempty"`
}

// Channel is one scheduler's duplex command/reply link.
type Channel struct {
	hub      *streaming.WebSocketHub
	outbound chan interface{}
	inbound  chan interface{}
	replies  chan Reply
}

// NewChannel allocates a Channel ready to accept one scheduler
// WebSocket connection via ServeHTTP.
func NewChannel(logger logging.Logger) *Channel {
	c := &Channel{
		hub:      streaming.NewWebSocketHub(logger),
		outbound: make(chan interface{}, 64),
		inbound:  make(chan interface{}, 64),
		replies:  make(chan Reply, 64),
	}
	go c.pumpReplies()
	return c
}

// ServeHTTP upgrades the incoming request to the scheduler's duplex
// connection and pumps it until the scheduler disconnects.
func (c *Channel) ServeHTTP(w http.ResponseWriter, r *http.Request) error {
	return c.hub.Serve(w, r, streaming.Duplex{
		Outbound: c.outbound,
		Inbound:  c.inbound,
		Decode:   decodeReply,
	})
}

func decodeReply(raw []byte) (interface{}, error) {
	var rep Reply
	if err := json.Unmarshal(raw, &rep); err != nil {
		return nil, errors.Newf(errors.KindBadValue, "malformed scheduler reply: %v", err)
	}
	return rep, nil
}

func (c *Channel) pumpReplies() {
	for msg := range c.inbound {
		rep, ok := msg.(Reply)
		if !ok {
			continue
		}
		c.replies <- rep
	}
}

// Replies exposes the decoded scheduler reply stream.
func (c *Channel) Replies() <-chan Reply { return c.replies }

// Run pushes a run directive for jobName, returning the correlation ID
// the eventual Reply will carry.
func (c *Channel) Run(jobName string) string {
	return c.push(Command{ID: uuid.NewString(), Kind: CmdRun, JobName: jobName})
}

// Preempt pushes a preempt directive for jobName using the given
// method.
func (c *Channel) Preempt(jobName string, method preempt.Method) string {
	return c.push(Command{ID: uuid.NewString(), Kind: CmdPreempt, JobName: jobName, Method: method})
}

// Cancel pushes a cancellation of a previously-issued Run directive.
func (c *Channel) Cancel(jobName string) string {
	return c.push(Command{ID: uuid.NewString(), Kind: CmdCancel, JobName: jobName})
}

func (c *Channel) push(cmd Command) string {
	c.outbound <- cmd
	return cmd.ID
}

// FormulaFingerprint returns a stable, short fingerprint of a sort
// formula's text, letting the scheduler detect a policy change without
// the server resending the formula on every cycle.
func FormulaFingerprint(formula string) string {
	sum := sha256.Sum256([]byte(formula))
	return hex.EncodeToString(sum[:8])
}
