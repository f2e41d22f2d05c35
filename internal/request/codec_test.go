// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package request

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jontk/batchsched/internal/attr"
	"github.com/jontk/batchsched/internal/entity"
	"github.com/jontk/batchsched/internal/jobstate"
)

func TestRequestCodecRoundTrip(t *testing.T) {
	req := New(OpSubmit, Credentials{User: "alice", Priv: attr.PrivUser}, "")
	req.Changes = []attr.Change{
		{Name: "select", Op: attr.OpSet, Value: "2:ncpus=4+1:ncpus=1"},
		{Name: "Resource_List", Resource: "walltime", Op: attr.OpIncr, Value: "00:10:00"},
	}

	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	require.NoError(t, Encode(w, req))

	got, err := Decode(bufio.NewReader(&buf))
	require.NoError(t, err)

	assert.Equal(t, req.Op, got.Op)
	assert.Equal(t, req.ID, got.ID)
	assert.Equal(t, req.Creds, got.Creds)
	assert.Equal(t, req.Changes, got.Changes)
}

func TestRequestCodecCarriesPayloadFields(t *testing.T) {
	req := New(OpRun, Credentials{User: "sched", Priv: attr.PrivOperator}, "12.svr")
	req.Assignment = jobstate.Assignment{ExecVnode: "(n1:ncpus=2)+(n2:ncpus=2)", ExecHost: "n1/0*2+n2/0*2"}
	req.Signal = "SIGTERM"
	req.HoldType = "s"
	req.Destination = "slowq"
	req.ShutdownType = entity.ShutdownDelayed
	req.ShutdownTarget = entity.TargetPrimary

	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	require.NoError(t, Encode(w, req))

	got, err := Decode(bufio.NewReader(&buf))
	require.NoError(t, err)

	assert.Equal(t, "12.svr", got.Target)
	assert.Equal(t, req.Assignment, got.Assignment)
	assert.Equal(t, "SIGTERM", got.Signal)
	assert.Equal(t, "s", got.HoldType)
	assert.Equal(t, "slowq", got.Destination)
	assert.Equal(t, entity.ShutdownDelayed, got.ShutdownType)
	assert.Equal(t, entity.TargetPrimary, got.ShutdownTarget)
}

func TestReplyCodecRoundTrip(t *testing.T) {
	rep := &Reply{
		RequestID: "abc-123",
		Code:      15004,
		Message:   "bad value",
		AttrIndex: 2,
		Status: []StatusEntry{
			{
				Kind:  "job",
				Name:  "1.svr",
				State: "Q",
				Attrs: []attr.EncodedEntry{
					{Name: "priority", Value: "5"},
					{Name: "Resource_List", Resource: "ncpus", Value: "2"},
				},
			},
		},
	}

	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	require.NoError(t, EncodeReply(w, rep))

	got, err := DecodeReply(bufio.NewReader(&buf))
	require.NoError(t, err)
	assert.Equal(t, rep, got)
}

func TestReplyCodecEmptyStatus(t *testing.T) {
	rep := &Reply{RequestID: "x", Code: 0}

	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	require.NoError(t, EncodeReply(w, rep))

	got, err := DecodeReply(bufio.NewReader(&buf))
	require.NoError(t, err)
	assert.Equal(t, 0, got.Code)
	assert.Empty(t, got.Status)
}
