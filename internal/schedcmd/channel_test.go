// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package schedcmd

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jontk/batchsched/internal/preempt"
)

func TestChannelPushesRunDirectiveAndReceivesReply(t *testing.T) {
	ch := NewChannel(nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = ch.ServeHTTP(w, r)
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	id := ch.Run("42.server")

	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var cmd Command
	require.NoError(t, json.Unmarshal(raw, &cmd))
	assert.Equal(t, CmdRun, cmd.Kind)
	assert.Equal(t, "42.server", cmd.JobName)
	assert.Equal(t, id, cmd.ID)

	require.NoError(t, conn.WriteJSON(Reply{ID: id, Accepted: true}))

	select {
	case rep := <-ch.Replies():
		assert.Equal(t, id, rep.ID)
		assert.True(t, rep.Accepted)
	case <-time.After(time.Second):
		t.Fatal("reply not received")
	}
}

func TestChannelPreemptCarriesMethod(t *testing.T) {
	ch := NewChannel(nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = ch.ServeHTTP(w, r)
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	ch.Preempt("7.server", preempt.Checkpoint)
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var cmd Command
	require.NoError(t, json.Unmarshal(raw, &cmd))
	assert.Equal(t, preempt.Checkpoint, cmd.Method)
}

func TestFormulaFingerprintStableAndDistinguishing(t *testing.T) {
	a := FormulaFingerprint("2*walltime + queue_priority")
	b := FormulaFingerprint("2*walltime + queue_priority")
	c := FormulaFingerprint("3*walltime")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
