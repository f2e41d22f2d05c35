// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package streaming

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
)

func TestWebSocketHubPumpsOutboundAndInbound(t *testing.T) {
	hub := NewWebSocketHub(nil)
	outbound := make(chan interface{}, 1)
	inbound := make(chan interface{}, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		err := hub.Serve(w, r, Duplex{
			Outbound: outbound,
			Inbound:  inbound,
			Decode: func(raw []byte) (interface{}, error) {
				var m map[string]string
				if err := json.Unmarshal(raw, &m); err != nil {
					return nil, err
				}
				return m, nil
			},
		})
		_ = err
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	outbound <- map[string]string{"cmd": "preempt", "job": "1.server"}
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var got map[string]string
	require.NoError(t, json.Unmarshal(msg, &got))
	assert.Equal(t, "preempt", got["cmd"])

	require.NoError(t, conn.WriteJSON(map[string]string{"ack": "preempt"}))

	select {
	case in := <-inbound:
		m, ok := in.(map[string]string)
		require.True(t, ok)
		assert.Equal(t, "preempt", m["ack"])
	case <-time.After(time.Second):
		t.Fatal("inbound message not received")
	}
}
