// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"bufio"
	"net"
	"time"

	"github.com/jontk/batchsched/internal/request"
	"github.com/jontk/batchsched/pkg/logging"
)

// NetMux adapts the batch wire listener to the loop's Multiplexer
// contract: connections are accepted and decoded on their own
// goroutines, but the decoded request is handed to the loop as a ready
// handler, so processing (and all entity access) happens on the server
// thread. Replies are written back from the handler.
type NetMux struct {
	listener net.Listener
	proc     *request.Processor
	logger   logging.Logger

	// deadline bounds each connection's read and write; a read that
	// produces no request within it is a fatal channel error for that
	// connection.
	deadline time.Duration

	ready chan func()
}

// NewNetMux starts accepting on listener. Each connection carries a
// sequence of requests; each request gets exactly one reply.
func NewNetMux(listener net.Listener, proc *request.Processor, deadline time.Duration, logger logging.Logger) *NetMux {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	if deadline <= 0 {
		deadline = 30 * time.Second
	}
	m := &NetMux{
		listener: listener,
		proc:     proc,
		logger:   logger,
		deadline: deadline,
		ready:    make(chan func(), 64),
	}
	go m.acceptLoop()
	return m
}

// Wait blocks up to timeout for one decoded request and returns its
// processing handler.
func (m *NetMux) Wait(timeout time.Duration) (func(), bool) {
	select {
	case fn := <-m.ready:
		return fn, true
	case <-time.After(timeout):
		return nil, false
	}
}

// Close stops accepting new connections.
func (m *NetMux) Close() error { return m.listener.Close() }

func (m *NetMux) acceptLoop() {
	for {
		conn, err := m.listener.Accept()
		if err != nil {
			return
		}
		go m.serveConn(conn)
	}
}

func (m *NetMux) serveConn(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)

	for {
		if err := conn.SetReadDeadline(time.Now().Add(m.deadline)); err != nil {
			return
		}
		req, err := request.Decode(r)
		if err != nil {
			// EOF on a clean boundary is a normal disconnect; anything
			// else (including a deadline expiry mid-request) is fatal
			// for the channel.
			return
		}

		replied := make(chan *request.Reply, 1)
		m.ready <- func() {
			m.proc.Process(req, func(rep *request.Reply) { replied <- rep })
		}

		rep := <-replied
		if rep == nil {
			return
		}
		if err := conn.SetWriteDeadline(time.Now().Add(m.deadline)); err != nil {
			return
		}
		if err := request.EncodeReply(w, rep); err != nil {
			m.logger.Warn("reply write failed", "request", req.ID, "error", err)
			return
		}
	}
}
