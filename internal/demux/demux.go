// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package demux implements the standard-stream demultiplexer for
// multi-node jobs: two listening sockets (one for stdout, one for
// stderr) accept connections from the job's sister nodes, validate a
// per-job cookie as the first bytes of each connection, and copy the
// remaining bytes line-buffered onto the local stdout/stderr.
package demux

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/jontk/batchsched/pkg/logging"
)

// Config wires one demultiplexer instance.
type Config struct {
	// Cookie is the per-job secret every connection must lead with.
	Cookie string

	// Out and Err are the two listeners; connections accepted on Out
	// route to Stdout, on Err to Stderr.
	Out net.Listener
	Err net.Listener

	// Stdout and Stderr receive the demultiplexed stream bytes.
	Stdout io.Writer
	Stderr io.Writer

	// ParentAlive reports whether the spawning process still exists;
	// polled on an interval, a false return ends the run. Nil means no
	// parent watching.
	ParentAlive func() bool

	// ParentPollInterval overrides the default 10s parent liveness poll.
	ParentPollInterval time.Duration

	Logger logging.Logger
}

// Demux copies cookie-validated connections to stdout/stderr until its
// context ends or its parent disappears.
type Demux struct {
	cfg Config

	mu   sync.Mutex
	outW *lineWriter
	errW *lineWriter
}

// New builds a Demux; Run does the work.
func New(cfg Config) *Demux {
	if cfg.Logger == nil {
		cfg.Logger = logging.NoOpLogger{}
	}
	if cfg.ParentPollInterval <= 0 {
		cfg.ParentPollInterval = 10 * time.Second
	}
	return &Demux{
		cfg:  cfg,
		outW: &lineWriter{w: cfg.Stdout},
		errW: &lineWriter{w: cfg.Stderr},
	}
}

// Run accepts and copies until ctx is cancelled or the parent exits.
// The first Accept error on either listener surfaces as the return
// value; errors writing to the local stdout/stderr are not reported
// (lineWriter drops them), and per-connection read errors just end that
// connection.
func (d *Demux) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	var wg sync.WaitGroup

	accept := func(l net.Listener, w *lineWriter) {
		defer wg.Done()
		for {
			conn, err := l.Accept()
			if err != nil {
				select {
				case <-ctx.Done():
				default:
					errCh <- err
				}
				return
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				d.serveConn(conn, w)
			}()
		}
	}

	wg.Add(2)
	go accept(d.cfg.Out, d.outW)
	go accept(d.cfg.Err, d.errW)

	if d.cfg.ParentAlive != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(d.cfg.ParentPollInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if !d.cfg.ParentAlive() {
						d.cfg.Logger.Info("parent exited, shutting down")
						cancel()
						return
					}
				}
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		cancel()
	}

	// Unblock the accept loops, then wait the copiers out.
	_ = d.cfg.Out.Close()
	_ = d.cfg.Err.Close()
	wg.Wait()
	return runErr
}

// serveConn validates the cookie and copies the remainder. A mismatched
// cookie closes the connection with nothing written.
func (d *Demux) serveConn(conn net.Conn, w *lineWriter) {
	defer conn.Close()

	cookie := []byte(d.cfg.Cookie)
	lead := make([]byte, len(cookie))
	if _, err := io.ReadFull(conn, lead); err != nil {
		return
	}
	if !bytes.Equal(lead, cookie) {
		d.cfg.Logger.Warn("connection rejected: bad cookie", "remote", conn.RemoteAddr().String())
		return
	}

	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadBytes('\n')
		if len(line) > 0 {
			w.Write(line)
		}
		if err != nil {
			return
		}
	}
}

// lineWriter serializes line-at-a-time writes from many connections
// onto one stream, flushing on every newline so interleaved output
// stays whole-line.
type lineWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (lw *lineWriter) Write(p []byte) {
	if lw.w == nil {
		return
	}
	lw.mu.Lock()
	defer lw.mu.Unlock()
	_, _ = lw.w.Write(p)
	if f, ok := lw.w.(interface{ Flush() error }); ok {
		_ = f.Flush()
	}
}
