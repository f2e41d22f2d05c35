// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package pool manages access to resources that must be serialized behind a
// single active handle. The persistence bridge's backing store is the
// canonical user: saves are treated as going through one externally
// serialized connection, so concurrent callers queue rather than opening
// parallel connections.
package pool

import (
	"context"
	"sync"
	"time"

	"github.com/jontk/batchsched/pkg/logging"
)

// Conn is anything the pool can open, health-check, and close.
type Conn interface {
	Close() error
	Ping(ctx context.Context) error
}

// Opener constructs a fresh Conn, e.g. by dialing the backing store.
type Opener func(ctx context.Context) (Conn, error)

// SerialPool hands out exclusive use of a single underlying Conn. Unlike an
// HTTP connection pool, it never grows past one live connection: the
// persistence bridge's "externally serialized resource" requirement means a
// second dialed connection would race the first, not parallelize it.
type SerialPool struct {
	mu           sync.Mutex
	conn         Conn
	opener       Opener
	logger       logging.Logger
	opened       time.Time
	lastPing     time.Time
	pingInterval time.Duration
	useCnt       int64
	healthy      bool
}

// Config configures reconnection behavior.
type Config struct {
	// PingInterval is how stale a connection may be before Acquire
	// re-validates it with Ping.
	PingInterval time.Duration
}

// DefaultConfig returns reasonable pool defaults.
func DefaultConfig() *Config {
	return &Config{PingInterval: 30 * time.Second}
}

// NewSerialPool creates a pool around the given opener.
func NewSerialPool(opener Opener, cfg *Config, logger logging.Logger) *SerialPool {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &SerialPool{opener: opener, logger: logger, pingInterval: cfg.PingInterval}
}

// Acquire returns the single live connection, opening or reopening it as
// needed. The caller must call Release when done; Acquire itself holds the
// pool's lock for its duration, so callers effectively serialize on it.
func (p *SerialPool) Acquire(ctx context.Context) (Conn, error) {
	p.mu.Lock()

	if p.conn != nil && p.healthy {
		if time.Since(p.lastPing) < p.pingInterval {
			p.useCnt++
			return p.conn, nil
		}
		if err := p.conn.Ping(ctx); err == nil {
			p.lastPing = time.Now()
			p.useCnt++
			return p.conn, nil
		}
		_ = p.conn.Close()
		p.conn = nil
		p.healthy = false
	}

	conn, err := p.opener(ctx)
	if err != nil {
		p.mu.Unlock()
		return nil, err
	}
	p.conn = conn
	p.opened = time.Now()
	p.lastPing = p.opened
	p.healthy = true
	p.useCnt++
	p.logger.Debug("store connection opened", "use_count", p.useCnt)
	return conn, nil
}

// Release returns the pool to availability for the next Acquire.
func (p *SerialPool) Release() {
	p.mu.Unlock()
}

// MarkUnhealthy forces the next Acquire to reopen the connection. Used by
// the persistence bridge when a save surfaces a corrupt-state error that
// should not be silently retried against the same handle.
func (p *SerialPool) MarkUnhealthy() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.healthy = false
}

// Close closes the underlying connection, if any.
func (p *SerialPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn = nil
	p.healthy = false
	return err
}
