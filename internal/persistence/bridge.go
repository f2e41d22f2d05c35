// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package persistence

import (
	"context"
	"os"
	"time"

	"github.com/jontk/batchsched/pkg/errors"
	"github.com/jontk/batchsched/pkg/logging"
	"github.com/jontk/batchsched/pkg/pool"
)

// SaveType is a bitset describing what changed since the last save.
type SaveType uint8

const (
	SaveNew SaveType = 1 << iota
	SaveQuickSave
	SaveAttrs
)

// StoreConn is the backing store's command surface, modeled as a
// narrow interface so the bridge is exercised without a live
// relational store.
type StoreConn interface {
	pool.Conn
	InsertRow(ctx context.Context, row Row) error
	TruncateAll(ctx context.Context) error
	UpsertAttrs(ctx context.Context, kind, name string, attrs []AttrEntry) error
	DeleteAttrs(ctx context.Context, kind, name string, names []string) error
	UpdateQuickSave(ctx context.Context, row Row) error
	LoadRow(ctx context.Context, kind, name string) (Row, bool, error)
}

// Bridge is the persistence bridge for one server instance.
type Bridge struct {
	pool         *pool.SerialPool
	logger       logging.Logger
	livenessPath string

	lastHash map[string]string // kind/name -> last-saved content hash, for recovery's no-change check
}

// NewBridge builds a Bridge around a store connection pool and the
// liveness file path touched on every save.
func NewBridge(p *pool.SerialPool, livenessPath string, logger logging.Logger) *Bridge {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Bridge{pool: p, logger: logger, livenessPath: livenessPath, lastHash: map[string]string{}}
}

// Save writes row according to saveType. On failure it marks the pool
// connection unhealthy and surfaces an internal error.
func (b *Bridge) Save(ctx context.Context, row Row, saveType SaveType, removed []string) error {
	conn, err := b.pool.Acquire(ctx)
	if err != nil {
		return errors.Newf(errors.KindInternal, "persistence: acquire store connection: %v", err)
	}

	store, ok := conn.(StoreConn)
	if !ok {
		b.pool.Release()
		return errors.New(errors.KindInternal, "persistence: store connection does not implement StoreConn")
	}

	applyErr := b.apply(ctx, store, row, saveType, removed)
	// Release before MarkUnhealthy: the pool's lock is held from Acquire
	// until Release, and MarkUnhealthy takes that same lock.
	b.pool.Release()
	if applyErr != nil {
		b.pool.MarkUnhealthy()
		b.logger.Error("persistence save failed", "kind", row.Kind, "name", row.Name, "error", applyErr)
		return errors.Newf(errors.KindInternal, "persistence: save failed: %v", applyErr)
	}

	b.lastHash[key(row.Kind, row.Name)] = row.ContentHash()
	b.touchLiveness()
	return nil
}

func (b *Bridge) apply(ctx context.Context, store StoreConn, row Row, saveType SaveType, removed []string) error {
	if saveType&SaveNew != 0 {
		if _, found, err := store.LoadRow(ctx, row.Kind, row.Name); row.Kind == KindServer && err == nil && !found {
			// server cold start: the server singleton has no stored row
			// yet, so truncate every entity table before the first insert.
			_ = store.TruncateAll(ctx)
		}
		if err := store.InsertRow(ctx, row); err != nil {
			return err
		}
		return store.UpsertAttrs(ctx, row.Kind, row.Name, row.Attrs)
	}

	if saveType&SaveQuickSave != 0 {
		if err := store.UpdateQuickSave(ctx, row); err != nil {
			return err
		}
	}
	if saveType&SaveAttrs != 0 {
		if err := store.UpsertAttrs(ctx, row.Kind, row.Name, row.Attrs); err != nil {
			return err
		}
		if len(removed) > 0 {
			if err := store.DeleteAttrs(ctx, row.Kind, row.Name, removed); err != nil {
				return err
			}
		}
	}
	return nil
}

// Outcome distinguishes a genuine reload from a no-op recovery.
type Outcome int

const (
	OutcomeNotFound Outcome = iota
	OutcomeNoChange
	OutcomeLoaded
)

// Load recovers a row from the backing store, returning OutcomeNoChange
// when the stored row's content hash matches the last-saved hash for
// that entity; otherwise it records the new hash and returns
// OutcomeLoaded.
func (b *Bridge) Load(ctx context.Context, kind, name string) (Row, Outcome, error) {
	conn, err := b.pool.Acquire(ctx)
	if err != nil {
		return Row{}, OutcomeNotFound, errors.Newf(errors.KindInternal, "persistence: acquire store connection: %v", err)
	}
	defer b.pool.Release()

	store, ok := conn.(StoreConn)
	if !ok {
		return Row{}, OutcomeNotFound, errors.New(errors.KindInternal, "persistence: store connection does not implement StoreConn")
	}

	row, found, err := store.LoadRow(ctx, kind, name)
	if err != nil {
		return Row{}, OutcomeNotFound, errors.Newf(errors.KindInternal, "persistence: load failed: %v", err)
	}
	if !found {
		return Row{}, OutcomeNotFound, nil
	}
	hash := row.ContentHash()
	if b.lastHash[key(kind, name)] == hash {
		return row, OutcomeNoChange, nil
	}
	b.lastHash[key(kind, name)] = hash
	return row, OutcomeLoaded, nil
}

func (b *Bridge) touchLiveness() {
	if b.livenessPath == "" {
		return
	}
	now := time.Now()
	if err := os.Chtimes(b.livenessPath, now, now); err != nil {
		f, createErr := os.Create(b.livenessPath)
		if createErr != nil {
			b.logger.Warn("liveness file touch failed", "path", b.livenessPath, "error", createErr)
			return
		}
		f.Close()
	}
}

func key(kind, name string) string { return kind + "/" + name }
