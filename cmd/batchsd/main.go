// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Command batchsd is the batch server daemon: it recovers persisted
// entities, listens for wire-protocol batch requests, exposes the
// read-only diagnostic HTTP surface, and hosts the scheduler command
// channel.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jontk/batchsched/internal/jobstate"
	"github.com/jontk/batchsched/internal/persistence"
	"github.com/jontk/batchsched/internal/recurrence"
	"github.com/jontk/batchsched/internal/request"
	"github.com/jontk/batchsched/internal/resvstate"
	"github.com/jontk/batchsched/internal/schedcmd"
	"github.com/jontk/batchsched/internal/server"
	"github.com/jontk/batchsched/internal/worktask"
	"github.com/jontk/batchsched/pkg/config"
	"github.com/jontk/batchsched/pkg/logging"
	"github.com/jontk/batchsched/pkg/metrics"
	"github.com/jontk/batchsched/pkg/performance"
	"github.com/jontk/batchsched/pkg/pool"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "batchsd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.NewDefault()
	cfg.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}

	logCfg := logging.DefaultConfig()
	if cfg.Debug {
		logCfg = logging.DebugConfig()
	}
	logger := logging.NewLogger(logCfg)
	logger.Info("batchsd starting", "listen", cfg.ListenAddr, "admin", cfg.AdminAddr)

	recurrence.SetZoneDir(cfg.ICalZoneDir)

	store, err := persistence.OpenFileStore(cfg.StoreDSN)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	storePool := pool.NewSerialPool(func(ctx context.Context) (pool.Conn, error) {
		return store, nil
	}, nil, logger)
	bridge := persistence.NewBridge(storePool, cfg.LivenessPath, logger)

	ctx := server.NewCtx("batchsd", "workq")
	tasks := worktask.NewDispatcher()
	saver := server.NewSaver(bridge, tasks, logger)
	acct := server.NewAccountingLog(logger, 0)
	collector := metrics.NewInMemoryCollector()
	metrics.SetDefaultCollector(collector)

	machine := &jobstate.Machine{}
	proc := request.NewProcessor(ctx, machine, tasks)
	proc.Resvs = &resvstate.Machine{}
	proc.Saves = saver
	proc.Acct = acct
	proc.Logger = logger
	proc.Collector = collector
	proc.StatusCache = performance.NewCache[[]request.StatusEntry](nil)

	recoverEntities(bridge, ctx, logger)

	listener, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.ListenAddr, err)
	}
	mux := server.NewNetMux(listener, proc, cfg.Timeout, logger)
	defer mux.Close()

	loop := server.NewLoop(tasks, mux, logger)

	sched := schedcmd.NewChannel(logger)
	admin := &server.Admin{
		Ctx:       ctx,
		Loop:      loop,
		Proc:      proc,
		Acct:      acct,
		Collector: collector,
		Logger:    logger,
		Sched:     sched,
	}
	adminSrv := &http.Server{Addr: cfg.AdminAddr, Handler: admin.Router()}
	go func() {
		if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("admin surface failed", "error", err)
		}
	}()

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loop.Run(runCtx)

	saver.Flush()
	_ = adminSrv.Shutdown(context.Background())
	logger.Info("batchsd stopped")
	return nil
}

// recoverEntities replays the persisted server row into the in-memory
// server singleton. Only the server row is loaded: job, queue, node and
// reservation rows are not reloaded, and queue membership is not
// rebuilt.
func recoverEntities(bridge *persistence.Bridge, ctx *server.Ctx, logger logging.Logger) {
	bg := context.Background()

	if row, outcome, err := bridge.Load(bg, persistence.KindServer, "batchsd"); err == nil && outcome == persistence.OutcomeLoaded {
		if srv, err := persistence.ServerFromRow(row); err == nil {
			*ctx.Server() = *srv
			logger.Info("server state recovered", "state", srv.QuickSave.State)
		}
	}
}
