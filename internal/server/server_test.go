// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jontk/batchsched/internal/attr"
	"github.com/jontk/batchsched/internal/jobstate"
	"github.com/jontk/batchsched/internal/persistence"
	"github.com/jontk/batchsched/internal/request"
	"github.com/jontk/batchsched/internal/worktask"
	"github.com/jontk/batchsched/pkg/metrics"
	"github.com/jontk/batchsched/pkg/pool"
)

type memStore struct {
	rows    map[string]persistence.Row
	saves   int
	failing bool
}

func newMemStore() *memStore { return &memStore{rows: map[string]persistence.Row{}} }

func (m *memStore) Close() error                   { return nil }
func (m *memStore) Ping(ctx context.Context) error { return nil }
func (m *memStore) InsertRow(ctx context.Context, row persistence.Row) error {
	if m.failing {
		return context.DeadlineExceeded
	}
	m.saves++
	m.rows[row.Kind+"/"+row.Name] = row
	return nil
}
func (m *memStore) TruncateAll(ctx context.Context) error { return nil }
func (m *memStore) UpsertAttrs(ctx context.Context, kind, name string, attrs []persistence.AttrEntry) error {
	return nil
}
func (m *memStore) DeleteAttrs(ctx context.Context, kind, name string, names []string) error {
	return nil
}
func (m *memStore) UpdateQuickSave(ctx context.Context, row persistence.Row) error {
	if m.failing {
		return context.DeadlineExceeded
	}
	m.saves++
	m.rows[row.Kind+"/"+row.Name] = row
	return nil
}
func (m *memStore) LoadRow(ctx context.Context, kind, name string) (persistence.Row, bool, error) {
	row, ok := m.rows[kind+"/"+name]
	return row, ok, nil
}

func newTestSaver(t *testing.T, tasks *worktask.Dispatcher) (*Saver, *memStore) {
	t.Helper()
	store := newMemStore()
	p := pool.NewSerialPool(func(ctx context.Context) (pool.Conn, error) { return store, nil }, nil, nil)
	bridge := persistence.NewBridge(p, "", nil)
	return NewSaver(bridge, tasks, nil), store
}

func TestCtxJobIndexAndCounter(t *testing.T) {
	c := NewCtx("svr", "workq")

	assert.Equal(t, int64(1), c.NextJobID())
	assert.Equal(t, int64(2), c.NextJobID())

	_, ok := c.Queue("workq")
	assert.True(t, ok)
	_, ok = c.Queue("other")
	assert.False(t, ok)
}

func TestSaverCoalescesPerEntity(t *testing.T) {
	tasks := worktask.NewDispatcher()
	saver, store := newTestSaver(t, tasks)

	row := persistence.Row{Kind: persistence.KindJob, Name: "1.svr", State: int('Q')}
	saver.ScheduleSave(row, persistence.SaveQuickSave)
	row.State = int('R')
	saver.ScheduleSave(row, persistence.SaveQuickSave)

	assert.Equal(t, 0, store.saves, "nothing saved before the cycle drains")
	tasks.Cycle(time.Now())

	assert.Equal(t, 1, store.saves, "two schedules for one entity coalesce")
	assert.Equal(t, int('R'), store.rows["job/1.svr"].State, "latest snapshot wins")
}

func TestSaverFlushForcesPending(t *testing.T) {
	tasks := worktask.NewDispatcher()
	saver, store := newTestSaver(t, tasks)

	saver.ScheduleSave(persistence.Row{Kind: persistence.KindServer, Name: "svr"}, persistence.SaveQuickSave)
	saver.Flush()
	assert.Equal(t, 1, store.saves)
}

func TestLoopRunsTimedTasksAndCalls(t *testing.T) {
	tasks := worktask.NewDispatcher()
	loop := NewLoop(tasks, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	fired := make(chan struct{})
	loop.Call(func() {
		tasks.SetTask(worktask.Timed, time.Now().Add(20*time.Millisecond), func(*worktask.Task) {
			close(fired)
		}, nil, nil, nil)
	})

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("timed task never fired")
	}

	// Call observes loop-side state synchronously.
	var n int
	loop.Call(func() { n = 42 })
	assert.Equal(t, 42, n)
}

func newTestAdmin(t *testing.T) (*Admin, *Ctx, context.CancelFunc) {
	t.Helper()
	c := NewCtx("svr", "workq")
	tasks := worktask.NewDispatcher()
	loop := NewLoop(tasks, nil, nil)

	machine := &jobstate.Machine{}
	proc := request.NewProcessor(c, machine, tasks)
	acct := NewAccountingLog(nil, 100)
	proc.Acct = acct

	admin := &Admin{
		Ctx:       c,
		Loop:      loop,
		Proc:      proc,
		Acct:      acct,
		Collector: metrics.NewInMemoryCollector(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)
	return admin, c, cancel
}

func TestAdminServerStatusAndJobs(t *testing.T) {
	admin, c, cancel := newTestAdmin(t)
	defer cancel()

	// Submit a job through the processor, on the loop thread.
	admin.Loop.Call(func() {
		req := request.New(request.OpSubmit, request.Credentials{User: "alice", Priv: attr.PrivUser}, "")
		req.Changes = []attr.Change{{Name: "priority", Op: attr.OpSet, Value: "3"}}
		admin.Proc.Process(req, func(*request.Reply) {})
	})

	srv := httptest.NewServer(admin.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status/server")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status struct {
		Name     string `json:"name"`
		JobCount int    `json:"job_count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, "svr", status.Name)
	assert.Equal(t, 1, status.JobCount)

	resp, err = http.Get(srv.URL + "/status/jobs")
	require.NoError(t, err)
	defer resp.Body.Close()
	var entries []request.StatusEntry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "1.svr", entries[0].Name)
	assert.Equal(t, "Q", entries[0].State)

	resp, err = http.Get(srv.URL + "/status/jobs/no-such-job")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	_, ok := c.Job("1.svr")
	assert.True(t, ok)
}

func TestAdminHealthAndMetrics(t *testing.T) {
	admin, _, cancel := newTestAdmin(t)
	defer cancel()

	srv := httptest.NewServer(admin.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"), "request-id middleware is wired")

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	var stats metrics.Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.GreaterOrEqual(t, stats.TotalRequests, int64(1))
}

func TestAdminAccounting(t *testing.T) {
	admin, _, cancel := newTestAdmin(t)
	defer cancel()

	admin.Acct.Record('Q', "1.svr")
	admin.Acct.Record('S', "1.svr")

	srv := httptest.NewServer(admin.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status/accounting")
	require.NoError(t, err)
	defer resp.Body.Close()

	var recs []struct {
		Kind string `json:"kind"`
		Job  string `json:"job"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&recs))
	require.Len(t, recs, 2)
	assert.Equal(t, "Q", recs[0].Kind)
	assert.Equal(t, "S", recs[1].Kind)
}

func TestRetryingDaemonRetriesDispatch(t *testing.T) {
	transport := &flakyTransport{failures: 2}
	d := NewRetryingDaemon(transport, 5, time.Millisecond, 5*time.Millisecond, nil)

	err := d.Dispatch("1.svr", jobstate.Assignment{ExecVnode: "(n1)"})
	require.NoError(t, err)
	assert.Equal(t, 3, transport.dispatches, "two failures then success")
}

func TestRetryingDaemonGivesUpAfterThreshold(t *testing.T) {
	transport := &flakyTransport{failures: 100}
	d := NewRetryingDaemon(transport, 2, time.Millisecond, 2*time.Millisecond, nil)

	err := d.Dispatch("1.svr", jobstate.Assignment{ExecVnode: "(n1)"})
	assert.Error(t, err)
}

type flakyTransport struct {
	failures   int
	dispatches int
}

func (f *flakyTransport) RequestCheckpoint(ctx context.Context, jobName string) (bool, bool, error) {
	return false, false, nil
}

func (f *flakyTransport) Dispatch(ctx context.Context, jobName string, a jobstate.Assignment) error {
	f.dispatches++
	if f.dispatches <= f.failures {
		return context.DeadlineExceeded
	}
	return nil
}

func (f *flakyTransport) Signal(ctx context.Context, jobName, signal string) error { return nil }
