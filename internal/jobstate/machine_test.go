// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package jobstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jontk/batchsched/internal/attr"
	"github.com/jontk/batchsched/internal/entity"
)

type fakeQueue struct{ enabled bool }

func (f fakeQueue) Enabled() bool { return f.enabled }

type fakeDeps struct{ satisfied bool }

func (f fakeDeps) Satisfied(string) bool { return f.satisfied }

type fakeDaemon struct {
	migratable bool
	busy       bool
	err        error
	dispatched []string
}

func (f *fakeDaemon) RequestCheckpoint(jobName string) (bool, bool, error) {
	return f.migratable, f.busy, f.err
}
func (f *fakeDaemon) Dispatch(jobName string, a Assignment) error {
	f.dispatched = append(f.dispatched, jobName)
	return nil
}

func newQueuedJob(t *testing.T) *entity.Job {
	t.Helper()
	j := entity.NewJob("123.server")
	WriteState(j, Queued, SubNone)
	j.NewObject = false
	return j
}

// Full lifecycle: submit -> run -> exit -> finished.
func TestSubmitRunExitLifecycle(t *testing.T) {
	j := newQueuedJob(t)
	daemon := &fakeDaemon{}
	m := &Machine{Queues: fakeQueue{enabled: true}, Deps: fakeDeps{satisfied: true}, Daemon: daemon}

	require.NoError(t, m.Run(j, Assignment{ExecVnode: "node1", ExecHost: "node1"}))
	assert.Equal(t, Running, ReadState(j))
	assert.Equal(t, []string{"123.server"}, daemon.dispatched)

	require.NoError(t, m.Exit(j, 0))
	assert.Equal(t, Exiting, ReadState(j))

	require.NoError(t, m.EpilogueComplete(j))
	assert.Equal(t, Finished, ReadState(j))
}

func TestRunRejectsDisabledQueue(t *testing.T) {
	j := newQueuedJob(t)
	m := &Machine{Queues: fakeQueue{enabled: false}, Deps: fakeDeps{satisfied: true}}
	err := m.Run(j, Assignment{ExecVnode: "n1"})
	require.Error(t, err)
	assert.Equal(t, Queued, ReadState(j))
}

func TestRunRejectsUnfulfilledDependency(t *testing.T) {
	j := newQueuedJob(t)
	m := &Machine{Queues: fakeQueue{enabled: true}, Deps: fakeDeps{satisfied: false}}
	err := m.Run(j, Assignment{ExecVnode: "n1"})
	require.Error(t, err)
}

// Hold on a running job with checkpoint; daemon
// replies success with migratable=true, ChkptMig flag is set, substate
// returns to Running.
func TestHoldRunningJobWithCheckpoint(t *testing.T) {
	j := newQueuedJob(t)
	daemon := &fakeDaemon{migratable: true}
	m := &Machine{Queues: fakeQueue{enabled: true}, Deps: fakeDeps{satisfied: true}, Daemon: daemon}
	require.NoError(t, m.Run(j, Assignment{ExecVnode: "n1"}))

	j.Attrs[entity.JobAttrCheckpoint] = stringAttr("s")
	require.NoError(t, m.Hold(j, "o"))

	assert.True(t, j.QuickSave.HasFlag(entity.ChkptMig))
	assert.Equal(t, Running, ReadState(j))
	assert.Equal(t, SubRunning, Substate(j.QuickSave.Substate))
}

func TestHoldOnRunningCheckpointBusy(t *testing.T) {
	j := newQueuedJob(t)
	daemon := &fakeDaemon{busy: true}
	m := &Machine{Queues: fakeQueue{enabled: true}, Deps: fakeDeps{satisfied: true}, Daemon: daemon}
	require.NoError(t, m.Run(j, Assignment{ExecVnode: "n1"}))

	err := m.Hold(j, "o")
	require.Error(t, err)
}

func TestRerunRequiresRerunableFlag(t *testing.T) {
	j := newQueuedJob(t)
	daemon := &fakeDaemon{}
	m := &Machine{Queues: fakeQueue{enabled: true}, Deps: fakeDeps{satisfied: true}, Daemon: daemon}
	require.NoError(t, m.Run(j, Assignment{ExecVnode: "n1"}))

	j.Attrs[entity.JobAttrRerunable] = attrBool(false)
	require.NoError(t, m.Rerun(j))
	assert.Equal(t, Finished, ReadState(j), "non-rerunable job falls through to abort")
}

func TestRerunRequeuesWhenAllowed(t *testing.T) {
	j := newQueuedJob(t)
	daemon := &fakeDaemon{}
	m := &Machine{Queues: fakeQueue{enabled: true}, Deps: fakeDeps{satisfied: true}, Daemon: daemon}
	require.NoError(t, m.Run(j, Assignment{ExecVnode: "n1"}))

	j.Attrs[entity.JobAttrRerunable] = attrBool(true)
	require.NoError(t, m.Rerun(j))
	assert.Equal(t, Queued, ReadState(j))
}

// Shutdown Quick issues no hold; running jobs
// are left as-is.
func TestShutdownQuickLeavesJobsRunning(t *testing.T) {
	var jobs []*entity.Job
	for i := 0; i < 3; i++ {
		j := newQueuedJob(t)
		m := &Machine{Queues: fakeQueue{enabled: true}, Deps: fakeDeps{satisfied: true}, Daemon: &fakeDaemon{}}
		require.NoError(t, m.Run(j, Assignment{ExecVnode: "n1"}))
		jobs = append(jobs, j)
	}

	m := &Machine{}
	plans := m.Shutdown(jobs, entity.ShutdownQuick)
	for _, j := range jobs {
		assert.Equal(t, PlanLeaveRunning, plans[j.Name])
		assert.Equal(t, Running, ReadState(j))
	}
}

func TestShutdownDelayedLeavesNonRerunableRunning(t *testing.T) {
	j := newQueuedJob(t)
	daemon := &fakeDaemon{err: assertErr{}}
	m := &Machine{Queues: fakeQueue{enabled: true}, Deps: fakeDeps{satisfied: true}, Daemon: daemon}
	require.NoError(t, m.Run(j, Assignment{ExecVnode: "n1"}))
	j.Attrs[entity.JobAttrRerunable] = attrBool(false)

	plans := m.Shutdown([]*entity.Job{j}, entity.ShutdownDelayed)
	assert.Equal(t, PlanLeaveRunning, plans[j.Name])
	assert.Equal(t, Running, ReadState(j))
}

type assertErr struct{}

func (assertErr) Error() string { return "checkpoint failed" }

func attrBool(v bool) attr.Attribute {
	return attr.Attribute{Type: attr.TypeBool, Payload: v, Flags: attr.FlagSet}
}
