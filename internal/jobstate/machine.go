// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package jobstate

import (
	"github.com/jontk/batchsched/internal/entity"
	"github.com/jontk/batchsched/pkg/errors"
)

// Assignment is what the pluggable scheduler hands back for a job it has
// decided to run: the exec
// host/vnode strings the job's Running state requires.
type Assignment struct {
	ExecVnode string
	ExecHost  string
}

// QueueView is the narrow slice of Queue state the Run guard needs.
type QueueView interface {
	Enabled() bool
}

// DependencyChecker reports whether job's declared dependencies are all satisfied.
type DependencyChecker interface {
	Satisfied(jobName string) bool
}

// ExecDaemon is the execution-daemon collaborator; jobstate only needs
// the checkpoint request/reply and run dispatch it exchanges.
type ExecDaemon interface {
	RequestCheckpoint(jobName string) (migratable bool, busy bool, err error)
	Dispatch(jobName string, a Assignment) error
}

// Machine drives job transitions for one server context.
type Machine struct {
	Queues QueueView
	Deps   DependencyChecker
	Daemon ExecDaemon
}

// Run transitions a job from Queued or zero-hold Held to Running.
func (m *Machine) Run(j *entity.Job, a Assignment) error {
	cur := ReadState(j)
	if cur != Queued && !(cur == Held && len(holdTypes(j)) == 0) {
		return errors.Newf(errors.KindStaleState, "job %s is in state %s, not runnable", j.Name, cur)
	}
	if m.Queues != nil && !m.Queues.Enabled() {
		return errors.New(errors.KindStaleState, "queue is disabled")
	}
	if m.Deps != nil && !m.Deps.Satisfied(j.Name) {
		return errors.New(errors.KindStaleState, "job has unfulfilled dependencies")
	}
	if a.ExecVnode == "" {
		return errors.New(errors.KindBadValue, "scheduler assignment missing exec_vnode")
	}
	j.Attrs[entity.JobAttrExecVnode] = stringAttr(a.ExecVnode)
	j.Attrs[entity.JobAttrExecHost] = stringAttr(a.ExecHost)
	j.QuickSave.SetFlag(entity.HasRun)
	WriteState(j, Running, SubStarting)
	if m.Daemon != nil {
		if err := m.Daemon.Dispatch(j.Name, a); err != nil {
			return err
		}
	}
	WriteState(j, Running, SubRunning)
	return nil
}

// Exit transitions a Running job to Exiting on an execution daemon exit
// notification.
func (m *Machine) Exit(j *entity.Job, exitStatus int64) error {
	if ReadState(j) != Running {
		return errors.Newf(errors.KindStaleState, "job %s is in state %s, not running", j.Name, ReadState(j))
	}
	j.Attrs[entity.JobAttrExitStatus] = longAttr(exitStatus)
	WriteState(j, Exiting, SubExitingComplete)
	return nil
}

// EpilogueComplete transitions Exiting -> Finished once accounting and
// cleanup land.
func (m *Machine) EpilogueComplete(j *entity.Job) error {
	if ReadState(j) != Exiting {
		return errors.Newf(errors.KindStaleState, "job %s is in state %s, not exiting", j.Name, ReadState(j))
	}
	WriteState(j, Finished, SubNone)
	return nil
}

// Hold places a hold on a job. Running jobs trigger a checkpoint
// attempt via the execution daemon; when the checkpoint fails outright
// the job is rerun if allowed, else aborted.
func (m *Machine) Hold(j *entity.Job, holdType string) error {
	addHoldType(j, holdType)
	j.QuickSave.SetFlag(entity.HasHold)

	if ReadState(j) != Running {
		if ReadState(j) == Queued {
			WriteState(j, Held, SubNone)
		}
		return nil
	}

	if m.Daemon == nil {
		return nil
	}
	migratable, busy, err := m.Daemon.RequestCheckpoint(j.Name)
	if busy {
		return errors.New(errors.KindCheckpointBusy, "execution daemon is busy checkpointing another job")
	}
	if err != nil {
		return m.rerunOrKill(j)
	}
	if migratable {
		j.QuickSave.SetFlag(entity.ChkptMig)
	}
	WriteState(j, Running, SubRunning)
	return nil
}

// Release clears all holds and, if no other hold remains, returns the
// job to Queued.
func (m *Machine) Release(j *entity.Job) error {
	j.Attrs[entity.JobAttrHoldTypes] = strArrayAttr(nil)
	j.QuickSave.ClearFlag(entity.HasHold)
	if ReadState(j) == Held {
		WriteState(j, Queued, SubNone)
	}
	return nil
}

// Rerun requeues a Running job.
func (m *Machine) Rerun(j *entity.Job) error {
	if !isRerunable(j) {
		return m.Abort(j)
	}
	j.Attrs[entity.JobAttrExecVnode] = stringAttr("")
	j.Attrs[entity.JobAttrExecHost] = stringAttr("")
	incrRunCount(j)
	WriteState(j, Queued, SubNone)
	return nil
}

// Abort transitions a job straight to Finished with a non-zero exit
// status, used when rerun isn't permitted.
func (m *Machine) Abort(j *entity.Job) error {
	j.Attrs[entity.JobAttrExitStatus] = longAttr(-1)
	WriteState(j, Finished, SubNone)
	return nil
}

// rerunOrKill reruns when permitted, otherwise aborts.
func (m *Machine) rerunOrKill(j *entity.Job) error {
	if isRerunable(j) {
		return m.Rerun(j)
	}
	return m.Abort(j)
}

// Move transitions any job to Moved.
func (m *Machine) Move(j *entity.Job, newQueue string) error {
	j.QueueName = newQueue
	WriteState(j, Moved, SubNone)
	return nil
}

func isRerunable(j *entity.Job) bool {
	v, _ := j.Attrs[entity.JobAttrRerunable].Payload.(bool)
	return v
}

func holdTypes(j *entity.Job) []string {
	v, _ := j.Attrs[entity.JobAttrHoldTypes].Payload.([]string)
	return v
}

func addHoldType(j *entity.Job, t string) {
	cur := holdTypes(j)
	for _, existing := range cur {
		if existing == t {
			return
		}
	}
	j.Attrs[entity.JobAttrHoldTypes] = strArrayAttr(append(cur, t))
}

func incrRunCount(j *entity.Job) {
	cur, _ := j.Attrs[entity.JobAttrRunCount].Payload.(int64)
	j.Attrs[entity.JobAttrRunCount] = longAttr(cur + 1)
}
