// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package jobstate

import (
	"github.com/jontk/batchsched/internal/entity"
)

// ShutdownPlan is the per-job decision Shutdown makes for one Running
// job.
type ShutdownPlan int

const (
	PlanLeaveRunning ShutdownPlan = iota
	PlanCheckpointed
	PlanRerun
	PlanAbort
)

// Shutdown settles the fate of every Running job the caller passes in,
// returning the plan chosen for each.
//
// - Quick: leave jobs as-is, no hold is issued.
// - Immediate: checkpoint every running job; migratable -> Checkpointed,
//   else rerun-or-kill.
// - Delayed: checkpoint every running job as for Immediate; a job that
//   is not checkpointed and is non-rerunable is left running rather
//   than killed.
//
// The job's checkpoint attribute is not consulted: every Running job is
// asked to checkpoint, whatever that attribute says.
func (m *Machine) Shutdown(jobs []*entity.Job, typ entity.ShutdownType) map[string]ShutdownPlan {
	plans := make(map[string]ShutdownPlan, len(jobs))
	if typ&entity.ShutdownQuick != 0 {
		for _, j := range jobs {
			plans[j.Name] = PlanLeaveRunning
		}
		return plans
	}

	for _, j := range jobs {
		if ReadState(j) != Running {
			continue
		}
		plans[j.Name] = m.checkpointForShutdown(j, typ)
	}
	return plans
}

// checkpointForShutdown asks the execution daemon to checkpoint one
// running job. On checkpoint failure it falls straight through to
// rerun-or-kill (or, for Delayed shutdown of a non-rerunable job,
// leaves it running); no prior hold value is restored on that path.
func (m *Machine) checkpointForShutdown(j *entity.Job, typ entity.ShutdownType) ShutdownPlan {
	if m.Daemon == nil {
		if typ&entity.ShutdownDelayed != 0 && !isRerunable(j) {
			return PlanLeaveRunning
		}
		return m.planRerunOrAbort(j)
	}

	migratable, busy, err := m.Daemon.RequestCheckpoint(j.Name)
	if busy || err != nil {
		// No hold restore on this path; fall straight through.
		if typ&entity.ShutdownDelayed != 0 && !isRerunable(j) {
			return PlanLeaveRunning
		}
		return m.planRerunOrAbort(j)
	}
	if migratable {
		j.QuickSave.SetFlag(entity.ChkptMig)
		return PlanCheckpointed
	}
	if typ&entity.ShutdownDelayed != 0 && !isRerunable(j) {
		return PlanLeaveRunning
	}
	return m.planRerunOrAbort(j)
}

func (m *Machine) planRerunOrAbort(j *entity.Job) ShutdownPlan {
	if isRerunable(j) {
		_ = m.Rerun(j)
		return PlanRerun
	}
	_ = m.Abort(j)
	return PlanAbort
}
