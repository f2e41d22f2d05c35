// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package request

import (
	"strconv"
	"time"

	"github.com/jontk/batchsched/internal/attr"
	"github.com/jontk/batchsched/internal/entity"
	"github.com/jontk/batchsched/internal/jobstate"
	"github.com/jontk/batchsched/internal/persistence"
	"github.com/jontk/batchsched/internal/resource"
	"github.com/jontk/batchsched/internal/resvstate"
	"github.com/jontk/batchsched/internal/worktask"
	"github.com/jontk/batchsched/pkg/errors"
	"github.com/jontk/batchsched/pkg/logging"
	"github.com/jontk/batchsched/pkg/metrics"
	"github.com/jontk/batchsched/pkg/performance"
)

// EntityStore is the server-side entity index the processor resolves
// targets against. Implemented by internal/server; kept narrow so the
// processor is exercised with an in-memory map in tests.
type EntityStore interface {
	Server() *entity.Server
	Job(name string) (*entity.Job, bool)
	AddJob(j *entity.Job)
	RemoveJob(name string)
	Jobs() []*entity.Job
	Queue(name string) (*entity.Queue, bool)
	Reservation(name string) (*entity.Reservation, bool)
	AddReservation(r *entity.Reservation)
	RemoveReservation(name string)
	NextJobID() int64
}

// Daemon is the execution-daemon surface the processor needs beyond
// what the job state machine already drives.
type Daemon interface {
	jobstate.ExecDaemon
	Signal(jobName, signal string) error
}

// Saver schedules a persistence save for one marshalled entity row.
type Saver interface {
	ScheduleSave(row persistence.Row, saveType persistence.SaveType)
}

// Accounting receives the one-letter accounting records emitted as jobs
// move through their lifecycle (Q on enqueue, S on start, E on end).
type Accounting interface {
	Record(kind byte, jobName string)
}

// Processor decodes, authorizes, and executes batch requests.
type Processor struct {
	Store  EntityStore
	Jobs   *jobstate.Machine
	Resvs  *resvstate.Machine
	Tasks  *worktask.Dispatcher
	Daemon Daemon
	Saves  Saver
	Acct   Accounting

	Logger    logging.Logger
	Collector metrics.Collector

	// StatusCache memoizes encoded status entries per (kind, name,
	// privilege); any mutation of an entity invalidates its keys.
	StatusCache *performance.Cache[[]StatusEntry]
}

// NewProcessor wires a processor with no-op logging/metrics defaults.
func NewProcessor(store EntityStore, jobs *jobstate.Machine, tasks *worktask.Dispatcher) *Processor {
	return &Processor{
		Store:     store,
		Jobs:      jobs,
		Tasks:     tasks,
		Logger:    logging.NoOpLogger{},
		Collector: metrics.NoOpCollector{},
	}
}

// Process executes req and guarantees reply is invoked exactly once:
// either before Process returns, or later from a deferred completion
// work-task the operation enqueued.
func (p *Processor) Process(req *Request, reply ReplyFunc) {
	start := time.Now()
	p.Collector.RecordRequest(req.Op.String(), req.Target)

	if req.Creds.Priv < minPrivilege[req.Op] {
		r := errReply(req, errors.Newf(errors.KindPermissionDenied, "%s requires elevated privilege", req.Op))
		p.Collector.RecordResponse(req.Op.String(), r.Code, time.Since(start))
		reply(r)
		return
	}

	done := func(r *Reply) {
		p.Collector.RecordResponse(req.Op.String(), r.Code, time.Since(start))
		reply(r)
	}

	switch req.Op {
	case OpSubmit:
		done(p.submit(req))
	case OpModify:
		done(p.modify(req))
	case OpSignal:
		done(p.signal(req))
	case OpHold:
		p.hold(req, done)
	case OpRelease:
		done(p.release(req))
	case OpMove:
		done(p.move(req))
	case OpRun:
		done(p.run(req))
	case OpRerun:
		done(p.rerun(req))
	case OpDelete:
		done(p.del(req))
	case OpStatus:
		done(p.status(req))
	case OpShutdown:
		done(p.shutdown(req))
	default:
		done(errReply(req, errors.Newf(errors.KindBadValue, "unknown operation %d", req.Op)))
	}
}

// Cancel drops any deferred work still pending for req, freeing the
// request without sending a reply. Used when the requester disconnects
// before its deferred completion fires.
func (p *Processor) Cancel(req *Request) int {
	return p.Tasks.DeleteTaskByParm1Func(req, nil, true)
}

// submit creates a new job, applies the request's attribute list
// atomically, derives select-driven resources, and enqueues it.
func (p *Processor) submit(req *Request) *Reply {
	name := req.Target
	if name == "" {
		name = jobID(p.Store.NextJobID(), p.Store.Server().Name)
	}
	if _, exists := p.Store.Job(name); exists {
		return errReply(req, errors.Newf(errors.KindBadValue, "job %s already exists", name))
	}

	j := entity.NewJob(name)
	j.Attrs[entity.JobAttrOwner] = strAttr(req.Creds.User)
	j.Attrs[entity.JobAttrCtime] = timeAttr(time.Now())

	if r := p.applyChanges(req, entity.JobRegistry, j.Attrs, nil); r != nil {
		return r
	}
	if err := p.deriveJobResources(j); err != nil {
		return errReply(req, err)
	}
	if err := validateSTF(j); err != nil {
		return errReply(req, err)
	}

	queueName := p.placeInQueue(j)
	if queueName == "" {
		return errReply(req, errors.New(errors.KindUnknownQueue, "no queue available for submission"))
	}

	// execution_time in the future parks the job Waiting, with a timed
	// task to release it back to Queued at that instant.
	execTime, _ := j.Attrs[entity.JobAttrExecutionTime].Payload.(time.Time)
	if j.Attrs[entity.JobAttrExecutionTime].IsSet() && execTime.After(time.Now()) {
		jobstate.WriteState(j, jobstate.Waiting, jobstate.SubNone)
		p.Tasks.SetTask(worktask.Timed, execTime, p.waitTimeReached, j.Name, nil, nil)
	} else {
		jobstate.WriteState(j, jobstate.Queued, jobstate.SubNone)
	}

	p.Store.AddJob(j)
	p.invalidateStatus(persistence.KindJob, j.Name)
	p.record('Q', j.Name)
	p.scheduleSave(persistence.JobToRow(j), persistence.SaveNew)
	p.Logger.Info("job submitted", "job", j.Name, "queue", queueName, "owner", req.Creds.User)

	r := okReply(req)
	r.Message = j.Name
	return r
}

// waitTimeReached is the timed-task callback releasing a Waiting job
// whose execution_time has arrived.
func (p *Processor) waitTimeReached(t *worktask.Task) {
	name, _ := t.Parm1.(string)
	j, ok := p.Store.Job(name)
	if !ok || jobstate.ReadState(j) != jobstate.Waiting {
		return
	}
	jobstate.WriteState(j, jobstate.Queued, jobstate.SubNone)
	p.invalidateStatus(persistence.KindJob, j.Name)
	p.scheduleSave(persistence.JobToRow(j), persistence.SaveQuickSave)
}

// modify applies an atomic attribute batch to an existing job. On any
// failure the job is untouched and the reply carries the 1-based index
// of the offending change.
func (p *Processor) modify(req *Request) *Reply {
	j, ok := p.Store.Job(req.Target)
	if !ok {
		return errReply(req, errors.Newf(errors.KindUnknownJob, "unknown job %q", req.Target))
	}
	// Derivation and the cross-field checks run against the tentative
	// view: a rejection must leave the live job byte-identical.
	if r := p.applyChanges(req, entity.JobRegistry, j.Attrs, func(view []attr.Attribute) error {
		tmp := *j
		tmp.Attrs = view
		if err := p.deriveJobResources(&tmp); err != nil {
			return err
		}
		return validateSTF(&tmp)
	}); r != nil {
		return r
	}
	p.invalidateStatus(persistence.KindJob, j.Name)
	p.scheduleSave(persistence.JobToRow(j), persistence.SaveAttrs)
	return okReply(req)
}

// applyChanges runs req.Changes through an atomic batch against attrs.
// Unknown names route to the Resource_List catch-all, matching how a
// submit's resource assignments arrive as bare resource names. When
// validate is non-nil it runs against the tentative post-batch view
// before anything is committed, so a cross-field rejection leaves the
// entity untouched.
func (p *Processor) applyChanges(req *Request, reg *attr.Registry, attrs []attr.Attribute, validate func(view []attr.Attribute) error) *Reply {
	if len(req.Changes) == 0 {
		return nil
	}
	scratch := make([]attr.Attribute, len(attrs))
	origin := attr.OriginUser
	if req.Creds.Priv == attr.PrivDaemon {
		origin = attr.OriginDaemon
	}
	b := attr.NewBatch(reg, attrs, scratch, req.Creds.Priv, origin, attr.UnknownCatchAll).WithCatchAll("Resource_List")
	if failIdx, err := b.Apply(req.Changes); err != nil {
		ce, _ := errors.AsCoreError(err)
		if ce == nil {
			ce = errors.New(errors.KindBadValue, err.Error())
		}
		return errReply(req, ce.WithIndex(failIdx))
	}

	touched := b.Commit()
	if validate != nil {
		view := make([]attr.Attribute, len(attrs))
		copy(view, attrs)
		for _, i := range touched {
			view[i] = scratch[i]
		}
		if err := validate(view); err != nil {
			b.Discard()
			return errReply(req, err)
		}
	}
	for _, i := range touched {
		attrs[i] = scratch[i]
	}
	return nil
}

// deriveJobResources recomputes nodect and ncpus from the job's select
// string, validates aoe/eoe chunk uniformity, and enforces the
// cross-field walltime ordering once the whole batch has landed.
func (p *Processor) deriveJobResources(j *entity.Job) error {
	rl, ok := j.Attrs[entity.JobAttrResourceList].Payload.(attr.ResourceListValue)
	if !ok {
		return nil
	}
	if err := resource.CheckWalltimeOrdering(walltimeSet(rl)); err != nil {
		return err
	}
	sel := rl.Entries["select"]
	if sel == nil || !sel.IsSet() {
		return nil
	}
	text, _ := sel.Payload.(string)
	chunks, err := resource.ParseSelect(text)
	if err != nil {
		return err
	}
	if err := resource.ValidateAOEConsistency(chunks); err != nil {
		return err
	}
	if err := resource.ValidateEOEConsistency(chunks); err != nil {
		return err
	}

	nodect := resource.DeriveNodeCount(chunks)
	rl.Entries["nodect"] = longEntry(int64(nodect))

	var explicit *int
	if e := rl.Entries["ncpus"]; e != nil && e.IsSet() && !hasDefaultFlag(e) {
		if v, ok := e.Payload.(int64); ok {
			n := int(v)
			explicit = &n
		}
	}
	ncpus, err := resource.DeriveNCPUs(chunks, explicit, nodect)
	if err != nil {
		return err
	}
	rl.Entries["ncpus"] = longEntry(int64(ncpus))
	j.Attrs[entity.JobAttrResourceList].Payload = rl
	return nil
}

// walltimeSet pulls the four walltime-shaped durations out of a
// resource list; per-field actions only see one resource at a time, so
// the ordering invariants are checked here where all four are visible.
func walltimeSet(rl attr.ResourceListValue) resource.WalltimeSet {
	var w resource.WalltimeSet
	w.Walltime = durationEntry(rl, "walltime")
	w.SoftWalltime = durationEntry(rl, "soft_walltime")
	w.MinWalltime = durationEntry(rl, "min_walltime")
	w.MaxWalltime = durationEntry(rl, "max_walltime")
	return w
}

func durationEntry(rl attr.ResourceListValue, name string) *time.Duration {
	e := rl.Entries[name]
	if e == nil || !e.IsSet() {
		return nil
	}
	d, ok := e.Payload.(time.Duration)
	if !ok {
		return nil
	}
	return &d
}

// validateSTF rejects a shrink-to-fit job that is also an array member:
// min_walltime and array membership are mutually exclusive.
func validateSTF(j *entity.Job) error {
	rl, ok := j.Attrs[entity.JobAttrResourceList].Payload.(attr.ResourceListValue)
	if !ok {
		return nil
	}
	mw := rl.Entries["min_walltime"]
	if mw == nil || !mw.IsSet() {
		return nil
	}
	if j.Attrs[entity.JobAttrArrayID].IsSet() {
		return errors.New(errors.KindBadValue, "min_walltime is not allowed on an array job")
	}
	return nil
}

// placeInQueue binds the job to its requested queue, or the server's
// default queue, and records membership on the queue side.
func (p *Processor) placeInQueue(j *entity.Job) string {
	name := j.QueueName
	if name == "" {
		name, _ = j.Attrs[entity.JobAttrQueue].Payload.(string)
	}
	if name == "" {
		name, _ = p.Store.Server().Attrs[entity.ServerAttrDefaultQueue].Payload.(string)
	}
	if name == "" {
		return ""
	}
	j.QueueName = name
	if q, ok := p.Store.Queue(name); ok {
		q.JobNames[j.Name] = true
	}
	return name
}

func (p *Processor) signal(req *Request) *Reply {
	j, ok := p.Store.Job(req.Target)
	if !ok {
		return errReply(req, errors.Newf(errors.KindUnknownJob, "unknown job %q", req.Target))
	}
	if jobstate.ReadState(j) != jobstate.Running {
		return errReply(req, errors.Newf(errors.KindStaleState, "job %s is not running", j.Name))
	}
	if p.Daemon == nil {
		return errReply(req, errors.New(errors.KindSystem, "no execution daemon attached"))
	}
	if err := p.Daemon.Signal(j.Name, req.Signal); err != nil {
		return errReply(req, errors.Newf(errors.KindSystem, "signal delivery failed: %v", err))
	}
	return okReply(req)
}

// hold is the one deferred operation: a hold on a Running job issues a
// checkpoint to the execution daemon, so the guard enqueues a deferred
// completion and the reply is sent from that work-task. Holds on
// non-running jobs complete synchronously.
func (p *Processor) hold(req *Request, done ReplyFunc) {
	j, ok := p.Store.Job(req.Target)
	if !ok {
		done(errReply(req, errors.Newf(errors.KindUnknownJob, "unknown job %q", req.Target)))
		return
	}

	holdType := req.HoldType
	if holdType == "" {
		holdType = "u"
	}

	if jobstate.ReadState(j) != jobstate.Running {
		if err := p.Jobs.Hold(j, holdType); err != nil {
			done(errReply(req, err))
			return
		}
		p.invalidateStatus(persistence.KindJob, j.Name)
		p.scheduleSave(persistence.JobToRow(j), persistence.SaveQuickSave|persistence.SaveAttrs)
		done(okReply(req))
		return
	}

	p.Tasks.SetTask(worktask.DeferredEvent, time.Time{}, func(t *worktask.Task) {
		// Re-validate: another handler may have moved the job while the
		// checkpoint reply was pending.
		cur, still := p.Store.Job(req.Target)
		if !still {
			done(errReply(req, errors.Newf(errors.KindUnknownJob, "job %q disappeared", req.Target)))
			return
		}
		if err := p.Jobs.Hold(cur, holdType); err != nil {
			done(errReply(req, err))
			return
		}
		p.invalidateStatus(persistence.KindJob, cur.Name)
		p.scheduleSave(persistence.JobToRow(cur), persistence.SaveQuickSave|persistence.SaveAttrs)
		done(okReply(req))
	}, req, nil, nil)
}

func (p *Processor) release(req *Request) *Reply {
	j, ok := p.Store.Job(req.Target)
	if !ok {
		return errReply(req, errors.Newf(errors.KindUnknownJob, "unknown job %q", req.Target))
	}
	if err := p.Jobs.Release(j); err != nil {
		return errReply(req, err)
	}
	p.invalidateStatus(persistence.KindJob, j.Name)
	p.scheduleSave(persistence.JobToRow(j), persistence.SaveQuickSave|persistence.SaveAttrs)
	return okReply(req)
}

func (p *Processor) move(req *Request) *Reply {
	j, ok := p.Store.Job(req.Target)
	if !ok {
		return errReply(req, errors.Newf(errors.KindUnknownJob, "unknown job %q", req.Target))
	}
	if _, ok := p.Store.Queue(req.Destination); !ok {
		return errReply(req, errors.Newf(errors.KindUnknownQueue, "unknown queue %q", req.Destination))
	}
	if old, ok := p.Store.Queue(j.QueueName); ok {
		delete(old.JobNames, j.Name)
	}
	if err := p.Jobs.Move(j, req.Destination); err != nil {
		return errReply(req, err)
	}
	if q, ok := p.Store.Queue(req.Destination); ok {
		q.JobNames[j.Name] = true
	}
	p.invalidateStatus(persistence.KindJob, j.Name)
	p.scheduleSave(persistence.JobToRow(j), persistence.SaveQuickSave|persistence.SaveAttrs)
	return okReply(req)
}

func (p *Processor) run(req *Request) *Reply {
	j, ok := p.Store.Job(req.Target)
	if !ok {
		return errReply(req, errors.Newf(errors.KindUnknownJob, "unknown job %q", req.Target))
	}
	if err := p.Jobs.Run(j, req.Assignment); err != nil {
		return errReply(req, err)
	}
	p.invalidateStatus(persistence.KindJob, j.Name)
	p.record('S', j.Name)
	p.scheduleSave(persistence.JobToRow(j), persistence.SaveQuickSave|persistence.SaveAttrs)
	return okReply(req)
}

func (p *Processor) rerun(req *Request) *Reply {
	j, ok := p.Store.Job(req.Target)
	if !ok {
		return errReply(req, errors.Newf(errors.KindUnknownJob, "unknown job %q", req.Target))
	}
	if err := p.Jobs.Rerun(j); err != nil {
		return errReply(req, err)
	}
	p.invalidateStatus(persistence.KindJob, j.Name)
	p.scheduleSave(persistence.JobToRow(j), persistence.SaveQuickSave|persistence.SaveAttrs)
	return okReply(req)
}

func (p *Processor) del(req *Request) *Reply {
	j, ok := p.Store.Job(req.Target)
	if !ok {
		return errReply(req, errors.Newf(errors.KindUnknownJob, "unknown job %q", req.Target))
	}
	// A Running job is aborted first so accounting sees its end record;
	// a job in any other state is purged outright.
	if jobstate.ReadState(j) == jobstate.Running {
		_ = p.Jobs.Abort(j)
		p.record('E', j.Name)
	}
	if q, ok := p.Store.Queue(j.QueueName); ok {
		delete(q.JobNames, j.Name)
	}
	p.Store.RemoveJob(j.Name)
	p.invalidateStatus(persistence.KindJob, j.Name)
	p.scheduleSave(persistence.JobToRow(j), persistence.SaveQuickSave)
	return okReply(req)
}

// status encodes the target entity's readable attributes, or every
// job's when no target is named. Encoded entries are memoized per
// (kind, name, privilege) until the entity next mutates.
func (p *Processor) status(req *Request) *Reply {
	r := okReply(req)
	if req.Target != "" {
		j, ok := p.Store.Job(req.Target)
		if !ok {
			return errReply(req, errors.Newf(errors.KindUnknownJob, "unknown job %q", req.Target))
		}
		r.Status = p.jobStatus(j, req.Creds.Priv)
		return r
	}
	for _, j := range p.Store.Jobs() {
		r.Status = append(r.Status, p.jobStatus(j, req.Creds.Priv)...)
	}
	return r
}

func (p *Processor) jobStatus(j *entity.Job, priv attr.Privilege) []StatusEntry {
	key := statusKey(persistence.KindJob, j.Name, priv)
	if p.StatusCache != nil {
		if cached, ok := p.StatusCache.Get(key); ok {
			p.Collector.RecordCacheHit(key)
			return cached
		}
		p.Collector.RecordCacheMiss(key)
	}

	e := StatusEntry{Kind: persistence.KindJob, Name: j.Name, State: jobstate.ReadState(j).String()}
	for i := range j.Attrs {
		def := entity.JobRegistry.Def(i)
		if !def.ReadableBy(priv) || def.Access&attr.Hidden != 0 {
			continue
		}
		if def.Funcs.Encode == nil {
			continue
		}
		e.Attrs = append(e.Attrs, def.Funcs.Encode(&j.Attrs[i], def.Name, "")...)
	}
	out := []StatusEntry{e}
	if p.StatusCache != nil {
		p.StatusCache.Put(key, out)
	}
	return out
}

// shutdown executes the server shutdown interaction over every Running
// job and marks the server Down. The caller decides process exit; the
// processor only settles job fates and persists state.
func (p *Processor) shutdown(req *Request) *Reply {
	var running []*entity.Job
	for _, j := range p.Store.Jobs() {
		if jobstate.ReadState(j) == jobstate.Running {
			running = append(running, j)
		}
	}

	plans := p.Jobs.Shutdown(running, req.ShutdownType)
	for name, plan := range plans {
		if j, ok := p.Store.Job(name); ok {
			if plan == jobstate.PlanAbort {
				p.record('E', name)
			}
			p.invalidateStatus(persistence.KindJob, name)
			p.scheduleSave(persistence.JobToRow(j), persistence.SaveQuickSave)
		}
	}

	srv := p.Store.Server()
	srv.QuickSave.State = int(entity.ServerDown)
	p.scheduleSave(persistence.ServerToRow(srv), persistence.SaveQuickSave)
	p.Logger.Info("server shutdown requested", "type", int(req.ShutdownType), "jobs_affected", len(plans))
	return okReply(req)
}

// HandleExecExit is the execution-daemon exit notification path: the
// job leaves Running for Exiting, and an immediate work-task completes
// the epilogue, emitting the end accounting record.
func (p *Processor) HandleExecExit(jobName string, exitStatus int64) error {
	j, ok := p.Store.Job(jobName)
	if !ok {
		return errors.Newf(errors.KindUnknownJob, "unknown job %q", jobName)
	}
	if err := p.Jobs.Exit(j, exitStatus); err != nil {
		return err
	}
	p.invalidateStatus(persistence.KindJob, j.Name)
	p.scheduleSave(persistence.JobToRow(j), persistence.SaveQuickSave|persistence.SaveAttrs)

	p.Tasks.SetTask(worktask.Immediate, time.Time{}, func(t *worktask.Task) {
		cur, still := p.Store.Job(jobName)
		if !still || jobstate.ReadState(cur) != jobstate.Exiting {
			return
		}
		if err := p.Jobs.EpilogueComplete(cur); err != nil {
			return
		}
		p.record('E', cur.Name)
		p.invalidateStatus(persistence.KindJob, cur.Name)
		p.scheduleSave(persistence.JobToRow(cur), persistence.SaveQuickSave)
	}, j.Name, nil, nil)
	return nil
}

func (p *Processor) scheduleSave(row persistence.Row, st persistence.SaveType) {
	if p.Saves != nil {
		p.Saves.ScheduleSave(row, st)
	}
}

func (p *Processor) record(kind byte, jobName string) {
	if p.Acct != nil {
		p.Acct.Record(kind, jobName)
	}
}

func (p *Processor) invalidateStatus(kind, name string) {
	if p.StatusCache != nil {
		p.StatusCache.InvalidatePrefix(kind + "/" + name + "/")
	}
}

func statusKey(kind, name string, priv attr.Privilege) string {
	return kind + "/" + name + "/" + string(rune('0'+int(priv)))
}

func jobID(n int64, serverName string) string {
	return strconv.FormatInt(n, 10) + "." + serverName
}

func coreErr(err error) (*errors.CoreError, bool) {
	return errors.AsCoreError(err)
}

func strAttr(v string) attr.Attribute {
	return attr.Attribute{Type: attr.TypeString, Payload: v, Flags: attr.FlagSet}
}

func timeAttr(t time.Time) attr.Attribute {
	return attr.Attribute{Type: attr.TypeTime, Payload: t, Flags: attr.FlagSet}
}

func longEntry(v int64) *attr.Attribute {
	return &attr.Attribute{Type: attr.TypeLong, Payload: v, Flags: attr.FlagSet}
}

func hasDefaultFlag(a *attr.Attribute) bool {
	return a.Flags&attr.Default != 0
}
