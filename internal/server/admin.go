// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/jontk/batchsched/internal/attr"
	"github.com/jontk/batchsched/internal/entity"
	"github.com/jontk/batchsched/internal/jobstate"
	"github.com/jontk/batchsched/internal/request"
	"github.com/jontk/batchsched/internal/schedcmd"
	"github.com/jontk/batchsched/pkg/logging"
	"github.com/jontk/batchsched/pkg/metrics"
	"github.com/jontk/batchsched/pkg/middleware"
	"github.com/jontk/batchsched/pkg/streaming"
	"github.com/jontk/batchsched/pkg/watch"
)

// Admin is the read-only diagnostic HTTP surface: entity status, the
// work queues, accounting, metrics, and a job-event stream. It never
// mutates entity state, and every read funnels through Loop.Call so the
// single-thread ownership of the indices holds.
type Admin struct {
	Ctx       *Ctx
	Loop      *Loop
	Proc      *request.Processor
	Acct      *AccountingLog
	Collector metrics.Collector
	Logger    logging.Logger

	// Sched, when set, exposes the scheduler command channel's
	// WebSocket endpoint on this surface.
	Sched *schedcmd.Channel
}

// Router builds the admin router with the standard middleware chain.
func (a *Admin) Router() *mux.Router {
	logger := a.Logger
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	collector := a.Collector
	if collector == nil {
		collector = metrics.NoOpCollector{}
	}

	r := mux.NewRouter()
	chain := middleware.Chain(
		middleware.WithRecovery(logger),
		middleware.WithRequestID(uuid.NewString),
		middleware.WithLogging(logger),
		middleware.WithMetrics(collector),
	)
	r.Use(mux.MiddlewareFunc(chain))

	r.HandleFunc("/healthz", a.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/status/server", a.handleServerStatus).Methods(http.MethodGet)
	r.HandleFunc("/status/jobs", a.handleJobs).Methods(http.MethodGet)
	r.HandleFunc("/status/jobs/{name}", a.handleJob).Methods(http.MethodGet)
	r.HandleFunc("/status/accounting", a.handleAccounting).Methods(http.MethodGet)
	r.HandleFunc("/metrics", a.handleMetrics).Methods(http.MethodGet)
	r.HandleFunc("/events", a.handleEvents).Methods(http.MethodGet)

	if a.Sched != nil {
		r.HandleFunc("/scheduler/channel", func(w http.ResponseWriter, req *http.Request) {
			if err := a.Sched.ServeHTTP(w, req); err != nil {
				logger.Warn("scheduler channel closed", "error", err)
			}
		})
	}
	return r
}

func (a *Admin) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (a *Admin) handleServerStatus(w http.ResponseWriter, r *http.Request) {
	var out struct {
		Name       string `json:"name"`
		State      int    `json:"state"`
		JobCount   int    `json:"job_count"`
		QueueCount int    `json:"queue_count"`
		NextJobID  int64  `json:"next_job_id"`
	}
	a.Loop.Call(func() {
		srv := a.Ctx.Server()
		out.Name = srv.Name
		out.State = srv.QuickSave.State
		out.JobCount = len(a.Ctx.Jobs())
		out.QueueCount = len(a.Ctx.queues)
		out.NextJobID, _ = srv.Attrs[entity.ServerAttrJobIDCounter].Payload.(int64)
	})
	writeJSON(w, out)
}

func (a *Admin) handleJobs(w http.ResponseWriter, r *http.Request) {
	a.serveStatus(w, "")
}

func (a *Admin) handleJob(w http.ResponseWriter, r *http.Request) {
	a.serveStatus(w, mux.Vars(r)["name"])
}

// serveStatus reuses the request processor's status operation at
// operator privilege, so the HTTP view and the wire view can never
// drift apart.
func (a *Admin) serveStatus(w http.ResponseWriter, target string) {
	var reply *request.Reply
	a.Loop.Call(func() {
		req := request.New(request.OpStatus, request.Credentials{User: "admin", Priv: attr.PrivOperator}, target)
		a.Proc.Process(req, func(r *request.Reply) { reply = r })
	})
	if reply == nil {
		http.Error(w, "status unavailable", http.StatusInternalServerError)
		return
	}
	if reply.Code != 0 {
		http.Error(w, reply.Message, http.StatusNotFound)
		return
	}
	writeJSON(w, reply.Status)
}

func (a *Admin) handleAccounting(w http.ResponseWriter, r *http.Request) {
	if a.Acct == nil {
		writeJSON(w, []AcctRecord{})
		return
	}
	recs := a.Acct.Records()
	type rec struct {
		Kind string `json:"kind"`
		Job  string `json:"job"`
		At   string `json:"at"`
	}
	out := make([]rec, 0, len(recs))
	for _, rr := range recs {
		out = append(out, rec{Kind: string(rr.Kind), Job: rr.JobName, At: rr.At.UTC().Format("2006-01-02T15:04:05Z")})
	}
	writeJSON(w, out)
}

func (a *Admin) handleMetrics(w http.ResponseWriter, r *http.Request) {
	collector := a.Collector
	if collector == nil {
		collector = metrics.NoOpCollector{}
	}
	writeJSON(w, collector.GetStats())
}

// handleEvents streams job state changes as Server-Sent Events, backed
// by a poller diffing loop-side snapshots.
func (a *Admin) handleEvents(w http.ResponseWriter, r *http.Request) {
	sse := streaming.NewSSEServer(jobEventSource{admin: a})
	sse.HandleSSE(w, r)
}

type jobEventSource struct{ admin *Admin }

func (s jobEventSource) Watch(ctx context.Context) (<-chan streaming.Event, error) {
	poller := watch.NewPoller(func(context.Context) ([]watch.Snapshot[string], error) {
		var snaps []watch.Snapshot[string]
		s.admin.Loop.Call(func() {
			for _, j := range s.admin.Ctx.Jobs() {
				snaps = append(snaps, watch.Snapshot[string]{ID: j.Name, State: jobstate.ReadState(j).String()})
			}
		})
		return snaps, nil
	})

	events := poller.Watch(ctx)
	out := make(chan streaming.Event, 16)
	go func() {
		defer close(out)
		for ev := range events {
			out <- streaming.Event{
				ID:   ev.ID,
				Kind: string(ev.Type),
				Data: map[string]string{"job": ev.ID, "previous": ev.PreviousState, "state": ev.NewState},
			}
		}
	}()
	return out, nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
