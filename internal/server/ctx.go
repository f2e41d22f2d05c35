// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package server holds the server context (the entity indices every
// request resolves against), the cooperative main loop, and the
// diagnostic HTTP surface. All entity state is owned by the single
// server thread; the indices are maps guarded only by that discipline.
package server

import (
	"github.com/jontk/batchsched/internal/attr"
	"github.com/jontk/batchsched/internal/entity"
)

// Ctx is the explicit server context: the server singleton plus the
// by-name indices for every entity kind. It replaces any notion of
// package-level entity state; request handlers receive it and privilege
// travels in the request, never in a global.
type Ctx struct {
	server    *entity.Server
	scheduler *entity.Scheduler

	jobs     map[string]*entity.Job
	jobOrder []string
	queues   map[string]*entity.Queue
	nodes    map[string]*entity.Node
	resvs    map[string]*entity.Reservation
}

// NewCtx builds a context around a named server singleton with one
// default queue.
func NewCtx(serverName, defaultQueue string) *Ctx {
	srv := entity.NewServer(serverName)
	srv.Attrs[entity.ServerAttrDefaultQueue] = attr.Attribute{Type: attr.TypeString, Payload: defaultQueue, Flags: attr.FlagSet}
	srv.Attrs[entity.ServerAttrJobIDCounter] = attr.Attribute{Type: attr.TypeLong, Payload: int64(0), Flags: attr.FlagSet}
	srv.QuickSave.State = int(entity.ServerActive)

	c := &Ctx{
		server: srv,
		jobs:   map[string]*entity.Job{},
		queues: map[string]*entity.Queue{},
		nodes:  map[string]*entity.Node{},
		resvs:  map[string]*entity.Reservation{},
	}
	q := entity.NewQueue(defaultQueue)
	q.Attrs[entity.QueueAttrEnabled] = attr.Attribute{Type: attr.TypeBool, Payload: true, Flags: attr.FlagSet}
	q.Attrs[entity.QueueAttrStarted] = attr.Attribute{Type: attr.TypeBool, Payload: true, Flags: attr.FlagSet}
	c.queues[defaultQueue] = q
	return c
}

func (c *Ctx) Server() *entity.Server { return c.server }

// Scheduler returns the scheduler entity, creating it on first use.
func (c *Ctx) Scheduler() *entity.Scheduler {
	if c.scheduler == nil {
		c.scheduler = entity.NewScheduler("default")
	}
	return c.scheduler
}

func (c *Ctx) Job(name string) (*entity.Job, bool) {
	j, ok := c.jobs[name]
	return j, ok
}

func (c *Ctx) AddJob(j *entity.Job) {
	if _, exists := c.jobs[j.Name]; !exists {
		c.jobOrder = append(c.jobOrder, j.Name)
	}
	c.jobs[j.Name] = j
}

func (c *Ctx) RemoveJob(name string) { delete(c.jobs, name) }

// Jobs returns every live job in submission order.
func (c *Ctx) Jobs() []*entity.Job {
	out := make([]*entity.Job, 0, len(c.jobs))
	for _, name := range c.jobOrder {
		if j, ok := c.jobs[name]; ok {
			out = append(out, j)
		}
	}
	return out
}

func (c *Ctx) Queue(name string) (*entity.Queue, bool) {
	q, ok := c.queues[name]
	return q, ok
}

func (c *Ctx) AddQueue(q *entity.Queue) { c.queues[q.Name] = q }

func (c *Ctx) Node(name string) (*entity.Node, bool) {
	n, ok := c.nodes[name]
	return n, ok
}

func (c *Ctx) AddNode(n *entity.Node) { c.nodes[n.Name] = n }

func (c *Ctx) Reservation(name string) (*entity.Reservation, bool) {
	r, ok := c.resvs[name]
	return r, ok
}

func (c *Ctx) AddReservation(r *entity.Reservation) { c.resvs[r.Name] = r }
func (c *Ctx) RemoveReservation(name string)        { delete(c.resvs, name) }

// NextJobID advances and returns the server's jobid counter. The
// counter lives in the server entity so quick-saving the server row
// persists it.
func (c *Ctx) NextJobID() int64 {
	cur, _ := c.server.Attrs[entity.ServerAttrJobIDCounter].Payload.(int64)
	cur++
	c.server.Attrs[entity.ServerAttrJobIDCounter] = attr.Attribute{Type: attr.TypeLong, Payload: cur, Flags: attr.FlagSet}
	return cur
}
