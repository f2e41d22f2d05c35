// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package entity

import "github.com/jontk/batchsched/internal/attr"

// Job is a batch job entity.
type Job struct {
	QuickSave
	Attrs []attr.Attribute

	// QueueName/ReservationName are non-owning back-references.
	QueueName       string
	ReservationName string

	// NewObject is true until first persisted.
	NewObject bool
}

// NewJob allocates a Job with a freshly-sized, all-unset attribute
// vector.
func NewJob(name string) *Job {
	j := &Job{Attrs: make([]attr.Attribute, JobRegistry.Len()), NewObject: true}
	j.Name = name
	for i := range j.Attrs {
		j.Attrs[i] = JobRegistry.Def(i).New()
	}
	return j
}

// Queue is a queue entity owning a set of job names.
type Queue struct {
	QuickSave
	Attrs     []attr.Attribute
	JobNames  map[string]bool
	NewObject bool
}

func NewQueue(name string) *Queue {
	q := &Queue{Attrs: make([]attr.Attribute, QueueRegistry.Len()), JobNames: map[string]bool{}, NewObject: true}
	q.Name = name
	for i := range q.Attrs {
		q.Attrs[i] = QueueRegistry.Def(i).New()
	}
	return q
}

// Server is the singleton server entity.
type Server struct {
	QuickSave
	Attrs     []attr.Attribute
	NewObject bool
}

func NewServer(name string) *Server {
	s := &Server{Attrs: make([]attr.Attribute, ServerRegistry.Len()), NewObject: true}
	s.Name = name
	for i := range s.Attrs {
		s.Attrs[i] = ServerRegistry.Def(i).New()
	}
	return s
}

// Node is a compute node entity.
type Node struct {
	QuickSave
	Attrs     []attr.Attribute
	NewObject bool
}

func NewNode(name string) *Node {
	n := &Node{Attrs: make([]attr.Attribute, NodeRegistry.Len()), NewObject: true}
	n.Name = name
	for i := range n.Attrs {
		n.Attrs[i] = NodeRegistry.Def(i).New()
	}
	return n
}

// Reservation is an advance or standing reservation entity, owning a set
// of job names.
type Reservation struct {
	QuickSave
	Attrs     []attr.Attribute
	JobNames  map[string]bool
	NewObject bool
}

func NewReservation(name string) *Reservation {
	r := &Reservation{Attrs: make([]attr.Attribute, ReservationRegistry.Len()), JobNames: map[string]bool{}, NewObject: true}
	r.Name = name
	for i := range r.Attrs {
		r.Attrs[i] = ReservationRegistry.Def(i).New()
	}
	return r
}

// Scheduler is the scheduler entity the server addresses scheduler
// commands to.
type Scheduler struct {
	QuickSave
	Attrs     []attr.Attribute
	NewObject bool
}

func NewScheduler(name string) *Scheduler {
	s := &Scheduler{Attrs: make([]attr.Attribute, SchedulerRegistry.Len()), NewObject: true}
	s.Name = name
	for i := range s.Attrs {
		s.Attrs[i] = SchedulerRegistry.Def(i).New()
	}
	return s
}
