// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package persistence

import (
	"github.com/jontk/batchsched/internal/attr"
	"github.com/jontk/batchsched/internal/entity"
	"github.com/jontk/batchsched/pkg/errors"
)

// Entity kind names used in Row.Kind. These are the table names on the
// backing-store side, so they never change once data exists.
const (
	KindServer      = "server"
	KindScheduler   = "scheduler"
	KindQueue       = "queue"
	KindNode        = "node"
	KindJob         = "job"
	KindReservation = "reservation"
)

// encodeAttrs flattens an entity's attribute vector into row entries.
// Unset slots produce nothing; list-typed attributes may produce several
// entries. NoSave attributes are held back from the store entirely.
func encodeAttrs(reg *attr.Registry, attrs []attr.Attribute) []AttrEntry {
	var out []AttrEntry
	for i := range attrs {
		def := reg.Def(i)
		if def.Access&attr.NoSave != 0 {
			continue
		}
		a := &attrs[i]
		if !a.IsSet() || def.Funcs.Encode == nil {
			continue
		}
		for _, e := range def.Funcs.Encode(a, def.Name, "") {
			out = append(out, AttrEntry{Name: e.Name, Resource: e.Resource, Value: e.Value, Flags: uint32(a.Flags)})
		}
	}
	return out
}

// decodeAttrs replays row entries into an attribute vector. Entries whose
// name is no longer registered are skipped rather than failing recovery:
// an attribute retired between releases must not strand the stored row.
func decodeAttrs(reg *attr.Registry, attrs []attr.Attribute, entries []AttrEntry) error {
	for _, e := range entries {
		idx, def, ok := reg.Lookup(e.Name)
		if !ok {
			continue
		}
		tmp := def.New()
		if err := def.Funcs.Decode(&tmp, e.Name, e.Resource, e.Value); err != nil {
			return errors.Newf(errors.KindInternal, "recover %s.%s: %v", e.Name, e.Resource, err)
		}
		if err := def.Funcs.Set(&attrs[idx], &tmp, attr.OpSet); err != nil {
			def.Funcs.Free(&tmp)
			return errors.Newf(errors.KindInternal, "recover %s.%s: %v", e.Name, e.Resource, err)
		}
		def.Funcs.Free(&tmp)
	}
	return nil
}

// JobToRow marshals a job for saving. The queue and reservation
// back-references ride in their attribute slots so the row stays a pure
// quick-save prefix plus attribute map.
func JobToRow(j *entity.Job) Row {
	syncStringAttr(j.Attrs, entity.JobAttrQueue, j.QueueName)
	syncStringAttr(j.Attrs, entity.JobAttrReservation, j.ReservationName)
	return Row{
		Kind:     KindJob,
		Name:     j.Name,
		State:    j.QuickSave.State,
		Substate: j.QuickSave.Substate,
		Flags:    uint32(j.QuickSave.Flags),
		Attrs:    encodeAttrs(entity.JobRegistry, j.Attrs),
	}
}

// JobFromRow rebuilds a job from its stored row, fully replacing the
// in-memory attribute vector.
func JobFromRow(row Row) (*entity.Job, error) {
	j := entity.NewJob(row.Name)
	j.QuickSave.State = row.State
	j.QuickSave.Substate = row.Substate
	j.QuickSave.Flags = entity.QSFlag(row.Flags)
	j.NewObject = false
	if err := decodeAttrs(entity.JobRegistry, j.Attrs, row.Attrs); err != nil {
		return nil, err
	}
	j.QueueName, _ = j.Attrs[entity.JobAttrQueue].Payload.(string)
	j.ReservationName, _ = j.Attrs[entity.JobAttrReservation].Payload.(string)
	return j, nil
}

// QueueToRow marshals a queue. Job membership is not stored on the queue
// row; each job row carries its queue name instead.
func QueueToRow(q *entity.Queue) Row {
	return Row{
		Kind:     KindQueue,
		Name:     q.Name,
		State:    q.QuickSave.State,
		Substate: q.QuickSave.Substate,
		Flags:    uint32(q.QuickSave.Flags),
		Attrs:    encodeAttrs(entity.QueueRegistry, q.Attrs),
	}
}

func QueueFromRow(row Row) (*entity.Queue, error) {
	q := entity.NewQueue(row.Name)
	q.QuickSave.State = row.State
	q.QuickSave.Substate = row.Substate
	q.QuickSave.Flags = entity.QSFlag(row.Flags)
	q.NewObject = false
	if err := decodeAttrs(entity.QueueRegistry, q.Attrs, row.Attrs); err != nil {
		return nil, err
	}
	return q, nil
}

// ServerToRow marshals the server singleton. The jobid counter is hoisted
// out of its attribute slot into the row's fixed prefix so it survives
// even an attribute-map corruption.
func ServerToRow(s *entity.Server) Row {
	counter, _ := s.Attrs[entity.ServerAttrJobIDCounter].Payload.(int64)
	return Row{
		Kind:         KindServer,
		Name:         s.Name,
		State:        s.QuickSave.State,
		Substate:     s.QuickSave.Substate,
		Flags:        uint32(s.QuickSave.Flags),
		JobIDCounter: counter,
		Attrs:        encodeAttrs(entity.ServerRegistry, s.Attrs),
	}
}

func ServerFromRow(row Row) (*entity.Server, error) {
	s := entity.NewServer(row.Name)
	s.QuickSave.State = row.State
	s.QuickSave.Substate = row.Substate
	s.QuickSave.Flags = entity.QSFlag(row.Flags)
	s.NewObject = false
	if err := decodeAttrs(entity.ServerRegistry, s.Attrs, row.Attrs); err != nil {
		return nil, err
	}
	s.Attrs[entity.ServerAttrJobIDCounter] = attr.Attribute{Type: attr.TypeLong, Payload: row.JobIDCounter, Flags: attr.FlagSet}
	return s, nil
}

func NodeToRow(n *entity.Node) Row {
	return Row{
		Kind:     KindNode,
		Name:     n.Name,
		State:    n.QuickSave.State,
		Substate: n.QuickSave.Substate,
		Flags:    uint32(n.QuickSave.Flags),
		Attrs:    encodeAttrs(entity.NodeRegistry, n.Attrs),
	}
}

func NodeFromRow(row Row) (*entity.Node, error) {
	n := entity.NewNode(row.Name)
	n.QuickSave.State = row.State
	n.QuickSave.Substate = row.Substate
	n.QuickSave.Flags = entity.QSFlag(row.Flags)
	n.NewObject = false
	if err := decodeAttrs(entity.NodeRegistry, n.Attrs, row.Attrs); err != nil {
		return nil, err
	}
	return n, nil
}

func ReservationToRow(r *entity.Reservation) Row {
	return Row{
		Kind:     KindReservation,
		Name:     r.Name,
		State:    r.QuickSave.State,
		Substate: r.QuickSave.Substate,
		Flags:    uint32(r.QuickSave.Flags),
		Attrs:    encodeAttrs(entity.ReservationRegistry, r.Attrs),
	}
}

func ReservationFromRow(row Row) (*entity.Reservation, error) {
	r := entity.NewReservation(row.Name)
	r.QuickSave.State = row.State
	r.QuickSave.Substate = row.Substate
	r.QuickSave.Flags = entity.QSFlag(row.Flags)
	r.NewObject = false
	if err := decodeAttrs(entity.ReservationRegistry, r.Attrs, row.Attrs); err != nil {
		return nil, err
	}
	return r, nil
}

func SchedulerToRow(s *entity.Scheduler) Row {
	return Row{
		Kind:     KindScheduler,
		Name:     s.Name,
		State:    s.QuickSave.State,
		Substate: s.QuickSave.Substate,
		Flags:    uint32(s.QuickSave.Flags),
		Attrs:    encodeAttrs(entity.SchedulerRegistry, s.Attrs),
	}
}

func SchedulerFromRow(row Row) (*entity.Scheduler, error) {
	s := entity.NewScheduler(row.Name)
	s.QuickSave.State = row.State
	s.QuickSave.Substate = row.Substate
	s.QuickSave.Flags = entity.QSFlag(row.Flags)
	s.NewObject = false
	if err := decodeAttrs(entity.SchedulerRegistry, s.Attrs, row.Attrs); err != nil {
		return nil, err
	}
	return s, nil
}

func syncStringAttr(attrs []attr.Attribute, slot int, v string) {
	if v == "" {
		return
	}
	attrs[slot] = attr.Attribute{Type: attr.TypeString, Payload: v, Flags: attr.FlagSet}
}
