// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package request

import (
	"time"

	"github.com/jontk/batchsched/internal/entity"
	"github.com/jontk/batchsched/internal/persistence"
	"github.com/jontk/batchsched/internal/recurrence"
	"github.com/jontk/batchsched/internal/resvstate"
	"github.com/jontk/batchsched/internal/worktask"
	"github.com/jontk/batchsched/pkg/errors"
)

// SubmitReservation creates an advance or standing reservation from the
// request's attribute list. A non-empty recurrence rule makes it a
// standing reservation; the rule is validated (including the
// duration-versus-frequency and minimum-gap checks) before the entity
// is admitted.
func (p *Processor) SubmitReservation(req *Request) *Reply {
	if req.Creds.Priv < minPrivilege[OpSubmit] {
		return errReply(req, errors.New(errors.KindPermissionDenied, "submit requires user privilege"))
	}
	name := req.Target
	if name == "" {
		name = "R" + jobID(p.Store.NextJobID(), p.Store.Server().Name)
	}
	if _, exists := p.Store.Reservation(name); exists {
		return errReply(req, errors.Newf(errors.KindBadValue, "reservation %s already exists", name))
	}

	r := entity.NewReservation(name)
	r.Attrs[entity.ResvAttrOwner] = strAttr(req.Creds.User)
	if rep := p.applyChanges(req, entity.ReservationRegistry, r.Attrs, nil); rep != nil {
		return rep
	}

	start, _ := r.Attrs[entity.ResvAttrStart].Payload.(time.Time)
	duration, _ := r.Attrs[entity.ResvAttrDuration].Payload.(time.Duration)
	if !r.Attrs[entity.ResvAttrStart].IsSet() || duration <= 0 {
		return errReply(req, errors.New(errors.KindBadTimeSpec, "reservation needs a start time and a positive duration"))
	}

	if rrule, _ := r.Attrs[entity.ResvAttrRRule].Payload.(string); rrule != "" {
		tzid, _ := r.Attrs[entity.ResvAttrTZ].Payload.(string)
		if _, err := recurrence.ParseRRule(rrule, start, duration, tzid); err != nil {
			return errReply(req, err)
		}
		r.Attrs[entity.ResvAttrDTStart] = timeAttr(start)
		r.Attrs[entity.ResvAttrOccurrence] = *longEntry(0)
	}

	if !r.Attrs[entity.ResvAttrEnd].IsSet() {
		r.Attrs[entity.ResvAttrEnd] = timeAttr(start.Add(duration))
	}

	resvstate.WriteState(r, resvstate.Unconfirmed)
	p.Store.AddReservation(r)
	p.invalidateStatus(persistence.KindReservation, name)
	p.scheduleSave(persistence.ReservationToRow(r), persistence.SaveNew)
	p.Logger.Info("reservation submitted", "reservation", name, "owner", req.Creds.User)

	rep := okReply(req)
	rep.Message = name
	return rep
}

// ConfirmReservation runs the scheduler-acceptance transition and binds
// the first occurrence window: Unconfirmed -> Confirmed -> Waiting, with
// a timed work-task at the occurrence start.
func (p *Processor) ConfirmReservation(name string) error {
	r, ok := p.Store.Reservation(name)
	if !ok {
		return errors.Newf(errors.KindUnknownJob, "unknown reservation %q", name)
	}
	if p.Resvs == nil {
		return errors.New(errors.KindInternal, "no reservation machine attached")
	}
	if err := p.Resvs.Confirm(r); err != nil {
		return err
	}
	if err := p.Resvs.ToWaiting(r); err != nil {
		return err
	}

	start, _ := r.Attrs[entity.ResvAttrStart].Payload.(time.Time)
	p.Tasks.SetTask(worktask.Timed, start, p.reservationWindowOpens, name, nil, nil)

	p.invalidateStatus(persistence.KindReservation, name)
	p.scheduleSave(persistence.ReservationToRow(r), persistence.SaveQuickSave|persistence.SaveAttrs)
	return nil
}

// reservationWindowOpens fires at an occurrence's start: the
// reservation becomes Time_to_run then Running, and a second timed task
// is set for the occurrence end.
func (p *Processor) reservationWindowOpens(t *worktask.Task) {
	name, _ := t.Parm1.(string)
	r, ok := p.Store.Reservation(name)
	if !ok || p.Resvs == nil {
		return
	}
	start, _ := r.Attrs[entity.ResvAttrStart].Payload.(time.Time)
	if err := p.Resvs.TimeToRun(r, start); err != nil {
		return
	}
	if err := p.Resvs.Run(r); err != nil {
		return
	}
	end, _ := r.Attrs[entity.ResvAttrEnd].Payload.(time.Time)
	p.Tasks.SetTask(worktask.Timed, end, p.reservationWindowCloses, name, nil, nil)
	p.invalidateStatus(persistence.KindReservation, name)
	p.scheduleSave(persistence.ReservationToRow(r), persistence.SaveQuickSave)
}

// reservationWindowCloses fires at an occurrence's end. Finish cycles a
// standing reservation back to Waiting with the next occurrence bound
// in, so a fresh window task is set; a one-shot reservation stays
// Finished.
func (p *Processor) reservationWindowCloses(t *worktask.Task) {
	name, _ := t.Parm1.(string)
	r, ok := p.Store.Reservation(name)
	if !ok || p.Resvs == nil {
		return
	}
	if err := p.Resvs.Finish(r); err != nil {
		return
	}
	if resvstate.ReadState(r) == resvstate.Waiting {
		start, _ := r.Attrs[entity.ResvAttrStart].Payload.(time.Time)
		p.Tasks.SetTask(worktask.Timed, start, p.reservationWindowOpens, name, nil, nil)
	}
	p.invalidateStatus(persistence.KindReservation, name)
	p.scheduleSave(persistence.ReservationToRow(r), persistence.SaveQuickSave|persistence.SaveAttrs)
}

// DeleteReservation marks a reservation Being_Deleted and drops its
// pending window tasks.
func (p *Processor) DeleteReservation(req *Request) *Reply {
	r, ok := p.Store.Reservation(req.Target)
	if !ok {
		return errReply(req, errors.Newf(errors.KindUnknownJob, "unknown reservation %q", req.Target))
	}
	if p.Resvs != nil {
		p.Resvs.Delete(r)
	} else {
		resvstate.WriteState(r, resvstate.BeingDeleted)
	}
	p.Tasks.DeleteTaskByParm1Func(req.Target, nil, true)
	p.Store.RemoveReservation(req.Target)
	p.invalidateStatus(persistence.KindReservation, req.Target)
	p.scheduleSave(persistence.ReservationToRow(r), persistence.SaveQuickSave)
	return okReply(req)
}
