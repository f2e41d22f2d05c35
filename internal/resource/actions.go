// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package resource

import (
	"time"

	"github.com/jontk/batchsched/internal/attr"
	"github.com/jontk/batchsched/pkg/errors"
)

// nonNegativeLongAction enforces "Long-typed built-in resources run
// through a common non-negative guard".
func nonNegativeLongAction(res *attr.Attribute, owningAttr *attr.Attribute, owningEntity any, entityKind string, mode attr.ActionMode) error {
	if mode == attr.ActionFree {
		return nil
	}
	v, _ := res.Payload.(int64)
	if v < 0 {
		return errors.New(errors.KindBadValue, "resource value must be non-negative")
	}
	return nil
}

func nonNegativeSizeAction(res *attr.Attribute, owningAttr *attr.Attribute, owningEntity any, entityKind string, mode attr.ActionMode) error {
	if mode == attr.ActionFree {
		return nil
	}
	v, _ := res.Payload.(int64)
	if v < 0 {
		return errors.New(errors.KindBadValue, "size resource must be non-negative")
	}
	return nil
}

// WalltimeSet bundles the four walltime-shaped resources of a single
// resource-list attribute so the cross-field ordering invariants can be
// checked once all four have had a chance to land. Entity packages call
// CheckWalltimeOrdering after a batch touches any of these, rather than
// relying solely on per-field actions (which only see one resource at a
// time and can't see a sibling that hasn't been set yet in the same
// batch).
type WalltimeSet struct {
	Walltime     *time.Duration
	SoftWalltime *time.Duration
	MinWalltime  *time.Duration
	MaxWalltime  *time.Duration
}

// CheckWalltimeOrdering enforces the two duration invariants "whenever
// all are set".
func CheckWalltimeOrdering(w WalltimeSet) error {
	if w.Walltime != nil && w.SoftWalltime != nil && *w.Walltime < *w.SoftWalltime {
		return errors.New(errors.KindBadValue, "walltime must be >= soft_walltime")
	}
	if w.MinWalltime != nil && w.MaxWalltime != nil && *w.MinWalltime > *w.MaxWalltime {
		return errors.New(errors.KindBadValue, "min_walltime must be <= max_walltime")
	}
	return nil
}

// walltimeAction, softWalltimeAction, minWalltimeAction, maxWalltimeAction
// are per-field guards doing the cheap single-field check (non-negative
// duration); the cross-field ordering is the entity layer's job via
// CheckWalltimeOrdering, since a single resource's Action only observes
// itself.
func walltimeAction(res *attr.Attribute, owningAttr *attr.Attribute, owningEntity any, entityKind string, mode attr.ActionMode) error {
	return nonNegativeDuration(res, mode)
}

func softWalltimeAction(res *attr.Attribute, owningAttr *attr.Attribute, owningEntity any, entityKind string, mode attr.ActionMode) error {
	return nonNegativeDuration(res, mode)
}

func minWalltimeAction(res *attr.Attribute, owningAttr *attr.Attribute, owningEntity any, entityKind string, mode attr.ActionMode) error {
	return nonNegativeDuration(res, mode)
}

func maxWalltimeAction(res *attr.Attribute, owningAttr *attr.Attribute, owningEntity any, entityKind string, mode attr.ActionMode) error {
	return nonNegativeDuration(res, mode)
}

func nonNegativeDuration(res *attr.Attribute, mode attr.ActionMode) error {
	if mode == attr.ActionFree {
		return nil
	}
	d, _ := res.Payload.(time.Duration)
	if d < 0 {
		return errors.New(errors.KindBadValue, "duration resource must be non-negative")
	}
	return nil
}

// selectAction validates select-string syntax (delegates to ParseSelect)
// and enforces the aoe all-or-nothing rule across chunks.
func selectAction(res *attr.Attribute, owningAttr *attr.Attribute, owningEntity any, entityKind string, mode attr.ActionMode) error {
	if mode == attr.ActionFree {
		return nil
	}
	text, _ := res.Payload.(string)
	if text == "" {
		return nil
	}
	chunks, err := ParseSelect(text)
	if err != nil {
		return err
	}
	return ValidateAOEConsistency(chunks)
}

// placeAction validates place-string syntax via ParsePlace.
func placeAction(res *attr.Attribute, owningAttr *attr.Attribute, owningEntity any, entityKind string, mode attr.ActionMode) error {
	if mode == attr.ActionFree {
		return nil
	}
	text, _ := res.Payload.(string)
	if text == "" {
		return nil
	}
	_, err := ParsePlace(text, nil)
	return err
}
