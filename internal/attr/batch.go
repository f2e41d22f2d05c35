// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package attr

import "github.com/jontk/batchsched/pkg/errors"

// UnknownPolicy governs how Batch.Apply treats a name that isn't in the
// Registry.
type UnknownPolicy int

const (
	UnknownError UnknownPolicy = iota
	UnknownIgnore
	UnknownCatchAll
)

// Change is one (name, resource?, op, value) triple in an atomic batch.
type Change struct {
	Name     string
	Resource string // empty unless Name addresses a resource-list attribute
	Op       Op
	Value    string
}

// Batch accumulates tentative (index, new_value) writes against two
// parallel attribute vectors and commits or discards them atomically.
type Batch struct {
	registry      *Registry
	priv          Privilege
	origin        Origin
	unknownPolicy UnknownPolicy
	catchAllName  string // resource name used when UnknownCatchAll and Resource=="" but Name is itself unknown

	old []Attribute
	new []Attribute

	touched []bool
	tentative []struct {
		idx   int
		value Attribute
	}
}

// NewBatch starts a batch over the given (old, new) vectors, both indexed
// by registry slot. new must start as a copy of old (callers typically
// pass entity.Attrs and a scratch copy); Apply performs the "first touch"
// deep-copy itself per slot, so new's initial contents for untouched
// slots are irrelevant as long as len(new) == len(old) == registry.Len().
func NewBatch(registry *Registry, old, new []Attribute, priv Privilege, origin Origin, policy UnknownPolicy) *Batch {
	return &Batch{
		registry:      registry,
		priv:          priv,
		origin:        origin,
		unknownPolicy: policy,
		old:           old,
		new:           new,
		touched:       make([]bool, len(old)),
	}
}

// Apply runs the atomic batch-set sequence over changes, in order,
// writing each change straight into new[]. On success it returns 0, nil
// and the caller should call Commit(). On failure it calls Discard()
// itself, which clears every slot of new[] the batch touched, and
// returns the 1-based index of the offending change and an error; the
// caller propagates the index untouched to the requester.
func (b *Batch) Apply(changes []Change) (failIndex int, err error) {
	for i, ch := range changes {
		if ferr := b.applyOne(ch); ferr != nil {
			b.Discard()
			return i + 1, ferr
		}
	}
	return 0, nil
}

func (b *Batch) applyOne(ch Change) error {
	idx, def, ok := b.registry.Lookup(ch.Name)
	if !ok {
		switch b.unknownPolicy {
		case UnknownIgnore:
			return nil
		case UnknownCatchAll:
			if b.catchAllName == "" {
				return errors.Newf(errors.KindUnknownAttribute, "unknown attribute %q and no catch-all configured", ch.Name)
			}
			idx, def, ok = b.registry.Lookup(b.catchAllName)
			if !ok {
				return errors.Newf(errors.KindUnknownAttribute, "unknown attribute %q", ch.Name)
			}
			if ch.Resource == "" {
				ch.Resource = ch.Name
			}
		default:
			return errors.Newf(errors.KindUnknownAttribute, "unknown attribute %q", ch.Name)
		}
	}

	allowed, aerr := def.CheckAccess(b.priv, b.origin)
	if aerr != nil {
		return aerr
	}
	if !allowed {
		// Daemon-origin silent skip.
		return nil
	}

	tmp := def.New()
	if def.Funcs.Decode == nil {
		return errors.Newf(errors.KindBadType, "attribute %q has no decoder", ch.Name)
	}
	if derr := def.Funcs.Decode(&tmp, ch.Name, ch.Resource, ch.Value); derr != nil {
		def.Funcs.Free(&tmp)
		return derr
	}

	if !b.touched[idx] {
		b.new[idx] = b.old[idx].Clone()
		b.touched[idx] = true
	}

	if serr := def.Funcs.Set(&b.new[idx], &tmp, ch.Op); serr != nil {
		def.Funcs.Free(&tmp)
		return serr
	}
	def.Funcs.Free(&tmp)

	if def.Funcs.Compare(&b.new[idx], &b.old[idx]) != 0 {
		b.new[idx].Flags |= FlagModified
	} else {
		b.new[idx].Flags &^= FlagModified
	}

	if def.Action != nil {
		if aerr := def.Action(&b.new[idx], &b.new[idx], nil, b.registry.Kind, ActionAlter); aerr != nil {
			return aerr
		}
	}
	return nil
}

// Discard frees every touched slot of new and resets new[i] back to a
// cleared zero value.
func (b *Batch) Discard() {
	for i, touched := range b.touched {
		if !touched {
			continue
		}
		def := b.registry.Def(i)
		def.Funcs.Free(&b.new[i])
		b.touched[i] = false
	}
}

// Commit finalizes a successful batch: no-op beyond returning the
// modified-slot set, since Apply already wrote directly into new[] — it
// exists so call sites keep the explicit commit/discard builder shape.
func (b *Batch) Commit() []int {
	var modified []int
	for i, touched := range b.touched {
		if touched {
			modified = append(modified, i)
		}
	}
	return modified
}

// WithCatchAll sets the resource-list attribute name used when
// UnknownCatchAll routes an unrecognized top-level name.
func (b *Batch) WithCatchAll(name string) *Batch {
	b.catchAllName = name
	return b
}
