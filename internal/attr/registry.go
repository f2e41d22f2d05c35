// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package attr

import "sync"

var (
	funcsOnce  sync.Once
	funcsTable map[AttrType]Funcs
)

// FuncsFor returns the shared Funcs table for an AttrType. Built lazily
// and once; the table itself is immutable thereafter.
func FuncsFor(t AttrType) Funcs {
	funcsOnce.Do(func() {
		funcsTable = map[AttrType]Funcs{
			TypeLong:         newLongFuncs(),
			TypeBool:         newBoolFuncs(),
			TypeChar:         newCharFuncs(),
			TypeSize:         newSizeFuncs(),
			TypeDuration:     newDurationFuncs(),
			TypeTime:         newTimeFuncs(),
			TypeString:       newStringFuncs(),
			TypeStrArray:     newStrArrayFuncs(),
			TypeResourceList: newResourceListFuncs(),
			TypeEntitySet:    newEntitySetFuncs(),
			TypeFloat:        newFloatFuncs(),
			TypeArray:        newGenericArrayFuncs(),
		}
	})
	return funcsTable[t]
}

// NewDef constructs a Def whose Funcs are the shared table for its Type.
func NewDef(name string, t AttrType, access AccessMask) *Def {
	return &Def{Name: name, Type: t, Access: access, Funcs: FuncsFor(t)}
}

// Registry maps attribute names to their Def, scoped to one entity
// kind. Go has no compile-time string enum
// indexing as convenient as C's, so the Registry plus a generated index
// constant per entity kind (see internal/entity) together model it: the
// Registry resolves name -> index at Batch-build time, and entity vectors
// are plain slices addressed by that index thereafter.
type Registry struct {
	Kind  string
	defs  []*Def
	index map[string]int
}

// NewRegistry creates an empty registry for the named entity kind.
func NewRegistry(kind string) *Registry {
	return &Registry{Kind: kind, index: make(map[string]int)}
}

// Add registers def, assigning it the next slot index. Returns that index.
func (r *Registry) Add(def *Def) int {
	idx := len(r.defs)
	r.defs = append(r.defs, def)
	r.index[def.Name] = idx
	return idx
}

// Lookup resolves a name to its Def and slot index.
func (r *Registry) Lookup(name string) (idx int, def *Def, ok bool) {
	idx, ok = r.index[name]
	if !ok {
		return 0, nil, false
	}
	return idx, r.defs[idx], true
}

// Def returns the Def at slot idx.
func (r *Registry) Def(idx int) *Def { return r.defs[idx] }

// Len returns the number of registered attributes (the vector size for
// entities of this kind).
func (r *Registry) Len() int { return len(r.defs) }

// Names returns every registered attribute name, in slot order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.defs))
	for i, d := range r.defs {
		out[i] = d.Name
	}
	return out
}
