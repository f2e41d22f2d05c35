// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package resource implements the resource catalog: a
// registry of named, typed resources nested inside a resource-list
// attribute, each carrying an optional action enforcing cross-resource
// invariants (select/place syntax, min/max walltime ordering, aoe/eoe
// all-or-nothing).
package resource

import (
	"sort"
	"sync"

	"github.com/jontk/batchsched/internal/attr"
)

// Def describes one catalog resource: name, underlying attribute type,
// and an optional Action invoked whenever the enclosing resource-list
// attribute mutates.
type Def struct {
	Name   string
	Type   attr.AttrType
	Action attr.ActionFunc
}

// Catalog is the static built-in table plus dynamic entries learned from
// the server.
type Catalog struct {
	mu   sync.RWMutex
	defs map[string]*Def
}

// NewCatalog returns a catalog pre-loaded with the built-in resources.
func NewCatalog() *Catalog {
	c := &Catalog{defs: make(map[string]*Def)}
	for _, d := range builtins() {
		c.Register(d)
	}
	return c
}

// Register adds or replaces a resource definition.
func (c *Catalog) Register(d *Def) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defs[d.Name] = d
}

// Lookup returns the Def for name, if known.
func (c *Catalog) Lookup(name string) (*Def, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.defs[name]
	return d, ok
}

// Names returns every registered resource name, sorted, for
// select-string derivation and deterministic encode ordering.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.defs))
	for n := range c.defs {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// builtins returns the built-in resource table: memory sizes, CPU counts,
// walltime, opaque strings, string arrays, and the special
// whole-remainder preempt_targets.
func builtins() []*Def {
	return []*Def{
		{Name: "mem", Type: attr.TypeSize, Action: nonNegativeSizeAction},
		{Name: "vmem", Type: attr.TypeSize, Action: nonNegativeSizeAction},
		{Name: "ncpus", Type: attr.TypeLong, Action: nonNegativeLongAction},
		{Name: "nodect", Type: attr.TypeLong, Action: nonNegativeLongAction},
		{Name: "walltime", Type: attr.TypeDuration, Action: walltimeAction},
		{Name: "soft_walltime", Type: attr.TypeDuration, Action: softWalltimeAction},
		{Name: "min_walltime", Type: attr.TypeDuration, Action: minWalltimeAction},
		{Name: "max_walltime", Type: attr.TypeDuration, Action: maxWalltimeAction},
		{Name: "select", Type: attr.TypeString, Action: selectAction},
		{Name: "place", Type: attr.TypeString, Action: placeAction},
		{Name: "aoe", Type: attr.TypeString},
		{Name: "eoe", Type: attr.TypeString},
		{Name: "preempt_targets", Type: attr.TypeStrArray},
		{Name: "file", Type: attr.TypeSize, Action: nonNegativeSizeAction},
	}
}

func init() {
	// Wire attr's generic resource-list Set/Decode/Action hooks to the
	// default catalog so entity packages get correct per-resource
	// semantics without importing resource directly (would create the
	// import cycle described in funcs_resourcelist.go).
	def := NewCatalog()
	attr.ResourceFuncsLookup = func(name string) (attr.ResourceFuncs, bool) {
		d, ok := def.Lookup(name)
		if !ok {
			return attr.ResourceFuncs{}, false
		}
		funcs := attr.FuncsFor(d.Type)
		rf := attr.ResourceFuncs{
			Decode: func(text string) (attr.Attribute, error) {
				a := attr.Zero(d.Type)
				if name == "preempt_targets" {
					// Whole-remainder tie-break: the entire text is one logical value,
					// not comma-split like every other array resource.
					a.Payload = []string{text}
					a.Flags |= attr.FlagSet
					return a, nil
				}
				if funcs.Decode == nil {
					return a, nil
				}
				if err := funcs.Decode(&a, name, name, text); err != nil {
					return a, err
				}
				return a, nil
			},
			Set: func(dst, src *attr.Attribute, op attr.Op) error {
				return funcs.Set(dst, src, op)
			},
		}
		if d.Action != nil {
			action := d.Action
			rf.Action = func(res, owning *attr.Attribute, mode attr.ActionMode) error {
				return action(res, owning, nil, "", mode)
			}
		}
		return rf, true
	}
}
