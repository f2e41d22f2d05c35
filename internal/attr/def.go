// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package attr

import "github.com/jontk/batchsched/pkg/errors"

// ActionMode is the lifecycle moment an Action is invoked for.
type ActionMode int

const (
	ActionNew ActionMode = iota
	ActionAlter
	ActionRecov
	ActionFree
)

// Funcs is the per-type function table: the Go encoding of the source's
// per-AttrType C function pointers (decode_b/set_b/comp_b/free_b, ... one
// family per type). Exactly one Funcs value exists per AttrType; it is
// built once by FuncsFor(t) and shared across every Def of that type.
type Funcs struct {
	// Decode parses text into a freshly-cleared attribute. Must either
	// fully populate attr and set FlagSet, or return an error and leave
	// attr untouched.
	Decode func(attr *Attribute, name, resourceName, text string) error

	// Encode appends the attribute's set value(s) to sink as (name,
	// resourceName, value) string triples. No-op when unset.
	Encode func(attr *Attribute, name, resourceName string) []EncodedEntry

	// Set mutates dst using src under op. dst and src share Type.
	Set func(dst, src *Attribute, op Op) error

	// Compare returns <0, 0 or >0. Scalar types follow their natural
	// ordering; array, set and resource-list types first compare their
	// entry counts and return 0 only when both hold the same entries.
	Compare func(a, b *Attribute) int

	// Free releases payload and clears FlagSet (leaves the zero value).
	Free func(attr *Attribute)
}

// EncodedEntry is one (name, resource, value) tuple produced by Encode;
// list-typed attributes (resource lists, string arrays) may produce more
// than one entry per attribute.
type EncodedEntry struct {
	Name     string
	Resource string
	Value    string
}

// ActionFunc validates or reacts to a successful Set on a resource, given
// the owning attribute, the owning entity (opaque to attr — entity package
// passes itself through), the entity kind name, and the lifecycle mode. A
// non-nil error rolls back the whole atomic batch.
type ActionFunc func(res *Attribute, owningAttr *Attribute, owningEntity any, entityKind string, mode ActionMode) error

// Def is the immutable definition of one named attribute: canonical name,
// type, access bitmask, and function table.
type Def struct {
	Name   string
	Type   AttrType
	Access AccessMask
	Funcs  Funcs
	// Action, when non-nil, runs after a successful Set on this
	// attribute (used heavily by resource.Resource; entity-level
	// attributes normally leave this nil).
	Action ActionFunc
}

// CheckAccess enforces write access: daemon-origin updates silently
// skip read-only attributes (return (false, nil)); user-origin updates on
// a read-only attribute return an error. Only write access is checked
// here; the status/encode path checks read access with ReadableBy.
func (d *Def) CheckAccess(priv Privilege, origin Origin) (allowed bool, err error) {
	mask := d.writeMaskFor(priv)
	if mask {
		return true, nil
	}
	if origin == OriginDaemon {
		return false, nil
	}
	return false, errors.New(errors.KindReadOnly, "attribute \""+d.Name+"\" is not writable at this privilege")
}

func (d *Def) writeMaskFor(priv Privilege) bool {
	switch priv {
	case PrivDaemon:
		return d.Access&DaemonWR != 0 || d.Access&MgrWR != 0
	case PrivManager:
		return d.Access&MgrWR != 0
	case PrivOperator:
		return d.Access&OperWR != 0 || d.Access&MgrWR != 0
	default: // PrivUser
		return d.Access&UserWR != 0
	}
}

// ReadableBy reports whether priv may read this attribute (encode path).
func (d *Def) ReadableBy(priv Privilege) bool {
	switch priv {
	case PrivDaemon, PrivManager:
		return d.Access&MgrRD != 0 || d.Access&UserRD != 0 || d.Access&OperRD != 0
	case PrivOperator:
		return d.Access&OperRD != 0 || d.Access&UserRD != 0
	default:
		return d.Access&UserRD != 0
	}
}

// New constructs a freshly-cleared Attribute of this Def's type.
func (d *Def) New() Attribute {
	return Zero(d.Type)
}
