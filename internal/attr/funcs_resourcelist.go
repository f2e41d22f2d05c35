// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package attr

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// ResourceFuncs is the per-resource hook set internal/resource registers
// for one catalog resource: typed decode, typed set, and the optional
// action fired after a successful set. A non-nil Action error rejects
// the mutation and rolls back the whole atomic batch.
type ResourceFuncs struct {
	Decode func(text string) (Attribute, error)
	Set    func(dst, src *Attribute, op Op) error
	Action func(res, owning *Attribute, mode ActionMode) error
}

// ResourceFuncsLookup is supplied by internal/resource at init time so the
// attr-level resource-list Set/Decode can recurse into per-resource
// Decode/Set/Action without attr importing resource (which itself embeds
// attr.Attribute and would create an import cycle).
var ResourceFuncsLookup func(resourceName string) (ResourceFuncs, bool)

// newResourceListFuncs recurses per resource on Set. Decode parses a single
// "name=value" pair (the request processor splits a select/chunk string
// into individual resource assignments before calling Decode once per
// resource); Set merges src's entries into dst, recursing into each
// resource's own Set semantics when both sides already have the entry.
func newResourceListFuncs() Funcs {
	return Funcs{
		Decode: func(a *Attribute, name, resourceName, text string) error {
			var entry *Attribute
			if ResourceFuncsLookup != nil {
				if rf, ok := ResourceFuncsLookup(resourceName); ok && rf.Decode != nil {
					parsed, err := rf.Decode(text)
					if err != nil {
						return err
					}
					entry = &parsed
				}
			}
			if entry == nil {
				// Unknown-to-resource-package fallback: store the raw
				// string so callers with no registered resource funcs
				// (e.g. unit tests) still round-trip.
				e := Zero(TypeString)
				e.Payload = text
				e.Flags |= FlagSet
				entry = &e
			}
			if a.Payload == nil {
				a.Payload = ResourceListValue{Entries: map[string]*Attribute{}}
			}
			rl := a.Payload.(ResourceListValue)
			rl.Entries[resourceName] = entry
			a.Payload = rl
			a.Flags |= FlagSet
			return nil
		},
		Encode: func(a *Attribute, name, resourceName string) []EncodedEntry {
			if !a.IsSet() {
				return nil
			}
			rl, _ := a.Payload.(ResourceListValue)
			names := make([]string, 0, len(rl.Entries))
			for n := range rl.Entries {
				names = append(names, n)
			}
			sort.Strings(names)
			var entries []EncodedEntry
			for _, n := range names {
				entries = append(entries, EncodedEntry{Name: name, Resource: n, Value: encodeRawEntry(rl.Entries[n])})
			}
			return entries
		},
		Set: func(dst, src *Attribute, op Op) error {
			if dst.Payload == nil {
				dst.Payload = ResourceListValue{Entries: map[string]*Attribute{}}
			}
			drl := dst.Payload.(ResourceListValue)
			srl, _ := src.Payload.(ResourceListValue)
			if op == OpSet && len(srl.Entries) == 0 && len(drl.Entries) > 0 {
				// whole-list replace with empty: clear.
				drl = ResourceListValue{Entries: map[string]*Attribute{}}
			}
			for name, sv := range srl.Entries {
				var rf ResourceFuncs
				known := false
				if ResourceFuncsLookup != nil {
					rf, known = ResourceFuncsLookup(name)
				}

				if op == OpDecr {
					if existing, has := drl.Entries[name]; has && known && rf.Action != nil {
						if err := rf.Action(existing, dst, ActionFree); err != nil {
							return err
						}
					}
					delete(drl.Entries, name)
					continue
				}

				entry, has := drl.Entries[name]
				if !has {
					c := sv.Clone()
					drl.Entries[name] = &c
					entry = &c
				} else if known && rf.Set != nil {
					if err := rf.Set(entry, sv, op); err != nil {
						return err
					}
				} else {
					*entry = sv.Clone()
				}

				// The resource's action fires after every successful set;
				// a rejection fails the whole mutation.
				if known && rf.Action != nil {
					if err := rf.Action(entry, dst, ActionAlter); err != nil {
						return err
					}
				}
			}
			dst.Payload = drl
			dst.Flags |= FlagSet
			return nil
		},
		Compare: func(a, b *Attribute) int {
			arl, _ := a.Payload.(ResourceListValue)
			brl, _ := b.Payload.(ResourceListValue)
			if d := len(arl.Entries) - len(brl.Entries); d != 0 {
				return d
			}
			for name, ae := range arl.Entries {
				be, ok := brl.Entries[name]
				if !ok {
					return 1
				}
				if c := strings.Compare(encodeRawEntry(ae), encodeRawEntry(be)); c != 0 {
					return c
				}
			}
			return 0
		},
		Free: func(a *Attribute) { a.Payload = nil; a.Flags &^= FlagSet },
	}
}

func encodeRawEntry(a *Attribute) string {
	if a == nil || !a.IsSet() {
		return ""
	}
	switch v := a.Payload.(type) {
	case string:
		return v
	case []string:
		return strings.Join(v, ",")
	case int64:
		if a.Type == TypeSize {
			return FormatSizeKB(v)
		}
		return strconv.FormatInt(v, 10)
	case time.Duration:
		return FormatDuration(v)
	default:
		return ""
	}
}

// newEntitySetFuncs backs entity-reference attributes: a job's queue link,
// a reservation's job-membership set. The payload is a slice of opaque
// identity strings (the referenced entity's QuickSave.Name).
func newEntitySetFuncs() Funcs {
	return Funcs{
		Decode: func(a *Attribute, name, resourceName, text string) error {
			a.Payload = splitQuotedCSV(text)
			a.Flags |= FlagSet
			return nil
		},
		Encode: func(a *Attribute, name, resourceName string) []EncodedEntry {
			if !a.IsSet() {
				return nil
			}
			vals, _ := a.Payload.([]string)
			entries := make([]EncodedEntry, 0, len(vals))
			for _, v := range vals {
				entries = append(entries, EncodedEntry{Name: name, Resource: resourceName, Value: v})
			}
			return entries
		},
		Set: func(dst, src *Attribute, op Op) error {
			sv, _ := src.Payload.([]string)
			dv, _ := dst.Payload.([]string)
			switch op {
			case OpSet:
				dst.Payload = append([]string(nil), sv...)
			case OpIncr:
				dst.Payload = unionStrings(dv, sv)
			case OpDecr:
				dst.Payload = removeStrings(dv, sv)
			}
			dst.Flags |= FlagSet
			return nil
		},
		Compare: func(a, b *Attribute) int {
			av, _ := a.Payload.([]string)
			bv, _ := b.Payload.([]string)
			if len(av) != len(bv) {
				return len(av) - len(bv)
			}
			for i := range av {
				if av[i] != bv[i] {
					return strings.Compare(av[i], bv[i])
				}
			}
			return 0
		},
		Free: func(a *Attribute) { a.Payload = nil; a.Flags &^= FlagSet },
	}
}

// newGenericArrayFuncs backs the catch-all TypeArray (used rarely; most
// array-shaped attributes are TypeStrArray). Delegates to the same
// semantics as TypeStrArray.
func newGenericArrayFuncs() Funcs {
	return newStrArrayFuncs()
}
