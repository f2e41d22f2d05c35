// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package attr

import "strings"

// newStrArrayFuncs backs array-of-strings attributes. SET replaces the
// array outright, INCR unions in new elements (no duplicates), DECR
// removes matching elements. Decode splits on commas honoring quoted
// segments; the
// preempt_targets whole-remainder tie-break is applied one layer up, in
// internal/resource, since it is a resource-specific special case rather
// than a generic array-type behavior.
func newStrArrayFuncs() Funcs {
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

// splitQuotedCSV splits text on commas, treating a double-quoted segment
// as containing no separators.
func splitQuotedCSV(text string) []string {
	var out []string
	var cur strings.Builder
	inQuote := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case c == '"':
			inQuote = !inQuote
		case c == ',' && !inQuote:
			out = append(out, strings.TrimSpace(cur.String()))
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	if cur.Len() > 0 || len(out) > 0 {
		out = append(out, strings.TrimSpace(cur.String()))
	}
	return out
}

func unionStrings(base, add []string) []string {
	seen := make(map[string]bool, len(base))
	out := append([]string(nil), base...)
	for _, v := range base {
		seen[v] = true
	}
	for _, v := range add {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

func removeStrings(base, drop []string) []string {
	dropSet := make(map[string]bool, len(drop))
	for _, v := range drop {
		dropSet[v] = true
	}
	out := make([]string, 0, len(base))
	for _, v := range base {
		if !dropSet[v] {
			out = append(out, v)
		}
	}
	return out
}
