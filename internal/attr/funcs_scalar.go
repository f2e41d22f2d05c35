// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package attr

import (
	"strconv"
	"strings"
	"time"

	"github.com/jontk/batchsched/pkg/errors"
)

// newBoolFuncs backs boolean attributes. SET assigns, INCR is logical
// OR, DECR is AND-NOT; property-tested in bool_test.go as a left fold
// over SET/INCR/DECR sequences.
func newBoolFuncs() Funcs {
	return Funcs{
		Decode: func(a *Attribute, name, resourceName, text string) error {
			v, err := parseBool(text)
			if err != nil {
				return err
			}
			a.Payload = v
			a.Flags |= FlagSet
			return nil
		},
		Encode: func(a *Attribute, name, resourceName string) []EncodedEntry {
			if !a.IsSet() {
				return nil
			}
			v := a.Payload.(bool)
			s := "False"
			if v {
				s = "True"
			}
			return []EncodedEntry{{Name: name, Resource: resourceName, Value: s}}
		},
		Set: func(dst, src *Attribute, op Op) error {
			sv, _ := src.Payload.(bool)
			dv, _ := dst.Payload.(bool)
			switch op {
			case OpSet:
				dst.Payload = sv
			case OpIncr:
				dst.Payload = dv || sv
			case OpDecr:
				dst.Payload = dv && !sv
			}
			dst.Flags |= FlagSet
			return nil
		},
		Compare: func(a, b *Attribute) int {
			av, _ := a.Payload.(bool)
			bv, _ := b.Payload.(bool)
			if av == bv {
				return 0
			}
			if av {
				return 1
			}
			return -1
		},
		Free: func(a *Attribute) {
			a.Payload = nil
			a.Flags &^= FlagSet
		},
	}
}

func parseBool(text string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "true", "t", "1", "y", "yes":
		return true, nil
	case "false", "f", "0", "n", "no", "":
		return false, nil
	default:
		return false, errors.Newf(errors.KindBadValue, "not a boolean: %q", text)
	}
}

// newLongFuncs backs plain integer attributes (priority, run counts, ...).
func newLongFuncs() Funcs {
	return Funcs{
		Decode: func(a *Attribute, name, resourceName, text string) error {
			v, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
			if err != nil {
				return errors.Newf(errors.KindBadValue, "not an integer: %q", text)
			}
			a.Payload = v
			a.Flags |= FlagSet
			return nil
		},
		Encode: func(a *Attribute, name, resourceName string) []EncodedEntry {
			if !a.IsSet() {
				return nil
			}
			return []EncodedEntry{{Name: name, Resource: resourceName, Value: strconv.FormatInt(a.Payload.(int64), 10)}}
		},
		Set: func(dst, src *Attribute, op Op) error {
			sv, _ := src.Payload.(int64)
			switch op {
			case OpSet:
				dst.Payload = sv
			case OpIncr:
				dv, _ := dst.Payload.(int64)
				dst.Payload = dv + sv
			case OpDecr:
				dv, _ := dst.Payload.(int64)
				dst.Payload = dv - sv
			}
			dst.Flags |= FlagSet
			return nil
		},
		Compare: func(a, b *Attribute) int {
			av, _ := a.Payload.(int64)
			bv, _ := b.Payload.(int64)
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			default:
				return 0
			}
		},
		Free: func(a *Attribute) { a.Payload = nil; a.Flags &^= FlagSet },
	}
}

func newFloatFuncs() Funcs {
	return Funcs{
		Decode: func(a *Attribute, name, resourceName, text string) error {
			v, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
			if err != nil {
				return errors.Newf(errors.KindBadValue, "not a float: %q", text)
			}
			a.Payload = v
			a.Flags |= FlagSet
			return nil
		},
		Encode: func(a *Attribute, name, resourceName string) []EncodedEntry {
			if !a.IsSet() {
				return nil
			}
			return []EncodedEntry{{Name: name, Resource: resourceName, Value: strconv.FormatFloat(a.Payload.(float64), 'g', -1, 64)}}
		},
		Set: func(dst, src *Attribute, op Op) error {
			sv, _ := src.Payload.(float64)
			switch op {
			case OpSet:
				dst.Payload = sv
			case OpIncr:
				dv, _ := dst.Payload.(float64)
				dst.Payload = dv + sv
			case OpDecr:
				dv, _ := dst.Payload.(float64)
				dst.Payload = dv - sv
			}
			dst.Flags |= FlagSet
			return nil
		},
		Compare: func(a, b *Attribute) int {
			av, _ := a.Payload.(float64)
			bv, _ := b.Payload.(float64)
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			default:
				return 0
			}
		},
		Free: func(a *Attribute) { a.Payload = nil; a.Flags &^= FlagSet },
	}
}

// newCharFuncs backs single-character attributes (job state letter, queue
// type letter).
func newCharFuncs() Funcs {
	return Funcs{
		Decode: func(a *Attribute, name, resourceName, text string) error {
			if len(text) != 1 {
				return errors.Newf(errors.KindBadValue, "not a single character: %q", text)
			}
			a.Payload = text[0]
			a.Flags |= FlagSet
			return nil
		},
		Encode: func(a *Attribute, name, resourceName string) []EncodedEntry {
			if !a.IsSet() {
				return nil
			}
			return []EncodedEntry{{Name: name, Resource: resourceName, Value: string(a.Payload.(byte))}}
		},
		Set: func(dst, src *Attribute, op Op) error {
			dst.Payload = src.Payload
			dst.Flags |= FlagSet
			return nil
		},
		Compare: func(a, b *Attribute) int {
			av, _ := a.Payload.(byte)
			bv, _ := b.Payload.(byte)
			return int(av) - int(bv)
		},
		Free: func(a *Attribute) { a.Payload = nil; a.Flags &^= FlagSet },
	}
}

// newStringFuncs implements SET/replace, INCR/concat,
// DECR/substring-remove.
func newStringFuncs() Funcs {
	return Funcs{
		Decode: func(a *Attribute, name, resourceName, text string) error {
			a.Payload = text
			a.Flags |= FlagSet
			return nil
		},
		Encode: func(a *Attribute, name, resourceName string) []EncodedEntry {
			if !a.IsSet() {
				return nil
			}
			return []EncodedEntry{{Name: name, Resource: resourceName, Value: a.Payload.(string)}}
		},
		Set: func(dst, src *Attribute, op Op) error {
			sv, _ := src.Payload.(string)
			switch op {
			case OpSet:
				dst.Payload = sv
			case OpIncr:
				dv, _ := dst.Payload.(string)
				dst.Payload = dv + sv
			case OpDecr:
				dv, _ := dst.Payload.(string)
				dst.Payload = strings.ReplaceAll(dv, sv, "")
			}
			dst.Flags |= FlagSet
			return nil
		},
		Compare: func(a, b *Attribute) int {
			av, _ := a.Payload.(string)
			bv, _ := b.Payload.(string)
			return strings.Compare(av, bv)
		},
		Free: func(a *Attribute) { a.Payload = nil; a.Flags &^= FlagSet },
	}
}

// newDurationFuncs backs walltime-shaped attributes. Accepts both a bare
// integer-seconds form and "[[HH:]MM:]SS".
func newDurationFuncs() Funcs {
	return Funcs{
		Decode: func(a *Attribute, name, resourceName, text string) error {
			d, err := ParseDuration(text)
			if err != nil {
				return err
			}
			a.Payload = d
			a.Flags |= FlagSet
			return nil
		},
		Encode: func(a *Attribute, name, resourceName string) []EncodedEntry {
			if !a.IsSet() {
				return nil
			}
			return []EncodedEntry{{Name: name, Resource: resourceName, Value: FormatDuration(a.Payload.(time.Duration))}}
		},
		Set: func(dst, src *Attribute, op Op) error {
			sv, _ := src.Payload.(time.Duration)
			switch op {
			case OpSet:
				dst.Payload = sv
			case OpIncr:
				dv, _ := dst.Payload.(time.Duration)
				dst.Payload = dv + sv
			case OpDecr:
				dv, _ := dst.Payload.(time.Duration)
				dst.Payload = dv - sv
			}
			dst.Flags |= FlagSet
			return nil
		},
		Compare: func(a, b *Attribute) int {
			av, _ := a.Payload.(time.Duration)
			bv, _ := b.Payload.(time.Duration)
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			default:
				return 0
			}
		},
		Free: func(a *Attribute) { a.Payload = nil; a.Flags &^= FlagSet },
	}
}

// ParseDuration parses "[[HH:]MM:]SS" or a bare seconds integer into a
// time.Duration, the wire form walltime/soft_walltime/min_walltime use.
func ParseDuration(text string) (time.Duration, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, errors.New(errors.KindBadValue, "empty duration value")
	}
	if !strings.Contains(text, ":") {
		secs, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return 0, errors.Newf(errors.KindBadValue, "not a duration: %q", text)
		}
		return time.Duration(secs) * time.Second, nil
	}
	parts := strings.Split(text, ":")
	if len(parts) > 3 {
		return 0, errors.Newf(errors.KindBadValue, "not a duration: %q", text)
	}
	var total int64
	for _, p := range parts {
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return 0, errors.Newf(errors.KindBadValue, "not a duration: %q", text)
		}
		total = total*60 + v
	}
	return time.Duration(total) * time.Second, nil
}

// FormatDuration renders a time.Duration as HH:MM:SS, matching PBS walltime
// display convention.
func FormatDuration(d time.Duration) string {
	secs := int64(d / time.Second)
	neg := secs < 0
	if neg {
		secs = -secs
	}
	h := secs / 3600
	m := (secs % 3600) / 60
	s := secs % 60
	sign := ""
	if neg {
		sign = "-"
	}
	return sign + pad2(h) + ":" + pad2(m) + ":" + pad2(s)
}

func pad2(v int64) string {
	s := strconv.FormatInt(v, 10)
	if len(s) < 2 {
		return "0" + s
	}
	return s
}

// newTimeFuncs backs absolute-time attributes (execution_time, ctime,
// reservation start/end).
func newTimeFuncs() Funcs {
	return Funcs{
		Decode: func(a *Attribute, name, resourceName, text string) error {
			text = strings.TrimSpace(text)
			if unix, err := strconv.ParseInt(text, 10, 64); err == nil {
				a.Payload = time.Unix(unix, 0).UTC()
				a.Flags |= FlagSet
				return nil
			}
			t, err := time.Parse(time.RFC3339, text)
			if err != nil {
				return errors.Newf(errors.KindBadTimeSpec, "not a time: %q", text)
			}
			a.Payload = t.UTC()
			a.Flags |= FlagSet
			return nil
		},
		Encode: func(a *Attribute, name, resourceName string) []EncodedEntry {
			if !a.IsSet() {
				return nil
			}
			t := a.Payload.(time.Time)
			return []EncodedEntry{{Name: name, Resource: resourceName, Value: strconv.FormatInt(t.Unix(), 10)}}
		},
		Set: func(dst, src *Attribute, op Op) error {
			dst.Payload = src.Payload
			dst.Flags |= FlagSet
			return nil
		},
		Compare: func(a, b *Attribute) int {
			av, _ := a.Payload.(time.Time)
			bv, _ := b.Payload.(time.Time)
			switch {
			case av.Before(bv):
				return -1
			case av.After(bv):
				return 1
			default:
				return 0
			}
		},
		Free: func(a *Attribute) { a.Payload = nil; a.Flags &^= FlagSet },
	}
}
