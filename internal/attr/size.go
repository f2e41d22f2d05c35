// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package attr

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jontk/batchsched/pkg/errors"
)

// ParseSizeKB parses a PBS-style size string into kilobytes.
// Accepted suffixes are {k,m,g,t,p}{b,w}, case-insensitive, with one "w"
// (word) equal to 8 bytes. A bare number with no suffix is taken as bytes.
func ParseSizeKB(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New(errors.KindBadValue, "empty size value")
	}
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	i := 0
	for i < len(s) && (s[i] >= '0' && s[i] <= '9' || s[i] == '.') {
		i++
	}
	if i == 0 {
		return 0, errors.Newf(errors.KindBadValue, "size %q has no numeric prefix", s)
	}
	numStr, suffix := s[:i], strings.ToLower(s[i:])

	val, err := strconv.ParseFloat(numStr, 64)
	if err != nil {
		return 0, errors.Newf(errors.KindBadValue, "size %q has invalid number: %v", s, err)
	}

	var multBytes float64 = 1
	unit := suffix
	switch {
	case unit == "":
		multBytes = 1
	case len(unit) >= 1:
		scale, word, ok := sizeScale(unit)
		if !ok {
			return 0, errors.Newf(errors.KindBadValue, "size %q has unknown suffix %q", s, suffix)
		}
		if word {
			multBytes = scale * 8
		} else {
			multBytes = scale
		}
	}

	bytes := val * multBytes
	kb := int64(bytes / 1024)
	if bytes > 0 && kb == 0 {
		kb = 1 // round any non-zero sub-KB amount up to 1 KB, matching
		// values are stored at kilobyte granularity.
	}
	if neg {
		kb = -kb
	}
	return kb, nil
}

// sizeScale returns the byte multiplier for a {k,m,g,t,p}{b,w} suffix and
// whether the unit letter was 'w' (word, 8 bytes) rather than 'b' (byte).
func sizeScale(unit string) (scale float64, word bool, ok bool) {
	if len(unit) == 0 {
		return 1, false, true
	}
	letter := unit[0]
	var base float64
	switch letter {
	case 'k':
		base = 1 << 10
	case 'm':
		base = 1 << 20
	case 'g':
		base = 1 << 30
	case 't':
		base = 1 << 40
	case 'p':
		base = 1 << 50
	default:
		return 0, false, false
	}
	kind := "b"
	if len(unit) > 1 {
		kind = unit[1:]
	}
	switch kind {
	case "b":
		return base, false, true
	case "w":
		return base, true, true
	default:
		return 0, false, false
	}
}

// FormatSizeKB renders kilobytes back into the canonical "Nkb" string
// form used by Encode; round-trips with ParseSizeKB.
func FormatSizeKB(kb int64) string {
	return fmt.Sprintf("%dkb", kb)
}

func newSizeFuncs() Funcs {
	return Funcs{
		Decode: func(a *Attribute, name, resourceName, text string) error {
			kb, err := ParseSizeKB(text)
			if err != nil {
				return err
			}
			a.Payload = kb
			a.Flags |= FlagSet
			return nil
		},
		Encode: func(a *Attribute, name, resourceName string) []EncodedEntry {
			if !a.IsSet() {
				return nil
			}
			return []EncodedEntry{{Name: name, Resource: resourceName, Value: FormatSizeKB(a.Payload.(int64))}}
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
		Free: func(a *Attribute) {
			a.Payload = nil
			a.Flags &^= FlagSet
		},
	}
}
