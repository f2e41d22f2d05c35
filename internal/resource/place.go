// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package resource

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/jontk/batchsched/pkg/errors"
)

// PlaceGroup is the mutually-exclusive keyword group a placement
// keyword belongs to.
type PlaceGroup int

const (
	GroupArrangement PlaceGroup = iota + 1 // free, pack, scatter, vscatter
	GroupSharing                           // excl, exclhost, shared
)

// keywordFolder gives Unicode-correct case folding for the
// case-insensitive keyword match.
var keywordFolder = cases.Fold()

// placeWords maps each placement keyword to its exclusive group.
var placeWords = map[string]PlaceGroup{
	"free":     GroupArrangement,
	"pack":     GroupArrangement,
	"scatter":  GroupArrangement,
	"vscatter": GroupArrangement,
	"excl":     GroupSharing,
	"exclhost": GroupSharing,
	"shared":   GroupSharing,
}

// ExistsFunc resolves whether a name is a known string or array-of-strings
// resource, for validating place's "group=resource" form.
type ExistsFunc func(name string) (isStringOrArray bool)

// Place is the parsed result of a place string.
type Place struct {
	Arrangement string // "" if unspecified
	Sharing     string // "" if unspecified
	Group       string // resource name from group=, "" if unspecified
}

// ParsePlace parses a colon-separated place spec.
// exists is used to validate "group=resource"; pass nil to skip that
// check (e.g. when the catalog isn't available yet, such as in
// unit tests exercising only group-conflict detection).
func ParsePlace(text string, exists ExistsFunc) (Place, error) {
	var p Place
	if text == "" {
		return p, nil
	}
	seenGroup := map[PlaceGroup]bool{}
	for _, kw := range strings.Split(text, ":") {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		if strings.HasPrefix(keywordFolder.String(kw), "group=") {
			if p.Group != "" {
				return p, errors.New(errors.KindBadValue, "duplicate group= in place spec")
			}
			resName := kw[len("group="):]
			if resName == "" {
				return p, errors.New(errors.KindBadValue, "group= requires a resource name")
			}
			if exists != nil && !exists(resName) {
				return p, errors.Newf(errors.KindBadValue, "group= resource %q must be a string or array-of-strings resource", resName)
			}
			p.Group = resName
			continue
		}
		lower := keywordFolder.String(kw)
		group, ok := placeWords[lower]
		if !ok {
			return p, errors.Newf(errors.KindBadValue, "unknown place keyword %q", kw)
		}
		if seenGroup[group] {
			return p, errors.Newf(errors.KindBadValue, "duplicate placement keyword in group for %q", kw)
		}
		seenGroup[group] = true
		switch group {
		case GroupArrangement:
			p.Arrangement = lower
		case GroupSharing:
			p.Sharing = lower
		}
	}
	return p, nil
}
