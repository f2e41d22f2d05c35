// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package jobstate

import "github.com/jontk/batchsched/internal/attr"

func stringAttr(v string) attr.Attribute {
	return attr.Attribute{Type: attr.TypeString, Payload: v, Flags: attr.FlagSet}
}

func longAttr(v int64) attr.Attribute {
	return attr.Attribute{Type: attr.TypeLong, Payload: v, Flags: attr.FlagSet}
}

func strArrayAttr(v []string) attr.Attribute {
	if len(v) == 0 {
		return attr.Attribute{Type: attr.TypeStrArray}
	}
	return attr.Attribute{Type: attr.TypeStrArray, Payload: v, Flags: attr.FlagSet}
}
