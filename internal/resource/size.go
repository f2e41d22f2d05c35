// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package resource

import "github.com/jontk/batchsched/internal/attr"

// ParseSize and FormatSize are thin re-exports of attr's kilobyte-unit
// size codec (internal/attr/size.go), kept here too since resource is
// where callers reach for select/place/size parsing together. Accepts
// the full {k,m,g,t,p}{b,w} suffix set with 1w = 8 bytes.
func ParseSize(s string) (int64, error) { return attr.ParseSizeKB(s) }

func FormatSize(kb int64) string { return attr.FormatSizeKB(kb) }
