// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package resource

import (
	"strconv"
	"strings"

	"github.com/jontk/batchsched/pkg/errors"
)

// Chunk is one "[count:]key=value[:key=value...]" unit of a select
// string.
type Chunk struct {
	Count int
	KV    map[string]string
	// Order preserves the key=value ordering as written, for round-trip
	// encoding.
	Order []string
}

// ParseSelect parses a "+"-joined sequence of chunks.
func ParseSelect(text string) ([]Chunk, error) {
	if text == "" {
		return nil, errors.New(errors.KindBadValue, "empty select string")
	}
	parts := strings.Split(text, "+")
	chunks := make([]Chunk, 0, len(parts))
	for _, p := range parts {
		c, err := parseChunk(p)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, nil
}

func parseChunk(s string) (Chunk, error) {
	c := Chunk{Count: 1, KV: map[string]string{}}
	fields := strings.Split(s, ":")
	if len(fields) == 0 {
		return c, errors.Newf(errors.KindBadValue, "empty select chunk")
	}

	first := fields[0]
	rest := fields
	if !strings.Contains(first, "=") {
		n, err := strconv.Atoi(first)
		if err != nil || n <= 0 {
			return c, errors.Newf(errors.KindBadValue, "bad chunk count %q", first)
		}
		c.Count = n
		rest = fields[1:]
	}

	if len(rest) == 0 {
		return c, errors.New(errors.KindBadValue, "select chunk has no key=value pairs")
	}
	for _, kv := range rest {
		eq := strings.IndexByte(kv, '=')
		if eq < 0 {
			return c, errors.Newf(errors.KindBadValue, "bad chunk field %q (expected key=value)", kv)
		}
		k, v := kv[:eq], kv[eq+1:]
		if k == "" {
			return c, errors.Newf(errors.KindBadValue, "bad chunk field %q", kv)
		}
		c.KV[k] = v
		c.Order = append(c.Order, k)
	}
	return c, nil
}

// ValidateAOEConsistency enforces the aoe= uniformity rule: aoe is
// all-or-nothing across chunks and single-valued within a job. Chunks
// that omit aoe entirely are fine only if *no* chunk sets
// it; once any chunk sets aoe, every chunk must set the identical value.
func ValidateAOEConsistency(chunks []Chunk) error {
	return validateUniformTag(chunks, "aoe", errors.KindAOEChunkMismatch)
}

// ValidateEOEConsistency mirrors ValidateAOEConsistency for eoe=.
func ValidateEOEConsistency(chunks []Chunk) error {
	return validateUniformTag(chunks, "eoe", errors.KindAOEChunkMismatch)
}

func validateUniformTag(chunks []Chunk, tag string, kind errors.Kind) error {
	var want string
	seen := false
	for _, c := range chunks {
		v, has := c.KV[tag]
		if !has {
			continue
		}
		if !seen {
			want = v
			seen = true
			continue
		}
		if v != want {
			return errors.Newf(kind, "%s mismatch across select chunks: %q vs %q", tag, want, v)
		}
	}
	if !seen {
		return nil
	}
	for _, c := range chunks {
		if _, has := c.KV[tag]; !has {
			return errors.Newf(kind, "%s set on some but not all select chunks", tag)
		}
	}
	return nil
}

// DeriveNodeCount computes nodect from a parsed select string: the sum of
// each chunk's count.
func DeriveNodeCount(chunks []Chunk) int {
	total := 0
	for _, c := range chunks {
		total += c.Count
	}
	return total
}

// DeriveNCPUs computes the derived ncpus value following the chunk's
// per-chunk cpp (cpus-per-chunk) when present, enforcing "if it is set
// and the select has an explicit per-chunk cpp, it must equal ncpus;
// otherwise ncpus mod task-count must be 0".
func DeriveNCPUs(chunks []Chunk, explicitNCPUs *int, taskCount int) (int, error) {
	sumCPP := 0
	haveCPP := false
	for _, c := range chunks {
		if v, ok := c.KV["ncpus"]; ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return 0, errors.Newf(errors.KindBadValue, "bad per-chunk ncpus %q", v)
			}
			sumCPP += n * c.Count
			haveCPP = true
		}
	}

	if explicitNCPUs != nil {
		if haveCPP && *explicitNCPUs != sumCPP {
			return 0, errors.Newf(errors.KindBadValue, "ncpus %d does not match select's per-chunk total %d", *explicitNCPUs, sumCPP)
		}
		if taskCount > 0 && *explicitNCPUs%taskCount != 0 {
			return 0, errors.Newf(errors.KindBadValue, "ncpus %d is not a multiple of task count %d", *explicitNCPUs, taskCount)
		}
		return *explicitNCPUs, nil
	}
	if haveCPP {
		return sumCPP, nil
	}
	return DeriveNodeCount(chunks), nil
}
