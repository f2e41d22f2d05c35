// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package resource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// property: to_kb(to_string(x)) == x for x in
// {0, 1, 1023, 1024, 1 GiB, 1 TiB} -- expressed in kilobytes, since that
// is the storage unit ParseSize/FormatSize operate in.
func TestSizeRoundTrip(t *testing.T) {
	cases := []int64{0, 1, 1023, 1024, 1 << 20, 1 << 30}
	for _, kb := range cases {
		s := FormatSize(kb)
		got, err := ParseSize(s)
		require.NoError(t, err)
		assert.Equal(t, kb, got, "round trip of %d kb via %q", kb, s)
	}
}

func TestSizeSuffixes(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"1024", 1},
		{"1kb", 1},
		{"1mb", 1024},
		{"1gb", 1024 * 1024},
		{"1tb", 1024 * 1024 * 1024},
		{"1pb", 1024 * 1024 * 1024 * 1024},
		{"1kw", 8},
		{"1mw", 8 * 1024},
	}
	for _, c := range cases {
		got, err := ParseSize(c.in)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.want, got, c.in)
	}
}

func TestSizeRejectsGarbage(t *testing.T) {
	_, err := ParseSize("not-a-size")
	assert.Error(t, err)
	_, err = ParseSize("")
	assert.Error(t, err)
}
