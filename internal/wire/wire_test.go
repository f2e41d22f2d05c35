// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUintRoundTrip(t *testing.T) {
	for _, v := range []uint64{0, 1, 9, 10, 255, 1_000_000, 18446744073709551615} {
		var buf bytes.Buffer
		w := bufio.NewWriter(&buf)
		require.NoError(t, WriteUint(w, v))
		require.NoError(t, w.Flush())

		got, err := ReadUint(bufio.NewReader(&buf))
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestLongRoundTrip(t *testing.T) {
	for _, v := range []int64{0, 1, -1, 42, -42, 9223372036854775807, -9223372036854775808} {
		var buf bytes.Buffer
		w := bufio.NewWriter(&buf)
		require.NoError(t, WriteLong(w, v))
		require.NoError(t, w.Flush())

		got, err := ReadLong(bufio.NewReader(&buf))
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestStringRoundTrip(t *testing.T) {
	for _, s := range []string{"", "a", "job submission request", string(make([]byte, 500))} {
		var buf bytes.Buffer
		w := bufio.NewWriter(&buf)
		require.NoError(t, WriteString(w, s))
		require.NoError(t, w.Flush())

		got, err := ReadString(bufio.NewReader(&buf))
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
}

func TestSequentialFieldsDecodeInOrder(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	require.NoError(t, WriteUint(w, 7))
	require.NoError(t, WriteString(w, "submit"))
	require.NoError(t, WriteLong(w, -3))
	require.NoError(t, w.Flush())

	r := bufio.NewReader(&buf)
	op, err := ReadUint(r)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), op)

	name, err := ReadString(r)
	require.NoError(t, err)
	assert.Equal(t, "submit", name)

	code, err := ReadLong(r)
	require.NoError(t, err)
	assert.Equal(t, int64(-3), code)
}

func TestUintFramingBytes(t *testing.T) {
	for _, tc := range []struct {
		v    uint64
		wire string
	}{
		{0, "+10"},
		{7, "+17"},
		{42, "+242"},
		{12345, "+512345"},
		{12345678901, "+2+1112345678901"},
	} {
		var buf bytes.Buffer
		w := bufio.NewWriter(&buf)
		require.NoError(t, WriteUint(w, tc.v))
		require.NoError(t, w.Flush())
		assert.Equal(t, tc.wire, buf.String(), "framing of %d", tc.v)
	}
}

func TestReadUintRejectsNegative(t *testing.T) {
	// A signed value on the wire must not decode in an unsigned context.
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	require.NoError(t, WriteLong(w, -5))
	require.NoError(t, w.Flush())

	_, err := ReadUint(bufio.NewReader(&buf))
	require.Error(t, err)
}

func TestReadUintRejectsGarbageHeader(t *testing.T) {
	for _, garbage := range []string{"9garbage", "garbage", "+x7", ""} {
		r := bufio.NewReader(bytes.NewReader([]byte(garbage)))
		_, err := ReadUint(r)
		require.Error(t, err, "input %q", garbage)
	}
}
