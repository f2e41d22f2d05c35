// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package wire implements the length-counted, self-describing wire
// primitives the batch protocol exchanges over its request channel:
// every integer is framed as a '+'-prefixed digit count, the count
// itself framed recursively until it fits in one digit, followed by
// the decimal digits; counted strings are a framed unsigned length
// followed by the raw bytes. Decoding an unsigned field fails on a
// leading '-'.
package wire

import (
	"bufio"
	"io"
	"strconv"

	"github.com/jontk/batchsched/pkg/errors"
)

const (
	signPositive byte = '+'
	signNegative byte = '-'
)

// WriteUint writes v as its decimal digits preceded by the digit
// count, the count written recursively: every count is prefixed by
// '+', and a count of more than one digit is itself preceded by its
// own count. The innermost count is always a single digit, so a
// reader starts expecting one digit and widens as '+' prefixes
// repeat; the value digits carry no prefix, which is what ends the
// count chain.
func WriteUint(w *bufio.Writer, v uint64) error {
	digits := strconv.FormatUint(v, 10)
	if err := writeCount(w, len(digits)); err != nil {
		return err
	}
	_, err := w.WriteString(digits)
	return err
}

func writeCount(w *bufio.Writer, n int) error {
	s := strconv.Itoa(n)
	if len(s) > 1 {
		if err := writeCount(w, len(s)); err != nil {
			return err
		}
	}
	if err := w.WriteByte(signPositive); err != nil {
		return err
	}
	_, err := w.WriteString(s)
	return err
}

// WriteLong writes a signed value as a sign byte followed by the
// unsigned magnitude.
func WriteLong(w *bufio.Writer, v int64) error {
	sign := signPositive
	mag := uint64(v)
	if v < 0 {
		sign = signNegative
		mag = uint64(-v)
	}
	if err := w.WriteByte(sign); err != nil {
		return err
	}
	return WriteUint(w, mag)
}

// WriteString writes a counted string: its byte length framed as an
// unsigned int, then the raw bytes.
func WriteString(w *bufio.Writer, s string) error {
	if err := WriteUint(w, uint64(len(s))); err != nil {
		return err
	}
	_, err := w.WriteString(s)
	return err
}

// maxUintDigits bounds any plausible digit count: a uint64's decimal
// form never exceeds 20 digits, and counts nest below that.
const maxUintDigits = 20

// ReadUint decodes a value written by WriteUint. A leading '-' is a
// decode failure: there is no negative in an unsigned context.
func ReadUint(r *bufio.Reader) (uint64, error) {
	count := 0
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, errors.Newf(errors.KindInternal, "wire: short read on uint: %v", err)
		}
		switch {
		case b == signNegative:
			return 0, errors.New(errors.KindBadValue, "wire: negative value in unsigned context")
		case b == signPositive:
			width := count
			if width == 0 {
				width = 1
			}
			n, err := readDigits(r, width)
			if err != nil {
				return 0, err
			}
			if n < 1 || n > maxUintDigits {
				return 0, errors.Newf(errors.KindInternal, "wire: implausible digit count %d", n)
			}
			count = int(n)
		case b >= '0' && b <= '9':
			if count == 0 {
				return 0, errors.Newf(errors.KindInternal, "wire: uint digits with no preceding count")
			}
			if err := r.UnreadByte(); err != nil {
				return 0, errors.Newf(errors.KindInternal, "wire: unread failed: %v", err)
			}
			return readDigits(r, count)
		default:
			return 0, errors.Newf(errors.KindInternal, "wire: bad uint byte %q", b)
		}
	}
}

func readDigits(r *bufio.Reader, n int) (uint64, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, errors.Newf(errors.KindInternal, "wire: short read on uint digits: %v", err)
	}
	v, err := strconv.ParseUint(string(buf), 10, 64)
	if err != nil {
		return 0, errors.Newf(errors.KindInternal, "wire: malformed uint digits %q: %v", buf, err)
	}
	return v, nil
}

// ReadLong decodes a value written by WriteLong.
func ReadLong(r *bufio.Reader) (int64, error) {
	sign, err := r.ReadByte()
	if err != nil {
		return 0, errors.Newf(errors.KindInternal, "wire: short read on sign byte: %v", err)
	}
	if sign != signPositive && sign != signNegative {
		return 0, errors.Newf(errors.KindInternal, "wire: bad sign byte %q", sign)
	}
	mag, err := ReadUint(r)
	if err != nil {
		return 0, err
	}
	if sign == signNegative {
		return -int64(mag), nil
	}
	return int64(mag), nil
}

// ReadString decodes a value written by WriteString.
func ReadString(r *bufio.Reader) (string, error) {
	n, err := ReadUint(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", errors.Newf(errors.KindInternal, "wire: short read on counted string body: %v", err)
	}
	return string(buf), nil
}

