// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package config

import "errors"

var (
	// ErrMissingListenAddr is returned when the wire-protocol listen address is not set.
	ErrMissingListenAddr = errors.New("listen address is required")

	// ErrMissingStoreDSN is returned when no backing store is configured.
	ErrMissingStoreDSN = errors.New("store DSN is required")

	// ErrInvalidTimeout is returned when the timeout is invalid.
	ErrInvalidTimeout = errors.New("timeout must be greater than 0")

	// ErrInvalidMaxRetries is returned when max retries is invalid.
	ErrInvalidMaxRetries = errors.New("max retries must be greater than or equal to 0")
)
