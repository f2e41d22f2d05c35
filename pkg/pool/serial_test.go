// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package pool

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	closed  bool
	pingErr error
}

func (f *fakeConn) Close() error { f.closed = true; return nil }
func (f *fakeConn) Ping(ctx context.Context) error { return f.pingErr }

func TestSerialPoolOpensOnce(t *testing.T) {
	opens := 0
	opener := func(ctx context.Context) (Conn, error) {
		opens++
		return &fakeConn{}, nil
	}
	p := NewSerialPool(opener, nil, nil)

	c1, err := p.Acquire(context.Background())
	require.NoError(t, err)
	p.Release()

	c2, err := p.Acquire(context.Background())
	require.NoError(t, err)
	p.Release()

	assert.Same(t, c1, c2)
	assert.Equal(t, 1, opens)
}

func TestSerialPoolReopensOnUnhealthy(t *testing.T) {
	opens := 0
	opener := func(ctx context.Context) (Conn, error) {
		opens++
		return &fakeConn{}, nil
	}
	p := NewSerialPool(opener, nil, nil)

	_, err := p.Acquire(context.Background())
	require.NoError(t, err)
	p.Release()

	p.MarkUnhealthy()

	_, err = p.Acquire(context.Background())
	require.NoError(t, err)
	p.Release()

	assert.Equal(t, 2, opens)
}

func TestSerialPoolOpenerError(t *testing.T) {
	wantErr := errors.New("dial failed")
	opener := func(ctx context.Context) (Conn, error) { return nil, wantErr }
	p := NewSerialPool(opener, nil, nil)

	_, err := p.Acquire(context.Background())
	require.Error(t, err)
}
