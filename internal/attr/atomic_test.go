// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package attr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry() *Registry {
	r := NewRegistry("test")
	r.Add(NewDef("resources_min", TypeLong, UserRD|UserWR))
	r.Add(NewDef("resources_max", TypeLong, UserRD|UserWR))
	r.Add(NewDef("priority", TypeLong, UserRD|UserWR))
	return r
}

// A batch that fails partway leaves every slot of new[] cleared (the
// rollback frees each touched slot, including the one copied from
// old[0]), and reports the 1-based offending index.
func TestBatchRollbackClearsNew(t *testing.T) {
	reg := testRegistry()
	old := make([]Attribute, reg.Len())
	old[0] = Attribute{Type: TypeLong, Payload: int64(1), Flags: FlagSet}

	newVec := make([]Attribute, reg.Len())
	copy(newVec, old)

	b := NewBatch(reg, old, newVec, PrivUser, OriginUser, UnknownError)
	idx, err := b.Apply([]Change{
		{Name: "resources_min", Op: OpSet, Value: "1"},
		{Name: "resources_max", Op: OpSet, Value: "abc"}, // fails: not an integer
		{Name: "priority", Op: OpSet, Value: "5"},
	})

	require.Error(t, err)
	assert.Equal(t, 2, idx)

	for i := range newVec {
		assert.False(t, newVec[i].IsSet(), "slot %d should be cleared after rollback", i)
		assert.Nil(t, newVec[i].Payload)
	}
}

func TestBatchSuccessMarksModified(t *testing.T) {
	reg := testRegistry()
	old := make([]Attribute, reg.Len())
	old[2] = Attribute{Type: TypeLong, Payload: int64(5), Flags: FlagSet}
	newVec := make([]Attribute, reg.Len())

	b := NewBatch(reg, old, newVec, PrivUser, OriginUser, UnknownError)
	idx, err := b.Apply([]Change{
		{Name: "priority", Op: OpSet, Value: "10"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
	assert.True(t, newVec[2].IsSet())
	assert.True(t, newVec[2].IsModified())
	assert.Equal(t, int64(10), newVec[2].Payload)
}

func TestBatchNoOpLeavesUnmodified(t *testing.T) {
	reg := testRegistry()
	old := make([]Attribute, reg.Len())
	old[2] = Attribute{Type: TypeLong, Payload: int64(10), Flags: FlagSet}
	newVec := make([]Attribute, reg.Len())

	b := NewBatch(reg, old, newVec, PrivUser, OriginUser, UnknownError)
	_, err := b.Apply([]Change{{Name: "priority", Op: OpSet, Value: "10"}})
	require.NoError(t, err)
	assert.False(t, newVec[2].IsModified())
}

func TestBatchUnknownAttributeErrors(t *testing.T) {
	reg := testRegistry()
	old := make([]Attribute, reg.Len())
	newVec := make([]Attribute, reg.Len())

	b := NewBatch(reg, old, newVec, PrivUser, OriginUser, UnknownError)
	idx, err := b.Apply([]Change{{Name: "does_not_exist", Op: OpSet, Value: "1"}})
	require.Error(t, err)
	assert.Equal(t, 1, idx)
	ce, ok := err.(interface{ Error() string })
	_ = ce
	assert.True(t, ok)
}

func TestBatchDaemonOriginSkipsReadOnly(t *testing.T) {
	reg := NewRegistry("test")
	reg.Add(NewDef("server_only", TypeLong, MgrRD|MgrWR))
	old := make([]Attribute, reg.Len())
	newVec := make([]Attribute, reg.Len())

	b := NewBatch(reg, old, newVec, PrivUser, OriginDaemon, UnknownError)
	idx, err := b.Apply([]Change{{Name: "server_only", Op: OpSet, Value: "1"}})
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
	assert.False(t, newVec[0].IsSet())
}

func TestBatchUserOriginRejectsReadOnly(t *testing.T) {
	reg := NewRegistry("test")
	reg.Add(NewDef("server_only", TypeLong, MgrRD|MgrWR))
	old := make([]Attribute, reg.Len())
	newVec := make([]Attribute, reg.Len())

	b := NewBatch(reg, old, newVec, PrivUser, OriginUser, UnknownError)
	idx, err := b.Apply([]Change{{Name: "server_only", Op: OpSet, Value: "1"}})
	require.Error(t, err)
	assert.Equal(t, 1, idx)
}
