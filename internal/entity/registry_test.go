// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jontk/batchsched/internal/attr"
)

func TestNewJobVectorMatchesRegistry(t *testing.T) {
	j := NewJob("1.svr")

	require.Len(t, j.Attrs, JobRegistry.Len())
	assert.True(t, j.NewObject)
	for i := range j.Attrs {
		assert.False(t, j.Attrs[i].IsSet(), "slot %d (%s) starts unset", i, JobRegistry.Def(i).Name)
		assert.Equal(t, JobRegistry.Def(i).Type, j.Attrs[i].Type)
	}
}

func TestRegistryLookupRoundTrip(t *testing.T) {
	idx, def, ok := JobRegistry.Lookup("Resource_List")
	require.True(t, ok)
	assert.Equal(t, JobAttrResourceList, idx)
	assert.Equal(t, attr.TypeResourceList, def.Type)

	_, _, ok = JobRegistry.Lookup("no_such_attribute")
	assert.False(t, ok)
}

func TestExecAttributesAreDaemonWriteOnly(t *testing.T) {
	for _, name := range []string{"exec_vnode", "exec_host", "exit_status"} {
		_, def, ok := JobRegistry.Lookup(name)
		require.True(t, ok, name)

		allowed, err := def.CheckAccess(attr.PrivUser, attr.OriginUser)
		assert.False(t, allowed, "%s is not user-writable", name)
		assert.Error(t, err)

		allowed, err = def.CheckAccess(attr.PrivDaemon, attr.OriginDaemon)
		assert.True(t, allowed, "%s is daemon-writable", name)
		assert.NoError(t, err)
	}
}

func TestQuickSaveFlagOps(t *testing.T) {
	var qs QuickSave
	qs.SetFlag(HasRun | ChkptMig)
	assert.True(t, qs.HasFlag(HasRun))
	assert.True(t, qs.HasFlag(ChkptMig))
	assert.False(t, qs.HasFlag(HasHold))

	qs.ClearFlag(HasRun)
	assert.False(t, qs.HasFlag(HasRun))
	assert.True(t, qs.HasFlag(ChkptMig))
}
