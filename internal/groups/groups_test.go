// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ExpCluster Contributors

package groups

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPermissionGroup_JSONRoundTrip(t *testing.T) {
	g := NewPermissionGroup("12", "Admin")
	g.Order = 3
	g.RoleIDs[7] = struct{}{}
	g.RoleIDs[2] = struct{}{}
	g.Permissions["build"] = struct{}{}
	g.Permissions["craft"] = struct{}{}
	g.UpdatedAtMs = 1700000000000

	data, err := json.Marshal(g)
	require.NoError(t, err)

	var back PermissionGroup
	require.NoError(t, json.Unmarshal(data, &back))

	assert.Equal(t, g.Origin, back.Origin)
	assert.Equal(t, g.Name, back.Name)
	assert.Equal(t, g.Order, back.Order)
	assert.Equal(t, g.RoleIDs, back.RoleIDs)
	assert.Equal(t, g.Permissions, back.Permissions)
	assert.Equal(t, g.UpdatedAtMs, back.UpdatedAtMs)
	assert.False(t, back.Deleted)
}

func TestPermissionGroup_JSONOmitsZeroOptionals(t *testing.T) {
	g := NewPermissionGroup(GlobalOrigin, "Default")
	data, err := json.Marshal(g)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.NotContains(t, raw, "updatedAtMs")
	assert.NotContains(t, raw, "isDeleted")
	assert.Contains(t, raw, "roleIds")
	assert.Contains(t, raw, "permissions")
}

func TestPermissionGroup_JSONDeterministic(t *testing.T) {
	g := NewPermissionGroup(GlobalOrigin, "Admin")
	for _, p := range []string{"z", "a", "m", "q", "b"} {
		g.Permissions[p] = struct{}{}
	}
	for _, r := range []int{9, 1, 5} {
		g.RoleIDs[r] = struct{}{}
	}

	first, err := json.Marshal(g)
	require.NoError(t, err)
	for range 10 {
		next, err := json.Marshal(g)
		require.NoError(t, err)
		assert.Equal(t, string(first), string(next))
	}
}

func TestPermissionGroup_UnmarshalRejectsNameless(t *testing.T) {
	var g PermissionGroup
	err := json.Unmarshal([]byte(`{"instanceId":"Global","order":0,"roleIds":[],"permissions":[]}`), &g)
	assert.Error(t, err)
}

func TestPermissionGroup_Copy(t *testing.T) {
	g := NewPermissionGroup(GlobalOrigin, "Admin")
	g.Order = 2
	g.Permissions["build"] = struct{}{}
	g.RoleIDs[4] = struct{}{}
	g.Deleted = true

	c := g.Copy("12", 555)
	assert.EqualValues(t, "12", c.Origin)
	assert.Equal(t, g.Name, c.Name)
	assert.Equal(t, g.Order, c.Order)
	assert.EqualValues(t, 555, c.UpdatedAtMs)
	assert.False(t, c.Deleted, "copies never carry the tombstone")

	c.Permissions["craft"] = struct{}{}
	assert.Len(t, g.Permissions, 1, "copy must not share sets")
}

func TestPermissionStrings_UnionMonotonic(t *testing.T) {
	global := NewPermissionStrings(GlobalOrigin)
	global.Permissions["build"] = struct{}{}
	global.UpdatedAtMs = 100

	incoming := NewPermissionStrings("7")
	incoming.Permissions["craft"] = struct{}{}
	incoming.UpdatedAtMs = 50

	global.Union(incoming)
	assert.Len(t, global.Permissions, 2)
	assert.EqualValues(t, 100, global.UpdatedAtMs, "older update must not lower the stamp")

	incoming.UpdatedAtMs = 200
	global.Union(incoming)
	assert.EqualValues(t, 200, global.UpdatedAtMs)
}

func TestPermissionStrings_JSONRoundTrip(t *testing.T) {
	p := NewPermissionStrings("3")
	p.Permissions["build"] = struct{}{}
	p.UpdatedAtMs = 42

	data, err := json.Marshal(p)
	require.NoError(t, err)

	var back PermissionStrings
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, p.Origin, back.Origin)
	assert.Equal(t, p.Permissions, back.Permissions)
	assert.Equal(t, p.UpdatedAtMs, back.UpdatedAtMs)
}
