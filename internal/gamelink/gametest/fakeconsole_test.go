// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ExpCluster Contributors

package gametest

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/explosivegaming/expcluster/internal/gamelink"
)

func TestFakeConsole_PrintActions(t *testing.T) {
	f := NewFakeConsole([]string{"build", "craft", "mine"})
	out, err := f.SendCommand(context.Background(), gamelink.Script(gamelink.PrintActions()))
	require.NoError(t, err)

	var universe []string
	require.NoError(t, json.Unmarshal([]byte(out), &universe))
	assert.Equal(t, []string{"build", "craft", "mine"}, universe)
}

func TestFakeConsole_BatchedDefinitions(t *testing.T) {
	f := NewFakeConsole([]string{"build", "craft", "mine", "nuke"})

	cmd := gamelink.Script(
		gamelink.ApplyDefinition("Member", false, []string{"build"}),
		gamelink.ApplyDefinition("Admin", true, []string{"nuke"}),
		gamelink.DestroyGroup("Legacy"),
	)
	_, err := f.SendCommand(context.Background(), cmd)
	require.NoError(t, err)

	assert.Equal(t, []string{"Admin", "Member"}, f.GroupNames())

	member, ok := f.Group("Member")
	require.True(t, ok)
	assert.True(t, member.Allows("build"))
	assert.False(t, member.Allows("craft"))

	admin, ok := f.Group("Admin")
	require.True(t, ok)
	assert.True(t, admin.Allows("build"))
	assert.False(t, admin.Allows("nuke"))
}

func TestFakeConsole_DestroyGroup(t *testing.T) {
	f := NewFakeConsole(nil)
	_, err := f.SendCommand(context.Background(),
		gamelink.Script(gamelink.ApplyDefinition("Gone", false, nil)))
	require.NoError(t, err)

	_, err = f.SendCommand(context.Background(), gamelink.Script(gamelink.DestroyGroup("Gone")))
	require.NoError(t, err)
	_, ok := f.Group("Gone")
	assert.False(t, ok)
}

func TestFakeConsole_AllowDisallowActions(t *testing.T) {
	f := NewFakeConsole([]string{"build", "craft"})
	ctx := context.Background()

	_, err := f.SendCommand(ctx, gamelink.Script(gamelink.ApplyDefinition("Member", false, nil)))
	require.NoError(t, err)

	_, err = f.SendCommand(ctx, gamelink.Script(gamelink.AllowActions("Member", []string{"build"})))
	require.NoError(t, err)
	member, _ := f.Group("Member")
	assert.True(t, member.Allows("build"))

	_, err = f.SendCommand(ctx, gamelink.Script(gamelink.DisallowActions("Member", []string{"build"})))
	require.NoError(t, err)
	member, _ = f.Group("Member")
	assert.False(t, member.Allows("build"))
}

func TestFakeConsole_DenyListGroupActions(t *testing.T) {
	f := NewFakeConsole([]string{"build", "craft"})
	ctx := context.Background()

	// Default-allow group: disallow adds to the deny list, allow removes.
	_, err := f.SendCommand(ctx, gamelink.Script(gamelink.ApplyDefinition("Admin", true, nil)))
	require.NoError(t, err)

	_, err = f.SendCommand(ctx, gamelink.Script(gamelink.DisallowActions("Admin", []string{"craft"})))
	require.NoError(t, err)
	admin, _ := f.Group("Admin")
	assert.True(t, admin.Allows("build"))
	assert.False(t, admin.Allows("craft"))

	_, err = f.SendCommand(ctx, gamelink.Script(gamelink.AllowActions("Admin", []string{"craft"})))
	require.NoError(t, err)
	admin, _ = f.Group("Admin")
	assert.True(t, admin.Allows("craft"))
}

func TestFakeConsole_AddPlayers(t *testing.T) {
	f := NewFakeConsole(nil)
	cmd := gamelink.Script(
		gamelink.ApplyDefinition("Member", false, nil),
		gamelink.AddPlayers("Member", []string{"alice", "bob"}),
	)
	_, err := f.SendCommand(context.Background(), cmd)
	require.NoError(t, err)

	member, _ := f.Group("Member")
	assert.Contains(t, member.Players, "alice")
	assert.Contains(t, member.Players, "bob")
}

func TestFakeConsole_QuotedNamesSurviveEscaping(t *testing.T) {
	f := NewFakeConsole(nil)
	_, err := f.SendCommand(context.Background(),
		gamelink.Script(gamelink.ApplyDefinition("O'Brien's crew", false, nil)))
	require.NoError(t, err)
	_, ok := f.Group("O'Brien's crew")
	assert.True(t, ok)
}

func TestFakeConsole_RejectsNonScript(t *testing.T) {
	f := NewFakeConsole(nil)
	_, err := f.SendCommand(context.Background(), "/kick alice")
	assert.Error(t, err)
}

func TestFakeConsole_BadLuaSurfaces(t *testing.T) {
	f := NewFakeConsole(nil)
	_, err := f.SendCommand(context.Background(), "/sc this is not lua")
	assert.Error(t, err)
}
