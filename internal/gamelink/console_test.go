// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ExpCluster Contributors

package gamelink

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCommandText(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{
			name: "destroy",
			got:  DestroyGroup("Admin"),
			want: "Groups.destroy_group('Admin')",
		},
		{
			name: "allow list definition",
			got:  ApplyDefinition("Member", false, []string{"build", "craft"}),
			want: `Groups.get_or_create('Member'):from_json('[false,["build","craft"]]')`,
		},
		{
			name: "deny list definition",
			got:  ApplyDefinition("Admin", true, []string{"nuke"}),
			want: `Groups.get_or_create('Admin'):from_json('[true,["nuke"]]')`,
		},
		{
			name: "empty list stays an array",
			got:  ApplyDefinition("Admin", true, nil),
			want: `Groups.get_or_create('Admin'):from_json('[true,[]]')`,
		},
		{
			name: "allow actions",
			got:  AllowActions("Member", []string{"mine"}),
			want: `Groups.get_or_create('Member'):allow_actions(Groups.json_to_actions('["mine"]'))`,
		},
		{
			name: "disallow actions",
			got:  DisallowActions("Member", []string{"mine"}),
			want: `Groups.get_or_create('Member'):disallow_actions(Groups.json_to_actions('["mine"]'))`,
		},
		{
			name: "add players",
			got:  AddPlayers("Member", []string{"alice", "bob"}),
			want: `Groups.get_or_create('Member'):add_players(game.json_to_table('["alice","bob"]'))`,
		},
		{
			name: "print actions",
			got:  PrintActions(),
			want: "rcon.print(Groups.get_actions_json())",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}

func TestScriptJoinsUnderPrefix(t *testing.T) {
	got := Script(DestroyGroup("Old"), DestroyGroup("Older"))
	want := ScriptPrefix + "Groups.destroy_group('Old');Groups.destroy_group('Older')"
	assert.Equal(t, want, got)
}

func TestEscapeQuotedValues(t *testing.T) {
	assert.Equal(t, `Groups.destroy_group('O\'Brien')`, DestroyGroup("O'Brien"))
	assert.Equal(t, `Groups.destroy_group('a\\b')`, DestroyGroup(`a\b`))
}
