// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ExpCluster Contributors

// Package gamelink defines the contract between the instance projector and
// a game-server process console, plus builders for the exact command text
// the in-game permission module understands.
package gamelink

import (
	"context"
	"encoding/json"
	"strings"
)

// Console is a connected game-process command channel. SendCommand submits
// one command line and returns whatever the game printed in response.
type Console interface {
	SendCommand(ctx context.Context, text string) (string, error)
}

// ScriptPrefix binds the in-game permission module for the statements that
// follow it on the same line.
const ScriptPrefix = "/sc local Groups = package.loaded['modules/exp_groups/module_exports'];"

// Script joins statements into one console round-trip under ScriptPrefix.
func Script(statements ...string) string {
	return ScriptPrefix + strings.Join(statements, ";")
}

// PrintActions asks the game for its full permission universe as JSON.
func PrintActions() string {
	return "rcon.print(Groups.get_actions_json())"
}

// DestroyGroup removes the named in-game group.
func DestroyGroup(name string) string {
	return "Groups.destroy_group('" + escape(name) + "')"
}

// ApplyDefinition replaces a group's definition wholesale. With defaultAllow
// false the list is an allow-list, with defaultAllow true it is a deny-list.
func ApplyDefinition(name string, defaultAllow bool, list []string) string {
	return getOrCreate(name) + ":from_json('" + escape(definitionJSON(defaultAllow, list)) + "')"
}

// AllowActions grants actions to an existing group.
func AllowActions(name string, actions []string) string {
	return getOrCreate(name) + ":allow_actions(Groups.json_to_actions('" + escape(listJSON(actions)) + "'))"
}

// DisallowActions revokes actions from an existing group.
func DisallowActions(name string, actions []string) string {
	return getOrCreate(name) + ":disallow_actions(Groups.json_to_actions('" + escape(listJSON(actions)) + "'))"
}

// AddPlayers moves the named players into the group.
func AddPlayers(name string, players []string) string {
	return getOrCreate(name) + ":add_players(game.json_to_table('" + escape(listJSON(players)) + "'))"
}

func getOrCreate(name string) string {
	return "Groups.get_or_create('" + escape(name) + "')"
}

func definitionJSON(defaultAllow bool, list []string) string {
	if list == nil {
		list = []string{}
	}
	data, _ := json.Marshal([2]any{defaultAllow, list})
	return string(data)
}

func listJSON(items []string) string {
	if items == nil {
		items = []string{}
	}
	data, _ := json.Marshal(items)
	return string(data)
}

// escape makes a value safe inside a single-quoted Lua string literal.
func escape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}
