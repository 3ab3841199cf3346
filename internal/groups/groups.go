// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ExpCluster Contributors

// Package groups holds the replicated permission-group data model.
//
// Every record is scoped to an Origin: either the shared Global scope or one
// specific game-server instance. Records carry a last-write timestamp in
// milliseconds and a soft-delete tombstone flag so late subscribers can learn
// of deletions through the normal update path.
package groups

import (
	"encoding/json"
	"sort"

	"github.com/samber/oops"
)

// Origin identifies the scope a record belongs to: the literal Global scope
// or a specific game-server instance id.
type Origin string

// GlobalOrigin is the shared scope mirrored by every sync-enabled instance.
const GlobalOrigin Origin = "Global"

// IsGlobal reports whether the origin is the shared Global scope.
func (o Origin) IsGlobal() bool { return o == GlobalOrigin }

// PermissionGroup is a named bundle of in-game action permissions.
//
// Order is the precedence rank within the group's origin; 0 is the lowest.
// A role uses the highest-order group it is a part of. Within one origin the
// Order values of non-deleted groups always form a dense permutation of
// [0, N); GroupSet maintains that invariant on insert and remove.
type PermissionGroup struct {
	Origin      Origin
	Name        string
	Order       int
	RoleIDs     map[int]struct{}
	Permissions map[string]struct{}
	UpdatedAtMs int64
	Deleted     bool
}

// NewPermissionGroup creates an empty group at order 0 with no roles or
// permissions. UpdatedAtMs of zero means "never written".
func NewPermissionGroup(origin Origin, name string) *PermissionGroup {
	return &PermissionGroup{
		Origin:      origin,
		Name:        name,
		RoleIDs:     make(map[int]struct{}),
		Permissions: make(map[string]struct{}),
	}
}

// Key returns the replication identity "<origin>:<name>".
func (g *PermissionGroup) Key() string {
	return string(g.Origin) + ":" + g.Name
}

// Copy clones the group into a new origin with a fresh timestamp and a
// cleared tombstone. Role and permission sets are deep-copied.
func (g *PermissionGroup) Copy(newOrigin Origin, nowMs int64) *PermissionGroup {
	c := &PermissionGroup{
		Origin:      newOrigin,
		Name:        g.Name,
		Order:       g.Order,
		RoleIDs:     make(map[int]struct{}, len(g.RoleIDs)),
		Permissions: make(map[string]struct{}, len(g.Permissions)),
		UpdatedAtMs: nowMs,
	}
	for id := range g.RoleIDs {
		c.RoleIDs[id] = struct{}{}
	}
	for p := range g.Permissions {
		c.Permissions[p] = struct{}{}
	}
	return c
}

// clone returns a deep value copy used for copy-on-read snapshots. Unlike
// Copy it preserves the tombstone flag.
func (g *PermissionGroup) clone() PermissionGroup {
	c := *g.Copy(g.Origin, g.UpdatedAtMs)
	c.Deleted = g.Deleted
	return c
}

// groupJSON is the wire and on-disk shape of a PermissionGroup.
// Optional fields are omitted when zero/false.
type groupJSON struct {
	InstanceID  string   `json:"instanceId"`
	Name        string   `json:"name"`
	Order       int      `json:"order"`
	RoleIDs     []int    `json:"roleIds"`
	Permissions []string `json:"permissions"`
	UpdatedAtMs int64    `json:"updatedAtMs,omitempty"`
	IsDeleted   bool     `json:"isDeleted,omitempty"`
}

// MarshalJSON encodes the group with its sets as sorted arrays so the
// encoding is deterministic.
func (g PermissionGroup) MarshalJSON() ([]byte, error) {
	return json.Marshal(groupJSON{
		InstanceID:  string(g.Origin),
		Name:        g.Name,
		Order:       g.Order,
		RoleIDs:     sortedInts(g.RoleIDs),
		Permissions: sortedStrings(g.Permissions),
		UpdatedAtMs: g.UpdatedAtMs,
		IsDeleted:   g.Deleted,
	})
}

// UnmarshalJSON decodes the wire shape back into set form.
func (g *PermissionGroup) UnmarshalJSON(data []byte) error {
	var raw groupJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return oops.In("groups").Code("INVALID_RECORD").Wrap(err)
	}
	if raw.Name == "" {
		return oops.In("groups").Code("INVALID_RECORD").New("group record has no name")
	}
	g.Origin = Origin(raw.InstanceID)
	g.Name = raw.Name
	g.Order = raw.Order
	g.UpdatedAtMs = raw.UpdatedAtMs
	g.Deleted = raw.IsDeleted
	g.RoleIDs = make(map[int]struct{}, len(raw.RoleIDs))
	for _, id := range raw.RoleIDs {
		g.RoleIDs[id] = struct{}{}
	}
	g.Permissions = make(map[string]struct{}, len(raw.Permissions))
	for _, p := range raw.Permissions {
		g.Permissions[p] = struct{}{}
	}
	return nil
}

func sortedInts(set map[int]struct{}) []int {
	out := make([]int, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}

func sortedStrings(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
