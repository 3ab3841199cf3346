// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ExpCluster Contributors

package groups

import (
	"encoding/json"

	"github.com/samber/oops"
)

// PermissionStrings is the set of permission identifiers a game-server
// process recognizes, scoped per origin. The Global record is the monotonic
// union of every identifier any instance has ever reported.
type PermissionStrings struct {
	Origin      Origin
	Permissions map[string]struct{}
	UpdatedAtMs int64
	Deleted     bool
}

// NewPermissionStrings creates an empty record for the given origin.
func NewPermissionStrings(origin Origin) *PermissionStrings {
	return &PermissionStrings{
		Origin:      origin,
		Permissions: make(map[string]struct{}),
	}
}

// Union adds every permission in other to the receiver and raises
// UpdatedAtMs to the max of both records. Permissions are only ever added.
func (p *PermissionStrings) Union(other *PermissionStrings) {
	for perm := range other.Permissions {
		p.Permissions[perm] = struct{}{}
	}
	if other.UpdatedAtMs > p.UpdatedAtMs {
		p.UpdatedAtMs = other.UpdatedAtMs
	}
}

// Clone returns a value copy with its own permission set.
func (p *PermissionStrings) Clone() PermissionStrings {
	c := PermissionStrings{
		Origin:      p.Origin,
		Permissions: make(map[string]struct{}, len(p.Permissions)),
		UpdatedAtMs: p.UpdatedAtMs,
		Deleted:     p.Deleted,
	}
	for perm := range p.Permissions {
		c.Permissions[perm] = struct{}{}
	}
	return c
}

type stringsJSON struct {
	InstanceID  string   `json:"instanceId"`
	Permissions []string `json:"permissions"`
	UpdatedAtMs int64    `json:"updatedAtMs,omitempty"`
	IsDeleted   bool     `json:"isDeleted,omitempty"`
}

// MarshalJSON encodes the permission set as a sorted array.
func (p PermissionStrings) MarshalJSON() ([]byte, error) {
	return json.Marshal(stringsJSON{
		InstanceID:  string(p.Origin),
		Permissions: sortedStrings(p.Permissions),
		UpdatedAtMs: p.UpdatedAtMs,
		IsDeleted:   p.Deleted,
	})
}

// UnmarshalJSON decodes the wire shape back into set form.
func (p *PermissionStrings) UnmarshalJSON(data []byte) error {
	var raw stringsJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return oops.In("groups").Code("INVALID_RECORD").Wrap(err)
	}
	p.Origin = Origin(raw.InstanceID)
	p.UpdatedAtMs = raw.UpdatedAtMs
	p.Deleted = raw.IsDeleted
	p.Permissions = make(map[string]struct{}, len(raw.Permissions))
	for _, perm := range raw.Permissions {
		p.Permissions[perm] = struct{}{}
	}
	return nil
}
