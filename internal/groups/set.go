// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ExpCluster Contributors

package groups

import "sort"

// GroupSet owns the name → group mapping for one origin. Removed groups stay
// in the set as tombstones so catch-up responses can replicate the deletion;
// tombstones are excluded from ordering and precedence.
//
// GroupSet is not safe for concurrent use. The owning store serializes all
// access (one inbound message to completion).
type GroupSet struct {
	Origin Origin
	byName map[string]*PermissionGroup
}

// NewGroupSet creates an empty set for the given origin.
func NewGroupSet(origin Origin) *GroupSet {
	return &GroupSet{
		Origin: origin,
		byName: make(map[string]*PermissionGroup),
	}
}

// Get returns the group with the given name, tombstoned or live.
func (s *GroupSet) Get(name string) (*PermissionGroup, bool) {
	g, ok := s.byName[name]
	return g, ok
}

// Len returns the number of non-deleted groups.
func (s *GroupSet) Len() int {
	n := 0
	for _, g := range s.byName {
		if !g.Deleted {
			n++
		}
	}
	return n
}

// Put inserts or replaces a group record without touching sibling orders.
// Used when loading persisted state, which already satisfies the order
// invariant.
func (s *GroupSet) Put(g *PermissionGroup) {
	s.byName[g.Name] = g
}

// Insert adds a new group at order 0, incrementing every live sibling's
// order by one. If a live group with the name already exists it is returned
// unchanged and created is false. A tombstone under the same name is
// replaced by the fresh group.
func (s *GroupSet) Insert(name string, permissions map[string]struct{}, nowMs int64) (g *PermissionGroup, created bool) {
	if existing, ok := s.byName[name]; ok && !existing.Deleted {
		return existing, false
	}
	for _, sibling := range s.byName {
		if !sibling.Deleted {
			sibling.Order++
		}
	}
	g = NewPermissionGroup(s.Origin, name)
	g.UpdatedAtMs = nowMs
	for p := range permissions {
		g.Permissions[p] = struct{}{}
	}
	s.byName[name] = g
	return g, true
}

// Remove tombstones the named group, decrementing the order of every live
// sibling that ranked above it. Returns nil when the name is absent or
// already tombstoned.
func (s *GroupSet) Remove(name string, nowMs int64) *PermissionGroup {
	g, ok := s.byName[name]
	if !ok || g.Deleted {
		return nil
	}
	for _, sibling := range s.byName {
		if !sibling.Deleted && sibling.Order > g.Order {
			sibling.Order--
		}
	}
	g.Deleted = true
	g.UpdatedAtMs = nowMs
	return g
}

// Snapshot returns value copies of every record, tombstones included.
// Callers get their own sets and cannot mutate store state.
func (s *GroupSet) Snapshot() []PermissionGroup {
	out := make([]PermissionGroup, 0, len(s.byName))
	for _, g := range s.byName {
		out = append(out, g.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Live returns the non-deleted groups ordered by rank.
func (s *GroupSet) Live() []*PermissionGroup {
	out := make([]*PermissionGroup, 0, len(s.byName))
	for _, g := range s.byName {
		if !g.Deleted {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// ChangedSince returns copies of every record, tombstones included, whose
// UpdatedAtMs is strictly greater than the watermark.
func (s *GroupSet) ChangedSince(watermarkMs int64) []PermissionGroup {
	var out []PermissionGroup
	for _, g := range s.byName {
		if g.UpdatedAtMs > watermarkMs {
			out = append(out, g.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// EffectiveGroup returns the highest-order live group whose role set
// intersects the given roles. Exact order ties resolve by name ascending so
// the result does not depend on map iteration order. Returns a value copy;
// ok is false when no live group matches.
func (s *GroupSet) EffectiveGroup(roleIDs []int) (PermissionGroup, bool) {
	var candidates []*PermissionGroup
	for _, g := range s.byName {
		if g.Deleted {
			continue
		}
		for _, id := range roleIDs {
			if _, ok := g.RoleIDs[id]; ok {
				candidates = append(candidates, g)
				break
			}
		}
	}
	if len(candidates) == 0 {
		return PermissionGroup{}, false
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Order != candidates[j].Order {
			return candidates[i].Order > candidates[j].Order
		}
		return candidates[i].Name < candidates[j].Name
	})
	return candidates[0].clone(), true
}
