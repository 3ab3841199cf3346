// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ExpCluster Contributors

package controller

import (
	"sort"

	"github.com/explosivegaming/expcluster/internal/groups"
	"github.com/explosivegaming/expcluster/internal/message"
)

// GroupSnapshot serves a catch-up query: every group record, tombstones
// included, whose stamp is strictly greater than the requester's watermark.
// Instance-typed requesters only see their own origin and Global; every
// other requester sees all origins. A nil result means "already up to
// date", which is distinct from an empty-but-changed batch.
func (c *Coordinator) GroupSnapshot(req message.SnapshotRequest) *message.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.countSnapshot(message.KindGroupUpdate)

	instanceScoped := req.Requester.Type == message.AddressInstance
	requesterOrigin := groups.Origin(req.Requester.ID)

	var updates []groups.PermissionGroup
	for origin, store := range c.groupStores {
		if instanceScoped && origin != requesterOrigin && !origin.IsGlobal() {
			continue
		}
		updates = append(updates, store.ChangedSince(req.LastRequestTimeMs)...)
	}
	if len(updates) == 0 {
		return nil
	}
	sort.Slice(updates, func(i, j int) bool {
		if updates[i].Origin != updates[j].Origin {
			return updates[i].Origin < updates[j].Origin
		}
		return updates[i].Name < updates[j].Name
	})
	env := message.NewGroupUpdate(updates)
	return &env
}

// StringsSnapshot serves the permission-strings catch-up query. Unlike
// group snapshots it is not origin-scoped: the per-origin records are
// harmless and every requester wants the Global union anyway.
func (c *Coordinator) StringsSnapshot(req message.SnapshotRequest) *message.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.countSnapshot(message.KindStringsUpdate)

	var updates []groups.PermissionStrings
	for _, rec := range c.strings {
		if rec.UpdatedAtMs > req.LastRequestTimeMs {
			updates = append(updates, rec.Clone())
		}
	}
	if len(updates) == 0 {
		return nil
	}
	sort.Slice(updates, func(i, j int) bool {
		return updates[i].Origin < updates[j].Origin
	})
	env := message.NewStringsUpdate(updates)
	return &env
}

func (c *Coordinator) countSnapshot(kind message.Kind) {
	if c.metrics != nil {
		c.metrics.SnapshotRequests.WithLabelValues(string(kind)).Inc()
	}
}
