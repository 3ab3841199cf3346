// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ExpCluster Contributors

package controller

import (
	"github.com/explosivegaming/expcluster/internal/groups"
	"github.com/explosivegaming/expcluster/internal/message"
)

// ApplyGroupUpdate merges a batch of incoming group records under
// last-write-wins and re-broadcasts the resulting changes as one batch.
//
// Per record: an unknown origin is skipped silently (it may reference an
// instance not tracked here); a record with no live local counterpart is a
// creation; a tombstone delegates to removal; otherwise only the permission
// set is merged; incoming roleIds/order are deliberately ignored on this
// path, since edits flow through permission-only update events. The
// permission overwrite is gated on the incoming stamp being strictly newer
// than the local one, so a stale replayed update cannot regress state; the
// unchanged local record is still echoed into the outgoing batch.
//
// The batch is broadcast even when empty: downstream consumers treat an
// empty broadcast as a no-op heartbeat.
func (c *Coordinator) ApplyGroupUpdate(updates []groups.PermissionGroup) []groups.PermissionGroup {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []groups.PermissionGroup
	for i := range updates {
		incoming := &updates[i]
		store, ok := c.groupStores[incoming.Origin]
		if !ok {
			c.countGroupUpdate("skipped")
			c.log.Debug("update for unknown origin skipped",
				"origin", string(incoming.Origin), "name", incoming.Name)
			continue
		}

		existing, found := store.Get(incoming.Name)
		live := found && !existing.Deleted

		switch {
		case !live:
			if incoming.Deleted {
				// Delete of an absent group: idempotent no-op, the same
				// update may arrive via both catch-up and live push.
				c.countGroupUpdate("skipped")
				continue
			}
			g, _, err := c.addGroupLocked(incoming.Origin, incoming.Name, incoming.Permissions)
			if err != nil {
				continue
			}
			snap := g.Copy(g.Origin, g.UpdatedAtMs)
			out = append(out, *snap)

		case incoming.Deleted:
			g, err := c.removeGroupLocked(incoming.Origin, incoming.Name)
			if err != nil || g == nil {
				continue
			}
			snap := g.Copy(g.Origin, g.UpdatedAtMs)
			snap.Deleted = true
			out = append(out, *snap)

		default:
			if incoming.UpdatedAtMs > existing.UpdatedAtMs {
				perms := make(map[string]struct{}, len(incoming.Permissions))
				for p := range incoming.Permissions {
					perms[p] = struct{}{}
				}
				existing.Permissions = perms
				existing.UpdatedAtMs = c.clock.NowMs()
				c.countGroupUpdate("applied")
			} else {
				c.countGroupUpdate("stale")
			}
			snap := existing.Copy(existing.Origin, existing.UpdatedAtMs)
			out = append(out, *snap)
		}
	}

	c.broadcast(message.NewGroupUpdate(out))
	return out
}

// ApplyStringsUpdate ingests per-origin permission universes. Each incoming
// record replaces the local record for its origin and is unioned into the
// monotonic Global superset; for every processed record a batch of
// [Global, incoming] is broadcast so subscribers always learn the
// authoritative union alongside the per-origin detail.
func (c *Coordinator) ApplyStringsUpdate(updates []groups.PermissionStrings) {
	c.mu.Lock()
	defer c.mu.Unlock()

	global := c.strings[groups.GlobalOrigin]
	for i := range updates {
		incoming := &updates[i]
		local := incoming.Clone()
		c.strings[incoming.Origin] = &local
		global.Union(&local)

		c.broadcast(message.NewStringsUpdate([]groups.PermissionStrings{
			global.Clone(),
			local.Clone(),
		}))
	}
}
