// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ExpCluster Contributors

package controller

import (
	"github.com/explosivegaming/expcluster/internal/access"
	"github.com/explosivegaming/expcluster/internal/groups"
	"github.com/explosivegaming/expcluster/internal/message"
)

// HandleGroupEdit applies an in-game edit event to the authoritative store
// and re-publishes it.
//
// The capability check runs first and aborts the whole operation with
// PERMISSION_DENIED on failure, with no partial effect. Permission edits apply
// to the origin the event effectively targets: the originating instance's
// private origin when one exists, Global otherwise. Player assignment does
// not touch group records; when role-inconsistency tolerance is on it is
// tracked in the user→group map. In every case the event itself is
// re-broadcast so instances can mirror the edit in-game, and any resulting
// group change goes out as a regular update batch.
func (c *Coordinator) HandleGroupEdit(checker access.Checker, subject string, event message.GroupEdit) error {
	if err := access.CheckEdit(checker, subject, event.Type); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	origin := c.effectiveOriginLocked(event.Src)

	var changed []groups.PermissionGroup
	switch event.Type {
	case message.EditAddPermissions, message.EditRemovePermissions:
		store, ok := c.groupStores[origin]
		if !ok {
			break
		}
		g, ok := store.Get(event.Group)
		if !ok || g.Deleted {
			// Edits may race a deletion replicated from elsewhere; absorb.
			c.log.Debug("edit for unknown group dropped",
				"origin", string(origin), "group", event.Group)
			break
		}
		for _, perm := range event.Changes {
			if event.Type == message.EditAddPermissions {
				g.Permissions[perm] = struct{}{}
			} else {
				delete(g.Permissions, perm)
			}
		}
		g.UpdatedAtMs = c.clock.NowMs()
		c.countGroupUpdate("applied")
		snap := g.Copy(g.Origin, g.UpdatedAtMs)
		changed = append(changed, *snap)

	case message.EditAssignPlayers:
		if c.allowRoleInconsistency {
			for _, player := range event.Changes {
				c.userToGroup[player] = origin
			}
		}
	}

	c.broadcast(message.NewGroupEdit(event))
	if len(changed) > 0 {
		c.broadcast(message.NewGroupUpdate(changed))
	}
	return nil
}

// effectiveOriginLocked resolves which origin an event source edits: the
// source instance's private origin when it has one, otherwise Global.
func (c *Coordinator) effectiveOriginLocked(src message.Address) groups.Origin {
	if src.Type == message.AddressInstance {
		if _, ok := c.groupStores[groups.Origin(src.ID)]; ok {
			return groups.Origin(src.ID)
		}
	}
	return groups.GlobalOrigin
}
