// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ExpCluster Contributors

package instance

import (
	"context"
	"encoding/json"

	"github.com/samber/oops"

	"github.com/explosivegaming/expcluster/internal/groups"
	"github.com/explosivegaming/expcluster/internal/message"
)

// EditIPC is a locally-originated group edit reported by the game process.
type EditIPC struct {
	Type    message.EditType `json:"type"`
	Changes []string         `json:"changes"`
	Group   string           `json:"group"`
}

// CreateIPC is a locally-originated group creation. Definition is the raw
// [defaultAllow, list] pair as the game process encodes it.
type CreateIPC struct {
	Group      string          `json:"group"`
	Definition json.RawMessage `json:"definition"`
}

// DeleteIPC is a locally-originated group deletion.
type DeleteIPC struct {
	Group string `json:"group"`
}

// HandleEditIPC forwards a local edit to the controller, stamped with this
// instance as the source so the echo is suppressed on the way back.
func (p *Projector) HandleEditIPC(ctx context.Context, event EditIPC) error {
	if !event.Type.Valid() {
		return oops.In("instance").Code("INVALID_RECORD").
			With("type", string(event.Type)).New("unknown edit type")
	}
	return p.link.Send(ctx, message.NewGroupEdit(message.GroupEdit{
		Src:     message.InstanceAddress(p.id),
		Type:    event.Type,
		Group:   event.Group,
		Changes: event.Changes,
	}))
}

// HandleCreateIPC translates a local group creation into a full record for
// the controller. The permission set is the universe filtered by
// defaultAllow XOR list membership. Dropped while unsynced: the record
// would race the catch-up and the game state survives either way.
func (p *Projector) HandleCreateIPC(ctx context.Context, event CreateIPC) error {
	p.mu.Lock()
	if !p.synced {
		p.mu.Unlock()
		return nil
	}
	target := p.syncTargetLocked()
	universe := p.universe
	now := p.clock.NowMs()
	p.mu.Unlock()

	defaultAllow, listed, err := decodeDefinition(event.Definition)
	if err != nil {
		return err
	}

	g := groups.NewPermissionGroup(target, event.Group)
	g.UpdatedAtMs = now
	for _, perm := range universe {
		_, inList := listed[perm]
		if defaultAllow != inList {
			g.Permissions[perm] = struct{}{}
		}
	}
	return p.link.Send(ctx, message.NewGroupUpdate([]groups.PermissionGroup{*g}))
}

// HandleDeleteIPC forwards a local deletion as a tombstoned record.
func (p *Projector) HandleDeleteIPC(ctx context.Context, event DeleteIPC) error {
	p.mu.Lock()
	if !p.synced {
		p.mu.Unlock()
		return nil
	}
	target := p.syncTargetLocked()
	key := string(target) + ":" + event.Group
	rec, ok := p.cache[key]
	if !ok || rec.Deleted {
		p.mu.Unlock()
		return nil
	}
	tomb := *rec.Copy(rec.Origin, p.clock.NowMs())
	tomb.Deleted = true
	p.cache[key] = tomb
	p.mu.Unlock()

	return p.link.Send(ctx, message.NewGroupUpdate([]groups.PermissionGroup{tomb}))
}

// decodeDefinition parses the [defaultAllow, list] pair. The game encodes
// an empty list as {}, which must read as empty rather than fail.
func decodeDefinition(raw json.RawMessage) (bool, map[string]struct{}, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil || len(parts) != 2 {
		return false, nil, oops.In("instance").Code("INVALID_RECORD").
			With("definition", string(raw)).New("group definition is not a pair")
	}
	var defaultAllow bool
	if err := json.Unmarshal(parts[0], &defaultAllow); err != nil {
		return false, nil, oops.In("instance").Code("INVALID_RECORD").
			With("definition", string(raw)).Wrap(err)
	}
	listed := make(map[string]struct{})
	var list []string
	if err := json.Unmarshal(parts[1], &list); err == nil {
		for _, item := range list {
			listed[item] = struct{}{}
		}
	}
	return defaultAllow, listed, nil
}
