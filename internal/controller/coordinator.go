// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ExpCluster Contributors

// Package controller holds the authoritative permission-group and
// permission-string stores, the last-write-wins reconciliation engine, and
// the subscription/catch-up protocol.
//
// Concurrency model: single writer. Every mutating entry point takes the
// coordinator mutex and runs one inbound message to completion before the
// next; external readers only ever receive value snapshots.
package controller

import (
	"log/slog"
	"sync"

	"github.com/samber/oops"

	"github.com/explosivegaming/expcluster/internal/clock"
	"github.com/explosivegaming/expcluster/internal/groups"
	"github.com/explosivegaming/expcluster/internal/message"
	"github.com/explosivegaming/expcluster/internal/observability"
)

// Options configures a Coordinator. Zero values select sane defaults.
type Options struct {
	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics *observability.Metrics
	// AllowRoleInconsistency permits user→group assignment independent of
	// role membership and enables the user-group persistence file.
	AllowRoleInconsistency bool
}

// Coordinator is the controller-side authority for all replicated state.
type Coordinator struct {
	mu sync.Mutex

	clock   clock.Clock
	log     *slog.Logger
	metrics *observability.Metrics

	groupStores map[groups.Origin]*groups.GroupSet
	strings     map[groups.Origin]*groups.PermissionStrings
	userToGroup map[string]groups.Origin

	allowRoleInconsistency bool
	broadcaster            *Broadcaster
}

// New creates a Coordinator with the Global stores pre-seeded.
func New(opts Options) *Coordinator {
	if opts.Clock == nil {
		opts.Clock = clock.System{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	c := &Coordinator{
		clock:                  opts.Clock,
		log:                    opts.Logger,
		metrics:                opts.Metrics,
		groupStores:            make(map[groups.Origin]*groups.GroupSet),
		strings:                make(map[groups.Origin]*groups.PermissionStrings),
		userToGroup:            make(map[string]groups.Origin),
		allowRoleInconsistency: opts.AllowRoleInconsistency,
		broadcaster:            NewBroadcaster(),
	}
	c.groupStores[groups.GlobalOrigin] = groups.NewGroupSet(groups.GlobalOrigin)
	c.strings[groups.GlobalOrigin] = groups.NewPermissionStrings(groups.GlobalOrigin)
	return c
}

// Broadcaster exposes the pub/sub side of the coordinator.
func (c *Coordinator) Broadcaster() *Broadcaster {
	return c.broadcaster
}

// AddGroup creates a group at order 0 within the origin, shifting every live
// sibling up one rank. Adding an existing name returns the current group
// unchanged. Unless silent, the creation is broadcast to all subscribers.
// Fails with ORIGIN_NOT_FOUND when no store exists for the origin.
func (c *Coordinator) AddGroup(origin groups.Origin, name string, permissions map[string]struct{}, silent bool) (groups.PermissionGroup, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	g, created, err := c.addGroupLocked(origin, name, permissions)
	if err != nil {
		return groups.PermissionGroup{}, err
	}
	snap := g.Copy(g.Origin, g.UpdatedAtMs)
	snap.Deleted = g.Deleted
	if created && !silent {
		c.broadcast(message.NewGroupUpdate([]groups.PermissionGroup{*snap}))
	}
	return *snap, nil
}

func (c *Coordinator) addGroupLocked(origin groups.Origin, name string, permissions map[string]struct{}) (*groups.PermissionGroup, bool, error) {
	store, ok := c.groupStores[origin]
	if !ok {
		return nil, false, oops.In("controller").Code("ORIGIN_NOT_FOUND").
			With("origin", string(origin)).New("no store for origin")
	}
	g, created := store.Insert(name, permissions, c.clock.NowMs())
	if created {
		c.countGroupUpdate("created")
		c.log.Debug("group created", "origin", string(origin), "name", name)
	}
	return g, created, nil
}

// RemoveGroup tombstones a group, closing the rank gap among live siblings.
// Removing an absent name is a no-op returning ok=false. Unless silent, the
// tombstone is broadcast. Fails with ORIGIN_NOT_FOUND when no store exists.
func (c *Coordinator) RemoveGroup(origin groups.Origin, name string, silent bool) (groups.PermissionGroup, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	g, err := c.removeGroupLocked(origin, name)
	if err != nil {
		return groups.PermissionGroup{}, false, err
	}
	if g == nil {
		return groups.PermissionGroup{}, false, nil
	}
	snap := g.Copy(g.Origin, g.UpdatedAtMs)
	snap.Deleted = true
	if !silent {
		c.broadcast(message.NewGroupUpdate([]groups.PermissionGroup{*snap}))
	}
	return *snap, true, nil
}

func (c *Coordinator) removeGroupLocked(origin groups.Origin, name string) (*groups.PermissionGroup, error) {
	store, ok := c.groupStores[origin]
	if !ok {
		return nil, oops.In("controller").Code("ORIGIN_NOT_FOUND").
			With("origin", string(origin)).New("no store for origin")
	}
	g := store.Remove(name, c.clock.NowMs())
	if g != nil {
		c.countGroupUpdate("deleted")
		c.log.Debug("group tombstoned", "origin", string(origin), "name", name)
	}
	return g, nil
}

// SetSync reconfigures which origin an instance mirrors.
//
// Enabling global sync deletes the instance's private origin, tombstoning
// all of its groups. Disabling clones every Global group into a fresh
// private origin; groups of an unexpectedly pre-existing private origin
// whose names did not survive the clone are tombstoned. All created and
// tombstoned records are broadcast as one batch.
func (c *Coordinator) SetSync(instanceID groups.Origin, enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.NowMs()
	var updates []groups.PermissionGroup

	if enabled {
		store, ok := c.groupStores[instanceID]
		if ok {
			delete(c.groupStores, instanceID)
			for _, g := range store.Live() {
				g.Deleted = true
				g.UpdatedAtMs = now
				snap := g.Copy(g.Origin, now)
				snap.Deleted = true
				updates = append(updates, *snap)
			}
		}
	} else {
		global := c.groupStores[groups.GlobalOrigin]
		old := c.groupStores[instanceID]
		fresh := groups.NewGroupSet(instanceID)
		for _, g := range global.Live() {
			clone := g.Copy(instanceID, now)
			fresh.Put(clone)
			updates = append(updates, *clone.Copy(instanceID, now))
		}
		c.groupStores[instanceID] = fresh
		if old != nil {
			for _, g := range old.Live() {
				if _, ok := fresh.Get(g.Name); ok {
					continue
				}
				tomb := g.Copy(instanceID, now)
				tomb.Deleted = true
				fresh.Put(tomb)
				snap := tomb.Copy(instanceID, now)
				snap.Deleted = true
				updates = append(updates, *snap)
			}
		}
	}

	c.setOriginsGauge()
	c.log.Info("instance sync retargeted",
		"instance", string(instanceID),
		"global_sync", enabled,
		"updates", len(updates),
	)
	if len(updates) > 0 {
		c.broadcast(message.NewGroupUpdate(updates))
	}
}

// EnsureDefaultGroups guarantees that every cluster role maps to a group in
// every origin: roles referenced by no group are attached to the "Default"
// group, which is created at the top rank when missing. Runs at startup,
// after persisted state is loaded.
func (c *Coordinator) EnsureDefaultGroups(roleIDs []int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.NowMs()
	for _, store := range c.groupStores {
		assigned := make(map[int]struct{})
		for _, g := range store.Live() {
			for id := range g.RoleIDs {
				assigned[id] = struct{}{}
			}
		}
		var missing []int
		for _, id := range roleIDs {
			if _, ok := assigned[id]; !ok {
				missing = append(missing, id)
			}
		}
		def, ok := store.Get("Default")
		if ok && !def.Deleted {
			if len(missing) == 0 {
				continue
			}
			for _, id := range missing {
				def.RoleIDs[id] = struct{}{}
			}
			def.UpdatedAtMs = now
			continue
		}
		def = groups.NewPermissionGroup(store.Origin, "Default")
		def.Order = store.Len()
		def.UpdatedAtMs = now
		for _, id := range missing {
			def.RoleIDs[id] = struct{}{}
		}
		store.Put(def)
	}
}

// AssignUserGroup records an explicit user→group-origin assignment. Only
// permitted when the role-inconsistency tolerance flag is enabled.
func (c *Coordinator) AssignUserGroup(userID string, origin groups.Origin) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.allowRoleInconsistency {
		return oops.In("controller").Code("PERMISSION_DENIED").
			New("user-group assignment requires allow_role_inconsistency")
	}
	if _, ok := c.groupStores[origin]; !ok {
		return oops.In("controller").Code("ORIGIN_NOT_FOUND").
			With("origin", string(origin)).New("no store for origin")
	}
	c.userToGroup[userID] = origin
	return nil
}

// EffectiveGroup resolves the effective group for a set of roles within an
// origin: the highest-order live group containing any of the roles.
func (c *Coordinator) EffectiveGroup(origin groups.Origin, roleIDs []int) (groups.PermissionGroup, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	store, ok := c.groupStores[origin]
	if !ok {
		return groups.PermissionGroup{}, false, oops.In("controller").Code("ORIGIN_NOT_FOUND").
			With("origin", string(origin)).New("no store for origin")
	}
	g, found := store.EffectiveGroup(roleIDs)
	return g, found, nil
}

// broadcast fans an envelope out and counts it. Callers hold the mutex; the
// broadcaster never blocks, so this is safe.
func (c *Coordinator) broadcast(env message.Envelope) {
	if c.metrics != nil {
		c.metrics.Broadcasts.WithLabelValues(string(env.Kind)).Inc()
	}
	c.broadcaster.Broadcast(env)
}

func (c *Coordinator) countGroupUpdate(result string) {
	if c.metrics != nil {
		c.metrics.GroupUpdates.WithLabelValues(result).Inc()
	}
}

func (c *Coordinator) setOriginsGauge() {
	if c.metrics != nil {
		c.metrics.Origins.Set(float64(len(c.groupStores)))
	}
}
