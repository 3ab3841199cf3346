// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ExpCluster Contributors

// Package instance projects replicated permission-group state into one
// game-server process.
//
// The projector keeps a derived cache of every record it has seen, merged
// last-write-wins by UpdatedAtMs, and translates records belonging to its
// effective sync target into game console commands. The cache is never
// authoritative: the controller is, and every push or snapshot re-derives
// the game-side state from it.
package instance

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/explosivegaming/expcluster/internal/clock"
	"github.com/explosivegaming/expcluster/internal/gamelink"
	"github.com/explosivegaming/expcluster/internal/groups"
	"github.com/explosivegaming/expcluster/internal/message"
	"github.com/explosivegaming/expcluster/internal/observability"
)

// Link is the transport to the controller. The real implementation lives
// outside this module; tests use an in-process fake.
type Link interface {
	// Send delivers an envelope to the controller.
	Send(ctx context.Context, env message.Envelope) error
	// GroupSnapshot requests group records changed since the watermark.
	// A nil envelope means nothing changed.
	GroupSnapshot(ctx context.Context, req message.SnapshotRequest) (*message.Envelope, error)
	// StringsSnapshot requests permission-string records changed since the
	// watermark.
	StringsSnapshot(ctx context.Context, req message.SnapshotRequest) (*message.Envelope, error)
}

// Options configures a Projector. Console and Link are required.
type Options struct {
	InstanceID string
	// SyncGroups selects the Global origin as the sync target instead of
	// the instance's own private origin.
	SyncGroups bool
	Console    gamelink.Console
	Link       Link
	Clock      clock.Clock
	Logger     *slog.Logger
	Metrics    *observability.Metrics
	// Running reports whether the game process is accepting commands.
	// Defaults to always true.
	Running func() bool
}

// Projector mirrors controller state into one game process.
type Projector struct {
	mu sync.Mutex

	id         string
	syncGroups bool
	universe   []string
	universeSet map[string]struct{}

	// cache holds every record seen, keyed by Key(), tombstones included.
	cache         map[string]groups.PermissionGroup
	stringsCache  map[groups.Origin]groups.PermissionStrings
	lastRequestMs int64
	synced        bool

	console gamelink.Console
	link    Link
	clock   clock.Clock
	log     *slog.Logger
	metrics *observability.Metrics
	running func() bool
}

// New creates a Projector in the Unsynced state.
func New(opts Options) *Projector {
	if opts.Clock == nil {
		opts.Clock = clock.System{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Running == nil {
		opts.Running = func() bool { return true }
	}
	return &Projector{
		id:           opts.InstanceID,
		syncGroups:   opts.SyncGroups,
		universeSet:  make(map[string]struct{}),
		cache:        make(map[string]groups.PermissionGroup),
		stringsCache: make(map[groups.Origin]groups.PermissionStrings),
		console:      opts.Console,
		link:         opts.Link,
		clock:        opts.Clock,
		log:          opts.Logger,
		metrics:      opts.Metrics,
		running:      opts.Running,
	}
}

// SyncTarget returns the origin this instance currently mirrors.
func (p *Projector) SyncTarget() groups.Origin {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.syncTargetLocked()
}

func (p *Projector) syncTargetLocked() groups.Origin {
	if p.syncGroups {
		return groups.GlobalOrigin
	}
	return groups.Origin(p.id)
}

// Synced reports whether the initial catch-up has completed.
func (p *Projector) Synced() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.synced
}

// Start brings the projector online: it learns the game's permission
// universe, reports it to the controller, then catches up on both snapshot
// streams. The snapshot fetch is retried with fibonacci backoff because the
// controller link may still be settling after a reconnect.
func (p *Projector) Start(ctx context.Context) error {
	out, err := p.console.SendCommand(ctx, gamelink.Script(gamelink.PrintActions()))
	if err != nil {
		p.countConsoleFailure()
		return oops.In("instance").With("instance", p.id).
			Hint("querying permission universe").Wrap(err)
	}
	var universe []string
	if err := json.Unmarshal([]byte(out), &universe); err != nil {
		return oops.In("instance").Code("INVALID_RECORD").
			With("instance", p.id).Hint("permission universe is not a JSON array").Wrap(err)
	}

	p.mu.Lock()
	p.universe = universe
	p.universeSet = make(map[string]struct{}, len(universe))
	for _, perm := range universe {
		p.universeSet[perm] = struct{}{}
	}
	now := p.clock.NowMs()
	p.mu.Unlock()

	strs := groups.NewPermissionStrings(groups.Origin(p.id))
	for _, perm := range universe {
		strs.Permissions[perm] = struct{}{}
	}
	strs.UpdatedAtMs = now
	if err := p.link.Send(ctx, message.NewStringsUpdate([]groups.PermissionStrings{*strs})); err != nil {
		return oops.In("instance").With("instance", p.id).
			Hint("reporting permission universe").Wrap(err)
	}

	backoff := retry.WithMaxRetries(5, retry.NewFibonacci(100*time.Millisecond))
	if err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := p.catchUp(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	}); err != nil {
		return oops.In("instance").With("instance", p.id).Hint("snapshot catch-up").Wrap(err)
	}

	p.log.Info("projector synced",
		"instance", p.id,
		"universe_size", len(universe),
		"sync_target", string(p.SyncTarget()),
	)
	return nil
}

// catchUp performs one snapshot round-trip for both streams and marks the
// projector synced. A nil snapshot still counts: it means the controller
// has nothing newer, which is as caught-up as it gets.
func (p *Projector) catchUp(ctx context.Context) error {
	p.mu.Lock()
	req := message.SnapshotRequest{
		LastRequestTimeMs: p.lastRequestMs,
		Requester:         message.InstanceAddress(p.id),
	}
	p.mu.Unlock()

	genv, err := p.link.GroupSnapshot(ctx, req)
	if err != nil {
		return err
	}
	senv, err := p.link.StringsSnapshot(ctx, req)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.lastRequestMs = p.clock.NowMs()
	p.synced = true
	p.mu.Unlock()

	if senv != nil {
		p.HandleStringsUpdate(*senv)
	}
	if genv != nil {
		p.HandleGroupUpdate(ctx, *genv)
	}
	return nil
}

// HandleGroupUpdate merges a pushed or fetched batch into the cache and
// projects records of the effective sync target into the game.
//
// Merge is last-write-wins per record; a record no newer than the cached
// copy is skipped entirely, so stale catch-up data can never revive a
// deletion. Command generation additionally requires the projector to be
// synced and the game process running. All commands for one batch go out
// as a single console round-trip; console errors are logged, not retried,
// since the next update or catch-up re-derives the state anyway.
func (p *Projector) HandleGroupUpdate(ctx context.Context, env message.Envelope) {
	if env.Kind != message.KindGroupUpdate || env.GroupUpdate == nil {
		return
	}

	p.mu.Lock()
	target := p.syncTargetLocked()
	project := p.synced && p.running()
	var cmds []string
	for _, rec := range env.GroupUpdate.Updates {
		key := rec.Key()
		if prev, ok := p.cache[key]; ok && rec.UpdatedAtMs <= prev.UpdatedAtMs {
			continue
		}
		p.cache[key] = rec
		if !project || rec.Origin != target {
			continue
		}
		cmds = append(cmds, p.commandForLocked(rec))
	}
	p.mu.Unlock()

	p.sendBatch(ctx, cmds)
}

// commandForLocked translates one record into game command text. A small
// permission set becomes a default-deny allow-list; a large one becomes a
// default-allow deny-list, which keeps the command short in the common
// near-all case.
func (p *Projector) commandForLocked(rec groups.PermissionGroup) string {
	if rec.Deleted {
		return gamelink.DestroyGroup(rec.Name)
	}
	if 2*len(rec.Permissions) < len(p.universe) {
		allow := make([]string, 0, len(rec.Permissions))
		for _, perm := range p.universe {
			if _, ok := rec.Permissions[perm]; ok {
				allow = append(allow, perm)
			}
		}
		return gamelink.ApplyDefinition(rec.Name, false, allow)
	}
	deny := make([]string, 0, len(p.universe)-len(rec.Permissions))
	for _, perm := range p.universe {
		if _, ok := rec.Permissions[perm]; !ok {
			deny = append(deny, perm)
		}
	}
	return gamelink.ApplyDefinition(rec.Name, true, deny)
}

// HandleStringsUpdate merges permission-string records into the cache.
func (p *Projector) HandleStringsUpdate(env message.Envelope) {
	if env.Kind != message.KindStringsUpdate || env.StringsUpdate == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, rec := range env.StringsUpdate.Updates {
		if prev, ok := p.stringsCache[rec.Origin]; ok && rec.UpdatedAtMs <= prev.UpdatedAtMs {
			continue
		}
		p.stringsCache[rec.Origin] = rec
	}
}

// HandleGroupEdit mirrors a remote edit event in-game. Events whose source
// is this instance are skipped: the game already applied them locally and
// echoing them back would loop.
func (p *Projector) HandleGroupEdit(ctx context.Context, event message.GroupEdit) {
	if event.Src.Equal(message.InstanceAddress(p.id)) {
		return
	}

	p.mu.Lock()
	ready := p.synced && p.running()
	p.mu.Unlock()
	if !ready {
		return
	}

	var cmd string
	switch event.Type {
	case message.EditAddPermissions:
		cmd = gamelink.AllowActions(event.Group, event.Changes)
	case message.EditRemovePermissions:
		cmd = gamelink.DisallowActions(event.Group, event.Changes)
	case message.EditAssignPlayers:
		cmd = gamelink.AddPlayers(event.Group, event.Changes)
	default:
		return
	}
	p.sendBatch(ctx, []string{cmd})
}

// SetSync retargets the projector. When the game process is idle and the
// projector has already synced, the full cached snapshot for the new target
// is re-projected immediately so the game comes back up with the right
// groups.
func (p *Projector) SetSync(ctx context.Context, enabled bool) {
	p.mu.Lock()
	p.syncGroups = enabled
	target := p.syncTargetLocked()
	reproject := p.synced && !p.running()
	var cmds []string
	if reproject {
		for _, rec := range p.cache {
			if rec.Origin == target {
				cmds = append(cmds, p.commandForLocked(rec))
			}
		}
	}
	p.mu.Unlock()

	p.log.Info("sync target changed", "instance", p.id, "sync_target", string(target))
	p.sendBatch(ctx, cmds)
}

func (p *Projector) sendBatch(ctx context.Context, cmds []string) {
	if len(cmds) == 0 {
		return
	}
	if _, err := p.console.SendCommand(ctx, gamelink.Script(cmds...)); err != nil {
		p.countConsoleFailure()
		p.log.Error("console command failed",
			"instance", p.id,
			"commands", len(cmds),
			"error", err,
		)
	}
}

func (p *Projector) countConsoleFailure() {
	if p.metrics != nil {
		p.metrics.ConsoleFailures.Inc()
	}
}
