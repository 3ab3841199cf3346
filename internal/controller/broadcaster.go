// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ExpCluster Contributors

package controller

import (
	"log/slog"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/explosivegaming/expcluster/internal/message"
)

// defaultSubscriberBuffer is the per-subscriber channel capacity.
const defaultSubscriberBuffer = 100

// Subscription is one subscriber's delivery channel. Consume from C until it
// is closed by Unsubscribe.
type Subscription struct {
	ID ulid.ULID
	C  chan message.Envelope
}

// Broadcaster fans merged update batches out to all current subscribers.
// Delivery order equals broadcast call order. A subscriber that cannot keep
// up loses the batch and must catch up through a snapshot request, the same
// as a disconnected one.
type Broadcaster struct {
	mu   sync.RWMutex
	subs map[ulid.ULID]*Subscription
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subs: make(map[ulid.ULID]*Subscription),
	}
}

// Subscribe registers a new subscriber. A buffer of 0 uses the default.
func (b *Broadcaster) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	sub := &Subscription{
		ID: ulid.Make(),
		C:  make(chan message.Envelope, buffer),
	}
	b.mu.Lock()
	b.subs[sub.ID] = sub
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broadcaster) Unsubscribe(id ulid.ULID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(sub.C)
	}
}

// Broadcast delivers an envelope to every subscriber without blocking.
func (b *Broadcaster) Broadcast(env message.Envelope) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		select {
		case sub.C <- env:
		default:
			slog.Warn("update dropped: subscriber buffer full",
				"subscriber", sub.ID.String(),
				"kind", env.Kind,
			)
		}
	}
}

// Len returns the current subscriber count.
func (b *Broadcaster) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
