// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ExpCluster Contributors

package controller

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/explosivegaming/expcluster/internal/groups"
	"github.com/explosivegaming/expcluster/internal/message"
)

func TestBroadcaster_FanOutOrder(t *testing.T) {
	b := NewBroadcaster()
	s1 := b.Subscribe(0)
	s2 := b.Subscribe(0)
	defer b.Unsubscribe(s1.ID)
	defer b.Unsubscribe(s2.ID)

	first := message.NewGroupUpdate([]groups.PermissionGroup{{Name: "A"}})
	second := message.NewGroupUpdate([]groups.PermissionGroup{{Name: "B"}})
	b.Broadcast(first)
	b.Broadcast(second)

	for _, sub := range []*Subscription{s1, s2} {
		got := drain(sub)
		require.Len(t, got, 2)
		assert.Equal(t, "A", got[0].GroupUpdate.Updates[0].Name)
		assert.Equal(t, "B", got[1].GroupUpdate.Updates[0].Name)
	}
}

func TestBroadcaster_UnsubscribeClosesChannel(t *testing.T) {
	b := NewBroadcaster()
	sub := b.Subscribe(0)
	require.Equal(t, 1, b.Len())

	b.Unsubscribe(sub.ID)
	assert.Equal(t, 0, b.Len())
	_, open := <-sub.C
	assert.False(t, open)

	// Unsubscribing twice is harmless.
	b.Unsubscribe(sub.ID)
}

func TestBroadcaster_SlowSubscriberDropsNotBlocks(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := NewBroadcaster()
	slow := b.Subscribe(1)
	defer b.Unsubscribe(slow.ID)

	env := message.NewGroupUpdate(nil)
	done := make(chan struct{})
	go func() {
		defer close(done)
		// Second broadcast overflows the buffer and must not block.
		b.Broadcast(env)
		b.Broadcast(env)
	}()
	<-done

	assert.Len(t, drain(slow), 1, "overflowing batch is dropped")
}

func TestBroadcaster_ConcurrentSubscribers(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := NewBroadcaster()
	env := message.NewGroupUpdate(nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub := b.Subscribe(16)
			b.Broadcast(env)
			drain(sub)
			b.Unsubscribe(sub.ID)
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, b.Len())
}
