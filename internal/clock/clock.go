// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ExpCluster Contributors

// Package clock provides the wall-clock millisecond source used to stamp
// replicated writes.
package clock

import (
	"sync/atomic"
	"time"
)

// Clock supplies last-write timestamps in milliseconds.
type Clock interface {
	NowMs() int64
}

// System reads the real wall clock.
type System struct{}

// NowMs returns the current Unix time in milliseconds.
func (System) NowMs() int64 { return time.Now().UnixMilli() }

// Manual is a test clock that only moves when told to.
type Manual struct {
	ms atomic.Int64
}

// NewManual creates a manual clock starting at the given millisecond value.
func NewManual(startMs int64) *Manual {
	m := &Manual{}
	m.ms.Store(startMs)
	return m
}

// NowMs returns the current manual time.
func (m *Manual) NowMs() int64 { return m.ms.Load() }

// Advance moves the clock forward by d milliseconds and returns the new time.
func (m *Manual) Advance(d int64) int64 { return m.ms.Add(d) }

// Set jumps the clock to the given millisecond value.
func (m *Manual) Set(ms int64) { m.ms.Store(ms) }
