// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

// Package fanout implements the one-producer-many-consumer byte broadcast
// each agent's PTY reader publishes through. It never blocks the producer:
// a subscriber that can't keep up misses chunks and must resubscribe (and
// replay the buffer tail) to resynchronize.
package fanout

import "sync"

// Capacity is the number of chunk slots buffered per subscriber before the
// subscriber starts lagging and dropping chunks.
const Capacity = 1000

// Broadcaster fans byte chunks out to zero or more subscribers.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[chan []byte]struct{}
}

// New returns a ready-to-use Broadcaster.
func New() *Broadcaster {
	return &Broadcaster{subs: make(map[chan []byte]struct{})}
}

// Subscribe registers a new subscriber and returns its receive channel
// along with an unsubscribe function. Unsubscribing never affects the
// producer or other subscribers.
func (b *Broadcaster) Subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, Capacity)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, unsubscribe
}

// Publish delivers chunk to every current subscriber. A subscriber whose
// channel is full has the chunk dropped for it — Publish never blocks.
func (b *Broadcaster) Publish(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- chunk:
		default:
		}
	}
}

// Close closes every subscriber channel and removes them. Used on final
// teardown of the owning agent runtime.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
}

// SubscriberCount reports the number of live subscribers, for diagnostics.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
