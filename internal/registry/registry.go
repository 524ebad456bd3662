// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

// Package registry implements the process-wide agent-id → Agent Runtime
// directory (§4.7): the single point of creation, lookup, session-token
// routing, and shutdown for every live agent.
package registry

import (
	"errors"
	"log"
	"sync"

	"github.com/agentcore/runtime/internal/agentruntime"
	"github.com/agentcore/runtime/internal/eventbus"
)

// ErrAgentNotFound mirrors agentruntime's sentinel for operations routed
// by id through the registry.
var ErrAgentNotFound = errors.New("registry: agent not found")

// Factory builds a *agentruntime.Runtime for a newly-registered agent id.
// Kept as an injected function (rather than a concrete constructor call)
// so the registry doesn't need to know the agent binary path or hook
// configurator wiring.
type Factory func(id string) *agentruntime.Runtime

// Registry is the process-wide directory from agent id to its runtime.
type Registry struct {
	mu       sync.RWMutex
	runtimes map[string]*agentruntime.Runtime
	factory  Factory
	bus      *eventbus.Bus
}

// New returns a Registry that lazily constructs runtimes via factory. bus
// (may be nil) is kept on the Registry; the registry itself publishes no
// events — each runtime publishes its own status and exit events.
func New(factory Factory, bus *eventbus.Bus) *Registry {
	return &Registry{
		runtimes: make(map[string]*agentruntime.Runtime),
		factory:  factory,
		bus:      bus,
	}
}

// GetOrCreate returns the runtime for id, constructing one via the
// factory on first reference. The registry is the only place a runtime is
// minted; lookups that must not mint one (the hook endpoint and WebSocket
// gateway wired in cmd/agentd) use Get instead.
func (r *Registry) GetOrCreate(id string) *agentruntime.Runtime {
	r.mu.RLock()
	rt, ok := r.runtimes[id]
	r.mu.RUnlock()
	if ok {
		return rt
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if rt, ok := r.runtimes[id]; ok {
		return rt
	}
	rt = r.factory(id)
	r.runtimes[id] = rt
	return rt
}

// Get returns the runtime for id if one has been referenced before, or
// ErrAgentNotFound otherwise. Unlike GetOrCreate, this never constructs a
// runtime for an id the caller hasn't already touched.
func (r *Registry) Get(id string) (*agentruntime.Runtime, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.runtimes[id]
	if !ok {
		return nil, ErrAgentNotFound
	}
	return rt, nil
}

// IsRunning reports whether id currently has a live process — the check
// the registry's single-spawn invariant is built on (§4.7).
func (r *Registry) IsRunning(id string) bool {
	r.mu.RLock()
	rt, ok := r.runtimes[id]
	r.mu.RUnlock()
	return ok && rt.IsActive()
}

// FindBySession returns the agent id whose runtime currently holds
// sessionToken, used to route hook HTTP notifications (§6). A linear scan
// is sufficient: N is small (one entry per agent id the registry has
// seen). A runtime keeps its token after its process exits, so an exited
// agent still matches.
func (r *Registry) FindBySession(sessionToken string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, rt := range r.runtimes {
		if rt.SessionToken() == sessionToken {
			return id, true
		}
	}
	return "", false
}

// Remove drops id from the directory without stopping its process — used
// after a hard-delete once the runtime has already been stopped.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.runtimes, id)
}

// Ids returns every agent id the registry currently knows about.
func (r *Registry) Ids() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.runtimes))
	for id := range r.runtimes {
		ids = append(ids, id)
	}
	return ids
}

// StopAll force-kills every active runtime, best-effort. Failures are
// logged, never propagated — host shutdown must not hang or abort because
// one child refused to die cleanly.
func (r *Registry) StopAll() {
	r.mu.RLock()
	runtimes := make([]*agentruntime.Runtime, 0, len(r.runtimes))
	for _, rt := range r.runtimes {
		runtimes = append(runtimes, rt)
	}
	r.mu.RUnlock()

	for _, rt := range runtimes {
		if !rt.IsActive() {
			continue
		}
		if err := rt.Stop(true); err != nil {
			log.Printf("[registry] stop_all: %s: %v", rt.ID(), err)
		}
	}
}
