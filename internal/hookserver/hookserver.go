// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

// Package hookserver implements the loopback HTTP endpoint agent
// processes POST lifecycle notifications to (§6): session lookup, routing
// to the owning runtime's Status Reconciler, 202 on accept.
package hookserver

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/agentcore/runtime/internal/reconciler"
)

// Router is the narrow lookup hookserver needs — satisfied by
// *registry.Registry.
type Router interface {
	FindBySession(sessionToken string) (agentID string, ok bool)
}

// Dispatcher is the narrow notification sink hookserver needs from a
// runtime — satisfied by *agentruntime.Runtime.
type Dispatcher interface {
	HandleHookNotification(nt reconciler.NotificationType)
}

// RuntimeLookup resolves an agent id to its Dispatcher, or ok=false if no
// such agent is currently known.
type RuntimeLookup func(agentID string) (Dispatcher, bool)

// payload mirrors §6's body fields, all optional. Unknown JSON fields are
// ignored by encoding/json by default, matching the permissive contract.
type payload struct {
	SessionID        string `json:"session_id"`
	Cwd              string `json:"cwd"`
	HookEventName    string `json:"hook_event_name"`
	NotificationType string `json:"notification_type"`
	Message          string `json:"message"`
}

// Server is the hook HTTP endpoint.
type Server struct {
	router Router
	lookup RuntimeLookup
}

// New returns a Server routing incoming hook notifications through router
// (session token → agent id) and lookup (agent id → runtime).
func New(router Router, lookup RuntimeLookup) *Server {
	return &Server{router: router, lookup: lookup}
}

// Handler returns a standalone http.Handler serving POST /hooks, for tests
// and single-purpose listeners.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

// RegisterRoutes mounts the hook endpoint onto a shared mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /hooks", s.handleHook)
}

func (s *Server) handleHook(w http.ResponseWriter, r *http.Request) {
	var p payload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		log.Printf("[hookserver] malformed body: %v", err)
		http.Error(w, "malformed body", http.StatusBadRequest)
		return
	}

	if p.SessionID == "" {
		// No session to route on; accept anyway (§6: sender does not retry).
		w.WriteHeader(http.StatusAccepted)
		return
	}

	agentID, ok := s.router.FindBySession(p.SessionID)
	if !ok {
		log.Printf("[hookserver] no agent for session %s", p.SessionID)
		w.WriteHeader(http.StatusAccepted)
		return
	}

	dispatcher, ok := s.lookup(agentID)
	if !ok {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	dispatcher.HandleHookNotification(reconciler.NotificationType(p.NotificationType))
	w.WriteHeader(http.StatusAccepted)
}
