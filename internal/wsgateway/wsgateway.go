// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

// Package wsgateway is a thin WebSocket adapter over the Agent Runtime and
// Event Bus: it upgrades a connection, pumps the replay snapshot then live
// output as binary frames, and pumps bus events as JSON text frames. The
// front-end transport itself is out of scope; this package only exercises
// the subscribe/unsubscribe and ping/pong heartbeat contract §6 assumes.
package wsgateway

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/agentcore/runtime/internal/eventbus"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// OutputSource is the narrow interface wsgateway needs from a runtime —
// satisfied by *agentruntime.Runtime.
type OutputSource interface {
	SubscribeOutput() (<-chan []byte, func(), []byte, error)
	Resize(rows, cols uint16) error
	Send(data []byte) error
}

// Lookup resolves an agent id to its OutputSource, or ok=false if unknown.
type Lookup func(agentID string) (OutputSource, bool)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true }, // loopback transport, §1 Non-goals: authentication
}

// Gateway upgrades HTTP connections into streaming agent-output sockets.
type Gateway struct {
	lookup Lookup
	bus    *eventbus.Bus
}

// New returns a Gateway resolving agent ids via lookup and mirroring bus
// events to each connected client; a client receives only events for its
// own agent (and events with no agent id).
func New(lookup Lookup, bus *eventbus.Bus) *Gateway {
	return &Gateway{lookup: lookup, bus: bus}
}

// HandleAgent upgrades the request and attaches it to the agent named by
// the "id" path value (mount at "GET /agents/{id}/ws").
func (g *Gateway) HandleAgent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	src, ok := g.lookup(id)
	if !ok {
		http.Error(w, "agent not found", http.StatusNotFound)
		return
	}

	ch, unsub, snapshot, err := src.SubscribeOutput()
	if err != nil {
		http.Error(w, "agent not active", http.StatusConflict)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[wsgateway] upgrade failed: %v", err)
		unsub()
		return
	}

	var events <-chan eventbus.Event
	var unsubEvents func()
	if g.bus != nil {
		events, unsubEvents = g.bus.Subscribe()
	}

	client := &session{
		conn:        conn,
		output:      ch,
		unsub:       unsub,
		events:      events,
		unsubEvents: unsubEvents,
		src:         src,
		agentID:     id,
	}
	go client.writePump(snapshot)
	go client.readPump()
}

// session is one connected client's read/write pump pair, mirroring the
// PTY WebSocket client shape used for the front-end terminal transport.
type session struct {
	conn        *websocket.Conn
	output      <-chan []byte
	unsub       func()
	events      <-chan eventbus.Event
	unsubEvents func()
	src         OutputSource
	agentID     string
}

type controlMessage struct {
	Type string `json:"type"`
	Cols uint16 `json:"cols,omitempty"`
	Rows uint16 `json:"rows,omitempty"`
}

func (s *session) readPump() {
	defer func() {
		s.unsub()
		if s.unsubEvents != nil {
			s.unsubEvents()
		}
		s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[wsgateway] %s: read error: %v", s.agentID, err)
			}
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			s.src.Send(data)
		case websocket.TextMessage:
			var msg controlMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			if msg.Type == "resize" && msg.Cols > 0 && msg.Rows > 0 {
				s.src.Resize(msg.Rows, msg.Cols)
			}
		}
	}
}

func (s *session) writePump(snapshot []byte) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	if len(snapshot) > 0 {
		s.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := s.conn.WriteMessage(websocket.BinaryMessage, snapshot); err != nil {
			return
		}
	}

	for {
		select {
		case chunk, ok := <-s.output:
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
				return
			}

		case ev, ok := <-s.events:
			if !ok {
				s.events = nil
				continue
			}
			if ev.AgentID != "" && ev.AgentID != s.agentID {
				continue
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
