// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

// Package agentruntime implements the per-agent aggregate (§4.6): the PTY
// Adapter, Replay Buffer, Output Fan-out, Input Channel, and Status
// Reconciler wired together behind one lock, with lifecycle operations
// spawn/send/subscribe_output/resize/stop.
package agentruntime

import (
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/agentcore/runtime/internal/agentid"
	"github.com/agentcore/runtime/internal/eventbus"
	"github.com/agentcore/runtime/internal/fanout"
	"github.com/agentcore/runtime/internal/inputchan"
	"github.com/agentcore/runtime/internal/ptyadapter"
	"github.com/agentcore/runtime/internal/reconciler"
	"github.com/agentcore/runtime/internal/replay"
)

// Error taxonomy (§7).
var (
	ErrAgentNotFound = errors.New("agentruntime: agent not found")
	ErrAlreadyRunning = errors.New("agentruntime: already running")
)

// SpawnFailedError wraps a PTY/exec/filesystem failure during spawn.
type SpawnFailedError struct{ Reason string }

func (e *SpawnFailedError) Error() string { return "agentruntime: spawn failed: " + e.Reason }

const (
	exitPollInterval = 100 * time.Millisecond
	idleTickInterval = 1 * time.Second
	readChunkSize    = 32 * 1024
)

// HookWriter is the narrow interface Runtime needs from the hook
// configurator (§4.9) — satisfied by *hookconfig.Configurator.
type HookWriter interface {
	EnsureHooks(worktree string) error
}

// HookWatcher is the optional live-reconciliation half of HookWriter —
// satisfied by *hookconfig.Configurator, checked with a type assertion so
// test doubles that only implement EnsureHooks still satisfy HookWriter.
type HookWatcher interface {
	Watch(worktree string) error
}

// Runtime is one agent's aggregate AgentRuntime record (§3). A zero value
// is not usable; construct with New.
type Runtime struct {
	id      string
	agentBin string
	events  *eventbus.Bus
	hooks   HookWriter

	mu sync.Mutex

	pty          *ptyadapter.PTY
	input        *inputchan.Channel
	fanout       *fanout.Broadcaster
	sessionToken string
	generation   int // bumped on every spawn, guards against stale goroutines

	replay *replay.Buffer

	reconciler *reconciler.Reconciler
}

// New returns a Runtime for agent id, publishing structured events onto
// bus, using agentBin as the child binary to exec, and hooks to write the
// per-worktree hook configuration before each spawn.
func New(id, agentBin string, bus *eventbus.Bus, hooks HookWriter) *Runtime {
	r := &Runtime{id: id, agentBin: agentBin, events: bus, hooks: hooks, replay: &replay.Buffer{}}
	r.reconciler = reconciler.New(r.replayTail, r.onStatus)
	return r
}

func (r *Runtime) onStatus(s reconciler.Status) {
	if r.events == nil {
		return
	}
	r.events.Publish(eventbus.Event{Kind: eventbus.KindStatus, AgentID: r.id, Status: string(s)})
}

func (r *Runtime) replayTail() []byte {
	return r.replay.Tail(reconciler.TailWindow)
}

// ReplaySnapshot returns a copy of the current replay buffer, surviving
// across process exit until ClearReplay runs (Spawn calls it only for a
// fresh session; a resumed spawn keeps the buffer).
func (r *Runtime) ReplaySnapshot() []byte {
	return r.replay.Snapshot()
}

// ClearReplay truncates the replay buffer. Called on a fresh spawn (new
// session) and on hard-delete, never on a bare process exit.
func (r *Runtime) ClearReplay() {
	r.replay.Clear()
}

// SessionToken returns the current session token, or "" if none has been
// assigned yet.
func (r *Runtime) SessionToken() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessionToken
}

// IsActive reports whether a live process is attached (process.is_some()
// in §3's terms).
func (r *Runtime) IsActive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pty != nil
}

// Spawn allocates a PTY, builds argv per §6, and starts the child. It
// returns the child's pid and the session token now associated with this
// agent (freshly minted, or the resumed one). Spawning a second time
// while a process is already active returns ErrAlreadyRunning without
// touching the live process.
func (r *Runtime) Spawn(worktree string, mode Mode, perms []Permission, resumeToken string, env []string) (pid int, sessionToken string, err error) {
	r.mu.Lock()
	if r.pty != nil {
		r.mu.Unlock()
		return 0, "", ErrAlreadyRunning
	}

	if r.hooks != nil {
		if err := r.hooks.EnsureHooks(worktree); err != nil {
			log.Printf("[agentruntime] hook config for %s: %v (heuristic fallback remains active)", r.id, err)
		}
		if w, ok := r.hooks.(HookWatcher); ok {
			if err := w.Watch(worktree); err != nil {
				log.Printf("[agentruntime] hook watch for %s: %v (external edits won't be re-merged)", r.id, err)
			}
		}
	}

	token := resumeToken
	isFresh := token == ""
	if isFresh {
		token = agentid.New()
	}
	argv := buildArgv(r.agentBin, mode, perms, resumeToken, token)

	p, spawnErr := ptyadapter.Spawn(argv, worktree, env, ptyadapter.DefaultRows, ptyadapter.DefaultCols)
	if spawnErr != nil {
		r.mu.Unlock()
		return 0, "", &SpawnFailedError{Reason: spawnErr.Error()}
	}

	if isFresh {
		r.ClearReplay()
	}

	r.pty = p
	r.fanout = fanout.New()
	r.input = inputchan.Start(p)
	r.sessionToken = token
	r.generation++
	gen := r.generation
	r.mu.Unlock()

	r.reconciler.OnSpawn(time.Now())

	go r.readLoop(p, gen)
	go r.exitPoll(p, gen)
	go r.idleTick(p, gen)

	return p.Pid(), token, nil
}

func (r *Runtime) currentGeneration() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.generation
}

func (r *Runtime) readLoop(p *ptyadapter.PTY, gen int) {
	buf := make([]byte, readChunkSize)
	for {
		n, err := p.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			r.replay.Append(chunk)

			r.mu.Lock()
			active := r.generation == gen && r.fanout != nil
			fo := r.fanout
			r.mu.Unlock()
			if active {
				fo.Publish(chunk)
			}
			r.reconciler.OnByteArrival(time.Now())
		}
		if err != nil {
			return
		}
	}
}

func (r *Runtime) exitPoll(p *ptyadapter.PTY, gen int) {
	ticker := time.NewTicker(exitPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.Done():
			r.handleExit(p, gen)
			return
		case <-ticker.C:
			// Tick cadence matches the spec's poll interval; Done()
			// delivers the actual observation the instant cmd.Wait
			// returns, so this tick mostly exists to keep the
			// concurrency model's stated shape (a 100ms-granularity
			// exit observation) rather than to drive a syscall poll.
		}
	}
}

func (r *Runtime) idleTick(p *ptyadapter.PTY, gen int) {
	ticker := time.NewTicker(idleTickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.Done():
			return
		case <-ticker.C:
			if r.currentGeneration() != gen {
				return
			}
			r.reconciler.OnInactivityTick(time.Now())
		}
	}
}

// handleExit performs the teardown a child-exit observation triggers:
// clear_active() plus an Exit event, retaining the replay buffer and
// session token.
func (r *Runtime) handleExit(p *ptyadapter.PTY, gen int) {
	r.mu.Lock()
	if r.generation != gen || r.pty != p {
		r.mu.Unlock()
		return // superseded by a later spawn or an explicit force-stop
	}
	info := ptyadapter.ExitInfoFromState(p.ProcessState())
	r.clearActiveLocked()
	r.mu.Unlock()

	p.Close()
	r.reconciler.ClearActive()
	r.publishExit(info)
}

// clearActiveLocked must be called with r.mu held.
func (r *Runtime) clearActiveLocked() {
	if r.fanout != nil {
		r.fanout.Close()
	}
	if r.input != nil {
		r.input.Close()
	}
	r.pty = nil
	r.input = nil
	r.fanout = nil
}

func (r *Runtime) publishExit(info ptyadapter.ExitInfo) {
	if r.events == nil {
		return
	}
	r.events.Publish(eventbus.Event{Kind: eventbus.KindExit, AgentID: r.id, Code: info.Code, Signal: info.Signal})
}

// Send enqueues bytes to the input channel.
func (r *Runtime) Send(data []byte) error {
	r.mu.Lock()
	in := r.input
	r.mu.Unlock()
	if in == nil {
		return ErrAgentNotFound
	}
	in.Send(data)
	return nil
}

// SendMessage wraps text as text+"\n" and enqueues it.
func (r *Runtime) SendMessage(text string) error {
	r.mu.Lock()
	in := r.input
	r.mu.Unlock()
	if in == nil {
		return ErrAgentNotFound
	}
	in.SendMessage(text)
	return nil
}

// SubscribeOutput returns a fresh receive channel, an unsubscribe
// function, and the current replay snapshot the caller must forward
// before streaming the channel, per §4.3/§4.6.
func (r *Runtime) SubscribeOutput() (<-chan []byte, func(), []byte, error) {
	r.mu.Lock()
	fo := r.fanout
	r.mu.Unlock()
	if fo == nil {
		return nil, nil, nil, ErrAgentNotFound
	}
	ch, unsub := fo.Subscribe()
	return ch, unsub, r.ReplaySnapshot(), nil
}

// Resize changes the PTY window size.
func (r *Runtime) Resize(rows, cols uint16) error {
	r.mu.Lock()
	p := r.pty
	r.mu.Unlock()
	if p == nil {
		return ErrAgentNotFound
	}
	if err := p.Resize(rows, cols); err != nil {
		if errors.Is(err, os.ErrClosed) {
			return ErrAgentNotFound
		}
		return err
	}
	return nil
}

// Stop ends the agent's process. force=true kills immediately and
// synchronously clears active state, emitting Exit before returning.
// force=false sends an interrupt and returns immediately; the exit
// poller completes teardown once the child actually exits.
func (r *Runtime) Stop(force bool) error {
	r.mu.Lock()
	p := r.pty
	gen := r.generation
	r.mu.Unlock()
	if p == nil {
		return ErrAgentNotFound
	}

	if !force {
		return p.Signal(ptyadapter.SIGINT)
	}

	p.Signal(ptyadapter.SIGKILL)

	r.mu.Lock()
	if r.generation != gen || r.pty != p {
		r.mu.Unlock()
		return nil // already torn down by the exit poller
	}
	r.clearActiveLocked()
	r.mu.Unlock()

	p.Close()
	r.reconciler.ClearActive()
	sig := "SIGKILL"
	r.publishExit(ptyadapter.ExitInfo{Signal: &sig})
	return nil
}

// HandleHookNotification forwards an out-of-band lifecycle notification
// (§6's POST /hooks contract) to this agent's reconciler.
func (r *Runtime) HandleHookNotification(nt reconciler.NotificationType) {
	r.reconciler.OnHookNotification(nt, time.Now())
}

// ID returns the agent id this runtime belongs to.
func (r *Runtime) ID() string { return r.id }

// String implements fmt.Stringer for logging.
func (r *Runtime) String() string {
	return fmt.Sprintf("Runtime(%s, active=%v)", r.id, r.IsActive())
}
