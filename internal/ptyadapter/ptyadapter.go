// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

// Package ptyadapter allocates pseudo-terminals and spawns child processes
// attached to them.
package ptyadapter

import (
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/creack/pty"

	"github.com/agentcore/runtime/internal/agentid"
)

// DefaultRows and DefaultCols are the spawn-time terminal size when the
// caller doesn't request a specific one.
const (
	DefaultRows uint16 = 24
	DefaultCols uint16 = 120
)

// Signal is a restricted set of signals the runtime is allowed to deliver
// to a child process.
type Signal int

const (
	SIGINT  Signal = Signal(syscall.SIGINT)
	SIGTERM Signal = Signal(syscall.SIGTERM)
	SIGKILL Signal = Signal(syscall.SIGKILL)
)

// PTY is a pseudo-terminal master paired with the child process attached
// to its slave end.
type PTY struct {
	ID  string
	cmd *exec.Cmd

	mu     sync.Mutex
	master *os.File
	closed bool

	doneOnce sync.Once
	doneChan chan struct{}
}

// Spawn allocates a pseudo-terminal of the given size and starts argv[0]
// with the remaining argv as arguments, the slave as its controlling
// terminal, dir as its working directory (ignored if empty), and env as
// its full environment (TERM is not added automatically; callers building
// argv per §6 of the runtime contract should include it in env).
func Spawn(argv []string, dir string, env []string, rows, cols uint16) (*PTY, error) {
	if len(argv) == 0 {
		return nil, &SpawnError{Reason: "empty argv"}
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = env
	if dir != "" {
		cmd.Dir = dir
	}

	master, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: cols, Rows: rows})
	if err != nil {
		return nil, &SpawnError{Reason: err.Error()}
	}

	return &PTY{
		ID:     agentid.New(),
		cmd:    cmd,
		master: master,
	}, nil
}

// SpawnError reports a PTY-allocation or exec failure.
type SpawnError struct{ Reason string }

func (e *SpawnError) Error() string { return "spawn failed: " + e.Reason }

// Read reads raw bytes from the PTY master. It blocks until data is
// available, the child exits, or the PTY is closed.
func (p *PTY) Read(buf []byte) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, os.ErrClosed
	}
	f := p.master
	p.mu.Unlock()
	return f.Read(buf)
}

// Write writes raw bytes to the PTY master.
func (p *PTY) Write(data []byte) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, os.ErrClosed
	}
	f := p.master
	p.mu.Unlock()
	return f.Write(data)
}

// Resize changes the PTY window size.
func (p *PTY) Resize(rows, cols uint16) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return os.ErrClosed
	}
	return pty.Setsize(p.master, &pty.Winsize{Cols: cols, Rows: rows})
}

// Signal delivers sig to the child process.
func (p *PTY) Signal(sig Signal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return os.ErrClosed
	}
	if p.cmd.Process == nil {
		return os.ErrProcessDone
	}
	return p.cmd.Process.Signal(syscall.Signal(sig))
}

// Pid returns the child's process id, or 0 if it never started.
func (p *PTY) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Close kills the child (if still alive) and closes the PTY master. It is
// idempotent.
func (p *PTY) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if p.cmd.Process != nil {
		p.cmd.Process.Kill()
	}
	return p.master.Close()
}

// Done returns a channel that is closed once the child process has been
// reaped via Wait. The wait goroutine is started on first call only, so
// repeated calls never leak goroutines.
func (p *PTY) Done() <-chan struct{} {
	p.doneOnce.Do(func() {
		p.doneChan = make(chan struct{})
		go func() {
			p.cmd.Wait()
			close(p.doneChan)
		}()
	})
	return p.doneChan
}

// ExitInfo describes how the child process terminated, in the shape the
// status reconciler's Exit event needs.
type ExitInfo struct {
	Code   *int
	Signal *string
}

// ExitInfoFromState converts a reaped child's process state into ExitInfo.
// It does not block; a nil state yields a zero ExitInfo. The state is only
// populated once Done has fired, so callers wait on Done first and then
// pass ProcessState() here.
func ExitInfoFromState(state *os.ProcessState) ExitInfo {
	if state == nil {
		return ExitInfo{}
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok {
		if ws.Signaled() {
			s := ws.Signal().String()
			return ExitInfo{Signal: &s}
		}
		if ws.Exited() {
			c := ws.ExitStatus()
			return ExitInfo{Code: &c}
		}
	}
	code := state.ExitCode()
	return ExitInfo{Code: &code}
}

// ProcessState returns the child's exit state once it has exited, or nil
// before that. Safe to call any time after Done() has fired.
func (p *PTY) ProcessState() *os.ProcessState {
	return p.cmd.ProcessState
}
