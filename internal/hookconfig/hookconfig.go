// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

// Package hookconfig writes and keeps in sync the per-worktree
// .claude/settings.local.json file that instructs the agent binary to
// POST lifecycle notifications to the hook HTTP endpoint (§4.9).
package hookconfig

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

const settingsFileName = "settings.local.json"

// Matcher names the hook configurator always ensures are present.
var matchers = []string{"permission_prompt", "idle_prompt", "elicitation_dialog"}

// Configurator ensures each worktree's settings file carries the three
// hook entries pointing at hookURL, merging with (and preserving) any
// unrelated keys already present.
type Configurator struct {
	hookURL string

	watcher *fsnotify.Watcher
}

// New returns a Configurator that points generated hooks at hookURL
// (typically "http://127.0.0.1:<port>/hooks").
func New(hookURL string) *Configurator {
	return &Configurator{hookURL: hookURL}
}

// EnsureHooks writes (or merges into) <worktree>/.claude/settings.local.json
// so its hooks.Notification key contains the three matcher entries. It is
// non-fatal on failure: the caller logs and continues, since the §4.5.1
// heuristic remains as fallback.
func (c *Configurator) EnsureHooks(worktree string) error {
	claudeDir := filepath.Join(worktree, ".claude")
	if err := os.MkdirAll(claudeDir, 0o755); err != nil {
		return fmt.Errorf("create .claude dir: %w", err)
	}
	path := filepath.Join(claudeDir, settingsFileName)
	return c.mergeHooksInto(path)
}

func (c *Configurator) mergeHooksInto(path string) error {
	settings, err := readJSONObject(path)
	if err != nil {
		return fmt.Errorf("read settings: %w", err)
	}

	hooksVal, _ := settings["hooks"].(map[string]interface{})
	if hooksVal == nil {
		hooksVal = make(map[string]interface{})
	}

	entries := make([]interface{}, 0, len(matchers))
	for _, matcher := range matchers {
		entries = append(entries, map[string]interface{}{
			"matcher": matcher,
			"hooks": []interface{}{
				map[string]interface{}{
					"type":    "command",
					"command": c.curlCommand(),
				},
			},
		})
	}
	hooksVal["Notification"] = entries
	settings["hooks"] = hooksVal

	out, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	out = append(out, '\n')

	// Skip the write (and the self-triggered fsnotify event it would
	// cause when Watch is active) if the merged content already matches
	// what's on disk.
	if existing, err := os.ReadFile(path); err == nil && bytes.Equal(existing, out) {
		return nil
	}
	return os.WriteFile(path, out, 0o644)
}

// curlCommand is the shell command the hook entry invokes: it forwards
// its stdin JSON verbatim to the local hook endpoint.
func (c *Configurator) curlCommand() string {
	return fmt.Sprintf("curl -s -X POST -H 'Content-Type: application/json' -d @- %s", c.hookURL)
}

func readJSONObject(path string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return make(map[string]interface{}), nil
	}
	if err != nil {
		return nil, err
	}
	var obj map[string]interface{}
	if err := json.Unmarshal(data, &obj); err != nil {
		// A malformed existing file is treated as empty rather than
		// failing the spawn outright.
		return make(map[string]interface{}), nil
	}
	if obj == nil {
		obj = make(map[string]interface{})
	}
	return obj, nil
}

// Watch starts an fsnotify watch on worktree's settings file so external
// edits (a human hand-editing settings.local.json, or another tool
// rewriting it) get the hook entries re-merged in rather than silently
// losing them. It is additive to EnsureHooks, not a replacement: the
// initial write still happens synchronously before spawn.
func (c *Configurator) Watch(worktree string) error {
	if c.watcher == nil {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("create watcher: %w", err)
		}
		c.watcher = w
		go c.watchLoop()
	}
	claudeDir := filepath.Join(worktree, ".claude")
	if err := c.watcher.Add(claudeDir); err != nil {
		return fmt.Errorf("watch %s: %w", claudeDir, err)
	}
	return nil
}

func (c *Configurator) watchLoop() {
	for {
		select {
		case ev, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != settingsFileName {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := c.mergeHooksInto(ev.Name); err != nil {
				log.Printf("[hookconfig] re-merge %s after external edit: %v", ev.Name, err)
			}
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[hookconfig] watch error: %v", err)
		}
	}
}

// Close stops the fsnotify watcher, if one was started.
func (c *Configurator) Close() error {
	if c.watcher == nil {
		return nil
	}
	return c.watcher.Close()
}
