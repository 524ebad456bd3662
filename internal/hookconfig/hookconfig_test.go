package hookconfig

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestEnsureHooksCreatesFile(t *testing.T) {
	dir := t.TempDir()
	c := New("http://127.0.0.1:9999/hooks")

	if err := c.EnsureHooks(dir); err != nil {
		t.Fatalf("EnsureHooks: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, ".claude", settingsFileName))
	if err != nil {
		t.Fatalf("read settings file: %v", err)
	}

	var settings map[string]interface{}
	if err := json.Unmarshal(data, &settings); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	hooks, ok := settings["hooks"].(map[string]interface{})
	if !ok {
		t.Fatalf("no hooks key: %v", settings)
	}
	notif, ok := hooks["Notification"].([]interface{})
	if !ok || len(notif) != 3 {
		t.Fatalf("expected 3 notification matchers, got %v", hooks["Notification"])
	}
}

func TestEnsureHooksPreservesUnrelatedKeys(t *testing.T) {
	dir := t.TempDir()
	claudeDir := filepath.Join(dir, ".claude")
	if err := os.MkdirAll(claudeDir, 0o755); err != nil {
		t.Fatal(err)
	}
	existing := map[string]interface{}{
		"theme":         "dark",
		"someOtherFlag": true,
	}
	data, _ := json.Marshal(existing)
	if err := os.WriteFile(filepath.Join(claudeDir, settingsFileName), data, 0o644); err != nil {
		t.Fatal(err)
	}

	c := New("http://127.0.0.1:9999/hooks")
	if err := c.EnsureHooks(dir); err != nil {
		t.Fatalf("EnsureHooks: %v", err)
	}

	out, err := os.ReadFile(filepath.Join(claudeDir, settingsFileName))
	if err != nil {
		t.Fatal(err)
	}
	var settings map[string]interface{}
	if err := json.Unmarshal(out, &settings); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if settings["theme"] != "dark" {
		t.Fatalf("unrelated key 'theme' lost: %v", settings)
	}
	if settings["someOtherFlag"] != true {
		t.Fatalf("unrelated key 'someOtherFlag' lost: %v", settings)
	}
	if _, ok := settings["hooks"]; !ok {
		t.Fatalf("hooks key missing after merge")
	}
}

func TestEnsureHooksIdempotentNoRewrite(t *testing.T) {
	dir := t.TempDir()
	c := New("http://127.0.0.1:9999/hooks")
	if err := c.EnsureHooks(dir); err != nil {
		t.Fatalf("EnsureHooks: %v", err)
	}
	path := filepath.Join(dir, ".claude", settingsFileName)
	before, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}

	if err := c.EnsureHooks(dir); err != nil {
		t.Fatalf("EnsureHooks (second call): %v", err)
	}
	after, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if before.ModTime() != after.ModTime() {
		t.Fatalf("file was rewritten despite unchanged content")
	}
}

func TestWatchReMergesAfterExternalEdit(t *testing.T) {
	dir := t.TempDir()
	c := New("http://127.0.0.1:9999/hooks")
	defer c.Close()

	if err := c.EnsureHooks(dir); err != nil {
		t.Fatalf("EnsureHooks: %v", err)
	}
	if err := c.Watch(dir); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	path := filepath.Join(dir, ".claude", settingsFileName)

	// Simulate a human (or another tool) overwriting the file, dropping
	// the hook entries but keeping an unrelated key.
	overwritten := map[string]interface{}{"theme": "light"}
	data, _ := json.Marshal(overwritten)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("overwrite settings: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		out, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read settings: %v", err)
		}
		var settings map[string]interface{}
		if err := json.Unmarshal(out, &settings); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if hooks, ok := settings["hooks"].(map[string]interface{}); ok {
			if notif, ok := hooks["Notification"].([]interface{}); ok && len(notif) == 3 {
				if settings["theme"] != "light" {
					t.Fatalf("external key 'theme' lost during re-merge: %v", settings)
				}
				return
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("hooks were not re-merged after external edit, last content: %s", out)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
