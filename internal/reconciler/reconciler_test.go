package reconciler

import (
	"testing"
	"time"
)

func TestPromptDetection(t *testing.T) {
	waiting := []string{
		"Continue? [Y/n]",
		"Allow read access?",
		"Do you want to proceed?",
		"Approve this action",
		"Continue? (yes/no)",
	}
	for _, s := range waiting {
		if !IsWaiting(s) {
			t.Errorf("IsWaiting(%q) = false, want true", s)
		}
	}
	notWaiting := []string{"Processing...", ""}
	for _, s := range notWaiting {
		if IsWaiting(s) {
			t.Errorf("IsWaiting(%q) = true, want false", s)
		}
	}
}

func TestStripANSIIdempotent(t *testing.T) {
	inputs := []string{
		"\x1b[31mred\x1b[0m text",
		"\x1b]0;title\x07plain",
		"no escapes here",
	}
	for _, in := range inputs {
		once := StripANSI(in)
		twice := StripANSI(once)
		if once != twice {
			t.Errorf("StripANSI not idempotent for %q: once=%q twice=%q", in, once, twice)
		}
		if IsWaiting(once) != IsWaiting(in) {
			t.Errorf("IsWaiting differs after stripping for %q", in)
		}
	}
}

func TestIdleThenHookOverridesHeuristic(t *testing.T) {
	var statuses []Status
	tail := []byte("Working...")
	r := New(func() []byte { return tail }, func(s Status) { statuses = append(statuses, s) })

	start := time.Now()
	r.OnSpawn(start)

	idleTick := start.Add(4 * time.Second)
	r.OnInactivityTick(idleTick)
	if len(statuses) != 2 || statuses[1] != StatusIdle {
		t.Fatalf("statuses = %v, want [running idle]", statuses)
	}

	hookTime := idleTick.Add(time.Second)
	r.OnHookNotification(NotificationPermissionPrompt, hookTime)
	if statuses[len(statuses)-1] != StatusWaiting {
		t.Fatalf("last status = %v, want waiting", statuses[len(statuses)-1])
	}

	// isIdle is already true, so even absent hook suppression the next
	// tick is a no-op; but additionally it's within T_hook so it must not
	// re-emit even if isIdle were reset externally. Exercise the
	// suppression path directly by resetting isIdle-adjacent fields is not
	// exposed; instead confirm tick right after stays quiet.
	before := len(statuses)
	r.OnInactivityTick(hookTime.Add(time.Millisecond))
	if len(statuses) != before {
		t.Fatalf("tick immediately after hook emitted again: %v", statuses)
	}
}

func TestByteArrivalClearsIdleAndHook(t *testing.T) {
	var statuses []Status
	r := New(func() []byte { return nil }, func(s Status) { statuses = append(statuses, s) })

	now := time.Now()
	r.OnSpawn(now)
	r.OnInactivityTick(now.Add(4 * time.Second))
	if statuses[len(statuses)-1] != StatusIdle {
		t.Fatalf("expected idle, got %v", statuses)
	}

	r.OnByteArrival(now.Add(5 * time.Second))
	if statuses[len(statuses)-1] != StatusRunning {
		t.Fatalf("expected running after byte arrival, got %v", statuses)
	}

	// A byte arriving after a hook must drop the hook's freshness, so the
	// next idle tick (inside T_hook of the hook) classifies again.
	r.OnHookNotification(NotificationPermissionPrompt, now.Add(6*time.Second))
	r.OnByteArrival(now.Add(7 * time.Second))
	before := len(statuses)
	r.OnInactivityTick(now.Add(11 * time.Second))
	if len(statuses) != before+1 || statuses[len(statuses)-1] != StatusIdle {
		t.Fatalf("expected idle tick after byte arrival cleared hook, got %v", statuses)
	}
}

func TestClearActiveResetsState(t *testing.T) {
	r := New(func() []byte { return nil }, func(Status) {})
	r.OnSpawn(time.Now())
	if !r.Active() {
		t.Fatal("expected active after spawn")
	}
	r.ClearActive()
	if r.Active() {
		t.Fatal("expected inactive after ClearActive")
	}
}
