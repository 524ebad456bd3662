package hookserver

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/agentcore/runtime/internal/reconciler"
)

type fakeRouter struct {
	sessions map[string]string
}

func (f *fakeRouter) FindBySession(token string) (string, bool) {
	id, ok := f.sessions[token]
	return id, ok
}

type fakeDispatcher struct {
	mu   sync.Mutex
	seen []reconciler.NotificationType
}

func (f *fakeDispatcher) HandleHookNotification(nt reconciler.NotificationType) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, nt)
}

func (f *fakeDispatcher) notifications() []reconciler.NotificationType {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]reconciler.NotificationType(nil), f.seen...)
}

func newTestServer() (*Server, *fakeRouter, *fakeDispatcher) {
	router := &fakeRouter{sessions: map[string]string{"tok-1": "agent-1"}}
	disp := &fakeDispatcher{}
	lookup := func(id string) (Dispatcher, bool) {
		if id != "agent-1" {
			return nil, false
		}
		return disp, true
	}
	return New(router, lookup), router, disp
}

func TestHookRoutesToOwningAgent(t *testing.T) {
	s, _, disp := newTestServer()
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	body := `{"session_id":"tok-1","notification_type":"permission_prompt","message":"allow?"}`
	resp, err := http.Post(srv.URL+"/hooks", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}

	got := disp.notifications()
	if len(got) != 1 || got[0] != reconciler.NotificationPermissionPrompt {
		t.Fatalf("notifications = %v, want [permission_prompt]", got)
	}
}

func TestHookUnknownSessionStillAccepted(t *testing.T) {
	s, _, _ := newTestServer()
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	body := `{"session_id":"no-such-session","notification_type":"idle_prompt"}`
	resp, err := http.Post(srv.URL+"/hooks", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
}

func TestHookMalformedBodyReturns400(t *testing.T) {
	s, _, _ := newTestServer()
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/hooks", "application/json", strings.NewReader("{not json"))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHookUnknownFieldsIgnored(t *testing.T) {
	s, _, disp := newTestServer()
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	body := `{"session_id":"tok-1","notification_type":"idle_prompt","totally_unrecognized_field":42}`
	resp, err := http.Post(srv.URL+"/hooks", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	if got := disp.notifications(); len(got) != 1 || got[0] != reconciler.NotificationIdlePrompt {
		t.Fatalf("notifications = %v, want [idle_prompt]", got)
	}
}
