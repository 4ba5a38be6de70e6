package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/starford/notesapp/internal/remote/remotetest"
	"github.com/starford/notesapp/internal/sse"
	"github.com/starford/notesapp/internal/workspace"
)

func TestSessionsIdleExpiry(t *testing.T) {
	b := remotetest.NewBackend(time.Now())
	created := 0
	s := NewSessions(func() *workspace.Workspace {
		created++
		return workspace.New(b.NewStore())
	}, SessionOptions{CookieName: "sid", IdleTTL: 50 * time.Millisecond, SecureCookie: true})

	var seen *workspace.Workspace
	h := s.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = WorkspaceFrom(r.Context())
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	cookies := w.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != "sid" || !cookies[0].Secure {
		t.Fatalf("cookies = %+v", cookies)
	}
	first := seen

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if seen != first || len(w.Result().Cookies()) != 0 {
		t.Fatalf("live cookie did not resolve to the same workspace")
	}

	time.Sleep(100 * time.Millisecond)
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if seen == first || len(w.Result().Cookies()) != 1 {
		t.Errorf("expired session was reused")
	}
	if created != 2 {
		t.Errorf("workspaces created = %d, want 2", created)
	}
}

func TestUnknownCookieStartsNewSession(t *testing.T) {
	s := NewSessions(func() *workspace.Workspace {
		return workspace.New(remotetest.NewBackend(time.Now()).NewStore())
	}, SessionOptions{})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: "forged"})
	w := httptest.NewRecorder()
	s.Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).ServeHTTP(w, req)

	cookies := w.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Value == "forged" {
		t.Errorf("cookies = %+v", cookies)
	}
}

func TestEvictionEndsEventStream(t *testing.T) {
	b := remotetest.NewBackend(time.Now())
	broker := sse.NewBroker()
	t.Cleanup(broker.Close)
	s := NewSessions(func() *workspace.Workspace {
		return workspace.New(b.NewStore())
	}, SessionOptions{IdleTTL: 50 * time.Millisecond})
	c := &browser{t: t, handler: NewRouter(s, broker)}
	if w := c.do(http.MethodPost, "/auth/signup", signUpBody); w.Code != http.StatusCreated {
		t.Fatalf("signup = %d %s", w.Code, w.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}
	done := make(chan struct{})
	go func() {
		c.handler.ServeHTTP(httptest.NewRecorder(), req)
		close(done)
	}()

	// The janitor runs every IdleTTL/6 + 1s.
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("stream outlived its evicted session")
	}
	if s.Count() != 0 {
		t.Errorf("sessions = %d, want 0", s.Count())
	}
}
