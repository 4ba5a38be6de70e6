package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/starford/notesapp/internal/apperr"
	"github.com/starford/notesapp/internal/models"
)

const (
	maxResponseBytes = 4 << 20 // 4 MB
	objectMediaType  = "application/vnd.pgrst.object+json"
)

// StatusError is a non-2xx answer from the backend.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote: HTTP %d: %s", e.Status, e.Message)
}

// Unwrap maps well-known statuses onto the shared sentinels.
func (e *StatusError) Unwrap() error {
	switch e.Status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return apperr.ErrUnauthenticated
	case http.StatusNotFound, http.StatusNotAcceptable:
		return apperr.ErrNotFound
	case http.StatusConflict:
		return apperr.ErrAlreadyExists
	}
	return nil
}

// HTTPClient talks to a Supabase-compatible backend: GoTrue under /auth/v1
// and PostgREST under /rest/v1. It is safe for concurrent use.
type HTTPClient struct {
	baseURL string
	apiKey  string
	hc      *http.Client

	mu      sync.RWMutex
	session *models.Principal
}

// NewHTTPClient creates a signed-out client. hc may be nil.
func NewHTTPClient(baseURL, apiKey string, hc *http.Client) *HTTPClient {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		hc:      hc,
	}
}

// Verify *HTTPClient satisfies Store at compile time.
var _ Store = (*HTTPClient)(nil)

type gotrueUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type gotrueSession struct {
	AccessToken string      `json:"access_token"`
	ExpiresIn   int64       `json:"expires_in"`
	User        *gotrueUser `json:"user"`

	// Sign-up without auto-confirm answers with a bare user object.
	ID    string `json:"id"`
	Email string `json:"email"`
}

func (s gotrueSession) principal() models.Principal {
	p := models.Principal{ID: s.ID, Email: s.Email, AccessToken: s.AccessToken}
	if s.User != nil {
		p.ID, p.Email = s.User.ID, s.User.Email
	}
	if s.ExpiresIn > 0 {
		p.ExpiresAt = time.Now().Add(time.Duration(s.ExpiresIn) * time.Second)
	}
	return p
}

func (c *HTTPClient) SignUp(ctx context.Context, email, password string) (models.Principal, error) {
	var out gotrueSession
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/v1/signup", nil, body, &out, nil); err != nil {
		return models.Principal{}, err
	}
	p := out.principal()
	if p.AccessToken != "" {
		c.setSession(&p)
	}
	return p, nil
}

func (c *HTTPClient) SignIn(ctx context.Context, email, password string) (models.Principal, error) {
	var out gotrueSession
	q := url.Values{"grant_type": {"password"}}
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/v1/token", q, body, &out, nil); err != nil {
		return models.Principal{}, err
	}
	p := out.principal()
	if p.AccessToken == "" {
		return models.Principal{}, fmt.Errorf("remote: sign in returned no session")
	}
	c.setSession(&p)
	return p, nil
}

func (c *HTTPClient) CurrentUser(ctx context.Context) (*models.Principal, error) {
	held := c.currentSession()
	if held == nil {
		return nil, nil
	}
	if !held.ExpiresAt.IsZero() && time.Now().After(held.ExpiresAt) {
		return nil, fmt.Errorf("remote: session expired: %w", apperr.ErrUnauthenticated)
	}
	var u gotrueUser
	if err := c.do(ctx, http.MethodGet, "/auth/v1/user", nil, nil, &u, nil); err != nil {
		return nil, err
	}
	p := *held
	p.ID, p.Email = u.ID, u.Email
	return &p, nil
}

func (c *HTTPClient) SignOut(_ context.Context) error {
	c.setSession(nil)
	return nil
}

func (c *HTTPClient) UpsertProfile(ctx context.Context, p models.Profile) error {
	h := http.Header{"Prefer": {"resolution=merge-duplicates,return=minimal"}}
	return c.do(ctx, http.MethodPost, "/rest/v1/profiles", nil, p, nil, h)
}

func (c *HTTPClient) ProfileByID(ctx context.Context, id string) (models.Profile, error) {
	var p models.Profile
	q := url.Values{"select": {"*"}, "id": {"eq." + id}}
	h := http.Header{"Accept": {objectMediaType}}
	if err := c.do(ctx, http.MethodGet, "/rest/v1/profiles", q, nil, &p, h); err != nil {
		return models.Profile{}, err
	}
	return p, nil
}

func (c *HTTPClient) NotesByUser(ctx context.Context, userID string) ([]models.Note, error) {
	var out []models.Note
	q := url.Values{
		"select":  {"*"},
		"user_id": {"eq." + userID},
		"order":   {"created_at.desc"},
	}
	if err := c.do(ctx, http.MethodGet, "/rest/v1/notes", q, nil, &out, nil); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) InsertNote(ctx context.Context, userID, title, content string) (models.Note, error) {
	var n models.Note
	body := map[string]string{"user_id": userID, "title": title, "content": content}
	h := http.Header{"Prefer": {"return=representation"}, "Accept": {objectMediaType}}
	if err := c.do(ctx, http.MethodPost, "/rest/v1/notes", nil, body, &n, h); err != nil {
		return models.Note{}, err
	}
	return n, nil
}

func (c *HTTPClient) UpdateNote(ctx context.Context, noteID, title, content string) (models.Note, error) {
	var n models.Note
	q := url.Values{"id": {"eq." + noteID}}
	// updated_at is stamped by the database trigger and read back below.
	body := map[string]any{
		"title":   title,
		"content": content,
	}
	h := http.Header{"Prefer": {"return=representation"}, "Accept": {objectMediaType}}
	if err := c.do(ctx, http.MethodPatch, "/rest/v1/notes", q, body, &n, h); err != nil {
		return models.Note{}, err
	}
	return n, nil
}

func (c *HTTPClient) DeleteNote(ctx context.Context, noteID string) error {
	var deleted []models.Note
	q := url.Values{"id": {"eq." + noteID}}
	h := http.Header{"Prefer": {"return=representation"}}
	if err := c.do(ctx, http.MethodDelete, "/rest/v1/notes", q, nil, &deleted, h); err != nil {
		return err
	}
	// Row-level security hides foreign rows, so an empty result means nothing was removed.
	if len(deleted) == 0 {
		return fmt.Errorf("remote: delete note %s: %w", noteID, apperr.ErrNotFound)
	}
	return nil
}

func (c *HTTPClient) setSession(p *models.Principal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = p
}

func (c *HTTPClient) currentSession() *models.Principal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

func (c *HTTPClient) do(ctx context.Context, method, path string, query url.Values, in, out any, extra http.Header) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("remote: encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("remote: build request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	token := c.apiKey
	if s := c.currentSession(); s != nil {
		token = s.AccessToken
	}
	req.Header.Set("Authorization", "Bearer "+token)
	for k, vs := range extra {
		req.Header[k] = vs
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("remote: %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("remote: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Status: resp.StatusCode, Message: errorMessage(data, resp.Status)}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("remote: decode response: %w", err)
	}
	return nil
}

// errorMessage extracts the human message from GoTrue or PostgREST error bodies.
func errorMessage(data []byte, fallback string) string {
	var e struct {
		Message          string `json:"message"`
		Msg              string `json:"msg"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.Unmarshal(data, &e); err != nil {
		return fallback
	}
	for _, m := range []string{e.Message, e.Msg, e.ErrorDescription} {
		if m != "" {
			return m
		}
	}
	return fallback
}
