package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/bcrypt"

	"github.com/starford/notesapp/internal/apperr"
	"github.com/starford/notesapp/internal/models"
	"github.com/starford/notesapp/internal/remote"
)

// Client is one session against a DB. It holds the access token issued at
// sign-in and checks it on every call.
type Client struct {
	db *DB

	mu      sync.RWMutex
	session *models.Principal
}

var _ remote.Store = (*Client)(nil)

var errBadCredentials = fmt.Errorf("invalid login credentials: %w", apperr.ErrUnauthenticated)

func (c *Client) SignUp(ctx context.Context, email, password string) (models.Principal, error) {
	email = normalizeEmail(email)
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.Principal{}, fmt.Errorf("localstore: hash password: %w", err)
	}
	id := uuid.NewString()
	_, err = c.db.conn.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		id, email, string(hash), c.db.stamp())
	if err != nil {
		var se sqlite3.Error
		if errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique {
			return models.Principal{}, fmt.Errorf("user already registered: %w", apperr.ErrAlreadyExists)
		}
		return models.Principal{}, fmt.Errorf("localstore: insert user: %w", err)
	}
	return c.open(id, email)
}

func (c *Client) SignIn(ctx context.Context, email, password string) (models.Principal, error) {
	email = normalizeEmail(email)
	var id, stored, hash string
	err := c.db.conn.QueryRowContext(ctx,
		`SELECT id, email, password_hash FROM users WHERE email = ?`, email).Scan(&id, &stored, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Principal{}, errBadCredentials
	}
	if err != nil {
		return models.Principal{}, fmt.Errorf("localstore: find user: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return models.Principal{}, errBadCredentials
	}
	return c.open(id, stored)
}

func (c *Client) open(id, email string) (models.Principal, error) {
	token, exp, err := c.db.issueToken(id, email)
	if err != nil {
		return models.Principal{}, err
	}
	p := models.Principal{ID: id, Email: email, AccessToken: token, ExpiresAt: exp}
	c.mu.Lock()
	c.session = &p
	c.mu.Unlock()
	return p, nil
}

func (c *Client) CurrentUser(ctx context.Context) (*models.Principal, error) {
	c.mu.RLock()
	held := c.session
	c.mu.RUnlock()
	if held == nil {
		return nil, nil
	}
	cl, err := c.db.parseToken(held.AccessToken)
	if err != nil {
		return nil, err
	}
	var email string
	err = c.db.conn.QueryRowContext(ctx, `SELECT email FROM users WHERE id = ?`, cl.Subject).Scan(&email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("localstore: user %s no longer exists: %w", cl.Subject, apperr.ErrUnauthenticated)
	}
	if err != nil {
		return nil, fmt.Errorf("localstore: find user: %w", err)
	}
	p := *held
	p.Email = email
	return &p, nil
}

func (c *Client) SignOut(context.Context) error {
	c.mu.Lock()
	c.session = nil
	c.mu.Unlock()
	return nil
}

// uid returns the subject of the held token, like auth.uid() in a policy.
func (c *Client) uid() (string, error) {
	c.mu.RLock()
	held := c.session
	c.mu.RUnlock()
	if held == nil {
		return "", fmt.Errorf("localstore: no session: %w", apperr.ErrUnauthenticated)
	}
	cl, err := c.db.parseToken(held.AccessToken)
	if err != nil {
		return "", err
	}
	return cl.Subject, nil
}

func (c *Client) UpsertProfile(ctx context.Context, p models.Profile) error {
	uid, err := c.uid()
	if err != nil {
		return err
	}
	if p.ID != uid {
		return fmt.Errorf("localstore: profile %s belongs to another user: %w", p.ID, apperr.ErrUnauthenticated)
	}
	_, err = c.db.conn.ExecContext(ctx, `
		INSERT INTO profiles (id, full_name, email, phone)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			full_name = excluded.full_name,
			email     = excluded.email,
			phone     = excluded.phone
	`, p.ID, p.FullName, p.Email, p.Phone)
	if err != nil {
		return fmt.Errorf("localstore: upsert profile: %w", err)
	}
	return nil
}

func (c *Client) ProfileByID(ctx context.Context, id string) (models.Profile, error) {
	uid, err := c.uid()
	if err != nil {
		return models.Profile{}, err
	}
	var p models.Profile
	err = c.db.conn.QueryRowContext(ctx,
		`SELECT id, full_name, email, phone FROM profiles WHERE id = ? AND id = ?`, id, uid,
	).Scan(&p.ID, &p.FullName, &p.Email, &p.Phone)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Profile{}, fmt.Errorf("localstore: profile %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return models.Profile{}, fmt.Errorf("localstore: get profile: %w", err)
	}
	return p, nil
}

const noteColumns = `id, user_id, title, content, created_at, updated_at`

func scanNote(row interface{ Scan(...any) error }) (models.Note, error) {
	var n models.Note
	err := row.Scan(&n.ID, &n.UserID, &n.Title, &n.Content, &n.CreatedAt, &n.UpdatedAt)
	return n, err
}

func (c *Client) NotesByUser(ctx context.Context, userID string) ([]models.Note, error) {
	uid, err := c.uid()
	if err != nil {
		return nil, err
	}
	rows, err := c.db.conn.QueryContext(ctx,
		`SELECT `+noteColumns+` FROM notes WHERE user_id = ? AND user_id = ?
		 ORDER BY created_at DESC, rowid DESC`, userID, uid)
	if err != nil {
		return nil, fmt.Errorf("localstore: list notes: %w", err)
	}
	defer rows.Close()

	out := []models.Note{}
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("localstore: scan note: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (c *Client) InsertNote(ctx context.Context, userID, title, content string) (models.Note, error) {
	uid, err := c.uid()
	if err != nil {
		return models.Note{}, err
	}
	if userID != uid {
		return models.Note{}, fmt.Errorf("localstore: insert for another user: %w", apperr.ErrUnauthenticated)
	}
	now := c.db.stamp()
	n := models.Note{
		ID:        uuid.NewString(),
		UserID:    uid,
		Title:     title,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err = c.db.conn.ExecContext(ctx,
		`INSERT INTO notes (`+noteColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		n.ID, n.UserID, n.Title, n.Content, n.CreatedAt, n.UpdatedAt)
	if err != nil {
		return models.Note{}, fmt.Errorf("localstore: insert note: %w", err)
	}
	return n, nil
}

func (c *Client) UpdateNote(ctx context.Context, noteID, title, content string) (models.Note, error) {
	uid, err := c.uid()
	if err != nil {
		return models.Note{}, err
	}

	tx, err := c.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return models.Note{}, fmt.Errorf("localstore: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		`UPDATE notes SET title = ?, content = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		title, content, c.db.stamp(), noteID, uid)
	if err != nil {
		return models.Note{}, fmt.Errorf("localstore: update note: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return models.Note{}, fmt.Errorf("localstore: note %s: %w", noteID, apperr.ErrNotFound)
	}
	n, err := scanNote(tx.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE id = ?`, noteID))
	if err != nil {
		return models.Note{}, fmt.Errorf("localstore: reread note: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return models.Note{}, fmt.Errorf("localstore: commit: %w", err)
	}
	return n, nil
}

func (c *Client) DeleteNote(ctx context.Context, noteID string) error {
	uid, err := c.uid()
	if err != nil {
		return err
	}
	res, err := c.db.conn.ExecContext(ctx, `DELETE FROM notes WHERE id = ? AND user_id = ?`, noteID, uid)
	if err != nil {
		return fmt.Errorf("localstore: delete note: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("localstore: note %s: %w", noteID, apperr.ErrNotFound)
	}
	return nil
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
