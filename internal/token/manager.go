// Package token owns the durable sign-in token for each meeting.
package token

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	qrcode "github.com/skip2/go-qrcode"

	"meetsign/internal/apperr"
	"meetsign/internal/store"
)

const (
	qrSize = 300
)

// Token is the stored sign-in token for a meeting: the canonical payload URL
// and its rendered QR image as a data URL.
type Token struct {
	MeetingID int64     `json:"meeting_id"`
	Payload   string    `json:"payload"`
	Image     string    `json:"image"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// HostFunc resolves the address clients should reach the service on.
type HostFunc func() string

// Manager issues and self-heals meeting sign-in tokens.
type Manager struct {
	db   *sql.DB
	host HostFunc
	port string
}

// NewManager creates a manager. host is injectable so tests can pin the
// discovered address.
func NewManager(db *sql.DB, host HostFunc, port string) *Manager {
	return &Manager{db: db, host: host, port: port}
}

// Payload computes the canonical payload for a meeting from the currently
// reachable host. Stored payloads are never trusted over this value.
func (m *Manager) Payload(meetingID int64) string {
	return fmt.Sprintf("http://%s:%s/sign-in/%d", m.host(), m.port, meetingID)
}

// render encodes the payload as a scannable PNG data URL. A render failure is
// fatal to the request, not retried.
func render(payload string) (string, error) {
	png, err := qrcode.Encode(payload, qrcode.Medium, qrSize)
	if err != nil {
		return "", apperr.Storage(err, "render sign-in token")
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

// Issue computes the canonical token for the meeting and persists it,
// creating the row if absent and overwriting otherwise. It accepts any store
// handle so meeting creation can run it inside its own transaction.
func (m *Manager) Issue(ctx context.Context, q store.DBTX, meetingID int64) (Token, error) {
	tok := Token{MeetingID: meetingID, Payload: m.Payload(meetingID)}
	img, err := render(tok.Payload)
	if err != nil {
		return Token{}, err
	}
	tok.Image = img
	_, err = q.ExecContext(ctx, `
		INSERT INTO meeting_tokens (meeting_id, payload, image)
		VALUES (?, ?, ?)
		ON CONFLICT(meeting_id) DO UPDATE SET payload = excluded.payload, image = excluded.image
	`, tok.MeetingID, tok.Payload, tok.Image)
	if err != nil {
		return Token{}, apperr.Storage(err, "store sign-in token")
	}
	return tok, nil
}

// Get returns the stored token for a meeting, issuing one if absent. If the
// stored payload no longer matches the canonical payload (the host changed),
// the token is regenerated and overwritten in place. This check runs on every
// call.
func (m *Manager) Get(ctx context.Context, meetingID int64) (Token, error) {
	var known int
	if err := m.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM meetings WHERE id = ?`, meetingID).Scan(&known); err != nil {
		return Token{}, apperr.Storage(err, "look up meeting %d", meetingID)
	}
	if known == 0 {
		return Token{}, apperr.NotFound("meeting %d not found", meetingID)
	}

	var tok Token
	err := m.db.QueryRowContext(ctx, `
		SELECT meeting_id, payload, image, created_at FROM meeting_tokens WHERE meeting_id = ?
	`, meetingID).Scan(&tok.MeetingID, &tok.Payload, &tok.Image, &tok.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return m.Issue(ctx, m.db, meetingID)
	}
	if err != nil {
		return Token{}, apperr.Storage(err, "load sign-in token")
	}

	if tok.Payload != m.Payload(meetingID) {
		return m.Issue(ctx, m.db, meetingID)
	}
	return tok, nil
}
