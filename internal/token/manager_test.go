package token

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"meetsign/internal/apperr"
	"meetsign/internal/store"
)

func newTestManager(t *testing.T, host *string) (*Manager, *sql.DB) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	m := NewManager(db.Client, func() string { return *host }, "3000")
	return m, db.Client
}

func seedMeeting(t *testing.T, db *sql.DB) int64 {
	t.Helper()
	res, err := db.Exec(`INSERT INTO meetings (title, date) VALUES ('Weekly Sync', '2025-01-10')`)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func TestPayloadShape(t *testing.T) {
	host := "10.0.0.7"
	m, db := newTestManager(t, &host)
	id := seedMeeting(t, db)

	tok, err := m.Get(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, fmt.Sprintf("http://10.0.0.7:3000/sign-in/%d", id), tok.Payload)
	require.True(t, strings.HasSuffix(tok.Payload, fmt.Sprintf("/sign-in/%d", id)))
	require.True(t, strings.HasPrefix(tok.Image, "data:image/png;base64,"))
}

func TestGetIdempotentWhileHostUnchanged(t *testing.T) {
	host := "10.0.0.7"
	m, db := newTestManager(t, &host)
	id := seedMeeting(t, db)
	ctx := context.Background()

	first, err := m.Get(ctx, id)
	require.NoError(t, err)
	second, err := m.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, first.Payload, second.Payload)
	require.Equal(t, first.Image, second.Image)

	var stored int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM meeting_tokens WHERE meeting_id = ?`, id).Scan(&stored))
	require.Equal(t, 1, stored, "self-heal must overwrite, never append")
}

func TestGetSelfHealsOnHostChange(t *testing.T) {
	host := "10.0.0.7"
	m, db := newTestManager(t, &host)
	id := seedMeeting(t, db)
	ctx := context.Background()

	first, err := m.Get(ctx, id)
	require.NoError(t, err)

	host = "192.168.1.20"
	second, err := m.Get(ctx, id)
	require.NoError(t, err)
	require.NotEqual(t, first.Payload, second.Payload)
	require.Contains(t, second.Payload, "192.168.1.20")

	// The stored record was overwritten in place.
	var storedPayload string
	require.NoError(t, db.QueryRow(`SELECT payload FROM meeting_tokens WHERE meeting_id = ?`, id).Scan(&storedPayload))
	require.Equal(t, second.Payload, storedPayload)

	var stored int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM meeting_tokens`).Scan(&stored))
	require.Equal(t, 1, stored)
}

func TestGetUnknownMeeting(t *testing.T) {
	host := "10.0.0.7"
	m, _ := newTestManager(t, &host)

	_, err := m.Get(context.Background(), 999)
	require.Error(t, err)
	require.True(t, apperr.IsNotFound(err))
}

func TestIssueCreatesRowWhenAbsent(t *testing.T) {
	host := "10.0.0.7"
	m, db := newTestManager(t, &host)
	id := seedMeeting(t, db)

	tok, err := m.Issue(context.Background(), db, id)
	require.NoError(t, err)
	require.Equal(t, m.Payload(id), tok.Payload)

	var stored int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM meeting_tokens WHERE meeting_id = ?`, id).Scan(&stored))
	require.Equal(t, 1, stored)
}
