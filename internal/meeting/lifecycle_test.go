package meeting

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"meetsign/internal/apperr"
	"meetsign/internal/attendance"
	"meetsign/internal/directory"
	"meetsign/internal/store"
	"meetsign/internal/token"
)

func newTestService(t *testing.T) (*Service, *attendance.Ledger, *sql.DB) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	roster := directory.NewRepository(db.Client)
	tokens := token.NewManager(db.Client, func() string { return "10.0.0.7" }, "3000")
	ledger := attendance.NewLedger(db.Client, roster)
	return NewService(db.Client, tokens, ledger), ledger, db.Client
}

func seedEmployee(t *testing.T, db *sql.DB, name, badge string) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO employees (name, employee_id, department) VALUES (?, ?, 'Eng')`, name, badge)
	require.NoError(t, err)
}

func TestCreateIssuesToken(t *testing.T) {
	svc, _, db := newTestService(t)
	ctx := context.Background()

	m := Meeting{Title: "Weekly Sync", Date: "2025-01-10", StartTime: "09:00"}
	tok, err := svc.Create(ctx, &m)
	require.NoError(t, err)
	require.NotZero(t, m.ID)
	require.True(t, strings.HasSuffix(tok.Payload, fmt.Sprintf("/sign-in/%d", m.ID)))

	// The token row exists the moment Create returns.
	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM meeting_tokens WHERE meeting_id = ?`, m.ID).Scan(&count))
	require.Equal(t, 1, count)
}

func TestCreateValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, &Meeting{Title: "X", Date: "2025-01-10"})
	require.Equal(t, apperr.KindInvalid, apperr.KindOf(err))

	_, err = svc.Create(ctx, &Meeting{Title: "Weekly Sync"})
	require.Equal(t, apperr.KindInvalid, apperr.KindOf(err))

	// Nothing was inserted before validation failed.
	meetings, err := svc.List(ctx)
	require.NoError(t, err)
	require.Empty(t, meetings)
}

func TestListOrdering(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	for _, m := range []Meeting{
		{Title: "Oldest", Date: "2025-01-08", StartTime: "09:00"},
		{Title: "Later same day", Date: "2025-01-10", StartTime: "14:00"},
		{Title: "Earlier same day", Date: "2025-01-10", StartTime: "09:00"},
	} {
		meeting := m
		_, err := svc.Create(ctx, &meeting)
		require.NoError(t, err)
	}

	meetings, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, meetings, 3)
	require.Equal(t, "Later same day", meetings[0].Title)
	require.Equal(t, "Earlier same day", meetings[1].Title)
	require.Equal(t, "Oldest", meetings[2].Title)
}

func TestDetail(t *testing.T) {
	svc, ledger, db := newTestService(t)
	ctx := context.Background()
	seedEmployee(t, db, "Ada", "E100")

	m := Meeting{Title: "Weekly Sync", Date: "2025-01-10"}
	_, err := svc.Create(ctx, &m)
	require.NoError(t, err)

	_, err = ledger.SignIn(ctx, m.ID, []string{"E100"}, attendance.StatusPresent)
	require.NoError(t, err)

	d, err := svc.Detail(ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, "Weekly Sync", d.Meeting.Title)
	require.Len(t, d.Attendance, 1)
	require.Equal(t, attendance.Stats{Total: 1, Present: 1}, d.Stats)
}

func TestDetailNotFound(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Detail(context.Background(), 999)
	require.True(t, apperr.IsNotFound(err))
}

func TestDeleteCascades(t *testing.T) {
	svc, ledger, db := newTestService(t)
	ctx := context.Background()
	seedEmployee(t, db, "Ada", "E100")

	m := Meeting{Title: "Weekly Sync", Date: "2025-01-10"}
	_, err := svc.Create(ctx, &m)
	require.NoError(t, err)

	_, err = ledger.SignIn(ctx, m.ID, []string{"E100"}, attendance.StatusPresent)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO random_call_records (meeting_id, person_id) VALUES (?, 1)`, m.ID)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO question_records (meeting_id, person_id, result) VALUES (?, 1, 'correct')`, m.ID)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, m.ID))

	for _, table := range []string{"attendance", "random_call_records", "question_records", "meeting_tokens"} {
		var count int
		require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM `+table+` WHERE meeting_id = ?`, m.ID).Scan(&count))
		require.Zero(t, count, "%s must hold nothing for a deleted meeting", table)
	}
	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM meetings WHERE id = ?`, m.ID).Scan(&count))
	require.Zero(t, count)

	_, err = svc.Detail(ctx, m.ID)
	require.True(t, apperr.IsNotFound(err))
}

func TestDeleteUnknownMeeting(t *testing.T) {
	svc, _, _ := newTestService(t)

	err := svc.Delete(context.Background(), 999)
	require.True(t, apperr.IsNotFound(err))
}
