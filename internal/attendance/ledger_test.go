package attendance

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"meetsign/internal/apperr"
	"meetsign/internal/directory"
	"meetsign/internal/store"
)

func newTestLedger(t *testing.T) (*Ledger, *sql.DB) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	roster := directory.NewRepository(db.Client)
	return NewLedger(db.Client, roster), db.Client
}

func seedEmployee(t *testing.T, db *sql.DB, name, badge, tags string) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO employees (name, employee_id, department, tags) VALUES (?, ?, 'Eng', ?)`, name, badge, tags)
	require.NoError(t, err)
}

func seedMeeting(t *testing.T, db *sql.DB) int64 {
	t.Helper()
	res, err := db.Exec(`INSERT INTO meetings (title, date) VALUES ('Weekly Sync', '2025-01-10')`)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func TestSignInUpsert(t *testing.T) {
	l, db := newTestLedger(t)
	meetingID := seedMeeting(t, db)
	seedEmployee(t, db, "Ada", "E100", "")
	ctx := context.Background()

	t0 := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return t0 }
	results, err := l.SignIn(ctx, meetingID, []string{"E100"}, StatusLate)
	require.NoError(t, err)
	require.True(t, results[0].OK)

	l.now = func() time.Time { return t0.Add(time.Minute) }
	results, err = l.SignIn(ctx, meetingID, []string{"E100"}, StatusPresent)
	require.NoError(t, err)
	require.True(t, results[0].OK)

	records, stats, err := l.Attendance(ctx, meetingID)
	require.NoError(t, err)
	require.Len(t, records, 1, "re-signing must overwrite, never duplicate")
	require.Equal(t, StatusPresent, records[0].Status)
	require.True(t, records[0].SignTime.After(t0), "timestamp must be refreshed on re-sign")
	require.Equal(t, Stats{Total: 1, Present: 1}, stats)
}

func TestSignInDefaultsToPresent(t *testing.T) {
	l, db := newTestLedger(t)
	meetingID := seedMeeting(t, db)
	seedEmployee(t, db, "Ada", "E100", "")

	_, err := l.SignIn(context.Background(), meetingID, []string{"E100"}, "")
	require.NoError(t, err)

	records, _, err := l.Attendance(context.Background(), meetingID)
	require.NoError(t, err)
	require.Equal(t, StatusPresent, records[0].Status)
}

func TestSignInRejectsBadStatus(t *testing.T) {
	l, db := newTestLedger(t)
	meetingID := seedMeeting(t, db)

	_, err := l.SignIn(context.Background(), meetingID, []string{"E100"}, "asleep")
	require.Error(t, err)
	require.Equal(t, apperr.KindInvalid, apperr.KindOf(err))
}

func TestSignInBatchPartialFailure(t *testing.T) {
	l, db := newTestLedger(t)
	meetingID := seedMeeting(t, db)
	seedEmployee(t, db, "Ada", "E100", "")
	seedEmployee(t, db, "Grace", "E101", "")

	results, err := l.SignIn(context.Background(), meetingID, []string{"E100", "GHOST", "E101"}, StatusPresent)
	require.NoError(t, err)
	require.Len(t, results, 3)

	var okCount, failCount int
	for _, r := range results {
		if r.OK {
			okCount++
		} else {
			failCount++
			require.Equal(t, "GHOST", r.EmployeeID)
			require.NotEmpty(t, r.Error)
		}
	}
	require.Equal(t, 2, okCount)
	require.Equal(t, 1, failCount)

	_, stats, err := l.Attendance(context.Background(), meetingID)
	require.NoError(t, err)
	require.Equal(t, 2, stats.Total, "failed item must not block the rest of the batch")
}

func TestStatsConsistent(t *testing.T) {
	l, db := newTestLedger(t)
	meetingID := seedMeeting(t, db)
	seedEmployee(t, db, "Ada", "E100", "")
	seedEmployee(t, db, "Grace", "E101", "")
	seedEmployee(t, db, "Edsger", "E102", "")
	ctx := context.Background()

	_, err := l.SignIn(ctx, meetingID, []string{"E100"}, StatusPresent)
	require.NoError(t, err)
	_, err = l.SignIn(ctx, meetingID, []string{"E101"}, StatusLate)
	require.NoError(t, err)
	_, err = l.SignIn(ctx, meetingID, []string{"E102"}, StatusAbsent)
	require.NoError(t, err)

	_, stats, err := l.Attendance(ctx, meetingID)
	require.NoError(t, err)
	require.Equal(t, stats.Total, stats.Present+stats.Late+stats.Absent)
	require.Equal(t, Stats{Total: 3, Present: 1, Late: 1, Absent: 1}, stats)
}

func TestUnsignedComplement(t *testing.T) {
	l, db := newTestLedger(t)
	meetingID := seedMeeting(t, db)
	seedEmployee(t, db, "Ada", "E100", "")
	seedEmployee(t, db, "Grace", "E101", "")
	seedEmployee(t, db, "Edsger", "E102", "")
	ctx := context.Background()

	_, err := l.SignIn(ctx, meetingID, []string{"E101"}, StatusPresent)
	require.NoError(t, err)

	unsigned, err := l.Unsigned(ctx, meetingID)
	require.NoError(t, err)
	require.Len(t, unsigned, 2)
	// Ordered by name, and disjoint from those with a record.
	require.Equal(t, "Ada", unsigned[0].Name)
	require.Equal(t, "Edsger", unsigned[1].Name)
	for _, e := range unsigned {
		require.NotEqual(t, "E101", e.EmployeeID)
	}
}

func TestSignedTagFilter(t *testing.T) {
	l, db := newTestLedger(t)
	meetingID := seedMeeting(t, db)
	seedEmployee(t, db, "Ada", "E100", "lead,backend")
	seedEmployee(t, db, "Grace", "E101", "frontend")
	seedEmployee(t, db, "Edsger", "E102", "Lead")
	ctx := context.Background()

	_, err := l.SignIn(ctx, meetingID, []string{"E100", "E101", "E102"}, StatusPresent)
	require.NoError(t, err)

	all, err := l.Signed(ctx, meetingID, "")
	require.NoError(t, err)
	require.Len(t, all, 3)

	// Substring match is case-sensitive: "lead" matches Ada but not Edsger's "Lead".
	leads, err := l.Signed(ctx, meetingID, "lead")
	require.NoError(t, err)
	require.Len(t, leads, 1)
	require.Equal(t, "Ada", leads[0].Name)
}

func TestSignedExcludesLateAndAbsent(t *testing.T) {
	l, db := newTestLedger(t)
	meetingID := seedMeeting(t, db)
	seedEmployee(t, db, "Ada", "E100", "")
	seedEmployee(t, db, "Grace", "E101", "")
	ctx := context.Background()

	_, err := l.SignIn(ctx, meetingID, []string{"E100"}, StatusPresent)
	require.NoError(t, err)
	_, err = l.SignIn(ctx, meetingID, []string{"E101"}, StatusLate)
	require.NoError(t, err)

	signed, err := l.Signed(ctx, meetingID, "")
	require.NoError(t, err)
	require.Len(t, signed, 1)
	require.Equal(t, "E100", signed[0].EmployeeID)
}
