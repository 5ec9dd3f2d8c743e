package attendance

import (
	"context"
	"database/sql"
	"time"

	"meetsign/internal/apperr"
	"meetsign/internal/directory"
	"meetsign/internal/store"
)

// Valid statuses for an attendance record.
const (
	StatusPresent = "present"
	StatusAbsent  = "absent"
	StatusLate    = "late"
)

// Record is one attendance row joined with person display data.
type Record struct {
	ID         int64     `json:"id"`
	MeetingID  int64     `json:"meeting_id"`
	PersonID   int64     `json:"person_id"`
	Status     string    `json:"status"`
	SignTime   time.Time `json:"sign_time"`
	Notes      string    `json:"notes"`
	Name       string    `json:"name"`
	EmployeeID string    `json:"employee_id"`
	Department string    `json:"department"`
}

// Stats are the aggregate counts for a meeting; Total is always the sum of
// the three statuses.
type Stats struct {
	Total   int `json:"total"`
	Present int `json:"present"`
	Late    int `json:"late"`
	Absent  int `json:"absent"`
}

// SignInResult reports the outcome for one badge of a sign-in batch.
type SignInResult struct {
	EmployeeID string `json:"employee_id"`
	OK         bool   `json:"success"`
	Error      string `json:"error,omitempty"`
}

// Ledger upserts one attendance record per (meeting, person).
type Ledger struct {
	db     *sql.DB
	roster *directory.Repository
	now    func() time.Time
}

// NewLedger creates a ledger resolving badges through the directory.
func NewLedger(db *sql.DB, roster *directory.Repository) *Ledger {
	return &Ledger{db: db, roster: roster, now: time.Now}
}

// SignIn records the given status for each badge. Items are independent:
// an unresolvable badge yields a failed result entry without touching the
// rest of the batch. Re-signing overwrites status and timestamp, never
// duplicates.
func (l *Ledger) SignIn(ctx context.Context, meetingID int64, badges []string, status string) ([]SignInResult, error) {
	if status == "" {
		status = StatusPresent
	}
	if status != StatusPresent && status != StatusAbsent && status != StatusLate {
		return nil, apperr.Invalid("invalid status %q", status)
	}
	if len(badges) == 0 {
		return nil, apperr.Invalid("employee_ids must not be empty")
	}

	results := make([]SignInResult, 0, len(badges))
	for _, badge := range badges {
		personID, err := l.roster.Resolve(ctx, badge)
		if err != nil {
			if apperr.KindOf(err) == apperr.KindStorage {
				return nil, err
			}
			results = append(results, SignInResult{EmployeeID: badge, OK: false, Error: err.Error()})
			continue
		}
		if err := l.upsert(ctx, l.db, meetingID, personID, status); err != nil {
			return nil, err
		}
		results = append(results, SignInResult{EmployeeID: badge, OK: true})
	}
	return results, nil
}

func (l *Ledger) upsert(ctx context.Context, q store.DBTX, meetingID, personID int64, status string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO attendance (meeting_id, person_id, status, sign_time)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(meeting_id, person_id) DO UPDATE SET status = excluded.status, sign_time = excluded.sign_time
	`, meetingID, personID, status, l.now().UTC())
	if err != nil {
		return apperr.Storage(err, "record attendance")
	}
	return nil
}

// Attendance returns all records for a meeting with person display data,
// plus aggregate counts from a single conditional-sum query.
func (l *Ledger) Attendance(ctx context.Context, meetingID int64) ([]Record, Stats, error) {
	return l.AttendanceIn(ctx, l.db, meetingID)
}

// AttendanceIn runs against any store handle so meeting detail can read the
// listing and stats inside one transaction.
func (l *Ledger) AttendanceIn(ctx context.Context, q store.DBTX, meetingID int64) ([]Record, Stats, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT a.id, a.meeting_id, a.person_id, a.status, a.sign_time, a.notes,
		       e.name, e.employee_id, e.department
		FROM attendance a
		JOIN employees e ON a.person_id = e.id
		WHERE a.meeting_id = ?
		ORDER BY e.name
	`, meetingID)
	if err != nil {
		return nil, Stats{}, apperr.Storage(err, "list attendance")
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.MeetingID, &r.PersonID, &r.Status, &r.SignTime, &r.Notes, &r.Name, &r.EmployeeID, &r.Department); err != nil {
			return nil, Stats{}, apperr.Storage(err, "scan attendance")
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, Stats{}, apperr.Storage(err, "list attendance")
	}

	var stats Stats
	err = q.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN status = 'present' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = 'late' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = 'absent' THEN 1 ELSE 0 END), 0)
		FROM attendance
		WHERE meeting_id = ?
	`, meetingID).Scan(&stats.Total, &stats.Present, &stats.Late, &stats.Absent)
	if err != nil {
		return nil, Stats{}, apperr.Storage(err, "aggregate attendance")
	}
	return records, stats, nil
}

// Unsigned returns every employee without an attendance record for the
// meeting, ordered by display name.
func (l *Ledger) Unsigned(ctx context.Context, meetingID int64) ([]directory.Employee, error) {
	return l.employeeQuery(ctx, `
		SELECT id, name, employee_id, employee_code, department, phone, email, tags, created_at
		FROM employees
		WHERE id NOT IN (SELECT person_id FROM attendance WHERE meeting_id = ?)
		ORDER BY name
	`, meetingID)
}

// Signed returns the distinct employees marked present for the meeting,
// optionally filtered to those whose tags contain tagFilter. sqlite LIKE is
// case-insensitive for ASCII, so the filter uses instr for the case-sensitive
// substring match.
func (l *Ledger) Signed(ctx context.Context, meetingID int64, tagFilter string) ([]directory.Employee, error) {
	query := `
		SELECT DISTINCT e.id, e.name, e.employee_id, e.employee_code, e.department, e.phone, e.email, e.tags, e.created_at
		FROM employees e
		JOIN attendance a ON e.id = a.person_id
		WHERE a.meeting_id = ? AND a.status = 'present'
	`
	args := []any{meetingID}
	if tagFilter != "" {
		query += ` AND instr(e.tags, ?) > 0`
		args = append(args, tagFilter)
	}
	query += ` ORDER BY e.name`
	return l.employeeQuery(ctx, query, args...)
}

func (l *Ledger) employeeQuery(ctx context.Context, query string, args ...any) ([]directory.Employee, error) {
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Storage(err, "list employees")
	}
	defer rows.Close()

	var employees []directory.Employee
	for rows.Next() {
		var e directory.Employee
		if err := rows.Scan(&e.ID, &e.Name, &e.EmployeeID, &e.EmployeeCode, &e.Department, &e.Phone, &e.Email, &e.Tags, &e.CreatedAt); err != nil {
			return nil, apperr.Storage(err, "scan employee")
		}
		employees = append(employees, e)
	}
	return employees, rows.Err()
}
