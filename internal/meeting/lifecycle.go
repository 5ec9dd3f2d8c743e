// Package meeting owns the meeting lifecycle: creation issues the sign-in
// token in the same transaction, deletion cascades across every dependent
// record kind.
package meeting

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"meetsign/internal/apperr"
	"meetsign/internal/attendance"
	"meetsign/internal/token"
)

// Meeting is a scheduled meeting.
type Meeting struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Date        string    `json:"date"`
	StartTime   string    `json:"start_time"`
	EndTime     string    `json:"end_time"`
	Location    string    `json:"location"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}

// Detail is a meeting with its attendance listing and aggregate stats.
type Detail struct {
	Meeting    Meeting             `json:"meeting"`
	Attendance []attendance.Record `json:"attendance"`
	Stats      attendance.Stats    `json:"stats"`
}

// Service coordinates meeting mutations with the token manager and ledger.
type Service struct {
	db     *sql.DB
	tokens *token.Manager
	ledger *attendance.Ledger
}

// NewService creates a lifecycle service.
func NewService(db *sql.DB, tokens *token.Manager, ledger *attendance.Ledger) *Service {
	return &Service{db: db, tokens: tokens, ledger: ledger}
}

func validate(m *Meeting) error {
	if len(strings.TrimSpace(m.Title)) < 2 {
		return apperr.Invalid("title must be at least 2 characters")
	}
	if strings.TrimSpace(m.Date) == "" {
		return apperr.Invalid("date is required")
	}
	return nil
}

// Create inserts the meeting and issues its sign-in token in one transaction,
// so no meeting is observable without a token after Create returns.
func (s *Service) Create(ctx context.Context, m *Meeting) (token.Token, error) {
	if err := validate(m); err != nil {
		return token.Token{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return token.Token{}, apperr.Storage(err, "begin create meeting")
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO meetings (title, date, start_time, end_time, location, description)
		VALUES (?, ?, ?, ?, ?, ?)
	`, m.Title, m.Date, m.StartTime, m.EndTime, m.Location, m.Description)
	if err != nil {
		return token.Token{}, apperr.Storage(err, "insert meeting")
	}
	m.ID, _ = res.LastInsertId()

	tok, err := s.tokens.Issue(ctx, tx, m.ID)
	if err != nil {
		return token.Token{}, err
	}
	if err := tx.Commit(); err != nil {
		return token.Token{}, apperr.Storage(err, "commit create meeting")
	}
	return tok, nil
}

// List returns all meetings, date descending then start time descending.
func (s *Service) List(ctx context.Context) ([]Meeting, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, date, start_time, end_time, location, description, created_at
		FROM meetings
		ORDER BY date DESC, start_time DESC
	`)
	if err != nil {
		return nil, apperr.Storage(err, "list meetings")
	}
	defer rows.Close()

	var meetings []Meeting
	for rows.Next() {
		var m Meeting
		if err := rows.Scan(&m.ID, &m.Title, &m.Date, &m.StartTime, &m.EndTime, &m.Location, &m.Description, &m.CreatedAt); err != nil {
			return nil, apperr.Storage(err, "scan meeting")
		}
		meetings = append(meetings, m)
	}
	return meetings, rows.Err()
}

// Detail returns the meeting row with its attendance listing and stats, read
// in a single transaction so the counts match the listing.
func (s *Service) Detail(ctx context.Context, id int64) (Detail, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Detail{}, apperr.Storage(err, "begin meeting detail")
	}
	defer tx.Rollback()

	var d Detail
	err = tx.QueryRowContext(ctx, `
		SELECT id, title, date, start_time, end_time, location, description, created_at
		FROM meetings WHERE id = ?
	`, id).Scan(&d.Meeting.ID, &d.Meeting.Title, &d.Meeting.Date, &d.Meeting.StartTime,
		&d.Meeting.EndTime, &d.Meeting.Location, &d.Meeting.Description, &d.Meeting.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Detail{}, apperr.NotFound("meeting %d not found", id)
	}
	if err != nil {
		return Detail{}, apperr.Storage(err, "load meeting %d", id)
	}

	d.Attendance, d.Stats, err = s.ledger.AttendanceIn(ctx, tx, id)
	if err != nil {
		return Detail{}, err
	}
	return d, tx.Commit()
}

// Delete removes the meeting and everything it owns in dependency order:
// attendance, random-call records, question records, token, then the meeting
// row, all in one transaction.
func (s *Service) Delete(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Storage(err, "begin delete meeting")
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM attendance WHERE meeting_id = ?`,
		`DELETE FROM random_call_records WHERE meeting_id = ?`,
		`DELETE FROM question_records WHERE meeting_id = ?`,
		`DELETE FROM meeting_tokens WHERE meeting_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return apperr.Storage(err, "cascade delete meeting %d", id)
		}
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM meetings WHERE id = ?`, id)
	if err != nil {
		return apperr.Storage(err, "delete meeting %d", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("meeting %d not found", id)
	}
	if err := tx.Commit(); err != nil {
		return apperr.Storage(err, "commit delete meeting %d", id)
	}
	return nil
}
