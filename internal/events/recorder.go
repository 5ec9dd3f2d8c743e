// Package events is the append-only log of in-meeting events: random-call
// picks and question-answer outcomes.
package events

import (
	"context"
	"database/sql"
	"time"

	"meetsign/internal/apperr"
	"meetsign/internal/directory"
)

// Question results.
const (
	ResultCorrect = "correct"
	ResultPartial = "partial"
	ResultWrong   = "wrong"
)

// RandomCall is one random-call pick. No uniqueness applies: a person may be
// called repeatedly.
type RandomCall struct {
	ID        int64     `json:"id"`
	MeetingID int64     `json:"meeting_id"`
	PersonID  int64     `json:"person_id"`
	CallTime  time.Time `json:"call_time"`
}

// Question is one question-answer record joined with person display data.
type Question struct {
	ID           int64     `json:"id"`
	MeetingID    int64     `json:"meeting_id"`
	PersonID     int64     `json:"person_id"`
	QuestionText string    `json:"question_text"`
	Result       string    `json:"result"`
	Notes        string    `json:"notes"`
	CreatedAt    time.Time `json:"created_at"`
	Name         string    `json:"name,omitempty"`
	EmployeeID   string    `json:"employee_id,omitempty"`
	Department   string    `json:"department,omitempty"`
	MeetingTitle string    `json:"meeting_title,omitempty"`
	MeetingDate  string    `json:"meeting_date,omitempty"`
}

// QuestionStats aggregates question outcomes for a meeting.
type QuestionStats struct {
	Total   int `json:"total"`
	Correct int `json:"correct"`
	Partial int `json:"partial"`
	Wrong   int `json:"wrong"`
}

// Recorder appends event facts, resolving people through the roster.
type Recorder struct {
	db     *sql.DB
	roster *directory.Repository
	now    func() time.Time
}

// NewRecorder creates a recorder.
func NewRecorder(db *sql.DB, roster *directory.Repository) *Recorder {
	return &Recorder{db: db, roster: roster, now: time.Now}
}

// RecordRandomCall appends a random-call pick for the badge. Repeats are
// legitimate; nothing is deduplicated.
func (r *Recorder) RecordRandomCall(ctx context.Context, meetingID int64, badge string) (int64, error) {
	personID, err := r.roster.Resolve(ctx, badge)
	if err != nil {
		return 0, err
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO random_call_records (meeting_id, person_id, call_time)
		VALUES (?, ?, ?)
	`, meetingID, personID, r.now().UTC())
	if err != nil {
		return 0, apperr.Storage(err, "record random call")
	}
	id, _ := res.LastInsertId()
	return id, nil
}

// RecordQuestion appends a question-answer outcome with a server-assigned
// timestamp.
func (r *Recorder) RecordQuestion(ctx context.Context, meetingID int64, badge, questionText, result, notes string) (int64, error) {
	if result != ResultCorrect && result != ResultPartial && result != ResultWrong {
		return 0, apperr.Invalid("invalid result %q", result)
	}
	personID, err := r.roster.Resolve(ctx, badge)
	if err != nil {
		return 0, err
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO question_records (meeting_id, person_id, question_text, result, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, meetingID, personID, questionText, result, notes, r.now().UTC())
	if err != nil {
		return 0, apperr.Storage(err, "record question")
	}
	id, _ := res.LastInsertId()
	return id, nil
}

// QuestionRecords returns all question records for a meeting, newest first,
// with aggregate counts.
func (r *Recorder) QuestionRecords(ctx context.Context, meetingID int64) ([]Question, QuestionStats, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT qr.id, qr.meeting_id, qr.person_id, qr.question_text, qr.result, qr.notes, qr.created_at,
		       e.name, e.employee_id, e.department
		FROM question_records qr
		JOIN employees e ON qr.person_id = e.id
		WHERE qr.meeting_id = ?
		ORDER BY qr.created_at DESC, qr.id DESC
	`, meetingID)
	if err != nil {
		return nil, QuestionStats{}, apperr.Storage(err, "list question records")
	}
	defer rows.Close()

	var records []Question
	for rows.Next() {
		var q Question
		if err := rows.Scan(&q.ID, &q.MeetingID, &q.PersonID, &q.QuestionText, &q.Result, &q.Notes, &q.CreatedAt,
			&q.Name, &q.EmployeeID, &q.Department); err != nil {
			return nil, QuestionStats{}, apperr.Storage(err, "scan question record")
		}
		records = append(records, q)
	}
	if err := rows.Err(); err != nil {
		return nil, QuestionStats{}, apperr.Storage(err, "list question records")
	}

	var stats QuestionStats
	err = r.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN result = 'correct' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN result = 'partial' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN result = 'wrong' THEN 1 ELSE 0 END), 0)
		FROM question_records
		WHERE meeting_id = ?
	`, meetingID).Scan(&stats.Total, &stats.Correct, &stats.Partial, &stats.Wrong)
	if err != nil {
		return nil, QuestionStats{}, apperr.Storage(err, "aggregate question records")
	}
	return records, stats, nil
}

// PersonHistory returns every question record for the badge across all
// meetings, joined with meeting title and date, newest first.
func (r *Recorder) PersonHistory(ctx context.Context, badge string) ([]Question, error) {
	personID, err := r.roster.Resolve(ctx, badge)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT qr.id, qr.meeting_id, qr.person_id, qr.question_text, qr.result, qr.notes, qr.created_at,
		       m.title, m.date
		FROM question_records qr
		JOIN meetings m ON qr.meeting_id = m.id
		WHERE qr.person_id = ?
		ORDER BY qr.created_at DESC, qr.id DESC
	`, personID)
	if err != nil {
		return nil, apperr.Storage(err, "list question history")
	}
	defer rows.Close()

	var records []Question
	for rows.Next() {
		var q Question
		if err := rows.Scan(&q.ID, &q.MeetingID, &q.PersonID, &q.QuestionText, &q.Result, &q.Notes, &q.CreatedAt,
			&q.MeetingTitle, &q.MeetingDate); err != nil {
			return nil, apperr.Storage(err, "scan question history")
		}
		records = append(records, q)
	}
	return records, rows.Err()
}
