// Package exam covers exam CRUD and score entry. Scores are keyed one row
// per (exam, person), like attendance records are per (meeting, person).
package exam

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"meetsign/internal/apperr"
	"meetsign/internal/directory"
)

// Exam is an exam, optionally linked to a meeting.
type Exam struct {
	ID           int64     `json:"id"`
	MeetingID    int64     `json:"meeting_id,omitempty"`
	Title        string    `json:"title"`
	ExamDate     string    `json:"exam_date"`
	TotalScore   float64   `json:"total_score"`
	Description  string    `json:"description"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	MeetingTitle string    `json:"meeting_title,omitempty"`
}

// Score is one person's score for an exam, joined with display data.
type Score struct {
	ID         int64   `json:"id"`
	ExamID     int64   `json:"exam_id"`
	PersonID   int64   `json:"person_id"`
	Score      float64 `json:"score"`
	Notes      string  `json:"notes"`
	Name       string  `json:"name"`
	EmployeeID string  `json:"employee_id"`
	Department string  `json:"department"`
}

// ScoreStats aggregates the scores of one exam.
type ScoreStats struct {
	Total int     `json:"total"`
	Avg   float64 `json:"avg"`
	Max   float64 `json:"max"`
	Min   float64 `json:"min"`
}

// ScoreItem is one entry of a batch score import.
type ScoreItem struct {
	EmployeeID string  `json:"employee_id"`
	Score      float64 `json:"score"`
	Notes      string  `json:"notes"`
}

// ScoreResult reports the outcome for one item of a score import.
type ScoreResult struct {
	EmployeeID string `json:"employee_id"`
	OK         bool   `json:"success"`
	Error      string `json:"error,omitempty"`
}

// Repository persists exams and scores.
type Repository struct {
	db     *sql.DB
	roster *directory.Repository
}

// NewRepository creates an exam repository.
func NewRepository(db *sql.DB, roster *directory.Repository) *Repository {
	return &Repository{db: db, roster: roster}
}

// Create inserts an exam. Total score defaults to 100.
func (r *Repository) Create(ctx context.Context, e *Exam) error {
	if len(strings.TrimSpace(e.Title)) < 2 {
		return apperr.Invalid("title must be at least 2 characters")
	}
	if strings.TrimSpace(e.ExamDate) == "" {
		return apperr.Invalid("exam_date is required")
	}
	if e.TotalScore == 0 {
		e.TotalScore = 100
	}
	if e.TotalScore < 0 || e.TotalScore > 1000 {
		return apperr.Invalid("total_score must be between 0 and 1000")
	}
	var meetingID any
	if e.MeetingID != 0 {
		meetingID = e.MeetingID
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO exams (meeting_id, title, exam_date, total_score, description)
		VALUES (?, ?, ?, ?, ?)
	`, meetingID, e.Title, e.ExamDate, e.TotalScore, e.Description)
	if err != nil {
		return apperr.Storage(err, "insert exam")
	}
	e.ID, _ = res.LastInsertId()
	return nil
}

// List returns all exams with their meeting titles, newest exam date first.
func (r *Repository) List(ctx context.Context) ([]Exam, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT x.id, COALESCE(x.meeting_id, 0), x.title, x.exam_date, x.total_score, x.description, x.created_at,
		       COALESCE(m.title, '')
		FROM exams x
		LEFT JOIN meetings m ON x.meeting_id = m.id
		ORDER BY x.exam_date DESC
	`)
	if err != nil {
		return nil, apperr.Storage(err, "list exams")
	}
	defer rows.Close()

	var exams []Exam
	for rows.Next() {
		var e Exam
		if err := rows.Scan(&e.ID, &e.MeetingID, &e.Title, &e.ExamDate, &e.TotalScore, &e.Description, &e.CreatedAt, &e.MeetingTitle); err != nil {
			return nil, apperr.Storage(err, "scan exam")
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}

// Detail returns the exam, its scores ordered high to low, and aggregates.
func (r *Repository) Detail(ctx context.Context, id int64) (Exam, []Score, ScoreStats, error) {
	var e Exam
	err := r.db.QueryRowContext(ctx, `
		SELECT id, COALESCE(meeting_id, 0), title, exam_date, total_score, description, created_at
		FROM exams WHERE id = ?
	`, id).Scan(&e.ID, &e.MeetingID, &e.Title, &e.ExamDate, &e.TotalScore, &e.Description, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Exam{}, nil, ScoreStats{}, apperr.NotFound("exam %d not found", id)
	}
	if err != nil {
		return Exam{}, nil, ScoreStats{}, apperr.Storage(err, "load exam %d", id)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT es.id, es.exam_id, es.person_id, es.score, es.notes, e.name, e.employee_id, e.department
		FROM exam_scores es
		JOIN employees e ON es.person_id = e.id
		WHERE es.exam_id = ?
		ORDER BY es.score DESC
	`, id)
	if err != nil {
		return Exam{}, nil, ScoreStats{}, apperr.Storage(err, "list scores")
	}
	defer rows.Close()

	var scores []Score
	for rows.Next() {
		var s Score
		if err := rows.Scan(&s.ID, &s.ExamID, &s.PersonID, &s.Score, &s.Notes, &s.Name, &s.EmployeeID, &s.Department); err != nil {
			return Exam{}, nil, ScoreStats{}, apperr.Storage(err, "scan score")
		}
		scores = append(scores, s)
	}
	if err := rows.Err(); err != nil {
		return Exam{}, nil, ScoreStats{}, apperr.Storage(err, "list scores")
	}

	var stats ScoreStats
	err = r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(AVG(score), 0), COALESCE(MAX(score), 0), COALESCE(MIN(score), 0)
		FROM exam_scores WHERE exam_id = ?
	`, id).Scan(&stats.Total, &stats.Avg, &stats.Max, &stats.Min)
	if err != nil {
		return Exam{}, nil, ScoreStats{}, apperr.Storage(err, "aggregate scores")
	}
	return e, scores, stats, nil
}

// UpsertScore records one person's score, overwriting any earlier entry for
// the same exam.
func (r *Repository) UpsertScore(ctx context.Context, examID int64, item ScoreItem) error {
	personID, err := r.roster.Resolve(ctx, item.EmployeeID)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO exam_scores (exam_id, person_id, score, notes)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(exam_id, person_id) DO UPDATE SET score = excluded.score, notes = excluded.notes
	`, examID, personID, item.Score, item.Notes)
	if err != nil {
		return apperr.Storage(err, "record score")
	}
	return nil
}

// ImportScores records a batch of scores with per-item results; an
// unresolvable badge fails only its own item.
func (r *Repository) ImportScores(ctx context.Context, examID int64, items []ScoreItem) ([]ScoreResult, error) {
	results := make([]ScoreResult, 0, len(items))
	for _, item := range items {
		if err := r.UpsertScore(ctx, examID, item); err != nil {
			if apperr.KindOf(err) == apperr.KindStorage {
				return nil, err
			}
			results = append(results, ScoreResult{EmployeeID: item.EmployeeID, OK: false, Error: err.Error()})
			continue
		}
		results = append(results, ScoreResult{EmployeeID: item.EmployeeID, OK: true})
	}
	return results, nil
}

// Delete removes the exam and its scores in one transaction.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Storage(err, "begin delete exam")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM exam_scores WHERE exam_id = ?`, id); err != nil {
		return apperr.Storage(err, "delete exam scores")
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM exams WHERE id = ?`, id)
	if err != nil {
		return apperr.Storage(err, "delete exam %d", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("exam %d not found", id)
	}
	if err := tx.Commit(); err != nil {
		return apperr.Storage(err, "commit delete exam %d", id)
	}
	return nil
}
