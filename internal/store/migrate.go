package store

import (
	"database/sql"
	"fmt"
	"log"
)

// migrations are applied in order at startup. Each entry runs at most once,
// recorded in schema_migrations; never edit an applied entry, append instead.
var migrations = []struct {
	version int
	name    string
	stmt    string
}{
	{1, "core tables", `
	CREATE TABLE IF NOT EXISTS employees (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		name          TEXT NOT NULL,
		employee_id   TEXT NOT NULL UNIQUE,
		employee_code TEXT NOT NULL DEFAULT '',
		department    TEXT NOT NULL DEFAULT '',
		phone         TEXT NOT NULL DEFAULT '',
		email         TEXT NOT NULL DEFAULT '',
		tags          TEXT NOT NULL DEFAULT '',
		created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS meetings (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		title       TEXT NOT NULL,
		date        TEXT NOT NULL,
		start_time  TEXT NOT NULL DEFAULT '',
		end_time    TEXT NOT NULL DEFAULT '',
		location    TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS meeting_tokens (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		meeting_id INTEGER NOT NULL UNIQUE REFERENCES meetings(id),
		payload    TEXT NOT NULL,
		image      TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS attendance (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		meeting_id INTEGER NOT NULL REFERENCES meetings(id),
		person_id  INTEGER NOT NULL REFERENCES employees(id),
		status     TEXT NOT NULL CHECK(status IN ('present', 'absent', 'late')),
		sign_time  DATETIME NOT NULL,
		notes      TEXT NOT NULL DEFAULT '',
		UNIQUE(meeting_id, person_id)
	);

	CREATE TABLE IF NOT EXISTS random_call_records (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		meeting_id INTEGER NOT NULL REFERENCES meetings(id),
		person_id  INTEGER NOT NULL REFERENCES employees(id),
		call_time  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS question_records (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		meeting_id    INTEGER NOT NULL REFERENCES meetings(id),
		person_id     INTEGER NOT NULL REFERENCES employees(id),
		question_text TEXT NOT NULL DEFAULT '',
		result        TEXT NOT NULL CHECK(result IN ('correct', 'partial', 'wrong')),
		notes         TEXT NOT NULL DEFAULT '',
		created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	`},
	{2, "exam tables", `
	CREATE TABLE IF NOT EXISTS exams (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		meeting_id  INTEGER REFERENCES meetings(id),
		title       TEXT NOT NULL,
		exam_date   TEXT NOT NULL,
		total_score REAL NOT NULL DEFAULT 100,
		description TEXT NOT NULL DEFAULT '',
		created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS exam_scores (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		exam_id    INTEGER NOT NULL REFERENCES exams(id),
		person_id  INTEGER NOT NULL REFERENCES employees(id),
		score      REAL NOT NULL,
		notes      TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(exam_id, person_id)
	);
	`},
	{3, "lookup indexes", `
	CREATE INDEX IF NOT EXISTS idx_attendance_meeting ON attendance(meeting_id);
	CREATE INDEX IF NOT EXISTS idx_random_call_meeting ON random_call_records(meeting_id);
	CREATE INDEX IF NOT EXISTS idx_question_meeting ON question_records(meeting_id);
	CREATE INDEX IF NOT EXISTS idx_question_person ON question_records(person_id);
	CREATE INDEX IF NOT EXISTS idx_scores_exam ON exam_scores(exam_id);
	`},
}

// Migrate applies pending migrations in a transaction each, logging every
// version it applies.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		name       TEXT NOT NULL,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var current int
	if err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec(m.stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %d (%s): %w", m.version, m.name, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (version, name) VALUES (?, ?)`, m.version, m.name); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.version, err)
		}
		log.Printf("applied migration %d: %s", m.version, m.name)
	}
	return nil
}
