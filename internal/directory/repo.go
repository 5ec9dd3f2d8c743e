package directory

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"meetsign/internal/apperr"
)

// Employee is a person in the roster. EmployeeID is the external badge code
// used in API calls; ID is the internal identity referenced by record tables.
type Employee struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	EmployeeID   string    `json:"employee_id"`
	EmployeeCode string    `json:"employee_code"`
	Department   string    `json:"department"`
	Phone        string    `json:"phone"`
	Email        string    `json:"email"`
	Tags         string    `json:"tags"`
	CreatedAt    time.Time `json:"created_at"`
}

// ImportResult reports the outcome of one row of a batch import.
type ImportResult struct {
	Name  string `json:"name"`
	OK    bool   `json:"success"`
	ID    int64  `json:"id,omitempty"`
	Error string `json:"error,omitempty"`
}

// Repository persists the employee directory and resolves badges.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo bound to the shared store handle.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

var badgeRe = regexp.MustCompile(`^[A-Za-z0-9]+$`)

// Validate checks required fields before any mutation.
func (e *Employee) Validate() error {
	if len(strings.TrimSpace(e.Name)) < 2 {
		return apperr.Invalid("name must be at least 2 characters")
	}
	if !badgeRe.MatchString(e.EmployeeID) {
		return apperr.Invalid("employee_id must be alphanumeric")
	}
	if strings.TrimSpace(e.Department) == "" {
		return apperr.Invalid("department is required")
	}
	return nil
}

// Resolve maps a badge code to the internal employee id. Pure read.
func (r *Repository) Resolve(ctx context.Context, badge string) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `SELECT id FROM employees WHERE employee_id = ?`, badge).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, apperr.NotFound("employee %q not found", badge)
	}
	if err != nil {
		return 0, apperr.Storage(err, "resolve employee %q", badge)
	}
	return id, nil
}

// Create inserts a new employee, surfacing Conflict on a duplicate badge.
func (r *Repository) Create(ctx context.Context, e *Employee) error {
	if err := e.Validate(); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO employees (name, employee_id, employee_code, department, phone, email, tags)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.Name, e.EmployeeID, e.EmployeeCode, e.Department, e.Phone, e.Email, e.Tags)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.Conflict("employee %q already exists", e.EmployeeID)
		}
		return apperr.Storage(err, "insert employee")
	}
	e.ID, _ = res.LastInsertId()
	return nil
}

// Update rewrites an existing employee's fields.
func (r *Repository) Update(ctx context.Context, id int64, e *Employee) error {
	if err := e.Validate(); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE employees
		SET name = ?, employee_id = ?, employee_code = ?, department = ?, phone = ?, email = ?, tags = ?
		WHERE id = ?
	`, e.Name, e.EmployeeID, e.EmployeeCode, e.Department, e.Phone, e.Email, e.Tags, id)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.Conflict("employee %q already exists", e.EmployeeID)
		}
		return apperr.Storage(err, "update employee %d", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("employee %d not found", id)
	}
	return nil
}

// Delete removes an employee from the directory.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM employees WHERE id = ?`, id)
	if err != nil {
		return apperr.Storage(err, "delete employee %d", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("employee %d not found", id)
	}
	return nil
}

// List returns all employees ordered by display name.
func (r *Repository) List(ctx context.Context) ([]Employee, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, employee_id, employee_code, department, phone, email, tags, created_at
		FROM employees
		ORDER BY name
	`)
	if err != nil {
		return nil, apperr.Storage(err, "list employees")
	}
	defer rows.Close()

	var employees []Employee
	for rows.Next() {
		var e Employee
		if err := rows.Scan(&e.ID, &e.Name, &e.EmployeeID, &e.EmployeeCode, &e.Department, &e.Phone, &e.Email, &e.Tags, &e.CreatedAt); err != nil {
			return nil, apperr.Storage(err, "scan employee")
		}
		employees = append(employees, e)
	}
	return employees, rows.Err()
}

// Import inserts a batch of employees, each row committed independently with
// a per-row result; a bad row never blocks the rest.
func (r *Repository) Import(ctx context.Context, employees []Employee) []ImportResult {
	results := make([]ImportResult, 0, len(employees))
	for i := range employees {
		e := employees[i]
		if err := r.Create(ctx, &e); err != nil {
			results = append(results, ImportResult{Name: e.Name, OK: false, Error: err.Error()})
			continue
		}
		results = append(results, ImportResult{Name: e.Name, OK: true, ID: e.ID})
	}
	return results
}

func isUniqueViolation(err error) bool {
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		return serr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			serr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
