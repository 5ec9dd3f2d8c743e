package exam

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"meetsign/internal/apperr"
	"meetsign/internal/directory"
	"meetsign/internal/store"
)

func newTestRepo(t *testing.T) (*Repository, *sql.DB) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRepository(db.Client, directory.NewRepository(db.Client)), db.Client
}

func seedEmployees(t *testing.T, db *sql.DB) {
	t.Helper()
	for _, row := range [][2]string{{"Ada", "E100"}, {"Grace", "E101"}} {
		_, err := db.Exec(`INSERT INTO employees (name, employee_id, department) VALUES (?, ?, 'Eng')`, row[0], row[1])
		require.NoError(t, err)
	}
}

func TestCreateDefaultsTotalScore(t *testing.T) {
	repo, _ := newTestRepo(t)

	e := Exam{Title: "Midterm", ExamDate: "2025-02-01"}
	require.NoError(t, repo.Create(context.Background(), &e))
	require.NotZero(t, e.ID)
	require.Equal(t, float64(100), e.TotalScore)
}

func TestCreateValidation(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	err := repo.Create(ctx, &Exam{Title: "X", ExamDate: "2025-02-01"})
	require.Equal(t, apperr.KindInvalid, apperr.KindOf(err))

	err = repo.Create(ctx, &Exam{Title: "Midterm"})
	require.Equal(t, apperr.KindInvalid, apperr.KindOf(err))

	err = repo.Create(ctx, &Exam{Title: "Midterm", ExamDate: "2025-02-01", TotalScore: 2000})
	require.Equal(t, apperr.KindInvalid, apperr.KindOf(err))
}

func TestScoreUpsertKeepsOneRow(t *testing.T) {
	repo, db := newTestRepo(t)
	seedEmployees(t, db)
	ctx := context.Background()

	e := Exam{Title: "Midterm", ExamDate: "2025-02-01"}
	require.NoError(t, repo.Create(ctx, &e))

	require.NoError(t, repo.UpsertScore(ctx, e.ID, ScoreItem{EmployeeID: "E100", Score: 70}))
	require.NoError(t, repo.UpsertScore(ctx, e.ID, ScoreItem{EmployeeID: "E100", Score: 85, Notes: "regrade"}))

	_, scores, stats, err := repo.Detail(ctx, e.ID)
	require.NoError(t, err)
	require.Len(t, scores, 1)
	require.Equal(t, float64(85), scores[0].Score)
	require.Equal(t, "regrade", scores[0].Notes)
	require.Equal(t, 1, stats.Total)
}

func TestImportScoresPartialFailure(t *testing.T) {
	repo, db := newTestRepo(t)
	seedEmployees(t, db)
	ctx := context.Background()

	e := Exam{Title: "Midterm", ExamDate: "2025-02-01"}
	require.NoError(t, repo.Create(ctx, &e))

	results, err := repo.ImportScores(ctx, e.ID, []ScoreItem{
		{EmployeeID: "E100", Score: 90},
		{EmployeeID: "GHOST", Score: 50},
		{EmployeeID: "E101", Score: 75},
	})
	require.NoError(t, err)
	require.Len(t, results, 3)
	require.True(t, results[0].OK)
	require.False(t, results[1].OK)
	require.True(t, results[2].OK)

	_, scores, stats, err := repo.Detail(ctx, e.ID)
	require.NoError(t, err)
	require.Len(t, scores, 2)
	require.Equal(t, ScoreStats{Total: 2, Avg: 82.5, Max: 90, Min: 75}, stats)
	// Scores ordered high to low.
	require.Equal(t, "E100", scores[0].EmployeeID)
}

func TestDeleteCascadesScores(t *testing.T) {
	repo, db := newTestRepo(t)
	seedEmployees(t, db)
	ctx := context.Background()

	e := Exam{Title: "Midterm", ExamDate: "2025-02-01"}
	require.NoError(t, repo.Create(ctx, &e))
	require.NoError(t, repo.UpsertScore(ctx, e.ID, ScoreItem{EmployeeID: "E100", Score: 70}))

	require.NoError(t, repo.Delete(ctx, e.ID))

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM exam_scores WHERE exam_id = ?`, e.ID).Scan(&count))
	require.Zero(t, count)

	_, _, _, err := repo.Detail(ctx, e.ID)
	require.True(t, apperr.IsNotFound(err))
}
