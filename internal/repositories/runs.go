package repositories

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/desertthunder/stemdeck/internal/models"
	"github.com/desertthunder/stemdeck/internal/shared"
)

// RunRepository stores [models.AnalysisRun] history. It implements tasks.RunRecorder.
type RunRepository struct {
	db *sql.DB
}

// NewRunRepository creates a new RunRepository with the given database connection
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

// RecordRun inserts a finished run. Runs without an ID get a generated one.
func (r *RunRepository) RecordRun(run *models.AnalysisRun) error {
	if run.ID == "" {
		run.ID = shared.GenerateID()
	}
	if run.Kind == "" || run.Target == "" {
		return fmt.Errorf("%w: run kind and target are required", shared.ErrInvalidInput)
	}

	completed, err := json.Marshal(nonNil(run.Completed))
	if err != nil {
		return fmt.Errorf("failed to encode completed tracks: %w", err)
	}
	reported, err := json.Marshal(nonNil(run.Errors))
	if err != nil {
		return fmt.Errorf("failed to encode errors: %w", err)
	}

	_, err = r.db.Exec(`
		INSERT INTO analysis_runs (id, kind, target, model, completed, errors, skipped, failure, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, string(run.Kind), run.Target, run.Model, string(completed), string(reported),
		run.Skipped, run.Failure, run.StartedAt, run.FinishedAt)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// Get retrieves a run by ID
func (r *RunRepository) Get(id string) (*models.AnalysisRun, error) {
	row := r.db.QueryRow(`
		SELECT id, kind, target, model, completed, errors, skipped, failure, started_at, finished_at
		FROM analysis_runs
		WHERE id = ?
	`, id)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	return run, err
}

// List retrieves the most recent runs, newest first. A non-positive limit returns all runs.
func (r *RunRepository) List(limit int) ([]*models.AnalysisRun, error) {
	query := `
		SELECT id, kind, target, model, completed, errors, skipped, failure, started_at, finished_at
		FROM analysis_runs
		ORDER BY started_at DESC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.AnalysisRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return runs, nil
}

func scanRun(row scanner) (*models.AnalysisRun, error) {
	var (
		run       models.AnalysisRun
		kind      string
		completed string
		reported  string
	)

	err := row.Scan(&run.ID, &kind, &run.Target, &run.Model, &completed, &reported,
		&run.Skipped, &run.Failure, &run.StartedAt, &run.FinishedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	run.Kind = models.RunKind(kind)
	if err := json.Unmarshal([]byte(completed), &run.Completed); err != nil {
		return nil, fmt.Errorf("failed to decode completed tracks: %w", err)
	}
	if err := json.Unmarshal([]byte(reported), &run.Errors); err != nil {
		return nil, fmt.Errorf("failed to decode errors: %w", err)
	}
	if len(run.Errors) == 0 {
		run.Errors = nil
	}
	return &run, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
