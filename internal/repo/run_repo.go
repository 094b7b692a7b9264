package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/engagement-workflow/internal/domain"
)

// RunRepo — история запусков workflow.
type RunRepo struct {
	pool *pgxpool.Pool
}

// NewRunRepo создаёт новый RunRepo.
func NewRunRepo(pool *pgxpool.Pool) *RunRepo {
	return &RunRepo{pool: pool}
}

const runColumns = `id, status, run_ts, work_dir, steps, outcome, error, started_at, finished_at`

// Create сохраняет новый run.
func (r *RunRepo) Create(ctx context.Context, run *domain.Run) error {
	stepsJSON, outcomeJSON, err := marshalRun(run)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO workflow_runs (` + runColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = r.pool.Exec(ctx, query,
		run.ID,
		run.Status,
		run.Timestamp,
		run.WorkDir,
		stepsJSON,
		outcomeJSON,
		nullString(run.Error),
		run.StartedAt,
		run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Update обновляет статус, шаги и итог run.
func (r *RunRepo) Update(ctx context.Context, run *domain.Run) error {
	stepsJSON, outcomeJSON, err := marshalRun(run)
	if err != nil {
		return err
	}

	query := `
		UPDATE workflow_runs
		SET status = $2, steps = $3, outcome = $4, error = $5, finished_at = $6
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		run.ID,
		run.Status,
		stepsJSON,
		outcomeJSON,
		nullString(run.Error),
		run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID возвращает run по ID.
func (r *RunRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	query := `SELECT ` + runColumns + ` FROM workflow_runs WHERE id = $1`
	run, err := scanRun(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return run, err
}

// RunFilter — параметры фильтрации runs.
type RunFilter struct {
	Status domain.RunStatus
	Limit  int
	Offset int
}

// List возвращает runs, начиная с последнего.
func (r *RunRepo) List(ctx context.Context, filter RunFilter) ([]domain.Run, error) {
	if filter.Limit <= 0 {
		filter.Limit = 20
	}

	query := `
		SELECT ` + runColumns + `
		FROM workflow_runs
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.pool.Query(ctx, query,
		nullString(string(filter.Status)),
		filter.Limit,
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// --- Helpers ---

func marshalRun(run *domain.Run) (steps, outcome []byte, err error) {
	records := run.Steps
	if records == nil {
		records = []domain.StepRecord{}
	}
	steps, err = json.Marshal(records)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal steps: %w", err)
	}
	outcome, err = json.Marshal(run.Outcome)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal outcome: %w", err)
	}
	return steps, outcome, nil
}

// scanRun сканирует строку в Run (подходит и для pgx.Row, и для pgx.Rows).
func scanRun(row pgx.Row) (*domain.Run, error) {
	var run domain.Run
	var stepsJSON, outcomeJSON []byte
	var runError *string

	err := row.Scan(
		&run.ID,
		&run.Status,
		&run.Timestamp,
		&run.WorkDir,
		&stepsJSON,
		&outcomeJSON,
		&runError,
		&run.StartedAt,
		&run.FinishedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}

	if err := json.Unmarshal(stepsJSON, &run.Steps); err != nil {
		return nil, fmt.Errorf("unmarshal steps: %w", err)
	}
	if err := json.Unmarshal(outcomeJSON, &run.Outcome); err != nil {
		return nil, fmt.Errorf("unmarshal outcome: %w", err)
	}
	if runError != nil {
		run.Error = *runError
	}
	return &run, nil
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
