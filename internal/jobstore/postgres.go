package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/danielgmorais/bulkbridge/internal/model"
)

// Postgres backs the Store contract with pgx so multiple API/worker
// instances share job state.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres constructs a Postgres-backed store.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Create inserts a processing job row.
func (p *Postgres) Create(ctx context.Context, jobID string) error {
	now := time.Now().UTC()
	_, err := p.pool.Exec(ctx, `
		INSERT INTO import_jobs (job_id, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4)
	`, jobID, model.StatusProcessing, now, now)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// Complete records the terminal completed result.
func (p *Postgres) Complete(ctx context.Context, jobID string, result model.JobResult) error {
	return p.finish(ctx, jobID, model.StatusCompleted,
		result.CSVContent, result.Successful, result.Failed, result.TotalProducts, "")
}

// Fail records the terminal failed result.
func (p *Postgres) Fail(ctx context.Context, jobID string, msg string) error {
	return p.finish(ctx, jobID, model.StatusFailed, "", 0, 0, 0, msg)
}

// finish guards terminal immutability with the status predicate: once a job
// left processing, the update matches zero rows.
func (p *Postgres) finish(ctx context.Context, jobID string, status model.JobStatus, csv string, successful, failed, total int, errMsg string) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE import_jobs
		SET status=$1, csv_content=$2, successful=$3, failed=$4,
			total_products=$5, error_message=NULLIF($6,''), updated_at=$7
		WHERE job_id=$8 AND status=$9
	`, status, csv, successful, failed, total, errMsg, time.Now().UTC(), jobID, model.StatusProcessing)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := p.Get(ctx, jobID); errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return ErrTerminal
	}
	return nil
}

// Get returns a job row.
func (p *Postgres) Get(ctx context.Context, jobID string) (*model.JobRecord, error) {
	var (
		rec    model.JobRecord
		errMsg *string
	)
	row := p.pool.QueryRow(ctx, `
		SELECT job_id, status, COALESCE(csv_content,''), successful, failed,
			total_products, error_message, created_at, updated_at
		FROM import_jobs WHERE job_id=$1
	`, jobID)
	if err := row.Scan(&rec.JobID, &rec.Status, &rec.Result.CSVContent,
		&rec.Result.Successful, &rec.Result.Failed, &rec.Result.TotalProducts,
		&errMsg, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select job: %w", err)
	}
	rec.Result.JobID = rec.JobID
	rec.Result.Status = rec.Status
	if errMsg != nil {
		rec.Result.Error = *errMsg
	}
	return &rec, nil
}

// StashInput stores the serialized pairs payload next to the job row.
func (p *Postgres) StashInput(ctx context.Context, jobID string, input *model.ImportInput) error {
	data, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("marshal input: %w", err)
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO import_job_inputs (job_id, payload, created_at)
		VALUES ($1,$2,$3)
		ON CONFLICT (job_id) DO UPDATE SET payload=EXCLUDED.payload
	`, jobID, data, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("stash input: %w", err)
	}
	return nil
}

// FetchInput loads and decodes a stashed payload.
func (p *Postgres) FetchInput(ctx context.Context, jobID string) (*model.ImportInput, error) {
	var data []byte
	row := p.pool.QueryRow(ctx, `SELECT payload FROM import_job_inputs WHERE job_id=$1`, jobID)
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("fetch input: %w", err)
	}
	var input model.ImportInput
	if err := json.Unmarshal(data, &input); err != nil {
		return nil, fmt.Errorf("decode input: %w", err)
	}
	return &input, nil
}
