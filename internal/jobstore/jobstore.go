// Package jobstore tracks import job lifecycles and stashes oversized job
// inputs. Inputs travel through the store rather than the task queue, whose
// transport caps payload sizes far below a batch of base64 asset bytes.
package jobstore

import (
	"context"
	"errors"

	"github.com/danielgmorais/bulkbridge/internal/model"
)

var (
	// ErrNotFound distinguishes an unknown job from one still processing,
	// which polling clients rely on.
	ErrNotFound = errors.New("job not found")
	// ErrTerminal is returned when a second terminal write is attempted
	// for an already completed or failed job.
	ErrTerminal = errors.New("job already terminal")
)

// Store is the job lifecycle contract. A multi-instance deployment swaps
// the backing structure, not the interface.
type Store interface {
	// Create registers a job with status processing.
	Create(ctx context.Context, jobID string) error
	// Complete moves a processing job to its terminal completed state.
	Complete(ctx context.Context, jobID string, result model.JobResult) error
	// Fail moves a processing job to its terminal failed state.
	Fail(ctx context.Context, jobID string, msg string) error
	// Get returns the current record or ErrNotFound.
	Get(ctx context.Context, jobID string) (*model.JobRecord, error)

	// StashInput stores the full pairs payload under the job ID.
	StashInput(ctx context.Context, jobID string, input *model.ImportInput) error
	// FetchInput retrieves a stashed payload or ErrNotFound.
	FetchInput(ctx context.Context, jobID string) (*model.ImportInput, error)
}
