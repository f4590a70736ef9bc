package api

import (
	"context"
	"log"

	"github.com/hibiken/asynq"

	"github.com/danielgmorais/bulkbridge/internal/model"
	"github.com/danielgmorais/bulkbridge/internal/pipeline"
	"github.com/danielgmorais/bulkbridge/internal/queue"
)

// Dispatcher hands an accepted job to the pipeline. The input itself is
// already stashed in the job store; implementations only move identifiers.
type Dispatcher interface {
	Dispatch(ctx context.Context, input *model.ImportInput) error
}

// QueueDispatcher enqueues jobs on the asynq transport for a separate
// worker process.
type QueueDispatcher struct {
	client *asynq.Client
}

// NewQueueDispatcher wraps an asynq client.
func NewQueueDispatcher(client *asynq.Client) *QueueDispatcher {
	return &QueueDispatcher{client: client}
}

// Dispatch enqueues the identifier-only task payload.
func (d *QueueDispatcher) Dispatch(ctx context.Context, input *model.ImportInput) error {
	return queue.EnqueueImport(ctx, d.client, queue.ImportTaskPayload{
		JobID:        input.JobID,
		CategoryID:   input.CategoryID,
		CategoryName: input.CategoryName,
	})
}

// LocalDispatcher runs the pipeline in-process for the standalone binary.
// Once a run begins it goes to completion; request cancellation must not
// abort a job the caller was told is processing.
type LocalDispatcher struct {
	proc *pipeline.Processor
}

// NewLocalDispatcher wraps a pipeline processor.
func NewLocalDispatcher(proc *pipeline.Processor) *LocalDispatcher {
	return &LocalDispatcher{proc: proc}
}

// Dispatch launches the pipeline on its own goroutine.
func (d *LocalDispatcher) Dispatch(_ context.Context, input *model.ImportInput) error {
	go func() {
		if err := d.proc.Run(context.Background(), input); err != nil {
			log.Printf("import %s: pipeline error: %v", input.JobID, err)
		}
	}()
	return nil
}
