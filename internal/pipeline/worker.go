package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/hibiken/asynq"

	"github.com/danielgmorais/bulkbridge/internal/jobstore"
	"github.com/danielgmorais/bulkbridge/internal/queue"
)

// Handler registers the bulk import task handler for the asynq worker loop.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.BulkImportTask, p.handleImport)
	return mux
}

func (p *Processor) handleImport(ctx context.Context, task *asynq.Task) error {
	var payload queue.ImportTaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	input, err := p.jobs.FetchInput(ctx, payload.JobID)
	if err != nil {
		if errors.Is(err, jobstore.ErrNotFound) {
			// Nothing to retry against; fail the job so pollers stop waiting.
			msg := fmt.Sprintf("stashed input missing for job %s", payload.JobID)
			if ferr := p.jobs.Fail(ctx, payload.JobID, msg); ferr != nil && !errors.Is(ferr, jobstore.ErrTerminal) {
				log.Printf("import %s: record missing-input failure: %v", payload.JobID, ferr)
			}
			return fmt.Errorf("%s: %w", msg, asynq.SkipRetry)
		}
		return fmt.Errorf("fetch input: %w", err)
	}

	log.Printf("import %s: %d pair(s), category %q", input.JobID, len(input.Pairs), input.CategoryName)
	return p.Run(ctx, input)
}
