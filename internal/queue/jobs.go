package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// BulkImportTask is scheduled each time an import batch is accepted.
	BulkImportTask = "import:bulk"
)

// ImportTaskPayload deliberately carries identifiers only. The paired files
// themselves are stashed in the job store and fetched by the worker, since
// the queue transport caps task payloads (~256 KB observed) well below a
// large batch of asset bytes.
type ImportTaskPayload struct {
	JobID        string `json:"job_id"`
	CategoryID   string `json:"category_id"`
	CategoryName string `json:"category_name"`
}

// EnqueueImport enqueues a bulk import job.
func EnqueueImport(ctx context.Context, client *asynq.Client, payload ImportTaskPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(BulkImportTask, data)
	if _, err := client.EnqueueContext(ctx, task, asynq.MaxRetry(3)); err != nil {
		return fmt.Errorf("enqueue import task: %w", err)
	}
	return nil
}
