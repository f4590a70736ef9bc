package jobstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/danielgmorais/bulkbridge/internal/model"
)

// Memory is the single-instance store: two maps guarded by an RWMutex.
// Jobs and inputs are mutated only by the pipeline and read by the polling
// interface, so per-key atomicity is all the coordination required.
type Memory struct {
	mu     sync.RWMutex
	jobs   map[string]*model.JobRecord
	inputs map[string]*model.ImportInput
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		jobs:   make(map[string]*model.JobRecord),
		inputs: make(map[string]*model.ImportInput),
	}
}

// Create registers a job as processing.
func (m *Memory) Create(_ context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[jobID]; ok {
		return fmt.Errorf("job %s already exists", jobID)
	}
	now := time.Now().UTC()
	m.jobs[jobID] = &model.JobRecord{
		JobID:     jobID,
		Status:    model.StatusProcessing,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return nil
}

// Complete writes the terminal completed record.
func (m *Memory) Complete(_ context.Context, jobID string, result model.JobResult) error {
	result.Status = model.StatusCompleted
	return m.finish(jobID, model.StatusCompleted, result)
}

// Fail writes the terminal failed record.
func (m *Memory) Fail(_ context.Context, jobID string, msg string) error {
	return m.finish(jobID, model.StatusFailed, model.JobResult{
		JobID:  jobID,
		Status: model.StatusFailed,
		Error:  msg,
	})
}

func (m *Memory) finish(jobID string, status model.JobStatus, result model.JobResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	if rec.Status != model.StatusProcessing {
		return ErrTerminal
	}
	rec.Status = status
	rec.Result = result
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

// Get returns a copy of the record so callers cannot mutate internal state.
func (m *Memory) Get(_ context.Context, jobID string) (*model.JobRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

// StashInput stores the full pairs payload.
func (m *Memory) StashInput(_ context.Context, jobID string, input *model.ImportInput) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputs[jobID] = input
	return nil
}

// FetchInput retrieves a stashed payload.
func (m *Memory) FetchInput(_ context.Context, jobID string) (*model.ImportInput, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	input, ok := m.inputs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	return input, nil
}
