package pipeline

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/hibiken/asynq"

	"github.com/danielgmorais/bulkbridge/internal/blobstore"
	"github.com/danielgmorais/bulkbridge/internal/captioner"
	"github.com/danielgmorais/bulkbridge/internal/jobstore"
	"github.com/danielgmorais/bulkbridge/internal/model"
	"github.com/danielgmorais/bulkbridge/internal/queue"
)

// fakeUploader fails uploads whose filename is listed in failOn.
type fakeUploader struct {
	mu     sync.Mutex
	failOn map[string]bool
	calls  int
}

func (f *fakeUploader) Upload(_ context.Context, _ []byte, fileName, folder string) blobstore.UploadResult {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.failOn[fileName] {
		return blobstore.UploadResult{Error: "connection refused"}
	}
	return blobstore.UploadResult{Success: true, URL: "https://cdn.test/" + folder + "/" + fileName}
}

type fakeCaptioner struct {
	failOn map[string]bool
}

func (f *fakeCaptioner) Caption(_ context.Context, req captioner.Request) (captioner.Metadata, error) {
	if f.failOn[req.DownloadFileName] {
		return captioner.Metadata{}, errors.New("caption model unavailable")
	}
	return captioner.Metadata{
		Name:        "Product " + req.DownloadFileName,
		Description: "desc",
		Keywords:    []string{"kw"},
	}, nil
}

type recordingNotifier struct {
	mu      sync.Mutex
	results []model.JobResult
	err     error
}

func (r *recordingNotifier) Notify(_ context.Context, result model.JobResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
	return r.err
}

func localPairs(n int) []model.FilePair {
	pairs := make([]model.FilePair, 0, n)
	for i := 0; i < n; i++ {
		base := fmt.Sprintf("item%d", i+1)
		pairs = append(pairs, model.FilePair{
			ID:       fmt.Sprintf("pair-%d", i+1),
			BaseName: base,
			ImageFile: model.AssetRef{
				Name: base + ".jpg",
				Data: []byte("img"),
			},
			DownloadFile: &model.AssetRef{
				Name: base + ".zip",
				Data: []byte("zip"),
			},
		})
	}
	return pairs
}

func newInput(pairs []model.FilePair) *model.ImportInput {
	return &model.ImportInput{
		JobID:        "job-1",
		CategoryID:   "cat-1",
		CategoryName: "PSD LAB",
		Policy:       model.CategoryPolicy{Mode: model.ModePaired, MaxUnits: 100},
		Pairs:        pairs,
	}
}

func TestRunPartialSuccess(t *testing.T) {
	ctx := context.Background()
	store := jobstore.NewMemory()
	if err := store.Create(ctx, "job-1"); err != nil {
		t.Fatalf("create job: %v", err)
	}

	uploader := &fakeUploader{failOn: map[string]bool{"item3.jpg": true}}
	notifier := &recordingNotifier{}
	proc := New(store, uploader, &fakeCaptioner{}, notifier, DefaultLimits)

	if err := proc.Run(ctx, newInput(localPairs(5))); err != nil {
		t.Fatalf("run: %v", err)
	}

	rec, err := store.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if rec.Status != model.StatusCompleted {
		t.Fatalf("partial failure must still complete, got %s", rec.Status)
	}
	if rec.Result.TotalProducts != 5 || rec.Result.Successful != 4 || rec.Result.Failed != 1 {
		t.Fatalf("unexpected counts: %+v", rec.Result)
	}

	rows, err := csv.NewReader(strings.NewReader(rec.Result.CSVContent)).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(rows) != 6 {
		t.Fatalf("expected header + 5 rows, got %d", len(rows))
	}
	// Row 3 (input order preserved) carries the upload failure.
	failedRow := rows[3]
	if failedRow[0] != "item3" || failedRow[9] != "failed" || !strings.Contains(failedRow[10], "image upload failed") {
		t.Fatalf("unexpected failed row: %v", failedRow)
	}
	for _, i := range []int{1, 2, 4, 5} {
		if rows[i][9] != "success" || rows[i][10] != "" {
			t.Fatalf("row %d should be clean: %v", i, rows[i])
		}
	}

	if len(notifier.results) != 1 || notifier.results[0].Failed != 1 {
		t.Fatalf("webhook should receive the final result: %+v", notifier.results)
	}
}

func TestRunCaptionerFailureDegradesItem(t *testing.T) {
	ctx := context.Background()
	store := jobstore.NewMemory()
	_ = store.Create(ctx, "job-1")

	proc := New(store, &fakeUploader{}, &fakeCaptioner{failOn: map[string]bool{"item2.zip": true}}, nil, DefaultLimits)
	if err := proc.Run(ctx, newInput(localPairs(3))); err != nil {
		t.Fatalf("run: %v", err)
	}
	rec, _ := store.Get(ctx, "job-1")
	if rec.Result.Successful != 2 || rec.Result.Failed != 1 {
		t.Fatalf("unexpected counts: %+v", rec.Result)
	}
	rows, _ := csv.NewReader(strings.NewReader(rec.Result.CSVContent)).ReadAll()
	if rows[2][0] != "item2" || rows[2][9] != "failed" || !strings.Contains(rows[2][10], "caption model unavailable") {
		t.Fatalf("captioner failure should degrade its row only: %v", rows[2])
	}
	// The failed row keeps its uploaded asset URLs so the operator can retry.
	if rows[2][4] == "" || rows[2][5] == "" {
		t.Fatalf("failed row should keep uploaded URLs: %v", rows[2])
	}
}

func TestRunPassesThroughUploadedURLs(t *testing.T) {
	ctx := context.Background()
	store := jobstore.NewMemory()
	_ = store.Create(ctx, "job-1")

	uploader := &fakeUploader{}
	pairs := []model.FilePair{{
		ID:        "p1",
		BaseName:  "shirt",
		ImageFile: model.AssetRef{Name: "shirt.jpg", URL: "https://cdn.test/images/shirt.jpg"},
		DownloadFile: &model.AssetRef{
			Name: "shirt.zip", URL: "https://cdn.test/downloads/shirt.zip",
		},
	}}
	proc := New(store, uploader, &fakeCaptioner{}, nil, DefaultLimits)
	if err := proc.Run(ctx, newInput(pairs)); err != nil {
		t.Fatalf("run: %v", err)
	}
	if uploader.calls != 0 {
		t.Fatalf("already-uploaded assets must not be re-uploaded, saw %d uploads", uploader.calls)
	}
	rec, _ := store.Get(ctx, "job-1")
	if rec.Result.Successful != 1 {
		t.Fatalf("unexpected result: %+v", rec.Result)
	}
}

func TestRunSingleFileUnitsShareURL(t *testing.T) {
	ctx := context.Background()
	store := jobstore.NewMemory()
	_ = store.Create(ctx, "job-1")

	input := newInput([]model.FilePair{{
		ID:        "p1",
		BaseName:  "sunset",
		ImageFile: model.AssetRef{Name: "sunset.jpg", Data: []byte("img")},
	}})
	input.Policy = model.CategoryPolicy{Mode: model.ModeSingleFile, MaxUnits: 100}

	proc := New(store, &fakeUploader{}, &fakeCaptioner{}, nil, DefaultLimits)
	if err := proc.Run(ctx, input); err != nil {
		t.Fatalf("run: %v", err)
	}
	rec, _ := store.Get(ctx, "job-1")
	rows, _ := csv.NewReader(strings.NewReader(rec.Result.CSVContent)).ReadAll()
	if rows[1][4] != rows[1][5] {
		t.Fatalf("single-file unit should reuse the image URL as deliverable: %v", rows[1])
	}
}

func TestRunWebhookFailureDoesNotFailJob(t *testing.T) {
	ctx := context.Background()
	store := jobstore.NewMemory()
	_ = store.Create(ctx, "job-1")

	notifier := &recordingNotifier{err: errors.New("endpoint down")}
	proc := New(store, &fakeUploader{}, &fakeCaptioner{}, notifier, DefaultLimits)
	if err := proc.Run(ctx, newInput(localPairs(2))); err != nil {
		t.Fatalf("run: %v", err)
	}
	rec, _ := store.Get(ctx, "job-1")
	if rec.Status != model.StatusCompleted {
		t.Fatalf("webhook failure must not flip the job, got %s", rec.Status)
	}
}

func TestRunTerminalRaceKeepsFirstResult(t *testing.T) {
	ctx := context.Background()
	store := jobstore.NewMemory()
	_ = store.Create(ctx, "job-1")
	if err := store.Fail(ctx, "job-1", "earlier attempt"); err != nil {
		t.Fatalf("fail: %v", err)
	}

	proc := New(store, &fakeUploader{}, &fakeCaptioner{}, nil, DefaultLimits)
	if err := proc.Run(ctx, newInput(localPairs(1))); err != nil {
		t.Fatalf("rerun against terminal job should be a no-op, got %v", err)
	}
	rec, _ := store.Get(ctx, "job-1")
	if rec.Status != model.StatusFailed || rec.Result.Error != "earlier attempt" {
		t.Fatalf("first terminal result must win: %+v", rec)
	}
}

func TestHandleImportMissingInputFailsJob(t *testing.T) {
	ctx := context.Background()
	store := jobstore.NewMemory()
	_ = store.Create(ctx, "job-1")

	proc := New(store, &fakeUploader{}, &fakeCaptioner{}, nil, DefaultLimits)
	task := asynq.NewTask(queue.BulkImportTask, []byte(`{"job_id":"job-1"}`))
	err := proc.handleImport(ctx, task)
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("missing input should not be retried, got %v", err)
	}
	rec, gerr := store.Get(ctx, "job-1")
	if gerr != nil {
		t.Fatalf("get: %v", gerr)
	}
	if rec.Status != model.StatusFailed {
		t.Fatalf("job without input should be failed, got %s", rec.Status)
	}
}

func TestCaptionLimit(t *testing.T) {
	proc := New(jobstore.NewMemory(), &fakeUploader{}, &fakeCaptioner{}, nil, DefaultLimits)

	paired := model.CategoryPolicy{Mode: model.ModePaired}
	if got := proc.captionLimit(paired, nil); got != 8 {
		t.Fatalf("paired ceiling: got %d", got)
	}

	single := model.CategoryPolicy{Mode: model.ModeSingleFile}
	images := []model.FilePair{{ImageFile: model.AssetRef{Name: "a.jpg"}}}
	if got := proc.captionLimit(single, images); got != 25 {
		t.Fatalf("image-only ceiling: got %d", got)
	}
	mixed := []model.FilePair{{ImageFile: model.AssetRef{Name: "a.mp4"}}}
	if got := proc.captionLimit(single, mixed); got != 15 {
		t.Fatalf("mixed single-file ceiling: got %d", got)
	}

	override := model.CategoryPolicy{Mode: model.ModePaired, CaptionConcurrency: 3}
	if got := proc.captionLimit(override, nil); got != 3 {
		t.Fatalf("override ceiling: got %d", got)
	}
	if got := proc.captionLimit(model.CategoryPolicy{}, nil); got != 20 {
		t.Fatalf("default ceiling: got %d", got)
	}
}
