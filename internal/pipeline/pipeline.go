// Package pipeline runs the multi-stage bulk import: acquire assets,
// generate metadata, assemble the CSV, and write the terminal job record.
// Item-level failures are captured as data on the affected record; the
// job-level failed status is reserved for orchestration errors that prevent
// the pipeline from reaching its terminal stage at all.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/danielgmorais/bulkbridge/internal/blobstore"
	"github.com/danielgmorais/bulkbridge/internal/captioner"
	"github.com/danielgmorais/bulkbridge/internal/csvgen"
	"github.com/danielgmorais/bulkbridge/internal/jobstore"
	"github.com/danielgmorais/bulkbridge/internal/model"
	"github.com/danielgmorais/bulkbridge/internal/pairing"
	"github.com/danielgmorais/bulkbridge/internal/pdfutil"
	"github.com/danielgmorais/bulkbridge/internal/pool"
)

// Uploader is the blob store collaborator seam.
type Uploader interface {
	Upload(ctx context.Context, data []byte, fileName, folder string) blobstore.UploadResult
}

// Captioner is the metadata collaborator seam.
type Captioner interface {
	Caption(ctx context.Context, req captioner.Request) (captioner.Metadata, error)
}

// Notifier delivers terminal results to an external webhook.
type Notifier interface {
	Notify(ctx context.Context, result model.JobResult) error
}

// Limits are the captioner concurrency ceilings per batch shape, tuned to
// rate limits and asset-size trade-offs.
type Limits struct {
	Paired      int
	SingleImage int
	SingleOther int
	Default     int
}

// DefaultLimits mirror the reference deployment.
var DefaultLimits = Limits{Paired: 8, SingleImage: 25, SingleOther: 15, Default: 20}

// uploadConcurrency bounds simultaneous asset uploads within one job.
const uploadConcurrency = 5

// fixedPrice is the storefront's flat digital-product price.
const fixedPrice = "0.20"

// Processor executes import jobs against injected collaborators.
type Processor struct {
	jobs     jobstore.Store
	blobs    Uploader
	captions Captioner
	notifier Notifier
	limits   Limits
}

// New constructs a Processor. notifier may be nil.
func New(jobs jobstore.Store, blobs Uploader, captions Captioner, notifier Notifier, limits Limits) *Processor {
	if limits.Default <= 0 {
		limits = DefaultLimits
	}
	return &Processor{
		jobs:     jobs,
		blobs:    blobs,
		captions: captions,
		notifier: notifier,
		limits:   limits,
	}
}

// Run executes every stage for one job. It always drives the job to a
// terminal store state: completed when the stages ran (whatever the
// per-item outcomes), failed when orchestration itself broke.
func (p *Processor) Run(ctx context.Context, input *model.ImportInput) error {
	result, err := p.execute(ctx, input)
	if err != nil {
		log.Printf("import %s failed: %v", input.JobID, err)
		if ferr := p.jobs.Fail(ctx, input.JobID, err.Error()); ferr != nil && !errors.Is(ferr, jobstore.ErrTerminal) {
			log.Printf("import %s: record failure: %v", input.JobID, ferr)
		}
		return err
	}

	if err := p.jobs.Complete(ctx, input.JobID, result); err != nil {
		if errors.Is(err, jobstore.ErrTerminal) {
			// A retry raced an earlier terminal write; the first one wins.
			log.Printf("import %s already terminal, keeping first result", input.JobID)
			return nil
		}
		return fmt.Errorf("record completion: %w", err)
	}

	if p.notifier != nil {
		// Best-effort only: webhook trouble never flips a completed job.
		if err := p.notifier.Notify(ctx, result); err != nil {
			log.Printf("import %s: webhook delivery failed: %v", input.JobID, err)
		}
	}
	return nil
}

func (p *Processor) execute(ctx context.Context, input *model.ImportInput) (model.JobResult, error) {
	uploads, err := p.acquireAssets(ctx, input.Pairs)
	if err != nil {
		return model.JobResult{}, fmt.Errorf("acquire assets: %w", err)
	}

	products, err := p.generateMetadata(ctx, input, uploads)
	if err != nil {
		return model.JobResult{}, fmt.Errorf("generate metadata: %w", err)
	}

	csvContent, err := csvgen.Generate(products)
	if err != nil {
		return model.JobResult{}, fmt.Errorf("assemble csv: %w", err)
	}

	result := model.JobResult{
		JobID:         input.JobID,
		Status:        model.StatusCompleted,
		CSVContent:    csvContent,
		TotalProducts: len(products),
	}
	for _, prod := range products {
		if prod.Status == model.ProductSuccess {
			result.Successful++
		} else {
			result.Failed++
		}
	}
	return result, nil
}

// uploadOutcome is stage 1's per-pair intermediate record. Errors collect
// sub-step failures instead of stopping the loop.
type uploadOutcome struct {
	imageURL    string
	downloadURL string
	errors      []string
}

// acquireAssets confirms pre-uploaded URLs or uploads the carried bytes for
// both halves of each pair. One asset's upload failure is recorded on its
// pair and never blocks the sibling asset or other pairs.
func (p *Processor) acquireAssets(ctx context.Context, pairs []model.FilePair) ([]uploadOutcome, error) {
	settled, err := pool.Map(ctx, pairs, uploadConcurrency, func(ctx context.Context, pair model.FilePair, _ int) (uploadOutcome, error) {
		var out uploadOutcome

		switch {
		case pair.ImageFile.URL != "":
			out.imageURL = pair.ImageFile.URL
		case len(pair.ImageFile.Data) > 0:
			res := p.blobs.Upload(ctx, pair.ImageFile.Data, pair.ImageFile.Name, blobstore.FolderImages)
			if res.Success {
				out.imageURL = res.URL
			} else {
				out.errors = append(out.errors, fmt.Sprintf("image upload failed: %s", res.Error))
			}
		default:
			out.errors = append(out.errors, "image asset has neither url nor data")
		}

		if pair.DownloadFile == nil {
			// Single-file unit: the image serves as the deliverable too.
			out.downloadURL = out.imageURL
			return out, nil
		}
		switch {
		case pair.DownloadFile.URL != "":
			out.downloadURL = pair.DownloadFile.URL
		case len(pair.DownloadFile.Data) > 0:
			res := p.blobs.Upload(ctx, pair.DownloadFile.Data, pair.DownloadFile.Name, blobstore.FolderDownloads)
			if res.Success {
				out.downloadURL = res.URL
			} else {
				out.errors = append(out.errors, fmt.Sprintf("download upload failed: %s", res.Error))
			}
		default:
			out.errors = append(out.errors, "download asset has neither url nor data")
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]uploadOutcome, len(settled))
	for i, s := range settled {
		if s.Err != nil {
			out[i] = uploadOutcome{errors: []string{s.Err.Error()}}
			continue
		}
		out[i] = s.Value
	}
	return out, nil
}

// generateMetadata produces exactly one record per pair, in input order.
// Pairs whose assets never made it to storage are degraded immediately;
// everything else goes through the captioner under the batch's ceiling.
func (p *Processor) generateMetadata(ctx context.Context, input *model.ImportInput, uploads []uploadOutcome) ([]model.ProductRecord, error) {
	limit := p.captionLimit(input.Policy, input.Pairs)
	settled, err := pool.Map(ctx, input.Pairs, limit, func(ctx context.Context, pair model.FilePair, i int) (model.ProductRecord, error) {
		upload := uploads[i]
		if len(upload.errors) > 0 || upload.imageURL == "" || upload.downloadURL == "" {
			reason := strings.Join(upload.errors, "; ")
			if reason == "" {
				reason = "missing asset URLs"
			}
			return failedRecord(pair.BaseName, input.CategoryID, upload, reason), nil
		}

		req := captioner.Request{
			ImageURL:         upload.imageURL,
			DownloadFileName: downloadName(pair),
			CategoryName:     input.CategoryName,
			DocumentExcerpt:  documentExcerpt(pair),
		}
		meta, err := p.captions.Caption(ctx, req)
		if err != nil {
			return failedRecord(pair.BaseName, input.CategoryID, upload, err.Error()), nil
		}

		return model.ProductRecord{
			Name:        meta.Name,
			Description: meta.Description,
			Price:       fixedPrice,
			CategoryID:  input.CategoryID,
			DownloadURL: upload.downloadURL,
			ImageURLs:   []string{upload.imageURL},
			Keywords:    meta.Keywords,
			Status:      model.ProductSuccess,
		}, nil
	})
	if err != nil {
		return nil, err
	}

	products := make([]model.ProductRecord, len(settled))
	for i, s := range settled {
		if s.Err != nil {
			products[i] = model.ProductRecord{
				Name:       "Unknown",
				Price:      fixedPrice,
				CategoryID: input.CategoryID,
				Status:     model.ProductFailed,
				Error:      s.Err.Error(),
			}
			continue
		}
		products[i] = s.Value
	}
	return products, nil
}

func (p *Processor) captionLimit(policy model.CategoryPolicy, pairs []model.FilePair) int {
	if policy.CaptionConcurrency > 0 {
		return policy.CaptionConcurrency
	}
	switch policy.Mode {
	case model.ModePaired:
		if p.limits.Paired > 0 {
			return p.limits.Paired
		}
	case model.ModeSingleFile:
		if allImages(pairs) {
			if p.limits.SingleImage > 0 {
				return p.limits.SingleImage
			}
		} else if p.limits.SingleOther > 0 {
			return p.limits.SingleOther
		}
	}
	return p.limits.Default
}

func allImages(pairs []model.FilePair) bool {
	for _, pair := range pairs {
		if !pairing.IsImageFile(pair.ImageFile.Name) {
			return false
		}
	}
	return true
}

func failedRecord(baseName, categoryID string, upload uploadOutcome, reason string) model.ProductRecord {
	rec := model.ProductRecord{
		Name:        baseName,
		Price:       fixedPrice,
		CategoryID:  categoryID,
		DownloadURL: upload.downloadURL,
		Status:      model.ProductFailed,
		Error:       reason,
	}
	if upload.imageURL != "" {
		rec.ImageURLs = []string{upload.imageURL}
	}
	return rec
}

func downloadName(pair model.FilePair) string {
	if pair.DownloadFile != nil {
		return pair.DownloadFile.Name
	}
	return pair.ImageFile.Name
}

// documentExcerpt pulls a short text snippet out of PDF deliverables when
// the raw bytes are still on hand. Best-effort: extraction problems are
// silently skipped.
func documentExcerpt(pair model.FilePair) string {
	if pair.DownloadFile == nil || len(pair.DownloadFile.Data) == 0 || !pdfutil.IsPDF(pair.DownloadFile.Name) {
		return ""
	}
	snippet, err := pdfutil.ExtractSnippet(pair.DownloadFile.Data, 500)
	if err != nil {
		return ""
	}
	return snippet
}
