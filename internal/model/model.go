// Package model contains simple struct definitions shared across packages.
package model

import "time"

// JobStatus describes the import job lifecycle. A job is created as
// StatusProcessing and moves exactly once to StatusCompleted or StatusFailed.
type JobStatus string

const (
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// PairingMode selects how raw files are grouped into product units.
type PairingMode string

const (
	// ModePaired requires a distinct preview image and a deliverable per unit.
	ModePaired PairingMode = "paired"
	// ModeSingleFile treats every media file as its own unit; the image
	// serves as both preview and deliverable.
	ModeSingleFile PairingMode = "single-file"
)

// CategoryPolicy is supplied by the caller and consumed by the pairing
// engine, validation, and the pipeline's metadata stage.
type CategoryPolicy struct {
	Mode     PairingMode `json:"mode"`
	MaxUnits int         `json:"maxUnits"`
	// CaptionConcurrency overrides the per-mode default ceiling for
	// concurrent captioner calls when > 0.
	CaptionConcurrency int `json:"captionConcurrency,omitempty"`
}

// RawFile is an opaque uploaded file as received at the submission boundary.
// Data marshals to base64 through encoding/json, which is how asset bytes
// travel inside a stashed job input.
type RawFile struct {
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	ContentType string `json:"type,omitempty"`
	Data        []byte `json:"data,omitempty"`
}

// AssetRef is one half of a pair. Either URL is set (already-uploaded mode)
// or Data carries the raw bytes to be uploaded by the pipeline.
type AssetRef struct {
	Name        string `json:"name"`
	URL         string `json:"url,omitempty"`
	Size        int64  `json:"size,omitempty"`
	ContentType string `json:"type,omitempty"`
	Data        []byte `json:"data,omitempty"`
}

// FilePair is one logical product unit. DownloadFile is nil for single-file
// categories, where ImageFile serves both roles.
type FilePair struct {
	ID           string    `json:"id"`
	BaseName     string    `json:"baseName"`
	ImageFile    AssetRef  `json:"imageFile"`
	DownloadFile *AssetRef `json:"downloadFile,omitempty"`
}

// ProductRecord is the metadata stage's per-unit output. Every input pair
// produces exactly one record; failures degrade the record instead of
// dropping it.
type ProductRecord struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Price       string   `json:"price"`
	CategoryID  string   `json:"categoryId"`
	DownloadURL string   `json:"downloadUrl"`
	ImageURLs   []string `json:"imageUrl"`
	Keywords    []string `json:"keywords"`
	IsFeatured  bool     `json:"isFeatured"`
	IsArchived  bool     `json:"isArchived"`
	Status      string   `json:"status"`
	Error       string   `json:"error,omitempty"`
}

const (
	ProductSuccess = "success"
	ProductFailed  = "failed"
)

// JobResult is the terminal payload stored for a completed or failed job
// and mirrored to the notification webhook.
type JobResult struct {
	JobID         string    `json:"jobId,omitempty"`
	Status        JobStatus `json:"status"`
	CSVContent    string    `json:"csvContent,omitempty"`
	Successful    int       `json:"successful,omitempty"`
	Failed        int       `json:"failed,omitempty"`
	TotalProducts int       `json:"totalProducts,omitempty"`
	Error         string    `json:"error,omitempty"`
}

// JobRecord is what the job store tracks per job.
type JobRecord struct {
	JobID     string    `json:"jobId"`
	Status    JobStatus `json:"status"`
	Result    JobResult `json:"result"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ImportInput is the full job payload. It is stashed in the job store and
// fetched by the pipeline worker using only the job ID, because the queue
// transport caps task payloads well below a large batch of asset bytes.
type ImportInput struct {
	JobID        string         `json:"jobId"`
	CategoryID   string         `json:"categoryId"`
	CategoryName string         `json:"categoryName"`
	Policy       CategoryPolicy `json:"policy"`
	Pairs        []FilePair     `json:"pairs"`
}
