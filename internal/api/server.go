// Package api exposes the submission and status boundary: accept an import
// batch, hand it to the pipeline, and let clients poll the job until it
// turns terminal.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/danielgmorais/bulkbridge/internal/config"
	"github.com/danielgmorais/bulkbridge/internal/jobstore"
	"github.com/danielgmorais/bulkbridge/internal/model"
	"github.com/danielgmorais/bulkbridge/internal/notify"
	"github.com/danielgmorais/bulkbridge/internal/pairing"
	"github.com/danielgmorais/bulkbridge/internal/signing"
)

// Server hosts the HTTP boundary for BulkBridge.
type Server struct {
	cfg        *config.Config
	jobs       jobstore.Store
	dispatcher Dispatcher
	signer     *signing.Signer
	server     *http.Server
}

// New constructs a Server. The webhook signer is optional and only used to
// authenticate inbound result postings.
func New(cfg *config.Config, jobs jobstore.Store, dispatcher Dispatcher) *Server {
	s := &Server{
		cfg:        cfg,
		jobs:       jobs,
		dispatcher: dispatcher,
	}
	if cfg.WebhookSecret != "" {
		s.signer = signing.NewSigner([]byte(cfg.WebhookSecret))
	}
	return s
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.server = &http.Server{
		Addr:    s.cfg.Address,
		Handler: s.Handler(),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()
	log.Printf("api listening on %s", s.cfg.Address)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Handler builds the route table; exported for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/imports", s.handleImports)
	mux.HandleFunc("/imports/", s.handleImportRoute)
	mux.HandleFunc("/webhooks/import", s.handleWebhook)
	return corsMiddleware(loggingMiddleware(mux))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleImports(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleSubmit(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleImportRoute(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/imports/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	rec, err := s.jobs.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, jobstore.ErrNotFound) {
			respondJSON(w, http.StatusNotFound, map[string]string{"error": "Job not found"})
			return
		}
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to get job status"})
		return
	}
	result := rec.Result
	result.JobID = rec.JobID
	result.Status = rec.Status
	respondJSON(w, http.StatusOK, result)
}

// handleSubmit accepts a multipart batch: categoryId, categoryName, mode,
// an optional jobId, and either raw file parts or a pairs JSON field of
// pre-uploaded tuples. Pairing violations are rejected synchronously; no
// job record is created for a bad batch.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	maxBody := s.cfg.MaxFileSize*int64(s.cfg.MaxUnits)*2 + 1<<20
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)

	mr, err := r.MultipartReader()
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "expecting multipart form"})
		return
	}

	sub, err := s.readSubmission(mr)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if sub.categoryID == "" || sub.categoryName == "" {
		respondJSON(w, http.StatusBadRequest, map[string]string{
			"error": "Missing required fields: categoryId, categoryName, or files",
		})
		return
	}

	policy := model.CategoryPolicy{
		Mode:     sub.mode,
		MaxUnits: s.cfg.MaxUnits,
	}

	var (
		pairs      []model.FilePair
		pairErrors []string
	)
	switch {
	case len(sub.pairs) > 0:
		pairs = sub.pairs
		for i := range pairs {
			if pairs[i].ID == "" {
				pairs[i].ID = uuid.NewString()
			}
		}
		if err := pairing.Validate(pairs, nil, policy); err != nil {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
	case len(sub.files) > 0:
		res := pairing.Pair(sub.files, policy)
		pairs = res.Pairs
		pairErrors = res.Errors
		if err := pairing.Validate(res.Pairs, res.Unmatched, policy); err != nil {
			respondJSON(w, http.StatusBadRequest, map[string]any{
				"error":   err.Error(),
				"details": pairErrors,
			})
			return
		}
	default:
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "no files or pairs provided"})
		return
	}

	jobID := sub.jobID
	if jobID == "" {
		jobID = uuid.NewString()
	}
	input := &model.ImportInput{
		JobID:        jobID,
		CategoryID:   sub.categoryID,
		CategoryName: sub.categoryName,
		Policy:       policy,
		Pairs:        pairs,
	}

	if err := s.jobs.Create(ctx, jobID); err != nil {
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create job"})
		return
	}
	if err := s.jobs.StashInput(ctx, jobID, input); err != nil {
		_ = s.jobs.Fail(ctx, jobID, "failed to stash input")
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to store job input"})
		return
	}
	if err := s.dispatcher.Dispatch(ctx, input); err != nil {
		log.Printf("dispatch %s failed: %v", jobID, err)
		_ = s.jobs.Fail(ctx, jobID, "failed to queue job")
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to queue job"})
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]any{
		"success": true,
		"jobId":   jobID,
		"message": "Import job started",
	})
}

// handleWebhook stores a terminal result posted back by an external
// pipeline run. A second terminal posting for the same job is rejected.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 10<<20))
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read body"})
		return
	}
	if s.signer != nil && !s.signer.Validate(body, r.Header.Get(notify.SignatureHeader)) {
		respondJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid signature"})
		return
	}
	var result model.JobResult
	if err := json.Unmarshal(body, &result); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if result.JobID == "" {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Job ID is required"})
		return
	}

	switch result.Status {
	case model.StatusFailed:
		err = s.jobs.Fail(r.Context(), result.JobID, result.Error)
	default:
		err = s.jobs.Complete(r.Context(), result.JobID, result)
	}
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, map[string]bool{"success": true})
	case errors.Is(err, jobstore.ErrNotFound):
		respondJSON(w, http.StatusNotFound, map[string]string{"error": "Job not found"})
	case errors.Is(err, jobstore.ErrTerminal):
		respondJSON(w, http.StatusConflict, map[string]string{"error": "job already terminal"})
	default:
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to process webhook"})
	}
}

// submission is the decoded multipart form.
type submission struct {
	jobID        string
	categoryID   string
	categoryName string
	mode         model.PairingMode
	files        []model.RawFile
	pairs        []model.FilePair
}

func (s *Server) readSubmission(mr *multipart.Reader) (*submission, error) {
	sub := &submission{mode: model.ModePaired}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read form: %w", err)
		}
		name := part.FormName()
		if part.FileName() == "" {
			value, err := readField(part, 1<<20)
			part.Close()
			if err != nil {
				return nil, err
			}
			switch name {
			case "jobId":
				sub.jobID = value
			case "categoryId":
				sub.categoryID = value
			case "categoryName":
				sub.categoryName = value
			case "mode":
				switch model.PairingMode(value) {
				case model.ModePaired, model.ModeSingleFile:
					sub.mode = model.PairingMode(value)
				default:
					return nil, fmt.Errorf("unknown pairing mode %q", value)
				}
			case "pairs":
				if err := json.Unmarshal([]byte(value), &sub.pairs); err != nil {
					return nil, fmt.Errorf("invalid pairs JSON: %w", err)
				}
			}
			continue
		}

		data, err := io.ReadAll(io.LimitReader(part, s.cfg.MaxFileSize+1))
		part.Close()
		if err != nil {
			return nil, fmt.Errorf("read file %q: %w", part.FileName(), err)
		}
		if int64(len(data)) > s.cfg.MaxFileSize {
			return nil, fmt.Errorf("file %q exceeds limit (%d bytes)", part.FileName(), s.cfg.MaxFileSize)
		}
		if len(data) == 0 {
			return nil, fmt.Errorf("file %q is empty", part.FileName())
		}
		sub.files = append(sub.files, model.RawFile{
			Name:        part.FileName(),
			Size:        int64(len(data)),
			ContentType: part.Header.Get("Content-Type"),
			Data:        data,
		})
	}
	return sub, nil
}

func readField(r io.Reader, limit int64) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit))
	if err != nil {
		return "", fmt.Errorf("read field: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s (%s)", r.Method, r.URL.Path, time.Since(start))
	})
}
