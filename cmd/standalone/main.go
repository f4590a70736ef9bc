// Package main runs BulkBridge as a single process: the HTTP API, an
// in-memory job store, and in-process pipeline dispatch. No Redis or
// Postgres required; handy for development and small deployments.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/danielgmorais/bulkbridge/internal/api"
	"github.com/danielgmorais/bulkbridge/internal/blobstore"
	"github.com/danielgmorais/bulkbridge/internal/captioner"
	"github.com/danielgmorais/bulkbridge/internal/config"
	"github.com/danielgmorais/bulkbridge/internal/jobstore"
	"github.com/danielgmorais/bulkbridge/internal/notify"
	"github.com/danielgmorais/bulkbridge/internal/pipeline"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	store := jobstore.NewMemory()

	blobs, err := blobstore.New(cfg)
	if err != nil {
		log.Fatalf("init blob store: %v", err)
	}
	if err := blobs.EnsureBucket(ctx); err != nil {
		log.Fatalf("ensure bucket: %v", err)
	}

	captions := captioner.New(cfg.CaptionerBaseURL, cfg.CaptionerAPIKey, cfg.CaptionerModel, cfg.CaptionerTimeout)
	webhook := notify.NewWebhook(cfg.WebhookURL, cfg.WebhookSecret)

	processor := pipeline.New(store, blobs, captions, webhook, pipeline.Limits{
		Paired:      cfg.CaptionPaired,
		SingleImage: cfg.CaptionSingleImage,
		SingleOther: cfg.CaptionSingleOther,
		Default:     cfg.CaptionDefault,
	})

	srv := api.New(cfg, store, api.NewLocalDispatcher(processor))
	log.Printf("BulkBridge standalone listening on %s", cfg.Address)
	if err := srv.Run(ctx); err != nil {
		log.Printf("server stopped: %v", err)
		os.Exit(1)
	}
}
