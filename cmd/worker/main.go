// Package main runs the BulkBridge import pipeline worker.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/danielgmorais/bulkbridge/internal/blobstore"
	"github.com/danielgmorais/bulkbridge/internal/captioner"
	"github.com/danielgmorais/bulkbridge/internal/config"
	"github.com/danielgmorais/bulkbridge/internal/database"
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

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	defer pool.Close()
	if err := database.EnsureSchema(ctx, pool); err != nil {
		log.Fatalf("ensure schema: %v", err)
	}
	store := jobstore.NewPostgres(pool)

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

	server := asynq.NewServer(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
	})

	go func() {
		<-ctx.Done()
		server.Shutdown()
	}()

	if err := server.Run(processor.Handler()); err != nil {
		log.Printf("worker stopped: %v", err)
		os.Exit(1)
	}
}
