// Package blobstore wraps MinIO/S3 interactions for product assets. Upload
// failures are reported as data so callers can record them against the
// affected item instead of aborting a batch.
package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/danielgmorais/bulkbridge/internal/config"
)

const (
	// FolderImages holds preview assets, FolderDownloads the deliverables.
	FolderImages    = "images"
	FolderDownloads = "downloads"
)

// UploadResult mirrors the blob store collaborator contract: failure is a
// value, not an error return.
type UploadResult struct {
	Success bool   `json:"success"`
	URL     string `json:"url,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Store uploads assets into a single bucket under folder prefixes and hands
// out public CDN-style URLs.
type Store struct {
	client        *minio.Client
	bucket        string
	region        string
	publicBaseURL string
}

// New creates a MinIO client from the Config.
func New(cfg *config.Config) (*Store, error) {
	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	return &Store{
		client:        client,
		bucket:        cfg.AssetBucket,
		region:        cfg.S3Region,
		publicBaseURL: strings.TrimSuffix(cfg.PublicBaseURL, "/"),
	}, nil
}

// EnsureBucket makes sure the asset bucket exists before use.
func (s *Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return fmt.Errorf("make bucket %s: %w", s.bucket, err)
		}
	}
	return nil
}

// Upload stores the bytes under folder/fileName and returns the public URL.
func (s *Store) Upload(ctx context.Context, data []byte, fileName, folder string) UploadResult {
	key := path.Join(folder, SafeFileName(fileName))
	opts := minio.PutObjectOptions{ContentType: ContentTypeFor(fileName)}
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), opts)
	if err != nil {
		return UploadResult{Error: fmt.Sprintf("upload %s: %v", key, err)}
	}
	publicURL, err := s.objectURL(ctx, key)
	if err != nil {
		return UploadResult{Error: fmt.Sprintf("resolve url for %s: %v", key, err)}
	}
	return UploadResult{Success: true, URL: publicURL}
}

func (s *Store) objectURL(ctx context.Context, key string) (string, error) {
	if s.publicBaseURL != "" {
		return s.publicBaseURL + "/" + key, nil
	}
	// No CDN base configured; fall back to a long-lived presigned URL.
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, 7*24*time.Hour, url.Values{})
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

var unsafeFileChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// SafeFileName replaces characters that are awkward in object keys and URLs.
func SafeFileName(name string) string {
	return unsafeFileChars.ReplaceAllString(name, "_")
}

var contentTypes = map[string]string{
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"webp": "image/webp",
	"psd":  "image/vnd.adobe.photoshop",
	"zip":  "application/zip",
	"rar":  "application/x-rar-compressed",
	"pdf":  "application/pdf",
	"mp4":  "video/mp4",
	"mov":  "video/quicktime",
	"webm": "video/webm",
}

// ContentTypeFor maps a filename extension to a content type.
func ContentTypeFor(fileName string) string {
	idx := strings.LastIndex(fileName, ".")
	if idx == -1 {
		return "application/octet-stream"
	}
	if ct, ok := contentTypes[strings.ToLower(fileName[idx+1:])]; ok {
		return ct
	}
	return "application/octet-stream"
}
