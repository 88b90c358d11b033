// Package storage puts KYC images and recordings into Supabase object storage
// and hands back their public URLs.
package storage

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	storage_go "github.com/supabase-community/storage-go"
	"go.uber.org/zap"

	"github.com/example/kyc-voice/internal/retry"
)

const pngContentType = "image/png"

// objectStore is the subset of the storage-go client the gateway needs.
type objectStore interface {
	UploadFile(bucketID, relativePath string, data io.Reader, fileOptions ...storage_go.FileOptions) (storage_go.FileUploadResponse, error)
	GetPublicUrl(bucketID, filePath string, urlOptions ...storage_go.UrlOptions) storage_go.SignedUrlResponse
}

// Config selects the project endpoint and buckets.
type Config struct {
	// Endpoint is the storage REST root, e.g. https://xyz.supabase.co/storage/v1.
	Endpoint        string
	APIKey          string
	DocumentBucket  string
	RecordingBucket string
	// Timeout bounds a single upload attempt. Zero leaves only the caller's
	// context as the bound.
	Timeout time.Duration
}

// Error wraps every failed upload.
type Error struct {
	Bucket string
	Path   string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("upload %s/%s: %v", e.Bucket, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Gateway uploads objects. Safe for concurrent use.
type Gateway struct {
	store           objectStore
	documentBucket  string
	recordingBucket string
	timeout         time.Duration
	policy          retry.Policy
	logger          *zap.Logger
}

// NewGateway builds a gateway on the Supabase storage REST API.
func NewGateway(cfg Config, logger *zap.Logger) *Gateway {
	client := storage_go.NewClient(cfg.Endpoint, cfg.APIKey, map[string]string{
		"apikey": cfg.APIKey,
	})
	return newGateway(client, cfg, logger)
}

func newGateway(store objectStore, cfg Config, logger *zap.Logger) *Gateway {
	if cfg.DocumentBucket == "" {
		cfg.DocumentBucket = "kyc_document"
	}
	if cfg.RecordingBucket == "" {
		cfg.RecordingBucket = "kyc_recording"
	}
	return &Gateway{
		store:           store,
		documentBucket:  cfg.DocumentBucket,
		recordingBucket: cfg.RecordingBucket,
		timeout:         cfg.Timeout,
		policy:          retry.DefaultPolicy,
		logger:          logger.Named("storage"),
	}
}

// UploadImage stores a step capture as {16 hex}_{docType}.png in the
// document bucket.
func (g *Gateway) UploadImage(ctx context.Context, sessionID, docType string, data []byte) (string, error) {
	prefix, err := randomHex(8)
	if err != nil {
		return "", &Error{Bucket: g.documentBucket, Err: err}
	}
	objectPath := fmt.Sprintf("%s_%s.png", prefix, docType)
	return g.upload(ctx, sessionID, g.documentBucket, objectPath, pngContentType, data)
}

// UploadDocument stores a client-supplied file under kyc_document/.
func (g *Gateway) UploadDocument(ctx context.Context, sessionID, filename string, data []byte) (string, error) {
	objectPath := "kyc_document/" + uuid.NewString() + "." + Extension(filename)
	return g.upload(ctx, sessionID, g.documentBucket, objectPath, "", data)
}

// UploadRecording stores a session recording under kyc_recording/.
func (g *Gateway) UploadRecording(ctx context.Context, sessionID, filename string, data []byte) (string, error) {
	objectPath := "kyc_recording/" + uuid.NewString() + "." + Extension(filename)
	return g.upload(ctx, sessionID, g.recordingBucket, objectPath, "", data)
}

func (g *Gateway) upload(ctx context.Context, sessionID, bucket, objectPath, contentType string, data []byte) (string, error) {
	var opts []storage_go.FileOptions
	if contentType != "" {
		opts = append(opts, storage_go.FileOptions{ContentType: &contentType})
	}

	err := retry.Do(ctx, g.policy, g.logger, "storage.upload", sessionID, func() error {
		return g.uploadOnce(ctx, bucket, objectPath, data, opts)
	})
	if err != nil {
		return "", &Error{Bucket: bucket, Path: objectPath, Err: err}
	}

	publicURL := g.store.GetPublicUrl(bucket, objectPath).SignedURL
	logger := g.logger
	if sessionID != "" {
		logger = logger.With(zap.String("session_id", sessionID))
	}
	logger.Info("object uploaded",
		zap.String("bucket", bucket),
		zap.String("path", objectPath),
		zap.Int("size", len(data)))
	return publicURL, nil
}

// uploadOnce runs one UploadFile call and gives up when ctx or the attempt
// timeout expires. The storage client takes no context, so an abandoned call
// finishes in the background and its result is dropped.
func (g *Gateway) uploadOnce(ctx context.Context, bucket, objectPath string, data []byte, opts []storage_go.FileOptions) error {
	attemptCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		_, err := g.store.UploadFile(bucket, objectPath, bytes.NewReader(data), opts...)
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-attemptCtx.Done():
		return attemptCtx.Err()
	}
}

// Extension returns the text after the last dot of filename, or "bin" when
// there is none.
func Extension(filename string) string {
	ext := strings.TrimPrefix(path.Ext(filename), ".")
	if ext == "" {
		return "bin"
	}
	return strings.ToLower(ext)
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate object name: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
