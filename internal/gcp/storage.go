package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

// GetEnv is a helper to read an environment variable or return a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// IsPreconditionFailed reports whether err is a GCS 412 response.
func IsPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}

// Retry runs fn up to attempts times, doubling the wait after each failure.
// It stops early when ctx is done.
func Retry(ctx context.Context, logger *slog.Logger, attempts int, backoff time.Duration, name string, fn func(context.Context) error) error {
	var lastErr error
	for i := 0; i < attempts; i++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if i == attempts-1 {
			break
		}
		logger.Warn(
			"Operation failed, will retry.",
			"operation", name,
			"attempt", i+1,
			"maxRetries", attempts,
			"backoff", backoff.String(),
			"error", err,
		)
		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			logger.Error("Context cancelled during backoff. Aborting retries.", "operation", name, "error", ctx.Err())
			return ctx.Err()
		}
	}
	logger.Error("Operation failed after all retries.", "operation", name, "error", lastErr)
	return fmt.Errorf("%s failed after all retries: %w", name, lastErr)
}

// Bucket moves files between the local disk and one GCS bucket.
type Bucket struct {
	handle       *storage.BucketHandle
	Name         string
	MaxRetries   int
	Backoff      time.Duration
	WriteTimeout time.Duration
	logger       *slog.Logger
}

// NewBucket wraps the named bucket of client.
func NewBucket(client *storage.Client, name string, logger *slog.Logger) *Bucket {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bucket{
		handle:       client.Bucket(name),
		Name:         name,
		MaxRetries:   4,
		Backoff:      time.Second,
		WriteTimeout: 50 * time.Second,
		logger:       logger.With("gcsBucket", name),
	}
}

// Upload copies localPath to object, retrying with exponential backoff.
// An existing object is overwritten.
func (b *Bucket) Upload(ctx context.Context, localPath, object string) error {
	return Retry(ctx, b.logger, b.MaxRetries, b.Backoff, "upload "+object, func(ctx context.Context) error {
		return b.write(ctx, localPath, b.handle.Object(object))
	})
}

// UploadIfAbsent copies localPath to object only if object does not exist.
// It returns false without error when the object already exists.
func (b *Bucket) UploadIfAbsent(ctx context.Context, localPath, object string) (bool, error) {
	err := b.write(ctx, localPath, b.handle.Object(object).If(storage.Conditions{DoesNotExist: true}))
	if IsPreconditionFailed(err) {
		b.logger.Info("Object already exists.", "gcsObject", object)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (b *Bucket) write(ctx context.Context, localPath string, obj *storage.ObjectHandle) error {
	localFileReader, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("could not open local file %s: %w", localPath, err)
	}
	defer localFileReader.Close()

	writeCtx, cancel := context.WithTimeout(ctx, b.WriteTimeout)
	defer cancel()

	gcsWriter := obj.NewWriter(writeCtx)
	gcsWriter.ContentType = "application/pdf"
	if _, err := io.Copy(gcsWriter, localFileReader); err != nil {
		_ = gcsWriter.Close()
		return fmt.Errorf("io.Copy to GCS failed: %w", err)
	}
	if err := gcsWriter.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer (finalize upload): %w", err)
	}
	return nil
}

// Download streams object into destPath.
func (b *Bucket) Download(ctx context.Context, object, destPath string) error {
	gcsReader, err := b.handle.Object(object).NewReader(ctx)
	if err != nil {
		return fmt.Errorf("failed to get GCS object reader for gs://%s/%s: %w", b.Name, object, err)
	}
	defer gcsReader.Close()
	localFile, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create temp file at %s: %w", destPath, err)
	}
	defer localFile.Close()
	if _, err := io.Copy(localFile, gcsReader); err != nil {
		return fmt.Errorf("failed to copy GCS object to local file: %w", err)
	}
	return nil
}

// ChildPrefixes lists the immediate "directories" below prefix.
func (b *Bucket) ChildPrefixes(ctx context.Context, prefix string) ([]string, error) {
	it := b.handle.Objects(ctx, &storage.Query{Prefix: prefix, Delimiter: "/"})
	var prefixes []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list gs://%s/%s: %w", b.Name, prefix, err)
		}
		if attrs.Prefix != "" {
			prefixes = append(prefixes, attrs.Prefix)
		}
	}
	return prefixes, nil
}

// NextIndex returns one past the highest numeric child of prefix, or 0.
func NextIndex(prefix string, children []string) int {
	next := 0
	for _, c := range children {
		name := strings.TrimSuffix(strings.TrimPrefix(c, prefix), "/")
		n, err := strconv.Atoi(name)
		if err != nil || n < 0 {
			continue
		}
		if n+1 > next {
			next = n + 1
		}
	}
	return next
}

// UploadNumbered stores localPath as {prefix}{n}/{name} for the lowest n not
// below the highest existing numbered child. Concurrent callers never share
// an n because each create is conditional on the object being absent.
func (b *Bucket) UploadNumbered(ctx context.Context, localPath, prefix, name string, maxAttempts int) (string, error) {
	children, err := b.ChildPrefixes(ctx, prefix)
	if err != nil {
		return "", err
	}
	n := NextIndex(prefix, children)
	for attempt := 0; attempt < maxAttempts; attempt++ {
		object := fmt.Sprintf("%s%d/%s", prefix, n, name)
		created, err := b.UploadIfAbsent(ctx, localPath, object)
		if err != nil {
			return "", err
		}
		if created {
			return object, nil
		}
		n++
	}
	return "", fmt.Errorf("no free slot under gs://%s/%s after %d attempts", b.Name, prefix, maxAttempts)
}
