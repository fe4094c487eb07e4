package file

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"edbox/internal/config"

	"github.com/google/uuid"
)

// Storage abstracts where attachment bytes live. Keys are opaque to
// callers; only this package generates them.
type Storage interface {
	// Store saves content under the given key, overwriting any
	// previous content there.
	Store(ctx context.Context, key string, content io.Reader, mimeType string) error

	// Open streams previously stored content.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes stored content. Missing keys are not an error.
	Delete(ctx context.Context, key string) error

	// URL returns a location a client can fetch the content from. For
	// S3 this is a presigned URL, for local storage a server path.
	URL(ctx context.Context, key string, expiration time.Duration) (string, error)
}

// NewStorage builds the backend selected by configuration.
func NewStorage(cfg config.StorageConfig) (Storage, error) {
	switch cfg.Type {
	case "local":
		return NewLocalStorage(cfg.LocalPath)
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("file: s3 storage requires a bucket")
		}
		return NewS3Storage(cfg.S3Bucket, cfg.S3Region)
	default:
		return nil, fmt.Errorf("file: unknown storage type %q", cfg.Type)
	}
}

// storageKey shards objects by owner and month so that no directory or
// prefix grows without bound: owner_id/year/month/uuid_filename.
func storageKey(ownerID uuid.UUID, fileName string) string {
	now := time.Now()
	return fmt.Sprintf("%s/%d/%02d/%s_%s",
		ownerID.String(),
		now.Year(),
		now.Month(),
		uuid.New().String(),
		sanitizeFileName(fileName),
	)
}

func sanitizeFileName(fileName string) string {
	name := filepath.Base(fileName)
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
	if name == "" || name == "." {
		name = "file"
	}
	return name
}
