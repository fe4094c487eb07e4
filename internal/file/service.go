package file

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"edbox/internal/database"
	"edbox/internal/org"

	"github.com/google/uuid"
)

var (
	ErrPermissionNotFound   = errors.New("file: upload permission not found")
	ErrPermissionExpired    = errors.New("file: upload permission expired")
	ErrPermissionUsed       = errors.New("file: upload permission already used")
	ErrPermissionWrongOwner = errors.New("file: upload permission belongs to another user")
	ErrContentNotFound      = errors.New("file: content not found")
	ErrContentTooLarge      = errors.New("file: content exceeds size limit")
)

// MaxUploadSize caps a single attachment at 100 MiB.
const MaxUploadSize = 100 << 20

// Service hands out upload permissions and moves attachment bytes in
// and out of the configured backend. A permission is issued before the
// bytes arrive and stays pending until a message append consumes it.
type Service struct {
	logger  *slog.Logger
	db      *database.Database
	storage Storage
	ttl     time.Duration
}

func NewService(logger *slog.Logger, db *database.Database, storage Storage, ttl time.Duration) *Service {
	return &Service{
		logger:  logger,
		db:      db,
		storage: storage,
		ttl:     ttl,
	}
}

type IssueParams struct {
	FileName  string `json:"file_name" validate:"required,max=255"`
	MimeType  string `json:"mime_type" validate:"required,max=127"`
	SizeBytes int64  `json:"size_bytes" validate:"required,gt=0"`
}

// Grant is the issued permission as returned to the client.
type Grant struct {
	ID        uuid.UUID `json:"id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Issue reserves an upload slot for the user. The storage key is fixed
// here so the later upload cannot place content anywhere else.
func (s *Service) Issue(ctx context.Context, owner org.User, params IssueParams) (Grant, error) {
	if params.SizeBytes > MaxUploadSize {
		return Grant{}, ErrContentTooLarge
	}

	permission, err := s.db.CreateUploadPermission(ctx, database.CreateUploadPermissionParams{
		UserID:     owner.ID,
		SchoolID:   owner.SchoolID,
		StorageKey: storageKey(owner.ID, params.FileName),
		FileName:   params.FileName,
		MimeType:   params.MimeType,
		SizeBytes:  params.SizeBytes,
		ExpiresAt:  time.Now().UTC().Add(s.ttl),
	})
	if err != nil {
		return Grant{}, err
	}

	s.logger.DebugContext(ctx, "upload permission issued",
		slog.String("permission_id", permission.ID.String()),
		slog.String("user_id", owner.ID.String()),
	)

	return Grant{ID: permission.ID, ExpiresAt: permission.ExpiresAt}, nil
}

// Upload stores the content for a previously issued permission. It
// does not mark the permission used; that happens when a message
// referencing it is appended.
func (s *Service) Upload(ctx context.Context, owner org.User, permissionID uuid.UUID, content io.Reader) error {
	permission, err := s.db.GetUploadPermissionByID(ctx, permissionID)
	if err != nil {
		if errors.Is(err, database.ErrUploadPermissionNotFound) {
			return ErrPermissionNotFound
		}
		return err
	}

	if permission.UserID != owner.ID {
		return ErrPermissionWrongOwner
	}
	if permission.UsedAt.IsSet {
		return ErrPermissionUsed
	}
	if time.Now().UTC().After(permission.ExpiresAt) {
		return ErrPermissionExpired
	}

	limited := io.LimitReader(content, permission.SizeBytes+1)
	if err := s.storage.Store(ctx, permission.StorageKey, limited, permission.MimeType); err != nil {
		return err
	}

	return nil
}

// Open streams stored attachment content.
func (s *Service) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	return s.storage.Open(ctx, key)
}

// DownloadURL returns a short-lived location for fetching an
// attachment directly.
func (s *Service) DownloadURL(ctx context.Context, key string) (string, error) {
	return s.storage.URL(ctx, key, 15*time.Minute)
}
