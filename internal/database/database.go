package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"edbox/internal/util"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Database struct {
	Pool *pgxpool.Pool
}

func NewDatabase() Database {
	return Database{
		Pool: nil,
	}
}

func (db *Database) Connect(ctx context.Context, connString string) error {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return fmt.Errorf("database: unable to parse configuration: %w", err)
	}

	db.Pool, err = pgxpool.New(ctx, config.ConnString())
	if err != nil {
		return fmt.Errorf("database: unable to create pool: %w", err)
	}

	return nil
}

func (db *Database) Close() {
	db.Pool.Close()
}

func (db *Database) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

type School struct {
	ID        uuid.UUID
	Name      string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type User struct {
	ID        uuid.UUID
	SchoolID  uuid.UUID
	Name      string
	Role      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Session struct {
	ID        uuid.UUID
	Token     string
	UserID    uuid.UUID
	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

type CustomGroup struct {
	ID        uuid.UUID
	SchoolID  uuid.UUID
	Name      string
	CreatedBy uuid.UUID
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type CustomGroupMember struct {
	ID        uuid.UUID
	GroupID   uuid.UUID
	UserID    uuid.UUID
	IsAdmin   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Message struct {
	ID         uuid.UUID
	GroupKey   string
	SchoolID   uuid.UUID
	SenderID   uuid.UUID
	SenderRole string
	Text       string
	SortKey    int64
	CreatedAt  time.Time
}

type MessageAttachment struct {
	ID         uuid.UUID
	MessageID  uuid.UUID
	StorageKey string
	FileName   string
	MimeType   string
	SizeBytes  int64
	CreatedAt  time.Time
}

type UploadPermission struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	SchoolID   uuid.UUID
	StorageKey string
	FileName   string
	MimeType   string
	SizeBytes  int64
	ExpiresAt  time.Time
	UsedAt     util.Optional[time.Time]
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

var (
	ErrSchoolNotFound             = errors.New("school not found")
	ErrUserNotFound               = errors.New("user not found")
	ErrClassNotFound              = errors.New("class not found")
	ErrSectionNotFound            = errors.New("section not found")
	ErrSubjectNotFound            = errors.New("subject not found")
	ErrEnrollmentNotFound         = errors.New("enrollment not found")
	ErrSessionNotFound            = errors.New("session not found")
	ErrCustomGroupNotFound        = errors.New("custom group not found")
	ErrMessageNotFound            = errors.New("message not found")
	ErrMessageAttachmentNotFound  = errors.New("message attachment not found")
	ErrCustomGroupMemberNotFound  = errors.New("custom group member not found")
	ErrUploadPermissionNotFound   = errors.New("upload permission not found")
	ErrUploadPermissionExpired    = errors.New("upload permission expired")
	ErrUploadPermissionUsed       = errors.New("upload permission already used")
	ErrUploadPermissionWrongOwner = errors.New("upload permission owned by another user")
)
