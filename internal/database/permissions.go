package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"edbox/internal/util"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type CreateUploadPermissionParams struct {
	UserID     uuid.UUID
	SchoolID   uuid.UUID
	StorageKey string
	FileName   string
	MimeType   string
	SizeBytes  int64
	ExpiresAt  time.Time
}

func (db *Database) CreateUploadPermission(ctx context.Context, params CreateUploadPermissionParams) (UploadPermission, error) {
	permission := UploadPermission{
		ID:         uuid.New(),
		UserID:     params.UserID,
		SchoolID:   params.SchoolID,
		StorageKey: params.StorageKey,
		FileName:   params.FileName,
		MimeType:   params.MimeType,
		SizeBytes:  params.SizeBytes,
		ExpiresAt:  params.ExpiresAt,
		UsedAt:     util.None[time.Time](),
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}

	if _, err := db.Pool.Exec(ctx,
		`INSERT INTO tbl_upload_permission (id, user_id, school_id, storage_key, file_name, mime_type, size_bytes, expires_at, used_at, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		permission.ID, permission.UserID, permission.SchoolID, permission.StorageKey, permission.FileName, permission.MimeType,
		permission.SizeBytes, permission.ExpiresAt, permission.UsedAt, permission.CreatedAt, permission.UpdatedAt); err != nil {
		return permission, fmt.Errorf("database: failed to insert upload permission (user_id=%s): %w", permission.UserID, err)
	}
	return permission, nil
}

func (db *Database) GetUploadPermissionByID(ctx context.Context, id uuid.UUID) (UploadPermission, error) {
	var permission UploadPermission

	err := db.Pool.QueryRow(ctx,
		`SELECT id, user_id, school_id, storage_key, file_name, mime_type, size_bytes, expires_at, used_at, created_at, updated_at
		 FROM tbl_upload_permission WHERE id = $1`, id).
		Scan(&permission.ID, &permission.UserID, &permission.SchoolID, &permission.StorageKey, &permission.FileName,
			&permission.MimeType, &permission.SizeBytes, &permission.ExpiresAt, &permission.UsedAt, &permission.CreatedAt, &permission.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return permission, ErrUploadPermissionNotFound
		}
		return permission, fmt.Errorf("database: failed to scan upload permission: %w", err)
	}
	return permission, nil
}

// DeleteExpiredUploadPermissions removes permissions that expired
// without ever being consumed.
func (db *Database) DeleteExpiredUploadPermissions(ctx context.Context) (int64, error) {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM tbl_upload_permission WHERE used_at IS NULL AND expires_at < NOW()`)
	if err != nil {
		return 0, fmt.Errorf("database: failed to delete expired upload permissions: %w", err)
	}
	return tag.RowsAffected(), nil
}
