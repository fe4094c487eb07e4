package message

import (
	"context"
	"errors"
	"fmt"
	"time"

	"edbox/internal/database"
	"edbox/internal/org"
	"edbox/internal/util"

	"github.com/google/uuid"
)

// PostgresStore persists messages through the shared database layer. All
// calls are bounded by the configured timeout so a slow store surfaces
// as a retryable error instead of hanging a socket handler.
type PostgresStore struct {
	db      *database.Database
	timeout time.Duration
}

func NewPostgresStore(db *database.Database, timeout time.Duration) *PostgresStore {
	return &PostgresStore{db: db, timeout: timeout}
}

var _ Store = (*PostgresStore)(nil)

func (s *PostgresStore) Append(ctx context.Context, params AppendParams) (Message, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	permissions := make([]database.ConsumePermissionParams, 0, len(params.Permissions))
	for _, p := range params.Permissions {
		permissions = append(permissions, database.ConsumePermissionParams{
			PermissionID: p.ID,
			FileName:     p.FileName,
		})
	}

	row, attachmentRows, err := s.db.AppendMessage(ctx, database.AppendMessageParams{
		GroupKey:    params.GroupKey,
		SchoolID:    params.SchoolID,
		SenderID:    params.Sender.ID,
		SenderRole:  string(params.Sender.Role),
		Text:        params.Text,
		Permissions: permissions,
	})
	if err != nil {
		return Message{}, mapPermissionErr(err)
	}

	msg := fromRow(row)
	for _, a := range attachmentRows {
		msg.Attachments = append(msg.Attachments, Attachment{
			ID:         a.ID,
			StorageKey: a.StorageKey,
			FileName:   a.FileName,
			MimeType:   a.MimeType,
			SizeBytes:  a.SizeBytes,
		})
	}
	return msg, nil
}

func (s *PostgresStore) Page(ctx context.Context, groupKey string, limit int, before util.Optional[int64]) (Page, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	limit = clampLimit(limit)

	// Fetch one extra row to learn whether older history remains.
	rows, err := s.db.ListMessages(ctx, database.ListMessagesParams{
		GroupKey:      groupKey,
		Limit:         limit + 1,
		BeforeSortKey: before,
	})
	if err != nil {
		return Page{}, fmt.Errorf("message: failed to load page: %w", err)
	}

	hasMore := len(rows) > limit
	if hasMore {
		rows = rows[:limit]
	}

	messageIDs := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		messageIDs = append(messageIDs, row.ID)
	}
	attachmentsByMessage, err := s.db.ListMessageAttachments(ctx, messageIDs)
	if err != nil {
		return Page{}, fmt.Errorf("message: failed to load attachments: %w", err)
	}

	page := Page{Messages: make([]Message, 0, len(rows))}
	for _, row := range rows {
		msg := fromRow(row)
		for _, a := range attachmentsByMessage[row.ID] {
			msg.Attachments = append(msg.Attachments, Attachment{
				ID:         a.ID,
				StorageKey: a.StorageKey,
				FileName:   a.FileName,
				MimeType:   a.MimeType,
				SizeBytes:  a.SizeBytes,
			})
		}
		page.Messages = append(page.Messages, msg)
	}

	if hasMore && len(page.Messages) > 0 {
		page.NextCursor = util.Some(page.Messages[len(page.Messages)-1].SortKey)
	}
	return page, nil
}

func fromRow(row database.Message) Message {
	return Message{
		ID:         row.ID,
		GroupKey:   row.GroupKey,
		SenderID:   row.SenderID,
		SenderRole: org.Role(row.SenderRole),
		Text:       row.Text,
		SortKey:    row.SortKey,
		CreatedAt:  row.CreatedAt,
	}
}

func mapPermissionErr(err error) error {
	switch {
	case errors.Is(err, database.ErrUploadPermissionNotFound):
		return ErrPermissionNotFound
	case errors.Is(err, database.ErrUploadPermissionExpired):
		return ErrPermissionExpired
	case errors.Is(err, database.ErrUploadPermissionUsed):
		return ErrPermissionUsed
	case errors.Is(err, database.ErrUploadPermissionWrongOwner):
		return ErrPermissionWrongOwner
	default:
		return fmt.Errorf("message: failed to append: %w", err)
	}
}
