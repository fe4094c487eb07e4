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

type ConsumePermissionParams struct {
	PermissionID uuid.UUID
	// FileName optionally overrides the name recorded at issue time.
	FileName util.Optional[string]
}

type AppendMessageParams struct {
	GroupKey    string
	SchoolID    uuid.UUID
	SenderID    uuid.UUID
	SenderRole  string
	Text        string
	Permissions []ConsumePermissionParams
}

// AppendMessage persists one message as a single transaction: every
// attachment permission is consumed (single use, owner and expiry
// checked), the group's counter row is bumped under its row lock to
// assign the sort key, and the message plus attachment rows are
// inserted. Any failure rolls the whole thing back, so a rejected
// permission leaves neither a message nor a partial attachment set.
//
// The counter row lock serializes appends per group only; appends to
// other groups touch other rows and proceed in parallel.
func (db *Database) AppendMessage(ctx context.Context, params AppendMessageParams) (Message, []MessageAttachment, error) {
	message := Message{
		ID:         uuid.New(),
		GroupKey:   params.GroupKey,
		SchoolID:   params.SchoolID,
		SenderID:   params.SenderID,
		SenderRole: params.SenderRole,
		Text:       params.Text,
		CreatedAt:  time.Now().UTC(),
	}

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return message, nil, fmt.Errorf("database: failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	attachments := make([]MessageAttachment, 0, len(params.Permissions))
	for _, perm := range params.Permissions {
		attachment, err := consumeUploadPermission(ctx, tx, message, perm)
		if err != nil {
			return message, nil, err
		}
		attachments = append(attachments, attachment)
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO tbl_message_counter (group_key, next_sort_key) VALUES ($1, 1)
		 ON CONFLICT (group_key) DO UPDATE SET next_sort_key = tbl_message_counter.next_sort_key + 1
		 RETURNING next_sort_key`, params.GroupKey).
		Scan(&message.SortKey)
	if err != nil {
		return message, nil, fmt.Errorf("database: failed to assign sort key (group=%s): %w", params.GroupKey, err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO tbl_message (id, group_key, school_id, sender_id, sender_role, body, sort_key, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		message.ID, message.GroupKey, message.SchoolID, message.SenderID, message.SenderRole, message.Text, message.SortKey, message.CreatedAt); err != nil {
		return message, nil, fmt.Errorf("database: failed to insert message (group=%s): %w", params.GroupKey, err)
	}

	for _, attachment := range attachments {
		if _, err := tx.Exec(ctx,
			`INSERT INTO tbl_message_attachment (id, message_id, storage_key, file_name, mime_type, size_bytes, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			attachment.ID, attachment.MessageID, attachment.StorageKey, attachment.FileName, attachment.MimeType, attachment.SizeBytes, attachment.CreatedAt); err != nil {
			return message, nil, fmt.Errorf("database: failed to insert attachment (message_id=%s): %w", message.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return message, nil, fmt.Errorf("database: failed to commit message: %w", err)
	}
	return message, attachments, nil
}

// consumeUploadPermission marks the permission used inside the caller's
// transaction and validates it belongs to the sender and has not lapsed.
// The errors distinguish expired, already-used and foreign permissions
// so callers can report them apart.
func consumeUploadPermission(ctx context.Context, tx pgx.Tx, message Message, params ConsumePermissionParams) (MessageAttachment, error) {
	var (
		attachment MessageAttachment
		ownerID    uuid.UUID
		expiresAt  time.Time
		usedAt     util.Optional[time.Time]
		fileName   string
	)

	// FOR UPDATE holds the row against a concurrent consumer until the
	// surrounding transaction resolves, which is what makes the
	// permission single use.
	err := tx.QueryRow(ctx,
		`SELECT user_id, storage_key, file_name, mime_type, size_bytes, expires_at, used_at
		 FROM tbl_upload_permission WHERE id = $1 FOR UPDATE`, params.PermissionID).
		Scan(&ownerID, &attachment.StorageKey, &fileName, &attachment.MimeType, &attachment.SizeBytes, &expiresAt, &usedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return attachment, ErrUploadPermissionNotFound
		}
		return attachment, fmt.Errorf("database: failed to lock upload permission (id=%s): %w", params.PermissionID, err)
	}

	if usedAt.IsSet {
		return attachment, ErrUploadPermissionUsed
	}
	if ownerID != message.SenderID {
		return attachment, ErrUploadPermissionWrongOwner
	}
	if message.CreatedAt.After(expiresAt) {
		return attachment, ErrUploadPermissionExpired
	}

	if _, err := tx.Exec(ctx,
		`UPDATE tbl_upload_permission SET used_at = $1, updated_at = $1 WHERE id = $2`,
		message.CreatedAt, params.PermissionID); err != nil {
		return attachment, fmt.Errorf("database: failed to consume upload permission (id=%s): %w", params.PermissionID, err)
	}

	attachment.ID = uuid.New()
	attachment.MessageID = message.ID
	attachment.FileName = params.FileName.UnwrapOr(fileName)
	attachment.CreatedAt = message.CreatedAt
	return attachment, nil
}

type ListMessagesParams struct {
	GroupKey string
	Limit    int
	// BeforeSortKey restricts the page to rows strictly older than the
	// cursor when set.
	BeforeSortKey util.Optional[int64]
}

// ListMessages returns up to Limit messages in descending sort key
// order.
func (db *Database) ListMessages(ctx context.Context, params ListMessagesParams) ([]Message, error) {
	query := `SELECT id, group_key, school_id, sender_id, sender_role, body, sort_key, created_at FROM tbl_message WHERE group_key = $1`
	args := []any{params.GroupKey}

	if params.BeforeSortKey.IsSet {
		query += ` AND sort_key < $2 ORDER BY sort_key DESC LIMIT $3`
		args = append(args, params.BeforeSortKey.Val, params.Limit)
	} else {
		query += ` ORDER BY sort_key DESC LIMIT $2`
		args = append(args, params.Limit)
	}

	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("database: failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.GroupKey, &m.SchoolID, &m.SenderID, &m.SenderRole, &m.Text, &m.SortKey, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("database: failed to scan message: %w", err)
		}
		messages = append(messages, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("database: failed to iterate messages: %w", err)
	}

	return messages, nil
}

// ListMessageAttachments returns the attachments for a batch of
// messages, keyed by message id.
func (db *Database) ListMessageAttachments(ctx context.Context, messageIDs []uuid.UUID) (map[uuid.UUID][]MessageAttachment, error) {
	if len(messageIDs) == 0 {
		return map[uuid.UUID][]MessageAttachment{}, nil
	}

	rows, err := db.Pool.Query(ctx,
		`SELECT id, message_id, storage_key, file_name, mime_type, size_bytes, created_at
		 FROM tbl_message_attachment WHERE message_id = ANY($1) ORDER BY created_at`, messageIDs)
	if err != nil {
		return nil, fmt.Errorf("database: failed to list attachments: %w", err)
	}
	defer rows.Close()

	attachments := make(map[uuid.UUID][]MessageAttachment)
	for rows.Next() {
		var a MessageAttachment
		if err := rows.Scan(&a.ID, &a.MessageID, &a.StorageKey, &a.FileName, &a.MimeType, &a.SizeBytes, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("database: failed to scan attachment: %w", err)
		}
		attachments[a.MessageID] = append(attachments[a.MessageID], a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("database: failed to iterate attachments: %w", err)
	}

	return attachments, nil
}

func (db *Database) GetMessageByID(ctx context.Context, id uuid.UUID) (Message, error) {
	var m Message

	err := db.Pool.QueryRow(ctx,
		`SELECT id, group_key, school_id, sender_id, sender_role, body, sort_key, created_at
		 FROM tbl_message WHERE id = $1`, id).
		Scan(&m.ID, &m.GroupKey, &m.SchoolID, &m.SenderID, &m.SenderRole, &m.Text, &m.SortKey, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return m, ErrMessageNotFound
		}
		return m, fmt.Errorf("database: failed to scan message: %w", err)
	}
	return m, nil
}

func (db *Database) GetMessageAttachmentByID(ctx context.Context, id uuid.UUID) (MessageAttachment, error) {
	var a MessageAttachment

	err := db.Pool.QueryRow(ctx,
		`SELECT id, message_id, storage_key, file_name, mime_type, size_bytes, created_at
		 FROM tbl_message_attachment WHERE id = $1`, id).
		Scan(&a.ID, &a.MessageID, &a.StorageKey, &a.FileName, &a.MimeType, &a.SizeBytes, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return a, ErrMessageAttachmentNotFound
		}
		return a, fmt.Errorf("database: failed to scan attachment: %w", err)
	}
	return a, nil
}
