// Package message is the append-only, totally ordered message store.
// Messages are partitioned by canonical group key and ordered by a
// per-group sort key that is assigned exactly once at append time.
package message

import (
	"context"
	"errors"
	"strconv"
	"time"

	"edbox/internal/org"
	"edbox/internal/util"

	"github.com/google/uuid"
)

var (
	ErrPermissionNotFound   = errors.New("message: upload permission not found")
	ErrPermissionExpired    = errors.New("message: upload permission expired")
	ErrPermissionUsed       = errors.New("message: upload permission already used")
	ErrPermissionWrongOwner = errors.New("message: upload permission owned by another user")
)

type Attachment struct {
	ID         uuid.UUID
	StorageKey string
	FileName   string
	MimeType   string
	SizeBytes  int64
}

// Message is immutable once persisted; nothing in this core mutates or
// deletes it.
type Message struct {
	ID          uuid.UUID
	GroupKey    string
	SenderID    uuid.UUID
	SenderRole  org.Role
	Text        string
	Attachments []Attachment
	SortKey     int64
	CreatedAt   time.Time
}

// Permission references a single-use upload permission to consume as an
// attachment.
type Permission struct {
	ID       uuid.UUID
	FileName util.Optional[string]
}

type AppendParams struct {
	GroupKey    string
	SchoolID    uuid.UUID
	Sender      org.User
	Text        string
	Permissions []Permission
}

// Page is one slice of a group's history, newest first.
type Page struct {
	Messages []Message
	// NextCursor is the sort key of the oldest message returned, set
	// only when older rows remain.
	NextCursor util.Optional[int64]
}

type Store interface {
	// Append persists one message, consuming its attachment permissions
	// atomically: if any permission is rejected, nothing is stored.
	Append(ctx context.Context, params AppendParams) (Message, error)

	// Page returns up to limit messages descending by sort key, starting
	// strictly below the cursor when one is given.
	Page(ctx context.Context, groupKey string, limit int, before util.Optional[int64]) (Page, error)
}

const (
	DefaultPageSize = 30
	MaxPageSize     = 100
)

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}

// WireAttachment is the transport form of an attachment.
type WireAttachment struct {
	ID        string `json:"id"`
	FileName  string `json:"file_name"`
	MimeType  string `json:"mime_type"`
	SizeBytes int64  `json:"size_bytes"`
}

// WireMessage is the transport form of a message. The sort key travels
// as a decimal string so 64-bit values survive JSON number handling in
// every client.
type WireMessage struct {
	ID          string           `json:"id"`
	GroupKey    string           `json:"group_identifier"`
	SenderID    string           `json:"sender_id"`
	SenderRole  string           `json:"sender_role"`
	Text        string           `json:"text"`
	Attachments []WireAttachment `json:"attachments"`
	SortKey     string           `json:"sort_key"`
	CreatedAt   time.Time        `json:"created_at"`
}

func (m Message) Wire() WireMessage {
	attachments := make([]WireAttachment, 0, len(m.Attachments))
	for _, a := range m.Attachments {
		attachments = append(attachments, WireAttachment{
			ID:        a.ID.String(),
			FileName:  a.FileName,
			MimeType:  a.MimeType,
			SizeBytes: a.SizeBytes,
		})
	}
	return WireMessage{
		ID:          m.ID.String(),
		GroupKey:    m.GroupKey,
		SenderID:    m.SenderID.String(),
		SenderRole:  string(m.SenderRole),
		Text:        m.Text,
		Attachments: attachments,
		SortKey:     strconv.FormatInt(m.SortKey, 10),
		CreatedAt:   m.CreatedAt,
	}
}

// ParseCursor parses a cursor previously handed out as a wire sort key.
func ParseCursor(raw string) (int64, error) {
	cursor, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errors.New("message: malformed cursor")
	}
	return cursor, nil
}
