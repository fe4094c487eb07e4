package message

import (
	"context"
	"sync"
	"time"

	"edbox/internal/util"

	"github.com/google/uuid"
)

type memoryPermission struct {
	owner     uuid.UUID
	fileName  string
	mimeType  string
	sizeBytes int64
	expiresAt time.Time
	used      bool
}

// MemoryStore keeps messages in process memory. It backs tests and
// single-node development setups; the ordering and atomicity contract is
// the same as the Postgres store's.
type MemoryStore struct {
	mu          sync.Mutex
	counters    map[string]int64
	messages    map[string][]Message
	permissions map[uuid.UUID]*memoryPermission
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		counters:    make(map[string]int64),
		messages:    make(map[string][]Message),
		permissions: make(map[uuid.UUID]*memoryPermission),
	}
}

var _ Store = (*MemoryStore)(nil)

// GrantPermission registers a consumable upload permission.
func (s *MemoryStore) GrantPermission(id, owner uuid.UUID, fileName, mimeType string, sizeBytes int64, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.permissions[id] = &memoryPermission{
		owner:     owner,
		fileName:  fileName,
		mimeType:  mimeType,
		sizeBytes: sizeBytes,
		expiresAt: expiresAt,
	}
}

func (s *MemoryStore) Append(ctx context.Context, params AppendParams) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()

	// Validate every permission before touching any state so a rejected
	// one leaves no trace.
	var attachments []Attachment
	for _, p := range params.Permissions {
		perm, ok := s.permissions[p.ID]
		if !ok {
			return Message{}, ErrPermissionNotFound
		}
		if perm.used {
			return Message{}, ErrPermissionUsed
		}
		if perm.owner != params.Sender.ID {
			return Message{}, ErrPermissionWrongOwner
		}
		if now.After(perm.expiresAt) {
			return Message{}, ErrPermissionExpired
		}
		attachments = append(attachments, Attachment{
			ID:         uuid.New(),
			StorageKey: p.ID.String(),
			FileName:   p.FileName.UnwrapOr(perm.fileName),
			MimeType:   perm.mimeType,
			SizeBytes:  perm.sizeBytes,
		})
	}
	for _, p := range params.Permissions {
		s.permissions[p.ID].used = true
	}

	s.counters[params.GroupKey]++
	msg := Message{
		ID:          uuid.New(),
		GroupKey:    params.GroupKey,
		SenderID:    params.Sender.ID,
		SenderRole:  params.Sender.Role,
		Text:        params.Text,
		Attachments: attachments,
		SortKey:     s.counters[params.GroupKey],
		CreatedAt:   now,
	}
	s.messages[params.GroupKey] = append(s.messages[params.GroupKey], msg)
	return msg, nil
}

func (s *MemoryStore) Page(ctx context.Context, groupKey string, limit int, before util.Optional[int64]) (Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	limit = clampLimit(limit)

	all := s.messages[groupKey]
	var page Page
	// Messages are appended in sort key order; walk backwards for the
	// newest-first page.
	for i := len(all) - 1; i >= 0; i-- {
		msg := all[i]
		if before.IsSet && msg.SortKey >= before.Val {
			continue
		}
		if len(page.Messages) == limit {
			page.NextCursor = util.Some(page.Messages[len(page.Messages)-1].SortKey)
			return page, nil
		}
		page.Messages = append(page.Messages, msg)
	}
	return page, nil
}
