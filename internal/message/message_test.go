package message_test

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"edbox/internal/message"
	"edbox/internal/org"
	"edbox/internal/util"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var msgSchoolID = uuid.MustParse("3f1c8e46-36a2-4d6d-9f66-53b6d7f2a111")

func sender() org.User {
	return org.User{ID: uuid.New(), SchoolID: msgSchoolID, Name: "Sender", Role: org.RoleTeacher}
}

func appendText(t *testing.T, store message.Store, groupKey string, user org.User, text string) message.Message {
	t.Helper()
	msg, err := store.Append(context.Background(), message.AppendParams{
		GroupKey: groupKey,
		SchoolID: msgSchoolID,
		Sender:   user,
		Text:     text,
	})
	require.NoError(t, err)
	return msg
}

func TestStore_SortKeysStrictlyIncrease(t *testing.T) {
	store := message.NewMemoryStore()
	user := sender()

	var last int64
	for i := range 10 {
		msg := appendText(t, store, "g1", user, strconv.Itoa(i))
		assert.Greater(t, msg.SortKey, last)
		last = msg.SortKey
	}
}

func TestStore_GroupsDoNotShareCounters(t *testing.T) {
	store := message.NewMemoryStore()
	user := sender()

	a := appendText(t, store, "ga", user, "first in a")
	b := appendText(t, store, "gb", user, "first in b")
	assert.Equal(t, a.SortKey, b.SortKey)
}

func TestStore_Pagination(t *testing.T) {
	store := message.NewMemoryStore()
	user := sender()

	m1 := appendText(t, store, "g1", user, "m1")
	m2 := appendText(t, store, "g1", user, "m2")
	m3 := appendText(t, store, "g1", user, "m3")

	first, err := store.Page(context.Background(), "g1", 2, util.None[int64]())
	require.NoError(t, err)
	require.Len(t, first.Messages, 2)
	assert.Equal(t, m3.ID, first.Messages[0].ID)
	assert.Equal(t, m2.ID, first.Messages[1].ID)
	require.True(t, first.NextCursor.IsSet)
	assert.Equal(t, m2.SortKey, first.NextCursor.Val)

	second, err := store.Page(context.Background(), "g1", 2, first.NextCursor)
	require.NoError(t, err)
	require.Len(t, second.Messages, 1)
	assert.Equal(t, m1.ID, second.Messages[0].ID)
	assert.False(t, second.NextCursor.IsSet)
}

func TestStore_PaginationExactFit(t *testing.T) {
	store := message.NewMemoryStore()
	user := sender()

	appendText(t, store, "g1", user, "m1")
	appendText(t, store, "g1", user, "m2")

	// The page swallows everything: no cursor even though it is full.
	page, err := store.Page(context.Background(), "g1", 2, util.None[int64]())
	require.NoError(t, err)
	assert.Len(t, page.Messages, 2)
	assert.False(t, page.NextCursor.IsSet)
}

func TestStore_EmptyGroupYieldsEmptyPage(t *testing.T) {
	store := message.NewMemoryStore()

	page, err := store.Page(context.Background(), "never-used", 10, util.None[int64]())
	require.NoError(t, err)
	assert.Empty(t, page.Messages)
	assert.False(t, page.NextCursor.IsSet)
}

func TestStore_PageConcatenationIsGapFree(t *testing.T) {
	store := message.NewMemoryStore()
	user := sender()

	const total = 25
	for i := range total {
		appendText(t, store, "g1", user, strconv.Itoa(i))
	}

	seen := make(map[int64]bool)
	cursor := util.None[int64]()
	var lastSortKey int64
	for {
		page, err := store.Page(context.Background(), "g1", 4, cursor)
		require.NoError(t, err)

		for _, msg := range page.Messages {
			assert.False(t, seen[msg.SortKey], "duplicate sort key %d", msg.SortKey)
			seen[msg.SortKey] = true
			if lastSortKey != 0 {
				assert.Less(t, msg.SortKey, lastSortKey)
			}
			lastSortKey = msg.SortKey
		}

		// Interleaved appends must not disturb older pages.
		appendText(t, store, "g1", user, "interleaved")

		if !page.NextCursor.IsSet {
			break
		}
		cursor = page.NextCursor
	}
	assert.Len(t, seen, total)
}

func TestStore_ConcurrentAppendsStayOrdered(t *testing.T) {
	store := message.NewMemoryStore()

	const writers = 8
	const perWriter = 20

	var wg sync.WaitGroup
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			user := sender()
			for i := range perWriter {
				_, err := store.Append(context.Background(), message.AppendParams{
					GroupKey: "g1",
					SchoolID: msgSchoolID,
					Sender:   user,
					Text:     strconv.Itoa(i),
				})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	cursor := util.None[int64]()
	seen := make(map[int64]bool)
	for {
		page, err := store.Page(context.Background(), "g1", 16, cursor)
		require.NoError(t, err)
		for _, msg := range page.Messages {
			require.False(t, seen[msg.SortKey])
			seen[msg.SortKey] = true
		}
		if !page.NextCursor.IsSet {
			break
		}
		cursor = page.NextCursor
	}
	assert.Len(t, seen, writers*perWriter)
}

func TestStore_AppendConsumesPermissions(t *testing.T) {
	store := message.NewMemoryStore()
	user := sender()

	permID := uuid.New()
	store.GrantPermission(permID, user.ID, "notes.pdf", "application/pdf", 1024, time.Now().Add(time.Hour))

	msg, err := store.Append(context.Background(), message.AppendParams{
		GroupKey: "g1",
		SchoolID: msgSchoolID,
		Sender:   user,
		Text:     "with attachment",
		Permissions: []message.Permission{
			{ID: permID, FileName: util.Some("renamed.pdf")},
		},
	})
	require.NoError(t, err)
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "renamed.pdf", msg.Attachments[0].FileName)
	assert.Equal(t, "application/pdf", msg.Attachments[0].MimeType)

	// Single use: the same permission cannot back a second message.
	_, err = store.Append(context.Background(), message.AppendParams{
		GroupKey:    "g1",
		SchoolID:    msgSchoolID,
		Sender:      user,
		Text:        "again",
		Permissions: []message.Permission{{ID: permID}},
	})
	assert.ErrorIs(t, err, message.ErrPermissionUsed)
}

func TestStore_PermissionFailuresLeaveNoTrace(t *testing.T) {
	user := sender()
	stranger := sender()

	tests := []struct {
		name    string
		grant   func(store *message.MemoryStore) uuid.UUID
		wantErr error
	}{
		{
			name:    "unknown_permission",
			grant:   func(store *message.MemoryStore) uuid.UUID { return uuid.New() },
			wantErr: message.ErrPermissionNotFound,
		},
		{
			name: "wrong_owner",
			grant: func(store *message.MemoryStore) uuid.UUID {
				id := uuid.New()
				store.GrantPermission(id, stranger.ID, "theirs.png", "image/png", 10, time.Now().Add(time.Hour))
				return id
			},
			wantErr: message.ErrPermissionWrongOwner,
		},
		{
			name: "expired",
			grant: func(store *message.MemoryStore) uuid.UUID {
				id := uuid.New()
				store.GrantPermission(id, user.ID, "old.png", "image/png", 10, time.Now().Add(-time.Minute))
				return id
			},
			wantErr: message.ErrPermissionExpired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := message.NewMemoryStore()

			goodID := uuid.New()
			store.GrantPermission(goodID, user.ID, "good.png", "image/png", 10, time.Now().Add(time.Hour))

			_, err := store.Append(context.Background(), message.AppendParams{
				GroupKey: "g1",
				SchoolID: msgSchoolID,
				Sender:   user,
				Text:     "mixed permissions",
				Permissions: []message.Permission{
					{ID: goodID},
					{ID: tt.grant(store)},
				},
			})
			require.ErrorIs(t, err, tt.wantErr)

			// The whole append rolled back: no message row, and the good
			// permission is still consumable.
			page, err := store.Page(context.Background(), "g1", 10, util.None[int64]())
			require.NoError(t, err)
			assert.Empty(t, page.Messages)

			_, err = store.Append(context.Background(), message.AppendParams{
				GroupKey:    "g1",
				SchoolID:    msgSchoolID,
				Sender:      user,
				Text:        "good permission survives",
				Permissions: []message.Permission{{ID: goodID}},
			})
			assert.NoError(t, err)
		})
	}
}

func TestMessage_WireSortKeyIsDecimalString(t *testing.T) {
	msg := message.Message{
		ID:         uuid.New(),
		GroupKey:   "g1",
		SenderID:   uuid.New(),
		SenderRole: org.RoleStudent,
		Text:       "hello",
		SortKey:    9007199254740993, // beyond float64 integer precision
		CreatedAt:  time.Now(),
	}

	wire := msg.Wire()
	assert.Equal(t, "9007199254740993", wire.SortKey)
	assert.Equal(t, "student", wire.SenderRole)
	assert.NotNil(t, wire.Attachments)
}

func TestParseCursor(t *testing.T) {
	cursor, err := message.ParseCursor("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), cursor)

	for _, raw := range []string{"", "abc", "4.2", "42x"} {
		_, err := message.ParseCursor(raw)
		assert.Error(t, err, "input %q", raw)
	}
}
