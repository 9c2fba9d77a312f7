package cache_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandon/mailmirror/internal/cache"
	"github.com/brandon/mailmirror/pkg/types"
)

// newTestStore creates an in-memory store and closes it when the test ends.
func newTestStore(t *testing.T) *cache.Store {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	c := cache.NewCache(":memory:", logger)
	require.True(t, c.Available(), "in-memory cache must initialize")
	t.Cleanup(func() {
		if err := c.Close(); err != nil {
			t.Errorf("closing test cache: %v", err)
		}
	})

	return cache.NewStore(c, logger)
}

func testMessage(uid uint32, subject string, date time.Time) types.Message {
	return types.Message{
		UID:         uid,
		Subject:     subject,
		FromName:    "Alice",
		FromAddress: "alice@example.com",
		Date:        date,
		Flags:       []string{`\Seen`},
		Preview:     "preview of " + subject,
	}
}

func TestUpsertAndGetMessagesPage(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var messages []types.Message
	for i := 0; i < 5; i++ {
		messages = append(messages, testMessage(uint32(i+1), "msg", base.Add(time.Duration(i)*time.Hour)))
	}
	store.UpsertMessages(ctx, messages, "INBOX", "work")

	t.Run("round trip preserves fields", func(t *testing.T) {
		page := store.GetMessagesPage(ctx, "INBOX", "work", 10, 0)
		require.Len(t, page, 5)

		newest := page[0]
		assert.Equal(t, uint32(5), newest.UID)
		assert.Equal(t, "msg", newest.Subject)
		assert.True(t, newest.Date.Equal(base.Add(4*time.Hour)))
		assert.Equal(t, []string{`\Seen`}, newest.Flags)
	})

	t.Run("ordered by date descending", func(t *testing.T) {
		page := store.GetMessagesPage(ctx, "INBOX", "work", 10, 0)
		for i := 1; i < len(page); i++ {
			assert.False(t, page[i].Date.After(page[i-1].Date))
		}
	})

	t.Run("offset pages", func(t *testing.T) {
		page := store.GetMessagesPage(ctx, "INBOX", "work", 2, 2)
		require.Len(t, page, 2)
		assert.Equal(t, uint32(3), page[0].UID)
		assert.Equal(t, uint32(2), page[1].UID)
	})

	t.Run("short last page", func(t *testing.T) {
		page := store.GetMessagesPage(ctx, "INBOX", "work", 2, 4)
		assert.Len(t, page, 1)
	})

	t.Run("other folder is empty", func(t *testing.T) {
		assert.Empty(t, store.GetMessagesPage(ctx, "Sent", "work", 10, 0))
	})
}

func TestUpsertReplacesRow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	date := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	msg := testMessage(7, "first subject", date)
	store.UpsertMessages(ctx, []types.Message{msg}, "INBOX", "work")

	msg.Subject = "replaced subject"
	msg.Flags = nil
	store.UpsertMessages(ctx, []types.Message{msg}, "INBOX", "work")

	page := store.GetMessagesPage(ctx, "INBOX", "work", 10, 0)
	require.Len(t, page, 1)
	assert.Equal(t, "replaced subject", page[0].Subject)
	assert.Empty(t, page[0].Flags)
}

func TestUpsertReplacesAttachments(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	date := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	msg := testMessage(3, "with attachments", date)
	msg.HasAttachments = true
	msg.Attachments = []types.Attachment{
		{Filename: "a.pdf", ContentType: "application/pdf", Size: 100},
		{Filename: "b.png", ContentType: "image/png", Size: 200},
	}
	store.UpsertMessages(ctx, []types.Message{msg}, "INBOX", "work")

	// Re-fetch now reports a single attachment; the old rows must go.
	msg.Attachments = []types.Attachment{
		{Filename: "c.txt", ContentType: "text/plain", Size: 10},
	}
	store.UpsertMessages(ctx, []types.Message{msg}, "INBOX", "work")

	page := store.GetMessagesPage(ctx, "INBOX", "work", 10, 0)
	require.Len(t, page, 1)
	require.Len(t, page[0].Attachments, 1)
	assert.Equal(t, "c.txt", page[0].Attachments[0].Filename)
}

func TestUpdateFlags(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	msg := testMessage(9, "flagged", time.Now().UTC().Truncate(time.Second))
	msg.Flags = nil
	store.UpsertMessages(ctx, []types.Message{msg}, "INBOX", "work")

	store.UpdateFlags(ctx, 9, "INBOX", "work", []string{`\Seen`, `\Answered`})

	flags, ok := store.GetMessageFlags(ctx, 9, "INBOX", "work")
	require.True(t, ok)
	assert.Equal(t, []string{`\Seen`, `\Answered`}, flags)

	_, ok = store.GetMessageFlags(ctx, 404, "INBOX", "work")
	assert.False(t, ok)
}

func TestFolderMetadata(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, ok := store.GetFolderInfo(ctx, "INBOX", "work")
	assert.False(t, ok, "no metadata before first sync")
	assert.True(t, store.GetLastSyncTime(ctx, "INBOX", "work").IsZero())

	store.SetFolderMetadata(ctx, "INBOX", "work", 523, 12)

	info, ok := store.GetFolderInfo(ctx, "INBOX", "work")
	require.True(t, ok)
	assert.Equal(t, 523, info.Total)
	assert.Equal(t, 12, info.Unread)
	assert.False(t, info.LastSync.IsZero())
	assert.WithinDuration(t, time.Now(), info.LastSync, 5*time.Second)

	// Upsert overwrites in place.
	store.SetFolderMetadata(ctx, "INBOX", "work", 524, 13)
	info, ok = store.GetFolderInfo(ctx, "INBOX", "work")
	require.True(t, ok)
	assert.Equal(t, 524, info.Total)
	assert.Equal(t, 13, info.Unread)
}

func TestCachedUIDsAndCount(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	store.UpsertMessages(ctx, []types.Message{
		testMessage(1, "a", base),
		testMessage(2, "b", base.Add(time.Hour)),
		testMessage(3, "c", base.Add(2*time.Hour)),
	}, "INBOX", "work")

	assert.Equal(t, 3, store.CountMessages(ctx, "INBOX", "work"))
	assert.Equal(t, 0, store.CountMessages(ctx, "Sent", "work"))

	uids := store.CachedUIDs(ctx, "INBOX", "work")
	require.Len(t, uids, 3)
	_, ok := uids[2]
	assert.True(t, ok)
}

func TestClearFolder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	date := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	store.UpsertMessages(ctx, []types.Message{testMessage(1, "inbox", date)}, "INBOX", "work")
	store.UpsertMessages(ctx, []types.Message{testMessage(1, "sent", date)}, "Sent", "work")
	store.SetFolderMetadata(ctx, "INBOX", "work", 1, 0)

	store.ClearFolder(ctx, "INBOX", "work")

	assert.Empty(t, store.GetMessagesPage(ctx, "INBOX", "work", 10, 0))
	_, ok := store.GetFolderInfo(ctx, "INBOX", "work")
	assert.False(t, ok)

	// Other folders survive a folder clear.
	assert.Len(t, store.GetMessagesPage(ctx, "Sent", "work", 10, 0), 1)
}

func TestClearAll(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	date := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	store.UpsertMessages(ctx, []types.Message{testMessage(1, "inbox", date)}, "INBOX", "work")
	store.UpsertMessages(ctx, []types.Message{testMessage(1, "sent", date)}, "Sent", "personal")
	store.SetFolderMetadata(ctx, "INBOX", "work", 1, 1)

	store.ClearAll(ctx)

	assert.Empty(t, store.GetMessagesPage(ctx, "INBOX", "work", 10, 0))
	assert.Empty(t, store.GetMessagesPage(ctx, "Sent", "personal", 10, 0))
	_, ok := store.GetFolderInfo(ctx, "INBOX", "work")
	assert.False(t, ok)
}

func TestDegradedStoreIsNoOp(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	// A path under a file can never be created.
	c := cache.NewCache("/dev/null/mailmirror/cache.db", logger)
	assert.False(t, c.Available())
	t.Cleanup(func() { _ = c.Close() })

	store := cache.NewStore(c, logger)
	ctx := context.Background()

	// Writes are dropped and reads come back empty; nothing errors or panics.
	store.UpsertMessages(ctx, []types.Message{testMessage(1, "dropped", time.Now())}, "INBOX", "work")
	store.SetFolderMetadata(ctx, "INBOX", "work", 10, 5)
	store.UpdateFlags(ctx, 1, "INBOX", "work", []string{`\Seen`})
	store.ClearFolder(ctx, "INBOX", "work")
	store.ClearAll(ctx)

	assert.Empty(t, store.GetMessagesPage(ctx, "INBOX", "work", 10, 0))
	assert.Equal(t, 0, store.CountMessages(ctx, "INBOX", "work"))
	assert.Empty(t, store.CachedUIDs(ctx, "INBOX", "work"))
	_, ok := store.GetFolderInfo(ctx, "INBOX", "work")
	assert.False(t, ok)
	assert.True(t, store.GetLastSyncTime(ctx, "INBOX", "work").IsZero())
}
