package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/brandon/mailmirror/pkg/types"
)

func TestCanonicalOf(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"INBOX", FolderInbox},
		{"inbox", FolderInbox},
		{"Sent", FolderSent},
		{"Sent Items", FolderSent},
		{"[Gmail]/Sent Mail", FolderSent},
		{"sent mail", FolderSent},
		{"Deleted Items", FolderTrash},
		{"Bin", FolderTrash},
		{"Junk E-mail", FolderSpam},
		{"Bulk Mail", FolderSpam},
		{"[Gmail]/All Mail", FolderArchive},
		{"Draft", FolderDrafts},
		{"Projects/2026", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, canonicalOf(tt.name), "name %q", tt.name)
	}
}

func TestResolveFolderOneKeyPerAccount(t *testing.T) {
	// Three server spellings of "Sent" must all land on one cache key.
	variants := []string{"Sent", "Sent Items", "[Gmail]/Sent Mail"}
	for _, spelling := range variants {
		live := []types.Folder{{Name: "INBOX"}, {Name: spelling}}

		for _, requested := range variants {
			key, server := resolveFolder(requested, live)
			assert.Equal(t, FolderSent, key, "requested %q with live %q", requested, spelling)
			assert.Equal(t, spelling, server, "wire name follows the live list")
		}
	}
}

func TestResolveFolder(t *testing.T) {
	live := []types.Folder{
		{Name: "INBOX"},
		{Name: "Sent Items"},
		{Name: "Deleted Items"},
	}

	t.Run("synonym maps to live spelling", func(t *testing.T) {
		key, server := resolveFolder("Trash", live)
		assert.Equal(t, FolderTrash, key)
		assert.Equal(t, "Deleted Items", server)
	})

	t.Run("exact live spelling is preferred", func(t *testing.T) {
		key, server := resolveFolder("Sent Items", live)
		assert.Equal(t, FolderSent, key)
		assert.Equal(t, "Sent Items", server)
	})

	t.Run("unknown folder maps to itself", func(t *testing.T) {
		key, server := resolveFolder("Projects/2026", live)
		assert.Equal(t, "Projects/2026", key)
		assert.Equal(t, "Projects/2026", server)
	})

	t.Run("no live match keeps the requested name", func(t *testing.T) {
		key, server := resolveFolder("Spam", live)
		assert.Equal(t, FolderSpam, key)
		assert.Equal(t, "Spam", server)
	})

	t.Run("empty live list resolves by table only", func(t *testing.T) {
		key, server := resolveFolder("Junk", nil)
		assert.Equal(t, FolderSpam, key)
		assert.Equal(t, "Junk", server)
	})
}
