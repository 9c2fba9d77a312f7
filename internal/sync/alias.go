package sync

import (
	"strings"

	"github.com/brandon/mailmirror/pkg/types"
)

// Canonical folder keys. Servers spell the special folders many ways; every
// cache and remote operation resolves the requested name and the account's
// live folder list against this table first, so one account never splits a
// logical folder across several cache keys.
const (
	FolderInbox   = "INBOX"
	FolderSent    = "Sent"
	FolderTrash   = "Trash"
	FolderSpam    = "Spam"
	FolderDrafts  = "Drafts"
	FolderArchive = "Archive"
)

// folderSynonyms maps each canonical key to the server spellings observed in
// the wild. Matching is case-insensitive.
var folderSynonyms = map[string][]string{
	FolderInbox: {"INBOX"},
	FolderSent: {
		"Sent", "Sent Items", "Sent Mail", "Sent Messages",
		"[Gmail]/Sent Mail", "INBOX.Sent",
	},
	FolderTrash: {
		"Trash", "Deleted Items", "Deleted Messages", "Bin",
		"[Gmail]/Trash", "INBOX.Trash",
	},
	FolderSpam: {
		"Spam", "Junk", "Junk E-mail", "Junk Email", "Bulk Mail",
		"[Gmail]/Spam", "INBOX.Spam",
	},
	FolderDrafts: {
		"Drafts", "Draft", "[Gmail]/Drafts", "INBOX.Drafts",
	},
	FolderArchive: {
		"Archive", "All Mail", "[Gmail]/All Mail",
	},
}

// canonicalOf returns the canonical key for a folder name, or "" when the
// name is not a known synonym.
func canonicalOf(name string) string {
	for key, spellings := range folderSynonyms {
		for _, s := range spellings {
			if strings.EqualFold(name, s) {
				return key
			}
		}
	}
	return ""
}

// resolveFolder maps a requested folder name to its canonical cache key and
// the server-side name to use on the wire, given the account's live folder
// list. Unknown folders map to themselves. When the live list carries no
// spelling of the canonical folder, the requested name is used as-is.
func resolveFolder(requested string, live []types.Folder) (key, server string) {
	canonical := canonicalOf(requested)
	if canonical == "" {
		return requested, requested
	}

	// Prefer the exact requested spelling when the server has it.
	for _, f := range live {
		if f.Name == requested {
			return canonical, f.Name
		}
	}
	for _, f := range live {
		if canonicalOf(f.Name) == canonical {
			return canonical, f.Name
		}
	}
	return canonical, requested
}
