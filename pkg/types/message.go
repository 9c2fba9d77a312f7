package types

import "time"

// Message is a cached mailbox message. It carries metadata only: bodies are
// reduced to a short preview and attachment content is never stored.
//
// A message is unique per (UID, Folder, Account). UIDs are assigned by the
// remote server and are stable within a connection epoch, not across expunges,
// so every reconciliation replaces the row wholesale.
type Message struct {
	UID            uint32       `json:"uid"`
	Folder         string       `json:"folder"`
	Account        string       `json:"account"`
	Subject        string       `json:"subject"`
	FromName       string       `json:"from_name"`
	FromAddress    string       `json:"from_address"`
	Date           time.Time    `json:"date"`
	Flags          []string     `json:"flags,omitempty"`
	Preview        string       `json:"preview,omitempty"`
	HasAttachments bool         `json:"has_attachments"`
	Attachments    []Attachment `json:"attachments,omitempty"`
	ThreadCount    int          `json:"thread_count"`
	LastFetched    time.Time    `json:"last_fetched"`
}

// Seen reports whether the message carries the \Seen flag.
func (m *Message) Seen() bool {
	for _, f := range m.Flags {
		if f == `\Seen` {
			return true
		}
	}
	return false
}

// Attachment describes one attachment of a message. Only the descriptor is
// kept; content bytes are fetched on demand and never cached.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	ContentID   string `json:"content_id,omitempty"`
}

// Folder is one node of the remote folder tree as reported by the server.
type Folder struct {
	Name       string   `json:"name"`
	Delimiter  string   `json:"delimiter"`
	Attributes []string `json:"attributes,omitempty"`
}

// FolderStatus holds authoritative message counts for a folder, computed from
// an existence query rather than from mailbox counters.
type FolderStatus struct {
	Total  int `json:"total"`
	Unseen int `json:"unseen"`
}

// FolderInfo is the cached metadata row for a folder. It may lag behind
// remote truth between refreshes.
type FolderInfo struct {
	Folder   string    `json:"folder"`
	Account  string    `json:"account"`
	Total    int       `json:"total"`
	Unread   int       `json:"unread"`
	LastSync time.Time `json:"last_sync"`
}

// PageResult is the reply handed to the presentation layer for one page.
type PageResult struct {
	Messages  []Message     `json:"messages"`
	Total     int           `json:"total"`
	FromCache bool          `json:"from_cache"`
	SyncAge   time.Duration `json:"sync_age"`
}
