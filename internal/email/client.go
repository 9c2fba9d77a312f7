package email

import (
	"context"
	"errors"

	"github.com/brandon/mailmirror/pkg/types"
)

// ErrRemoteUnavailable marks connection and authentication failures. Callers
// surface it as a retryable status; there is no automatic retry loop beyond
// the client's own timeouts.
var ErrRemoteUnavailable = errors.New("remote mailbox unavailable")

// Client is the narrow remote-mailbox surface the synchronizer depends on.
type Client interface {
	// Connect establishes the connection. Implementations also connect
	// lazily on first use, so calling it is optional.
	Connect(ctx context.Context) error

	// Disconnect closes the connection. Safe to call when not connected.
	Disconnect() error

	// GetFolders returns the remote folder tree.
	GetFolders(ctx context.Context) ([]types.Folder, error)

	// GetFolderStatus returns authoritative message counts for a folder,
	// computed from an existence query rather than from mailbox counters,
	// which can disagree with reality after external deletions.
	GetFolderStatus(ctx context.Context, folder string) (types.FolderStatus, error)

	// FetchRange returns the messages in the 1-based inclusive sequence
	// range start..end, where sequence 1 is the oldest message. end == 0
	// means open-ended (start through the newest message). Messages are
	// returned in server delivery order; callers sort.
	FetchRange(ctx context.Context, folder string, start, end uint32) ([]types.Message, error)

	// SetFlag adds a flag to one message, addressed by UID.
	SetFlag(ctx context.Context, folder string, uid uint32, flag string) error
}
