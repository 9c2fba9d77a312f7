package sync

import (
	"context"
	"fmt"
	"math"
	"sort"
	gosync "sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/brandon/mailmirror/internal/cache"
	"github.com/brandon/mailmirror/internal/email"
	"github.com/brandon/mailmirror/pkg/types"
)

// Batch sizes and windows for the refresh paths.
const (
	// firstBatchSize is fetched first on an initial load so the newest
	// messages appear before the backfill walk starts.
	firstBatchSize = 50
	// regularBatchSize is the window of each backfill step.
	regularBatchSize = 500
	// flushThreshold bounds accumulated backfill memory; every this many
	// messages are flushed to the store for progressive visibility.
	flushThreshold = 1000
	// folderCheckWindow is the newest-message window of a folder-scoped
	// steady-state refresh.
	folderCheckWindow = 200
	// inboxCheckWindow is the smaller window of the quick inbox-only pass.
	inboxCheckWindow = 100
	// pageBufferFactor over-fetches a page so that sequence gaps left by
	// prior deletions still yield a full page after trimming.
	pageBufferFactor = 1.5
	// fallbackTotal stands in for the folder total when the status query
	// fails and no cached metadata exists. Arbitrary; a page render must
	// never block on it.
	fallbackTotal = 100
)

// ClientSource hands out the mailbox client for an account.
type ClientSource interface {
	Client(account string) (email.Client, error)
	Accounts() []string
}

// Synchronizer reconciles the local cache against live fetches and serves
// cache-first page reads. Reads are optimistic: a cached page renders
// immediately and a refresh corrects it afterwards.
type Synchronizer struct {
	source ClientSource
	store  *cache.Store
	logger *logrus.Logger

	pageSize int
	watchdog time.Duration

	mu          gosync.Mutex
	inFlight    map[string]bool
	liveFolders map[string][]types.Folder

	statusFns []func(StatusEvent)
	newMsgFns []func(account, folder string, count int)

	scopeFn func() (account, folder string, ok bool)
}

// New creates a synchronizer. pageSize is assumed already clamped by config.
func New(source ClientSource, store *cache.Store, logger *logrus.Logger, pageSize int, watchdog time.Duration) *Synchronizer {
	return &Synchronizer{
		source:      source,
		store:       store,
		logger:      logger,
		pageSize:    pageSize,
		watchdog:    watchdog,
		inFlight:    make(map[string]bool),
		liveFolders: make(map[string][]types.Folder),
	}
}

// PageSize returns the configured page size.
func (s *Synchronizer) PageSize() int {
	return s.pageSize
}

// SetScopeProvider wires the focused account+folder pair used by the
// "current" refresh scope. Not safe to call after operations start.
func (s *Synchronizer) SetScopeProvider(fn func() (account, folder string, ok bool)) {
	s.scopeFn = fn
}

// SequenceWindow maps a 1-based page onto the remote sequence range to fetch
// for it. The range is over-sized by pageBufferFactor to absorb sequence gaps
// from prior deletions. Both ends are clamped to 1; a start past the end is a
// defensive ErrRangeInvalid and cannot occur given the clamps.
func SequenceWindow(total, page, pageSize int) (start, end int, err error) {
	end = total - (page-1)*pageSize
	if end < 1 {
		end = 1
	}
	buffer := int(math.Ceil(float64(pageSize) * pageBufferFactor))
	start = end - buffer + 1
	if start < 1 {
		start = 1
	}
	if start > end {
		return 0, 0, fmt.Errorf("%w: %d:%d", ErrRangeInvalid, start, end)
	}
	return start, end, nil
}

// LoadPage serves one page of a folder, cache-first. A complete cached page
// returns immediately as a possibly-stale optimistic result; an incomplete or
// missing page falls through to a remote fetch of exactly that page. The
// first-ever view of a folder (no cached metadata) triggers a full refresh,
// because cached totals cannot be trusted.
func (s *Synchronizer) LoadPage(ctx context.Context, account, folder string, page int) (types.PageResult, error) {
	if page < 1 {
		page = 1
	}
	key, server := s.resolve(ctx, account, folder)
	offset := (page - 1) * s.pageSize

	cached := s.store.GetMessagesPage(ctx, key, account, s.pageSize, offset)
	info, haveMeta := s.store.GetFolderInfo(ctx, key, account)

	if !haveMeta {
		// First-ever view: cached totals cannot be trusted. A degraded
		// store never gains metadata, so refreshing through it would
		// re-download the whole mailbox on every view for nothing; skip
		// straight to the remote page fetch instead.
		if s.store.Available() {
			if err := s.refreshFolderWindow(ctx, account, folder, folderCheckWindow); err != nil {
				s.logger.WithError(err).WithField("folder", key).Warn("Initial refresh failed")
			}
			info, haveMeta = s.store.GetFolderInfo(ctx, key, account)
		}
		if haveMeta {
			messages := s.store.GetMessagesPage(ctx, key, account, s.pageSize, offset)
			return types.PageResult{Messages: messages, Total: info.Total, FromCache: false}, nil
		}
		messages, total, err := s.fetchPage(ctx, account, key, server, page, fallbackTotal)
		if err != nil {
			s.emitStatus(account, key, StatusLoadFailed, err)
			return types.PageResult{}, err
		}
		return types.PageResult{Messages: messages, Total: total, FromCache: false}, nil
	}

	if info.Total == 0 {
		return types.PageResult{Total: 0, FromCache: true, SyncAge: time.Since(info.LastSync)}, nil
	}

	lastPage := (info.Total + s.pageSize - 1) / s.pageSize
	complete := len(cached) >= s.pageSize || (page >= lastPage && len(cached) > 0)
	if complete {
		return types.PageResult{
			Messages:  cached,
			Total:     info.Total,
			FromCache: true,
			SyncAge:   time.Since(info.LastSync),
		}, nil
	}

	// Incomplete page: the cache under-represents this range.
	messages, total, err := s.fetchPage(ctx, account, key, server, page, info.Total)
	if err != nil {
		s.emitStatus(account, key, StatusLoadFailed, err)
		if len(cached) > 0 {
			return types.PageResult{
				Messages:  cached,
				Total:     info.Total,
				FromCache: true,
				SyncAge:   time.Since(info.LastSync),
			}, nil
		}
		return types.PageResult{}, err
	}
	return types.PageResult{Messages: messages, Total: total, FromCache: false}, nil
}

// fetchPage fetches exactly one page from the remote, using an authoritative
// total when the status query succeeds and the last known total otherwise.
// Results are sorted newest-first, truncated to the page size, and cached.
func (s *Synchronizer) fetchPage(ctx context.Context, account, key, server string, page, knownTotal int) ([]types.Message, int, error) {
	client, err := s.source.Client(account)
	if err != nil {
		return nil, 0, err
	}

	total := knownTotal
	status, serr := client.GetFolderStatus(ctx, server)
	if serr != nil {
		s.logger.WithError(serr).WithFields(logrus.Fields{
			"account": account,
			"folder":  key,
		}).Warn("Folder status failed, using last known total")
	} else {
		total = status.Total
	}
	if total == 0 {
		return nil, 0, nil
	}

	start, end, err := SequenceWindow(total, page, s.pageSize)
	if err != nil {
		s.logger.WithError(err).WithField("folder", key).Error("Sequence window clamp violated")
		return nil, total, err
	}

	messages, err := client.FetchRange(ctx, server, uint32(start), uint32(end))
	if err != nil {
		return nil, total, fmt.Errorf("failed to fetch page %d: %w", page, err)
	}

	sortMessagesDesc(messages)
	if len(messages) > s.pageSize {
		messages = messages[:s.pageSize]
	}

	s.store.UpsertMessages(ctx, messages, key, account)
	if serr == nil {
		s.store.SetFolderMetadata(ctx, key, account, status.Total, status.Unseen)
	}
	return messages, total, nil
}

// MarkSeen sets \Seen on the remote message, then patches the cached flag set
// and unread count in place instead of refetching the folder.
func (s *Synchronizer) MarkSeen(ctx context.Context, account, folder string, uid uint32) error {
	key, server := s.resolve(ctx, account, folder)

	client, err := s.source.Client(account)
	if err != nil {
		return err
	}
	if err := client.SetFlag(ctx, server, uid, `\Seen`); err != nil {
		return fmt.Errorf("failed to mark message seen: %w", err)
	}

	flags, ok := s.store.GetMessageFlags(ctx, uid, key, account)
	if ok && !hasFlag(flags, `\Seen`) {
		s.store.UpdateFlags(ctx, uid, key, account, append(flags, `\Seen`))
		if info, haveMeta := s.store.GetFolderInfo(ctx, key, account); haveMeta && info.Unread > 0 {
			s.store.SetFolderMetadata(ctx, key, account, info.Total, info.Unread-1)
		}
	}
	return nil
}

// FolderSummary is one folder of the live tree with its cached metadata
// overlaid, when any exists.
type FolderSummary struct {
	Folder types.Folder
	Info   types.FolderInfo
	Cached bool
}

// Folders returns the account's live folder tree with cached metadata.
func (s *Synchronizer) Folders(ctx context.Context, account string) ([]FolderSummary, error) {
	client, err := s.source.Client(account)
	if err != nil {
		return nil, err
	}
	live, err := client.GetFolders(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.liveFolders[account] = live
	s.mu.Unlock()

	summaries := make([]FolderSummary, 0, len(live))
	for _, f := range live {
		key, _ := resolveFolder(f.Name, live)
		info, cached := s.store.GetFolderInfo(ctx, key, account)
		summaries = append(summaries, FolderSummary{Folder: f, Info: info, Cached: cached})
	}
	return summaries, nil
}

// resolve canonicalizes a folder name once per operation, using the account's
// live folder list when one is known. The list is fetched lazily and reused;
// a fetch failure degrades to table-only resolution.
func (s *Synchronizer) resolve(ctx context.Context, account, folder string) (key, server string) {
	s.mu.Lock()
	live, ok := s.liveFolders[account]
	s.mu.Unlock()

	if !ok {
		client, err := s.source.Client(account)
		if err == nil {
			live, err = client.GetFolders(ctx)
		}
		if err != nil {
			s.logger.WithError(err).WithField("account", account).Debug("Folder list unavailable, resolving by table only")
			live = nil
		}
		s.mu.Lock()
		s.liveFolders[account] = live
		s.mu.Unlock()
	}

	return resolveFolder(folder, live)
}

// sortMessagesDesc orders messages newest-first, UID descending on date ties.
func sortMessagesDesc(messages []types.Message) {
	sort.Slice(messages, func(i, j int) bool {
		if !messages[i].Date.Equal(messages[j].Date) {
			return messages[i].Date.After(messages[j].Date)
		}
		return messages[i].UID > messages[j].UID
	})
}

func hasFlag(flags []string, flag string) bool {
	for _, f := range flags {
		if f == flag {
			return true
		}
	}
	return false
}

func countUnread(messages []types.Message) int {
	unread := 0
	for i := range messages {
		if !messages[i].Seen() {
			unread++
		}
	}
	return unread
}
