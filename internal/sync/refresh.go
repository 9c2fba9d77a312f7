package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/brandon/mailmirror/internal/email"
	"github.com/brandon/mailmirror/pkg/types"
)

// maxConcurrentScopes bounds how many distinct folder+account scopes
// RefreshAll processes at once.
const maxConcurrentScopes = 4

// Refresh scopes accepted by RequestRefresh.
const (
	ScopeCurrent = "current"
	ScopeAll     = "all"
	ScopeInbox   = "inbox"
)

// RequestRefresh triggers a refresh of the named scope: the focused folder,
// every folder of every account, or a quick inbox-only pass per account.
func (s *Synchronizer) RequestRefresh(ctx context.Context, scope string) error {
	switch scope {
	case ScopeCurrent:
		if s.scopeFn == nil {
			return fmt.Errorf("no scope provider configured")
		}
		account, folder, ok := s.scopeFn()
		if !ok {
			return nil
		}
		return s.RefreshFolder(ctx, account, folder)
	case ScopeAll:
		return s.RefreshAll(ctx)
	case ScopeInbox:
		return s.RefreshInbox(ctx)
	default:
		return fmt.Errorf("unknown refresh scope: %s", scope)
	}
}

// RefreshFolder runs an incremental refresh of one folder. A refresh already
// in flight for the same scope drops this trigger instead of queuing it.
func (s *Synchronizer) RefreshFolder(ctx context.Context, account, folder string) error {
	return s.refreshFolderWindow(ctx, account, folder, folderCheckWindow)
}

// RefreshInbox runs the quick inbox-only pass over every account.
func (s *Synchronizer) RefreshInbox(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentScopes)
	for _, account := range s.source.Accounts() {
		account := account
		g.Go(func() error {
			return s.refreshFolderWindow(ctx, account, FolderInbox, inboxCheckWindow)
		})
	}
	return g.Wait()
}

// RefreshAll refreshes every folder of every account. Distinct accounts run
// concurrently, but one account's folders run sequentially: they share a
// single stateful connection, and interleaved commands on it would fetch
// against the wrong mailbox.
func (s *Synchronizer) RefreshAll(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentScopes)

	for _, account := range s.source.Accounts() {
		account := account
		client, err := s.source.Client(account)
		if err != nil {
			return err
		}
		g.Go(func() error {
			folders, err := client.GetFolders(ctx)
			if err != nil {
				s.logger.WithError(err).WithField("account", account).Warn("Failed to list folders for refresh")
				return nil
			}

			s.mu.Lock()
			s.liveFolders[account] = folders
			s.mu.Unlock()

			for _, folder := range folders {
				if err := s.refreshFolderWindow(ctx, account, folder.Name, folderCheckWindow); err != nil {
					s.logger.WithError(err).WithFields(logrus.Fields{
						"account": account,
						"folder":  folder.Name,
					}).Warn("Folder refresh failed")
				}
				// One failed folder never aborts the rest.
			}
			return nil
		})
	}
	return g.Wait()
}

// InProgress reports whether a refresh is in flight for the folder's scope.
func (s *Synchronizer) InProgress(account, folder string) bool {
	key := folder
	if canonical := canonicalOf(folder); canonical != "" {
		key = canonical
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight[scopeKey(account, key)]
}

func scopeKey(account, folder string) string {
	return account + "/" + folder
}

// tryBegin claims the scope's in-progress flag. It returns false when a
// refresh is already running, in which case the trigger is dropped.
func (s *Synchronizer) tryBegin(account, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	scope := scopeKey(account, key)
	if s.inFlight[scope] {
		return false
	}
	s.inFlight[scope] = true
	return true
}

func (s *Synchronizer) finish(account, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, scopeKey(account, key))
}

// refreshFolderWindow resolves the folder, claims its scope, and runs the
// refresh flow appropriate to the cache state.
func (s *Synchronizer) refreshFolderWindow(ctx context.Context, account, folder string, window int) error {
	key, server := s.resolve(ctx, account, folder)

	if !s.tryBegin(account, key) {
		s.logger.WithFields(logrus.Fields{
			"account": account,
			"folder":  key,
		}).Debug("Refresh already in progress, dropping trigger")
		return nil
	}
	defer s.finish(account, key)

	// The watchdog surfaces a timed-out status without terminating the
	// underlying fetch; a late result still reaches the cache and a later
	// read reconciles it.
	if s.watchdog > 0 {
		watchdog := time.AfterFunc(s.watchdog, func() {
			s.emitStatus(account, key, StatusTimedOut, nil)
		})
		defer watchdog.Stop()
	}

	s.emitStatus(account, key, StatusRefreshing, nil)
	if err := s.refreshScope(ctx, account, key, server, window); err != nil {
		s.emitStatus(account, key, StatusLoadFailed, err)
		return err
	}
	s.emitStatus(account, key, StatusIdle, nil)
	return nil
}

// refreshScope runs one refresh flow: a full backfill when the folder has
// never been cached, otherwise a newest-window reconciliation.
func (s *Synchronizer) refreshScope(ctx context.Context, account, key, server string, window int) error {
	client, err := s.source.Client(account)
	if err != nil {
		return err
	}

	total := 0
	status, err := client.GetFolderStatus(ctx, server)
	if err != nil {
		// Never block a render on a failed status query: fall back to the
		// last known total, or the placeholder when none exists.
		if info, ok := s.store.GetFolderInfo(ctx, key, account); ok {
			total = info.Total
		} else {
			total = fallbackTotal
		}
		s.logger.WithError(err).WithFields(logrus.Fields{
			"account": account,
			"folder":  key,
			"total":   total,
		}).Warn("Folder status failed, using fallback total")
	} else {
		total = status.Total
	}

	if total == 0 {
		s.store.SetFolderMetadata(ctx, key, account, 0, 0)
		return nil
	}

	if s.store.CountMessages(ctx, key, account) == 0 {
		return s.initialLoad(ctx, client, account, key, server, total)
	}
	return s.reconcileWindow(ctx, client, account, key, server, total, window)
}

// initialLoad populates an empty cache: the newest firstBatchSize messages
// first for immediate visibility, then a backward walk in regularBatchSize
// windows down to sequence 1, flushing every flushThreshold messages to bound
// memory.
func (s *Synchronizer) initialLoad(ctx context.Context, client email.Client, account, key, server string, total int) error {
	start := total - firstBatchSize + 1
	if start < 1 {
		start = 1
	}

	first, err := client.FetchRange(ctx, server, uint32(start), uint32(total))
	if err != nil {
		return fmt.Errorf("failed to fetch initial batch: %w", err)
	}
	sortMessagesDesc(first)
	s.store.UpsertMessages(ctx, first, key, account)
	s.store.SetFolderMetadata(ctx, key, account, total, countUnread(first))

	var pending []types.Message
	flush := func() {
		if len(pending) > 0 {
			s.store.UpsertMessages(ctx, pending, key, account)
			pending = nil
		}
	}

	for end := start - 1; end >= 1; {
		batchStart := end - regularBatchSize + 1
		if batchStart < 1 {
			batchStart = 1
		}

		batch, err := client.FetchRange(ctx, server, uint32(batchStart), uint32(end))
		if err != nil {
			flush()
			return fmt.Errorf("failed to backfill %d:%d: %w", batchStart, end, err)
		}
		pending = append(pending, batch...)
		if len(pending) >= flushThreshold {
			flush()
		}

		end = batchStart - 1
	}
	flush()

	all := s.store.GetAllMessages(ctx, key, account)
	s.store.SetFolderMetadata(ctx, key, account, len(all), countUnread(all))

	s.logger.WithFields(logrus.Fields{
		"account": account,
		"folder":  key,
		"count":   len(all),
	}).Info("Initial load complete")
	return nil
}

// reconcileWindow fetches the newest window of the folder and merges it over
// the cached set keyed by UID. Fetched entries overwrite cached entries only
// on UID collision; cached entries outside the window are carried forward
// untouched, so no UID is ever lost from the merge. Messages deleted remotely
// outside the window stay cached until a folder clear, a known tradeoff.
func (s *Synchronizer) reconcileWindow(ctx context.Context, client email.Client, account, key, server string, total, window int) error {
	start := total - window + 1
	if start < 1 {
		start = 1
	}

	fetched, err := client.FetchRange(ctx, server, uint32(start), uint32(total))
	if err != nil {
		return fmt.Errorf("failed to fetch refresh window: %w", err)
	}

	cachedUIDs := s.store.CachedUIDs(ctx, key, account)
	newCount := 0
	for i := range fetched {
		if _, ok := cachedUIDs[fetched[i].UID]; !ok {
			newCount++
		}
	}

	merged := make(map[uint32]types.Message, len(cachedUIDs)+len(fetched))
	for _, m := range s.store.GetAllMessages(ctx, key, account) {
		merged[m.UID] = m
	}
	for _, m := range fetched {
		merged[m.UID] = m
	}

	list := make([]types.Message, 0, len(merged))
	for _, m := range merged {
		list = append(list, m)
	}
	sortMessagesDesc(list)

	s.store.UpsertMessages(ctx, list, key, account)
	s.store.SetFolderMetadata(ctx, key, account, len(list), countUnread(list))
	s.emitNewMessages(account, key, newCount)

	s.logger.WithFields(logrus.Fields{
		"account": account,
		"folder":  key,
		"merged":  len(list),
		"new":     newCount,
	}).Debug("Reconciled refresh window")
	return nil
}
