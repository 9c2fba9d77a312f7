package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/brandon/mailmirror/pkg/types"
)

// Store provides methods for storing and retrieving cached mailbox data.
//
// None of the methods return errors: cache failures are logged and treated as
// cache misses, so a user-facing operation is never aborted by the store.
// Every caller must tolerate empty results.
type Store struct {
	cache  *Cache
	logger *logrus.Logger
}

// NewStore creates a new store instance.
func NewStore(cache *Cache, logger *logrus.Logger) *Store {
	return &Store{
		cache:  cache,
		logger: logger,
	}
}

// Available reports whether the backing cache is usable.
func (s *Store) Available() bool {
	return s.cache.Available()
}

// GetMessagesPage returns one page of cached messages for a folder, ordered
// by date descending. It returns an empty slice when nothing is cached.
func (s *Store) GetMessagesPage(ctx context.Context, folder, account string, limit, offset int) []types.Message {
	if limit < 1 {
		return nil
	}
	if offset < 0 {
		offset = 0
	}
	return s.queryMessages(ctx, folder, account, limit, offset)
}

// GetAllMessages returns every cached message for a folder, ordered by date
// descending. Reconciliation uses it to carry forward entries outside the
// refreshed window.
func (s *Store) GetAllMessages(ctx context.Context, folder, account string) []types.Message {
	return s.queryMessages(ctx, folder, account, -1, 0)
}

// queryMessages runs the shared page query. A negative limit selects all rows.
func (s *Store) queryMessages(ctx context.Context, folder, account string, limit, offset int) []types.Message {
	if !s.Available() {
		return nil
	}

	query := `
		SELECT uid, subject, from_name, from_address, date, flags, preview, has_attachments, thread_count, last_fetched
		FROM messages
		WHERE folder_id = ? AND account_id = ?
		ORDER BY date DESC, uid DESC
		LIMIT ? OFFSET ?
	`
	rows, err := s.cache.DB().QueryContext(ctx, query, folder, account, limit, offset)
	if err != nil {
		s.logger.WithError(err).WithField("folder", folder).Warn("Failed to query cached messages")
		return nil
	}
	defer rows.Close()

	var messages []types.Message
	for rows.Next() {
		var msg types.Message
		var date, lastFetched int64
		var flagsJSON sql.NullString
		var hasAttachments int

		err := rows.Scan(
			&msg.UID,
			&msg.Subject,
			&msg.FromName,
			&msg.FromAddress,
			&date,
			&flagsJSON,
			&msg.Preview,
			&hasAttachments,
			&msg.ThreadCount,
			&lastFetched,
		)
		if err != nil {
			s.logger.WithError(err).Warn("Failed to scan cached message")
			return nil
		}

		msg.Folder = folder
		msg.Account = account
		msg.Date = time.Unix(date, 0).UTC()
		msg.LastFetched = time.Unix(lastFetched, 0).UTC()
		msg.HasAttachments = hasAttachments != 0
		if flagsJSON.Valid && flagsJSON.String != "" {
			if err := json.Unmarshal([]byte(flagsJSON.String), &msg.Flags); err != nil {
				s.logger.WithError(err).WithField("uid", msg.UID).Debug("Failed to decode cached flags")
			}
		}

		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		s.logger.WithError(err).Warn("Failed to read cached messages")
		return nil
	}

	s.attachDescriptors(ctx, folder, account, messages)
	return messages
}

// attachDescriptors loads attachment rows for the given messages and joins
// them in place.
func (s *Store) attachDescriptors(ctx context.Context, folder, account string, messages []types.Message) {
	byUID := make(map[uint32]int, len(messages))
	any := false
	for i := range messages {
		if messages[i].HasAttachments {
			byUID[messages[i].UID] = i
			any = true
		}
	}
	if !any {
		return
	}

	query := `
		SELECT message_uid, filename, content_type, size, content_id
		FROM attachments
		WHERE folder_id = ? AND account_id = ?
	`
	rows, err := s.cache.DB().QueryContext(ctx, query, folder, account)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to query cached attachments")
		return
	}
	defer rows.Close()

	for rows.Next() {
		var uid uint32
		var att types.Attachment
		if err := rows.Scan(&uid, &att.Filename, &att.ContentType, &att.Size, &att.ContentID); err != nil {
			s.logger.WithError(err).Warn("Failed to scan cached attachment")
			return
		}
		if i, ok := byUID[uid]; ok {
			messages[i].Attachments = append(messages[i].Attachments, att)
		}
	}
	if err := rows.Err(); err != nil {
		s.logger.WithError(err).Warn("Failed to read cached attachments")
	}
}

// UpsertMessages inserts or replaces a batch of messages for a folder in one
// transaction. Each message's attachment rows are deleted and reinserted so a
// re-fetch never leaves stale or duplicate descriptors behind.
func (s *Store) UpsertMessages(ctx context.Context, messages []types.Message, folder, account string) {
	if !s.Available() || len(messages) == 0 {
		return
	}

	tx, err := s.cache.DB().BeginTx(ctx, nil)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to begin cache transaction")
		return
	}
	defer tx.Rollback()

	const insertMessage = `
		INSERT OR REPLACE INTO messages
		(uid, folder_id, account_id, subject, from_name, from_address, date, flags, preview, has_attachments, thread_count, last_fetched)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	const deleteAttachments = `
		DELETE FROM attachments WHERE message_uid = ? AND folder_id = ? AND account_id = ?
	`
	const insertAttachment = `
		INSERT INTO attachments (message_uid, folder_id, account_id, filename, content_type, size, content_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now()
	for i := range messages {
		msg := &messages[i]

		flagsJSON, err := json.Marshal(msg.Flags)
		if err != nil {
			s.logger.WithError(err).WithField("uid", msg.UID).Warn("Failed to encode flags")
			return
		}

		lastFetched := msg.LastFetched
		if lastFetched.IsZero() {
			lastFetched = now
		}

		hasAttachments := 0
		if msg.HasAttachments || len(msg.Attachments) > 0 {
			hasAttachments = 1
		}

		_, err = tx.ExecContext(ctx, insertMessage,
			msg.UID,
			folder,
			account,
			msg.Subject,
			msg.FromName,
			msg.FromAddress,
			msg.Date.Unix(),
			string(flagsJSON),
			msg.Preview,
			hasAttachments,
			msg.ThreadCount,
			lastFetched.Unix(),
		)
		if err != nil {
			s.logger.WithError(err).WithField("uid", msg.UID).Warn("Failed to cache message")
			return
		}

		if _, err := tx.ExecContext(ctx, deleteAttachments, msg.UID, folder, account); err != nil {
			s.logger.WithError(err).WithField("uid", msg.UID).Warn("Failed to clear attachment rows")
			return
		}
		for _, att := range msg.Attachments {
			_, err := tx.ExecContext(ctx, insertAttachment,
				msg.UID, folder, account,
				att.Filename, att.ContentType, att.Size, att.ContentID,
			)
			if err != nil {
				s.logger.WithError(err).WithField("uid", msg.UID).Warn("Failed to cache attachment")
				return
			}
		}
	}

	if err := tx.Commit(); err != nil {
		s.logger.WithError(err).Warn("Failed to commit cache transaction")
	}
}

// UpdateFlags overwrites the flag set of one cached message. It is used after
// a state-changing remote operation to avoid a full refetch.
func (s *Store) UpdateFlags(ctx context.Context, uid uint32, folder, account string, flags []string) {
	if !s.Available() {
		return
	}

	flagsJSON, err := json.Marshal(flags)
	if err != nil {
		s.logger.WithError(err).WithField("uid", uid).Warn("Failed to encode flags")
		return
	}

	_, err = s.cache.DB().ExecContext(ctx,
		"UPDATE messages SET flags = ? WHERE uid = ? AND folder_id = ? AND account_id = ?",
		string(flagsJSON), uid, folder, account,
	)
	if err != nil {
		s.logger.WithError(err).WithField("uid", uid).Warn("Failed to update cached flags")
	}
}

// GetMessageFlags returns the cached flag set of one message and whether the
// message is cached.
func (s *Store) GetMessageFlags(ctx context.Context, uid uint32, folder, account string) ([]string, bool) {
	if !s.Available() {
		return nil, false
	}

	var flagsJSON sql.NullString
	err := s.cache.DB().QueryRowContext(ctx,
		"SELECT flags FROM messages WHERE uid = ? AND folder_id = ? AND account_id = ?",
		uid, folder, account,
	).Scan(&flagsJSON)
	if err != nil {
		if err != sql.ErrNoRows {
			s.logger.WithError(err).WithField("uid", uid).Warn("Failed to query cached flags")
		}
		return nil, false
	}

	var flags []string
	if flagsJSON.Valid && flagsJSON.String != "" {
		if err := json.Unmarshal([]byte(flagsJSON.String), &flags); err != nil {
			s.logger.WithError(err).WithField("uid", uid).Debug("Failed to decode cached flags")
			return nil, false
		}
	}
	return flags, true
}

// GetFolderInfo returns the cached metadata for a folder and whether any
// exists. The metadata may lag behind remote truth between refreshes.
func (s *Store) GetFolderInfo(ctx context.Context, folder, account string) (types.FolderInfo, bool) {
	info := types.FolderInfo{Folder: folder, Account: account}
	if !s.Available() {
		return info, false
	}

	var lastSync sql.NullInt64
	err := s.cache.DB().QueryRowContext(ctx,
		"SELECT last_sync, total_count, unread_count FROM folders WHERE account_id = ? AND name = ?",
		account, folder,
	).Scan(&lastSync, &info.Total, &info.Unread)
	if err != nil {
		if err != sql.ErrNoRows {
			s.logger.WithError(err).WithField("folder", folder).Warn("Failed to query folder metadata")
		}
		return info, false
	}

	if lastSync.Valid {
		info.LastSync = time.Unix(lastSync.Int64, 0).UTC()
	}
	return info, true
}

// GetLastSyncTime returns the time the folder was last synchronized, or the
// zero time when the folder has never been synced.
func (s *Store) GetLastSyncTime(ctx context.Context, folder, account string) time.Time {
	info, ok := s.GetFolderInfo(ctx, folder, account)
	if !ok {
		return time.Time{}
	}
	return info.LastSync
}

// SetFolderMetadata upserts the folder metadata row and stamps last_sync.
func (s *Store) SetFolderMetadata(ctx context.Context, folder, account string, total, unread int) {
	if !s.Available() {
		return
	}

	query := `
		INSERT INTO folders (account_id, name, last_sync, total_count, unread_count)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(account_id, name) DO UPDATE SET
			last_sync = excluded.last_sync,
			total_count = excluded.total_count,
			unread_count = excluded.unread_count
	`
	_, err := s.cache.DB().ExecContext(ctx, query, account, folder, time.Now().Unix(), total, unread)
	if err != nil {
		s.logger.WithError(err).WithField("folder", folder).Warn("Failed to update folder metadata")
	}
}

// CountMessages returns the number of cached messages for a folder.
func (s *Store) CountMessages(ctx context.Context, folder, account string) int {
	if !s.Available() {
		return 0
	}

	var count int
	err := s.cache.DB().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM messages WHERE folder_id = ? AND account_id = ?",
		folder, account,
	).Scan(&count)
	if err != nil {
		s.logger.WithError(err).WithField("folder", folder).Warn("Failed to count cached messages")
		return 0
	}
	return count
}

// CachedUIDs returns the set of message UIDs cached for a folder.
func (s *Store) CachedUIDs(ctx context.Context, folder, account string) map[uint32]struct{} {
	if !s.Available() {
		return nil
	}

	rows, err := s.cache.DB().QueryContext(ctx,
		"SELECT uid FROM messages WHERE folder_id = ? AND account_id = ?",
		folder, account,
	)
	if err != nil {
		s.logger.WithError(err).WithField("folder", folder).Warn("Failed to query cached UIDs")
		return nil
	}
	defer rows.Close()

	uids := make(map[uint32]struct{})
	for rows.Next() {
		var uid uint32
		if err := rows.Scan(&uid); err != nil {
			s.logger.WithError(err).Warn("Failed to scan cached UID")
			return nil
		}
		uids[uid] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		s.logger.WithError(err).Warn("Failed to read cached UIDs")
		return nil
	}
	return uids
}

// ClearFolder removes all cached rows for one folder.
func (s *Store) ClearFolder(ctx context.Context, folder, account string) {
	if !s.Available() {
		return
	}

	tx, err := s.cache.DB().BeginTx(ctx, nil)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to begin cache transaction")
		return
	}
	defer tx.Rollback()

	statements := []string{
		"DELETE FROM attachments WHERE folder_id = ? AND account_id = ?",
		"DELETE FROM messages WHERE folder_id = ? AND account_id = ?",
		"DELETE FROM folders WHERE name = ? AND account_id = ?",
	}
	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt, folder, account); err != nil {
			s.logger.WithError(err).WithField("folder", folder).Warn("Failed to clear folder cache")
			return
		}
	}

	if err := tx.Commit(); err != nil {
		s.logger.WithError(err).Warn("Failed to commit cache transaction")
	}
}

// ClearAll removes every cached row.
func (s *Store) ClearAll(ctx context.Context) {
	if !s.Available() {
		return
	}

	for _, stmt := range []string{
		"DELETE FROM attachments",
		"DELETE FROM messages",
		"DELETE FROM folders",
	} {
		if _, err := s.cache.DB().ExecContext(ctx, stmt); err != nil {
			s.logger.WithError(err).Warn("Failed to clear cache")
			return
		}
	}
}
