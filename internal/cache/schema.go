package cache

// Schema contains SQL schema definitions for the cache.
//
// Dates are stored as Unix seconds so that date ordering never depends on
// string formats. folder_id and account_id are the canonical folder key and
// the account name; messages are unique per (uid, folder_id, account_id).
const Schema = `
-- Messages table
CREATE TABLE IF NOT EXISTS messages (
    uid INTEGER NOT NULL,
    folder_id TEXT NOT NULL,
    account_id TEXT NOT NULL,
    subject TEXT,
    from_name TEXT,
    from_address TEXT,
    date INTEGER NOT NULL,
    flags TEXT,
    preview TEXT,
    has_attachments INTEGER NOT NULL DEFAULT 0,
    thread_count INTEGER NOT NULL DEFAULT 0,
    last_fetched INTEGER NOT NULL,
    UNIQUE(uid, folder_id, account_id)
);

-- Folders table
CREATE TABLE IF NOT EXISTS folders (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    account_id TEXT NOT NULL,
    name TEXT NOT NULL,
    last_sync INTEGER,
    total_count INTEGER NOT NULL DEFAULT 0,
    unread_count INTEGER NOT NULL DEFAULT 0,
    UNIQUE(account_id, name)
);

-- Attachment descriptors; content bytes are never cached
CREATE TABLE IF NOT EXISTS attachments (
    message_uid INTEGER NOT NULL,
    folder_id TEXT NOT NULL,
    account_id TEXT NOT NULL,
    filename TEXT,
    content_type TEXT,
    size INTEGER NOT NULL DEFAULT 0,
    content_id TEXT
);

-- Create indexes for faster queries
CREATE INDEX IF NOT EXISTS idx_messages_folder_account_date ON messages(folder_id, account_id, date DESC);
CREATE INDEX IF NOT EXISTS idx_attachments_message ON attachments(message_uid, folder_id, account_id);
CREATE INDEX IF NOT EXISTS idx_folders_account ON folders(account_id);
`
