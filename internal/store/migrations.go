package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS notifications (
	id                TEXT PRIMARY KEY,
	position          INTEGER NOT NULL,
	message           TEXT NOT NULL,
	sent_at           DATETIME NOT NULL,
	read              INTEGER NOT NULL DEFAULT 0 CHECK(read IN (0, 1)),
	notification_type TEXT NOT NULL DEFAULT 'info',
	priority          TEXT NOT NULL DEFAULT '',
	action_url        TEXT NOT NULL DEFAULT '',
	metadata          TEXT NOT NULL DEFAULT '',
	resolution        TEXT NOT NULL DEFAULT '',
	fetched_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_notifications_position ON notifications(position);
CREATE INDEX IF NOT EXISTS idx_notifications_read ON notifications(read);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE TABLE IF NOT EXISTS chat_messages (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	resolution_id TEXT NOT NULL,
	message       TEXT NOT NULL,
	author_id     TEXT NOT NULL DEFAULT '',
	author_name   TEXT NOT NULL DEFAULT '',
	sent_at       TEXT NOT NULL DEFAULT '',
	received_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_chat_messages_resolution
	ON chat_messages(resolution_id, id);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
