package database

// migrations are applied in order; never edit a released entry
var migrations = []string{
	`CREATE TABLE forwarded_messages (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id      TEXT    NOT NULL,
		thread_id       TEXT    NOT NULL,
		sender          TEXT    NOT NULL,
		subject         TEXT,
		message_id      TEXT,
		chat_id         INTEGER NOT NULL,
		topic_id        INTEGER NOT NULL DEFAULT 0,
		telegram_msg_id INTEGER NOT NULL,
		created_at      DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (chat_id, telegram_msg_id)
	);
	CREATE INDEX idx_forwarded_thread  ON forwarded_messages (account_id, thread_id);
	CREATE INDEX idx_forwarded_created ON forwarded_messages (created_at);`,
}
