package models

import "time"

// ForwardedMessage links an email relayed into Telegram with its thread
type ForwardedMessage struct {
	ID            int64     `db:"id"`
	AccountID     string    `db:"account_id"`
	ThreadID      string    `db:"thread_id"`
	Sender        string    `db:"sender"`        // normalized email address
	Subject       string    `db:"subject"`
	MessageID     string    `db:"message_id"`    // Email Message-ID header
	ChatID        int64     `db:"chat_id"`
	TopicID       int       `db:"topic_id"`
	TelegramMsgID int       `db:"telegram_msg_id"`
	CreatedAt     time.Time `db:"created_at"`
}
