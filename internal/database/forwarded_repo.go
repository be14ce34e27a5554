package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mixelka/emailchannel/pkg/models"
)

// ErrNotFound is returned when a record is not found
var ErrNotFound = errors.New("record not found")

// ErrAlreadyExists is returned when trying to insert a duplicate record
var ErrAlreadyExists = errors.New("record already exists")

// CreateForwarded records an email relayed into a Telegram chat
func (db *DB) CreateForwarded(ctx context.Context, msg *models.ForwardedMessage) error {
	query := `
		INSERT INTO forwarded_messages (account_id, thread_id, sender, subject, message_id, chat_id, topic_id, telegram_msg_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now().UTC()
	result, err := db.ExecContext(ctx, query,
		msg.AccountID,
		msg.ThreadID,
		msg.Sender,
		msg.Subject,
		msg.MessageID,
		msg.ChatID,
		msg.TopicID,
		msg.TelegramMsgID,
		now,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to create forwarded message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	msg.ID = id
	msg.CreatedAt = now
	return nil
}

// GetForwardedByTelegramMsgID returns the email behind a Telegram message
func (db *DB) GetForwardedByTelegramMsgID(ctx context.Context, chatID int64, tgMsgID int) (*models.ForwardedMessage, error) {
	var msg models.ForwardedMessage
	query := `SELECT * FROM forwarded_messages WHERE chat_id = ? AND telegram_msg_id = ?`
	err := db.GetContext(ctx, &msg, query, chatID, tgMsgID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get forwarded message: %w", err)
	}
	return &msg, nil
}

// GetLatestForwardedByThread returns the newest relayed email of a thread
func (db *DB) GetLatestForwardedByThread(ctx context.Context, accountID, threadID string) (*models.ForwardedMessage, error) {
	var msg models.ForwardedMessage
	query := `
		SELECT * FROM forwarded_messages
		WHERE account_id = ? AND thread_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`
	err := db.GetContext(ctx, &msg, query, accountID, threadID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get forwarded message: %w", err)
	}
	return &msg, nil
}

// DeleteForwardedBefore removes records older than t and returns how many
// were deleted
func (db *DB) DeleteForwardedBefore(ctx context.Context, t time.Time) (int64, error) {
	result, err := db.ExecContext(ctx, `DELETE FROM forwarded_messages WHERE created_at < ?`, t.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete forwarded messages: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}
