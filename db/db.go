package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sqlbuilder "github.com/huandu/go-sqlbuilder"
	log "github.com/sirupsen/logrus"
)

const queryTimeout = 10 * time.Second

// DB handles all database operations with a shared connection pool. It backs
// both the cursor store (settings table) and the subscriber registry.
type DB struct {
	db *sql.DB
}

// Open connects to PostgreSQL and verifies the connection.
func Open(databaseURL string) (*DB, error) {
	db, err := connection(databaseURL)
	if err != nil {
		return nil, err
	}
	return &DB{db: db}, nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

// Settings (cursor store)

// GetSetting returns the value stored under key and whether it was present.
func (db *DB) GetSetting(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("value").From("settings")
	sb.Where(sb.Equal("key", key))

	query, args := sb.Build()

	var value string
	err := db.db.QueryRowContext(ctx, query, args...).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get setting %q: %w", key, err)
	}
	return value, true, nil
}

// SetSetting upserts the value stored under key.
func (db *DB) SetSetting(ctx context.Context, key, value string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := db.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = $2`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set setting %q: %w", key, err)
	}
	return nil
}

// Subscribers

// AddSubscriber records a chat id. Adding an existing id is a no-op.
func (db *DB) AddSubscriber(ctx context.Context, chatID int64) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	log.WithFields(log.Fields{
		"chatId": chatID,
	}).Info("Adding subscriber")

	_, err := db.db.ExecContext(ctx, `
		INSERT INTO subscribers (chat_id) VALUES ($1)
		ON CONFLICT (chat_id) DO NOTHING`,
		chatID,
	)
	if err != nil {
		return fmt.Errorf("add subscriber: %w", err)
	}
	return nil
}

// RemoveSubscriber deletes a chat id. Removing an absent id is a no-op.
func (db *DB) RemoveSubscriber(ctx context.Context, chatID int64) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	log.WithFields(log.Fields{
		"chatId": chatID,
	}).Info("Removing subscriber")

	sb := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	sb.DeleteFrom("subscribers")
	sb.Where(sb.Equal("chat_id", chatID))

	query, args := sb.Build()
	if _, err := db.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("remove subscriber: %w", err)
	}
	return nil
}

// ListSubscribers returns every subscribed chat id.
func (db *DB) ListSubscribers(ctx context.Context) ([]int64, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("chat_id").From("subscribers")

	query, args := sb.Build()
	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}
	defer rows.Close()

	var chatIDs []int64
	for rows.Next() {
		var chatID int64
		if err := rows.Scan(&chatID); err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		chatIDs = append(chatIDs, chatID)
	}

	return chatIDs, rows.Err()
}
