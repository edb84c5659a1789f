// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store provides durable message persistence for pagemark.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/pagemark/internal/model"
)

// schema creates the message log table. seq imposes the total append order;
// per-conversation order is seq order filtered by conversation_key.
const schema = `
CREATE TABLE IF NOT EXISTS messages (
	seq               INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_key  INTEGER NOT NULL,
	id                TEXT    NOT NULL,
	role              TEXT    NOT NULL,
	text              TEXT    NOT NULL,
	timestamp         INTEGER NOT NULL,
	selected_text     TEXT    NOT NULL DEFAULT '',
	model_name        TEXT    NOT NULL DEFAULT '',
	reasoning_summary TEXT    NOT NULL DEFAULT '',
	reasoning_details TEXT    NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_messages_key ON messages(conversation_key, seq);
`

// =============================================================================
// SQLITE STORE
// =============================================================================

// SQLiteStore is the MessageStore implementation backed by a local SQLite
// database. An in-process database keeps persistence dependency-free at
// runtime while surviving restarts.
type SQLiteStore struct {
	db     *sql.DB
	closed atomic.Bool
}

// NewSQLiteStore opens (creating if necessary) the message database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database. Operations after Close return
// ErrClosed. Idempotent.
func (s *SQLiteStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

// =============================================================================
// APPEND / LOAD
// =============================================================================

// Append adds a message to the tail of the conversation's log.
func (s *SQLiteStore) Append(ctx context.Context, key model.ConversationKey, msg *model.Message) error {
	if s.closed.Load() {
		return ErrClosed
	}
	summary, details := msg.DisplayReasoning()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages
			(conversation_key, id, role, text, timestamp, selected_text, model_name, reasoning_summary, reasoning_details)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		int64(key), msg.ID, msg.Role.String(), msg.DisplayText(), msg.Timestamp,
		msg.SelectedTextContext, msg.ModelName, summary, details,
	)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

// Load returns the most recent limit messages for the key in original order.
// A key with no messages returns ErrConversationNotFound.
func (s *SQLiteStore) Load(ctx context.Context, key model.ConversationKey, limit int) ([]*model.Message, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, text, timestamp, selected_text, model_name, reasoning_summary, reasoning_details
		FROM (
			SELECT * FROM messages WHERE conversation_key = ? ORDER BY seq DESC LIMIT ?
		) ORDER BY seq ASC`,
		int64(key), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer rows.Close()

	var msgs []*model.Message
	for rows.Next() {
		var (
			m    model.Message
			role string
		)
		if err := rows.Scan(&m.ID, &role, &m.Text, &m.Timestamp,
			&m.SelectedTextContext, &m.ModelName, &m.ReasoningSummary, &m.ReasoningDetails); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Role = model.Role(role)
		msgs = append(msgs, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}
	if len(msgs) == 0 {
		return nil, ErrConversationNotFound
	}
	return msgs, nil
}

// =============================================================================
// PRUNE / CLEAR
// =============================================================================

// Prune drops the oldest messages beyond limit for the key.
func (s *SQLiteStore) Prune(ctx context.Context, key model.ConversationKey, limit int) error {
	if s.closed.Load() {
		return ErrClosed
	}
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM messages
		WHERE conversation_key = ?
		  AND seq NOT IN (
			SELECT seq FROM messages WHERE conversation_key = ? ORDER BY seq DESC LIMIT ?
		  )`,
		int64(key), int64(key), limit,
	)
	if err != nil {
		return fmt.Errorf("failed to prune messages: %w", err)
	}
	return nil
}

// Clear removes the conversation's entire log.
func (s *SQLiteStore) Clear(ctx context.Context, key model.ConversationKey) error {
	if s.closed.Load() {
		return ErrClosed
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE conversation_key = ?`, int64(key))
	if err != nil {
		return fmt.Errorf("failed to clear conversation: %w", err)
	}
	return nil
}
