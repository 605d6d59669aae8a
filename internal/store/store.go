// Package store is the persistent message log: an append-only record of
// every observed message per chat. Two backends implement it (Postgres and
// SQLite) plus a no-op used when the store is disabled by configuration.
package store

import (
	"context"
	"time"
)

// StoredMessage is one row of the messages relation. Rows are immutable
// once written; the timestamp is assigned by the database at write time.
type StoredMessage struct {
	ID        int64
	ChatID    int64
	UserID    int64
	Username  string
	Text      string
	Timestamp time.Time
}

// MessageLog is the durable log consumed by the relay pipeline.
//
// Append failures must never abort message handling: callers log and
// continue. LoadHistory returns rows for one chat in timestamp-ascending
// order and degrades to an empty slice on failure.
type MessageLog interface {
	Append(ctx context.Context, chatID, userID int64, username, text string) error
	LoadHistory(ctx context.Context, chatID int64) ([]StoredMessage, error)
	Recent(ctx context.Context, chatID int64, limit int) ([]StoredMessage, error)
	Ping(ctx context.Context) error
	Close()
}

// Disabled is the no-op backend selected by the NO_DB flag. Appends vanish
// and loads return nothing, so the bot runs with in-memory history only.
type Disabled struct{}

func (Disabled) Append(context.Context, int64, int64, string, string) error { return nil }

func (Disabled) LoadHistory(context.Context, int64) ([]StoredMessage, error) { return nil, nil }

func (Disabled) Recent(context.Context, int64, int) ([]StoredMessage, error) { return nil, nil }

func (Disabled) Ping(context.Context) error { return nil }

func (Disabled) Close() {}
