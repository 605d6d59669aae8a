package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps the message log in Postgres behind a pgx pool. The
// pool hands each write its own connection and transaction, which is how
// the "all writes serialized" requirement is met without a process-wide
// lock.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &PostgresStore{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS messages (
			id BIGSERIAL PRIMARY KEY,
			chat_id BIGINT NOT NULL,
			user_id BIGINT NOT NULL,
			username TEXT NOT NULL,
			message_text TEXT NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS idx_messages_chat_ts ON messages (chat_id, timestamp)`)
	return err
}

func (s *PostgresStore) Append(ctx context.Context, chatID, userID int64, username, text string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (chat_id, user_id, username, message_text)
		VALUES ($1, $2, $3, $4)`,
		chatID, userID, username, text,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *PostgresStore) LoadHistory(ctx context.Context, chatID int64) ([]StoredMessage, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, chat_id, user_id, username, message_text, timestamp
		FROM messages WHERE chat_id = $1 ORDER BY timestamp ASC, id ASC`,
		chatID,
	)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (s *PostgresStore) Recent(ctx context.Context, chatID int64, limit int) ([]StoredMessage, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, chat_id, user_id, username, message_text, timestamp
		FROM messages WHERE chat_id = $1 ORDER BY id DESC LIMIT $2`,
		chatID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

type pgxRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanMessages(rows pgxRows) ([]StoredMessage, error) {
	var msgs []StoredMessage
	for rows.Next() {
		var m StoredMessage
		if err := rows.Scan(&m.ID, &m.ChatID, &m.UserID, &m.Username, &m.Text, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return msgs, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}
