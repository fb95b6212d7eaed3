package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/ashureev/legalchat/internal/domain"
	"github.com/ashureev/legalchat/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL mode lets the stream of reads proceed while a turn is being written.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		conversation_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, id);
	CREATE INDEX IF NOT EXISTS idx_messages_created ON messages(created_at);

	CREATE TABLE IF NOT EXISTS turns (
		turn_id TEXT PRIMARY KEY,
		prompt TEXT NOT NULL,
		response TEXT NOT NULL,
		word_count INTEGER NOT NULL DEFAULT 0,
		actions_json TEXT NOT NULL DEFAULT '[]',
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_turns_created ON turns(created_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// AppendMessages stores messages in a single transaction.
func (s *SQLiteStore) AppendMessages(ctx context.Context, conversationID string, msgs ...domain.StoredMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	return shared.RetryOnConflict(ctx, shared.DefaultRetryPolicy, "append messages", func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO messages (conversation_id, role, content, created_at) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		now := time.Now()
		for _, m := range msgs {
			created := m.CreatedAt
			if created.IsZero() {
				created = now
			}
			if _, err := stmt.ExecContext(ctx, conversationID, m.Role, m.Content, created.UnixNano()); err != nil {
				return fmt.Errorf("insert message: %w", err)
			}
		}
		return tx.Commit()
	})
}

// ListMessages returns the most recent messages in chronological order.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID string, limit int) ([]domain.StoredMessage, error) {
	query := `SELECT role, content, created_at FROM messages WHERE conversation_id = ? ORDER BY id DESC`
	args := []any{conversationID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var msgs []domain.StoredMessage
	for rows.Next() {
		var m domain.StoredMessage
		var created int64
		if err := rows.Scan(&m.Role, &m.Content, &created); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		m.CreatedAt = time.Unix(0, created)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	slices.Reverse(msgs)
	return msgs, nil
}

// ClearMessages deletes a conversation's history.
func (s *SQLiteStore) ClearMessages(ctx context.Context, conversationID string) (int64, error) {
	var deleted int64
	err := shared.RetryOnConflict(ctx, shared.DefaultRetryPolicy, "clear messages", func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, conversationID)
		if err != nil {
			return fmt.Errorf("delete messages: %w", err)
		}
		deleted, err = res.RowsAffected()
		return err
	})
	return deleted, err
}

// RecordTurn stores the audit record of a finished turn.
func (s *SQLiteStore) RecordTurn(ctx context.Context, turn *domain.TurnRecord) error {
	created := turn.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	actions := turn.ActionsJSON
	if actions == "" {
		actions = "[]"
	}
	return shared.RetryOnConflict(ctx, shared.DefaultRetryPolicy, "record turn", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO turns (turn_id, prompt, response, word_count, actions_json, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(turn_id) DO UPDATE SET
				response = excluded.response,
				actions_json = excluded.actions_json`,
			turn.TurnID, turn.Prompt, turn.Response, turn.WordCount, actions, created.UnixNano())
		if err != nil {
			return fmt.Errorf("insert turn: %w", err)
		}
		return nil
	})
}

// GetTurn loads a turn audit record; it returns nil when the turn is unknown.
func (s *SQLiteStore) GetTurn(ctx context.Context, turnID string) (*domain.TurnRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT turn_id, prompt, response, word_count, actions_json, created_at FROM turns WHERE turn_id = ?`, turnID)

	var rec domain.TurnRecord
	var created int64
	err := row.Scan(&rec.TurnID, &rec.Prompt, &rec.Response, &rec.WordCount, &rec.ActionsJSON, &created)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan turn row: %w", err)
	}
	rec.CreatedAt = time.Unix(0, created)
	return &rec, nil
}

// PruneMessages deletes messages older than the given age.
func (s *SQLiteStore) PruneMessages(ctx context.Context, olderThan time.Duration) (int64, error) {
	threshold := time.Now().Add(-olderThan).UnixNano()
	var deleted int64
	err := shared.RetryOnConflict(ctx, shared.DefaultRetryPolicy, "prune messages", func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE created_at < ?`, threshold)
		if err != nil {
			return fmt.Errorf("prune messages: %w", err)
		}
		deleted, err = res.RowsAffected()
		return err
	})
	return deleted, err
}
