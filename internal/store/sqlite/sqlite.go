package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vovakirdan/chatdispatch/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS channels (
	key           TEXT PRIMARY KEY,
	kind          TEXT NOT NULL,
	name          TEXT NOT NULL,
	last_prune_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	channel_key TEXT NOT NULL,
	author      TEXT NOT NULL,
	recipient   TEXT NOT NULL DEFAULT '',
	body        TEXT NOT NULL DEFAULT '',
	file_url    TEXT,
	file_name   TEXT,
	file_size   INTEGER,
	created_at  INTEGER NOT NULL,
	FOREIGN KEY (channel_key) REFERENCES channels(key)
);

CREATE INDEX IF NOT EXISTS idx_messages_channel ON messages(channel_key, id);
`

// SQLiteStore implements store.HistoryStore on SQLite.
// With the default ":memory:" path history stays process-local.
type SQLiteStore struct {
	db     *sql.DB
	policy store.Policy
	now    func() time.Time
}

// Option customizes a SQLiteStore.
type Option func(*SQLiteStore)

// WithClock sets the clock used to stamp a channel's first prune time.
func WithClock(now func() time.Time) Option {
	return func(s *SQLiteStore) {
		if now != nil {
			s.now = now
		}
	}
}

// New opens the database at dbPath and applies the schema.
func New(dbPath string, policy store.Policy, opts ...Option) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, policy, Migrate, opts...)
}

// NewWithSetup opens the database and runs a setup function before first use.
func NewWithSetup(dbPath string, policy store.Policy, setup func(*sql.DB) error, opts ...Option) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// A single connection keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &SQLiteStore{db: db, policy: policy, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Migrate creates the history tables.
func Migrate(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Append inserts the message and enforces the eager cap for its channel class.
func (s *SQLiteStore) Append(ctx context.Context, ch store.Channel, msg store.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO channels (key, kind, name, last_prune_at)
		VALUES (?, ?, ?, ?)
	`, ch.Key(), string(ch.Kind), ch.Name, s.now().UnixNano()); err != nil {
		return fmt.Errorf("ensure channel: %w", err)
	}

	var fileURL, fileName sql.NullString
	var fileSize sql.NullInt64
	if msg.File != nil {
		fileURL = sql.NullString{String: msg.File.URL, Valid: true}
		fileName = sql.NullString{String: msg.File.OriginalName, Valid: true}
		fileSize = sql.NullInt64{Int64: msg.File.Size, Valid: true}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO messages (channel_key, author, recipient, body, file_url, file_name, file_size, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, ch.Key(), msg.Author, msg.Recipient, msg.Text, fileURL, fileName, fileSize, msg.CreatedAt.UnixNano()); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	if limit := s.policy.CapFor(ch.Kind); limit > 0 {
		if _, err := trimChannel(ctx, tx, ch.Key(), limit); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Recent returns up to ClampLimit(limit) messages of the channel, oldest first.
func (s *SQLiteStore) Recent(ctx context.Context, ch store.Channel, limit int) ([]store.Message, error) {
	query := `
		SELECT author, recipient, body, file_url, file_name, file_size, created_at
		FROM (
			SELECT id, author, recipient, body, file_url, file_name, file_size, created_at
			FROM messages
			WHERE channel_key = ?
			ORDER BY id DESC
			LIMIT ?
		)
		ORDER BY id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, ch.Key(), store.ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages := make([]store.Message, 0)
	for rows.Next() {
		var (
			msg      store.Message
			fileURL  sql.NullString
			fileName sql.NullString
			fileSize sql.NullInt64
			created  int64
		)
		if err := rows.Scan(&msg.Author, &msg.Recipient, &msg.Text, &fileURL, &fileName, &fileSize, &created); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Channel = ch
		msg.CreatedAt = time.Unix(0, created).UTC()
		if fileURL.Valid {
			msg.File = &store.FileRef{URL: fileURL.String, OriginalName: fileName.String, Size: fileSize.Int64}
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

// Prune drops expired messages and trims to MaxMessages for channels whose
// last prune is older than the retention window.
func (s *SQLiteStore) Prune(ctx context.Context, now time.Time) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	threshold := now.Add(-s.policy.Retention).UnixNano()
	rows, err := tx.QueryContext(ctx, `SELECT key FROM channels WHERE last_prune_at < ?`, threshold)
	if err != nil {
		return 0, fmt.Errorf("query channels: %w", err)
	}
	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan channel: %w", err)
		}
		keys = append(keys, key)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate channels: %w", err)
	}

	removed := 0
	for _, key := range keys {
		res, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE channel_key = ? AND created_at < ?`, key, threshold)
		if err != nil {
			return 0, fmt.Errorf("delete expired: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("rows affected: %w", err)
		}
		removed += int(n)

		if s.policy.MaxMessages > 0 {
			trimmed, err := trimChannel(ctx, tx, key, s.policy.MaxMessages)
			if err != nil {
				return 0, err
			}
			removed += trimmed
		}

		if _, err := tx.ExecContext(ctx, `UPDATE channels SET last_prune_at = ? WHERE key = ?`, now.UnixNano(), key); err != nil {
			return 0, fmt.Errorf("update channel: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return removed, nil
}

func trimChannel(ctx context.Context, tx *sql.Tx, key string, limit int) (int, error) {
	res, err := tx.ExecContext(ctx, `
		DELETE FROM messages
		WHERE channel_key = ? AND id NOT IN (
			SELECT id FROM messages WHERE channel_key = ? ORDER BY id DESC LIMIT ?
		)
	`, key, key, limit)
	if err != nil {
		return 0, fmt.Errorf("trim channel: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}
