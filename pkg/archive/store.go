// Package archive persists conversation transcripts in a local SQLite
// database so past sessions survive console restarts. The remote service
// keeps its own authoritative history; the archive is the console's local
// record, including messages from turns that never reached the service.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/invodesk/assist/pkg/core/convo"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id          TEXT PRIMARY KEY,
	session_id  TEXT NOT NULL DEFAULT '',
	document_id TEXT NOT NULL DEFAULT '',
	role        TEXT NOT NULL,
	content     TEXT NOT NULL,
	sources     TEXT NOT NULL DEFAULT '[]',
	tool_used   TEXT NOT NULL DEFAULT '',
	created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at);
CREATE INDEX IF NOT EXISTS idx_messages_document ON messages(document_id, created_at);
`

// Store is a local transcript archive.
type Store struct {
	db *sql.DB
}

// Open opens (and if needed creates) the archive at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("archive ping failed: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Append records one transcript message. sessionID may be empty while the
// conversation has not adopted an identity yet; documentID is empty for
// global-scope conversations.
func (s *Store) Append(ctx context.Context, sessionID, documentID string, msg convo.Message) error {
	sources, err := json.Marshal(msg.Sources)
	if err != nil {
		return fmt.Errorf("marshal sources: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO messages (id, session_id, document_id, role, content, sources, tool_used, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, sessionID, documentID, string(msg.Role), msg.Content,
		string(sources), msg.ToolUsed, msg.Timestamp.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// Session returns all archived messages for one session, oldest first.
func (s *Store) Session(ctx context.Context, sessionID string) ([]convo.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, role, content, sources, tool_used, created_at
		 FROM messages WHERE session_id = ? ORDER BY created_at, rowid`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// Recent returns the latest n archived messages across all sessions,
// oldest first.
func (s *Store) Recent(ctx context.Context, n int) ([]convo.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, role, content, sources, tool_used, created_at FROM (
		     SELECT id, role, content, sources, tool_used, created_at, rowid
		     FROM messages ORDER BY created_at DESC, rowid DESC LIMIT ?
		 ) ORDER BY created_at, rowid`,
		n)
	if err != nil {
		return nil, fmt.Errorf("query recent: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func scanMessages(rows *sql.Rows) ([]convo.Message, error) {
	var out []convo.Message
	for rows.Next() {
		var (
			msg       convo.Message
			role      string
			sources   string
			createdAt string
		)
		if err := rows.Scan(&msg.ID, &role, &msg.Content, &sources, &msg.ToolUsed, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Role = convo.Role(role)
		if err := json.Unmarshal([]byte(sources), &msg.Sources); err != nil {
			return nil, fmt.Errorf("decode sources: %w", err)
		}
		ts, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse timestamp: %w", err)
		}
		msg.Timestamp = ts
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return out, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
