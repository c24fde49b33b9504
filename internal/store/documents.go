package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

const documentSchema = `
CREATE TABLE IF NOT EXISTS doc_chunks (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	file_name  TEXT NOT NULL,
	chunk_text TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_doc_chunks_file ON doc_chunks(file_name);

CREATE TABLE IF NOT EXISTS messages (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	role       TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
	content    TEXT NOT NULL,
	created_at TEXT NOT NULL
);
`

// DocumentStore persists chunk text and chat messages in SQLite. Its lifecycle
// is independent of the vector index.
type DocumentStore struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// OpenDocumentStore opens (creating if needed) the database at path.
// An empty path opens an in-memory database.
func OpenDocumentStore(path string) (*DocumentStore, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		if err := validateSQLiteIntegrity(path); err != nil {
			return nil, fmt.Errorf("document store %s is corrupt: %w", path, err)
		}
		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection serializes writers and keeps :memory: alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// modernc.org/sqlite may ignore DSN params, so set pragmas explicitly
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(documentSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &DocumentStore{db: db, path: path, now: time.Now}, nil
}

// validateSQLiteIntegrity runs PRAGMA integrity_check on an existing file.
func validateSQLiteIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer func() { _ = db.Close() }()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}
	return nil
}

func (s *DocumentStore) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

func parseTimestamp(v string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

// AddChunk stores one chunk and returns its id.
func (s *DocumentStore) AddChunk(ctx context.Context, fileName, text string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO doc_chunks (file_name, chunk_text, created_at) VALUES (?, ?, ?)`,
		fileName, text, s.timestamp())
	if err != nil {
		return 0, fmt.Errorf("failed to insert chunk: %w", err)
	}
	return res.LastInsertId()
}

// AddChunks stores texts for fileName in one committed transaction and
// returns their ids in order. Ids are never reused, even after DeleteChunks.
func (s *DocumentStore) AddChunks(ctx context.Context, fileName string, texts []string) (ids []int64, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO doc_chunks (file_name, chunk_text, created_at) VALUES (?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	created := s.timestamp()
	ids = make([]int64, 0, len(texts))
	for _, text := range texts {
		res, err := stmt.ExecContext(ctx, fileName, text, created)
		if err != nil {
			return nil, fmt.Errorf("failed to insert chunk: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit chunks: %w", err)
	}
	return ids, nil
}

// DeleteChunks removes the chunk rows with the given ids and returns how many
// were deleted.
func (s *DocumentStore) DeleteChunks(ctx context.Context, ids []int64) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM doc_chunks WHERE id = ?`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare delete: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	var deleted int64
	for _, id := range ids {
		res, err := stmt.ExecContext(ctx, id)
		if err != nil {
			return 0, fmt.Errorf("failed to delete chunk %d: %w", id, err)
		}
		n, _ := res.RowsAffected()
		deleted += n
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit chunk deletion: %w", err)
	}
	return deleted, nil
}

// GetChunk returns the chunk with id, or ErrNotFound.
func (s *DocumentStore) GetChunk(ctx context.Context, id int64) (*Chunk, error) {
	var c Chunk
	var created string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, file_name, chunk_text, created_at FROM doc_chunks WHERE id = ?`, id).
		Scan(&c.ID, &c.FileName, &c.Text, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chunk %d: %w", id, err)
	}
	c.CreatedAt = parseTimestamp(created)
	return &c, nil
}

// ChunkRefs returns the id and file name of every chunk, ids ascending.
func (s *DocumentStore) ChunkRefs(ctx context.Context) ([]ChunkRef, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, file_name FROM doc_chunks ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var refs []ChunkRef
	for rows.Next() {
		var ref ChunkRef
		if err := rows.Scan(&ref.ChunkID, &ref.FileName); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// AddMessage stores a chat message.
func (s *DocumentStore) AddMessage(ctx context.Context, role Role, content string) (*Message, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("invalid message role %q", role)
	}
	created := s.now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (role, content, created_at) VALUES (?, ?, ?)`,
		string(role), content, created.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &Message{ID: id, Role: role, Content: content, CreatedAt: created}, nil
}

// ListMessages returns every message in insertion order.
func (s *DocumentStore) ListMessages(ctx context.Context) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, role, content, created_at FROM messages ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	messages := []Message{}
	for rows.Next() {
		var m Message
		var role, created string
		if err := rows.Scan(&m.ID, &role, &m.Content, &created); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Role = Role(role)
		m.CreatedAt = parseTimestamp(created)
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// ClearMessages deletes every message and returns how many were removed.
// Chunks and the vector index are untouched.
func (s *DocumentStore) ClearMessages(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear messages: %w", err)
	}
	return res.RowsAffected()
}

// ListFiles summarises stored chunks per file name, oldest upload first.
func (s *DocumentStore) ListFiles(ctx context.Context) ([]FileInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT file_name, COUNT(*), MIN(created_at), MAX(created_at)
		FROM doc_chunks
		GROUP BY file_name
		ORDER BY MIN(id) ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	defer func() { _ = rows.Close() }()

	files := []FileInfo{}
	for rows.Next() {
		var f FileInfo
		var first, last string
		if err := rows.Scan(&f.FileName, &f.Chunks, &first, &last); err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		f.FirstIngested = parseTimestamp(first)
		f.LastIngested = parseTimestamp(last)
		files = append(files, f)
	}
	return files, rows.Err()
}

// Stats counts files, chunks and messages.
func (s *DocumentStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(DISTINCT file_name) FROM doc_chunks),
			(SELECT COUNT(*) FROM doc_chunks),
			(SELECT COUNT(*) FROM messages)`).
		Scan(&st.Files, &st.Chunks, &st.Messages)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to read stats: %w", err)
	}
	return st, nil
}

// Path returns the database path ("" for in-memory).
func (s *DocumentStore) Path() string {
	return s.path
}

// Close checkpoints the WAL and closes the database.
func (s *DocumentStore) Close() error {
	if s.path != "" {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	}
	return s.db.Close()
}
