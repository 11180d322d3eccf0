package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/samsaffron/gemchat/internal/llm"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
}

// Schema for the sessions database.
const schema = `
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    name TEXT,
    summary TEXT,
    provider TEXT NOT NULL,
    model TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    archived BOOLEAN DEFAULT FALSE,
    user_turns INTEGER DEFAULT 0,
    status TEXT DEFAULT 'active'
);

CREATE TABLE IF NOT EXISTS messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    role TEXT NOT NULL CHECK (role IN ('user', 'assistant', 'system')),
    parts TEXT NOT NULL,
    text_content TEXT,
    duration_ms INTEGER,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    sequence INTEGER NOT NULL
);

-- Binary parts, referenced from messages.parts by position
CREATE TABLE IF NOT EXISTS images (
    message_id INTEGER NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    mime_type TEXT NOT NULL,
    data BLOB NOT NULL,
    PRIMARY KEY (message_id, position)
);

CREATE INDEX IF NOT EXISTS idx_sessions_updated_at ON sessions(updated_at DESC);
CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
CREATE UNIQUE INDEX IF NOT EXISTS idx_messages_session_sequence ON messages(session_id, sequence);

-- Metadata table for current session tracking
CREATE TABLE IF NOT EXISTS metadata (
    key TEXT PRIMARY KEY,
    value TEXT
);

-- Full-text search on extracted text content
CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
    text_content,
    content='messages',
    content_rowid='id'
);

-- Triggers to keep FTS in sync
CREATE TRIGGER IF NOT EXISTS messages_ai AFTER INSERT ON messages BEGIN
    INSERT INTO messages_fts(rowid, text_content) VALUES (new.id, new.text_content);
END;

CREATE TRIGGER IF NOT EXISTS messages_ad AFTER DELETE ON messages BEGIN
    INSERT INTO messages_fts(messages_fts, rowid, text_content) VALUES ('delete', old.id, old.text_content);
END;

CREATE TRIGGER IF NOT EXISTS messages_au AFTER UPDATE ON messages BEGIN
    INSERT INTO messages_fts(messages_fts, rowid, text_content) VALUES ('delete', old.id, old.text_content);
    INSERT INTO messages_fts(rowid, text_content) VALUES (new.id, new.text_content);
END;
`

// NewSQLiteStore creates a new SQLite-based session store.
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	dbPath := cfg.Path
	if dbPath == "" {
		var err error
		dbPath, err = GetDBPath()
		if err != nil {
			return nil, fmt.Errorf("get db path: %w", err)
		}
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Create the schema on first use
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	store := &SQLiteStore{db: db, cfg: cfg}

	// Run cleanup if configured
	if err := store.cleanup(); err != nil {
		// Log but don't fail
		fmt.Fprintf(os.Stderr, "warning: session cleanup failed: %v\n", err)
	}

	return store, nil
}

// schemaVersion is the version of the schema in the `schema` const. A
// database with an older or missing version gets the schema applied again
// (every statement is IF NOT EXISTS) and its version stamped.
const schemaVersion = 1

// initSchema creates the schema unless the database is already current.
func initSchema(db *sql.DB) error {
	var current int
	err := db.QueryRow("SELECT version FROM schema_version").Scan(&current)
	switch {
	case err == nil && current >= schemaVersion:
		return nil
	case err != nil && err != sql.ErrNoRows && !strings.Contains(err.Error(), "no such table"):
		return fmt.Errorf("get current version: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin schema transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(schema); err != nil {
		return fmt.Errorf("create base schema: %w", err)
	}
	if _, err := tx.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM schema_version"); err != nil {
		return fmt.Errorf("reset schema version: %w", err)
	}
	if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("stamp schema version: %w", err)
	}
	return tx.Commit()
}

// cleanup removes old sessions based on configuration.
func (s *SQLiteStore) cleanup() error {
	ctx := context.Background()

	if s.cfg.MaxAgeDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -s.cfg.MaxAgeDays)
		_, err := s.db.ExecContext(ctx,
			"DELETE FROM sessions WHERE updated_at < ? AND archived = FALSE",
			cutoff)
		if err != nil {
			return fmt.Errorf("delete old sessions: %w", err)
		}
	}

	if s.cfg.MaxCount > 0 {
		_, err := s.db.ExecContext(ctx, `
			DELETE FROM sessions WHERE id IN (
				SELECT id FROM sessions
				WHERE archived = FALSE
				ORDER BY updated_at DESC
				LIMIT -1 OFFSET ?
			)`, s.cfg.MaxCount)
		if err != nil {
			return fmt.Errorf("enforce max count: %w", err)
		}
	}

	return nil
}

// Create inserts a new session.
func (s *SQLiteStore) Create(ctx context.Context, sess *Session) error {
	if sess.ID == "" {
		sess.ID = NewID()
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now()
	}
	if sess.UpdatedAt.IsZero() {
		sess.UpdatedAt = sess.CreatedAt
	}
	if sess.Status == "" {
		sess.Status = StatusActive
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, name, summary, provider, model, created_at, updated_at, archived, user_turns, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Name, sess.Summary, sess.Provider, sess.Model,
		sess.CreatedAt, sess.UpdatedAt, sess.Archived, sess.UserTurns, string(sess.Status))
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// Get retrieves a session by ID. It returns nil, nil when no session matches.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, summary, provider, model, created_at, updated_at, archived, user_turns, status
		FROM sessions WHERE id = ?`, id)

	var sess Session
	var name, summary, status sql.NullString
	err := row.Scan(&sess.ID, &name, &summary, &sess.Provider, &sess.Model,
		&sess.CreatedAt, &sess.UpdatedAt, &sess.Archived, &sess.UserTurns, &status)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	sess.Name = name.String
	sess.Summary = summary.String
	if status.Valid {
		sess.Status = SessionStatus(status.String)
	}
	return &sess, nil
}

// Update modifies an existing session.
func (s *SQLiteStore) Update(ctx context.Context, sess *Session) error {
	sess.UpdatedAt = time.Now()
	result, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET name = ?, summary = ?, provider = ?, model = ?,
		       updated_at = ?, archived = ?, user_turns = ?, status = ?
		WHERE id = ?`,
		sess.Name, sess.Summary, sess.Provider, sess.Model,
		sess.UpdatedAt, sess.Archived, sess.UserTurns, string(sess.Status), sess.ID)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("session not found: %s", sess.ID)
	}
	return nil
}

// UpdateStatus updates just the session status.
func (s *SQLiteStore) UpdateStatus(ctx context.Context, id string, status SessionStatus) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET status = ?, updated_at = ?
		WHERE id = ?`,
		string(status), time.Now(), id)
	return err
}

// IncrementUserTurns increments the user turn count.
func (s *SQLiteStore) IncrementUserTurns(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET user_turns = user_turns + 1, updated_at = ?
		WHERE id = ?`,
		time.Now(), id)
	return err
}

// Delete removes a session with its messages and images.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	// Foreign key cascade handles messages and images
	result, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("session not found: %s", id)
	}
	return nil
}

// List returns sessions matching the options, most recently updated first.
func (s *SQLiteStore) List(ctx context.Context, opts ListOptions) ([]SessionSummary, error) {
	query := `
		SELECT s.id, s.name, s.summary, s.provider, s.model, s.created_at, s.updated_at,
		       (SELECT COUNT(*) FROM messages WHERE session_id = s.id) as message_count,
		       (SELECT COUNT(*) FROM images i JOIN messages m ON m.id = i.message_id WHERE m.session_id = s.id) as image_count,
		       s.user_turns, s.status
		FROM sessions s
		WHERE 1=1`
	args := []any{}

	if opts.Model != "" {
		query += " AND s.model = ?"
		args = append(args, opts.Model)
	}
	if opts.Status != "" {
		query += " AND s.status = ?"
		args = append(args, string(opts.Status))
	}
	if !opts.Archived {
		query += " AND s.archived = FALSE"
	}

	query += " ORDER BY s.updated_at DESC"

	limit := opts.Limit
	if limit == 0 {
		limit = 50 // Default
	}
	query += fmt.Sprintf(" LIMIT %d", limit)
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var results []SessionSummary
	for rows.Next() {
		var sum SessionSummary
		var name, summary, status sql.NullString
		err := rows.Scan(&sum.ID, &name, &summary, &sum.Provider, &sum.Model,
			&sum.CreatedAt, &sum.UpdatedAt, &sum.MessageCount, &sum.ImageCount,
			&sum.UserTurns, &status)
		if err != nil {
			return nil, fmt.Errorf("scan session summary: %w", err)
		}
		sum.Name = name.String
		sum.Summary = summary.String
		if status.Valid {
			sum.Status = SessionStatus(status.String)
		}
		results = append(results, sum)
	}
	return results, rows.Err()
}

// Search finds sessions containing the query text using FTS5.
func (s *SQLiteStore) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if limit == 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT m.session_id, m.id, COALESCE(s.name, ''), COALESCE(s.summary, ''),
		       snippet(messages_fts, 0, '**', '**', '...', 32), s.model, m.created_at
		FROM messages_fts f
		JOIN messages m ON m.id = f.rowid
		JOIN sessions s ON s.id = m.session_id
		WHERE messages_fts MATCH ?
		ORDER BY rank
		LIMIT ?`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		err := rows.Scan(&r.SessionID, &r.MessageID, &r.SessionName, &r.Summary,
			&r.Snippet, &r.Model, &r.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan search result: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// storedPart is the JSON form of a part. Binary payloads live in the images
// table; Image is the payload's position there.
type storedPart struct {
	Text       string `json:"text,omitempty"`
	Thought    bool   `json:"thought,omitempty"`
	ThoughtSig []byte `json:"thought_sig,omitempty"`
	MimeType   string `json:"mime_type,omitempty"`
	Image      *int   `json:"image,omitempty"`
}

type storedImage struct {
	position int
	mimeType string
	data     []byte
}

// encodeParts splits parts into their JSON description and the binary payloads.
func encodeParts(parts []llm.Part) (string, []storedImage, error) {
	stored := make([]storedPart, len(parts))
	var images []storedImage
	for i, p := range parts {
		sp := storedPart{Text: p.Text, Thought: p.Thought, ThoughtSig: p.ThoughtSig}
		if p.IsBlob() {
			pos := len(images)
			sp.Text = ""
			sp.MimeType = p.InlineData.MimeType
			sp.Image = &pos
			images = append(images, storedImage{position: pos, mimeType: p.InlineData.MimeType, data: p.InlineData.Data})
		}
		stored[i] = sp
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return "", nil, err
	}
	return string(data), images, nil
}

// decodeParts rebuilds parts, taking payloads from images by position.
func decodeParts(data string, images map[int]storedImage) ([]llm.Part, error) {
	if data == "" {
		return nil, nil
	}
	var stored []storedPart
	if err := json.Unmarshal([]byte(data), &stored); err != nil {
		return nil, err
	}
	parts := make([]llm.Part, len(stored))
	for i, sp := range stored {
		p := llm.Part{Text: sp.Text, Thought: sp.Thought, ThoughtSig: sp.ThoughtSig}
		if sp.Image != nil {
			img, ok := images[*sp.Image]
			if !ok {
				return nil, fmt.Errorf("part %d: image %d missing", i, *sp.Image)
			}
			p.Text = ""
			p.InlineData = &llm.Blob{MimeType: img.mimeType, Data: img.data}
		}
		parts[i] = p
	}
	return parts, nil
}

// AddMessage adds a message and its images to a session.
// If msg.Sequence < 0, the sequence number is auto-allocated atomically.
func (s *SQLiteStore) AddMessage(ctx context.Context, sessionID string, msg *Message) error {
	msg.SessionID = sessionID
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	partsJSON, images, err := encodeParts(msg.Parts)
	if err != nil {
		return fmt.Errorf("serialize parts: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if msg.Sequence < 0 {
		var maxSeq sql.NullInt64
		err = tx.QueryRowContext(ctx,
			`SELECT MAX(sequence) FROM messages WHERE session_id = ?`,
			sessionID).Scan(&maxSeq)
		if err != nil {
			return fmt.Errorf("get max sequence: %w", err)
		}
		if maxSeq.Valid {
			msg.Sequence = int(maxSeq.Int64) + 1
		} else {
			msg.Sequence = 0
		}
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO messages (session_id, role, parts, text_content, duration_ms, created_at, sequence)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sessionID, string(msg.Role), partsJSON, msg.TextContent, msg.DurationMs, msg.CreatedAt, msg.Sequence)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	id, _ := result.LastInsertId()

	for _, img := range images {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO images (message_id, position, mime_type, data) VALUES (?, ?, ?, ?)`,
			id, img.position, img.mimeType, img.data)
		if err != nil {
			return fmt.Errorf("insert image: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, "UPDATE sessions SET updated_at = ? WHERE id = ?",
		time.Now(), sessionID)
	if err != nil {
		return fmt.Errorf("update session timestamp: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	msg.ID = id
	return nil
}

// GetMessages retrieves messages for a session in sequence order.
func (s *SQLiteStore) GetMessages(ctx context.Context, sessionID string, limit, offset int) ([]Message, error) {
	query := `
		SELECT id, session_id, role, parts, text_content, duration_ms, created_at, sequence
		FROM messages
		WHERE session_id = ?
		ORDER BY sequence ASC`

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	if offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", offset)
	}

	images, err := s.loadImages(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var msg Message
		var partsJSON string
		var textContent sql.NullString
		var durationMs sql.NullInt64
		err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Role, &partsJSON,
			&textContent, &durationMs, &msg.CreatedAt, &msg.Sequence)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.TextContent = textContent.String
		if durationMs.Valid {
			msg.DurationMs = durationMs.Int64
		}
		msg.Parts, err = decodeParts(partsJSON, images[msg.ID])
		if err != nil {
			return nil, fmt.Errorf("deserialize parts of message %d: %w", msg.ID, err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// loadImages returns the session's images keyed by message ID and position.
func (s *SQLiteStore) loadImages(ctx context.Context, sessionID string) (map[int64]map[int]storedImage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.message_id, i.position, i.mime_type, i.data
		FROM images i
		JOIN messages m ON m.id = i.message_id
		WHERE m.session_id = ?`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query images: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]map[int]storedImage)
	for rows.Next() {
		var msgID int64
		var img storedImage
		if err := rows.Scan(&msgID, &img.position, &img.mimeType, &img.data); err != nil {
			return nil, fmt.Errorf("scan image: %w", err)
		}
		if out[msgID] == nil {
			out[msgID] = make(map[int]storedImage)
		}
		out[msgID][img.position] = img
	}
	return out, rows.Err()
}

// SetCurrent marks a session as the current one.
func (s *SQLiteStore) SetCurrent(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO metadata (key, value) VALUES ('current_session', ?)`,
		sessionID)
	return err
}

// GetCurrent retrieves the current session.
func (s *SQLiteStore) GetCurrent(ctx context.Context) (*Session, error) {
	var sessionID string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM metadata WHERE key = 'current_session'").Scan(&sessionID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, sessionID)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
