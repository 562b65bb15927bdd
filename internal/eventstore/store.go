package eventstore

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Sentinel errors returned by Store methods, matching Go convention for
// wrapped, checkable failures.
var (
	ErrNotFound        = errors.New("eventstore: not found")
	ErrSchemaViolation = errors.New("eventstore: schema violation")
	ErrCorruptRow      = errors.New("eventstore: corrupt row")
	ErrMigration       = errors.New("eventstore: migration failed")
	ErrSequenceGap     = errors.New("eventstore: non-contiguous sequence")
)

// ConnectionConfig controls the pool opened against the SQLite file.
type ConnectionConfig struct {
	PoolSize      int
	BusyTimeoutMs int
	CacheSizeKiB  int
}

// DefaultConnectionConfig mirrors the reference implementation's pool
// sizing: 16 connections, 30s busy timeout, 8MiB page cache.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		PoolSize:      16,
		BusyTimeoutMs: 30_000,
		CacheSizeKiB:  8192,
	}
}

// Store is the SQLite-backed event log and its derived tables.
type Store struct {
	db  *sql.DB
	cfg ConnectionConfig
}

// OpenFile opens (and migrates) a SQLite database at path.
func OpenFile(ctx context.Context, path string, cfg ConnectionConfig) (*Store, error) {
	return open(ctx, path, cfg)
}

// OpenMemory opens an in-memory database, useful for tests. Each call gets
// its own isolated database (cache=private).
func OpenMemory(ctx context.Context, cfg ConnectionConfig) (*Store, error) {
	return open(ctx, ":memory:", cfg)
}

func open(ctx context.Context, dsn string, cfg ConnectionConfig) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("eventstore: open: %w", err)
	}
	db.SetMaxOpenConns(cfg.PoolSize)
	db.SetMaxIdleConns(cfg.PoolSize)

	pragmas := fmt.Sprintf(
		"PRAGMA journal_mode=WAL; PRAGMA foreign_keys=ON; PRAGMA busy_timeout=%d; PRAGMA cache_size=-%d; PRAGMA synchronous=NORMAL;",
		cfg.BusyTimeoutMs, cfg.CacheSizeKiB,
	)
	if _, err := db.ExecContext(ctx, pragmas); err != nil {
		db.Close()
		return nil, fmt.Errorf("eventstore: apply pragmas: %w", err)
	}

	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrMigration, err)
	}

	return &Store{db: db, cfg: cfg}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying connection pool so other components backed by
// the same SQLite file (telemetry snapshots, the log sink) can share it
// instead of opening a second database.
func (s *Store) DB() *sql.DB {
	return s.db
}

func checksumFor(parentID, sessionID string, typ EventType, seq int64, payload []byte) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%d|", parentID, sessionID, typ, seq)
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// Append writes one event to the log, assigning the next contiguous
// sequence number for the session, chaining it off the session's current
// head, and atomically advancing that head. It fails with ErrSequenceGap if
// a concurrent writer raced it for the same session (caller should retry).
func (s *Store) Append(ctx context.Context, sessionID, workspaceID string, payload EventPayload, marshalled []byte) (Event, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Event{}, err
	}
	defer tx.Rollback()

	var headEventID string
	var seq sql.NullInt64
	row := tx.QueryRowContext(ctx, `SELECT head_event_id FROM sessions WHERE id = ?`, sessionID)
	if err := row.Scan(&headEventID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Event{}, fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
		}
		return Event{}, err
	}

	row = tx.QueryRowContext(ctx, `SELECT MAX(sequence) FROM events WHERE session_id = ?`, sessionID)
	if err := row.Scan(&seq); err != nil {
		return Event{}, err
	}
	nextSeq := int64(1)
	if seq.Valid {
		nextSeq = seq.Int64 + 1
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	checksum := checksumFor(headEventID, sessionID, payload.EventType(), nextSeq, marshalled)

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO events (id, parent_id, session_id, workspace_id, timestamp, type, sequence, checksum, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, headEventID, sessionID, workspaceID, now.Format(time.RFC3339Nano), string(payload.EventType()), nextSeq, checksum, string(marshalled),
	); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrSequenceGap, err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE sessions SET head_event_id = ?, updated_at = ?, message_count = message_count + ? WHERE id = ?`,
		id, now.Format(time.RFC3339Nano), messageIncrement(payload.EventType()), sessionID,
	); err != nil {
		return Event{}, err
	}

	if headEventID == "" {
		if _, err := tx.ExecContext(ctx, `UPDATE sessions SET root_event_id = ? WHERE id = ? AND root_event_id = ''`, id, sessionID); err != nil {
			return Event{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return Event{}, err
	}

	return Event{
		ID: id, ParentID: headEventID, SessionID: sessionID, WorkspaceID: workspaceID,
		Timestamp: now, Type: payload.EventType(), Sequence: nextSeq, Checksum: checksum, Payload: marshalled,
	}, nil
}

func messageIncrement(t EventType) int {
	switch t {
	case EventMessageUser, EventMessageAssistant, EventMessageSystem:
		return 1
	default:
		return 0
	}
}

// GetEventsBySession returns every event for sessionID in sequence order.
func (s *Store) GetEventsBySession(ctx context.Context, sessionID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, parent_id, session_id, workspace_id, timestamp, type, sequence, checksum, payload
		FROM events WHERE session_id = ? ORDER BY sequence ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// GetEventsSince returns events for sessionID with sequence > afterSeq.
func (s *Store) GetEventsSince(ctx context.Context, sessionID string, afterSeq int64) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, parent_id, session_id, workspace_id, timestamp, type, sequence, checksum, payload
		FROM events WHERE session_id = ? AND sequence > ? ORDER BY sequence ASC`, sessionID, afterSeq)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// GetEventsByType returns events of typ for sessionID in sequence order.
func (s *Store) GetEventsByType(ctx context.Context, sessionID string, typ EventType) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, parent_id, session_id, workspace_id, timestamp, type, sequence, checksum, payload
		FROM events WHERE session_id = ? AND type = ? ORDER BY sequence ASC`, sessionID, string(typ))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	var out []Event
	for rows.Next() {
		var e Event
		var ts string
		var typ string
		var payload string
		if err := rows.Scan(&e.ID, &e.ParentID, &e.SessionID, &e.WorkspaceID, &ts, &typ, &e.Sequence, &e.Checksum, &payload); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptRow, err)
		}
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("%w: bad timestamp: %v", ErrCorruptRow, err)
		}
		e.Timestamp = parsed
		e.Type = EventType(typ)
		e.Payload = []byte(payload)
		out = append(out, e)
	}
	return out, rows.Err()
}

// VerifySession walks a session's events in sequence order, checking that
// sequences are contiguous from 1 and that each event's recorded parent
// matches the previous event's ID.
func (s *Store) VerifySession(ctx context.Context, sessionID string) error {
	events, err := s.GetEventsBySession(ctx, sessionID)
	if err != nil {
		return err
	}
	prevID := ""
	for i, e := range events {
		wantSeq := int64(i + 1)
		if e.Sequence != wantSeq {
			return fmt.Errorf("%w: session %s expected sequence %d, got %d", ErrSequenceGap, sessionID, wantSeq, e.Sequence)
		}
		if e.ParentID != prevID {
			return fmt.Errorf("%w: session %s event %s parent mismatch", ErrCorruptRow, sessionID, e.ID)
		}
		prevID = e.ID
	}
	return nil
}

// CreateSession inserts a new session row, optionally creating its workspace
// if workspaceID hasn't been seen before is the caller's responsibility
// (CreateWorkspace should be called first).
func (s *Store) CreateSession(ctx context.Context, sess Session) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now().UTC()
	}
	if sess.Status == "" {
		sess.Status = SessionActive
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, workspace_id, title, created_at, updated_at, status, model, provider, root_dir, language)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.WorkspaceID, sess.Title, sess.CreatedAt.Format(time.RFC3339Nano), now, string(sess.Status), sess.Model, sess.Provider, sess.RootDir, sess.Language,
	)
	return err
}

// GetSession loads a session by id.
func (s *Store) GetSession(ctx context.Context, id string) (Session, error) {
	var sess Session
	var status string
	var createdAt, updatedAt string
	row := s.db.QueryRowContext(ctx, `
		SELECT id, workspace_id, title, created_at, updated_at, status, model, provider, head_event_id, root_event_id,
		       message_count, token_input, token_output, token_cache_read, token_cache_creation, token_last_turn_input,
		       cost_usd, turn_count, root_dir, language, summary, summary_up_to
		FROM sessions WHERE id = ?`, id)
	err := row.Scan(&sess.ID, &sess.WorkspaceID, &sess.Title, &createdAt, &updatedAt, &status, &sess.Model, &sess.Provider,
		&sess.HeadEventID, &sess.RootEventID, &sess.MessageCount,
		&sess.TokenUsage.Input, &sess.TokenUsage.Output, &sess.TokenUsage.CacheRead, &sess.TokenUsage.CacheCreation, &sess.TokenUsage.LastTurnInput,
		&sess.TokenUsage.CostUSD, &sess.TokenUsage.TurnCount, &sess.RootDir, &sess.Language, &sess.Summary, &sess.SummaryUpTo)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("%w: session %s", ErrNotFound, id)
	}
	if err != nil {
		return Session{}, err
	}
	sess.Status = SessionStatus(status)
	sess.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	sess.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return sess, nil
}

// ListSessions returns every session in workspaceID, most recently updated
// first.
func (s *Store) ListSessions(ctx context.Context, workspaceID string) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workspace_id, title, created_at, updated_at, status, model, provider, head_event_id, root_event_id,
		       message_count, token_input, token_output, token_cache_read, token_cache_creation, token_last_turn_input,
		       cost_usd, turn_count, root_dir, language, summary, summary_up_to
		FROM sessions WHERE workspace_id = ? ORDER BY updated_at DESC`, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var sess Session
		var status string
		var createdAt, updatedAt string
		if err := rows.Scan(&sess.ID, &sess.WorkspaceID, &sess.Title, &createdAt, &updatedAt, &status, &sess.Model, &sess.Provider,
			&sess.HeadEventID, &sess.RootEventID, &sess.MessageCount,
			&sess.TokenUsage.Input, &sess.TokenUsage.Output, &sess.TokenUsage.CacheRead, &sess.TokenUsage.CacheCreation, &sess.TokenUsage.LastTurnInput,
			&sess.TokenUsage.CostUSD, &sess.TokenUsage.TurnCount, &sess.RootDir, &sess.Language, &sess.Summary, &sess.SummaryUpTo); err != nil {
			return nil, err
		}
		sess.Status = SessionStatus(status)
		sess.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		sess.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
		out = append(out, sess)
	}
	return out, rows.Err()
}

// SetSessionStatus enforces the forward-only lifecycle: active -> archived
// -> deleted, with archived -> active the only allowed reactivation.
func (s *Store) SetSessionStatus(ctx context.Context, id string, next SessionStatus) error {
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return err
	}
	if !validStatusTransition(sess.Status, next) {
		return fmt.Errorf("%w: cannot transition session %s from %s to %s", ErrSchemaViolation, id, sess.Status, next)
	}
	_, err = s.db.ExecContext(ctx, `UPDATE sessions SET status = ?, updated_at = ? WHERE id = ?`,
		string(next), time.Now().UTC().Format(time.RFC3339Nano), id)
	return err
}

func validStatusTransition(from, to SessionStatus) bool {
	if from == to {
		return true
	}
	switch from {
	case SessionActive:
		return to == SessionArchived || to == SessionDeleted
	case SessionArchived:
		return to == SessionActive || to == SessionDeleted
	case SessionDeleted:
		return false
	}
	return false
}

// CreateWorkspace inserts a new workspace row.
func (s *Store) CreateWorkspace(ctx context.Context, ws Workspace) error {
	if ws.CreatedAt.IsZero() {
		ws.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO workspaces (id, root_dir, name, created_at) VALUES (?, ?, ?, ?)`,
		ws.ID, ws.RootDir, ws.Name, ws.CreatedAt.Format(time.RFC3339Nano))
	return err
}

// PutBlob stores data content-addressed by its SHA-256 hash, returning the
// hash. Idempotent: re-storing the same bytes is a no-op.
func (s *Store) PutBlob(ctx context.Context, data []byte) (string, error) {
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO blobs (hash, data, created_at) VALUES (?, ?, ?)`,
		hash, data, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return "", err
	}
	return hash, nil
}

// GetBlob retrieves a blob by hash.
func (s *Store) GetBlob(ctx context.Context, hash string) ([]byte, error) {
	var data []byte
	row := s.db.QueryRowContext(ctx, `SELECT data FROM blobs WHERE hash = ?`, hash)
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: blob %s", ErrNotFound, hash)
		}
		return nil, err
	}
	return data, nil
}

// SearchResult pairs a list window with the total number of matching rows.
// Count mirrors Total (not len(Results)) to keep wire compatibility with
// existing subscribers that treat count as "how many exist", not "how many
// came back in this page" (see DESIGN.md Open Question #2).
type SearchResult struct {
	Results []Event
	Count   int
	Total   int
}

// SearchEvents runs a full-text search over events_fts, applying limit/offset
// to the window while still reporting the unfiltered match total.
func (s *Store) SearchEvents(ctx context.Context, query string, limit, offset int) (SearchResult, error) {
	var total int
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events_fts WHERE events_fts MATCH ?`, query)
	if err := row.Scan(&total); err != nil {
		return SearchResult{}, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id, e.parent_id, e.session_id, e.workspace_id, e.timestamp, e.type, e.sequence, e.checksum, e.payload
		FROM events_fts f JOIN events e ON e.id = f.event_id
		WHERE events_fts MATCH ? ORDER BY e.sequence DESC LIMIT ? OFFSET ?`, query, limit, offset)
	if err != nil {
		return SearchResult{}, err
	}
	defer rows.Close()
	events, err := scanEvents(rows)
	if err != nil {
		return SearchResult{}, err
	}
	return SearchResult{Results: events, Count: total, Total: total}, nil
}
