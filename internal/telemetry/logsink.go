package telemetry

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"
)

// LogRecord is one persisted warn-and-above log entry.
type LogRecord struct {
	ID        int64
	Timestamp time.Time
	Level     string
	Target    string
	Message   string
	Fields    string
	SpanID    string
	SessionID string
	AgentID   string
}

// LogQuery selects persisted log rows.
type LogQuery struct {
	Level     string
	Target    string
	SessionID string
	Since     time.Time
	Limit     int
}

// SQLiteLogSink is an slog.Handler that persists warn-and-above records to
// the logs table, sharing the connection pool the rest of telemetry and
// the event store use.
type SQLiteLogSink struct {
	db    *sql.DB
	level slog.Level
	attrs []slog.Attr
}

// NewSQLiteLogSink creates a handler that persists records at level or
// above. The logs table itself is created by the event store's migrations
// (SPEC_FULL §4.1); this handler only inserts into it.
func NewSQLiteLogSink(db *sql.DB, level slog.Level) *SQLiteLogSink {
	return &SQLiteLogSink{db: db, level: level}
}

// Enabled implements slog.Handler.
func (s *SQLiteLogSink) Enabled(_ context.Context, level slog.Level) bool {
	return level >= s.level
}

// WithAttrs implements slog.Handler.
func (s *SQLiteLogSink) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *s
	next.attrs = append(append([]slog.Attr{}, s.attrs...), attrs...)
	return &next
}

// WithGroup implements slog.Handler; groups are flattened since the logs
// table has no nested-field representation.
func (s *SQLiteLogSink) WithGroup(_ string) slog.Handler {
	return s
}

// Handle implements slog.Handler, inserting one row per record.
func (s *SQLiteLogSink) Handle(ctx context.Context, record slog.Record) error {
	fields := make(map[string]any, record.NumAttrs()+len(s.attrs))
	var sessionID, agentID, spanID string

	consume := func(a slog.Attr) bool {
		switch a.Key {
		case "session_id":
			sessionID = a.Value.String()
		case "agent_id":
			agentID = a.Value.String()
		case "span_id":
			spanID = a.Value.String()
		default:
			fields[a.Key] = a.Value.Any()
		}
		return true
	}
	for _, a := range s.attrs {
		consume(a)
	}
	record.Attrs(consume)

	fieldsJSON := "{}"
	if len(fields) > 0 {
		if data, err := json.Marshal(fields); err == nil {
			fieldsJSON = string(data)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO logs (timestamp, level, target, message, fields, span_id, session_id, agent_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		record.Time.UTC().Format(time.RFC3339Nano), record.Level.String(), "ozzie", record.Message,
		fieldsJSON, spanID, sessionID, agentID,
	)
	return err
}

// QueryLogs reads persisted rows matching q, most recent first.
func QueryLogs(ctx context.Context, db *sql.DB, q LogQuery) ([]LogRecord, error) {
	query := `SELECT id, timestamp, level, target, message, COALESCE(fields,''), COALESCE(span_id,''), COALESCE(session_id,''), COALESCE(agent_id,'') FROM logs WHERE 1=1`
	var args []any
	if q.Level != "" {
		query += ` AND level = ?`
		args = append(args, q.Level)
	}
	if q.Target != "" {
		query += ` AND target = ?`
		args = append(args, q.Target)
	}
	if q.SessionID != "" {
		query += ` AND session_id = ?`
		args = append(args, q.SessionID)
	}
	if !q.Since.IsZero() {
		query += ` AND timestamp >= ?`
		args = append(args, q.Since.UTC().Format(time.RFC3339Nano))
	}
	query += ` ORDER BY timestamp DESC`
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LogRecord
	for rows.Next() {
		var r LogRecord
		var ts string
		if err := rows.Scan(&r.ID, &ts, &r.Level, &r.Target, &r.Message, &r.Fields, &r.SpanID, &r.SessionID, &r.AgentID); err != nil {
			return nil, err
		}
		r.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, r)
	}
	return out, rows.Err()
}

// TeeHandler wraps a primary slog.Handler (typically a text/JSON handler
// writing to stderr, matching the rest of the codebase) and mirrors every
// record into the SQLite sink as well, so warn+ entries are queryable
// without losing the console's human-readable stream.
type TeeHandler struct {
	primary slog.Handler
	sink    *SQLiteLogSink
}

// NewTeeHandler combines primary with a SQLite-backed warn+ sink.
func NewTeeHandler(primary slog.Handler, sink *SQLiteLogSink) *TeeHandler {
	return &TeeHandler{primary: primary, sink: sink}
}

func (t *TeeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return t.primary.Enabled(ctx, level) || t.sink.Enabled(ctx, level)
}

func (t *TeeHandler) Handle(ctx context.Context, record slog.Record) error {
	if t.primary.Enabled(ctx, record.Level) {
		if err := t.primary.Handle(ctx, record); err != nil {
			return err
		}
	}
	if t.sink.Enabled(ctx, record.Level) {
		_ = t.sink.Handle(ctx, record)
	}
	return nil
}

func (t *TeeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TeeHandler{primary: t.primary.WithAttrs(attrs), sink: t.sink.WithAttrs(attrs).(*SQLiteLogSink)}
}

func (t *TeeHandler) WithGroup(name string) slog.Handler {
	return &TeeHandler{primary: t.primary.WithGroup(name), sink: t.sink}
}
