package telemetry

import (
	"context"
	"database/sql"
	"log/slog"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if _, err := db.Exec(`CREATE TABLE logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT, timestamp TEXT, level TEXT, target TEXT,
		message TEXT, fields TEXT, span_id TEXT, session_id TEXT, agent_id TEXT)`); err != nil {
		t.Fatalf("create logs table: %v", err)
	}
	return db
}

func TestRecorder_CounterAccumulates(t *testing.T) {
	db := newTestDB(t)
	r := NewRecorder(db, time.Hour)
	if err := r.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}

	r.CounterInc("requests_total", Labels{"provider": "anthropic"}, 1)
	r.CounterInc("requests_total", Labels{"provider": "anthropic"}, 2)
	r.CounterInc("requests_total", Labels{"provider": "openai"}, 5)

	if got := r.CounterGet("requests_total", Labels{"provider": "anthropic"}); got != 3 {
		t.Errorf("expected 3, got %v", got)
	}
	if got := r.CounterGet("requests_total", Labels{"provider": "openai"}); got != 5 {
		t.Errorf("expected 5, got %v", got)
	}
}

func TestRecorder_GaugeSetAndInc(t *testing.T) {
	db := newTestDB(t)
	r := NewRecorder(db, time.Hour)

	r.GaugeSet("active_sessions", nil, 10)
	r.GaugeInc("active_sessions", nil, -3)

	if got := r.GaugeGet("active_sessions", nil); got != 7 {
		t.Errorf("expected 7, got %v", got)
	}
}

func TestRecorder_HistogramSummarize(t *testing.T) {
	db := newTestDB(t)
	r := NewRecorder(db, time.Hour)

	for _, v := range []float64{10, 20, 30, 40, 50} {
		r.HistogramObserve("turn_latency_ms", nil, v)
	}

	summary := r.HistogramSummarize("turn_latency_ms", nil)
	if summary.Count != 5 {
		t.Errorf("expected count 5, got %d", summary.Count)
	}
	if summary.Min != 10 || summary.Max != 50 {
		t.Errorf("unexpected min/max: %v/%v", summary.Min, summary.Max)
	}
}

func TestRecorder_SnapshotPersists(t *testing.T) {
	db := newTestDB(t)
	r := NewRecorder(db, time.Hour)
	ctx := context.Background()
	if err := r.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}

	r.CounterInc("events_total", nil, 4)
	r.GaugeSet("queue_depth", nil, 2)

	written, err := r.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if written != 2 {
		t.Errorf("expected 2 rows written, got %d", written)
	}

	points, err := r.QuerySnapshots(ctx, MetricsQuery{Name: "events_total"})
	if err != nil {
		t.Fatalf("QuerySnapshots: %v", err)
	}
	if len(points) != 1 || points[0].Value != 4 {
		t.Errorf("unexpected snapshot rows: %+v", points)
	}
}

func TestSQLiteLogSink_PersistsWarnAndAbove(t *testing.T) {
	db := newTestDB(t)
	sink := NewSQLiteLogSink(db, slog.LevelWarn)
	logger := slog.New(sink)

	logger.Info("should not persist")
	logger.Warn("disk nearly full", "session_id", "sess-1")
	logger.Error("tool failed", "session_id", "sess-1")

	rows, err := QueryLogs(context.Background(), db, LogQuery{SessionID: "sess-1"})
	if err != nil {
		t.Fatalf("QueryLogs: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 persisted rows, got %d", len(rows))
	}
}
