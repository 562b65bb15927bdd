// Package telemetry records counters, gauges, and histograms in memory and
// periodically snapshots them to SQLite, plus a warn-and-above log sink
// backed by the same database. Neither path has a teacher file to ground
// on; both follow the reference agent runtime's tron-telemetry crate.
package telemetry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Labels is a set of key-value pairs identifying one time series. Two
// Labels with the same pairs in any order key the same series.
type Labels map[string]string

func labelKey(name string, labels Labels) string {
	if len(labels) == 0 {
		return name
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	sb.WriteString(name)
	for _, k := range keys {
		sb.WriteByte('|')
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(labels[k])
	}
	return sb.String()
}

func labelsJSON(labels Labels) string {
	if len(labels) == 0 {
		return "{}"
	}
	data, err := json.Marshal(labels)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// HistogramSummary reports percentile statistics computed from every
// retained observation.
type HistogramSummary struct {
	Count int
	Sum   float64
	Min   float64
	Max   float64
	P50   float64
	P90   float64
	P99   float64
}

type seriesKey struct {
	name   string
	labels string
}

// Recorder holds in-memory counters, gauges, and histograms keyed by
// (name, sorted labels), and periodically persists their current values to
// SQLite for retention and later querying.
type Recorder struct {
	mu         sync.RWMutex
	counters   map[string]float64
	gauges     map[string]float64
	histograms map[string][]float64
	meta       map[string]struct {
		name   string
		labels Labels
	}

	db        *sql.DB
	retention time.Duration
}

// NewRecorder creates a Recorder backed by db. Call EnsureSchema once
// before first use (the caller decides whether that's part of the shared
// eventstore migration set or a standalone call).
func NewRecorder(db *sql.DB, retention time.Duration) *Recorder {
	return &Recorder{
		counters:   make(map[string]float64),
		gauges:     make(map[string]float64),
		histograms: make(map[string][]float64),
		meta: make(map[string]struct {
			name   string
			labels Labels
		}),
		db:        db,
		retention: retention,
	}
}

// EnsureSchema creates the metrics_snapshot table if it doesn't already
// exist.
func (r *Recorder) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS metrics_snapshot (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp TEXT NOT NULL,
	name TEXT NOT NULL,
	kind TEXT NOT NULL,
	value REAL NOT NULL,
	labels_json TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_metrics_snapshot_name ON metrics_snapshot(name);
CREATE INDEX IF NOT EXISTS idx_metrics_snapshot_timestamp ON metrics_snapshot(timestamp);
`)
	return err
}

func (r *Recorder) remember(key, name string, labels Labels) {
	if _, ok := r.meta[key]; !ok {
		r.meta[key] = struct {
			name   string
			labels Labels
		}{name: name, labels: labels}
	}
}

// CounterInc adds delta (must be >= 0) to a monotonic counter.
func (r *Recorder) CounterInc(name string, labels Labels, delta float64) {
	key := labelKey(name, labels)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[key] += delta
	r.remember(key, name, labels)
}

// CounterGet returns the current value of a counter.
func (r *Recorder) CounterGet(name string, labels Labels) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.counters[labelKey(name, labels)]
}

// GaugeSet sets a gauge to an absolute value.
func (r *Recorder) GaugeSet(name string, labels Labels, value float64) {
	key := labelKey(name, labels)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gauges[key] = value
	r.remember(key, name, labels)
}

// GaugeInc adds delta (positive or negative) to a gauge.
func (r *Recorder) GaugeInc(name string, labels Labels, delta float64) {
	key := labelKey(name, labels)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gauges[key] += delta
	r.remember(key, name, labels)
}

// GaugeGet returns the current value of a gauge.
func (r *Recorder) GaugeGet(name string, labels Labels) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.gauges[labelKey(name, labels)]
}

// HistogramObserve records one observation. All observations are retained
// for the life of the process so exact percentiles can be computed.
func (r *Recorder) HistogramObserve(name string, labels Labels, value float64) {
	key := labelKey(name, labels)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.histograms[key] = append(r.histograms[key], value)
	r.remember(key, name, labels)
}

// HistogramSummarize computes percentile statistics over all retained
// observations for one series.
func (r *Recorder) HistogramSummarize(name string, labels Labels) HistogramSummary {
	key := labelKey(name, labels)
	r.mu.RLock()
	obs := append([]float64(nil), r.histograms[key]...)
	r.mu.RUnlock()

	if len(obs) == 0 {
		return HistogramSummary{}
	}
	sort.Float64s(obs)

	sum := 0.0
	for _, v := range obs {
		sum += v
	}
	pct := func(p float64) float64 {
		idx := int(p * float64(len(obs)-1))
		return obs[idx]
	}
	return HistogramSummary{
		Count: len(obs),
		Sum:   sum,
		Min:   obs[0],
		Max:   obs[len(obs)-1],
		P50:   pct(0.50),
		P90:   pct(0.90),
		P99:   pct(0.99),
	}
}

// Snapshot persists the current value of every counter and gauge (and the
// summary of every histogram) to metrics_snapshot, then prunes rows older
// than the configured retention. Returns the number of rows written.
func (r *Recorder) Snapshot(ctx context.Context) (int, error) {
	r.mu.RLock()
	counters := make(map[string]float64, len(r.counters))
	for k, v := range r.counters {
		counters[k] = v
	}
	gauges := make(map[string]float64, len(r.gauges))
	for k, v := range r.gauges {
		gauges[k] = v
	}
	histoKeys := make([]string, 0, len(r.histograms))
	for k := range r.histograms {
		histoKeys = append(histoKeys, k)
	}
	meta := make(map[string]struct {
		name   string
		labels Labels
	}, len(r.meta))
	for k, v := range r.meta {
		meta[k] = v
	}
	r.mu.RUnlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	written := 0

	insert := func(kind, key string, value float64) error {
		m := meta[key]
		_, err := tx.ExecContext(ctx, `
			INSERT INTO metrics_snapshot (timestamp, name, kind, value, labels_json) VALUES (?, ?, ?, ?, ?)`,
			now, m.name, kind, value, labelsJSON(m.labels))
		if err != nil {
			return err
		}
		written++
		return nil
	}

	for k, v := range counters {
		if err := insert("counter", k, v); err != nil {
			return 0, err
		}
	}
	for k, v := range gauges {
		if err := insert("gauge", k, v); err != nil {
			return 0, err
		}
	}
	for _, k := range histoKeys {
		summary := r.HistogramSummarize(meta[k].name, meta[k].labels)
		if err := insert("histogram_p50", k, summary.P50); err != nil {
			return 0, err
		}
		if err := insert("histogram_p90", k, summary.P90); err != nil {
			return 0, err
		}
		if err := insert("histogram_p99", k, summary.P99); err != nil {
			return 0, err
		}
	}

	if r.retention > 0 {
		cutoff := time.Now().UTC().Add(-r.retention).Format(time.RFC3339Nano)
		if _, err := tx.ExecContext(ctx, `DELETE FROM metrics_snapshot WHERE timestamp < ?`, cutoff); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return written, nil
}

// MetricsQuery selects prior snapshot rows.
type MetricsQuery struct {
	Name  string
	Since time.Time
	Limit int
}

// MetricPoint is one row from metrics_snapshot.
type MetricPoint struct {
	Timestamp time.Time
	Name      string
	Kind      string
	Value     float64
	Labels    Labels
}

// QuerySnapshots reads persisted points matching q.
func (r *Recorder) QuerySnapshots(ctx context.Context, q MetricsQuery) ([]MetricPoint, error) {
	query := `SELECT timestamp, name, kind, value, labels_json FROM metrics_snapshot WHERE 1=1`
	var args []any
	if q.Name != "" {
		query += ` AND name = ?`
		args = append(args, q.Name)
	}
	if !q.Since.IsZero() {
		query += ` AND timestamp >= ?`
		args = append(args, q.Since.UTC().Format(time.RFC3339Nano))
	}
	query += ` ORDER BY timestamp DESC`
	if q.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, q.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MetricPoint
	for rows.Next() {
		var ts, name, kind, labelsJSON string
		var value float64
		if err := rows.Scan(&ts, &name, &kind, &value, &labelsJSON); err != nil {
			return nil, err
		}
		parsedTs, _ := time.Parse(time.RFC3339Nano, ts)
		var labels Labels
		_ = json.Unmarshal([]byte(labelsJSON), &labels)
		out = append(out, MetricPoint{Timestamp: parsedTs, Name: name, Kind: kind, Value: value, Labels: labels})
	}
	return out, rows.Err()
}
