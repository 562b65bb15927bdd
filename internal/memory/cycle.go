package memory

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/dohr-michael/ozzie/internal/eventstore"
)

// CycleInfo is the summary of one agent cycle the trigger and the ledger
// writer reason about. It is handed in by the Agent Runner at end-of-cycle.
type CycleInfo struct {
	SessionID         string
	WorkspaceID       string
	Model             string
	WorkingDir        string
	CurrentTokenRatio float64
	RecentEventTypes  []string
	RecentToolCalls   []string
}

// CompactionPolicy configures when a cycle should be compacted.
type CompactionPolicy struct {
	TokenRatioThreshold float64
}

// DefaultCompactionPolicy mirrors the original manager's default: compact
// once context usage crosses 80% of the window.
func DefaultCompactionPolicy() CompactionPolicy {
	return CompactionPolicy{TokenRatioThreshold: 0.8}
}

// CompactionTrigger evaluates cycle info against a policy. The check is
// stateless by ratio alone: a failed compaction naturally fires again next
// cycle as long as the ratio stays high, which is what the spec requires.
// Reset exists as the hook the CycleManager calls on success, so a future
// policy with real hysteresis (cooldown windows, event-type heuristics)
// has somewhere to hang its state without changing the CycleManager.
type CompactionTrigger struct {
	policy CompactionPolicy
}

// NewCompactionTrigger creates a trigger against policy.
func NewCompactionTrigger(policy CompactionPolicy) *CompactionTrigger {
	return &CompactionTrigger{policy: policy}
}

// ShouldCompact reports whether info crosses the policy's threshold.
func (t *CompactionTrigger) ShouldCompact(info CycleInfo) bool {
	return info.CurrentTokenRatio >= t.policy.TokenRatioThreshold
}

// Reset is called after a successful compaction. No-op for the ratio-only
// policy; present so stateful policies can clear their own state here.
func (t *CompactionTrigger) Reset() {}

// Compactor executes the actual message-history compaction. Implementations
// write `compact.boundary` and `compact.summary` events themselves so the
// cycle manager only needs to know whether it succeeded.
type Compactor interface {
	Compact(ctx context.Context, info CycleInfo) (CompactResult, error)
}

// CompactResult is what a Compactor reports back about the boundary it cut.
type CompactResult struct {
	Reason          string
	MessagesRemoved int
	Summary         string
}

// LedgerWriter spawns the writer subagent and decides whether a cycle is
// worth persisting as a ledger entry. An empty EntryType return means the
// writer chose to skip this cycle.
type LedgerWriter interface {
	Write(ctx context.Context, info CycleInfo) (LedgerEntry, error)
}

// LedgerEntry is what a LedgerWriter produces. EntryType "skipped" is a
// valid, successful outcome: the writer looked at the cycle and decided
// there was nothing worth remembering.
type LedgerEntry struct {
	Title     string
	EntryType string
	Content   string
}

const skippedEntryType = "skipped"

// OnMemoryWritten is invoked after a ledger entry lands, whether or not the
// writer actually persisted anything (EntryType may be "skipped").
type OnMemoryWritten func(entry LedgerEntry)

// CycleManagerConfig wires the pieces on_cycle_complete needs.
type CycleManagerConfig struct {
	Store           *eventstore.Store
	Trigger         *CompactionTrigger
	Compactor       Compactor // nil disables compaction
	LedgerEnabled   bool
	Writer          LedgerWriter // nil disables ledger writes even if LedgerEnabled
	Pipeline        *Pipeline    // embedding dispatch, fire-and-forget
	OnMemoryWritten OnMemoryWritten
}

// CycleManager runs the end-of-cycle sequence: compaction check, then
// (if enabled) the ledger write. Every error in this subsystem is logged
// and dropped — memory is observability, never functionality, and must
// never fail a turn that otherwise completed cleanly.
type CycleManager struct {
	cfg CycleManagerConfig
}

// NewCycleManager creates a CycleManager from cfg.
func NewCycleManager(cfg CycleManagerConfig) *CycleManager {
	return &CycleManager{cfg: cfg}
}

// OnCycleComplete runs compaction-then-ledger, in that strict order, for
// one completed agent cycle. Compaction always runs first: its
// compact.boundary event must precede any memory.ledger event written in
// the same cycle, so that reconstruction can rely on the ordering.
func (m *CycleManager) OnCycleComplete(ctx context.Context, info CycleInfo) {
	m.runCompaction(ctx, info)
	m.writeLedger(ctx, info)
}

func (m *CycleManager) runCompaction(ctx context.Context, info CycleInfo) {
	if m.cfg.Compactor == nil || m.cfg.Trigger == nil {
		return
	}
	if !m.cfg.Trigger.ShouldCompact(info) {
		return
	}

	result, err := m.cfg.Compactor.Compact(ctx, info)
	if err != nil {
		slog.Warn("memory: compaction failed, will retry next cycle", "session_id", info.SessionID, "error", err)
		return
	}
	m.cfg.Trigger.Reset()

	if m.cfg.Store == nil {
		return
	}
	if err := m.appendEvent(ctx, info, eventstore.CompactBoundaryPayload{
		Reason:          result.Reason,
		TokenRatio:      info.CurrentTokenRatio,
		MessagesRemoved: result.MessagesRemoved,
	}); err != nil {
		slog.Warn("memory: failed to append compact.boundary", "session_id", info.SessionID, "error", err)
		return
	}
	if err := m.appendEvent(ctx, info, eventstore.CompactSummaryPayload{Summary: result.Summary}); err != nil {
		slog.Warn("memory: failed to append compact.summary", "session_id", info.SessionID, "error", err)
	}
}

func (m *CycleManager) writeLedger(ctx context.Context, info CycleInfo) {
	if !m.cfg.LedgerEnabled || m.cfg.Writer == nil || m.cfg.Store == nil {
		return
	}

	if err := m.appendEvent(ctx, info, eventstore.MemoryUpdatingPayload{}); err != nil {
		slog.Warn("memory: failed to append memory.updating", "session_id", info.SessionID, "error", err)
		return
	}

	entry, err := m.cfg.Writer.Write(ctx, info)
	if err != nil {
		slog.Warn("memory: ledger writer failed", "session_id", info.SessionID, "error", err)
		return
	}
	if entry.EntryType == "" {
		entry.EntryType = skippedEntryType
	}

	if err := m.appendEvent(ctx, info, eventstore.MemoryLedgerPayload{
		Title:     entry.Title,
		EntryType: entry.EntryType,
		Content:   entry.Content,
	}); err != nil {
		slog.Warn("memory: failed to append memory.ledger", "session_id", info.SessionID, "error", err)
		return
	}
	if err := m.appendEvent(ctx, info, eventstore.MemoryUpdatedPayload{
		Title:     entry.Title,
		EntryType: entry.EntryType,
	}); err != nil {
		slog.Warn("memory: failed to append memory.updated", "session_id", info.SessionID, "error", err)
	}

	if m.cfg.OnMemoryWritten != nil {
		m.cfg.OnMemoryWritten(entry)
	}

	if entry.EntryType != skippedEntryType && m.cfg.Pipeline != nil {
		m.cfg.Pipeline.Enqueue(EmbedJob{
			ID:      generateMemoryID(),
			Content: entry.Content,
			Meta:    map[string]string{"entry_type": entry.EntryType, "title": entry.Title},
		})
	}
}

func (m *CycleManager) appendEvent(ctx context.Context, info CycleInfo, payload eventstore.EventPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = m.cfg.Store.Append(ctx, info.SessionID, info.WorkspaceID, payload, data)
	return err
}
