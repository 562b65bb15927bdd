// Package eventstore is the system of record: an append-only SQLite event
// log plus the session/workspace/project/task rows derived from it.
package eventstore

import "time"

// EventType is a closed enumeration of every event kind the store accepts.
// Dotted form matches the wire events described by the provider and tool
// layers, so a persisted row and a broadcast event share one vocabulary.
type EventType string

const (
	EventSessionStart EventType = "session.start"
	EventSessionEnd   EventType = "session.end"
	EventSessionFork  EventType = "session.fork"

	EventMessageUser      EventType = "message.user"
	EventMessageAssistant EventType = "message.assistant"
	EventMessageSystem    EventType = "message.system"
	EventMessageDeleted   EventType = "message.deleted"

	EventToolCall   EventType = "tool.call"
	EventToolResult EventType = "tool.result"

	EventStreamTurnStart     EventType = "stream.turn_start"
	EventStreamTurnEnd       EventType = "stream.turn_end"
	EventStreamTextDelta     EventType = "stream.text_delta"
	EventStreamThinkingDelta EventType = "stream.thinking_delta"

	EventConfigModelSwitch    EventType = "config.model_switch"
	EventConfigPromptUpdate   EventType = "config.prompt_update"
	EventConfigReasoningLevel EventType = "config.reasoning_level"

	EventNotificationInterrupted    EventType = "notification.interrupted"
	EventNotificationSubagentResult EventType = "notification.subagent_result"

	EventCompactBoundary EventType = "compact.boundary"
	EventCompactSummary  EventType = "compact.summary"
	EventContextCleared  EventType = "context.cleared"

	EventSkillAdded   EventType = "skill.added"
	EventSkillRemoved EventType = "skill.removed"

	EventRulesLoaded    EventType = "rules.loaded"
	EventRulesIndexed   EventType = "rules.indexed"
	EventRulesActivated EventType = "rules.activated"

	EventMetadataUpdate EventType = "metadata.update"
	EventMetadataTag    EventType = "metadata.tag"

	EventFileRead  EventType = "file.read"
	EventFileWrite EventType = "file.write"
	EventFileEdit  EventType = "file.edit"

	EventWorktreeAcquired EventType = "worktree.acquired"
	EventWorktreeCommit   EventType = "worktree.commit"
	EventWorktreeReleased EventType = "worktree.released"
	EventWorktreeMerged   EventType = "worktree.merged"

	EventErrorAgent    EventType = "error.agent"
	EventErrorTool     EventType = "error.tool"
	EventErrorProvider EventType = "error.provider"

	EventSubagentSpawned         EventType = "subagent.spawned"
	EventSubagentStatusUpdate    EventType = "subagent.status_update"
	EventSubagentCompleted       EventType = "subagent.completed"
	EventSubagentFailed          EventType = "subagent.failed"
	EventSubagentResultsConsumed EventType = "subagent.results_consumed"

	EventTodoWrite EventType = "todo.write"

	EventTaskCreated EventType = "task.created"
	EventTaskUpdated EventType = "task.updated"
	EventTaskDeleted EventType = "task.deleted"

	EventProjectCreated EventType = "project.created"
	EventProjectUpdated EventType = "project.updated"
	EventProjectDeleted EventType = "project.deleted"

	EventAreaCreated EventType = "area.created"
	EventAreaUpdated EventType = "area.updated"
	EventAreaDeleted EventType = "area.deleted"

	EventTurnFailed EventType = "turn.failed"

	EventHookTriggered           EventType = "hook.triggered"
	EventHookCompleted           EventType = "hook.completed"
	EventHookBackgroundStarted   EventType = "hook.background_started"
	EventHookBackgroundCompleted EventType = "hook.background_completed"

	EventMemoryLedger   EventType = "memory.ledger"
	EventMemoryLoaded   EventType = "memory.loaded"
	EventMemoryUpdating EventType = "memory.updating"
	EventMemoryUpdated  EventType = "memory.updated"

	EventAgentStart    EventType = "agent.start"
	EventAgentComplete EventType = "agent.complete"
	EventAgentReady    EventType = "agent.ready"
)

// Event is one row of the append-only log. Payload is stored as opaque JSON
// and interpreted according to Type by EventPayload implementations.
type Event struct {
	ID          string
	ParentID    string // empty for the first event of a chain
	SessionID   string
	WorkspaceID string
	Timestamp   time.Time
	Type        EventType
	Sequence    int64
	Checksum    string // sha256 over ParentID+SessionID+Type+Sequence+Payload, hex
	Payload     []byte // raw JSON
}

// EventPayload is implemented by every typed payload struct so it can
// self-identify its EventType when being appended.
type EventPayload interface {
	EventType() EventType
}

// SessionStatus is the lifecycle state of a session. Transitions are
// forward-only except Archived -> Active (reactivation).
type SessionStatus string

const (
	SessionActive   SessionStatus = "active"
	SessionArchived SessionStatus = "archived"
	SessionDeleted  SessionStatus = "deleted"
)

// TokenUsage accumulates token accounting for a session.
type TokenUsage struct {
	Input         int64
	Output        int64
	CacheRead     int64
	CacheCreation int64
	LastTurnInput int64
	CostUSD       float64
	TurnCount     int64
}

// Session is the durable header row for one conversation.
type Session struct {
	ID           string
	WorkspaceID  string
	Title        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Status       SessionStatus
	Model        string
	Provider     string
	HeadEventID  string // last appended event, updated atomically on Append
	RootEventID  string
	MessageCount int64
	TokenUsage   TokenUsage
	RootDir      string
	Language     string
	Summary      string
	SummaryUpTo  string // event ID the summary covers up to
}

// Workspace groups sessions under a shared root directory / ruleset.
type Workspace struct {
	ID        string
	RootDir   string
	Name      string
	CreatedAt time.Time
}

// Blob is a content-addressed binary payload referenced by events (e.g.
// file contents at a point in time).
type Blob struct {
	Hash      string // sha256 hex
	Data      []byte
	CreatedAt time.Time
}
