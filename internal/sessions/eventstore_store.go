package sessions

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dohr-michael/ozzie/internal/eventstore"
	"github.com/google/uuid"
)

// EventStoreBackedStore implements Store on top of the append-only event
// log, superseding FileStore's per-session JSONL directories: messages are
// individual message.user/message.assistant events and session metadata is
// the event store's own sessions row, kept current by Append.
type EventStoreBackedStore struct {
	store       *eventstore.Store
	workspaceID string
}

// NewEventStoreBackedStore ensures a workspace exists for rootDir and
// returns a Store backed by store. One workspace is shared by every
// session this instance creates, matching the teacher's one-store-per-CLI
// convention (FileStore also roots everything under a single baseDir).
func NewEventStoreBackedStore(ctx context.Context, store *eventstore.Store, rootDir string) (*EventStoreBackedStore, error) {
	wsID := workspaceIDFor(rootDir)
	if err := store.CreateWorkspace(ctx, eventstore.Workspace{ID: wsID, RootDir: rootDir, Name: rootDir}); err != nil {
		return nil, fmt.Errorf("ensure workspace: %w", err)
	}
	return &EventStoreBackedStore{store: store, workspaceID: wsID}, nil
}

func workspaceIDFor(rootDir string) string {
	return "ws_" + strings.ReplaceAll(uuid.NewSHA1(uuid.Nil, []byte(rootDir)).String(), "-", "")[:16]
}

// WorkspaceID returns the workspace every session from this store belongs
// to, for callers that need it to populate event metadata directly
// (e.g. the native orchestrator's EventSink/CycleInfo).
func (s *EventStoreBackedStore) WorkspaceID() string {
	return s.workspaceID
}

// EventStore exposes the underlying append-only store so callers that need
// to attach their own EventSink (the native orchestrator) don't need a
// second connection opened to the same database.
func (s *EventStoreBackedStore) EventStore() *eventstore.Store {
	return s.store
}

// Create starts a new session in the store's workspace.
func (s *EventStoreBackedStore) Create() (*Session, error) {
	ctx := context.Background()
	sess := eventstore.Session{
		ID:          "sess_" + strings.ReplaceAll(uuid.NewString()[:8], "-", ""),
		WorkspaceID: s.workspaceID,
		Status:      eventstore.SessionActive,
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	created, err := s.store.GetSession(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	return fromEventstoreSession(created), nil
}

// Get reads session metadata by ID.
func (s *EventStoreBackedStore) Get(id string) (*Session, error) {
	sess, err := s.store.GetSession(context.Background(), id)
	if err != nil {
		return nil, fmt.Errorf("session not found: %s: %w", id, err)
	}
	return fromEventstoreSession(sess), nil
}

// List returns every session in this store's workspace, most recently
// updated first.
func (s *EventStoreBackedStore) List() ([]*Session, error) {
	sessList, err := s.store.ListSessions(context.Background(), s.workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	out := make([]*Session, len(sessList))
	for i, sess := range sessList {
		out[i] = fromEventstoreSession(sess)
	}
	return out, nil
}

// UpdateMeta is a no-op: the event store derives session metadata from
// appended events rather than accepting a blind metadata overwrite. Use
// the typed Append-based operations (SetSessionStatus, AppendMessage) to
// change session state.
func (s *EventStoreBackedStore) UpdateMeta(sess *Session) error {
	return nil
}

// Close archives the session.
func (s *EventStoreBackedStore) Close(id string) error {
	return s.store.SetSessionStatus(context.Background(), id, eventstore.SessionArchived)
}

// AppendMessage records msg as a message.user or message.assistant event,
// incrementing the session's message count via Store.Append.
func (s *EventStoreBackedStore) AppendMessage(sessionID string, msg Message) error {
	ctx := context.Background()

	var payload eventstore.EventPayload
	switch msg.Role {
	case "assistant":
		payload = eventstore.AssistantMessagePayload{Content: msg.Content}
	case "system":
		payload = eventstore.SystemMessagePayload{Content: msg.Content}
	default:
		payload = eventstore.UserMessagePayload{Content: msg.Content}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	_, err = s.store.Append(ctx, sessionID, s.workspaceID, payload, data)
	return err
}

// LoadMessages replays a session's message.* events back into Messages.
func (s *EventStoreBackedStore) LoadMessages(sessionID string) ([]Message, error) {
	ctx := context.Background()
	events, err := s.store.GetEventsBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}

	var messages []Message
	for _, ev := range events {
		role, ok := roleFor(ev.Type)
		if !ok {
			continue
		}
		var body struct {
			Content string `json:"content"`
		}
		if err := json.Unmarshal(ev.Payload, &body); err != nil {
			continue
		}
		messages = append(messages, Message{Role: role, Content: body.Content, Ts: ev.Timestamp})
	}
	return messages, nil
}

func roleFor(t eventstore.EventType) (string, bool) {
	switch t {
	case eventstore.EventMessageUser:
		return "user", true
	case eventstore.EventMessageAssistant:
		return "assistant", true
	case eventstore.EventMessageSystem:
		return "system", true
	default:
		return "", false
	}
}

func fromEventstoreSession(sess eventstore.Session) *Session {
	status := SessionActive
	if sess.Status != eventstore.SessionActive {
		status = SessionClosed
	}
	return &Session{
		ID:           sess.ID,
		Title:        sess.Title,
		CreatedAt:    sess.CreatedAt,
		UpdatedAt:    sess.UpdatedAt,
		Status:       status,
		Model:        sess.Model,
		MessageCount: sess.MessageCount,
		TokenUsage:   TokenUsage{Input: sess.TokenUsage.Input, Output: sess.TokenUsage.Output},
		RootDir:      sess.RootDir,
		Language:     sess.Language,
		Summary:      sess.Summary,
		SummaryUpTo:  sess.SummaryUpTo,
	}
}

var _ Store = (*EventStoreBackedStore)(nil)
