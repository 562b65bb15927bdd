package eventstore

// Payload types for the compaction/memory slice of the event-type
// enumeration. Other event types get their typed payloads as the
// packages that emit them are built out.

type CompactBoundaryPayload struct {
	Reason          string  `json:"reason"`
	TokenRatio      float64 `json:"token_ratio"`
	MessagesRemoved int     `json:"messages_removed"`
}

func (CompactBoundaryPayload) EventType() EventType { return EventCompactBoundary }

type CompactSummaryPayload struct {
	Summary string `json:"summary"`
}

func (CompactSummaryPayload) EventType() EventType { return EventCompactSummary }

type MemoryUpdatingPayload struct{}

func (MemoryUpdatingPayload) EventType() EventType { return EventMemoryUpdating }

type MemoryLedgerPayload struct {
	Title     string   `json:"title"`
	EntryType string   `json:"entry_type"`
	Content   string   `json:"content,omitempty"`
	Lessons   []string `json:"lessons,omitempty"`
	Decisions []struct {
		Choice string `json:"choice"`
		Reason string `json:"reason"`
	} `json:"decisions,omitempty"`
}

func (MemoryLedgerPayload) EventType() EventType { return EventMemoryLedger }

type MemoryUpdatedPayload struct {
	Title     string `json:"title"`
	EntryType string `json:"entry_type"`
}

func (MemoryUpdatedPayload) EventType() EventType { return EventMemoryUpdated }
