package eventstore

// Payload types for the message slice of the event-type enumeration.

type UserMessagePayload struct {
	Content string `json:"content"`
}

func (UserMessagePayload) EventType() EventType { return EventMessageUser }

type AssistantMessagePayload struct {
	Content string `json:"content"`
}

func (AssistantMessagePayload) EventType() EventType { return EventMessageAssistant }

type SystemMessagePayload struct {
	Content string `json:"content"`
}

func (SystemMessagePayload) EventType() EventType { return EventMessageSystem }
