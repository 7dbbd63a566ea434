package events

import (
	"encoding/json"
	"fmt"
)

// Envelope frames every message exchanged with the remote session.
type Envelope struct {
	Event string          `json:"event" jsonschema:"title=Channel"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func ParseEnvelope(data []byte) (Envelope, error) {
	var envelope Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return Envelope{}, fmt.Errorf("failed to decode envelope: %w", err)
	}
	if envelope.Event == "" {
		return Envelope{}, fmt.Errorf("envelope has no event channel")
	}
	return envelope, nil
}

// Said is the outbound action record for something the user said.
type Said struct {
	Action   string       `json:"action"`
	Name     string       `json:"name"`
	Content  string       `json:"content"`
	Metadata SaidMetadata `json:"_metadata"`
}

type SaidMetadata struct {
	ConnectedUsers int    `json:"connectedUsers"`
	LocalID        string `json:"localId,omitempty"`
}

// NewUserSaid builds the record dispatched when the user sends a message.
func NewUserSaid(content string, connectedUsers int, localID string) Said {
	return Said{
		Action:   ActionSaid,
		Name:     "User",
		Content:  content,
		Metadata: SaidMetadata{ConnectedUsers: connectedUsers, LocalID: localID},
	}
}
