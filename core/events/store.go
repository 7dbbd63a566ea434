package events

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

type StoreKind string

const (
	StoreKindUserSaid   StoreKind = "user-said"
	StoreKindPerception StoreKind = "perception"
	StoreKindAgentSays  StoreKind = "agent-says"
	StoreKindSystem     StoreKind = "system"
)

const (
	ActionSays = "says"
	ActionSaid = "said"
)

// millisecondThreshold separates seconds-scale from milliseconds-scale
// timestamps.
const millisecondThreshold = 1_000_000_000_000

var wireKinds = map[string]StoreKind{
	"interactionRequest": StoreKindAgentSays,
	"user-added":         StoreKindUserSaid,
	"perception":         StoreKindPerception,
	"system":             StoreKindSystem,

	string(StoreKindAgentSays): StoreKindAgentSays,
	string(StoreKindUserSaid):  StoreKindUserSaid,
}

// ParseStoreKind folds a wire kind into the closed set of store kinds.
func ParseStoreKind(wire string) (StoreKind, bool) {
	kind, ok := wireKinds[wire]
	return kind, ok
}

// RequiresContent reports whether events of this kind can reach a display
// path and therefore must carry non-blank content.
func (k StoreKind) RequiresContent() bool {
	switch k {
	case StoreKindUserSaid, StoreKindAgentSays, StoreKindPerception:
		return true
	}
	return false
}

// StoreEvent is a validated, immutable conversation record.
type StoreEvent struct {
	ID              string
	Kind            StoreKind
	Action          string
	Content         string
	Timestamp       int64 // milliseconds since epoch
	Internal        bool
	OriginSessionID string

	// Local marks an optimistic echo created on this side before the remote
	// session has seen it.
	Local bool
	// EchoID is the id of the local echo a remote user message confirms, when
	// the sender tagged it.
	EchoID string
	// Seq is the arrival order assigned by the store, starting at 1.
	Seq uint64
}

func (e StoreEvent) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// Raw is the dynamically shaped store event as received from the transport.
type Raw struct {
	ID        string        `json:"_id" jsonschema:"title=ID,description=Identifier stable across redelivery"`
	Kind      string        `json:"_kind" jsonschema:"title=Kind,enum=perception,enum=interactionRequest,enum=system,enum=user-added"`
	Action    string        `json:"action,omitempty"`
	Content   string        `json:"content,omitempty"`
	Timestamp json.Number   `json:"_timestamp,omitempty" jsonschema:"title=Timestamp,description=Seconds or milliseconds since epoch"`
	Internal  bool          `json:"internal,omitempty"`
	SoulID    string        `json:"soulId,omitempty" jsonschema:"title=Origin session"`
	Metadata  *SaidMetadata `json:"_metadata,omitempty"`
}

// ParseRaw decodes a store event payload without validating it.
func ParseRaw(data []byte) (Raw, error) {
	var raw Raw
	if err := json.Unmarshal(data, &raw); err != nil {
		return Raw{}, fmt.Errorf("failed to decode store event: %w", err)
	}
	return raw, nil
}

// ParseTimestamp reads a wire timestamp and normalizes it to milliseconds. An
// empty value yields zero.
func ParseTimestamp(value json.Number) (int64, error) {
	if value == "" {
		return 0, nil
	}

	if ts, err := value.Int64(); err == nil {
		if ts < 0 {
			return 0, fmt.Errorf("invalid timestamp %q", value)
		}
		return NormalizeTimestamp(ts), nil
	}

	ts, err := value.Float64()
	if err != nil || math.IsNaN(ts) || math.IsInf(ts, 0) || ts < 0 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	if ts < millisecondThreshold {
		ts *= 1000
	}
	return int64(ts), nil
}

// NormalizeTimestamp converts a seconds-scale timestamp to milliseconds and
// leaves millisecond-scale timestamps untouched.
func NormalizeTimestamp(ts int64) int64 {
	if ts < millisecondThreshold {
		return ts * 1000
	}
	return ts
}

// IsBlank reports whether text has no visible content.
func IsBlank(text string) bool {
	return strings.TrimSpace(text) == ""
}
