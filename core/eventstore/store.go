// Package eventstore holds the append-only, deduplicated record of
// conversation events received from the remote session.
package eventstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/koscakluka/ema-sync/core/events"
	"github.com/koscakluka/ema-sync/internal/clock"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrMissingID        = errors.New("event has no id")
	ErrUnknownKind      = errors.New("event kind is not recognized")
	ErrBlankContent     = errors.New("event content is blank")
	ErrInvalidTimestamp = errors.New("event timestamp is invalid")
)

type Reason string

const (
	ReasonNone           Reason = ""
	ReasonDuplicate      Reason = "duplicate"
	ReasonMalformed      Reason = "malformed"
	ReasonForeignSession Reason = "foreign-session"
)

// Result describes the outcome of a single ingestion. Event is populated for
// accepted events and for duplicates that passed validation.
type Result struct {
	Accepted bool
	Reason   Reason
	Event    events.StoreEvent
	Err      error
}

type Store struct {
	mu sync.RWMutex

	// entries is kept sorted by timestamp; equal timestamps keep arrival
	// order.
	entries []events.StoreEvent
	// known holds every id ever accepted, including evicted ones, so a
	// redelivered event never reappears.
	known map[string]struct{}

	// seq is the arrival sequence of the last accepted event.
	seq uint64

	capacity      int
	sessionID     string
	sessionScoped bool

	clock  clock.Clock
	logger *slog.Logger
}

type Option func(*Store)

// WithCapacity bounds the number of retained events. The oldest events by
// timestamp are evicted first. Zero or less keeps everything.
func WithCapacity(capacity int) Option {
	return func(s *Store) { s.capacity = capacity }
}

// WithSessionScope rejects events whose origin session is set and differs
// from sessionID.
func WithSessionScope(sessionID string) Option {
	return func(s *Store) {
		s.sessionID = sessionID
		s.sessionScoped = sessionID != ""
	}
}

func WithClock(c clock.Clock) Option {
	return func(s *Store) {
		if c != nil {
			s.clock = c
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

func New(opts ...Option) *Store {
	s := &Store{
		known:  map[string]struct{}{},
		clock:  clock.New(),
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IngestJSON decodes a raw store event and ingests it.
func (s *Store) IngestJSON(data []byte) Result {
	raw, err := events.ParseRaw(data)
	if err != nil {
		return s.reject(Result{Reason: ReasonMalformed, Err: err}, "")
	}
	return s.Ingest(raw)
}

// Ingest validates raw and inserts it unless its id is already known.
// Malformed input is reported through the result and logged, never returned
// as a failure of the store.
func (s *Store) Ingest(raw events.Raw) Result {
	event, err := s.validate(raw)
	if err != nil {
		return s.reject(Result{Reason: ReasonMalformed, Err: err}, raw.ID)
	}

	if s.sessionScoped && event.OriginSessionID != "" && event.OriginSessionID != s.sessionID {
		return s.reject(Result{Reason: ReasonForeignSession, Event: event}, event.ID)
	}

	return s.insert(event)
}

// InsertLocal stores an event created on this side, such as an optimistic
// echo of the user's own message.
func (s *Store) InsertLocal(event events.StoreEvent) Result {
	if strings.TrimSpace(event.ID) == "" {
		return s.reject(Result{Reason: ReasonMalformed, Err: ErrMissingID}, "")
	}
	if event.Kind.RequiresContent() && events.IsBlank(event.Content) {
		return s.reject(Result{Reason: ReasonMalformed, Err: ErrBlankContent}, event.ID)
	}
	if event.Timestamp == 0 {
		event.Timestamp = clock.UnixMilli(s.clock)
	}
	event.Local = true
	return s.insert(event)
}

func (s *Store) validate(raw events.Raw) (events.StoreEvent, error) {
	id := strings.TrimSpace(raw.ID)
	if id == "" {
		return events.StoreEvent{}, ErrMissingID
	}

	kind, ok := events.ParseStoreKind(raw.Kind)
	if !ok {
		return events.StoreEvent{}, fmt.Errorf("%w: %q", ErrUnknownKind, raw.Kind)
	}

	if kind.RequiresContent() && events.IsBlank(raw.Content) {
		return events.StoreEvent{}, ErrBlankContent
	}

	timestamp, err := events.ParseTimestamp(raw.Timestamp)
	if err != nil {
		return events.StoreEvent{}, fmt.Errorf("%w: %w", ErrInvalidTimestamp, err)
	}
	if timestamp == 0 {
		timestamp = clock.UnixMilli(s.clock)
	}

	event := events.StoreEvent{
		ID:              id,
		Kind:            kind,
		Action:          raw.Action,
		Content:         raw.Content,
		Timestamp:       timestamp,
		Internal:        raw.Internal,
		OriginSessionID: raw.SoulID,
	}
	if raw.Metadata != nil {
		event.EchoID = raw.Metadata.LocalID
	}
	return event, nil
}

func (s *Store) insert(event events.StoreEvent) Result {
	s.mu.Lock()
	if _, ok := s.known[event.ID]; ok {
		s.mu.Unlock()
		s.count(ReasonDuplicate)
		s.logger.Debug("ignoring duplicate store event", "id", event.ID)
		return Result{Reason: ReasonDuplicate, Event: event}
	}

	s.known[event.ID] = struct{}{}
	s.seq++
	event.Seq = s.seq
	idx := sort.Search(len(s.entries), func(i int) bool {
		return s.entries[i].Timestamp > event.Timestamp
	})
	s.entries = slices.Insert(s.entries, idx, event)

	evicted := 0
	if s.capacity > 0 && len(s.entries) > s.capacity {
		evicted = len(s.entries) - s.capacity
		s.entries = slices.Clone(s.entries[evicted:])
	}
	s.mu.Unlock()

	s.count(ReasonNone)
	if evicted > 0 {
		s.logger.Debug("evicted oldest store events", "count", evicted)
	}
	return Result{Accepted: true, Event: event}
}

func (s *Store) reject(result Result, id string) Result {
	s.count(result.Reason)
	switch result.Reason {
	case ReasonMalformed:
		s.logger.Warn("dropping malformed store event", "id", id, "error", result.Err)
	case ReasonForeignSession:
		s.logger.Debug("ignoring store event from another session", "id", id, "origin", result.Event.OriginSessionID)
	}
	return result
}

func (s *Store) count(reason Reason) {
	outcome := string(reason)
	if reason == ReasonNone {
		outcome = "accepted"
	}
	ingestedEvents.Add(context.Background(), 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// Snapshot returns the stored events ordered by timestamp, ties broken by
// arrival order. Each event carries its arrival sequence in Seq.
func (s *Store) Snapshot() []events.StoreEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.entries)
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Contains reports whether id was ever accepted, even if it has since been
// evicted.
func (s *Store) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.known[id]
	return ok
}
