// Package timeline projects stored conversation events into the ordered,
// windowed list of messages shown to the user.
package timeline

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/koscakluka/ema-sync/core/events"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

type Message struct {
	ID        string
	Role      Role
	Text      string
	CreatedAt int64 // milliseconds since epoch
	Local     bool
}

func (m Message) Time() time.Time {
	return time.UnixMilli(m.CreatedAt)
}

// DisplayEligible reports whether event belongs on any display path.
func DisplayEligible(event events.StoreEvent) bool {
	if events.IsBlank(event.Content) {
		return false
	}

	switch event.Kind {
	case events.StoreKindAgentSays:
		return event.Action == events.ActionSays
	case events.StoreKindUserSaid:
		return event.Action == events.ActionSaid
	case events.StoreKindPerception:
		return !event.Internal && event.Action == events.ActionSaid
	}
	return false
}

// Project filters evts to displayable messages, orders them by timestamp and
// keeps the last windowSize of them. A non-positive windowSize yields no
// messages.
//
// A local echo is dropped once the remote session confirms it: either a
// remote user message tagged with the echo's id, or an untagged remote user
// message with the same text that arrived after the echo. Arrival is judged
// by Seq, never by timestamps, which come from different clocks.
//
// Project does not modify evts and returns the same output for the same
// input.
func Project(evts []events.StoreEvent, windowSize int) []Message {
	if windowSize <= 0 {
		return nil
	}

	eligible := make([]events.StoreEvent, 0, len(evts))
	for _, event := range evts {
		if DisplayEligible(event) {
			eligible = append(eligible, event)
		}
	}

	confirmed := confirmedEchoes(eligible)
	messages := make([]Message, 0, len(eligible))
	for _, event := range eligible {
		if _, ok := confirmed[event.ID]; ok && event.Local {
			continue
		}
		messages = append(messages, toMessage(event))
	}

	slices.SortStableFunc(messages, func(a, b Message) int {
		switch {
		case a.CreatedAt < b.CreatedAt:
			return -1
		case a.CreatedAt > b.CreatedAt:
			return 1
		}
		return 0
	})

	if len(messages) > windowSize {
		messages = messages[len(messages)-windowSize:]
	}
	return messages
}

// LatestAgent returns the newest agent message in evts.
func LatestAgent(evts []events.StoreEvent) (Message, bool) {
	var (
		latest Message
		found  bool
	)
	for _, event := range evts {
		if event.Kind != events.StoreKindAgentSays || !DisplayEligible(event) {
			continue
		}
		if !found || event.Timestamp >= latest.CreatedAt {
			latest = toMessage(event)
			found = true
		}
	}
	return latest, found
}

func toMessage(event events.StoreEvent) Message {
	role := RoleUser
	if event.Kind == events.StoreKindAgentSays {
		role = RoleAgent
	}

	return Message{
		ID:        event.ID,
		Role:      role,
		Text:      event.Content,
		CreatedAt: event.Timestamp,
		Local:     event.Local,
	}
}

// confirmedEchoes returns the ids of local echoes the remote session has
// already reported back. Each remote message confirms at most one echo.
func confirmedEchoes(evts []events.StoreEvent) map[string]struct{} {
	var echoes, remotes []events.StoreEvent
	for _, event := range evts {
		if event.Kind == events.StoreKindAgentSays {
			continue
		}
		if event.Local {
			echoes = append(echoes, event)
		} else {
			remotes = append(remotes, event)
		}
	}
	if len(echoes) == 0 || len(remotes) == 0 {
		return nil
	}

	bySeq := func(a, b events.StoreEvent) int { return cmp.Compare(a.Seq, b.Seq) }
	slices.SortStableFunc(echoes, bySeq)
	slices.SortStableFunc(remotes, bySeq)

	confirmed := map[string]struct{}{}
	for _, remote := range remotes {
		if remote.EchoID != "" {
			confirmed[remote.EchoID] = struct{}{}
		}
	}

	for _, remote := range remotes {
		// tagged messages belong to an echo, possibly of another client
		if remote.EchoID != "" {
			continue
		}
		for _, echo := range echoes {
			if echo.Seq >= remote.Seq {
				break
			}
			if _, ok := confirmed[echo.ID]; ok || strings.TrimSpace(echo.Content) != strings.TrimSpace(remote.Content) {
				continue
			}
			confirmed[echo.ID] = struct{}{}
			break
		}
	}
	return confirmed
}
