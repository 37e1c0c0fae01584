package models

import (
	"fmt"
	"strings"
)

// Event is a queue message lifecycle event. Its integer value is the rank
// persisted in the event column; the highest rank seen for a message is its
// last known state.
type Event int

const (
	EventSeen      Event = 1
	EventInvalid   Event = 2
	EventStart     Event = 3
	EventException Event = 4
	EventSuccess   Event = 5
	EventReject    Event = 6
	EventFailure   Event = 7
)

// QualifiedPrefix is prepended to the short name by the queue runtime.
const QualifiedPrefix = "Processor.message."

var events = []Event{
	EventSeen,
	EventInvalid,
	EventStart,
	EventException,
	EventSuccess,
	EventReject,
	EventFailure,
}

var eventNames = map[Event]string{
	EventSeen:      "seen",
	EventInvalid:   "invalid",
	EventStart:     "start",
	EventException: "exception",
	EventSuccess:   "success",
	EventReject:    "reject",
	EventFailure:   "failure",
}

// Seen and Start leave a job running; every other event ends it.
var nonTerminal = map[Event]struct{}{
	EventSeen:  {},
	EventStart: {},
}

// Events returns every lifecycle event in rank order.
func Events() []Event {
	out := make([]Event, len(events))
	copy(out, events)
	return out
}

// ParseEvent resolves a notification name. Both the short form ("start") and
// the runtime's qualified form ("Processor.message.start") are accepted.
func ParseEvent(name string) (Event, error) {
	short := strings.TrimPrefix(strings.TrimSpace(name), QualifiedPrefix)
	for _, e := range events {
		if eventNames[e] == short {
			return e, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownEventKind, name)
}

// EventFromRank is the reverse of Rank.
func EventFromRank(rank int) (Event, error) {
	e := Event(rank)
	if !e.Valid() {
		return 0, fmt.Errorf("%w: rank %d", ErrUnknownEventKind, rank)
	}
	return e, nil
}

// RankOf maps a notification name to its stored rank.
func RankOf(name string) (int, error) {
	e, err := ParseEvent(name)
	if err != nil {
		return 0, err
	}
	return e.Rank(), nil
}

// IsTerminal reports whether rank belongs to an event that ends a job.
// Ranks outside the enumeration are never terminal.
func IsTerminal(rank int) bool {
	return Event(rank).IsTerminal()
}

// NonTerminalRanks lists the ranks of events that leave a job running.
func NonTerminalRanks() []int {
	out := make([]int, 0, len(nonTerminal))
	for _, e := range events {
		if _, ok := nonTerminal[e]; ok {
			out = append(out, e.Rank())
		}
	}
	return out
}

// EventOptions maps rank to display name, e.g. 3 => "Start".
func EventOptions() map[int]string {
	out := make(map[int]string, len(events))
	for _, e := range events {
		out[e.Rank()] = e.String()
	}
	return out
}

func (e Event) Valid() bool {
	_, ok := eventNames[e]
	return ok
}

func (e Event) Rank() int { return int(e) }

func (e Event) IsTerminal() bool {
	if !e.Valid() {
		return false
	}
	_, running := nonTerminal[e]
	return !running
}

// Name is the short notification name, e.g. "start".
func (e Event) Name() string {
	return eventNames[e]
}

// QualifiedName is the name emitted by the queue runtime.
func (e Event) QualifiedName() string {
	if !e.Valid() {
		return ""
	}
	return QualifiedPrefix + eventNames[e]
}

func (e Event) String() string {
	name, ok := eventNames[e]
	if !ok {
		return fmt.Sprintf("Event(%d)", int(e))
	}
	return strings.ToUpper(name[:1]) + name[1:]
}
