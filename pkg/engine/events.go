package engine

import (
	"maps"
	"time"
)

// EventKind is the type of an OutputEvent.
type EventKind string

const (
	KindLog          EventKind = "log"
	KindInfo         EventKind = "info"
	KindWarning      EventKind = "warning"
	KindError        EventKind = "error"
	KindSuccess      EventKind = "success"
	KindResult       EventKind = "result"
	KindEmailPreview EventKind = "email-preview"
	KindEmailSending EventKind = "email-sending"
	KindEmailSent    EventKind = "email-sent"
	KindTestMode     EventKind = "test-mode"
	KindAIResult     EventKind = "ai-result"
)

// OutputEvent is one record of something a run did or observed. Events are
// never modified after they are appended to a log; every copy handed out
// carries its own Metadata map.
type OutputEvent struct {
	Kind      EventKind      `json:"type"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Listener receives the full ordered event log after every append. It is
// called synchronously on the run's goroutine and must return promptly.
type Listener func(events []OutputEvent)

// EventLog is the append-only output of one run.
type EventLog struct {
	events   []OutputEvent
	listener Listener
	now      func() time.Time
	onAppend func(OutputEvent)
}

func NewEventLog(listener Listener, now func() time.Time) *EventLog {
	if now == nil {
		now = time.Now
	}
	return &EventLog{listener: listener, now: now}
}

// Append timestamps and records an event, then notifies the listener.
// Timestamps never go backwards even if the clock does.
func (l *EventLog) Append(kind EventKind, content string, metadata map[string]any) OutputEvent {
	ts := l.now()
	if n := len(l.events); n > 0 && ts.Before(l.events[n-1].Timestamp) {
		ts = l.events[n-1].Timestamp
	}

	ev := OutputEvent{Kind: kind, Content: content, Timestamp: ts, Metadata: maps.Clone(metadata)}
	l.events = append(l.events, ev)

	if l.onAppend != nil {
		l.onAppend(ev.clone())
	}
	if l.listener != nil {
		l.listener(l.Events())
	}
	return ev.clone()
}

// Events returns a copy of the log. Changes to the copy, metadata included,
// do not reach the log.
func (l *EventLog) Events() []OutputEvent {
	out := make([]OutputEvent, len(l.events))
	for i, ev := range l.events {
		out[i] = ev.clone()
	}
	return out
}

func (ev OutputEvent) clone() OutputEvent {
	ev.Metadata = maps.Clone(ev.Metadata)
	return ev
}

func (l *EventLog) Len() int {
	return len(l.events)
}
