package interview

import (
	"sync"
	"time"

	"github.com/marcussrh/interview-console/pkg/realtime"
)

// Entry is one displayed row of the protocol event log. Consecutive
// events of the same type collapse into a single row with a count,
// which keeps audio-append bursts readable.
type Entry struct {
	Time    time.Time            `json:"time"`
	Source  realtime.EventSource `json:"source"`
	Type    string               `json:"type"`
	Count   int                  `json:"count"`
	Payload map[string]any       `json:"payload"`

	// OffsetMs is the time since the log was last cleared, which is
	// the session start. Displays show this instead of wall time.
	OffsetMs int64 `json:"offset_ms"`
}

// EventLog accumulates protocol traffic for display. Safe for
// concurrent use.
type EventLog struct {
	mu      sync.Mutex
	entries []Entry
	notify  func(Entry)
	start   time.Time
}

// NewEventLog creates an empty log.
func NewEventLog() *EventLog {
	return &EventLog{start: time.Now()}
}

// Notify sets an observer invoked with the affected row after every
// Append. The observer must not call back into the log.
func (l *EventLog) Notify(fn func(Entry)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notify = fn
}

// Append records a raw protocol event, coalescing it into the
// previous entry when the type repeats.
func (l *EventLog) Append(evt realtime.RawEvent) {
	l.mu.Lock()

	eventType := evt.EventType()
	if n := len(l.entries); n > 0 && l.entries[n-1].Type == eventType {
		// Repeats bump the count only; the row keeps the timestamp
		// of its first occurrence.
		l.entries[n-1].Count++
		entry, fn := l.entries[n-1], l.notify
		l.mu.Unlock()
		if fn != nil {
			fn(entry)
		}
		return
	}
	entry := Entry{
		Time:     evt.Time,
		Source:   evt.Source,
		Type:     eventType,
		Count:    1,
		Payload:  evt.Event,
		OffsetMs: evt.Time.Sub(l.start).Milliseconds(),
	}
	l.entries = append(l.entries, entry)
	fn := l.notify
	l.mu.Unlock()
	if fn != nil {
		fn(entry)
	}
}

// Entries returns a copy of the log in arrival order.
func (l *EventLog) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of displayed rows.
func (l *EventLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Clear empties the log and re-anchors offsets. Called on session
// start and teardown.
func (l *EventLog) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
	l.start = time.Now()
}
