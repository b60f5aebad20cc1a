// Package events carries change notifications from the domain components to
// observers such as the dashboard.
//
// Events are published only after the scope that produced them commits, so
// an observer never sees a change that was rolled back.
package events

import (
	"sync"
	"time"
)

// Entity names the kind of row an event concerns.
type Entity string

const (
	EntityList      Entity = "list"
	EntityTask      Entity = "task"
	EntityTemplate  Entity = "template"
	EntityTag       Entity = "tag"
	EntityAttribute Entity = "attribute"
)

// Action describes what happened to the entity.
type Action string

const (
	ActionCreated    Action = "created"
	ActionUpdated    Action = "updated"
	ActionDeleted    Action = "deleted"
	ActionMoved      Action = "moved"
	ActionOrphaned   Action = "orphaned"
	ActionAutoPaused Action = "auto_paused"
	ActionApplied    Action = "applied"
	ActionTagged     Action = "tagged"
	ActionUntagged   Action = "untagged"
)

// Event is one committed change.
type Event struct {
	Entity  Entity    `json:"entity"`
	Action  Action    `json:"action"`
	ID      int64     `json:"id"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload,omitempty"`
}

// Notifier receives committed events. Implementations must not block.
type Notifier interface {
	Notify(Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Event)

func (f NotifierFunc) Notify(e Event) { f(e) }

// Nop discards every event.
var Nop Notifier = NotifierFunc(func(Event) {})

// Buffer collects events inside a scope until it commits.
// A nil *Buffer discards everything added to it.
type Buffer struct {
	events []Event
}

// Add records an event stamped with the current time.
func (b *Buffer) Add(entity Entity, action Action, id int64, payload any) {
	if b == nil {
		return
	}
	b.events = append(b.events, Event{Entity: entity, Action: action, ID: id, At: time.Now().UTC(), Payload: payload})
}

// Len returns the number of buffered events.
func (b *Buffer) Len() int {
	if b == nil {
		return 0
	}
	return len(b.events)
}

// Flush delivers the buffered events in order and empties the buffer.
func (b *Buffer) Flush(n Notifier) {
	if b == nil {
		return
	}
	if n != nil {
		for _, e := range b.events {
			n.Notify(e)
		}
	}
	b.events = nil
}

// Fanout delivers each event to every notifier in order.
type Fanout []Notifier

func (f Fanout) Notify(e Event) {
	for _, n := range f {
		if n != nil {
			n.Notify(e)
		}
	}
}

// Recorder keeps every event it receives. Safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Notify(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Count returns how many recorded events match entity and action.
func (r *Recorder) Count(entity Entity, action Action) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Entity == entity && e.Action == action {
			n++
		}
	}
	return n
}

// Reset discards the recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
