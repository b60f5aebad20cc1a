package dashboard

import (
	"encoding/json"
	"sync"

	"github.com/tasklattice/tasklattice/internal/events"
	"github.com/tasklattice/tasklattice/internal/types"
)

// TaskUpdateData contains task change information
type TaskUpdateData struct {
	TaskID   int64          `json:"task_id"`
	Action   events.Action  `json:"action"`
	Status   types.Status   `json:"status,omitempty"`
	Title    string         `json:"title,omitempty"`
	Priority types.Priority `json:"priority,omitempty"`
	ListID   *int64         `json:"list_id,omitempty"`
}

// ListUpdateData contains list change information
type ListUpdateData struct {
	ListID   int64         `json:"list_id"`
	Action   events.Action `json:"action"`
	Name     string        `json:"name,omitempty"`
	ParentID *int64        `json:"parent_id,omitempty"`
}

// Handler turns domain events into dashboard messages. It implements
// events.Notifier and never blocks the caller.
type Handler struct {
	server *Server
}

var _ events.Notifier = (*Handler)(nil)

// NewHandler creates a handler connected to a dashboard server
func NewHandler(server *Server) *Handler {
	return &Handler{server: server}
}

// Notify counts e and queues its message.
func (h *Handler) Notify(e events.Event) {
	h.server.counter.Add(e)
	msg, err := Format(e)
	if err != nil {
		h.server.log.WithError(err).WithField("entity", e.Entity).Warn("failed to format event")
		return
	}
	h.server.Broadcast(msg)
}

// Format builds the message for one event.
func Format(e events.Event) (Message, error) {
	var (
		typ  = MessageTypeEvent
		data any = e
	)
	switch e.Entity {
	case events.EntityTask:
		typ = MessageTypeTaskUpdate
		d := TaskUpdateData{TaskID: e.ID, Action: e.Action}
		if t, ok := e.Payload.(*types.Task); ok && t != nil {
			d.Status, d.Title, d.Priority, d.ListID = t.Status, t.Title, t.Priority, t.ListID
		}
		data = d
	case events.EntityList:
		typ = MessageTypeListUpdate
		d := ListUpdateData{ListID: e.ID, Action: e.Action}
		if l, ok := e.Payload.(*types.TaskList); ok && l != nil {
			d.Name, d.ParentID = l.Name, l.ParentID
		}
		data = d
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: typ, Timestamp: e.At, Data: raw}, nil
}

// Counter tallies events by entity and action. Safe for concurrent use.
type Counter struct {
	mu     sync.Mutex
	counts map[string]map[string]int
}

func NewCounter() *Counter {
	return &Counter{counts: map[string]map[string]int{}}
}

func (c *Counter) Add(e events.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	byAction, ok := c.counts[string(e.Entity)]
	if !ok {
		byAction = map[string]int{}
		c.counts[string(e.Entity)] = byAction
	}
	byAction[string(e.Action)]++
}

// Snapshot returns a copy of the counts.
func (c *Counter) Snapshot() map[string]map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]map[string]int, len(c.counts))
	for entity, byAction := range c.counts {
		cp := make(map[string]int, len(byAction))
		for a, n := range byAction {
			cp[a] = n
		}
		out[entity] = cp
	}
	return out
}
