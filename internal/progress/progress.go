// Package progress carries orchestration stage events to interested
// clients. Delivery is best-effort: a slow or vanished client never affects
// the analysis itself.
package progress

import "sync"

// Stage names emitted by the orchestrator, in order.
const (
	StageStarted        = "started"
	StageFanOutComplete = "fanout_complete"
	StageFinalizing     = "finalizing"
	StageDone           = "done"
	StageError          = "error"
)

// Event is the wire shape pushed to clients.
type Event struct {
	Type string    `json:"type"` // always "progress"
	Data EventData `json:"data"`
}

// EventData holds the stage payload.
type EventData struct {
	Progress int    `json:"progress"` // 0-100
	Status   string `json:"status"`
	Message  string `json:"message"`
}

// NewEvent builds a progress event.
func NewEvent(percent int, status, message string) Event {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	return Event{Type: "progress", Data: EventData{Progress: percent, Status: status, Message: message}}
}

// Reporter is the sink the orchestrator publishes stage events to.
// Implementations must be safe for concurrent use and must not block.
type Reporter interface {
	Publish(clientID string, ev Event)
}

// Discard is a Reporter that drops every event. Useful when embedding the
// orchestrator without a push channel, and in tests.
type Discard struct{}

func (Discard) Publish(string, Event) {}

// Recorder collects published events in memory. Test helper.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ string, ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

// Events returns a copy of the events published so far, in order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}
