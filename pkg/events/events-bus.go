// Package events fans successful mutations out to connected clients.
// Broadcasts are staleness notifications, not a source of truth: a listener
// that misses one, or reconnects, must re-fetch state through the entity routes.
package events

import "sync"

const (
	EntityUpdated = "entity:update"
	EntityDeleted = "entity:delete"
)

// Event describes a single committed mutation; Data carries the new record
// value for updates and is omitted for deletions.
type Event struct {
	Name string `json:"event"`
	Kind string `json:"kind"`
	Id   string `json:"id"`
	Data any    `json:"data,omitempty"`
}

// Bus is the change broadcaster handed to repositories and the entity registry
// at construction, so tests can substitute a recorder for the websocket hub.
type Bus interface {
	// PublishUpdate announces a created or updated record to all connected listeners.
	PublishUpdate(kind, id string, data any)

	// PublishDelete announces a removed record to all connected listeners.
	PublishDelete(kind, id string)
}

// Recorder collects published events in memory; meant for tests and dry runs.
type Recorder struct {
	mutex  sync.Mutex
	events []Event
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) PublishUpdate(kind, id string, data any) {
	r.append(Event{Name: EntityUpdated, Kind: kind, Id: id, Data: data})
}

func (r *Recorder) PublishDelete(kind, id string) {
	r.append(Event{Name: EntityDeleted, Kind: kind, Id: id})
}

func (r *Recorder) append(event Event) {
	r.mutex.Lock()
	r.events = append(r.events, event)
	r.mutex.Unlock()
}

// Events returns a copy of the published events, in publication order.
func (r *Recorder) Events() []Event {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return append(make([]Event, 0, len(r.events)), r.events...)
}

// Matching returns the recorded events bearing the given name and kind.
func (r *Recorder) Matching(name, kind string) (matched []Event) {
	for _, event := range r.Events() {
		if event.Name == name && event.Kind == kind {
			matched = append(matched, event)
		}
	}
	return matched
}
