package registry

import (
	"log/slog"
	"sync"

	"github.com/reims-io/docflow/internal/document"
)

// EventType tags registry notifications for display collaborators.
type EventType int

const (
	EventRegistered EventType = iota
	EventUpdated
	EventRemoved
)

// Event is delivered to subscribers whenever the registry changes.
type Event struct {
	Type   EventType
	Record document.Record
}

// Registry is the single source of truth for what has been uploaded
// this session and its latest known state. Entries are ordered most
// recent first and keyed by the server-issued document id. Pollers run
// on their own goroutines, so all access goes through the lock.
type Registry struct {
	mu        sync.RWMutex
	byID      map[string]*document.Record
	order     []string
	cancels   map[string]func()
	observers []func(Event)
}

func New() *Registry {
	return &Registry{
		byID:    make(map[string]*document.Record),
		cancels: make(map[string]func()),
	}
}

// Subscribe adds an observer for registry changes. Observers are
// called after the mutation completes and outside the registry lock,
// with a copy of the affected record.
func (r *Registry) Subscribe(fn func(Event)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.observers = append(r.observers, fn)
}

// Register inserts a new record at the front of the display order. A
// duplicate id is a logged no-op and reports false.
func (r *Registry) Register(rec document.Record) bool {
	r.mu.Lock()

	if _, exists := r.byID[rec.ID]; exists {
		r.mu.Unlock()
		slog.Warn("document already registered", "id", rec.ID, "file", rec.FileName)

		return false
	}

	stored := rec
	r.byID[rec.ID] = &stored
	r.order = append([]string{rec.ID}, r.order...)

	observers := r.observers
	r.mu.Unlock()

	r.notify(observers, Event{Type: EventRegistered, Record: rec})

	return true
}

// Update merges the patch into the entry for id. A missing id is a
// silent no-op so a late poll response never resurrects a removed
// entry. Reports whether the entry changed.
func (r *Registry) Update(id string, patch document.Patch) bool {
	r.mu.Lock()

	rec, exists := r.byID[id]
	if !exists {
		r.mu.Unlock()
		return false
	}

	changed := patch.Apply(rec)
	snapshot := *rec

	observers := r.observers
	r.mu.Unlock()

	if changed {
		r.notify(observers, Event{Type: EventUpdated, Record: snapshot})
	}

	return changed
}

// Remove deletes the entry and cancels its bound poller, if any.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()

	rec, exists := r.byID[id]
	if !exists {
		r.mu.Unlock()
		return false
	}

	snapshot := *rec
	delete(r.byID, id)

	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	cancel := r.cancels[id]
	delete(r.cancels, id)

	observers := r.observers
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	r.notify(observers, Event{Type: EventRemoved, Record: snapshot})

	return true
}

// Bind associates a poller cancel function with a document so Remove
// can stop it. Binding for an already-removed id cancels immediately.
func (r *Registry) Bind(id string, cancel func()) {
	r.mu.Lock()

	if _, exists := r.byID[id]; !exists {
		r.mu.Unlock()
		cancel()

		return
	}

	r.cancels[id] = cancel
	r.mu.Unlock()
}

// Get returns a copy of the entry for id.
func (r *Registry) Get(id string) (document.Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, exists := r.byID[id]
	if !exists {
		return document.Record{}, false
	}

	return *rec, true
}

// List returns copies of all entries, most recent first.
func (r *Registry) List() []document.Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]document.Record, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.byID[id])
	}

	return out
}

// Len returns the number of registered documents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.byID)
}

func (r *Registry) notify(observers []func(Event), ev Event) {
	for _, fn := range observers {
		fn(ev)
	}
}
