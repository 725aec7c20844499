// Package control exposes the engine to hosts: an HTTP surface for starting,
// observing, cancelling and resuming sessions, plus read access to the
// application history and the learned question bank. Sessions are explicit
// handles in a registry keyed by ID; nothing is process-global.
package control

import (
	"fmt"
	"sync"
	"time"

	"github.com/hazyhaar/applyd/idgen"
	"github.com/hazyhaar/applyd/session"
)

// eventBufferSize caps the per-session replay buffer. Older events drop;
// the stats in progress events are cumulative so nothing is lost that
// matters for the summary.
const eventBufferSize = 200

// finishedRetain caps how many finished sessions stay queryable. Beyond it
// the oldest finished entries are evicted; running sessions never are, and
// their outcomes live on in the application history regardless.
const finishedRetain = 50

// entry pairs a session handle with its buffered event tail. finished is
// guarded by the registry mutex, not the entry's.
type entry struct {
	sess     *session.Session
	finished time.Time

	mu     sync.Mutex
	events []session.Event
}

func (e *entry) record(ev session.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
	if len(e.events) > eventBufferSize {
		e.events = e.events[len(e.events)-eventBufferSize:]
	}
}

func (e *entry) tail() []session.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]session.Event, len(e.events))
	copy(out, e.events)
	return out
}

// Registry tracks live and finished sessions by ID.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	newID   idgen.Generator
}

func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		newID:   idgen.Prefixed("sess_", idgen.UUIDv7()),
	}
}

// NewID mints a session identifier.
func (r *Registry) NewID() string { return r.newID() }

// Reserve registers id and returns the sink that buffers its events. The
// sink exists before the session so the session can be constructed with it;
// pair with Bind once the handle exists.
func (r *Registry) Reserve(id string) session.Sink {
	e := &entry{}
	r.mu.Lock()
	r.entries[id] = e
	r.mu.Unlock()
	return e.record
}

// Bind attaches the constructed session to its reserved entry and watches
// for its completion so finished entries can be evicted.
func (r *Registry) Bind(sess *session.Session) {
	r.mu.Lock()
	e, ok := r.entries[sess.ID]
	if ok {
		e.sess = sess
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	go func() {
		<-sess.Done()
		r.mu.Lock()
		e.finished = time.Now()
		r.evictLocked()
		r.mu.Unlock()
	}()
}

// evictLocked drops the oldest finished entries beyond finishedRetain.
// Callers hold r.mu.
func (r *Registry) evictLocked() {
	type done struct {
		id string
		at time.Time
	}
	var finished []done
	for id, e := range r.entries {
		if !e.finished.IsZero() {
			finished = append(finished, done{id, e.finished})
		}
	}
	for len(finished) > finishedRetain {
		oldest := 0
		for i := range finished {
			if finished[i].at.Before(finished[oldest].at) {
				oldest = i
			}
		}
		delete(r.entries, finished[oldest].id)
		finished[oldest] = finished[len(finished)-1]
		finished = finished[:len(finished)-1]
	}
}

// Drop removes a reserved entry whose session failed to construct.
func (r *Registry) Drop(id string) {
	r.mu.Lock()
	delete(r.entries, id)
	r.mu.Unlock()
}

// Get returns the session and its buffered events, or an error for an
// unknown ID.
func (r *Registry) Get(id string) (*session.Session, []session.Event, error) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok || e.sess == nil {
		return nil, nil, fmt.Errorf("control: unknown session %q", id)
	}
	return e.sess, e.tail(), nil
}

// IDs lists known session IDs.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.entries))
	for id := range r.entries {
		out = append(out, id)
	}
	return out
}
