// Package reconcile maintains a viewer's local materialized list of entities,
// patched by incoming mutation events so the view stays consistent with the
// server without full refetches.
package reconcile

import (
	"sync"

	"github.com/reliefgrid/reliefgrid/internal/model"
)

// Reconciler holds an ordered local collection of entities keyed by ID.
// Upsert-by-id is the sole defense against duplicate or reordered delivery:
// there are no sequence numbers, so an update arriving after a later delete
// for the same ID resurrects the entity. That gap is documented behavior of
// the event channel, not something this type can detect.
type Reconciler struct {
	mu    sync.RWMutex
	order []string
	byID  map[string]*model.Entity
}

// New creates an empty reconciler.
func New() *Reconciler {
	return &Reconciler{byID: make(map[string]*model.Entity)}
}

// Seed replaces the collection with an initial query result.
func (r *Reconciler) Seed(entities []model.Entity) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.order = r.order[:0]
	r.byID = make(map[string]*model.Entity, len(entities))
	for i := range entities {
		e := entities[i]
		if _, ok := r.byID[e.ID]; ok {
			continue
		}
		r.order = append(r.order, e.ID)
		r.byID[e.ID] = &e
	}
}

// Apply patches the collection with one mutation event.
//
// create appends unless the ID is already present (idempotent against
// duplicate delivery). update replaces by ID, inserting when absent to cover
// the race where the seed query missed the entity. delete removes by ID and
// is a no-op when absent.
func (r *Reconciler) Apply(event model.MutationEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch event.Action {
	case model.ActionCreate:
		if event.Entity == nil {
			return
		}
		r.upsert(event.Entity)
	case model.ActionUpdate:
		if event.Entity == nil {
			return
		}
		r.upsert(event.Entity)
	case model.ActionDelete:
		id := event.TargetID()
		if _, ok := r.byID[id]; !ok {
			return
		}
		delete(r.byID, id)
		for i, existing := range r.order {
			if existing == id {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}
}

func (r *Reconciler) upsert(e *model.Entity) {
	clone := *e
	if _, ok := r.byID[e.ID]; ok {
		r.byID[e.ID] = &clone
		return
	}
	r.order = append(r.order, e.ID)
	r.byID[e.ID] = &clone
}

// Entities returns a copy of the collection in insertion order.
func (r *Reconciler) Entities() []model.Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.Entity, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.byID[id])
	}
	return out
}

// Get returns the entity with the given ID, or nil.
func (r *Reconciler) Get(id string) *model.Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.byID[id]
	if !ok {
		return nil
	}
	clone := *e
	return &clone
}

// Len returns the collection size.
func (r *Reconciler) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
