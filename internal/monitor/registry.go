package monitor

import (
	"sort"
	"sync"

	"github.com/MrSnakeDoc/pricewatch/internal/domain"
	"github.com/MrSnakeDoc/pricewatch/internal/schedule"
)

// entry pairs a live task with its polling handle. mu serialises every
// read and write of both, including overlapping probes of the same task.
type entry struct {
	mu      sync.Mutex
	task    *domain.MonitorTask
	handle  *schedule.Handle // nil when the task is not polled
	removed bool             // set once the entry has left the registry
}

// detach clears the polling handle and returns it for stopping outside
// the lock. Callers must hold e.mu.
func (e *entry) detach() *schedule.Handle {
	h := e.handle
	e.handle = nil
	return h
}

// registry is the authoritative in-memory set of tasks.
type registry struct {
	mu      sync.RWMutex
	entries map[string]*entry // ID -> entry
}

func newRegistry() *registry {
	return &registry{entries: make(map[string]*entry)}
}

// add inserts task. It returns false if the id is already taken.
func (r *registry) add(task *domain.MonitorTask) (*entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[task.ID]; exists {
		return nil, false
	}
	e := &entry{task: task}
	r.entries[task.ID] = e
	return e, true
}

func (r *registry) get(id string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	return e, ok
}

// remove drops id from the registry, marks the entry removed and hands
// back its polling handle.
func (r *registry) remove(id string) (*schedule.Handle, bool) {
	r.mu.Lock()
	e, ok := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()

	if !ok {
		return nil, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.removed = true
	return e.detach(), true
}

// all returns every entry, oldest task first.
func (r *registry) all() []*entry {
	r.mu.RLock()
	out := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		// CreatedAt and ID are immutable, no entry lock needed.
		a, b := out[i].task, out[j].task
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.ID < b.ID
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	return out
}

// snapshot returns deep copies of every task.
func (r *registry) snapshot() []*domain.MonitorTask {
	entries := r.all()
	tasks := make([]*domain.MonitorTask, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if !e.removed {
			tasks = append(tasks, e.task.Clone())
		}
		e.mu.Unlock()
	}
	return tasks
}

// count returns the number of tasks
func (r *registry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.entries)
}
