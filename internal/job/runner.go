package job

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// runRegistry tracks the cancel funcs of in-flight streams so Cancel can
// signal a running provider call. The only shared mutable state outside the
// job rows themselves.
type runRegistry struct {
	mu      sync.Mutex
	cancels map[uuid.UUID]context.CancelFunc
}

func newRunRegistry() *runRegistry {
	return &runRegistry{cancels: make(map[uuid.UUID]context.CancelFunc)}
}

func (r *runRegistry) add(id uuid.UUID, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancels[id] = cancel
}

func (r *runRegistry) remove(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cancels, id)
}

func (r *runRegistry) cancel(id uuid.UUID) {
	r.mu.Lock()
	cancel, ok := r.cancels[id]
	r.mu.Unlock()
	if ok {
		cancel()
	}
}
