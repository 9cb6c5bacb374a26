package lifecycle

import (
	"context"
	"sync"
)

// revocationRegistry tracks the cancel function of each in-flight render so
// Cancel can interrupt a running job in this process.
type revocationRegistry struct {
	mu      sync.Mutex
	cancels map[uint64]context.CancelFunc
}

func newRevocationRegistry() *revocationRegistry {
	return &revocationRegistry{cancels: make(map[uint64]context.CancelFunc)}
}

func (r *revocationRegistry) register(jobID uint64, cancel context.CancelFunc) {
	r.mu.Lock()
	r.cancels[jobID] = cancel
	r.mu.Unlock()
}

func (r *revocationRegistry) unregister(jobID uint64) {
	r.mu.Lock()
	delete(r.cancels, jobID)
	r.mu.Unlock()
}

// cancel interrupts the job's render context. Returns false when the job is
// not executing in this process.
func (r *revocationRegistry) cancel(jobID uint64) bool {
	r.mu.Lock()
	cancel, ok := r.cancels[jobID]
	r.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}
