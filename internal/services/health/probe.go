// -----------------------------------------------------------------------
// Worker health probe - submission gate over the worker pool
// -----------------------------------------------------------------------

package health

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/atelier/internal/interfaces"
)

const probeTimeout = 1 * time.Second

// Probe answers "can a worker take this job right now". A nil inspector
// disables the gate entirely so single-process deployments never block on it.
type Probe struct {
	inspector interfaces.WorkerInspector
	logger    arbor.ILogger
}

// NewProbe creates a probe over the given inspector. inspector may be nil.
func NewProbe(inspector interfaces.WorkerInspector, logger arbor.ILogger) interfaces.HealthProbe {
	return &Probe{inspector: inspector, logger: logger}
}

// WorkersAvailable reports whether at least one worker can take a task.
// Inspection failures fail open toward unavailability: the caller rejects the
// submission rather than queueing into a dead pool.
func (p *Probe) WorkersAvailable(ctx context.Context) bool {
	if p.inspector == nil {
		return true
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	if err := p.inspector.Ping(ctx); err != nil {
		p.logger.Warn().Err(err).Msg("Worker ping failed")
		return false
	}

	stats, err := p.inspector.Stats(ctx)
	if err != nil {
		p.logger.Warn().Err(err).Msg("Worker stats unavailable")
		return false
	}
	if len(stats) == 0 {
		return false
	}

	for _, s := range stats {
		if s.Concurrency > 0 {
			return true
		}
	}
	return false
}
