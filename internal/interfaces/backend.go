package interfaces

import (
	"context"

	"github.com/ternarybob/atelier/internal/models"
)

// BackendClient - render backend driver
//
// Submit hands the backend a workflow graph and returns its correlation id.
// WaitForOutputs blocks until the prompt finishes or the context expires.
type BackendClient interface {
	Submit(ctx context.Context, workflow map[string]interface{}) (promptID string, err error)
	WaitForOutputs(ctx context.Context, promptID string) error
	// CollectOutputPaths resolves the artifact file paths the finished prompt
	// produced, in output order.
	CollectOutputPaths(ctx context.Context, promptID string) ([]string, error)
	// Healthy reports whether the backend answers its status endpoint.
	Healthy(ctx context.Context) bool
}

// WorkflowBuilder - assembles a backend workflow graph from a job
type WorkflowBuilder interface {
	Build(job *models.Job) (map[string]interface{}, error)
}
