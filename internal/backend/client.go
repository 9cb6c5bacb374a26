package backend

import (
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/atelier/internal/common"
	"github.com/ternarybob/atelier/internal/interfaces"
	"github.com/ternarybob/atelier/internal/models"
)

// NewClient builds the backend client selected by configuration.
func NewClient(config *common.BackendConfig, logger arbor.ILogger) (interfaces.BackendClient, error) {
	switch models.BackendKind(config.Kind) {
	case models.BackendPrimary:
		return NewComfyClient(
			config.URL,
			config.OutputDir,
			common.Duration(config.PollInterval),
			common.Duration(config.RenderTimeout),
			logger,
		), nil
	case models.BackendMock:
		return NewMockClient(config.OutputDir, 100*time.Millisecond, logger), nil
	default:
		return nil, fmt.Errorf("unknown backend kind: %s", config.Kind)
	}
}
