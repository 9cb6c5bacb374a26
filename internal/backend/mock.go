package backend

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/atelier/internal/interfaces"
	"github.com/ternarybob/atelier/internal/models"
)

// MockClient is a render backend for development and tests. It writes
// placeholder files instead of calling a real renderer.
type MockClient struct {
	outputDir   string
	renderDelay time.Duration
	logger      arbor.ILogger

	mu      sync.Mutex
	prompts map[string][]string
}

// NewMockClient creates a mock backend writing placeholders under outputDir.
func NewMockClient(outputDir string, renderDelay time.Duration, logger arbor.ILogger) interfaces.BackendClient {
	return &MockClient{
		outputDir:   outputDir,
		renderDelay: renderDelay,
		logger:      logger,
		prompts:     make(map[string][]string),
	}
}

// Submit records the workflow and synthesizes placeholder output files. The
// batch size is read from the EmptyLatentImage node when present.
func (m *MockClient) Submit(ctx context.Context, workflow map[string]interface{}) (string, error) {
	promptID := uuid.New().String()

	batch := 1
	for _, raw := range workflow {
		n, ok := raw.(map[string]interface{})
		if !ok || n["class_type"] != "EmptyLatentImage" {
			continue
		}
		if inputs, ok := n["inputs"].(map[string]interface{}); ok {
			switch v := inputs["batch_size"].(type) {
			case int:
				batch = v
			case float64:
				batch = int(v)
			}
		}
	}

	if err := os.MkdirAll(m.outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create mock output dir: %w", err)
	}

	var paths []string
	for i := 0; i < batch; i++ {
		path := filepath.Join(m.outputDir, fmt.Sprintf("mock_%s_%d.png", promptID, i))
		if err := os.WriteFile(path, []byte("mock image"), 0644); err != nil {
			return "", fmt.Errorf("failed to write mock output: %w", err)
		}
		paths = append(paths, path)
	}

	m.mu.Lock()
	m.prompts[promptID] = paths
	m.mu.Unlock()

	m.logger.Debug().Str("prompt_id", promptID).Int("outputs", batch).Msg("Mock workflow accepted")
	return promptID, nil
}

// WaitForOutputs sleeps for the configured render delay.
func (m *MockClient) WaitForOutputs(ctx context.Context, promptID string) error {
	m.mu.Lock()
	_, ok := m.prompts[promptID]
	m.mu.Unlock()
	if !ok {
		return &models.BackendWorkflowError{Status: "missing", Messages: []string{"unknown prompt id"}}
	}

	if m.renderDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.renderDelay):
		}
	}
	return nil
}

func (m *MockClient) CollectOutputPaths(ctx context.Context, promptID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	paths, ok := m.prompts[promptID]
	if !ok {
		return nil, &models.BackendWorkflowError{Status: "missing", Messages: []string{"unknown prompt id"}}
	}
	return append([]string(nil), paths...), nil
}

func (m *MockClient) Healthy(ctx context.Context) bool {
	return true
}
