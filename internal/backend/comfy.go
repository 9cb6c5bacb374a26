// -----------------------------------------------------------------------
// Primary render backend client - HTTP submit and history polling
// -----------------------------------------------------------------------

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/atelier/internal/interfaces"
	"github.com/ternarybob/atelier/internal/models"
)

// ComfyClient drives a ComfyUI-compatible render server: POST /prompt to
// submit, GET /history/{id} to poll for outputs.
type ComfyClient struct {
	baseURL       string
	outputDir     string
	pollInterval  time.Duration
	renderTimeout time.Duration
	httpClient    *http.Client
	logger        arbor.ILogger
}

// NewComfyClient creates a client for the render server at baseURL. Raw
// outputs land under outputDir as reported by the history endpoint.
func NewComfyClient(baseURL, outputDir string, pollInterval, renderTimeout time.Duration, logger arbor.ILogger) interfaces.BackendClient {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	if renderTimeout <= 0 {
		renderTimeout = 20 * time.Minute
	}
	return &ComfyClient{
		baseURL:       baseURL,
		outputDir:     outputDir,
		pollInterval:  pollInterval,
		renderTimeout: renderTimeout,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		logger:        logger,
	}
}

type promptResponse struct {
	PromptID   string                 `json:"prompt_id"`
	Number     int                    `json:"number"`
	NodeErrors map[string]interface{} `json:"node_errors"`
}

// Submit posts the workflow graph and returns the backend's prompt id.
func (c *ComfyClient) Submit(ctx context.Context, workflow map[string]interface{}) (string, error) {
	payload := map[string]interface{}{"prompt": workflow}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal workflow: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/prompt", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &models.BackendConnectionError{URL: c.baseURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &models.BackendWorkflowError{
			Status:   fmt.Sprintf("http %d", resp.StatusCode),
			Messages: []string{string(data)},
		}
	}

	var pr promptResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return "", fmt.Errorf("failed to decode prompt response: %w", err)
	}
	if pr.PromptID == "" {
		return "", &models.BackendWorkflowError{Status: "rejected", Messages: []string{"no prompt_id in response"}}
	}

	c.logger.Debug().Str("prompt_id", pr.PromptID).Msg("Workflow submitted to backend")
	return pr.PromptID, nil
}

// historyEntry mirrors the subset of the history payload we consume.
type historyEntry struct {
	Status struct {
		StatusStr string `json:"status_str"`
		Completed bool   `json:"completed"`
		Messages  [][]interface{}
	} `json:"status"`
	Outputs map[string]struct {
		Images []struct {
			Filename  string `json:"filename"`
			Subfolder string `json:"subfolder"`
			Type      string `json:"type"`
		} `json:"images"`
	} `json:"outputs"`
}

// WaitForOutputs polls the history endpoint until the prompt completes, the
// render timeout elapses, or the context is cancelled.
func (c *ComfyClient) WaitForOutputs(ctx context.Context, promptID string) error {
	deadline := time.Now().Add(c.renderTimeout)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if time.Now().After(deadline) {
			return &models.RenderTimeoutError{PromptID: promptID, Waited: c.renderTimeout.String()}
		}

		entry, err := c.history(ctx, promptID)
		if err != nil {
			return err
		}
		if entry == nil {
			continue // Not in history yet, still queued or executing
		}

		if entry.Status.Completed {
			if len(entry.Outputs) == 0 {
				return &models.BackendWorkflowError{Status: entry.Status.StatusStr, Messages: []string{"completed with no outputs"}}
			}
			return nil
		}
		if entry.Status.StatusStr == "error" {
			return &models.BackendWorkflowError{Status: entry.Status.StatusStr}
		}
	}
}

// CollectOutputPaths resolves the artifact paths for a finished prompt.
func (c *ComfyClient) CollectOutputPaths(ctx context.Context, promptID string) ([]string, error) {
	entry, err := c.history(ctx, promptID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, &models.BackendWorkflowError{Status: "missing", Messages: []string{"prompt not in history"}}
	}

	var paths []string
	for _, output := range entry.Outputs {
		for _, img := range output.Images {
			if img.Type != "output" {
				continue
			}
			paths = append(paths, filepath.Join(c.outputDir, img.Subfolder, img.Filename))
		}
	}
	return paths, nil
}

// Healthy reports whether the backend answers its stats endpoint.
func (c *ComfyClient) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/system_stats", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// history fetches the history entry for promptID; nil when not yet present.
func (c *ComfyClient) history(ctx context.Context, promptID string) (*historyEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/history/"+promptID, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &models.BackendConnectionError{URL: c.baseURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &models.BackendWorkflowError{Status: fmt.Sprintf("http %d", resp.StatusCode)}
	}

	// Response is keyed by prompt id; absent key means still pending.
	var payload map[string]historyEntry
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode history response: %w", err)
	}
	entry, ok := payload[promptID]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}
