package llm

import (
	"context"
	"fmt"
	"net/http"
)

// ModelInfo is one entry of the /v1/models listing.
type ModelInfo struct {
	ID      string `json:"id"`
	OwnedBy string `json:"owned_by,omitempty"`
}

// ModelsResponse represents the response from the /v1/models endpoint.
type ModelsResponse struct {
	Data []ModelInfo `json:"data"`
}

// ListModels returns the models served at the client's base URL.
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	var resp ModelsResponse
	if err := c.req.do(ctx, http.MethodGet, fmt.Sprintf("%s/v1/models", c.BaseURL), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// CheckModel verifies the configured chat model is served.
// Servers that return an empty listing (single-model deployments) are accepted.
func (c *Client) CheckModel(ctx context.Context) error {
	models, err := c.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("failed to list models: %w", err)
	}
	if len(models) == 0 {
		return nil
	}
	for _, m := range models {
		if m.ID == c.Model {
			return nil
		}
	}
	return fmt.Errorf("model %q not served by %s", c.Model, c.BaseURL)
}
