// Package validator consumes the external constitutional validator
// service. The service's internal rules are out of scope here; only the
// validate contract is used. A missing or unreachable validator is
// treated as an always-compliant response flagged framework_available
// false, so the coordination core keeps working without it.
package validator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/consilium-ai/consilium/pkg/config"
)

// Result is the validator's compliance determination.
type Result struct {
	Compliant          bool            `json:"compliant"`
	Violations         []string        `json:"violations,omitempty"`
	PrincipleAdherence map[string]bool `json:"principle_adherence,omitempty"`
	Confidence         float64         `json:"confidence"`
	FrameworkAvailable bool            `json:"framework_available"`
}

// Client calls the validator over HTTP. An empty URL disables the
// client entirely.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a validator client from configuration.
func NewClient(cfg config.ValidatorConfig) *Client {
	return &Client{
		baseURL:    cfg.URL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     slog.Default().With("component", "validator"),
	}
}

// Validate submits a payload for compliance determination. Transport
// failures and non-2xx responses degrade to the always-compliant
// fallback rather than erroring: validator absence must not block
// governance processing.
func (c *Client) Validate(ctx context.Context, requestType string, inputData, requirements map[string]any) (*Result, error) {
	if c.baseURL == "" {
		return fallbackResult(), nil
	}

	body, err := json.Marshal(map[string]any{
		"request_type": requestType,
		"input_data":   inputData,
		"requirements": requirements,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode validation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/validate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build validation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("Validator unreachable, treating as compliant", "error", err)
		return fallbackResult(), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("Validator returned non-success status, treating as compliant", "status", resp.StatusCode)
		return fallbackResult(), nil
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		c.logger.Warn("Validator response undecodable, treating as compliant", "error", err)
		return fallbackResult(), nil
	}
	result.FrameworkAvailable = true
	return &result, nil
}

func fallbackResult() *Result {
	return &Result{
		Compliant:          true,
		Confidence:         1.0,
		FrameworkAvailable: false,
	}
}
