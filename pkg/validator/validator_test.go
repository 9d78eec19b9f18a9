package validator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consilium-ai/consilium/pkg/config"
)

func newTestClient(url string) *Client {
	return NewClient(config.ValidatorConfig{URL: url, Timeout: 2 * time.Second})
}

func TestValidateDisabledClient(t *testing.T) {
	c := newTestClient("")

	result, err := c.Validate(context.Background(), "model_deployment", nil, nil)
	require.NoError(t, err)
	assert.True(t, result.Compliant)
	assert.False(t, result.FrameworkAvailable)
	assert.Empty(t, result.Violations)
}

func TestValidateCompliant(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/validate", r.URL.Path)

		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "model_deployment", payload["request_type"])

		json.NewEncoder(w).Encode(Result{
			Compliant:          true,
			Confidence:         0.93,
			PrincipleAdherence: map[string]bool{"transparency": true},
		})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	result, err := c.Validate(context.Background(), "model_deployment",
		map[string]any{"model": "fraud-detector-v2"}, nil)
	require.NoError(t, err)
	assert.True(t, result.Compliant)
	assert.True(t, result.FrameworkAvailable)
	assert.InDelta(t, 0.93, result.Confidence, 1e-9)
	assert.True(t, result.PrincipleAdherence["transparency"])
}

func TestValidateViolations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Result{
			Compliant:  false,
			Violations: []string{"missing bias assessment"},
			Confidence: 0.88,
		})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	result, err := c.Validate(context.Background(), "model_deployment", nil, nil)
	require.NoError(t, err)
	assert.False(t, result.Compliant)
	assert.Equal(t, []string{"missing bias assessment"}, result.Violations)
	assert.True(t, result.FrameworkAvailable)
}

func TestValidateUnreachableFallsBack(t *testing.T) {
	c := newTestClient("http://127.0.0.1:1")

	result, err := c.Validate(context.Background(), "compliance_audit", nil, nil)
	require.NoError(t, err)
	assert.True(t, result.Compliant)
	assert.False(t, result.FrameworkAvailable)
}

func TestValidateServerErrorFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	result, err := c.Validate(context.Background(), "policy_enforcement", nil, nil)
	require.NoError(t, err)
	assert.True(t, result.Compliant)
	assert.False(t, result.FrameworkAvailable)
}
