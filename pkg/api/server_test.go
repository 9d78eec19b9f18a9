package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consilium-ai/consilium/pkg/blackboard"
	"github.com/consilium-ai/consilium/pkg/config"
	"github.com/consilium-ai/consilium/pkg/consensus"
	"github.com/consilium-ai/consilium/pkg/coordinator"
	"github.com/consilium-ai/consilium/pkg/models"
	"github.com/consilium-ai/consilium/pkg/monitor"
)

type fakeBoard struct {
	conflicts []*models.ConflictItem
	metrics   *blackboard.Metrics
	err       error
}

func (f *fakeBoard) GetOpenConflicts(_ context.Context, _ int) ([]*models.ConflictItem, error) {
	return f.conflicts, f.err
}

func (f *fakeBoard) GetMetrics(_ context.Context) (*blackboard.Metrics, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.metrics != nil {
		return f.metrics, nil
	}
	return &blackboard.Metrics{}, nil
}

type fakeRequests struct {
	submission *coordinator.Submission
	result     map[string]any
	err        error
}

func (f *fakeRequests) SubmitRequest(_ context.Context, req models.GovernanceRequest) (*coordinator.Submission, error) {
	if !req.RequestType.Valid() {
		return nil, fmt.Errorf("%w: %q", coordinator.ErrUnknownRequestType, req.RequestType)
	}
	return f.submission, f.err
}

func (f *fakeRequests) GetResult(_ context.Context, requestID string) (map[string]any, error) {
	if f.result == nil {
		return nil, fmt.Errorf("%w: %s", coordinator.ErrResultNotReady, requestID)
	}
	return f.result, f.err
}

func newTestServer(t *testing.T, board Board, requests RequestService) (*Server, *consensus.Engine) {
	t.Helper()
	engine := consensus.NewEngine(config.DefaultConsensusConfig(), nil)
	perf := monitor.New(config.DefaultMonitorConfig(), nil, nil)
	return NewServer(nil, board, requests, engine, perf, nil), engine
}

func doJSON(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestSubmitRequestAccepted(t *testing.T) {
	srv, _ := newTestServer(t, &fakeBoard{}, &fakeRequests{
		submission: &coordinator.Submission{
			RequestID: "req-1",
			TaskIDs:   []string{"t-1", "t-2"},
		},
	})
	router := srv.Routes()

	rec := doJSON(t, router, http.MethodPost, "/api/v1/requests",
		`{"request_type": "model_deployment", "requester_id": "ml-team"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "req-1", body["request_id"])
	assert.Len(t, body["task_ids"], 2)
}

func TestSubmitRequestPrecheckRejection(t *testing.T) {
	srv, _ := newTestServer(t, &fakeBoard{}, &fakeRequests{
		submission: &coordinator.Submission{
			RequestID: "req-1",
			Result: &models.GovernanceResult{
				Success:            false,
				ErrorKind:          "validator_violation",
				ConstitutionalHash: models.ConstitutionalHash,
			},
		},
	})
	router := srv.Routes()

	rec := doJSON(t, router, http.MethodPost, "/api/v1/requests",
		`{"request_type": "model_deployment"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decode(t, rec)
	result := body["result"].(map[string]any)
	assert.Equal(t, false, result["success"])
	assert.Equal(t, "validator_violation", result["error_kind"])
}

func TestSubmitRequestValidation(t *testing.T) {
	srv, _ := newTestServer(t, &fakeBoard{}, &fakeRequests{})
	router := srv.Routes()

	rec := doJSON(t, router, http.MethodPost, "/api/v1/requests", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/v1/requests", `{"request_type": "tea_break"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", decode(t, rec)["kind"])
}

func TestGetResult(t *testing.T) {
	srv, _ := newTestServer(t, &fakeBoard{}, &fakeRequests{
		result: map[string]any{"success": true, "request_id": "req-1"},
	})
	router := srv.Routes()

	rec := doJSON(t, router, http.MethodGet, "/api/v1/requests/req-1/result", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["success"])
}

func TestGetResultNotReady(t *testing.T) {
	srv, _ := newTestServer(t, &fakeBoard{}, &fakeRequests{})
	router := srv.Routes()

	rec := doJSON(t, router, http.MethodGet, "/api/v1/requests/req-1/result", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_ready", decode(t, rec)["kind"])
}

func TestListConflicts(t *testing.T) {
	srv, _ := newTestServer(t, &fakeBoard{
		conflicts: []*models.ConflictItem{
			{ID: "c-1", ConflictType: models.ConflictTypeDecision, Severity: models.SeverityHigh},
		},
	}, &fakeRequests{})
	router := srv.Routes()

	rec := doJSON(t, router, http.MethodGet, "/api/v1/conflicts", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["conflicts"], 1)
}

func TestListConflictsEmptyIsArray(t *testing.T) {
	srv, _ := newTestServer(t, &fakeBoard{}, &fakeRequests{})
	router := srv.Routes()

	rec := doJSON(t, router, http.MethodGet, "/api/v1/conflicts", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"conflicts":[]`)
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	srv, engine := newTestServer(t, &fakeBoard{}, &fakeRequests{})
	router := srv.Routes()

	sessionID, err := engine.InitiateConsensus(context.Background(), "c-1",
		models.AlgorithmMajorityVote, []string{"agent-a", "agent-b"},
		[]models.VoteOption{{ID: "approve", Name: "Approve"}, {ID: "reject", Name: "Reject"}},
		1.0, models.SessionConfig{})
	require.NoError(t, err)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/sessions/"+sessionID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "active", decode(t, rec)["status"])

	rec = doJSON(t, router, http.MethodPost, "/api/v1/sessions/"+sessionID+"/votes",
		`{"voter_id": "agent-a", "voter_type": "agent", "option_id": "approve", "confidence": 0.9}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["accepted"])

	// Non-participant votes are rejected, not errored.
	rec = doJSON(t, router, http.MethodPost, "/api/v1/sessions/"+sessionID+"/votes",
		`{"voter_id": "stranger", "option_id": "approve"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "vote_rejected", decode(t, rec)["kind"])
}

func TestGetSessionNotFound(t *testing.T) {
	srv, _ := newTestServer(t, &fakeBoard{}, &fakeRequests{})
	router := srv.Routes()

	rec := doJSON(t, router, http.MethodGet, "/api/v1/sessions/nope", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decode(t, rec)["kind"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, &fakeBoard{
		metrics: &blackboard.Metrics{ActiveAgents: 3},
	}, &fakeRequests{})
	router := srv.Routes()

	rec := doJSON(t, router, http.MethodGet, "/api/v1/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	board := body["blackboard"].(map[string]any)
	assert.Equal(t, float64(3), board["active_agents"])
	cons := body["consensus"].(map[string]any)
	assert.Equal(t, models.ConstitutionalHash, cons["constitutional_hash"])
}

func TestMetricsEndpointTransientError(t *testing.T) {
	srv, _ := newTestServer(t, &fakeBoard{
		err: &blackboard.TransientError{Op: "count knowledge", Err: context.DeadlineExceeded},
	}, &fakeRequests{})
	router := srv.Routes()

	rec := doJSON(t, router, http.MethodGet, "/api/v1/metrics", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "transient", decode(t, rec)["kind"])
}

func TestPerformanceEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, &fakeBoard{}, &fakeRequests{})
	router := srv.Routes()

	rec := doJSON(t, router, http.MethodGet, "/api/v1/performance", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, models.ConstitutionalHash, body["constitutional_hash"])
	assert.Equal(t, 1.0, body["cache_hit_rate"])
}

func TestHealthWithoutDatabase(t *testing.T) {
	srv, _ := newTestServer(t, &fakeBoard{}, &fakeRequests{})
	router := srv.Routes()

	rec := doJSON(t, router, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode(t, rec)["status"])
}

func TestPrometheusEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	perf := monitor.New(config.DefaultMonitorConfig(), nil, reg)
	perf.ObserveLatency("add_knowledge", 3*time.Millisecond)

	srv := NewServer(nil, &fakeBoard{}, &fakeRequests{},
		consensus.NewEngine(config.DefaultConsensusConfig(), nil), perf, reg)
	router := srv.Routes()

	rec := doJSON(t, router, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "consilium_store_operation_seconds")
}
