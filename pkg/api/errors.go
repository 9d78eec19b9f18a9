package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/consilium-ai/consilium/pkg/blackboard"
	"github.com/consilium-ai/consilium/pkg/consensus"
	"github.com/consilium-ai/consilium/pkg/coordinator"
)

// errorBody is the JSON error envelope for every non-2xx response.
type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// respondError maps domain errors to HTTP error responses.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, coordinator.ErrUnknownRequestType):
		c.JSON(http.StatusBadRequest, errorBody{Error: err.Error(), Kind: "invalid_request"})
	case errors.Is(err, coordinator.ErrCyclicDependencies):
		c.JSON(http.StatusUnprocessableEntity, errorBody{Error: err.Error(), Kind: "invalid_plan"})
	case errors.Is(err, coordinator.ErrResultNotReady):
		c.JSON(http.StatusNotFound, errorBody{Error: err.Error(), Kind: "not_ready"})
	case errors.Is(err, consensus.ErrSessionNotFound), errors.Is(err, blackboard.ErrNotFound):
		c.JSON(http.StatusNotFound, errorBody{Error: err.Error(), Kind: "not_found"})
	case blackboard.IsTransient(err):
		c.JSON(http.StatusServiceUnavailable, errorBody{Error: err.Error(), Kind: "transient"})
	default:
		slog.Error("Unexpected API error", "error", err)
		c.JSON(http.StatusInternalServerError, errorBody{Error: "internal server error", Kind: "internal"})
	}
}
