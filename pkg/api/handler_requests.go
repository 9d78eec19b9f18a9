package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/consilium-ai/consilium/pkg/models"
)

// submitRequestBody is the request body for POST /api/v1/requests.
type submitRequestBody struct {
	RequestType                string         `json:"request_type" binding:"required"`
	Priority                   int            `json:"priority"`
	RequesterID                string         `json:"requester_id"`
	InputData                  map[string]any `json:"input_data"`
	ConstitutionalRequirements map[string]any `json:"constitutional_requirements"`
	Deadline                   *time.Time     `json:"deadline"`
}

// submitRequestHandler handles POST /api/v1/requests. A decomposed
// request returns 202 with the task ids; a constitutional pre-check
// rejection returns 422 carrying the structured failure result.
func (s *Server) submitRequestHandler(c *gin.Context) {
	var body submitRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Error: err.Error(), Kind: "invalid_request"})
		return
	}

	sub, err := s.requests.SubmitRequest(c.Request.Context(), models.GovernanceRequest{
		RequestType:                models.RequestType(body.RequestType),
		Priority:                   body.Priority,
		RequesterID:                body.RequesterID,
		InputData:                  body.InputData,
		ConstitutionalRequirements: body.ConstitutionalRequirements,
		Deadline:                   body.Deadline,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	if sub.Result != nil {
		c.JSON(http.StatusUnprocessableEntity, sub)
		return
	}
	c.JSON(http.StatusAccepted, sub)
}

// getResultHandler handles GET /api/v1/requests/:id/result.
func (s *Server) getResultHandler(c *gin.Context) {
	result, err := s.requests.GetResult(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
