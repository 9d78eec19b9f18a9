package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/consilium-ai/consilium/pkg/models"
)

// getSessionHandler handles GET /api/v1/sessions/:id.
func (s *Server) getSessionHandler(c *gin.Context) {
	session, err := s.sessions.GetSession(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// castVoteBody is the request body for POST /api/v1/sessions/:id/votes.
type castVoteBody struct {
	VoterID    string  `json:"voter_id" binding:"required"`
	VoterType  string  `json:"voter_type"`
	OptionID   string  `json:"option_id" binding:"required"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
	Weight     float64 `json:"weight"`
}

// castVoteHandler handles POST /api/v1/sessions/:id/votes. A vote the
// session will not take (closed session, unknown voter or option)
// returns 409 rather than an error.
func (s *Server) castVoteHandler(c *gin.Context) {
	var body castVoteBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Error: err.Error(), Kind: "invalid_request"})
		return
	}

	accepted, err := s.sessions.CastVote(c.Request.Context(), c.Param("id"), models.Vote{
		VoterID:    body.VoterID,
		VoterType:  models.VoterType(body.VoterType),
		OptionID:   body.OptionID,
		Confidence: body.Confidence,
		Reasoning:  body.Reasoning,
		Weight:     body.Weight,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	if !accepted {
		c.JSON(http.StatusConflict, errorBody{Error: "vote not accepted", Kind: "vote_rejected"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"accepted": true})
}

// listConflictsHandler handles GET /api/v1/conflicts.
func (s *Server) listConflictsHandler(c *gin.Context) {
	limit := 100
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	conflicts, err := s.board.GetOpenConflicts(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	if conflicts == nil {
		conflicts = []*models.ConflictItem{}
	}
	c.JSON(http.StatusOK, gin.H{"conflicts": conflicts})
}
