// Package consensus operates voting sessions over conflict options with
// seven interchangeable arbitration algorithms. Sessions live in memory;
// their transitions are mirrored into the coordination space as
// consensus_session_event knowledge so other components can follow along.
package consensus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/consilium-ai/consilium/pkg/config"
	"github.com/consilium-ai/consilium/pkg/models"
)

// Session errors.
var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrUnknownAlgorithm = errors.New("unknown consensus algorithm")
	ErrNoOptions        = errors.New("session needs at least one option")
)

// KnowledgeSink receives the engine's session-event knowledge items.
// The blackboard store satisfies it.
type KnowledgeSink interface {
	AddKnowledge(ctx context.Context, item models.KnowledgeItem) (*models.KnowledgeItem, error)
}

// Engine runs consensus sessions to terminal states.
type Engine struct {
	cfg    *config.ConsensusConfig
	sink   KnowledgeSink
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*models.ConsensusSession

	// resolution bookkeeping for metrics
	resolutionTotal time.Duration
	resolvedCount   int

	cancel context.CancelFunc
	done   chan struct{}
}

// NewEngine creates an engine. sink may be nil in tests; session events
// are then dropped.
func NewEngine(cfg *config.ConsensusConfig, sink KnowledgeSink) *Engine {
	return &Engine{
		cfg:      cfg,
		sink:     sink,
		logger:   slog.Default().With("component", "consensus"),
		sessions: make(map[string]*models.ConsensusSession),
	}
}

// InitiateConsensus opens a new active session for a conflict.
// deadlineHours <= 0 falls back to the configured default deadline.
func (e *Engine) InitiateConsensus(ctx context.Context, conflictID string, algorithm models.ConsensusAlgorithm, participants []string, options []models.VoteOption, deadlineHours float64, sessionCfg models.SessionConfig) (string, error) {
	if !algorithm.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownAlgorithm, algorithm)
	}
	if len(options) == 0 {
		return "", ErrNoOptions
	}

	now := time.Now().UTC()
	deadline := now.Add(e.cfg.DefaultDeadline)
	if deadlineHours > 0 {
		deadline = now.Add(time.Duration(deadlineHours * float64(time.Hour)))
	}

	session := &models.ConsensusSession{
		ID:            uuid.NewString(),
		ConflictID:    conflictID,
		Algorithm:     algorithm,
		Participants:  append([]string(nil), participants...),
		Options:       append([]models.VoteOption(nil), options...),
		Status:        models.SessionStatusActive,
		CreatedAt:     now,
		Deadline:      deadline,
		SessionConfig: sessionCfg,
	}

	e.mu.Lock()
	e.sessions[session.ID] = session
	e.mu.Unlock()

	e.emitSessionEvent(ctx, "session_created", session)
	e.logger.Info("Consensus session initiated",
		"session_id", session.ID,
		"conflict_id", conflictID,
		"algorithm", string(algorithm),
		"participants", len(participants))
	return session.ID, nil
}

// CastVote records a ballot. Returns false without error when the vote
// is rejected: session not active, voter not a participant, or option
// unknown. A voter's re-cast replaces their prior vote in place.
func (e *Engine) CastVote(ctx context.Context, sessionID string, vote models.Vote) (bool, error) {
	e.mu.Lock()
	session, ok := e.sessions[sessionID]
	if !ok {
		e.mu.Unlock()
		return false, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	if session.Status != models.SessionStatusActive ||
		!session.HasParticipant(vote.VoterID) ||
		!session.HasOption(vote.OptionID) {
		e.mu.Unlock()
		return false, nil
	}

	if vote.Weight <= 0 {
		vote.Weight = 1.0
	}
	if vote.Confidence < 0 {
		vote.Confidence = 0
	}
	if vote.Confidence > 1 {
		vote.Confidence = 1
	}
	vote.CastAt = time.Now().UTC()

	replaced := false
	for i := range session.Votes {
		if session.Votes[i].VoterID == vote.VoterID {
			session.Votes[i] = vote
			replaced = true
			break
		}
	}
	if !replaced {
		session.Votes = append(session.Votes, vote)
	}
	snapshot := *session
	e.mu.Unlock()

	e.emitSessionEvent(ctx, "vote_cast", &snapshot)
	return true, nil
}

// ExecuteConsensus runs the session's algorithm and finalizes the
// session: completed on success, failed otherwise (with the failure
// routine applied). Re-executing a terminal session is a no-op that
// returns the stored result.
func (e *Engine) ExecuteConsensus(ctx context.Context, sessionID string) (*models.ConsensusResult, error) {
	e.mu.Lock()
	session, ok := e.sessions[sessionID]
	if !ok {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if session.Status.Terminal() && session.Result != nil {
		result := session.Result
		e.mu.Unlock()
		return result, nil
	}

	result := evaluate(session, e.resolveThresholds(session.SessionConfig))
	session.Result = result
	if result.Success {
		session.Status = models.SessionStatusCompleted
	} else {
		session.Status = models.SessionStatusFailed
	}
	e.recordResolutionLocked(session)
	snapshot := *session
	e.mu.Unlock()

	e.emitSessionEvent(ctx, "session_executed", &snapshot)
	e.logger.Info("Consensus executed",
		"session_id", sessionID,
		"algorithm", string(session.Algorithm),
		"success", result.Success,
		"winning_option", result.WinningOption)

	if !result.Success {
		e.handleFailure(ctx, sessionID, result)
	}
	return result, nil
}

// CheckSessionDeadlines fails every active session past its deadline
// and applies the failure routine. Returns the expired session ids.
func (e *Engine) CheckSessionDeadlines(ctx context.Context) []string {
	now := time.Now().UTC()

	e.mu.Lock()
	var expired []string
	for id, session := range e.sessions {
		if session.Status == models.SessionStatusActive && !session.Deadline.After(now) {
			session.Status = models.SessionStatusFailed
			session.Result = &models.ConsensusResult{
				Success:            false,
				Algorithm:          session.Algorithm,
				Reason:             "Deadline expired",
				ConstitutionalHash: models.ConstitutionalHash,
			}
			e.recordResolutionLocked(session)
			expired = append(expired, id)
		}
	}
	e.mu.Unlock()

	for _, id := range expired {
		e.logger.Warn("Consensus session deadline expired", "session_id", id)
		e.mu.RLock()
		result := e.sessions[id].Result
		e.mu.RUnlock()
		e.handleFailure(ctx, id, result)
	}
	return expired
}

// EscalateSession marks a session escalated and attaches the escalation
// metadata to its result.
func (e *Engine) EscalateSession(ctx context.Context, sessionID, escalationType string, data map[string]any) error {
	e.mu.Lock()
	session, ok := e.sessions[sessionID]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	if session.Result == nil {
		session.Result = &models.ConsensusResult{
			Success:            false,
			Algorithm:          session.Algorithm,
			Reason:             fmt.Sprintf("escalated: %s", escalationType),
			ConstitutionalHash: models.ConstitutionalHash,
		}
	}
	if session.Result.Extra == nil {
		session.Result.Extra = map[string]any{}
	}
	session.Result.Extra["escalation_type"] = escalationType
	if data != nil {
		session.Result.Extra["escalation_data"] = data
	}
	if !session.Status.Terminal() {
		e.recordResolutionLocked(session)
	}
	session.Status = models.SessionStatusEscalated
	snapshot := *session
	e.mu.Unlock()

	e.emitSessionEvent(ctx, "session_escalated", &snapshot)
	e.logger.Warn("Consensus session escalated",
		"session_id", sessionID, "escalation_type", escalationType)
	return nil
}

// ExpandParticipants adds new voters to a session and reactivates it so
// the widened electorate can vote.
func (e *Engine) ExpandParticipants(ctx context.Context, sessionID string, extra []string) error {
	e.mu.Lock()
	session, ok := e.sessions[sessionID]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	for _, id := range extra {
		if !session.HasParticipant(id) {
			session.Participants = append(session.Participants, id)
		}
	}
	session.Status = models.SessionStatusActive
	snapshot := *session
	e.mu.Unlock()

	e.emitSessionEvent(ctx, "participants_expanded", &snapshot)
	return nil
}

// GetSession returns a copy of a session.
func (e *Engine) GetSession(sessionID string) (*models.ConsensusSession, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	session, ok := e.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	snapshot := *session
	return &snapshot, nil
}

// Metrics is an aggregate view over all retained sessions.
type Metrics struct {
	ActiveSessions        int     `json:"active_sessions"`
	CompletedSessions     int     `json:"completed_sessions"`
	FailedSessions        int     `json:"failed_sessions"`
	EscalatedSessions     int     `json:"escalated_sessions"`
	MeanResolutionSeconds float64 `json:"mean_resolution_seconds"`
	ConstitutionalHash    string  `json:"constitutional_hash"`
}

// GetConsensusMetrics returns session counts and the mean time from
// session creation to resolution.
func (e *Engine) GetConsensusMetrics() Metrics {
	e.mu.RLock()
	defer e.mu.RUnlock()

	m := Metrics{ConstitutionalHash: models.ConstitutionalHash}
	for _, session := range e.sessions {
		switch session.Status {
		case models.SessionStatusActive:
			m.ActiveSessions++
		case models.SessionStatusCompleted:
			m.CompletedSessions++
		case models.SessionStatusFailed:
			m.FailedSessions++
		case models.SessionStatusEscalated:
			m.EscalatedSessions++
		}
	}
	if e.resolvedCount > 0 {
		m.MeanResolutionSeconds = e.resolutionTotal.Seconds() / float64(e.resolvedCount)
	}
	return m
}

// CleanupOldSessions drops terminal sessions older than maxAge from
// memory and returns how many were removed.
func (e *Engine) CleanupOldSessions(maxAge time.Duration) int {
	cutoff := time.Now().UTC().Add(-maxAge)

	e.mu.Lock()
	defer e.mu.Unlock()
	removed := 0
	for id, session := range e.sessions {
		if session.Status.Terminal() && session.CreatedAt.Before(cutoff) {
			delete(e.sessions, id)
			removed++
		}
	}
	return removed
}

// Start launches the deadline sweeper and periodic session cleanup.
func (e *Engine) Start(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})

	go func() {
		defer close(e.done)
		ticker := time.NewTicker(e.cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				e.CheckSessionDeadlines(loopCtx)
				if n := e.CleanupOldSessions(e.cfg.SessionMaxAge); n > 0 {
					e.logger.Info("Dropped old consensus sessions", "count", n)
				}
			}
		}
	}()
	e.logger.Info("Consensus deadline sweeper started", "interval", e.cfg.SweepInterval)
}

// Stop halts the sweeper.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	if e.done != nil {
		<-e.done
	}
}

// handleFailure applies the post-failure routine: algorithms may steer
// via result.next_steps; the default is human_review escalation.
func (e *Engine) handleFailure(ctx context.Context, sessionID string, result *models.ConsensusResult) {
	steps := map[string]bool{}
	for _, s := range result.NextSteps {
		steps[s] = true
	}

	switch {
	case steps["escalate"] || steps["expert_review"]:
		_ = e.EscalateSession(ctx, sessionID, "human_review", nil)
	case steps["add_participants"]:
		_ = e.ExpandParticipants(ctx, sessionID, nil)
	case steps["extend_deadline"]:
		e.mu.Lock()
		if session, ok := e.sessions[sessionID]; ok {
			session.Deadline = session.Deadline.Add(e.cfg.DeadlineExtension)
			session.Status = models.SessionStatusActive
		}
		e.mu.Unlock()
	default:
		_ = e.EscalateSession(ctx, sessionID, "human_review", nil)
	}
}

func (e *Engine) resolveThresholds(sc models.SessionConfig) thresholds {
	th := thresholds{
		weighted:          e.cfg.WeightedThreshold,
		minConfidence:     e.cfg.MinConfidence,
		consensus:         e.cfg.ConsensusThreshold,
		override:          e.cfg.OverrideThreshold,
		minConstitutional: e.cfg.MinConstitutionalScore,
		expertConsensus:   e.cfg.ExpertConsensusThreshold,
	}
	if sc.WeightedThreshold > 0 {
		th.weighted = sc.WeightedThreshold
	}
	if sc.MinConfidence > 0 {
		th.minConfidence = sc.MinConfidence
	}
	if sc.ConsensusThreshold > 0 {
		th.consensus = sc.ConsensusThreshold
	}
	if sc.OverrideThreshold > 0 {
		th.override = sc.OverrideThreshold
	}
	if sc.MinConstitutionalScore > 0 {
		th.minConstitutional = sc.MinConstitutionalScore
	}
	if sc.ExpertConsensusThreshold > 0 {
		th.expertConsensus = sc.ExpertConsensusThreshold
	}
	return th
}

// recordResolutionLocked accumulates creation-to-resolution time. The
// caller holds e.mu.
func (e *Engine) recordResolutionLocked(session *models.ConsensusSession) {
	e.resolutionTotal += time.Now().UTC().Sub(session.CreatedAt)
	e.resolvedCount++
}

// emitSessionEvent mirrors a session transition into the coordination
// space. Timestamps inside the payload are ISO-8601 strings.
func (e *Engine) emitSessionEvent(ctx context.Context, eventType string, session *models.ConsensusSession) {
	if e.sink == nil {
		return
	}

	content := map[string]any{
		"event_type":  eventType,
		"session_id":  session.ID,
		"conflict_id": session.ConflictID,
		"algorithm":   string(session.Algorithm),
		"status":      string(session.Status),
		"votes":       len(session.Votes),
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	}
	if session.Result != nil {
		content["success"] = session.Result.Success
		content["winning_option"] = session.Result.WinningOption
	}

	_, err := e.sink.AddKnowledge(ctx, models.KnowledgeItem{
		Space:         models.SpaceCoordination,
		AgentID:       "consensus_engine",
		KnowledgeType: "consensus_session_event",
		Content:       content,
		Tags:          []string{"consensus", eventType},
	})
	if err != nil {
		e.logger.Warn("Failed to emit consensus session event",
			"session_id", session.ID, "event_type", eventType, "error", err)
	}
}
