package consensus

import (
	"fmt"

	"github.com/consilium-ai/consilium/pkg/models"
)

// thresholds is the effective parameter set for one evaluation: session
// overrides where present, engine defaults otherwise.
type thresholds struct {
	weighted          float64
	minConfidence     float64
	consensus         float64
	override          int
	minConstitutional float64
	expertConsensus   float64
}

// reasonNoVotes is the fixed reason reported when an algorithm that
// requires votes runs against an empty ballot box.
const reasonNoVotes = "No votes cast"

// evaluate dispatches to the session's algorithm. Every result carries
// the compliance tag.
func evaluate(s *models.ConsensusSession, th thresholds) *models.ConsensusResult {
	var result *models.ConsensusResult
	switch s.Algorithm {
	case models.AlgorithmMajorityVote:
		result = majorityVote(s)
	case models.AlgorithmWeightedVote:
		result = weightedVote(s, th)
	case models.AlgorithmRankedChoice:
		result = rankedChoice(s, th)
	case models.AlgorithmConsensusThreshold:
		result = consensusThreshold(s, th)
	case models.AlgorithmHierarchicalOverride:
		result = hierarchicalOverride(s, th)
	case models.AlgorithmConstitutionalPriority:
		result = constitutionalPriority(s, th)
	case models.AlgorithmExpertMediation:
		result = expertMediation(s, th)
	default:
		result = &models.ConsensusResult{
			Success: false,
			Reason:  fmt.Sprintf("unknown algorithm %q", s.Algorithm),
		}
	}
	result.Algorithm = s.Algorithm
	result.ConstitutionalHash = models.ConstitutionalHash
	return result
}

func noVotesResult() *models.ConsensusResult {
	return &models.ConsensusResult{Success: false, Reason: reasonNoVotes}
}

// votesFor groups votes by option id. Option iteration stays on
// s.Options so ties resolve by option insertion order.
func votesFor(s *models.ConsensusSession, optionID string) []models.Vote {
	var out []models.Vote
	for _, v := range s.Votes {
		if v.OptionID == optionID {
			out = append(out, v)
		}
	}
	return out
}

// majorityVote: the option with a strictly-greater-than-half share of
// the votes wins; a plurality or a tie is not enough.
func majorityVote(s *models.ConsensusSession) *models.ConsensusResult {
	if len(s.Votes) == 0 {
		return noVotesResult()
	}

	total := len(s.Votes)
	leader, leaderCount := "", 0
	for _, opt := range s.Options {
		if n := len(votesFor(s, opt.ID)); n > leaderCount {
			leader, leaderCount = opt.ID, n
		}
	}

	result := &models.ConsensusResult{
		WinningOption:   leader,
		ConfidenceScore: float64(leaderCount) / float64(total),
		Extra: map[string]any{
			"winning_votes": leaderCount,
			"total_votes":   total,
		},
	}
	if leaderCount*2 > total {
		result.Success = true
		result.Reason = fmt.Sprintf("majority reached with %d of %d votes", leaderCount, total)
	} else {
		result.Reason = "No majority reached"
	}
	return result
}

// weightedVote: score per option is Σ weight×confidence over its votes;
// success requires the winner to hold at least the configured share of
// the total score.
func weightedVote(s *models.ConsensusSession, th thresholds) *models.ConsensusResult {
	if len(s.Votes) == 0 {
		return noVotesResult()
	}

	scores := make(map[string]float64, len(s.Options))
	total := 0.0
	winner, winnerScore := "", -1.0
	for _, opt := range s.Options {
		score := 0.0
		for _, v := range votesFor(s, opt.ID) {
			score += v.Weight * v.Confidence
		}
		scores[opt.ID] = score
		total += score
		if score > winnerScore {
			winner, winnerScore = opt.ID, score
		}
	}
	if total <= 0 {
		return noVotesResult()
	}

	share := winnerScore / total
	result := &models.ConsensusResult{
		WinningOption:   winner,
		ConfidenceScore: share,
		Extra: map[string]any{
			"option_scores": scores,
			"winner_share":  share,
		},
	}
	if share >= th.weighted {
		result.Success = true
		result.Reason = fmt.Sprintf("weighted winner holds %.3f of total score", share)
	} else {
		result.Reason = fmt.Sprintf("winner share %.3f below threshold %.3f", share, th.weighted)
		result.NextSteps = []string{"escalate"}
	}
	return result
}

// rankedChoice: winner by total confidence×weight; confidence is the
// winner's margin over the runner-up, relative to the winner.
func rankedChoice(s *models.ConsensusSession, th thresholds) *models.ConsensusResult {
	if len(s.Votes) == 0 {
		return noVotesResult()
	}

	scores := make(map[string]float64, len(s.Options))
	winner, winnerScore, runnerUp := "", -1.0, -1.0
	for _, opt := range s.Options {
		score := 0.0
		for _, v := range votesFor(s, opt.ID) {
			score += v.Confidence * v.Weight
		}
		scores[opt.ID] = score
		switch {
		case score > winnerScore:
			runnerUp = winnerScore
			winner, winnerScore = opt.ID, score
		case score > runnerUp:
			runnerUp = score
		}
	}
	if winnerScore <= 0 {
		return noVotesResult()
	}

	confidence := 1.0
	if len(s.Options) > 1 && runnerUp > 0 {
		confidence = (winnerScore - runnerUp) / winnerScore
	}

	result := &models.ConsensusResult{
		WinningOption:   winner,
		ConfidenceScore: confidence,
		Extra:           map[string]any{"option_scores": scores},
	}
	if confidence >= th.minConfidence {
		result.Success = true
		result.Reason = fmt.Sprintf("ranked margin confidence %.3f", confidence)
	} else {
		result.Reason = fmt.Sprintf("margin confidence %.3f below %.3f", confidence, th.minConfidence)
	}
	return result
}

// consensusThreshold: weighted support per option is the sum of vote
// confidences divided by the participant count; only options clearing
// the threshold are consensus candidates.
func consensusThreshold(s *models.ConsensusSession, th thresholds) *models.ConsensusResult {
	if len(s.Votes) == 0 {
		return noVotesResult()
	}
	participants := len(s.Participants)
	if participants == 0 {
		return &models.ConsensusResult{Success: false, Reason: "no participants"}
	}

	support := make(map[string]float64, len(s.Options))
	bestCandidate, bestCandidateSupport := "", -1.0
	bestOverall, bestOverallSupport := "", -1.0
	for _, opt := range s.Options {
		sum := 0.0
		for _, v := range votesFor(s, opt.ID) {
			sum += v.Confidence
		}
		sup := sum / float64(participants)
		support[opt.ID] = sup
		if sup > bestOverallSupport {
			bestOverall, bestOverallSupport = opt.ID, sup
		}
		if sup >= th.consensus && sup > bestCandidateSupport {
			bestCandidate, bestCandidateSupport = opt.ID, sup
		}
	}

	result := &models.ConsensusResult{
		Extra: map[string]any{"weighted_support": support},
	}
	if bestCandidate != "" {
		result.Success = true
		result.WinningOption = bestCandidate
		result.ConfidenceScore = bestCandidateSupport
		result.Reason = fmt.Sprintf("consensus support %.3f meets threshold %.3f", bestCandidateSupport, th.consensus)
	} else {
		result.WinningOption = bestOverall
		result.ConfidenceScore = bestOverallSupport
		result.Reason = fmt.Sprintf("no option reached consensus threshold %.3f", th.consensus)
	}
	return result
}

// hierarchicalOverride: the highest-authority vote wins outright when
// its authority clears the override threshold; otherwise the session
// falls back to majority_vote. Ties at the top authority resolve to the
// earliest-cast vote.
func hierarchicalOverride(s *models.ConsensusSession, th thresholds) *models.ConsensusResult {
	if len(s.Votes) == 0 {
		return noVotesResult()
	}

	var top *models.Vote
	for i := range s.Votes {
		v := &s.Votes[i]
		if top == nil || v.VoterType.Authority() > top.VoterType.Authority() {
			top = v
		}
	}

	if top.VoterType.Authority() >= th.override {
		return &models.ConsensusResult{
			Success:         true,
			WinningOption:   top.OptionID,
			ConfidenceScore: top.Confidence,
			Reason:          fmt.Sprintf("override by %s (authority %d)", top.VoterType, top.VoterType.Authority()),
			Extra: map[string]any{
				"override_voter":     top.VoterID,
				"override_authority": top.VoterType.Authority(),
			},
		}
	}

	fallback := majorityVote(s)
	if fallback.Extra == nil {
		fallback.Extra = map[string]any{}
	}
	fallback.Extra["fallback"] = "majority_vote"
	fallback.Extra["top_authority"] = top.VoterType.Authority()
	if fallback.Reason != "" {
		fallback.Reason = "no authority override; " + fallback.Reason
	}
	return fallback
}

// constitutionalPriority: options are judged primarily by their
// constitutional score. This is the one algorithm that can succeed with
// no votes at all, because the options carry their own scores.
func constitutionalPriority(s *models.ConsensusSession, th thresholds) *models.ConsensusResult {
	if len(s.Options) == 0 {
		return &models.ConsensusResult{Success: false, Reason: "no options to rank"}
	}

	combined := make(map[string]float64, len(s.Options))
	var winner *models.VoteOption
	winnerScore := -1.0
	for i := range s.Options {
		opt := &s.Options[i]
		score := opt.ConstitutionalScore
		if len(s.Votes) > 0 {
			voteScore := 0.0
			for _, v := range votesFor(s, opt.ID) {
				voteScore += v.Confidence * v.Weight
			}
			score = 0.7*opt.ConstitutionalScore + 0.3*voteScore
		}
		combined[opt.ID] = score
		if score > winnerScore {
			winner, winnerScore = opt, score
		}
	}

	result := &models.ConsensusResult{
		WinningOption:   winner.ID,
		ConfidenceScore: winnerScore,
		Extra: map[string]any{
			"combined_scores":      combined,
			"constitutional_score": winner.ConstitutionalScore,
		},
	}
	if winner.ConstitutionalScore >= th.minConstitutional {
		result.Success = true
		result.Reason = fmt.Sprintf("constitutional score %.3f meets minimum %.3f", winner.ConstitutionalScore, th.minConstitutional)
	} else {
		result.Reason = fmt.Sprintf("constitutional score %.3f below minimum %.3f", winner.ConstitutionalScore, th.minConstitutional)
	}
	return result
}

// expertMediation: only human and human_expert votes count. The first
// option (in insertion order) whose expert agreement clears the
// threshold wins; with no agreement the leader is reported without
// success.
func expertMediation(s *models.ConsensusSession, th thresholds) *models.ConsensusResult {
	if len(s.Votes) == 0 {
		return noVotesResult()
	}

	var expert []models.Vote
	for _, v := range s.Votes {
		if v.VoterType.Expert() {
			expert = append(expert, v)
		}
	}
	if len(expert) == 0 {
		return &models.ConsensusResult{
			Success:   false,
			Reason:    "no expert votes cast",
			NextSteps: []string{"add_participants"},
		}
	}

	counts := make(map[string]int, len(s.Options))
	for _, v := range expert {
		counts[v.OptionID]++
	}

	agreement := make(map[string]float64, len(s.Options))
	leader, leaderAgreement := "", -1.0
	for _, opt := range s.Options {
		a := float64(counts[opt.ID]) / float64(len(expert))
		agreement[opt.ID] = a
		if a >= th.expertConsensus {
			return &models.ConsensusResult{
				Success:         true,
				WinningOption:   opt.ID,
				ConfidenceScore: a,
				Reason:          fmt.Sprintf("expert agreement %.3f meets threshold %.3f", a, th.expertConsensus),
				Extra:           map[string]any{"expert_agreement": agreement, "expert_votes": len(expert)},
			}
		}
		if a > leaderAgreement {
			leader, leaderAgreement = opt.ID, a
		}
	}

	return &models.ConsensusResult{
		WinningOption:   leader,
		ConfidenceScore: leaderAgreement,
		Reason:          fmt.Sprintf("expert agreement %.3f below threshold %.3f", leaderAgreement, th.expertConsensus),
		Extra:           map[string]any{"expert_agreement": agreement, "expert_votes": len(expert)},
	}
}
