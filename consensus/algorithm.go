package consensus

import (
	"fmt"
	"math"
)

// Algorithm is one voting procedure. Implementations are stateless; all
// session state lives on the Session passed in.
type Algorithm interface {
	// Validate checks a vote against the session before it is recorded.
	// A non-nil error wraps ErrInvalidVote and the vote is discarded.
	Validate(vote *Vote, session *Session) error

	// NextAction advises the engine after a vote has been recorded.
	NextAction(session *Session) NextAction

	// CalculateResult computes the final result for the session.
	CalculateResult(session *Session) (*VoteResult, error)
}

// Registry is the closed tag-to-implementation table for consensus
// algorithms. The variant set is fixed at construction.
type Registry struct {
	algorithms map[ConsensusType]Algorithm
}

// NewRegistry returns the default algorithm table: majority voting at
// type-specific thresholds, expertise-weighted voting for executive
// decisions and the simplified Byzantine quorum for byzantine sessions.
func NewRegistry() *Registry {
	return &Registry{algorithms: map[ConsensusType]Algorithm{
		TypeDemocratic: &MajorityVoting{Threshold: 0.5},
		TypeIndividual: &MajorityVoting{Threshold: 0.5},
		TypeTeam:       &MajorityVoting{Threshold: 0.6},
		TypeManagement: &MajorityVoting{Threshold: 0.67},
		TypeExecutive:  &WeightedVoting{},
		TypeWeighted:   &WeightedVoting{},
		TypeByzantine:  &ByzantineFaultTolerant{FaultTolerance: 1.0 / 3.0},
	}}
}

// Lookup resolves the algorithm for a consensus type.
func (r *Registry) Lookup(t ConsensusType) (Algorithm, error) {
	algo, ok := r.algorithms[t]
	if !ok {
		return nil, fmt.Errorf("%s: %w", t, ErrAlgorithmNotFound)
	}
	return algo, nil
}

// validateBasics covers the checks every algorithm shares: the voter must
// be in the participant snapshot and the vote must land before the
// deadline.
func validateBasics(vote *Vote, session *Session) error {
	if _, ok := session.participant(vote.ParticipantID); !ok {
		return fmt.Errorf("participant %s not in session: %w", vote.ParticipantID, ErrInvalidVote)
	}
	if vote.Timestamp.After(session.Deadline) {
		return fmt.Errorf("vote after deadline: %w", ErrInvalidVote)
	}
	return nil
}

// consensusScore averages mean vote confidence with unanimity, rewarding
// votes that are both confident and lopsided. Unanimity is 0 for a split
// vote and 1 for a unanimous one.
func consensusScore(votes map[string]Vote) float64 {
	if len(votes) == 0 {
		return 0
	}

	var confidence float64
	approvals := 0
	for _, v := range votes {
		confidence += v.Confidence
		if v.Decision.approving() {
			approvals++
		}
	}
	avgConfidence := confidence / float64(len(votes))
	unanimity := math.Abs(float64(approvals)/float64(len(votes))-0.5) * 2

	return (avgConfidence + unanimity) / 2
}

// dissentingOpinions collects rationale from rejecting votes.
func dissentingOpinions(votes map[string]Vote) []DissentingOpinion {
	var out []DissentingOpinion
	for _, v := range votes {
		if !v.Decision.dissenting() {
			continue
		}
		out = append(out, DissentingOpinion{
			ParticipantID:  v.ParticipantID,
			Opinion:        v.Rationale,
			ImpactConcerns: v.Conditions,
		})
	}
	return out
}

func quorumNotMet(participation float64) *VoteResult {
	return &VoteResult{
		Outcome:           OutcomeQuorumNotMet,
		ParticipationRate: participation,
	}
}
