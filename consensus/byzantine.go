package consensus

import (
	"fmt"
	"math"
)

// ByzantineFaultTolerant is a single-round quorum approximation of BFT
// agreement: it requires ceil(2n/3 + 1) votes and a 2/3 approval fraction.
// It is deliberately not a multi-round Byzantine agreement protocol; there
// is no pre-prepare/prepare/commit exchange and no view change.
type ByzantineFaultTolerant struct {
	// FaultTolerance is the fraction of byzantine participants tolerated,
	// conventionally 1/3.
	FaultTolerance float64
}

// minTrustedConfidence guards against low-effort ballots standing in for
// byzantine agreement; votes below it are rejected outright.
const minTrustedConfidence = 0.8

func (b *ByzantineFaultTolerant) Validate(vote *Vote, session *Session) error {
	if err := validateBasics(vote, session); err != nil {
		return err
	}
	if vote.Confidence < minTrustedConfidence {
		return fmt.Errorf("confidence %.2f below trust floor: %w", vote.Confidence, ErrInvalidVote)
	}
	return nil
}

func (b *ByzantineFaultTolerant) quorum(session *Session) int {
	return int(math.Ceil(float64(len(session.Participants))*2.0/3.0 + 1))
}

func (b *ByzantineFaultTolerant) NextAction(session *Session) NextAction {
	if len(session.Votes) >= b.quorum(session) {
		return ActionComplete
	}
	return ActionContinue
}

func (b *ByzantineFaultTolerant) CalculateResult(session *Session) (*VoteResult, error) {
	votesCast := len(session.Votes)
	if votesCast < b.quorum(session) {
		return quorumNotMet(session.participationRate()), nil
	}

	approvals := 0
	for _, v := range session.Votes {
		if v.Decision == DecisionApprove {
			approvals++
		}
	}
	approvalPct := float64(approvals) / float64(votesCast)

	outcome := OutcomeMajorityRejection
	if approvalPct >= 2.0/3.0 {
		outcome = OutcomeSupermajorityApproval
	}

	return &VoteResult{
		Outcome:            outcome,
		ApprovalPercent:    approvalPct,
		ParticipationRate:  session.participationRate(),
		ConsensusScore:     consensusScore(session.Votes),
		DissentingOpinions: dissentingOpinions(session.Votes),
	}, nil
}
