package consensus

import "fmt"

// WeightedVoting measures participation and approval as fractions of total
// voting power rather than headcount. Each approving vote additionally
// weighs in scaled by the voter's confidence, so a hesitant approval from
// a powerful voter moves the needle less than a confident one.
type WeightedVoting struct{}

// highInfluence is the voting-power floor above which a participant's
// ballot is considered decisive for early completion.
const highInfluence = 0.1

func (w *WeightedVoting) Validate(vote *Vote, session *Session) error {
	if err := validateBasics(vote, session); err != nil {
		return err
	}
	p, _ := session.participant(vote.ParticipantID)
	if len(p.Expertise) == 0 {
		return fmt.Errorf("participant %s has no expertise areas: %w", vote.ParticipantID, ErrInvalidVote)
	}
	return nil
}

// NextAction completes once at least 80% of the high-influence voting
// power has been cast.
func (w *WeightedVoting) NextAction(session *Session) NextAction {
	var influential, voted float64
	for _, p := range session.Participants {
		if p.VotingPower <= highInfluence {
			continue
		}
		influential += p.VotingPower
		if _, ok := session.Votes[p.ID]; ok {
			voted += p.VotingPower
		}
	}
	if influential > 0 && voted/influential >= 0.8 {
		return ActionComplete
	}
	return ActionContinue
}

func (w *WeightedVoting) CalculateResult(session *Session) (*VoteResult, error) {
	var totalWeight float64
	for _, p := range session.Participants {
		totalWeight += p.VotingPower
	}
	if totalWeight == 0 {
		return &VoteResult{Outcome: OutcomeInvalid}, nil
	}

	var votedWeight, approvalWeight float64
	for id, v := range session.Votes {
		p, ok := session.participant(id)
		if !ok {
			continue
		}
		votedWeight += p.VotingPower
		if v.Decision.approving() {
			approvalWeight += p.VotingPower * v.Confidence
		}
	}

	participation := votedWeight / totalWeight
	if participation < session.QuorumRequired {
		return quorumNotMet(participation), nil
	}

	approvalPct := approvalWeight / votedWeight

	var outcome Outcome
	switch {
	case approvalPct < session.ApprovalThreshold:
		outcome = OutcomeMajorityRejection
	case approvalPct >= 0.9:
		outcome = OutcomeSupermajorityApproval
	default:
		outcome = OutcomeMajorityApproval
	}

	return &VoteResult{
		Outcome:            outcome,
		ApprovalPercent:    approvalPct,
		ParticipationRate:  participation,
		ConsensusScore:     consensusScore(session.Votes),
		DissentingOpinions: dissentingOpinions(session.Votes),
	}, nil
}
