package consensus

import "time"

// MajorityVoting finalizes on headcount. Approve and ApproveWithConditions
// count toward approval; the outcome bucket depends on how lopsided the
// approval fraction is.
type MajorityVoting struct {
	// Threshold is the minimum approval fraction: 0.5 for a simple
	// majority, 0.67 for a supermajority requirement.
	Threshold float64
}

func (m *MajorityVoting) Validate(vote *Vote, session *Session) error {
	return validateBasics(vote, session)
}

// NextAction pushes the deadline when an under-quorum session is close to
// expiry and completes once quorum is reached. The escalate arm is shadowed
// by the case ordering: remaining < 0 also satisfies remaining < time.Hour,
// so an expired under-quorum session extends instead, and an expired
// over-quorum one completes. It never fires here.
func (m *MajorityVoting) NextAction(session *Session) NextAction {
	remaining := time.Until(session.Deadline)
	participation := session.participationRate()

	switch {
	case remaining < time.Hour && participation < session.QuorumRequired:
		return ActionExtendDeadline
	case participation >= session.QuorumRequired:
		return ActionComplete
	case remaining < 0:
		return ActionEscalate
	default:
		return ActionContinue
	}
}

func (m *MajorityVoting) CalculateResult(session *Session) (*VoteResult, error) {
	participation := session.participationRate()
	if participation < session.QuorumRequired {
		return quorumNotMet(participation), nil
	}

	votesCast := len(session.Votes)
	approvals := 0
	for _, v := range session.Votes {
		if v.Decision.approving() {
			approvals++
		}
	}
	approvalPct := float64(approvals) / float64(votesCast)

	var outcome Outcome
	switch {
	case approvalPct < m.Threshold:
		outcome = OutcomeMajorityRejection
	case approvalPct >= 0.95:
		outcome = OutcomeUnanimousApproval
	case approvalPct >= 0.75:
		outcome = OutcomeSupermajorityApproval
	case approvalPct >= 0.6:
		outcome = OutcomeMajorityApproval
	default:
		outcome = OutcomeNarrowApproval
	}

	return &VoteResult{
		Outcome:            outcome,
		ApprovalPercent:    approvalPct,
		ParticipationRate:  participation,
		ConsensusScore:     consensusScore(session.Votes),
		DissentingOpinions: dissentingOpinions(session.Votes),
	}, nil
}
