package consensus

import (
	"errors"
	"time"
)

var (
	ErrSessionNotFound   = errors.New("consensus session not found")
	ErrSessionClosed     = errors.New("consensus session already finalized")
	ErrAlgorithmNotFound = errors.New("no algorithm registered for consensus type")
	ErrInvalidVote       = errors.New("invalid vote")
	ErrNoParticipants    = errors.New("no participants for consensus type")
)

// ConsensusType tags a decision level and selects the voting algorithm and
// session parameters.
type ConsensusType string

const (
	TypeExecutive  ConsensusType = "executive"
	TypeManagement ConsensusType = "management"
	TypeTeam       ConsensusType = "team"
	TypeIndividual ConsensusType = "individual"
	TypeByzantine  ConsensusType = "byzantine"
	TypeDemocratic ConsensusType = "democratic"
	TypeWeighted   ConsensusType = "weighted"
)

type ImpactLevel string

const (
	ImpactLow              ImpactLevel = "low"
	ImpactMedium           ImpactLevel = "medium"
	ImpactHigh             ImpactLevel = "high"
	ImpactCritical         ImpactLevel = "critical"
	ImpactTransformational ImpactLevel = "transformational"
)

// Proposal is immutable once a session starts.
type Proposal struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Type        string            `json:"type"`
	Impact      ImpactLevel       `json:"impact"`
	Resources   map[string]string `json:"resources,omitempty"`
	Compliance  []string          `json:"compliance,omitempty"`
}

// Participant is an entity entitled to vote, with a voting power in [0,1]
// used by the weighted algorithm.
type Participant struct {
	ID          string   `json:"id"`
	Name        string   `json:"name,omitempty"`
	Role        string   `json:"role,omitempty"`
	VotingPower float64  `json:"votingPower"`
	Expertise   []string `json:"expertise,omitempty"`
}

type Decision string

const (
	DecisionApprove               Decision = "approve"
	DecisionReject                Decision = "reject"
	DecisionAbstain               Decision = "abstain"
	DecisionApproveWithConditions Decision = "approve_with_conditions"
	DecisionRejectWithCounter     Decision = "reject_with_counterproposal"
	DecisionRequestMoreInfo       Decision = "request_more_info"
	DecisionDelegate              Decision = "delegate"
)

// approving reports whether a decision counts toward approval.
func (d Decision) approving() bool {
	return d == DecisionApprove || d == DecisionApproveWithConditions
}

// dissenting reports whether a decision carries a dissenting opinion.
func (d Decision) dissenting() bool {
	return d == DecisionReject || d == DecisionRejectWithCounter
}

// Vote is one participant's ballot. DelegateTo is only meaningful with
// DecisionDelegate. A vote is valid only while Timestamp is at or before
// the session deadline.
type Vote struct {
	ParticipantID string    `json:"participantId"`
	Decision      Decision  `json:"decision"`
	DelegateTo    string    `json:"delegateTo,omitempty"`
	Confidence    float64   `json:"confidence"`
	Rationale     string    `json:"rationale,omitempty"`
	Conditions    []string  `json:"conditions,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

type Status string

const (
	StatusPending       Status = "pending"
	StatusActive        Status = "active"
	StatusQuorumReached Status = "quorum_reached"
	StatusApproved      Status = "approved"
	StatusRejected      Status = "rejected"
	StatusExpired       Status = "expired"
	StatusCancelled     Status = "cancelled"
	StatusEscalated     Status = "escalated"
)

func (s Status) terminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusCancelled
}

type Outcome string

const (
	OutcomeUnanimousApproval     Outcome = "unanimous_approval"
	OutcomeSupermajorityApproval Outcome = "supermajority_approval"
	OutcomeMajorityApproval      Outcome = "majority_approval"
	OutcomeNarrowApproval        Outcome = "narrow_approval"
	OutcomeMajorityRejection     Outcome = "majority_rejection"
	OutcomeQuorumNotMet          Outcome = "quorum_not_met"
	OutcomeInvalid               Outcome = "invalid"
)

// approved reports whether an outcome finalizes the session as Approved.
func (o Outcome) approved() bool {
	switch o {
	case OutcomeUnanimousApproval, OutcomeSupermajorityApproval,
		OutcomeMajorityApproval, OutcomeNarrowApproval:
		return true
	default:
		return false
	}
}

// DissentingOpinion captures a rejecting vote's rationale for the result.
type DissentingOpinion struct {
	ParticipantID  string   `json:"participantId"`
	Opinion        string   `json:"opinion"`
	ImpactConcerns []string `json:"impactConcerns,omitempty"`
}

// VoteResult is the consensus outcome returned to the proposal originator.
type VoteResult struct {
	Outcome            Outcome             `json:"outcome"`
	ApprovalPercent    float64             `json:"approvalPercent"`
	ParticipationRate  float64             `json:"participationRate"`
	ConsensusScore     float64             `json:"consensusScore"`
	DissentingOpinions []DissentingOpinion `json:"dissentingOpinions,omitempty"`
}

// Session is one open proposal/vote lifecycle instance. Participants are
// snapshotted at open time; Votes is last-write-wins per participant.
type Session struct {
	ID                string          `json:"id"`
	Proposal          Proposal        `json:"proposal"`
	Type              ConsensusType   `json:"type"`
	Participants      []Participant   `json:"participants"`
	Votes             map[string]Vote `json:"votes"`
	Status            Status          `json:"status"`
	StartedAt         time.Time       `json:"startedAt"`
	Deadline          time.Time       `json:"deadline"`
	QuorumRequired    float64         `json:"quorumRequired"`
	ApprovalThreshold float64         `json:"approvalThreshold"`
	Result            *VoteResult     `json:"result,omitempty"`
}

// participant returns the snapshot entry for an id.
func (s *Session) participant(id string) (Participant, bool) {
	for _, p := range s.Participants {
		if p.ID == id {
			return p, true
		}
	}
	return Participant{}, false
}

// participationRate is the voted fraction by headcount.
func (s *Session) participationRate() float64 {
	if len(s.Participants) == 0 {
		return 0
	}
	return float64(len(s.Votes)) / float64(len(s.Participants))
}

// CompletedSession is an archived, finalized session.
type CompletedSession struct {
	Session     Session    `json:"session"`
	Result      VoteResult `json:"result"`
	CompletedAt time.Time  `json:"completedAt"`
}

// NextAction is an algorithm's advice after a vote lands.
type NextAction int

const (
	ActionContinue NextAction = iota
	ActionExtendDeadline
	ActionEscalate
	ActionComplete
)
