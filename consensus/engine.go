package consensus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ParticipantSource resolves the voter snapshot for a new session. In
// production this is backed by the external roster manager.
type ParticipantSource interface {
	Participants(ctx context.Context, proposal *Proposal, t ConsensusType) ([]Participant, error)
}

// Archiver receives finalized sessions for cold storage.
type Archiver interface {
	ArchiveSession(ctx context.Context, completed *CompletedSession) error
}

type Config struct {
	// HistoryLimit caps the in-memory completed-session list; older
	// entries are dropped once they have been archived.
	HistoryLimit int

	// ExtendBy is the deadline push applied on ActionExtendDeadline.
	ExtendBy time.Duration
}

func DefaultConfig() *Config {
	return &Config{
		HistoryLimit: 1000,
		ExtendBy:     24 * time.Hour,
	}
}

// sessionParams are the fixed per-type voting parameters.
type sessionParams struct {
	duration  time.Duration
	quorum    float64
	threshold float64
}

var typeParams = map[ConsensusType]sessionParams{
	TypeExecutive:  {7 * 24 * time.Hour, 1.0, 0.8},
	TypeManagement: {3 * 24 * time.Hour, 0.8, 0.67},
	TypeTeam:       {24 * time.Hour, 0.6, 0.6},
	TypeIndividual: {8 * time.Hour, 0.5, 0.5},
	TypeByzantine:  {24 * time.Hour, 0.67, 0.67},
}

var defaultParams = sessionParams{2 * 24 * time.Hour, 0.5, 0.5}

func paramsFor(t ConsensusType) sessionParams {
	if p, ok := typeParams[t]; ok {
		return p
	}
	return defaultParams
}

// Engine owns proposal/vote sessions. On each vote it asks the matching
// algorithm to validate the ballot and to decide whether the session
// finalizes, extends its deadline or continues.
type Engine struct {
	config       *Config
	registry     *Registry
	participants ParticipantSource
	archiver     Archiver
	log          *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*Session

	histMu  sync.RWMutex
	history []CompletedSession
}

func NewEngine(cfg *Config, participants ParticipantSource, archiver Archiver, log *zap.Logger) *Engine {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Engine{
		config:       cfg,
		registry:     NewRegistry(),
		participants: participants,
		archiver:     archiver,
		log:          log,
		sessions:     make(map[string]*Session),
	}
}

// Initiate opens an Active session for the proposal with the type-specific
// quorum, threshold and deadline, snapshotting participants.
func (e *Engine) Initiate(ctx context.Context, proposal Proposal, t ConsensusType) (string, error) {
	if _, err := e.registry.Lookup(t); err != nil {
		return "", err
	}

	participants, err := e.participants.Participants(ctx, &proposal, t)
	if err != nil {
		return "", fmt.Errorf("resolve participants: %w", err)
	}
	if len(participants) == 0 {
		return "", fmt.Errorf("%s: %w", t, ErrNoParticipants)
	}

	if proposal.ID == "" {
		proposal.ID = uuid.NewString()
	}
	params := paramsFor(t)
	now := time.Now()

	session := &Session{
		ID:                uuid.NewString(),
		Proposal:          proposal,
		Type:              t,
		Participants:      participants,
		Votes:             make(map[string]Vote),
		Status:            StatusActive,
		StartedAt:         now,
		Deadline:          now.Add(params.duration),
		QuorumRequired:    params.quorum,
		ApprovalThreshold: params.threshold,
	}

	e.mu.Lock()
	e.sessions[session.ID] = session
	e.mu.Unlock()

	e.log.Info("consensus session opened",
		zap.String("session", session.ID),
		zap.String("type", string(t)),
		zap.Int("participants", len(participants)),
		zap.Time("deadline", session.Deadline))
	return session.ID, nil
}

// CastVote validates and records a ballot, then follows the algorithm's
// advice. A re-vote by the same participant replaces the previous ballot.
// Once the session is finalized further votes are rejected and the stored
// result is never recomputed. The archive write for a finalized session
// happens after the engine lock is released, so a slow archiver never
// stalls votes on other sessions.
func (e *Engine) CastVote(ctx context.Context, sessionID string, vote Vote) error {
	completed, err := e.castVote(sessionID, vote)
	if err != nil {
		return err
	}
	if completed != nil {
		e.archive(ctx, completed)
	}
	return nil
}

// castVote runs under e.mu and returns the completed-session copy when the
// ballot finalized the session.
func (e *Engine) castVote(sessionID string, vote Vote) (*CompletedSession, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	session, exists := e.sessions[sessionID]
	if !exists {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrSessionNotFound)
	}
	if session.Status.terminal() {
		return nil, fmt.Errorf("session %s is %s: %w", sessionID, session.Status, ErrSessionClosed)
	}

	algo, err := e.registry.Lookup(session.Type)
	if err != nil {
		return nil, err
	}

	if vote.Timestamp.IsZero() {
		vote.Timestamp = time.Now()
	}
	if err := algo.Validate(&vote, session); err != nil {
		return nil, err
	}

	session.Votes[vote.ParticipantID] = vote

	switch algo.NextAction(session) {
	case ActionComplete:
		return e.finalize(session, algo)
	case ActionExtendDeadline:
		session.Deadline = time.Now().Add(e.config.ExtendBy)
		e.log.Info("consensus deadline extended",
			zap.String("session", session.ID),
			zap.Time("deadline", session.Deadline))
	case ActionEscalate:
		session.Status = StatusEscalated
		e.log.Warn("consensus session escalated", zap.String("session", session.ID))
	}
	return nil, nil
}

// finalize runs under e.mu. It computes and stores the result and appends
// to the bounded history; disk archival is the caller's job once the lock
// is gone.
func (e *Engine) finalize(session *Session, algo Algorithm) (*CompletedSession, error) {
	result, err := algo.CalculateResult(session)
	if err != nil {
		return nil, fmt.Errorf("calculate result for %s: %w", session.ID, err)
	}

	session.Result = result
	if result.Outcome.approved() {
		session.Status = StatusApproved
	} else {
		session.Status = StatusRejected
	}

	completed := CompletedSession{
		Session:     *session,
		Result:      *result,
		CompletedAt: time.Now(),
	}

	e.histMu.Lock()
	e.history = append(e.history, completed)
	if len(e.history) > e.config.HistoryLimit {
		e.history = e.history[len(e.history)-e.config.HistoryLimit:]
	}
	e.histMu.Unlock()

	e.log.Info("consensus session finalized",
		zap.String("session", session.ID),
		zap.String("status", string(session.Status)),
		zap.String("outcome", string(result.Outcome)),
		zap.Float64("approval", result.ApprovalPercent))
	return &completed, nil
}

func (e *Engine) archive(ctx context.Context, completed *CompletedSession) {
	if e.archiver == nil {
		return
	}
	if err := e.archiver.ArchiveSession(ctx, completed); err != nil {
		e.log.Warn("failed to archive session",
			zap.String("session", completed.Session.ID), zap.Error(err))
	}
}

// Cancel closes a session without a result.
func (e *Engine) Cancel(sessionID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	session, exists := e.sessions[sessionID]
	if !exists {
		return fmt.Errorf("session %s: %w", sessionID, ErrSessionNotFound)
	}
	if session.Status.terminal() {
		return fmt.Errorf("session %s is %s: %w", sessionID, session.Status, ErrSessionClosed)
	}
	session.Status = StatusCancelled
	return nil
}

// Session returns a copy of a session's current state.
func (e *Engine) Session(sessionID string) (Session, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	session, exists := e.sessions[sessionID]
	if !exists {
		return Session{}, fmt.Errorf("session %s: %w", sessionID, ErrSessionNotFound)
	}

	cp := *session
	cp.Votes = make(map[string]Vote, len(session.Votes))
	for k, v := range session.Votes {
		cp.Votes[k] = v
	}
	if session.Result != nil {
		r := *session.Result
		cp.Result = &r
	}
	return cp, nil
}

// History returns a copy of the in-memory completed-session list, oldest
// first. The archive holds the full record.
func (e *Engine) History() []CompletedSession {
	e.histMu.RLock()
	defer e.histMu.RUnlock()

	out := make([]CompletedSession, len(e.history))
	copy(out, e.history)
	return out
}
