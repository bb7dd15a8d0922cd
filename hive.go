// Package hive is an orchestration core for pools of cooperating workers:
// a task coordination engine (queue, topology-based worker selection,
// messaging) and a consensus engine (proposal/vote lifecycle with pluggable
// voting algorithms) built on a shared roster.
package hive

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/rhombus-tech/hive/archive"
	"github.com/rhombus-tech/hive/consensus"
	"github.com/rhombus-tech/hive/coordination"
)

// Orchestrator wires the registry, bus, coordinator and consensus engine
// together. Construct one per deployment (or per test); there is no
// process-wide instance.
type Orchestrator struct {
	config *Config
	log    *zap.Logger

	Registry    *coordination.Registry
	Bus         *coordination.MessageBus
	Coordinator *coordination.Coordinator
	Consensus   *consensus.Engine
	Monitor     *coordination.Monitor

	store *archive.Store
}

// Snapshot bundles coordination metrics with the latest system sample.
type Snapshot struct {
	Coordination coordination.Metrics     `json:"coordination"`
	System       coordination.SystemStats `json:"system"`
}

func New(cfg *Config, log *zap.Logger) (*Orchestrator, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if log == nil {
		log = zap.NewNop()
	}

	coordCfg, err := cfg.coordinationConfig()
	if err != nil {
		return nil, err
	}

	var store *archive.Store
	if cfg.ArchivePath != "" {
		store, err = archive.Open(cfg.ArchivePath)
		if err != nil {
			return nil, err
		}
	}

	registry := coordination.NewRegistry()
	bus := coordination.NewMessageBus(coordCfg, log.Named("bus"))

	var taskArchiver coordination.Archiver
	var sessionArchiver consensus.Archiver
	if store != nil {
		taskArchiver = store
		sessionArchiver = store
	}

	coordinator := coordination.NewCoordinator(
		coordCfg, registry, bus, taskArchiver, log.Named("coordinator"))

	engineCfg := consensus.DefaultConfig()
	if cfg.ConsensusHistoryLimit > 0 {
		engineCfg.HistoryLimit = cfg.ConsensusHistoryLimit
	}
	engine := consensus.NewEngine(
		engineCfg,
		&RosterParticipants{Registry: registry},
		sessionArchiver,
		log.Named("consensus"))

	monitorInterval, err := cfg.monitorInterval()
	if err != nil {
		return nil, err
	}

	return &Orchestrator{
		config:      cfg,
		log:         log,
		Registry:    registry,
		Bus:         bus,
		Coordinator: coordinator,
		Consensus:   engine,
		Monitor:     coordination.NewMonitor(monitorInterval, log.Named("monitor")),
		store:       store,
	}, nil
}

func (o *Orchestrator) Start() {
	o.Coordinator.Start()
	o.Monitor.Start()
	o.log.Info("orchestrator started",
		zap.String("topology", o.config.Topology))
}

func (o *Orchestrator) Stop() error {
	o.Monitor.Stop()
	o.Coordinator.Stop()
	o.Bus.Close()
	if o.store != nil {
		if err := o.store.Close(); err != nil {
			return fmt.Errorf("close archive: %w", err)
		}
	}
	o.log.Info("orchestrator stopped")
	return nil
}

// AddWorker registers a worker in the roster and on the bus, returning its
// delivery channel. The channel closes when the worker is removed.
func (o *Orchestrator) AddWorker(id coordination.WorkerID, role coordination.Role) (<-chan *coordination.Message, error) {
	if err := o.Registry.Add(coordination.Worker{ID: id, Role: role}); err != nil {
		return nil, err
	}
	ch, err := o.Bus.Register(id)
	if err != nil {
		_ = o.Registry.Remove(id)
		return nil, err
	}
	o.log.Debug("worker added",
		zap.String("worker", string(id)), zap.String("role", string(role)))
	return ch, nil
}

// RemoveWorker drops the worker from the roster and closes its delivery
// channel, ending its receive loop.
func (o *Orchestrator) RemoveWorker(id coordination.WorkerID) error {
	if err := o.Registry.Remove(id); err != nil {
		return err
	}
	return o.Bus.Unregister(id)
}

// SubmitTask queues a task and immediately coordinates its assignment.
func (o *Orchestrator) SubmitTask(description string, priority coordination.TaskPriority) (string, error) {
	taskID, err := o.Coordinator.Submit(description, priority)
	if err != nil {
		return "", err
	}
	if err := o.Coordinator.Coordinate(taskID); err != nil {
		return taskID, err
	}
	return taskID, nil
}

// SubmitEnhanced queues an expedited task at the front and coordinates it.
func (o *Orchestrator) SubmitEnhanced(description string) (string, error) {
	taskID, err := o.Coordinator.SubmitEnhanced(description)
	if err != nil {
		return "", err
	}
	if err := o.Coordinator.Coordinate(taskID); err != nil {
		return taskID, err
	}
	return taskID, nil
}

// Propose opens a consensus session for a proposal.
func (o *Orchestrator) Propose(ctx context.Context, proposal consensus.Proposal, t consensus.ConsensusType) (string, error) {
	return o.Consensus.Initiate(ctx, proposal, t)
}

// CastVote records a ballot in an open session.
func (o *Orchestrator) CastVote(ctx context.Context, sessionID string, vote consensus.Vote) error {
	return o.Consensus.CastVote(ctx, sessionID, vote)
}

// Metrics returns the combined coordination and system snapshot.
func (o *Orchestrator) Metrics() Snapshot {
	return Snapshot{
		Coordination: o.Coordinator.Metrics(),
		System:       o.Monitor.Stats(),
	}
}

// RosterParticipants adapts the worker roster into a consensus participant
// snapshot: equal voting power, expertise from role capabilities. Replace
// with an organization-backed source in production.
type RosterParticipants struct {
	Registry *coordination.Registry
}

func (r *RosterParticipants) Participants(ctx context.Context, proposal *consensus.Proposal, t consensus.ConsensusType) ([]consensus.Participant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	workers := r.Registry.Snapshot()
	if len(workers) == 0 {
		return nil, nil
	}

	power := 1.0 / float64(len(workers))
	participants := make([]consensus.Participant, 0, len(workers))
	for _, w := range workers {
		participants = append(participants, consensus.Participant{
			ID:          string(w.ID),
			Role:        string(w.Role),
			VotingPower: power,
			Expertise:   w.Capabilities,
		})
	}
	return participants, nil
}
