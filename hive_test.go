package hive

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rhombus-tech/hive/archive"
	"github.com/rhombus-tech/hive/consensus"
	"github.com/rhombus-tech/hive/coordination"
)

func testOrchestrator(t *testing.T, cfg *Config) *Orchestrator {
	t.Helper()
	o, err := New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, o.Stop()) })
	return o
}

func TestSubmitTaskEndToEnd(t *testing.T) {
	o := testOrchestrator(t, nil)

	ch, err := o.AddWorker("queen-1", coordination.RoleQueen)
	require.NoError(t, err)
	_, err = o.AddWorker("coder-1", coordination.RoleCoder)
	require.NoError(t, err)

	id, err := o.SubmitTask("coordinate the weekly release", coordination.PriorityNormal)
	require.NoError(t, err)

	// Hierarchical topology routes to the queen.
	msg := <-ch
	require.Equal(t, coordination.MessageTaskAssignment, msg.Type)
	require.Equal(t, coordination.WorkerID("queen-1"), msg.To)

	task, err := o.Coordinator.Task(id)
	require.NoError(t, err)
	require.Equal(t, coordination.TaskAssigned, task.Status)
	require.Equal(t, coordination.WorkerID("queen-1"), task.AssignedTo)
}

func TestSubmitTaskWithoutWorkers(t *testing.T) {
	o := testOrchestrator(t, nil)

	_, err := o.SubmitTask("nobody is home", coordination.PriorityNormal)
	require.ErrorIs(t, err, coordination.ErrNoWorkers)
	// The task stays queued for when workers join.
	require.Equal(t, 1, o.Coordinator.QueueLen())
}

func TestAddWorkerRollsBackOnBusConflict(t *testing.T) {
	o := testOrchestrator(t, nil)

	_, err := o.AddWorker("w1", coordination.RoleCoder)
	require.NoError(t, err)
	_, err = o.AddWorker("w1", coordination.RoleCoder)
	require.ErrorIs(t, err, coordination.ErrWorkerExists)
	require.Equal(t, 1, o.Registry.Len())
}

func TestRemoveWorkerClosesChannel(t *testing.T) {
	o := testOrchestrator(t, nil)

	ch, err := o.AddWorker("w1", coordination.RoleCoder)
	require.NoError(t, err)
	require.NoError(t, o.RemoveWorker("w1"))

	_, open := <-ch
	require.False(t, open)
	require.Equal(t, 0, o.Registry.Len())
}

func TestProposeAndVoteOverRoster(t *testing.T) {
	o := testOrchestrator(t, nil)
	for _, id := range []coordination.WorkerID{"w1", "w2", "w3"} {
		_, err := o.AddWorker(id, coordination.RoleCoder)
		require.NoError(t, err)
	}

	ctx := context.Background()
	sessionID, err := o.Propose(ctx, consensus.Proposal{Title: "switch to trunk-based development"}, consensus.TypeTeam)
	require.NoError(t, err)

	vote := consensus.Vote{Decision: consensus.DecisionApprove, Confidence: 0.9}

	vote.ParticipantID = "w1"
	require.NoError(t, o.CastVote(ctx, sessionID, vote))
	vote.ParticipantID = "w2"
	require.NoError(t, o.CastVote(ctx, sessionID, vote))

	session, err := o.Consensus.Session(sessionID)
	require.NoError(t, err)
	require.Equal(t, consensus.StatusApproved, session.Status)
	require.Equal(t, consensus.OutcomeUnanimousApproval, session.Result.Outcome)
}

func TestProposeWithEmptyRoster(t *testing.T) {
	o := testOrchestrator(t, nil)
	_, err := o.Propose(context.Background(), consensus.Proposal{}, consensus.TypeTeam)
	require.ErrorIs(t, err, consensus.ErrNoParticipants)
}

func TestRosterParticipantsAdapter(t *testing.T) {
	o := testOrchestrator(t, nil)
	_, err := o.AddWorker("coder-1", coordination.RoleCoder)
	require.NoError(t, err)
	_, err = o.AddWorker("tester-1", coordination.RoleTester)
	require.NoError(t, err)

	source := &RosterParticipants{Registry: o.Registry}
	participants, err := source.Participants(context.Background(), &consensus.Proposal{}, consensus.TypeTeam)
	require.NoError(t, err)
	require.Len(t, participants, 2)
	for _, p := range participants {
		require.InDelta(t, 0.5, p.VotingPower, 1e-9)
		require.NotEmpty(t, p.Expertise)
	}
}

func TestOrchestratorWithArchive(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ArchivePath = filepath.Join(t.TempDir(), "archive")

	o, err := New(cfg, nil)
	require.NoError(t, err)

	_, err = o.AddWorker("w1", coordination.RoleCoder)
	require.NoError(t, err)
	sessionID, err := o.Propose(context.Background(), consensus.Proposal{Title: "archive me"}, consensus.TypeTeam)
	require.NoError(t, err)
	require.NoError(t, o.CastVote(context.Background(), sessionID, consensus.Vote{
		ParticipantID: "w1",
		Decision:      consensus.DecisionApprove,
		Confidence:    0.9,
	}))

	require.NoError(t, o.Stop())

	// The finalized session survived into the on-disk archive.
	store, err := archive.Open(cfg.ArchivePath)
	require.NoError(t, err)
	defer store.Close()

	got, err := store.Session(sessionID)
	require.NoError(t, err)
	require.Equal(t, consensus.StatusApproved, got.Session.Status)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hive.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"topology: mesh\nhistory_limit: 50\ntask_retention: 48h\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "mesh", cfg.Topology)
	require.Equal(t, 50, cfg.HistoryLimit)
	require.Equal(t, "48h", cfg.TaskRetention)
	// Unset fields keep their defaults.
	require.Equal(t, 100, cfg.ChannelBuffer)
	require.Equal(t, "30s", cfg.MonitorInterval)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestConfigDurationParsing(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TaskRetention = "not-a-duration"
	_, err := New(cfg, nil)
	require.Error(t, err)

	cfg = DefaultConfig()
	cfg.MonitorInterval = ""
	coordCfg, err := cfg.coordinationConfig()
	require.NoError(t, err)
	require.Equal(t, 24*time.Hour, coordCfg.TaskRetention)

	interval, err := cfg.monitorInterval()
	require.NoError(t, err)
	require.Equal(t, 30*time.Second, interval)
}
