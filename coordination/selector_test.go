package coordination

import (
	"errors"
	"testing"
)

func testRegistry(t *testing.T, workers ...Worker) *Registry {
	t.Helper()
	r := NewRegistry()
	for _, w := range workers {
		if err := r.Add(w); err != nil {
			t.Fatalf("add worker %s: %v", w.ID, err)
		}
	}
	return r
}

func TestSelectEmptyRoster(t *testing.T) {
	selector := NewSelector(NewRegistry(), DefaultConfig())

	for _, topology := range []Topology{
		TopologyHierarchical, TopologyMesh, TopologyRing, TopologyStar, TopologyHybrid,
	} {
		_, err := selector.Select(topology, NewTask("anything", PriorityNormal))
		if !errors.Is(err, ErrNoWorkers) {
			t.Errorf("%s: want ErrNoWorkers, got %v", topology, err)
		}
	}
}

func TestSelectUnknownTopology(t *testing.T) {
	selector := NewSelector(testRegistry(t, Worker{ID: "w1", Role: RoleCoder}), DefaultConfig())
	if _, err := selector.Select(Topology("tree"), nil); !errors.Is(err, ErrUnknownTopology) {
		t.Fatalf("want ErrUnknownTopology, got %v", err)
	}
}

func TestHierarchicalPrefersQueen(t *testing.T) {
	registry := testRegistry(t,
		Worker{ID: "queen-1", Role: RoleQueen},
		Worker{ID: "coder-1", Role: RoleCoder},
		Worker{ID: "tester-1", Role: RoleTester},
	)
	selector := NewSelector(registry, DefaultConfig())

	id, err := selector.Select(TopologyHierarchical, NewTask("write the login module", PriorityNormal))
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if id != "queen-1" {
		t.Fatalf("want queen-1, got %s", id)
	}
}

func TestHierarchicalFallsBack(t *testing.T) {
	registry := testRegistry(t,
		Worker{ID: "coder-1", Role: RoleCoder},
		Worker{ID: "tester-1", Role: RoleTester},
	)
	selector := NewSelector(registry, DefaultConfig())

	id, err := selector.Select(TopologyHierarchical, nil)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if _, ok := registry.Get(id); !ok {
		t.Fatalf("selected unknown worker %s", id)
	}
}

func TestStarRequiresCoordinator(t *testing.T) {
	selector := NewSelector(testRegistry(t,
		Worker{ID: "coder-1", Role: RoleCoder},
	), DefaultConfig())

	if _, err := selector.Select(TopologyStar, nil); !errors.Is(err, ErrNoCoordinator) {
		t.Fatalf("want ErrNoCoordinator, got %v", err)
	}

	selector = NewSelector(testRegistry(t,
		Worker{ID: "coder-1", Role: RoleCoder},
		Worker{ID: "coordinator-1", Role: RoleCoordinator},
	), DefaultConfig())

	id, err := selector.Select(TopologyStar, nil)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if id != "coordinator-1" {
		t.Fatalf("want coordinator-1, got %s", id)
	}
}

func TestRingRotatesSortedSnapshot(t *testing.T) {
	registry := testRegistry(t,
		Worker{ID: "c", Role: RoleCoder},
		Worker{ID: "a", Role: RoleCoder},
		Worker{ID: "b", Role: RoleCoder},
	)
	selector := NewSelector(registry, DefaultConfig())

	want := []WorkerID{"a", "b", "c", "a", "b", "c"}
	for i, expected := range want {
		id, err := selector.Select(TopologyRing, nil)
		if err != nil {
			t.Fatalf("select %d: %v", i, err)
		}
		if id != expected {
			t.Fatalf("selection %d: want %s, got %s", i, expected, id)
		}
	}
}

func TestRingCoversEveryWorker(t *testing.T) {
	registry := testRegistry(t,
		Worker{ID: "w1", Role: RoleCoder},
		Worker{ID: "w2", Role: RoleCoder},
		Worker{ID: "w3", Role: RoleCoder},
		Worker{ID: "w4", Role: RoleCoder},
	)
	selector := NewSelector(registry, DefaultConfig())

	// Any window of N consecutive selections must contain each worker.
	seen := make(map[WorkerID]int)
	for i := 0; i < 4; i++ {
		id, err := selector.Select(TopologyRing, nil)
		if err != nil {
			t.Fatalf("select: %v", err)
		}
		seen[id]++
	}
	if len(seen) != 4 {
		t.Fatalf("window of 4 selections covered %d workers: %v", len(seen), seen)
	}
}

func TestMeshBalancesEqualRoster(t *testing.T) {
	registry := testRegistry(t,
		Worker{ID: "coder-1", Role: RoleCoder},
		Worker{ID: "coder-2", Role: RoleCoder},
		Worker{ID: "coder-3", Role: RoleCoder},
		Worker{ID: "coder-4", Role: RoleCoder},
	)
	selector := NewSelector(registry, DefaultConfig())

	counts := make(map[WorkerID]int)
	for i := 0; i < 4; i++ {
		id, err := selector.Select(TopologyMesh, nil)
		if err != nil {
			t.Fatalf("select: %v", err)
		}
		counts[id]++
	}

	total := 0
	for id, n := range counts {
		if n > 1 {
			t.Errorf("worker %s selected %d times, want at most 1", id, n)
		}
		total += n
	}
	if total != 4 {
		t.Fatalf("want 4 assignments, got %d", total)
	}
}

func TestMeshPicksMinimumWorkload(t *testing.T) {
	registry := testRegistry(t,
		Worker{ID: "busy", Role: RoleCoder, Workload: 5},
		Worker{ID: "idle", Role: RoleCoder, Workload: 1},
		Worker{ID: "swamped", Role: RoleCoder, Workload: 9},
	)
	selector := NewSelector(registry, DefaultConfig())

	for i := 0; i < 10; i++ {
		before := make(map[WorkerID]uint64)
		for _, w := range registry.Snapshot() {
			before[w.ID] = w.Workload
		}

		id, err := selector.Select(TopologyMesh, nil)
		if err != nil {
			t.Fatalf("select: %v", err)
		}
		for other, load := range before {
			if before[id] > load {
				t.Fatalf("step %d: selected %s with load %d over %s with load %d",
					i, id, before[id], other, load)
			}
		}
	}
}

func TestMeshAssignmentWindowBounded(t *testing.T) {
	registry := testRegistry(t, Worker{ID: "w1", Role: RoleCoder})
	cfg := DefaultConfig()
	cfg.AssignmentsCap = 5
	selector := NewSelector(registry, cfg)

	for i := 0; i < 12; i++ {
		if _, err := selector.Select(TopologyMesh, nil); err != nil {
			t.Fatalf("select: %v", err)
		}
	}

	window := selector.Assignments()
	if len(window) != 5 {
		t.Fatalf("want window of 5, got %d", len(window))
	}
	for i := 1; i < len(window); i++ {
		if window[i].At.Before(window[i-1].At) {
			t.Fatal("window not ordered oldest first")
		}
	}
}

func TestHybridMatchesCapabilities(t *testing.T) {
	registry := testRegistry(t,
		Worker{ID: "researcher-1", Role: RoleResearcher},
		Worker{ID: "coder-1", Role: RoleCoder},
		Worker{ID: "security-1", Role: RoleSecurity},
	)
	selector := NewSelector(registry, DefaultConfig())

	// "debug" and "code" both map to Coder capabilities, so the coder
	// scores 1.0 and every other role scores at most 0.5.
	id, err := selector.Select(TopologyHybrid, NewTask("debug the payment code path", PriorityNormal))
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if id != "coder-1" {
		t.Fatalf("want coder-1, got %s", id)
	}
}

func TestHybridCriticalPriorityTag(t *testing.T) {
	registry := testRegistry(t,
		Worker{ID: "coder-1", Role: RoleCoder},
		Worker{ID: "queen-1", Role: RoleQueen},
	)
	selector := NewSelector(registry, DefaultConfig())

	// No keyword matches; only the critical-handling tag is required and
	// only the queen carries it.
	id, err := selector.Select(TopologyHybrid, NewTask("urgent outage triage", PriorityCritical))
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if id != "queen-1" {
		t.Fatalf("want queen-1, got %s", id)
	}
}

func TestHybridNoRequiredTags(t *testing.T) {
	registry := testRegistry(t,
		Worker{ID: "w1", Role: RoleAnalyst},
		Worker{ID: "w2", Role: RoleDevOps},
	)
	selector := NewSelector(registry, DefaultConfig())

	id, err := selector.Select(TopologyHybrid, NewTask("miscellaneous chore", PriorityNormal))
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if _, ok := registry.Get(id); !ok {
		t.Fatalf("selected unknown worker %s", id)
	}
}

func TestParseTopology(t *testing.T) {
	cases := map[string]Topology{
		"mesh":         TopologyMesh,
		"RING":         TopologyRing,
		"star":         TopologyStar,
		"hybrid":       TopologyHybrid,
		"hierarchical": TopologyHierarchical,
		"bogus":        TopologyHierarchical,
		"":             TopologyHierarchical,
	}
	for in, want := range cases {
		if got := ParseTopology(in); got != want {
			t.Errorf("ParseTopology(%q) = %s, want %s", in, got, want)
		}
	}
}
