package coordination

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Topology names the strategy family used to pick a worker for a task.
type Topology string

const (
	TopologyHierarchical Topology = "hierarchical"
	TopologyMesh         Topology = "mesh"
	TopologyRing         Topology = "ring"
	TopologyStar         Topology = "star"
	TopologyHybrid       Topology = "hybrid"
)

// ParseTopology maps a config string to a Topology, defaulting to
// hierarchical for unknown values.
func ParseTopology(s string) Topology {
	switch Topology(strings.ToLower(s)) {
	case TopologyMesh:
		return TopologyMesh
	case TopologyRing:
		return TopologyRing
	case TopologyStar:
		return TopologyStar
	case TopologyHybrid:
		return TopologyHybrid
	default:
		return TopologyHierarchical
	}
}

// keywordTags maps task description keywords to required capability tags
// for Hybrid selection. Matching is substring based on the lowercased
// description.
var keywordTags = map[string]string{
	"code":     "coding",
	"implemen": "coding",
	"test":     "testing",
	"security": "security",
	"deploy":   "deployment",
	"research": "research",
	"design":   "architecture",
	"document": "documentation",
	"analyz":   "analysis",
	"debug":    "debugging",
}

// Selector picks exactly one worker for a task under the configured
// topology. It owns the coordination state (round-robin index, assignment
// window) and mutates it only during selection.
type Selector struct {
	registry *Registry

	mu          sync.Mutex
	rrIndex     uint64
	assignments []Assignment
	windowCap   int
}

func NewSelector(registry *Registry, cfg *Config) *Selector {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Selector{
		registry:  registry,
		windowCap: cfg.AssignmentsCap,
	}
}

// Select dispatches to one of the five strategies. Every strategy fails
// with ErrNoWorkers on an empty roster.
func (s *Selector) Select(topology Topology, task *Task) (WorkerID, error) {
	switch topology {
	case TopologyHierarchical:
		return s.selectHierarchical()
	case TopologyMesh:
		return s.selectMesh()
	case TopologyRing:
		return s.selectRing()
	case TopologyStar:
		return s.selectStar()
	case TopologyHybrid:
		return s.selectHybrid(task)
	default:
		return "", ErrUnknownTopology
	}
}

// selectHierarchical prefers a Queen or Coordinator, falling back to the
// first roster entry of any role.
func (s *Selector) selectHierarchical() (WorkerID, error) {
	workers := s.registry.Snapshot()
	if len(workers) == 0 {
		return "", ErrNoWorkers
	}
	for _, w := range workers {
		if w.Role == RoleQueen || w.Role == RoleCoordinator {
			return w.ID, nil
		}
	}
	return workers[0].ID, nil
}

// selectMesh picks the minimum-workload worker (first encountered wins
// ties), increments its counter and records the assignment in the bounded
// window.
func (s *Selector) selectMesh() (WorkerID, error) {
	workers := s.registry.Snapshot()
	if len(workers) == 0 {
		return "", ErrNoWorkers
	}

	selected := workers[0]
	for _, w := range workers[1:] {
		if w.Workload < selected.Workload {
			selected = w
		}
	}

	s.registry.IncrementWorkload(selected.ID)

	s.mu.Lock()
	s.assignments = append(s.assignments, Assignment{Worker: selected.ID, At: time.Now()})
	if len(s.assignments) > s.windowCap {
		s.assignments = s.assignments[len(s.assignments)-s.windowCap:]
	}
	s.mu.Unlock()

	return selected.ID, nil
}

// selectRing applies the global index to a snapshot sorted by worker id,
// so the index keeps a reproducible meaning even when the roster changes
// between calls.
func (s *Selector) selectRing() (WorkerID, error) {
	workers := s.registry.Snapshot()
	if len(workers) == 0 {
		return "", ErrNoWorkers
	}
	sort.Slice(workers, func(i, j int) bool { return workers[i].ID < workers[j].ID })

	s.mu.Lock()
	idx := s.rrIndex % uint64(len(workers))
	s.rrIndex++
	s.mu.Unlock()

	return workers[idx].ID, nil
}

// selectStar requires a Coordinator; there is no fallback.
func (s *Selector) selectStar() (WorkerID, error) {
	workers := s.registry.Snapshot()
	if len(workers) == 0 {
		return "", ErrNoWorkers
	}
	for _, w := range workers {
		if w.Role == RoleCoordinator {
			return w.ID, nil
		}
	}
	return "", ErrNoCoordinator
}

// selectHybrid scores each worker by how many of the task's required tags
// its role capabilities cover. With no required tags every worker scores
// 1.0 and the first encountered wins.
func (s *Selector) selectHybrid(task *Task) (WorkerID, error) {
	workers := s.registry.Snapshot()
	if len(workers) == 0 {
		return "", ErrNoWorkers
	}

	required := requiredTags(task)

	best := workers[0]
	bestScore := capabilityScore(workers[0].Capabilities, required)
	for _, w := range workers[1:] {
		if score := capabilityScore(w.Capabilities, required); score > bestScore {
			best, bestScore = w, score
		}
	}
	return best.ID, nil
}

func requiredTags(task *Task) []string {
	if task == nil {
		return nil
	}

	var tags []string
	seen := make(map[string]bool)
	desc := strings.ToLower(task.Description)
	for keyword, tag := range keywordTags {
		if strings.Contains(desc, keyword) && !seen[tag] {
			tags = append(tags, tag)
			seen[tag] = true
		}
	}

	switch task.Priority {
	case PriorityCritical:
		tags = append(tags, "critical-handling")
	case PriorityHigh:
		tags = append(tags, "high-priority")
	}
	return tags
}

func capabilityScore(capabilities, required []string) float64 {
	if len(required) == 0 {
		return 1.0
	}
	have := make(map[string]bool, len(capabilities))
	for _, c := range capabilities {
		have[c] = true
	}
	matched := 0
	for _, tag := range required {
		if have[tag] {
			matched++
		}
	}
	return float64(matched) / float64(len(required))
}

// Assignments returns a copy of the Mesh assignment window, oldest first.
func (s *Selector) Assignments() []Assignment {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Assignment, len(s.assignments))
	copy(out, s.assignments)
	return out
}
