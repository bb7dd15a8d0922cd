package coordination

import "sync"

// Registry holds the current worker roster. The external lifecycle manager
// writes it; selection only reads it, except for the Mesh workload counter.
//
// Workload counters count lifetime assignments and are never decremented,
// matching the load signal Mesh balances on. ReleaseWorker clears the
// current task only.
type Registry struct {
	mu      sync.RWMutex
	workers map[WorkerID]*Worker
}

func NewRegistry() *Registry {
	return &Registry{workers: make(map[WorkerID]*Worker)}
}

func (r *Registry) Add(w Worker) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.workers[w.ID]; exists {
		return ErrWorkerExists
	}
	if w.Capabilities == nil {
		w.Capabilities = RoleCapabilities(w.Role)
	}
	cp := w
	r.workers[w.ID] = &cp
	return nil
}

func (r *Registry) Remove(id WorkerID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.workers[id]; !exists {
		return ErrWorkerNotFound
	}
	delete(r.workers, id)
	return nil
}

func (r *Registry) Get(id WorkerID) (Worker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	w, exists := r.workers[id]
	if !exists {
		return Worker{}, false
	}
	return *w, true
}

// Snapshot returns a copy of the roster. Iteration order is not defined;
// strategies that need a stable order sort the snapshot themselves.
func (r *Registry) Snapshot() []Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Worker, 0, len(r.workers))
	for _, w := range r.workers {
		out = append(out, *w)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.workers)
}

func (r *Registry) IncrementWorkload(id WorkerID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if w, exists := r.workers[id]; exists {
		w.Workload++
	}
}

func (r *Registry) SetCurrentTask(id WorkerID, taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, exists := r.workers[id]
	if !exists {
		return ErrWorkerNotFound
	}
	w.CurrentTask = taskID
	return nil
}

// ReleaseWorker clears the worker's current task after completion or
// failure. The workload counter is left untouched.
func (r *Registry) ReleaseWorker(id WorkerID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, exists := r.workers[id]
	if !exists {
		return ErrWorkerNotFound
	}
	w.CurrentTask = ""
	return nil
}

// RoleCapabilities returns the static capability tags for a role. Hybrid
// selection scores workers by intersecting these with a task's required
// tags.
func RoleCapabilities(role Role) []string {
	switch role {
	case RoleQueen:
		return []string{"coordination", "decision-making", "strategic-planning", "consensus-building", "critical-handling"}
	case RoleArchitect:
		return []string{"architecture", "system-design", "technology-selection", "scalability-planning"}
	case RoleCoder:
		return []string{"coding", "implementation", "debugging", "refactoring"}
	case RoleTester:
		return []string{"testing", "quality-assurance", "bug-detection", "review"}
	case RoleAnalyst:
		return []string{"analysis", "performance-analysis", "reporting"}
	case RoleResearcher:
		return []string{"research", "information-gathering", "documentation"}
	case RoleSecurity:
		return []string{"security", "vulnerability-scanning", "compliance-checking", "penetration-testing"}
	case RoleDevOps:
		return []string{"deployment", "infrastructure-management", "monitoring", "automation"}
	case RoleCoordinator:
		return []string{"task-coordination", "resource-management", "progress-tracking", "communication", "high-priority"}
	default:
		return nil
	}
}
