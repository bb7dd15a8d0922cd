package coordination

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Archiver receives terminal tasks evicted from the active map by the
// retention sweep.
type Archiver interface {
	ArchiveTask(ctx context.Context, task *Task) error
}

// Coordinator owns the task queue and per-task state machine. It selects a
// worker through the Selector, notifies it through the MessageBus and
// recomputes metrics with a full scan after every coordination.
type Coordinator struct {
	config   *Config
	registry *Registry
	bus      *MessageBus
	selector *Selector
	archiver Archiver
	log      *zap.Logger

	queueMu sync.Mutex
	queue   []*Task

	mu     sync.RWMutex
	active map[string]*Task

	metricsMu sync.RWMutex
	metrics   Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewCoordinator(cfg *Config, registry *Registry, bus *MessageBus, archiver Archiver, log *zap.Logger) *Coordinator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Coordinator{
		config:   cfg,
		registry: registry,
		bus:      bus,
		selector: NewSelector(registry, cfg),
		archiver: archiver,
		log:      log,
		active:   make(map[string]*Task),
		metrics:  Metrics{SuccessRate: 1.0},
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the retention sweep.
func (c *Coordinator) Start() {
	c.wg.Add(1)
	go c.sweepTerminalTasks()
}

func (c *Coordinator) Stop() {
	c.cancel()
	c.wg.Wait()
}

// Submit creates a Pending task at the back of the queue and returns its id.
func (c *Coordinator) Submit(description string, priority TaskPriority) (string, error) {
	if priority == "" {
		priority = PriorityNormal
	}
	task := NewTask(description, priority)

	c.queueMu.Lock()
	c.queue = append(c.queue, task)
	c.queueMu.Unlock()

	c.log.Debug("task submitted",
		zap.String("task", task.ID),
		zap.String("priority", string(priority)))
	return task.ID, nil
}

// SubmitEnhanced creates a High priority task at the front of the queue,
// the expedited submission path.
func (c *Coordinator) SubmitEnhanced(description string) (string, error) {
	task := NewTask(description, PriorityHigh)
	task.Metadata["enhanced"] = "true"

	c.queueMu.Lock()
	c.queue = append([]*Task{task}, c.queue...)
	c.queueMu.Unlock()

	c.log.Debug("enhanced task submitted", zap.String("task", task.ID))
	return task.ID, nil
}

// Coordinate removes the task from the queue by id, assigns it to a worker
// picked by the configured topology and sends the assignment message. A
// queue miss returns ErrTaskNotFound; the task is not retried.
func (c *Coordinator) Coordinate(taskID string) error {
	task, ok := c.takeFromQueue(taskID)
	if !ok {
		return fmt.Errorf("coordinate %s: %w", taskID, ErrTaskNotFound)
	}

	workerID, err := c.selector.Select(c.config.Topology, task)
	if err != nil {
		// Put the task back at the end so a later call can retry once
		// workers exist. The queue front stays an enhanced-submission
		// privilege and relative order among retried tasks is kept.
		c.queueMu.Lock()
		c.queue = append(c.queue, task)
		c.queueMu.Unlock()
		return fmt.Errorf("select worker for %s: %w", taskID, err)
	}

	task.AssignedTo = workerID
	task.Status = TaskAssigned
	task.StartedAt = time.Now()

	c.mu.Lock()
	c.active[task.ID] = task
	c.mu.Unlock()

	if err := c.registry.SetCurrentTask(workerID, task.ID); err != nil {
		c.log.Warn("worker vanished after selection",
			zap.String("worker", string(workerID)))
	}

	if err := c.sendAssignment(task); err != nil {
		return err
	}

	c.recomputeMetrics(true)
	return nil
}

func (c *Coordinator) takeFromQueue(taskID string) (*Task, bool) {
	c.queueMu.Lock()
	defer c.queueMu.Unlock()

	for i, t := range c.queue {
		if t.ID == taskID {
			c.queue = append(c.queue[:i], c.queue[i+1:]...)
			return t, true
		}
	}
	return nil, false
}

func (c *Coordinator) sendAssignment(task *Task) error {
	payload, err := json.Marshal(TaskAssignment{
		TaskID:   task.ID,
		WorkerID: task.AssignedTo,
		Priority: task.Priority,
	})
	if err != nil {
		return fmt.Errorf("marshal assignment: %w", err)
	}

	return c.bus.Send(&Message{
		To:       task.AssignedTo,
		Type:     MessageTaskAssignment,
		Payload:  payload,
		Priority: task.Priority,
	})
}

// Complete marks an active task Completed and records its duration. Status
// only moves forward; completing a terminal task is rejected.
func (c *Coordinator) Complete(taskID string) error {
	return c.finish(taskID, TaskCompleted)
}

// Fail marks an active task Failed.
func (c *Coordinator) Fail(taskID string) error {
	return c.finish(taskID, TaskFailed)
}

// Cancel marks an active task Cancelled.
func (c *Coordinator) Cancel(taskID string) error {
	return c.finish(taskID, TaskCancelled)
}

func (c *Coordinator) finish(taskID string, status TaskStatus) error {
	c.mu.Lock()
	task, exists := c.active[taskID]
	if !exists {
		c.mu.Unlock()
		return fmt.Errorf("%s %s: %w", status, taskID, ErrTaskNotFound)
	}
	if task.Status.rank() >= status.rank() {
		c.mu.Unlock()
		return fmt.Errorf("task %s is %s, cannot move to %s", taskID, task.Status, status)
	}
	task.Status = status
	task.CompletedAt = time.Now()
	if !task.StartedAt.IsZero() {
		task.ActualDuration = task.CompletedAt.Sub(task.StartedAt)
	}
	worker := task.AssignedTo
	c.mu.Unlock()

	if worker != "" {
		_ = c.registry.ReleaseWorker(worker)
	}

	c.recomputeMetrics(false)
	return nil
}

// Task returns a copy of an active task.
func (c *Coordinator) Task(taskID string) (Task, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	task, exists := c.active[taskID]
	if !exists {
		return Task{}, fmt.Errorf("get %s: %w", taskID, ErrTaskNotFound)
	}
	return *task, nil
}

// QueueLen reports how many submitted tasks await coordination.
func (c *Coordinator) QueueLen() int {
	c.queueMu.Lock()
	defer c.queueMu.Unlock()
	return len(c.queue)
}

func (c *Coordinator) Metrics() Metrics {
	c.metricsMu.RLock()
	defer c.metricsMu.RUnlock()
	return c.metrics
}

// Assignments exposes the Mesh assignment window for inspection.
func (c *Coordinator) Assignments() []Assignment {
	return c.selector.Assignments()
}

// recomputeMetrics scans the whole active map. Deliberately O(n) and
// synchronous: the map is the source of truth and stays small once the
// retention sweep archives terminal tasks.
func (c *Coordinator) recomputeMetrics(coordinated bool) {
	c.mu.RLock()
	total := len(c.active)
	completed := 0
	var totalDuration time.Duration
	for _, t := range c.active {
		if t.Status == TaskCompleted {
			completed++
			totalDuration += t.ActualDuration
		}
	}
	c.mu.RUnlock()

	workerCount := c.registry.Len()

	c.metricsMu.Lock()
	defer c.metricsMu.Unlock()

	if coordinated {
		c.metrics.TasksCoordinated++
	}
	if completed > 0 {
		c.metrics.AverageCompletionTime = totalDuration / time.Duration(completed)
	}
	if total > 0 {
		c.metrics.SuccessRate = float64(completed) / float64(total)
	}
	if workerCount > 0 {
		utilization := float64(total) / float64(workerCount)
		if utilization > 1.0 {
			utilization = 1.0
		}
		c.metrics.ResourceUtilization = utilization
	}
	if c.metrics.TasksCoordinated > 0 {
		c.metrics.CommunicationOverhead =
			float64(c.bus.HistoryLen()) / float64(c.metrics.TasksCoordinated)
	}
}

// sweepTerminalTasks periodically moves terminal tasks older than the
// retention window out of the active map and into the archive.
func (c *Coordinator) sweepTerminalTasks() {
	defer c.wg.Done()

	interval := c.config.CleanupInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweepOnce()
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Coordinator) sweepOnce() {
	cutoff := time.Now().Add(-c.config.TaskRetention)

	c.mu.Lock()
	var expired []*Task
	for id, t := range c.active {
		if t.Status.terminal() && !t.CompletedAt.IsZero() && t.CompletedAt.Before(cutoff) {
			expired = append(expired, t)
			delete(c.active, id)
		}
	}
	c.mu.Unlock()

	for _, t := range expired {
		if c.archiver == nil {
			continue
		}
		if err := c.archiver.ArchiveTask(c.ctx, t); err != nil {
			c.log.Warn("failed to archive task",
				zap.String("task", t.ID), zap.Error(err))
			continue
		}
		c.log.Debug("task archived", zap.String("task", t.ID))
	}
}
