package coordination

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNoWorkers       = errors.New("no workers available")
	ErrNoCoordinator   = errors.New("no coordinator worker available")
	ErrTaskNotFound    = errors.New("task not found")
	ErrWorkerNotFound  = errors.New("worker not found")
	ErrWorkerExists    = errors.New("worker already registered")
	ErrUnknownTopology = errors.New("unknown topology")
	ErrBusClosed       = errors.New("message bus closed")
)

type WorkerID string

// Role classifies a worker in the roster. Hierarchical and Star selection
// treat Queen and Coordinator specially; Hybrid selection matches against
// the role's static capability list.
type Role string

const (
	RoleQueen       Role = "queen"
	RoleArchitect   Role = "architect"
	RoleCoder       Role = "coder"
	RoleTester      Role = "tester"
	RoleAnalyst     Role = "analyst"
	RoleResearcher  Role = "researcher"
	RoleSecurity    Role = "security"
	RoleDevOps      Role = "devops"
	RoleCoordinator Role = "coordinator"
)

// Worker is a roster entry. The lifecycle manager owns everything except
// Workload, which Mesh selection increments as a side effect.
type Worker struct {
	ID           WorkerID `json:"id"`
	Role         Role     `json:"role"`
	Capabilities []string `json:"capabilities"`
	CurrentTask  string   `json:"currentTask,omitempty"`
	Workload     uint64   `json:"workload"`
}

type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskAssigned   TaskStatus = "assigned"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	TaskCancelled  TaskStatus = "cancelled"
)

// terminal reports whether a status permits no further transitions.
func (s TaskStatus) terminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// rank orders statuses along the forward-only lifecycle. A transition is
// legal only to a strictly higher rank.
func (s TaskStatus) rank() int {
	switch s {
	case TaskPending:
		return 0
	case TaskAssigned:
		return 1
	case TaskInProgress:
		return 2
	case TaskCompleted, TaskFailed, TaskCancelled:
		return 3
	default:
		return -1
	}
}

type TaskPriority string

const (
	PriorityLow      TaskPriority = "low"
	PriorityNormal   TaskPriority = "normal"
	PriorityHigh     TaskPriority = "high"
	PriorityCritical TaskPriority = "critical"
)

// Task is a unit of coordinated work.
type Task struct {
	ID                string            `json:"id"`
	Title             string            `json:"title"`
	Description       string            `json:"description"`
	Status            TaskStatus        `json:"status"`
	Priority          TaskPriority      `json:"priority"`
	AssignedTo        WorkerID          `json:"assignedTo,omitempty"`
	Dependencies      []string          `json:"dependencies,omitempty"`
	CreatedAt         time.Time         `json:"createdAt"`
	StartedAt         time.Time         `json:"startedAt,omitempty"`
	CompletedAt       time.Time         `json:"completedAt,omitempty"`
	EstimatedDuration time.Duration     `json:"estimatedDuration,omitempty"`
	ActualDuration    time.Duration     `json:"actualDuration,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

// NewTask creates a Pending task. The title is the first 50 characters of
// the description.
func NewTask(description string, priority TaskPriority) *Task {
	return &Task{
		ID:          uuid.NewString(),
		Title:       extractTitle(description),
		Description: description,
		Status:      TaskPending,
		Priority:    priority,
		CreatedAt:   time.Now(),
		Metadata:    make(map[string]string),
	}
}

func extractTitle(description string) string {
	const max = 50
	runes := []rune(description)
	if len(runes) <= max {
		return description
	}
	return string(runes[:max]) + "..."
}

type MessageType string

const (
	MessageTaskAssignment MessageType = "task_assignment"
	MessageTaskComplete   MessageType = "task_complete"
	MessageTaskFailed     MessageType = "task_failed"
	MessageStatusUpdate   MessageType = "status_update"
	MessageHeartbeat      MessageType = "heartbeat"
	MessageShutdown       MessageType = "shutdown"
)

// Message is immutable once sent. An empty To means broadcast.
type Message struct {
	ID        string       `json:"id"`
	From      WorkerID     `json:"from"`
	To        WorkerID     `json:"to,omitempty"`
	Type      MessageType  `json:"type"`
	Payload   []byte       `json:"payload,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
	Priority  TaskPriority `json:"priority"`
}

// TaskAssignment is the payload of a MessageTaskAssignment, consumed by the
// external worker runtime.
type TaskAssignment struct {
	TaskID   string       `json:"taskId"`
	WorkerID WorkerID     `json:"workerId"`
	Priority TaskPriority `json:"priority"`
}

// Metrics is the snapshot recomputed after every coordinate call.
type Metrics struct {
	TasksCoordinated      uint64        `json:"tasksCoordinated"`
	AverageCompletionTime time.Duration `json:"averageCompletionTime"`
	SuccessRate           float64       `json:"successRate"`
	ResourceUtilization   float64       `json:"resourceUtilization"`
	CommunicationOverhead float64       `json:"communicationOverhead"`
}

// Assignment records one Mesh selection in the sliding window.
type Assignment struct {
	Worker WorkerID  `json:"worker"`
	At     time.Time `json:"at"`
}
