// Package types holds the data model shared across the PyFerris engine:
// tasks, cluster nodes, and their supporting value types.
package types

import (
	"time"

	"github.com/google/uuid"
)

// TaskStatus is the lifecycle state of a Task. Transitions are monotonic:
// Pending -> Running -> (Completed | Failed | Cancelled).
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// Task is the unit of work accepted by an executor, scheduler, or the
// distributed layer. Payload is opaque to everything below the caller's
// own Run implementation.
type Task struct {
	ID       string
	Priority uint8 // 0..255, lower is higher priority
	Affinity string
	Deadline time.Time

	Run func() (any, error)

	Status    TaskStatus
	Result    any
	Err       error
	CreatedAt time.Time
}

// NewTask creates a task with a fresh opaque ID in Pending state.
func NewTask(run func() (any, error)) *Task {
	return &Task{
		ID:        uuid.NewString(),
		Run:       run,
		Status:    TaskPending,
		CreatedAt: time.Now(),
	}
}

// ResourceRequirement describes resources a task needs to run, used by
// scheduling constraints and by the load balancer's Capability policy.
type ResourceRequirement struct {
	CPUCores     float64
	MemoryGB     float64
	GPUs         int
	MaxLatency   time.Duration
	RequiredCaps []string
}
