package model

import "time"

// InstanceStatus is the lifecycle state of a rented compute instance.
// Legal transitions: pending → running → terminated, or pending → failed.
type InstanceStatus string

const (
	InstancePending    InstanceStatus = "pending"
	InstanceRunning    InstanceStatus = "running"
	InstanceFailed     InstanceStatus = "failed"
	InstanceTerminated InstanceStatus = "terminated"
)

// Terminal reports whether the status admits no further transitions.
func (s InstanceStatus) Terminal() bool {
	return s == InstanceFailed || s == InstanceTerminated
}

// Instance is a rented GPU instance. Owned exclusively by the compute
// manager: created on a successful provisioning call, destroyed on explicit
// stop or bulk cleanup.
type Instance struct {
	Provider     string
	ID           string
	HardwareType string
	MemoryGB     int
	HourlyRate   float64
	Status       InstanceStatus
	Endpoint     string // reachable once running
	CreatedAt    time.Time
}

// JobStatus is the lifecycle state of a job on a rented instance.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Terminal reports whether the job is done, successfully or not.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Job is a processing job submitted to a running instance.
type Job struct {
	ID          string
	InstanceID  string
	InputRef    string
	OutputRef   string
	Status      JobStatus
	Progress    float64 // 0..100
	StartedAt   time.Time
	CompletedAt *time.Time
	Cost        float64
	Error       string
}
