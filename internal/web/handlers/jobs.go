package handlers

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the status of an async job.
type JobStatus string

// JobStatus constants define the lifecycle states of an async job.
const (
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// ErrJobRunning means a rebuild is already in flight; rebuilds are
// serialized because each one walks the whole store.
var ErrJobRunning = errors.New("index rebuild already in progress")

// RebuildJob tracks one asynchronous index rebuild.
type RebuildJob struct {
	ID           string     `json:"id"`
	Status       JobStatus  `json:"status"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	IndexedCount int        `json:"indexed_count,omitempty"`
	Error        string     `json:"error,omitempty"`
}

// JobManager serializes rebuild jobs and keeps their history for status
// queries.
type JobManager struct {
	mu     sync.Mutex
	jobs   map[string]*RebuildJob
	latest *RebuildJob
}

// NewJobManager creates a new job manager.
func NewJobManager() *JobManager {
	return &JobManager{jobs: make(map[string]*RebuildJob)}
}

// Begin registers a new running job, or fails if one is in flight.
func (m *JobManager) Begin() (*RebuildJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.latest != nil && m.latest.Status == JobStatusRunning {
		return nil, ErrJobRunning
	}
	job := &RebuildJob{
		ID:        uuid.New().String(),
		Status:    JobStatusRunning,
		StartedAt: time.Now(),
	}
	m.jobs[job.ID] = job
	m.latest = job
	return job, nil
}

// Finish marks a job completed or failed.
func (m *JobManager) Finish(job *RebuildJob, indexed int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	job.CompletedAt = &now
	job.IndexedCount = indexed
	if err != nil {
		job.Status = JobStatusFailed
		job.Error = err.Error()
		return
	}
	job.Status = JobStatusCompleted
}

// Get retrieves a job by ID. Returns a copy so readers never race the
// running job.
func (m *JobManager) Get(id string) (RebuildJob, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return RebuildJob{}, false
	}
	return *job, true
}

// Latest returns the most recently started job, if any.
func (m *JobManager) Latest() (RebuildJob, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.latest == nil {
		return RebuildJob{}, false
	}
	return *m.latest, true
}
