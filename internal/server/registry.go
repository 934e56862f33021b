// File: internal/server/registry.go
package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/xkilldash9x/consentscan/api/schemas"
)

// JobStatus is the lifecycle state of a scan job.
type JobStatus string

const (
	StatusPending   JobStatus = "PENDING"
	StatusRunning   JobStatus = "RUNNING"
	StatusCompleted JobStatus = "COMPLETED"
	StatusFailed    JobStatus = "FAILED"
	StatusCancelled JobStatus = "CANCELLED"
)

func (s JobStatus) terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// ScanJob represents the state of an initiated scan.
type ScanJob struct {
	ID         string              `json:"id"`
	Target     string              `json:"target"`
	Status     JobStatus           `json:"status"`
	CreatedAt  time.Time           `json:"created_at"`
	StartedAt  *time.Time          `json:"started_at,omitempty"`
	FinishedAt *time.Time          `json:"finished_at,omitempty"`
	Error      string              `json:"error,omitempty"`
	Result     *schemas.ScanResult `json:"result,omitempty"`
}

// ScanRegistry tracks active and recent scans in memory. Once more than
// retain jobs are held, the oldest finished ones are evicted.
type ScanRegistry struct {
	mu     sync.RWMutex
	jobs   map[string]*ScanJob
	order  []string
	retain int
	now    func() time.Time
}

// NewScanRegistry creates a registry keeping at most retain finished jobs.
// A non-positive retain keeps everything.
func NewScanRegistry(retain int) *ScanRegistry {
	return &ScanRegistry{
		jobs:   make(map[string]*ScanJob),
		retain: retain,
		now:    time.Now,
	}
}

// Register adds a new pending job.
func (r *ScanRegistry) Register(id, target string) ScanJob {
	r.mu.Lock()
	defer r.mu.Unlock()

	job := &ScanJob{ID: id, Target: target, Status: StatusPending, CreatedAt: r.now()}
	r.jobs[id] = job
	r.order = append(r.order, id)
	r.evictLocked()
	return *job
}

// MarkRunning moves a pending job to RUNNING.
func (r *ScanRegistry) MarkRunning(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok || job.Status != StatusPending {
		return
	}
	now := r.now()
	job.Status = StatusRunning
	job.StartedAt = &now
}

// Finish records the outcome of a job. Finished jobs never change status again.
func (r *ScanRegistry) Finish(id string, result *schemas.ScanResult, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok || job.Status.terminal() {
		return
	}

	now := r.now()
	job.FinishedAt = &now
	switch {
	case err == nil:
		job.Status = StatusCompleted
		job.Result = result
	case errors.Is(err, context.Canceled):
		job.Status = StatusCancelled
		job.Error = err.Error()
	default:
		job.Status = StatusFailed
		job.Error = err.Error()
	}
	r.evictLocked()
}

// Get returns a copy of the job with the given ID.
func (r *ScanRegistry) Get(id string) (ScanJob, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[id]
	if !ok {
		return ScanJob{}, false
	}
	return *job, true
}

// List returns copies of every tracked job, oldest first.
func (r *ScanRegistry) List() []ScanJob {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ScanJob, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.jobs[id])
	}
	return out
}

func (r *ScanRegistry) evictLocked() {
	if r.retain <= 0 {
		return
	}
	excess := len(r.order) - r.retain
	if excess <= 0 {
		return
	}
	kept := r.order[:0]
	for _, id := range r.order {
		if excess > 0 && r.jobs[id].Status.terminal() {
			delete(r.jobs, id)
			excess--
			continue
		}
		kept = append(kept, id)
	}
	r.order = kept
}
