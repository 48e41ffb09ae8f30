// Package jobmanager is the in-memory job state machine the controller
// keeps on top of the WAL/snapshot durability layer: pending -> in-flight
// -> completed/dead, plus requeue on worker failure. jobs is the single
// source of truth; queue/inFlight/completed/dead are status indexes kept
// in sync with it so lookups by state don't need a full scan.
package jobmanager

import (
	"errors"
	"sync"
	"time"

	"github.com/falconqueue/taskcore/pkg/types"
)

var (
	ErrDuplicateJob = errors.New("job already exists")
	ErrNotInFlight  = errors.New("job not in flight")
	ErrJobNotFound  = errors.New("job not found")
)

// JobManager manages job lifecycle using hybrid design for efficiency
type JobManager struct {
	mu        sync.RWMutex
	jobs      map[types.JobID]*types.Job
	queue     []types.JobID
	inFlight  map[types.JobID]*types.Job
	completed map[types.JobID]*types.Job
	dead      map[types.JobID]*types.Job
}

// NewJobManager creates a new job manager instance
func NewJobManager() *JobManager {
	return &JobManager{
		jobs:      make(map[types.JobID]*types.Job),
		queue:     make([]types.JobID, 0),
		inFlight:  make(map[types.JobID]*types.Job),
		completed: make(map[types.JobID]*types.Job),
		dead:      make(map[types.JobID]*types.Job),
	}
}

// Enqueue adds a new job to the system in pending state. Returns
// ErrDuplicateJob if the ID is already known.
func (jm *JobManager) Enqueue(job types.Job) error {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	if _, exists := jm.jobs[job.ID]; exists {
		return ErrDuplicateJob
	}

	now := time.Now().UnixMilli()
	job.Status = types.StatusPending
	job.CreatedAt = now
	job.UpdatedAt = now

	jm.jobs[job.ID] = &job
	jm.queue = append(jm.queue, job.ID)
	return nil
}

// PopPending removes and returns the oldest pending job, or nil if the
// queue is empty. Does not transition status — call MarkInFlight once
// the job is actually dispatched.
func (jm *JobManager) PopPending() *types.Job {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	if len(jm.queue) == 0 {
		return nil
	}

	jobID := jm.queue[0]
	jm.queue = jm.queue[1:]

	return jm.jobs[jobID]
}

// MarkInFlight transitions a pending job to in-flight with the given
// deadline.
func (jm *JobManager) MarkInFlight(jobID types.JobID, deadline time.Time) error {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, exists := jm.jobs[jobID]
	if !exists {
		return ErrJobNotFound
	}
	if job.Status != types.StatusPending {
		return errors.New("job not in pending status")
	}

	deadlineMs := deadline.UnixMilli()
	job.Status = types.StatusInFlight
	job.Deadline = &deadlineMs
	job.UpdatedAt = time.Now().UnixMilli()

	jm.inFlight[jobID] = job

	return nil
}

// MarkCompleted transitions an in-flight job to completed.
func (jm *JobManager) MarkCompleted(jobID types.JobID) error {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	// Check if job exists
	job, exists := jm.jobs[jobID]
	if !exists {
		return ErrJobNotFound
	}

	// Check if job status is in-flight
	if job.Status != types.StatusInFlight {
		return ErrNotInFlight
	}

	// Update job status
	job.Status = types.StatusCompleted
	job.Deadline = nil
	job.WorkerID = ""
	job.UpdatedAt = time.Now().UnixMilli()

	// Remove from inFlight, add to completed
	delete(jm.inFlight, jobID)
	jm.completed[jobID] = job

	return nil
}

// Requeue requeues an in-flight job and increments retry count
//
// Parameters:
//   - jobID: ID of the job to requeue
//
// Returns:
//   - error: Returns error if job does not exist or status is incorrect
//
// Error handling:
//   - ErrJobNotFound: Job does not exist in the system
//   - ErrNotInFlight: Job is not in in-flight status
//
// Example:
//
//	err := state.Requeue("task-001")
//	if err != nil {
//	    log.Printf("Failed to requeue: %v", err)
//	}
//
// Concurrency: Protected by mutex
func (jm *JobManager) Requeue(jobID types.JobID) error {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	// Check if job exists
	job, exists := jm.jobs[jobID]
	if !exists {
		return ErrJobNotFound
	}

	// Check if job status is in-flight
	if job.Status != types.StatusInFlight {
		return ErrNotInFlight
	}

	// Increment retry count and requeue
	job.Attempt++
	job.Status = types.StatusPending
	job.Deadline = nil
	job.WorkerID = ""
	job.UpdatedAt = time.Now().UnixMilli()

	// Remove from inFlight, add back to queue
	delete(jm.inFlight, jobID)
	jm.queue = append(jm.queue, jobID)

	return nil
}

// MarkDead marks a job as dead status (failed after exceeding retry limit)
func (jm *JobManager) MarkDead(jobID types.JobID) error {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	// Check if job exists
	job, exists := jm.jobs[jobID]
	if !exists {
		return ErrJobNotFound
	}

	// Update job status
	job.Status = types.StatusDead
	job.Deadline = nil
	job.WorkerID = ""
	job.UpdatedAt = time.Now().UnixMilli()

	// Remove from inFlight, add to dead
	delete(jm.inFlight, jobID)
	jm.dead[jobID] = job

	return nil
}

// GetExpiredJobs returns in-flight jobs whose deadline has passed.
func (jm *JobManager) GetExpiredJobs(now time.Time) []types.JobID {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	var expired []types.JobID
	nowMs := now.UnixMilli()

	for jobID, job := range jm.inFlight {
		if job.Deadline != nil && *job.Deadline < nowMs {
			expired = append(expired, jobID)
		}
	}

	return expired
}

// GetAllInFlightJobs returns every in-flight job ID, used to reschedule
// all of them on recovery.
func (jm *JobManager) GetAllInFlightJobs() []types.JobID {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	var inFlightJobs []types.JobID
	for jobID := range jm.inFlight {
		inFlightJobs = append(inFlightJobs, jobID)
	}

	return inFlightJobs
}

// Stats returns the job count per status.
func (jm *JobManager) Stats() map[string]int {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	return map[string]int{
		"pending":   len(jm.queue),
		"in_flight": len(jm.inFlight),
		"completed": len(jm.completed),
		"dead":      len(jm.dead),
	}
}

// Restore replaces the current state wholesale with a loaded snapshot,
// rebuilding the status indexes from each job's Status field.
func (jm *JobManager) Restore(data types.SnapshotData) error {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	jm.jobs = make(map[types.JobID]*types.Job)
	jm.queue = make([]types.JobID, 0)
	jm.inFlight = make(map[types.JobID]*types.Job)
	jm.completed = make(map[types.JobID]*types.Job)
	jm.dead = make(map[types.JobID]*types.Job)

	// Restore all jobs
	for jobID, job := range data.Jobs {
		jm.jobs[jobID] = job

		// Categorize by status
		switch job.Status {
		case types.StatusPending:
			jm.queue = append(jm.queue, jobID)
		case types.StatusInFlight:
			jm.inFlight[jobID] = job
		case types.StatusCompleted:
			jm.completed[jobID] = job
		case types.StatusDead:
			jm.dead[jobID] = job
		}
	}

	return nil
}

// Snapshot deep-copies the job table for persistence, so the caller can
// serialize it without racing further mutations.
func (jm *JobManager) Snapshot() types.SnapshotData {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	jobsCopy := make(map[types.JobID]*types.Job, len(jm.jobs))
	for id, job := range jm.jobs {
		jobCopy := *job
		jobsCopy[id] = &jobCopy
	}

	return types.SnapshotData{
		Jobs:      jobsCopy,
		SchemaVer: 1,
	}
}

func (jm *JobManager) IsCompleted(jobID types.JobID) bool {
	jm.mu.RLock()
	defer jm.mu.RUnlock()
	_, exists := jm.completed[jobID]
	return exists
}

func (jm *JobManager) IsDead(jobID types.JobID) bool {
	jm.mu.RLock()
	defer jm.mu.RUnlock()
	_, exists := jm.dead[jobID]
	return exists
}

// GetJob returns a job by ID, or nil if it doesn't exist.
func (jm *JobManager) GetJob(jobID types.JobID) *types.Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()
	return jm.jobs[jobID]
}

func (jm *JobManager) GetTotalJobs() int {
	jm.mu.RLock()
	defer jm.mu.RUnlock()
	return len(jm.jobs)
}
