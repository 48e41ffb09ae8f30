package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/falconqueue/taskcore/internal/controller"
	"github.com/falconqueue/taskcore/internal/nac/protocol"
	"github.com/falconqueue/taskcore/internal/worker"
	"github.com/falconqueue/taskcore/pkg/types"
)

// leaseDuration is how long a worker registration stays valid without a
// follow-up heartbeat before SendHeartbeat tells it to re-register.
const leaseDuration = 10 * time.Second

// Server answers the worker<->master job protocol (see internal/nac/protocol)
// over a NAC session.
type Server struct {
	controller *controller.Controller

	mu      sync.RWMutex
	workers map[string]*WorkerInfo
}

// WorkerInfo tracks the state of a registered worker
type WorkerInfo struct {
	NodeID     string
	Address    string
	Capacity   int
	Tags       []string
	LastSeen   time.Time
	ExpiryTime time.Time
}

// NewServer creates a new job-protocol server instance.
func NewServer(ctrl *controller.Controller) *Server {
	return &Server{
		controller: ctrl,
		workers:    make(map[string]*WorkerInfo),
	}
}

// SubmitJob handles job submission from clients.
func (s *Server) SubmitJob(ctx context.Context, req protocol.SubmitJobRequest) protocol.SubmitJobResponse {
	jobID := req.JobID
	if jobID == "" {
		jobID = fmt.Sprintf("job-%d", time.Now().UnixNano())
	}

	job := types.Job{
		ID:        types.JobID(jobID),
		Payload:   req.Payload,
		Status:    types.StatusPending,
		Timeout:   time.Duration(req.TimeoutMs) * time.Millisecond,
		CreatedAt: time.Now().UnixMilli(),
		UpdatedAt: time.Now().UnixMilli(),
	}

	if err := s.controller.EnqueueJobs([]types.Job{job}); err != nil {
		return protocol.SubmitJobResponse{Success: false, ErrorMessage: "enqueue failed: " + err.Error()}
	}

	return protocol.SubmitJobResponse{Success: true, JobID: jobID}
}

// RegisterWorker registers a new worker node.
func (s *Server) RegisterWorker(ctx context.Context, req protocol.RegisterWorkerRequest) protocol.RegisterWorkerResponse {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.workers[req.WorkerID] = &WorkerInfo{
		NodeID:     req.WorkerID,
		Address:    req.Address,
		Capacity:   req.Capacity,
		Tags:       req.Tags,
		LastSeen:   time.Now(),
		ExpiryTime: time.Now().Add(leaseDuration),
	}

	return protocol.RegisterWorkerResponse{Success: true, LeaseDurationMs: leaseDuration.Milliseconds()}
}

// SendHeartbeat updates the liveness of a worker (used by non-AccessCtrl
// callers; the AccessCtrl's own heartbeat timer keeps the NAC connection
// itself alive independently of worker lease bookkeeping).
func (s *Server) SendHeartbeat(ctx context.Context, workerID string, timestamp int64) protocol.RegisterWorkerResponse {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, exists := s.workers[workerID]
	if !exists || time.Now().After(info.ExpiryTime) {
		return protocol.RegisterWorkerResponse{Success: false, ReRegister: true}
	}

	info.LastSeen = time.UnixMilli(timestamp)
	info.ExpiryTime = time.Now().Add(leaseDuration)

	return protocol.RegisterWorkerResponse{Success: true, ReRegister: false}
}

// PollJobs fetches pending jobs for the worker.
func (s *Server) PollJobs(ctx context.Context, req protocol.PollJobsRequest) (protocol.PollJobsResponse, error) {
	jobs, err := s.controller.Poll(ctx, req.MaxJobs)
	if err != nil {
		return protocol.PollJobsResponse{}, err
	}

	wireJobs := make([]protocol.WireJob, 0, len(jobs))
	for _, job := range jobs {
		wj := protocol.WireJob{
			ID:        string(job.ID),
			Payload:   job.Payload,
			Status:    job.Status,
			Attempt:   job.Attempt,
			TimeoutMs: job.Timeout.Milliseconds(),
			CreatedAt: job.CreatedAt,
			UpdatedAt: job.UpdatedAt,
			WorkerID:  req.WorkerID,
		}
		if job.Deadline != nil {
			wj.DeadlineMs = *job.Deadline
		}
		wireJobs = append(wireJobs, wj)
	}

	return protocol.PollJobsResponse{Jobs: wireJobs}, nil
}

// AcknowledgeJob reports job status from a worker.
func (s *Server) AcknowledgeJob(ctx context.Context, req protocol.AcknowledgeJobRequest) protocol.AcknowledgeJobResponse {
	result := &worker.Result{
		JobID:   types.JobID(req.JobID),
		Success: req.Status == types.StatusCompleted,
	}

	if err := s.controller.Acknowledge(ctx, req.JobID, req.Status, result); err != nil {
		return protocol.AcknowledgeJobResponse{Success: false}
	}

	return protocol.AcknowledgeJobResponse{Success: true}
}
