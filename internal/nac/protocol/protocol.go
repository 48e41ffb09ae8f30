// Package protocol defines the worker<->master job messages carried over a
// tclient session, shared by the worker's NacJobSource client and the
// master's NAC-facing server so the two sides agree on biz codes and wire
// shapes without importing each other.
package protocol

import "github.com/falconqueue/taskcore/pkg/types"

// Biz codes for the job protocol. tclient reserves the negative range for
// its own connection-control traffic (auth, heartbeat), so application biz
// codes start at 1.
const (
	BizSubmitJob      int32 = 1
	BizPollJobs       int32 = 2
	BizAcknowledgeJob int32 = 3
	BizRegisterWorker int32 = 4
)

type SubmitJobRequest struct {
	JobID     string                 `json:"job_id,omitempty"`
	Payload   map[string]interface{} `json:"payload"`
	TimeoutMs int64                  `json:"timeout_ms"`
}

type SubmitJobResponse struct {
	Success      bool   `json:"success"`
	JobID        string `json:"job_id,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

type PollJobsRequest struct {
	WorkerID string `json:"worker_id"`
	MaxJobs  int    `json:"max_jobs"`
}

type WireJob struct {
	ID         string                 `json:"id"`
	Payload    map[string]interface{} `json:"payload"`
	Status     types.JobStatus        `json:"status"`
	Attempt    int                    `json:"attempt"`
	TimeoutMs  int64                  `json:"timeout_ms"`
	DeadlineMs int64                  `json:"deadline_ms,omitempty"`
	CreatedAt  int64                  `json:"created_at"`
	UpdatedAt  int64                  `json:"updated_at"`
	WorkerID   string                 `json:"worker_id,omitempty"`
}

type PollJobsResponse struct {
	Jobs []WireJob `json:"jobs"`
}

type AcknowledgeJobRequest struct {
	JobID    string          `json:"job_id"`
	WorkerID string          `json:"worker_id"`
	Status   types.JobStatus `json:"status"`
}

type AcknowledgeJobResponse struct {
	Success bool `json:"success"`
}

type RegisterWorkerRequest struct {
	WorkerID string   `json:"worker_id"`
	Address  string   `json:"address"`
	Capacity int      `json:"capacity"`
	Tags     []string `json:"tags"`
}

type RegisterWorkerResponse struct {
	Success         bool  `json:"success"`
	ReRegister      bool  `json:"re_register"`
	LeaseDurationMs int64 `json:"lease_duration_ms"`
}
