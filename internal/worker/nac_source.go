package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/falconqueue/taskcore/internal/nac/protocol"
	"github.com/falconqueue/taskcore/internal/nac/tclient"
	"github.com/falconqueue/taskcore/pkg/types"
)

// NacJobSource implements JobSource over a tclient.AccessCtrl session,
// replacing the grpc-based worker<->master transport with the same NAC
// connection component E already establishes and keeps alive.
type NacJobSource struct {
	access     *tclient.AccessCtrl
	workerID   string
	workerAddr string
}

// NewNacJobSource creates a JobSource backed by an already-configured
// AccessCtrl. The caller is responsible for calling access.Start beforehand.
func NewNacJobSource(access *tclient.AccessCtrl, workerID, address string) *NacJobSource {
	return &NacJobSource{access: access, workerID: workerID, workerAddr: address}
}

// call sends a request and blocks until the response arrives, the context
// is cancelled, or SendMsg's own timeout fires first.
func (s *NacJobSource) call(ctx context.Context, bizCode int32, req interface{}, timeout time.Duration) ([]byte, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	type outcome struct {
		data []byte
		err  error
	}
	ch := make(chan outcome, 1)

	s.access.SendMsg(bizCode, data, timeout, func(resp *tclient.Packet, err error) {
		if err != nil {
			ch <- outcome{err: err}
			return
		}
		ch <- outcome{data: resp.Data}
	})

	select {
	case o := <-ch:
		return o.data, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Poll fetches jobs from the remote master over the NAC session.
func (s *NacJobSource) Poll(ctx context.Context, maxJobs int) ([]*types.Job, error) {
	respData, err := s.call(ctx, protocol.BizPollJobs, protocol.PollJobsRequest{WorkerID: s.workerID, MaxJobs: maxJobs}, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("poll jobs failed: %w", err)
	}

	var resp protocol.PollJobsResponse
	if err := json.Unmarshal(respData, &resp); err != nil {
		return nil, fmt.Errorf("decode poll response: %w", err)
	}

	jobs := make([]*types.Job, 0, len(resp.Jobs))
	for _, wj := range resp.Jobs {
		job := &types.Job{
			ID:        types.JobID(wj.ID),
			Payload:   wj.Payload,
			Status:    wj.Status,
			Attempt:   wj.Attempt,
			Timeout:   time.Duration(wj.TimeoutMs) * time.Millisecond,
			CreatedAt: wj.CreatedAt,
			UpdatedAt: wj.UpdatedAt,
			WorkerID:  wj.WorkerID,
		}
		if wj.DeadlineMs > 0 {
			deadline := wj.DeadlineMs
			job.Deadline = &deadline
		}
		jobs = append(jobs, job)
	}

	return jobs, nil
}

// Acknowledge reports a job's execution result to the remote master.
func (s *NacJobSource) Acknowledge(ctx context.Context, jobID string, status types.JobStatus, result *Result) error {
	respData, err := s.call(ctx, protocol.BizAcknowledgeJob, protocol.AcknowledgeJobRequest{
		JobID:    jobID,
		WorkerID: s.workerID,
		Status:   status,
	}, 5*time.Second)
	if err != nil {
		return fmt.Errorf("acknowledge failed: %w", err)
	}

	var resp protocol.AcknowledgeJobResponse
	if err := json.Unmarshal(respData, &resp); err != nil {
		return fmt.Errorf("decode acknowledge response: %w", err)
	}
	if !resp.Success {
		return fmt.Errorf("master rejected acknowledgement")
	}
	return nil
}

// Heartbeat is a no-op here: liveness is already carried by the
// AccessCtrl's own heartbeat timer (see tclient.AccessCtrl.startHeartbeat),
// so the worker protocol doesn't need a second heartbeat channel. The
// load argument is not sent to the master.
func (s *NacJobSource) Heartbeat(ctx context.Context, nodeID string, load int) error {
	return nil
}

// Register announces this worker to the master. Call once after the
// AccessCtrl reaches the Connected state.
func (s *NacJobSource) Register(ctx context.Context, capacity int, tags []string) error {
	respData, err := s.call(ctx, protocol.BizRegisterWorker, protocol.RegisterWorkerRequest{
		WorkerID: s.workerID,
		Address:  s.workerAddr,
		Capacity: capacity,
		Tags:     tags,
	}, 5*time.Second)
	if err != nil {
		return fmt.Errorf("register worker failed: %w", err)
	}

	var resp protocol.RegisterWorkerResponse
	if err := json.Unmarshal(respData, &resp); err != nil {
		return fmt.Errorf("decode register response: %w", err)
	}
	if !resp.Success {
		return fmt.Errorf("registration rejected")
	}
	return nil
}
