// Package runner adapts a job-execution backend to the coordination
// core's JobManager contract.
package runner

import (
	"context"

	"coordinator/internal/model"
)

// JobManager starts, stops, and observes one ingestion job at a time.
// The reconciler never talks to a runner backend directly - only through
// this interface - so a new backend (Kubernetes, ECS, bare processes)
// plugs in without touching internal/coordinator.
type JobManager interface {
	// RunnerType identifies which model.Runner this manager implements.
	RunnerType() model.Runner

	// StartJob launches job, which must be model.JobPending with an empty
	// ExtID. Returns the job with ExtID populated and Status advanced to
	// model.JobRunning, or model.JobError if the launch failed.
	StartJob(ctx context.Context, job model.Job) (model.Job, error)

	// AbortJob requests termination of a non-terminal job. On success,
	// returns the job with Status advanced to model.JobAborting (stop
	// accepted, termination still in flight) or model.JobAborted. On
	// failure, returns the job with Status unchanged from what was passed
	// in, so a caller that only re-scans by the job's prior status will
	// still find and retry it on the next pass.
	AbortJob(ctx context.Context, job model.Job) (model.Job, error)

	// GetJobStatus reports the runner's current view of a job's status.
	GetJobStatus(ctx context.Context, job model.Job) (model.JobStatus, error)

	// Ready reports whether the backend is reachable.
	Ready(ctx context.Context) error

	// Close releases resources held by the manager.
	Close() error
}
