package runner

import (
	"context"
	"sync"

	"coordinator/internal/model"
)

// Memory is an in-memory JobManager double used by coordinator tests. It
// tracks started/aborted job IDs so tests can assert on reconciler
// behavior without a Docker daemon.
type Memory struct {
	mu      sync.Mutex
	started []string
	aborted []string
	nextExt int
	// FailStart, if non-nil, is returned by StartJob instead of succeeding.
	FailStart error
	// FailAbort, if non-nil, is returned by AbortJob instead of succeeding;
	// the job's Status is left unchanged, mirroring runner.Docker's
	// behavior on a failed container stop.
	FailAbort error
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) RunnerType() model.Runner {
	return model.RunnerDocker
}

func (m *Memory) StartJob(ctx context.Context, job model.Job) (model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailStart != nil {
		job.Status = model.JobError
		return job, m.FailStart
	}

	m.nextExt++
	job.ExtID = "ext-" + job.ID
	job.Status = model.JobRunning
	m.started = append(m.started, job.ID)
	return job, nil
}

func (m *Memory) AbortJob(ctx context.Context, job model.Job) (model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailAbort != nil {
		return job, m.FailAbort
	}

	m.aborted = append(m.aborted, job.ID)
	job.Status = model.JobAborted
	return job, nil
}

func (m *Memory) GetJobStatus(ctx context.Context, job model.Job) (model.JobStatus, error) {
	return job.Status, nil
}

func (m *Memory) Ready(ctx context.Context) error {
	return nil
}

func (m *Memory) Close() error {
	return nil
}

// Started returns the IDs of jobs StartJob started successfully, in call
// order; calls failed through FailStart are not recorded.
func (m *Memory) Started() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.started))
	copy(out, m.started)
	return out
}

// Aborted returns the IDs of jobs AbortJob aborted successfully, in call
// order; calls failed through FailAbort are not recorded.
func (m *Memory) Aborted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.aborted))
	copy(out, m.aborted)
	return out
}

var _ JobManager = (*Memory)(nil)
