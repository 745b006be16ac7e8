package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"

	"coordinator/internal/apperrors"
	"coordinator/internal/model"
)

// Config configures the Docker-backed JobManager.
type Config struct {
	// Images maps a model.Runner to the container image that implements it.
	Images map[model.Runner]string
	// ExtraHosts are added to every ingestion container (e.g. for reaching
	// a Kafka broker advertised under a hostname only resolvable from the
	// host network).
	ExtraHosts []string
}

// jobState is the runtime bookkeeping kept alongside each container: a
// single mutex-guarded map from job ID to a small struct of what Docker
// doesn't already track.
type jobState struct {
	containerID string
}

// Docker runs each ingestion job as a single long-lived container reading
// its Source and writing its Store. The container here is not expected to
// exit on its own, and "done" is observed via Docker's own container state
// rather than an exit event stream.
type Docker struct {
	cli    *client.Client
	cfg    Config
	logger *slog.Logger

	mu    sync.RWMutex
	state map[string]*jobState
}

// NewDocker creates a Docker-backed JobManager and verifies the daemon is
// reachable.
func NewDocker(ctx context.Context, cfg Config) (*Docker, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, apperrors.Internal("runner.docker.newClient", err)
	}

	if _, err := cli.Ping(ctx); err != nil {
		return nil, apperrors.Internal("runner.docker.ping", err)
	}

	return &Docker{
		cli:    cli,
		cfg:    cfg,
		logger: slog.With("component", "runner.docker"),
		state:  make(map[string]*jobState),
	}, nil
}

func (d *Docker) RunnerType() model.Runner {
	return model.RunnerDocker
}

func (d *Docker) Ready(ctx context.Context) error {
	if _, err := d.cli.Ping(ctx); err != nil {
		return apperrors.Internal("runner.docker.ready", err)
	}
	return nil
}

func (d *Docker) Close() error {
	return d.cli.Close()
}

// StartJob launches the ingestion container for job. Idempotent: if a
// container is already tracked for this job ID, it is reused rather than
// duplicated, matching the reconciler's expectation that StartJob can be
// retried safely after a transient failure.
func (d *Docker) StartJob(ctx context.Context, job model.Job) (model.Job, error) {
	logger := d.logger.With("jobId", job.ID, "source", job.Source.Key(), "store", job.Store.Name)

	if existing, ok := d.get(job.ID); ok {
		job.ExtID = existing.containerID
		job.Status = model.JobRunning
		return job, nil
	}

	image, ok := d.cfg.Images[job.Runner]
	if !ok {
		logger.Error("No image configured for runner", "runner", job.Runner)
		job.Status = model.JobError
		return job, apperrors.Validation("runner", fmt.Sprintf("no image configured for runner %s", job.Runner))
	}

	env := []string{
		"SOURCE_TYPE=" + string(job.Source.Type),
		"SOURCE_BOOTSTRAP_SERVERS=" + job.Source.Config.BootstrapServers,
		"SOURCE_TOPIC=" + job.Source.Config.Topic,
		"STORE_NAME=" + job.Store.Name,
	}

	resp, err := d.cli.ContainerCreate(ctx,
		&container.Config{
			Image: image,
			Env:   env,
			Labels: map[string]string{
				"coordinator.job.id": job.ID,
			},
		},
		&container.HostConfig{
			ExtraHosts:    d.cfg.ExtraHosts,
			RestartPolicy: container.RestartPolicy{Name: container.RestartPolicyUnlessStopped},
		},
		nil, nil, "ingestion-"+job.ID,
	)
	if err != nil {
		logger.Error("Failed to create ingestion container", "error", err)
		job.Status = model.JobError
		return job, apperrors.Internal("runner.docker.create", err)
	}

	if err := d.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		logger.Error("Failed to start ingestion container", "error", err)
		job.Status = model.JobError
		return job, apperrors.Internal("runner.docker.start", err)
	}

	d.commit(job.ID, &jobState{containerID: resp.ID})

	job.ExtID = resp.ID
	job.Status = model.JobRunning
	logger.Info("Ingestion job started", "containerId", resp.ID)
	return job, nil
}

// AbortJob stops and removes the ingestion container for job. On failure
// job.Status is left exactly as passed in - the reconciler always calls
// this with a job it just observed RUNNING, so leaving it untouched means
// the job still appears RUNNING to the next pass's surplus scan and gets
// retried, rather than being stranded at a status nothing ever re-queries.
func (d *Docker) AbortJob(ctx context.Context, job model.Job) (model.Job, error) {
	logger := d.logger.With("jobId", job.ID)

	state, ok := d.get(job.ID)
	if !ok {
		// Nothing tracked locally (e.g. after a coordinator restart); treat
		// as already aborted rather than erroring the reconciler pass.
		job.Status = model.JobAborted
		return job, nil
	}

	timeout := 10
	if err := d.cli.ContainerStop(ctx, state.containerID, container.StopOptions{Timeout: &timeout}); err != nil {
		logger.Warn("Failed to stop ingestion container, will retry next pass", "error", err, "containerId", state.containerID)
		return job, apperrors.Internal("runner.docker.stop", err)
	}

	if err := d.cli.ContainerRemove(ctx, state.containerID, container.RemoveOptions{Force: true}); err != nil {
		logger.Warn("Failed to remove stopped ingestion container", "error", err, "containerId", state.containerID)
	}

	d.release(job.ID)
	job.Status = model.JobAborted
	logger.Info("Ingestion job aborted", "containerId", state.containerID)
	return job, nil
}

func (d *Docker) GetJobStatus(ctx context.Context, job model.Job) (model.JobStatus, error) {
	state, ok := d.get(job.ID)
	if !ok {
		return job.Status, nil
	}

	inspect, err := d.cli.ContainerInspect(ctx, state.containerID)
	if err != nil {
		return model.JobError, apperrors.Internal("runner.docker.inspect", err)
	}

	switch {
	case inspect.State.Running:
		return model.JobRunning, nil
	case inspect.State.ExitCode == 0:
		return model.JobCompleted, nil
	default:
		return model.JobError, nil
	}
}

func (d *Docker) get(jobID string) (*jobState, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.state[jobID]
	return s, ok
}

func (d *Docker) commit(jobID string, s *jobState) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state[jobID] = s
}

func (d *Docker) release(jobID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.state, jobID)
}

var _ JobManager = (*Docker)(nil)
