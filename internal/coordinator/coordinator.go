package coordinator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"coordinator/internal/repository"
	"coordinator/internal/runner"
	"coordinator/internal/specbus"
	"coordinator/internal/specregistry"
)

// Config controls the coordinator's scheduling intervals.
type Config struct {
	PollInterval       time.Duration
	PropagateInterval  time.Duration
	JobUpdateTimeout   time.Duration
}

// Coordinator drives the reconciler, propagator, and ack listener on
// independent schedules. Each loop serializes with itself via a mutex
// (so a slow pass is never overlapped by its own next tick) but the three
// loops run concurrently with each other, matching the concurrency model
// the service was designed around.
type Coordinator struct {
	cfg Config

	reconciler *Reconciler
	propagator *Propagator
	listener   *Listener

	pollMu      sync.Mutex
	propagateMu sync.Mutex

	logger *slog.Logger
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New wires a Coordinator from its concrete adapters.
func New(cfg Config, specService specregistry.SpecService, repo repository.Repository, jobManager runner.JobManager, bus specbus.SpecBus) *Coordinator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.PropagateInterval <= 0 {
		cfg.PropagateInterval = 10 * time.Second
	}
	if cfg.JobUpdateTimeout <= 0 {
		cfg.JobUpdateTimeout = 5 * time.Second
	}

	return &Coordinator{
		cfg:        cfg,
		reconciler: NewReconciler(specService, repo, jobManager),
		propagator: NewPropagator(repo, bus),
		listener:   NewListener(repo, bus),
		logger:     slog.With("component", "coordinator"),
	}
}

// Start launches the poll loop, propagate loop, and ack-consumer loop as
// background goroutines. It returns immediately.
func (c *Coordinator) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(3)
	go c.runPollLoop(ctx)
	go c.runPropagateLoop(ctx)
	go c.runAckLoop(ctx)
}

// Stop cancels all loops and waits for the in-flight pass of each to
// finish.
func (c *Coordinator) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}

func (c *Coordinator) runPollLoop(ctx context.Context) {
	defer c.wg.Done()

	c.poll(ctx)

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.poll(ctx)
		}
	}
}

func (c *Coordinator) poll(ctx context.Context) {
	c.pollMu.Lock()
	defer c.pollMu.Unlock()

	passCtx, cancel := context.WithTimeout(ctx, c.cfg.JobUpdateTimeout)
	defer cancel()

	if err := c.reconciler.Poll(passCtx); err != nil {
		c.logger.Error("Reconciliation pass failed", "error", err)
	}
}

func (c *Coordinator) runPropagateLoop(ctx context.Context) {
	defer c.wg.Done()

	c.propagate(ctx)

	ticker := time.NewTicker(c.cfg.PropagateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.propagate(ctx)
		}
	}
}

func (c *Coordinator) propagate(ctx context.Context) {
	c.propagateMu.Lock()
	defer c.propagateMu.Unlock()

	if err := c.propagator.NotifyJobsWhenFeatureSetUpdated(ctx); err != nil {
		c.logger.Error("Propagation pass failed", "error", err)
	}
}

func (c *Coordinator) runAckLoop(ctx context.Context) {
	defer c.wg.Done()

	if err := c.listener.Run(ctx); err != nil {
		c.logger.Error("Ack listener stopped", "error", err)
	}
}
