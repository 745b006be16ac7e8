package coordinator

import (
	"context"
	"log/slog"

	"coordinator/internal/model"
	"coordinator/internal/repository"
	"coordinator/internal/specbus"
)

// Propagator pushes the current spec of every PENDING feature set to its
// non-terminal jobs, bumping each link's version on successful publish.
type Propagator struct {
	repo   repository.Repository
	bus    specbus.SpecBus
	logger *slog.Logger
}

func NewPropagator(repo repository.Repository, bus specbus.SpecBus) *Propagator {
	return &Propagator{
		repo:   repo,
		bus:    bus,
		logger: slog.With("component", "coordinator.propagator"),
	}
}

// NotifyJobsWhenFeatureSetUpdated scans every PENDING feature set and
// publishes its spec to any attached job whose link is behind the
// feature set's current version. A feature set with no non-terminal-job
// links is left untouched: there is no job for it to become ready for, so
// publishing would be a no-op with no observable effect besides noise.
func (p *Propagator) NotifyJobsWhenFeatureSetUpdated(ctx context.Context) error {
	pending, err := p.repo.FindFeatureSetsByStatus(ctx, model.FeatureSetPending)
	if err != nil {
		p.logger.Warn("Failed to list pending feature sets, skipping pass", "error", err)
		return nil
	}

	for _, fs := range pending {
		if err := p.propagateOne(ctx, fs); err != nil {
			p.logger.Warn("Failed to propagate feature set", "reference", fs.Reference(), "error", err)
		}
	}
	return nil
}

// propagateOne publishes at most once per feature set: a single publish
// to the feature set's reference notifies every non-terminal job
// subscribed to it, so the links behind the current version are collected
// first and the spec is published once if any of them is behind.
func (p *Propagator) propagateOne(ctx context.Context, fs model.FeatureSet) error {
	var stale []*model.FeatureSetJobStatus
	for _, link := range fs.JobStatuses {
		job, found, err := p.repo.FindJob(ctx, link.JobID)
		if err != nil {
			p.logger.Warn("Failed to look up job for link, skipping", "jobId", link.JobID, "error", err)
			continue
		}
		if !found || job.Status.IsTerminal() {
			continue
		}
		if link.Version == fs.Version {
			continue
		}
		stale = append(stale, link)
	}

	if len(stale) == 0 {
		return nil
	}

	spec := specbus.FeatureSetSpec{
		Project: fs.Project,
		Name:    fs.Name,
		Version: fs.Version,
	}
	if err := p.bus.PublishSpec(ctx, fs.Reference(), spec); err != nil {
		p.logger.Warn("Publish failed, links left unchanged", "reference", fs.Reference(), "error", err)
		return nil
	}

	for _, link := range stale {
		link.Version = fs.Version
		link.DeliveryStatus = model.DeliveryInProgress
	}
	return p.repo.SaveFeatureSet(ctx, fs)
}
