package coordinator

import (
	"context"
	"log/slog"
	"strings"

	"coordinator/internal/model"
	"coordinator/internal/repository"
	"coordinator/internal/specbus"
)

// Listener consumes delivery acknowledgements from the spec bus and
// advances feature set status as jobs confirm receipt of the current
// version.
type Listener struct {
	repo   repository.Repository
	bus    specbus.SpecBus
	logger *slog.Logger
}

func NewListener(repo repository.Repository, bus specbus.SpecBus) *Listener {
	return &Listener{
		repo:   repo,
		bus:    bus,
		logger: slog.With("component", "coordinator.listener"),
	}
}

// Run consumes the ack topic until ctx is cancelled.
func (l *Listener) Run(ctx context.Context) error {
	return l.bus.ConsumeAcks(ctx, func(record specbus.AckRecord) {
		if err := l.HandleAck(ctx, record); err != nil {
			l.logger.Warn("Failed to process ack", "reference", record.FeatureSetRef, "jobId", record.JobID, "error", err)
		}
	})
}

// HandleAck implements listenAckFromJobs for a single ack record: it
// updates the matching link to DELIVERED, then promotes the feature set
// to READY iff every non-terminal-job link is DELIVERED at the current
// version.
func (l *Listener) HandleAck(ctx context.Context, record specbus.AckRecord) error {
	project, name, ok := splitReference(record.FeatureSetRef)
	if !ok {
		l.logger.Warn("Discarding ack with malformed reference", "reference", record.FeatureSetRef)
		return nil
	}

	fs, found, err := l.repo.FindFeatureSet(ctx, project, name)
	if err != nil {
		return err
	}
	if !found {
		l.logger.Warn("Discarding ack for unknown feature set", "reference", record.FeatureSetRef)
		return nil
	}

	if record.FeatureSetVersion != fs.Version {
		// Outdated ack - the feature set has already moved past the
		// version this job is acking. Not an error; simply stale.
		l.logger.Debug("Discarding outdated ack", "reference", record.FeatureSetRef, "ackVersion", record.FeatureSetVersion, "currentVersion", fs.Version)
		return nil
	}

	var link *model.FeatureSetJobStatus
	for _, candidate := range fs.JobStatuses {
		if candidate.JobID == record.JobID {
			link = candidate
			break
		}
	}
	if link == nil {
		l.logger.Warn("Discarding ack for unknown job", "reference", record.FeatureSetRef, "jobId", record.JobID)
		return nil
	}

	link.DeliveryStatus = model.DeliveryDelivered

	if l.allNonTerminalDelivered(ctx, fs) {
		fs.Status = model.FeatureSetReady
	}

	return l.repo.SaveFeatureSet(ctx, fs)
}

// allNonTerminalDelivered reports whether every link attached to a
// non-terminal job is DELIVERED at the feature set's current version.
// Terminal-job links never block promotion - a job that finished or died
// has nothing further to acknowledge.
func (l *Listener) allNonTerminalDelivered(ctx context.Context, fs model.FeatureSet) bool {
	for _, link := range fs.JobStatuses {
		job, found, err := l.repo.FindJob(ctx, link.JobID)
		if err != nil || !found {
			continue
		}
		if job.Status.IsTerminal() {
			continue
		}
		if link.Version != fs.Version || link.DeliveryStatus != model.DeliveryDelivered {
			return false
		}
	}
	return true
}

func splitReference(ref string) (project, name string, ok bool) {
	idx := strings.IndexByte(ref, '/')
	if idx < 0 || idx == 0 || idx == len(ref)-1 {
		return "", "", false
	}
	return ref[:idx], ref[idx+1:], true
}
