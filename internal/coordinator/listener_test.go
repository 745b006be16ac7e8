package coordinator

import (
	"context"
	"testing"

	"coordinator/internal/model"
	"coordinator/internal/repository"
	"coordinator/internal/specbus"
)

func TestListenerPromotesFeatureSetWhenAllLinksDelivered(t *testing.T) {
	repo := repository.NewMemory()
	repo.SeedJob(model.Job{ID: "job-1", Status: model.JobRunning})
	repo.SeedFeatureSet(model.FeatureSet{
		Project: "driver_stats", Name: "trips", Version: 2, Status: model.FeatureSetPending,
		JobStatuses: []*model.FeatureSetJobStatus{
			{FeatureSetRef: "driver_stats/trips", JobID: "job-1", Version: 2, DeliveryStatus: model.DeliveryInProgress},
		},
	})

	l := NewListener(repo, specbus.NewMemory())
	err := l.HandleAck(context.Background(), specbus.AckRecord{
		FeatureSetRef:     "driver_stats/trips",
		FeatureSetVersion: 2,
		JobID:              "job-1",
	})
	if err != nil {
		t.Fatalf("HandleAck: %v", err)
	}

	fs, found, err := repo.FindFeatureSet(context.Background(), "driver_stats", "trips")
	if err != nil || !found {
		t.Fatalf("FindFeatureSet: %v, found=%v", err, found)
	}
	if fs.Status != model.FeatureSetReady {
		t.Errorf("expected feature set promoted to READY, got %s", fs.Status)
	}
	if fs.JobStatuses[0].DeliveryStatus != model.DeliveryDelivered {
		t.Errorf("expected link DELIVERED, got %s", fs.JobStatuses[0].DeliveryStatus)
	}
}

func TestListenerStaysPendingWhileAnyNonTerminalLinkUndelivered(t *testing.T) {
	repo := repository.NewMemory()
	repo.SeedJob(model.Job{ID: "job-1", Status: model.JobRunning})
	repo.SeedJob(model.Job{ID: "job-2", Status: model.JobRunning})
	repo.SeedFeatureSet(model.FeatureSet{
		Project: "driver_stats", Name: "trips", Version: 2, Status: model.FeatureSetPending,
		JobStatuses: []*model.FeatureSetJobStatus{
			{FeatureSetRef: "driver_stats/trips", JobID: "job-1", Version: 2, DeliveryStatus: model.DeliveryInProgress},
			{FeatureSetRef: "driver_stats/trips", JobID: "job-2", Version: 2, DeliveryStatus: model.DeliveryInProgress},
		},
	})

	l := NewListener(repo, specbus.NewMemory())
	err := l.HandleAck(context.Background(), specbus.AckRecord{
		FeatureSetRef:     "driver_stats/trips",
		FeatureSetVersion: 2,
		JobID:              "job-1",
	})
	if err != nil {
		t.Fatalf("HandleAck: %v", err)
	}

	fs, _, _ := repo.FindFeatureSet(context.Background(), "driver_stats", "trips")
	if fs.Status != model.FeatureSetPending {
		t.Errorf("expected feature set to remain PENDING until every link acks, got %s", fs.Status)
	}
}

func TestListenerIgnoresTerminalJobLinksWhenPromoting(t *testing.T) {
	repo := repository.NewMemory()
	repo.SeedJob(model.Job{ID: "job-1", Status: model.JobRunning})
	repo.SeedJob(model.Job{ID: "job-2", Status: model.JobAborted})
	repo.SeedFeatureSet(model.FeatureSet{
		Project: "driver_stats", Name: "trips", Version: 2, Status: model.FeatureSetPending,
		JobStatuses: []*model.FeatureSetJobStatus{
			{FeatureSetRef: "driver_stats/trips", JobID: "job-1", Version: 2, DeliveryStatus: model.DeliveryInProgress},
			{FeatureSetRef: "driver_stats/trips", JobID: "job-2", Version: 1, DeliveryStatus: model.DeliveryInProgress},
		},
	})

	l := NewListener(repo, specbus.NewMemory())
	err := l.HandleAck(context.Background(), specbus.AckRecord{
		FeatureSetRef:     "driver_stats/trips",
		FeatureSetVersion: 2,
		JobID:              "job-1",
	})
	if err != nil {
		t.Fatalf("HandleAck: %v", err)
	}

	fs, _, _ := repo.FindFeatureSet(context.Background(), "driver_stats", "trips")
	if fs.Status != model.FeatureSetReady {
		t.Errorf("expected promotion since the only non-terminal link is delivered, got %s", fs.Status)
	}
}

func TestListenerDiscardsAckForOutdatedVersion(t *testing.T) {
	repo := repository.NewMemory()
	repo.SeedJob(model.Job{ID: "job-1", Status: model.JobRunning})
	repo.SeedFeatureSet(model.FeatureSet{
		Project: "driver_stats", Name: "trips", Version: 3, Status: model.FeatureSetPending,
		JobStatuses: []*model.FeatureSetJobStatus{
			{FeatureSetRef: "driver_stats/trips", JobID: "job-1", Version: 2, DeliveryStatus: model.DeliveryInProgress},
		},
	})

	l := NewListener(repo, specbus.NewMemory())
	err := l.HandleAck(context.Background(), specbus.AckRecord{
		FeatureSetRef:     "driver_stats/trips",
		FeatureSetVersion: 2,
		JobID:              "job-1",
	})
	if err != nil {
		t.Fatalf("HandleAck: %v", err)
	}

	fs, _, _ := repo.FindFeatureSet(context.Background(), "driver_stats", "trips")
	if fs.JobStatuses[0].DeliveryStatus != model.DeliveryInProgress {
		t.Errorf("expected stale ack to be discarded without updating the link, got %s", fs.JobStatuses[0].DeliveryStatus)
	}
}

func TestListenerDiscardsAckForUnknownFeatureSet(t *testing.T) {
	repo := repository.NewMemory()
	l := NewListener(repo, specbus.NewMemory())

	err := l.HandleAck(context.Background(), specbus.AckRecord{
		FeatureSetRef:     "driver_stats/unknown",
		FeatureSetVersion: 1,
		JobID:              "job-1",
	})
	if err != nil {
		t.Fatalf("expected unknown feature set to be discarded without error, got %v", err)
	}
}

func TestListenerDiscardsAckWithMalformedReference(t *testing.T) {
	repo := repository.NewMemory()
	l := NewListener(repo, specbus.NewMemory())

	for _, ref := range []string{"", "no-slash", "/missing-project", "missing-name/"} {
		if err := l.HandleAck(context.Background(), specbus.AckRecord{FeatureSetRef: ref, JobID: "job-1"}); err != nil {
			t.Errorf("ref %q: expected malformed reference to be discarded without error, got %v", ref, err)
		}
	}
}

func TestListenerDiscardsAckForUnknownJob(t *testing.T) {
	repo := repository.NewMemory()
	repo.SeedFeatureSet(model.FeatureSet{
		Project: "driver_stats", Name: "trips", Version: 1, Status: model.FeatureSetPending,
		JobStatuses: []*model.FeatureSetJobStatus{
			{FeatureSetRef: "driver_stats/trips", JobID: "job-1", Version: 1, DeliveryStatus: model.DeliveryInProgress},
		},
	})

	l := NewListener(repo, specbus.NewMemory())
	err := l.HandleAck(context.Background(), specbus.AckRecord{
		FeatureSetRef:     "driver_stats/trips",
		FeatureSetVersion: 1,
		JobID:              "job-unknown",
	})
	if err != nil {
		t.Fatalf("expected unknown job ack to be discarded without error, got %v", err)
	}

	fs, _, _ := repo.FindFeatureSet(context.Background(), "driver_stats", "trips")
	if fs.JobStatuses[0].DeliveryStatus != model.DeliveryInProgress {
		t.Errorf("expected existing link untouched, got %s", fs.JobStatuses[0].DeliveryStatus)
	}
}
