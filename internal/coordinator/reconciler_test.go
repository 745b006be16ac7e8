package coordinator

import (
	"context"
	"fmt"
	"testing"

	"coordinator/internal/model"
	"coordinator/internal/repository"
	"coordinator/internal/runner"
	"coordinator/internal/specregistry"
)

func kafkaSource(id, topic string) model.Source {
	return model.Source{ID: id, Type: model.SourceKafka, Config: model.SourceConfig{BootstrapServers: "b:9092", Topic: topic}}
}

func TestPollDoesNothingIfNoStoresFound(t *testing.T) {
	repo := repository.NewMemory()
	specSvc := &specregistry.Memory{}
	jobManager := runner.NewMemory()
	r := NewReconciler(specSvc, repo, jobManager)

	if err := r.Poll(context.Background()); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(jobManager.Started()) != 0 {
		t.Errorf("expected no jobs started, got %v", jobManager.Started())
	}
}

func TestPollDoesNothingIfNoMatchingFeatureSetsFound(t *testing.T) {
	repo := repository.NewMemory()
	specSvc := &specregistry.Memory{Stores: []model.Store{
		{Name: "redis", Subscriptions: []model.Subscription{{Project: "driver_stats", Name: "*"}}},
	}}
	jobManager := runner.NewMemory()
	r := NewReconciler(specSvc, repo, jobManager)

	if err := r.Poll(context.Background()); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(jobManager.Started()) != 0 {
		t.Errorf("expected no jobs started, got %v", jobManager.Started())
	}
}

func TestPollStartsJobForNewFeatureSet(t *testing.T) {
	repo := repository.NewMemory()
	src := kafkaSource("src-1", "driver_trips")
	repo.SeedSource(src)
	repo.SeedFeatureSet(model.FeatureSet{Project: "driver_stats", Name: "trips", Source: src})

	specSvc := &specregistry.Memory{Stores: []model.Store{
		{Name: "redis", Subscriptions: []model.Subscription{{Project: "driver_stats", Name: "*"}}},
	}}
	jobManager := runner.NewMemory()
	r := NewReconciler(specSvc, repo, jobManager)

	if err := r.Poll(context.Background()); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(jobManager.Started()) != 1 {
		t.Fatalf("expected exactly one job started, got %v", jobManager.Started())
	}
}

func TestPollGroupsJobsBySource(t *testing.T) {
	repo := repository.NewMemory()
	src := kafkaSource("src-1", "driver_trips")
	repo.SeedSource(src)
	repo.SeedFeatureSet(model.FeatureSet{Project: "driver_stats", Name: "trips", Source: src})
	repo.SeedFeatureSet(model.FeatureSet{Project: "driver_stats", Name: "rides", Source: src})

	specSvc := &specregistry.Memory{Stores: []model.Store{
		{Name: "redis", Subscriptions: []model.Subscription{{Project: "driver_stats", Name: "*"}}},
	}}
	jobManager := runner.NewMemory()
	r := NewReconciler(specSvc, repo, jobManager)

	if err := r.Poll(context.Background()); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(jobManager.Started()) != 1 {
		t.Fatalf("expected feature sets sharing a source+store to collapse into one job, got %v", jobManager.Started())
	}
}

func TestPollIgnoresDuplicateSourceObjects(t *testing.T) {
	repo := repository.NewMemory()
	// Two Source rows with identical (type, config) but different surrogate IDs.
	repo.SeedSource(kafkaSource("src-1", "driver_trips"))
	repo.SeedSource(kafkaSource("src-2", "driver_trips"))
	repo.SeedFeatureSet(model.FeatureSet{Project: "driver_stats", Name: "trips", Source: kafkaSource("src-2", "driver_trips")})

	specSvc := &specregistry.Memory{Stores: []model.Store{
		{Name: "redis", Subscriptions: []model.Subscription{{Project: "driver_stats", Name: "*"}}},
	}}
	jobManager := runner.NewMemory()
	r := NewReconciler(specSvc, repo, jobManager)

	if err := r.Poll(context.Background()); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(jobManager.Started()) != 1 {
		t.Fatalf("expected duplicate source objects to still collapse to one job, got %v", jobManager.Started())
	}
}

func TestPollReusesExistingJobWithMatchingMembers(t *testing.T) {
	repo := repository.NewMemory()
	src := kafkaSource("src-1", "driver_trips")
	repo.SeedSource(src)
	fs := model.FeatureSet{Project: "driver_stats", Name: "trips", Source: src}
	repo.SeedFeatureSet(fs)

	existingJob := model.Job{
		ID:     "existing-job",
		Source: src,
		Store:  model.Store{Name: "redis"},
		Status: model.JobRunning,
		JobStatuses: []*model.FeatureSetJobStatus{
			{FeatureSetRef: fs.Reference(), JobID: "existing-job"},
		},
	}
	repo.SeedJob(existingJob)

	specSvc := &specregistry.Memory{Stores: []model.Store{
		{Name: "redis", Subscriptions: []model.Subscription{{Project: "driver_stats", Name: "*"}}},
	}}
	jobManager := runner.NewMemory()
	r := NewReconciler(specSvc, repo, jobManager)

	if err := r.Poll(context.Background()); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(jobManager.Started()) != 0 {
		t.Errorf("expected existing matching job to be reused, not restarted, got %v", jobManager.Started())
	}
}

func TestPollAbortsDuplicateRunningJobsForSameKey(t *testing.T) {
	repo := repository.NewMemory()
	src := kafkaSource("src-1", "driver_trips")
	repo.SeedSource(src)
	fs := model.FeatureSet{Project: "driver_stats", Name: "trips", Source: src}
	repo.SeedFeatureSet(fs)

	// Two running jobs already exist for the same (source, store) key -
	// only one should survive the pass.
	repo.SeedJob(model.Job{ID: "job-a", Source: src, Store: model.Store{Name: "redis"}, Status: model.JobRunning, LastUpdated: 200,
		JobStatuses: []*model.FeatureSetJobStatus{{FeatureSetRef: fs.Reference(), JobID: "job-a"}}})
	repo.SeedJob(model.Job{ID: "job-b", Source: src, Store: model.Store{Name: "redis"}, Status: model.JobRunning, LastUpdated: 100,
		JobStatuses: []*model.FeatureSetJobStatus{{FeatureSetRef: fs.Reference(), JobID: "job-b"}}})

	specSvc := &specregistry.Memory{Stores: []model.Store{
		{Name: "redis", Subscriptions: []model.Subscription{{Project: "driver_stats", Name: "*"}}},
	}}
	jobManager := runner.NewMemory()
	r := NewReconciler(specSvc, repo, jobManager)

	if err := r.Poll(context.Background()); err != nil {
		t.Fatalf("Poll: %v", err)
	}

	aborted := jobManager.Aborted()
	if len(aborted) != 1 || aborted[0] != "job-b" {
		t.Errorf("expected only the non-distinguished job-b to be aborted, got %v", aborted)
	}
}

func TestPollRetriesSurplusAbortOnNextPassAfterFailure(t *testing.T) {
	repo := repository.NewMemory()
	src := kafkaSource("src-1", "driver_trips")
	repo.SeedSource(src)
	fs := model.FeatureSet{Project: "driver_stats", Name: "trips", Source: src}
	repo.SeedFeatureSet(fs)

	repo.SeedJob(model.Job{ID: "job-a", Source: src, Store: model.Store{Name: "redis"}, Status: model.JobRunning, LastUpdated: 200,
		JobStatuses: []*model.FeatureSetJobStatus{{FeatureSetRef: fs.Reference(), JobID: "job-a"}}})
	repo.SeedJob(model.Job{ID: "job-b", Source: src, Store: model.Store{Name: "redis"}, Status: model.JobRunning, LastUpdated: 100,
		JobStatuses: []*model.FeatureSetJobStatus{{FeatureSetRef: fs.Reference(), JobID: "job-b"}}})

	specSvc := &specregistry.Memory{Stores: []model.Store{
		{Name: "redis", Subscriptions: []model.Subscription{{Project: "driver_stats", Name: "*"}}},
	}}
	jobManager := runner.NewMemory()
	jobManager.FailAbort = fmt.Errorf("stop failed")
	r := NewReconciler(specSvc, repo, jobManager)

	if err := r.Poll(context.Background()); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(jobManager.Aborted()) != 0 {
		t.Fatalf("expected no successful aborts when the runner fails them, got %v", jobManager.Aborted())
	}

	for _, id := range []string{"job-a", "job-b"} {
		job, found, err := repo.FindJob(context.Background(), id)
		if err != nil || !found {
			t.Fatalf("FindJob(%s): %v, found=%v", id, err, found)
		}
		if job.Status != model.JobRunning {
			t.Fatalf("expected %s to remain RUNNING after a failed abort, got %s", id, job.Status)
		}
	}

	jobManager.FailAbort = nil
	if err := r.Poll(context.Background()); err != nil {
		t.Fatalf("second Poll: %v", err)
	}

	aborted := jobManager.Aborted()
	if len(aborted) != 1 || (aborted[0] != "job-a" && aborted[0] != "job-b") {
		t.Fatalf("expected the surplus job to be retried and aborted once the runner stops failing, got %v", aborted)
	}
}

func TestPollUsesStoreSubscriptionToMapStore(t *testing.T) {
	repo := repository.NewMemory()
	src := kafkaSource("src-1", "driver_trips")
	repo.SeedSource(src)
	repo.SeedFeatureSet(model.FeatureSet{Project: "driver_stats", Name: "trips", Source: src})
	repo.SeedFeatureSet(model.FeatureSet{Project: "rider_stats", Name: "trips", Source: src})

	specSvc := &specregistry.Memory{Stores: []model.Store{
		{Name: "redis", Subscriptions: []model.Subscription{{Project: "driver_stats", Name: "*"}}},
	}}
	jobManager := runner.NewMemory()
	r := NewReconciler(specSvc, repo, jobManager)

	if err := r.Poll(context.Background()); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(jobManager.Started()) != 1 {
		t.Fatalf("expected only the subscribed project's feature set to produce a job, got %v", jobManager.Started())
	}
}
