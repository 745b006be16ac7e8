// Package coordinator implements the reconciliation loop and the
// spec-propagation protocol that together keep ingestion jobs aligned
// with the feature sets and store subscriptions currently registered.
package coordinator

import (
	"context"
	"log/slog"

	"coordinator/internal/model"
	"coordinator/internal/repository"
	"coordinator/internal/runner"
	"coordinator/internal/specregistry"
)

// Reconciler runs the core job-placement algorithm: for every
// (source, store) pair implied by the registered feature sets and store
// subscriptions, it ensures exactly one non-terminal job exists, starting
// missing jobs and aborting surplus ones.
type Reconciler struct {
	specService specregistry.SpecService
	repo        repository.Repository
	runner      runner.JobManager
	logger      *slog.Logger
}

// NewReconciler constructs a Reconciler from its three collaborators.
func NewReconciler(specService specregistry.SpecService, repo repository.Repository, jobManager runner.JobManager) *Reconciler {
	return &Reconciler{
		specService: specService,
		repo:        repo,
		runner:      jobManager,
		logger:      slog.With("component", "coordinator.reconciler"),
	}
}

// pairing is a (featureSet, store) tuple accumulated during subscription
// expansion, before sources are canonicalized and pairs are grouped.
type pairing struct {
	featureSet model.FeatureSet
	store      model.Store
}

// group is the desired-job unit: every feature set/store pairing sharing
// a (source, store) business key collapses into a single group, which
// the reconciler resolves to at most one job.
type group struct {
	source      model.Source
	store       model.Store
	featureSets []model.FeatureSet
}

func (g group) key() string {
	return model.Job{Source: g.source, Store: g.store}.Key()
}

func (g group) featureSetRefs() map[string]bool {
	refs := make(map[string]bool, len(g.featureSets))
	for _, f := range g.featureSets {
		refs[f.Reference()] = true
	}
	return refs
}

// Poll runs one reconciliation pass. Each invocation is independent and
// idempotent: a failed or partial pass leaves no side effects beyond what
// SaveAllJobs persists, and the next tick picks up from current state.
func (r *Reconciler) Poll(ctx context.Context) error {
	// Step 1: collect stores.
	stores, err := r.specService.ListStores(ctx, "*")
	if err != nil {
		r.logger.Warn("Failed to list stores, skipping pass", "error", err)
		return nil
	}
	if len(stores) == 0 {
		return nil
	}

	// Step 2: expand subscriptions into (featureSet, store) pairings.
	var pairings []pairing
	for _, store := range stores {
		for _, sub := range store.Subscriptions {
			featureSets, err := r.repo.ListFeatureSets(ctx, sub.Project, sub.Name)
			if err != nil {
				r.logger.Warn("Failed to list feature sets for subscription, skipping", "project", sub.Project, "name", sub.Name, "error", err)
				continue
			}
			for _, fs := range featureSets {
				pairings = append(pairings, pairing{featureSet: fs, store: store})
			}
		}
	}
	if len(pairings) == 0 {
		return nil
	}

	// Step 3: canonicalize sources.
	canonicalized := pairings[:0]
	for _, p := range pairings {
		canonical, err := r.repo.FindCanonicalSource(ctx, p.featureSet.Source.Type, p.featureSet.Source.Config)
		if err != nil {
			r.logger.Warn("Failed to canonicalize source, skipping pairing",
				"project", p.featureSet.Project, "name", p.featureSet.Name, "error", err)
			continue
		}
		p.featureSet.Source = canonical
		canonicalized = append(canonicalized, p)
	}
	pairings = canonicalized

	// Step 4: group by (source, store) business key.
	groups := make(map[string]*group)
	var order []string
	for _, p := range pairings {
		g, exists := groups[groupKey(p)]
		if !exists {
			g = &group{source: p.featureSet.Source, store: p.store}
			groups[groupKey(p)] = g
			order = append(order, groupKey(p))
		}
		g.featureSets = append(g.featureSets, p.featureSet)
	}

	// Snapshot running jobs before any Step 5 mutation, so Step 6's
	// surplus computation is based on state observed at the top of this
	// pass, not jobs this same pass just started.
	runningBefore, err := r.repo.FindJobsByStatus(ctx, model.JobRunning)
	if err != nil {
		r.logger.Warn("Failed to list running jobs, skipping pass", "error", err)
		return nil
	}

	// Step 5: resolve desired vs. existing, per group.
	distinguished := make(map[string]string) // group key -> job ID kept for that key
	var toSave []model.Job
	for _, key := range order {
		g := groups[key]
		job, err := r.resolveGroup(ctx, g)
		if err != nil {
			r.logger.Warn("Failed to resolve group, skipping", "key", key, "error", err)
			// A job the runner failed to start is persisted as ERROR so the
			// next pass sees it as terminal and replaces it.
			if job.Status == model.JobError {
				toSave = append(toSave, job)
			}
			continue
		}
		distinguished[key] = job.ID
		toSave = append(toSave, job)
	}

	// Step 6: abort duplicates among jobs observed before this pass.
	byKey := make(map[string][]model.Job)
	for _, j := range runningBefore {
		byKey[j.Key()] = append(byKey[j.Key()], j)
	}
	for key, keep := range distinguished {
		for _, j := range byKey[key] {
			if j.ID == keep {
				continue
			}
			aborted, err := r.runner.AbortJob(ctx, j)
			if err != nil {
				r.logger.Warn("Failed to abort surplus job", "jobId", j.ID, "error", err)
			}
			toSave = append(toSave, aborted)
		}
	}

	// Step 7: persist.
	if len(toSave) == 0 {
		return nil
	}
	if err := r.repo.SaveAllJobs(ctx, toSave); err != nil {
		r.logger.Error("Failed to persist reconciliation results", "error", err)
	}
	return nil
}

// resolveGroup decides whether an existing non-terminal job can serve a
// group unchanged, or whether a new job must be started.
func (r *Reconciler) resolveGroup(ctx context.Context, g *group) (model.Job, error) {
	existing, found, err := r.repo.FindLatestNonTerminalJob(ctx, g.source.Type, g.source.Config, g.store.Name)
	if err != nil {
		return model.Job{}, err
	}

	if found && existing.MembersEqual(g.featureSetRefs()) {
		return existing, nil
	}

	job := model.Job{
		ID:     newJobID(g),
		Runner: r.runner.RunnerType(),
		Source: g.source,
		Store:  g.store,
		Status: model.JobPending,
	}
	for ref := range g.featureSetRefs() {
		job.JobStatuses = append(job.JobStatuses, &model.FeatureSetJobStatus{
			FeatureSetRef:  ref,
			JobID:          job.ID,
			DeliveryStatus: model.DeliveryInProgress,
		})
	}

	// The feature set owns the link: attach the new job to every feature
	// set in the group so the propagator and the ack listener find it.
	for ref := range g.featureSetRefs() {
		project, name, _ := splitReference(ref)
		fs, found, err := r.repo.FindFeatureSet(ctx, project, name)
		if err != nil || !found {
			continue
		}
		fs.JobStatuses = append(fs.JobStatuses, &model.FeatureSetJobStatus{FeatureSetRef: ref, JobID: job.ID, DeliveryStatus: model.DeliveryInProgress})
		if err := r.repo.SaveFeatureSet(ctx, fs); err != nil {
			r.logger.Warn("Failed to attach job to feature set", "jobId", job.ID, "reference", ref, "error", err)
		}
	}

	return r.runner.StartJob(ctx, job)
}

func groupKey(p pairing) string {
	return model.Job{Source: p.featureSet.Source, Store: p.store}.Key()
}
