// Package repository defines the persistence predicates the reconciler,
// propagator, and ack listener depend on, with an in-memory implementation
// for tests and a Postgres-backed implementation for production.
package repository

import (
	"context"

	"coordinator/internal/model"
)

// Repository is the single persistence boundary for the coordination core.
// Store listings come from the spec registry (see internal/specregistry);
// everything else - feature set matching, source canonicalization, job
// lookups, and batch job writes - is served locally here.
type Repository interface {
	// ListFeatureSets returns feature sets whose project and name match the
	// given globs, ordered by name ascending. Either glob may contain "*".
	ListFeatureSets(ctx context.Context, projectGlob, nameGlob string) ([]model.FeatureSet, error)

	// FindCanonicalSource returns the earliest-persisted Source matching
	// (sourceType, config). Multiple rows may share a business key; the
	// coordinator always groups by whichever one this returns.
	FindCanonicalSource(ctx context.Context, sourceType model.SourceType, cfg model.SourceConfig) (model.Source, error)

	// FindLatestNonTerminalJob returns the most-recently-updated job for
	// the (source, store) key that is not in a terminal status, if any.
	FindLatestNonTerminalJob(ctx context.Context, sourceType model.SourceType, cfg model.SourceConfig, storeName string) (model.Job, bool, error)

	// FindJobsByStatus returns all jobs currently in the given status.
	FindJobsByStatus(ctx context.Context, status model.JobStatus) ([]model.Job, error)

	// FindJob looks up a single job by its surrogate ID.
	FindJob(ctx context.Context, jobID string) (model.Job, bool, error)

	// SaveAllJobs atomically persists the given jobs (insert or update).
	SaveAllJobs(ctx context.Context, jobs []model.Job) error

	// FindFeatureSetsByStatus returns all feature sets in the given status.
	FindFeatureSetsByStatus(ctx context.Context, status model.FeatureSetStatus) ([]model.FeatureSet, error)

	// FindFeatureSet looks up a single feature set by its project/name key.
	FindFeatureSet(ctx context.Context, project, name string) (model.FeatureSet, bool, error)

	// SaveFeatureSet persists a feature set's status and job link records.
	SaveFeatureSet(ctx context.Context, fs model.FeatureSet) error

	// Ready reports whether the backing store is reachable.
	Ready(ctx context.Context) error
}
