package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"coordinator/internal/apperrors"
	"coordinator/internal/model"
)

// Memory is a thread-safe in-memory Repository, used by the coordinator's
// own tests and by local/demo wiring: a single mutex guards a handful of
// maps, sources and jobs keyed by surrogate ID and feature sets by reference.
type Memory struct {
	mu         sync.RWMutex
	sources    map[string]model.Source
	jobs       map[string]model.Job
	featureSets map[string]model.FeatureSet // keyed by "<project>/<name>"
}

// NewMemory creates an empty in-memory repository.
func NewMemory() *Memory {
	return &Memory{
		sources:     make(map[string]model.Source),
		jobs:        make(map[string]model.Job),
		featureSets: make(map[string]model.FeatureSet),
	}
}

// SeedSource inserts a source directly, bypassing canonicalization. For
// test setup only.
func (m *Memory) SeedSource(s model.Source) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources[s.ID] = s
}

// SeedFeatureSet inserts a feature set directly. For test setup only.
func (m *Memory) SeedFeatureSet(f model.FeatureSet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.featureSets[f.Reference()] = f
}

// SeedJob inserts a job directly. For test setup only.
func (m *Memory) SeedJob(j model.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[j.ID] = j
}

func (m *Memory) ListFeatureSets(ctx context.Context, projectGlob, nameGlob string) ([]model.FeatureSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.FeatureSet
	for _, f := range m.featureSets {
		if model.MatchGlob(projectGlob, f.Project) && model.MatchGlob(nameGlob, f.Name) {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) FindCanonicalSource(ctx context.Context, sourceType model.SourceType, cfg model.SourceConfig) (model.Source, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	want := model.Source{Type: sourceType, Config: cfg}.Key()
	var candidates []model.Source
	for _, s := range m.sources {
		if s.Key() == want {
			candidates = append(candidates, s)
		}
	}
	if len(candidates) == 0 {
		return model.Source{}, apperrors.NotFound("source", want)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })
	return candidates[0], nil
}

func (m *Memory) FindLatestNonTerminalJob(ctx context.Context, sourceType model.SourceType, cfg model.SourceConfig, storeName string) (model.Job, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key := model.Job{Source: model.Source{Type: sourceType, Config: cfg}, Store: model.Store{Name: storeName}}.Key()
	var best model.Job
	found := false
	for _, j := range m.jobs {
		if j.Key() != key || j.Status.IsTerminal() {
			continue
		}
		if !found || j.LastUpdated > best.LastUpdated {
			best = j
			found = true
		}
	}
	return best, found, nil
}

func (m *Memory) FindJobsByStatus(ctx context.Context, status model.JobStatus) ([]model.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.Job
	for _, j := range m.jobs {
		if j.Status == status {
			out = append(out, j)
		}
	}
	return out, nil
}

func (m *Memory) FindJob(ctx context.Context, jobID string) (model.Job, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.jobs[jobID]
	return j, ok, nil
}

func (m *Memory) SaveAllJobs(ctx context.Context, jobs []model.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().Unix()
	for _, j := range jobs {
		j.LastUpdated = now
		m.jobs[j.ID] = j
	}
	return nil
}

func (m *Memory) FindFeatureSetsByStatus(ctx context.Context, status model.FeatureSetStatus) ([]model.FeatureSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.FeatureSet
	for _, f := range m.featureSets {
		if f.Status == status {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Reference() < out[j].Reference() })
	return out, nil
}

func (m *Memory) FindFeatureSet(ctx context.Context, project, name string) (model.FeatureSet, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	f, ok := m.featureSets[project+"/"+name]
	return f, ok, nil
}

func (m *Memory) SaveFeatureSet(ctx context.Context, fs model.FeatureSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.featureSets[fs.Reference()] = fs
	return nil
}

func (m *Memory) Ready(ctx context.Context) error {
	return nil
}

var _ Repository = (*Memory)(nil)
