package specregistry

import (
	"context"

	"coordinator/internal/model"
)

// Memory is an in-memory SpecService double used by coordinator tests.
type Memory struct {
	Stores      []model.Store
	FeatureSets []model.FeatureSet
}

func (m *Memory) ListStores(ctx context.Context, filter string) ([]model.Store, error) {
	return m.Stores, nil
}

func (m *Memory) ListFeatureSets(ctx context.Context, filter Filter) ([]model.FeatureSet, error) {
	var out []model.FeatureSet
	for _, f := range m.FeatureSets {
		if model.MatchGlob(filter.Project, f.Project) && model.MatchGlob(filter.Name, f.Name) {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *Memory) Ready(ctx context.Context) error {
	return nil
}

var _ SpecService = (*Memory)(nil)
