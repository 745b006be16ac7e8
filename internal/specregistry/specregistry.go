// Package specregistry adapts the external feature/store registry service
// to the coordination core's needs: listing stores (used by the reconciler
// to seed its pass) and listing feature sets (used by registry-sync
// tooling; the reconciler's own feature set expansion goes through
// internal/repository instead, matching how the source system wires it).
package specregistry

import (
	"context"

	"coordinator/internal/model"
)

// Filter narrows a ListFeatureSets call to a project/name glob pair.
type Filter struct {
	Project string
	Name    string
}

// SpecService is the coordination core's view of the registry.
type SpecService interface {
	ListStores(ctx context.Context, filter string) ([]model.Store, error)
	ListFeatureSets(ctx context.Context, filter Filter) ([]model.FeatureSet, error)
	Ready(ctx context.Context) error
}
