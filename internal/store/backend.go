package store

import (
	"context"
	"fmt"

	"github.com/bobbyrathoree/hostmap/internal/catalog"
	"github.com/bobbyrathoree/hostmap/internal/diff"
	"github.com/bobbyrathoree/hostmap/internal/session"
)

// Backend serves sessions from a store: the catalog comes from the caller and
// the saved mapping from the latest revision
type Backend struct {
	store   *Store
	catalog *catalog.Catalog
}

// NewBackend creates a session backend for a catalog
func NewBackend(store *Store, cat *catalog.Catalog) *Backend {
	return &Backend{store: store, catalog: cat}
}

// Load implements session.Source
func (b *Backend) Load(ctx context.Context, clusterID string) (*catalog.Catalog, *session.Baseline, error) {
	if clusterID != b.store.ClusterID() {
		return nil, nil, fmt.Errorf("store holds cluster %q, not %q", b.store.ClusterID(), clusterID)
	}

	latest, err := b.store.GetLatest(ctx)
	if err != nil {
		return nil, nil, err
	}
	if latest == nil {
		return b.catalog, nil, nil
	}
	return b.catalog, BaselineOf(latest), nil
}

// Save implements session.Saver
func (b *Backend) Save(ctx context.Context, req *session.SaveRequest) error {
	stats := diff.Summary(req.Operations)
	_, err := b.store.Save(ctx, Revision{
		Edges:            req.Edges,
		Services:         req.Services,
		AcceptedLicenses: req.AcceptedLicenses,
		Added:            stats.Added,
		Removed:          stats.Removed,
	})
	return err
}

// BaselineOf converts a revision into a session baseline
func BaselineOf(rev *Revision) *session.Baseline {
	services := rev.Services
	if services == nil {
		services = []string{}
	}
	return &session.Baseline{
		Edges:            rev.Snapshot(),
		Services:         services,
		AcceptedLicenses: rev.AcceptedLicenses,
	}
}
