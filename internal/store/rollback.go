package store

import (
	"context"
	"fmt"
	"io"

	"github.com/bobbyrathoree/hostmap/internal/catalog"
	"github.com/bobbyrathoree/hostmap/internal/diff"
	"github.com/bobbyrathoree/hostmap/internal/mapping"
	"github.com/bobbyrathoree/hostmap/internal/session"
)

// RollbackOptions configures rollback behavior
type RollbackOptions struct {
	// ToRevision specifies a specific revision to rollback to (0 = previous)
	ToRevision int
	// DryRun shows what would happen without making changes
	DryRun bool
	// Force saves the target even if it no longer validates against the catalog
	Force bool
	// Output for status messages
	Output io.Writer
}

// RollbackResult contains information about a completed rollback
type RollbackResult struct {
	FromRevision int              `json:"fromRevision"`
	ToRevision   int              `json:"toRevision"`
	NewRevision  int              `json:"newRevision,omitempty"` // The revision created by the rollback
	Operations   []diff.Operation `json:"operations"`
	// Problems lists validation problems of the target, if any
	Problems []string `json:"problems,omitempty"`
}

// String returns a human-readable summary
func (r *RollbackResult) String() string {
	if r.NewRevision > 0 {
		return fmt.Sprintf("Rolled back from %s to %s (saved as %s)",
			FormatRevision(r.FromRevision),
			FormatRevision(r.ToRevision),
			FormatRevision(r.NewRevision))
	}
	return fmt.Sprintf("Rolled back from %s to %s",
		FormatRevision(r.FromRevision),
		FormatRevision(r.ToRevision))
}

// revisionSource serves a fixed revision as a session baseline
type revisionSource struct {
	catalog *catalog.Catalog
	rev     *Revision
}

func (r revisionSource) Load(_ context.Context, _ string) (*catalog.Catalog, *session.Baseline, error) {
	return r.catalog, BaselineOf(r.rev), nil
}

// Rollback saves an older revision as the newest one. The target is checked
// against the current catalog first; a target that no longer validates is
// refused unless Force is set.
func Rollback(ctx context.Context, st *Store, cat *catalog.Catalog, opts RollbackOptions) (*RollbackResult, error) {
	var target *Revision
	var err error

	if opts.ToRevision > 0 {
		target, err = st.Get(ctx, opts.ToRevision)
		if err != nil {
			return nil, fmt.Errorf("cannot rollback to revision %d: %w", opts.ToRevision, err)
		}
	} else {
		target, err = st.GetPrevious(ctx)
		if err != nil {
			return nil, fmt.Errorf("cannot rollback: %w", err)
		}
	}

	current, err := st.GetLatest(ctx)
	if err != nil {
		return nil, err
	}

	result := &RollbackResult{ToRevision: target.Revision}
	currentEdges := mapping.Snapshot{}
	if current != nil {
		result.FromRevision = current.Revision
		currentEdges = current.Snapshot()
	}
	result.Operations = diff.Compute(currentEdges, target.Snapshot())

	check := session.New(st.ClusterID())
	defer check.Close()
	if err := check.Load(ctx, revisionSource{catalog: cat, rev: target}); err != nil {
		return nil, fmt.Errorf("revision %d does not match the catalog: %w", target.Revision, err)
	}
	if !check.IsValid() {
		result.Problems = check.Result().Errors()
		if !opts.Force {
			return result, &session.InvalidMappingError{Problems: result.Problems}
		}
		if opts.Output != nil {
			fmt.Fprintf(opts.Output, "Warning: revision %s does not validate, saving anyway\n", FormatRevision(target.Revision))
		}
	}

	if opts.DryRun {
		return result, nil
	}

	stats := diff.Summary(result.Operations)
	newRevision, err := st.Save(ctx, Revision{
		Edges:            target.Edges,
		Services:         target.Services,
		AcceptedLicenses: target.AcceptedLicenses,
		Added:            stats.Added,
		Removed:          stats.Removed,
		RolledBackFrom:   result.FromRevision,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save rollback: %w", err)
	}
	result.NewRevision = newRevision
	return result, nil
}
