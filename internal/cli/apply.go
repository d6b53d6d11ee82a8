package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/klog/v2"

	"github.com/bobbyrathoree/hostmap/internal/diff"
	"github.com/bobbyrathoree/hostmap/internal/output"
	"github.com/bobbyrathoree/hostmap/internal/session"
	"github.com/bobbyrathoree/hostmap/internal/store"
)

func newApplyCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Save the workspace mapping to the cluster",
		Long: `Replay mapping.yaml onto the mapping saved in the cluster and save it
as a new revision.

Every change goes through the same checks as an interactive edit: hosts in
maintenance refuse changes, capacity limits hold, and services with an
unaccepted license must be accepted in mapping.yaml first. Nothing is saved
unless the resulting mapping is valid.`,
		Example: `  hostmap apply
  hostmap apply --dry-run
  hostmap apply --ci -o json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			timer := output.NewTimer()
			writer := NewOutputWriter(cmd)

			_, draft, err := loadDraft(ctx, cmd)
			if err != nil {
				return err
			}
			defer draft.Close()

			st, err := openStore(cmd, draft.ClusterID())
			if err != nil {
				return err
			}
			backend := store.NewBackend(st, draft.Catalog())

			s := session.New(draft.ClusterID())
			defer s.Close()
			if err := s.Load(ctx, backend); err != nil {
				return err
			}

			result := &output.ApplyResult{
				Cluster: s.ClusterID(),
				Target:  "configmap/" + store.ConfigMapName(s.ClusterID()),
				DryRun:  dryRun,
			}
			fail := func(err error) error {
				result.Error = err.Error()
				result.DurationMs = timer.ElapsedMs()
				if werr := writer.WriteApplyResult(result); werr != nil {
					klog.ErrorS(werr, "Failed to write result")
				}
				return err
			}

			if err := replay(s, draft); err != nil {
				return fail(fmt.Errorf("cannot apply mapping.yaml: %w", err))
			}
			result.Operations = s.Operations()
			if result.Operations == nil {
				result.Operations = []diff.Operation{}
			}

			if !writer.IsJSON() && !writer.IsCIMode() {
				fmt.Fprintf(cmd.OutOrStdout(), "Applying mapping for %s (%s)\n", s.ClusterID(), diff.Summary(result.Operations))
				for _, op := range result.Operations {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", op)
				}
			}

			if dryRun {
				if !s.IsValid() {
					return fail(&session.InvalidMappingError{Problems: s.Result().Errors()})
				}
				result.Success = true
				result.DurationMs = timer.ElapsedMs()
				if !writer.IsJSON() && !writer.IsCIMode() {
					fmt.Fprintln(cmd.OutOrStdout(), "(dry-run) No changes made")
				}
				return writer.WriteApplyResult(result)
			}

			if err := s.Save(ctx, backend); err != nil {
				var invalid *session.InvalidMappingError
				if errors.As(err, &invalid) && !writer.IsJSON() {
					for _, p := range invalid.Problems {
						fmt.Fprintf(cmd.ErrOrStderr(), "  ✗ %s\n", p)
					}
				}
				return fail(err)
			}

			if latest, err := st.GetLatest(ctx); err == nil && latest != nil {
				result.Revision = latest.Revision
			}
			result.Success = true
			result.DurationMs = timer.ElapsedMs()

			if !writer.IsJSON() && !writer.IsCIMode() {
				fmt.Fprintf(cmd.OutOrStdout(), "  ✓ Saved as revision %s\n", store.FormatRevision(result.Revision))
			}
			return writer.WriteApplyResult(result)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Check and show the changes without saving")
	return cmd
}

// replay makes the session s match the draft: licenses first, then
// services, then edge removals before additions so capacity frees up
func replay(s, draft *session.Session) error {
	for _, id := range draft.AcceptedLicenses() {
		if err := s.AcceptLicense(id); err != nil {
			return err
		}
	}

	want := sets.New(draft.PresentServices()...)
	have := sets.New(s.PresentServices()...)
	order, err := s.Resolver().InstallOrder(sets.List(want.Difference(have)))
	if err != nil {
		return err
	}
	for _, id := range order {
		if want.Has(id) && !have.Has(id) {
			if _, err := s.AddService(id); err != nil {
				return err
			}
		}
	}
	for _, id := range sets.List(have.Difference(want)) {
		if _, err := s.RemoveService(id); err != nil {
			return err
		}
	}

	for _, op := range diff.Compute(s.Snapshot(), draft.Snapshot()) {
		switch op.Action {
		case diff.ActionRemove:
			err = s.Unmap(op.HostID, op.ComponentID)
		case diff.ActionAdd:
			err = s.Map(op.HostID, op.ComponentID)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
