package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bobbyrathoree/hostmap/internal/store"
)

func newRollbackCmd() *cobra.Command {
	var (
		toRevision int
		dryRun     bool
		force      bool
	)

	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Restore a previously saved mapping",
		Long: `Save an older revision of the cluster mapping as the newest one.

By default the previous revision is restored. Use --to to pick a revision.
The target is validated against the current topology first; use --force to
restore it even if it no longer validates.

The rollback is saved as a new revision, so a rollback can be rolled back.
mapping.yaml is not touched.`,
		Example: `  hostmap rollback
  hostmap rollback --to 3
  hostmap rollback --dry-run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			ws, err := openWorkspace(cmd)
			if err != nil {
				return err
			}
			cat, err := ws.Catalog()
			if err != nil {
				return err
			}
			st, err := openStore(cmd, cat.ClusterID())
			if err != nil {
				return err
			}

			writer := NewOutputWriter(cmd)
			opts := store.RollbackOptions{
				ToRevision: toRevision,
				DryRun:     dryRun,
				Force:      force,
			}
			if !writer.IsJSON() {
				opts.Output = out
			}

			result, err := store.Rollback(ctx, st, cat, opts)
			if writer.IsJSON() && result != nil {
				if werr := writer.WriteJSON(result); werr != nil {
					return werr
				}
			}
			if err != nil {
				if result != nil && !writer.IsJSON() {
					for _, p := range result.Problems {
						fmt.Fprintf(out, "  ✗ %s\n", p)
					}
				}
				return fmt.Errorf("rollback failed: %w", err)
			}
			if writer.IsJSON() {
				return nil
			}

			fmt.Fprintf(out, "Rolling back %s to revision %s\n", cat.ClusterID(), store.FormatRevision(result.ToRevision))
			for _, op := range result.Operations {
				fmt.Fprintf(out, "  %s\n", op)
			}
			if dryRun {
				fmt.Fprintln(out, "(dry-run) No changes made")
				return nil
			}
			fmt.Fprintf(out, "  ✓ %s\n", result.String())
			return nil
		},
	}

	cmd.Flags().IntVar(&toRevision, "to", 0, "Revision number to roll back to (default: previous)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be rolled back without making changes")
	cmd.Flags().BoolVar(&force, "force", false, "Restore the revision even if it no longer validates")
	return cmd
}
