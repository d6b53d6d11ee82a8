package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bobbyrathoree/hostmap/internal/diff"
	"github.com/bobbyrathoree/hostmap/internal/mapping"
	"github.com/bobbyrathoree/hostmap/internal/output"
)

func newDiffCmd() *cobra.Command {
	var exitCode bool

	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Show what apply would change",
		Long: `Compare mapping.yaml with the mapping last saved to the cluster.

Removals are listed first, then additions. Use this before
'hostmap apply' to verify what will happen.`,
		Example: `  hostmap diff
  hostmap diff -o json
  hostmap diff --exit-code   # exit 1 when there are changes`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			_, s, err := loadDraft(ctx, cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			st, err := openStore(cmd, s.ClusterID())
			if err != nil {
				return err
			}
			latest, err := st.GetLatest(ctx)
			if err != nil {
				return fmt.Errorf("failed to read saved mapping: %w", err)
			}
			saved := mapping.Snapshot{}
			if latest != nil {
				saved = latest.Snapshot()
			}

			ops := diff.Compute(saved, s.Snapshot())
			stats := diff.Summary(ops)
			if ops == nil {
				ops = []diff.Operation{}
			}
			if err := NewOutputWriter(cmd).WriteDiffResult(&output.DiffResult{
				Cluster:    s.ClusterID(),
				Operations: ops,
				Added:      stats.Added,
				Removed:    stats.Removed,
			}); err != nil {
				return err
			}

			if exitCode && len(ops) > 0 {
				return fmt.Errorf("%s", stats)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&exitCode, "exit-code", false, "Exit with an error when there are changes")
	return cmd
}
