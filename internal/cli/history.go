package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bobbyrathoree/hostmap/internal/store"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the saved revisions of the cluster mapping",
		Long: `Show the mappings saved to the cluster, newest first.

Each apply or rollback creates a revision that can be rolled back to.
Only the latest revisions are kept.`,
		Example: `  hostmap history
  hostmap history -n platform -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

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
			revisions, err := st.List(ctx)
			if err != nil {
				return fmt.Errorf("failed to get mapping history: %w", err)
			}

			writer := NewOutputWriter(cmd)
			if writer.IsJSON() {
				if revisions == nil {
					revisions = []store.Revision{}
				}
				return writer.WriteJSON(revisions)
			}

			out := cmd.OutOrStdout()
			if len(revisions) == 0 {
				fmt.Fprintf(out, "No saved mapping for %s\n", cat.ClusterID())
				return nil
			}

			fmt.Fprintf(out, "Mapping history for %s\n\n", cat.ClusterID())
			fmt.Fprintf(out, "%-10s %-25s %-8s %-16s %s\n", "REVISION", "SAVED", "EDGES", "CHANGES", "NOTE")
			fmt.Fprintf(out, "%-10s %-25s %-8s %-16s %s\n", "--------", "-----", "-----", "-------", "----")

			for i := len(revisions) - 1; i >= 0; i-- {
				r := revisions[i]
				note := ""
				if r.RolledBackFrom > 0 {
					note = "rollback from " + store.FormatRevision(r.RolledBackFrom)
				}
				fmt.Fprintf(out, "%-10s %-25s %-8d %-16s %s\n",
					store.FormatRevision(r.Revision),
					formatRelativeTime(r.Timestamp),
					len(r.Edges),
					fmt.Sprintf("+%d -%d", r.Added, r.Removed),
					note)
			}
			return nil
		},
	}
	return cmd
}

// formatRelativeTime returns a human-readable relative time
func formatRelativeTime(t time.Time) string {
	now := time.Now().UTC()
	diff := now.Sub(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	case diff < 7*24*time.Hour:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	default:
		return t.Format("Jan 02, 2006 15:04")
	}
}
