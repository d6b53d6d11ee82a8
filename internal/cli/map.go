package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/bobbyrathoree/hostmap/internal/session"
	"github.com/bobbyrathoree/hostmap/internal/workspace"
)

func newMapCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "map <host> <component>...",
		Short: "Assign components to a host",
		Long: `Add host/component edges to mapping.yaml.

A pair is refused when the host is in maintenance, the component's service
is not on the cluster or has an unaccepted license, the component is at its
host limit, or the pair is outside the selected action. The file is written
even when the mapping as a whole is not valid yet.`,
		Example: `  hostmap map h1 zk
  hostmap map h2 namenode datanode`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ws, s, err := loadDraft(ctx, cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			host := args[0]
			for _, comp := range args[1:] {
				if err := s.Map(host, comp); err != nil {
					if errors.Is(err, session.ErrServiceNotPresent) {
						return fmt.Errorf("%w\n  → Run 'hostmap service add' for the component's service first", err)
					}
					return err
				}
			}
			return finishEdit(cmd, ws, s, fmt.Sprintf("mapped %v to %s", args[1:], host))
		},
	}
	return cmd
}

func newUnmapCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "unmap <host> [component]...",
		Short: "Remove components from a host",
		Long: `Remove host/component edges from mapping.yaml.

With --all every component is taken off the host, except pairs that are
locked (for example because the host is in maintenance).`,
		Example: `  hostmap unmap h1 zk
  hostmap unmap h3 --all`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && len(args) < 2 {
				return fmt.Errorf("name at least one component, or use --all")
			}

			ctx := cmd.Context()
			ws, s, err := loadDraft(ctx, cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			host := args[0]
			if all {
				n, err := s.UnmapAllForHost(host)
				if err != nil {
					return err
				}
				return finishEdit(cmd, ws, s, fmt.Sprintf("removed %d component(s) from %s", n, host))
			}
			for _, comp := range args[1:] {
				if err := s.Unmap(host, comp); err != nil {
					return err
				}
			}
			return finishEdit(cmd, ws, s, fmt.Sprintf("unmapped %v from %s", args[1:], host))
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Remove every component from the host")
	return cmd
}

// finishEdit writes the draft when it changed and reports where it stands
func finishEdit(cmd *cobra.Command, ws *workspace.Workspace, s *session.Session, done string) error {
	out := cmd.OutOrStdout()
	if !s.HasChanges() {
		fmt.Fprintln(out, "Nothing to change")
		return nil
	}
	if err := writeDraft(cmd.Context(), ws, s); err != nil {
		return err
	}
	fmt.Fprintf(out, "✓ %s\n", done)
	printStanding(out, s)
	return nil
}

func printStanding(out io.Writer, s *session.Session) {
	res := s.Result()
	if res.IsValid() {
		fmt.Fprintln(out, "  mapping is valid")
		return
	}
	fmt.Fprintf(out, "  mapping is not valid yet (%d problem(s))\n", len(res.Errors()))
	fmt.Fprintln(out, "  → Run 'hostmap validate' for details")
}
