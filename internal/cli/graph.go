package cli

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/bobbyrathoree/hostmap/internal/filter"
	"github.com/bobbyrathoree/hostmap/internal/graph"
)

func newGraphCmd() *cobra.Command {
	var (
		webMode bool
		format  string
		noColor bool
		search  string
	)

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Visualize services, components and hosts",
		Long: `Display the mapping as an ASCII tree or a Mermaid diagram.

Shows:
  - Services on the cluster and the services they depend on
  - Each component with its host count, bounds and violations
  - The hosts each component is mapped to, and hosts in maintenance

Output formats:
  - ASCII art (default, colorized on a terminal)
  - Mermaid diagram (--format mermaid)
  - Browser view (--web)`,
		Example: `  hostmap graph                    # ASCII tree in terminal
  hostmap graph --search hdfs      # Only hdfs components
  hostmap graph --format mermaid   # Output Mermaid code to stdout
  hostmap graph --web              # Open Mermaid diagram in browser`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, s, err := loadDraft(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			f := filter.Filter{}
			if search != "" {
				f = filter.Text(search)
			}
			topology := graph.BuildFromSession(s, f)

			if webMode {
				return openGraphInBrowser(cmd, topology)
			}

			out := cmd.OutOrStdout()
			switch format {
			case "mermaid":
				return graph.NewMermaidRenderer(out, topology).Render()
			case "ascii", "":
				renderer := graph.NewASCIIRenderer(out, topology)
				renderer.SetNoColor(noColor || IsCIMode(cmd) || !isTerminal(out))
				return renderer.Render()
			default:
				return fmt.Errorf("unknown format %q (expected ascii or mermaid)", format)
			}
		},
	}

	cmd.Flags().BoolVar(&webMode, "web", false, "Open Mermaid diagram in browser")
	cmd.Flags().StringVar(&format, "format", "ascii", "Output format: ascii, mermaid")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable color output")
	cmd.Flags().StringVar(&search, "search", "", "Only show hosts and components matching this text")
	addMaintenanceFlag(cmd)
	return cmd
}

// isTerminal reports whether w is a terminal. Anything that is not an
// *os.File (a buffer in tests, a pipe wrapper) is treated as not a terminal.
func isTerminal(w interface{}) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func openGraphInBrowser(cmd *cobra.Command, topology *graph.Topology) error {
	html := graph.NewMermaidRenderer(nil, topology).RenderHTML()

	tmpFile := filepath.Join(os.TempDir(), fmt.Sprintf("hostmap-graph-%s.html", topology.Cluster))
	if err := os.WriteFile(tmpFile, []byte(html), 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	var openCmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		openCmd = exec.Command("open", tmpFile)
	case "linux":
		openCmd = exec.Command("xdg-open", tmpFile)
	case "windows":
		openCmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", tmpFile)
	default:
		fmt.Fprintf(cmd.OutOrStdout(), "Open this file in your browser: %s\n", tmpFile)
		return nil
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Opening %s in browser...\n", tmpFile)
	return openCmd.Start()
}
