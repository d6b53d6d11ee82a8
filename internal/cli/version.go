package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print hostmap version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			short, _ := cmd.Flags().GetBool("short")
			out := cmd.OutOrStdout()

			writer := NewOutputWriter(cmd)
			if writer.IsJSON() {
				return writer.WriteJSON(map[string]interface{}{
					"version":   Version,
					"gitCommit": GitCommit,
					"buildDate": BuildDate,
					"goVersion": runtime.Version(),
					"platform":  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
				})
			}

			if short {
				fmt.Fprintln(out, Version)
				return nil
			}

			fmt.Fprintf(out, "hostmap version %s\n", Version)
			fmt.Fprintf(out, "  git commit: %s\n", GitCommit)
			fmt.Fprintf(out, "  build date: %s\n", BuildDate)
			fmt.Fprintf(out, "  go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "  platform:   %s/%s\n", runtime.GOOS, runtime.GOARCH)
			return nil
		},
	}
	cmd.Flags().Bool("short", false, "Print just the version number")
	return cmd
}
