package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/bobbyrathoree/hostmap/internal/catalog"
	"github.com/bobbyrathoree/hostmap/internal/k8s"
	"github.com/bobbyrathoree/hostmap/internal/metrics"
	"github.com/bobbyrathoree/hostmap/internal/output"
	"github.com/bobbyrathoree/hostmap/internal/session"
	"github.com/bobbyrathoree/hostmap/internal/store"
	"github.com/bobbyrathoree/hostmap/internal/workspace"
)

var (
	// Version information set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// NewRootCmd builds the hostmap command tree
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "hostmap",
		Short: "Map cluster hosts to service components",
		Long: `hostmap - plan which hosts run which service components

Edit the mapping file of a workspace, check it against the cluster's
topology, and save it to the cluster once it is valid:
  hostmap map       Assign components to a host
  hostmap validate  Check constraints, dependencies and licenses
  hostmap diff      Show what apply would change
  hostmap apply     Save the mapping to the cluster
  hostmap rollback  Go back to a saved revision

A workspace is a directory holding topology.yaml and mapping.yaml.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringP("dir", "d", ".", "Workspace directory holding topology.yaml and mapping.yaml")
	flags.StringP("namespace", "n", "", "Kubernetes namespace of the mapping store (default: from kubeconfig)")
	flags.String("context", "", "Kubernetes context (default: current context)")
	flags.String("kubeconfig", "", "Path to the kubeconfig file")
	flags.Bool("ci", false, "CI mode: no colors, clean exit codes, minimal output")
	flags.StringP("output", "o", "text", "Output format: text, json")
	flags.Bool("metrics", false, "Print metrics in Prometheus text format to stderr on exit")

	klogFlags := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(klogFlags)
	flags.AddGoFlagSet(klogFlags)

	rootCmd.AddCommand(
		newValidateCmd(),
		newDiffCmd(),
		newApplyCmd(),
		newMapCmd(),
		newUnmapCmd(),
		newServiceCmd(),
		newRequiredCmd(),
		newHostsCmd(),
		newGraphCmd(),
		newHistoryCmd(),
		newRollbackCmd(),
		newDoctorCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

// Execute runs the command line
func Execute() error {
	rootCmd := NewRootCmd()
	err := rootCmd.Execute()
	defer klog.Flush()

	if dump, _ := rootCmd.PersistentFlags().GetBool("metrics"); dump {
		if werr := metrics.WriteText(os.Stderr); werr != nil {
			klog.ErrorS(werr, "Failed to write metrics")
		}
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	return nil
}

// IsCIMode returns true if CI mode is enabled via flag or environment
func IsCIMode(cmd *cobra.Command) bool {
	ci, _ := cmd.Flags().GetBool("ci")
	if ci {
		return true
	}
	return os.Getenv("CI") == "true" || os.Getenv("HOSTMAP_CI") == "true"
}

// GetOutputFormat returns the output format (text or json)
func GetOutputFormat(cmd *cobra.Command) string {
	format, _ := cmd.Flags().GetString("output")
	if format == "" {
		format = "text"
	}
	return format
}

// NewOutputWriter creates an output writer based on command flags
func NewOutputWriter(cmd *cobra.Command) *output.Writer {
	return output.NewWriter(cmd.OutOrStdout(), GetOutputFormat(cmd), IsCIMode(cmd))
}

// storeClient connects to the cluster holding the mapping store.
// Tests swap it for a fake clientset.
var storeClient = func(cmd *cobra.Command) (*k8s.Client, error) {
	namespace, _ := cmd.Flags().GetString("namespace")
	kubeContext, _ := cmd.Flags().GetString("context")
	kubeconfig, _ := cmd.Flags().GetString("kubeconfig")

	client, err := k8s.NewClient(k8s.ClientOptions{
		Context:    kubeContext,
		Namespace:  namespace,
		Kubeconfig: kubeconfig,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to cluster: %w\n  → Run 'hostmap doctor' to diagnose connection issues", err)
	}
	return client, nil
}

// openStore opens the ConfigMap store of a cluster
func openStore(cmd *cobra.Command, clusterID string) (*store.Store, error) {
	client, err := storeClient(cmd)
	if err != nil {
		return nil, err
	}
	klog.V(2).InfoS("Opening mapping store", "cluster", clusterID, "namespace", client.Namespace)
	return store.NewStore(client.Clientset, client.Namespace, clusterID), nil
}

// openWorkspace opens the workspace named by --dir
func openWorkspace(cmd *cobra.Command) (*workspace.Workspace, error) {
	dir, _ := cmd.Flags().GetString("dir")
	ws, err := workspace.Open(dir)
	if errors.Is(err, workspace.ErrNoTopology) {
		return nil, fmt.Errorf("%w\n  → Describe the cluster in %s first", err, workspace.DefaultTopologyFile)
	}
	return ws, err
}

// loadDraft loads a session over the workspace's mapping file
func loadDraft(ctx context.Context, cmd *cobra.Command, opts ...session.Option) (*workspace.Workspace, *session.Session, error) {
	ws, err := openWorkspace(cmd)
	if err != nil {
		return nil, nil, err
	}
	cat, err := ws.Catalog()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load %s: %w", ws.TopologyPath(), err)
	}

	s := session.New(cat.ClusterID(), opts...)
	if err := s.Load(ctx, ws); err != nil {
		return nil, nil, err
	}
	if err := applyMaintenanceFlags(cmd, s); err != nil {
		s.Close()
		return nil, nil, err
	}
	return ws, s, nil
}

// writeDraft writes the session's working mapping back to the workspace,
// valid or not
func writeDraft(ctx context.Context, ws *workspace.Workspace, s *session.Session) error {
	return ws.Save(ctx, s.Draft())
}

// addMaintenanceFlag registers --maintenance host=mode overrides on a command
func addMaintenanceFlag(cmd *cobra.Command) {
	cmd.Flags().StringSlice("maintenance", nil, "Override a host's maintenance mode, as host=on|off|changing (repeatable)")
}

func applyMaintenanceFlags(cmd *cobra.Command, s *session.Session) error {
	if cmd.Flags().Lookup("maintenance") == nil {
		return nil
	}
	overrides, _ := cmd.Flags().GetStringSlice("maintenance")
	for _, o := range overrides {
		host, mode, ok := strings.Cut(o, "=")
		if !ok {
			return fmt.Errorf("invalid --maintenance %q, expected host=mode", o)
		}
		m := catalog.MaintenanceMode(mode)
		switch m {
		case catalog.MaintenanceOn, catalog.MaintenanceOff, catalog.MaintenanceChanging:
		default:
			return fmt.Errorf("invalid maintenance mode %q for host %s", mode, host)
		}
		if err := s.SetMaintenanceMode(host, m); err != nil {
			return err
		}
	}
	return nil
}

// nonNil turns a nil list into an empty one so JSON output shows []
func nonNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}
