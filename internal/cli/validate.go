package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bobbyrathoree/hostmap/internal/output"
	"github.com/bobbyrathoree/hostmap/internal/session"
	"github.com/bobbyrathoree/hostmap/internal/validate"
)

func newValidateCmd() *cobra.Command {
	var (
		action       string
		strict       bool
		showDisabled bool
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the workspace mapping",
		Long: `Validate mapping.yaml against topology.yaml.

This command checks:
  - Host count bounds of every component on the cluster
  - Services that mapped components depend on
  - Licenses of services that are being added
  - The host and component allow-list of an action (--action)`,
		Example: `  hostmap validate                       # Validate ./mapping.yaml
  hostmap validate --strict              # Fail on warnings (for CI)
  hostmap validate --action decommission # Check an action's target selection
  hostmap validate --maintenance h3=on   # What if h3 went into maintenance`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []session.Option
			if action != "" {
				opts = append(opts, session.WithAction(action))
			}
			_, s, err := loadDraft(cmd.Context(), cmd, opts...)
			if err != nil {
				return err
			}
			defer s.Close()

			res := s.Result()
			result := validateResult(s.ClusterID(), res)
			result.Warnings = append(s.Catalog().Warnings(), result.Warnings...)
			if showDisabled {
				result.Disabled = res.Disabled
			}
			if strict && len(result.Warnings) > 0 {
				result.Valid = false
			}

			if err := NewOutputWriter(cmd).WriteValidateResult(result); err != nil {
				return err
			}
			if !result.Valid {
				if res.IsValid() {
					return fmt.Errorf("validation failed: %d warning(s) in strict mode", len(result.Warnings))
				}
				return fmt.Errorf("validation failed")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&action, "action", "", "Validate against the allow-list of a catalog action")
	cmd.Flags().BoolVar(&strict, "strict", false, "Treat warnings as errors")
	cmd.Flags().BoolVar(&showDisabled, "show-disabled", false, "Include disabled host/component pairs in the output")
	addMaintenanceFlag(cmd)

	return cmd
}

func validateResult(cluster string, res *validate.Result) *output.ValidateResult {
	reports := res.Reports
	if reports == nil {
		reports = []validate.ViolationReport{}
	}
	return &output.ValidateResult{
		Cluster:          cluster,
		Valid:            res.IsValid(),
		Errors:           nonNil(res.Errors()),
		Warnings:         nonNil(res.Warnings()),
		RequiredServices: nonNil(res.RequiredServices()),
		Reports:          reports,
	}
}
