package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/bobbyrathoree/hostmap/internal/catalog"
	"github.com/bobbyrathoree/hostmap/internal/session"
)

func newServiceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Add or remove services on the cluster",
	}
	cmd.AddCommand(newServiceListCmd(), newServiceAddCmd(), newServiceRemoveCmd())
	return cmd
}

type serviceRow struct {
	ID        string   `json:"id"`
	Present   bool     `json:"present"`
	License   string   `json:"license"`
	DependsOn []string `json:"dependsOn"`
}

func newServiceListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List catalog services and whether they are on the cluster",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, s, err := loadDraft(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			present := sets.New(s.PresentServices()...)
			accepted := sets.New(s.AcceptedLicenses()...)
			rows := make([]serviceRow, 0)
			for _, svc := range s.Catalog().Services() {
				license := string(svc.License)
				if svc.License == catalog.LicenseUnaccepted && accepted.Has(svc.ID) {
					license = string(catalog.LicenseAccepted)
				}
				rows = append(rows, serviceRow{
					ID:        svc.ID,
					Present:   present.Has(svc.ID),
					License:   license,
					DependsOn: nonNil(svc.DependsOn),
				})
			}

			writer := NewOutputWriter(cmd)
			if writer.IsJSON() {
				return writer.WriteJSON(rows)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-20s %-8s %-11s %s\n", "SERVICE", "PRESENT", "LICENSE", "DEPENDS ON")
			for _, r := range rows {
				mark := "-"
				if r.Present {
					mark = "yes"
				}
				fmt.Fprintf(out, "%-20s %-8s %-11s %v\n", r.ID, mark, r.License, r.DependsOn)
			}
			return nil
		},
	}
}

func newServiceAddCmd() *cobra.Command {
	var (
		withDeps      bool
		acceptLicense bool
	)

	cmd := &cobra.Command{
		Use:   "add <service>",
		Short: "Put a service on the cluster",
		Long: `Add a service to mapping.yaml so its components can be mapped.

With --with-deps the services it depends on are added too, dependencies
first. Services with an unaccepted license are refused until their license
is accepted with --accept-license.`,
		Example: `  hostmap service add yarn --with-deps
  hostmap service add spark --with-deps --accept-license`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ws, s, err := loadDraft(ctx, cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			serviceID := args[0]
			var opts []session.AddOption
			candidates := []string{serviceID}
			if withDeps {
				opts = append(opts, session.WithDependencies())
				order, err := s.Resolver().InstallOrder([]string{serviceID})
				if err != nil {
					return err
				}
				candidates = order
			}
			if acceptLicense {
				for _, id := range candidates {
					if err := s.AcceptLicense(id); err != nil {
						return err
					}
				}
			}

			added, err := s.AddService(serviceID, opts...)
			if errors.Is(err, session.ErrLicenseNotAccepted) {
				return fmt.Errorf("%w\n  → Re-run with --accept-license to accept it", err)
			}
			if err != nil {
				return err
			}
			if len(added) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%s is already on the cluster\n", serviceID)
				return nil
			}
			return finishEdit(cmd, ws, s, fmt.Sprintf("added %v", added))
		},
	}

	cmd.Flags().BoolVar(&withDeps, "with-deps", false, "Also add the services it depends on")
	cmd.Flags().BoolVar(&acceptLicense, "accept-license", false, "Accept the license of every service being added")
	return cmd
}

func newServiceRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <service>",
		Short: "Take a service off the cluster with all of its mappings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ws, s, err := loadDraft(ctx, cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			n, err := s.RemoveService(args[0])
			if err != nil {
				return err
			}
			return finishEdit(cmd, ws, s, fmt.Sprintf("removed %s and %d mapping(s)", args[0], n))
		},
	}
}
