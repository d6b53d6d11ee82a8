package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bobbyrathoree/hostmap/internal/session"
)

func newRequiredCmd() *cobra.Command {
	var (
		add           bool
		acceptLicense bool
	)

	cmd := &cobra.Command{
		Use:   "required",
		Short: "List services the mapped components still need",
		Long: `List services that components on the cluster depend on but that are not
on the cluster yet. With --add they are added, dependencies first.`,
		Example: `  hostmap required
  hostmap required --add --accept-license`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ws, s, err := loadDraft(ctx, cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			required := s.RequiredServices()
			writer := NewOutputWriter(cmd)
			if !add {
				if writer.IsJSON() {
					return writer.WriteJSON(map[string]interface{}{
						"cluster":  s.ClusterID(),
						"required": nonNil(required),
					})
				}
				if len(required) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No services required")
					return nil
				}
				for _, id := range required {
					fmt.Fprintln(cmd.OutOrStdout(), id)
				}
				return nil
			}

			if len(required) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No services required")
				return nil
			}
			order, err := s.Resolver().InstallOrder(required)
			if err != nil {
				return err
			}
			if acceptLicense {
				for _, id := range order {
					if err := s.AcceptLicense(id); err != nil {
						return err
					}
				}
			}
			var added []string
			for _, id := range order {
				got, err := s.AddService(id, session.WithDependencies())
				if err != nil {
					return err
				}
				added = append(added, got...)
			}
			return finishEdit(cmd, ws, s, fmt.Sprintf("added %v", added))
		},
	}

	cmd.Flags().BoolVar(&add, "add", false, "Add the required services")
	cmd.Flags().BoolVar(&acceptLicense, "accept-license", false, "Accept the license of every service being added")
	return cmd
}
