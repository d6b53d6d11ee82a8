package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bobbyrathoree/hostmap/internal/catalog"
	"github.com/bobbyrathoree/hostmap/internal/filter"
	"github.com/bobbyrathoree/hostmap/internal/mapping"
	"github.com/bobbyrathoree/hostmap/internal/validate"
)

type hostRow struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Maintenance string   `json:"maintenance"`
	Components  []string `json:"components"`
	// Status of the --for component on this host
	Status string `json:"status,omitempty"`
}

func newHostsCmd() *cobra.Command {
	var (
		hostFilter string
		compFilter string
		search     string
		forComp    string
	)

	cmd := &cobra.Command{
		Use:   "hosts",
		Short: "List hosts and the components mapped to them",
		Long: `List hosts with their components.

Filters match case-insensitively on host names and on component or service
display names. With --for, each host also shows whether the component can
be mapped to it, and why not.`,
		Example: `  hostmap hosts
  hostmap hosts --search zoo
  hostmap hosts --for namenode`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, s, err := loadDraft(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			f := filter.Filter{Host: hostFilter, Component: compFilter}
			if search != "" {
				f = filter.Text(search)
			}
			cat := s.Catalog()
			snap := s.Snapshot()
			if forComp != "" && !cat.HasComponent(forComp) {
				return fmt.Errorf("component %q: %w", forComp, catalog.ErrUnknownEntity)
			}

			view := filter.Project(cat, snap, f)
			byHost := make(map[string][]string)
			for _, e := range view.Edges {
				byHost[e.HostID] = append(byHost[e.HostID], e.ComponentID)
			}

			res := s.Result()
			rows := make([]hostRow, 0, len(view.Hosts))
			for _, h := range view.Hosts {
				row := hostRow{
					ID:          h.ID,
					Name:        h.Name,
					Maintenance: string(h.MaintenanceMode),
					Components:  nonNil(byHost[h.ID]),
				}
				if forComp != "" {
					row.Status = pairStatus(res, snap, h.ID, forComp)
				}
				rows = append(rows, row)
			}

			writer := NewOutputWriter(cmd)
			if writer.IsJSON() {
				return writer.WriteJSON(rows)
			}

			out := cmd.OutOrStdout()
			if len(rows) == 0 {
				if f.IsEmpty() {
					fmt.Fprintf(out, "No hosts in %s\n", cat.ClusterID())
				} else {
					fmt.Fprintln(out, "No hosts match")
				}
				return nil
			}
			if forComp != "" {
				fmt.Fprintf(out, "%-20s %-12s %-40s %s\n", "HOST", "MAINTENANCE", strings.ToUpper(forComp), "COMPONENTS")
				for _, r := range rows {
					fmt.Fprintf(out, "%-20s %-12s %-40s %s\n", r.Name, r.Maintenance, r.Status, strings.Join(r.Components, ", "))
				}
				return nil
			}
			fmt.Fprintf(out, "%-20s %-12s %s\n", "HOST", "MAINTENANCE", "COMPONENTS")
			for _, r := range rows {
				fmt.Fprintf(out, "%-20s %-12s %s\n", r.Name, r.Maintenance, strings.Join(r.Components, ", "))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&hostFilter, "host", "", "Show hosts whose name contains this text")
	cmd.Flags().StringVar(&compFilter, "component", "", "Show components whose name or service contains this text")
	cmd.Flags().StringVar(&search, "search", "", "Apply one search text to hosts and components")
	cmd.Flags().StringVar(&forComp, "for", "", "Show whether this component can be mapped to each host")
	addMaintenanceFlag(cmd)
	return cmd
}

// pairStatus describes a host/component control: mapped, available, or the
// reason it is disabled
func pairStatus(res *validate.Result, snap mapping.Snapshot, hostID, componentID string) string {
	mapped := snap.Contains(mapping.Edge{HostID: hostID, ComponentID: componentID})
	if reason := res.DisableReason(hostID, componentID); reason != validate.ReasonNone {
		if mapped {
			return "mapped, locked: " + string(reason)
		}
		return "disabled: " + string(reason)
	}
	if mapped {
		return "mapped"
	}
	return "available"
}
