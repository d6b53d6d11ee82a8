package graph

import (
	"strconv"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/bobbyrathoree/hostmap/internal/catalog"
	"github.com/bobbyrathoree/hostmap/internal/constraints"
	"github.com/bobbyrathoree/hostmap/internal/filter"
	"github.com/bobbyrathoree/hostmap/internal/session"
	"github.com/bobbyrathoree/hostmap/internal/validate"
)

// Input is what a topology is built from
type Input struct {
	Catalog *catalog.Catalog
	// View is the (possibly filtered) projection to draw
	View *filter.View
	// Present limits the graph to services on the cluster. Nil keeps every
	// service of the view.
	Present []string
	// Result annotates components with their violations. Optional.
	Result *validate.Result
}

// Build builds a topology from a projected view
func Build(in Input) *Topology {
	t := NewTopology(in.Catalog.ClusterID())

	var present sets.Set[string]
	if in.Present != nil {
		present = sets.New(in.Present...)
	}

	visible := sets.New[string]()
	for _, sv := range in.View.Services {
		if present != nil && !present.Has(sv.ID) {
			continue
		}
		visible.Insert(sv.ID)
		svc, _ := in.Catalog.Service(sv.ID)
		node := &Node{
			ID:   NodeID(NodeTypeService, sv.ID),
			Name: displayName(sv.DisplayName, sv.ID),
			Type: NodeTypeService,
			Metadata: map[string]string{
				MetaPresent: strconv.FormatBool(present == nil || present.Has(sv.ID)),
			},
		}
		if svc.License != "" && svc.License != catalog.LicenseAbsent {
			node.Metadata[MetaLicense] = string(svc.License)
		}
		t.AddNode(node)

		for _, comp := range sv.Components {
			t.AddNode(componentNode(comp, in.Result))
			t.AddEdge(node.ID, NodeID(NodeTypeComponent, comp.ID), EdgeTypeOwns, "")
		}
	}

	// Dependencies are drawn only between services that are on the graph
	for _, id := range sets.List(visible) {
		svc, _ := in.Catalog.Service(id)
		for _, dep := range svc.DependsOn {
			if visible.Has(dep) {
				t.AddEdge(NodeID(NodeTypeService, id), NodeID(NodeTypeService, dep), EdgeTypeDependsOn, "")
			}
		}
		for _, comp := range in.Catalog.ComponentsOf(id) {
			compID := NodeID(NodeTypeComponent, comp.ID)
			if !t.HasNode(compID) {
				continue
			}
			for _, req := range comp.RequiresServices {
				if visible.Has(req) {
					t.AddEdge(compID, NodeID(NodeTypeService, req), EdgeTypeRequires, "")
				}
			}
		}
	}

	for _, h := range in.View.Hosts {
		node := &Node{
			ID:       NodeID(NodeTypeHost, h.ID),
			Name:     displayName(h.Name, h.ID),
			Type:     NodeTypeHost,
			Metadata: map[string]string{},
		}
		if h.MaintenanceMode != "" && h.MaintenanceMode != catalog.MaintenanceOff {
			node.Metadata[MetaMaintenance] = string(h.MaintenanceMode)
		}
		t.AddNode(node)
	}

	for _, e := range in.View.Edges {
		from := NodeID(NodeTypeComponent, e.ComponentID)
		to := NodeID(NodeTypeHost, e.HostID)
		if t.HasNode(from) && t.HasNode(to) {
			t.AddEdge(from, to, EdgeTypeMappedTo, "")
		}
	}

	t.ComputeLayers()
	return t
}

// BuildFromSession draws the session's working mapping, narrowed by a filter
func BuildFromSession(s *session.Session, f filter.Filter) *Topology {
	cat := s.Catalog()
	return Build(Input{
		Catalog: cat,
		View:    filter.Project(cat, s.Snapshot(), f),
		Present: s.PresentServices(),
		Result:  s.Result(),
	})
}

func componentNode(comp catalog.Component, res *validate.Result) *Node {
	b := constraints.Bounds{}
	if comp.Constraints != nil {
		b.Min = comp.Constraints.Min
		b.Max = comp.Constraints.Max
	}
	node := &Node{
		ID:   NodeID(NodeTypeComponent, comp.ID),
		Name: displayName(comp.DisplayName, comp.ID),
		Type: NodeTypeComponent,
		Metadata: map[string]string{
			MetaBounds: b.String(),
		},
	}
	if res == nil {
		return node
	}
	report, ok := res.Violation(comp.ID)
	if !ok {
		return node
	}
	node.Metadata[MetaCurrent] = strconv.Itoa(report.Current)
	switch {
	case report.ConfigurationError != "":
		node.Metadata[MetaViolation] = report.ConfigurationError
	case report.IsBelowMin:
		node.Metadata[MetaViolation] = "below minimum"
	case len(report.UnmetServiceDependencies) > 0:
		node.Metadata[MetaViolation] = "missing services"
	}
	if report.IsAboveMax {
		node.Metadata[MetaWarning] = "above maximum"
	}
	return node
}

func displayName(name, id string) string {
	if name != "" {
		return name
	}
	return id
}
