// Package filter projects a catalog and mapping onto the hosts and
// components matching a search filter.
package filter

import (
	"strings"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/bobbyrathoree/hostmap/internal/catalog"
	"github.com/bobbyrathoree/hostmap/internal/mapping"
)

// Filter narrows the view. Empty fields match everything.
type Filter struct {
	Host      string
	Component string
}

// Text applies one search string to both hosts and components
func Text(s string) Filter {
	return Filter{Host: s, Component: s}
}

// IsEmpty reports whether the filter matches everything
func (f Filter) IsEmpty() bool {
	return strings.TrimSpace(f.Host) == "" && strings.TrimSpace(f.Component) == ""
}

// ServiceView is a service with its visible components
type ServiceView struct {
	ID          string              `json:"id"`
	DisplayName string              `json:"displayName"`
	Components  []catalog.Component `json:"components"`
}

// View is the filtered projection
type View struct {
	Hosts    []catalog.Host `json:"hosts"`
	Services []ServiceView  `json:"services"`
	Edges    []mapping.Edge `json:"edges"`
}

// ComponentIDs returns the visible component ids in catalog order
func (v *View) ComponentIDs() []string {
	var ids []string
	for _, svc := range v.Services {
		for _, c := range svc.Components {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

// Project builds the view. Hosts match on name or id. Components match on
// their own display name or on their service's; a matching service shows all
// of its components. Inputs are not modified.
func Project(cat *catalog.Catalog, snap mapping.Snapshot, f Filter) *View {
	hostQuery := normalize(f.Host)
	compQuery := normalize(f.Component)

	view := &View{
		Hosts:    make([]catalog.Host, 0),
		Services: make([]ServiceView, 0),
		Edges:    make([]mapping.Edge, 0),
	}

	visibleHosts := sets.New[string]()
	for _, h := range cat.Hosts() {
		if matches(hostQuery, h.Name, h.ID) {
			view.Hosts = append(view.Hosts, h)
			visibleHosts.Insert(h.ID)
		}
	}

	visibleComponents := sets.New[string]()
	for _, svc := range cat.Services() {
		serviceMatch := matches(compQuery, svc.DisplayName)
		sv := ServiceView{ID: svc.ID, DisplayName: svc.DisplayName, Components: make([]catalog.Component, 0)}
		for _, comp := range cat.ComponentsOf(svc.ID) {
			if serviceMatch || matches(compQuery, comp.DisplayName) {
				sv.Components = append(sv.Components, comp)
				visibleComponents.Insert(comp.ID)
			}
		}
		if len(sv.Components) > 0 || serviceMatch {
			view.Services = append(view.Services, sv)
		}
	}

	for _, e := range snap.Edges() {
		if visibleHosts.Has(e.HostID) && visibleComponents.Has(e.ComponentID) {
			view.Edges = append(view.Edges, e)
		}
	}
	return view
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func matches(query string, fields ...string) bool {
	if query == "" {
		return true
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), query) {
			return true
		}
	}
	return false
}
