// Package mapping holds the working set of host to component assignments.
package mapping

import (
	"fmt"
	"sort"

	"github.com/bobbyrathoree/hostmap/internal/catalog"
)

// ErrUnknownEntity is returned when an edge names a host or component outside the catalog
var ErrUnknownEntity = catalog.ErrUnknownEntity

// Edge assigns one component to one host
type Edge struct {
	HostID      string `json:"host"`
	ComponentID string `json:"component"`
}

func (e Edge) String() string {
	return e.HostID + "/" + e.ComponentID
}

// Less orders edges by host, then component
func (e Edge) Less(other Edge) bool {
	if e.HostID != other.HostID {
		return e.HostID < other.HostID
	}
	return e.ComponentID < other.ComponentID
}

// SortEdges sorts edges in place by host, then component
func SortEdges(edges []Edge) {
	sort.Slice(edges, func(i, j int) bool {
		return edges[i].Less(edges[j])
	})
}

// Set is a deduplicated set of edges bound to one catalog.
// It does not validate constraints; that is the validator's job.
type Set struct {
	catalog *catalog.Catalog
	edges   map[Edge]struct{}
	version uint64
}

// NewSet creates an empty set for a catalog
func NewSet(cat *catalog.Catalog) *Set {
	return &Set{
		catalog: cat,
		edges:   make(map[Edge]struct{}),
	}
}

// Map adds an edge. Mapping an existing edge is a no-op.
func (s *Set) Map(hostID, componentID string) error {
	if !s.catalog.HasHost(hostID) {
		return fmt.Errorf("host %q: %w", hostID, ErrUnknownEntity)
	}
	if !s.catalog.HasComponent(componentID) {
		return fmt.Errorf("component %q: %w", componentID, ErrUnknownEntity)
	}

	e := Edge{HostID: hostID, ComponentID: componentID}
	if _, ok := s.edges[e]; ok {
		return nil
	}
	s.edges[e] = struct{}{}
	s.version++
	return nil
}

// Unmap removes an edge. Unmapping an absent edge is a no-op.
func (s *Set) Unmap(hostID, componentID string) {
	e := Edge{HostID: hostID, ComponentID: componentID}
	if _, ok := s.edges[e]; !ok {
		return
	}
	delete(s.edges, e)
	s.version++
}

// UnmapAllForHost removes every edge of a host and returns how many were removed
func (s *Set) UnmapAllForHost(hostID string) int {
	return s.removeWhere(func(e Edge) bool { return e.HostID == hostID })
}

// UnmapAllForComponent removes every edge of a component and returns how many were removed
func (s *Set) UnmapAllForComponent(componentID string) int {
	return s.removeWhere(func(e Edge) bool { return e.ComponentID == componentID })
}

func (s *Set) removeWhere(match func(Edge) bool) int {
	removed := 0
	for e := range s.edges {
		if match(e) {
			delete(s.edges, e)
			removed++
		}
	}
	if removed > 0 {
		s.version++
	}
	return removed
}

// Has reports whether an edge is present
func (s *Set) Has(hostID, componentID string) bool {
	_, ok := s.edges[Edge{HostID: hostID, ComponentID: componentID}]
	return ok
}

// Len returns the number of edges
func (s *Set) Len() int {
	return len(s.edges)
}

// Version increases on every change to the set
func (s *Set) Version() uint64 {
	return s.version
}

// Counts returns the number of hosts mapped to each component. Components
// without edges are absent from the map.
func (s *Set) Counts() map[string]int {
	counts := make(map[string]int)
	for e := range s.edges {
		counts[e.ComponentID]++
	}
	return counts
}

// HostsOf returns the sorted hosts a component is mapped to
func (s *Set) HostsOf(componentID string) []string {
	var hosts []string
	for e := range s.edges {
		if e.ComponentID == componentID {
			hosts = append(hosts, e.HostID)
		}
	}
	sort.Strings(hosts)
	return hosts
}

// ComponentsOf returns the sorted components mapped to a host
func (s *Set) ComponentsOf(hostID string) []string {
	var comps []string
	for e := range s.edges {
		if e.HostID == hostID {
			comps = append(comps, e.ComponentID)
		}
	}
	sort.Strings(comps)
	return comps
}

// Snapshot returns an immutable copy of the current edges
func (s *Set) Snapshot() Snapshot {
	edges := make([]Edge, 0, len(s.edges))
	for e := range s.edges {
		edges = append(edges, e)
	}
	SortEdges(edges)
	return Snapshot{edges: edges}
}

// Restore replaces the set's edges with the snapshot's edges.
// Edges are trusted to come from the same catalog.
func (s *Set) Restore(snap Snapshot) {
	s.edges = make(map[Edge]struct{}, snap.Len())
	for _, e := range snap.edges {
		s.edges[e] = struct{}{}
	}
	s.version++
}
