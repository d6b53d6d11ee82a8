package mapping

import (
	"encoding/json"
	"fmt"

	"github.com/bobbyrathoree/hostmap/internal/catalog"
)

// Snapshot is an immutable, sorted copy of a set's edges
type Snapshot struct {
	edges []Edge
}

// NewSnapshot builds a snapshot from arbitrary edges, dropping duplicates
func NewSnapshot(edges []Edge) Snapshot {
	seen := make(map[Edge]bool, len(edges))
	unique := make([]Edge, 0, len(edges))
	for _, e := range edges {
		if seen[e] {
			continue
		}
		seen[e] = true
		unique = append(unique, e)
	}
	SortEdges(unique)
	return Snapshot{edges: unique}
}

// SnapshotFromDocument converts a mapping document into a snapshot, checking
// every entry against the catalog
func SnapshotFromDocument(cat *catalog.Catalog, doc *catalog.MappingDocument) (Snapshot, error) {
	edges := make([]Edge, 0, len(doc.Mapping))
	for i, entry := range doc.Mapping {
		if !cat.HasHost(entry.Host) {
			return Snapshot{}, fmt.Errorf("mapping[%d]: host %q: %w", i, entry.Host, ErrUnknownEntity)
		}
		if !cat.HasComponent(entry.Component) {
			return Snapshot{}, fmt.Errorf("mapping[%d]: component %q: %w", i, entry.Component, ErrUnknownEntity)
		}
		edges = append(edges, Edge{HostID: entry.Host, ComponentID: entry.Component})
	}
	return NewSnapshot(edges), nil
}

// Edges returns a copy of the snapshot's edges in sorted order
func (s Snapshot) Edges() []Edge {
	edges := make([]Edge, len(s.edges))
	copy(edges, s.edges)
	return edges
}

// Len returns the number of edges
func (s Snapshot) Len() int {
	return len(s.edges)
}

// Contains reports whether the snapshot holds an edge
func (s Snapshot) Contains(e Edge) bool {
	lo, hi := 0, len(s.edges)
	for lo < hi {
		mid := (lo + hi) / 2
		switch {
		case s.edges[mid] == e:
			return true
		case s.edges[mid].Less(e):
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return false
}

// Counts returns the number of hosts mapped to each component
func (s Snapshot) Counts() map[string]int {
	counts := make(map[string]int)
	for _, e := range s.edges {
		counts[e.ComponentID]++
	}
	return counts
}

// Equal reports whether two snapshots hold the same edges
func (s Snapshot) Equal(other Snapshot) bool {
	if len(s.edges) != len(other.edges) {
		return false
	}
	for i := range s.edges {
		if s.edges[i] != other.edges[i] {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the snapshot as a sorted edge list
func (s Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Edges())
}

// UnmarshalJSON decodes a snapshot from an edge list
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var edges []Edge
	if err := json.Unmarshal(data, &edges); err != nil {
		return err
	}
	*s = NewSnapshot(edges)
	return nil
}
