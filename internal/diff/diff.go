// Package diff computes the save payload between the last saved mapping and
// the working mapping.
package diff

import (
	"fmt"
	"sort"

	"github.com/bobbyrathoree/hostmap/internal/mapping"
)

// Action is the kind of change an operation applies
type Action string

const (
	ActionAdd    Action = "add"
	ActionRemove Action = "remove"
)

// Operation adds or removes one edge
type Operation struct {
	Action      Action `json:"action"`
	HostID      string `json:"host"`
	ComponentID string `json:"component"`
}

func (o Operation) String() string {
	sign := "+"
	if o.Action == ActionRemove {
		sign = "-"
	}
	return fmt.Sprintf("%s %s/%s", sign, o.HostID, o.ComponentID)
}

// Compute returns the operations that turn saved into current: removals
// first, then additions, each sorted by host and component. It returns nil
// when the snapshots hold the same edges.
func Compute(saved, current mapping.Snapshot) []Operation {
	var ops []Operation
	for _, e := range saved.Edges() {
		if !current.Contains(e) {
			ops = append(ops, Operation{Action: ActionRemove, HostID: e.HostID, ComponentID: e.ComponentID})
		}
	}
	for _, e := range current.Edges() {
		if !saved.Contains(e) {
			ops = append(ops, Operation{Action: ActionAdd, HostID: e.HostID, ComponentID: e.ComponentID})
		}
	}
	if len(ops) == 0 {
		return nil
	}

	sort.SliceStable(ops, func(i, j int) bool {
		if ops[i].Action != ops[j].Action {
			return ops[i].Action == ActionRemove
		}
		if ops[i].HostID != ops[j].HostID {
			return ops[i].HostID < ops[j].HostID
		}
		return ops[i].ComponentID < ops[j].ComponentID
	})
	return ops
}

// HasChanges reports whether the snapshots differ, stopping at the first difference
func HasChanges(saved, current mapping.Snapshot) bool {
	if saved.Len() != current.Len() {
		return true
	}
	for _, e := range current.Edges() {
		if !saved.Contains(e) {
			return true
		}
	}
	return false
}

// Replacement returns the full edge list for backends that replace the whole mapping
func Replacement(current mapping.Snapshot) []mapping.Edge {
	return current.Edges()
}

// Apply replays operations on a snapshot
func Apply(base mapping.Snapshot, ops []Operation) mapping.Snapshot {
	edges := make(map[mapping.Edge]bool, base.Len())
	for _, e := range base.Edges() {
		edges[e] = true
	}
	for _, op := range ops {
		e := mapping.Edge{HostID: op.HostID, ComponentID: op.ComponentID}
		switch op.Action {
		case ActionAdd:
			edges[e] = true
		case ActionRemove:
			delete(edges, e)
		}
	}
	result := make([]mapping.Edge, 0, len(edges))
	for e := range edges {
		result = append(result, e)
	}
	return mapping.NewSnapshot(result)
}

// Stats counts operations by action
type Stats struct {
	Added   int `json:"added"`
	Removed int `json:"removed"`
}

// Summary counts the operations of a payload
func Summary(ops []Operation) Stats {
	var s Stats
	for _, op := range ops {
		switch op.Action {
		case ActionAdd:
			s.Added++
		case ActionRemove:
			s.Removed++
		}
	}
	return s
}

func (s Stats) String() string {
	if s.Added == 0 && s.Removed == 0 {
		return "no changes"
	}
	return fmt.Sprintf("%d to add, %d to remove", s.Added, s.Removed)
}
