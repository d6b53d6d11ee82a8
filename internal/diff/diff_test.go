package diff

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bobbyrathoree/hostmap/internal/mapping"
)

func snap(edges ...string) mapping.Snapshot {
	var result []mapping.Edge
	for i := 0; i+1 < len(edges); i += 2 {
		result = append(result, mapping.Edge{HostID: edges[i], ComponentID: edges[i+1]})
	}
	return mapping.NewSnapshot(result)
}

func TestCompute(t *testing.T) {
	tests := []struct {
		name    string
		saved   mapping.Snapshot
		current mapping.Snapshot
		want    []Operation
	}{
		{
			name:    "one addition",
			saved:   snap("H1", "C1"),
			current: snap("H1", "C1", "H2", "C1"),
			want:    []Operation{{Action: ActionAdd, HostID: "H2", ComponentID: "C1"}},
		},
		{
			name:    "one removal",
			saved:   snap("H1", "C1", "H2", "C1"),
			current: snap("H2", "C1"),
			want:    []Operation{{Action: ActionRemove, HostID: "H1", ComponentID: "C1"}},
		},
		{
			name:    "move",
			saved:   snap("H1", "C1", "H3", "C2"),
			current: snap("H2", "C1", "H3", "C2", "H1", "C2"),
			want: []Operation{
				{Action: ActionRemove, HostID: "H1", ComponentID: "C1"},
				{Action: ActionAdd, HostID: "H1", ComponentID: "C2"},
				{Action: ActionAdd, HostID: "H2", ComponentID: "C1"},
			},
		},
		{
			name:    "unchanged",
			saved:   snap("H1", "C1"),
			current: snap("H1", "C1"),
			want:    nil,
		},
		{
			name:    "both empty",
			saved:   snap(),
			current: snap(),
			want:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compute(tt.saved, tt.current)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("operations mismatch (-want +got):\n%s", diff)
			}
			if HasChanges(tt.saved, tt.current) != (tt.want != nil) {
				t.Errorf("HasChanges disagrees with Compute")
			}
			if applied := Apply(tt.saved, got); !applied.Equal(tt.current) {
				t.Errorf("applying operations gave %v, want %v", applied.Edges(), tt.current.Edges())
			}
		})
	}
}

func TestHasChanges_SameSizeDifferentEdges(t *testing.T) {
	if !HasChanges(snap("H1", "C1"), snap("H2", "C1")) {
		t.Error("expected changes")
	}
}

func TestSummary(t *testing.T) {
	ops := Compute(snap("H1", "C1"), snap("H2", "C1", "H2", "C2"))
	s := Summary(ops)
	if s.Added != 2 || s.Removed != 1 {
		t.Errorf("expected 2 added and 1 removed, got %+v", s)
	}
	if s.String() != "2 to add, 1 to remove" {
		t.Errorf("unexpected summary %q", s.String())
	}
	if Summary(nil).String() != "no changes" {
		t.Errorf("unexpected empty summary %q", Summary(nil).String())
	}
}

func TestReplacement(t *testing.T) {
	current := snap("H2", "C1", "H1", "C1")
	want := []mapping.Edge{
		{HostID: "H1", ComponentID: "C1"},
		{HostID: "H2", ComponentID: "C1"},
	}
	if diff := cmp.Diff(want, Replacement(current)); diff != "" {
		t.Errorf("replacement mismatch (-want +got):\n%s", diff)
	}
}
