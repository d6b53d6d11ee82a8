package constraints

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"k8s.io/utils/ptr"

	"github.com/bobbyrathoree/hostmap/internal/catalog"
)

func newCatalog(t *testing.T, services []catalog.Service) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.New(&catalog.Topology{
		Metadata: catalog.Metadata{Cluster: "test"},
		Hosts:    []catalog.Host{{ID: "h1"}},
		Services: services,
	})
	if err != nil {
		t.Fatalf("failed to build catalog: %v", err)
	}
	return cat
}

func TestResolver_DependenciesOf(t *testing.T) {
	cat := newCatalog(t, []catalog.Service{
		{ID: "zookeeper", Components: []catalog.Component{{ID: "zk"}}},
		{ID: "hdfs", DependsOn: []string{"zookeeper"}, Components: []catalog.Component{{ID: "namenode"}}},
		{ID: "yarn", DependsOn: []string{"hdfs"}, Components: []catalog.Component{
			{ID: "resourcemanager"},
			{ID: "timeline", RequiresServices: []string{"hbase"}},
		}},
		{ID: "hbase", DependsOn: []string{"zookeeper"}, Components: []catalog.Component{{ID: "master"}}},
	})
	r := NewResolver(cat)

	tests := []struct {
		component string
		want      []string
	}{
		{component: "zk", want: []string{}},
		{component: "namenode", want: []string{"zookeeper"}},
		{component: "resourcemanager", want: []string{"hdfs", "zookeeper"}},
		{component: "timeline", want: []string{"hbase", "hdfs", "zookeeper"}},
	}

	for _, tt := range tests {
		t.Run(tt.component, func(t *testing.T) {
			got, err := r.DependenciesOf(tt.component)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("dependencies mismatch (-want +got):\n%s", diff)
			}
		})
	}

	if len(r.Errors()) != 0 {
		t.Errorf("expected no data errors, got %v", r.Errors())
	}
	if _, err := r.DependenciesOf("nope"); !errors.Is(err, ErrUnknownComponent) {
		t.Errorf("expected ErrUnknownComponent, got %v", err)
	}
}

func TestResolver_OwningServiceExcluded(t *testing.T) {
	cat := newCatalog(t, []catalog.Service{
		{ID: "hdfs", Components: []catalog.Component{{ID: "namenode", RequiresServices: []string{"hdfs"}}}},
	})
	r := NewResolver(cat)

	got, err := r.DependenciesOf("namenode")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no dependencies, got %v", got)
	}
}

func TestResolver_Cycle(t *testing.T) {
	cat := newCatalog(t, []catalog.Service{
		{ID: "a", DependsOn: []string{"b"}, Components: []catalog.Component{{ID: "a1"}}},
		{ID: "b", DependsOn: []string{"a"}, Components: []catalog.Component{{ID: "b1"}}},
		{ID: "c", DependsOn: []string{"a"}, Components: []catalog.Component{{ID: "c1"}}},
		{ID: "d", Components: []catalog.Component{{ID: "d1"}}},
	})
	r := NewResolver(cat)

	for _, id := range []string{"a1", "b1", "c1"} {
		_, err := r.DependenciesOf(id)
		if !errors.Is(err, ErrDependencyCycle) {
			t.Errorf("%s: expected ErrDependencyCycle, got %v", id, err)
		}
		var cerr *CycleError
		if !errors.As(err, &cerr) {
			t.Errorf("%s: expected *CycleError, got %T", id, err)
		}
	}
	if err := r.ErrorFor("d1"); err != nil {
		t.Errorf("expected d1 to be unaffected, got %v", err)
	}
	if len(r.Errors()) != 3 {
		t.Errorf("expected 3 errors, got %d", len(r.Errors()))
	}

	if _, err := r.InstallOrder([]string{"c"}); !errors.Is(err, ErrDependencyCycle) {
		t.Errorf("expected cycle error from InstallOrder, got %v", err)
	}
}

func TestResolver_SelfDependency(t *testing.T) {
	cat := newCatalog(t, []catalog.Service{
		{ID: "a", DependsOn: []string{"a"}, Components: []catalog.Component{{ID: "a1"}}},
	})
	r := NewResolver(cat)

	var cerr *CycleError
	if !errors.As(r.ErrorFor("a1"), &cerr) {
		t.Fatalf("expected *CycleError, got %v", r.ErrorFor("a1"))
	}
	if diff := cmp.Diff([]string{"a", "a"}, cerr.Path); diff != "" {
		t.Errorf("cycle path mismatch (-want +got):\n%s", diff)
	}
}

func TestResolver_UnknownService(t *testing.T) {
	cat := newCatalog(t, []catalog.Service{
		{ID: "hdfs", DependsOn: []string{"ghost"}, Components: []catalog.Component{{ID: "namenode"}}},
		{ID: "spark", Components: []catalog.Component{{ID: "history", RequiresServices: []string{"phantom"}}}},
	})
	r := NewResolver(cat)

	for _, id := range []string{"namenode", "history"} {
		if err := r.ErrorFor(id); !errors.Is(err, ErrMalformedCatalog) {
			t.Errorf("%s: expected ErrMalformedCatalog, got %v", id, err)
		}
	}
	deps, err := r.DependenciesOf("namenode")
	if err == nil {
		t.Error("expected data error")
	}
	if len(deps) != 0 {
		t.Errorf("expected unknown service to be left out, got %v", deps)
	}
}

func TestResolver_ConstraintsOf(t *testing.T) {
	cat := newCatalog(t, []catalog.Service{
		{ID: "s", Components: []catalog.Component{
			{ID: "bounded", Constraints: &catalog.Constraints{Min: 1, Max: ptr.To(3)}},
			{ID: "open", Constraints: &catalog.Constraints{Min: 2}},
			{ID: "none"},
		}},
	})
	r := NewResolver(cat)

	tests := []struct {
		component string
		want      Bounds
		str       string
	}{
		{component: "bounded", want: Bounds{Min: 1, Max: ptr.To(3)}, str: "1..3"},
		{component: "open", want: Bounds{Min: 2}, str: "2..*"},
		{component: "none", want: Bounds{}, str: "0..*"},
		{component: "missing", want: Bounds{}, str: "0..*"},
	}

	for _, tt := range tests {
		t.Run(tt.component, func(t *testing.T) {
			got := r.ConstraintsOf(tt.component)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("bounds mismatch (-want +got):\n%s", diff)
			}
			if got.String() != tt.str {
				t.Errorf("expected %q, got %q", tt.str, got.String())
			}
		})
	}
}

func TestResolver_InstallOrder(t *testing.T) {
	cat := newCatalog(t, []catalog.Service{
		{ID: "yarn", DependsOn: []string{"hdfs"}},
		{ID: "hdfs", DependsOn: []string{"zookeeper"}},
		{ID: "zookeeper"},
		{ID: "hive", DependsOn: []string{"yarn", "zookeeper"}},
	})
	r := NewResolver(cat)

	got, err := r.InstallOrder([]string{"hive"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"zookeeper", "hdfs", "yarn", "hive"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}

	if _, err := r.InstallOrder([]string{"nope"}); !errors.Is(err, catalog.ErrUnknownEntity) {
		t.Errorf("expected ErrUnknownEntity, got %v", err)
	}
}
