package graph

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"k8s.io/utils/ptr"

	"github.com/bobbyrathoree/hostmap/internal/catalog"
	"github.com/bobbyrathoree/hostmap/internal/filter"
	"github.com/bobbyrathoree/hostmap/internal/mapping"
	"github.com/bobbyrathoree/hostmap/internal/session"
)

type staticSource struct {
	topology *catalog.Topology
	edges    []mapping.Edge
}

func (s staticSource) Load(_ context.Context, _ string) (*catalog.Catalog, *session.Baseline, error) {
	cat, err := catalog.New(s.topology)
	if err != nil {
		return nil, nil, err
	}
	return cat, &session.Baseline{Edges: mapping.NewSnapshot(s.edges)}, nil
}

func testSession(t *testing.T) *session.Session {
	t.Helper()
	src := staticSource{
		topology: &catalog.Topology{
			Metadata: catalog.Metadata{Cluster: "c1"},
			Hosts: []catalog.Host{
				{ID: "H1"},
				{ID: "H2", MaintenanceMode: catalog.MaintenanceOn},
			},
			Services: []catalog.Service{
				{ID: "zookeeper", Installed: true, Components: []catalog.Component{
					{ID: "zk", Constraints: &catalog.Constraints{Min: 1, Max: ptr.To(3)}},
				}},
				{ID: "hdfs", Installed: true, DependsOn: []string{"zookeeper"}, Components: []catalog.Component{
					{ID: "namenode", Constraints: &catalog.Constraints{Min: 1, Max: ptr.To(1)}},
				}},
				{ID: "hive", License: catalog.LicenseUnaccepted, Components: []catalog.Component{{ID: "metastore"}}},
			},
		},
		edges: []mapping.Edge{{HostID: "H1", ComponentID: "zk"}},
	}
	s := session.New("c1")
	if err := s.Load(context.Background(), src); err != nil {
		t.Fatalf("failed to load session: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestBuildFromSession(t *testing.T) {
	topo := BuildFromSession(testSession(t), filter.Filter{})

	if topo.Cluster != "c1" {
		t.Errorf("expected cluster c1, got %s", topo.Cluster)
	}
	if topo.HasNode("service/hive") || topo.HasNode("component/metastore") {
		t.Error("expected services that are not present to be left out")
	}

	var got []string
	for _, e := range topo.SortedEdges() {
		got = append(got, string(e.EdgeType)+" "+e.From+" "+e.To)
	}
	want := []string{
		"dependsOn service/hdfs service/zookeeper",
		"mappedTo component/zk host/H1",
		"owns service/hdfs component/namenode",
		"owns service/zookeeper component/zk",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("edges mismatch (-want +got):\n%s", diff)
	}

	namenode := topo.GetNode("component/namenode")
	if namenode.Metadata[MetaViolation] != "below minimum" {
		t.Errorf("expected namenode below minimum, got %q", namenode.Metadata[MetaViolation])
	}
	if namenode.Metadata[MetaCurrent] != "0" || namenode.Metadata[MetaBounds] != "1..1" {
		t.Errorf("unexpected namenode metadata %v", namenode.Metadata)
	}
	if topo.GetNode("host/H2").Metadata[MetaMaintenance] != "on" {
		t.Errorf("expected H2 in maintenance, got %v", topo.GetNode("host/H2").Metadata)
	}

	wantLayers := [][]string{
		{"service/hdfs", "service/zookeeper"},
		{"component/namenode", "component/zk"},
		{"host/H1", "host/H2"},
	}
	if diff := cmp.Diff(wantLayers, topo.Layers); diff != "" {
		t.Errorf("layers mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildFromSession_Filtered(t *testing.T) {
	topo := BuildFromSession(testSession(t), filter.Filter{Host: "h1", Component: "zk"})

	if topo.HasNode("host/H2") {
		t.Error("expected H2 to be filtered out")
	}
	if topo.HasNode("service/hdfs") {
		t.Error("expected hdfs to be filtered out")
	}
	if len(topo.GetIncomingEdges("host/H1", EdgeTypeMappedTo)) != 1 {
		t.Error("expected H1 to keep its mapping")
	}
}

func TestASCIIRenderer(t *testing.T) {
	topo := BuildFromSession(testSession(t), filter.Filter{})

	var buf bytes.Buffer
	r := NewASCIIRenderer(&buf, topo)
	r.SetNoColor(true)
	if err := r.Render(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := `c1 topology

├── [SERVICE] hdfs (depends on zookeeper)
│   └── [!] namenode (0 of 1..1, below minimum)
└── [SERVICE] zookeeper
    └── [COMPONENT] zk (1 of 1..3)
        └── [HOST] H1

Hosts without components:
  [HOST] H2 (maintenance on)

`
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestASCIIRenderer_Empty(t *testing.T) {
	var buf bytes.Buffer
	r := NewASCIIRenderer(&buf, NewTopology("c1"))
	r.SetNoColor(true)
	if err := r.Render(); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "Nothing to show") {
		t.Errorf("expected empty notice, got %q", buf.String())
	}
}

func TestMermaidRenderer(t *testing.T) {
	topo := BuildFromSession(testSession(t), filter.Filter{})

	var buf bytes.Buffer
	if err := NewMermaidRenderer(&buf, topo).Render(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"graph LR",
		"service_hdfs([hdfs]):::service",
		"component_namenode[namenode<br/>0 of 1..1<br/>below minimum]:::violation",
		"host_H2[(H2<br/>maintenance on)]:::maintenance",
		"component_zk ==> host_H1",
		"service_hdfs -.-> service_zookeeper",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}

	var again bytes.Buffer
	NewMermaidRenderer(&again, topo).Render()
	if again.String() != out {
		t.Error("expected identical output across renders")
	}

	html := NewMermaidRenderer(nil, topo).RenderHTML()
	if !strings.Contains(html, "<title>c1 host mapping</title>") || !strings.Contains(html, "component_zk ==> host_H1") {
		t.Error("expected HTML page to embed the diagram")
	}
}
