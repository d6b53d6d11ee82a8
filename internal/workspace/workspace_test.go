package workspace

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bobbyrathoree/hostmap/internal/mapping"
	"github.com/bobbyrathoree/hostmap/internal/session"
)

const topologyYAML = `apiVersion: hostmap.dev/v1
kind: Topology
metadata:
  cluster: prod-1
hosts:
  - id: h1
  - id: h2
services:
  - id: zookeeper
    installed: true
    components:
      - id: zk
        constraints: {min: 1, max: 3}
  - id: hive
    license: unaccepted
    components:
      - id: metastore
`

const mappingYAML = `kind: Mapping
metadata:
  cluster: prod-1
# the quorum
mapping:
  - {host: h1, component: zk} # primary
  - {host: h2, component: zk}
`

func writeWorkspace(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestOpen(t *testing.T) {
	tests := []struct {
		name        string
		files       map[string]string
		wantErr     bool
		wantMapping string
	}{
		{
			name:        "topology.yaml",
			files:       map[string]string{"topology.yaml": topologyYAML},
			wantMapping: DefaultMappingFile,
		},
		{
			name:        "topology.yml with mapping.yml",
			files:       map[string]string{"topology.yml": topologyYAML, "mapping.yml": mappingYAML},
			wantMapping: AlternateMappingFile,
		},
		{
			name:    "no topology",
			files:   map[string]string{"mapping.yaml": mappingYAML},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeWorkspace(t, tt.files)
			ws, err := Open(dir)
			if tt.wantErr {
				if !errors.Is(err, ErrNoTopology) {
					t.Errorf("expected ErrNoTopology, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if filepath.Base(ws.MappingPath()) != tt.wantMapping {
				t.Errorf("expected mapping file %s, got %s", tt.wantMapping, ws.MappingPath())
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := writeWorkspace(t, map[string]string{"topology.yaml": topologyYAML, "mapping.yaml": mappingYAML})
	ws, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}

	cat, base, err := ws.Load(context.Background(), "prod-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cat.ClusterID() != "prod-1" {
		t.Errorf("expected cluster prod-1, got %s", cat.ClusterID())
	}
	want := []mapping.Edge{{HostID: "h1", ComponentID: "zk"}, {HostID: "h2", ComponentID: "zk"}}
	if diff := cmp.Diff(want, base.Edges.Edges()); diff != "" {
		t.Errorf("edges mismatch (-want +got):\n%s", diff)
	}
	if base.Services != nil {
		t.Errorf("expected services to default to installed, got %v", base.Services)
	}

	if _, _, err := ws.Load(context.Background(), "other"); err == nil {
		t.Error("expected error for another cluster")
	}
}

func TestLoad_UnknownEdge(t *testing.T) {
	dir := writeWorkspace(t, map[string]string{
		"topology.yaml": topologyYAML,
		"mapping.yaml":  "mapping:\n  - {host: h9, component: zk}\n",
	})
	ws, _ := Open(dir)
	if _, _, err := ws.Load(context.Background(), "prod-1"); !errors.Is(err, mapping.ErrUnknownEntity) {
		t.Errorf("expected ErrUnknownEntity, got %v", err)
	}
}

func TestSessionSavePreservesComments(t *testing.T) {
	ctx := context.Background()
	dir := writeWorkspace(t, map[string]string{"topology.yaml": topologyYAML, "mapping.yaml": mappingYAML})
	ws, _ := Open(dir)

	s := session.New("prod-1")
	if err := s.Load(ctx, ws); err != nil {
		t.Fatalf("failed to load: %v", err)
	}
	defer s.Close()

	if err := s.Unmap("h2", "zk"); err != nil {
		t.Fatal(err)
	}
	if err := s.AcceptLicense("hive"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddService("hive"); err != nil {
		t.Fatal(err)
	}
	if err := s.Map("h2", "metastore"); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(ctx, ws); err != nil {
		t.Fatalf("failed to save: %v", err)
	}

	data, err := os.ReadFile(ws.MappingPath())
	if err != nil {
		t.Fatal(err)
	}
	content := string(data)
	for _, want := range []string{"# the quorum", "# primary", "{host: h2, component: metastore}", "acceptedLicenses: [hive]"} {
		if !strings.Contains(content, want) {
			t.Errorf("expected %q in saved file:\n%s", want, content)
		}
	}
	if strings.Contains(content, "{host: h2, component: zk}") {
		t.Errorf("expected removed edge to be gone:\n%s", content)
	}

	reloaded := session.New("prod-1")
	if err := reloaded.Load(ctx, ws); err != nil {
		t.Fatalf("failed to reload: %v", err)
	}
	defer reloaded.Close()
	if !reloaded.Snapshot().Equal(s.Snapshot()) {
		t.Errorf("expected %v, got %v", s.Snapshot().Edges(), reloaded.Snapshot().Edges())
	}
	if diff := cmp.Diff([]string{"hive", "zookeeper"}, reloaded.PresentServices()); diff != "" {
		t.Errorf("services mismatch (-want +got):\n%s", diff)
	}
	if reloaded.HasChanges() {
		t.Error("expected no changes after reload")
	}
}

func TestSaveCreatesMappingFile(t *testing.T) {
	ctx := context.Background()
	dir := writeWorkspace(t, map[string]string{"topology.yaml": topologyYAML})
	ws, _ := Open(dir)

	s := session.New("prod-1")
	if err := s.Load(ctx, ws); err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if err := s.Map("h1", "zk"); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(ctx, ws); err != nil {
		t.Fatalf("failed to save: %v", err)
	}

	doc, err := ws.Mapping()
	if err != nil {
		t.Fatalf("failed to read saved mapping: %v", err)
	}
	if doc.Metadata.Cluster != "prod-1" || len(doc.Mapping) != 1 {
		t.Errorf("unexpected saved document %+v", doc)
	}
}
