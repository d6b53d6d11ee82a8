// Package workspace reads and writes the topology and mapping files of a
// working directory.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"

	"github.com/bobbyrathoree/hostmap/internal/catalog"
	"github.com/bobbyrathoree/hostmap/internal/diff"
	"github.com/bobbyrathoree/hostmap/internal/mapping"
	"github.com/bobbyrathoree/hostmap/internal/session"
)

const (
	// DefaultTopologyFile is the default topology filename
	DefaultTopologyFile = "topology.yaml"
	// AlternateTopologyFile is an alternate topology filename
	AlternateTopologyFile = "topology.yml"
	// DefaultMappingFile is the default mapping filename
	DefaultMappingFile = "mapping.yaml"
	// AlternateMappingFile is an alternate mapping filename
	AlternateMappingFile = "mapping.yml"
)

// ErrNoTopology is returned when the directory has no topology file
var ErrNoTopology = errors.New("no topology file found")

// Workspace is a directory holding a topology and, optionally, a mapping file
type Workspace struct {
	dir          string
	topologyPath string
	mappingPath  string
}

// Open locates the files of a workspace directory
func Open(dir string) (*Workspace, error) {
	if dir == "" {
		dir = "."
	}
	topology, ok := findFile(dir, DefaultTopologyFile, AlternateTopologyFile)
	if !ok {
		return nil, fmt.Errorf("%w: no %s or %s in %s", ErrNoTopology, DefaultTopologyFile, AlternateTopologyFile, dir)
	}
	mappingPath, ok := findFile(dir, DefaultMappingFile, AlternateMappingFile)
	if !ok {
		mappingPath = filepath.Join(dir, DefaultMappingFile)
	}
	return &Workspace{dir: dir, topologyPath: topology, mappingPath: mappingPath}, nil
}

func findFile(dir string, names ...string) (string, bool) {
	for _, name := range names {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}
	return "", false
}

// TopologyPath returns the topology file path
func (w *Workspace) TopologyPath() string {
	return w.topologyPath
}

// MappingPath returns the mapping file path, which may not exist yet
func (w *Workspace) MappingPath() string {
	return w.mappingPath
}

// Catalog loads the topology file
func (w *Workspace) Catalog() (*catalog.Catalog, error) {
	return catalog.LoadTopologyFile(w.topologyPath)
}

// Mapping loads the mapping file, returning nil when there is none
func (w *Workspace) Mapping() (*catalog.MappingDocument, error) {
	if _, err := os.Stat(w.mappingPath); os.IsNotExist(err) {
		return nil, nil
	}
	return catalog.LoadMappingFile(w.mappingPath)
}

// Load implements session.Source
func (w *Workspace) Load(_ context.Context, clusterID string) (*catalog.Catalog, *session.Baseline, error) {
	cat, err := w.Catalog()
	if err != nil {
		return nil, nil, err
	}
	if clusterID != "" && cat.ClusterID() != clusterID {
		return nil, nil, fmt.Errorf("%s describes cluster %q, not %q", w.topologyPath, cat.ClusterID(), clusterID)
	}

	doc, err := w.Mapping()
	if err != nil {
		return nil, nil, err
	}
	if doc == nil {
		return cat, nil, nil
	}
	if doc.Metadata.Cluster != "" && doc.Metadata.Cluster != cat.ClusterID() {
		return nil, nil, fmt.Errorf("%s is for cluster %q, topology is %q", w.mappingPath, doc.Metadata.Cluster, cat.ClusterID())
	}

	snap, err := mapping.SnapshotFromDocument(cat, doc)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", w.mappingPath, err)
	}
	return cat, &session.Baseline{
		Edges:            snap,
		Services:         doc.Services,
		AcceptedLicenses: doc.AcceptedLicenses,
	}, nil
}

// Save implements session.Saver by editing the mapping file in place:
// removed edges are dropped, added edges appended, and comments on
// everything else survive
func (w *Workspace) Save(_ context.Context, req *session.SaveRequest) error {
	node, err := loadYAMLWithComments(w.mappingPath)
	if os.IsNotExist(err) {
		node = &yaml.Node{Kind: yaml.DocumentNode}
	} else if err != nil {
		return fmt.Errorf("failed to read %s: %w", w.mappingPath, err)
	}

	root := rootDocument(node)
	if root.Kind != yaml.MappingNode {
		return fmt.Errorf("%s: expected a mapping document", w.mappingPath)
	}

	if findMapKey(root, "apiVersion") == nil {
		setMapKey(root, "apiVersion", &yaml.Node{Kind: yaml.ScalarNode, Value: catalog.DefaultAPIVersion})
	}
	if findMapKey(root, "kind") == nil {
		setMapKey(root, "kind", &yaml.Node{Kind: yaml.ScalarNode, Value: catalog.MappingKind})
	}
	meta := findMapKey(root, "metadata")
	if meta == nil || meta.Kind != yaml.MappingNode {
		meta = &yaml.Node{Kind: yaml.MappingNode}
		setMapKey(root, "metadata", meta)
	}
	setMapKey(meta, "cluster", &yaml.Node{Kind: yaml.ScalarNode, Value: req.ClusterID})

	setMapKey(root, "services", stringSequence(req.Services))
	if len(req.AcceptedLicenses) > 0 {
		setMapKey(root, "acceptedLicenses", stringSequence(req.AcceptedLicenses))
	} else {
		removeMapKey(root, "acceptedLicenses")
	}

	seq := ensureSequence(root, "mapping")
	for _, op := range req.Operations {
		fields := map[string]string{"host": op.HostID, "component": op.ComponentID}
		switch op.Action {
		case diff.ActionRemove:
			removeFromSequence(seq, fields)
		case diff.ActionAdd:
			if !sequenceContains(seq, fields) {
				seq.Content = append(seq.Content, flowMapping("host", op.HostID, "component", op.ComponentID))
			}
		}
	}

	if err := saveYAMLWithComments(w.mappingPath, node); err != nil {
		return fmt.Errorf("failed to write %s: %w", w.mappingPath, err)
	}
	klog.V(2).InfoS("Wrote mapping file", "path", w.mappingPath, "operations", len(req.Operations))
	return nil
}

func removeMapKey(node *yaml.Node, key string) {
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			node.Content = append(node.Content[:i], node.Content[i+2:]...)
			return
		}
	}
}
