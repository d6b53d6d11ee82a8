// Package graph turns a catalog and a mapping into a service/component/host
// graph and renders it as an ASCII tree or a Mermaid diagram.
package graph

import "sort"

// NodeType is the kind of entity a node stands for
type NodeType string

const (
	NodeTypeService   NodeType = "service"
	NodeTypeComponent NodeType = "component"
	NodeTypeHost      NodeType = "host"
)

// EdgeType is the relationship between two nodes
type EdgeType string

const (
	EdgeTypeOwns      EdgeType = "owns"      // Service -> Component
	EdgeTypeDependsOn EdgeType = "dependsOn" // Service -> Service
	EdgeTypeRequires  EdgeType = "requires"  // Component -> Service
	EdgeTypeMappedTo  EdgeType = "mappedTo"  // Component -> Host
)

// Metadata keys set by the builder
const (
	MetaBounds      = "bounds"
	MetaCurrent     = "current"
	MetaViolation   = "violation"
	MetaWarning     = "warning"
	MetaMaintenance = "maintenance"
	MetaLicense     = "license"
	MetaPresent     = "present"
)

// Node is one entity of the graph
type Node struct {
	ID       string // type/id
	Name     string // Display name
	Type     NodeType
	Metadata map[string]string
}

// Edge is a directed relationship between nodes
type Edge struct {
	From     string
	To       string
	EdgeType EdgeType
	Label    string
}

// Topology is the graph of one cluster
type Topology struct {
	Cluster string
	Nodes   map[string]*Node
	Edges   []*Edge
	Layers  [][]string // Node IDs grouped by layer for rendering
}

// NewTopology creates an empty topology
func NewTopology(cluster string) *Topology {
	return &Topology{
		Cluster: cluster,
		Nodes:   make(map[string]*Node),
		Edges:   make([]*Edge, 0),
	}
}

// NodeID builds the ID of an entity node
func NodeID(t NodeType, id string) string {
	return string(t) + "/" + id
}

// AddNode adds a node to the topology
func (t *Topology) AddNode(node *Node) {
	if node.Metadata == nil {
		node.Metadata = make(map[string]string)
	}
	t.Nodes[node.ID] = node
}

// AddEdge adds an edge between nodes
func (t *Topology) AddEdge(from, to string, edgeType EdgeType, label string) {
	t.Edges = append(t.Edges, &Edge{
		From:     from,
		To:       to,
		EdgeType: edgeType,
		Label:    label,
	})
}

// GetNode returns a node by ID
func (t *Topology) GetNode(id string) *Node {
	return t.Nodes[id]
}

// HasNode checks if a node exists
func (t *Topology) HasNode(id string) bool {
	_, ok := t.Nodes[id]
	return ok
}

// ComputeLayers groups nodes for rendering:
// layer 0 services, layer 1 components, layer 2 hosts
func (t *Topology) ComputeLayers() {
	layers := make([][]string, 3)
	for _, node := range t.Nodes {
		var layer int
		switch node.Type {
		case NodeTypeService:
			layer = 0
		case NodeTypeComponent:
			layer = 1
		default:
			layer = 2
		}
		layers[layer] = append(layers[layer], node.ID)
	}

	t.Layers = make([][]string, 0)
	for _, layer := range layers {
		if len(layer) > 0 {
			sort.Strings(layer)
			t.Layers = append(t.Layers, layer)
		}
	}
}

// GetOutgoingEdges returns edges of the given types originating from a node.
// With no types, every outgoing edge is returned.
func (t *Topology) GetOutgoingEdges(nodeID string, types ...EdgeType) []*Edge {
	result := make([]*Edge, 0)
	for _, edge := range t.Edges {
		if edge.From == nodeID && matchesType(edge, types) {
			result = append(result, edge)
		}
	}
	return result
}

// GetIncomingEdges returns edges of the given types pointing to a node
func (t *Topology) GetIncomingEdges(nodeID string, types ...EdgeType) []*Edge {
	result := make([]*Edge, 0)
	for _, edge := range t.Edges {
		if edge.To == nodeID && matchesType(edge, types) {
			result = append(result, edge)
		}
	}
	return result
}

func matchesType(edge *Edge, types []EdgeType) bool {
	if len(types) == 0 {
		return true
	}
	for _, et := range types {
		if edge.EdgeType == et {
			return true
		}
	}
	return false
}

// NodesByType returns all nodes of a type, sorted by ID
func (t *Topology) NodesByType(nodeType NodeType) []*Node {
	result := make([]*Node, 0)
	for _, node := range t.Nodes {
		if node.Type == nodeType {
			result = append(result, node)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// SortedEdges returns the edges ordered by type, source and target
func (t *Topology) SortedEdges() []*Edge {
	edges := make([]*Edge, len(t.Edges))
	copy(edges, t.Edges)
	sort.SliceStable(edges, func(i, j int) bool {
		a, b := edges[i], edges[j]
		if a.EdgeType != b.EdgeType {
			return a.EdgeType < b.EdgeType
		}
		if a.From != b.From {
			return a.From < b.From
		}
		return a.To < b.To
	})
	return edges
}
