package graph

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// MermaidRenderer generates Mermaid.js diagram code
type MermaidRenderer struct {
	out      io.Writer
	topology *Topology
}

// NewMermaidRenderer creates a new Mermaid renderer
func NewMermaidRenderer(out io.Writer, topology *Topology) *MermaidRenderer {
	return &MermaidRenderer{
		out:      out,
		topology: topology,
	}
}

// Render outputs Mermaid diagram code. Nodes and edges are emitted in a
// stable order so the output can be diffed.
func (r *MermaidRenderer) Render() error {
	fmt.Fprintln(r.out, "graph LR")
	fmt.Fprintln(r.out, "    %% Node definitions")

	ids := make([]string, 0, len(r.topology.Nodes))
	for id := range r.topology.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		node := r.topology.Nodes[id]
		shape := r.nodeShape(node)
		fmt.Fprintf(r.out, "    %s%s:::%s\n", r.sanitizeID(node.ID), shape(r.nodeLabel(node)), r.nodeClass(node))
	}

	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, "    %% Edge definitions")

	for _, edge := range r.topology.SortedEdges() {
		arrow := r.edgeArrow(edge.EdgeType)
		fromID := r.sanitizeID(edge.From)
		toID := r.sanitizeID(edge.To)

		if edge.Label != "" {
			fmt.Fprintf(r.out, "    %s %s|%s| %s\n", fromID, arrow, edge.Label, toID)
		} else {
			fmt.Fprintf(r.out, "    %s %s %s\n", fromID, arrow, toID)
		}
	}

	fmt.Fprintln(r.out)
	r.renderStyles()
	return nil
}

// renderStyles outputs Mermaid style definitions
func (r *MermaidRenderer) renderStyles() {
	fmt.Fprintln(r.out, "    %% Styles")
	fmt.Fprintln(r.out, "    classDef service fill:#dbeafe,stroke:#3b82f6,stroke-width:1px,color:#1e40af")
	fmt.Fprintln(r.out, "    classDef component fill:#cffafe,stroke:#06b6d4,stroke-width:2px,color:#0e7490")
	fmt.Fprintln(r.out, "    classDef violation fill:#fee2e2,stroke:#ef4444,stroke-width:2px,color:#991b1b")
	fmt.Fprintln(r.out, "    classDef host fill:#d1fae5,stroke:#10b981,stroke-width:1px,color:#065f46")
	fmt.Fprintln(r.out, "    classDef maintenance fill:#fef3c7,stroke:#d97706,stroke-width:1px,color:#92400e")
}

// nodeShape returns a function that wraps label in appropriate Mermaid shape
func (r *MermaidRenderer) nodeShape(node *Node) func(string) string {
	switch node.Type {
	case NodeTypeService:
		// Stadium
		return func(label string) string { return fmt.Sprintf("([%s])", label) }
	case NodeTypeHost:
		// Cylinder
		return func(label string) string { return fmt.Sprintf("[(%s)]", label) }
	default:
		return func(label string) string { return fmt.Sprintf("[%s]", label) }
	}
}

// nodeLabel generates the label text for a node
func (r *MermaidRenderer) nodeLabel(node *Node) string {
	parts := []string{node.Name}

	switch node.Type {
	case NodeTypeComponent:
		count := node.Metadata[MetaBounds]
		if current := node.Metadata[MetaCurrent]; current != "" {
			count = current + " of " + count
		}
		parts = append(parts, count)
		if v := node.Metadata[MetaViolation]; v != "" {
			parts = append(parts, v)
		}
	case NodeTypeHost:
		if mode := node.Metadata[MetaMaintenance]; mode != "" {
			parts = append(parts, "maintenance "+mode)
		}
	case NodeTypeService:
		if license := node.Metadata[MetaLicense]; license != "" {
			parts = append(parts, "license "+license)
		}
	}

	// Join with HTML line break for Mermaid
	return strings.Join(parts, "<br/>")
}

// nodeClass returns the CSS class for styling
func (r *MermaidRenderer) nodeClass(node *Node) string {
	switch node.Type {
	case NodeTypeService:
		return "service"
	case NodeTypeComponent:
		if node.Metadata[MetaViolation] != "" {
			return "violation"
		}
		return "component"
	case NodeTypeHost:
		if node.Metadata[MetaMaintenance] != "" {
			return "maintenance"
		}
		return "host"
	default:
		return "component"
	}
}

// edgeArrow returns the Mermaid arrow for an edge type
func (r *MermaidRenderer) edgeArrow(edgeType EdgeType) string {
	switch edgeType {
	case EdgeTypeMappedTo:
		return "==>"
	case EdgeTypeDependsOn, EdgeTypeRequires:
		return "-.->"
	default:
		return "-->"
	}
}

// sanitizeID makes node IDs safe for Mermaid
func (r *MermaidRenderer) sanitizeID(id string) string {
	return strings.NewReplacer("/", "_", "-", "_", ".", "_", " ", "_").Replace(id)
}

// RenderHTML generates a complete HTML page with embedded Mermaid diagram
func (r *MermaidRenderer) RenderHTML() string {
	var mermaidCode strings.Builder
	originalOut := r.out
	r.out = &mermaidCode
	r.Render()
	r.out = originalOut

	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
    <title>%s host mapping</title>
    <script src="https://cdn.jsdelivr.net/npm/mermaid@10/dist/mermaid.min.js"></script>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            background: #0f172a;
            padding: 40px;
            color: #e2e8f0;
        }
        h1 { font-size: 1.75rem; margin-bottom: 24px; color: #38bdf8; }
        .mermaid { background: #fff; border-radius: 12px; padding: 32px; }
    </style>
</head>
<body>
    <h1>%s</h1>
    <div class="mermaid">
%s
    </div>
    <script>
        mermaid.initialize({ startOnLoad: true, theme: 'base' });
    </script>
</body>
</html>`, r.topology.Cluster, r.topology.Cluster, mermaidCode.String())
}
