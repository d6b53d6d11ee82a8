package graph

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorCyan   = "\033[36m"
	colorGreen  = "\033[32m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorWhite  = "\033[37m"
	colorMuted  = "\033[90m"
	colorBold   = "\033[1m"
)

// NodeColors maps node types to colors
var NodeColors = map[NodeType]string{
	NodeTypeService:   colorWhite,
	NodeTypeComponent: colorCyan,
	NodeTypeHost:      colorGreen,
}

// ASCIIRenderer renders a topology as a tree: services, their components,
// and the hosts each component is mapped to
type ASCIIRenderer struct {
	out      io.Writer
	topology *Topology
	noColor  bool
}

// NewASCIIRenderer creates a new ASCII renderer
func NewASCIIRenderer(out io.Writer, topology *Topology) *ASCIIRenderer {
	return &ASCIIRenderer{
		out:      out,
		topology: topology,
	}
}

// SetNoColor disables color output
func (r *ASCIIRenderer) SetNoColor(noColor bool) {
	r.noColor = noColor
}

// Render outputs the ASCII topology
func (r *ASCIIRenderer) Render() error {
	t := r.topology

	fmt.Fprintf(r.out, "%s%s%s topology%s\n\n",
		r.color(colorBold), r.color(colorCyan), t.Cluster, r.color(colorReset))

	if len(t.Nodes) == 0 {
		fmt.Fprintf(r.out, "%sNothing to show%s\n", r.color(colorMuted), r.color(colorReset))
		return nil
	}

	services := t.NodesByType(NodeTypeService)
	for i, node := range services {
		r.renderNode(node.ID, "", i == len(services)-1)
	}

	if idle := r.unmappedHosts(); len(idle) > 0 {
		fmt.Fprintf(r.out, "\n%sHosts without components:%s\n", r.color(colorMuted), r.color(colorReset))
		for _, node := range idle {
			fmt.Fprintf(r.out, "  %s\n", r.formatNode(node))
		}
	}

	fmt.Fprintln(r.out)
	r.renderLegend()
	return nil
}

// renderNode renders a node and the nodes it owns or is mapped to
func (r *ASCIIRenderer) renderNode(nodeID string, prefix string, isLast bool) {
	node := r.topology.GetNode(nodeID)
	if node == nil {
		return
	}

	connector := "├── "
	if isLast {
		connector = "└── "
	}
	fmt.Fprintf(r.out, "%s%s%s\n", prefix, connector, r.formatNode(node))

	children := r.getChildren(nodeID)

	childPrefix := prefix
	if isLast {
		childPrefix += "    "
	} else {
		childPrefix += "│   "
	}
	for i, childID := range children {
		r.renderNode(childID, childPrefix, i == len(children)-1)
	}
}

// getChildren follows only ownership and mapping edges, so the tree stays a
// tree even when services depend on each other
func (r *ASCIIRenderer) getChildren(nodeID string) []string {
	edges := r.topology.GetOutgoingEdges(nodeID, EdgeTypeOwns, EdgeTypeMappedTo)
	children := make([]string, 0, len(edges))
	for _, edge := range edges {
		children = append(children, edge.To)
	}
	sort.Strings(children)
	return children
}

func (r *ASCIIRenderer) unmappedHosts() []*Node {
	var idle []*Node
	for _, node := range r.topology.NodesByType(NodeTypeHost) {
		if len(r.topology.GetIncomingEdges(node.ID, EdgeTypeMappedTo)) == 0 {
			idle = append(idle, node)
		}
	}
	return idle
}

// formatNode creates a colored string representation of a node
func (r *ASCIIRenderer) formatNode(node *Node) string {
	color := r.nodeColor(node)
	icon := r.nodeIcon(node)
	details := r.nodeDetails(node)

	if details != "" {
		return fmt.Sprintf("%s%s %s%s %s(%s)%s",
			color, icon, node.Name, r.color(colorReset),
			r.color(colorMuted), details, r.color(colorReset))
	}
	return fmt.Sprintf("%s%s %s%s", color, icon, node.Name, r.color(colorReset))
}

// nodeIcon returns an icon for the node type
func (r *ASCIIRenderer) nodeIcon(node *Node) string {
	switch node.Type {
	case NodeTypeService:
		return "[SERVICE]"
	case NodeTypeComponent:
		if node.Metadata[MetaViolation] != "" {
			return "[!]"
		}
		return "[COMPONENT]"
	case NodeTypeHost:
		return "[HOST]"
	default:
		return "[?]"
	}
}

// nodeDetails returns additional info for the node
func (r *ASCIIRenderer) nodeDetails(node *Node) string {
	parts := make([]string, 0)

	switch node.Type {
	case NodeTypeService:
		deps := make([]string, 0)
		for _, edge := range r.topology.GetOutgoingEdges(node.ID, EdgeTypeDependsOn) {
			if dep := r.topology.GetNode(edge.To); dep != nil {
				deps = append(deps, dep.Name)
			}
		}
		if len(deps) > 0 {
			sort.Strings(deps)
			parts = append(parts, "depends on "+strings.Join(deps, ", "))
		}
		if license := node.Metadata[MetaLicense]; license != "" {
			parts = append(parts, "license "+license)
		}
	case NodeTypeComponent:
		count := node.Metadata[MetaBounds]
		if current := node.Metadata[MetaCurrent]; current != "" {
			count = current + " of " + count
		}
		parts = append(parts, count)
		if v := node.Metadata[MetaViolation]; v != "" {
			parts = append(parts, v)
		}
		if w := node.Metadata[MetaWarning]; w != "" {
			parts = append(parts, w)
		}
	case NodeTypeHost:
		if mode := node.Metadata[MetaMaintenance]; mode != "" {
			parts = append(parts, "maintenance "+mode)
		}
	}

	return strings.Join(parts, ", ")
}

// nodeColor returns the color for a node
func (r *ASCIIRenderer) nodeColor(node *Node) string {
	if node.Metadata[MetaViolation] != "" {
		return r.color(colorRed)
	}
	if node.Metadata[MetaMaintenance] != "" || node.Metadata[MetaWarning] != "" {
		return r.color(colorYellow)
	}
	return r.color(NodeColors[node.Type])
}

// color returns the color code if colors are enabled
func (r *ASCIIRenderer) color(c string) string {
	if r.noColor {
		return ""
	}
	return c
}

// renderLegend prints a color legend
func (r *ASCIIRenderer) renderLegend() {
	if r.noColor {
		return
	}

	fmt.Fprintf(r.out, "%sLegend:%s ", r.color(colorMuted), r.color(colorReset))
	fmt.Fprintf(r.out, "%s[SERVICE]%s ", r.color(colorWhite), r.color(colorReset))
	fmt.Fprintf(r.out, "%s[COMPONENT]%s ", r.color(colorCyan), r.color(colorReset))
	fmt.Fprintf(r.out, "%s[HOST]%s ", r.color(colorGreen), r.color(colorReset))
	fmt.Fprintf(r.out, "%s[!] violation%s ", r.color(colorRed), r.color(colorReset))
	fmt.Fprintf(r.out, "%smaintenance%s\n", r.color(colorYellow), r.color(colorReset))
}
