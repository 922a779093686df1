package graph

import (
	"fmt"
	"io"
	"strings"
)

// Visualizer renders a dependency graph for humans and for Graphviz.
type Visualizer struct {
	graph *DependencyGraph
}

// NewVisualizer creates a new graph visualizer.
func NewVisualizer(graph *DependencyGraph) *Visualizer {
	return &Visualizer{graph: graph}
}

// WriteDOT writes the graph in Graphviz DOT format.
func (v *Visualizer) WriteDOT(w io.Writer) error {
	keys := v.graph.Keys()

	v.graph.mu.RLock()
	defer v.graph.mu.RUnlock()

	var b strings.Builder
	b.WriteString("digraph dependencies {\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [shape=box];\n")

	ids := make(map[NodeKey]string, len(keys))
	for i, key := range keys {
		node := v.graph.nodes[key]
		ids[key] = fmt.Sprintf("n%d", i)
		fmt.Fprintf(&b, "  %s [label=\"%s\", fillcolor=\"%s\", style=filled];\n",
			ids[key], v.label(node), v.color(node))
	}

	for _, key := range keys {
		for _, dep := range v.graph.nodes[key].Dependencies {
			style := ""
			if dep.Optional {
				style = " [style=dashed]"
			}
			fmt.Fprintf(&b, "  %s -> %s%s;\n", ids[key], ids[dep.To], style)
		}
	}

	b.WriteString("}\n")
	_, err := io.WriteString(w, b.String())
	return err
}

// WriteText writes the graph grouped by depth, leaves first.
func (v *Visualizer) WriteText(w io.Writer) error {
	v.graph.CalculateDepths()
	keys := v.graph.Keys()

	v.graph.mu.RLock()
	defer v.graph.mu.RUnlock()

	var b strings.Builder
	b.WriteString("Dependency Graph:\n")
	b.WriteString("=================\n\n")

	levels := make(map[int][]*Node)
	maxDepth := 0
	for _, key := range keys {
		node := v.graph.nodes[key]
		levels[node.Depth] = append(levels[node.Depth], node)
		if node.Depth > maxDepth {
			maxDepth = node.Depth
		}
	}

	for depth := 0; depth <= maxDepth; depth++ {
		nodes, ok := levels[depth]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "Level %d:\n", depth)
		for _, node := range nodes {
			v.writeNode(&b, node)
		}
		b.WriteString("\n")
	}

	if cyclic, ok := levels[-1]; ok {
		b.WriteString("Nodes in Cycles:\n")
		for _, node := range cyclic {
			v.writeNode(&b, node)
		}
		b.WriteString("\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func (v *Visualizer) writeNode(b *strings.Builder, node *Node) {
	if !node.Registered {
		fmt.Fprintf(b, "  %s [missing]\n", node.Key)
		return
	}
	fmt.Fprintf(b, "  %s [%s, %s]\n", node.Key, node.Lifetime, node.Source)
	for _, dep := range node.Dependencies {
		if dep.Optional {
			fmt.Fprintf(b, "    -> %s (optional)\n", dep.To)
			continue
		}
		fmt.Fprintf(b, "    -> %s\n", dep.To)
	}
}

func (v *Visualizer) label(node *Node) string {
	name := node.Key.String()
	if i := strings.LastIndex(name, "."); i >= 0 {
		prefix := ""
		if strings.HasPrefix(name, "*") {
			prefix = "*"
		}
		name = prefix + name[i+1:]
	}
	if node.Lifetime == "" {
		return name
	}
	return fmt.Sprintf("%s\\n%s", name, node.Lifetime)
}

func (v *Visualizer) color(node *Node) string {
	if !node.Registered {
		return "lightgray"
	}
	switch node.Lifetime {
	case "Singleton":
		return "lightblue"
	case "Scoped":
		return "lightgreen"
	case "Transient":
		return "lightyellow"
	default:
		return "white"
	}
}
