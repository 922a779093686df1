package graph

import (
	"fmt"
	"strings"
)

// CircularDependencyError represents a circular dependency between services.
type CircularDependencyError struct {
	Node NodeKey
	Path []NodeKey
}

func (e CircularDependencyError) Error() string {
	var b strings.Builder
	b.WriteString("circular dependency detected:\n\n")

	if len(e.Path) == 0 {
		b.WriteString(fmt.Sprintf("    %s\n", e.Node.String()))
		b.WriteString("      ↓\n")
		b.WriteString(fmt.Sprintf("    %s (cycle)\n", e.Node.String()))
	} else {
		for _, node := range e.Path {
			b.WriteString(fmt.Sprintf("    %s\n", node.String()))
			b.WriteString("      ↓\n")
		}
		b.WriteString(fmt.Sprintf("    %s (cycle)\n", e.Node.String()))
	}

	b.WriteString("\nTo resolve this:\n")
	b.WriteString("  • Depend on a factory and resolve one side lazily\n")
	b.WriteString("  • Restructure to remove the circular relationship\n")

	return b.String()
}
