// Package graph models the static dependency relationships between registered
// services. It is used for validation and diagnostics; runtime cycle detection
// happens on the resolution chain itself.
package graph

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// NodeKey uniquely identifies a node in the graph.
type NodeKey struct {
	Type reflect.Type
}

// String returns a string representation of the node key.
func (k NodeKey) String() string {
	if k.Type == nil {
		return "<nil>"
	}
	return k.Type.String()
}

// Node represents a service in the dependency graph.
type Node struct {
	Key NodeKey

	// Registered is false for nodes that were only seen as a dependency.
	Registered bool
	Lifetime   string
	Source     string

	Dependencies []Edge
	Dependents   []NodeKey

	Depth int
}

// Edge is a directed dependency from a node to another service type.
type Edge struct {
	To       NodeKey
	Optional bool
}

// String returns a string representation of the node.
func (n *Node) String() string {
	return fmt.Sprintf("%s (deps: %d, dependents: %d)", n.Key, len(n.Dependencies), len(n.Dependents))
}

// DependencyGraph manages the dependency relationships between services.
type DependencyGraph struct {
	mu    sync.RWMutex
	nodes map[NodeKey]*Node
	order []NodeKey
}

// NewDependencyGraph creates an empty dependency graph.
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{
		nodes: make(map[NodeKey]*Node),
	}
}

// AddService records a registered service and its dependencies.
// Adding the same type twice replaces its dependency list.
func (g *DependencyGraph) AddService(t reflect.Type, lifetime, source string, deps ...Edge) {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := NodeKey{Type: t}
	node := g.ensure(key)
	if node.Registered {
		for _, old := range node.Dependencies {
			g.removeDependent(old.To, key)
		}
	}

	node.Registered = true
	node.Lifetime = lifetime
	node.Source = source
	node.Dependencies = append([]Edge(nil), deps...)

	for _, dep := range deps {
		depNode := g.ensure(dep.To)
		depNode.Dependents = append(depNode.Dependents, key)
	}
}

func (g *DependencyGraph) ensure(key NodeKey) *Node {
	if node, ok := g.nodes[key]; ok {
		return node
	}
	node := &Node{Key: key}
	g.nodes[key] = node
	g.order = append(g.order, key)
	return node
}

func (g *DependencyGraph) removeDependent(of, dependent NodeKey) {
	node, ok := g.nodes[of]
	if !ok {
		return
	}
	kept := node.Dependents[:0]
	for _, k := range node.Dependents {
		if k != dependent {
			kept = append(kept, k)
		}
	}
	node.Dependents = kept
}

// Node returns the node for a given type, or nil.
func (g *DependencyGraph) Node(t reflect.Type) *Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[NodeKey{Type: t}]
}

// Size returns the number of nodes in the graph.
func (g *DependencyGraph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Missing returns every required dependency that has no registered node,
// keyed by the dependent that needs it.
func (g *DependencyGraph) Missing() map[NodeKey][]NodeKey {
	g.mu.RLock()
	defer g.mu.RUnlock()

	missing := make(map[NodeKey][]NodeKey)
	for _, key := range g.order {
		node := g.nodes[key]
		if !node.Registered {
			continue
		}
		for _, dep := range node.Dependencies {
			if dep.Optional {
				continue
			}
			if target := g.nodes[dep.To]; target == nil || !target.Registered {
				missing[key] = append(missing[key], dep.To)
			}
		}
	}
	return missing
}

// DetectCycles reports the first cycle found, walking nodes in insertion order.
func (g *DependencyGraph) DetectCycles() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	const (
		white = iota
		grey
		black
	)
	color := make(map[NodeKey]int, len(g.nodes))
	var stack []NodeKey

	var visit func(NodeKey) error
	visit = func(key NodeKey) error {
		switch color[key] {
		case grey:
			start := 0
			for i, k := range stack {
				if k == key {
					start = i
					break
				}
			}
			path := append([]NodeKey(nil), stack[start:]...)
			return CircularDependencyError{Node: key, Path: path}
		case black:
			return nil
		}

		color[key] = grey
		stack = append(stack, key)
		if node := g.nodes[key]; node != nil {
			for _, dep := range node.Dependencies {
				if err := visit(dep.To); err != nil {
					return err
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[key] = black
		return nil
	}

	for _, key := range g.order {
		if err := visit(key); err != nil {
			return err
		}
	}
	return nil
}

// IsAcyclic returns true if the graph has no cycles.
func (g *DependencyGraph) IsAcyclic() bool {
	return g.DetectCycles() == nil
}

// TopologicalSort returns nodes in dependency order (dependencies first).
func (g *DependencyGraph) TopologicalSort() ([]*Node, error) {
	if err := g.DetectCycles(); err != nil {
		return nil, err
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	// Kahn's algorithm over the reversed edges: a node is ready once all of
	// its dependencies have been emitted.
	pending := make(map[NodeKey]int, len(g.nodes))
	for key, node := range g.nodes {
		pending[key] = len(node.Dependencies)
	}

	var queue []NodeKey
	for _, key := range g.order {
		if pending[key] == 0 {
			queue = append(queue, key)
		}
	}

	result := make([]*Node, 0, len(g.nodes))
	for len(queue) > 0 {
		key := queue[0]
		queue = queue[1:]
		node := g.nodes[key]
		result = append(result, node)

		for _, dependent := range node.Dependents {
			pending[dependent]--
			if pending[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	return result, nil
}

// CalculateDepths assigns depth levels to nodes: leaves are 0, and every
// other node is one deeper than its deepest dependency. Nodes on a cycle get -1.
func (g *DependencyGraph) CalculateDepths() {
	sorted, err := g.TopologicalSort()

	g.mu.Lock()
	defer g.mu.Unlock()

	if err != nil {
		for _, node := range g.nodes {
			node.Depth = -1
		}
		return
	}

	for _, node := range sorted {
		depth := 0
		for _, dep := range node.Dependencies {
			if d := g.nodes[dep.To].Depth + 1; d > depth {
				depth = d
			}
		}
		node.Depth = depth
	}
}

// Keys returns every node key sorted by name.
func (g *DependencyGraph) Keys() []NodeKey {
	g.mu.RLock()
	defer g.mu.RUnlock()

	keys := append([]NodeKey(nil), g.order...)
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].String() < keys[j].String()
	})
	return keys
}
