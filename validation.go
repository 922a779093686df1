package nkdi

import (
	"errors"
	"fmt"
	"io"
	"reflect"

	"github.com/nk7/nkdi/internal/graph"
)

// Graph builds the static dependency graph of the main scope. Constructor
// parameters and injection points become edges; factories are opaque and
// contribute none.
func (c *Container) Graph() (*graph.DependencyGraph, error) {
	if err := c.flush(); err != nil {
		return nil, err
	}

	g := graph.NewDependencyGraph()
	var errs []error
	for _, d := range c.store.mainDescriptors() {
		deps, err := c.dependencies(d.binding)
		if err != nil {
			errs = append(errs, ResolutionError{ServiceType: d.serviceType, Cause: err})
		}
		g.AddService(d.serviceType, d.binding.lifetime.String(), d.binding.source.String(), deps...)
	}

	return g, errors.Join(errs...)
}

// dependencies lists what building b requires.
func (c *Container) dependencies(b *binding) ([]graph.Edge, error) {
	var edges []graph.Edge

	runtimeType := b.implType
	switch b.source {
	case sourceFactory:
		return nil, nil
	case sourceInstance:
		runtimeType = reflect.TypeOf(b.instance)
	case sourcePrototype:
		runtimeType = reflect.TypeOf(b.prototype)
	case sourceConstructor:
		for _, p := range b.ctor.sig.params {
			edges = append(edges, graph.Edge{To: graph.NodeKey{Type: p}})
		}
	case sourceType:
		if ctor := c.activator.selectConstructor(b.implType); ctor != nil {
			for _, p := range ctor.sig.params {
				edges = append(edges, graph.Edge{To: graph.NodeKey{Type: p}})
			}
		}
	}

	if runtimeType.Kind() == reflect.Interface {
		return edges, nil
	}

	plan, err := c.activator.plan(runtimeType)
	if err != nil {
		return edges, err
	}
	for _, point := range plan.points {
		for _, dep := range point.deps {
			edges = append(edges, graph.Edge{To: graph.NodeKey{Type: dep}, Optional: point.optional})
		}
	}
	return edges, nil
}

// Validate checks the main scope without building anything: every required
// dependency must be registered, injection points must be well formed, and
// the type-level graph must be acyclic. All problems found are joined.
func (c *Container) Validate() error {
	g, err := c.Graph()

	var errs []error
	if err != nil {
		errs = append(errs, err)
	}
	if g == nil {
		return errors.Join(errs...)
	}

	missing := g.Missing()
	for _, key := range g.Keys() {
		for _, dep := range missing[key] {
			errs = append(errs, ResolutionError{
				ServiceType: dep.Type,
				Cause:       fmt.Errorf("%w (required by %s)", ErrServiceNotFound, formatType(key.Type)),
			})
		}
	}

	if err := g.DetectCycles(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// WriteGraphDOT writes the dependency graph in Graphviz DOT format.
func (c *Container) WriteGraphDOT(w io.Writer) error {
	g, err := c.Graph()
	if g == nil {
		return err
	}
	return graph.NewVisualizer(g).WriteDOT(w)
}

// WriteGraphText writes the dependency graph grouped by depth.
func (c *Container) WriteGraphText(w io.Writer) error {
	g, err := c.Graph()
	if g == nil {
		return err
	}
	return graph.NewVisualizer(g).WriteText(w)
}
