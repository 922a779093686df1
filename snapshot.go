package nkdi

import (
	"encoding/json"
	"io"
	"reflect"

	"gopkg.in/yaml.v3"
)

// Snapshot is a point-in-time view of the scope tables, for diagnostics.
type Snapshot struct {
	ContainerID  string          `yaml:"container_id" json:"container_id"`
	CurrentScope int             `yaml:"current_scope" json:"current_scope"`
	Scopes       []ScopeSnapshot `yaml:"scopes" json:"scopes"`
}

// ScopeSnapshot lists the descriptors of one scope.
type ScopeSnapshot struct {
	ID       int               `yaml:"id" json:"id"`
	Services []ServiceSnapshot `yaml:"services" json:"services"`
}

// ServiceSnapshot describes one descriptor.
type ServiceSnapshot struct {
	ServiceType        string   `yaml:"service_type" json:"service_type"`
	ImplementationType string   `yaml:"implementation_type" json:"implementation_type"`
	Lifetime           Lifetime `yaml:"lifetime" json:"lifetime"`
	Source             string   `yaml:"source" json:"source"`
	Ready              bool     `yaml:"ready" json:"ready"`
	Disposable         bool     `yaml:"disposable,omitempty" json:"disposable,omitempty"`
	Interfaces         []string `yaml:"interfaces,omitempty" json:"interfaces,omitempty"`
}

// Snapshot captures the scope tables, scopes in ascending id order and
// services in insertion order.
func (c *Container) Snapshot() (*Snapshot, error) {
	if err := c.flush(); err != nil {
		return nil, err
	}

	snap := &Snapshot{
		ContainerID:  c.id,
		CurrentScope: c.CurrentScope(),
	}

	ids := c.store.scopeIDs()

	c.store.mu.RLock()
	defer c.store.mu.RUnlock()

	for i := len(ids) - 1; i >= 0; i-- {
		table, ok := c.store.table(ids[i])
		if !ok {
			continue
		}

		scope := ScopeSnapshot{ID: table.id, Services: []ServiceSnapshot{}}
		for _, d := range table.descriptors() {
			scope.Services = append(scope.Services, ServiceSnapshot{
				ServiceType:        d.serviceType.String(),
				ImplementationType: d.binding.implType.String(),
				Lifetime:           d.binding.lifetime,
				Source:             d.binding.source.String(),
				Ready:              d.ready,
				Disposable:         d.disposer != nil,
				Interfaces:         typeNames(d.binding.interfaces),
			})
		}
		snap.Scopes = append(snap.Scopes, scope)
	}

	return snap, nil
}

// Scope returns the snapshot of scope id, or nil.
func (s *Snapshot) Scope(id int) *ScopeSnapshot {
	for i := range s.Scopes {
		if s.Scopes[i].ID == id {
			return &s.Scopes[i]
		}
	}
	return nil
}

// WriteYAML encodes the snapshot as YAML.
func (s *Snapshot) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return err
	}
	return enc.Close()
}

// WriteJSON encodes the snapshot as indented JSON.
func (s *Snapshot) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

func typeNames(types []reflect.Type) []string {
	if len(types) < 2 {
		return nil
	}
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = t.String()
	}
	return names
}
