package nkdi

import (
	"reflect"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
)

const mainScope = 0

// scopeTable maps service types to descriptors for one scope.
type scopeTable struct {
	id        int
	entries   map[reflect.Type]*descriptor
	order     []reflect.Type
	lifecycle lifecycleManager
}

func newScopeTable(id int) *scopeTable {
	return &scopeTable{
		id:      id,
		entries: make(map[reflect.Type]*descriptor),
	}
}

func (t *scopeTable) insert(d *descriptor) {
	if _, exists := t.entries[d.serviceType]; !exists {
		t.order = append(t.order, d.serviceType)
	}
	t.entries[d.serviceType] = d
}

func (t *scopeTable) remove(serviceType reflect.Type) {
	d, ok := t.entries[serviceType]
	if !ok {
		return
	}
	t.lifecycle.forget(d)
	delete(t.entries, serviceType)
	if i := slices.Index(t.order, serviceType); i >= 0 {
		t.order = slices.Delete(t.order, i, i+1)
	}
}

// release detaches every tracked disposer and empties the table.
func (t *scopeTable) release() []pendingClose {
	pending := t.lifecycle.drain()
	for _, d := range t.entries {
		d.instance = nil
		d.ready = false
	}
	t.entries = make(map[reflect.Type]*descriptor)
	t.order = nil
	return pending
}

// descriptors returns the table's descriptors in insertion order.
func (t *scopeTable) descriptors() []*descriptor {
	out := make([]*descriptor, 0, len(t.order))
	for _, st := range t.order {
		out = append(out, t.entries[st])
	}
	return out
}

// store is the descriptor store: one table per scope id. The outer map is
// safe for concurrent scope creation; every table read or mutation happens
// under mu.
type store struct {
	mu      sync.RWMutex
	scopes  sync.Map // map[int]*scopeTable
	current atomic.Int64
	counter atomic.Int64
}

func newStore() *store {
	s := &store{}
	s.scopes.Store(mainScope, newScopeTable(mainScope))
	return s
}

func (s *store) table(id int) (*scopeTable, bool) {
	v, ok := s.scopes.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*scopeTable), true
}

func (s *store) main() *scopeTable {
	t, _ := s.table(mainScope)
	return t
}

// insert adds a batch of bindings to the main scope. The batch is checked as
// a whole: any exposed type that is already registered, or claimed twice
// within the batch, rejects every binding in it.
func (s *store) insert(bindings []*binding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	main := s.main()
	claimed := make(map[reflect.Type]*binding)
	for _, b := range bindings {
		for _, st := range b.interfaces {
			if _, exists := main.entries[st]; exists {
				return ConfigurationError{ServiceType: st, ImplementationType: b.implType, Cause: ErrDuplicateService}
			}
			if _, exists := claimed[st]; exists {
				return ConfigurationError{ServiceType: st, ImplementationType: b.implType, Cause: ErrDuplicateService}
			}
			claimed[st] = b
		}
	}

	for _, b := range bindings {
		for _, st := range b.interfaces {
			main.insert(newDescriptor(st, b))
		}
	}
	return nil
}

// lookup returns the main-scope descriptor for serviceType.
func (s *store) lookup(serviceType reflect.Type) (*descriptor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.main().entries[serviceType]
	return d, ok
}

// instance returns the instance held by d, if any.
func (s *store) instance(d *descriptor) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return d.instance, d.ready
}

// slot returns the descriptor that holds the instance of template in scope
// id, creating a clone there when the scope has none. In the main scope the
// template is its own slot.
func (s *store) slot(id int, template *descriptor) (*descriptor, error) {
	if id == mainScope {
		return template, nil
	}

	table, ok := s.table(id)
	if !ok {
		return nil, ScopeError{ScopeID: id, Cause: ErrScopeNotFound}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if d, ok := table.entries[template.serviceType]; ok && d.binding == template.binding {
		return d, nil
	}
	d := template.clone(template.serviceType)
	table.insert(d)
	return d, nil
}

// keep stores a freshly built instance in d, which lives in table id, and
// propagates it to the sibling service types of the binding in the same
// table that are still empty. If another caller filled d first, its
// instance wins and is returned with stored set to false.
func (s *store) keep(id int, d *descriptor, instance any, disposer Disposable) (winner any, stored bool, err error) {
	table, ok := s.table(id)
	if !ok {
		return nil, false, ScopeError{ScopeID: id, Cause: ErrScopeNotFound}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if d.ready {
		return d.instance, false, nil
	}

	d.fill(instance)
	d.disposer = disposer
	table.lifecycle.track(d)

	for _, st := range d.binding.interfaces {
		if st == d.serviceType {
			continue
		}
		sibling, ok := table.entries[st]
		if !ok || sibling.binding != d.binding {
			if id == mainScope {
				continue
			}
			sibling = d.clone(st)
			table.insert(sibling)
		}
		sibling.fill(instance)
	}
	return instance, true, nil
}

// has reports whether serviceType is registered in the main scope.
func (s *store) has(serviceType reflect.Type) bool {
	_, ok := s.lookup(serviceType)
	return ok
}

// serviceTypes returns the main-scope service types in registration order.
func (s *store) serviceTypes() []reflect.Type {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.main().order)
}

// mainDescriptors returns the main-scope descriptors in registration order.
func (s *store) mainDescriptors() []*descriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.main().descriptors()
}

// scopeIDs returns every live scope id in descending order.
func (s *store) scopeIDs() []int {
	var ids []int
	s.scopes.Range(func(key, _ any) bool {
		ids = append(ids, key.(int))
		return true
	})
	sort.Sort(sort.Reverse(sort.IntSlice(ids)))
	return ids
}
