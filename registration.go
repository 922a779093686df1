package nkdi

import (
	"reflect"
	"slices"
)

// Registration is the handle returned by the Builder for one binding.
// It can be refined with As, AsSelf and AsImplementedInterfaces until the
// binding is flushed into the container.
type Registration struct {
	builder *Builder

	implType reflect.Type
	lifetime Lifetime
	source   sourceKind

	interfaces  []reflect.Type
	self        bool
	implemented bool

	ctor      *constructor
	instance  any
	prototype Prototype
	parent    any
	factory   func() (any, error)

	flushed bool
}

// ImplementationType returns the type the registration builds.
func (r *Registration) ImplementationType() reflect.Type {
	return r.implType
}

// Lifetime returns the lifetime of the registration.
func (r *Registration) Lifetime() Lifetime {
	return r.lifetime
}

// Interfaces returns the interfaces added with As so far.
func (r *Registration) Interfaces() []reflect.Type {
	r.builder.mu.Lock()
	defer r.builder.mu.Unlock()
	return slices.Clone(r.interfaces)
}

// As exposes the registration as the given interfaces, passed as pointers to
// interfaces or as reflect.Type values. Interfaces already exposed are
// ignored. An interface the implementation does not satisfy is reported
// immediately and nothing is added.
func (r *Registration) As(ifaces ...any) error {
	r.builder.mu.Lock()
	defer r.builder.mu.Unlock()

	if err := r.checkOpen(); err != nil {
		return err
	}
	return r.addInterfaces(ifaces)
}

// AsSelf keeps the implementation type resolvable alongside any interfaces.
func (r *Registration) AsSelf() error {
	r.builder.mu.Lock()
	defer r.builder.mu.Unlock()

	if err := r.checkOpen(); err != nil {
		return err
	}
	r.self = true
	return nil
}

// AsImplementedInterfaces exposes the registration as every known interface
// its implementation type satisfies. See the AsImplementedInterfaces option.
func (r *Registration) AsImplementedInterfaces() error {
	r.builder.mu.Lock()
	defer r.builder.mu.Unlock()

	if err := r.checkOpen(); err != nil {
		return err
	}
	r.implemented = true
	return nil
}

func (r *Registration) checkOpen() error {
	if r.flushed {
		return ConfigurationError{ImplementationType: r.implType, Cause: ErrRegistrationFlushed}
	}
	return nil
}

// addInterfaces validates every interface before adding any. The builder
// lock must be held.
func (r *Registration) addInterfaces(ifaces []any) error {
	types := make([]reflect.Type, 0, len(ifaces))
	for _, iface := range ifaces {
		t, err := interfaceTypeOf(iface)
		if err != nil {
			return ConfigurationError{ImplementationType: r.implType, Cause: err}
		}
		if !r.implType.Implements(t) {
			return ConfigurationError{ServiceType: t, ImplementationType: r.implType, Cause: ErrInterfaceNotSatisfied}
		}
		types = append(types, t)
	}

	for _, t := range types {
		r.builder.learn(t)
		if !slices.Contains(r.interfaces, t) {
			r.interfaces = append(r.interfaces, t)
		}
	}
	return nil
}

// exposed returns the service types the registration is flushed under.
// The builder lock must be held.
func (r *Registration) exposed(universe []reflect.Type) []reflect.Type {
	types := slices.Clone(r.interfaces)

	if r.implemented {
		for _, t := range universe {
			if isExpandable(t) && r.implType != t && r.implType.Implements(t) && !slices.Contains(types, t) {
				types = append(types, t)
			}
		}
	}

	if r.self || len(types) == 0 {
		if !slices.Contains(types, r.implType) {
			types = append(types, r.implType)
		}
	}
	return types
}

var (
	disposableType  = reflect.TypeOf((*Disposable)(nil)).Elem()
	initializerType = reflect.TypeOf((*Initializer)(nil)).Elem()
	prototypeType   = reflect.TypeOf((*Prototype)(nil)).Elem()
)

// isExpandable reports whether AsImplementedInterfaces may expose t.
func isExpandable(t reflect.Type) bool {
	if t.Kind() != reflect.Interface || t.NumMethod() == 0 {
		return false
	}
	return t != disposableType && t != initializerType && t != prototypeType
}

func (r *Registration) binding() *binding {
	return &binding{
		implType:  r.implType,
		lifetime:  r.lifetime,
		source:    r.source,
		ctor:      r.ctor,
		instance:  r.instance,
		prototype: r.prototype,
		parent:    r.parent,
		factory:   r.factory,
	}
}
