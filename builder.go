package nkdi

import (
	"reflect"
	"sync"
	"sync/atomic"
)

// Builder collects registrations and builds a Container.
//
// Registrations are buffered in insertion order and flushed into the main
// scope on the first container access after they were made. The Builder stays
// usable after Build: later registrations are flushed on the next access.
type Builder struct {
	mu        sync.Mutex
	pending   []*Registration
	queued    atomic.Int32
	universe  []reflect.Type
	known     map[reflect.Type]struct{}
	activator *activator
	container *Container
}

// NewBuilder creates an empty Builder.
func NewBuilder() *Builder {
	return &Builder{
		known:     make(map[reflect.Type]struct{}),
		activator: newActivator(),
	}
}

// RegisterSingleton registers implType with the Singleton lifetime.
func (b *Builder) RegisterSingleton(implType reflect.Type, opts ...RegisterOption) (*Registration, error) {
	return b.Register(Singleton, implType, opts...)
}

// RegisterTransient registers implType with the Transient lifetime.
func (b *Builder) RegisterTransient(implType reflect.Type, opts ...RegisterOption) (*Registration, error) {
	return b.Register(Transient, implType, opts...)
}

// RegisterScoped registers implType with the Scoped lifetime.
func (b *Builder) RegisterScoped(implType reflect.Type, opts ...RegisterOption) (*Registration, error) {
	return b.Register(Scoped, implType, opts...)
}

// Register registers implType with the given lifetime. The type is built with
// the constructors declared through the Constructors option, or
// default-constructed when there are none.
func (b *Builder) Register(lifetime Lifetime, implType reflect.Type, opts ...RegisterOption) (*Registration, error) {
	if !lifetime.IsValid() {
		return nil, LifetimeError{Value: lifetime}
	}
	if implType == nil {
		return nil, ConfigurationError{Cause: ErrServiceTypeNil}
	}

	return b.add(&Registration{
		implType: implType,
		lifetime: lifetime,
		source:   sourceType,
	}, opts)
}

// Provide registers a constructor function. The implementation type is the
// constructor's first result; its parameters are resolved from the container.
//
//	b.Provide(nkdi.Singleton, func(log Logger) (*Repository, error) { ... })
func (b *Builder) Provide(lifetime Lifetime, ctor any, opts ...RegisterOption) (*Registration, error) {
	if !lifetime.IsValid() {
		return nil, LifetimeError{Value: lifetime}
	}

	compiled, err := b.activator.compile(ctor)
	if err != nil {
		return nil, err
	}

	return b.add(&Registration{
		implType: compiled.sig.result,
		lifetime: lifetime,
		source:   sourceConstructor,
		ctor:     compiled,
	}, opts)
}

// RegisterInstanceAsSelf registers a value owned by the host as a Singleton
// exposed under its dynamic type. The container never closes it.
func (b *Builder) RegisterInstanceAsSelf(instance any, opts ...RegisterOption) (*Registration, error) {
	if isNil(instance) {
		return nil, ConfigurationError{Cause: ErrInstanceNil}
	}

	opts = append(opts, AsSelf())
	return b.add(&Registration{
		implType: reflect.TypeOf(instance),
		lifetime: Singleton,
		source:   sourceInstance,
		instance: instance,
	}, opts)
}

// RegisterInstance registers a value owned by the host as a Singleton exposed
// as T. The container never closes it.
func RegisterInstance[T any](b *Builder, instance T, opts ...RegisterOption) (*Registration, error) {
	if isNil(instance) {
		return nil, ConfigurationError{ServiceType: typeOf[T](), Cause: ErrInstanceNil}
	}

	if t := typeOf[T](); t.Kind() == reflect.Interface {
		opts = append([]RegisterOption{As(t)}, opts...)
	}

	return b.add(&Registration{
		implType: reflect.TypeOf(instance),
		lifetime: Singleton,
		source:   sourceInstance,
		instance: instance,
	}, opts)
}

// RegisterComponent registers a prototype that is cloned on every resolution.
// Components are Transient; the clone receives member injection but is never
// cached or disposed by the container. Use Parent to pass a value to Clone.
func (b *Builder) RegisterComponent(template Prototype, opts ...RegisterOption) (*Registration, error) {
	if isNil(template) {
		return nil, ConfigurationError{Cause: ErrPrototypeNil}
	}

	return b.add(&Registration{
		implType:  reflect.TypeOf(template),
		lifetime:  Transient,
		source:    sourcePrototype,
		prototype: template,
	}, opts)
}

// RegisterByFactory registers a supplier that produces values of implType.
func (b *Builder) RegisterByFactory(implType reflect.Type, supplier func() (any, error), lifetime Lifetime, opts ...RegisterOption) (*Registration, error) {
	if !lifetime.IsValid() {
		return nil, LifetimeError{Value: lifetime}
	}
	if implType == nil {
		return nil, ConfigurationError{Cause: ErrServiceTypeNil}
	}
	if supplier == nil {
		return nil, ConfigurationError{ImplementationType: implType, Cause: ErrFactoryNil}
	}

	return b.add(&Registration{
		implType: implType,
		lifetime: lifetime,
		source:   sourceFactory,
		factory:  supplier,
	}, opts)
}

// RegisterFactory registers a typed supplier for T.
func RegisterFactory[T any](b *Builder, lifetime Lifetime, fn func() (T, error), opts ...RegisterOption) (*Registration, error) {
	if fn == nil {
		return nil, ConfigurationError{ImplementationType: typeOf[T](), Cause: ErrFactoryNil}
	}

	return b.RegisterByFactory(typeOf[T](), func() (any, error) {
		return fn()
	}, lifetime, opts...)
}

// DeclareInterfaces adds interfaces to the set considered by
// AsImplementedInterfaces. Interfaces are passed as pointers or reflect.Type values.
func (b *Builder) DeclareInterfaces(ifaces ...any) error {
	types := make([]reflect.Type, 0, len(ifaces))
	for _, iface := range ifaces {
		t, err := interfaceTypeOf(iface)
		if err != nil {
			return ConfigurationError{Cause: err}
		}
		types = append(types, t)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range types {
		b.learn(t)
	}
	return nil
}

// Build creates the Container and flushes every pending registration into
// the main scope. The container registers itself as Resolver, ScopeService,
// ServiceGetter and *Container, and its lifecycle hub as *Events.
func (b *Builder) Build(opts ...Option) (*Container, error) {
	b.mu.Lock()
	built := b.container != nil
	b.mu.Unlock()
	if built {
		return nil, ConfigurationError{Cause: ErrBuilderAlreadyBuilt}
	}

	c := newContainer(b, newOptions(opts...))

	if _, err := RegisterInstance[Resolver](b, c, As(new(ScopeService), new(ServiceGetter)), AsSelf()); err != nil {
		return nil, err
	}
	if _, err := b.RegisterInstanceAsSelf(c.events); err != nil {
		return nil, err
	}

	b.mu.Lock()
	b.container = c
	b.mu.Unlock()

	if err := c.flush(); err != nil {
		return nil, err
	}

	c.logger.Debug("container built", "services", len(c.ServiceTypes()))
	return c, nil
}

func (b *Builder) add(r *Registration, opts []RegisterOption) (*Registration, error) {
	options := collectRegisterOptions(opts)
	r.builder = b

	if options.Parent != nil {
		if r.source != sourcePrototype {
			return nil, ConfigurationError{ImplementationType: r.implType, Cause: ErrParentWithoutComponent}
		}
		r.parent = options.Parent
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := r.addInterfaces(options.As); err != nil {
		return nil, err
	}
	r.self = options.AsSelf
	r.implemented = options.AsImplemented

	if len(options.Constructors) > 0 {
		if r.source != sourceType {
			return nil, ConfigurationError{ImplementationType: r.implType, Cause: ErrInvalidConstructor}
		}
		if err := b.activator.declare(r.implType, options.Constructors...); err != nil {
			return nil, err
		}
	}

	b.pending = append(b.pending, r)
	b.queued.Add(1)
	return r, nil
}

// learn adds an interface to the AsImplementedInterfaces universe.
// The builder lock must be held.
func (b *Builder) learn(t reflect.Type) {
	if t == nil || t.Kind() != reflect.Interface {
		return
	}
	if _, ok := b.known[t]; ok {
		return
	}
	b.known[t] = struct{}{}
	b.universe = append(b.universe, t)
}

// learnFrom adds the interfaces a registration depends on to the universe.
// The builder lock must be held.
func (b *Builder) learnFrom(r *Registration) {
	var ctors []*constructor
	switch r.source {
	case sourceConstructor:
		ctors = []*constructor{r.ctor}
	case sourceType:
		ctors = b.activator.constructors(r.implType)
	}
	for _, ctor := range ctors {
		for _, p := range ctor.sig.params {
			b.learn(p)
		}
	}

	runtimeType := r.implType
	switch r.source {
	case sourceInstance:
		runtimeType = reflect.TypeOf(r.instance)
	case sourcePrototype:
		runtimeType = reflect.TypeOf(r.prototype)
	}
	if runtimeType.Kind() == reflect.Interface {
		return
	}

	if p, err := b.activator.plan(runtimeType); err == nil {
		for _, point := range p.points {
			for _, dep := range point.deps {
				b.learn(dep)
			}
		}
	}
}

// hasPending reports whether registrations are waiting to be flushed.
func (b *Builder) hasPending() bool {
	return b.queued.Load() > 0
}

// drain takes the pending registrations and returns their bindings with the
// exposed types resolved. The registrations are closed for changes.
func (b *Builder) drain() []*binding {
	b.mu.Lock()
	defer b.mu.Unlock()

	regs := b.pending
	b.pending = nil
	b.queued.Store(0)

	for _, r := range regs {
		b.learnFrom(r)
	}

	bindings := make([]*binding, 0, len(regs))
	for _, r := range regs {
		bind := r.binding()
		bind.interfaces = r.exposed(b.universe)
		r.flushed = true
		bindings = append(bindings, bind)
	}
	return bindings
}

func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}
