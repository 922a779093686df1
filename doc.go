// Package nkdi is a scoped inversion-of-control container: a registry of
// service descriptions paired with a resolver that builds, wires, caches and
// tears down an object graph on demand.
//
// # Overview
//
//   - Three lifetimes: Singleton, Transient and Scoped
//   - Integer scopes with a switchable current scope; scope 0 is the main scope
//   - Constructor injection with a declared constructor table per type
//   - Member injection through the inject struct tag and Inject methods
//   - Prototype components cloned on every resolution
//   - Circular dependency detection on every resolution chain
//   - Deterministic disposal: reverse build order, at most once per instance
//
// # Basic Usage
//
//	b := nkdi.NewBuilder()
//	b.RegisterSingleton(reflect.TypeOf(&ConsoleLogger{}), nkdi.As(new(Logger)))
//	b.Provide(nkdi.Transient, NewService)
//
//	c, err := b.Build()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer c.ReleaseAll()
//
//	svc, err := nkdi.Resolve[*Service](c)
//
// # Registration
//
// A registration has exactly one source: a type (default construction or
// declared Constructors), a constructor function (Provide), a host-owned
// instance (RegisterInstance, RegisterInstanceAsSelf), a prototype
// (RegisterComponent) or a supplier (RegisterFactory, RegisterByFactory).
// By default a registration is exposed under its implementation type; As
// replaces that with interfaces, AsSelf adds the implementation type back and
// AsImplementedInterfaces exposes every known interface the type satisfies.
//
// Registrations are flushed into the main scope on the first access after
// they were made. Exposing the same service type twice is a
// ConfigurationError at that point.
//
// # Constructors
//
// Constructors declared with the Constructors option are tried in order: the
// first one with parameters wins, otherwise the first one. A type without
// constructors is default-constructed and a warning is logged once.
//
// # Member Injection
//
//	type Handler struct {
//	    Log    Logger `inject:""`
//	    Cache  Cache  `inject:"optional"`
//	    store  Store  `inject:"setter"` // calls SetStore
//	}
//
//	func (h *Handler) InjectClock(clock Clock) error { ... }
//
// Fields are injected first, then Inject methods, then setter fields.
// Unexported fields are supported.
//
// # Scopes
//
//	id := c.CreateScope()          // 1, now current
//	session, _ := nkdi.Resolve[*Session](c)
//	_ = c.ReleaseScope(id)         // closes scoped instances built in 1
//
// # Disposal
//
// Instances implementing Disposable are closed when their scope is released,
// when Release is called for their type, or on ReleaseAll. Transient
// instances and host-owned instances are never closed.
package nkdi
