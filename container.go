package nkdi

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Resolver resolves services. The container registers itself under this
// interface, so services and factories can depend on it.
type Resolver interface {
	// Resolve returns the instance for serviceType, building it if needed.
	Resolve(serviceType reflect.Type) (any, error)

	// ResolveInto runs member injection on an instance the caller owns.
	ResolveInto(instance any) error
}

var _ Resolver = (*Container)(nil)

// Container owns the descriptor store and resolves services from it.
// Create one with Builder.Build.
type Container struct {
	id        string
	logger    *slog.Logger
	options   Options
	builder   *Builder
	activator *activator
	store     *store
	events    *Events
}

func newContainer(b *Builder, options Options) *Container {
	id := uuid.NewString()
	logger := options.Logger.With("container_id", id)
	b.activator.logger = logger

	return &Container{
		id:        id,
		logger:    logger,
		options:   options,
		builder:   b,
		activator: b.activator,
		store:     newStore(),
		events:    NewEvents(),
	}
}

// ID returns the unique identifier of the container.
func (c *Container) ID() string {
	return c.id
}

// Events returns the lifecycle notification hub. The container never
// publishes on it; the host does.
func (c *Container) Events() *Events {
	return c.events
}

// flush moves pending registrations into the main scope. It is a no-op when
// nothing is pending.
func (c *Container) flush() error {
	if !c.builder.hasPending() {
		return nil
	}

	bindings := c.builder.drain()
	if len(bindings) == 0 {
		return nil
	}

	if err := c.store.insert(bindings); err != nil {
		return err
	}

	c.logger.Debug("registrations flushed", "bindings", len(bindings))
	return nil
}

// Resolve returns the instance registered for serviceType.
//
// Singletons are built once and cached in the main scope. Scoped services are
// built once per scope, in the current scope. Transient services and
// components are built on every call.
func (c *Container) Resolve(serviceType reflect.Type) (any, error) {
	if serviceType == nil {
		return nil, ResolutionError{Cause: ErrServiceTypeNil}
	}
	if err := c.flush(); err != nil {
		return nil, err
	}

	return c.resolve(serviceType, c.newChain())
}

// ResolveInto runs member injection on instance, which must be a non-nil
// pointer when its type has injection points. Nothing is constructed,
// initialized or tracked for disposal.
func (c *Container) ResolveInto(instance any) error {
	if err := c.flush(); err != nil {
		return err
	}

	return c.injectExisting(instance, c.newChain())
}

// IsRegistered reports whether serviceType can be resolved.
func (c *Container) IsRegistered(serviceType reflect.Type) bool {
	if err := c.flush(); err != nil {
		return false
	}
	return c.store.has(serviceType)
}

// ServiceTypes returns every registered service type in registration order.
func (c *Container) ServiceTypes() []reflect.Type {
	_ = c.flush()
	return c.store.serviceTypes()
}

// ResolveRegisteredInstances runs member injection on every instance
// registered with RegisterInstance or RegisterInstanceAsSelf. Instances are
// processed concurrently on up to Options.Workers goroutines, or sequentially
// when the container is single-threaded. The first error stops scheduling
// and is returned.
func (c *Container) ResolveRegisteredInstances(ctx context.Context) error {
	if err := c.flush(); err != nil {
		return err
	}

	instances := c.registeredInstances()

	if c.options.SingleThreaded || len(instances) < 2 {
		for _, instance := range instances {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := c.injectExisting(instance, c.newChain()); err != nil {
				return err
			}
		}
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.options.Workers)

	for _, instance := range instances {
		instance := instance
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return c.injectExisting(instance, c.newChain())
		})
	}

	return g.Wait()
}

// registeredInstances returns each host-owned instance of the main scope once.
func (c *Container) registeredInstances() []any {
	seen := make(map[*binding]struct{})
	var instances []any
	for _, d := range c.store.mainDescriptors() {
		if !d.binding.hostOwned() {
			continue
		}
		if _, ok := seen[d.binding]; ok {
			continue
		}
		seen[d.binding] = struct{}{}
		instances = append(instances, d.binding.instance)
	}
	return instances
}

// Release closes and removes the main-scope entry for serviceType when it
// holds an instance. The other service types exposed by the same
// registration share that instance and are removed with it. It is a no-op
// when the type is not registered or was never built.
func (c *Container) Release(serviceType reflect.Type) error {
	if err := c.flush(); err != nil {
		return err
	}

	c.store.mu.Lock()
	main := c.store.main()
	d, ok := main.entries[serviceType]
	if !ok || !d.ready {
		c.store.mu.Unlock()
		return nil
	}

	var disposer Disposable
	for _, sibling := range main.descriptors() {
		if sibling.binding != d.binding {
			continue
		}
		if detached := sibling.detach(); detached != nil {
			disposer = detached
		}
		main.remove(sibling.serviceType)
	}
	c.store.mu.Unlock()

	if disposer == nil {
		return nil
	}
	if err := disposer.Close(); err != nil {
		return DisposalError{Context: "service", Errors: []error{fmt.Errorf("%s: %w", formatType(serviceType), err)}}
	}
	return nil
}

// ReleaseAll closes every instance the container built, in every scope,
// newest scope first and in reverse build order within a scope, then empties
// every scope table. Instances supplied by the host are not closed. Calling
// it again closes nothing.
func (c *Container) ReleaseAll() error {
	var pending []pendingClose

	c.store.mu.Lock()
	for _, id := range c.store.scopeIDs() {
		if table, ok := c.store.table(id); ok {
			pending = append(pending, table.release()...)
		}
	}
	c.store.mu.Unlock()

	errs := closeAll(pending)
	c.logger.Debug("container released", "disposed", len(pending))

	if len(errs) > 0 {
		return DisposalError{Context: "container", Errors: errs}
	}
	return nil
}

// Resolve resolves a service of type T.
//
// Example:
//
//	logger, err := nkdi.Resolve[Logger](container)
func Resolve[T any](r Resolver) (T, error) {
	var zero T

	if r == nil {
		return zero, ResolutionError{ServiceType: typeOf[T](), Cause: ErrServiceNotFound}
	}

	serviceType := typeOf[T]()
	service, err := r.Resolve(serviceType)
	if err != nil {
		return zero, err
	}
	if service == nil {
		return zero, nil
	}

	result, ok := service.(T)
	if !ok {
		return zero, TypeMismatchError{
			Expected: serviceType,
			Actual:   reflect.TypeOf(service),
			Context:  "type assertion",
		}
	}

	return result, nil
}

// MustResolve resolves a service of type T or panics.
func MustResolve[T any](r Resolver) T {
	service, err := Resolve[T](r)
	if err != nil {
		panic(fmt.Sprintf("failed to resolve service: %v", err))
	}

	return service
}
