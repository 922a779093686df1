package nkdi

import (
	"reflect"
)

// ServiceFactory defers the resolution of T until Get is called.
type ServiceFactory[T any] interface {
	Get() (T, error)
}

// ServiceGetter resolves services by type without exposing the rest of the
// container.
type ServiceGetter interface {
	GetService(serviceType reflect.Type) (any, error)
}

// Factory forwards to a Resolver. It holds no state of its own.
type Factory[T any] struct {
	resolver Resolver
}

var (
	_ ServiceFactory[any] = (*Factory[any])(nil)
	_ ServiceGetter       = (*Factory[any])(nil)
	_ ServiceGetter       = (*Container)(nil)
)

// NewFactory creates a Factory that resolves through r.
func NewFactory[T any](r Resolver) *Factory[T] {
	return &Factory[T]{resolver: r}
}

// Get resolves T.
func (f *Factory[T]) Get() (T, error) {
	return Resolve[T](f.resolver)
}

// GetService resolves serviceType.
func (f *Factory[T]) GetService(serviceType reflect.Type) (any, error) {
	return f.resolver.Resolve(serviceType)
}

// RegisterFactoryService registers a Singleton *Factory[T] exposed as
// ServiceFactory[T] and as itself, unless opts say otherwise.
//
//	nkdi.RegisterFactoryService[*Session](b)
//	...
//	type Handler struct {
//	    Sessions nkdi.ServiceFactory[*Session] `inject:""`
//	}
func RegisterFactoryService[T any](b *Builder, opts ...RegisterOption) (*Registration, error) {
	if len(opts) == 0 {
		opts = []RegisterOption{As(new(ServiceFactory[T])), AsSelf()}
	}
	return b.Provide(Singleton, NewFactory[T], opts...)
}

// GetService resolves serviceType. The container is registered as
// ServiceGetter so services can depend on this narrow view.
func (c *Container) GetService(serviceType reflect.Type) (any, error) {
	return c.Resolve(serviceType)
}
