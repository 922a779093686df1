// Package digbridge connects an nkdi container with a go.uber.org/dig
// container, in both directions.
package digbridge

import (
	"fmt"
	"reflect"

	"github.com/nk7/nkdi"
	"go.uber.org/dig"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// Export provides each service type to d. The value is resolved from c the
// first time dig needs it; dig then caches it, so every type is exported with
// dig's singleton semantics regardless of its nkdi lifetime.
func Export(c *nkdi.Container, d *dig.Container, types ...reflect.Type) error {
	for _, t := range types {
		if err := d.Provide(exporter(c, t)); err != nil {
			return fmt.Errorf("export %s: %w", t, err)
		}
	}
	return nil
}

// ExportAll exports every service type registered in c.
func ExportAll(c *nkdi.Container, d *dig.Container) error {
	return Export(c, d, c.ServiceTypes()...)
}

// exporter builds a func() (T, error) that resolves t from c.
func exporter(c *nkdi.Container, t reflect.Type) any {
	fnType := reflect.FuncOf(nil, []reflect.Type{t, errorType}, false)

	fn := reflect.MakeFunc(fnType, func([]reflect.Value) []reflect.Value {
		out := reflect.New(t).Elem()
		errOut := reflect.New(errorType).Elem()

		instance, err := c.Resolve(t)
		if err != nil {
			errOut.Set(reflect.ValueOf(err))
			return []reflect.Value{out, errOut}
		}
		if instance != nil {
			out.Set(reflect.ValueOf(instance))
		}
		return []reflect.Value{out, errOut}
	})

	return fn.Interface()
}

// Import registers T in b as a singleton factory that invokes d. dig builds
// T at most once, so a Transient or Scoped import could not hand out distinct
// instances; any lifetime other than Singleton is a LifetimeError.
func Import[T any](b *nkdi.Builder, d *dig.Container, lifetime nkdi.Lifetime, opts ...nkdi.RegisterOption) (*nkdi.Registration, error) {
	if lifetime != nkdi.Singleton {
		return nil, nkdi.LifetimeError{Value: lifetime}
	}
	return nkdi.RegisterFactory(b, lifetime, func() (T, error) {
		var out T
		err := d.Invoke(func(v T) {
			out = v
		})
		return out, err
	}, opts...)
}
