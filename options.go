package nkdi

import (
	"bytes"
	"fmt"
	"reflect"
)

// RegisterOption modifies the default behavior of a registration.
type RegisterOption interface {
	applyRegisterOption(*registerOptions)
}

type registerOptions struct {
	As            []any
	AsSelf        bool
	AsImplemented bool
	Constructors  []any
	Parent        any
}

// As is a RegisterOption that exposes the registration as one or more
// interfaces instead of its implementation type.
//
// As expects pointers to the interfaces, or their reflect.Type. The
// implementation type must satisfy every interface; otherwise registration
// fails immediately with a ConfigurationError.
//
//	b.RegisterSingleton(reflect.TypeOf(&ConsoleLogger{}), nkdi.As(new(Logger)))
//
// Combine with AsSelf to keep the implementation type resolvable as well.
func As(i ...any) RegisterOption {
	return asOption(i)
}

type asOption []any

func (o asOption) String() string {
	buf := bytes.NewBufferString("As(")
	for i, iface := range o {
		if i > 0 {
			buf.WriteString(", ")
		}
		if t, err := interfaceTypeOf(iface); err == nil {
			buf.WriteString(t.String())
		} else {
			buf.WriteString(fmt.Sprintf("%v", iface))
		}
	}
	buf.WriteString(")")
	return buf.String()
}

func (o asOption) applyRegisterOption(opts *registerOptions) {
	opts.As = append(opts.As, o...)
}

// AsSelf is a RegisterOption that also exposes the implementation type when
// As or AsImplementedInterfaces is used.
func AsSelf() RegisterOption {
	return asSelfOption{}
}

type asSelfOption struct{}

func (asSelfOption) String() string { return "AsSelf()" }

func (asSelfOption) applyRegisterOption(opts *registerOptions) {
	opts.AsSelf = true
}

// AsImplementedInterfaces is a RegisterOption that exposes the registration as
// every known interface its implementation type satisfies.
//
// Go cannot enumerate the interfaces a type satisfies, so the candidates are
// the interfaces the container has seen: those named by As, by constructor
// parameters, by injection points of registered types, and by
// Builder.DeclareInterfaces. The expansion happens when the registration is
// flushed. Empty interfaces, Disposable, Initializer and Prototype are never
// exposed this way.
func AsImplementedInterfaces() RegisterOption {
	return asImplementedOption{}
}

type asImplementedOption struct{}

func (asImplementedOption) String() string { return "AsImplementedInterfaces()" }

func (asImplementedOption) applyRegisterOption(opts *registerOptions) {
	opts.AsImplemented = true
}

// Constructors is a RegisterOption that declares constructor functions for the
// implementation type, in order. When the type is built, the first
// constructor with at least one parameter is used; if none has parameters the
// first one is used.
//
// Each constructor must have the shape func(deps...) T or func(deps...) (T, error)
// where T is assignable to the implementation type.
func Constructors(fns ...any) RegisterOption {
	return constructorsOption(fns)
}

type constructorsOption []any

func (o constructorsOption) String() string {
	return fmt.Sprintf("Constructors(%d)", len(o))
}

func (o constructorsOption) applyRegisterOption(opts *registerOptions) {
	opts.Constructors = append(opts.Constructors, o...)
}

// Parent is a RegisterOption for components. The value is passed to
// Prototype.Clone on every resolution.
func Parent(parent any) RegisterOption {
	return parentOption{parent: parent}
}

type parentOption struct {
	parent any
}

func (o parentOption) String() string {
	return fmt.Sprintf("Parent(%T)", o.parent)
}

func (o parentOption) applyRegisterOption(opts *registerOptions) {
	opts.Parent = o.parent
}

func collectRegisterOptions(opts []RegisterOption) *registerOptions {
	options := &registerOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt.applyRegisterOption(options)
		}
	}
	return options
}

// interfaceTypeOf accepts a pointer to an interface or a reflect.Type.
func interfaceTypeOf(v any) (reflect.Type, error) {
	var t reflect.Type
	switch x := v.(type) {
	case nil:
		return nil, ErrServiceTypeNil
	case reflect.Type:
		t = x
	default:
		pt := reflect.TypeOf(v)
		if pt.Kind() != reflect.Pointer {
			return nil, fmt.Errorf("%w: As expects a pointer to an interface, got %s", ErrNotInterface, pt)
		}
		t = pt.Elem()
	}

	if t.Kind() != reflect.Interface {
		return nil, fmt.Errorf("%w: %s", ErrNotInterface, t)
	}
	return t, nil
}
