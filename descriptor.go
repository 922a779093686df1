package nkdi

import (
	"reflect"
)

// sourceKind is the way a binding produces its instance.
type sourceKind int

const (
	// sourceType constructs the implementation type with a declared
	// constructor, or with its zero value when none is declared.
	sourceType sourceKind = iota
	// sourceConstructor calls the constructor given to Provide.
	sourceConstructor
	// sourceInstance returns a value supplied by the host.
	sourceInstance
	// sourcePrototype clones a template on every resolution.
	sourcePrototype
	// sourceFactory calls a supplier function.
	sourceFactory
)

func (k sourceKind) String() string {
	switch k {
	case sourceType:
		return "type"
	case sourceConstructor:
		return "constructor"
	case sourceInstance:
		return "instance"
	case sourcePrototype:
		return "component"
	case sourceFactory:
		return "factory"
	default:
		return "unknown"
	}
}

// binding is the flushed, immutable form of a Registration. Every descriptor
// produced from it (one per exposed type, plus scoped clones) shares it.
type binding struct {
	implType   reflect.Type
	lifetime   Lifetime
	source     sourceKind
	interfaces []reflect.Type

	ctor      *constructor
	instance  any
	prototype Prototype
	parent    any
	factory   func() (any, error)
}

// hostOwned reports whether the instance belongs to the host rather than the
// container. Host-owned instances are never disposed by the container.
func (b *binding) hostOwned() bool {
	return b.source == sourceInstance
}

// descriptor binds one service type to a binding within one scope table and
// holds that table's instance slot.
type descriptor struct {
	serviceType reflect.Type
	binding     *binding

	instance any
	ready    bool
	disposer Disposable
}

func newDescriptor(serviceType reflect.Type, b *binding) *descriptor {
	d := &descriptor{
		serviceType: serviceType,
		binding:     b,
	}
	if b.source == sourceInstance {
		d.instance = b.instance
		d.ready = true
	}
	return d
}

// clone returns an empty descriptor for serviceType that shares the binding.
// The instance slot and disposer are never copied.
func (d *descriptor) clone(serviceType reflect.Type) *descriptor {
	return &descriptor{
		serviceType: serviceType,
		binding:     d.binding,
	}
}

// fill stores an instance if the slot is empty and reports whether it did.
func (d *descriptor) fill(instance any) bool {
	if d.ready {
		return false
	}
	d.instance = instance
	d.ready = true
	return true
}

// detach empties the slot and hands back the captured disposer, if any.
// A descriptor yields its disposer at most once.
func (d *descriptor) detach() Disposable {
	disposer := d.disposer
	d.disposer = nil
	d.instance = nil
	d.ready = false
	return disposer
}
