package nkdi

import (
	"fmt"
	"reflect"

	"github.com/nk7/nkdi/internal/graph"
)

// chain is the state of one top-level resolution: the scope it targets and
// the activation tokens currently being built. A token seen twice is a cycle.
// The chain is discarded when the outermost call returns.
type chain struct {
	scope  int
	tokens []any
	path   []reflect.Type
}

func (c *Container) newChain() *chain {
	return &chain{scope: c.CurrentScope()}
}

// enter pushes the activation token for serviceType, failing when the token
// is already on the chain.
func (ch *chain) enter(token any, serviceType reflect.Type) error {
	for i, seen := range ch.tokens {
		if seen != token {
			continue
		}
		path := make([]graph.NodeKey, 0, len(ch.path)-i)
		for _, t := range ch.path[i:] {
			path = append(path, graph.NodeKey{Type: t})
		}
		return CircularDependencyError{Node: graph.NodeKey{Type: serviceType}, Path: path}
	}

	ch.tokens = append(ch.tokens, token)
	ch.path = append(ch.path, serviceType)
	return nil
}

func (ch *chain) leave() {
	ch.tokens = ch.tokens[:len(ch.tokens)-1]
	ch.path = ch.path[:len(ch.path)-1]
}

// resolve looks serviceType up in the main scope and applies its lifetime.
func (c *Container) resolve(serviceType reflect.Type, ch *chain) (any, error) {
	d, ok := c.store.lookup(serviceType)
	if !ok {
		return nil, ResolutionError{ServiceType: serviceType, Cause: ErrServiceNotFound}
	}

	if d.binding.source == sourcePrototype {
		return c.resolveComponent(d, ch)
	}

	switch d.binding.lifetime {
	case Singleton:
		return c.resolveIn(mainScope, d, ch)
	case Scoped:
		return c.resolveIn(ch.scope, d, ch)
	default:
		instance, _, err := c.build(d, ch)
		return instance, err
	}
}

// resolveIn returns the instance held for template in scope id, building and
// storing it on first use.
func (c *Container) resolveIn(id int, template *descriptor, ch *chain) (any, error) {
	slot, err := c.store.slot(id, template)
	if err != nil {
		return nil, err
	}
	if instance, ok := c.store.instance(slot); ok {
		return instance, nil
	}

	instance, disposer, err := c.build(template, ch)
	if err != nil {
		return nil, err
	}

	winner, stored, err := c.store.keep(id, slot, instance, disposer)
	if err != nil {
		return nil, err
	}
	if !stored && disposer != nil {
		if err := disposer.Close(); err != nil {
			c.logger.Warn("failed to close discarded instance",
				"type", formatType(template.serviceType), "error", err)
		}
	}
	return winner, nil
}

// resolveComponent clones the prototype of d and injects the clone.
func (c *Container) resolveComponent(d *descriptor, ch *chain) (any, error) {
	b := d.binding
	if err := ch.enter(b, d.serviceType); err != nil {
		return nil, err
	}
	defer ch.leave()

	clone := b.prototype.Clone(b.parent)
	if isNil(clone) {
		return nil, ResolutionError{ServiceType: d.serviceType, Cause: ErrMissingPrototype}
	}

	return c.inject(d.serviceType, reflect.ValueOf(clone), ch)
}

// build produces a new, fully injected instance for d. The disposer is only
// returned for lifetimes the container keeps.
func (c *Container) build(d *descriptor, ch *chain) (any, Disposable, error) {
	b := d.binding
	if b.source == sourceInstance {
		return b.instance, nil, nil
	}

	ctor := b.ctor
	if b.source == sourceType {
		ctor = c.activator.selectConstructor(b.implType)
	}

	var token any = b
	if ctor != nil {
		token = ctor
	}
	if err := ch.enter(token, d.serviceType); err != nil {
		return nil, nil, err
	}
	defer ch.leave()

	v, err := c.activate(d, ctor, ch)
	if err != nil {
		return nil, nil, err
	}

	instance, err := c.inject(d.serviceType, v, ch)
	if err != nil {
		return nil, nil, err
	}

	var disposer Disposable
	if b.lifetime != Transient {
		disposer, _ = instance.(Disposable)
	}

	if initializer, ok := instance.(Initializer); ok {
		if err := initializer.Initialize(); err != nil {
			return nil, nil, ResolutionError{ServiceType: d.serviceType, Cause: fmt.Errorf("initialize: %w", err)}
		}
	}

	return instance, disposer, nil
}

// activate creates the raw instance: factory, constructor, or default construction.
func (c *Container) activate(d *descriptor, ctor *constructor, ch *chain) (reflect.Value, error) {
	b := d.binding

	if b.source == sourceFactory {
		instance, err := b.factory()
		if err != nil {
			return reflect.Value{}, ResolutionError{ServiceType: d.serviceType, Cause: err}
		}
		if isNil(instance) {
			return reflect.Value{}, ResolutionError{ServiceType: d.serviceType, Cause: ErrInstanceNil}
		}
		if actual := reflect.TypeOf(instance); !actual.AssignableTo(b.implType) {
			return reflect.Value{}, ResolutionError{
				ServiceType: d.serviceType,
				Cause:       TypeMismatchError{Expected: b.implType, Actual: actual, Context: "factory result"},
			}
		}
		return reflect.ValueOf(instance), nil
	}

	if ctor == nil {
		v, err := c.activator.instantiate(b.implType)
		if err != nil {
			return reflect.Value{}, ResolutionError{ServiceType: d.serviceType, Cause: err}
		}
		return v, nil
	}

	args := make([]reflect.Value, len(ctor.sig.params))
	for i, param := range ctor.sig.params {
		arg, err := c.resolveValue(param, ch)
		if err != nil {
			return reflect.Value{}, err
		}
		args[i] = arg
	}

	v, err := ctor.call(args)
	if err != nil {
		return reflect.Value{}, ResolutionError{ServiceType: d.serviceType, Cause: err}
	}
	if v.Kind() == reflect.Interface {
		v = v.Elem()
	}
	if !v.IsValid() || isNil(v.Interface()) {
		return reflect.Value{}, ResolutionError{ServiceType: d.serviceType, Cause: ErrInstanceNil}
	}
	return v, nil
}

// resolveValue resolves t and converts the instance to a value assignable to t.
// Sub-resolution errors are returned unchanged.
func (c *Container) resolveValue(t reflect.Type, ch *chain) (reflect.Value, error) {
	instance, err := c.resolve(t, ch)
	if err != nil {
		return reflect.Value{}, err
	}
	if instance == nil {
		return reflect.Zero(t), nil
	}

	v := reflect.ValueOf(instance)
	if !v.Type().AssignableTo(t) {
		return reflect.Value{}, ResolutionError{
			ServiceType: t,
			Cause:       TypeMismatchError{Expected: t, Actual: v.Type(), Context: "resolved value"},
		}
	}
	return v, nil
}

// inject runs the injection pipeline on v and returns the resulting instance.
// Values that are not pointers are injected through an addressable copy.
func (c *Container) inject(serviceType reflect.Type, v reflect.Value, ch *chain) (any, error) {
	plan, err := c.activator.plan(v.Type())
	if err != nil {
		return nil, ResolutionError{ServiceType: serviceType, Cause: err}
	}
	if len(plan.points) == 0 {
		return v.Interface(), nil
	}

	var target reflect.Value
	byValue := false
	switch {
	case v.Kind() == reflect.Pointer:
		target = v
	case v.CanAddr():
		target = v.Addr()
		byValue = true
	default:
		target = reflect.New(v.Type())
		target.Elem().Set(v)
		byValue = true
	}

	if err := c.applyPlan(serviceType, plan, target, ch); err != nil {
		return nil, err
	}

	if byValue {
		return target.Elem().Interface(), nil
	}
	return target.Interface(), nil
}

// applyPlan resolves and applies every injection point of plan to target,
// which must be a non-nil pointer.
func (c *Container) applyPlan(serviceType reflect.Type, plan *injectionPlan, target reflect.Value, ch *chain) error {
	for _, point := range plan.points {
		if point.optional && !c.store.has(point.deps[0]) {
			continue
		}

		args := make([]reflect.Value, len(point.deps))
		for i, dep := range point.deps {
			arg, err := c.resolveValue(dep, ch)
			if err != nil {
				return err
			}
			args[i] = arg
		}

		if err := point.apply(target, args); err != nil {
			return ResolutionError{ServiceType: serviceType, Cause: fmt.Errorf("%s: %w", point.name, err)}
		}
	}
	return nil
}

// injectExisting runs the injection pipeline against an instance the caller owns.
func (c *Container) injectExisting(instance any, ch *chain) error {
	if instance == nil {
		return ResolutionError{Cause: ErrNotInjectable}
	}

	v := reflect.ValueOf(instance)
	plan, err := c.activator.plan(v.Type())
	if err != nil {
		return ResolutionError{ServiceType: v.Type(), Cause: err}
	}
	if len(plan.points) == 0 {
		return nil
	}
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return ResolutionError{ServiceType: v.Type(), Cause: ErrNotInjectable}
	}

	return c.applyPlan(v.Type(), plan, v, ch)
}
