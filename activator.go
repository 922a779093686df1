package nkdi

import (
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"
	"unsafe"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// InjectTag is the struct tag that marks a field as an injection point.
//
//	type Service struct {
//	    Log    Logger  `inject:""`          // required field
//	    Cache  Cache   `inject:"optional"`  // left as is when Cache is not registered
//	    clock  Clock   `inject:"setter"`    // applied by calling SetClock
//	}
//
// Exported methods whose name starts with Inject, followed by an upper case
// letter or nothing, are injection points too: every parameter is resolved
// and the method is called. They may return nothing or a single error.
const InjectTag = "inject"

const injectMethodPrefix = "Inject"

// signature is the compiled shape of a constructor function type.
type signature struct {
	params       []reflect.Type
	result       reflect.Type
	returnsError bool
}

// constructor is one declared constructor function.
type constructor struct {
	fn  reflect.Value
	sig *signature
}

// call invokes the constructor with already resolved arguments.
func (c *constructor) call(args []reflect.Value) (reflect.Value, error) {
	out := c.fn.Call(args)
	if c.sig.returnsError && !out[1].IsNil() {
		return reflect.Value{}, out[1].Interface().(error)
	}
	return out[0], nil
}

type pointKind int

const (
	pointField pointKind = iota
	pointMethod
	pointProperty
)

// injectionPoint is a compiled member invoker. apply receives a pointer to the
// target and the resolved values for deps, in order.
type injectionPoint struct {
	kind     pointKind
	name     string
	deps     []reflect.Type
	optional bool
	apply    func(target reflect.Value, args []reflect.Value) error
}

// injectionPlan lists the injection points of one type, fields first, then
// Inject methods, then setter properties.
type injectionPlan struct {
	points []injectionPoint
}

type planResult struct {
	plan *injectionPlan
	err  error
}

// activator is the activation cache: compiled constructors and injection plans,
// memoized for the life of the container.
type activator struct {
	logger *slog.Logger

	mu       sync.RWMutex
	declared map[reflect.Type][]*constructor

	signatures sync.Map // map[reflect.Type]*signature, keyed by func type
	selected   sync.Map // map[reflect.Type]*constructor, nil when none declared
	plans      sync.Map // map[reflect.Type]planResult, keyed by pointer type
	warned     sync.Map // map[reflect.Type]struct{}
}

func newActivator() *activator {
	return &activator{
		logger:   slog.Default(),
		declared: make(map[reflect.Type][]*constructor),
	}
}

// compile validates fn as a constructor and returns its invoker.
// Accepted shapes are func(...) T and func(...) (T, error), not variadic.
func (a *activator) compile(fn any) (*constructor, error) {
	if fn == nil {
		return nil, ConfigurationError{Cause: ErrInvalidConstructor}
	}

	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return nil, ConfigurationError{ImplementationType: v.Type(), Cause: ErrInvalidConstructor}
	}

	t := v.Type()
	if cached, ok := a.signatures.Load(t); ok {
		return &constructor{fn: v, sig: cached.(*signature)}, nil
	}

	if t.IsVariadic() {
		return nil, ConfigurationError{ImplementationType: t, Cause: ErrInvalidConstructor}
	}

	sig := &signature{}
	switch {
	case t.NumOut() == 1 && t.Out(0) != errorType:
	case t.NumOut() == 2 && t.Out(0) != errorType && t.Out(1) == errorType:
		sig.returnsError = true
	default:
		return nil, ConfigurationError{ImplementationType: t, Cause: ErrInvalidConstructor}
	}
	sig.result = t.Out(0)

	sig.params = make([]reflect.Type, t.NumIn())
	for i := range sig.params {
		sig.params[i] = t.In(i)
	}

	actual, _ := a.signatures.LoadOrStore(t, sig)
	return &constructor{fn: v, sig: actual.(*signature)}, nil
}

// declare appends constructors to the table of implType, in order.
func (a *activator) declare(implType reflect.Type, fns ...any) error {
	ctors := make([]*constructor, 0, len(fns))
	for _, fn := range fns {
		ctor, err := a.compile(fn)
		if err != nil {
			return err
		}
		if !ctor.sig.result.AssignableTo(implType) {
			return ConfigurationError{
				ServiceType:        implType,
				ImplementationType: ctor.sig.result,
				Cause:              ErrInvalidConstructor,
			}
		}
		ctors = append(ctors, ctor)
	}

	a.mu.Lock()
	a.declared[implType] = append(a.declared[implType], ctors...)
	a.mu.Unlock()

	a.selected.Delete(implType)
	return nil
}

// constructors returns the declared constructors of implType.
func (a *activator) constructors(implType reflect.Type) []*constructor {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.declared[implType]
}

// selectConstructor applies the first-match policy: the first declared
// constructor with at least one parameter, otherwise the first declared one.
// It returns nil when the type has no declared constructors.
func (a *activator) selectConstructor(implType reflect.Type) *constructor {
	if cached, ok := a.selected.Load(implType); ok {
		return cached.(*constructor)
	}

	ctors := a.constructors(implType)

	var chosen *constructor
	for _, ctor := range ctors {
		if len(ctor.sig.params) > 0 {
			chosen = ctor
			break
		}
	}
	if chosen == nil && len(ctors) > 0 {
		chosen = ctors[0]
	}

	a.selected.Store(implType, chosen)
	return chosen
}

// instantiate default-constructs implType.
func (a *activator) instantiate(implType reflect.Type) (reflect.Value, error) {
	if implType.Kind() == reflect.Interface {
		return reflect.Value{}, ErrAbstractType
	}

	if _, loaded := a.warned.LoadOrStore(implType, struct{}{}); !loaded {
		a.logger.Warn("type has no declared constructors, using default construction",
			"type", formatType(implType))
	}

	switch implType.Kind() {
	case reflect.Pointer:
		return reflect.New(implType.Elem()), nil
	case reflect.Map:
		return reflect.MakeMap(implType), nil
	case reflect.Func, reflect.Chan, reflect.UnsafePointer, reflect.Invalid:
		return reflect.Value{}, ErrUnsupportedImplementer
	default:
		return reflect.New(implType).Elem(), nil
	}
}

// plan returns the injection plan for instances of t. Struct types and
// pointers to structs share one plan keyed by the pointer type.
func (a *activator) plan(t reflect.Type) (*injectionPlan, error) {
	ptrType := t
	if t.Kind() != reflect.Pointer {
		ptrType = reflect.PointerTo(t)
	}

	if cached, ok := a.plans.Load(ptrType); ok {
		r := cached.(planResult)
		return r.plan, r.err
	}

	p, err := compilePlan(ptrType)
	actual, _ := a.plans.LoadOrStore(ptrType, planResult{plan: p, err: err})
	r := actual.(planResult)
	return r.plan, r.err
}

func compilePlan(ptrType reflect.Type) (*injectionPlan, error) {
	p := &injectionPlan{}
	structType := ptrType.Elem()

	var properties []injectionPoint
	if structType.Kind() == reflect.Struct {
		for i := 0; i < structType.NumField(); i++ {
			field := structType.Field(i)
			tag, ok := field.Tag.Lookup(InjectTag)
			if !ok || tag == "-" {
				continue
			}

			optional, setter, err := parseInjectTag(tag)
			if err != nil {
				return nil, ConfigurationError{ImplementationType: ptrType, Cause: err}
			}

			if setter {
				point, err := compileSetter(ptrType, field, optional)
				if err != nil {
					return nil, err
				}
				properties = append(properties, point)
				continue
			}

			p.points = append(p.points, compileField(field, i, optional))
		}
	}

	for i := 0; i < ptrType.NumMethod(); i++ {
		method := ptrType.Method(i)
		if !isInjectMethod(method.Name) {
			continue
		}

		point, err := compileMethod(ptrType, method)
		if err != nil {
			return nil, err
		}
		p.points = append(p.points, point)
	}

	p.points = append(p.points, properties...)
	return p, nil
}

func parseInjectTag(tag string) (optional, setter bool, err error) {
	if tag == "" {
		return false, false, nil
	}

	for _, opt := range strings.Split(tag, ",") {
		switch strings.TrimSpace(opt) {
		case "":
		case "optional":
			optional = true
		case "setter":
			setter = true
		default:
			return false, false, invalidPoint("unknown inject option %q", opt)
		}
	}
	return optional, setter, nil
}

func compileField(field reflect.StructField, index int, optional bool) injectionPoint {
	exported := field.IsExported()
	return injectionPoint{
		kind:     pointField,
		name:     field.Name,
		deps:     []reflect.Type{field.Type},
		optional: optional,
		apply: func(target reflect.Value, args []reflect.Value) error {
			fv := target.Elem().Field(index)
			if !exported {
				fv = reflect.NewAt(fv.Type(), unsafe.Pointer(fv.UnsafeAddr())).Elem()
			}
			fv.Set(args[0])
			return nil
		},
	}
}

func compileSetter(ptrType reflect.Type, field reflect.StructField, optional bool) (injectionPoint, error) {
	name := "Set" + upperFirst(field.Name)
	method, ok := ptrType.MethodByName(name)
	if !ok {
		return injectionPoint{}, ConfigurationError{
			ImplementationType: ptrType,
			Cause:              invalidPoint("field %s requires method %s", field.Name, name),
		}
	}

	mt := method.Type
	if mt.NumIn() != 2 || !field.Type.AssignableTo(mt.In(1)) || !returnsNothingOrError(mt) {
		return injectionPoint{}, ConfigurationError{
			ImplementationType: ptrType,
			Cause:              invalidPoint("method %s must accept a single %s", name, formatType(field.Type)),
		}
	}

	return injectionPoint{
		kind:     pointProperty,
		name:     name,
		deps:     []reflect.Type{field.Type},
		optional: optional,
		apply:    methodInvoker(method.Index, mt.NumOut() == 1),
	}, nil
}

func compileMethod(ptrType reflect.Type, method reflect.Method) (injectionPoint, error) {
	mt := method.Type
	if !returnsNothingOrError(mt) {
		return injectionPoint{}, ConfigurationError{
			ImplementationType: ptrType,
			Cause:              invalidPoint("method %s may only return an error", method.Name),
		}
	}

	// In(0) is the receiver.
	deps := make([]reflect.Type, mt.NumIn()-1)
	for i := range deps {
		deps[i] = mt.In(i + 1)
	}

	return injectionPoint{
		kind:  pointMethod,
		name:  method.Name,
		deps:  deps,
		apply: methodInvoker(method.Index, mt.NumOut() == 1),
	}, nil
}

func methodInvoker(index int, returnsError bool) func(reflect.Value, []reflect.Value) error {
	return func(target reflect.Value, args []reflect.Value) error {
		out := target.Method(index).Call(args)
		if returnsError && !out[0].IsNil() {
			return out[0].Interface().(error)
		}
		return nil
	}
}

func returnsNothingOrError(mt reflect.Type) bool {
	switch mt.NumOut() {
	case 0:
		return true
	case 1:
		return mt.Out(0) == errorType
	default:
		return false
	}
}

func isInjectMethod(name string) bool {
	if !strings.HasPrefix(name, injectMethodPrefix) {
		return false
	}
	rest := name[len(injectMethodPrefix):]
	if rest == "" {
		return true
	}
	r, _ := utf8.DecodeRuneInString(rest)
	return unicode.IsUpper(r)
}

func invalidPoint(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidInjectionPoint}, args...)...)
}

func upperFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}
