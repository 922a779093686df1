package nkdi

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/nk7/nkdi/internal/graph"
)

// ========================================
// Core Error Values (Sentinel Errors)
// ========================================
// These are base errors that are wrapped in typed errors when returned.
// Match them with errors.Is.

var (
	// Registration errors.
	ErrServiceTypeNil         = errors.New("service type cannot be nil")
	ErrDuplicateService       = errors.New("service type already registered")
	ErrInterfaceNotSatisfied  = errors.New("implementation does not satisfy interface")
	ErrNotInterface           = errors.New("exposed type must be an interface")
	ErrInvalidConstructor     = errors.New("invalid constructor")
	ErrInstanceNil            = errors.New("instance cannot be nil")
	ErrFactoryNil             = errors.New("factory cannot be nil")
	ErrPrototypeNil           = errors.New("prototype cannot be nil")
	ErrParentWithoutComponent = errors.New("parent applies to components only")
	ErrRegistrationFlushed    = errors.New("registration has already been flushed")
	ErrBuilderAlreadyBuilt    = errors.New("builder has already been built")
	ErrInvalidInjectionPoint  = errors.New("invalid injection point")
	ErrUnsupportedImplementer = errors.New("implementation type cannot be constructed")

	// Resolution errors.
	ErrServiceNotFound  = errors.New("service not registered")
	ErrAbstractType     = errors.New("interface type requires a factory or instance")
	ErrMissingPrototype = errors.New("prototype produced no clone")
	ErrNotInjectable    = errors.New("instance must be a non-nil pointer to a struct")

	// Scope errors.
	ErrScopeNotFound = errors.New("scope does not exist")
	ErrMainScope     = errors.New("main scope cannot be released")
)

var (
	_ error = LifetimeError{}
	_ error = ConfigurationError{}
	_ error = ResolutionError{}
	_ error = ScopeError{}
	_ error = TypeMismatchError{}
	_ error = DisposalError{}
	_ error = CircularDependencyError{}
)

// ========================================
// Typed Errors for Rich Context
// ========================================

// LifetimeError indicates an invalid lifetime value.
type LifetimeError struct {
	Value any
}

func (e LifetimeError) Error() string {
	return fmt.Sprintf("invalid service lifetime: %v", e.Value)
}

// ConfigurationError indicates a registration mistake: a duplicate service type,
// an interface the implementation does not satisfy, or an unusable constructor.
type ConfigurationError struct {
	ServiceType        reflect.Type
	ImplementationType reflect.Type
	Cause              error
}

func (e ConfigurationError) Error() string {
	var b strings.Builder
	b.WriteString("configuration error")

	if e.ServiceType != nil {
		b.WriteString(fmt.Sprintf(" for %s", formatType(e.ServiceType)))
	}
	if e.ImplementationType != nil && e.ImplementationType != e.ServiceType {
		b.WriteString(fmt.Sprintf(" (implementation %s)", formatType(e.ImplementationType)))
	}
	if e.Cause != nil {
		b.WriteString(fmt.Sprintf(": %v", e.Cause))
	}

	switch {
	case errors.Is(e.Cause, ErrDuplicateService):
		b.WriteString("\n\nTo resolve this:\n")
		b.WriteString("  • Expose the type from only one registration\n")
		b.WriteString("  • Use As(...) to narrow the interfaces a registration exposes\n")
	case errors.Is(e.Cause, ErrInterfaceNotSatisfied):
		b.WriteString("\n\nTo resolve this:\n")
		b.WriteString("  • Check the method set of the implementation type\n")
		b.WriteString("  • Register a pointer type when methods use pointer receivers\n")
	}

	return b.String()
}

func (e ConfigurationError) Unwrap() error {
	return e.Cause
}

// ResolutionError wraps errors that occur while building a service.
type ResolutionError struct {
	ServiceType reflect.Type
	Cause       error
}

func (e ResolutionError) Error() string {
	if e.Cause == ErrServiceNotFound {
		return fmt.Sprintf("service not registered: %s\n\nMake sure the service is registered with the correct type or exposed through As(...).",
			formatType(e.ServiceType))
	}
	if e.Cause == nil {
		return fmt.Sprintf("failed to resolve %s", formatType(e.ServiceType))
	}
	return fmt.Sprintf("failed to resolve %s: %v", formatType(e.ServiceType), e.Cause)
}

func (e ResolutionError) Unwrap() error {
	return e.Cause
}

// CircularDependencyError reports a constructor that appeared twice in one
// resolution chain.
type CircularDependencyError = graph.CircularDependencyError

// ScopeError indicates an operation on a scope id that does not exist.
type ScopeError struct {
	ScopeID int
	Cause   error
}

func (e ScopeError) Error() string {
	return fmt.Sprintf("scope %d: %v", e.ScopeID, e.Cause)
}

func (e ScopeError) Unwrap() error {
	return e.Cause
}

// TypeMismatchError indicates a resolved value has an unexpected type.
type TypeMismatchError struct {
	Expected reflect.Type
	Actual   reflect.Type
	Context  string
}

func (e TypeMismatchError) Error() string {
	return fmt.Sprintf("%s: expected %s, got %s", e.Context, formatType(e.Expected), formatType(e.Actual))
}

// DisposalError aggregates the errors returned by Close during a release.
type DisposalError struct {
	Context string // "scope", "container", "service"
	Errors  []error
}

func (e DisposalError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("%s disposal failed: %v", e.Context, e.Errors[0])
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s disposal failed with %d errors:", e.Context, len(e.Errors)))
	for i, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("\n  %d. %v", i+1, err))
	}
	return sb.String()
}

func (e DisposalError) Unwrap() []error {
	return e.Errors
}

// IsNotFound reports whether err is caused by an unregistered service.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrServiceNotFound)
}

// IsCircularDependency reports whether err contains a circular dependency.
func IsCircularDependency(err error) bool {
	var cycle CircularDependencyError
	return errors.As(err, &cycle)
}

func formatType(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}

	switch t.Kind() {
	case reflect.Pointer:
		elem := t.Elem()
		if elem.PkgPath() != "" && elem.Name() != "" {
			return "*" + elem.Name()
		}
		return t.String()
	case reflect.Interface, reflect.Struct:
		if t.Name() != "" {
			return t.Name()
		}
	}

	return t.String()
}
