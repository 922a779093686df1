package nkdi

import (
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/nk7/nkdi/internal/graph"
	"github.com/stretchr/testify/assert"
)

func TestConfigurationError(t *testing.T) {
	t.Run("duplicate service", func(t *testing.T) {
		err := ConfigurationError{
			ServiceType:        typeOf[Logger](),
			ImplementationType: reflect.TypeOf(&consoleLogger{}),
			Cause:              ErrDuplicateService,
		}

		assert.Contains(t, err.Error(), "configuration error for Logger (implementation *consoleLogger): service type already registered")
		assert.Contains(t, err.Error(), "To resolve this:")
		assert.ErrorIs(t, err, ErrDuplicateService)
	})

	t.Run("implementation equal to service type is not repeated", func(t *testing.T) {
		st := reflect.TypeOf(&clock{})
		err := ConfigurationError{ServiceType: st, ImplementationType: st, Cause: ErrInvalidConstructor}

		assert.Equal(t, "configuration error for *clock: invalid constructor", err.Error())
	})
}

func TestResolutionError(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		err := ResolutionError{ServiceType: typeOf[Logger](), Cause: ErrServiceNotFound}

		assert.Contains(t, err.Error(), "service not registered: Logger")
		assert.True(t, IsNotFound(err))
	})

	t.Run("wrapped cause keeps its detail", func(t *testing.T) {
		cause := fmt.Errorf("%w (required by %s)", ErrServiceNotFound, "*Service")
		err := ResolutionError{ServiceType: typeOf[Logger](), Cause: cause}

		assert.Equal(t, "failed to resolve Logger: service not registered (required by *Service)", err.Error())
		assert.True(t, IsNotFound(err))
	})

	t.Run("no cause", func(t *testing.T) {
		err := ResolutionError{ServiceType: typeOf[Cache]()}
		assert.Equal(t, "failed to resolve Cache", err.Error())
	})
}

func TestScopeError(t *testing.T) {
	err := ScopeError{ScopeID: 3, Cause: ErrScopeNotFound}

	assert.Equal(t, "scope 3: scope does not exist", err.Error())
	assert.ErrorIs(t, err, ErrScopeNotFound)
}

func TestDisposalError(t *testing.T) {
	errA := errors.New("a failed")
	errB := errors.New("b failed")

	single := DisposalError{Context: "scope", Errors: []error{errA}}
	assert.Equal(t, "scope disposal failed: a failed", single.Error())

	multi := DisposalError{Context: "container", Errors: []error{errA, errB}}
	assert.Contains(t, multi.Error(), "container disposal failed with 2 errors:")
	assert.Contains(t, multi.Error(), "2. b failed")
	assert.ErrorIs(t, multi, errA)
	assert.ErrorIs(t, multi, errB)
}

func TestIsCircularDependency(t *testing.T) {
	cycle := CircularDependencyError{
		Node: graph.NodeKey{Type: reflect.TypeOf(&cycleA{})},
		Path: []graph.NodeKey{
			{Type: reflect.TypeOf(&cycleA{})},
			{Type: reflect.TypeOf(&cycleB{})},
		},
	}

	assert.True(t, IsCircularDependency(cycle))
	assert.True(t, IsCircularDependency(fmt.Errorf("outer: %w", cycle)))
	assert.False(t, IsCircularDependency(ErrServiceNotFound))
}

func TestFormatType(t *testing.T) {
	assert.Equal(t, "<nil>", formatType(nil))
	assert.Equal(t, "*clock", formatType(reflect.TypeOf(&clock{})))
	assert.Equal(t, "clock", formatType(reflect.TypeOf(clock{})))
	assert.Equal(t, "Logger", formatType(typeOf[Logger]()))
	assert.Equal(t, "*int", formatType(reflect.TypeOf(new(int))))
	assert.Equal(t, "[]string", formatType(reflect.TypeOf([]string{})))
	assert.Equal(t, "nkdi.mapCache", formatType(reflect.TypeOf(mapCache{})))
}
