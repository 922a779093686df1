package nkdi

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type handler struct {
	Sessions ServiceFactory[*session] `inject:""`
}

type lazyParent struct {
	Children ServiceFactory[*lazyChild] `inject:""`
}

type lazyChild struct {
	Parent *lazyParent
}

func TestFactory_Get(t *testing.T) {
	b := NewBuilder()
	_, err := b.Provide(Scoped, func() *session { return &session{} })
	require.NoError(t, err)
	_, err = RegisterFactoryService[*session](b)
	require.NoError(t, err)
	_, err = b.RegisterSingleton(reflect.TypeOf(&handler{}))
	require.NoError(t, err)
	c := buildContainer(t, b)

	h := MustResolve[*handler](c)

	c.CreateScope()
	first, err := h.Sessions.Get()
	require.NoError(t, err)
	again, err := h.Sessions.Get()
	require.NoError(t, err)
	assert.Same(t, first, again)

	c.CreateScope()
	second, err := h.Sessions.Get()
	require.NoError(t, err)
	assert.NotSame(t, first, second, "Get resolves in the current scope")

	assert.Same(t, h.Sessions, MustResolve[*Factory[*session]](c))
}

func TestFactory_BreaksConstructorCycles(t *testing.T) {
	b := NewBuilder()
	_, err := b.RegisterSingleton(reflect.TypeOf(&lazyParent{}))
	require.NoError(t, err)
	_, err = b.Provide(Transient, func(p *lazyParent) *lazyChild { return &lazyChild{Parent: p} })
	require.NoError(t, err)
	_, err = RegisterFactoryService[*lazyChild](b)
	require.NoError(t, err)
	c := buildContainer(t, b)

	parent := MustResolve[*lazyParent](c)
	child, err := parent.Children.Get()
	require.NoError(t, err)
	assert.Same(t, parent, child.Parent)
}

func TestFactory_GetService(t *testing.T) {
	c := newLoggerContainer(t, nil)

	f := NewFactory[Logger](c)
	logger, err := f.GetService(typeOf[Logger]())
	require.NoError(t, err)
	assert.Same(t, MustResolve[Logger](c), logger)

	getter := MustResolve[ServiceGetter](c)
	viaGetter, err := getter.GetService(typeOf[Logger]())
	require.NoError(t, err)
	assert.Same(t, logger, viaGetter)

	_, err = getter.GetService(typeOf[Cache]())
	assert.True(t, IsNotFound(err))
}

func TestRegisterFactoryService_CustomExposure(t *testing.T) {
	b := NewBuilder()
	_, err := b.Provide(Transient, func() *clock { return &clock{} })
	require.NoError(t, err)
	_, err = RegisterFactoryService[*clock](b, As(new(ServiceGetter)))
	require.NoError(t, err)
	_, err = b.Build(WithLogger(quietLogger()))

	assert.ErrorIs(t, err, ErrDuplicateService, "the container already serves ServiceGetter")
}
