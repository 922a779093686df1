package nkdi

import (
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type session struct {
	tDisposable
}

func newScopedContainer(t *testing.T, recorder *closeRecorder, built *[]*session) *Container {
	t.Helper()

	b := NewBuilder()
	_, err := b.Provide(Scoped, func() *session {
		s := &session{}
		s.name = "session"
		s.recorder = recorder
		if built != nil {
			*built = append(*built, s)
		}
		return s
	})
	require.NoError(t, err)
	return buildContainer(t, b)
}

func TestScope_Create(t *testing.T) {
	c := buildContainer(t, NewBuilder())
	assert.Equal(t, 0, c.CurrentScope())

	assert.Equal(t, 1, c.CreateScope())
	assert.Equal(t, 2, c.CreateScope())
	assert.Equal(t, 3, c.CreateScope())
	assert.Equal(t, 3, c.CurrentScope())

	require.NoError(t, c.ReleaseScope(2))

	err := c.SetCurrentScope(2)
	var scopeErr ScopeError
	require.ErrorAs(t, err, &scopeErr)
	assert.Equal(t, 2, scopeErr.ScopeID)
	assert.ErrorIs(t, err, ErrScopeNotFound)

	assert.Equal(t, 4, c.CreateScope(), "ids are never reused")
}

func TestScope_SetCurrent(t *testing.T) {
	c := buildContainer(t, NewBuilder())
	c.CreateScope()
	c.CreateScope()

	require.NoError(t, c.SetCurrentScope(1))
	assert.Equal(t, 1, c.CurrentScope())

	require.NoError(t, c.SetCurrentScope(0))
	assert.Equal(t, 0, c.CurrentScope())

	assert.ErrorIs(t, c.SetCurrentScope(99), ErrScopeNotFound)
	assert.Equal(t, 0, c.CurrentScope())
}

func TestScope_ScopedInstances(t *testing.T) {
	var built []*session
	c := newScopedContainer(t, nil, &built)

	first := c.CreateScope()
	s1 := MustResolve[*session](c)
	assert.Same(t, s1, MustResolve[*session](c))

	c.CreateScope()
	s2 := MustResolve[*session](c)
	assert.NotSame(t, s1, s2)

	require.NoError(t, c.SetCurrentScope(first))
	assert.Same(t, s1, MustResolve[*session](c))

	require.NoError(t, c.SetCurrentScope(0))
	s0 := MustResolve[*session](c)
	assert.NotSame(t, s1, s0)
	assert.NotSame(t, s2, s0)

	assert.Len(t, built, 3)
}

func TestScope_Release(t *testing.T) {
	t.Run("disposes the scope and a new scope builds anew", func(t *testing.T) {
		c := newScopedContainer(t, nil, nil)

		one := c.CreateScope()
		s1 := MustResolve[*session](c)

		c.CreateScope()
		s2 := MustResolve[*session](c)

		require.NoError(t, c.ReleaseScope(one))
		assert.Equal(t, 1, s1.Closes())
		assert.Equal(t, 0, s2.Closes())
		assert.Equal(t, 2, c.CurrentScope(), "releasing another scope keeps the current one")

		c.CreateScope()
		s3 := MustResolve[*session](c)
		assert.NotSame(t, s1, s3)
	})

	t.Run("releasing the current scope returns to the main scope", func(t *testing.T) {
		c := newScopedContainer(t, nil, nil)

		id := c.CreateScope()
		require.NoError(t, c.ReleaseScope(id))
		assert.Equal(t, 0, c.CurrentScope())
	})

	t.Run("disposes in reverse build order", func(t *testing.T) {
		recorder := &closeRecorder{}
		b := NewBuilder()
		_, err := b.Provide(Scoped, newDisposable("first", recorder, nil))
		require.NoError(t, err)
		_, err = b.Provide(Scoped, func(d *tDisposable) *session {
			s := &session{}
			s.name = "second"
			s.recorder = recorder
			return s
		})
		require.NoError(t, err)
		c := buildContainer(t, b)

		id := c.CreateScope()
		MustResolve[*session](c)
		require.NoError(t, c.ReleaseScope(id))

		assert.Equal(t, []string{"second", "first"}, recorder.Names())
	})

	t.Run("singletons survive scope release", func(t *testing.T) {
		b := NewBuilder()
		_, err := b.Provide(Singleton, newDisposable("global", nil, nil))
		require.NoError(t, err)
		c := buildContainer(t, b)

		id := c.CreateScope()
		d := MustResolve[*tDisposable](c)
		require.NoError(t, c.ReleaseScope(id))

		assert.Equal(t, 0, d.Closes())
		assert.Same(t, d, MustResolve[*tDisposable](c))
	})

	t.Run("main scope is refused with a warning", func(t *testing.T) {
		logger, logs := newTestLogger()
		c, err := NewBuilder().Build(WithLogger(logger))
		require.NoError(t, err)

		assert.NoError(t, c.ReleaseScope(0))
		assert.NoError(t, c.ReleaseScope(-1))
		assert.Equal(t, 2, logs.Count(`msg="main scope cannot be released"`))
	})

	t.Run("unknown scope", func(t *testing.T) {
		c := buildContainer(t, NewBuilder())

		var scopeErr ScopeError
		require.ErrorAs(t, c.ReleaseScope(42), &scopeErr)
		assert.Equal(t, 42, scopeErr.ScopeID)
	})

	t.Run("second release only warns", func(t *testing.T) {
		logger, logs := newTestLogger()
		var built []*session
		b := NewBuilder()
		_, err := b.Provide(Scoped, func() *session {
			s := &session{}
			built = append(built, s)
			return s
		})
		require.NoError(t, err)
		c, err := b.Build(WithLogger(logger))
		require.NoError(t, err)

		id := c.CreateScope()
		MustResolve[*session](c)

		require.NoError(t, c.ReleaseScope(id))
		require.NoError(t, c.ReleaseScope(id))

		assert.Equal(t, 1, logs.Count("scope already released"))
		require.Len(t, built, 1)
		assert.Equal(t, 1, built[0].Closes())
	})

	t.Run("empty scope warns", func(t *testing.T) {
		logger, logs := newTestLogger()
		b := NewBuilder()
		_, err := b.Provide(Scoped, func() *clock { return &clock{} })
		require.NoError(t, err)
		c, err := b.Build(WithLogger(logger))
		require.NoError(t, err)

		empty := c.CreateScope()
		MustResolve[Resolver](c)
		require.NoError(t, c.ReleaseScope(empty))
		assert.Equal(t, 1, logs.Count(`msg="releasing an empty scope"`))

		used := c.CreateScope()
		MustResolve[*clock](c)
		require.NoError(t, c.ReleaseScope(used))
		assert.Equal(t, 1, logs.Count(`msg="releasing an empty scope"`))
	})

	t.Run("close errors are collected", func(t *testing.T) {
		boom := errors.New("close failed")
		recorder := &closeRecorder{}
		b := NewBuilder()
		_, err := b.Provide(Scoped, func() *tDisposable {
			return &tDisposable{name: "failing", closeErr: boom, recorder: recorder}
		})
		require.NoError(t, err)
		_, err = b.Provide(Scoped, func(*tDisposable) *session {
			s := &session{}
			s.name = "healthy"
			s.recorder = recorder
			return s
		})
		require.NoError(t, err)
		c := buildContainer(t, b)

		id := c.CreateScope()
		MustResolve[*session](c)
		err = c.ReleaseScope(id)

		var disposalErr DisposalError
		require.ErrorAs(t, err, &disposalErr)
		assert.Equal(t, "scope", disposalErr.Context)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, []string{"healthy", "failing"}, recorder.Names())
	})
}

func TestScope_Siblings(t *testing.T) {
	b := NewBuilder()
	_, err := b.RegisterScoped(reflect.TypeOf(&bufferLogger{}), As(new(Logger), new(Flusher)), AsSelf())
	require.NoError(t, err)
	c := buildContainer(t, b)

	c.CreateScope()
	logger := MustResolve[Logger](c)
	assert.Same(t, logger, MustResolve[Flusher](c))
	assert.Same(t, logger, MustResolve[*bufferLogger](c))

	c.CreateScope()
	assert.NotSame(t, logger, MustResolve[*bufferLogger](c))
}

func TestScope_ScopeService(t *testing.T) {
	c := buildContainer(t, NewBuilder())

	scopes := MustResolve[ScopeService](c)
	assert.Same(t, c, scopes)

	id := scopes.CreateScope()
	assert.Equal(t, id, c.CurrentScope())
}
