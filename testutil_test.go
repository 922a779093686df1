package nkdi

import (
	"bytes"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// ============================================================================
// Shared Test Types
// ============================================================================

// Logger is the interface most tests resolve.
type Logger interface {
	Log(msg string)
}

// Flusher is a second interface implemented by bufferLogger.
type Flusher interface {
	Flush() []string
}

// Cache is only ever registered optionally.
type Cache interface {
	Get(key string) (string, bool)
}

type consoleLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *consoleLogger) Log(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, msg)
}

type bufferLogger struct {
	consoleLogger
}

func (l *bufferLogger) Flush() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	lines := l.lines
	l.lines = nil
	return lines
}

type mapCache map[string]string

func (c mapCache) Get(key string) (string, bool) {
	v, ok := c[key]
	return v, ok
}

// Service depends on Logger through a tagged field.
type Service struct {
	Log Logger `inject:""`
}

func (s *Service) Run() {
	s.Log.Log("run")
}

type clock struct {
	now int
}

// closeRecorder keeps the order in which disposables were closed.
type closeRecorder struct {
	mu    sync.Mutex
	names []string
}

func (r *closeRecorder) record(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, name)
}

func (r *closeRecorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.names...)
}

// tDisposable counts Close calls and optionally reports them to a recorder.
type tDisposable struct {
	name     string
	closes   atomic.Int32
	closeErr error
	recorder *closeRecorder
}

func (d *tDisposable) Close() error {
	d.closes.Add(1)
	if d.recorder != nil {
		d.recorder.record(d.name)
	}
	return d.closeErr
}

func (d *tDisposable) Closes() int {
	return int(d.closes.Load())
}

// newDisposable returns a constructor for a named disposable. Every built
// instance is appended to built.
func newDisposable(name string, recorder *closeRecorder, built *[]*tDisposable) func() *tDisposable {
	var mu sync.Mutex
	return func() *tDisposable {
		d := &tDisposable{name: name, recorder: recorder}
		if built != nil {
			mu.Lock()
			*built = append(*built, d)
			mu.Unlock()
		}
		return d
	}
}

// ============================================================================
// Circular Dependency Test Types
// ============================================================================

type cycleA struct{ B *cycleB }
type cycleB struct{ A *cycleA }

func newCycleA(b *cycleB) *cycleA { return &cycleA{B: b} }
func newCycleB(a *cycleA) *cycleB { return &cycleB{A: a} }

type nodeA struct {
	B *nodeB `inject:""`
}

type nodeB struct {
	A *nodeA `inject:""`
}

// ============================================================================
// Helpers
// ============================================================================

// logBuffer is a slog handler target safe for concurrent writes.
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *logBuffer) Count(substr string) int {
	return strings.Count(b.String(), substr)
}

// newTestLogger returns a debug logger writing into a buffer.
func newTestLogger() (*slog.Logger, *logBuffer) {
	buf := &logBuffer{}
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})), buf
}

// quietLogger discards everything below error.
func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&logBuffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

// buildContainer builds b with a quiet logger and fails the test on error.
func buildContainer(t *testing.T, b *Builder, opts ...Option) *Container {
	t.Helper()

	c, err := b.Build(append([]Option{WithLogger(quietLogger())}, opts...)...)
	require.NoError(t, err)
	return c
}

// newLoggerContainer registers a *consoleLogger as a Logger singleton plus
// whatever register adds, and builds the container.
func newLoggerContainer(t *testing.T, register func(b *Builder)) *Container {
	t.Helper()

	b := NewBuilder()
	_, err := b.RegisterSingleton(reflect.TypeOf(&consoleLogger{}), As(new(Logger)))
	require.NoError(t, err)

	if register != nil {
		register(b)
	}
	return buildContainer(t, b)
}
