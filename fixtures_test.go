package berth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

// Ticker is the interface-typed service used throughout the tests.
type Ticker interface {
	Tick() int
}

// Unknown is never provided.
type Unknown interface {
	Unknown()
}

type testClock struct {
	zone string
}

func newTestClock() *testClock {
	return &testClock{zone: "UTC"}
}

type Timer struct {
	clock *testClock
	ticks int
}

func (t *Timer) Tick() int {
	t.ticks++
	return t.ticks
}

func NewTimer(clock *testClock) *Timer {
	return &Timer{clock: clock}
}

type Stopwatch struct {
	clock *testClock
	laps  int
}

func NewStopwatch(clock *testClock) *Stopwatch {
	return &Stopwatch{clock: clock}
}

// syncResource implements Disposable.
type syncResource struct {
	name     string
	err      error
	disposed atomic.Int32
}

func (s *syncResource) Dispose() error {
	s.disposed.Add(1)
	return s.err
}

// asyncResource implements AsyncDisposable.
type asyncResource struct {
	name     string
	err      error
	disposed atomic.Int32
	ctx      context.Context
}

func (a *asyncResource) DisposeAsync(ctx context.Context) error {
	a.disposed.Add(1)
	a.ctx = ctx
	return a.err
}

// dualResource implements both protocols.
type dualResource struct {
	name       string
	syncErr    error
	syncCalls  atomic.Int32
	asyncCalls atomic.Int32
}

func (d *dualResource) Dispose() error {
	d.syncCalls.Add(1)
	return d.syncErr
}

func (d *dualResource) DisposeAsync(context.Context) error {
	d.asyncCalls.Add(1)
	return nil
}

// brokenResource fails every release.
type brokenResource struct {
	disposed atomic.Int32
}

func (b *brokenResource) Dispose() error {
	b.disposed.Add(1)
	return errBoom
}

// plainService implements no disposal protocol.
type plainService struct {
	value string
}

// constructionLog records every instance built by a constructor.
type constructionLog[T any] struct {
	mu        sync.Mutex
	instances []T
}

func (l *constructionLog[T]) add(v T) T {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.instances = append(l.instances, v)
	return v
}

func (l *constructionLog[T]) all() []T {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]T, len(l.instances))
	copy(out, l.instances)
	return out
}

func (l *constructionLog[T]) count() int {
	return len(l.all())
}

// newTestContainer provides the clock, the timer (also as Ticker), the
// stopwatch and the disposable resources.
func newTestContainer(t *testing.T) *Container {
	t.Helper()

	c := NewContainer()
	require.NoError(t, c.Provide(newTestClock))
	require.NoError(t, c.Provide(NewTimer, As(new(Ticker))))
	require.NoError(t, c.Provide(NewStopwatch))
	require.NoError(t, c.Provide(func() *syncResource { return &syncResource{name: "sync"} }))
	require.NoError(t, c.Provide(func() *asyncResource { return &asyncResource{name: "async"} }))
	require.NoError(t, c.Provide(func() *dualResource { return &dualResource{name: "dual"} }))
	require.NoError(t, c.Provide(func() *brokenResource { return &brokenResource{} }))
	require.NoError(t, c.Provide(func() *plainService { return &plainService{value: "plain"} }))

	return c
}

// requireInvariantPanic runs fn and asserts it panics with an invariant violation.
func requireInvariantPanic(t *testing.T, fn func()) {
	t.Helper()

	defer func() {
		rec := recover()
		require.NotNil(t, rec, "expected panic")

		err, ok := rec.(error)
		require.True(t, ok, "panic value should be an error, got %T", rec)
		require.True(t, IsInvariantViolation(err), "unexpected panic: %v", err)
	}()

	fn()
}
