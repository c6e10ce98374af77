package berth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T, opts ...Option) *Registry {
	t.Helper()
	return NewRegistry(newTestContainer(t), opts...)
}

func TestRegistry_GetOrCreateConcreteType(t *testing.T) {
	reg := newTestRegistry(t)
	id := NewScopeID()

	instance, ok := reg.GetOrCreate(id, KeyOf[*Timer]())
	require.True(t, ok)
	require.IsType(t, &Timer{}, instance)

	again, ok := reg.GetOrCreate(id, KeyOf[*Timer]())
	require.True(t, ok)
	assert.Same(t, instance, again)
	assert.Equal(t, 1, reg.Len())
}

func TestRegistry_GetOrCreateInterfaceBuildsIndependentInstance(t *testing.T) {
	c := newTestContainer(t)
	reg := NewRegistry(c)
	id := NewScopeID()

	outer, err := c.Resolve(KeyOf[Ticker]())
	require.NoError(t, err)

	inner, ok := reg.GetOrCreate(id, KeyOf[Ticker]())
	require.True(t, ok)

	// Same concrete type, different object
	require.IsType(t, &Timer{}, inner)
	assert.NotSame(t, outer, inner)

	// Dependencies of the scoped instance still come from the container
	assert.Same(t, outer.(*Timer).clock, inner.(*Timer).clock)

	// State does not leak between the two
	inner.(Ticker).Tick()
	assert.Equal(t, 0, outer.(*Timer).ticks)
}

func TestRegistry_GetOrCreateUnknownService(t *testing.T) {
	reg := newTestRegistry(t)
	id := NewScopeID()

	instance, ok := reg.GetOrCreate(id, KeyOf[Unknown]())
	assert.False(t, ok)
	assert.Nil(t, instance)

	_, ok = reg.Get(id, KeyOf[Unknown]())
	assert.False(t, ok)
	assert.Zero(t, reg.Len(), "failed activation must not be recorded")
}

func TestRegistry_GetOrCreateFailingConstructor(t *testing.T) {
	c := NewContainer()
	require.NoError(t, c.Provide(func() (*plainService, error) { return nil, errBoom }))

	reg := NewRegistry(c)

	_, ok := reg.GetOrCreate(NewScopeID(), KeyOf[*plainService]())
	assert.False(t, ok)
	assert.Zero(t, reg.Len())
}

func TestRegistry_InvalidArguments(t *testing.T) {
	reg := newTestRegistry(t)
	id := NewScopeID()

	_, ok := reg.GetOrCreate(NilScopeID, KeyOf[*Timer]())
	assert.False(t, ok)

	_, ok = reg.GetOrCreate(id, TypeKey{})
	assert.False(t, ok)

	_, ok = reg.Get(NilScopeID, KeyOf[*Timer]())
	assert.False(t, ok)

	removed, err := reg.Remove(NilScopeID, KeyOf[*Timer]())
	assert.NoError(t, err)
	assert.False(t, removed)

	n, err := reg.RemoveScope(NilScopeID)
	assert.NoError(t, err)
	assert.Zero(t, n)

	assert.Zero(t, reg.Len())
}

func TestRegistry_ScopeIsolation(t *testing.T) {
	reg := newTestRegistry(t)
	s1, s2 := NewScopeID(), NewScopeID()

	a, ok := reg.GetOrCreate(s1, KeyOf[Ticker]())
	require.True(t, ok)
	b, ok := reg.GetOrCreate(s2, KeyOf[Ticker]())
	require.True(t, ok)

	assert.NotSame(t, a, b)

	removed, err := reg.Remove(s1, KeyOf[Ticker]())
	require.NoError(t, err)
	require.True(t, removed)

	got, ok := reg.Get(s2, KeyOf[Ticker]())
	require.True(t, ok)
	assert.Same(t, b, got)
}

func TestRegistry_TypeIsolation(t *testing.T) {
	reg := newTestRegistry(t)
	id := NewScopeID()

	timer, ok := reg.GetOrCreate(id, KeyOf[*Timer]())
	require.True(t, ok)
	stopwatch, ok := reg.GetOrCreate(id, KeyOf[*Stopwatch]())
	require.True(t, ok)

	assert.IsType(t, &Timer{}, timer)
	assert.IsType(t, &Stopwatch{}, stopwatch)
	assert.Equal(t, 2, reg.Len())

	// Both share the container's singleton clock
	assert.Same(t, timer.(*Timer).clock, stopwatch.(*Stopwatch).clock)
}

func TestRegistry_ConcreteAndInterfaceKeysAreDistinct(t *testing.T) {
	reg := newTestRegistry(t)
	id := NewScopeID()

	concrete, ok := reg.GetOrCreate(id, KeyOf[*Timer]())
	require.True(t, ok)
	iface, ok := reg.GetOrCreate(id, KeyOf[Ticker]())
	require.True(t, ok)

	assert.NotSame(t, concrete, iface)
	assert.Equal(t, 2, reg.Len())
}

func TestRegistry_GetNeverCreates(t *testing.T) {
	reg := newTestRegistry(t)
	id := NewScopeID()

	_, ok := reg.Get(id, KeyOf[*Timer]())
	assert.False(t, ok)
	assert.Zero(t, reg.Len())

	created, ok := reg.GetOrCreate(id, KeyOf[*Timer]())
	require.True(t, ok)

	got, ok := reg.Get(id, KeyOf[*Timer]())
	require.True(t, ok)
	assert.Same(t, created, got)
}

func TestRegistry_RemoveDisposesOnce(t *testing.T) {
	reg := newTestRegistry(t)
	id := NewScopeID()

	first, ok := reg.GetOrCreate(id, KeyOf[*syncResource]())
	require.True(t, ok)

	removed, err := reg.Remove(id, KeyOf[*syncResource]())
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, int32(1), first.(*syncResource).disposed.Load())

	// Second remove is a no-op
	removed, err = reg.Remove(id, KeyOf[*syncResource]())
	require.NoError(t, err)
	assert.False(t, removed)
	assert.Equal(t, int32(1), first.(*syncResource).disposed.Load())

	_, ok = reg.Get(id, KeyOf[*syncResource]())
	assert.False(t, ok)
}

func TestRegistry_RemoveThenRecreate(t *testing.T) {
	reg := newTestRegistry(t)
	id := NewScopeID()

	first, ok := reg.GetOrCreate(id, KeyOf[*syncResource]())
	require.True(t, ok)

	_, err := reg.Remove(id, KeyOf[*syncResource]())
	require.NoError(t, err)

	second, ok := reg.GetOrCreate(id, KeyOf[*syncResource]())
	require.True(t, ok)

	assert.NotSame(t, first, second)
	assert.Equal(t, int32(1), first.(*syncResource).disposed.Load())
	assert.Zero(t, second.(*syncResource).disposed.Load())
}

func TestRegistry_RemoveInvokesBothProtocols(t *testing.T) {
	reg := newTestRegistry(t)
	id := NewScopeID()

	instance, ok := reg.GetOrCreate(id, KeyOf[*dualResource]())
	require.True(t, ok)

	_, err := reg.Remove(id, KeyOf[*dualResource]())
	require.NoError(t, err)

	dual := instance.(*dualResource)
	assert.Equal(t, int32(1), dual.syncCalls.Load())
	assert.Equal(t, int32(1), dual.asyncCalls.Load())
}

func TestRegistry_RemoveReportsDisposalFailure(t *testing.T) {
	reg := newTestRegistry(t)
	id := NewScopeID()

	instance, ok := reg.GetOrCreate(id, KeyOf[*brokenResource]())
	require.True(t, ok)

	removed, err := reg.Remove(id, KeyOf[*brokenResource]())
	assert.True(t, removed)
	require.Error(t, err)
	assert.True(t, IsDisposalFailed(err))
	assert.ErrorIs(t, err, errBoom)

	// The entry is gone regardless
	_, ok = reg.Get(id, KeyOf[*brokenResource]())
	assert.False(t, ok)
	assert.Equal(t, int32(1), instance.(*brokenResource).disposed.Load())
}

func TestRegistry_RemoveNonDisposable(t *testing.T) {
	reg := newTestRegistry(t)
	id := NewScopeID()

	_, ok := reg.GetOrCreate(id, KeyOf[*plainService]())
	require.True(t, ok)

	removed, err := reg.Remove(id, KeyOf[*plainService]())
	assert.NoError(t, err)
	assert.True(t, removed)
}

func TestRegistry_RemoveScope(t *testing.T) {
	reg := newTestRegistry(t)
	s1, s2 := NewScopeID(), NewScopeID()

	res1, _ := reg.GetOrCreate(s1, KeyOf[*syncResource]())
	async1, _ := reg.GetOrCreate(s1, KeyOf[*asyncResource]())
	_, _ = reg.GetOrCreate(s1, KeyOf[*Timer]())
	res2, _ := reg.GetOrCreate(s2, KeyOf[*syncResource]())

	n, err := reg.RemoveScope(s1)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	assert.Equal(t, int32(1), res1.(*syncResource).disposed.Load())
	assert.Equal(t, int32(1), async1.(*asyncResource).disposed.Load())
	assert.Zero(t, res2.(*syncResource).disposed.Load())

	assert.Equal(t, []ScopeID{s2}, reg.Scopes())
	assert.Equal(t, 1, reg.Len())

	n, err = reg.RemoveScope(s1)
	assert.NoError(t, err)
	assert.Zero(t, n)
}

func TestRegistry_RemoveScopeContinuesPastFailures(t *testing.T) {
	reg := newTestRegistry(t)
	id := NewScopeID()

	res, _ := reg.GetOrCreate(id, KeyOf[*syncResource]())
	broken, _ := reg.GetOrCreate(id, KeyOf[*brokenResource]())

	n, err := reg.RemoveScope(id)
	assert.Equal(t, 2, n)
	require.Error(t, err)
	assert.True(t, IsDisposalFailed(err))

	assert.Equal(t, int32(1), res.(*syncResource).disposed.Load())
	assert.Equal(t, int32(1), broken.(*brokenResource).disposed.Load())
}

func TestRegistry_DisposeReleasesEverything(t *testing.T) {
	reg := newTestRegistry(t)
	s1, s2 := NewScopeID(), NewScopeID()

	res1, _ := reg.GetOrCreate(s1, KeyOf[*syncResource]())
	res2, _ := reg.GetOrCreate(s2, KeyOf[*syncResource]())
	async1, _ := reg.GetOrCreate(s1, KeyOf[*asyncResource]())

	require.NoError(t, reg.Dispose())
	assert.True(t, reg.IsDisposed())

	assert.Equal(t, int32(1), res1.(*syncResource).disposed.Load())
	assert.Equal(t, int32(1), res2.(*syncResource).disposed.Load())

	// Async-only instances fall back to DisposeAsync
	assert.Equal(t, int32(1), async1.(*asyncResource).disposed.Load())
	assert.NotNil(t, async1.(*asyncResource).ctx)
}

func TestRegistry_DisposeIsIdempotent(t *testing.T) {
	reg := newTestRegistry(t)
	id := NewScopeID()

	res, _ := reg.GetOrCreate(id, KeyOf[*syncResource]())

	require.NoError(t, reg.Dispose())
	require.NoError(t, reg.Dispose())
	require.NoError(t, reg.DisposeAsync(context.Background()))

	assert.Equal(t, int32(1), res.(*syncResource).disposed.Load())
}

func TestRegistry_DisposeUsesSyncProtocolOnly(t *testing.T) {
	reg := newTestRegistry(t)
	id := NewScopeID()

	instance, _ := reg.GetOrCreate(id, KeyOf[*dualResource]())
	dual := instance.(*dualResource)

	require.NoError(t, reg.Dispose())
	require.NoError(t, reg.DisposeAsync(context.Background()))

	assert.Equal(t, int32(1), dual.syncCalls.Load())
	assert.Zero(t, dual.asyncCalls.Load())
}

func TestRegistry_DisposeAsyncInvokesBothProtocols(t *testing.T) {
	reg := newTestRegistry(t)
	id := NewScopeID()

	instance, _ := reg.GetOrCreate(id, KeyOf[*dualResource]())
	dual := instance.(*dualResource)

	require.NoError(t, reg.DisposeAsync(context.Background()))
	require.NoError(t, reg.Dispose())

	assert.Equal(t, int32(1), dual.syncCalls.Load())
	assert.Equal(t, int32(1), dual.asyncCalls.Load())
}

func TestRegistry_DisposeAsyncPassesContext(t *testing.T) {
	reg := newTestRegistry(t)
	id := NewScopeID()

	instance, _ := reg.GetOrCreate(id, KeyOf[*asyncResource]())

	type ctxKey struct{}
	ctx := context.WithValue(context.Background(), ctxKey{}, "marker")

	require.NoError(t, reg.DisposeAsync(ctx))

	res := instance.(*asyncResource)
	require.NotNil(t, res.ctx)
	assert.Equal(t, "marker", res.ctx.Value(ctxKey{}))
}

func TestRegistry_DisposeAggregatesFailures(t *testing.T) {
	reg := newTestRegistry(t)
	s1, s2 := NewScopeID(), NewScopeID()

	broken1, _ := reg.GetOrCreate(s1, KeyOf[*brokenResource]())
	res, _ := reg.GetOrCreate(s1, KeyOf[*syncResource]())
	broken2, _ := reg.GetOrCreate(s2, KeyOf[*brokenResource]())

	err := reg.Dispose()
	require.Error(t, err)
	assert.True(t, IsDisposalFailed(err))
	assert.ErrorIs(t, err, errBoom)

	// A failure does not abort the pass
	assert.Equal(t, int32(1), broken1.(*brokenResource).disposed.Load())
	assert.Equal(t, int32(1), res.(*syncResource).disposed.Load())
	assert.Equal(t, int32(1), broken2.(*brokenResource).disposed.Load())

	assert.True(t, reg.IsDisposed())
	assert.NoError(t, reg.Dispose())
}

func TestRegistry_DisposeRecoversPanickingDisposer(t *testing.T) {
	c := NewContainer()
	require.NoError(t, c.Provide(func() *panickyResource { return &panickyResource{id: 1} }))
	require.NoError(t, c.Provide(func() *syncResource { return &syncResource{name: "after"} }))

	reg := NewRegistry(c)
	id := NewScopeID()

	_, _ = reg.GetOrCreate(id, KeyOf[*panickyResource]())
	res, _ := reg.GetOrCreate(id, KeyOf[*syncResource]())

	err := reg.Dispose()
	require.Error(t, err)
	assert.True(t, IsDisposalFailed(err))
	assert.Equal(t, int32(1), res.(*syncResource).disposed.Load())
}

type panickyResource struct {
	id int
}

func (p *panickyResource) Dispose() error {
	panic("disposer exploded")
}

func TestRegistry_DisposeReleasesNewestFirst(t *testing.T) {
	var order []string

	c := NewContainer()
	require.NoError(t, c.Provide(func() *syncResource {
		return &syncResource{name: "first"}
	}))
	require.NoError(t, c.Provide(func() *plainService { return &plainService{value: "plain"} }))

	reg := NewRegistry(c, WithMiddleware(&FuncMiddleware{
		AfterReleaseFunc: func(_ context.Context, _ ScopeID, key TypeKey, _ error) {
			order = append(order, key.String())
		},
	}))

	s1, s2 := NewScopeID(), NewScopeID()
	_, _ = reg.GetOrCreate(s1, KeyOf[*syncResource]())
	_, _ = reg.GetOrCreate(s2, KeyOf[*plainService]())
	_, _ = reg.GetOrCreate(s2, KeyOf[*syncResource]())

	require.NoError(t, reg.Dispose())

	assert.Equal(t, []string{
		KeyOf[*syncResource]().String(),
		KeyOf[*plainService]().String(),
		KeyOf[*syncResource]().String(),
	}, order)

	infos := reg.Entries(EntryQuery{})
	require.Len(t, infos, 3)
	assert.Equal(t, s1, infos[0].Scope)
}

func TestRegistry_GetOrCreateAfterDispose(t *testing.T) {
	reg := newTestRegistry(t)
	id := NewScopeID()

	require.NoError(t, reg.Dispose())

	instance, ok := reg.GetOrCreate(id, KeyOf[*Timer]())
	assert.False(t, ok)
	assert.Nil(t, instance)
	assert.Zero(t, reg.Len())
}

func TestRegistry_ResidualEntriesAfterDispose(t *testing.T) {
	reg := newTestRegistry(t)
	id := NewScopeID()

	created, _ := reg.GetOrCreate(id, KeyOf[*syncResource]())
	require.NoError(t, reg.Dispose())

	// Late readers still see the released instance
	got, ok := reg.Get(id, KeyOf[*syncResource]())
	require.True(t, ok)
	assert.Same(t, created, got)

	// GetOrCreate neither hands out the residual nor creates
	again, ok := reg.GetOrCreate(id, KeyOf[*syncResource]())
	assert.False(t, ok)
	assert.Nil(t, again)

	// A late Remove forgets the entry without disposing twice
	removed, err := reg.Remove(id, KeyOf[*syncResource]())
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, int32(1), created.(*syncResource).disposed.Load())
	assert.Zero(t, reg.Len())
}

func TestRegistry_CustomActivator(t *testing.T) {
	var calls int

	activator := ActivatorFunc(func(_ Resolver, key TypeKey) (any, error) {
		calls++
		return &plainService{value: key.String()}, nil
	})

	reg := NewRegistry(NewContainer(), WithActivator(activator))
	id := NewScopeID()

	instance, ok := reg.GetOrCreate(id, KeyOf[*plainService]())
	require.True(t, ok)
	assert.Equal(t, KeyOf[*plainService]().String(), instance.(*plainService).value)

	_, _ = reg.GetOrCreate(id, KeyOf[*plainService]())
	assert.Equal(t, 1, calls)
}

func TestRegistry_WithClockStampsEntries(t *testing.T) {
	stamp := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	reg := newTestRegistry(t, WithClock(func() time.Time { return stamp }))
	id := NewScopeID()

	_, _ = reg.GetOrCreate(id, KeyOf[*Timer]())

	info, ok := reg.Inspect(id, KeyOf[*Timer]())
	require.True(t, ok)
	assert.Equal(t, stamp, info.CreatedAt)
}

func TestRegistry_NilOptionsKeepDefaults(t *testing.T) {
	reg := newTestRegistry(t, WithLogger(nil), WithActivator(nil), WithClock(nil), WithMiddleware(nil))

	_, ok := reg.GetOrCreate(NewScopeID(), KeyOf[*Timer]())
	assert.True(t, ok)
}

func TestRegistry_NewIsNewRegistry(t *testing.T) {
	reg := New(newTestContainer(t))

	_, ok := reg.GetOrCreate(NewScopeID(), KeyOf[Ticker]())
	assert.True(t, ok)
}

func TestRegistry_InvariantViolationPanics(t *testing.T) {
	t.Run("duplicate index entry", func(t *testing.T) {
		reg := newTestRegistry(t)
		id := NewScopeID()

		_, ok := reg.GetOrCreate(id, KeyOf[*Timer]())
		require.True(t, ok)

		reg.mu.Lock()
		reg.scopes[id] = append(reg.scopes[id], reg.scopes[id][0])
		reg.mu.Unlock()

		requireInvariantPanic(t, func() { reg.Get(id, KeyOf[*Timer]()) })
	})

	t.Run("indexed entry missing from table", func(t *testing.T) {
		reg := newTestRegistry(t)
		id := NewScopeID()

		_, ok := reg.GetOrCreate(id, KeyOf[*Timer]())
		require.True(t, ok)

		reg.mu.Lock()
		delete(reg.entries, entryKey{scope: id, key: KeyOf[*Timer]()})
		reg.mu.Unlock()

		requireInvariantPanic(t, func() { reg.Get(id, KeyOf[*Timer]()) })
	})

	t.Run("table entry under wrong key", func(t *testing.T) {
		reg := newTestRegistry(t)
		id := NewScopeID()

		_, ok := reg.GetOrCreate(id, KeyOf[*Timer]())
		require.True(t, ok)

		reg.mu.Lock()
		reg.entries[entryKey{scope: id, key: KeyOf[*Stopwatch]()}] = reg.scopes[id][0]
		reg.mu.Unlock()

		requireInvariantPanic(t, func() { reg.Get(id, KeyOf[*Stopwatch]()) })
	})
}

func TestRegistry_InterfaceScopesDisposedIndependently(t *testing.T) {
	c := NewContainer()
	require.NoError(t, c.Provide(func() *syncResource {
		return &syncResource{name: "by-interface"}
	}, As(new(Disposable))))

	reg := NewRegistry(c)
	s1, s2 := NewScopeID(), NewScopeID()

	a, ok := reg.GetOrCreate(s1, KeyOf[Disposable]())
	require.True(t, ok)
	b, ok := reg.GetOrCreate(s2, KeyOf[Disposable]())
	require.True(t, ok)

	require.IsType(t, &syncResource{}, a)
	assert.NotSame(t, a, b)

	_, err := reg.Remove(s1, KeyOf[Disposable]())
	require.NoError(t, err)
	assert.Equal(t, int32(1), a.(*syncResource).disposed.Load())
	assert.Zero(t, b.(*syncResource).disposed.Load())

	_, err = reg.Remove(s2, KeyOf[Disposable]())
	require.NoError(t, err)
	assert.Equal(t, int32(1), a.(*syncResource).disposed.Load())
	assert.Equal(t, int32(1), b.(*syncResource).disposed.Load())
}

func TestRegistry_NamedRegistrationsActivateSeparately(t *testing.T) {
	c := NewContainer()
	require.NoError(t, c.Provide(func() *testDatabase {
		return &testDatabase{dsn: "primary"}
	}, WithName("primary"), As(new(dataStore))))
	require.NoError(t, c.Provide(func() *testDatabase {
		return &testDatabase{dsn: "replica"}
	}, WithName("replica"), As(new(dataStore))))

	reg := NewRegistry(c)
	id := NewScopeID()

	replica, ok := Obtain[*testDatabase](reg, id, "replica")
	require.True(t, ok)
	assert.Equal(t, "replica", replica.dsn)

	primary, ok := Obtain[*testDatabase](reg, id, "primary")
	require.True(t, ok)
	assert.Equal(t, "primary", primary.dsn)

	replicaStore, ok := Obtain[dataStore](reg, id, "replica")
	require.True(t, ok)
	assert.Equal(t, "replica", replicaStore.DSN())

	primaryStore, ok := Obtain[dataStore](reg, id, "primary")
	require.True(t, ok)
	assert.Equal(t, "primary", primaryStore.DSN())

	assert.Equal(t, 4, reg.Len())

	_, ok = Obtain[dataStore](reg, id, "missing")
	assert.False(t, ok)
}

func TestRegistry_InterfaceResultConstructorBuildsScopedCopy(t *testing.T) {
	var built constructionLog[*Timer]

	c := NewContainer()
	require.NoError(t, c.Provide(newTestClock))
	require.NoError(t, c.Provide(func(clock *testClock) Ticker {
		return built.add(&Timer{clock: clock, ticks: 10})
	}))

	outer, err := c.Resolve(KeyOf[Ticker]())
	require.NoError(t, err)

	reg := NewRegistry(c)

	inner, ok := Obtain[Ticker](reg, NewScopeID())
	require.True(t, ok)

	// The constructor ran again for the scoped copy
	assert.Equal(t, 2, built.count())
	assert.NotSame(t, outer, inner)

	timer := inner.(*Timer)
	assert.NotNil(t, timer.clock)
	assert.Equal(t, 11, timer.Tick())

	concrete, ok := Obtain[*Timer](reg, NewScopeID())
	require.True(t, ok)
	assert.Equal(t, 10, concrete.ticks)
	assert.Equal(t, 3, built.count())
}
