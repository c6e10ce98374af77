package berth

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/xraph/go-utils/log"
	"go.uber.org/multierr"
)

// Registry owns service instances per (scope, type) pair.
//
// GetOrCreate builds an instance on first request through the Activator and
// the outer Resolver; Get only looks up; Remove and RemoveScope release what a
// scope created; Dispose and DisposeAsync release everything once, at the end
// of the registry's own lifetime.
//
// Callers receive borrowed references and must never release them.
// Disposers run by the registry must not call back into it.
type Registry struct {
	resolver   Resolver
	activator  Activator
	logger     log.Logger
	middleware *middlewareChain
	now        func() time.Time

	entries  map[entryKey]*entry
	scopes   map[ScopeID][]*entry // per-scope index
	seq      uint64
	disposed bool
	inflight sync.WaitGroup // releases running outside the lock
	mu       sync.Mutex
}

type entryKey struct {
	scope ScopeID
	key   TypeKey
}

// entry binds a (scope, type) pair to one owned instance.
type entry struct {
	scope     ScopeID
	key       TypeKey
	instance  any
	caps      capability
	released  bool
	seq       uint64
	createdAt time.Time
}

// NewRegistry creates a registry that activates services from resolver.
func NewRegistry(resolver Resolver, opts ...Option) *Registry {
	r := &Registry{
		resolver:   resolver,
		activator:  DefaultActivator(),
		logger:     log.NewNoopLogger(),
		middleware: newMiddlewareChain(),
		now:        time.Now,
		entries:    make(map[entryKey]*entry),
		scopes:     make(map[ScopeID][]*entry),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// GetOrCreate returns the instance owned by (id, key), creating it on first
// request. It reports false when the service cannot be activated, when id is
// NilScopeID or key is zero, or once the registry has been disposed; nothing
// is recorded in those cases.
//
// Concurrent calls for the same pair construct at most one surviving
// instance: a caller that loses the race releases its own instance and
// returns the winner's. Middleware sees that release like any other, so
// every successful activation is matched by exactly one AfterRelease.
func (r *Registry) GetOrCreate(id ScopeID, key TypeKey) (any, bool) {
	instance, _, ok := r.getOrCreate(id, key)
	return instance, ok
}

// getOrCreate is GetOrCreate that also reports whether this call inserted
// the entry, as opposed to finding one already there or losing the race.
func (r *Registry) getOrCreate(id ScopeID, key TypeKey) (instance any, created bool, ok bool) {
	if id.IsNil() || key.IsZero() {
		return nil, false, false
	}

	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		r.logger.Debug("registry disposed, not creating service",
			log.String("scope", id.String()),
			log.String("service", key.String()))
		return nil, false, false
	}
	if e := r.lookup(id, key); e != nil {
		cached := e.instance
		r.mu.Unlock()
		return cached, false, true
	}
	r.mu.Unlock()

	ctx := context.Background()

	if err := r.middleware.beforeActivate(ctx, id, key); err != nil {
		r.logger.Warn("service activation vetoed",
			log.String("scope", id.String()),
			log.String("service", key.String()),
			log.Error(err))
		return nil, false, false
	}

	instance, err := r.activator.Activate(r.resolver, key)
	r.middleware.afterActivate(ctx, id, key, instance, err)

	if err != nil {
		r.logger.Warn("service activation failed",
			log.String("scope", id.String()),
			log.String("service", key.String()),
			log.Error(err))
		return nil, false, false
	}

	r.mu.Lock()
	if r.disposed {
		r.inflight.Add(1)
		r.mu.Unlock()
		r.discard(ctx, id, key, instance, "registry disposed during activation")
		return nil, false, false
	}
	if e := r.lookup(id, key); e != nil {
		winner := e.instance
		r.inflight.Add(1)
		r.mu.Unlock()
		r.discard(ctx, id, key, instance, "lost creation race")
		return winner, false, true
	}

	r.seq++
	r.insert(&entry{
		scope:     id,
		key:       key,
		instance:  instance,
		caps:      capabilitiesOf(instance),
		seq:       r.seq,
		createdAt: r.now(),
	})
	r.mu.Unlock()

	r.logger.Debug("scoped service created",
		log.String("scope", id.String()),
		log.String("service", key.String()),
		log.String("type", fmt.Sprintf("%T", instance)))

	return instance, true, true
}

// Get returns the instance owned by (id, key). It never creates one.
// After bulk disposal residual entries are still returned, but their
// instances have been released.
func (r *Registry) Get(id ScopeID, key TypeKey) (any, bool) {
	if id.IsNil() || key.IsZero() {
		return nil, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if e := r.lookup(id, key); e != nil {
		return e.instance, true
	}
	return nil, false
}

// Remove releases the instance owned by (id, key) through every disposal
// protocol it implements and forgets the entry. It reports false, with no
// side effects, when there is no such entry. The error carries disposal
// failures; the entry is removed regardless.
func (r *Registry) Remove(id ScopeID, key TypeKey) (bool, error) {
	if id.IsNil() || key.IsZero() {
		return false, nil
	}

	r.mu.Lock()
	e := r.lookup(id, key)
	if e == nil {
		r.mu.Unlock()
		return false, nil
	}

	r.unlink(e)
	owned := !e.released
	e.released = true
	if owned {
		r.inflight.Add(1)
	}
	r.mu.Unlock()

	if !owned {
		// Released by an earlier bulk disposal.
		return true, nil
	}

	defer r.inflight.Done()

	if err := r.releaseEntry(context.Background(), e, releaseAll); err != nil {
		return true, ErrDisposal("remove", err)
	}

	r.logger.Debug("scoped service removed",
		log.String("scope", id.String()),
		log.String("service", key.String()))

	return true, nil
}

// RemoveScope removes every entry owned by id, releasing each one. A failing
// release does not stop the others. It returns the number of entries removed.
func (r *Registry) RemoveScope(id ScopeID) (int, error) {
	if id.IsNil() {
		return 0, nil
	}

	r.mu.Lock()
	scoped := make([]*entry, len(r.scopes[id]))
	copy(scoped, r.scopes[id])

	var owned []*entry
	for _, e := range scoped {
		r.unlink(e)
		if !e.released {
			e.released = true
			owned = append(owned, e)
		}
	}
	r.inflight.Add(len(owned))
	r.mu.Unlock()

	sortNewestFirst(owned)

	var errs error
	for _, e := range owned {
		errs = multierr.Append(errs, r.releaseEntry(context.Background(), e, releaseAll))
		r.inflight.Done()
	}

	if len(scoped) > 0 {
		r.logger.Debug("scope removed",
			log.String("scope", id.String()),
			log.Int("entries", len(scoped)))
	}

	if errs != nil {
		return len(scoped), ErrDisposal("remove scope", errs)
	}
	return len(scoped), nil
}

// Dispose releases every remaining instance and marks the registry
// disposed. Instances are released through Dispose; instances that only
// implement AsyncDisposable are released through DisposeAsync with a
// background context. Later calls to Dispose or DisposeAsync do nothing.
//
// Entries are kept so late readers do not fail, but their instances must no
// longer be used.
func (r *Registry) Dispose() error {
	return r.disposeAll(context.Background(), releaseSync, "dispose")
}

// DisposeAsync is the context-aware form of Dispose. Every disposal protocol
// an instance implements is invoked, and ctx is passed to DisposeAsync.
// Each release completes before the next starts.
func (r *Registry) DisposeAsync(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return r.disposeAll(ctx, releaseAll, "dispose async")
}

func (r *Registry) disposeAll(ctx context.Context, mode releaseMode, operation string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.disposed {
		return nil
	}

	pending := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		if !e.released {
			pending = append(pending, e)
		}
	}
	sortNewestFirst(pending)

	var errs error
	for _, e := range pending {
		e.released = true
		errs = multierr.Append(errs, r.releaseEntry(ctx, e, mode))
	}

	// Removals already unlinked from the table finish before the flag flips.
	r.inflight.Wait()
	r.disposed = true

	failures := len(multierr.Errors(errs))
	if errs != nil {
		errs = ErrDisposal(operation, errs)
	}

	r.middleware.afterDispose(ctx, len(pending), errs)

	r.logger.Info("scoped service registry disposed",
		log.String("operation", operation),
		log.Int("released", len(pending)),
		log.Int("failures", failures))

	return errs
}

// releaseEntry releases one unlinked or flagged entry and reports it.
func (r *Registry) releaseEntry(ctx context.Context, e *entry, mode releaseMode) error {
	err := release(ctx, e.instance, e.caps, mode)

	r.middleware.afterRelease(ctx, e.scope, e.key, err)

	if err != nil {
		r.logger.Warn("scoped service disposal failed",
			log.String("scope", e.scope.String()),
			log.String("service", e.key.String()),
			log.Error(err))
	}

	return err
}

// discard releases an instance that never made it into the table.
// The caller has already counted it in inflight.
func (r *Registry) discard(ctx context.Context, id ScopeID, key TypeKey, instance any, reason string) {
	defer r.inflight.Done()

	err := release(ctx, instance, capabilitiesOf(instance), releaseAll)
	r.middleware.afterRelease(ctx, id, key, err)

	r.logger.Debug("discarded activated service",
		log.String("scope", id.String()),
		log.String("service", key.String()),
		log.String("reason", reason))

	if err != nil {
		r.logger.Warn("disposal of discarded service failed",
			log.String("scope", id.String()),
			log.String("service", key.String()),
			log.Error(err))
	}
}

// lookup finds the entry for exactly (id, key). The table and the per-scope
// index must agree on at most one match; anything else is a defect and
// panics. Must be called with r.mu held.
func (r *Registry) lookup(id ScopeID, key TypeKey) *entry {
	e, ok := r.entries[entryKey{scope: id, key: key}]

	indexed := 0
	for _, candidate := range r.scopes[id] {
		if candidate.key == key {
			indexed++
		}
	}

	switch {
	case !ok && indexed == 0:
		return nil
	case !ok:
		panic(ErrInvariantViolation(id, key, "indexed entry missing from table"))
	case e.scope != id || e.key != key:
		panic(ErrInvariantViolation(id, key, fmt.Sprintf("table holds entry for (%s, %s)", e.scope, e.key)))
	case indexed != 1:
		panic(ErrInvariantViolation(id, key, fmt.Sprintf("%d entries match", indexed)))
	}

	return e
}

// insert must be called with r.mu held.
func (r *Registry) insert(e *entry) {
	r.entries[entryKey{scope: e.scope, key: e.key}] = e
	r.scopes[e.scope] = append(r.scopes[e.scope], e)
}

// unlink must be called with r.mu held.
func (r *Registry) unlink(e *entry) {
	delete(r.entries, entryKey{scope: e.scope, key: e.key})

	scoped := r.scopes[e.scope]
	for i, candidate := range scoped {
		if candidate == e {
			scoped = append(scoped[:i], scoped[i+1:]...)
			break
		}
	}

	if len(scoped) == 0 {
		delete(r.scopes, e.scope)
	} else {
		r.scopes[e.scope] = scoped
	}
}

// sortNewestFirst orders entries for release, last created first.
func sortNewestFirst(entries []*entry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].seq > entries[j].seq
	})
}
