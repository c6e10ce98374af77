package berth

import (
	"context"
	"sync"

	"github.com/xraph/go-utils/log"
	"go.uber.org/multierr"
)

// Scope is the handle a scope boundary holds between its start and its end.
// It owns the id, the set of services declared at start, and the duty to
// remove the ones it created exactly once.
type Scope struct {
	registry *Registry
	id       ScopeID
	keys     []TypeKey
	owned    []TypeKey // keys this handle inserted, in creation order
	ctx      context.Context
	ended    bool
	mu       sync.Mutex
}

// BeginScope starts a scope with a fresh id and creates every declared
// service. A service that cannot be created fails the whole scope loudly:
// whatever was already created is removed and ErrServiceUnavailable is
// returned.
func (r *Registry) BeginScope(ctx context.Context, keys ...TypeKey) (*Scope, error) {
	return r.BeginScopeWithID(ctx, NewScopeID(), keys...)
}

// BeginScopeWithID is BeginScope for an id the caller already holds, for
// example one restored from a previous render of the same subtree. Entries
// that already exist under id are reused but not owned: neither End nor a
// failed start removes them.
func (r *Registry) BeginScopeWithID(ctx context.Context, id ScopeID, keys ...TypeKey) (*Scope, error) {
	if id.IsNil() {
		return nil, ErrInvalidScopeID
	}
	if ctx == nil {
		ctx = context.Background()
	}

	s := &Scope{
		registry: r,
		id:       id,
		ctx:      WithScopeID(ctx, id),
	}

	for _, key := range keys {
		_, created, ok := r.getOrCreate(id, key)
		if !ok {
			var cause error = ErrActivationFailed(key, nil)
			if r.IsDisposed() {
				cause = ErrRegistryDisposed
			}

			if err := s.End(); err != nil {
				r.logger.Warn("rollback of partially started scope failed",
					log.String("scope", id.String()),
					log.Error(err))
			}

			return nil, ErrServiceUnavailable(key, cause)
		}
		s.keys = append(s.keys, key)
		if created {
			s.owned = append(s.owned, key)
		}
	}

	r.logger.Debug("scope started",
		log.String("scope", id.String()),
		log.Int("services", len(s.keys)),
		log.Int("created", len(s.owned)))

	return s, nil
}

// ID returns the scope id.
func (s *Scope) ID() ScopeID {
	return s.id
}

// Context returns the context passed to BeginScope carrying the scope id.
// Hand it to descendants so they can look services up.
func (s *Scope) Context() context.Context {
	return s.ctx
}

// Keys returns the services declared when the scope began.
func (s *Scope) Keys() []TypeKey {
	keys := make([]TypeKey, len(s.keys))
	copy(keys, s.keys)
	return keys
}

// Get returns a borrowed service of this scope.
func (s *Scope) Get(key TypeKey) (any, bool) {
	s.mu.Lock()
	ended := s.ended
	s.mu.Unlock()

	if ended {
		return nil, false
	}

	return s.registry.Get(s.id, key)
}

// End removes every service this scope created, newest first. Disposal
// failures are collected and returned together. Calling End again returns
// ErrScopeEnded.
func (s *Scope) End() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return ErrScopeEnded
	}
	s.ended = true

	var errs error
	for i := len(s.owned) - 1; i >= 0; i-- {
		if _, err := s.registry.Remove(s.id, s.owned[i]); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}

// Ended reports whether End has been called.
func (s *Scope) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.ended
}
