package berth

import "context"

// Middleware provides hooks for observing registry operations.
// Middleware can be used for logging, metrics, access control, testing, etc.
type Middleware interface {
	// BeforeActivate is called before a new instance is built for (id, key).
	// Return error to veto creation; GetOrCreate then reports absence.
	BeforeActivate(ctx context.Context, id ScopeID, key TypeKey) error

	// AfterActivate is called after an activation attempt.
	// Called even if activation failed (instance is nil and err is set).
	AfterActivate(ctx context.Context, id ScopeID, key TypeKey, instance any, err error)

	// AfterRelease is called after an instance owned by (id, key) was released.
	AfterRelease(ctx context.Context, id ScopeID, key TypeKey, err error)

	// AfterDispose is called once, after a bulk disposal pass.
	AfterDispose(ctx context.Context, released int, err error)
}

// middlewareChain manages multiple middleware.
type middlewareChain struct {
	middleware []Middleware
}

// newMiddlewareChain creates a new middleware chain.
func newMiddlewareChain() *middlewareChain {
	return &middlewareChain{
		middleware: make([]Middleware, 0),
	}
}

// add appends middleware to the chain.
func (m *middlewareChain) add(middleware Middleware) {
	if middleware != nil {
		m.middleware = append(m.middleware, middleware)
	}
}

// beforeActivate calls BeforeActivate on all middleware, stopping at the first veto.
func (m *middlewareChain) beforeActivate(ctx context.Context, id ScopeID, key TypeKey) error {
	for _, mw := range m.middleware {
		if err := mw.BeforeActivate(ctx, id, key); err != nil {
			return err
		}
	}
	return nil
}

func (m *middlewareChain) afterActivate(ctx context.Context, id ScopeID, key TypeKey, instance any, err error) {
	for _, mw := range m.middleware {
		mw.AfterActivate(ctx, id, key, instance, err)
	}
}

func (m *middlewareChain) afterRelease(ctx context.Context, id ScopeID, key TypeKey, err error) {
	for _, mw := range m.middleware {
		mw.AfterRelease(ctx, id, key, err)
	}
}

func (m *middlewareChain) afterDispose(ctx context.Context, released int, err error) {
	for _, mw := range m.middleware {
		mw.AfterDispose(ctx, released, err)
	}
}

// FuncMiddleware wraps functions as Middleware. Nil fields are skipped.
type FuncMiddleware struct {
	BeforeActivateFunc func(ctx context.Context, id ScopeID, key TypeKey) error
	AfterActivateFunc  func(ctx context.Context, id ScopeID, key TypeKey, instance any, err error)
	AfterReleaseFunc   func(ctx context.Context, id ScopeID, key TypeKey, err error)
	AfterDisposeFunc   func(ctx context.Context, released int, err error)
}

// BeforeActivate implements Middleware.
func (f *FuncMiddleware) BeforeActivate(ctx context.Context, id ScopeID, key TypeKey) error {
	if f.BeforeActivateFunc != nil {
		return f.BeforeActivateFunc(ctx, id, key)
	}
	return nil
}

// AfterActivate implements Middleware.
func (f *FuncMiddleware) AfterActivate(ctx context.Context, id ScopeID, key TypeKey, instance any, err error) {
	if f.AfterActivateFunc != nil {
		f.AfterActivateFunc(ctx, id, key, instance, err)
	}
}

// AfterRelease implements Middleware.
func (f *FuncMiddleware) AfterRelease(ctx context.Context, id ScopeID, key TypeKey, err error) {
	if f.AfterReleaseFunc != nil {
		f.AfterReleaseFunc(ctx, id, key, err)
	}
}

// AfterDispose implements Middleware.
func (f *FuncMiddleware) AfterDispose(ctx context.Context, released int, err error) {
	if f.AfterDisposeFunc != nil {
		f.AfterDisposeFunc(ctx, released, err)
	}
}
