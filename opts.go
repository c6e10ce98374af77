package berth

import (
	"reflect"
	"time"

	"github.com/xraph/go-utils/log"
)

// =============================================================================
// CONTAINER OPTIONS
// =============================================================================

// ProvideOption configures how a constructor or value is registered.
type ProvideOption interface {
	applyProvide(*provideConfig)
}

type provideConfig struct {
	name      string
	asTypes   []reflect.Type
	lifecycle string
}

type provideOptionFunc func(*provideConfig)

func (f provideOptionFunc) applyProvide(c *provideConfig) { f(c) }

func newProvideConfig(opts []ProvideOption) *provideConfig {
	config := &provideConfig{lifecycle: lifecycleSingleton}
	for _, opt := range opts {
		opt.applyProvide(config)
	}
	return config
}

// WithName gives the registration a name for disambiguation.
// Use this when you have multiple implementations of the same type.
//
// Example:
//
//	c.Provide(NewPrimaryStore, berth.WithName("primary"))
//	c.Provide(NewReplicaStore, berth.WithName("replica"))
func WithName(name string) ProvideOption {
	return provideOptionFunc(func(c *provideConfig) {
		c.name = name
	})
}

// As also registers the result under the given interface types.
// Pass pointers to the interfaces.
//
// Example:
//
//	c.Provide(NewTimer, berth.As(new(Ticker), new(io.Closer)))
func As(ifaces ...any) ProvideOption {
	return provideOptionFunc(func(c *provideConfig) {
		for _, iface := range ifaces {
			t := reflect.TypeOf(iface)
			if t.Kind() == reflect.Ptr {
				t = t.Elem()
			}
			c.asTypes = append(c.asTypes, t)
		}
	})
}

// AsSingleton makes the container build the service once (default).
func AsSingleton() ProvideOption {
	return provideOptionFunc(func(c *provideConfig) {
		c.lifecycle = lifecycleSingleton
	})
}

// AsTransient makes the container build a new instance on each Resolve.
func AsTransient() ProvideOption {
	return provideOptionFunc(func(c *provideConfig) {
		c.lifecycle = lifecycleTransient
	})
}

// =============================================================================
// REGISTRY OPTIONS
// =============================================================================

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for activation and disposal events.
func WithLogger(logger log.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithActivator replaces the default activation strategy.
func WithActivator(activator Activator) Option {
	return func(r *Registry) {
		if activator != nil {
			r.activator = activator
		}
	}
}

// WithMiddleware adds middleware. Middleware is called in the order added.
func WithMiddleware(middleware ...Middleware) Option {
	return func(r *Registry) {
		for _, mw := range middleware {
			r.middleware.add(mw)
		}
	}
}

// WithClock sets the time source used to stamp entries.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}
