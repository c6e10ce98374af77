package berth

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
)

// Disposable is implemented by services holding resources that are released
// synchronously.
type Disposable interface {
	Dispose() error
}

// AsyncDisposable is implemented by services whose release may block on I/O.
// Implementations should respect ctx cancellation where they can.
//
// A service may implement both Disposable and AsyncDisposable; the two are
// treated as guarding independent resources and both are invoked.
type AsyncDisposable interface {
	DisposeAsync(ctx context.Context) error
}

// capability is the set of disposal protocols an instance exposes.
type capability uint8

const (
	capSync capability = 1 << iota
	capAsync
)

func capabilitiesOf(instance any) capability {
	var caps capability
	if _, ok := instance.(Disposable); ok {
		caps |= capSync
	}
	if _, ok := instance.(AsyncDisposable); ok {
		caps |= capAsync
	}
	return caps
}

func (c capability) has(flag capability) bool {
	return c&flag != 0
}

// String lists the capabilities, e.g. "sync+async".
func (c capability) String() string {
	switch c {
	case 0:
		return "none"
	case capSync:
		return "sync"
	case capAsync:
		return "async"
	default:
		return "sync+async"
	}
}

// releaseMode selects which protocols a release pass invokes.
type releaseMode int

const (
	// releaseAll invokes every protocol present. Used by Remove and DisposeAsync.
	releaseAll releaseMode = iota

	// releaseSync prefers the synchronous protocol and falls back to the
	// asynchronous one only for instances without it. Used by Dispose.
	releaseSync
)

// release runs the disposal protocols of one instance. Both protocols are
// attempted even when the first fails.
func release(ctx context.Context, instance any, caps capability, mode releaseMode) error {
	var err error

	if caps.has(capSync) {
		err = multierr.Append(err, safeCall(func() error {
			return instance.(Disposable).Dispose()
		}))
	}

	if caps.has(capAsync) && (mode == releaseAll || !caps.has(capSync)) {
		err = multierr.Append(err, safeCall(func() error {
			return instance.(AsyncDisposable).DisposeAsync(ctx)
		}))
	}

	return err
}

// safeCall converts a panicking disposer into an error so one bad instance
// cannot abort a bulk pass.
func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dispose panicked: %v", r)
		}
	}()
	return fn()
}
