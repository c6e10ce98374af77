package berth

import (
	"context"

	"github.com/google/uuid"
)

// ScopeID names one logical scope. It is comparable and safe to use as a map key.
// Ids are generated once per scope boundary and never reused.
type ScopeID uuid.UUID

// NilScopeID is the empty sentinel. Registry operations on it are no-ops.
var NilScopeID ScopeID

// NewScopeID returns a fresh random scope id.
func NewScopeID() ScopeID {
	return ScopeID(uuid.New())
}

// ParseScopeID decodes the textual form produced by String.
func ParseScopeID(s string) (ScopeID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return NilScopeID, err
	}
	return ScopeID(u), nil
}

// IsNil reports whether id is the empty sentinel.
func (id ScopeID) IsNil() bool {
	return id == NilScopeID
}

func (id ScopeID) String() string {
	return uuid.UUID(id).String()
}

// scopeIDContextKey is the context key for the ambient scope id.
type scopeIDContextKey struct{}

// WithScopeID returns a context carrying id. Descendants of a scope boundary
// read it back with ScopeIDFrom.
func WithScopeID(ctx context.Context, id ScopeID) context.Context {
	return context.WithValue(ctx, scopeIDContextKey{}, id)
}

// ScopeIDFrom returns the scope id carried by ctx, if any.
func ScopeIDFrom(ctx context.Context) (ScopeID, bool) {
	if ctx == nil {
		return NilScopeID, false
	}
	id, ok := ctx.Value(scopeIDContextKey{}).(ScopeID)
	if !ok || id.IsNil() {
		return NilScopeID, false
	}
	return id, true
}
