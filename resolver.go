package berth

// Resolver is the outer dependency container the registry delegates to.
// The registry only reads from it and never registers anything into it.
//
// *Container implements Resolver; adapters over other containers only need
// these two operations.
type Resolver interface {
	// Resolve returns the resolver's own instance for key.
	Resolve(key TypeKey) (any, error)

	// Construct builds a new instance for key through the registration that
	// owns it, name included, resolving its dependencies from the resolver.
	// It never returns a shared instance.
	Construct(key TypeKey) (any, error)
}
