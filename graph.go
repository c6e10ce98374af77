package berth

// DependencyGraph records which keys each provided key depends on.
type DependencyGraph struct {
	nodes map[TypeKey]*node
	order []TypeKey // Preserve registration order
}

type node struct {
	key          TypeKey
	dependencies []TypeKey
}

// NewDependencyGraph creates a new dependency graph.
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{
		nodes: make(map[TypeKey]*node),
		order: make([]TypeKey, 0),
	}
}

// AddNode adds a node with its dependencies.
// Nodes are processed in the order they are added (FIFO) when no dependencies exist.
func (g *DependencyGraph) AddNode(key TypeKey, dependencies []TypeKey) {
	if _, exists := g.nodes[key]; !exists {
		g.order = append(g.order, key)
	}
	g.nodes[key] = &node{
		key:          key,
		dependencies: dependencies,
	}
}

// GetDependencies returns the dependencies recorded for key.
func (g *DependencyGraph) GetDependencies(key TypeKey) []TypeKey {
	if n, ok := g.nodes[key]; ok {
		return n.dependencies
	}

	return nil
}

// HasNode checks if a node exists in the graph.
func (g *DependencyGraph) HasNode(key TypeKey) bool {
	_, ok := g.nodes[key]

	return ok
}

// TopologicalSort returns keys in dependency order.
// Nodes without dependencies maintain their registration order (FIFO).
// Returns error if circular dependency detected.
func (g *DependencyGraph) TopologicalSort() ([]TypeKey, error) {
	visited := make(map[TypeKey]bool)
	visiting := make(map[TypeKey]bool)
	result := make([]TypeKey, 0, len(g.nodes))

	for _, key := range g.order {
		if err := g.visit(key, visited, visiting, nil, &result); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// visit performs DFS traversal.
func (g *DependencyGraph) visit(key TypeKey, visited, visiting map[TypeKey]bool, stack []TypeKey, result *[]TypeKey) error {
	if visited[key] {
		return nil
	}

	if visiting[key] {
		return checkCycle(key, stack)
	}

	n := g.nodes[key]
	if n == nil {
		// Not provided; Validate reports missing keys separately
		return nil
	}

	visiting[key] = true
	stack = append(stack, key)

	for _, dep := range n.dependencies {
		if err := g.visit(dep, visited, visiting, stack, result); err != nil {
			return err
		}
	}

	visiting[key] = false
	visited[key] = true
	*result = append(*result, key)

	return nil
}
