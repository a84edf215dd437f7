package ir

// UnknownCallee is the explicit marker for a call target that could not be
// resolved: dynamic dispatch, an external library, or a cross-language call.
// Taint propagation stops at such calls.
const UnknownCallee = "<unknown>"

// CallGraph maps function IDs to the IDs of the functions they invoke.
// Unresolved targets appear as UnknownCallee entries so that an absent edge
// and an unresolvable edge stay distinguishable.
type CallGraph struct {
	callees map[string][]string
}

// NewCallGraph returns an empty call graph.
func NewCallGraph() *CallGraph {
	return &CallGraph{callees: make(map[string][]string)}
}

// AddEdge records that caller invokes callee. Duplicate edges collapse.
func (g *CallGraph) AddEdge(caller, callee string) {
	for _, existing := range g.callees[caller] {
		if existing == callee {
			return
		}
	}
	g.callees[caller] = append(g.callees[caller], callee)
}

// Callees returns the recorded call targets of the given function, in
// insertion order. UnknownCallee entries are included.
func (g *CallGraph) Callees(caller string) []string {
	return g.callees[caller]
}

// ResolvedCallees returns only the call targets that name known functions.
func (g *CallGraph) ResolvedCallees(caller string) []string {
	var out []string
	for _, c := range g.callees[caller] {
		if c != UnknownCallee {
			out = append(out, c)
		}
	}
	return out
}
