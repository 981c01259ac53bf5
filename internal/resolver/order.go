package resolver

// orderGraph sequences the kept nodes so every dependency precedes its
// dependents. Ties between ready nodes break on first-visit order, which
// makes the schedule a pure function of the inputs.
//
// The caller guarantees the kept set is validated and acyclic; a cycle
// here would leave nodes unscheduled, so cycles must be rejected before
// ordering.
func orderGraph(g *Graph, kept map[*Package]bool) []*Package {
	remaining := make(map[*Package]int, len(kept))
	dependents := make(map[*Package][]*Package)
	for _, p := range g.Nodes {
		if !kept[p] {
			continue
		}
		n := 0
		for _, e := range g.Edges(p) {
			if kept[e.To] {
				n++
				dependents[e.To] = append(dependents[e.To], p)
			}
		}
		remaining[p] = n
	}

	var ready []*Package
	for _, p := range g.Nodes {
		if kept[p] && remaining[p] == 0 {
			ready = append(ready, p)
		}
	}

	ordered := make([]*Package, 0, len(remaining))
	for len(ready) > 0 {
		mi := 0
		for i, p := range ready {
			if p.visitIndex < ready[mi].visitIndex {
				mi = i
			}
		}
		p := ready[mi]
		ready = append(ready[:mi], ready[mi+1:]...)
		ordered = append(ordered, p)
		for _, q := range dependents[p] {
			remaining[q]--
			if remaining[q] == 0 {
				ready = append(ready, q)
			}
		}
	}
	return ordered
}
