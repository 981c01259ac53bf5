package resolver

import (
	"fmt"

	"github.com/blackwell-systems/tapline/internal/formula"
)

// validationResult carries everything a validation pass found: fatal
// errors attached to the nodes that caused them, plan-level conflicts, and
// warnings. Fatal errors are attributed to roots afterwards via
// rootErrors, so one broken shared subtree fails every root that depends
// on it.
type validationResult struct {
	Warnings  []string
	Conflicts []ConflictError

	nodeErrs map[*Package][]error
}

type rootFailure struct {
	root string
	errs []error
}

// validate checks the expanded graph in one pass and collects every
// problem it can find rather than stopping at the first: cycles, unmet
// requirements, and declared conflicts. Soft-only nodes with fatal unmet
// requirements are pruned from the graph together with their exclusive
// subtrees instead of failing the resolution.
func validate(g *Graph, ctx *context) *validationResult {
	result := &validationResult{nodeErrs: make(map[*Package][]error)}

	result.detectCycles(g)

	hard := g.hardReachable()
	pruned := result.checkRequirements(g, ctx, hard)
	if len(pruned) > 0 {
		g.remove(pruned, result)
	}

	result.checkConflicts(g)
	return result
}

// detectCycles runs a three color depth first search over every node and
// records one CycleError per distinct back edge, with the full path
// starting and ending at the same name.
func (vr *validationResult) detectCycles(g *Graph) {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[*Package]int, len(g.Nodes))
	var stack []*Package

	var walk func(p *Package)
	walk = func(p *Package) {
		color[p] = gray
		stack = append(stack, p)
		for _, e := range g.Edges(p) {
			switch color[e.To] {
			case white:
				walk(e.To)
			case gray:
				start := 0
				for i, s := range stack {
					if s == e.To {
						start = i
						break
					}
				}
				path := make([]string, 0, len(stack)-start+1)
				for _, s := range stack[start:] {
					path = append(path, s.Name())
				}
				path = append(path, e.To.Name())
				vr.nodeErrs[e.To] = append(vr.nodeErrs[e.To], &CycleError{Path: path})
			}
		}
		stack = stack[:len(stack)-1]
		color[p] = black
	}

	for _, p := range g.Nodes {
		if color[p] == white {
			walk(p)
		}
	}
}

// hardReachable marks every node reachable from the roots over hard edges
// only. Everything else entered the graph purely through optional or
// recommended edges.
func (g *Graph) hardReachable() map[*Package]bool {
	reach := make(map[*Package]bool)
	var queue []*Package
	for _, root := range g.Roots {
		if !reach[root] {
			reach[root] = true
			queue = append(queue, root)
		}
	}
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		for _, e := range g.Edges(p) {
			if softTag(e.Tag) || reach[e.To] {
				continue
			}
			reach[e.To] = true
			queue = append(queue, e.To)
		}
	}
	return reach
}

// checkRequirements evaluates each node's requirements against the host.
// Non-fatal misses become warnings. Fatal misses fail the node, except on
// nodes present only through soft edges, which are returned for pruning.
func (vr *validationResult) checkRequirements(g *Graph, ctx *context, hard map[*Package]bool) map[*Package]bool {
	pruned := make(map[*Package]bool)
	for _, p := range g.Nodes {
		live := liveTags(p, ctx)
		for _, req := range ctx.requirements(p.Formula) {
			if !req.AppliesWhen(live) {
				continue
			}
			ok, detail := req.Satisfied(ctx.platform, ctx.findTool)
			if ok {
				continue
			}
			if !req.Fatal {
				vr.Warnings = append(vr.Warnings,
					fmt.Sprintf("%s: requirement %s unmet: %s", p.Name(), req, detail))
				continue
			}
			if !hard[p] {
				if !pruned[p] {
					pruned[p] = true
					vr.Warnings = append(vr.Warnings,
						fmt.Sprintf("pruning %s: requirement %s unmet: %s", p.Name(), req, detail))
				}
				continue
			}
			vr.nodeErrs[p] = append(vr.nodeErrs[p],
				&RequirementError{Package: p.Name(), Requirement: req, Detail: detail})
		}
	}
	return pruned
}

// liveTags reports which dependency tags are active for a node, which is
// also the gate for tag scoped requirements: build requirements only
// apply to source builds, test requirements only when tests were asked
// for.
func liveTags(p *Package, ctx *context) func(formula.DependencyTag) bool {
	return func(tag formula.DependencyTag) bool {
		switch tag {
		case formula.TagBuild:
			return p.BuildFromSource
		case formula.TagTest:
			return ctx.includeTest[p.Name()] || ctx.includeTest[p.FullName()]
		default:
			return true
		}
	}
}

// remove deletes the pruned nodes plus everything reachable only through
// them, rewriting Nodes, edges, and the name index in place.
func (g *Graph) remove(pruned map[*Package]bool, vr *validationResult) {
	reach := make(map[*Package]bool)
	var queue []*Package
	for _, root := range g.Roots {
		if pruned[root] || reach[root] {
			continue
		}
		reach[root] = true
		queue = append(queue, root)
	}
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		for _, e := range g.Edges(p) {
			if pruned[e.To] || reach[e.To] {
				continue
			}
			reach[e.To] = true
			queue = append(queue, e.To)
		}
	}

	drop := make(map[*Package]bool)
	for _, p := range g.Nodes {
		if !reach[p] {
			drop[p] = true
			if !pruned[p] {
				vr.Warnings = append(vr.Warnings,
					fmt.Sprintf("pruning %s: only required by pruned packages", p.Name()))
			}
		}
	}

	nodes := g.Nodes[:0]
	for _, p := range g.Nodes {
		if !drop[p] {
			nodes = append(nodes, p)
		}
	}
	g.Nodes = nodes
	for name, p := range g.byName {
		if drop[p] {
			delete(g.byName, name)
		}
	}
	for p := range g.adj {
		if drop[p] {
			delete(g.adj, p)
			continue
		}
		edges := g.adj[p][:0]
		for _, e := range g.adj[p] {
			if !drop[e.To] {
				edges = append(edges, e)
			}
		}
		g.adj[p] = edges
	}
}

// checkConflicts reports each declared conflict between two packages that
// are both in the graph, once per pair. The first declaration in visit
// order supplies the reason.
func (vr *validationResult) checkConflicts(g *Graph) {
	seen := make(map[[2]string]bool)
	for _, p := range g.Nodes {
		for _, c := range p.Formula.Conflicts {
			other, ok := g.Package(c.Name)
			if !ok || other == p {
				continue
			}
			key := pairKey(p.Name(), other.Name())
			if seen[key] {
				continue
			}
			seen[key] = true
			vr.Conflicts = append(vr.Conflicts, ConflictError{
				A:      p.Name(),
				B:      other.Name(),
				Reason: c.Reason,
			})
		}
	}
}

func pairKey(a, b string) [2]string {
	if a > b {
		a, b = b, a
	}
	return [2]string{a, b}
}

// rootErrors attributes the recorded fatal errors to roots: each root
// reports every failing node it can reach, in visit order. Failures on
// nodes no healthy root reaches are dropped, their roots already failed
// during expansion.
func (vr *validationResult) rootErrors(g *Graph) []rootFailure {
	if len(vr.nodeErrs) == 0 {
		return nil
	}
	var failures []rootFailure
	for _, root := range g.Roots {
		reach := g.reachableFrom(root)
		var errs []error
		for _, p := range g.Nodes {
			if reach[p] {
				errs = append(errs, vr.nodeErrs[p]...)
			}
		}
		if len(errs) > 0 {
			failures = append(failures, rootFailure{root: root.Name(), errs: errs})
		}
	}
	return failures
}

func (g *Graph) reachableFrom(root *Package) map[*Package]bool {
	reach := map[*Package]bool{root: true}
	queue := []*Package{root}
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		for _, e := range g.Edges(p) {
			if !reach[e.To] {
				reach[e.To] = true
				queue = append(queue, e.To)
			}
		}
	}
	return reach
}
