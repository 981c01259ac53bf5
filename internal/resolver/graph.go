package resolver

import (
	"errors"
	"fmt"

	"github.com/blackwell-systems/tapline/internal/formula"
	"github.com/blackwell-systems/tapline/internal/pkgversion"
)

// WalkDecision controls how an expansion treats one dependency edge.
type WalkDecision int

const (
	// Keep includes the edge and descends into the target.
	Keep WalkDecision = iota
	// Skip omits the target itself but still descends into its subtree,
	// attaching any kept descendants directly to the owner.
	Skip
	// Prune drops the edge entirely. The target may still enter the graph
	// through another path.
	Prune
)

// WalkFilter decides per edge during expansion. A nil filter keeps
// everything.
type WalkFilter func(owner *formula.Formula, dep formula.Dependency) WalkDecision

// Package is one resolved node: a formula pinned to the variant, options,
// and build mode the current context selects for it.
type Package struct {
	Formula         *formula.Formula
	Variant         formula.SpecVariant
	Options         []string
	BuildFromSource bool
	Requested       bool

	// visitIndex is the first-visit position, used as the deterministic
	// tie-break during ordering.
	visitIndex int

	// err poisons the node when its expansion failed, so every root that
	// shares it reports the same failure.
	err error
}

func (p *Package) Name() string     { return p.Formula.Name }
func (p *Package) FullName() string { return p.Formula.FullName }

// Version returns the version the plan would install. Head builds carry
// the head pseudo-version and no revision.
func (p *Package) Version() pkgversion.PkgVersion {
	if p.Variant == formula.SpecHead {
		return pkgversion.PkgVersion{Version: pkgversion.HeadVersion}
	}
	return pkgversion.PkgVersion{Version: p.Formula.Version, Revision: p.Formula.Revision}
}

// Edge is one dependency arc in the expanded graph.
type Edge struct {
	To  *Package
	Tag formula.DependencyTag
}

// Graph is the expanded dependency graph of one resolution pass. Nodes is
// in first-visit order; byName resolves both short and full names, plus
// whatever spelling the dependency or root used, to the same node.
type Graph struct {
	Nodes    []*Package
	Roots    []*Package
	Warnings []string

	byName map[string]*Package
	adj    map[*Package][]Edge
}

func newGraph() *Graph {
	return &Graph{
		byName: make(map[string]*Package),
		adj:    make(map[*Package][]Edge),
	}
}

// Edges returns the outgoing dependency edges of a node in declaration
// order.
func (g *Graph) Edges(p *Package) []Edge { return g.adj[p] }

// Package looks a node up by any name it was registered under.
func (g *Graph) Package(name string) (*Package, bool) {
	p, ok := g.byName[name]
	return p, ok
}

func (g *Graph) register(p *Package, names ...string) {
	p.visitIndex = len(g.Nodes)
	g.Nodes = append(g.Nodes, p)
	for _, name := range names {
		g.byName[name] = p
	}
}

// addEdge records owner -> child, dropping self edges and duplicate
// targets. Duplicates arise when skip descent funnels a diamond onto one
// owner; the first tag wins.
func (g *Graph) addEdge(owner, child *Package, tag formula.DependencyTag) {
	if owner == child {
		return
	}
	for _, e := range g.adj[owner] {
		if e.To == child {
			return
		}
	}
	g.adj[owner] = append(g.adj[owner], Edge{To: child, Tag: tag})
}

// keepReachableFromHealthyRoots marks every node reachable from a root
// that has no recorded error. Nodes reachable only through failed roots
// drop out of the plan without affecting the healthy ones.
func (g *Graph) keepReachableFromHealthyRoots(rootErrs map[string][]error) map[*Package]bool {
	failed := make(map[*Package]bool)
	for name := range rootErrs {
		if p, ok := g.byName[name]; ok {
			failed[p] = true
		}
	}

	kept := make(map[*Package]bool)
	var queue []*Package
	for _, root := range g.Roots {
		if failed[root] || kept[root] {
			continue
		}
		kept[root] = true
		queue = append(queue, root)
	}
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		for _, e := range g.adj[p] {
			if !kept[e.To] {
				kept[e.To] = true
				queue = append(queue, e.To)
			}
		}
	}
	return kept
}

// builder expands formulas into a Graph. Each node is visited once per
// pass; the node is registered before its edges are walked so cyclic
// declarations terminate and surface as a back edge for the validator.
type builder struct {
	ctx        *context
	g          *Graph
	filter     WalkFilter
	bestEffort bool
}

// addRoot expands one requested name and marks the node as a root.
// Requesting the same package twice is harmless.
func (b *builder) addRoot(name string) error {
	p, err := b.visit(name, "")
	if err != nil {
		return err
	}
	if !p.Requested {
		p.Requested = true
		b.g.Roots = append(b.g.Roots, p)
	}
	return nil
}

// visit returns the node for name, expanding it on first sight. A node
// whose expansion failed stays in the graph poisoned with its error, so a
// later visit through another root reports the same failure instead of
// silently reusing a half-built subtree.
func (b *builder) visit(name, requestedBy string) (*Package, error) {
	if p, ok := b.g.byName[name]; ok {
		return p, p.err
	}

	f, err := b.ctx.source.Lookup(name)
	if err != nil {
		return nil, &DependencyUnavailableError{Name: name, RequestedBy: requestedBy, Err: err}
	}
	if p, ok := b.g.byName[f.FullName]; ok {
		// Another spelling of an already-expanded package.
		b.g.byName[name] = p
		return p, p.err
	}

	p := &Package{
		Formula:         f,
		Variant:         b.ctx.variantFor(f),
		Options:         b.ctx.effectiveOptions(f.Name),
		BuildFromSource: b.ctx.buildFromSource(f),
	}
	b.g.register(p, name, f.Name, f.FullName)

	if err := b.expand(p); err != nil {
		p.err = err
		return p, err
	}
	return p, nil
}

// expand walks the live edges of a freshly registered node.
func (b *builder) expand(p *Package) error {
	edges, err := b.ctx.directEdges(p.Formula)
	if err != nil {
		return err
	}
	for _, ce := range edges {
		if !ce.Live {
			continue
		}
		switch b.decide(p.Formula, ce.Dep) {
		case Prune:
			continue
		case Skip:
			seen := map[string]bool{ce.Dep.Name: true}
			if err := b.descendSkipped(p, p.Formula, ce.Dep, seen); err != nil {
				return err
			}
		default:
			child, err := b.visit(ce.Dep.Name, p.Name())
			if err != nil {
				if b.tolerate(err, ce.Dep.Name, p.Name()) {
					continue
				}
				return err
			}
			b.g.addEdge(p, child, ce.Dep.Tag)
		}
	}
	return nil
}

// descendSkipped walks the subtree of a skipped dependency, attaching any
// kept descendants to owner. seen guards against cyclic skip chains.
func (b *builder) descendSkipped(owner *Package, via *formula.Formula, dep formula.Dependency, seen map[string]bool) error {
	f, err := b.ctx.source.Lookup(dep.Name)
	if err != nil {
		uerr := &DependencyUnavailableError{Name: dep.Name, RequestedBy: via.Name, Err: err}
		if b.tolerate(uerr, dep.Name, via.Name) {
			return nil
		}
		return uerr
	}

	edges, err := b.ctx.directEdges(f)
	if err != nil {
		return err
	}
	for _, ce := range edges {
		if !ce.Live {
			continue
		}
		switch b.decide(f, ce.Dep) {
		case Prune:
			continue
		case Skip:
			if seen[ce.Dep.Name] {
				continue
			}
			seen[ce.Dep.Name] = true
			if err := b.descendSkipped(owner, f, ce.Dep, seen); err != nil {
				return err
			}
		default:
			child, err := b.visit(ce.Dep.Name, f.Name)
			if err != nil {
				if b.tolerate(err, ce.Dep.Name, f.Name) {
					continue
				}
				return err
			}
			b.g.addEdge(owner, child, ce.Dep.Tag)
		}
	}
	return nil
}

func (b *builder) decide(owner *formula.Formula, dep formula.Dependency) WalkDecision {
	if b.filter == nil {
		return Keep
	}
	return b.filter(owner, dep)
}

// tolerate reports whether an expansion error should be downgraded to a
// warning. Only unavailable dependencies qualify, and only in best-effort
// mode; malformed metadata always fails the root.
func (b *builder) tolerate(err error, dep, owner string) bool {
	if !b.bestEffort {
		return false
	}
	var uerr *DependencyUnavailableError
	if !errors.As(err, &uerr) {
		return false
	}
	b.g.Warnings = append(b.g.Warnings,
		fmt.Sprintf("skipping unavailable dependency %s (required by %s): %v", dep, owner, uerr.Err))
	return true
}
