// Package resolver computes installation plans: it expands requested
// packages into a dependency graph, validates it, produces a
// deterministic install order, and reconciles that order against the
// installed state. The whole pass is a pure in-memory computation; it
// acquires no locks, writes nothing, and logs nothing.
package resolver

import (
	"sort"
	"strings"

	"github.com/blackwell-systems/tapline/internal/formula"
)

// SpecSource provides formula definitions by name. Lookups are expected
// to have aliases already flattened to canonical names.
type SpecSource interface {
	Lookup(name string) (*formula.Formula, error)
}

// InstalledPackage is the slice of keg state resolution compares against.
type InstalledPackage struct {
	Name     string
	Version  string
	Revision int
	Variant  formula.SpecVariant
	Options  []string
}

// InstalledView reports what is already installed. Implementations are
// read-only views; the resolver never mutates keg state.
type InstalledView interface {
	Installed(name string) (InstalledPackage, bool)
}

// Options selects per-invocation resolution behavior.
type Options struct {
	// BuildFromSource forces every package in the plan to build from
	// source, which keeps build-tagged edges live everywhere.
	BuildFromSource bool

	// SourceOnly forces specific packages to build from source.
	SourceOnly []string

	// HeadFor selects the head spec for specific packages. Head installs
	// always build from source.
	HeadFor []string

	// WithOptions enables optional dependencies per package, keyed by
	// package name, values like "with-curl".
	WithOptions map[string][]string

	// WithoutOptions declines recommended dependencies per package.
	WithoutOptions map[string][]string

	// IncludeTest keeps test-tagged edges live for the named packages.
	IncludeTest []string

	// BestEffort drops unavailable dependencies with a warning instead of
	// failing the affected root.
	BestEffort bool

	// FindTool is consulted when evaluating tool requirements. Nil treats
	// every tool as missing.
	FindTool func(name string) bool
}

// Resolver plans installations against one spec source, installed view,
// and platform.
type Resolver struct {
	source    SpecSource
	installed InstalledView
	platform  formula.Platform
	opts      Options
	cache     *Cache
}

// New builds a Resolver. The cache lives as long as the Resolver and is
// shared across its Resolve calls.
func New(source SpecSource, installed InstalledView, platform formula.Platform, opts Options) *Resolver {
	return &Resolver{
		source:    source,
		installed: installed,
		platform:  platform,
		opts:      opts,
		cache:     NewCache(),
	}
}

// UseHead switches a package to its head spec for subsequent calls,
// invalidating every cached expansion that involved it.
func (r *Resolver) UseHead(name string) {
	if !containsString(r.opts.HeadFor, name) {
		r.opts.HeadFor = append(r.opts.HeadFor, name)
	}
	r.cache.Invalidate(name)
}

// UseStable switches a package back to its stable spec, invalidating its
// cached expansions.
func (r *Resolver) UseStable(name string) {
	for i, n := range r.opts.HeadFor {
		if n == name {
			r.opts.HeadFor = append(r.opts.HeadFor[:i], r.opts.HeadFor[i+1:]...)
			break
		}
	}
	r.cache.Invalidate(name)
}

// SetPackageOptions replaces the enabled and declined option sets for a
// package, invalidating its cached expansions.
func (r *Resolver) SetPackageOptions(name string, with, without []string) {
	if r.opts.WithOptions == nil {
		r.opts.WithOptions = make(map[string][]string)
	}
	if r.opts.WithoutOptions == nil {
		r.opts.WithoutOptions = make(map[string][]string)
	}
	r.opts.WithOptions[name] = append([]string(nil), with...)
	r.opts.WithoutOptions[name] = append([]string(nil), without...)
	r.cache.Invalidate(name)
}

// Resolve expands, validates, orders, and reconciles the requested names.
//
// Per-root isolation: when some roots fail, the returned error is a
// MultiError naming them, while the returned plan still covers every root
// that resolved cleanly. Callers decide whether a partial plan is
// acceptable.
func (r *Resolver) Resolve(names []string) (*ExecutionPlan, error) {
	ctx := r.newContext()
	g := newGraph()
	b := &builder{ctx: ctx, g: g, bestEffort: r.opts.BestEffort}

	rootErrs := make(map[string][]error)
	var failedRootOrder []string
	for _, name := range names {
		if err := b.addRoot(name); err != nil {
			if _, seen := rootErrs[name]; !seen {
				failedRootOrder = append(failedRootOrder, name)
			}
			rootErrs[name] = append(rootErrs[name], err)
		}
	}
	for _, root := range g.Roots {
		r.recordExpansion(ctx, g, root)
	}

	result := validate(g, ctx)
	for _, re := range result.rootErrors(g) {
		if _, seen := rootErrs[re.root]; !seen {
			failedRootOrder = append(failedRootOrder, re.root)
		}
		rootErrs[re.root] = append(rootErrs[re.root], re.errs...)
	}

	kept := g.keepReachableFromHealthyRoots(rootErrs)
	ordered := orderGraph(g, kept)
	entries := reconcile(g, ordered, r.installed)

	plan := &ExecutionPlan{
		Entries:   entries,
		Warnings:  append(g.Warnings, result.Warnings...),
		Conflicts: result.Conflicts,
	}

	if len(failedRootOrder) == 0 {
		return plan, nil
	}
	merr := &MultiError{}
	for _, root := range failedRootOrder {
		merr.Errs = append(merr.Errs, &ResolutionError{Root: root, Errs: rootErrs[root]})
	}
	return plan, merr
}

// DependencyNames returns the transitive dependency closure of one
// package in first-visit order, excluding the package itself. Closures are
// memoized per context fingerprint; switching any member's spec or options
// drops every closure that contained it.
func (r *Resolver) DependencyNames(name string) ([]string, error) {
	f, err := r.source.Lookup(name)
	if err != nil {
		return nil, &DependencyUnavailableError{Name: name, Err: err}
	}
	ctx := r.newContext()
	fp := ctx.fingerprint(f)
	if members, ok := r.cache.expansion(f.FullName, fp); ok {
		return members, nil
	}

	g := newGraph()
	b := &builder{ctx: ctx, g: g, bestEffort: r.opts.BestEffort}
	if err := b.addRoot(name); err != nil {
		return nil, err
	}
	return r.recordExpansion(ctx, g, g.Roots[0]), nil
}

// recordExpansion memoizes one root's closure if it is not cached yet and
// returns the member list.
func (r *Resolver) recordExpansion(ctx *context, g *Graph, root *Package) []string {
	fp := ctx.fingerprint(root.Formula)
	if members, ok := r.cache.expansion(root.FullName(), fp); ok {
		return members
	}
	reach := g.reachableFrom(root)
	members := make([]string, 0, len(reach)-1)
	for _, p := range g.Nodes {
		if p != root && reach[p] {
			members = append(members, p.Name())
		}
	}
	r.cache.setExpansion(root.FullName(), fp, members)
	return members
}

// Expand builds and returns the dependency graph for the given names
// without reconciling it, applying an optional per-edge filter. Used by
// dependency listing, where callers want the graph itself.
func (r *Resolver) Expand(names []string, filter WalkFilter) (*Graph, error) {
	ctx := r.newContext()
	g := newGraph()
	b := &builder{ctx: ctx, g: g, filter: filter, bestEffort: r.opts.BestEffort}

	var merr MultiError
	for _, name := range names {
		if err := b.addRoot(name); err != nil {
			merr.Errs = append(merr.Errs, &ResolutionError{Root: name, Errs: []error{err}})
		}
	}
	if len(merr.Errs) > 0 {
		return g, &merr
	}
	return g, nil
}

// context is the normalized view of one resolution pass: platform, option
// sets, spec choices, and the cache every expansion goes through.
type context struct {
	source   SpecSource
	platform formula.Platform
	cache    *Cache

	buildAll    bool
	bestEffort  bool
	sourceOnly  map[string]bool
	headFor     map[string]bool
	includeTest map[string]bool
	with        map[string]map[string]bool
	without     map[string]map[string]bool
	findTool    func(string) bool
}

func (r *Resolver) newContext() *context {
	ctx := &context{
		source:      r.source,
		platform:    r.platform,
		cache:       r.cache,
		buildAll:    r.opts.BuildFromSource,
		bestEffort:  r.opts.BestEffort,
		sourceOnly:  toSet(r.opts.SourceOnly),
		headFor:     toSet(r.opts.HeadFor),
		includeTest: toSet(r.opts.IncludeTest),
		with:        toSetMap(r.opts.WithOptions),
		without:     toSetMap(r.opts.WithoutOptions),
		findTool:    r.opts.FindTool,
	}
	return ctx
}

// variantFor reports the spec variant selected for a package.
func (ctx *context) variantFor(f *formula.Formula) formula.SpecVariant {
	if (ctx.headFor[f.Name] || ctx.headFor[f.FullName]) && f.HasHead() {
		return formula.SpecHead
	}
	return formula.SpecStable
}

// buildFromSource reports whether a package will be built rather than
// poured: forced globally, forced by name, head selected, or no bottle
// published for the platform.
func (ctx *context) buildFromSource(f *formula.Formula) bool {
	if ctx.buildAll || ctx.sourceOnly[f.Name] || ctx.sourceOnly[f.FullName] {
		return true
	}
	if ctx.variantFor(f) == formula.SpecHead {
		return true
	}
	_, ok := f.BottleFor(ctx.platform)
	return !ok
}

// effectiveOptions returns the sorted enabled option names for a package.
func (ctx *context) effectiveOptions(name string) []string {
	enabled := ctx.with[name]
	if len(enabled) == 0 {
		return nil
	}
	declined := ctx.without[name]
	opts := make([]string, 0, len(enabled))
	for opt := range enabled {
		if !declined[opt] {
			opts = append(opts, opt)
		}
	}
	sort.Strings(opts)
	return opts
}

func (ctx *context) optionEnabled(owner, option string) bool {
	return ctx.with[owner][option] && !ctx.without[owner][option]
}

func (ctx *context) optionDeclined(owner, option string) bool {
	return ctx.without[owner][option]
}

// fingerprint folds everything that can change a package's classified
// edges into a stable string: platform, global flags, and the package's
// own variant and option state.
func (ctx *context) fingerprint(f *formula.Formula) string {
	var b strings.Builder
	b.WriteString(ctx.platform.OS)
	b.WriteByte('/')
	b.WriteString(ctx.platform.OSVersion)
	b.WriteByte('/')
	b.WriteString(ctx.platform.Arch)
	if ctx.buildFromSource(f) {
		b.WriteString("|src")
	}
	b.WriteString("|" + string(ctx.variantFor(f)))
	if ctx.includeTest[f.Name] || ctx.includeTest[f.FullName] {
		b.WriteString("|test")
	}
	for _, opt := range ctx.effectiveOptions(f.Name) {
		b.WriteString("|+" + opt)
	}
	declined := make([]string, 0, len(ctx.without[f.Name]))
	for opt := range ctx.without[f.Name] {
		declined = append(declined, opt)
	}
	sort.Strings(declined)
	for _, opt := range declined {
		b.WriteString("|-" + opt)
	}
	return b.String()
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

func toSetMap(m map[string][]string) map[string]map[string]bool {
	out := make(map[string]map[string]bool, len(m))
	for k, vals := range m {
		out[k] = toSet(vals)
	}
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
