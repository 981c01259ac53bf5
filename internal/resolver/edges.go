package resolver

import "github.com/blackwell-systems/tapline/internal/formula"

// classifiedEdge is one declared dependency after pruning policy has been
// applied for the current context.
type classifiedEdge struct {
	Dep  formula.Dependency
	Live bool
}

// classify decides whether one declared edge is live for the owner in
// this context. Pure; the rules per tag:
//
//	required     always live
//	build        live only when the owner builds from source
//	test         live only when tests were requested for the owner
//	optional     live only when its option was enabled
//	recommended  live unless its option was declined
//	uses_from_os live only where the OS does not provide the capability
func (ctx *context) classify(owner *formula.Formula, d formula.Dependency) (bool, error) {
	switch d.Tag {
	case formula.TagRequired:
		return true, nil
	case formula.TagBuild:
		return ctx.buildFromSource(owner), nil
	case formula.TagTest:
		return ctx.includeTest[owner.Name] || ctx.includeTest[owner.FullName], nil
	case formula.TagOptional:
		return ctx.optionEnabled(owner.Name, d.OptionName()), nil
	case formula.TagRecommended:
		return !ctx.optionDeclined(owner.Name, d.OptionName()), nil
	case formula.TagUsesFromOS:
		return !ctx.platform.ProvidesCapability(d), nil
	}
	return false, &formula.InvalidTagError{Package: owner.Name, Tag: string(d.Tag)}
}

// directEdges returns the owner's classified direct dependencies,
// memoized by (full name, context fingerprint).
func (ctx *context) directEdges(owner *formula.Formula) ([]classifiedEdge, error) {
	fp := ctx.fingerprint(owner)
	if edges, ok := ctx.cache.directEdges(owner.FullName, fp); ok {
		return edges, nil
	}

	edges := make([]classifiedEdge, 0, len(owner.Dependencies))
	for _, d := range owner.Dependencies {
		live, err := ctx.classify(owner, d)
		if err != nil {
			return nil, err
		}
		edges = append(edges, classifiedEdge{Dep: d, Live: live})
	}
	ctx.cache.setDirectEdges(owner.FullName, fp, edges)
	return edges, nil
}

// requirements returns the owner's declared requirements, memoized by
// full name.
func (ctx *context) requirements(owner *formula.Formula) []formula.Requirement {
	if reqs, ok := ctx.cache.requirements(owner.FullName); ok {
		return reqs
	}
	ctx.cache.setRequirements(owner.FullName, owner.Requirements)
	return owner.Requirements
}

// softTag reports whether an edge tag is soft: a package reachable only
// across soft edges is wanted, not needed, and its failures downgrade to
// warnings.
func softTag(t formula.DependencyTag) bool {
	return t == formula.TagOptional || t == formula.TagRecommended
}
