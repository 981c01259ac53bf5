package resolver

import "github.com/blackwell-systems/tapline/internal/formula"

type cacheKey struct {
	name string
	fp   string
}

// Cache memoizes per-package work within one Resolver: classified direct
// edges and requirement lists keyed by context fingerprint, and transitive
// expansions with a reverse index so invalidating one name also drops
// every expansion that included it. It is never persisted and never shared
// across Resolvers.
type Cache struct {
	direct     map[cacheKey][]classifiedEdge
	reqs       map[string][]formula.Requirement
	expansions map[cacheKey][]string
	containing map[string]map[cacheKey]struct{}
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{
		direct:     make(map[cacheKey][]classifiedEdge),
		reqs:       make(map[string][]formula.Requirement),
		expansions: make(map[cacheKey][]string),
		containing: make(map[string]map[cacheKey]struct{}),
	}
}

// Invalidate drops everything derived from a package: its direct edge and
// requirement entries under every fingerprint, and every recorded
// expansion that contained it. Serving stale entries after a spec or
// option switch would corrupt resolution, so callers invalidate on every
// such mutation.
func (c *Cache) Invalidate(name string) {
	for key := range c.direct {
		if key.name == name {
			delete(c.direct, key)
		}
	}
	delete(c.reqs, name)

	for key := range c.containing[name] {
		for _, member := range c.expansions[key] {
			if member == name {
				continue
			}
			if set := c.containing[member]; set != nil {
				delete(set, key)
			}
		}
		delete(c.expansions, key)
	}
	delete(c.containing, name)

	for key := range c.expansions {
		if key.name == name {
			c.dropExpansion(key)
		}
	}
}

func (c *Cache) dropExpansion(key cacheKey) {
	for _, member := range c.expansions[key] {
		if set := c.containing[member]; set != nil {
			delete(set, key)
		}
	}
	delete(c.expansions, key)
}

func (c *Cache) directEdges(name, fp string) ([]classifiedEdge, bool) {
	edges, ok := c.direct[cacheKey{name, fp}]
	return edges, ok
}

func (c *Cache) setDirectEdges(name, fp string, edges []classifiedEdge) {
	c.direct[cacheKey{name, fp}] = edges
}

func (c *Cache) requirements(name string) ([]formula.Requirement, bool) {
	reqs, ok := c.reqs[name]
	return reqs, ok
}

func (c *Cache) setRequirements(name string, reqs []formula.Requirement) {
	c.reqs[name] = reqs
}

// expansion returns the memoized transitive closure for a root under one
// fingerprint, in first-visit order.
func (c *Cache) expansion(name, fp string) ([]string, bool) {
	names, ok := c.expansions[cacheKey{name, fp}]
	return names, ok
}

// setExpansion records the transitive closure of a root and indexes every
// member for reverse invalidation.
func (c *Cache) setExpansion(name, fp string, members []string) {
	key := cacheKey{name, fp}
	c.expansions[key] = members
	for _, member := range members {
		set := c.containing[member]
		if set == nil {
			set = make(map[cacheKey]struct{})
			c.containing[member] = set
		}
		set[key] = struct{}{}
	}
}
