// Package catalog loads formula definitions from catalog documents and tap
// directories and answers name lookups for the resolver. A catalog is
// immutable once loaded; all mutation happens by loading a new one.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"

	"github.com/blackwell-systems/tapline/internal/formula"
	"github.com/blackwell-systems/tapline/internal/logging"
)

// Paths names the sources a catalog is assembled from. Catalog files are
// JSON arrays of formulae; tap dirs hold one TOML manifest per formula
// under Formula/. Later sources override earlier ones, and taps override
// catalog files.
type Paths struct {
	CatalogFiles []string
	TapDirs      []string

	// AliasFile points at an "alias = canonical" file. Empty means no
	// aliases.
	AliasFile string
}

// Catalog is the loaded set of formulae plus the alias map.
type Catalog struct {
	byFull  map[string]*formula.Formula
	byShort map[string]string // short name -> full name, last load wins
	aliases map[string]string

	log zerolog.Logger
}

// Load assembles a catalog from the given sources. Any malformed document
// fails the load with an error naming the file and package.
func Load(paths Paths) (*Catalog, error) {
	c := &Catalog{
		byFull:  make(map[string]*formula.Formula),
		byShort: make(map[string]string),
		aliases: make(map[string]string),
		log:     logging.Logger("catalog"),
	}

	for _, file := range paths.CatalogFiles {
		if err := c.loadCatalogFile(file); err != nil {
			return nil, err
		}
	}
	for _, dir := range paths.TapDirs {
		if err := c.loadTap(dir); err != nil {
			return nil, err
		}
	}

	if paths.AliasFile != "" {
		aliases, err := LoadAliases(paths.AliasFile)
		if err != nil {
			return nil, fmt.Errorf("loading aliases: %w", err)
		}
		c.aliases = aliases
	}

	c.log.Debug().
		Int("formulae", len(c.byFull)).
		Int("aliases", len(c.aliases)).
		Msg("catalog loaded")
	return c, nil
}

func (c *Catalog) loadCatalogFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading catalog %s: %w", path, err)
	}
	var docs []formulaDoc
	if err := json.Unmarshal(data, &docs); err != nil {
		return fmt.Errorf("parsing catalog %s: %w", path, err)
	}
	for i := range docs {
		f, err := docs[i].decode(path, "")
		if err != nil {
			return err
		}
		c.add(f)
	}
	return nil
}

func (c *Catalog) loadTap(dir string) error {
	tap := tapOf(dir)
	pattern := filepath.Join(dir, "Formula", "*.toml")
	manifests, err := filepath.Glob(pattern)
	if err != nil {
		return fmt.Errorf("scanning tap %s: %w", dir, err)
	}
	sort.Strings(manifests)

	for _, path := range manifests {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading manifest %s: %w", path, err)
		}
		var doc formulaDoc
		if err := toml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parsing manifest %s: %w", path, err)
		}
		if doc.Name == "" {
			doc.Name = strings.TrimSuffix(filepath.Base(path), ".toml")
		}
		f, err := doc.decode(path, tap)
		if err != nil {
			return err
		}
		c.add(f)
	}
	return nil
}

func (c *Catalog) add(f *formula.Formula) {
	if prev, ok := c.byFull[f.FullName]; ok {
		c.log.Debug().
			Str("formula", f.FullName).
			Str("version", f.Version).
			Str("replaces", prev.Version).
			Msg("formula shadowed by later source")
	}
	c.byFull[f.FullName] = f
	c.byShort[f.Name] = f.FullName
}

// Canonical resolves aliases to the canonical package name. Names with no
// alias entry come back unchanged.
func (c *Catalog) Canonical(name string) string {
	if canon, ok := c.aliases[name]; ok {
		return canon
	}
	return name
}

// Lookup returns the formula for a name. Aliases are resolved first, so
// callers only ever see canonical formulae. Tap-qualified names match on
// full name; bare names match on short name.
func (c *Catalog) Lookup(name string) (*formula.Formula, error) {
	canon := c.Canonical(name)
	if strings.ContainsRune(canon, '/') {
		if f, ok := c.byFull[canon]; ok {
			return f, nil
		}
	} else if full, ok := c.byShort[canon]; ok {
		return c.byFull[full], nil
	}
	return nil, &NotFoundError{Name: name, Suggestions: c.nearest(canon)}
}

// Names returns every full name in the catalog, sorted.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.byFull))
	for name := range c.byFull {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len reports the number of loaded formulae.
func (c *Catalog) Len() int { return len(c.byFull) }

// nearest collects short names close to the query for the not-found
// message. Substring containment or an edit distance of at most two counts
// as close.
func (c *Catalog) nearest(query string) []string {
	var hits []string
	for short := range c.byShort {
		if strings.Contains(short, query) || editDistance(short, query) <= 2 {
			hits = append(hits, short)
		}
	}
	sort.Strings(hits)
	if len(hits) > 5 {
		hits = hits[:5]
	}
	return hits
}

// NotFoundError reports a name the catalog cannot resolve.
type NotFoundError struct {
	Name        string
	Suggestions []string
}

func (e *NotFoundError) Error() string {
	if len(e.Suggestions) == 0 {
		return fmt.Sprintf("no formula named %q", e.Name)
	}
	return fmt.Sprintf("no formula named %q (did you mean %s?)", e.Name, strings.Join(e.Suggestions, ", "))
}

func editDistance(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, min(cur[j-1]+1, prev[j-1]+cost))
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
