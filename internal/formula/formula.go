// Package formula defines the immutable declaration model for packages:
// what a package is called, which versions and artifacts exist for it, and
// which dependencies, requirements, and conflicts it declares. Values are
// constructed once by the catalog loader and never mutated afterwards; the
// resolver works on read-only views of them.
package formula

import "fmt"

// SpecVariant names the source variant a resolution targets.
type SpecVariant string

const (
	// SpecStable selects the released source or bottle.
	SpecStable SpecVariant = "stable"
	// SpecHead selects the version-control tip. Head builds are always
	// compiled from source and carry the pseudo-version "HEAD".
	SpecHead SpecVariant = "head"
)

// Formula describes one installable package as declared by its manifest.
type Formula struct {
	Name     string // canonical short name, e.g. "openssl@3"
	FullName string // tap-qualified name, e.g. "core/openssl@3"
	Tap      string // owning tap, e.g. "core"
	Desc     string
	Homepage string

	Version  string // upstream version of the stable spec
	Revision int    // bumped when packaging changes without a version change

	// KegOnly formulae are installed into the cellar but never linked
	// into the shared prefix.
	KegOnly       bool
	KegOnlyReason string

	// Dependencies in declaration order. Order is load-bearing: the
	// sequencer's tie-breaks follow it.
	Dependencies []Dependency

	Requirements []Requirement
	Conflicts    []Conflict

	Bottles []Bottle
	Source  Source
	Head    *Head
}

// Bottle is a prebuilt binary artifact for one platform.
type Bottle struct {
	OS     string // "macos" or "linux"
	Arch   string // "arm64" or "amd64"
	URL    string
	SHA256 string
}

// Source describes the stable source artifact and how to build it.
type Source struct {
	URL    string
	SHA256 string
	// Build holds the shell command lines run inside the staging
	// directory when building from source.
	Build []string
}

// Head describes the version-control tip spec, if the formula has one.
type Head struct {
	URL   string
	Build []string
}

// Conflict is a declared mutual-exclusion with another package.
type Conflict struct {
	Name   string
	Reason string
}

// PkgVersion returns the cellar directory version string: the upstream
// version, with "_<revision>" appended when the revision is nonzero.
func (f *Formula) PkgVersion() string {
	if f.Revision == 0 {
		return f.Version
	}
	return fmt.Sprintf("%s_%d", f.Version, f.Revision)
}

// HasHead reports whether the formula declares a head spec.
func (f *Formula) HasHead() bool {
	return f.Head != nil
}

// BottleFor returns the bottle matching the platform, if one is declared.
func (f *Formula) BottleFor(p Platform) (Bottle, bool) {
	for _, b := range f.Bottles {
		if b.OS == p.OS && b.Arch == p.Arch {
			return b, true
		}
	}
	return Bottle{}, false
}

// ConflictsWith returns the declared conflict with the named package, if any.
func (f *Formula) ConflictsWith(name string) (Conflict, bool) {
	for _, c := range f.Conflicts {
		if c.Name == name {
			return c, true
		}
	}
	return Conflict{}, false
}

// Validate checks structural invariants the loader must guarantee before a
// formula is handed to the resolver. It reports the first problem found.
func (f *Formula) Validate() error {
	if f.Name == "" {
		return fmt.Errorf("formula has no name")
	}
	if f.Version == "" {
		return fmt.Errorf("formula %s has no version", f.Name)
	}
	if f.Revision < 0 {
		return fmt.Errorf("formula %s has negative revision %d", f.Name, f.Revision)
	}
	for _, d := range f.Dependencies {
		if d.Name == "" {
			return fmt.Errorf("formula %s declares a dependency without a name", f.Name)
		}
		if !d.Tag.Valid() {
			return &InvalidTagError{Package: f.Name, Tag: string(d.Tag)}
		}
		if d.Name == f.Name {
			return fmt.Errorf("formula %s depends on itself", f.Name)
		}
	}
	for _, b := range f.Bottles {
		if b.URL == "" || b.SHA256 == "" {
			return fmt.Errorf("formula %s declares a bottle without url or sha256", f.Name)
		}
	}
	return nil
}
