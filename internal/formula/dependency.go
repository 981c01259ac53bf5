package formula

import "fmt"

// DependencyTag classifies a dependency edge. The tag decides when the edge
// is live: a build dependency matters only when the owner is compiled from
// source, a test dependency only when its test suite runs, and so on.
type DependencyTag string

const (
	TagRequired    DependencyTag = "required"
	TagBuild       DependencyTag = "build"
	TagTest        DependencyTag = "test"
	TagOptional    DependencyTag = "optional"
	TagRecommended DependencyTag = "recommended"
	TagUsesFromOS  DependencyTag = "uses_from_os"
)

// Dependency is one directed edge from the declaring formula to a required
// package name.
type Dependency struct {
	Name string
	Tag  DependencyTag

	// Since bounds a uses_from_os edge: the OS provides the capability
	// from this OS version onward, so the edge is live only on hosts
	// older than Since (and always on platforms that never provide it).
	// Empty means the edge is live only where the OS lacks the
	// capability entirely.
	Since string
}

// Valid reports whether the tag is one of the known set.
func (t DependencyTag) Valid() bool {
	switch t {
	case TagRequired, TagBuild, TagTest, TagOptional, TagRecommended, TagUsesFromOS:
		return true
	}
	return false
}

// ParseTag converts a manifest tag string into a DependencyTag. An empty
// string means required. Unknown tags are a hard load error, never a
// silent default.
func ParseTag(owner, s string) (DependencyTag, error) {
	if s == "" {
		return TagRequired, nil
	}
	t := DependencyTag(s)
	if !t.Valid() {
		return "", &InvalidTagError{Package: owner, Tag: s}
	}
	return t, nil
}

// OptionName returns the build-option flag controlling an optional or
// recommended edge ("with-<name>"). Other tags have no option.
func (d Dependency) OptionName() string {
	switch d.Tag {
	case TagOptional, TagRecommended:
		return "with-" + d.Name
	}
	return ""
}

// InvalidTagError reports a dependency tag outside the known set. It is
// fatal wherever it appears: a bad tag means the manifest itself is
// malformed.
type InvalidTagError struct {
	Package string
	Tag     string
}

func (e *InvalidTagError) Error() string {
	return fmt.Sprintf("%s: invalid dependency tag %q", e.Package, e.Tag)
}
