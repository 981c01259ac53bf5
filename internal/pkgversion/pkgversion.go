// Package pkgversion implements the version ordering used throughout
// tapline. Upstream versions are compared as semantic versions when both
// sides parse as such (via Masterminds/semver); everything else falls back
// to a segment-wise comparison that handles the looser version strings
// package archives actually use ("1.0.2u", "2.7.18_1", "16", "HEAD").
package pkgversion

import (
	"strconv"
	"strings"

	mm "github.com/Masterminds/semver/v3"
)

// HeadVersion is the pseudo-version recorded for head installs. It compares
// newer than every concrete version.
const HeadVersion = "HEAD"

// Version is a parsed version string. The zero value compares older than
// any real version.
type Version struct {
	raw string
	sem *mm.Version
}

// Parse never fails: strings that are not semantic versions are kept for
// segment-wise comparison.
func Parse(raw string) Version {
	v := Version{raw: raw}
	if sv, err := mm.NewVersion(raw); err == nil {
		v.sem = sv
	}
	return v
}

// String returns the original version string.
func (v Version) String() string { return v.raw }

// Compare returns -1, 0, or 1 as a is older than, equal to, or newer
// than b.
func Compare(a, b Version) int {
	switch {
	case a.raw == b.raw:
		return 0
	case a.raw == HeadVersion:
		return 1
	case b.raw == HeadVersion:
		return -1
	case a.raw == "":
		return -1
	case b.raw == "":
		return 1
	}
	if a.sem != nil && b.sem != nil {
		return a.sem.Compare(b.sem)
	}
	return compareSegments(a.raw, b.raw)
}

// CompareStrings is a convenience wrapper over Parse + Compare.
func CompareStrings(a, b string) int {
	return Compare(Parse(a), Parse(b))
}

// PkgVersion is a version plus packaging revision. Ordering compares the
// version first; the revision breaks ties only at equal versions.
type PkgVersion struct {
	Version  string
	Revision int
}

// ComparePkg orders two version+revision pairs.
func ComparePkg(a, b PkgVersion) int {
	if c := CompareStrings(a.Version, b.Version); c != 0 {
		return c
	}
	switch {
	case a.Revision < b.Revision:
		return -1
	case a.Revision > b.Revision:
		return 1
	}
	return 0
}

// String renders the cellar directory form: "<version>" or
// "<version>_<revision>" for nonzero revisions.
func (pv PkgVersion) String() string {
	if pv.Revision == 0 {
		return pv.Version
	}
	return pv.Version + "_" + strconv.Itoa(pv.Revision)
}

// ParsePkg splits a cellar directory name back into version and revision.
// The revision is the numeric suffix after the last underscore; names
// without one are revision 0.
func ParsePkg(s string) PkgVersion {
	if i := strings.LastIndexByte(s, '_'); i > 0 && i < len(s)-1 {
		if rev, err := strconv.Atoi(s[i+1:]); err == nil {
			return PkgVersion{Version: s[:i], Revision: rev}
		}
	}
	return PkgVersion{Version: s}
}

// compareSegments compares two non-semver version strings. Versions are
// tokenized into runs of digits and runs of letters; separators only end
// tokens. Numeric tokens compare numerically and beat alphabetic tokens;
// a longer version with equal leading tokens is newer ("1.0.1" > "1.0").
func compareSegments(a, b string) int {
	at, bt := tokenize(a), tokenize(b)
	for i := 0; i < len(at) && i < len(bt); i++ {
		if c := compareToken(at[i], bt[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(at) < len(bt):
		return -1
	case len(at) > len(bt):
		return 1
	}
	return 0
}

func compareToken(a, b string) int {
	an, aerr := strconv.Atoi(a)
	bn, berr := strconv.Atoi(b)
	switch {
	case aerr == nil && berr == nil:
		switch {
		case an < bn:
			return -1
		case an > bn:
			return 1
		}
		return 0
	case aerr == nil:
		return 1 // numeric beats alphabetic
	case berr == nil:
		return -1
	}
	return strings.Compare(a, b)
}

func tokenize(s string) []string {
	var tokens []string
	var cur strings.Builder
	var curDigit bool
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			if cur.Len() > 0 && !curDigit {
				flush()
			}
			curDigit = true
			cur.WriteRune(r)
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			if cur.Len() > 0 && curDigit {
				flush()
			}
			curDigit = false
			cur.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return tokens
}
