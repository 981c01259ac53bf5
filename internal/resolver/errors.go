package resolver

import (
	"fmt"
	"strings"

	"github.com/blackwell-systems/tapline/internal/formula"
)

// DependencyUnavailableError reports a dependency name no spec source can
// resolve.
type DependencyUnavailableError struct {
	Name        string
	RequestedBy string // empty when the name was requested directly
	Err         error  // underlying lookup error, may carry suggestions
}

func (e *DependencyUnavailableError) Error() string {
	if e.RequestedBy == "" {
		return fmt.Sprintf("dependency unavailable: %s", e.Name)
	}
	return fmt.Sprintf("dependency unavailable: %s (required by %s)", e.Name, e.RequestedBy)
}

func (e *DependencyUnavailableError) Unwrap() error { return e.Err }

// CycleError reports a dependency cycle. Path lists the package names
// along the cycle, first name repeated at the end.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return "dependency cycle: " + strings.Join(e.Path, " -> ")
}

// ConflictError reports two packages in the same plan that declare
// themselves mutually exclusive. It is surfaced on the plan, not returned
// as a resolution failure; the caller decides whether to proceed.
type ConflictError struct {
	A, B   string
	Reason string
}

func (e *ConflictError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s conflicts with %s", e.A, e.B)
	}
	return fmt.Sprintf("%s conflicts with %s: %s", e.A, e.B, e.Reason)
}

// RequirementError reports a fatal requirement a package cannot satisfy on
// this platform.
type RequirementError struct {
	Package     string
	Requirement formula.Requirement
	Detail      string
}

func (e *RequirementError) Error() string {
	return fmt.Sprintf("%s: unsatisfied requirement (%s): %s", e.Package, e.Requirement, e.Detail)
}

// ResolutionError aggregates every problem found while resolving one
// requested root.
type ResolutionError struct {
	Root string
	Errs []error
}

func (e *ResolutionError) Error() string {
	if len(e.Errs) == 1 {
		return fmt.Sprintf("cannot resolve %s: %v", e.Root, e.Errs[0])
	}
	var b strings.Builder
	fmt.Fprintf(&b, "cannot resolve %s:", e.Root)
	for _, err := range e.Errs {
		b.WriteString("\n  ")
		b.WriteString(err.Error())
	}
	return b.String()
}

func (e *ResolutionError) Unwrap() []error { return e.Errs }

// MultiError aggregates per-root failures of one Resolve call. Roots not
// named in it resolved cleanly and their plan entries are usable.
type MultiError struct {
	Errs []error
}

func (e *MultiError) Error() string {
	if len(e.Errs) == 1 {
		return e.Errs[0].Error()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d roots failed to resolve:", len(e.Errs))
	for _, err := range e.Errs {
		b.WriteString("\n")
		b.WriteString(err.Error())
	}
	return b.String()
}

func (e *MultiError) Unwrap() []error { return e.Errs }
