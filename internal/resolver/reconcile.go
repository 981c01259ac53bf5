package resolver

import (
	"fmt"
	"strings"

	"github.com/blackwell-systems/tapline/internal/formula"
	"github.com/blackwell-systems/tapline/internal/pkgversion"
)

// Action is what the executor should do for one plan entry.
type Action string

const (
	ActionInstall   Action = "install"
	ActionUpgrade   Action = "upgrade"
	ActionReinstall Action = "reinstall"
	ActionSkip      Action = "skip"
)

// PlanDependency records one resolved edge of a plan entry, enough for
// the installer to write a receipt without consulting the graph again.
type PlanDependency struct {
	Name    string
	Version string
	Tag     formula.DependencyTag
}

// PlanEntry pairs a resolved package with the action reconciliation chose
// for it and a human readable reason.
type PlanEntry struct {
	Package    *Package
	Action     Action
	PourBottle bool
	Requested  bool
	Reason     string
	Depends    []PlanDependency
}

// ExecutionPlan is the ordered outcome of a resolution: every entry's
// dependencies appear before it, including entries that need no work.
type ExecutionPlan struct {
	Entries   []PlanEntry
	Warnings  []string
	Conflicts []ConflictError
}

func (pl *ExecutionPlan) filter(a Action) []PlanEntry {
	var out []PlanEntry
	for _, e := range pl.Entries {
		if e.Action == a {
			out = append(out, e)
		}
	}
	return out
}

func (pl *ExecutionPlan) ToInstall() []PlanEntry   { return pl.filter(ActionInstall) }
func (pl *ExecutionPlan) ToUpgrade() []PlanEntry   { return pl.filter(ActionUpgrade) }
func (pl *ExecutionPlan) ToReinstall() []PlanEntry { return pl.filter(ActionReinstall) }

// AlreadySatisfied returns the entries that need no work.
func (pl *ExecutionPlan) AlreadySatisfied() []PlanEntry { return pl.filter(ActionSkip) }

// Pending returns every entry that requires work, in execution order.
func (pl *ExecutionPlan) Pending() []PlanEntry {
	var out []PlanEntry
	for _, e := range pl.Entries {
		if e.Action != ActionSkip {
			out = append(out, e)
		}
	}
	return out
}

// reconcile compares each ordered node against the installed state and
// assigns an action. The ordered slice comes out of a validated graph, so
// no dependency checks are repeated here.
func reconcile(g *Graph, ordered []*Package, installed InstalledView) []PlanEntry {
	entries := make([]PlanEntry, 0, len(ordered))
	for _, p := range ordered {
		entry := PlanEntry{
			Package:    p,
			PourBottle: !p.BuildFromSource,
			Requested:  p.Requested,
		}
		entry.Action, entry.Reason = decideAction(p, installed)
		for _, e := range g.Edges(p) {
			entry.Depends = append(entry.Depends, PlanDependency{
				Name:    e.To.Name(),
				Version: e.To.Version().String(),
				Tag:     e.Tag,
			})
		}
		entries = append(entries, entry)
	}
	return entries
}

// decideAction chooses the action for one package. Variant is compared
// before version: a head keg's pseudo version would otherwise win every
// comparison against a stable one.
func decideAction(p *Package, installed InstalledView) (Action, string) {
	keg, ok := installed.Installed(p.Name())
	if !ok {
		return ActionInstall, "not installed"
	}
	if keg.Variant != p.Variant {
		return ActionReinstall, fmt.Sprintf("%s installed, %s requested", keg.Variant, p.Variant)
	}

	have := pkgversion.PkgVersion{Version: keg.Version, Revision: keg.Revision}
	want := p.Version()
	switch cmp := pkgversion.ComparePkg(have, want); {
	case cmp < 0:
		return ActionUpgrade, fmt.Sprintf("%s -> %s", have, want)
	case cmp > 0:
		return ActionSkip, fmt.Sprintf("newer version %s installed", have)
	}

	if missing := missingOptions(p.Options, keg.Options); len(missing) > 0 {
		return ActionReinstall, "installed without " + strings.Join(missing, ", ")
	}
	return ActionSkip, "already installed"
}

// missingOptions returns the requested options absent from the installed
// keg. Extra options on the keg are fine, the keg is a superset build.
func missingOptions(want, have []string) []string {
	var missing []string
	for _, w := range want {
		found := false
		for _, h := range have {
			if h == w {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, w)
		}
	}
	return missing
}
