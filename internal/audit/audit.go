// Package audit answers removal questions over the keg index: which
// kegs are orphaned dependencies, which are leaves, and whether a
// proposed removal leaves dangling dependents.
package audit

import (
	"errors"
	"fmt"
	"strings"

	"github.com/blackwell-systems/tapline/internal/store"
)

// Auditor computes over the index only; it never touches the disk.
type Auditor struct {
	store *store.Store
}

func New(st *store.Store) *Auditor {
	return &Auditor{store: st}
}

// Orphans returns kegs that were installed as dependencies and that no
// surviving keg needs, in index order. Removing an orphan can orphan its
// own dependencies, so the set is closed: everything reported can be
// removed together.
func (a *Auditor) Orphans() ([]string, error) {
	recs, err := a.store.ListKegs()
	if err != nil {
		return nil, err
	}
	dependents, err := a.dependentsByName(recs)
	if err != nil {
		return nil, err
	}

	removable := make(map[string]bool)
	for changed := true; changed; {
		changed = false
		for _, rec := range recs {
			if rec.Requested || removable[rec.Name] {
				continue
			}
			needed := false
			for _, d := range dependents[rec.Name] {
				if !removable[d] {
					needed = true
					break
				}
			}
			if !needed {
				removable[rec.Name] = true
				changed = true
			}
		}
	}

	var orphans []string
	for _, rec := range recs {
		if removable[rec.Name] {
			orphans = append(orphans, rec.Name)
		}
	}
	return orphans, nil
}

// Leaves returns installed kegs that no other keg depends on, requested
// or not, in index order.
func (a *Auditor) Leaves() ([]string, error) {
	recs, err := a.store.ListKegs()
	if err != nil {
		return nil, err
	}
	dependents, err := a.dependentsByName(recs)
	if err != nil {
		return nil, err
	}

	var leaves []string
	for _, rec := range recs {
		if len(dependents[rec.Name]) == 0 {
			leaves = append(leaves, rec.Name)
		}
	}
	return leaves, nil
}

// ValidateRemoval returns one warning per problem with removing names
// together: kegs that are not installed, and dependents that would
// remain after the removal.
func (a *Auditor) ValidateRemoval(names []string) ([]string, error) {
	removing := make(map[string]bool, len(names))
	for _, name := range names {
		removing[name] = true
	}

	var warnings []string
	for _, name := range names {
		if _, err := a.store.GetKeg(name); err != nil {
			if errors.Is(err, store.ErrNotExist) {
				warnings = append(warnings, fmt.Sprintf("%s: not installed", name))
				continue
			}
			return nil, err
		}

		dependents, err := a.store.GetDependents(name)
		if err != nil {
			return nil, err
		}
		var remaining []string
		for _, d := range dependents {
			if !removing[d] {
				remaining = append(remaining, d)
			}
		}
		if len(remaining) > 0 {
			warnings = append(warnings, fmt.Sprintf("%s: required by %s", name, strings.Join(remaining, ", ")))
		}
	}
	return warnings, nil
}

// dependentsByName inverts the runtime edges of the installed set. Edges
// pointing at packages that are not installed are ignored.
func (a *Auditor) dependentsByName(recs []*store.KegRecord) (map[string][]string, error) {
	dependents := make(map[string][]string)
	for _, rec := range recs {
		deps, err := a.store.GetDependencies(rec.Name)
		if err != nil {
			return nil, err
		}
		for _, d := range deps {
			dependents[d.DependsOn] = append(dependents[d.DependsOn], rec.Name)
		}
	}
	return dependents, nil
}
