package manifest

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/blackwell-systems/tapline/internal/formula"
	"github.com/blackwell-systems/tapline/internal/install"
	"github.com/blackwell-systems/tapline/internal/resolver"
)

// Planner is the slice of the resolver a restore needs.
type Planner interface {
	UseHead(name string)
	SetPackageOptions(name string, with, without []string)
	Resolve(names []string) (*resolver.ExecutionPlan, error)
}

// Installer executes the resolved plan.
type Installer interface {
	Run(ctx context.Context, plan *resolver.ExecutionPlan) (*install.Report, error)
}

// RestoreReport says what a restore did and what it could not do.
type RestoreReport struct {
	// Requested is how many packages the manifest named.
	Requested int

	// Failed lists roots that no longer resolve against the catalog.
	Failed []string

	// Drift lists packages whose catalog version differs from the
	// version the manifest recorded.
	Drift []string

	Install *install.Report
}

// Load reads one manifest file. Entries without a variant default to
// stable, matching how receipts are read.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var man Manifest
	if err := toml.Unmarshal(data, &man); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", path, err)
	}
	if man.Format > Format {
		return nil, fmt.Errorf("manifest %s uses format %d, this build understands up to %d", path, man.Format, Format)
	}
	for i := range man.Packages {
		if man.Packages[i].Name == "" {
			return nil, fmt.Errorf("manifest %s: package %d has no name", path, i)
		}
		if man.Packages[i].Variant == "" {
			man.Packages[i].Variant = formula.SpecStable
		}
	}
	return &man, nil
}

// Restore resolves the manifest's packages against the current catalog
// and installs the result. Roots that fail to resolve are reported and
// skipped, in line with the resolver's per-root isolation; everything
// else still installs. Version drift is reported, never fatal.
func (m *Manager) Restore(ctx context.Context, path string, pl Planner, inst Installer) (*RestoreReport, error) {
	man, err := Load(path)
	if err != nil {
		return nil, err
	}
	rep := &RestoreReport{Requested: len(man.Packages)}
	if len(man.Packages) == 0 {
		return rep, nil
	}

	names := make([]string, 0, len(man.Packages))
	byName := make(map[string]Entry, len(man.Packages))
	for _, e := range man.Packages {
		names = append(names, e.Name)
		byName[e.Name] = e
		if e.Variant == formula.SpecHead {
			pl.UseHead(e.Name)
		}
		if len(e.Options) > 0 {
			pl.SetPackageOptions(e.Name, e.Options, nil)
		}
	}

	plan, err := pl.Resolve(names)
	if err != nil {
		var multi *resolver.MultiError
		if plan == nil || !errors.As(err, &multi) {
			return nil, err
		}
		for _, re := range multi.Errs {
			rep.Failed = append(rep.Failed, re.Error())
		}
	}

	for _, e := range plan.Entries {
		if !e.Requested {
			continue
		}
		ent, ok := byName[e.Package.Name()]
		if !ok {
			ent, ok = byName[e.Package.FullName()]
		}
		if !ok || ent.Version == "" {
			continue
		}
		if got := e.Package.Version().String(); got != ent.Version {
			rep.Drift = append(rep.Drift, fmt.Sprintf("%s: manifest has %s, installing %s", ent.Name, ent.Version, got))
		}
	}

	rep.Install, err = inst.Run(ctx, plan)
	return rep, err
}
