// Package manifest dumps the cellar's requested packages to TOML files
// and restores them later by resolving against the current catalog. A
// manifest records what the user asked for, not the full closure;
// dependencies are re-derived at restore time.
package manifest

import (
	"time"

	"github.com/blackwell-systems/tapline/internal/cellar"
	"github.com/blackwell-systems/tapline/internal/formula"
)

// Format is the manifest schema version this build writes. Load refuses
// files written by a newer format.
const Format = 1

// DefaultMaxAge is the Prune cutoff callers use unless they have a
// reason not to.
const DefaultMaxAge = 90 * 24 * time.Hour

// Manifest is one dumped cellar state.
type Manifest struct {
	Format    int       `toml:"format"`
	CreatedAt time.Time `toml:"created_at"`
	Reason    string    `toml:"reason,omitempty"`
	Root      string    `toml:"root,omitempty"`
	Packages  []Entry   `toml:"packages"`
}

// Entry is one package line. Version records what was installed at dump
// time; restore resolves against the current catalog and reports drift
// instead of pinning. Tap is informational.
type Entry struct {
	Name    string              `toml:"name"`
	Version string              `toml:"version,omitempty"`
	Variant formula.SpecVariant `toml:"variant,omitempty"`
	Tap     string              `toml:"tap,omitempty"`
	Options []string            `toml:"options,omitempty"`
}

// Manager dumps, lists, restores, and prunes manifests under one
// directory.
type Manager struct {
	cellar *cellar.Cellar
	dir    string
}

// New builds a Manager writing to dir. The directory is created on
// first use.
func New(c *cellar.Cellar, dir string) *Manager {
	return &Manager{cellar: c, dir: dir}
}
