package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/blackwell-systems/tapline/internal/cellar"
)

// Build gathers a manifest from the cellar. Explicit names may name any
// installed keg; an empty list dumps every requested keg.
func (m *Manager) Build(names []string, reason string) (*Manifest, error) {
	var kegs []*cellar.Keg
	if len(names) == 0 {
		all, err := m.cellar.Kegs()
		if err != nil {
			return nil, fmt.Errorf("listing kegs: %w", err)
		}
		for _, k := range all {
			if k.Requested {
				kegs = append(kegs, k)
			}
		}
	} else {
		for _, name := range names {
			k, err := m.cellar.Keg(name)
			if err != nil {
				return nil, fmt.Errorf("keg %s: %w", name, err)
			}
			kegs = append(kegs, k)
		}
	}

	man := &Manifest{
		Format:    Format,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
		Reason:    reason,
		Root:      m.cellar.Root(),
		Packages:  make([]Entry, 0, len(kegs)),
	}
	for _, k := range kegs {
		man.Packages = append(man.Packages, Entry{
			Name:    k.Name,
			Version: k.PkgVersion(),
			Variant: k.Variant,
			Tap:     k.Tap,
			Options: k.Options,
		})
	}
	return man, nil
}

// Write encodes a manifest to path, creating parent directories.
func Write(path string, man *Manifest) error {
	data, err := toml.Marshal(man)
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing manifest %s: %w", path, err)
	}
	return nil
}

// Create builds a manifest and writes it under the manager's directory
// as <timestamp>.toml, returning the written path.
func (m *Manager) Create(names []string, reason string) (string, error) {
	man, err := m.Build(names, reason)
	if err != nil {
		return "", err
	}
	path := filepath.Join(m.dir, man.CreatedAt.Format("2006-01-02-150405")+".toml")
	if err := Write(path, man); err != nil {
		return "", err
	}
	return path, nil
}

// Info summarizes one stored manifest.
type Info struct {
	Path      string
	CreatedAt time.Time
	Reason    string
	Packages  int
}

// List returns the stored manifests, newest first. Files that fail to
// parse are skipped rather than failing the whole listing.
func (m *Manager) List() ([]Info, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading manifest directory: %w", err)
	}
	var out []Info
	for _, de := range entries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".toml") {
			continue
		}
		path := filepath.Join(m.dir, de.Name())
		man, err := Load(path)
		if err != nil {
			continue
		}
		out = append(out, Info{
			Path:      path,
			CreatedAt: man.CreatedAt,
			Reason:    man.Reason,
			Packages:  len(man.Packages),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Prune deletes manifests older than maxAge, reporting how many went.
func (m *Manager) Prune(maxAge time.Duration) (int, error) {
	infos, err := m.List()
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-maxAge)
	deleted := 0
	for _, in := range infos {
		if !in.CreatedAt.Before(cutoff) {
			continue
		}
		if err := os.Remove(in.Path); err != nil && !os.IsNotExist(err) {
			return deleted, fmt.Errorf("deleting %s: %w", in.Path, err)
		}
		deleted++
	}
	return deleted, nil
}
