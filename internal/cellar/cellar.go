// Package cellar manages the on-disk installation root: keg directories,
// receipts, the link prefix, download cache, advisory locks, and the
// SQLite index kept in sync with them.
package cellar

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/blackwell-systems/tapline/internal/formula"
	"github.com/blackwell-systems/tapline/internal/logging"
	"github.com/blackwell-systems/tapline/internal/pkgversion"
	"github.com/blackwell-systems/tapline/internal/store"
)

const (
	cellarDirName = "cellar"
	prefixDirName = "prefix"
	cacheDirName  = "cache"
	locksDirName  = "locks"
	tmpDirName    = "tmp"
	indexName     = "index.db"
)

// Cellar is an opened installation root.
type Cellar struct {
	root  string
	store *store.Store
	log   zerolog.Logger
}

// Open prepares the installation root, creating the layout and the index
// on first use.
func Open(root string) (*Cellar, error) {
	for _, dir := range []string{
		root,
		filepath.Join(root, cellarDirName),
		filepath.Join(root, prefixDirName),
		filepath.Join(root, cacheDirName),
		filepath.Join(root, locksDirName),
		filepath.Join(root, tmpDirName),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	st, err := store.New(filepath.Join(root, indexName))
	if err != nil {
		return nil, err
	}
	if err := st.CreateSchema(); err != nil {
		st.Close()
		return nil, err
	}

	return &Cellar{root: root, store: st, log: logging.Logger("cellar")}, nil
}

// Close releases the index.
func (c *Cellar) Close() error {
	return c.store.Close()
}

// Root returns the installation root.
func (c *Cellar) Root() string { return c.root }

// CellarDir returns the directory holding keg trees.
func (c *Cellar) CellarDir() string { return filepath.Join(c.root, cellarDirName) }

// PrefixDir returns the link farm directory.
func (c *Cellar) PrefixDir() string { return filepath.Join(c.root, prefixDirName) }

// CacheDir returns the download cache directory.
func (c *Cellar) CacheDir() string { return filepath.Join(c.root, cacheDirName) }

// TmpDir returns the staging area for in-progress installs.
func (c *Cellar) TmpDir() string { return filepath.Join(c.root, tmpDirName) }

// LockPath returns the advisory lock file for a package name.
func (c *Cellar) LockPath(name string) string {
	return filepath.Join(c.root, locksDirName, name+".lock")
}

// KegPath returns the keg directory for a package at a versioned name.
func (c *Cellar) KegPath(name, version string) string {
	return filepath.Join(c.root, cellarDirName, name, version)
}

// Store exposes the index for read-side queries.
func (c *Cellar) Store() *store.Store { return c.store }

// Keg returns the installed keg for a package name. Missing kegs report
// store.ErrNotExist.
func (c *Cellar) Keg(name string) (*Keg, error) {
	rec, err := c.store.GetKeg(name)
	if err != nil {
		return nil, err
	}
	return c.fromRecord(rec), nil
}

// Kegs returns every installed keg ordered by name.
func (c *Cellar) Kegs() ([]*Keg, error) {
	recs, err := c.store.ListKegs()
	if err != nil {
		return nil, err
	}
	kegs := make([]*Keg, len(recs))
	for i, rec := range recs {
		kegs[i] = c.fromRecord(rec)
	}
	return kegs, nil
}

// Register writes the receipt into the keg directory and records the keg
// in the index. The keg directory must already exist.
func (c *Cellar) Register(k *Keg, r *Receipt) error {
	if k.Path == "" {
		k.Path = c.KegPath(k.Name, k.PkgVersion())
	}
	if err := WriteReceipt(k.Path, r); err != nil {
		return err
	}
	if err := c.store.UpsertKeg(k.record()); err != nil {
		return err
	}
	deps := make([]store.DependencyRecord, 0, len(r.RuntimeDependencies))
	for _, d := range r.RuntimeDependencies {
		deps = append(deps, store.DependencyRecord{Package: k.Name, DependsOn: d.Name, Tag: d.Tag})
	}
	if err := c.store.ReplaceDependencies(k.Name, deps); err != nil {
		return err
	}
	c.log.Debug().Str("keg", k.Name).Str("version", k.PkgVersion()).Msg("keg registered")
	return nil
}

// Unregister drops a keg from the index. The keg directory is untouched.
func (c *Cellar) Unregister(name string) error {
	return c.store.DeleteKeg(name)
}

// SetLinked records whether a keg's links are present in the prefix.
func (c *Cellar) SetLinked(name string, linked bool) error {
	return c.store.SetLinked(name, linked)
}

// SetRequested flips whether a keg counts as installed on request rather
// than as a dependency. The receipt is rewritten so a later rescan keeps
// the flag.
func (c *Cellar) SetRequested(name string, requested bool) error {
	k, err := c.Keg(name)
	if err != nil {
		return err
	}
	r, err := ReadReceipt(k.Path)
	if err != nil {
		return fmt.Errorf("reading receipt for %s: %w", name, err)
	}
	r.Requested = requested
	if err := WriteReceipt(k.Path, r); err != nil {
		return err
	}
	return c.store.SetRequested(name, requested)
}

// ScanReport summarizes one index rebuild.
type ScanReport struct {
	Indexed         int
	MissingReceipts []string
}

// Scan rebuilds the index from keg directories and their receipts. Keg
// directories without a readable receipt are reported and skipped, never
// deleted. For packages with several version directories the newest one
// wins.
func (c *Cellar) Scan() (*ScanReport, error) {
	entries, err := os.ReadDir(c.CellarDir())
	if err != nil {
		return nil, fmt.Errorf("reading cellar: %w", err)
	}
	linked := c.linkedKegPaths()

	report := &ScanReport{}
	var kegs []*Keg
	var deps [][]store.DependencyRecord

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		kegPath, ok := c.newestKegDir(name)
		if !ok {
			report.MissingReceipts = append(report.MissingReceipts, name)
			continue
		}
		r, err := ReadReceipt(kegPath)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				c.log.Warn().Err(err).Str("keg", name).Msg("unreadable receipt")
			}
			report.MissingReceipts = append(report.MissingReceipts, name)
			continue
		}
		k := kegFromReceipt(kegPath, r)
		k.Linked = linked[kegPath]

		kegs = append(kegs, k)
		edges := make([]store.DependencyRecord, 0, len(r.RuntimeDependencies))
		for _, d := range r.RuntimeDependencies {
			edges = append(edges, store.DependencyRecord{Package: k.Name, DependsOn: d.Name, Tag: d.Tag})
		}
		deps = append(deps, edges)
	}

	if err := c.store.ResetKegs(); err != nil {
		return nil, err
	}
	for _, k := range kegs {
		if err := c.store.UpsertKeg(k.record()); err != nil {
			return nil, err
		}
	}
	for i, k := range kegs {
		if err := c.store.ReplaceDependencies(k.Name, deps[i]); err != nil {
			return nil, err
		}
	}

	report.Indexed = len(kegs)
	sort.Strings(report.MissingReceipts)
	c.log.Info().
		Int("indexed", report.Indexed).
		Int("missing_receipts", len(report.MissingReceipts)).
		Msg("cellar scanned")
	return report, nil
}

// newestKegDir picks the newest version directory for a package, by
// version then revision.
func (c *Cellar) newestKegDir(name string) (string, bool) {
	dir := filepath.Join(c.CellarDir(), name)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	var best string
	var bestVersion pkgversion.PkgVersion
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		v := pkgversion.ParsePkg(entry.Name())
		if best == "" || pkgversion.ComparePkg(v, bestVersion) > 0 {
			best = entry.Name()
			bestVersion = v
		}
	}
	if best == "" {
		return "", false
	}
	return filepath.Join(dir, best), true
}

// linkedKegPaths walks the prefix and maps keg directories that at least
// one link resolves into.
func (c *Cellar) linkedKegPaths() map[string]bool {
	linked := make(map[string]bool)
	cellarDir := c.CellarDir()

	filepath.WalkDir(c.PrefixDir(), func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.Type()&fs.ModeSymlink == 0 {
			return nil
		}
		target, err := os.Readlink(path)
		if err != nil {
			return nil
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(path), target)
		}
		rel, err := filepath.Rel(cellarDir, filepath.Clean(target))
		if err != nil || strings.HasPrefix(rel, "..") {
			return nil
		}
		parts := strings.Split(rel, string(filepath.Separator))
		if len(parts) >= 2 {
			linked[filepath.Join(cellarDir, parts[0], parts[1])] = true
		}
		return nil
	})
	return linked
}

func (k *Keg) record() *store.KegRecord {
	return &store.KegRecord{
		Name:             k.Name,
		Version:          k.Version,
		Revision:         k.Revision,
		Variant:          string(k.Variant),
		Tap:              k.Tap,
		KegOnly:          k.KegOnly,
		Linked:           k.Linked,
		Requested:        k.Requested,
		PouredFromBottle: k.PouredFromBottle,
		Options:          k.Options,
		InstalledAt:      k.InstalledAt,
	}
}

func (c *Cellar) fromRecord(rec *store.KegRecord) *Keg {
	variant := formula.SpecVariant(rec.Variant)
	if variant == "" {
		variant = formula.SpecStable
	}
	k := &Keg{
		Name:             rec.Name,
		Version:          rec.Version,
		Revision:         rec.Revision,
		Variant:          variant,
		Tap:              rec.Tap,
		KegOnly:          rec.KegOnly,
		Linked:           rec.Linked,
		Requested:        rec.Requested,
		PouredFromBottle: rec.PouredFromBottle,
		Options:          rec.Options,
		InstalledAt:      rec.InstalledAt,
	}
	k.Path = c.KegPath(k.Name, k.PkgVersion())
	return k
}
