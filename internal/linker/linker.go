// Package linker maintains the prefix tree of symlinks into the cellar.
// Links are always relative, so a root directory can be moved or mounted
// elsewhere without rewriting them.
package linker

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// linkedDirs are the keg top-level directories mirrored into the prefix.
// Anything else a keg ships (docs, receipts, caches) stays private to it.
var linkedDirs = []string{"bin", "sbin", "lib", "libexec", "include", "share", "etc"}

// ConflictError reports a prefix entry that is already occupied by
// something other than a link to the keg being linked.
type ConflictError struct {
	Link string // prefix path that is in the way
	Want string // file the keg needs it to point at
	Have string // current symlink target, empty for a regular file
}

func (e *ConflictError) Error() string {
	if e.Have == "" {
		return fmt.Sprintf("cannot link %s: a real file is in the way", e.Link)
	}
	return fmt.Sprintf("cannot link %s: already links to %s", e.Link, e.Have)
}

// Link mirrors the keg's linked directories into prefixDir with relative
// symlinks and returns how many links it created. Links that already
// point at the keg are left alone; anything else in the way aborts with a
// ConflictError before the prefix is half rewritten.
func Link(kegPath, prefixDir string) (int, error) {
	files, err := kegFiles(kegPath)
	if err != nil {
		return 0, err
	}

	// Check the whole set before touching anything.
	for _, rel := range files {
		link := filepath.Join(prefixDir, rel)
		if err := checkSlot(link, filepath.Join(kegPath, rel)); err != nil {
			return 0, err
		}
	}

	created := 0
	for _, rel := range files {
		link := filepath.Join(prefixDir, rel)
		target := filepath.Join(kegPath, rel)
		if linksTo(link, target) {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(link), 0o755); err != nil {
			return created, fmt.Errorf("create %s: %w", filepath.Dir(link), err)
		}
		relTarget, err := filepath.Rel(filepath.Dir(link), target)
		if err != nil {
			return created, fmt.Errorf("relativize %s: %w", target, err)
		}
		if err := os.Symlink(relTarget, link); err != nil {
			return created, fmt.Errorf("link %s: %w", link, err)
		}
		created++
	}
	return created, nil
}

// Unlink removes the prefix links that point into the keg and prunes any
// directories that emptied out. Links owned by other kegs are never
// touched.
func Unlink(kegPath, prefixDir string) (int, error) {
	files, err := kegFiles(kegPath)
	if err != nil {
		return 0, err
	}

	removed := 0
	dirs := map[string]bool{}
	for _, rel := range files {
		link := filepath.Join(prefixDir, rel)
		if !linksTo(link, filepath.Join(kegPath, rel)) {
			continue
		}
		if err := os.Remove(link); err != nil {
			return removed, fmt.Errorf("unlink %s: %w", link, err)
		}
		removed++
		for dir := filepath.Dir(rel); dir != "."; dir = filepath.Dir(dir) {
			dirs[dir] = true
		}
	}

	// Deepest first, so parents empty out after their children.
	pruned := make([]string, 0, len(dirs))
	for dir := range dirs {
		pruned = append(pruned, dir)
	}
	sort.Slice(pruned, func(i, j int) bool {
		return strings.Count(pruned[i], string(filepath.Separator)) > strings.Count(pruned[j], string(filepath.Separator))
	})
	for _, dir := range pruned {
		// Fails while non-empty, which is exactly the behavior wanted.
		os.Remove(filepath.Join(prefixDir, dir))
	}
	return removed, nil
}

// kegFiles returns the keg-relative paths of every file under the linked
// top-level directories, sorted for deterministic link order.
func kegFiles(kegPath string) ([]string, error) {
	var files []string
	for _, top := range linkedDirs {
		root := filepath.Join(kegPath, top)
		if _, err := os.Lstat(root); os.IsNotExist(err) {
			continue
		}
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(kegPath, path)
			if err != nil {
				return err
			}
			files = append(files, rel)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", root, err)
		}
	}
	sort.Strings(files)
	return files, nil
}

// checkSlot verifies that a prefix path is free, or already ours.
func checkSlot(link, target string) error {
	fi, err := os.Lstat(link)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("inspect %s: %w", link, err)
	}
	if fi.Mode()&os.ModeSymlink == 0 {
		return &ConflictError{Link: link, Want: target}
	}
	if resolveLink(link) == target {
		return nil
	}
	have, _ := os.Readlink(link)
	return &ConflictError{Link: link, Want: target, Have: have}
}

// linksTo reports whether link is a symlink resolving to target.
func linksTo(link, target string) bool {
	fi, err := os.Lstat(link)
	if err != nil || fi.Mode()&os.ModeSymlink == 0 {
		return false
	}
	return resolveLink(link) == target
}

// resolveLink returns the absolute destination of a symlink, without
// following further indirection.
func resolveLink(link string) string {
	dest, err := os.Readlink(link)
	if err != nil {
		return ""
	}
	if !filepath.IsAbs(dest) {
		dest = filepath.Join(filepath.Dir(link), dest)
	}
	return filepath.Clean(dest)
}
