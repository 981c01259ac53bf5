// Package install executes resolved plans against the cellar: fetching
// bottles, running source builds, promoting staged kegs, writing
// receipts, and linking. Each entry either completes fully or leaves the
// cellar as it was; a failure stops the run, and completed entries stay
// installed so the run can be repeated to pick up where it stopped.
package install

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/blackwell-systems/tapline/internal/cellar"
	"github.com/blackwell-systems/tapline/internal/fetch"
	"github.com/blackwell-systems/tapline/internal/formula"
	"github.com/blackwell-systems/tapline/internal/linker"
	"github.com/blackwell-systems/tapline/internal/logging"
	"github.com/blackwell-systems/tapline/internal/resolver"
	"github.com/blackwell-systems/tapline/internal/store"
)

// Report summarizes what one run changed.
type Report struct {
	Installed   []string
	Upgraded    []string
	Reinstalled []string
	Skipped     []string
}

// Changed returns how many kegs the run created or replaced.
func (r *Report) Changed() int {
	return len(r.Installed) + len(r.Upgraded) + len(r.Reinstalled)
}

// Runner executes plans. It is safe to reuse across runs.
type Runner struct {
	cellar   *cellar.Cellar
	fetcher  *fetch.Fetcher
	platform formula.Platform
	log      zerolog.Logger
}

func New(c *cellar.Cellar, f *fetch.Fetcher, platform formula.Platform) *Runner {
	return &Runner{
		cellar:   c,
		fetcher:  f,
		platform: platform,
		log:      logging.Logger("install"),
	}
}

// Run executes the plan in order. The first failure aborts the run after
// recording a failure event; entries already completed remain installed.
func (r *Runner) Run(ctx context.Context, plan *resolver.ExecutionPlan) (*Report, error) {
	rep := &Report{}
	for _, e := range plan.Entries {
		name := e.Package.Name()
		if e.Action == resolver.ActionSkip {
			rep.Skipped = append(rep.Skipped, name)
			continue
		}
		if err := r.installOne(ctx, e); err != nil {
			r.recordEvent(name, e.Package.Version().String(), store.EventFailed, err.Error())
			return rep, fmt.Errorf("install %s: %w", name, err)
		}
		switch e.Action {
		case resolver.ActionUpgrade:
			rep.Upgraded = append(rep.Upgraded, name)
		case resolver.ActionReinstall:
			rep.Reinstalled = append(rep.Reinstalled, name)
		default:
			rep.Installed = append(rep.Installed, name)
		}
	}
	return rep, nil
}

func (r *Runner) installOne(ctx context.Context, e resolver.PlanEntry) error {
	name := e.Package.Name()
	pv := e.Package.Version()

	lock, err := r.cellar.Lock(ctx, name)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	// Another process may have finished this keg while we waited.
	var old *cellar.Keg
	switch cur, err := r.cellar.Keg(name); {
	case err == nil:
		if kegSatisfies(cur, e.Package) {
			r.log.Debug().Str("keg", name).Msg("already installed, nothing to do")
			return nil
		}
		old = cur
	case !errors.Is(err, store.ErrNotExist):
		return err
	}

	staging, err := os.MkdirTemp(r.cellar.TmpDir(), name+"-*")
	if err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(staging)

	f := e.Package.Formula
	var src cellar.ReceiptSource
	if e.PourBottle {
		src, err = r.pour(ctx, f, staging)
	} else {
		src, err = r.build(ctx, e.Package, staging)
	}
	if err != nil {
		return err
	}

	if old != nil && old.Linked {
		if _, err := linker.Unlink(old.Path, r.cellar.PrefixDir()); err != nil {
			return fmt.Errorf("unlink old keg: %w", err)
		}
	}

	kegPath := r.cellar.KegPath(name, pv.String())
	if err := r.promote(staging, kegPath); err != nil {
		return err
	}

	keg := &cellar.Keg{
		Name:             name,
		Version:          pv.Version,
		Revision:         pv.Revision,
		Variant:          e.Package.Variant,
		Tap:              f.Tap,
		KegOnly:          f.KegOnly,
		Requested:        e.Requested,
		PouredFromBottle: e.PourBottle,
		Options:          e.Package.Options,
		InstalledAt:      time.Now().UTC(),
		Path:             kegPath,
	}
	if err := r.cellar.Register(keg, cellar.NewReceipt(keg, f.FullName, runtimeDeps(e), src)); err != nil {
		os.RemoveAll(kegPath)
		return err
	}

	if f.KegOnly {
		r.log.Info().Str("keg", name).Str("reason", f.KegOnlyReason).Msg("keg-only, not linking")
	} else {
		if _, err := linker.Link(kegPath, r.cellar.PrefixDir()); err != nil {
			return err
		}
		if err := r.cellar.SetLinked(name, true); err != nil {
			return err
		}
	}

	r.recordEvent(name, pv.String(), eventFor(e.Action), e.Reason)
	r.log.Info().Str("keg", name).Str("version", pv.String()).Str("action", string(e.Action)).Msg("installed")
	return nil
}

// pour fetches the platform bottle and unpacks it into staging.
func (r *Runner) pour(ctx context.Context, f *formula.Formula, staging string) (cellar.ReceiptSource, error) {
	bottle, ok := f.BottleFor(r.platform)
	if !ok {
		return cellar.ReceiptSource{}, fmt.Errorf("no bottle for %s/%s", r.platform.OS, r.platform.Arch)
	}
	path, err := r.fetcher.Fetch(ctx, fetch.Artifact{URL: bottle.URL, SHA256: bottle.SHA256})
	if err != nil {
		return cellar.ReceiptSource{}, err
	}
	fh, err := os.Open(path)
	if err != nil {
		return cellar.ReceiptSource{}, fmt.Errorf("open bottle: %w", err)
	}
	defer fh.Close()
	if err := untar(fh, staging); err != nil {
		return cellar.ReceiptSource{}, fmt.Errorf("pour %s: %w", f.Name, err)
	}
	return cellar.ReceiptSource{Strategy: "bottle", URL: bottle.URL, SHA256: bottle.SHA256}, nil
}

// build obtains the source tree and runs the declared build commands.
// Commands run in the unpacked tree with TAPLINE_PREFIX pointing at the
// staging keg they must install into.
func (r *Runner) build(ctx context.Context, p *resolver.Package, staging string) (cellar.ReceiptSource, error) {
	f := p.Formula
	work, err := os.MkdirTemp(r.cellar.TmpDir(), p.Name()+"-src-*")
	if err != nil {
		return cellar.ReceiptSource{}, fmt.Errorf("create build dir: %w", err)
	}
	defer os.RemoveAll(work)

	var cmds []string
	var src cellar.ReceiptSource
	if p.Variant == formula.SpecHead {
		if f.Head == nil {
			return src, fmt.Errorf("%s has no head spec", p.Name())
		}
		if err := runShell(ctx, work, nil, "git clone --depth 1 "+f.Head.URL+" ."); err != nil {
			return src, fmt.Errorf("clone %s: %w", f.Head.URL, err)
		}
		cmds = f.Head.Build
		src = cellar.ReceiptSource{Strategy: "source", URL: f.Head.URL}
	} else {
		if f.Source.URL == "" {
			return src, fmt.Errorf("%s declares no source archive", p.Name())
		}
		path, err := r.fetcher.Fetch(ctx, fetch.Artifact{URL: f.Source.URL, SHA256: f.Source.SHA256})
		if err != nil {
			return src, err
		}
		fh, err := os.Open(path)
		if err != nil {
			return src, fmt.Errorf("open source archive: %w", err)
		}
		err = untar(fh, work)
		fh.Close()
		if err != nil {
			return src, fmt.Errorf("unpack %s: %w", f.Source.URL, err)
		}
		cmds = f.Source.Build
		src = cellar.ReceiptSource{Strategy: "source", URL: f.Source.URL, SHA256: f.Source.SHA256}
	}

	if len(cmds) == 0 {
		return src, fmt.Errorf("%s has no build instructions", p.Name())
	}
	env := append(os.Environ(),
		"TAPLINE_PREFIX="+staging,
		"TAPLINE_STAGING="+work,
		"TAPLINE_PACKAGE="+p.Name(),
		"TAPLINE_VERSION="+p.Version().String(),
	)
	for _, line := range cmds {
		if err := runShell(ctx, work, env, line); err != nil {
			return src, fmt.Errorf("build %s: %w", p.Name(), err)
		}
	}
	return src, nil
}

// promote moves the staged keg into its cellar slot, replacing a previous
// keg of the same version on reinstalls.
func (r *Runner) promote(staging, kegPath string) error {
	if err := os.MkdirAll(filepath.Dir(kegPath), 0o755); err != nil {
		return fmt.Errorf("create keg parent: %w", err)
	}
	if _, err := os.Stat(kegPath); err == nil {
		if err := os.RemoveAll(kegPath); err != nil {
			return fmt.Errorf("clear previous keg: %w", err)
		}
	}
	if err := os.Rename(staging, kegPath); err != nil {
		return fmt.Errorf("promote keg: %w", err)
	}
	return nil
}

func (r *Runner) recordEvent(name, version, action, detail string) {
	err := r.cellar.Store().InsertInstallEvent(&store.InstallEvent{
		Package:   name,
		Version:   version,
		Action:    action,
		Detail:    detail,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		r.log.Warn().Err(err).Str("keg", name).Msg("could not record install event")
	}
}

func runShell(ctx context.Context, dir string, env []string, line string) error {
	cmd := exec.CommandContext(ctx, "sh", "-c", line)
	cmd.Dir = dir
	if env != nil {
		cmd.Env = env
	}
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%q failed: %w (output: %s)", line, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// kegSatisfies reports whether the installed keg already matches what the
// plan entry would produce.
func kegSatisfies(k *cellar.Keg, p *resolver.Package) bool {
	if k.Variant != p.Variant || k.PkgVersion() != p.Version().String() {
		return false
	}
	for _, opt := range p.Options {
		found := false
		for _, have := range k.Options {
			if have == opt {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func runtimeDeps(e resolver.PlanEntry) []cellar.ReceiptDependency {
	var deps []cellar.ReceiptDependency
	for _, d := range e.Depends {
		if d.Tag == formula.TagBuild || d.Tag == formula.TagTest {
			continue
		}
		deps = append(deps, cellar.ReceiptDependency{Name: d.Name, Version: d.Version, Tag: string(d.Tag)})
	}
	return deps
}

func eventFor(a resolver.Action) string {
	switch a {
	case resolver.ActionUpgrade:
		return store.EventUpgrade
	case resolver.ActionReinstall:
		return store.EventReinstall
	default:
		return store.EventInstall
	}
}
