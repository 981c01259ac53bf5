package app

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/adrg/xdg"

	"github.com/blackwell-systems/tapline/internal/catalog"
	"github.com/blackwell-systems/tapline/internal/cellar"
	"github.com/blackwell-systems/tapline/internal/config"
	"github.com/blackwell-systems/tapline/internal/formula"
	"github.com/blackwell-systems/tapline/internal/resolver"
)

// loadConfig resolves the effective configuration. The --root flag wins
// over both the config file and TAPLINE_ROOT.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(rootFlagConfig)
	if err != nil {
		return nil, err
	}
	if rootFlagRoot != "" {
		cfg.Root = rootFlagRoot
	}
	return cfg, nil
}

// openCellar opens the installation root named by the configuration.
func openCellar(cfg *config.Config) (*cellar.Cellar, error) {
	c, err := cellar.Open(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("opening installation root %s: %w", cfg.Root, err)
	}
	return c, nil
}

// loadCatalog assembles the catalog from the configured tap sources.
// Directories load as taps, files as JSON catalogs; sources that do not
// exist yet are skipped so a fresh install starts with an empty catalog.
func loadCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	var paths catalog.Paths
	for _, src := range cfg.Taps {
		info, err := os.Stat(src)
		if err != nil {
			continue
		}
		if info.IsDir() {
			paths.TapDirs = append(paths.TapDirs, src)
		} else {
			paths.CatalogFiles = append(paths.CatalogFiles, src)
		}
	}
	aliasFile := filepath.Join(xdg.ConfigHome, "tapline", "aliases")
	if _, err := os.Stat(aliasFile); err == nil {
		paths.AliasFile = aliasFile
	}
	return catalog.Load(paths)
}

// specSource adapts the catalog to the resolver, applying user-configured
// aliases before catalog lookup so they can shadow tap formulae.
type specSource struct {
	cfg *config.Config
	cat *catalog.Catalog
}

func (s specSource) Lookup(name string) (*formula.Formula, error) {
	return s.cat.Lookup(s.cfg.Canonical(name))
}

// newResolver wires a resolver over the catalog and the cellar's
// installed view for the host platform.
func newResolver(cfg *config.Config, cat *catalog.Catalog, c *cellar.Cellar, opts resolver.Options) *resolver.Resolver {
	if opts.FindTool == nil {
		opts.FindTool = toolOnPath
	}
	return resolver.New(specSource{cfg: cfg, cat: cat}, c, hostPlatform(), opts)
}

// hostPlatform describes the machine tapline is running on. The OS
// version only matters on macOS, where it bounds uses_from_os edges.
func hostPlatform() formula.Platform {
	p := formula.Platform{OS: "linux", Arch: runtime.GOARCH}
	if runtime.GOOS == "darwin" {
		p.OS = "macos"
		if out, err := exec.Command("sw_vers", "-productVersion").Output(); err == nil {
			p.OSVersion = strings.TrimSpace(string(out))
		}
	}
	return p
}

func toolOnPath(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

// resolveOptions builds resolver options from the shared plan/install
// flag values. Head, test, and bare option selections apply to every
// requested root.
func resolveOptions(roots []string, buildAll, heads, includeTest bool, with, without []string, bestEffort bool) resolver.Options {
	opts := resolver.Options{
		BuildFromSource: buildAll,
		BestEffort:      bestEffort,
		WithOptions:     optionSelections(with, roots),
		WithoutOptions:  optionSelections(without, roots),
	}
	if heads {
		opts.HeadFor = roots
	}
	if includeTest {
		opts.IncludeTest = roots
	}
	return opts
}

// optionSelections groups --with/--without values by package. Entries of
// the form "pkg:opt" target one package; bare entries apply to every
// requested root.
func optionSelections(entries, roots []string) map[string][]string {
	if len(entries) == 0 {
		return nil
	}
	sel := make(map[string][]string)
	for _, entry := range entries {
		if pkg, opt, ok := strings.Cut(entry, ":"); ok {
			sel[pkg] = append(sel[pkg], opt)
			continue
		}
		for _, root := range roots {
			sel[root] = append(sel[root], entry)
		}
	}
	return sel
}

// conflictVeto returns the error that blocks execution while the plan
// carries declared conflicts, unless the caller overrode them.
func conflictVeto(plan *resolver.ExecutionPlan, ignore bool) error {
	if ignore || len(plan.Conflicts) == 0 {
		return nil
	}
	return fmt.Errorf("declared conflicts between planned packages (use --ignore-conflicts to proceed)")
}

// confirmProceed prompts on stdout and reads a y/N answer from stdin.
func confirmProceed(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}

// watchPIDFile returns the watch daemon PID file under the root.
func watchPIDFile(cfg *config.Config) string {
	return filepath.Join(cfg.Root, "watch.pid")
}

// watchLogFile returns the watch daemon log file under the root.
func watchLogFile(cfg *config.Config) string {
	return filepath.Join(cfg.Root, "watch.log")
}

// manifestDir returns where snapshot manifests are kept.
func manifestDir(cfg *config.Config) string {
	return filepath.Join(cfg.Root, "manifests")
}
