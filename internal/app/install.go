package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/tapline/internal/cellar"
	"github.com/blackwell-systems/tapline/internal/fetch"
	"github.com/blackwell-systems/tapline/internal/formula"
	"github.com/blackwell-systems/tapline/internal/install"
	"github.com/blackwell-systems/tapline/internal/output"
	"github.com/blackwell-systems/tapline/internal/resolver"
	"github.com/blackwell-systems/tapline/internal/store"
)

var (
	installFlagSource          bool
	installFlagHead            bool
	installFlagIncludeTest     bool
	installFlagBestEffort      bool
	installFlagIgnoreConflicts bool
	installFlagDryRun          bool
	installFlagYes             bool
	installFlagJobs            int
	installFlagWith            []string
	installFlagWithout         []string
)

var installCmd = &cobra.Command{
	Use:   "install <package>...",
	Short: "Install packages and their dependencies",
	Long: `Resolve the named packages into an execution plan and carry it out:
fetch bottles (or build from source), place each keg under the cellar,
write its receipt, and link it into the prefix unless it is keg-only.

Dependencies install before the packages that need them. A failure stops
the run; kegs already completed stay installed, so running the same
install again picks up where it stopped.

Naming an already-installed keg marks it as installed on request, which
protects it from 'tapline autoremove'.`,
	Example: `  # Install packages with their dependencies
  tapline install wget jq

  # Preview without changing anything
  tapline install --dry-run wget

  # Build from source with an option enabled
  tapline install --build-from-source --with with-libressl wget

  # Install the version-control tip
  tapline install --head nghttp2`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInstall,
}

func init() {
	installCmd.Flags().BoolVar(&installFlagSource, "build-from-source", false, "compile from source instead of pouring bottles")
	installCmd.Flags().BoolVar(&installFlagHead, "head", false, "install the version-control tip of the named packages")
	installCmd.Flags().BoolVar(&installFlagIncludeTest, "include-test", false, "install test dependencies of the named packages")
	installCmd.Flags().BoolVar(&installFlagBestEffort, "best-effort", false, "downgrade unavailable dependencies to warnings")
	installCmd.Flags().BoolVar(&installFlagIgnoreConflicts, "ignore-conflicts", false, "proceed despite declared conflicts")
	installCmd.Flags().BoolVar(&installFlagDryRun, "dry-run", false, "show the plan without installing")
	installCmd.Flags().BoolVar(&installFlagYes, "yes", false, "skip the confirmation prompt")
	installCmd.Flags().IntVar(&installFlagJobs, "jobs", 0, "concurrent bottle downloads (default: from config)")
	installCmd.Flags().StringArrayVar(&installFlagWith, "with", nil, "enable an option, \"opt\" or \"pkg:opt\" (repeatable)")
	installCmd.Flags().StringArrayVar(&installFlagWithout, "without", nil, "decline an option, \"opt\" or \"pkg:opt\" (repeatable)")

	RootCmd.AddCommand(installCmd)
}

func runInstall(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cat, err := loadCatalog(cfg)
	if err != nil {
		return err
	}
	c, err := openCellar(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	opts := resolveOptions(args, installFlagSource, installFlagHead, installFlagIncludeTest, installFlagWith, installFlagWithout, installFlagBestEffort)
	r := newResolver(cfg, cat, c, opts)
	plan, err := r.Resolve(args)
	if err != nil {
		var merr *resolver.MultiError
		if !errors.As(err, &merr) {
			return err
		}
		for _, e := range merr.Errs {
			fmt.Fprintf(os.Stderr, "✗ %v\n", e)
		}
		return fmt.Errorf("%d of %d requests failed to resolve", len(merr.Errs), len(args))
	}

	if verr := conflictVeto(plan, installFlagIgnoreConflicts); verr != nil {
		fmt.Print(output.RenderConflicts(plan.Conflicts))
		return verr
	}

	printPlan(plan)
	fmt.Println()

	pending := plan.Pending()
	if len(pending) == 0 {
		if _, err := markRequested(c, plan); err != nil {
			return err
		}
		fmt.Println("Nothing to install.")
		return nil
	}

	if installFlagDryRun {
		fmt.Println("Dry-run mode: nothing will be installed.")
		return nil
	}

	if !installFlagYes && !confirmProceed(fmt.Sprintf("Proceed with %d actions?", len(pending))) {
		fmt.Println("Install cancelled.")
		return nil
	}

	if _, err := markRequested(c, plan); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	platform := hostPlatform()
	fetcher := fetch.New(c.CacheDir())
	jobs := installFlagJobs
	if jobs <= 0 {
		jobs = cfg.Fetch.Workers
	}

	if arts := bottleArtifacts(plan, platform); len(arts) > 0 {
		spinner := output.NewSpinner(fmt.Sprintf("Downloading %d bottles", len(arts)))
		spinner.Start()
		if err := fetcher.Prefetch(ctx, arts, jobs); err != nil {
			spinner.Stop()
			return fmt.Errorf("prefetching bottles: %w", err)
		}
		spinner.StopWithMessage(fmt.Sprintf("✓ %d bottles in cache", len(arts)))
	}

	rep, runErr := install.New(c, fetcher, platform).Run(ctx, plan)
	printInstallReport(rep)
	return runErr
}

// markRequested flips the requested flag on kegs that were installed as
// dependencies and are now named explicitly. The plan carries them as
// satisfied entries needing no other work.
func markRequested(c *cellar.Cellar, plan *resolver.ExecutionPlan) (int, error) {
	marked := 0
	for _, e := range plan.AlreadySatisfied() {
		if !e.Requested {
			continue
		}
		name := e.Package.Name()
		k, err := c.Keg(name)
		if err != nil {
			if errors.Is(err, store.ErrNotExist) {
				continue
			}
			return marked, err
		}
		if k.Requested {
			continue
		}
		if err := c.SetRequested(name, true); err != nil {
			return marked, err
		}
		fmt.Printf("✓ %s marked as installed on request\n", name)
		marked++
	}
	return marked, nil
}

// bottleArtifacts collects the bottles the pending entries will pour,
// deduplicated by checksum for the prefetcher.
func bottleArtifacts(plan *resolver.ExecutionPlan, platform formula.Platform) []fetch.Artifact {
	seen := make(map[string]bool)
	var arts []fetch.Artifact
	for _, e := range plan.Pending() {
		if !e.PourBottle {
			continue
		}
		bottle, ok := e.Package.Formula.BottleFor(platform)
		if !ok || seen[bottle.SHA256] {
			continue
		}
		seen[bottle.SHA256] = true
		arts = append(arts, fetch.Artifact{URL: bottle.URL, SHA256: bottle.SHA256})
	}
	return arts
}

func printInstallReport(rep *install.Report) {
	fmt.Println()
	if rep.Changed() == 0 {
		fmt.Println("No kegs changed.")
		return
	}
	if n := len(rep.Installed); n > 0 {
		fmt.Printf("✓ Installed %d: %s\n", n, strings.Join(rep.Installed, ", "))
	}
	if n := len(rep.Upgraded); n > 0 {
		fmt.Printf("✓ Upgraded %d: %s\n", n, strings.Join(rep.Upgraded, ", "))
	}
	if n := len(rep.Reinstalled); n > 0 {
		fmt.Printf("✓ Reinstalled %d: %s\n", n, strings.Join(rep.Reinstalled, ", "))
	}
}
