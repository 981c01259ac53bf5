package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/tapline/internal/audit"
	"github.com/blackwell-systems/tapline/internal/cellar"
	"github.com/blackwell-systems/tapline/internal/linker"
	"github.com/blackwell-systems/tapline/internal/output"
	"github.com/blackwell-systems/tapline/internal/store"
)

var (
	uninstallFlagForce  bool
	uninstallFlagDryRun bool
	uninstallFlagYes    bool
)

var uninstallCmd = &cobra.Command{
	Use:     "uninstall <package>...",
	Aliases: []string{"remove", "rm"},
	Short:   "Remove installed kegs",
	Long: `Remove the named kegs from the cellar, unlinking them from the
prefix first. Removal is refused while other installed kegs still
depend on a target unless --force is given.`,
	Example: `  # Remove one keg
  tapline uninstall wget

  # See what would happen first
  tapline uninstall --dry-run wget curl

  # Remove even though dependents remain
  tapline uninstall --force openssl`,
	Args: cobra.MinimumNArgs(1),
	RunE: runUninstall,
}

func init() {
	uninstallCmd.Flags().BoolVar(&uninstallFlagForce, "force", false, "remove even if other kegs depend on the target")
	uninstallCmd.Flags().BoolVar(&uninstallFlagDryRun, "dry-run", false, "show what would be removed without removing")
	uninstallCmd.Flags().BoolVarP(&uninstallFlagYes, "yes", "y", false, "skip the confirmation prompt")

	RootCmd.AddCommand(uninstallCmd)
}

func runUninstall(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	c, err := openCellar(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	kegs := make([]*cellar.Keg, 0, len(args))
	names := make([]string, 0, len(args))
	for _, arg := range args {
		name := cfg.Canonical(arg)
		k, err := c.Keg(name)
		if errors.Is(err, store.ErrNotExist) {
			return fmt.Errorf("%s is not installed", name)
		}
		if err != nil {
			return err
		}
		kegs = append(kegs, k)
		names = append(names, k.Name)
	}

	warnings, err := audit.New(c.Store()).ValidateRemoval(names)
	if err != nil {
		return err
	}
	for _, w := range warnings {
		fmt.Fprintf(os.Stderr, "⚠ %s\n", w)
	}
	if len(warnings) > 0 && !uninstallFlagForce {
		return errors.New("other kegs still depend on these (use --force to remove anyway)")
	}

	fmt.Printf("Will remove %d kegs:\n", len(kegs))
	for _, k := range kegs {
		fmt.Printf("  %s %s\n", k.Name, k.PkgVersion())
	}

	if uninstallFlagDryRun {
		fmt.Println("Dry-run mode: nothing will be removed.")
		return nil
	}
	if !uninstallFlagYes && !confirmProceed(fmt.Sprintf("Remove %d kegs?", len(kegs))) {
		fmt.Println("Uninstall cancelled.")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	removed, err := removeKegs(ctx, c, names)
	if err != nil {
		return err
	}
	fmt.Printf("✓ Removed %d kegs\n", removed)
	return nil
}

// removeKegs unlinks and deletes each named keg, recording a remove event
// per keg. Failures do not stop the rest; they are gathered into one error.
func removeKegs(ctx context.Context, c *cellar.Cellar, names []string) (int, error) {
	prog := output.NewProgress(len(names), "Removing kegs")
	removed := 0
	var failures []string
	for _, name := range names {
		if err := removeKeg(ctx, c, name); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", name, err))
		} else {
			removed++
		}
		prog.Step()
	}
	prog.Finish()
	if len(failures) > 0 {
		return removed, fmt.Errorf("failed to remove %d kegs:\n  %s", len(failures), strings.Join(failures, "\n  "))
	}
	return removed, nil
}

func removeKeg(ctx context.Context, c *cellar.Cellar, name string) error {
	lk, err := c.Lock(ctx, name)
	if err != nil {
		return err
	}
	defer lk.Unlock()

	k, err := c.Keg(name)
	if err != nil {
		return err
	}
	if k.Linked {
		if _, err := linker.Unlink(k.Path, c.PrefixDir()); err != nil {
			return fmt.Errorf("unlinking: %w", err)
		}
	}
	// The parent directory holds every version of the package; take all
	// of them so no stray kegs survive under a fresh install.
	if err := os.RemoveAll(filepath.Dir(k.Path)); err != nil {
		return fmt.Errorf("removing keg: %w", err)
	}
	if err := c.Unregister(name); err != nil {
		return err
	}
	recordRemoveEvent(c, k)
	return nil
}

func recordRemoveEvent(c *cellar.Cellar, k *cellar.Keg) {
	err := c.Store().InsertInstallEvent(&store.InstallEvent{
		Package:   k.Name,
		Version:   k.PkgVersion(),
		Action:    store.EventRemove,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "⚠ could not record remove event for %s: %v\n", k.Name, err)
	}
}
