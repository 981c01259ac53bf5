package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/tapline/internal/audit"
)

var (
	autoremoveFlagDryRun bool
	autoremoveFlagYes    bool
)

var autoremoveCmd = &cobra.Command{
	Use:   "autoremove",
	Short: "Remove kegs that no installed package needs anymore",
	Long: `Find kegs that were installed as dependencies and that no surviving
keg depends on, and remove them. A keg marked as installed on request is
never autoremoved; uninstall it or pass it to 'tapline uninstall' first.

The reported set is closed: removing it orphans nothing else.`,
	Example: `  # Preview the orphans
  tapline autoremove --dry-run

  # Remove them without a prompt
  tapline autoremove --yes`,
	Args: cobra.NoArgs,
	RunE: runAutoremove,
}

func init() {
	autoremoveCmd.Flags().BoolVar(&autoremoveFlagDryRun, "dry-run", false, "show what would be removed without removing")
	autoremoveCmd.Flags().BoolVarP(&autoremoveFlagYes, "yes", "y", false, "skip the confirmation prompt")

	RootCmd.AddCommand(autoremoveCmd)
}

func runAutoremove(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	c, err := openCellar(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	orphans, err := audit.New(c.Store()).Orphans()
	if err != nil {
		return err
	}
	if len(orphans) == 0 {
		fmt.Println("No orphaned kegs.")
		return nil
	}

	fmt.Printf("Will remove %d orphaned kegs:\n", len(orphans))
	for _, name := range orphans {
		k, err := c.Keg(name)
		if err != nil {
			return err
		}
		fmt.Printf("  %s %s\n", k.Name, k.PkgVersion())
	}

	if autoremoveFlagDryRun {
		fmt.Println("Dry-run mode: nothing will be removed.")
		return nil
	}
	if !autoremoveFlagYes && !confirmProceed(fmt.Sprintf("Remove %d kegs?", len(orphans))) {
		fmt.Println("Autoremove cancelled.")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	removed, err := removeKegs(ctx, c, orphans)
	if err != nil {
		return err
	}
	fmt.Printf("✓ Removed %d kegs\n", removed)
	return nil
}
