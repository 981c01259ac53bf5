package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/tapline/internal/cellar"
	"github.com/blackwell-systems/tapline/internal/config"
	"github.com/blackwell-systems/tapline/internal/fetch"
	"github.com/blackwell-systems/tapline/internal/install"
	"github.com/blackwell-systems/tapline/internal/manifest"
	"github.com/blackwell-systems/tapline/internal/resolver"
)

var (
	snapshotFlagList      bool
	snapshotFlagRestore   string
	snapshotFlagPrune     bool
	snapshotFlagOlderThan time.Duration
	snapshotFlagOutput    string
	snapshotFlagReason    string
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot [package]...",
	Short: "Save and restore the set of requested packages",
	Long: `Write a manifest of the requested kegs (or the named ones) so the
same set can be reinstalled later, on this machine or another. Restoring
resolves the manifest against the current catalog: packages that no
longer resolve are reported and skipped, and version drift is reported
but never blocks the rest.`,
	Example: `  # Snapshot everything installed on request
  tapline snapshot

  # Snapshot specific kegs to a file you keep elsewhere
  tapline snapshot --output backup.toml --reason "before migration" wget jq

  # See what is stored, bring one back, drop the stale ones
  tapline snapshot --list
  tapline snapshot --restore backup.toml
  tapline snapshot --prune`,
	Args: cobra.ArbitraryArgs,
	RunE: runSnapshot,
}

func init() {
	snapshotCmd.Flags().BoolVar(&snapshotFlagList, "list", false, "list stored snapshots, newest first")
	snapshotCmd.Flags().StringVar(&snapshotFlagRestore, "restore", "", "restore the packages in this manifest")
	snapshotCmd.Flags().BoolVar(&snapshotFlagPrune, "prune", false, "delete stored snapshots older than --older-than")
	snapshotCmd.Flags().DurationVar(&snapshotFlagOlderThan, "older-than", manifest.DefaultMaxAge, "age cutoff for --prune")
	snapshotCmd.Flags().StringVarP(&snapshotFlagOutput, "output", "o", "", "write the manifest to this path instead of the snapshot directory")
	snapshotCmd.Flags().StringVar(&snapshotFlagReason, "reason", "", "note stored in the manifest")

	RootCmd.AddCommand(snapshotCmd)
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	c, err := openCellar(cfg)
	if err != nil {
		return err
	}
	defer c.Close()
	mgr := manifest.New(c, manifestDir(cfg))

	switch {
	case snapshotFlagList:
		return listSnapshots(mgr)
	case snapshotFlagRestore != "":
		return restoreSnapshot(cfg, c, mgr, snapshotFlagRestore)
	case snapshotFlagPrune:
		n, err := mgr.Prune(snapshotFlagOlderThan)
		if err != nil {
			return err
		}
		fmt.Printf("✓ Pruned %d snapshots older than %s\n", n, snapshotFlagOlderThan)
		return nil
	}

	if snapshotFlagOutput != "" {
		man, err := mgr.Build(args, snapshotFlagReason)
		if err != nil {
			return err
		}
		if err := manifest.Write(snapshotFlagOutput, man); err != nil {
			return err
		}
		fmt.Printf("✓ Snapshot of %d packages written to %s\n", len(man.Packages), snapshotFlagOutput)
		return nil
	}

	path, err := mgr.Create(args, snapshotFlagReason)
	if err != nil {
		return err
	}
	fmt.Printf("✓ Snapshot written to %s\n", path)
	fmt.Printf("Restore with: tapline snapshot --restore %s\n", path)
	return nil
}

func listSnapshots(mgr *manifest.Manager) error {
	infos, err := mgr.List()
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Println("No snapshots stored.")
		return nil
	}
	for _, in := range infos {
		line := fmt.Sprintf("%s  %3d packages  %s", in.CreatedAt.Format("2006-01-02 15:04"), in.Packages, in.Path)
		if in.Reason != "" {
			line += "  (" + in.Reason + ")"
		}
		fmt.Println(line)
	}
	return nil
}

func restoreSnapshot(cfg *config.Config, c *cellar.Cellar, mgr *manifest.Manager, path string) error {
	cat, err := loadCatalog(cfg)
	if err != nil {
		return err
	}
	r := newResolver(cfg, cat, c, resolver.Options{})
	runner := install.New(c, fetch.New(c.CacheDir()), hostPlatform())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rep, err := mgr.Restore(ctx, path, r, runner)
	if rep != nil {
		for _, d := range rep.Drift {
			fmt.Fprintf(os.Stderr, "⚠ %s\n", d)
		}
		for _, f := range rep.Failed {
			fmt.Fprintf(os.Stderr, "✗ %s\n", f)
		}
		if rep.Install != nil {
			printInstallReport(rep.Install)
		}
	}
	if err != nil {
		return err
	}
	if len(rep.Failed) > 0 {
		return fmt.Errorf("%d of %d packages could not be restored", len(rep.Failed), rep.Requested)
	}
	return nil
}
