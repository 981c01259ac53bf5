package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/tapline/internal/output"
)

var historyFlagLimit int

var historyCmd = &cobra.Command{
	Use:   "history [package]",
	Short: "Show recent install, upgrade, and remove events",
	Long: `Show the event log of cellar changes, newest first. With a package
argument only that package's events are shown.`,
	Example: `  # The last 20 events
  tapline history

  # Everything that ever happened to openssl
  tapline history --limit 0 openssl`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyFlagLimit, "limit", 20, "maximum events to show (0 for all)")

	RootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	c, err := openCellar(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	pkg := ""
	if len(args) == 1 {
		pkg = cfg.Canonical(args[0])
	}
	events, err := c.Store().ListInstallEvents(pkg, historyFlagLimit)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Println("No events recorded.")
		return nil
	}
	fmt.Print(output.RenderEventTable(events))
	return nil
}
