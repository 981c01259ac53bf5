package app

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/tapline/internal/output"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Rebuild the keg index from receipts on disk",
	Long: `Walk the cellar and rebuild the keg index from the receipts found
there. Receipts are the durable record; run this after restoring a
cellar from backup, copying one between machines, or whenever 'tapline
doctor' reports the index out of step with the disk.

Keg directories without a readable receipt are reported and left alone.`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

func init() {
	RootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	c, err := openCellar(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	sp := output.NewSpinner("Scanning cellar")
	sp.Start()
	report, err := c.Scan()
	if err != nil {
		sp.Stop()
		return err
	}
	sp.StopWithMessage(fmt.Sprintf("✓ %d kegs indexed", report.Indexed))

	for _, name := range report.MissingReceipts {
		fmt.Fprintf(os.Stderr, "⚠ %s: keg directory has no readable receipt, skipped\n", name)
	}
	return nil
}
