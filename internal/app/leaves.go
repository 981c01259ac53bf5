package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/tapline/internal/audit"
)

var leavesCmd = &cobra.Command{
	Use:   "leaves",
	Short: "List installed kegs that nothing depends on",
	Long: `List installed kegs that no other installed keg depends on. These
are the packages you could uninstall without breaking anything else,
whether they were installed on request or as dependencies.`,
	Args: cobra.NoArgs,
	RunE: runLeaves,
}

func init() {
	RootCmd.AddCommand(leavesCmd)
}

func runLeaves(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	c, err := openCellar(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	leaves, err := audit.New(c.Store()).Leaves()
	if err != nil {
		return err
	}
	for _, name := range leaves {
		fmt.Println(name)
	}
	return nil
}
