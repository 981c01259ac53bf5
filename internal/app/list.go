package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/tapline/internal/cellar"
	"github.com/blackwell-systems/tapline/internal/output"
)

var listFlagOnRequest bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed kegs",
	Long: `List every installed keg with its version, tap, link status, and
install time. Kegs pulled in as dependencies are marked "dep" in the
Requested column.`,
	Example: `  # Everything in the cellar
  tapline list

  # Only kegs you asked for directly
  tapline list --on-request`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	listCmd.Flags().BoolVar(&listFlagOnRequest, "on-request", false, "only kegs installed on request, not as dependencies")

	RootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	c, err := openCellar(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	kegs, err := c.Kegs()
	if err != nil {
		return err
	}
	if listFlagOnRequest {
		var requested []*cellar.Keg
		for _, k := range kegs {
			if k.Requested {
				requested = append(requested, k)
			}
		}
		kegs = requested
	}
	fmt.Print(output.RenderKegTable(kegs))
	return nil
}
