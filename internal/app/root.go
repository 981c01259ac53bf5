package app

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/tapline/internal/logging"
)

var (
	rootFlagConfig  string
	rootFlagRoot    string
	rootFlagVerbose int

	// RootCmd is the root command for tapline
	RootCmd = &cobra.Command{
		Use:   "tapline",
		Short: "Install and manage packages from tap catalogs",
		Long: `tapline installs prebuilt packages (bottles) into versioned keg
directories and links them into a shared prefix. Dependency resolution is
deterministic: the same catalog and the same request always produce the
same installation plan.

Formulae come from tap directories and catalog files listed in the
configuration. Every install writes a receipt into the keg, so the index
can always be rebuilt from disk.

Quick Start:
  1. tapline install wget
  2. eval "$(tapline shellenv)"
  3. tapline list

Examples:
  # Preview what an install would do
  tapline plan wget jq

  # Install packages and their dependencies
  tapline install wget jq

  # Show the dependency tree
  tapline deps --tree wget

  # Remove kegs nothing depends on anymore
  tapline autoremove

  # Check the installation for problems
  tapline doctor`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.Setup(rootFlagVerbose)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("tapline: package installs from tap catalogs")
			fmt.Println()
			cfg, err := loadConfig()
			if err == nil {
				if _, statErr := os.Stat(cfg.Root); os.IsNotExist(statErr) {
					fmt.Println("No installation root yet. Run 'tapline install <package>' to create one.")
					fmt.Println("Run 'tapline --help' for the full reference.")
					return nil
				}
			}
			fmt.Println("Tip: Run 'tapline list' to see installed kegs.")
			fmt.Println("     Run 'tapline plan <package>' to preview an install.")
			fmt.Println("     Run 'tapline --help' for all commands.")
			return nil
		},
	}
)

func init() {
	RootCmd.PersistentFlags().StringVar(&rootFlagConfig, "config", "", "config file (default: $XDG_CONFIG_HOME/tapline/config.toml)")
	RootCmd.PersistentFlags().StringVar(&rootFlagRoot, "root", "", "installation root (default: $XDG_DATA_HOME/tapline)")
	RootCmd.PersistentFlags().CountVarP(&rootFlagVerbose, "verbose", "v", "increase log verbosity (-v info, -vv debug)")

	// Enable cobra's built-in suggestion feature for unknown subcommands
	RootCmd.SuggestionsMinimumDistance = 2
}

// Execute runs the root command
func Execute() error {
	return RootCmd.Execute()
}
