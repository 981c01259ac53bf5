package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/tapline/internal/shellenv"
)

var (
	shellenvFlagShell string
	shellenvFlagApply bool
)

var shellenvCmd = &cobra.Command{
	Use:   "shellenv",
	Short: "Print the shell setup for the tapline prefix",
	Long: `Print the statements that put the tapline prefix on PATH and set
TAPLINE_ROOT, meant to be evaluated by the shell:

  eval "$(tapline shellenv)"        # sh, bash, zsh
  tapline shellenv | source         # fish

With --apply the eval line is appended to your shell profile instead,
once, guarded by a marker comment.`,
	Args: cobra.NoArgs,
	RunE: runShellenv,
}

func init() {
	shellenvCmd.Flags().StringVar(&shellenvFlagShell, "shell", "", "render for this shell instead of $SHELL")
	shellenvCmd.Flags().BoolVar(&shellenvFlagApply, "apply", false, "append the eval hook to your shell profile")

	RootCmd.AddCommand(shellenvCmd)
}

func runShellenv(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	c, err := openCellar(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	if shellenvFlagApply {
		added, configFile, err := shellenv.Ensure(cfg.Root, c.PrefixDir())
		if err != nil {
			return err
		}
		switch {
		case added:
			fmt.Printf("✓ Added shellenv hook to %s\n", configFile)
			fmt.Println("Restart your shell or source the file to pick it up.")
		case configFile != "":
			fmt.Printf("Already configured in %s\n", configFile)
		default:
			fmt.Println("Prefix already on PATH, nothing to do.")
		}
		return nil
	}

	shell := shellenvFlagShell
	if shell == "" {
		shell = shellenv.Detect()
	}
	// Raw script only; this output gets evaluated.
	fmt.Print(shellenv.Script(cfg.Root, c.PrefixDir(), shell))
	return nil
}
