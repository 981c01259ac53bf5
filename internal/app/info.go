package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/tapline/internal/cellar"
	"github.com/blackwell-systems/tapline/internal/formula"
	"github.com/blackwell-systems/tapline/internal/store"
)

var infoCmd = &cobra.Command{
	Use:   "info <package>",
	Short: "Show details for one formula",
	Long: `Show what the catalog declares for a formula: description, version,
dependencies by kind, platform requirements, conflicts, and available
bottles, plus the installed keg if there is one.`,
	Example: `  tapline info wget
  tapline info core/openssl@3`,
	Args: cobra.ExactArgs(1),
	RunE: runInfo,
}

func init() {
	RootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
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

	f, err := cat.Lookup(cfg.Canonical(args[0]))
	if err != nil {
		return err
	}

	var keg *cellar.Keg
	if k, err := c.Keg(f.Name); err == nil {
		keg = k
	} else if !errors.Is(err, store.ErrNotExist) {
		return err
	}
	printFormulaInfo(f, keg, hostPlatform())
	return nil
}

func printFormulaInfo(f *formula.Formula, keg *cellar.Keg, platform formula.Platform) {
	fmt.Printf("%s: %s\n", f.FullName, f.PkgVersion())
	if f.Desc != "" {
		fmt.Println(f.Desc)
	}
	if f.Homepage != "" {
		fmt.Println(f.Homepage)
	}
	fmt.Println()

	if f.Tap != "" {
		fmt.Printf("Tap: %s\n", f.Tap)
	}
	if f.KegOnly {
		if f.KegOnlyReason != "" {
			fmt.Printf("Keg-only: %s\n", f.KegOnlyReason)
		} else {
			fmt.Println("Keg-only: yes")
		}
	}
	if f.HasHead() {
		fmt.Printf("Head: %s\n", f.Head.URL)
	}

	if deps := dependencyLines(f); len(deps) > 0 {
		fmt.Println("Dependencies:")
		for _, line := range deps {
			fmt.Printf("  %s\n", line)
		}
	}
	if len(f.Requirements) > 0 {
		fmt.Println("Requirements:")
		for _, r := range f.Requirements {
			status := "✓"
			if ok, reason := r.Satisfied(platform, toolOnPath); !ok {
				status = "✗ " + reason
				if !r.Fatal {
					status = "⚠ " + reason
				}
			}
			fmt.Printf("  %s  %s\n", r.String(), status)
		}
	}
	for _, conflict := range f.Conflicts {
		if conflict.Reason != "" {
			fmt.Printf("Conflicts with: %s (%s)\n", conflict.Name, conflict.Reason)
		} else {
			fmt.Printf("Conflicts with: %s\n", conflict.Name)
		}
	}

	if len(f.Bottles) > 0 {
		var targets []string
		for _, b := range f.Bottles {
			targets = append(targets, b.OS+"/"+b.Arch)
		}
		line := fmt.Sprintf("Bottles: %s", strings.Join(targets, ", "))
		if _, ok := f.BottleFor(platform); ok {
			line += " (host covered)"
		}
		fmt.Println(line)
	} else {
		fmt.Println("Bottles: none, installs build from source")
	}

	fmt.Println()
	if keg == nil {
		fmt.Println("Not installed")
		return
	}
	via := "source build"
	if keg.PouredFromBottle {
		via = "bottle"
	}
	detail := []string{via}
	if keg.Linked {
		detail = append(detail, "linked")
	}
	if keg.Requested {
		detail = append(detail, "on request")
	} else {
		detail = append(detail, "as dependency")
	}
	fmt.Printf("Installed: %s (%s)\n", keg.PkgVersion(), strings.Join(detail, ", "))
	fmt.Printf("  %s\n", keg.Path)
}

// dependencyLines groups declared dependencies by tag, keeping the tag
// order used in manifests.
func dependencyLines(f *formula.Formula) []string {
	order := []formula.DependencyTag{
		formula.TagRequired,
		formula.TagBuild,
		formula.TagTest,
		formula.TagOptional,
		formula.TagRecommended,
		formula.TagUsesFromOS,
	}
	byTag := make(map[formula.DependencyTag][]string)
	for _, d := range f.Dependencies {
		byTag[d.Tag] = append(byTag[d.Tag], d.Name)
	}
	var lines []string
	for _, tag := range order {
		if names := byTag[tag]; len(names) > 0 {
			lines = append(lines, fmt.Sprintf("%s: %s", tag, strings.Join(names, ", ")))
		}
	}
	return lines
}
