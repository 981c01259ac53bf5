package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/tapline/internal/output"
	"github.com/blackwell-systems/tapline/internal/resolver"
)

var (
	planFlagSource          bool
	planFlagHead            bool
	planFlagIncludeTest     bool
	planFlagBestEffort      bool
	planFlagIgnoreConflicts bool
	planFlagJSON            bool
	planFlagWith            []string
	planFlagWithout         []string
)

var planCmd = &cobra.Command{
	Use:   "plan <package>...",
	Short: "Preview the installation plan for packages",
	Long: `Compute and display the installation plan for the named packages
without changing anything.

The plan lists every package in execution order: dependencies always
appear before the packages that need them. Each entry shows the action
the install would take (install, upgrade, reinstall, or skip when the
installed keg already satisfies the request) and whether the payload
would come from a bottle or a source build.

When some requests cannot be resolved, the plan for the ones that can is
still shown, and the command exits with an error naming the failures.`,
	Example: `  # Preview installing wget and its dependencies
  tapline plan wget

  # Plan a source build with an optional dependency enabled
  tapline plan --build-from-source --with with-libressl wget

  # Machine-readable plan
  tapline plan --json jq`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPlan,
}

func init() {
	planCmd.Flags().BoolVar(&planFlagSource, "build-from-source", false, "plan source builds instead of pouring bottles")
	planCmd.Flags().BoolVar(&planFlagHead, "head", false, "plan the version-control tip of the named packages")
	planCmd.Flags().BoolVar(&planFlagIncludeTest, "include-test", false, "keep test dependencies of the named packages")
	planCmd.Flags().BoolVar(&planFlagBestEffort, "best-effort", false, "downgrade unavailable dependencies to warnings")
	planCmd.Flags().BoolVar(&planFlagIgnoreConflicts, "ignore-conflicts", false, "exit zero even when planned packages declare conflicts")
	planCmd.Flags().BoolVar(&planFlagJSON, "json", false, "emit the plan as JSON")
	planCmd.Flags().StringArrayVar(&planFlagWith, "with", nil, "enable an option, \"opt\" or \"pkg:opt\" (repeatable)")
	planCmd.Flags().StringArrayVar(&planFlagWithout, "without", nil, "decline an option, \"opt\" or \"pkg:opt\" (repeatable)")

	RootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
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

	opts := resolveOptions(args, planFlagSource, planFlagHead, planFlagIncludeTest, planFlagWith, planFlagWithout, planFlagBestEffort)
	r := newResolver(cfg, cat, c, opts)
	plan, rerr := r.Resolve(args)

	if planFlagJSON {
		if err := printPlanJSON(plan, rerr); err != nil {
			return err
		}
		if rerr != nil {
			return rerr
		}
		return conflictVeto(plan, planFlagIgnoreConflicts)
	}

	if rerr != nil {
		var merr *resolver.MultiError
		if plan == nil || !errors.As(rerr, &merr) {
			return rerr
		}
		if len(plan.Entries) > 0 {
			fmt.Println("Partial plan (failed requests excluded):")
			fmt.Println()
			printPlan(plan)
			fmt.Println()
		}
		for _, e := range merr.Errs {
			fmt.Fprintf(os.Stderr, "✗ %v\n", e)
		}
		return fmt.Errorf("%d of %d requests failed to resolve", len(merr.Errs), len(args))
	}

	printPlan(plan)
	// Mirror what install will do with this plan: declared conflicts fail
	// the preview too, so scripts catch them before executing.
	return conflictVeto(plan, planFlagIgnoreConflicts)
}

// printPlan renders conflicts, warnings, the plan table, and the summary
// footer.
func printPlan(plan *resolver.ExecutionPlan) {
	if s := output.RenderConflicts(plan.Conflicts); s != "" {
		fmt.Print(s)
	}
	if s := output.RenderWarnings(plan.Warnings); s != "" {
		fmt.Print(s)
	}
	fmt.Print(output.RenderPlanTable(plan))
	fmt.Println()
	fmt.Println(output.RenderPlanSummary(plan))
}

type planPackageJSON struct {
	Name      string   `json:"name"`
	FullName  string   `json:"full_name"`
	Version   string   `json:"version"`
	Action    string   `json:"action"`
	Via       string   `json:"via"`
	Requested bool     `json:"requested,omitempty"`
	Reason    string   `json:"reason,omitempty"`
	DependsOn []string `json:"depends_on,omitempty"`
}

type planJSON struct {
	Packages  []planPackageJSON `json:"packages"`
	Warnings  []string          `json:"warnings,omitempty"`
	Conflicts []string          `json:"conflicts,omitempty"`
	Errors    []string          `json:"errors,omitempty"`
}

// printPlanJSON emits the plan and any resolution errors as one JSON
// document, so scripted callers get both even on partial failure.
func printPlanJSON(plan *resolver.ExecutionPlan, rerr error) error {
	doc := planJSON{Packages: []planPackageJSON{}}
	if plan != nil {
		doc.Warnings = plan.Warnings
		for _, c := range plan.Conflicts {
			doc.Conflicts = append(doc.Conflicts, c.Error())
		}
		for _, e := range plan.Entries {
			via := "bottle"
			if !e.PourBottle {
				via = "source"
			}
			pkg := planPackageJSON{
				Name:      e.Package.Name(),
				FullName:  e.Package.FullName(),
				Version:   e.Package.Version().String(),
				Action:    string(e.Action),
				Via:       via,
				Requested: e.Requested,
				Reason:    e.Reason,
			}
			for _, d := range e.Depends {
				pkg.DependsOn = append(pkg.DependsOn, d.Name)
			}
			doc.Packages = append(doc.Packages, pkg)
		}
	}
	if rerr != nil {
		var merr *resolver.MultiError
		if errors.As(rerr, &merr) {
			for _, e := range merr.Errs {
				doc.Errors = append(doc.Errors, e.Error())
			}
		} else {
			doc.Errors = append(doc.Errors, rerr.Error())
		}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding plan: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
