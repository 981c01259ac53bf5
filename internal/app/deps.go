package app

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/tapline/internal/formula"
	"github.com/blackwell-systems/tapline/internal/output"
	"github.com/blackwell-systems/tapline/internal/resolver"
)

var (
	depsFlagTree            bool
	depsFlagAnnotate        bool
	depsFlagIncludeBuild    bool
	depsFlagIncludeTest     bool
	depsFlagIncludeOptional bool
	depsFlagSkipRecommended bool
)

var depsCmd = &cobra.Command{
	Use:   "deps <package>...",
	Short: "Show the dependencies of packages",
	Long: `List the full dependency closure of the named packages, one per
line, or render it as a tree with --tree.

By default the listing covers what a bottle install would need: required
and recommended dependencies, plus uses_from_os dependencies the host
platform does not provide. Build and test dependencies appear only when
asked for, and optional dependencies only with --include-optional.`,
	Example: `  # Flat closure
  tapline deps wget

  # Tree with edge kinds
  tapline deps --tree --annotate wget

  # What a source build would pull in
  tapline deps --include-build ffmpeg`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDeps,
}

func init() {
	depsCmd.Flags().BoolVar(&depsFlagTree, "tree", false, "render dependencies as a tree")
	depsCmd.Flags().BoolVar(&depsFlagAnnotate, "annotate", false, "mark non-required edges with their kind")
	depsCmd.Flags().BoolVar(&depsFlagIncludeBuild, "include-build", false, "include build dependencies")
	depsCmd.Flags().BoolVar(&depsFlagIncludeTest, "include-test", false, "include test dependencies of the named packages")
	depsCmd.Flags().BoolVar(&depsFlagIncludeOptional, "include-optional", false, "include optional dependencies of the named packages")
	depsCmd.Flags().BoolVar(&depsFlagSkipRecommended, "skip-recommended", false, "leave out recommended dependencies")

	RootCmd.AddCommand(depsCmd)
}

func runDeps(cmd *cobra.Command, args []string) error {
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

	opts := resolver.Options{BuildFromSource: depsFlagIncludeBuild}
	if depsFlagIncludeTest {
		opts.IncludeTest = args
	}
	r := newResolver(cfg, cat, c, opts)

	if depsFlagIncludeOptional {
		for _, name := range args {
			f, err := cat.Lookup(cfg.Canonical(name))
			if err != nil {
				return err
			}
			var enable []string
			for _, d := range f.Dependencies {
				if d.Tag == formula.TagOptional {
					enable = append(enable, d.OptionName())
				}
			}
			if len(enable) > 0 {
				r.SetPackageOptions(f.Name, enable, nil)
			}
		}
	}

	var filter resolver.WalkFilter
	if depsFlagSkipRecommended {
		filter = func(owner *formula.Formula, d formula.Dependency) resolver.WalkDecision {
			if d.Tag == formula.TagRecommended {
				return resolver.Prune
			}
			return resolver.Keep
		}
	}

	if depsFlagTree || depsFlagAnnotate || depsFlagSkipRecommended {
		g, err := r.Expand(args, filter)
		if err != nil {
			return err
		}
		if depsFlagTree {
			for i, root := range g.Roots {
				if i > 0 {
					fmt.Println()
				}
				fmt.Print(output.RenderTree(depTree(g, root, depsFlagAnnotate)))
			}
			return nil
		}
		for _, line := range flatDeps(g, depsFlagAnnotate) {
			fmt.Println(line)
		}
		return nil
	}

	seen := make(map[string]bool)
	var names []string
	for _, root := range args {
		members, err := r.DependencyNames(root)
		if err != nil {
			return err
		}
		for _, m := range members {
			if !seen[m] {
				seen[m] = true
				names = append(names, m)
			}
		}
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Println(n)
	}
	return nil
}

// depTree converts a graph into a renderable tree. Shared dependencies
// appear once per path, the way tap manifests declare them; a back edge
// stops the descent so cyclic declarations still render.
func depTree(g *resolver.Graph, root *resolver.Package, annotate bool) *output.TreeNode {
	return depNode(g, root, "", annotate, make(map[*resolver.Package]bool))
}

func depNode(g *resolver.Graph, p *resolver.Package, tag formula.DependencyTag, annotate bool, onPath map[*resolver.Package]bool) *output.TreeNode {
	label := p.Name()
	if annotate && tag != "" && tag != formula.TagRequired {
		label += " [" + string(tag) + "]"
	}
	if onPath[p] {
		return &output.TreeNode{Label: label + " (cycle)"}
	}
	node := &output.TreeNode{Label: label}
	onPath[p] = true
	for _, e := range g.Edges(p) {
		node.Children = append(node.Children, depNode(g, e.To, e.Tag, annotate, onPath))
	}
	delete(onPath, p)
	return node
}

// flatDeps lists every non-root node, sorted, annotated with the tag of
// the first edge that reached it.
func flatDeps(g *resolver.Graph, annotate bool) []string {
	roots := make(map[*resolver.Package]bool)
	for _, r := range g.Roots {
		roots[r] = true
	}
	tagFor := make(map[*resolver.Package]formula.DependencyTag)
	for _, p := range g.Nodes {
		for _, e := range g.Edges(p) {
			if _, ok := tagFor[e.To]; !ok {
				tagFor[e.To] = e.Tag
			}
		}
	}

	var lines []string
	for _, p := range g.Nodes {
		if roots[p] {
			continue
		}
		line := p.Name()
		if tag := tagFor[p]; annotate && tag != "" && tag != formula.TagRequired {
			line += " [" + string(tag) + "]"
		}
		lines = append(lines, line)
	}
	sort.Strings(lines)
	return lines
}
