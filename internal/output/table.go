// Package output renders tapline's terminal output: plan, keg, and
// event tables, dependency trees, and progress indicators for long
// fetches and builds. Tables use ASCII layout with ANSI color when
// stdout is a terminal; NO_COLOR disables color entirely.
package output

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/blackwell-systems/tapline/internal/cellar"
	"github.com/blackwell-systems/tapline/internal/resolver"
	"github.com/blackwell-systems/tapline/internal/store"
)

const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorGray   = "\033[90m"
)

// IsColorEnabled reports whether ANSI color codes should be emitted.
// Color requires stdout to be a TTY and NO_COLOR to be unset.
func IsColorEnabled() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd())
}

func colorize(color, text string) string {
	if IsColorEnabled() {
		return color + text + colorReset
	}
	return text
}

// RenderPlanTable renders one row per plan entry in execution order.
func RenderPlanTable(plan *resolver.ExecutionPlan) string {
	if len(plan.Entries) == 0 {
		return "Nothing to do.\n"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-24s %-12s %-10s %-8s %s\n",
		"Package", "Version", "Action", "Via", "Reason"))
	sb.WriteString(strings.Repeat("─", 76))
	sb.WriteString("\n")

	for _, e := range plan.Entries {
		via := "bottle"
		if !e.PourBottle {
			via = "source"
		}
		if e.Action == resolver.ActionSkip {
			via = "—"
		}
		action := colorize(actionColor(e.Action), fmt.Sprintf("%-10s", string(e.Action)))
		sb.WriteString(fmt.Sprintf("%-24s %-12s %s %-8s %s\n",
			truncate(e.Package.Name(), 24),
			e.Package.Version().String(),
			action,
			via,
			e.Reason))
	}
	return sb.String()
}

// RenderPlanSummary renders the one-line totals footer for a plan.
func RenderPlanSummary(plan *resolver.ExecutionPlan) string {
	parts := []string{
		fmt.Sprintf("%d to install", len(plan.ToInstall())),
		fmt.Sprintf("%d to upgrade", len(plan.ToUpgrade())),
		fmt.Sprintf("%d to reinstall", len(plan.ToReinstall())),
		fmt.Sprintf("%d already satisfied", len(plan.AlreadySatisfied())),
	}
	line := strings.Join(parts, " · ")
	if n := len(plan.Conflicts); n > 0 {
		line += " · " + colorize(colorRed, fmt.Sprintf("%d conflicts", n))
	}
	return line
}

// RenderConflicts renders declared conflicts between planned packages,
// one per line.
func RenderConflicts(conflicts []resolver.ConflictError) string {
	var sb strings.Builder
	for _, c := range conflicts {
		sb.WriteString(colorize(colorRed, "conflict: "+c.Error()) + "\n")
	}
	return sb.String()
}

// RenderWarnings renders resolution warnings, one per line.
func RenderWarnings(warnings []string) string {
	var sb strings.Builder
	for _, w := range warnings {
		sb.WriteString(colorize(colorYellow, "warning: "+w) + "\n")
	}
	return sb.String()
}

// RenderKegTable renders installed kegs in the order given.
func RenderKegTable(kegs []*cellar.Keg) string {
	if len(kegs) == 0 {
		return "No kegs installed.\n"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-24s %-12s %-10s %-10s %-10s %s\n",
		"Package", "Version", "Tap", "Requested", "Status", "Installed"))
	sb.WriteString(strings.Repeat("─", 84))
	sb.WriteString("\n")

	for _, k := range kegs {
		requested := "dep"
		if k.Requested {
			requested = "yes"
		}
		sb.WriteString(fmt.Sprintf("%-24s %-12s %-10s %-10s %-10s %s\n",
			truncate(k.Name, 24),
			k.PkgVersion(),
			truncate(k.Tap, 10),
			requested,
			kegStatus(k),
			formatRelativeTime(k.InstalledAt)))
	}
	return sb.String()
}

func kegStatus(k *cellar.Keg) string {
	switch {
	case k.KegOnly:
		return "keg-only"
	case k.Linked:
		return "linked"
	default:
		return "unlinked"
	}
}

// RenderEventTable renders install history rows, most recent first as
// the store returns them.
func RenderEventTable(events []*store.InstallEvent) string {
	if len(events) == 0 {
		return "No install history.\n"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-14s %-20s %-12s %-10s %s\n",
		"When", "Package", "Version", "Action", "Detail"))
	sb.WriteString(strings.Repeat("─", 80))
	sb.WriteString("\n")

	for _, e := range events {
		action := e.Action
		if e.Action == store.EventFailed {
			action = colorize(colorRed, action)
		}
		sb.WriteString(fmt.Sprintf("%-14s %-20s %-12s %-10s %s\n",
			formatRelativeTime(e.Timestamp),
			truncate(e.Package, 20),
			e.Version,
			action,
			truncate(e.Detail, 40)))
	}
	return sb.String()
}

// TreeNode is one node of a rendered dependency tree.
type TreeNode struct {
	Label    string
	Children []*TreeNode
}

// RenderTree renders a dependency tree with box-drawing connectors:
//
//	wget
//	├── libidn2
//	│   └── libunistring
//	└── openssl@3
func RenderTree(root *TreeNode) string {
	var sb strings.Builder
	sb.WriteString(root.Label)
	sb.WriteString("\n")
	renderBranches(&sb, root.Children, "")
	return sb.String()
}

func renderBranches(sb *strings.Builder, nodes []*TreeNode, prefix string) {
	for i, node := range nodes {
		connector, childPrefix := "├── ", prefix+"│   "
		if i == len(nodes)-1 {
			connector, childPrefix = "└── ", prefix+"    "
		}
		sb.WriteString(prefix + connector + node.Label + "\n")
		renderBranches(sb, node.Children, childPrefix)
	}
}

func actionColor(a resolver.Action) string {
	switch a {
	case resolver.ActionInstall:
		return colorGreen
	case resolver.ActionUpgrade, resolver.ActionReinstall:
		return colorYellow
	default:
		return colorGray
	}
}

// formatRelativeTime converts a timestamp to relative time ("2 days ago").
func formatRelativeTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}

	diff := time.Since(t)
	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return plural(int(diff.Minutes()), "minute")
	case diff < 24*time.Hour:
		return plural(int(diff.Hours()), "hour")
	case diff < 7*24*time.Hour:
		return plural(int(diff.Hours()/24), "day")
	case diff < 30*24*time.Hour:
		return plural(int(diff.Hours()/24/7), "week")
	case diff < 365*24*time.Hour:
		return plural(int(diff.Hours()/24/30), "month")
	default:
		return plural(int(diff.Hours()/24/365), "year")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit + " ago"
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}

// truncate shortens a string to maxLen, adding "..." when cut.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
