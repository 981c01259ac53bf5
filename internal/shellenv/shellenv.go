// Package shellenv renders the environment block that puts a tapline
// prefix on PATH, and can install an eval hook into the user's shell
// profile.
package shellenv

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// marker makes profile edits idempotent.
const marker = "# tapline shellenv"

// Detect returns the basename of the user's login shell, or "sh" when
// $SHELL is unset.
func Detect() string {
	s := os.Getenv("SHELL")
	if s == "" {
		return "sh"
	}
	return filepath.Base(s)
}

// Script renders the export block for one shell family. The output is
// meant to be evaluated, not sourced from a file:
//
//	eval "$(tapline shellenv)"        # sh, bash, zsh
//	tapline shellenv | source         # fish
//
// TAPLINE_ROOT feeds back into configuration loading, so child tapline
// invocations resolve the same root.
func Script(root, prefix, shell string) string {
	bin := filepath.Join(prefix, "bin")
	man := filepath.Join(prefix, "share", "man")
	info := filepath.Join(prefix, "share", "info")

	var b strings.Builder
	switch shell {
	case "fish":
		fmt.Fprintf(&b, "set -gx TAPLINE_ROOT %q;\n", root)
		fmt.Fprintf(&b, "fish_add_path %q;\n", bin)
		fmt.Fprintf(&b, "set -gx MANPATH %q $MANPATH;\n", man)
		fmt.Fprintf(&b, "set -gx INFOPATH %q $INFOPATH;\n", info)
	default:
		fmt.Fprintf(&b, "export TAPLINE_ROOT=%q\n", root)
		fmt.Fprintf(&b, "export PATH=%q:$PATH\n", bin)
		fmt.Fprintf(&b, "export MANPATH=%q:$MANPATH\n", man)
		fmt.Fprintf(&b, "export INFOPATH=%q:$INFOPATH\n", info)
	}
	return b.String()
}

// Ensure appends the shellenv eval line to the user's shell profile if
// the prefix is not already on PATH. Returns (added, configFile, err);
// added=false means nothing needed to change.
func Ensure(root, prefix string) (added bool, configFile string, err error) {
	binDir := filepath.Join(prefix, "bin")
	for _, entry := range filepath.SplitList(os.Getenv("PATH")) {
		if entry == binDir {
			return false, "", nil
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return false, "", fmt.Errorf("cannot determine home directory: %w", err)
	}

	var configPath string
	var isFish bool
	switch Detect() {
	case "zsh":
		configPath = filepath.Join(home, ".zprofile")
	case "bash":
		configPath = filepath.Join(home, ".bash_profile")
	case "fish":
		configPath = filepath.Join(home, ".config", "fish", "conf.d", "tapline.fish")
		isFish = true
	default:
		configPath = filepath.Join(home, ".profile")
	}

	// The fish conf.d directory may not exist yet.
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return false, "", fmt.Errorf("cannot create config directory %s: %w", filepath.Dir(configPath), err)
	}

	existing, readErr := os.ReadFile(configPath)
	if readErr == nil && strings.Contains(string(existing), marker) {
		return false, configPath, nil
	}

	var line string
	if isFish {
		line = fmt.Sprintf("\n%s\ntapline shellenv | source\n", marker)
	} else {
		line = fmt.Sprintf("\n%s\neval \"$(tapline shellenv)\"\n", marker)
	}

	f, err := os.OpenFile(configPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return false, "", fmt.Errorf("cannot open config file %s: %w", configPath, err)
	}
	defer f.Close()

	if _, err := fmt.Fprint(f, line); err != nil {
		return false, "", fmt.Errorf("cannot write to config file %s: %w", configPath, err)
	}
	return true, configPath, nil
}
