package formula

import (
	"fmt"

	"github.com/blackwell-systems/tapline/internal/pkgversion"
)

// Platform describes the host a plan is being produced for. Resolution is
// pure with respect to it: the same Platform always yields the same edges.
type Platform struct {
	OS        string // "macos" or "linux"
	OSVersion string
	Arch      string // "arm64" or "amd64"
}

// ProvidesCapability reports whether the OS itself satisfies a
// uses_from_os dependency, making the edge inert. macOS ships these
// capabilities; a Since bound limits that to OS versions at or above it.
// Linux never provides them, so there the edge behaves as required.
func (p Platform) ProvidesCapability(d Dependency) bool {
	if p.OS != "macos" {
		return false
	}
	if d.Since == "" {
		return true
	}
	return pkgversion.CompareStrings(p.OSVersion, d.Since) >= 0
}

// RequirementKind identifies what a requirement checks.
type RequirementKind string

const (
	ReqOS        RequirementKind = "os"
	ReqOSVersion RequirementKind = "os_version"
	ReqArch      RequirementKind = "arch"
	ReqTool      RequirementKind = "tool"
)

// Requirement is a non-package precondition declared by a formula. It is
// checked during validation and never enters the install order.
type Requirement struct {
	Kind RequirementKind

	// OS names the operating system for ReqOS. For ReqOSVersion it
	// optionally scopes the bound to one OS; other hosts pass vacuously.
	OS string

	// MinVersion is the inclusive lower OS version bound for ReqOSVersion.
	MinVersion string

	// Arch names the required architecture for ReqArch.
	Arch string

	// Tool names an executable that must be findable for ReqTool.
	Tool string

	// Tags restrict when the requirement applies, with the same meaning
	// as dependency tags. Empty means always.
	Tags []DependencyTag

	// Fatal requirements fail validation when unmet. Non-fatal ones only
	// produce a warning.
	Fatal bool
}

// AppliesWhen reports whether the requirement is live given which edge
// classes are live. A requirement tagged only "build" is ignored when
// pouring a bottle, mirroring dependency pruning.
func (r Requirement) AppliesWhen(live func(DependencyTag) bool) bool {
	if len(r.Tags) == 0 {
		return true
	}
	for _, t := range r.Tags {
		if live(t) {
			return true
		}
	}
	return false
}

// Satisfied evaluates the requirement against a platform. findTool is
// consulted only for ReqTool; a nil lookup treats every tool as missing.
// The string describes what was unmet and is empty when ok.
func (r Requirement) Satisfied(p Platform, findTool func(string) bool) (bool, string) {
	switch r.Kind {
	case ReqOS:
		if p.OS != r.OS {
			return false, fmt.Sprintf("requires %s, host is %s", r.OS, p.OS)
		}
	case ReqOSVersion:
		if r.OS != "" && p.OS != r.OS {
			return true, ""
		}
		if pkgversion.CompareStrings(p.OSVersion, r.MinVersion) < 0 {
			return false, fmt.Sprintf("requires %s >= %s, host has %s", p.OS, r.MinVersion, p.OSVersion)
		}
	case ReqArch:
		if p.Arch != r.Arch {
			return false, fmt.Sprintf("requires %s, host is %s", r.Arch, p.Arch)
		}
	case ReqTool:
		if findTool == nil || !findTool(r.Tool) {
			return false, fmt.Sprintf("requires %s in PATH", r.Tool)
		}
	default:
		return false, fmt.Sprintf("unknown requirement kind %q", r.Kind)
	}
	return true, ""
}

// String renders the requirement for diagnostics.
func (r Requirement) String() string {
	switch r.Kind {
	case ReqOS:
		return "os " + r.OS
	case ReqOSVersion:
		os := r.OS
		if os == "" {
			os = "os"
		}
		return fmt.Sprintf("%s >= %s", os, r.MinVersion)
	case ReqArch:
		return "arch " + r.Arch
	case ReqTool:
		return "tool " + r.Tool
	}
	return string(r.Kind)
}
