package store

import "time"

// KegRecord is one installed keg as the index sees it.
type KegRecord struct {
	Name             string
	Version          string
	Revision         int
	Variant          string // "stable" or "head"
	Tap              string
	KegOnly          bool
	Linked           bool
	Requested        bool // named on a command line, not pulled in as a dependency
	PouredFromBottle bool
	Options          []string
	InstalledAt      time.Time
}

// DependencyRecord is one runtime edge of an installed keg.
type DependencyRecord struct {
	Package   string
	DependsOn string
	Tag       string
}

// Install event actions.
const (
	EventInstall   = "install"
	EventUpgrade   = "upgrade"
	EventReinstall = "reinstall"
	EventRemove    = "remove"
	EventFailed    = "failed"
)

// InstallEvent records one attempted state change of the cellar.
type InstallEvent struct {
	ID        int64
	Package   string
	Version   string
	Action    string
	Detail    string
	Timestamp time.Time
}
