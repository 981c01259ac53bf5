package store

import (
	"errors"
	"testing"
	"time"
)

// Helper function to create an in-memory store for testing
func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	if err := store.CreateSchema(); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}
	return store
}

func testKeg(name, version string) *KegRecord {
	return &KegRecord{
		Name:        name,
		Version:     version,
		Variant:     "stable",
		Tap:         "core",
		Options:     []string{},
		InstalledAt: time.Now().UTC().Truncate(time.Second),
	}
}

func TestNew(t *testing.T) {
	store, err := New(":memory:")
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer store.Close()

	if store.db == nil {
		t.Error("Store.db should not be nil")
	}
}

func TestCreateSchema(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	tables := []string{"kegs", "keg_dependencies", "install_events"}
	for _, table := range tables {
		var name string
		err := store.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("Table %s not found: %v", table, err)
		}
	}

	indexes := []string{"idx_keg_deps_package", "idx_keg_deps_depends", "idx_events_package", "idx_events_timestamp"}
	for _, index := range indexes {
		var name string
		err := store.db.QueryRow("SELECT name FROM sqlite_master WHERE type='index' AND name=?", index).Scan(&name)
		if err != nil {
			t.Errorf("Index %s not found: %v", index, err)
		}
	}
}

func TestUpsertAndGetKeg(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	now := time.Now().UTC().Truncate(time.Second)
	keg := &KegRecord{
		Name:             "openssl@3",
		Version:          "3.3.1",
		Revision:         1,
		Variant:          "stable",
		Tap:              "core",
		KegOnly:          true,
		Linked:           false,
		Requested:        true,
		PouredFromBottle: true,
		Options:          []string{"with-curl"},
		InstalledAt:      now,
	}

	if err := store.UpsertKeg(keg); err != nil {
		t.Fatalf("UpsertKeg() failed: %v", err)
	}

	retrieved, err := store.GetKeg("openssl@3")
	if err != nil {
		t.Fatalf("GetKeg() failed: %v", err)
	}

	if retrieved.Name != keg.Name {
		t.Errorf("Name = %s, want %s", retrieved.Name, keg.Name)
	}
	if retrieved.Version != keg.Version {
		t.Errorf("Version = %s, want %s", retrieved.Version, keg.Version)
	}
	if retrieved.Revision != keg.Revision {
		t.Errorf("Revision = %d, want %d", retrieved.Revision, keg.Revision)
	}
	if retrieved.Variant != keg.Variant {
		t.Errorf("Variant = %s, want %s", retrieved.Variant, keg.Variant)
	}
	if retrieved.KegOnly != keg.KegOnly {
		t.Errorf("KegOnly = %v, want %v", retrieved.KegOnly, keg.KegOnly)
	}
	if retrieved.Requested != keg.Requested {
		t.Errorf("Requested = %v, want %v", retrieved.Requested, keg.Requested)
	}
	if retrieved.PouredFromBottle != keg.PouredFromBottle {
		t.Errorf("PouredFromBottle = %v, want %v", retrieved.PouredFromBottle, keg.PouredFromBottle)
	}
	if !retrieved.InstalledAt.Equal(keg.InstalledAt) {
		t.Errorf("InstalledAt = %v, want %v", retrieved.InstalledAt, keg.InstalledAt)
	}
	if len(retrieved.Options) != 1 || retrieved.Options[0] != "with-curl" {
		t.Errorf("Options = %v, want [with-curl]", retrieved.Options)
	}
}

func TestUpsertKegReplaces(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	if err := store.UpsertKeg(testKeg("python", "3.11.0")); err != nil {
		t.Fatalf("UpsertKeg() failed: %v", err)
	}
	if err := store.UpsertKeg(testKeg("python", "3.12.0")); err != nil {
		t.Fatalf("UpsertKeg() (update) failed: %v", err)
	}

	retrieved, err := store.GetKeg("python")
	if err != nil {
		t.Fatalf("GetKeg() failed: %v", err)
	}
	if retrieved.Version != "3.12.0" {
		t.Errorf("Version = %s, want 3.12.0", retrieved.Version)
	}
}

func TestGetKegNotFound(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	_, err := store.GetKeg("nonexistent")
	if !errors.Is(err, ErrNotExist) {
		t.Errorf("GetKeg() error = %v, want errors.Is(err, ErrNotExist)", err)
	}
}

func TestListKegsSorted(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	for _, name := range []string{"node", "git", "zlib"} {
		if err := store.UpsertKeg(testKeg(name, "1.0.0")); err != nil {
			t.Fatalf("UpsertKeg() failed for %s: %v", name, err)
		}
	}

	kegs, err := store.ListKegs()
	if err != nil {
		t.Fatalf("ListKegs() failed: %v", err)
	}
	expectedOrder := []string{"git", "node", "zlib"}
	if len(kegs) != len(expectedOrder) {
		t.Fatalf("ListKegs() returned %d kegs, want %d", len(kegs), len(expectedOrder))
	}
	for i, keg := range kegs {
		if keg.Name != expectedOrder[i] {
			t.Errorf("Keg[%d].Name = %s, want %s", i, keg.Name, expectedOrder[i])
		}
	}
}

func TestDeleteKeg(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	if err := store.UpsertKeg(testKeg("htop", "3.2.2")); err != nil {
		t.Fatalf("UpsertKeg() failed: %v", err)
	}
	if err := store.DeleteKeg("htop"); err != nil {
		t.Fatalf("DeleteKeg() failed: %v", err)
	}
	if _, err := store.GetKeg("htop"); !errors.Is(err, ErrNotExist) {
		t.Errorf("GetKeg() after delete error = %v, want ErrNotExist", err)
	}
	if err := store.DeleteKeg("htop"); !errors.Is(err, ErrNotExist) {
		t.Errorf("DeleteKeg() second call error = %v, want ErrNotExist", err)
	}
}

func TestSetLinked(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	if err := store.UpsertKeg(testKeg("jq", "1.7.1")); err != nil {
		t.Fatalf("UpsertKeg() failed: %v", err)
	}
	if err := store.SetLinked("jq", true); err != nil {
		t.Fatalf("SetLinked() failed: %v", err)
	}
	keg, err := store.GetKeg("jq")
	if err != nil {
		t.Fatalf("GetKeg() failed: %v", err)
	}
	if !keg.Linked {
		t.Error("Linked = false after SetLinked(true)")
	}
	if err := store.SetLinked("missing", true); !errors.Is(err, ErrNotExist) {
		t.Errorf("SetLinked(missing) error = %v, want ErrNotExist", err)
	}
}

func TestSetRequested(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	if err := store.UpsertKeg(testKeg("libidn2", "2.3.7")); err != nil {
		t.Fatalf("UpsertKeg() failed: %v", err)
	}
	if err := store.SetRequested("libidn2", true); err != nil {
		t.Fatalf("SetRequested() failed: %v", err)
	}
	keg, err := store.GetKeg("libidn2")
	if err != nil {
		t.Fatalf("GetKeg() failed: %v", err)
	}
	if !keg.Requested {
		t.Error("Requested = false after SetRequested(true)")
	}
	if err := store.SetRequested("missing", true); !errors.Is(err, ErrNotExist) {
		t.Errorf("SetRequested(missing) error = %v, want ErrNotExist", err)
	}
}

func TestReplaceAndGetDependencies(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	for _, name := range []string{"wget", "openssl@3", "libidn2"} {
		if err := store.UpsertKeg(testKeg(name, "1.0.0")); err != nil {
			t.Fatalf("UpsertKeg() failed for %s: %v", name, err)
		}
	}

	deps := []DependencyRecord{
		{Package: "wget", DependsOn: "openssl@3", Tag: "required"},
		{Package: "wget", DependsOn: "libidn2", Tag: "recommended"},
	}
	if err := store.ReplaceDependencies("wget", deps); err != nil {
		t.Fatalf("ReplaceDependencies() failed: %v", err)
	}

	retrieved, err := store.GetDependencies("wget")
	if err != nil {
		t.Fatalf("GetDependencies() failed: %v", err)
	}
	if len(retrieved) != 2 {
		t.Fatalf("GetDependencies() returned %d deps, want 2", len(retrieved))
	}
	// Ordered by depends_on.
	if retrieved[0].DependsOn != "libidn2" || retrieved[1].DependsOn != "openssl@3" {
		t.Errorf("dependencies = %+v", retrieved)
	}
	if retrieved[0].Tag != "recommended" {
		t.Errorf("libidn2 tag = %s, want recommended", retrieved[0].Tag)
	}

	// Replacing swaps the whole edge set.
	if err := store.ReplaceDependencies("wget", []DependencyRecord{
		{Package: "wget", DependsOn: "openssl@3", Tag: "required"},
	}); err != nil {
		t.Fatalf("ReplaceDependencies() (second) failed: %v", err)
	}
	retrieved, err = store.GetDependencies("wget")
	if err != nil {
		t.Fatalf("GetDependencies() failed: %v", err)
	}
	if len(retrieved) != 1 || retrieved[0].DependsOn != "openssl@3" {
		t.Errorf("after replace, dependencies = %+v", retrieved)
	}
}

func TestGetDependents(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	for _, name := range []string{"wget", "curl", "openssl@3"} {
		if err := store.UpsertKeg(testKeg(name, "1.0.0")); err != nil {
			t.Fatalf("UpsertKeg() failed for %s: %v", name, err)
		}
	}
	for _, pkg := range []string{"wget", "curl"} {
		if err := store.ReplaceDependencies(pkg, []DependencyRecord{
			{Package: pkg, DependsOn: "openssl@3", Tag: "required"},
		}); err != nil {
			t.Fatalf("ReplaceDependencies() failed: %v", err)
		}
	}

	dependents, err := store.GetDependents("openssl@3")
	if err != nil {
		t.Fatalf("GetDependents() failed: %v", err)
	}
	expected := []string{"curl", "wget"}
	if len(dependents) != len(expected) {
		t.Fatalf("GetDependents() returned %d, want %d", len(dependents), len(expected))
	}
	for i, d := range dependents {
		if d != expected[i] {
			t.Errorf("Dependent[%d] = %s, want %s", i, d, expected[i])
		}
	}
}

func TestDeleteKegCascadesDependencies(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	for _, name := range []string{"app", "lib"} {
		if err := store.UpsertKeg(testKeg(name, "1.0.0")); err != nil {
			t.Fatalf("UpsertKeg() failed: %v", err)
		}
	}
	if err := store.ReplaceDependencies("app", []DependencyRecord{
		{Package: "app", DependsOn: "lib", Tag: "required"},
	}); err != nil {
		t.Fatalf("ReplaceDependencies() failed: %v", err)
	}

	if err := store.DeleteKeg("app"); err != nil {
		t.Fatalf("DeleteKeg() failed: %v", err)
	}
	deps, err := store.GetDependencies("app")
	if err != nil {
		t.Fatalf("GetDependencies() failed: %v", err)
	}
	if len(deps) != 0 {
		t.Errorf("dependencies should cascade with keg, got %d", len(deps))
	}
}

func TestResetKegsKeepsHistory(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	if err := store.UpsertKeg(testKeg("git", "2.46.0")); err != nil {
		t.Fatalf("UpsertKeg() failed: %v", err)
	}
	if err := store.InsertInstallEvent(&InstallEvent{
		Package:   "git",
		Version:   "2.46.0",
		Action:    EventInstall,
		Timestamp: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("InsertInstallEvent() failed: %v", err)
	}

	if err := store.ResetKegs(); err != nil {
		t.Fatalf("ResetKegs() failed: %v", err)
	}

	kegs, err := store.ListKegs()
	if err != nil {
		t.Fatalf("ListKegs() failed: %v", err)
	}
	if len(kegs) != 0 {
		t.Errorf("ListKegs() after reset returned %d kegs, want 0", len(kegs))
	}

	events, err := store.ListInstallEvents("git", 0)
	if err != nil {
		t.Fatalf("ListInstallEvents() failed: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("install history lost on reset: got %d events, want 1", len(events))
	}
}

func TestListInstallEventsOrderAndLimit(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	now := time.Now().UTC().Truncate(time.Second)
	actions := []string{EventInstall, EventUpgrade, EventReinstall}
	for i, action := range actions {
		if err := store.InsertInstallEvent(&InstallEvent{
			Package:   "node",
			Version:   "22.0.0",
			Action:    action,
			Detail:    "run " + action,
			Timestamp: now.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("InsertInstallEvent() failed: %v", err)
		}
	}

	events, err := store.ListInstallEvents("node", 2)
	if err != nil {
		t.Fatalf("ListInstallEvents() failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("ListInstallEvents() returned %d events, want 2", len(events))
	}
	if events[0].Action != EventReinstall || events[1].Action != EventUpgrade {
		t.Errorf("events not newest-first: [%s, %s]", events[0].Action, events[1].Action)
	}
	if events[0].Detail != "run reinstall" {
		t.Errorf("Detail = %q", events[0].Detail)
	}

	all, err := store.ListInstallEvents("", 0)
	if err != nil {
		t.Fatalf("ListInstallEvents(all) failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("ListInstallEvents(all) returned %d events, want 3", len(all))
	}
}

func TestNilOptions(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	keg := testKeg("lib", "1.0.0")
	keg.Options = nil
	if err := store.UpsertKeg(keg); err != nil {
		t.Fatalf("UpsertKeg() failed: %v", err)
	}

	retrieved, err := store.GetKeg("lib")
	if err != nil {
		t.Fatalf("GetKeg() failed: %v", err)
	}
	// JSON unmarshals null as nil, not empty slice.
	if len(retrieved.Options) != 0 {
		t.Errorf("Options length = %d, want 0", len(retrieved.Options))
	}
}
