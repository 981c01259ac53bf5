package audit

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/blackwell-systems/tapline/internal/store"
)

func testStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	if err := st.CreateSchema(); err != nil {
		t.Fatalf("CreateSchema() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func addKeg(t *testing.T, st *store.Store, name string, requested bool, deps ...string) {
	t.Helper()
	err := st.UpsertKeg(&store.KegRecord{
		Name:        name,
		Version:     "1.0",
		Variant:     "stable",
		Requested:   requested,
		InstalledAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("UpsertKeg(%s) error = %v", name, err)
	}
	records := make([]store.DependencyRecord, 0, len(deps))
	for _, d := range deps {
		records = append(records, store.DependencyRecord{Package: name, DependsOn: d, Tag: "required"})
	}
	if err := st.ReplaceDependencies(name, records); err != nil {
		t.Fatalf("ReplaceDependencies(%s) error = %v", name, err)
	}
}

func TestOrphans(t *testing.T) {
	st := testStore(t)
	addKeg(t, st, "libunistring", false)
	addKeg(t, st, "libidn2", false, "libunistring")
	addKeg(t, st, "stray", false)
	addKeg(t, st, "wget", true, "libidn2")

	got, err := New(st).Orphans()
	if err != nil {
		t.Fatalf("Orphans() error = %v", err)
	}
	if want := []string{"stray"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Orphans() = %v, want %v", got, want)
	}
}

func TestOrphansCascade(t *testing.T) {
	st := testStore(t)
	// Nothing requested: the whole chain is removable.
	addKeg(t, st, "libunistring", false)
	addKeg(t, st, "libidn2", false, "libunistring")
	addKeg(t, st, "wget", false, "libidn2")

	got, err := New(st).Orphans()
	if err != nil {
		t.Fatalf("Orphans() error = %v", err)
	}
	if want := []string{"libidn2", "libunistring", "wget"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Orphans() = %v, want %v", got, want)
	}
}

func TestOrphansKeepsNeededDependencies(t *testing.T) {
	st := testStore(t)
	addKeg(t, st, "openssl@3", false)
	addKeg(t, st, "curl", true, "openssl@3")
	addKeg(t, st, "wget", true, "openssl@3")

	got, err := New(st).Orphans()
	if err != nil {
		t.Fatalf("Orphans() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Orphans() = %v, want none", got)
	}
}

func TestLeaves(t *testing.T) {
	st := testStore(t)
	addKeg(t, st, "libunistring", false)
	addKeg(t, st, "libidn2", false, "libunistring")
	addKeg(t, st, "wget", true, "libidn2")
	addKeg(t, st, "htop", true)

	got, err := New(st).Leaves()
	if err != nil {
		t.Fatalf("Leaves() error = %v", err)
	}
	if want := []string{"htop", "wget"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Leaves() = %v, want %v", got, want)
	}
}

func TestValidateRemoval(t *testing.T) {
	st := testStore(t)
	addKeg(t, st, "libidn2", false)
	addKeg(t, st, "wget", true, "libidn2")

	a := New(st)

	tests := []struct {
		name     string
		remove   []string
		warnings int
		contains string
	}{
		{"dependency alone", []string{"libidn2"}, 1, "required by wget"},
		{"dependency with dependent", []string{"wget", "libidn2"}, 0, ""},
		{"leaf alone", []string{"wget"}, 0, ""},
		{"not installed", []string{"ghost"}, 1, "not installed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := a.ValidateRemoval(tt.remove)
			if err != nil {
				t.Fatalf("ValidateRemoval() error = %v", err)
			}
			if len(got) != tt.warnings {
				t.Fatalf("warnings = %v, want %d", got, tt.warnings)
			}
			if tt.contains != "" && !strings.Contains(strings.Join(got, "\n"), tt.contains) {
				t.Errorf("warnings %v missing %q", got, tt.contains)
			}
		})
	}
}
