package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/blackwell-systems/tapline/internal/cellar"
	"github.com/blackwell-systems/tapline/internal/linker"
	"github.com/blackwell-systems/tapline/internal/store"
)

func resetUninstallFlags(t *testing.T) {
	t.Helper()
	savedForce, savedDry, savedYes := uninstallFlagForce, uninstallFlagDryRun, uninstallFlagYes
	uninstallFlagForce = false
	uninstallFlagDryRun = false
	uninstallFlagYes = false
	t.Cleanup(func() {
		uninstallFlagForce, uninstallFlagDryRun, uninstallFlagYes = savedForce, savedDry, savedYes
	})
}

func TestUninstallCommandMetadata(t *testing.T) {
	if uninstallCmd.Use != "uninstall <package>..." {
		t.Errorf("Use = %q", uninstallCmd.Use)
	}
	if len(uninstallCmd.Aliases) != 2 || uninstallCmd.Aliases[0] != "remove" || uninstallCmd.Aliases[1] != "rm" {
		t.Errorf("Aliases = %v", uninstallCmd.Aliases)
	}
	for _, name := range []string{"force", "dry-run", "yes"} {
		if uninstallCmd.Flags().Lookup(name) == nil {
			t.Errorf("flag --%s not registered", name)
		}
	}
}

func TestRunUninstallNotInstalled(t *testing.T) {
	setupApp(t)
	resetUninstallFlags(t)

	err := runUninstall(uninstallCmd, []string{"wget"})
	if err == nil || err.Error() != "wget is not installed" {
		t.Errorf("error = %v, want not-installed", err)
	}
}

func TestRunUninstallRefusesWithDependents(t *testing.T) {
	cfg := setupApp(t)
	resetUninstallFlags(t)

	c, err := openCellar(cfg)
	if err != nil {
		t.Fatal(err)
	}
	seedKeg(t, c, "libidn2", "2.3.7", false, nil)
	seedKeg(t, c, "wget", "1.24.5", true, []cellar.ReceiptDependency{
		{Name: "libidn2", Version: "2.3.7", Tag: "required"},
	})
	c.Close()

	err = runUninstall(uninstallCmd, []string{"libidn2"})
	if err == nil || !strings.Contains(err.Error(), "--force") {
		t.Fatalf("error = %v, want a refusal pointing at --force", err)
	}

	// --force overrides the refusal.
	uninstallFlagForce = true
	uninstallFlagYes = true
	captureStdout(t, func() {
		if err := runUninstall(uninstallCmd, []string{"libidn2"}); err != nil {
			t.Fatalf("forced uninstall: %v", err)
		}
	})

	c, err = openCellar(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if _, err := c.Keg("libidn2"); !errors.Is(err, store.ErrNotExist) {
		t.Errorf("Keg(libidn2) error = %v, want ErrNotExist", err)
	}
}

func TestRunUninstallDryRun(t *testing.T) {
	cfg := setupApp(t)
	resetUninstallFlags(t)
	uninstallFlagDryRun = true

	c, err := openCellar(cfg)
	if err != nil {
		t.Fatal(err)
	}
	k := seedKeg(t, c, "jq", "1.7.1", true, nil)
	c.Close()

	out := captureStdout(t, func() {
		if err := runUninstall(uninstallCmd, []string{"jq"}); err != nil {
			t.Fatalf("runUninstall: %v", err)
		}
	})

	if !strings.Contains(out, "Will remove 1 kegs:") || !strings.Contains(out, "jq 1.7.1") {
		t.Errorf("output missing removal listing:\n%s", out)
	}
	if !strings.Contains(out, "Dry-run mode") {
		t.Errorf("output missing dry-run notice:\n%s", out)
	}
	if _, err := os.Stat(k.Path); err != nil {
		t.Errorf("keg directory touched during dry-run: %v", err)
	}
}

func TestRunUninstallDeclined(t *testing.T) {
	cfg := setupApp(t)
	resetUninstallFlags(t)

	c, err := openCellar(cfg)
	if err != nil {
		t.Fatal(err)
	}
	k := seedKeg(t, c, "jq", "1.7.1", true, nil)
	c.Close()

	feedStdin(t, "n\n")
	out := captureStdout(t, func() {
		if err := runUninstall(uninstallCmd, []string{"jq"}); err != nil {
			t.Fatalf("runUninstall: %v", err)
		}
	})

	if !strings.Contains(out, "Uninstall cancelled.") {
		t.Errorf("output missing cancellation:\n%s", out)
	}
	if _, err := os.Stat(k.Path); err != nil {
		t.Errorf("keg removed despite declining: %v", err)
	}
}

func TestRemoveKegDeletesAndRecordsEvent(t *testing.T) {
	cfg := setupApp(t)

	c, err := openCellar(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	k := seedKeg(t, c, "jq", "1.7.1", true, nil)

	removed, err := removeKegs(context.Background(), c, []string{"jq"})
	if err != nil {
		t.Fatalf("removeKegs: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if _, err := os.Stat(filepath.Dir(k.Path)); !os.IsNotExist(err) {
		t.Errorf("package directory still present: %v", err)
	}
	if _, err := c.Keg("jq"); !errors.Is(err, store.ErrNotExist) {
		t.Errorf("Keg(jq) error = %v, want ErrNotExist", err)
	}

	events, err := c.Store().ListInstallEvents("jq", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Action != store.EventRemove || events[0].Version != "1.7.1" {
		t.Errorf("events = %+v, want one remove of 1.7.1", events)
	}
}

func TestRemoveKegUnlinksLinkedKeg(t *testing.T) {
	cfg := setupApp(t)

	c, err := openCellar(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	k := seedKeg(t, c, "zstd", "1.5.6", true, nil)
	if _, err := linker.Link(k.Path, c.PrefixDir()); err != nil {
		t.Fatalf("Link: %v", err)
	}
	if err := c.SetLinked("zstd", true); err != nil {
		t.Fatal(err)
	}

	if _, err := removeKegs(context.Background(), c, []string{"zstd"}); err != nil {
		t.Fatalf("removeKegs: %v", err)
	}

	if _, err := os.Lstat(filepath.Join(c.PrefixDir(), "bin", "zstd")); !os.IsNotExist(err) {
		t.Errorf("prefix symlink survived removal: %v", err)
	}
}
