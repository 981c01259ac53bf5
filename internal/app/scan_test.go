package app

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/blackwell-systems/tapline/internal/cellar"
	"github.com/blackwell-systems/tapline/internal/formula"
)

func TestScanCommandMetadata(t *testing.T) {
	if scanCmd.Use != "scan" {
		t.Errorf("Use = %q", scanCmd.Use)
	}
}

// layKeg writes a keg directory and receipt straight to disk without
// touching the index, the way a restored backup would arrive.
func layKeg(t *testing.T, c *cellar.Cellar, name, version string) string {
	t.Helper()
	path := c.KegPath(name, version)
	if err := os.MkdirAll(filepath.Join(path, "bin"), 0o755); err != nil {
		t.Fatal(err)
	}
	k := &cellar.Keg{
		Name:        name,
		Version:     version,
		Variant:     formula.SpecStable,
		Tap:         "core",
		Requested:   true,
		InstalledAt: time.Now().UTC().Truncate(time.Second),
		Path:        path,
	}
	r := cellar.NewReceipt(k, "core/"+name, nil, cellar.ReceiptSource{Strategy: "bottle"})
	if err := cellar.WriteReceipt(path, r); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunScanIndexesReceipts(t *testing.T) {
	cfg := setupApp(t)

	c, err := openCellar(cfg)
	if err != nil {
		t.Fatal(err)
	}
	layKeg(t, c, "wget", "1.24.5")
	layKeg(t, c, "jq", "1.7.1")
	c.Close()

	out := captureStdout(t, func() {
		if err := runScan(scanCmd, nil); err != nil {
			t.Fatalf("runScan: %v", err)
		}
	})
	if !strings.Contains(out, "✓ 2 kegs indexed") {
		t.Errorf("output = %q", out)
	}

	c, err = openCellar(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	k, err := c.Keg("wget")
	if err != nil {
		t.Fatalf("Keg(wget) after scan: %v", err)
	}
	if k.Version != "1.24.5" || !k.Requested {
		t.Errorf("keg = %+v, want the receipt's metadata", k)
	}
}

func TestRunScanSkipsBareDirectories(t *testing.T) {
	cfg := setupApp(t)

	c, err := openCellar(cfg)
	if err != nil {
		t.Fatal(err)
	}
	layKeg(t, c, "jq", "1.7.1")
	// A keg directory with no receipt inside.
	if err := os.MkdirAll(filepath.Join(c.CellarDir(), "mystery", "0.1"), 0o755); err != nil {
		t.Fatal(err)
	}
	c.Close()

	out := captureStdout(t, func() {
		if err := runScan(scanCmd, nil); err != nil {
			t.Fatalf("runScan: %v", err)
		}
	})
	if !strings.Contains(out, "✓ 1 kegs indexed") {
		t.Errorf("output = %q", out)
	}

	c, err = openCellar(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if _, err := c.Keg("mystery"); err == nil {
		t.Error("receipt-less directory ended up in the index")
	}
}

func TestRunScanReplacesStaleIndex(t *testing.T) {
	cfg := setupApp(t)

	c, err := openCellar(cfg)
	if err != nil {
		t.Fatal(err)
	}
	// Index an entry whose directory then disappears.
	k := seedKeg(t, c, "zstd", "1.5.6", false, nil)
	if err := os.RemoveAll(filepath.Dir(k.Path)); err != nil {
		t.Fatal(err)
	}
	layKeg(t, c, "jq", "1.7.1")
	c.Close()

	captureStdout(t, func() {
		if err := runScan(scanCmd, nil); err != nil {
			t.Fatalf("runScan: %v", err)
		}
	})

	c, err = openCellar(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if _, err := c.Keg("zstd"); err == nil {
		t.Error("vanished keg survived the rescan")
	}
	if _, err := c.Keg("jq"); err != nil {
		t.Errorf("Keg(jq) after rescan: %v", err)
	}
}
