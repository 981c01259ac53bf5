package app

import (
	"strings"
	"testing"
)

func resetDepsFlags(t *testing.T) {
	t.Helper()
	saved := []bool{depsFlagTree, depsFlagAnnotate, depsFlagIncludeBuild,
		depsFlagIncludeTest, depsFlagIncludeOptional, depsFlagSkipRecommended}
	depsFlagTree = false
	depsFlagAnnotate = false
	depsFlagIncludeBuild = false
	depsFlagIncludeTest = false
	depsFlagIncludeOptional = false
	depsFlagSkipRecommended = false
	t.Cleanup(func() {
		depsFlagTree = saved[0]
		depsFlagAnnotate = saved[1]
		depsFlagIncludeBuild = saved[2]
		depsFlagIncludeTest = saved[3]
		depsFlagIncludeOptional = saved[4]
		depsFlagSkipRecommended = saved[5]
	})
}

func TestDepsCommandMetadata(t *testing.T) {
	if depsCmd.Use != "deps <package>..." {
		t.Errorf("Use = %q", depsCmd.Use)
	}
	for _, name := range []string{"tree", "annotate", "include-build", "include-test", "include-optional", "skip-recommended"} {
		if depsCmd.Flags().Lookup(name) == nil {
			t.Errorf("flag --%s not registered", name)
		}
	}
}

func TestRunDepsFlatClosureSorted(t *testing.T) {
	setupApp(t)
	resetDepsFlags(t)

	out := captureStdout(t, func() {
		if err := runDeps(depsCmd, []string{"wget"}); err != nil {
			t.Fatalf("runDeps: %v", err)
		}
	})

	want := "libidn2\nlibunistring\nopenssl\n"
	if out != want {
		t.Errorf("output = %q, want %q", out, want)
	}
}

func TestRunDepsUnionAcrossRoots(t *testing.T) {
	setupApp(t)
	resetDepsFlags(t)

	out := captureStdout(t, func() {
		if err := runDeps(depsCmd, []string{"wget", "curl"}); err != nil {
			t.Fatalf("runDeps: %v", err)
		}
	})

	// curl contributes brotli (recommended) and openssl; zstd stays out
	// because it is optional and nobody asked for it.
	want := "brotli\nlibidn2\nlibunistring\nopenssl\n"
	if out != want {
		t.Errorf("output = %q, want %q", out, want)
	}
}

func TestRunDepsTree(t *testing.T) {
	setupApp(t)
	resetDepsFlags(t)
	depsFlagTree = true

	out := captureStdout(t, func() {
		if err := runDeps(depsCmd, []string{"wget"}); err != nil {
			t.Fatalf("runDeps: %v", err)
		}
	})

	want := "wget\n" +
		"├── libidn2\n" +
		"│   └── libunistring\n" +
		"└── openssl\n"
	if out != want {
		t.Errorf("tree = %q, want %q", out, want)
	}
}

func TestRunDepsAnnotateMarksSoftEdges(t *testing.T) {
	setupApp(t)
	resetDepsFlags(t)
	depsFlagAnnotate = true

	out := captureStdout(t, func() {
		if err := runDeps(depsCmd, []string{"curl"}); err != nil {
			t.Fatalf("runDeps: %v", err)
		}
	})

	want := "brotli [recommended]\nopenssl\n"
	if out != want {
		t.Errorf("output = %q, want %q", out, want)
	}
}

func TestRunDepsSkipRecommended(t *testing.T) {
	setupApp(t)
	resetDepsFlags(t)
	depsFlagSkipRecommended = true

	out := captureStdout(t, func() {
		if err := runDeps(depsCmd, []string{"curl"}); err != nil {
			t.Fatalf("runDeps: %v", err)
		}
	})

	if out != "openssl\n" {
		t.Errorf("output = %q, want openssl only", out)
	}
}

func TestRunDepsIncludeOptional(t *testing.T) {
	setupApp(t)
	resetDepsFlags(t)
	depsFlagIncludeOptional = true

	out := captureStdout(t, func() {
		if err := runDeps(depsCmd, []string{"curl"}); err != nil {
			t.Fatalf("runDeps: %v", err)
		}
	})

	want := "brotli\nopenssl\nzstd\n"
	if out != want {
		t.Errorf("output = %q, want %q", out, want)
	}
}

func TestRunDepsUnknownPackage(t *testing.T) {
	setupApp(t)
	resetDepsFlags(t)

	err := runDeps(depsCmd, []string{"no-such-package"})
	if err == nil {
		t.Fatal("expected an error for an unknown package")
	}
	if !strings.Contains(err.Error(), "no-such-package") {
		t.Errorf("error = %v, want the package name in it", err)
	}
}

func TestRunDepsTreeMarksCycles(t *testing.T) {
	const cyclic = `[
  {
    "name": "alpha", "tap": "core", "version": "1.0.0",
    "dependencies": [{"name": "beta", "tag": "required"}],
    "source": {"url": "https://example.com/alpha-1.0.0.tar.gz", "sha256": "1111111111111111111111111111111111111111111111111111111111111111"}
  },
  {
    "name": "beta", "tap": "core", "version": "1.0.0",
    "dependencies": [{"name": "alpha", "tag": "required"}],
    "source": {"url": "https://example.com/beta-1.0.0.tar.gz", "sha256": "2222222222222222222222222222222222222222222222222222222222222222"}
  }
]`
	setupAppWithCatalog(t, cyclic)
	resetDepsFlags(t)
	depsFlagTree = true

	out := captureStdout(t, func() {
		if err := runDeps(depsCmd, []string{"alpha"}); err != nil {
			t.Fatalf("runDeps: %v", err)
		}
	})

	want := "alpha\n" +
		"└── beta\n" +
		"    └── alpha (cycle)\n"
	if out != want {
		t.Errorf("tree = %q, want %q", out, want)
	}
}
