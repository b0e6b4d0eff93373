package build

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/mirageui/mirage/internal/config"
)

func projectConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := config.New()
	cfg.Units = filepath.Join(root, "units")
	cfg.Artifacts.Output = filepath.Join(root, "dist")
	if err := os.MkdirAll(cfg.Units, 0o755); err != nil {
		t.Fatal(err)
	}
	return cfg
}

func writeUnit(t *testing.T, cfg *config.Config, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(cfg.Units, name+".ui.hcl"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRunBuildsProject(t *testing.T) {
	cfg := projectConfig(t)
	writeUnit(t, cfg, "cart", `
unit "cart" {
  state "count" {
    default = 0
  }
  derived "double" {
    expr       = "@count * 2"
    optimistic = true
  }
  action "addItem" {
    delta {
      field = "count"
      by    = 1
    }
  }
}
`)

	res, err := New(cfg, Options{}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Units) != 1 {
		t.Fatalf("len(Units) = %d, want 1", len(res.Units))
	}
	u := res.Units[0]
	if u.Err != nil {
		t.Fatalf("unit error: %v", u.Err)
	}
	if u.Module == nil || u.Artifact == "" {
		t.Fatalf("unit result = %+v, want generated module", u)
	}
	if u.Skipped {
		t.Error("first build reported Skipped")
	}
	if _, err := os.Stat(filepath.Join(cfg.OutputPath(), filepath.FromSlash(u.Artifact))); err != nil {
		t.Errorf("artifact missing on disk: %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.OutputPath(), "manifest.json")); err != nil {
		t.Errorf("manifest missing: %v", err)
	}
}

func TestRunSecondBuildSkips(t *testing.T) {
	cfg := projectConfig(t)
	writeUnit(t, cfg, "cart", `
unit "cart" {
  state "count" {
    default = 0
  }
  derived "double" {
    expr       = "@count * 2"
    optimistic = true
  }
}
`)

	b := New(cfg, Options{})
	if _, err := b.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	res, err := b.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !res.Units[0].Skipped {
		t.Error("unchanged rebuild not skipped")
	}
}

func TestRunIsolatesFailingUnit(t *testing.T) {
	cfg := projectConfig(t)
	writeUnit(t, cfg, "good", `
unit "good" {
  state "x" {
    default = 0
  }
  derived "y" {
    expr       = "@x + 1"
    optimistic = true
  }
}
`)
	writeUnit(t, cfg, "cyclic", `
unit "cyclic" {
  derived "a" {
    expr = "@b + 1"
  }
  derived "b" {
    expr = "@a + 1"
  }
}
`)

	res, err := New(cfg, Options{}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Units) != 2 {
		t.Fatalf("len(Units) = %d, want 2", len(res.Units))
	}
	failed := res.Failed()
	if len(failed) != 1 || failed[0].Unit.Name != "cyclic" {
		t.Fatalf("Failed() = %v, want just the cyclic unit", failed)
	}
	for _, u := range res.Units {
		if u.Unit.Name == "good" && (u.Err != nil || u.Module == nil) {
			t.Errorf("good unit did not build: %+v", u)
		}
	}
}

func TestRunServerOnlyUnit(t *testing.T) {
	cfg := projectConfig(t)
	writeUnit(t, cfg, "plain", `
unit "plain" {
  state "x" {
    default = 0
  }
  action "load" {
    remote = true
    set {
      field = "x"
    }
  }
}
`)

	res, err := New(cfg, Options{}).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	u := res.Units[0]
	if u.Err != nil {
		t.Fatalf("unit error: %v", u.Err)
	}
	if u.Module != nil || u.Artifact != "" {
		t.Errorf("server-only unit produced a module: %+v", u)
	}
	if u.Graph == nil {
		t.Error("server-only unit has no graph")
	}
}

func TestRunSharedFragments(t *testing.T) {
	// A fragment declared in one unit is importable from another.
	cfg := projectConfig(t)
	writeUnit(t, cfg, "lib", `
unit "lib" {
  func "double" {
    params = ["n"]
    expr   = "n * 2"
  }
}
`)
	writeUnit(t, cfg, "cart", `
unit "cart" {
  state "count" {
    default = 0
  }
  derived "d" {
    expr       = "double(@count)"
    optimistic = true
  }
}
`)

	res, err := New(cfg, Options{}).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	for _, u := range res.Units {
		if u.Err != nil {
			t.Fatalf("%s: %v", u.Unit.Name, u.Err)
		}
	}
}
