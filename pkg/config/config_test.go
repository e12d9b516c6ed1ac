package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const validManifest = `
base_image = "ubuntu:24.04"
shared = ["sqlite"]

[registry]
repo = "docker.io/riju"
bucket = "riju-artifacts"

[deploy]
target = "prod"
`

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ManifestFileName)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeManifest(t, validManifest))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Registry.Repo != "docker.io/riju" {
		t.Errorf("Registry.Repo = %q", cfg.Registry.Repo)
	}
	if cfg.Registry.Bucket != "riju-artifacts" {
		t.Errorf("Registry.Bucket = %q", cfg.Registry.Bucket)
	}
	if cfg.Deploy.Target != "prod" {
		t.Errorf("Deploy.Target = %q", cfg.Deploy.Target)
	}
	if cfg.Paths.Docker != "docker" || cfg.Paths.Langs != "langs" || cfg.Paths.Scripts != "scripts" {
		t.Errorf("path defaults not applied: %+v", cfg.Paths)
	}
	if len(cfg.Shared) != 1 || cfg.Shared[0] != "sqlite" {
		t.Errorf("Shared = %v", cfg.Shared)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("RIJU_REGISTRY_BUCKET", "riju-staging")
	t.Setenv("RIJU_DEPLOY_TARGET", "staging")

	cfg, err := Load(writeManifest(t, validManifest))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Registry.Bucket != "riju-staging" {
		t.Errorf("Registry.Bucket = %q, want env override", cfg.Registry.Bucket)
	}
	if cfg.Deploy.Target != "staging" {
		t.Errorf("Deploy.Target = %q, want env override", cfg.Deploy.Target)
	}
	// Untouched values still come from the file.
	if cfg.Registry.Repo != "docker.io/riju" {
		t.Errorf("Registry.Repo = %q", cfg.Registry.Repo)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := map[string]struct {
		manifest    string
		wantMissing string
	}{
		"missing repo": {
			manifest: `
base_image = "ubuntu:24.04"
[registry]
bucket = "b"
[deploy]
target = "prod"
`,
			wantMissing: "registry.repo",
		},
		"missing bucket": {
			manifest: `
base_image = "ubuntu:24.04"
[registry]
repo = "r"
[deploy]
target = "prod"
`,
			wantMissing: "registry.bucket",
		},
		"missing base image": {
			manifest: `
[registry]
repo = "r"
bucket = "b"
[deploy]
target = "prod"
`,
			wantMissing: "base_image",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeManifest(t, tc.manifest))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.wantMissing) {
				t.Errorf("error %q does not name %q", err, tc.wantMissing)
			}
		})
	}
}

func TestLoadMissingManifest(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), ManifestFileName))
	if err == nil {
		t.Fatal("expected error for missing manifest")
	}
}

func TestLoadLanguages(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	write("python.yaml", `
id: python
name: Python
install:
  apt: [python3, python3-pip]
test:
  main: main.py
  run: python3 main.py
`)
	write("go.yaml", `
id: go
name: Go
install:
  apt: [golang]
`)
	write("notes.txt", "not a manifest")

	langs, err := LoadLanguages(dir)
	if err != nil {
		t.Fatalf("LoadLanguages: %v", err)
	}

	if len(langs) != 2 {
		t.Fatalf("got %d languages, want 2", len(langs))
	}
	// Sorted by id.
	if langs[0].ID != "go" || langs[1].ID != "python" {
		t.Errorf("order = %s, %s", langs[0].ID, langs[1].ID)
	}
	if langs[1].Test.Run != "python3 main.py" {
		t.Errorf("python test recipe = %+v", langs[1].Test)
	}
}

func TestLoadLanguagesIDMismatch(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "python.yaml"), []byte("id: ruby\nname: Ruby\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadLanguages(dir); err == nil {
		t.Fatal("expected error for id/filename mismatch")
	}
}
