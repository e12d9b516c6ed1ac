package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"sigs.k8s.io/yaml"
)

// Language is one per-language manifest from langs/<id>.yaml. The manifest
// file is a declared input of the language's package, image, and test
// artifacts: editing it changes their desired hashes.
type Language struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	Install InstallRecipe `json:"install,omitempty"`
	Test    TestRecipe    `json:"test,omitempty"`
}

// InstallRecipe declares how the language's package is assembled.
type InstallRecipe struct {
	Apt    []string `json:"apt,omitempty"`
	Pip    []string `json:"pip,omitempty"`
	Npm    []string `json:"npm,omitempty"`
	Manual string   `json:"manual,omitempty"`
}

// TestRecipe declares the hello-world program used to verify the
// language image.
type TestRecipe struct {
	Main   string `json:"main,omitempty"`
	Run    string `json:"run,omitempty"`
	Input  string `json:"input,omitempty"`
	Output string `json:"output,omitempty"`
}

// LoadLanguages reads every *.yaml manifest under dir, sorted by language
// id for deterministic graph assembly. A manifest whose id does not match
// its filename is a configuration error.
func LoadLanguages(dir string) ([]Language, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading language manifests in %s: %w", dir, err)
	}

	var langs []Language
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}

		var lang Language
		if err := yaml.Unmarshal(data, &lang); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}

		want := strings.TrimSuffix(entry.Name(), ".yaml")
		if lang.ID != want {
			return nil, fmt.Errorf("language manifest %s declares id %q, want %q", path, lang.ID, want)
		}

		langs = append(langs, lang)
	}

	sort.Slice(langs, func(i, j int) bool { return langs[i].ID < langs[j].ID })
	return langs, nil
}
