package artifacts

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/timothygachengo/riju/pkg/config"
	"github.com/timothygachengo/riju/pkg/depgraph"
	"github.com/timothygachengo/riju/pkg/shell"
	"github.com/timothygachengo/riju/pkg/store"
)

// localImagePrefix is the namespace of locally-built images; a Dockerfile
// FROM riju:<tag> line is a dependency on this graph's image:<tag>.
const localImagePrefix = "riju:"

// The system images every project tree must provide under docker/<tag>/.
var systemImages = []string{"packaging", "base", "runtime", "app"}

// langImageDir is the shared recipe tree for all per-language images.
const langImageDir = "lang"

// Deps carries everything graph assembly needs. No field may be nil.
type Deps struct {
	Config *config.Config
	Langs  []config.Language
	Root   string // project root

	Engine ImageEngine
	Remote RemoteStore
	Store  store.Store
	Runner shell.Runner
}

// BuildGraph assembles and validates riju's artifact graph: the external
// base image, the packaging and base infrastructure images, one deb per
// shared dependency, the runtime image, a deb/image/test triple per
// language, the app image, and the deploy trigger.
func BuildGraph(d Deps) (*depgraph.Graph, error) {
	cfg := d.Config
	dockerDir := filepath.Join(d.Root, cfg.Paths.Docker)
	langsDir := filepath.Join(d.Root, cfg.Paths.Langs)
	scriptsDir := filepath.Join(d.Root, cfg.Paths.Scripts)

	baseTag := externalBaseTag(cfg.BaseImage)
	baseName := "image:" + baseTag

	// Tags that a FROM riju:<tag> line may legally reference.
	knownTags := map[string]bool{}
	for _, tag := range systemImages {
		knownTags[tag] = true
	}
	for _, lang := range d.Langs {
		knownTags["lang-"+lang.ID] = true
	}

	imageDeps := func(tag string) ([]string, error) {
		from, err := parseFrom(filepath.Join(dockerDir, tag, "Dockerfile"))
		if err != nil {
			return nil, err
		}
		switch {
		case from == cfg.BaseImage:
			return []string{baseName}, nil
		case strings.HasPrefix(from, localImagePrefix):
			ref := strings.TrimPrefix(from, localImagePrefix)
			if !knownTags[ref] {
				return nil, fmt.Errorf("%w: docker/%s/Dockerfile builds FROM unknown image %q", depgraph.ErrConfig, tag, from)
			}
			return []string{"image:" + ref}, nil
		default:
			return nil, fmt.Errorf("%w: docker/%s/Dockerfile builds FROM %q, outside the project's image namespace", depgraph.ErrConfig, tag, from)
		}
	}

	newImage := func(tag string, deps, extraInputs []string) *imageArtifact {
		return &imageArtifact{
			tag:         tag,
			localTag:    localImagePrefix + tag,
			dir:         filepath.Join(dockerDir, tag),
			extraInputs: extraInputs,
			deps:        deps,
			hashChecked: true,
			repo:        cfg.Registry.Repo,
			engine:      d.Engine,
			remote:      d.Remote,
		}
	}

	var artifacts []depgraph.Artifact

	// The externally-versioned base: present in the graph so FROM
	// references resolve, but never hash-checked or acted on.
	artifacts = append(artifacts, &imageArtifact{
		tag:      baseTag,
		localTag: cfg.BaseImage,
	})

	for _, tag := range []string{"packaging", "base"} {
		deps, err := imageDeps(tag)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, newImage(tag, deps, nil))
	}

	buildScript := filepath.Join(scriptsDir, "build-deb.sh")

	sharedDebNames := make([]string, 0, len(cfg.Shared))
	for _, shared := range cfg.Shared {
		deb := "shared-" + shared
		sharedDebNames = append(sharedDebNames, "deb:"+deb)
		artifacts = append(artifacts, &debArtifact{
			deb:     deb,
			inputs:  []string{buildScript},
			deps:    []string{"image:packaging"},
			store:   d.Store,
			runner:  d.Runner,
			remote:  d.Remote,
			scripts: scriptsDir,
		})
	}

	runtimeDeps, err := imageDeps("runtime")
	if err != nil {
		return nil, err
	}
	artifacts = append(artifacts, newImage("runtime", runtimeDeps, nil))

	var langImageNames, langTestNames []string
	for _, lang := range d.Langs {
		manifest := filepath.Join(langsDir, lang.ID+".yaml")

		debName := "deb:lang-" + lang.ID
		artifacts = append(artifacts, &debArtifact{
			deb:     "lang-" + lang.ID,
			inputs:  []string{manifest, buildScript},
			deps:    []string{"image:packaging"},
			store:   d.Store,
			runner:  d.Runner,
			remote:  d.Remote,
			scripts: scriptsDir,
		})

		// The language image layers its own deb plus every shared deb
		// onto the runtime image; all three feed its desired hash.
		imgDeps := append([]string{debName}, sharedDebNames...)
		imgDeps = append(imgDeps, "image:runtime")
		img := &imageArtifact{
			tag:         "lang-" + lang.ID,
			localTag:    localImagePrefix + "lang-" + lang.ID,
			dir:         filepath.Join(dockerDir, langImageDir),
			extraInputs: []string{manifest},
			deps:        imgDeps,
			hashChecked: true,
			repo:        cfg.Registry.Repo,
			engine:      d.Engine,
			remote:      d.Remote,
		}
		artifacts = append(artifacts, img)
		langImageNames = append(langImageNames, img.Name())

		test := &testArtifact{
			lang:    lang.ID,
			inputs:  []string{manifest, filepath.Join(scriptsDir, "run-test.sh")},
			deps:    []string{img.Name()},
			store:   d.Store,
			runner:  d.Runner,
			remote:  d.Remote,
			scripts: scriptsDir,
		}
		artifacts = append(artifacts, test)
		langTestNames = append(langTestNames, test.Name())
	}

	appDeps, err := imageDeps("app")
	if err != nil {
		return nil, err
	}
	artifacts = append(artifacts, newImage("app", appDeps, nil))

	deployDeps := append([]string{"image:app"}, langImageNames...)
	deployDeps = append(deployDeps, langTestNames...)
	artifacts = append(artifacts, &deployArtifact{
		target:  cfg.Deploy.Target,
		deps:    deployDeps,
		runner:  d.Runner,
		scripts: scriptsDir,
	})

	info := depgraph.NewInfoCache(map[string]depgraph.FetchFunc{
		keyImageHashes: d.Remote.HashFetcher(depgraph.KindImage),
		keyDebHashes:   d.Remote.HashFetcher(depgraph.KindDeb),
		keyTestHashes:  d.Remote.HashFetcher(depgraph.KindTest),
	})

	return depgraph.New(artifacts, info)
}

// externalBaseTag derives the graph name for the external base image:
// "ubuntu:24.04" becomes image:ubuntu.
func externalBaseTag(ref string) string {
	if name, _, ok := strings.Cut(ref, ":"); ok {
		return name
	}
	return ref
}

// parseFrom returns the first FROM reference in a Dockerfile.
func parseFrom(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: reading %s: %v", depgraph.ErrConfig, path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		fields := strings.Fields(line)
		if len(fields) >= 2 && strings.EqualFold(fields[0], "FROM") {
			return fields[1], nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("scanning %s: %w", path, err)
	}
	return "", fmt.Errorf("%w: %s has no FROM line", depgraph.ErrConfig, path)
}
