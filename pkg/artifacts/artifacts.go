// Package artifacts defines riju's concrete artifact variants (image, deb,
// test, deploy) and assembles them into the dependency graph the deps
// command reconciles.
package artifacts

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/timothygachengo/riju/pkg/depgraph"
	"github.com/timothygachengo/riju/pkg/hash"
	"github.com/timothygachengo/riju/pkg/shell"
	"github.com/timothygachengo/riju/pkg/store"
)

// Informational dependency keys: one bulk listing per artifact kind.
const (
	keyImageHashes = "published-image-hashes"
	keyDebHashes   = "published-deb-hashes"
	keyTestHashes  = "published-test-hashes"
)

// ImageEngine is the slice of the container engine the image artifacts use.
// *container.Engine satisfies it.
type ImageEngine interface {
	Build(ctx context.Context, dir, tag string, artifactHash hash.Hash) error
	Pull(ctx context.Context, remoteRef, localTag string) error
	Push(ctx context.Context, localTag, remoteRef string) error
	LabelHash(ctx context.Context, image string) (hash.Hash, error)
}

// RemoteStore is the slice of the published artifact store the variants
// use. *remote.Client satisfies it.
type RemoteStore interface {
	HashFetcher(kind depgraph.Kind) depgraph.FetchFunc
	PublishHash(ctx context.Context, name string, h hash.Hash) error
	Download(ctx context.Context, key, dest string) error
	Upload(ctx context.Context, src, key string) error
}

// resolvedHash remembers the desired hash once the planner computes it, so
// the build and publish actions for the same run can reuse it. Hash
// resolution always completes before any action executes.
type resolvedHash struct {
	mu sync.Mutex
	h  hash.Hash
}

func (r *resolvedHash) set(h hash.Hash) {
	r.mu.Lock()
	r.h = h
	r.mu.Unlock()
}

func (r *resolvedHash) get() (hash.Hash, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.h.IsNone() {
		return hash.None, fmt.Errorf("desired hash not resolved yet")
	}
	return r.h, nil
}

// inputHashes fingerprints each declared input path: directories as sorted
// trees, plain files by content.
func inputHashes(paths []string, dirs []string) ([]hash.Hash, error) {
	var out []hash.Hash
	for _, dir := range dirs {
		h, err := store.HashTree(dir)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	for _, path := range paths {
		h, err := store.HashFile(path)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}

// imageArtifact is a container image. Its local hash lives in an image
// label stamped at build time; its recipe is the docker/<tag>/ tree.
// An externally-versioned base (hashChecked false) has no desired hash and
// no actions of its own.
type imageArtifact struct {
	tag         string
	localTag    string // riju:<tag>
	dir         string // recipe tree; empty for the external base
	extraInputs []string
	deps        []string
	hashChecked bool

	repo   string // remote image repository
	engine ImageEngine
	remote RemoteStore

	resolved resolvedHash
}

var _ depgraph.Artifact = &imageArtifact{}

func (a *imageArtifact) Name() string { return "image:" + a.tag }

func (a *imageArtifact) Kind() depgraph.Kind { return depgraph.KindImage }

func (a *imageArtifact) Dependencies() []string { return a.deps }

func (a *imageArtifact) InformationalDeps() map[depgraph.Op]string {
	if !a.hashChecked {
		return nil
	}
	return map[depgraph.Op]string{depgraph.OpPublishedHash: keyImageHashes}
}

func (a *imageArtifact) LocalHash(ctx context.Context) (hash.Hash, error) {
	if !a.hashChecked {
		return hash.None, nil
	}
	return a.engine.LabelHash(ctx, a.localTag)
}

func (a *imageArtifact) PublishedHash(ctx context.Context, info depgraph.Info) (hash.Hash, error) {
	if !a.hashChecked {
		return hash.None, nil
	}
	m, err := info.Get(ctx, keyImageHashes)
	if err != nil {
		return hash.None, err
	}
	return m[a.Name()], nil
}

func (a *imageArtifact) DesiredHash(ctx context.Context, deps map[string]hash.Hash) (hash.Hash, error) {
	if !a.hashChecked {
		return hash.None, nil
	}
	inputs, err := inputHashes(a.extraInputs, []string{a.dir})
	if err != nil {
		return hash.None, fmt.Errorf("fingerprinting recipe for %s: %w", a.Name(), err)
	}
	h := hash.Combine(inputs, deps)
	a.resolved.set(h)
	return h, nil
}

func (a *imageArtifact) remoteRef() string { return a.repo + ":" + a.tag }

func (a *imageArtifact) Build(ctx context.Context) error {
	h, err := a.resolved.get()
	if err != nil {
		return err
	}
	return a.engine.Build(ctx, a.dir, a.localTag, h)
}

func (a *imageArtifact) Retrieve(ctx context.Context, info depgraph.Info) error {
	return a.engine.Pull(ctx, a.remoteRef(), a.localTag)
}

func (a *imageArtifact) Publish(ctx context.Context) error {
	h, err := a.resolved.get()
	if err != nil {
		return err
	}
	if err := a.engine.Push(ctx, a.localTag, a.remoteRef()); err != nil {
		return err
	}
	return a.remote.PublishHash(ctx, a.Name(), h)
}

// debArtifact is a packaged .deb. The local copy carries its artifact hash
// in a control field; the published copy lives in the bucket keyed by hash.
type debArtifact struct {
	deb    string // "lang-python", "shared-sqlite"
	inputs []string
	deps   []string

	store   store.Store
	runner  shell.Runner
	remote  RemoteStore
	scripts string

	resolved resolvedHash
}

var _ depgraph.Artifact = &debArtifact{}

func (a *debArtifact) Name() string { return "deb:" + a.deb }

func (a *debArtifact) Kind() depgraph.Kind { return depgraph.KindDeb }

func (a *debArtifact) Dependencies() []string { return a.deps }

func (a *debArtifact) InformationalDeps() map[depgraph.Op]string {
	return map[depgraph.Op]string{
		depgraph.OpPublishedHash: keyDebHashes,
		depgraph.OpRetrieve:      keyDebHashes,
	}
}

func (a *debArtifact) debPath() string {
	return a.store.Path("debs", a.deb+".deb")
}

func (a *debArtifact) LocalHash(ctx context.Context) (hash.Hash, error) {
	ok, err := a.store.Exists("debs", a.deb+".deb")
	if err != nil {
		return hash.None, err
	}
	if !ok {
		return hash.None, nil
	}

	out, err := a.runner.Output(ctx, "dpkg-deb", "-f", a.debPath(), "Riju-Artifact-Hash")
	if err != nil {
		return hash.None, fmt.Errorf("reading control field of %s: %w", a.debPath(), err)
	}
	if out == "" {
		// A deb without the field was not produced by this pipeline.
		return hash.None, fmt.Errorf("%s has no Riju-Artifact-Hash control field", a.debPath())
	}
	return hash.Hash(out), nil
}

func (a *debArtifact) PublishedHash(ctx context.Context, info depgraph.Info) (hash.Hash, error) {
	m, err := info.Get(ctx, keyDebHashes)
	if err != nil {
		return hash.None, err
	}
	return m[a.Name()], nil
}

func (a *debArtifact) DesiredHash(ctx context.Context, deps map[string]hash.Hash) (hash.Hash, error) {
	inputs, err := inputHashes(a.inputs, nil)
	if err != nil {
		return hash.None, fmt.Errorf("fingerprinting inputs for %s: %w", a.Name(), err)
	}
	h := hash.Combine(inputs, deps)
	a.resolved.set(h)
	return h, nil
}

func (a *debArtifact) Build(ctx context.Context) error {
	h, err := a.resolved.get()
	if err != nil {
		return err
	}
	if err := a.store.EnsureDir("debs"); err != nil {
		return err
	}
	return a.runner.Run(ctx, filepath.Join(a.scripts, "build-deb.sh"), a.deb, string(h))
}

func (a *debArtifact) Retrieve(ctx context.Context, info depgraph.Info) error {
	m, err := info.Get(ctx, keyDebHashes)
	if err != nil {
		return err
	}
	h, ok := m[a.Name()]
	if !ok || h.IsNone() {
		return fmt.Errorf("no published copy of %s to retrieve", a.Name())
	}
	if err := a.store.EnsureDir("debs"); err != nil {
		return err
	}
	return a.remote.Download(ctx, debKey(a.deb, h), a.debPath())
}

func (a *debArtifact) Publish(ctx context.Context) error {
	h, err := a.resolved.get()
	if err != nil {
		return err
	}
	if err := a.remote.Upload(ctx, a.debPath(), debKey(a.deb, h)); err != nil {
		return err
	}
	return a.remote.PublishHash(ctx, a.Name(), h)
}

func debKey(deb string, h hash.Hash) string {
	return fmt.Sprintf("debs/%s/%s.deb", deb, h)
}

// testArtifact marks that a language image's hello-world test passed for a
// given image state. Local state is a marker file; the published record
// lets other machines skip a test that already passed for the same hash.
type testArtifact struct {
	lang   string
	inputs []string
	deps   []string

	store   store.Store
	runner  shell.Runner
	remote  RemoteStore
	scripts string

	resolved resolvedHash
}

var _ depgraph.Artifact = &testArtifact{}

func (a *testArtifact) Name() string { return "test:lang-" + a.lang }

func (a *testArtifact) Kind() depgraph.Kind { return depgraph.KindTest }

func (a *testArtifact) Dependencies() []string { return a.deps }

func (a *testArtifact) InformationalDeps() map[depgraph.Op]string {
	return map[depgraph.Op]string{
		depgraph.OpPublishedHash: keyTestHashes,
		depgraph.OpRetrieve:      keyTestHashes,
	}
}

func (a *testArtifact) marker() []string { return []string{"tests", a.lang + ".hash"} }

func (a *testArtifact) LocalHash(ctx context.Context) (hash.Hash, error) {
	return a.store.ReadHash(a.marker()...)
}

func (a *testArtifact) PublishedHash(ctx context.Context, info depgraph.Info) (hash.Hash, error) {
	m, err := info.Get(ctx, keyTestHashes)
	if err != nil {
		return hash.None, err
	}
	return m[a.Name()], nil
}

func (a *testArtifact) DesiredHash(ctx context.Context, deps map[string]hash.Hash) (hash.Hash, error) {
	inputs, err := inputHashes(a.inputs, nil)
	if err != nil {
		return hash.None, fmt.Errorf("fingerprinting inputs for %s: %w", a.Name(), err)
	}
	h := hash.Combine(inputs, deps)
	a.resolved.set(h)
	return h, nil
}

func (a *testArtifact) Build(ctx context.Context) error {
	h, err := a.resolved.get()
	if err != nil {
		return err
	}
	if err := a.runner.Run(ctx, filepath.Join(a.scripts, "run-test.sh"), a.lang); err != nil {
		return err
	}
	return a.store.WriteHash(h, a.marker()...)
}

// Retrieve records a test that already passed elsewhere for the desired
// state: no point re-running it here.
func (a *testArtifact) Retrieve(ctx context.Context, info depgraph.Info) error {
	m, err := info.Get(ctx, keyTestHashes)
	if err != nil {
		return err
	}
	h, ok := m[a.Name()]
	if !ok || h.IsNone() {
		return fmt.Errorf("no published record of %s to retrieve", a.Name())
	}
	return a.store.WriteHash(h, a.marker()...)
}

func (a *testArtifact) Publish(ctx context.Context) error {
	h, err := a.resolved.get()
	if err != nil {
		return err
	}
	return a.remote.PublishHash(ctx, a.Name(), h)
}

// deployArtifact is a pure action trigger: no hashes, fires whenever a
// dependency needed work.
type deployArtifact struct {
	target string
	deps   []string

	runner  shell.Runner
	scripts string
}

var _ depgraph.Artifact = &deployArtifact{}

func (a *deployArtifact) Name() string { return "deploy:" + a.target }

func (a *deployArtifact) Kind() depgraph.Kind { return depgraph.KindDeploy }

func (a *deployArtifact) Dependencies() []string { return a.deps }

func (a *deployArtifact) InformationalDeps() map[depgraph.Op]string { return nil }

func (a *deployArtifact) LocalHash(ctx context.Context) (hash.Hash, error) {
	return hash.None, nil
}

func (a *deployArtifact) PublishedHash(ctx context.Context, info depgraph.Info) (hash.Hash, error) {
	return hash.None, nil
}

func (a *deployArtifact) DesiredHash(ctx context.Context, deps map[string]hash.Hash) (hash.Hash, error) {
	return hash.None, nil
}

func (a *deployArtifact) Build(ctx context.Context) error {
	return a.runner.Run(ctx, filepath.Join(a.scripts, "deploy.sh"), a.target)
}

func (a *deployArtifact) Retrieve(ctx context.Context, info depgraph.Info) error {
	return fmt.Errorf("%s cannot be retrieved", a.Name())
}

func (a *deployArtifact) Publish(ctx context.Context) error {
	return fmt.Errorf("%s cannot be published", a.Name())
}
