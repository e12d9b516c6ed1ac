package depgraph

import (
	"context"
	"sync"

	"github.com/timothygachengo/riju/pkg/hash"
)

// fakeArtifact is a scriptable Artifact for engine tests. Its desired hash
// is either the fixed desired field or, when inputs is non-nil, a Merkle
// combine of inputs with the dependency hashes. Its published hash comes
// from the informational mapping when one is declared, else the fixed
// published field.
type fakeArtifact struct {
	name     string
	kind     Kind
	deps     []string
	infoDeps map[Op]string

	local     hash.Hash
	localErr  error
	published hash.Hash
	desired   hash.Hash
	inputs    []hash.Hash

	buildErr    error
	retrieveErr error
	publishErr  error

	mu    sync.Mutex
	calls []string
}

var _ Artifact = &fakeArtifact{}

func (f *fakeArtifact) Name() string { return f.name }

func (f *fakeArtifact) Kind() Kind { return f.kind }

func (f *fakeArtifact) Dependencies() []string { return f.deps }

func (f *fakeArtifact) InformationalDeps() map[Op]string { return f.infoDeps }

func (f *fakeArtifact) LocalHash(ctx context.Context) (hash.Hash, error) {
	return f.local, f.localErr
}

func (f *fakeArtifact) PublishedHash(ctx context.Context, info Info) (hash.Hash, error) {
	key, ok := f.infoDeps[OpPublishedHash]
	if !ok {
		return f.published, nil
	}
	m, err := info.Get(ctx, key)
	if err != nil {
		return hash.None, err
	}
	return m[f.name], nil
}

func (f *fakeArtifact) DesiredHash(ctx context.Context, deps map[string]hash.Hash) (hash.Hash, error) {
	if f.inputs != nil {
		return hash.Combine(f.inputs, deps), nil
	}
	return f.desired, nil
}

func (f *fakeArtifact) Build(ctx context.Context) error {
	f.record("build")
	return f.buildErr
}

func (f *fakeArtifact) Retrieve(ctx context.Context, info Info) error {
	f.record("retrieve")
	return f.retrieveErr
}

func (f *fakeArtifact) Publish(ctx context.Context) error {
	f.record("publish")
	return f.publishErr
}

func (f *fakeArtifact) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeArtifact) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func emptyInfo() *InfoCache {
	return NewInfoCache(nil)
}

func mustGraph(artifacts []Artifact, info *InfoCache) *Graph {
	g, err := New(artifacts, info)
	if err != nil {
		panic(err)
	}
	return g
}
