// Package depgraph is the reconciliation engine behind `riju deps`: it
// models build/deploy artifacts as a dependency graph, resolves each
// artifact's local, desired, and published hashes, and decides the cheapest
// action (nothing, build, retrieve, publish) that brings every artifact in
// line with its declared inputs.
package depgraph

import (
	"context"

	"github.com/timothygachengo/riju/pkg/hash"
)

// Kind tags the closed set of artifact variants. The planner never
// special-cases kinds; the tag exists for display and for assembly-time
// namespace checks.
type Kind string

const (
	KindImage  Kind = "image"
	KindDeb    Kind = "deb"
	KindTest   Kind = "test"
	KindDeploy Kind = "deploy"
)

// Op names an artifact operation that needs an informational dependency
// injected. Referenced keys are validated at graph assembly.
type Op string

const (
	OpPublishedHash Op = "publishedHash"
	OpRetrieve      Op = "retrieve"
)

// InfoMap is the result of one informational batch fetch: artifact name
// to published hash.
type InfoMap map[string]hash.Hash

// Info hands an artifact access to memoized informational dependencies.
// *InfoCache satisfies it.
type Info interface {
	Get(ctx context.Context, key string) (InfoMap, error)
}

// Artifact is the uniform contract every artifact variant implements
// (see pkg/artifacts for the concrete image/deb/test/deploy types).
//
// Hash accessors distinguish "no hash" from failure: hash.None with a nil
// error means not yet built, not yet published, or not hash-checked at
// all; a non-nil error means the state could not be determined and aborts
// the run.
type Artifact interface {
	Name() string
	Kind() Kind
	// Dependencies returns the names of the artifacts this one depends on,
	// in declaration order. Every name must resolve within the graph.
	Dependencies() []string
	// InformationalDeps maps each operation to the informational dependency
	// key it needs. Every key must have a registered fetcher.
	InformationalDeps() map[Op]string

	// LocalHash inspects only local state (an image label, embedded package
	// metadata, a marker file).
	LocalHash(ctx context.Context) (hash.Hash, error)
	// PublishedHash looks this artifact up in its injected batch mapping(s).
	PublishedHash(ctx context.Context, info Info) (hash.Hash, error)
	// DesiredHash combines the artifact's declared inputs with the already
	// resolved desired hashes of its direct dependencies. Returning
	// hash.None marks the artifact as not hash-checked (externally
	// versioned bases, pure action triggers).
	DesiredHash(ctx context.Context, deps map[string]hash.Hash) (hash.Hash, error)

	// Build produces the artifact locally. For action-trigger artifacts
	// this is the triggered action itself.
	Build(ctx context.Context) error
	// Retrieve fetches the already-published artifact instead of building.
	Retrieve(ctx context.Context, info Info) error
	// Publish uploads the locally-built artifact and records its hash.
	Publish(ctx context.Context) error
}
