package depgraph

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timothygachengo/riju/pkg/hash"
)

// orderedArtifact wraps fakeArtifact to record the global order in which
// actions ran.
type orderedArtifact struct {
	fakeArtifact
	log *actionLog
}

type actionLog struct {
	mu      sync.Mutex
	entries []string
}

func (l *actionLog) add(name string) {
	l.mu.Lock()
	l.entries = append(l.entries, name)
	l.mu.Unlock()
}

func (o *orderedArtifact) Build(ctx context.Context) error {
	o.log.add(o.name)
	return o.fakeArtifact.Build(ctx)
}

func deployGraph(log *actionLog, buildErr error) (*Graph, []*orderedArtifact) {
	mk := func(name string, kind Kind, deps []string, local, desired hash.Hash, err error) *orderedArtifact {
		return &orderedArtifact{
			fakeArtifact: fakeArtifact{
				name: name, kind: kind, deps: deps,
				local: local, desired: desired, buildErr: err,
			},
			log: log,
		}
	}

	// Three images; one stale (needs build), two already current. The
	// deploy trigger depends on all three.
	imgA := mk("image:lang-python", KindImage, nil, "d1", "d1", nil)
	imgB := mk("image:lang-go", KindImage, nil, "stale", "d2", buildErr)
	imgC := mk("image:lang-rust", KindImage, nil, "d3", "d3", nil)
	deploy := mk("deploy:prod", KindDeploy,
		[]string{"image:lang-python", "image:lang-go", "image:lang-rust"},
		hash.None, hash.None, nil)

	g := mustGraph([]Artifact{imgA, imgB, imgC, deploy}, emptyInfo())
	return g, []*orderedArtifact{imgA, imgB, imgC, deploy}
}

func TestDeployFiresAfterDependencyActions(t *testing.T) {
	log := &actionLog{}
	g, arts := deployGraph(log, nil)

	plan, err := g.Plan(context.Background(), nil, PlanOptions{})
	require.NoError(t, err)

	assert.Equal(t, ActionBuild, plan.Decisions["image:lang-go"].Action)
	assert.Equal(t, ActionTrigger, plan.Decisions["deploy:prod"].Action)

	results, err := g.Execute(context.Background(), plan, ExecuteOptions{})
	require.NoError(t, err)

	// Only the stale image and the deploy trigger did work.
	require.Len(t, results, 2)
	assert.Equal(t, []string{"image:lang-go", "deploy:prod"}, log.entries,
		"deploy must run after every dependency's action completed")

	imgB := arts[1]
	assert.Equal(t, []string{"build"}, imgB.recorded())
}

func TestDeployNotTriggeredWhenAllDepsCurrent(t *testing.T) {
	log := &actionLog{}
	mk := func(name string) *orderedArtifact {
		return &orderedArtifact{
			fakeArtifact: fakeArtifact{name: name, kind: KindImage, local: "d", desired: "d"},
			log:          log,
		}
	}
	imgs := []Artifact{mk("image:lang-python"), mk("image:lang-go")}
	deploy := &orderedArtifact{
		fakeArtifact: fakeArtifact{
			name: "deploy:prod", kind: KindDeploy,
			deps: []string{"image:lang-python", "image:lang-go"},
		},
		log: log,
	}
	g := mustGraph(append(imgs, deploy), emptyInfo())

	plan, err := g.Plan(context.Background(), nil, PlanOptions{})
	require.NoError(t, err)
	assert.Equal(t, ActionNone, plan.Decisions["deploy:prod"].Action)

	results, err := g.Execute(context.Background(), plan, ExecuteOptions{})
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Empty(t, log.entries)
}

func TestExecuteFailFast(t *testing.T) {
	log := &actionLog{}
	boom := errors.New("compile error")
	g, arts := deployGraph(log, boom)

	plan, err := g.Plan(context.Background(), nil, PlanOptions{})
	require.NoError(t, err)

	results, err := g.Execute(context.Background(), plan, ExecuteOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	// The failed build is the last result; deploy never executed.
	require.NotEmpty(t, results)
	assert.Equal(t, "image:lang-go", results[len(results)-1].Name)
	deploy := arts[3]
	assert.Empty(t, deploy.recorded(), "deploy must not run after a dependency failure")
}

func TestExecuteBuildThenPublish(t *testing.T) {
	a := &fakeArtifact{
		name:  "deb:lang-python",
		kind:  KindDeb,
		local: "stale", desired: "d1", published: hash.None,
	}
	g := mustGraph([]Artifact{a}, emptyInfo())

	plan, err := g.Plan(context.Background(), nil, PlanOptions{Publish: true})
	require.NoError(t, err)

	_, err = g.Execute(context.Background(), plan, ExecuteOptions{Publish: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"build", "publish"}, a.recorded())
}

func TestExecuteRetrieveDoesNotPublish(t *testing.T) {
	a := &fakeArtifact{
		name:  "deb:lang-python",
		kind:  KindDeb,
		local: hash.None, desired: "d1", published: "d1",
	}
	g := mustGraph([]Artifact{a}, emptyInfo())

	plan, err := g.Plan(context.Background(), nil, PlanOptions{Publish: true})
	require.NoError(t, err)

	_, err = g.Execute(context.Background(), plan, ExecuteOptions{Publish: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"retrieve"}, a.recorded())
}
