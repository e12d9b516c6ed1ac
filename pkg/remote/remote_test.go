package remote

import (
	"context"
	"strings"
	"testing"

	"github.com/timothygachengo/riju/pkg/depgraph"
	"github.com/timothygachengo/riju/pkg/hash"
)

func TestParseHashListing(t *testing.T) {
	tests := map[string]struct {
		data    string
		want    depgraph.InfoMap
		wantErr bool
	}{
		"typical listing": {
			data: `{"Contents": [
				{"Key": "hashes/deb/lang-python/aaa111"},
				{"Key": "hashes/deb/shared-sqlite/bbb222"}
			]}`,
			want: depgraph.InfoMap{
				"deb:lang-python":   "aaa111",
				"deb:shared-sqlite": "bbb222",
			},
		},
		"empty object": {
			data: `{}`,
			want: depgraph.InfoMap{},
		},
		"empty output": {
			data: "",
			want: depgraph.InfoMap{},
		},
		"malformed key": {
			data:    `{"Contents": [{"Key": "hashes/deb/lang-python"}]}`,
			wantErr: true,
		},
		"key outside hashes prefix": {
			data:    `{"Contents": [{"Key": "debs/python.deb"}]}`,
			wantErr: true,
		},
		"not json": {
			data:    "An error occurred",
			wantErr: true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := parseHashListing([]byte(tc.data))
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tc.want) {
				t.Fatalf("got %d entries, want %d", len(got), len(tc.want))
			}
			for name, h := range tc.want {
				if got[name] != h {
					t.Errorf("got[%q] = %q, want %q", name, got[name], h)
				}
			}
		})
	}
}

func TestHashKeyRoundTrip(t *testing.T) {
	key, err := hashKey("test:lang-go", "abc123")
	if err != nil {
		t.Fatalf("hashKey: %v", err)
	}
	if key != "hashes/test/lang-go/abc123" {
		t.Errorf("hashKey = %q", key)
	}

	name, h, err := splitHashKey(key)
	if err != nil {
		t.Fatalf("splitHashKey: %v", err)
	}
	if name != "test:lang-go" || h != "abc123" {
		t.Errorf("splitHashKey = %q, %q", name, h)
	}

	if _, err := hashKey("not-namespaced", "abc"); err == nil {
		t.Error("expected error for un-namespaced name")
	}
}

// stubRunner records commands and replies with canned output.
type stubRunner struct {
	outputs map[string]string // matched by substring of the joined command
	cmds    []string
}

func (r *stubRunner) Run(ctx context.Context, name string, args ...string) error {
	r.cmds = append(r.cmds, name+" "+strings.Join(args, " "))
	return nil
}

func (r *stubRunner) Output(ctx context.Context, name string, args ...string) (string, error) {
	cmd := name + " " + strings.Join(args, " ")
	r.cmds = append(r.cmds, cmd)
	for sub, out := range r.outputs {
		if strings.Contains(cmd, sub) {
			return out, nil
		}
	}
	return "{}", nil
}

func TestHashFetcher(t *testing.T) {
	runner := &stubRunner{outputs: map[string]string{
		"--prefix hashes/image/": `{"Contents": [{"Key": "hashes/image/lang-go/h9"}]}`,
	}}
	c := NewClient("riju-artifacts", runner)

	m, err := c.HashFetcher(depgraph.KindImage)(context.Background())
	if err != nil {
		t.Fatalf("HashFetcher: %v", err)
	}
	if m["image:lang-go"] != hash.Hash("h9") {
		t.Errorf("m = %v", m)
	}
}

func TestPublishHashReplacesStaleKeys(t *testing.T) {
	runner := &stubRunner{outputs: map[string]string{
		"--prefix hashes/deb/lang-python/": `{"Contents": [{"Key": "hashes/deb/lang-python/old1"}]}`,
	}}
	c := NewClient("riju-artifacts", runner)

	if err := c.PublishHash(context.Background(), "deb:lang-python", "new2"); err != nil {
		t.Fatalf("PublishHash: %v", err)
	}

	joined := strings.Join(runner.cmds, "\n")
	if !strings.Contains(joined, "delete-object --bucket riju-artifacts --key hashes/deb/lang-python/old1") {
		t.Errorf("stale key not deleted:\n%s", joined)
	}
	if !strings.Contains(joined, "put-object --bucket riju-artifacts --key hashes/deb/lang-python/new2") {
		t.Errorf("new key not recorded:\n%s", joined)
	}
}
