// Package remote talks to the published artifact store (an S3 bucket)
// through the aws CLI. Published hashes are recorded as empty objects whose
// keys encode artifact name and hash: hashes/<kind>/<name>/<hash>. One
// prefix listing per artifact kind answers every artifact's published-hash
// query, which is what the informational dependency cache memoizes.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/timothygachengo/riju/pkg/depgraph"
	"github.com/timothygachengo/riju/pkg/hash"
	"github.com/timothygachengo/riju/pkg/shell"
)

const hashPrefix = "hashes/"

type Client struct {
	bucket string
	runner shell.Runner
}

func NewClient(bucket string, runner shell.Runner) *Client {
	return &Client{bucket: bucket, runner: runner}
}

// HashFetcher returns the batch fetch for every published hash of one
// artifact kind, suitable for registration in the informational dependency
// cache.
func (c *Client) HashFetcher(kind depgraph.Kind) depgraph.FetchFunc {
	return func(ctx context.Context) (depgraph.InfoMap, error) {
		return c.listHashes(ctx, kind)
	}
}

func (c *Client) listHashes(ctx context.Context, kind depgraph.Kind) (depgraph.InfoMap, error) {
	prefix := hashPrefix + string(kind) + "/"
	out, err := c.runner.Output(ctx,
		"aws", "s3api", "list-objects-v2",
		"--bucket", c.bucket,
		"--prefix", prefix,
		"--output", "json",
	)
	if err != nil {
		return nil, fmt.Errorf("listing %s hashes in bucket %q: %w", kind, c.bucket, err)
	}
	return parseHashListing([]byte(out))
}

// parseHashListing decodes a list-objects-v2 response into artifact name to
// hash. An empty response (no objects under the prefix) is a valid empty
// mapping; a key that does not follow the hashes/<kind>/<name>/<hash>
// shape is malformed remote state and fails the run.
func parseHashListing(data []byte) (depgraph.InfoMap, error) {
	m := depgraph.InfoMap{}
	if len(strings.TrimSpace(string(data))) == 0 {
		return m, nil
	}

	var listing struct {
		Contents []struct {
			Key string `json:"Key"`
		} `json:"Contents"`
	}
	if err := json.Unmarshal(data, &listing); err != nil {
		return nil, fmt.Errorf("decoding object listing: %w", err)
	}

	for _, obj := range listing.Contents {
		name, h, err := splitHashKey(obj.Key)
		if err != nil {
			return nil, err
		}
		m[name] = h
	}
	return m, nil
}

func splitHashKey(key string) (string, hash.Hash, error) {
	rest, ok := strings.CutPrefix(key, hashPrefix)
	if !ok {
		return "", hash.None, fmt.Errorf("malformed hash key %q: missing %q prefix", key, hashPrefix)
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", hash.None, fmt.Errorf("malformed hash key %q", key)
	}
	return parts[0] + ":" + parts[1], hash.Hash(parts[2]), nil
}

// hashKey is the inverse of splitHashKey for a name like "deb:lang-python".
func hashKey(name string, h hash.Hash) (string, error) {
	kind, local, ok := strings.Cut(name, ":")
	if !ok {
		return "", fmt.Errorf("artifact name %q is not kind-namespaced", name)
	}
	return hashPrefix + kind + "/" + local + "/" + string(h), nil
}

// PublishHash records h as the published hash for name, replacing any
// previously recorded hash keys for that artifact.
func (c *Client) PublishHash(ctx context.Context, name string, h hash.Hash) error {
	key, err := hashKey(name, h)
	if err != nil {
		return err
	}

	// Drop stale keys first so a listing never reports two hashes for
	// the same artifact.
	stalePrefix := strings.TrimSuffix(key, string(h))
	out, err := c.runner.Output(ctx,
		"aws", "s3api", "list-objects-v2",
		"--bucket", c.bucket,
		"--prefix", stalePrefix,
		"--output", "json",
	)
	if err != nil {
		return fmt.Errorf("listing stale hash keys for %q: %w", name, err)
	}
	stale, err := parseHashListing([]byte(out))
	if err != nil {
		return err
	}
	for staleName, staleHash := range stale {
		if staleName != name || staleHash == h {
			continue
		}
		staleKey, err := hashKey(staleName, staleHash)
		if err != nil {
			return err
		}
		if err := c.runner.Run(ctx, "aws", "s3api", "delete-object",
			"--bucket", c.bucket, "--key", staleKey); err != nil {
			return fmt.Errorf("deleting stale hash key %q: %w", staleKey, err)
		}
	}

	if err := c.runner.Run(ctx, "aws", "s3api", "put-object",
		"--bucket", c.bucket, "--key", key); err != nil {
		return fmt.Errorf("recording published hash for %q: %w", name, err)
	}
	return nil
}

// Download copies s3://bucket/key to dest.
func (c *Client) Download(ctx context.Context, key, dest string) error {
	if err := c.runner.Run(ctx, "aws", "s3", "cp",
		fmt.Sprintf("s3://%s/%s", c.bucket, key), dest); err != nil {
		return fmt.Errorf("downloading %q: %w", key, err)
	}
	return nil
}

// Upload copies src to s3://bucket/key.
func (c *Client) Upload(ctx context.Context, src, key string) error {
	if err := c.runner.Run(ctx, "aws", "s3", "cp",
		src, fmt.Sprintf("s3://%s/%s", c.bucket, key)); err != nil {
		return fmt.Errorf("uploading %q: %w", key, err)
	}
	return nil
}
