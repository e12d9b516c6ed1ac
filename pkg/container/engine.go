package container

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/timothygachengo/riju/pkg/hash"
	"github.com/timothygachengo/riju/pkg/shell"
)

// HashLabel is the image label under which riju records the artifact hash
// the image was built from. Reading it back is how a built image reports
// its local hash.
const HashLabel = "riju.artifact-hash"

// Engine represents a detected container runtime (docker or podman).
type Engine struct {
	Path string // absolute path to the binary
	Name string // "docker" or "podman"
}

// DetectEngine finds a container engine by first checking the
// RIJU_CONTAINER_ENGINE env var, then searching PATH for docker and podman.
func DetectEngine() (*Engine, error) {
	if override := os.Getenv("RIJU_CONTAINER_ENGINE"); override != "" {
		path, err := exec.LookPath(override)
		if err != nil {
			return nil, fmt.Errorf("RIJU_CONTAINER_ENGINE=%q not found in PATH: %w", override, err)
		}
		name := override
		// Normalise to just the binary name if a full path was given.
		if idx := strings.LastIndex(name, "/"); idx >= 0 {
			name = name[idx+1:]
		}
		return &Engine{Path: path, Name: name}, nil
	}

	for _, candidate := range []string{"docker", "podman"} {
		path, err := exec.LookPath(candidate)
		if err == nil {
			return &Engine{Path: path, Name: candidate}, nil
		}
	}

	return nil, fmt.Errorf("no container engine found: install docker or podman, or set RIJU_CONTAINER_ENGINE")
}

// Build builds the image at dir as tag, stamping the artifact hash into
// the HashLabel label so a later LabelHash call can recover it.
func (e *Engine) Build(ctx context.Context, dir, tag string, artifactHash hash.Hash) error {
	args := []string{
		"build",
		"--label", HashLabel + "=" + string(artifactHash),
		"-t", tag,
		dir,
	}
	cmd := exec.CommandContext(ctx, e.Path, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("building image %q: %w", tag, err)
	}
	return nil
}

// Pull pulls an image from a remote repository and retags it locally.
func (e *Engine) Pull(ctx context.Context, remoteRef, localTag string) error {
	cmd := exec.CommandContext(ctx, e.Path, "pull", remoteRef)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("pulling image %q: %w", remoteRef, err)
	}

	tag := exec.CommandContext(ctx, e.Path, "tag", remoteRef, localTag)
	if err := tag.Run(); err != nil {
		return fmt.Errorf("tagging %q as %q: %w", remoteRef, localTag, err)
	}
	return nil
}

// Push tags a local image under remoteRef and pushes it.
func (e *Engine) Push(ctx context.Context, localTag, remoteRef string) error {
	tag := exec.CommandContext(ctx, e.Path, "tag", localTag, remoteRef)
	if err := tag.Run(); err != nil {
		return fmt.Errorf("tagging %q as %q: %w", localTag, remoteRef, err)
	}

	cmd := exec.CommandContext(ctx, e.Path, "push", remoteRef)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("pushing image %q: %w", remoteRef, err)
	}
	return nil
}

// LabelHash returns the artifact hash recorded in a local image's HashLabel
// label. A missing image or an image without the label yields hash.None;
// only engine failures other than "no such image" are errors.
func (e *Engine) LabelHash(ctx context.Context, image string) (hash.Hash, error) {
	format := fmt.Sprintf("{{index .Config.Labels %q}}", HashLabel)
	cmd := exec.CommandContext(ctx, e.Path, "image", "inspect", "--format", format, image)
	out, err := cmd.Output()
	if err != nil {
		if isNoSuchImage(err) {
			return hash.None, nil
		}
		return hash.None, fmt.Errorf("inspecting image %q: %w", image, shell.ExecError(err))
	}
	return hash.Hash(strings.TrimSpace(string(out))), nil
}

// ImageDigest returns the image ID for a locally available image, with any
// "sha256:" prefix stripped so callers get a bare hex string.
func (e *Engine) ImageDigest(ctx context.Context, image string) (hash.Hash, error) {
	cmd := exec.CommandContext(ctx, e.Path, "image", "inspect", "--format", "{{.Id}}", image)
	out, err := cmd.Output()
	if err != nil {
		if isNoSuchImage(err) {
			return hash.None, nil
		}
		return hash.None, fmt.Errorf("inspecting image %q: %w", image, shell.ExecError(err))
	}
	digest := strings.TrimSpace(string(out))
	digest = strings.TrimPrefix(digest, "sha256:")
	return hash.Hash(digest), nil
}

// isNoSuchImage reports whether an inspect failure means the image simply
// is not present locally. Docker and podman both mention "no such" in that
// case; anything else is a real engine error.
func isNoSuchImage(err error) bool {
	ee, ok := err.(*exec.ExitError)
	if !ok {
		return false
	}
	msg := strings.ToLower(string(ee.Stderr))
	return strings.Contains(msg, "no such image") ||
		strings.Contains(msg, "no such object") ||
		strings.Contains(msg, "image not known")
}
