// Package builder implements the Container Builder (C5): it clones a
// repository into an isolated workspace, builds it inside an isolated
// container (or skips the build for pure-static workspaces), and resolves
// the resulting artifact directory.
package builder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	dockerclient "github.com/docker/docker/client"
	"github.com/google/uuid"

	"github.com/wisbric/deployify/internal/apperr"
	"github.com/wisbric/deployify/pkg/detect"
)

// LogFunc receives progress events as they are produced. level is one of
// "info" or "warn"; message is human-readable.
type LogFunc func(level, message string)

// Builder drives the clone + build protocol described in spec.md §4.5.
type Builder struct {
	baseDir string
	docker  *dockerclient.Client
}

// New creates a Builder. baseDir is the configured workspace root; each
// build gets a unique subdirectory beneath it. docker may be nil, in which
// case any attempt to build a non-static workspace fails with
// ContainerUnavailableKind.
func New(baseDir string, docker *dockerclient.Client) *Builder {
	return &Builder{baseDir: baseDir, docker: docker}
}

// Result is the outcome of a successful Produce call.
type Result struct {
	WorkspacePath  string
	ArtifactPath   string
	ContainerImage string // empty when no container build ran
}

// Clone creates a fresh workspace for deploymentID and clones repoURL into
// it, following the branch-fallback protocol from spec.md §4.5. The caller
// must run detection against the returned workspace before calling Build,
// since the build protocol needs the detection result.
func (b *Builder) Clone(ctx context.Context, deploymentID uuid.UUID, repoURL, branch string, log LogFunc) (string, error) {
	workspace, err := b.newWorkspace(deploymentID)
	if err != nil {
		return "", fmt.Errorf("creating workspace: %w", err)
	}
	if err := clone(ctx, workspace, repoURL, branch, log); err != nil {
		return workspace, err
	}
	return workspace, nil
}

// Build runs the build protocol against an already-cloned workspace and
// resolves the resulting artifact directory.
func (b *Builder) Build(ctx context.Context, workspace string, deploymentID uuid.UUID, det detect.Result, log LogFunc) (Result, error) {
	image, err := b.build(ctx, workspace, deploymentID, det, log)
	if err != nil {
		return Result{WorkspacePath: workspace}, err
	}

	artifact := resolveArtifact(workspace, det, log)
	return Result{WorkspacePath: workspace, ArtifactPath: artifact, ContainerImage: image}, nil
}

// Produce runs Clone then Build in sequence using a pre-supplied detection
// result; callers that don't need to detect between steps (e.g. tests) can
// use this shortcut.
func (b *Builder) Produce(ctx context.Context, deploymentID uuid.UUID, repoURL, branch string, det detect.Result, log LogFunc) (Result, error) {
	workspace, err := b.Clone(ctx, deploymentID, repoURL, branch, log)
	if err != nil {
		return Result{WorkspacePath: workspace}, err
	}
	return b.Build(ctx, workspace, deploymentID, det, log)
}

// Cleanup removes a workspace directory. Failures are not fatal to the
// pipeline; the caller logs a warning and moves on.
func (b *Builder) Cleanup(workspace string) error {
	if workspace == "" {
		return nil
	}
	return os.RemoveAll(workspace)
}

func (b *Builder) newWorkspace(deploymentID uuid.UUID) (string, error) {
	dir := filepath.Join(b.baseDir, deploymentID.String())
	if err := os.RemoveAll(dir); err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

func wipe(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}

// containerUnavailable wraps a docker client error as a terminal,
// non-retryable pipeline error per spec.md §4.5.
func containerUnavailable(cause error) error {
	return apperr.New(apperr.ContainerUnavailableKind, "container daemon unavailable").WithDetail(cause.Error())
}
