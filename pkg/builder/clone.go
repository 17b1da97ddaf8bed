package builder

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/wisbric/deployify/internal/apperr"
)

// fallbackBranches is tried, in order, after the requested branch fails to
// resolve. The requested branch itself is never repeated.
var fallbackBranches = []string{"main", "master", "develop", "dev"}

// clone runs the shallow-clone protocol from spec.md §4.5: try the requested
// branch, then each fallback branch in turn, then a branch-less clone of the
// repository default. The workspace is wiped between attempts.
func clone(ctx context.Context, workspace, repoURL, branch string, log LogFunc) error {
	log("info", fmt.Sprintf("cloning %s", repoURL))

	attempts := candidateBranches(branch)
	var lastErr error
	for i, b := range attempts {
		if err := wipe(workspace); err != nil {
			return fmt.Errorf("wiping workspace before clone attempt: %w", err)
		}

		out, err := runGitClone(ctx, workspace, repoURL, b)
		if err == nil {
			if i > 0 {
				log("warn", fmt.Sprintf("branch %q not found, cloned %q instead", branch, describeBranch(b)))
			}
			return nil
		}
		lastErr = fmt.Errorf("%s: %w", describeBranch(b), errWithOutput(err, out))
	}

	// Final attempt: clone without specifying a branch at all, taking
	// whatever the remote's default is.
	if err := wipe(workspace); err != nil {
		return fmt.Errorf("wiping workspace before default clone attempt: %w", err)
	}
	out, err := runGitClone(ctx, workspace, repoURL, "")
	if err == nil {
		log("warn", fmt.Sprintf("branch %q not found, cloned the repository default branch instead", branch))
		return nil
	}

	finalErr := errWithOutput(err, out)
	return apperr.NewRetryable(apperr.CloneErrorKind, "repository not reachable or no resolvable branch").
		WithDetail(fmt.Sprintf("first attempt: %v; final attempt: %v", lastErr, finalErr))
}

// candidateBranches returns the requested branch followed by the fallback
// list, skipping the requested branch if it duplicates a fallback entry.
func candidateBranches(requested string) []string {
	out := []string{requested}
	for _, b := range fallbackBranches {
		if b != requested {
			out = append(out, b)
		}
	}
	return out
}

func describeBranch(b string) string {
	if b == "" {
		return "<default>"
	}
	return b
}

func runGitClone(ctx context.Context, workspace, repoURL, branch string) ([]byte, error) {
	args := []string{"clone", "--depth", "1"}
	if branch != "" {
		args = append(args, "--branch", branch)
	}
	args = append(args, repoURL, workspace)

	cmd := exec.CommandContext(ctx, "git", args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.Bytes(), err
}

func errWithOutput(err error, out []byte) error {
	trimmed := strings.TrimSpace(string(out))
	if trimmed == "" {
		return err
	}
	return fmt.Errorf("%w: %s", err, trimmed)
}
