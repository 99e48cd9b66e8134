// Package vcs provides the git operations the pipeline performs on its
// workspace: branching per task, committing attempts, and reading back the
// resulting refs.
package vcs

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

// conventionalCommitPattern matches conventional commit format.
var conventionalCommitPattern = regexp.MustCompile(`^(feat|fix|docs|style|refactor|test|chore|perf|ci|build|revert)(\([a-zA-Z0-9_-]+\))?: .+`)

// ValidateConventionalCommit checks if a message follows conventional commit
// format.
func ValidateConventionalCommit(message string) bool {
	return conventionalCommitPattern.MatchString(message)
}

// runFunc executes a git command in a directory and returns combined output.
type runFunc func(ctx context.Context, dir string, args ...string) (string, error)

// Git performs git operations rooted at a workspace directory.
type Git struct {
	root string
	run  runFunc
}

// NewGit creates a git handle for the given workspace root.
func NewGit(root string) *Git {
	return &Git{
		root: root,
		run:  runGit,
	}
}

// withRun replaces the command runner (test seam).
func (g *Git) withRun(run runFunc) *Git {
	g.run = run
	return g
}

// Root returns the workspace root.
func (g *Git) Root() string {
	return g.root
}

// IsRepo reports whether the workspace root is inside a git repository.
func (g *Git) IsRepo(ctx context.Context) bool {
	_, err := g.run(ctx, g.root, "rev-parse", "--git-dir")
	return err == nil
}

// CurrentBranch returns the checked-out branch name.
func (g *Git) CurrentBranch(ctx context.Context) (string, error) {
	out, err := g.run(ctx, g.root, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", fmt.Errorf("current branch: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// Head returns the short hash of HEAD.
func (g *Git) Head(ctx context.Context) (string, error) {
	out, err := g.run(ctx, g.root, "rev-parse", "--short", "HEAD")
	if err != nil {
		return "", fmt.Errorf("resolve HEAD: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// CreateBranch creates and checks out a branch, or switches to it when it
// already exists.
func (g *Git) CreateBranch(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("branch name is required")
	}

	if g.branchExists(ctx, name) {
		if _, err := g.run(ctx, g.root, "checkout", name); err != nil {
			return fmt.Errorf("switch branch %s: %w", name, err)
		}
		return nil
	}

	if _, err := g.run(ctx, g.root, "checkout", "-b", name); err != nil {
		return fmt.Errorf("create branch %s: %w", name, err)
	}
	return nil
}

// Commit stages all tracked changes and commits them, returning the short
// commit hash. The message must follow conventional commit format. Committing
// with no staged changes is an error.
func (g *Git) Commit(ctx context.Context, message string) (string, error) {
	if message == "" {
		return "", fmt.Errorf("commit message is required")
	}
	if !ValidateConventionalCommit(message) {
		return "", fmt.Errorf("commit message does not follow conventional commit format: %s", message)
	}

	if _, err := g.run(ctx, g.root, "add", "-A"); err != nil {
		return "", fmt.Errorf("stage changes: %w", err)
	}

	staged, _ := g.run(ctx, g.root, "diff", "--cached", "--name-only")
	if strings.TrimSpace(staged) == "" {
		return "", fmt.Errorf("nothing to commit (no staged changes)")
	}

	if _, err := g.run(ctx, g.root, "commit", "-m", message); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}

	return g.Head(ctx)
}

// ChangedFiles returns the files touched by the HEAD commit.
func (g *Git) ChangedFiles(ctx context.Context) ([]string, error) {
	out, err := g.run(ctx, g.root, "diff-tree", "--no-commit-id", "--name-only", "-r", "HEAD")
	if err != nil {
		return nil, fmt.Errorf("list changed files: %w", err)
	}

	var files []string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}

func (g *Git) branchExists(ctx context.Context, name string) bool {
	_, err := g.run(ctx, g.root, "show-ref", "--verify", "--quiet", "refs/heads/"+name)
	return err == nil
}

// runGit executes a git command and returns combined output.
func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir

	output, err := cmd.CombinedOutput()
	if err != nil {
		return string(output), fmt.Errorf("%w: %s", err, string(output))
	}
	return string(output), nil
}
