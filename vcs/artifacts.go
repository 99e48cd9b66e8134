package vcs

import (
	"fmt"
	"io/fs"
	"os"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultArtifactPatterns cover the build outputs and manifests the deployer
// collects from a finished workspace.
var DefaultArtifactPatterns = []string{
	"**/*.go",
	"**/go.mod",
	"**/Dockerfile",
	"**/*.yaml",
	"**/*.yml",
	"**/package.json",
}

// MatchArtifacts returns the workspace-relative paths matching any of the
// glob patterns, deduplicated and sorted. Patterns use doublestar syntax
// ("**" crosses directories).
func MatchArtifacts(root string, patterns []string) ([]string, error) {
	if len(patterns) == 0 {
		patterns = DefaultArtifactPatterns
	}

	fsys := os.DirFS(root)
	seen := make(map[string]struct{})

	for _, pattern := range patterns {
		matches, err := doublestar.Glob(fsys, pattern)
		if err != nil {
			return nil, fmt.Errorf("match pattern %s: %w", pattern, err)
		}
		for _, m := range matches {
			info, err := fs.Stat(fsys, m)
			if err != nil || info.IsDir() {
				continue
			}
			seen[m] = struct{}{}
		}
	}

	artifacts := make([]string, 0, len(seen))
	for m := range seen {
		artifacts = append(artifacts, m)
	}
	sort.Strings(artifacts)
	return artifacts, nil
}
