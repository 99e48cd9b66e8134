package vcs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
}

func TestMatchArtifacts(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go")
	writeFile(t, root, "internal/api/handler.go")
	writeFile(t, root, "go.mod")
	writeFile(t, root, "deploy/app.yaml")
	writeFile(t, root, "README.md")

	artifacts, err := MatchArtifacts(root, nil)
	require.NoError(t, err)

	assert.Contains(t, artifacts, "main.go")
	assert.Contains(t, artifacts, "internal/api/handler.go")
	assert.Contains(t, artifacts, "go.mod")
	assert.Contains(t, artifacts, "deploy/app.yaml")
	assert.NotContains(t, artifacts, "README.md")
}

func TestMatchArtifactsCustomPatternsAndDedup(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "cmd/app/main.go")

	artifacts, err := MatchArtifacts(root, []string{"**/*.go", "cmd/**/*.go"})
	require.NoError(t, err)
	assert.Equal(t, []string{"cmd/app/main.go"}, artifacts, "overlapping patterns must not duplicate")
}

func TestMatchArtifactsSkipsDirectories(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "pkg.go"), 0755))
	writeFile(t, root, "real.go")

	artifacts, err := MatchArtifacts(root, []string{"**/*.go"})
	require.NoError(t, err)
	assert.Equal(t, []string{"real.go"}, artifacts)
}
