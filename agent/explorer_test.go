package agent

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeline/forgeline/event"
)

func writeWorkspaceFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestExplorerScansPolyglotWorkspace(t *testing.T) {
	root := t.TempDir()
	writeWorkspaceFile(t, root, "go.mod", "module example\n\ngo 1.24\n")
	writeWorkspaceFile(t, root, "Makefile", "test:\n\tgo test ./...\n")
	writeWorkspaceFile(t, root, "Dockerfile", "FROM golang:1.24\n")
	writeWorkspaceFile(t, root, "ui/package.json", `{"dependencies": {"react": "^18.0.0"}}`)
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".github", "workflows"), 0755))

	e := NewExplorer()
	res, err := e.Run(context.Background(), Input{TaskID: "task-1", Workspace: root})
	require.NoError(t, err)

	payload, ok := res.Payload.(*event.ExplorerScanCompletedPayload)
	require.True(t, ok)
	assert.Contains(t, payload.Languages, "Go")
	assert.Contains(t, payload.Languages, "JavaScript")
	assert.Contains(t, payload.Frameworks, "React")
	assert.Contains(t, payload.Tooling, "Make")
	assert.Contains(t, payload.Tooling, "Docker")
	assert.Contains(t, payload.Tooling, "GitHub Actions")
	assert.Zero(t, res.Cost, "explorer makes no LLM calls")
}

func TestExplorerPrefersTypeScriptOverJavaScript(t *testing.T) {
	root := t.TempDir()
	writeWorkspaceFile(t, root, "tsconfig.json", "{}")
	writeWorkspaceFile(t, root, "package.json", `{"devDependencies": {"typescript": "^5.0.0"}}`)

	e := NewExplorer()
	res, err := e.Run(context.Background(), Input{TaskID: "task-1", Workspace: root})
	require.NoError(t, err)

	payload := res.Payload.(*event.ExplorerScanCompletedPayload)
	assert.Contains(t, payload.Languages, "TypeScript")
	assert.NotContains(t, payload.Languages, "JavaScript")
}

func TestExplorerSvelteKitShadowsSvelte(t *testing.T) {
	root := t.TempDir()
	writeWorkspaceFile(t, root, "package.json",
		`{"devDependencies": {"@sveltejs/kit": "^2.0.0", "svelte": "^4.0.0"}}`)

	e := NewExplorer()
	res, err := e.Run(context.Background(), Input{TaskID: "task-1", Workspace: root})
	require.NoError(t, err)

	payload := res.Payload.(*event.ExplorerScanCompletedPayload)
	assert.Contains(t, payload.Frameworks, "SvelteKit")
	assert.NotContains(t, payload.Frameworks, "Svelte")
}

func TestExplorerSkipsDependencyDirectories(t *testing.T) {
	root := t.TempDir()
	writeWorkspaceFile(t, root, "node_modules/left-pad/Cargo.toml", "")

	e := NewExplorer()
	res, err := e.Run(context.Background(), Input{TaskID: "task-1", Workspace: root})
	require.NoError(t, err)

	payload := res.Payload.(*event.ExplorerScanCompletedPayload)
	assert.NotContains(t, payload.Languages, "Rust")
}

func TestExplorerRequiresWorkspace(t *testing.T) {
	e := NewExplorer()

	_, err := e.Run(context.Background(), Input{TaskID: "task-1"})
	require.Error(t, err)

	_, err = e.Run(context.Background(), Input{TaskID: "task-1", Workspace: "/nonexistent/path"})
	require.Error(t, err)
}

func TestExplorerMalformedPackageJSON(t *testing.T) {
	root := t.TempDir()
	writeWorkspaceFile(t, root, "package.json", "{not json")

	e := NewExplorer()
	res, err := e.Run(context.Background(), Input{TaskID: "task-1", Workspace: root})
	require.NoError(t, err, "malformed files produce no detection output, not errors")

	payload := res.Payload.(*event.ExplorerScanCompletedPayload)
	assert.Empty(t, payload.Frameworks)
}
