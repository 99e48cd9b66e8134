package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/forgeline/forgeline/event"
)

// Explorer scans a workspace and reports its stack. All detection is
// deterministic file-presence logic; the explorer never calls an LLM.
type Explorer struct{}

// NewExplorer creates the explorer role.
func NewExplorer() *Explorer { return &Explorer{} }

// Role implements Runner.
func (e *Explorer) Role() event.Actor { return event.ActorExplorer }

// Run implements Runner.
func (e *Explorer) Run(_ context.Context, in Input) (*Result, error) {
	if in.Workspace == "" {
		return nil, fmt.Errorf("explorer: workspace path is required")
	}
	if info, err := os.Stat(in.Workspace); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("explorer: workspace %s is not a directory", in.Workspace)
	}

	languages := detectLanguages(in.Workspace)
	frameworks := detectFrameworks(in.Workspace)
	tooling := detectTooling(in.Workspace)

	summary := fmt.Sprintf("scan found %d languages, %d frameworks, %d tools",
		len(languages), len(frameworks), len(tooling))

	return &Result{
		Summary: summary,
		Payload: &event.ExplorerScanCompletedPayload{
			Languages:  languages,
			Frameworks: frameworks,
			Tooling:    tooling,
		},
		Artifact: in.Artifact,
	}, nil
}

// languageMarkers maps canonical marker files to language names, checked in
// order. TypeScript is handled separately so package.json alone does not
// claim both TypeScript and JavaScript.
var languageMarkers = []struct {
	marker string
	name   string
}{
	{"go.mod", "Go"},
	{"pyproject.toml", "Python"},
	{"requirements.txt", "Python"},
	{"setup.py", "Python"},
	{"Cargo.toml", "Rust"},
	{"pom.xml", "Java"},
	{"build.gradle", "Java"},
	{"composer.json", "PHP"},
	{"Gemfile", "Ruby"},
}

// skippedDirs are subdirectories never scanned for markers.
var skippedDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	".git":         true,
	"dist":         true,
	"build":        true,
	"__pycache__":  true,
}

// detectLanguages checks marker files at the workspace root, then one level
// of subdirectories for monorepo layouts. Each language is reported once.
func detectLanguages(root string) []string {
	var languages []string
	seen := make(map[string]bool)

	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			languages = append(languages, name)
		}
	}

	dirs := []string{root}
	entries, err := os.ReadDir(root)
	if err == nil {
		for _, entry := range entries {
			name := entry.Name()
			if !entry.IsDir() || strings.HasPrefix(name, ".") || skippedDirs[name] {
				continue
			}
			dirs = append(dirs, filepath.Join(root, name))
		}
	}

	for _, dir := range dirs {
		for _, lm := range languageMarkers {
			if fileExists(filepath.Join(dir, lm.marker)) {
				add(lm.name)
			}
		}
		switch {
		case fileExists(filepath.Join(dir, "tsconfig.json")):
			add("TypeScript")
		case hasPackageJSONDep(dir, "typescript"):
			add("TypeScript")
		case fileExists(filepath.Join(dir, "package.json")):
			add("JavaScript")
		}
	}

	return languages
}

// frameworkCandidates are checked per package.json in priority order;
// SvelteKit precedes Svelte so a kit project is not reported twice.
var frameworkCandidates = []struct {
	dep  string
	name string
}{
	{"@sveltejs/kit", "SvelteKit"},
	{"svelte", "Svelte"},
	{"next", "Next.js"},
	{"react", "React"},
	{"vue", "Vue"},
	{"@angular/core", "Angular"},
	{"express", "Express"},
}

// detectFrameworks inspects package.json dependencies at the root and one
// level of subdirectories.
func detectFrameworks(root string) []string {
	var frameworks []string
	seen := make(map[string]bool)

	dirs := []string{root}
	entries, err := os.ReadDir(root)
	if err == nil {
		for _, entry := range entries {
			name := entry.Name()
			if !entry.IsDir() || strings.HasPrefix(name, ".") || skippedDirs[name] {
				continue
			}
			dirs = append(dirs, filepath.Join(root, name))
		}
	}

	for _, dir := range dirs {
		for _, c := range frameworkCandidates {
			if seen[c.name] || !hasPackageJSONDep(dir, c.dep) {
				continue
			}
			seen[c.name] = true
			frameworks = append(frameworks, c.name)
			if c.dep == "@sveltejs/kit" {
				seen["Svelte"] = true
			}
		}
	}

	return frameworks
}

// toolMarkers map marker files at the workspace root to tool names.
var toolMarkers = []struct {
	marker string
	name   string
}{
	{"Taskfile.yml", "Taskfile"},
	{"Makefile", "Make"},
	{"Justfile", "Just"},
	{".golangci.yml", "golangci-lint"},
	{".golangci.yaml", "golangci-lint"},
	{"docker-compose.yml", "Docker Compose"},
	{"docker-compose.yaml", "Docker Compose"},
	{"Dockerfile", "Docker"},
	{"pytest.ini", "Pytest"},
	{"jest.config.js", "Jest"},
	{"vitest.config.ts", "Vitest"},
}

// detectTooling checks for marker files of known development tools.
func detectTooling(root string) []string {
	var tools []string
	seen := make(map[string]bool)

	for _, tm := range toolMarkers {
		if seen[tm.name] || !fileExists(filepath.Join(root, tm.marker)) {
			continue
		}
		seen[tm.name] = true
		tools = append(tools, tm.name)
	}

	if info, err := os.Stat(filepath.Join(root, ".github", "workflows")); err == nil && info.IsDir() {
		tools = append(tools, "GitHub Actions")
	}

	return tools
}

// fileExists reports whether path exists and is a regular file.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// hasPackageJSONDep reports whether the named package appears in any
// dependency map of the directory's package.json. Missing or malformed
// files produce no detection output rather than errors.
func hasPackageJSONDep(dir, dep string) bool {
	data, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if err != nil {
		return false
	}
	var pkg struct {
		Dependencies    map[string]string `json:"dependencies"`
		DevDependencies map[string]string `json:"devDependencies"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return false
	}
	for _, deps := range []map[string]string{pkg.Dependencies, pkg.DevDependencies} {
		for name := range deps {
			if name == dep || strings.HasPrefix(name, dep+"/") {
				return true
			}
		}
	}
	return false
}
