package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/forgeline/forgeline/event"
	"github.com/forgeline/forgeline/llm"
	"github.com/forgeline/forgeline/vcs"
)

const coderSystemPrompt = `You are the coding agent of a software delivery pipeline.
Given the requirements and the architecture, produce the implementation and
describe the resulting change set.

Respond with a JSON object:
{
  "branch": "task/short-name",
  "commit_message": "feat: conventional commit subject",
  "files_changed": 7,
  "lines_added": 240,
  "coverage_estimate": 78.5,
  "summary": "one paragraph describing the change set"
}`

// Coder produces a coding attempt. When a git workspace is attached the
// attempt is committed on a task branch; otherwise the change set is
// summarized from the model output alone.
type Coder struct {
	llm    Completer
	git    *vcs.Git
	params Params
	logger *slog.Logger
}

// CoderOption configures a Coder.
type CoderOption func(*Coder)

// WithCoderGit attaches a git workspace so attempts are committed.
func WithCoderGit(g *vcs.Git) CoderOption {
	return func(c *Coder) { c.git = g }
}

// WithCoderLogger sets the logger.
func WithCoderLogger(logger *slog.Logger) CoderOption {
	return func(c *Coder) { c.logger = logger }
}

// NewCoder creates the coder role.
func NewCoder(c Completer, params Params, opts ...CoderOption) *Coder {
	coder := &Coder{llm: c, params: params, logger: slog.Default()}
	for _, opt := range opts {
		opt(coder)
	}
	return coder
}

// Role implements Runner.
func (c *Coder) Role() event.Actor { return event.ActorCoder }

// Run implements Runner.
func (c *Coder) Run(ctx context.Context, in Input) (*Result, error) {
	attempt := in.Attempt
	if attempt < 1 {
		attempt = 1
	}

	user := fmt.Sprintf("Requirements:\n%s\n\nArchitecture:\n%s", in.Requirements, in.Context)
	if in.Feedback != "" {
		user += fmt.Sprintf("\n\nThe previous attempt failed its tests. Rework attempt %d. Test feedback:\n%s",
			attempt, in.Feedback)
	}

	resp, err := c.llm.Complete(ctx, c.params.request(event.ActorCoder, []llm.Message{
		{Role: "system", Content: coderSystemPrompt},
		{Role: "user", Content: user},
	}))
	if err != nil {
		return nil, fmt.Errorf("coder: %w", err)
	}

	var out struct {
		Branch           string  `json:"branch"`
		CommitMessage    string  `json:"commit_message"`
		FilesChanged     int     `json:"files_changed"`
		LinesAdded       int     `json:"lines_added"`
		CoverageEstimate float64 `json:"coverage_estimate"`
		Summary          string  `json:"summary"`
	}
	if err := json.Unmarshal([]byte(llm.ExtractJSON(resp.Content)), &out); err != nil {
		return nil, fmt.Errorf("coder: parse change set: %w", err)
	}

	branch := out.Branch
	if branch == "" {
		branch = "task/" + shortID(in.TaskID)
	}
	if out.FilesChanged < 0 {
		out.FilesChanged = 0
	}
	if out.LinesAdded < 0 {
		out.LinesAdded = 0
	}
	if out.CoverageEstimate < 0 {
		out.CoverageEstimate = 0
	}
	if out.CoverageEstimate > 100 {
		out.CoverageEstimate = 100
	}

	commit := shortID(uuid.New().String())
	filesChanged := out.FilesChanged
	if c.git != nil {
		msg := out.CommitMessage
		if !vcs.ValidateConventionalCommit(msg) {
			msg = "feat: " + firstLine(out.Summary)
		}
		hash, files, err := c.commitAttempt(ctx, branch, msg)
		if err != nil {
			// The workspace commit is best-effort: the pipeline carries the
			// summarized change set either way.
			c.logger.Warn("Workspace commit failed, keeping summarized change set",
				"task_id", in.TaskID,
				"branch", branch,
				"error", err)
		} else {
			commit = hash
			if files > 0 {
				filesChanged = files
			}
		}
	}

	art := in.Artifact
	art.Branch = branch
	art.Commit = commit

	return &Result{
		Summary: out.Summary,
		Payload: &event.CodePROpenedPayload{
			Branch:           branch,
			Commit:           commit,
			FilesChanged:     filesChanged,
			LinesAdded:       out.LinesAdded,
			CoverageEstimate: out.CoverageEstimate,
			Attempt:          attempt,
		},
		Artifact: art,
		Cost:     resp.Cost,
	}, nil
}

// commitAttempt creates the task branch and commits the working tree.
func (c *Coder) commitAttempt(ctx context.Context, branch, message string) (string, int, error) {
	if err := c.git.CreateBranch(ctx, branch); err != nil {
		return "", 0, err
	}
	hash, err := c.git.Commit(ctx, message)
	if err != nil {
		return "", 0, err
	}
	files, err := c.git.ChangedFiles(ctx)
	if err != nil {
		return hash, 0, nil
	}
	return hash, len(files), nil
}

// shortID truncates an id to its first segment for branch and commit labels.
func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
