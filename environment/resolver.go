// Package environment resolves the runtime deployment environment and the
// orchestration mode that follows from it. All detection is deterministic
// file-presence logic; missing or unreadable markers simply fall through to
// the next check rather than producing errors.
package environment

import (
	"log/slog"
	"os"
	"path/filepath"
)

// Kind classifies the detected deployment environment.
type Kind string

const (
	// KindDesktop is a developer machine with the full infrastructure stack
	// (container runtime, durable bus, audit store) available.
	KindDesktop Kind = "desktop"

	// KindCluster is a managed runtime where forgeline only gets compute:
	// no bus, no audit store, no version control, no preview hosting.
	KindCluster Kind = "cluster"
)

// Mode selects the orchestration strategy.
type Mode string

const (
	ModeSequential  Mode = "sequential"
	ModeEventDriven Mode = "event_driven"
)

// Dependencies holds per-dependency availability flags for the resolved
// environment.
type Dependencies struct {
	Bus            bool `json:"bus"`
	AuditStore     bool `json:"audit_store"`
	VersionControl bool `json:"version_control"`
	PreviewHosting bool `json:"preview_hosting"`
}

// Config is the immutable result of environment resolution. Orchestration
// mode is a pure function of the environment kind.
type Config struct {
	Kind Kind         `json:"kind"`
	Mode Mode         `json:"mode"`
	Deps Dependencies `json:"dependencies"`
}

// EventDriven reports whether the event-driven orchestration path applies.
func (c *Config) EventDriven() bool {
	return c.Mode == ModeEventDriven
}

// Detection markers, checked in order. First match wins.
const (
	dockerSocketPath      = "/var/run/docker.sock"
	dockerMarkerPath      = "/.dockerenv"
	clusterServiceAccount = "/var/run/secrets/kubernetes.io/serviceaccount"
	supervisorConfigDir   = "/etc/supervisor/conf.d"
)

// Resolver inspects the filesystem for deployment markers and produces a
// Config. The root is configurable so tests can point it at a scratch
// directory instead of the real filesystem.
type Resolver struct {
	root   string
	logger *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithRoot scopes all marker checks under the given directory.
func WithRoot(root string) Option {
	return func(r *Resolver) {
		r.root = root
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// NewResolver constructs a Resolver over the real filesystem root.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve inspects the environment and returns the resolved configuration.
// It cannot fail: absence of every marker falls through to the conservative
// cluster default.
func (r *Resolver) Resolve() *Config {
	kind := r.detectKind()

	cfg := &Config{Kind: kind}
	switch kind {
	case KindDesktop:
		cfg.Mode = ModeEventDriven
		cfg.Deps = Dependencies{
			Bus:            true,
			AuditStore:     true,
			VersionControl: true,
			PreviewHosting: true,
		}
	default:
		cfg.Mode = ModeSequential
		cfg.Deps = Dependencies{}
	}

	r.logger.Info("Resolved environment",
		"kind", cfg.Kind,
		"mode", cfg.Mode,
		"bus", cfg.Deps.Bus)

	return cfg
}

// detectKind applies the marker checks in priority order.
func (r *Resolver) detectKind() Kind {
	if r.exists(dockerSocketPath) {
		return KindDesktop
	}
	if r.exists(dockerMarkerPath) {
		return KindDesktop
	}
	if r.exists(clusterServiceAccount) {
		return KindCluster
	}
	if r.exists(supervisorConfigDir) {
		return KindCluster
	}
	// Fail-safe: the infra-light mode.
	return KindCluster
}

func (r *Resolver) exists(marker string) bool {
	_, err := os.Stat(filepath.Join(r.root, marker))
	return err == nil
}
