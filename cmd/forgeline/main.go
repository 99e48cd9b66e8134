// Package main provides the forgeline binary entry point.
// Forgeline is a multi-agent software generation pipeline: planner,
// architect, coder, tester, reviewer, and deployer roles turn natural
// language requirements into reviewed, deployed code.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/forgeline/forgeline/config"
	"github.com/forgeline/forgeline/environment"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "forgeline"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Multi-agent software generation pipeline",
		Long: `Forgeline turns natural language requirements into reviewed, deployed
code through a pipeline of specialized agent roles.

On a developer machine with the full infrastructure stack the roles
communicate over NATS JetStream; in infra-light environments the same
roles run sequentially in-process. The environment is detected
automatically and both modes produce the same results.`,
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(serveCmd(&configPath, &logLevel))
	cmd.AddCommand(submitCmd(&configPath, &logLevel))
	cmd.AddCommand(envCmd(&logLevel))
	cmd.AddCommand(versionCmd())

	return cmd
}

func serveCmd(configPath, logLevel *string) *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the event-driven pipeline workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, env, logger, err := setup(*configPath, *logLevel)
			if err != nil {
				return err
			}
			if !env.EventDriven() {
				return fmt.Errorf("serve requires the event-driven environment, resolved %s; use submit instead", env.Kind)
			}

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			app, res, err := newEventApp(ctx, cfg, env, logger)
			if err != nil {
				return err
			}
			defer res.Close()

			return runServe(ctx, app, res, metricsAddr)
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "Prometheus metrics listen address")
	return cmd
}

func submitCmd(configPath, logLevel *string) *cobra.Command {
	var (
		taskID    string
		projectID string
	)

	cmd := &cobra.Command{
		Use:   "submit [requirements...]",
		Short: "Submit a task to the pipeline",
		Long: `Submit persists a new task and drives it according to the resolved
environment: sequentially in-process, or by publishing a task.initiated
event for the serve workers to pick up.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, env, logger, err := setup(*configPath, *logLevel)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			var app *App
			if env.EventDriven() {
				var res *natsResources
				app, res, err = newEventApp(ctx, cfg, env, logger)
				if err != nil {
					return err
				}
				defer res.Close()
			} else {
				app = newSequentialApp(cfg, env, logger)
			}
			defer app.reporter.Close()

			if taskID == "" {
				taskID = uuid.New().String()
			}
			if projectID == "" {
				projectID = filepath.Base(cfg.Repo.Path)
			}
			requirements := strings.Join(args, " ")

			result, execErr := app.orch.ExecuteTask(ctx, taskID, projectID, requirements)
			if result != nil {
				out, err := json.MarshalIndent(result, "", "  ")
				if err != nil {
					return fmt.Errorf("encode result: %w", err)
				}
				fmt.Println(string(out))
			}
			return execErr
		},
	}

	cmd.Flags().StringVar(&taskID, "task-id", "", "Task ID (generated if empty)")
	cmd.Flags().StringVar(&projectID, "project", "", "Project ID (defaults to the repo directory name)")
	return cmd
}

func envCmd(logLevel *string) *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Print the resolved environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(*logLevel)
			env := environment.NewResolver(environment.WithLogger(logger)).Resolve()

			out, err := json.MarshalIndent(env, "", "  ")
			if err != nil {
				return fmt.Errorf("encode environment: %w", err)
			}
			fmt.Println(string(out))
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	}
}

// setup configures logging, loads layered configuration, and resolves the
// runtime environment.
func setup(configPath, logLevel string) (*config.Config, *environment.Config, *slog.Logger, error) {
	logger := newLogger(logLevel)
	slog.SetDefault(logger)

	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFromFile(configPath)
		if err == nil {
			err = cfg.Validate()
		}
	} else {
		cfg, err = config.NewLoader(logger).Load()
	}
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	env := environment.NewResolver(environment.WithLogger(logger)).Resolve()
	return cfg, env, logger, nil
}

func newLogger(logLevel string) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
