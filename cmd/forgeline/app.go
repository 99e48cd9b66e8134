package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	// Register LLM providers via init()
	_ "github.com/forgeline/forgeline/llm/providers"

	"github.com/forgeline/forgeline/agent"
	"github.com/forgeline/forgeline/bus"
	"github.com/forgeline/forgeline/config"
	"github.com/forgeline/forgeline/environment"
	"github.com/forgeline/forgeline/event"
	"github.com/forgeline/forgeline/llm"
	"github.com/forgeline/forgeline/model"
	"github.com/forgeline/forgeline/orchestrator"
	"github.com/forgeline/forgeline/progress"
	"github.com/forgeline/forgeline/store"
	"github.com/forgeline/forgeline/vcs"
	"github.com/forgeline/forgeline/watch"
)

// App holds one process's worth of wired pipeline components. The backing
// store and publisher are chosen by the caller: in-memory and no-op for the
// sequential environment, JetStream-backed when the bus is available.
type App struct {
	cfg    *config.Config
	env    *environment.Config
	logger *slog.Logger

	tasks    *store.TaskStore
	adapters map[event.Actor]*agent.Adapter
	reporter *progress.Reporter
	orch     *orchestrator.Orchestrator
}

// newApp builds the role runners, adapters, and orchestrator on top of the
// given backing store and publisher. A non-nil progressPublish adds live
// progress streaming over the bus.
func newApp(cfg *config.Config, env *environment.Config, backing store.Store,
	publisher bus.Publisher, progressPublish progress.PublishFunc, logger *slog.Logger) *App {

	registry := cfg.Registry()
	model.InitGlobal(registry)
	environment.InitGlobal(env)

	client := llm.NewClient(registry, llm.WithLogger(logger))
	params := agent.Params{Temperature: cfg.Model.Temperature}

	tasks := store.NewTaskStore(backing)

	sinks := []progress.Sink{progress.NewStoreSink(backing)}
	if progressPublish != nil {
		sinks = append(sinks, progress.NewBusSink(cfg.Pipeline.Namespace, progressPublish))
	}
	reporter := progress.NewReporter(cfg.Progress.BufferSize, sinks,
		progress.WithReporterLogger(logger))

	workspace := cfg.Repo.Path

	coderOpts := []agent.CoderOption{agent.WithCoderLogger(logger)}
	if env.Deps.VersionControl && workspace != "" {
		coderOpts = append(coderOpts, agent.WithCoderGit(vcs.NewGit(workspace)))
	}

	deployWorkspace := ""
	if env.Deps.PreviewHosting {
		deployWorkspace = workspace
	}

	runners := []agent.Runner{
		agent.NewPlanner(client, backing, params),
		agent.NewArchitect(client, params),
		agent.NewCoder(client, params, coderOpts...),
		agent.NewTester(client, params),
		agent.NewReviewer(client, params),
		agent.NewDeployer(deployWorkspace, "staging"),
		agent.NewExplorer(),
	}

	adapters := make(map[event.Actor]*agent.Adapter, len(runners))
	ordered := make([]*agent.Adapter, 0, len(runners))
	for _, r := range runners {
		a := agent.NewAdapter(r, tasks,
			agent.WithReporter(reporter),
			agent.WithAdapterLogger(logger),
			agent.WithWorkspace(workspace))
		adapters[r.Role()] = a
		ordered = append(ordered, a)
	}

	executor := orchestrator.NewSequentialExecutor(tasks, ordered,
		orchestrator.SequentialConfig{
			MaxCodeAttempts: cfg.Pipeline.MaxCodeAttempts,
			PhasePause:      cfg.Pipeline.PhasePause,
		},
		orchestrator.WithSequentialLogger(logger))

	orch := orchestrator.New(env, tasks, executor, publisher,
		orchestrator.WithLogger(logger))

	return &App{
		cfg:      cfg,
		env:      env,
		logger:   logger,
		tasks:    tasks,
		adapters: adapters,
		reporter: reporter,
		orch:     orch,
	}
}

// newSequentialApp wires the infra-light variant: in-memory store, no bus.
func newSequentialApp(cfg *config.Config, env *environment.Config, logger *slog.Logger) *App {
	return newApp(cfg, env, store.NewMemoryStore(), bus.NoopPublisher{}, nil, logger)
}

// natsResources bundles the connections an event-driven App holds.
type natsResources struct {
	nc        *nats.Conn
	js        jetstream.JetStream
	publisher *bus.JetStreamPublisher
}

// Close releases the connections.
func (r *natsResources) Close() {
	if r.publisher != nil {
		r.publisher.Close()
	}
	if r.nc != nil {
		r.nc.Close()
	}
}

// connectNATS dials the bus, ensures the event stream exists, and returns
// the shared connections.
func connectNATS(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*natsResources, error) {
	logger.Info("Connecting to NATS", "url", cfg.NATS.URL)

	nc, err := nats.Connect(cfg.NATS.URL,
		nats.Name("forgeline"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second))
	if err != nil {
		return nil, wrapNATSError(err, cfg.NATS.URL)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	pubCfg := bus.DefaultPublisherConfig()
	pubCfg.URL = cfg.NATS.URL
	pubCfg.Namespace = cfg.Pipeline.Namespace

	res := &natsResources{
		nc:        nc,
		js:        js,
		publisher: bus.NewJetStreamPublisher(pubCfg, bus.WithPublisherLogger(logger)),
	}

	topo := bus.DefaultTopologyConfig()
	topo.Namespace = cfg.Pipeline.Namespace
	if _, err := bus.EnsureStream(ctx, js, topo); err != nil {
		res.Close()
		return nil, err
	}

	logger.Info("Event stream ready",
		"stream", topo.StreamName,
		"namespace", topo.Namespace)
	return res, nil
}

// wrapNATSError adds startup guidance to connection failures.
func wrapNATSError(err error, url string) error {
	return fmt.Errorf(`connect to NATS at %s: %w

NATS is not reachable. Start it with:
  docker compose up -d nats

Or point FORGELINE_NATS_URL at your NATS server.`, url, err)
}

// newEventApp wires the full-infrastructure variant: KV-backed store,
// JetStream publisher, progress streaming over the bus.
func newEventApp(ctx context.Context, cfg *config.Config, env *environment.Config,
	logger *slog.Logger) (*App, *natsResources, error) {

	res, err := connectNATS(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	app := newApp(cfg, env, store.NewKVStore(res.js), res.publisher, res.nc.Publish, logger)
	return app, res, nil
}

// runServe starts one durable consumer per role plus the orchestrator's
// control consumer, the workspace watcher, and the metrics endpoint, then
// blocks until the context is canceled.
func runServe(ctx context.Context, app *App, res *natsResources, metricsAddr string) error {
	cfg := app.cfg
	consumerCfg := bus.ConsumerConfig{
		Namespace: cfg.Pipeline.Namespace,
		AckWait:   cfg.Model.Timeout,
	}

	var wg sync.WaitGroup

	for _, role := range event.Agents {
		handler := agent.NewEventHandler(app.adapters[role], res.publisher, app.tasks,
			agent.WithHandlerLogger(app.logger))
		consumer := bus.NewConsumer(role, res.js, consumerCfg,
			bus.WithConsumerLogger(app.logger))

		wg.Add(1)
		go func(role event.Actor, c *bus.Consumer) {
			defer wg.Done()
			if err := c.StartConsuming(ctx, handler.Handle); err != nil {
				app.logger.Error("Consumer stopped", "role", role, "error", err)
			}
		}(role, consumer)
	}

	control := orchestrator.NewControlHandler(app.tasks,
		orchestrator.WithControlLogger(app.logger))
	controlConsumer := bus.NewConsumer(event.ActorOrchestrator, res.js, consumerCfg,
		bus.WithConsumerLogger(app.logger))

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := controlConsumer.StartConsuming(ctx, control.Handle); err != nil {
			app.logger.Error("Control consumer stopped", "error", err)
		}
	}()

	if cfg.Repo.Path != "" {
		watcher, err := watch.NewWatcher(watch.Config{Root: cfg.Repo.Path}, res.publisher,
			watch.WithLogger(app.logger))
		if err != nil {
			return fmt.Errorf("create workspace watcher: %w", err)
		}
		if err := watcher.Start(ctx); err != nil {
			return err
		}
		defer func() { _ = watcher.Stop() }()
	}

	metricsServer := startMetricsServer(app.logger, metricsAddr)

	app.logger.Info("Forgeline serving",
		"roles", len(event.Agents),
		"namespace", cfg.Pipeline.Namespace,
		"metrics", metricsAddr)

	<-ctx.Done()
	app.logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		app.logger.Warn("Metrics server shutdown", "error", err)
	}

	wg.Wait()
	app.reporter.Close()
	return nil
}

// startMetricsServer exposes Prometheus metrics in the background.
func startMetricsServer(logger *slog.Logger, addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", "addr", addr, "error", err)
		}
	}()
	return srv
}
