package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeline/forgeline/config"
	"github.com/forgeline/forgeline/environment"
	"github.com/forgeline/forgeline/event"
	"github.com/forgeline/forgeline/model"
)

func resetGlobals(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		model.ResetGlobal()
		environment.ResetGlobal()
	})
}

func TestNewSequentialAppWiresAllRoles(t *testing.T) {
	resetGlobals(t)

	env := &environment.Config{Kind: environment.KindCluster, Mode: environment.ModeSequential}
	app := newSequentialApp(config.DefaultConfig(), env, newLogger("error"))
	t.Cleanup(app.reporter.Close)

	for _, role := range event.Agents {
		assert.Contains(t, app.adapters, role, string(role))
	}
	assert.NotNil(t, app.orch)
	assert.NotNil(t, app.tasks)
}

func TestRootCmdSubcommands(t *testing.T) {
	cmd := rootCmd()

	names := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{"serve", "submit", "env", "version"} {
		assert.True(t, names[want], want)
	}
}

func TestSetupLoadsConfigFile(t *testing.T) {
	resetGlobals(t)

	path := filepath.Join(t.TempDir(), "forgeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pipeline:\n  max_code_attempts: 3\n"), 0o644))

	cfg, env, logger, err := setup(path, "error")
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Pipeline.MaxCodeAttempts)
	assert.NotNil(t, env)
	assert.NotNil(t, logger)
}

func TestSetupRejectsInvalidConfig(t *testing.T) {
	resetGlobals(t)

	path := filepath.Join(t.TempDir(), "forgeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte("model:\n  temperature: 3.0\n"), 0o644))

	_, _, _, err := setup(path, "error")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "temperature")
}
