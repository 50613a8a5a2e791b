// File: cmd/root_test.go
package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/browsergate/api/schemas"
	"github.com/xkilldash9x/browsergate/internal/mocks"
	"github.com/xkilldash9x/browsergate/internal/observability"
)

// isolate points config discovery at empty directories and resets globals.
func isolate(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	homedir.DisableCache = true
	cfgFile = ""
	t.Cleanup(func() {
		cfgFile = ""
		homedir.DisableCache = false
		observability.ResetForTest()
	})
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "browsergate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestRootCmd_VersionFlag(t *testing.T) {
	isolate(t)

	out, err := execute(t, "--version")

	require.NoError(t, err)
	assert.Equal(t, Version+"\n", out)
}

func TestVersionCmd(t *testing.T) {
	isolate(t)

	out, err := execute(t, "version")

	require.NoError(t, err)
	assert.Equal(t, "browsergate "+Version+"\n", out)
}

func TestToolsCmd(t *testing.T) {
	isolate(t)

	out, err := execute(t, "tools", "--compact")
	require.NoError(t, err)

	var descriptors []schemas.ToolDescriptor
	require.NoError(t, json.Unmarshal([]byte(out), &descriptors))
	require.Len(t, descriptors, 15)
	assert.Equal(t, "browser_init", descriptors[0].Name)
	assert.Equal(t, "workflow_status", descriptors[14].Name)
	for _, d := range descriptors {
		assert.Equal(t, "object", d.InputSchema["type"], d.Name)
	}
}

func TestInitializeConfig(t *testing.T) {
	t.Run("defaults without a file", func(t *testing.T) {
		isolate(t)

		cfg, err := initializeConfig("")

		require.NoError(t, err)
		assert.Equal(t, "127.0.0.1:8931", cfg.Server().ListenAddr)
		assert.Equal(t, 8, cfg.Engine().MaxSessions)
		assert.Equal(t, 3, cfg.Resilience().Circuit.Threshold)
	})

	t.Run("file in the working directory", func(t *testing.T) {
		isolate(t)
		dir, err := os.Getwd()
		require.NoError(t, err)
		writeConfig(t, dir, "server:\n  listen_addr: 0.0.0.0:9000\nengine:\n  max_sessions: 2\n")

		cfg, err := initializeConfig("")

		require.NoError(t, err)
		assert.Equal(t, "0.0.0.0:9000", cfg.Server().ListenAddr)
		assert.Equal(t, 2, cfg.Engine().MaxSessions)
	})

	t.Run("file in the home directory", func(t *testing.T) {
		isolate(t)
		home := t.TempDir()
		t.Setenv("HOME", home)
		require.NoError(t, os.MkdirAll(filepath.Join(home, configDir), 0o700))
		writeConfig(t, filepath.Join(home, configDir), "workflow:\n  content_max_age: 90s\n")

		cfg, err := initializeConfig("")

		require.NoError(t, err)
		assert.Equal(t, 90*time.Second, cfg.Workflow().ContentMaxAge)
	})

	t.Run("environment overrides the file", func(t *testing.T) {
		isolate(t)
		path := writeConfig(t, t.TempDir(), "engine:\n  max_sessions: 2\n")
		t.Setenv("BROWSERGATE_ENGINE_MAX_SESSIONS", "5")

		cfg, err := initializeConfig(path)

		require.NoError(t, err)
		assert.Equal(t, 5, cfg.Engine().MaxSessions)
	})

	t.Run("explicit file must exist", func(t *testing.T) {
		isolate(t)

		_, err := initializeConfig(filepath.Join(t.TempDir(), "missing.yaml"))

		assert.Error(t, err)
	})

	t.Run("invalid values are rejected", func(t *testing.T) {
		isolate(t)
		path := writeConfig(t, t.TempDir(), "content:\n  budget_units: -1\n")

		_, err := execute(t, "--config", path, "version")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid configuration")
	})
}

func TestApplyServeFlags(t *testing.T) {
	cmd := newServeCmd(&app{})
	require.NoError(t, cmd.ParseFlags([]string{"--listen", "127.0.0.1:0", "--headless=false"}))

	cfg := new(mocks.MockConfig)
	cfg.On("SetServerListenAddr", "127.0.0.1:0").Return().Once()
	cfg.On("SetBrowserHeadless", false).Return().Once()

	applyServeFlags(cmd, cfg, serveFlags{listen: "127.0.0.1:0", headless: false})

	cfg.AssertExpectations(t)
	cfg.AssertNotCalled(t, "SetBrowserRemoteURL", "")
	cfg.AssertNotCalled(t, "SetBrowserExecPath", "")
}
