package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/colorfulnotion/regwin/wvm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wvm.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, uint32(wvm.DefaultBudget), cfg.Machine.Budget)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	path := writeFile(t, `
[machine]
budget = 100000

[log]
level = "debug"
modules = ["wvm", "storage_mod"]

[trace]
output = "-"
calltree = true

[storage]
path = "/tmp/images"

[telemetry]
endpoint = "localhost:9000"
otlp-endpoint = "localhost:4318"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(100000), cfg.Machine.Budget)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, []string{"wvm", "storage_mod"}, cfg.Log.Modules)
	assert.Equal(t, "-", cfg.Trace.Output)
	assert.True(t, cfg.Trace.CallTree)
	assert.Equal(t, "/tmp/images", cfg.Storage.Path)
	assert.Equal(t, "localhost:9000", cfg.Telemetry.Endpoint)
	assert.Equal(t, "localhost:4318", cfg.Telemetry.OTLPEndpoint)
}

func TestLoadKeepsDefaults(t *testing.T) {
	cfg, err := Load(writeFile(t, "[storage]\npath = \"db\"\n"))
	require.NoError(t, err)
	assert.Equal(t, uint32(wvm.DefaultBudget), cfg.Machine.Budget)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "db", cfg.Storage.Path)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "[machine\n"))
	assert.ErrorContains(t, err, "parse error")

	_, err = Load(writeFile(t, "[machine]\nbudget = 0\n"))
	assert.ErrorContains(t, err, "machine.budget")

	_, err = Load(writeFile(t, "[log]\nlevel = \"chatty\"\n"))
	assert.ErrorContains(t, err, "log.level")
}

func TestLoadDefaultFileMissing(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}
