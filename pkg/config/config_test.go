package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAccessPolicyAllowsEverythingWhenEmpty(t *testing.T) {
	var p AccessPolicy
	require.True(t, p.Allows("anything"))
}

func TestAccessPolicyChecksKeyList(t *testing.T) {
	p := AccessPolicy{Keys: []string{"one", "two"}}
	require.True(t, p.Allows("one"))
	require.False(t, p.Allows("three"))
}

func TestLoadParsesSampleConfig(t *testing.T) {
	path := filepath.Join("..", "..", "broker.sample.toml")
	if _, err := os.Stat(path); err != nil {
		t.Skipf("sample config not found: %v", err)
	}
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NotEmpty(t, cfg.Host)
}

func TestLoadRejectsMissingHost(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broker.toml")
	require.NoError(t, os.WriteFile(path, []byte("\n"), 0o644))
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}
