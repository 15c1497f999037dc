package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":8645", cfg.RPCAddress)
	require.Equal(t, "./stayer-data", cfg.DataDir)

	// The default file was written and reloads identically.
	_, err = os.Stat(path)
	require.NoError(t, err)
	again, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg, again)
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
RPCAddress = ":9999"
DataDir = "/tmp/stayer"
Environment = "prod"

[genesis]
Owner = "gov"
Keeper = "relay"
InitialPrice = "2500000000"

[feed]
BaseURL = "https://feeds.example.com"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9999", cfg.RPCAddress)
	require.Equal(t, "prod", cfg.Environment)
	require.Equal(t, "gov", cfg.Genesis.Owner)
	require.Equal(t, "https://feeds.example.com", cfg.Feed.BaseURL)
}

func TestLoadRejectsEmptyPath(t *testing.T) {
	_, err := Load("  ")
	require.Error(t, err)
}
