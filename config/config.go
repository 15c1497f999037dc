package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Genesis seeds the engines on first boot of a fresh data directory.
type Genesis struct {
	Owner        string `toml:"Owner"`
	Keeper       string `toml:"Keeper"`
	InitialPrice string `toml:"InitialPrice"`
	FeedAddress  string `toml:"FeedAddress"`
}

// Feed configures the external TWAP price feed client.
type Feed struct {
	BaseURL string `toml:"BaseURL"`
}

// Config is the node configuration loaded from TOML.
type Config struct {
	RPCAddress  string  `toml:"RPCAddress"`
	DataDir     string  `toml:"DataDir"`
	Environment string  `toml:"Environment"`
	Genesis     Genesis `toml:"genesis"`
	Feed        Feed    `toml:"feed"`
}

func defaultConfig() Config {
	return Config{
		RPCAddress:  ":8645",
		DataDir:     "./stayer-data",
		Environment: "dev",
		Genesis: Genesis{
			Owner:        "owner",
			Keeper:       "keeper",
			InitialPrice: "2000000000",
		},
	}
}

// Load reads the configuration at path, writing a commented default file first
// when none exists.
func Load(path string) (*Config, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("config: path required")
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := createDefault(path); err != nil {
			return nil, err
		}
	}
	cfg := defaultConfig()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if cfg.RPCAddress == "" {
		return nil, fmt.Errorf("config: RPCAddress required")
	}
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("config: DataDir required")
	}
	return &cfg, nil
}

func createDefault(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: create directory %s: %w", dir, err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("config: create %s: %w", path, err)
	}
	defer file.Close()
	if err := toml.NewEncoder(file).Encode(defaultConfig()); err != nil {
		return fmt.Errorf("config: write default %s: %w", path, err)
	}
	return nil
}
