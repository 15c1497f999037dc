package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const authTokenEnv = "KEEPERD_RPC_TOKEN"

// Config drives the keeper daemon. The RPC auth token is taken from the
// environment, never from the file.
type Config struct {
	NodeURL         string   `yaml:"node_url"`
	KeeperAddress   string   `yaml:"keeper_address"`
	Environment     string   `yaml:"environment"`
	IntervalSeconds int      `yaml:"interval_seconds"`
	FeedID          string   `yaml:"feed_id"`
	Validators      []string `yaml:"validators"`
}

func loadConfig(path string) (Config, error) {
	cfg := Config{
		NodeURL:         "http://127.0.0.1:8645",
		KeeperAddress:   "keeper",
		IntervalSeconds: 60,
	}
	if strings.TrimSpace(path) == "" {
		return cfg, fmt.Errorf("config path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	if err := yaml.NewDecoder(file).Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if strings.TrimSpace(cfg.NodeURL) == "" {
		return Config{}, fmt.Errorf("node_url required")
	}
	if strings.TrimSpace(cfg.KeeperAddress) == "" {
		return Config{}, fmt.Errorf("keeper_address required")
	}
	if cfg.IntervalSeconds <= 0 {
		cfg.IntervalSeconds = 60
	}
	return cfg, nil
}

func (c Config) interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

func authToken() string {
	return strings.TrimSpace(os.Getenv(authTokenEnv))
}
