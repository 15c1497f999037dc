package main

import (
	"context"
	"errors"
	"flag"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"stayer/config"
	"stayer/core"
	"stayer/native/oracle"
	"stayer/observability/logging"
	"stayer/rpc"
	"stayer/storage"
)

func main() {
	configPath := flag.String("config", "./config.toml", "path to the node configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Setup("stayerd", "").Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup("stayerd", cfg.Environment)

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.DataDir, "error", err)
		os.Exit(1)
	}

	node := core.NewNode(db)
	genesis, err := genesisFromConfig(cfg)
	if err != nil {
		logger.Error("invalid genesis configuration", "error", err)
		os.Exit(1)
	}
	if err := node.Bootstrap(genesis); err != nil {
		logger.Error("failed to bootstrap node state", "error", err)
		os.Exit(1)
	}
	if baseURL := strings.TrimSpace(cfg.Feed.BaseURL); baseURL != "" {
		node.Oracle().SetFeed(oracle.NewStyksFeed(baseURL, nil))
	}

	token := strings.TrimSpace(os.Getenv("STAYER_RPC_TOKEN"))
	if token == "" {
		logger.Warn("STAYER_RPC_TOKEN is not set, mutating RPC methods are unauthenticated")
	}
	server := rpc.NewServer(node, token, logger)
	httpServer := &http.Server{
		Addr:              cfg.RPCAddress,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting JSON-RPC server", "addr", cfg.RPCAddress)
		errCh <- httpServer.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("rpc server failed", "error", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	if err := node.Close(); err != nil {
		logger.Error("failed to close database", "error", err)
	}
}

func genesisFromConfig(cfg *config.Config) (*core.Genesis, error) {
	price, ok := new(big.Int).SetString(strings.TrimSpace(cfg.Genesis.InitialPrice), 10)
	if !ok {
		return nil, errors.New("genesis InitialPrice must be a base-10 integer")
	}
	return &core.Genesis{
		Owner:        cfg.Genesis.Owner,
		Keeper:       cfg.Genesis.Keeper,
		InitialPrice: price,
		FeedAddress:  cfg.Genesis.FeedAddress,
	}, nil
}
