package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"coverpool/config"
	"coverpool/core/events"
	"coverpool/observability"
	"coverpool/observability/logging"
	"coverpool/observability/metrics"
	telemetry "coverpool/observability/otel"
	"coverpool/services/poold"
	"coverpool/services/poold/indexer"
	"coverpool/services/poold/keeper"
	"coverpool/services/poold/server"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./poold.toml", "path to poold config")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := logging.SetupWithOptions(logging.Options{
		Service:    "poold",
		Env:        cfg.Environment,
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "poold",
		Environment: cfg.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		SampleRatio: cfg.Telemetry.SampleRatio,

		ExportInterval: time.Duration(cfg.Telemetry.ExportIntervalSeconds) * time.Second,
	})
	if err != nil {
		log.Fatalf("init telemetry: %v", err)
	}
	defer func() {
		_ = shutdownTelemetry(context.Background())
	}()

	if err := run(cfg, logger); err != nil {
		logger.Error("poold exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		ix      *indexer.Indexer
		lastSeq uint64
	)
	if cfg.Indexer.Enabled {
		var err error
		ix, err = indexer.Open(cfg.Indexer.Driver, cfg.Indexer.DSN, logger)
		if err != nil {
			return err
		}
		if lastSeq, err = ix.LastSeq(ctx); err != nil {
			return err
		}
		logger.Info("indexer enabled", "driver", cfg.Indexer.Driver, "dsn", cfg.Indexer.DSN, "lastSeq", lastSeq)
	}

	hub := poold.NewHub(0)
	stream := poold.NewStream(lastSeq, hub)
	if ix != nil {
		stream.AddSink(ix)
	}

	node, err := poold.NewNode(cfg, events.Multi{stream, observability.Events()}, logger)
	if err != nil {
		return err
	}
	defer node.Close()
	stream.SetClock(node.Height)

	if cfg.GenesisFile != "" {
		genesis, err := config.LoadGenesis(cfg.GenesisFile)
		if err != nil {
			return err
		}
		applied, err := node.ApplyGenesis(genesis)
		if err != nil {
			return err
		}
		logger.Info("genesis checked", "path", cfg.GenesisFile, "applied", applied)
	}

	indexerDone := make(chan struct{})
	indexerCtx, stopIndexer := context.WithCancel(context.Background())
	if ix != nil {
		go func() {
			ix.Run(indexerCtx)
			close(indexerDone)
		}()
	} else {
		close(indexerDone)
	}

	k := keeper.New(node, metrics.Pool(), logger)
	if err := k.Register(cfg.Keeper); err != nil {
		stopIndexer()
		return err
	}
	k.Start()

	var history server.EventQuery
	if ix != nil {
		history = ix
	}
	api := server.New(server.Config{
		Node:      node,
		Hub:       hub,
		Events:    history,
		Auth:      cfg.Auth,
		RateLimit: cfg.RateLimit,
		Logger:    logger,
	})
	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           api.Handler(),
		ReadHeaderTimeout: time.Duration(cfg.ReadHeaderTimeout) * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("poold listening", "addr", cfg.ListenAddress, "height", node.Height())
		serverErr <- httpServer.ListenAndServe()
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			runErr = err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeout)*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("forcing server stop", "error", err)
		_ = httpServer.Close()
	}
	k.Stop(shutdownCtx)
	stopIndexer()
	select {
	case <-indexerDone:
	case <-shutdownCtx.Done():
		logger.Warn("indexer did not drain before shutdown deadline")
	}
	return runErr
}
