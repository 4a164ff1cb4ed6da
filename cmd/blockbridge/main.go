// Package main is the entry point for the blockbridge language server.
//
// blockbridge speaks LSP to an editor on stdin/stdout and bridges the
// embedded-language blocks of YAML documents to an external language server
// it spawns and manages.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dshills/blockbridge/internal/bridge"
	"github.com/dshills/blockbridge/internal/config"
	"github.com/dshills/blockbridge/internal/lsp"
	"github.com/dshills/blockbridge/internal/proxy"
	"github.com/dshills/blockbridge/internal/region"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", defaultConfigPath(), "path to the TOML configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	watchConfig := flag.Bool("watch-config", true, "reload the configuration file on change")
	flag.Parse()

	if *showVersion {
		fmt.Printf("blockbridge %s (%s)\n", version, commit)
		return 0
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid configuration: %v\n", err)
		return 1
	}

	log, err := newLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: logger: %v\n", err)
		return 1
	}
	defer log.Sync()

	log = log.With(zap.String("session", uuid.New().String()))
	log.Info("starting",
		zap.String("version", version),
		zap.String("server", cfg.Server.Command),
		zap.String("introducer", cfg.IntroducerKey))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Spawn the embedded-language server first; the editor's initialize
	// needs its capabilities.
	client := lsp.NewClient(lsp.ClientConfig{
		Command: cfg.Server.Command,
		Args:    cfg.Server.Args,
		Env:     cfg.Server.Env,
		WorkDir: cfg.Server.WorkDir,
		Timeout: cfg.RequestTimeout,
	})
	if err := client.Start(ctx); err != nil {
		log.Error("embedded server failed to start", zap.Error(err))
		return 1
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := client.Shutdown(shutdownCtx); err != nil {
			log.Warn("embedded server shutdown", zap.Error(err))
		}
	}()

	if info := client.ServerInfo(); info != nil {
		log.Info("embedded server ready", zap.String("name", info.Name), zap.String("serverVersion", info.Version))
	}

	cache := bridge.NewCache(region.NewDetector(cfg.IntroducerKey))
	server := proxy.NewServer(proxy.Options{
		Transport:    lsp.NewTransport(os.Stdin, os.Stdout, nil),
		Forwarder:    client,
		Store:        proxy.NewStore(),
		Synchronizer: bridge.NewSynchronizer(cache, client, cfg.EmbeddedLanguage, log),
		Gatekeeper:   bridge.NewGatekeeper(cache, cfg.HostLanguage),
		Transformer:  bridge.NewTransformer(cache, log),
		HostLanguage: cfg.HostLanguage,
		ServerName:   "blockbridge",
		Log:          log,
	})

	client.OnDiagnostics(server.PublishDiagnostics)

	if *watchConfig {
		watcher := config.NewWatcher(*configPath, func(next config.Config) {
			if cfg.DetectionEquals(next) {
				return
			}
			cfg = next
			server.Reconfigure(ctx, region.NewDetector(next.IntroducerKey))
		}, log)
		if err := watcher.Start(ctx); err != nil {
			log.Warn("config watch unavailable", zap.Error(err))
		} else {
			defer watcher.Close()
		}
	}

	// Editor disconnect, exit notification, or signal all end the run.
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-signals:
			log.Info("signal received", zap.String("signal", sig.String()))
			cancel()
		case err := <-client.ExitChannel():
			log.Error("embedded server exited", zap.Error(err))
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := server.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error("server loop", zap.Error(err))
		return 1
	}

	log.Info("stopped")
	return 0
}

// newLogger builds the zap logger from config. Logs go to stderr unless a
// file is configured; stdout carries LSP traffic and must stay clean.
func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	if cfg.File != "" {
		zc.OutputPaths = []string{cfg.File}
	}
	return zc.Build()
}

// defaultConfigPath looks for blockbridge.toml next to the user's other
// tool configuration.
func defaultConfigPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir + "/blockbridge/blockbridge.toml"
	}
	return "blockbridge.toml"
}
