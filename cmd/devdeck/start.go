package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/mattjoyce/devdeck/internal/api"
	"github.com/mattjoyce/devdeck/internal/auth"
	"github.com/mattjoyce/devdeck/internal/config"
	"github.com/mattjoyce/devdeck/internal/events"
	"github.com/mattjoyce/devdeck/internal/history"
	"github.com/mattjoyce/devdeck/internal/lock"
	"github.com/mattjoyce/devdeck/internal/log"
	"github.com/mattjoyce/devdeck/internal/metrics"
	"github.com/mattjoyce/devdeck/internal/rootwatch"
	"github.com/mattjoyce/devdeck/internal/storage"
	"github.com/mattjoyce/devdeck/internal/supervisor"
)

const (
	eventBufferSize = 256
	stopAllTimeout  = 10 * time.Second
)

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	configPath := fs.StringP("config", "c", "", "Path to configuration file or directory")
	root := fs.String("root", "", "Override scan.root")
	listen := fs.String("listen", "", "Override api.listen")
	watchRoot := fs.Bool("watch", false, "Rescan automatically when the root changes")
	if err := fs.Parse(args); err != nil {
		return flagExit(err)
	}

	cfg, err := config.Resolve(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if *root != "" {
		cfg.Scan.Root = *root
	}
	if *listen != "" {
		cfg.API.Listen = *listen
	}
	if *watchRoot {
		cfg.Scan.Watch = true
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	digest, _ := cfg.Digest()
	logger.Info("devdeck starting", "version", version, "config", cfg.SourcePath, "config_digest", digest)

	pidLockPath := lock.PathFor(cfg.State.Path)
	pidLock, err := lock.AcquirePIDLock(pidLockPath)
	if err != nil {
		logger.Error("failed to acquire PID lock (another instance may be running)", "path", pidLockPath, "error", err)
		return 1
	}
	defer pidLock.Release()
	logger.Info("acquired PID lock", "path", pidLockPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		recorder supervisor.RunRecorder
		runs     api.RunLister
	)
	if cfg.State.History {
		db, err := storage.OpenSQLite(ctx, cfg.State.Path)
		if err != nil {
			logger.Error("failed to open database", "path", cfg.State.Path, "error", err)
			return 1
		}
		defer db.Close()
		store := history.NewStore(db)
		recorder, runs = store, store
		logger.Info("run history enabled", "path", cfg.State.Path)
	}

	hub := events.NewHub(eventBufferSize)
	m := metrics.New()
	sup := supervisor.New(supervisor.Config{
		Root:        cfg.Scan.Root,
		Exclude:     cfg.Scan.Exclude,
		LogCapacity: cfg.Logs.Capacity,
		Toolchain: supervisor.Toolchain{
			NPM:     cfg.Toolchain.NPM,
			Python:  cfg.Toolchain.Python,
			Uvicorn: cfg.Toolchain.Uvicorn,
		},
	}, supervisor.Deps{
		Events:  hub,
		History: recorder,
		Metrics: m,
		Logger:  log.WithComponent("supervisor"),
	})

	projects := sup.Rescan()
	logger.Info("project discovery complete", "root", sup.Root(), "count", len(projects))

	if cfg.Scan.Watch {
		w, err := rootwatch.New(rootwatch.Config{
			Root:     cfg.Scan.Root,
			Exclude:  cfg.Scan.Exclude,
			Debounce: cfg.Scan.Debounce,
		}, func() { sup.Rescan() }, log.WithComponent("rootwatch"))
		if err != nil {
			logger.Warn("root watcher disabled", "error", err)
		} else {
			go func() { _ = w.Run(ctx) }()
			logger.Info("watching scan root", "root", sup.Root(), "dirs", w.Watched())
		}
	}

	tokens := make([]auth.TokenConfig, 0, len(cfg.API.Auth.Tokens))
	for _, t := range cfg.API.Auth.Tokens {
		tokens = append(tokens, auth.TokenConfig{Token: t.Token, Scopes: t.Scopes})
	}
	apiServer := api.New(api.Config{
		Listen:       cfg.API.Listen,
		APIKey:       cfg.API.Auth.APIKey,
		Tokens:       tokens,
		CORSOrigins:  cfg.API.CORSOrigins,
		PollInterval: cfg.Logs.PollInterval,
	}, sup, api.Deps{
		Runs:     runs,
		Events:   hub,
		Gatherer: m.Gatherer(),
	}, log.WithComponent("api"))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	apiErr := make(chan error, 1)
	go func() { apiErr <- apiServer.Start(ctx) }()

	if !cfg.API.Auth.Enabled() {
		logger.Warn("API authentication disabled", "listen", cfg.API.Listen)
	}
	logger.Info("devdeck running (press Ctrl+C to stop)", "listen", cfg.API.Listen)

	code := 0
	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
		<-apiErr
	case err := <-apiErr:
		logger.Error("API server failed", "error", err)
		cancel()
		code = 1
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), stopAllTimeout)
	defer stopCancel()
	if err := sup.StopAll(stopCtx); err != nil {
		logger.Warn("stopping projects failed", "error", err)
	}

	logger.Info("devdeck stopped")
	return code
}

// flagExit maps a pflag parse error to an exit code; --help is success.
func flagExit(err error) int {
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
	return 1
}
