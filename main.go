package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rabbitrss/internal/config"
	"rabbitrss/internal/kv"
	"rabbitrss/internal/logger"
	"rabbitrss/internal/notify"
	"rabbitrss/internal/rss"
	"rabbitrss/internal/server"
	"rabbitrss/internal/storage"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	addr := flag.String("addr", "", "listen address (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.ListenAddr = *addr
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	backend, err := openBackend(cfg.Database)
	if err != nil {
		logger.Errorf("open storage: %v", err)
		os.Exit(1)
	}
	defer backend.Close()

	store := storage.NewFeedStore(backend)
	cache := storage.NewCache(backend, time.Duration(cfg.CacheTTLMinutes)*time.Minute)
	parser := rss.NewParser(rss.ParserConfig{
		ConversionURL: cfg.Conversion.BaseURL,
		UseConversion: cfg.Conversion.Enabled,
		Timeout:       time.Duration(cfg.Conversion.TimeoutSeconds) * time.Second,
	}, cache)

	registry := notify.NewRegistry(backend)
	senders := []notify.Sender{notify.LocalSender{}}
	vapid := notify.VAPIDConfig{
		PublicKey:  cfg.Push.VAPIDPublicKey,
		PrivateKey: cfg.Push.VAPIDPrivateKey,
		Contact:    cfg.Push.Contact,
	}
	if vapid.Configured() {
		senders = append(senders, notify.NewPushSender(registry, vapid))
	} else {
		logger.Infof("web push disabled: no VAPID keys configured")
	}
	dispatcher := notify.NewDispatcher(store, senders...)

	refresher := rss.NewRefresher(store, parser, dispatcher)
	poller := rss.NewPoller(refresher, store, time.Duration(cfg.RefreshIntervalMinutes)*time.Minute)
	poller.Start()

	srv := server.New(store, parser, refresher, registry)
	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv.Handler(),
	}

	go func() {
		logger.Infof("listening on %s (storage: %s)", cfg.ListenAddr, backend.DatabaseType())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("server: %v", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Infof("shutting down")
	poller.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
}

func openBackend(cfg config.DatabaseConfig) (kv.Store, error) {
	switch cfg.Driver {
	case "sqlite", "":
		return kv.NewSQLite(cfg.Path)
	case "postgres":
		return kv.NewPostgres(cfg.ConnString)
	case "memory":
		return kv.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown database driver: %s", cfg.Driver)
	}
}
