package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"orderflow/config"
	"orderflow/internal/book"
	"orderflow/internal/feed"
	"orderflow/internal/metrics"
	"orderflow/internal/restclient"
	"orderflow/internal/stats"
	"orderflow/logger"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAgeDays); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Orderflow.Name,
		"version": cfg.Orderflow.Version,
	}).Info("starting orderflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Telemetry.Prometheus.Enabled {
		metrics.Init(cfg.Telemetry.Prometheus.Listen)
	}

	st := stats.New()
	store := book.NewStore()

	client := restclient.New(restclient.Config{
		BaseURL:           cfg.Rest.BaseURL,
		Timeout:           cfg.Rest.Timeout(),
		CacheTTL:          cfg.Rest.CacheTTL(),
		MaxAttempts:       cfg.Rest.Retry.MaxAttempts,
		RetryBaseDelay:    cfg.Rest.Retry.BaseDelay(),
		RequestsPerSecond: cfg.Rest.RateLimit.RequestsPerSecond,
		BurstSize:         cfg.Rest.RateLimit.BurstSize,
	}, log)

	manager := feed.NewManager(feed.Config{
		URL:                  cfg.Feed.URL,
		ConnectTimeout:       cfg.Feed.ConnectTimeout(),
		HeartbeatInterval:    cfg.Feed.HeartbeatInterval(),
		ReconnectBaseDelay:   cfg.Feed.ReconnectBaseDelay(),
		ReconnectMaxDelay:    cfg.Feed.ReconnectMaxDelay(),
		MaxReconnectAttempts: cfg.Feed.MaxReconnectAttempts,
	}, nil, st, log)

	registry := feed.NewRegistry(manager, log)
	registry.OnRemoved(store.Remove)
	manager.SetResyncer(registry)

	feedLog := log.WithComponent("main")
	manager.OnEvent(func(e feed.Event) {
		switch ev := e.(type) {
		case feed.MessageReceived:
			if ev.Type != feed.MessageTypeOrderbook {
				return
			}
			var snap book.WireSnapshot
			if err := json.Unmarshal(ev.Data, &snap); err != nil {
				metrics.IncrementRejected(ev.Symbol)
				feedLog.WithError(err).WithField("symbol", ev.Symbol).Warn("undecodable orderbook payload")
				return
			}
			if snap.Symbol == "" {
				snap.Symbol = ev.Symbol
			}
			normalized, err := book.Normalize(snap, ev.ReceivedAt)
			if err != nil {
				metrics.IncrementRejected(ev.Symbol)
				feedLog.WithError(err).WithField("symbol", ev.Symbol).Warn("snapshot rejected")
				return
			}
			store.Apply(normalized)
			metrics.IncrementApplied(normalized.Symbol)
		case feed.Closed:
			if !ev.Clean {
				feedLog.WithError(ev.Err).WithField("connection_id", ev.ConnectionID).Warn("feed connection lost")
			}
		case feed.ErrorOccurred:
			feedLog.WithError(ev.Err).WithField("connection_id", ev.ConnectionID).Warn("feed error")
		}
	})

	registry.Add(cfg.Symbols...)

	if cfg.Feed.Enabled {
		if err := manager.Connect(); err != nil {
			log.WithError(err).Error("Failed to start feed connection")
			os.Exit(1)
		}
	} else {
		log.WithComponent("main").Info("streaming feed disabled; polling only")
	}

	poller := feed.NewPoller(client, store, registry, cfg.Rest.PollInterval(), 0, log)
	go poller.Run(ctx)

	var publisher *stats.CloudWatchPublisher
	if cfg.Telemetry.CloudWatch.Enabled {
		publisher = stats.NewCloudWatchPublisher(ctx,
			cfg.Telemetry.CloudWatch.Region,
			cfg.Telemetry.CloudWatch.Namespace,
			log)
	}

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				snap := st.Snapshot()
				metrics.ObserveStats(snap)
				publisher.Publish(ctx, snap)
			}
		}
	}()

	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	log.Info("starting graceful shutdown")
	cancel()
	manager.Disconnect()

	log.Info("shutdown complete")
}
