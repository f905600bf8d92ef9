// cmd/regimed watches the configured instruments, classifies their market
// regime on every poll, and serves the results over HTTP and WebSocket.
//
// Usage:
//
//	WATCH=binance.us:BTC:1h,kraken:ETH:4h go run ./cmd/regimed
//	CONFIG_FILE=regime.yaml go run ./cmd/regimed --serve-only
package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"regime-seeker/config"
	"regime-seeker/internal/api"
	"regime-seeker/internal/breaker"
	"regime-seeker/internal/gateway"
	"regime-seeker/internal/logger"
	"regime-seeker/internal/metrics"
	"regime-seeker/internal/model"
	"regime-seeker/internal/notification"
	"regime-seeker/internal/provider"
	redisstore "regime-seeker/internal/store/redis"
	sqlitestore "regime-seeker/internal/store/sqlite"
	"regime-seeker/internal/watcher"
)

func main() {
	serveOnly := flag.Bool("serve-only", false, "Serve API/WS fed from Redis PubSub; do not poll exchanges")
	fetchTimeout := flag.Duration("fetch-timeout", 10*time.Second, "HTTP timeout for exchange requests")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[regimed] config: %v", err)
	}
	lg := logger.Init("regimed", logger.ParseLevel(cfg.LogLevel))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		lg.Info("shutdown signal received")
		cancel()
	}()

	prom := metrics.NewMetrics(nil)
	health := metrics.NewHealthStatus(3*cfg.File.UpdateInterval, cfg.RedisAddr != "")

	// ---- Providers (circuit-broken) ----
	providers := provider.DefaultRegistry(*fetchTimeout)
	providers.Wrap(func(p provider.Provider) provider.Provider {
		return provider.NewGuarded(p, 5, 30*time.Second, func(exchange string, from, to breaker.State) {
			lg.Warn("provider circuit breaker", slog.String("exchange", exchange),
				slog.String("from", from.String()), slog.String("to", to.String()))
			prom.CircuitBreakerState.WithLabelValues(exchange).Set(float64(to))
			if to == breaker.StateOpen {
				prom.CircuitBreakerTrips.WithLabelValues(exchange).Inc()
			}
		})
	})

	// ---- SQLite candle cache ----
	var store model.CandleStore
	var sqlStore *sqlitestore.Store
	sqlStore, err = sqlitestore.New(sqlitestore.Config{
		DBPath:   cfg.SQLitePath,
		OnCommit: func(d time.Duration) { prom.SQLiteCommitDur.Observe(d.Seconds()) },
	})
	if err != nil {
		lg.Warn("sqlite cache disabled", slog.String("error", err.Error()))
	} else {
		store = sqlStore
		health.SetSQLiteOK(true)
		defer sqlStore.Close()
	}

	// ---- WebSocket hub ----
	hub := gateway.NewHub()
	hub.OnClients = func(n int) { prom.WSClients.Set(float64(n)) }
	hub.OnDrop = func() { prom.WSBroadcastsDropped.Inc() }
	hub.OnBroadcast = func(lag time.Duration) { prom.BroadcastLag.Observe(lag.Seconds()) }
	publishers := []model.SnapshotPublisher{hub}

	// ---- Redis publisher (optional) ----
	var rdb *goredis.Client
	var redisPub *redisstore.Publisher
	if cfg.RedisAddr != "" {
		redisPub, err = redisstore.New(redisstore.Config{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			LatestTTL: cfg.File.RedisTTL,
		})
		if err != nil {
			lg.Warn("redis unavailable", slog.String("error", err.Error()))
		} else {
			redisPub.OnBuffer = func() { prom.PublishErrors.Inc() }
			redisPub.OnFlush = func(n int) { lg.Info("redis backlog flushed", slog.Int("snapshots", n)) }
			rdb = redisPub.Client()
			health.SetRedisConnected(true)
			defer redisPub.Close()
			publishers = append(publishers, redisPub)
		}
	}

	// ---- Notifiers ----
	multi := notification.NewMulti(notification.NewLogNotifier(lg))
	multi.OnResult = func(name string, err error) {
		if err != nil {
			prom.NotificationErrors.WithLabelValues(name).Inc()
			return
		}
		prom.NotificationsSent.WithLabelValues(name).Inc()
	}
	if cfg.WebhookURL != "" {
		multi.Add(notification.NewWebhookNotifier(cfg.WebhookURL))
	}
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		multi.Add(notification.NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatID))
	}
	if cfg.NATSURL != "" {
		if n, err := notification.NewNATSNotifier(cfg.NATSURL, cfg.NATSSubject); err != nil {
			lg.Warn("nats notifier disabled", slog.String("error", err.Error()))
		} else {
			defer n.Close()
			multi.Add(n)
		}
	}
	if brokers := cfg.Brokers(); len(brokers) > 0 {
		if k, err := notification.NewKafkaNotifier(brokers, cfg.KafkaTopic); err != nil {
			lg.Warn("kafka notifier disabled", slog.String("error", err.Error()))
		} else {
			defer k.Close()
			multi.Add(k)
		}
	}

	// ---- Watcher ----
	f := cfg.File
	svc, err := watcher.New(watcher.Config{
		Watch:          f.Watch,
		UpdateInterval: f.UpdateInterval,
		CandleLimit:    f.CandleLimit,
		MTF:            f.MTF,
		Engine:         f.Engine,
		Profile:        f.Profile,
		VolumeFilter:   f.VolumeFilter.Enabled,
		VolumePeriod:   f.VolumeFilter.Period,
		VolumeMultiple: f.VolumeFilter.Multiplier,
	}, watcher.Deps{
		Providers:  providers,
		Store:      store,
		Publishers: publishers,
		Notifier:   multi,
		Metrics:    prom,
		Health:     health,
		Logger:     lg,
	})
	if err != nil {
		log.Fatalf("[regimed] watcher init failed: %v", err)
	}

	// ---- HTTP ----
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	apiSrv := api.NewServer(cfg.APIAddr, api.NewHandler(svc, hub, health, lg), lg)
	apiSrv.Start()

	var sqlDB *sql.DB
	if sqlStore != nil {
		sqlDB = sqlStore.DB().DB
	}
	health.StartLivenessChecker(ctx, rdb, sqlDB, 10*time.Second)

	lg.Info("regimed running",
		slog.Int("instruments", len(f.Watch)),
		slog.String("api", cfg.APIAddr),
		slog.String("metrics", cfg.MetricsAddr),
		slog.Any("notifiers", multi.Names()),
		slog.Bool("serve_only", *serveOnly),
	)

	if *serveOnly {
		if redisPub == nil {
			log.Fatal("[regimed] --serve-only needs REDIS_ADDR")
		}
		if n, err := redisPub.Seed(ctx, f.Watch, hub); err != nil {
			lg.Warn("seeding latest snapshots failed", slog.String("error", err.Error()))
		} else {
			lg.Info("seeded latest snapshots", slog.Int("count", n))
		}
		snaps := make(chan model.RegimeSnapshot, 256)
		go hub.Run(ctx, snaps)
		if err := redisPub.Subscribe(ctx, redisstore.AllRegimeChannels, snaps); err != nil {
			lg.Error("redis subscription ended", slog.String("error", err.Error()))
		}
	} else if err := svc.Run(ctx); err != nil {
		lg.Error("watcher stopped", slog.String("error", err.Error()))
	}

	// ---- Graceful shutdown ----
	shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutCancel()
	if err := apiSrv.Stop(shutCtx); err != nil {
		lg.Warn("api shutdown", slog.String("error", err.Error()))
	}
	metricsSrv.Stop(shutCtx)
	lg.Info("shutdown complete")
}
