package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"lv-goldex/internal/auth"
	"lv-goldex/internal/commission"
	"lv-goldex/internal/config"
	"lv-goldex/internal/db"
	"lv-goldex/internal/delivery"
	"lv-goldex/internal/health"
	"lv-goldex/internal/httpserver"
	"lv-goldex/internal/ledger"
	"lv-goldex/internal/logging"
	"lv-goldex/internal/metrics"
	"lv-goldex/internal/notify"
	"lv-goldex/internal/orders"
	"lv-goldex/internal/pricing"
	"lv-goldex/internal/settlement"
	"lv-goldex/internal/sweeper"
	"lv-goldex/internal/tradingmode"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger := logging.NewLogger(cfg.LogLevel, "goldex-api", cfg.AppEnv)
	slog.SetDefault(logger)
	startedAt := time.Now()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DBDSN)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()
	if err := db.Migrate(ctx, pool); err != nil {
		log.Fatal(err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	priceStore := pricing.NewStore(pool)
	var prices pricing.Source = priceStore
	if cfg.PriceFeedURL != "" {
		prices = pricing.NewFallback(pricing.NewFeedClient(cfg.PriceFeedURL, cfg.PriceFeedTimeout), priceStore, logging.Component(logger, "pricing"))
	}
	var priceCache pricing.Invalidator
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		cache := pricing.NewRedisCache(rdb, prices, cfg.PriceCacheTTL, "goldex:", logging.Component(logger, "pricing"))
		prices, priceCache = cache, cache
	}

	hub := notify.NewHub()
	inbox := notify.NewInbox(pool)
	sinks := []notify.Sink{inbox, hub}
	if len(cfg.KafkaBrokers) > 0 {
		kafka, err := notify.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaNotifyTopic, logging.Component(logger, "notify"))
		if err != nil {
			log.Fatal(err)
		}
		defer kafka.Close()
		sinks = append(sinks, kafka)
	}
	users := notify.NewUserDirectory(pool)
	dispatcher := notify.NewDispatcher(users, logging.Component(logger, "notify"), m, cfg.NotifyTimeout, sinks...)

	modeStore := tradingmode.NewStore(pool)
	gate := tradingmode.NewGate(modeStore)
	rules := commission.NewStore(pool)
	fees := commission.NewCalculator(rules)

	ledgerSvc := ledger.NewService(pool, ledger.NewPGStore(pool), gate, logging.Component(logger, "ledger"), m)
	orderStore := orders.NewPGStore(pool)
	orderSvc := orders.NewService(orders.Deps{
		DB:       pool,
		Store:    orderStore,
		Prices:   prices,
		Fees:     fees,
		Balances: ledgerSvc,
		Gate:     gate,
		Notifier: dispatcher,
		Logger:   logging.Component(logger, "orders"),
		Metrics:  m,
		LockTTL:  cfg.PriceLockTTL,
	})
	workflow := settlement.NewWorkflow(pool, orderStore, ledgerSvc, dispatcher, logging.Component(logger, "settlement"), m)
	deliverySvc := delivery.NewService(pool, delivery.NewPGStore(pool), orderStore, ledgerSvc, gate, dispatcher,
		delivery.Fees{PerGram: cfg.DeliveryFeePerGram, PerCoin: cfg.DeliveryFeePerCoin}, logging.Component(logger, "delivery"), m)
	sweep := sweeper.New(pool, orderStore, dispatcher, logging.Component(logger, "sweeper"), m, cfg.SweepInterval, cfg.SweepBatch)

	verifier := auth.NewVerifier(cfg.JWTIssuer, []byte(cfg.JWTSecret))
	router := httpserver.NewRouter(httpserver.RouterDeps{
		Tokens:        verifier,
		Users:         users,
		Ledger:        ledger.NewHandler(ledgerSvc),
		Orders:        orders.NewHandler(orderSvc),
		Settlement:    settlement.NewHandler(workflow),
		Delivery:      delivery.NewHandler(deliverySvc),
		Prices:        pricing.NewHandler(prices, priceStore, priceCache),
		Mode:          tradingmode.NewHandler(modeStore),
		Commission:    commission.NewHandler(rules),
		Notifications: notify.NewHandler(inbox),
		Health:        health.NewHandler(pool, startedAt),
		WS:            httpserver.NewNotificationsWS(hub, verifier, cfg.WebSocketOrigin, logging.Component(logger, "ws")),
		Metrics:       m,
		MetricsExport: metrics.Handler(registry),
		Limiter:       httpserver.NewRateLimiter(10, 30),
		Origin:        cfg.WebSocketOrigin,
	})
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 10 * time.Second}

	var workers sync.WaitGroup
	workers.Add(2)
	go func() {
		defer workers.Done()
		sweep.Run(ctx)
	}()
	go func() {
		defer workers.Done()
		ledgerSvc.RunReconciler(ctx, cfg.ReconcileInterval)
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("server listening", "addr", cfg.HTTPAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		stop()
	}
	workers.Wait()
	dispatcher.Wait()
	logger.Info("shutdown complete")
}
