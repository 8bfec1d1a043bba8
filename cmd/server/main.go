// Command server runs the admission-pass gateway: HTTP API, audit worker,
// and the periodic event catalog sync.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"passgate/internal/allocator"
	"passgate/internal/attendance"
	"passgate/internal/audit"
	"passgate/internal/directory"
	dirsync "passgate/internal/directory/sync"
	"passgate/internal/identity"
	"passgate/internal/pass"
	"passgate/internal/payment"
	"passgate/internal/platform/config"
	"passgate/internal/platform/database"
	"passgate/internal/platform/httpserver"
	"passgate/internal/platform/logger"
	"passgate/internal/platform/metrics"
	"passgate/internal/platform/redis"
	transport "passgate/internal/transport/http"
)

const auditBufferSize = 256

func main() {
	log := logger.New()
	cfg := config.FromEnv()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := database.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	rdb, err := redis.New(ctx, cfg.RedisURL)
	if err != nil {
		log.Error("redis unavailable", "error", err)
		os.Exit(1)
	}
	if rdb != nil {
		defer rdb.Close()
	}

	m := metrics.New()

	// Stores.
	adminStore := identity.NewPostgresStore(pool)
	eventStore := directory.NewPostgresStore(pool)
	passStore := pass.NewPostgresStore(pool)
	auditStore := audit.NewPostgresStore(pool)

	// Audit trail: non-blocking publisher, single persisting worker.
	trail := audit.NewPublisher(auditBufferSize, m, log)
	auditWorker := audit.NewWorker(auditStore, trail.Inbox(), log)
	go func() {
		if err := auditWorker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("audit worker stopped", "error", err)
		}
	}()

	// Services.
	tokens := identity.NewTokens(cfg.JWTSigningKey, cfg.TokenTTL)
	identitySvc := identity.NewService(adminStore, tokens, cfg.MasterPassword, log)
	passSvc := pass.NewService(passStore, trail, log, cfg.PassPrice)
	allocatorSvc := allocator.NewService(passStore, trail, m, log)
	attendanceSvc := attendance.NewService(passStore, trail, m, log, cfg.AttendanceAllowUnmark)

	paymentClient := &http.Client{Timeout: cfg.PaymentTimeout}
	paymentBridge := payment.NewBridge(
		passStore,
		paymentClient,
		cfg.PaymentServiceURL,
		payment.NewSigner(cfg.PaymentServiceSecret),
		trail,
		m,
		log,
	)

	// Catalog sync job.
	if cfg.SyncEnabled {
		syncJob := dirsync.NewJob(
			eventStore,
			&http.Client{Timeout: cfg.SyncTimeout + 5*time.Second},
			rdb,
			m,
			log,
			cfg.EventsAPIURL,
			cfg.SyncTimeout,
			cfg.WorkshopDefaultCost,
			cfg.NonTechDefaultCost,
		)
		go syncJob.Start(ctx, cfg.SyncInterval)
		log.Info("events sync scheduled", "interval", cfg.SyncInterval)
	} else {
		log.Info("events sync disabled")
	}

	srv := transport.NewServer(
		identitySvc,
		tokens,
		passSvc,
		allocatorSvc,
		attendanceSvc,
		paymentBridge,
		eventStore,
		eventStore,
		m,
		log,
	)
	srv.AddHealthCheck("postgres", healthFunc(pool.Ping))
	if rdb != nil {
		srv.AddHealthCheck("redis", healthFunc(rdb.Health))
	}

	server := httpserver.New(cfg.Addr, srv.Routes())
	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "error", err)
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
	log.Info("server stopped")
}

// healthFunc adapts a ping function to the transport's health checker.
type healthFunc func(ctx context.Context) error

func (f healthFunc) Health(ctx context.Context) error { return f(ctx) }
