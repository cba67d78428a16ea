// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Shivanand-hulikatti/event-lifecycle/internal/cache"
	"github.com/Shivanand-hulikatti/event-lifecycle/internal/config"
	"github.com/Shivanand-hulikatti/event-lifecycle/internal/database"
	"github.com/Shivanand-hulikatti/event-lifecycle/internal/handler"
	"github.com/Shivanand-hulikatti/event-lifecycle/internal/ledger"
	"github.com/Shivanand-hulikatti/event-lifecycle/internal/notification"
	"github.com/Shivanand-hulikatti/event-lifecycle/internal/payment"
	"github.com/Shivanand-hulikatti/event-lifecycle/internal/repository"
	"github.com/Shivanand-hulikatti/event-lifecycle/internal/scheduler"
	"github.com/Shivanand-hulikatti/event-lifecycle/internal/service"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

const (
	shutdownTimeout    = 10 * time.Second
	workerConcurrency  = 4
	redisPingTimeout = 3 * time.Second
)

func main() {
	cfg := config.MustLoad()
	log := cfg.Logger.NewLogger(os.Stdout)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("event-lifecycle stopped with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	// ── 1. Connect to PostgreSQL and migrate ──────────────────────────────
	pool, err := database.NewPool(ctx, cfg.Postgres, log)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	log.Info("connected to PostgreSQL", slog.String("host", cfg.Postgres.Host))

	// ── 2. Repositories ───────────────────────────────────────────────────
	eventRepo := repository.NewEventRepository(pool)
	userRepo := repository.NewUserRepository(pool)
	regRepo := repository.NewRegistrationRepository(pool, ledger.New(log))
	ticketRepo := repository.NewTicketRepository(pool)
	paymentRepo := repository.NewPaymentRepository(pool)

	// ── 3. Redis-backed collaborators, when enabled ───────────────────────
	var (
		eventCache service.EventCache
		notifier   service.Notifier = notification.NewLogNotifier(log)
		background sync.WaitGroup
	)
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			log.Warn("redis unreachable, cache reads will miss", slog.String("error", err.Error()))
		}
		cancel()
		eventCache = cache.NewEventCache(rdb, cfg.Redis.CacheTTL, log)

		redisOpt := asynq.RedisClientOpt{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}
		queue := asynq.NewClient(redisOpt)
		defer queue.Close()
		notifier = notification.NewDispatcher(queue, log)

		var mailer notification.Mailer = notification.NewLogMailer(log)
		if cfg.SMTP.Enabled() {
			mailer = notification.NewSMTPMailer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From)
		}
		worker := notification.NewWorker(userRepo, eventRepo, ticketRepo, mailer, log)
		srv, mux := notification.NewServer(redisOpt, workerConcurrency, worker, log)
		if err := srv.Start(mux); err != nil {
			return fmt.Errorf("start notification worker: %w", err)
		}
		defer srv.Shutdown()
		log.Info("notification queue enabled", slog.String("redis", cfg.Redis.Addr))
	}

	// ── 4. Services ───────────────────────────────────────────────────────
	timeout := cfg.Server.BackendTimeout
	gateway := payment.NewClient(cfg.Payment.BaseURL, cfg.Payment.APIKey, cfg.Payment.Timeout, log)

	tickets := service.NewTicketService(ticketRepo, notifier, timeout, log)
	services := handler.Services{
		Events: service.NewEventService(eventRepo, eventCache, timeout, log),
		Users:  service.NewUserService(userRepo, timeout, log),
		Registrations: service.NewRegistrationService(service.RegistrationDeps{
			Events:        eventRepo,
			Users:         userRepo,
			Registrations: regRepo,
			Payments:      paymentRepo,
			Gateway:       gateway,
			Notifier:      notifier,
			Cache:         eventCache,
			Tickets:       tickets,
		}, timeout, log),
		Tickets:  tickets,
		CheckIns: service.NewCheckInService(ticketRepo, timeout, log),
		Payments: service.NewPaymentService(eventRepo, regRepo, paymentRepo, gateway, tickets, timeout, log),
	}

	// ── 5. Capacity audit ─────────────────────────────────────────────────
	auditor := ledger.NewAuditor(eventRepo, eventCache, cfg.Audit.Reconcile, log)
	sched, err := scheduler.New(auditor, cfg.Audit.Schedule, timeout, log)
	if err != nil {
		return err
	}
	schedCtx, stopSched := context.WithCancel(context.WithoutCancel(ctx))
	background.Add(1)
	go func() {
		defer background.Done()
		sched.Start(schedCtx)
	}()
	defer func() {
		stopSched()
		background.Wait()
	}()

	// ── 6. Build the router ───────────────────────────────────────────────
	r := chi.NewRouter()

	// Global middleware stack
	r.Use(chimiddleware.Recoverer) // recover from panics, return 500
	r.Use(chimiddleware.RequestID) // attach request IDs
	r.Use(chimiddleware.RealIP)    // trust X-Forwarded-For
	r.Use(handler.Logger(log))     // structured access log
	r.Use(handler.CORS)

	handler.New(services, log).Routes(r, handler.Guards{
		Operator: handler.RequireOperator([]byte(cfg.Auth.JWTSecret)),
		Webhook:  handler.RequireSignature([]byte(cfg.Payment.WebhookSecret), log),
	})

	// ── 7. Start server with graceful shutdown ────────────────────────────
	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("server listening", slog.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	log.Info("server stopped")
	return nil
}
