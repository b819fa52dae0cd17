package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/geocoder89/accounthub/internal/accounts"
	"github.com/geocoder89/accounthub/internal/auth"
	"github.com/geocoder89/accounthub/internal/cache"
	"github.com/geocoder89/accounthub/internal/config"
	"github.com/geocoder89/accounthub/internal/db"
	httpx "github.com/geocoder89/accounthub/internal/http"
	"github.com/geocoder89/accounthub/internal/http/handlers"
	"github.com/geocoder89/accounthub/internal/observability"
	"github.com/geocoder89/accounthub/internal/redisclient"
	"github.com/geocoder89/accounthub/internal/repo/memory"
	"github.com/geocoder89/accounthub/internal/repo/postgres"
	"github.com/geocoder89/accounthub/internal/security"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// set with -ldflags "-X main.version=..."
var version = "dev"

type store interface {
	accounts.Store
	Ping(ctx context.Context) error
}

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := observability.NewLogger(cfg.Env)
	slog.SetDefault(log)

	if cfg.OTelEnabled {
		ctx, cancel := config.WithTimeout(context.Background(), 5*time.Second)
		shutdownTracer, err := observability.InitTracer(ctx, cfg.ServiceName, version, cfg.OTelEndpoint)
		cancel()
		if err != nil {
			return fmt.Errorf("init tracer: %w", err)
		}
		defer func() {
			ctx, cancel := config.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracer(ctx); err != nil {
				log.Error("tracer shutdown", "err", err)
			}
		}()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := observability.NewProm(reg)

	var users store
	switch cfg.Store {
	case "memory":
		log.Warn("using in-memory user store; data is lost on restart")
		users = memory.NewUsersRepo()
	default:
		pool, err := db.NewPool(cfg.DBURL)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pool.Close()

		if err := db.Migrate(pool); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		users = postgres.NewUsersRepo(pool, prom)
	}

	var (
		userCache cache.Users = cache.NewMemoryUsers(cfg.UserCacheTTL)
		cachePing handlers.PingFunc
	)
	if cfg.UseRedis() {
		rc := redisclient.New(redisclient.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rc.Close()

		ctx, cancel := config.WithTimeout(context.Background(), 2*time.Second)
		err := rc.Ping(ctx)
		cancel()
		if err != nil {
			// the cache is an optimization; keep serving from the store
			log.Warn("redis unreachable, continuing with degraded cache", "addr", cfg.RedisAddr, "err", err)
		}

		userCache = cache.NewRedisUsers(rc.Raw(), cfg.UserCacheTTL)
		cachePing = rc.Ping
	}

	svc := accounts.NewService(users, security.NewHasher(cfg.BcryptCost), cache.Instrument(userCache, prom))
	tokens := auth.NewManager(cfg.JWTSecret, cfg.JWTTTL)

	seedCtx, cancel := config.WithTimeout(context.Background(), 10*time.Second)
	created, err := db.EnsureAdminUser(seedCtx, svc, cfg)
	cancel()
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	if created {
		log.Info("bootstrap admin created", "email", cfg.AdminEmail)
	}

	health := handlers.NewHealthHandler(handlers.HealthOptions{
		Env:        cfg.Env,
		Version:    version,
		Store:      cfg.Store,
		StorePing:  users.Ping,
		CachePing:  cachePing,
		CountUsers: svc.Count,
	})

	router := httpx.NewRouter(httpx.RouterDeps{
		Env:          cfg.Env,
		ServiceName:  cfg.ServiceName,
		Version:      version,
		CORSOrigins:  cfg.CORSOrigins,
		MaxBodyBytes: cfg.MaxBodyBytes,
		Tracing:      cfg.OTelEnabled,
		Accounts:     svc,
		Tokens:       tokens,
		Health:       health,
		Prom:         prom,
		Gatherer:     reg,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("server starting", "port", cfg.Port, "env", cfg.Env, "store", cfg.Store, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case sig := <-stop:
		log.Info("server shutting down", "signal", sig.String())
	}

	health.MarkShuttingDown()

	ctx, cancel := config.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	log.Info("shutdown complete")
	return nil
}
