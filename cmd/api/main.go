package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	rd "github.com/redis/go-redis/v9"

	"github.com/baharkarakas/booklend/internal/api"
	"github.com/baharkarakas/booklend/internal/auth"
	"github.com/baharkarakas/booklend/internal/config"
	"github.com/baharkarakas/booklend/internal/db"
	"github.com/baharkarakas/booklend/internal/ledger"
	"github.com/baharkarakas/booklend/internal/lock"
	"github.com/baharkarakas/booklend/internal/logger"
	"github.com/baharkarakas/booklend/internal/metrics"
	"github.com/baharkarakas/booklend/internal/otp"
	"github.com/baharkarakas/booklend/internal/policy"
	repo "github.com/baharkarakas/booklend/internal/repository"
	"github.com/baharkarakas/booklend/internal/repository/memory"
	"github.com/baharkarakas/booklend/internal/repository/postgres"
	"github.com/baharkarakas/booklend/internal/services"
	"github.com/baharkarakas/booklend/internal/worker"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New(cfg.Env)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		store  repo.Store
		users  repo.Users
		audits repo.AuditLogs
	)
	switch cfg.Store {
	case "memory":
		mem := memory.New()
		store, users, audits = mem, mem.Users(), mem.AuditLogs()
		log.Warn("using in-memory store, data is lost on restart")
	default:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		if cfg.Migrate {
			if err := db.RunMigrations(ctx, pool); err != nil {
				return err
			}
		}
		repos := postgres.NewRepositories(pool)
		store, users, audits = repos.Store, repos.Users, repos.AuditLogs
	}

	var locks lock.Locker = lock.NewLocal(cfg.LockWait)
	if cfg.RedisAddr != "" {
		rdb := rd.NewClient(&rd.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
		locks = lock.NewRedis(rdb, cfg.LockWait, cfg.LockTTL)
		log.Info("request locks in redis", "addr", cfg.RedisAddr)
	}

	pol := policy.Default()
	if cfg.PolicyFile != "" {
		if pol, err = policy.Load(cfg.PolicyFile); err != nil {
			return err
		}
		log.Info("policy loaded", "file", cfg.PolicyFile, "statuses", pol.Statuses())
	}

	wp := worker.NewPool(cfg.Workers)
	defer wp.Stop()

	reqSvc := services.NewRequestService(services.RequestDeps{
		Store:  store,
		Users:  users,
		Policy: pol,
		OTP:    otp.New(otp.WithTTL(cfg.OTPTTL)),
		Ledger: ledger.New(store.Transactions(), time.Now),
		Locks:  locks,
		Audit:  services.NewAuditor(audits, wp, log),
		Log:    log,
	})

	metrics.Init()
	r := api.NewRouter(api.RouterDeps{
		Cfg:      cfg,
		TM:       auth.NewTokenManager(cfg.JWTAccessSecret, cfg.JWTRefreshSecret, cfg.JWTAccessTTL, cfg.JWTRefreshTTL),
		Users:    services.NewUserService(users),
		Books:    services.NewBookService(store, users, pol, log),
		Requests: reqSvc,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("server starting", "port", cfg.HTTPPort, "env", cfg.Env, "store", cfg.Store)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errc:
		return err
	}
	log.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
