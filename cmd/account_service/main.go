package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"account_service/internal/auth"
	"account_service/internal/config"
	"account_service/internal/handler"
	"account_service/internal/kv"
	"account_service/internal/models"
	"account_service/internal/service"
	"account_service/internal/session"
	"account_service/internal/storage"
	"account_service/internal/throttle"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	//PARSE ARGS
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to the yaml config")

	flag.Parse()

	_ = godotenv.Load() // .env is optional

	if configPath == "" {
		configPath = os.Getenv("CONFIG_PATH")
	}
	if configPath == "" {
		log.Fatal("failed get config path from flags")
	}

	cfg := config.MustLoadConfig(configPath)

	//INIT LOGGER
	lgr := setupLogger(cfg.Env)
	lgr.Info("starting account service", slog.String("env", cfg.Env), slog.String("address", cfg.HTTPServer.Address))

	if cfg.Env == envProd {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, lgr); err != nil {
		lgr.Error("account service stopped with error", slog.Any("error", err))
		os.Exit(1)
	}

	lgr.Info("account service stopped")
}

func run(ctx context.Context, cfg *config.Config, lgr *slog.Logger) error {
	//INIT DB
	st, err := setupStorage(ctx, cfg, lgr)
	if err != nil {
		return err
	}
	defer st.Close()

	store, err := kv.NewRedisStore(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer store.Close()

	//INIT SERVICES
	hasher, err := auth.NewPasswordHasher(cfg.Bcrypt.Rounds)
	if err != nil {
		return err
	}

	tokens, err := auth.NewTokenService(cfg.Token)
	if err != nil {
		return err
	}

	srvc := service.NewService(
		st,
		hasher,
		tokens,
		session.NewRegistry(store),
		throttle.New(store, cfg.Login.Retry, cfg.Login.LockWindow),
		lgr,
	)

	if cfg.Admin.Email != "" {
		admin, created, err := srvc.EnsureAdmin(ctx, models.AdminSeed{
			Email:    cfg.Admin.Email,
			Password: cfg.Admin.Password,
			Fullname: cfg.Admin.Fullname,
		})
		if err != nil {
			return err
		}
		if created {
			lgr.Info("admin account created", slog.String("email", admin.Email))
		}
	}

	//INIT SERVER
	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      handler.NewHandler(srvc, cfg, lgr).InitRoutes(),
		ReadTimeout:  cfg.HTTPServer.ReadTimeout,
		WriteTimeout: cfg.HTTPServer.WriteTimeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	lgr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPServer.ShutdownTimeout)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

func setupStorage(ctx context.Context, cfg *config.Config, lgr *slog.Logger) (storage.Storage, error) {
	if cfg.DB.Driver == "memory" {
		lgr.Warn("using in-memory storage, data is lost on restart")
		return storage.NewMemoryStorage(), nil
	}

	if cfg.DB.Migrate {
		if err := storage.Migrate(ctx, cfg.DB.DbURL); err != nil {
			return nil, err
		}
	}

	return storage.NewPostgresStorage(ctx, cfg.DB.DbURL)
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}
	return log
}
