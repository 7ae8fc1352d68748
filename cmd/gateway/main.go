package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	api "github.com/mind-engage/mindengage-outcomes/internal/api/http"
	auth "github.com/mind-engage/mindengage-outcomes/internal/auth/middleware"
	"github.com/mind-engage/mindengage-outcomes/internal/cache"
	"github.com/mind-engage/mindengage-outcomes/internal/config"
	"github.com/mind-engage/mindengage-outcomes/internal/db"
	"github.com/mind-engage/mindengage-outcomes/internal/gradebook"
	"github.com/mind-engage/mindengage-outcomes/internal/logger"
	"github.com/mind-engage/mindengage-outcomes/internal/report"
)

func main() {
	configPath := flag.String("config", "", "optional config file (defaults to $CONFIG_FILE)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("gateway stopped", "error", err)
	}
}

func run(cfg config.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- DB ---
	driver, err := db.ParseDriver(cfg.DBDriver)
	if err != nil {
		return err
	}
	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	conn, err := db.Open(openCtx, driver, cfg.DBDSN)
	cancel()
	if err != nil {
		return fmt.Errorf("db open: %w", err)
	}
	defer conn.Close()

	// --- Report cache ---
	rc, err := openCache(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer rc.Close()

	gb := gradebook.NewService(conn, rc, log)
	rep := report.NewService(conn, rc, cfg.ReportCacheTTL, log)

	handler := api.NewRouter(api.RouterConfig{
		Gradebook:       gb,
		Reports:         rep,
		Auth:            auth.NewAuthService(cfg.AuthHMACSecret),
		Log:             log,
		EnableLocalAuth: cfg.EnableLocalAuth,
		Login: auth.LoginOptions{
			AdminUser:     cfg.AdminUser,
			AdminPassHash: cfg.AdminPassHash,
			DevLogin:      cfg.Mode == config.ModeOffline,
		},
		CORSOrigins:    cfg.CORSOrigins,
		RequestTimeout: cfg.RequestTimeout,
		Ready:          func(ctx context.Context) error { return ping(ctx, conn) },
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", cfg.HTTPAddr, "mode", cfg.Mode, "db", driver)
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

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openCache uses Redis when configured, otherwise an in-process cache.
func openCache(ctx context.Context, cfg config.Config, log *logger.Logger) (cache.Cache, error) {
	if cfg.RedisAddr == "" {
		log.Info("report cache: in-process")
		return cache.NewMemory(), nil
	}
	rc, err := cache.NewRedis(ctx, cache.RedisOptions{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return nil, err
	}
	log.Info("report cache: redis", "addr", cfg.RedisAddr)
	return rc, nil
}

func ping(ctx context.Context, conn *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return conn.PingContext(ctx)
}
