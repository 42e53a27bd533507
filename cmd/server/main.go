package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/carrierdesk/carrierdesk/internal/fmcsa"
	"github.com/carrierdesk/carrierdesk/internal/metrics"
	"github.com/carrierdesk/carrierdesk/internal/server"
	"github.com/carrierdesk/carrierdesk/pkg/config"
	"github.com/carrierdesk/carrierdesk/pkg/logger"
	"github.com/carrierdesk/carrierdesk/pkg/secretstore"
	"github.com/carrierdesk/carrierdesk/pkg/shutdown"
)

func main() {
	// Load .env (best-effort). If missing, fall back to real env vars.
	_ = godotenv.Load()

	var (
		configPath = flag.String("config", os.Getenv("CARRIERDESK_CONFIG"), "config file (yaml/json)")
		seed       = flag.Bool("seed", false, "insert demo loads and calls into an empty database")
	)
	flag.Parse()

	if err := run(*configPath, *seed); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	fmt.Println("server stopped")
}

func run(configPath string, seed bool) error {
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return err
	}

	sm := shutdown.NewManager()
	// 已注册的资源（secret store、db 等）在任何退出路径上都要释放
	closeAll := func() bool {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return sm.Shutdown(ctx)
	}
	fail := func(err error) error {
		closeAll()
		return err
	}

	// API key 等可以放在加密的 Badger 库里，环境变量优先
	if cfg.SecretsDir != "" {
		key, err := secretstore.ParseKey(cfg.MasterKey)
		if err != nil {
			return fmt.Errorf("master key: %w", err)
		}
		store, err := secretstore.Open(secretstore.OpenOptions{Path: cfg.SecretsDir, EncryptionKey: key, ReadOnly: true})
		if err != nil {
			return err
		}
		sm.OnShutdown("secretstore", func(context.Context) error { return store.Close() })
		cfg.ApplySecrets(store.Getenv)
	}
	if err := cfg.Validate(); err != nil {
		return fail(err)
	}

	if err := logger.Init(cfg.Log); err != nil {
		return fail(fmt.Errorf("init logger: %w", err))
	}

	registry := fmcsa.NewClient(fmcsa.Options{
		BaseURL:   cfg.FMCSA.BaseURL,
		APIKey:    cfg.FMCSA.APIKey,
		Timeout:   cfg.FMCSA.Timeout,
		CacheTTL:  cfg.FMCSA.CacheTTL,
		RateLimit: cfg.FMCSA.RateLimit,
	})
	sm.OnShutdown("fmcsa", func(context.Context) error { registry.Close(); return nil })

	srv, err := server.New(server.Config{
		Driver:   cfg.Database.Driver,
		DSN:      cfg.Database.DSN,
		APIKey:   cfg.APIKey,
		Pricing:  cfg.Pricing,
		Verifier: registry,
	})
	if err != nil {
		return fail(fmt.Errorf("init server: %w", err))
	}

	if seed {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		_, _, err := srv.Seed(ctx)
		cancel()
		if err != nil {
			_ = srv.Close()
			return fail(fmt.Errorf("seed: %w", err))
		}
	}

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if cfg.DebugAddr != "" {
		dbg, err := metrics.StartDebugAsync(ctx, cfg.DebugAddr)
		if err != nil {
			logger.Warnf("debug server disabled: %v", err)
		} else {
			logger.Infof("debug server listening on %s", dbg.Addr)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("carrierdesk listening on %s (db=%s)", cfg.ListenAddr, cfg.Database.Driver)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case serveErr = <-errCh:
		logger.Errorf("http server error: %v", serveErr)
	}

	// http 先停，再关库
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}
	sm.OnShutdown("server", func(context.Context) error { return srv.Close() })
	if !closeAll() {
		return errors.Join(serveErr, errors.New("graceful shutdown timed out"))
	}
	if serveErr != nil {
		return fmt.Errorf("http server: %w", serveErr)
	}
	return nil
}
