package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tobiascms/internal/admintoken"
	"tobiascms/internal/ratelimit"
	"tobiascms/internal/util"
	"tobiascms/pkg/sync"
	"tobiascms/services/admin/internal/app"
	"tobiascms/services/admin/internal/config"
	"tobiascms/services/admin/internal/server"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	tokenTTL, err := config.ParseDuration(cfg.AdminTokenTTL, 12*time.Hour)
	if err != nil {
		log.Fatalf("failed to parse adminTokenTTL: %v", err)
	}
	subscribeDelay, err := config.ParseDuration(cfg.SubscribeDelay, sync.DefaultSubscribeDelay)
	if err != nil {
		log.Fatalf("failed to parse subscribeDelay: %v", err)
	}
	tokens, err := admintoken.New(cfg.AdminTokenSecret, tokenTTL)
	if err != nil {
		log.Fatalf("failed to init token manager: %v", err)
	}
	trustedProxies, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		log.Fatalf("failed to parse trusted proxies: %v", err)
	}
	var loginLimiter *ratelimit.FixedWindowLimiter
	if cfg.LoginRateLimitPerMinute > 0 {
		loginLimiter, err = ratelimit.NewRedisFixedWindowLimiter(
			cfg.RedisAddr, cfg.RedisPassword, "",
			cfg.LoginRateLimitPerMinute, time.Minute,
		)
		if err != nil {
			log.Fatalf("failed to init login rate limiter: %v", err)
		}
	}

	appCore, err := app.New(app.Config{
		StoreDriver:            cfg.StoreDriver,
		DatabaseURL:            cfg.DatabaseURL,
		ChannelDriver:          cfg.ChannelDriver,
		RedisAddr:              cfg.RedisAddr,
		RedisPassword:          cfg.RedisPassword,
		AMQPURL:                cfg.AMQPURL,
		BlobDriver:             cfg.BlobDriver,
		MinioEndpoint:          cfg.MinioEndpoint,
		MinioAccessKey:         cfg.MinioAccessKey,
		MinioSecretKey:         cfg.MinioSecretKey,
		MinioPublicURL:         cfg.MinioPublicURL,
		MinioUseSSL:            cfg.MinioUseSSL,
		MaxUploadBytes:         cfg.MaxUploadBytes,
		SubscribeDelay:         subscribeDelay,
		BootstrapAdminEmail:    cfg.BootstrapAdminEmail,
		BootstrapAdminPassword: cfg.BootstrapAdminPassword,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := appCore.Start(ctx); err != nil {
		log.Fatalf("failed to start app: %v", err)
	}
	defer appCore.Stop()

	httpServer, err := server.New(server.Config{
		App:            appCore,
		Tokens:         tokens,
		LoginLimiter:   loginLimiter,
		TrustedProxies: trustedProxies,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("admin server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "err", err)
	}
}
