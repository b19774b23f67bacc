package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"settlement-gateway/config"
	httpHandler "settlement-gateway/internal/adapter/http/handler"
	redisStorage "settlement-gateway/internal/adapter/storage/redis"
	"settlement-gateway/internal/core/ports"
	"settlement-gateway/internal/service"
	"settlement-gateway/internal/traces"
	"settlement-gateway/pkg/logger"

	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return runServe(cmd.Context(), cfg)
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Str("driver", cfg.Database.Driver).
		Int("port", cfg.Server.Port).
		Str("asset", cfg.Settlement.Asset).
		Msg("Starting settlement gateway")

	shutdownTracing, err := traces.Init(ctx, cfg.Tracing.OTLPEndpoint, log)
	if err != nil {
		return fmt.Errorf("initialising tracing: %w", err)
	}

	store, err := openStorage(ctx, cfg.Database, log)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer store.close()

	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer rdb.Close()

	idempotencyCache := redisStorage.NewIdempotencyCache(rdb)
	nonceStore := redisStorage.NewNonceStore(rdb)
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)

	encSvc, err := service.NewAESEncryptionService(cfg.AES.Key)
	if err != nil {
		return fmt.Errorf("initialising encryption: %w", err)
	}
	sigSvc := service.NewHMACSignatureService()
	hashSvc := service.NewArgon2HashService()
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)

	rate, err := cfg.Settlement.Rate()
	if err != nil {
		return err
	}
	rates := service.NewStaticRateProvider(cfg.Settlement.SourceCurrency, rate)

	webhookSvc := service.NewWebhookService(
		store.merchants,
		store.webhooks,
		encSvc,
		sigSvc,
		&http.Client{Timeout: cfg.Webhook.Timeout},
		service.WebhookOptions{MaxAttempts: cfg.Webhook.MaxAttempts, BaseDelay: cfg.Webhook.BaseDelay},
		log,
	)
	auditSvc := service.NewAuditService(store.audit, log)

	authSvc := service.NewAuthService(
		service.AdminCredentials{Username: cfg.Admin.Username, PasswordHash: cfg.Admin.PasswordHash},
		hashSvc,
		tokenSvc,
		log,
	)
	merchantSvc := service.NewMerchantService(store.merchants, encSvc, log)
	paymentSvc := service.NewPaymentService(
		store.payments,
		store.merchants,
		store.ledger,
		store.transactor,
		store.guard,
		rates,
		webhookSvc,
		log,
	)
	withdrawalSvc := service.NewWithdrawalService(
		store.withdrawals,
		store.ledger,
		store.merchants,
		store.idempotency,
		idempotencyCache,
		store.transactor,
		store.guard,
		webhookSvc,
		log,
	)
	ledgerSvc := service.NewLedgerService(store.ledger, store.withdrawals, store.merchants, cfg.Settlement.Asset, log)

	if cfg.Admin.PasswordHash == "" {
		log.Warn().Msg("admin.password_hash is empty; admin login is disabled")
	}
	if cfg.PIX.WebhookSecret == "" {
		log.Warn().Msg("pix.webhook_secret is empty; payment confirmations will be rejected")
	}

	handler := httpHandler.NewHTTPHandler(httpHandler.RouterDeps{
		AuthSvc:          authSvc,
		MerchantSvc:      merchantSvc,
		PaymentSvc:       paymentSvc,
		WithdrawalSvc:    withdrawalSvc,
		LedgerSvc:        ledgerSvc,
		AuditSvc:         auditSvc,
		MerchantRepo:     store.merchants,
		EncSvc:           encSvc,
		SigSvc:           sigSvc,
		TokenSvc:         tokenSvc,
		NonceStore:       nonceStore,
		RateLimitStore:   rateLimitStore,
		HealthCheckers:   []ports.HealthChecker{store.health, redisStorage.NewHealthCheck(rdb)},
		PixWebhookSecret: cfg.PIX.WebhookSecret,
		MetricsEnabled:   cfg.Metrics.Enabled,
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		Logger:           log,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutting down server...")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// In-flight webhook deliveries and audit writes finish before storage closes.
	webhookSvc.Wait()
	auditSvc.Wait()

	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Flushing traces failed")
	}

	log.Info().Msg("Server exited")
	return nil
}
