package handler

import (
	"net/http"

	"settlement-gateway/internal/adapter/http/middleware"
	"settlement-gateway/internal/core/ports"
	"settlement-gateway/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

const maxRequestBody = 1 << 20

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	AuthSvc       ports.AuthService
	MerchantSvc   ports.MerchantService
	PaymentSvc    ports.PaymentService
	WithdrawalSvc ports.WithdrawalService
	LedgerSvc     ports.LedgerService
	AuditSvc      ports.AuditService // nil = audit logging disabled

	MerchantRepo   ports.MerchantRepository
	EncSvc         ports.EncryptionService
	SigSvc         ports.SignatureService
	TokenSvc       ports.TokenService
	NonceStore     ports.NonceStore
	RateLimitStore ports.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker

	PixWebhookSecret string
	MetricsEnabled   bool
	AllowedOrigins   []string
	Logger           zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	if deps.MetricsEnabled {
		r.Use(metrics.Middleware())
	}
	r.Use(middleware.MaxBodySize(maxRequestBody))
	if deps.AuditSvc != nil {
		r.Use(middleware.AuditLog(deps.AuditSvc))
	}

	r.GET("/health", HealthCheck(deps.HealthCheckers...))
	if deps.MetricsEnabled {
		r.GET("/metrics", metrics.Handler())
	}

	rules := middleware.DefaultRateLimitRules()
	rl := func(group string) gin.HandlerFunc {
		rule, ok := rules[group]
		if deps.RateLimitStore == nil || !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	v1 := r.Group("/api/v1")

	// --- Operator API (JWT) ---
	admin := NewAdminHandler(deps.AuthSvc, deps.MerchantSvc, deps.WithdrawalSvc, deps.LedgerSvc)
	v1.POST("/admin/login", rl("admin_login"), admin.Login)

	adminAuth := middleware.AdminAuth(deps.TokenSvc, deps.Logger)
	ops := v1.Group("/admin", adminAuth, rl("admin"))
	{
		ops.POST("/merchants", admin.CreateMerchant)
		ops.GET("/merchants/:id/balance", admin.MerchantBalance)
		ops.GET("/merchants/:id/ledger", admin.MerchantLedger)
		ops.GET("/withdrawals", admin.ListWithdrawals)
		ops.POST("/withdrawals/:id/approve", admin.ApproveWithdrawal)
		ops.POST("/withdrawals/:id/reject", admin.RejectWithdrawal)
	}

	// --- Merchant API (HMAC) ---
	hmacAuth := middleware.HMACAuth(deps.MerchantRepo, deps.EncSvc, deps.SigSvc, deps.NonceStore, deps.Logger)
	payment := NewPaymentHandler(deps.PaymentSvc)
	payments := v1.Group("/payments", hmacAuth, rl("payments"))
	{
		payments.POST("", payment.CreatePayment)
		payments.GET("/:id", payment.GetPayment)
	}

	merchant := NewMerchantHandler(deps.LedgerSvc, deps.WithdrawalSvc)
	self := v1.Group("/merchant", hmacAuth)
	{
		self.GET("/balance", rl("merchant"), merchant.GetBalance)
		self.GET("/ledger", rl("merchant"), merchant.GetLedger)
		self.POST("/withdrawals", rl("withdrawals"), merchant.RequestWithdrawal)
		self.GET("/withdrawals", rl("merchant"), merchant.ListWithdrawals)
		self.GET("/withdrawals/:id", rl("merchant"), merchant.GetWithdrawal)
	}

	// --- Payment rail callbacks ---
	pixAuth := middleware.PixSignature(deps.PixWebhookSecret, deps.SigSvc, deps.Logger)
	v1.POST("/webhooks/pix", rl("pix_webhook"), pixAuth, payment.PixWebhook)

	return r
}

// NewHTTPHandler wraps the router with CORS handling for browser clients.
// An empty origin list leaves the router unwrapped.
func NewHTTPHandler(deps RouterDeps) http.Handler {
	r := SetupRouter(deps)
	if len(deps.AllowedOrigins) == 0 {
		return r
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: deps.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{
			"Accept", "Authorization", "Content-Type", HeaderIdempotencyKey,
			middleware.HeaderAccessKey, middleware.HeaderSignature,
			middleware.HeaderTimestamp, middleware.HeaderNonce,
		},
		ExposedHeaders: []string{middleware.HeaderRequestID},
		MaxAge:         300,
	})(r)
}
