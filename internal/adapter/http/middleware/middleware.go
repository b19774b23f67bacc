package middleware

import (
	"bytes"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"settlement-gateway/internal/core/domain"
	"settlement-gateway/internal/core/ports"
	"settlement-gateway/pkg/apperror"
	"settlement-gateway/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// Header names for HMAC authentication
	HeaderAccessKey = "X-Merchant-Access-Key"
	HeaderSignature = "X-Signature"
	HeaderTimestamp = "X-Timestamp"
	HeaderNonce     = "X-Nonce"

	// HeaderPixSignature carries the payment rail's HMAC over the raw body.
	HeaderPixSignature = "X-Pix-Signature"

	HeaderRequestID = "X-Request-ID"

	// Max timestamp drift allowed (60 seconds)
	maxTimestampDrift = 60 * time.Second

	// Nonce TTL (120 seconds)
	nonceTTL = 120 * time.Second

	// Context keys
	CtxMerchantID  = "merchant_id"
	CtxMerchantKey = "merchant"
	CtxAdmin       = "admin_subject"
	CtxResourceID  = "resource_id"
)

// HMACAuth creates a middleware that verifies HMAC-SHA256 signatures.
// Pipeline: Check timestamp -> Check nonce -> Verify signature.
func HMACAuth(
	merchantRepo ports.MerchantRepository,
	encSvc ports.EncryptionService,
	sigSvc ports.SignatureService,
	nonceStore ports.NonceStore,
	log zerolog.Logger,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		accessKey := c.GetHeader(HeaderAccessKey)
		signature := c.GetHeader(HeaderSignature)
		timestampStr := c.GetHeader(HeaderTimestamp)
		nonce := c.GetHeader(HeaderNonce)

		if accessKey == "" || signature == "" || timestampStr == "" || nonce == "" {
			abort(c, apperror.ErrInvalidAccessKey())
			return
		}

		// Step 1: Timestamp check
		timestamp, err := strconv.ParseInt(timestampStr, 10, 64)
		if err != nil {
			abort(c, apperror.ErrTimestampExpired())
			return
		}
		now := time.Now().Unix()
		if math.Abs(float64(now-timestamp)) > maxTimestampDrift.Seconds() {
			abort(c, apperror.ErrTimestampExpired())
			return
		}

		// Step 2: Lookup merchant and check nonce
		merchant, err := merchantRepo.GetByAccessKey(c.Request.Context(), accessKey)
		if err != nil {
			log.Error().Err(err).Msg("failed to fetch merchant")
			abort(c, apperror.InternalError(err))
			return
		}
		if merchant == nil {
			abort(c, apperror.ErrInvalidAccessKey())
			return
		}
		if !merchant.IsActive() {
			abort(c, apperror.ErrMerchantSuspended())
			return
		}

		isNew, err := nonceStore.CheckAndSet(c.Request.Context(), merchant.ID, nonce, nonceTTL)
		if err != nil {
			log.Warn().Err(err).Msg("nonce store error, allowing request")
		} else if !isNew {
			abort(c, apperror.ErrNonceUsed())
			return
		}

		// Step 3: Signature verification
		secretKey, err := encSvc.Decrypt(merchant.SecretKeyEnc)
		if err != nil {
			log.Error().Err(err).Msg("failed to decrypt merchant secret key")
			abort(c, apperror.ErrEncryptionFailure(err))
			return
		}

		bodyBytes, ok := readBody(c)
		if !ok {
			return
		}

		canonical := sigSvc.BuildCanonicalString(
			c.Request.Method,
			c.Request.URL.Path,
			timestamp,
			nonce,
			string(bodyBytes),
		)

		if !sigSvc.Verify(secretKey, canonical, signature) {
			abort(c, apperror.ErrInvalidSignature())
			return
		}

		c.Set(CtxMerchantID, merchant.ID)
		c.Set(CtxMerchantKey, merchant)

		c.Next()
	}
}

// AdminAuth validates the bearer JWT and requires the admin role.
func AdminAuth(tokenSvc ports.TokenService, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr, found := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !found || tokenStr == "" {
			abort(c, apperror.ErrInvalidToken())
			return
		}

		claims, err := tokenSvc.Validate(tokenStr)
		if err != nil {
			log.Debug().Err(err).Msg("rejected admin token")
			abort(c, apperror.ErrInvalidToken())
			return
		}
		if claims.Role != ports.RoleAdmin {
			abort(c, apperror.ErrForbidden())
			return
		}

		c.Set(CtxAdmin, claims.Subject)
		c.Next()
	}
}

// PixSignature authenticates payment-rail webhooks: X-Pix-Signature must be
// the HMAC-SHA256 of the raw body under the shared secret.
func PixSignature(secret string, sigSvc ports.SignatureService, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			log.Error().Msg("pix webhook secret is not configured")
			abort(c, apperror.ErrInvalidSignature())
			return
		}

		bodyBytes, ok := readBody(c)
		if !ok {
			return
		}
		if !sigSvc.Verify(secret, string(bodyBytes), c.GetHeader(HeaderPixSignature)) {
			abort(c, apperror.ErrInvalidSignature())
			return
		}
		c.Next()
	}
}

// RequestID propagates or assigns an X-Request-ID.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(response.CtxRequestID, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// RequestLogger creates a middleware that logs every HTTP request.
func RequestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()

		event := log.Info()
		if status >= http.StatusInternalServerError {
			event = log.Error()
		} else if status >= http.StatusBadRequest {
			event = log.Warn()
		}

		event.
			Str("request_id", c.GetString(response.CtxRequestID)).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", latency).
			Str("client_ip", c.ClientIP()).
			Msg("http request")
	}
}

// Recovery creates a panic recovery middleware.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("path", c.Request.URL.Path).Msg("panic recovered")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error_code": "SYS_001",
					"message":    "Internal server error",
				})
			}
		}()
		c.Next()
	}
}

// MerchantFrom returns the merchant authenticated by HMACAuth.
func MerchantFrom(c *gin.Context) (*domain.Merchant, bool) {
	v, ok := c.Get(CtxMerchantKey)
	if !ok {
		return nil, false
	}
	m, ok := v.(*domain.Merchant)
	return m, ok
}

func abort(c *gin.Context, err error) {
	response.Error(c, err)
	c.Abort()
}

// readBody buffers the body so handlers can bind it after verification.
func readBody(c *gin.Context) ([]byte, bool) {
	if c.Request.Body == nil {
		return nil, true
	}
	bodyBytes, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			abort(c, apperror.New("PAY_002", "Request body too large", http.StatusRequestEntityTooLarge))
			return nil, false
		}
		abort(c, apperror.Validation("cannot read request body"))
		return nil, false
	}
	c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
	return bodyBytes, true
}

// MaxBodySize limits the request body. Reading past the limit fails and the
// request is rejected with 413.
func MaxBodySize(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}
