package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"settlement-gateway/internal/core/domain"
	"settlement-gateway/internal/core/ports"
	"settlement-gateway/internal/core/ports/mocks"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// hmacSigner is a minimal ports.SignatureService for exercising the middleware
// against real signatures.
type hmacSigner struct{}

func (hmacSigner) Sign(secretKey, payload string) string {
	mac := hmac.New(sha256.New, []byte(secretKey))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func (s hmacSigner) Verify(secretKey, payload, signature string) bool {
	return hmac.Equal([]byte(s.Sign(secretKey, payload)), []byte(strings.TrimPrefix(signature, "sha256=")))
}

func (s hmacSigner) BuildCanonicalString(method, path string, timestamp int64, nonce string, body string) string {
	sum := sha256.Sum256([]byte(body))
	return strings.Join([]string{method, path, strconv.FormatInt(timestamp, 10), nonce, hex.EncodeToString(sum[:])}, "\n")
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		ErrorCode string `json:"error_code"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.ErrorCode
}

type hmacFixture struct {
	merchantRepo *mocks.MockMerchantRepository
	encSvc       *mocks.MockEncryptionService
	nonceStore   *mocks.MockNonceStore
	router       *gin.Engine
}

func newHMACFixture(t *testing.T) *hmacFixture {
	ctrl := gomock.NewController(t)
	f := &hmacFixture{
		merchantRepo: mocks.NewMockMerchantRepository(ctrl),
		encSvc:       mocks.NewMockEncryptionService(ctrl),
		nonceStore:   mocks.NewMockNonceStore(ctrl),
		router:       gin.New(),
	}
	f.router.POST("/api/v1/payments",
		HMACAuth(f.merchantRepo, f.encSvc, hmacSigner{}, f.nonceStore, zerolog.Nop()),
		func(c *gin.Context) {
			body, _ := io.ReadAll(c.Request.Body)
			c.JSON(http.StatusOK, gin.H{"merchant_id": c.GetString(CtxMerchantID), "body": string(body)})
		})
	return f
}

func signedRequest(secret string, ts int64, nonce, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", bytes.NewBufferString(body))
	canonical := hmacSigner{}.BuildCanonicalString(http.MethodPost, "/api/v1/payments", ts, nonce, body)
	req.Header.Set(HeaderAccessKey, "ak_test")
	req.Header.Set(HeaderSignature, hmacSigner{}.Sign(secret, canonical))
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
	req.Header.Set(HeaderNonce, nonce)
	return req
}

func activeMerchant() *domain.Merchant {
	return &domain.Merchant{ID: "m_1", AccessKey: "ak_test", SecretKeyEnc: "sealed", Status: domain.MerchantStatusActive}
}

func TestHMACAuth_MissingHeaders(t *testing.T) {
	f := newHMACFixture(t)

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/payments", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "SEC_001", errorCode(t, w))
}

func TestHMACAuth_ExpiredTimestamp(t *testing.T) {
	f := newHMACFixture(t)

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, signedRequest("secret", time.Now().Add(-120*time.Second).Unix(), "n1", "{}"))

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "SEC_003", errorCode(t, w))
}

func TestHMACAuth_UnknownAccessKey(t *testing.T) {
	f := newHMACFixture(t)
	f.merchantRepo.EXPECT().GetByAccessKey(gomock.Any(), "ak_test").Return(nil, nil)

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, signedRequest("secret", time.Now().Unix(), "n1", "{}"))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHMACAuth_SuspendedMerchant(t *testing.T) {
	f := newHMACFixture(t)
	m := activeMerchant()
	m.Status = domain.MerchantStatusSuspended
	f.merchantRepo.EXPECT().GetByAccessKey(gomock.Any(), "ak_test").Return(m, nil)

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, signedRequest("secret", time.Now().Unix(), "n1", "{}"))

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "AUTH_004", errorCode(t, w))
}

func TestHMACAuth_ReplayedNonce(t *testing.T) {
	f := newHMACFixture(t)
	f.merchantRepo.EXPECT().GetByAccessKey(gomock.Any(), "ak_test").Return(activeMerchant(), nil)
	f.nonceStore.EXPECT().CheckAndSet(gomock.Any(), "m_1", "n1", nonceTTL).Return(false, nil)

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, signedRequest("secret", time.Now().Unix(), "n1", "{}"))

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "SEC_004", errorCode(t, w))
}

func TestHMACAuth_BadSignature(t *testing.T) {
	f := newHMACFixture(t)
	f.merchantRepo.EXPECT().GetByAccessKey(gomock.Any(), "ak_test").Return(activeMerchant(), nil)
	f.nonceStore.EXPECT().CheckAndSet(gomock.Any(), "m_1", "n1", nonceTTL).Return(true, nil)
	f.encSvc.EXPECT().Decrypt("sealed").Return("secret", nil)

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, signedRequest("other-secret", time.Now().Unix(), "n1", "{}"))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "SEC_002", errorCode(t, w))
}

func TestHMACAuth_ValidSignaturePreservesBody(t *testing.T) {
	f := newHMACFixture(t)
	f.merchantRepo.EXPECT().GetByAccessKey(gomock.Any(), "ak_test").Return(activeMerchant(), nil)
	f.nonceStore.EXPECT().CheckAndSet(gomock.Any(), "m_1", "n1", nonceTTL).Return(true, nil)
	f.encSvc.EXPECT().Decrypt("sealed").Return("secret", nil)

	body := `{"gross_amount":"10"}`
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, signedRequest("secret", time.Now().Unix(), "n1", body))

	require.Equal(t, http.StatusOK, w.Code)
	var got map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "m_1", got["merchant_id"])
	assert.Equal(t, body, got["body"])
}

func TestHMACAuth_NonceStoreDownDegrades(t *testing.T) {
	f := newHMACFixture(t)
	f.merchantRepo.EXPECT().GetByAccessKey(gomock.Any(), "ak_test").Return(activeMerchant(), nil)
	f.nonceStore.EXPECT().CheckAndSet(gomock.Any(), "m_1", "n1", nonceTTL).Return(false, errors.New("redis down"))
	f.encSvc.EXPECT().Decrypt("sealed").Return("secret", nil)

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, signedRequest("secret", time.Now().Unix(), "n1", "{}"))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminAuth(t *testing.T) {
	ctrl := gomock.NewController(t)
	tokenSvc := mocks.NewMockTokenService(ctrl)

	router := gin.New()
	router.GET("/admin", AdminAuth(tokenSvc, zerolog.Nop()), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(CtxAdmin))
	})

	tokenSvc.EXPECT().Validate("good").Return(&ports.TokenClaims{Subject: "ops", Role: ports.RoleAdmin}, nil)
	tokenSvc.EXPECT().Validate("merchant").Return(&ports.TokenClaims{Subject: "m_1", Role: "merchant"}, nil)
	tokenSvc.EXPECT().Validate("expired").Return(nil, errors.New("token is expired"))

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"valid", "Bearer good", http.StatusOK},
		{"wrong role", "Bearer merchant", http.StatusForbidden},
		{"invalid", "Bearer expired", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, "ops", w.Body.String())
			}
		})
	}
}

func TestPixSignature(t *testing.T) {
	router := gin.New()
	router.POST("/pix", PixSignature("pix-secret", hmacSigner{}, zerolog.Nop()), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	body := `{"payment_id":"pay_1","status":"PAID"}`

	req := httptest.NewRequest(http.MethodPost, "/pix", strings.NewReader(body))
	req.Header.Set(HeaderPixSignature, hmacSigner{}.Sign("pix-secret", body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/pix", strings.NewReader(body))
	req.Header.Set(HeaderPixSignature, hmacSigner{}.Sign("wrong", body))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPixSignature_NoSecretConfigured(t *testing.T) {
	router := gin.New()
	router.POST("/pix", PixSignature("", hmacSigner{}, zerolog.Nop()), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/pix", strings.NewReader("{}")))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequestID(t *testing.T) {
	router := gin.New()
	router.Use(RequestID())
	router.GET("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(HeaderRequestID, "req-123")
	router.ServeHTTP(w, req)
	assert.Equal(t, "req-123", w.Header().Get(HeaderRequestID))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Len(t, w.Header().Get(HeaderRequestID), 36)
}

func TestRecovery(t *testing.T) {
	router := gin.New()
	router.Use(Recovery(zerolog.Nop()))
	router.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "SYS_001", errorCode(t, w))
}

func TestMaxBodySize(t *testing.T) {
	router := gin.New()
	router.Use(MaxBodySize(16))
	router.POST("/pix", PixSignature("s", hmacSigner{}, zerolog.Nop()), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/pix", strings.NewReader(strings.Repeat("A", 100))))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}
