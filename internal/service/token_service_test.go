package service

import (
	"testing"
	"time"

	"settlement-gateway/internal/core/ports"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testJWTSecret = "test-jwt-secret-key-for-unit-tests"

func TestJWTTokenService_GenerateAndValidate(t *testing.T) {
	svc := NewJWTTokenService(testJWTSecret, time.Hour, "settlement-gateway")

	tokenStr, expiresAt, err := svc.Generate("ops", ports.RoleAdmin)
	require.NoError(t, err)
	assert.NotEmpty(t, tokenStr)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := svc.Validate(tokenStr)
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Subject)
	assert.Equal(t, ports.RoleAdmin, claims.Role)
}

func TestJWTTokenService_Rejects(t *testing.T) {
	svc := NewJWTTokenService(testJWTSecret, time.Hour, "settlement-gateway")
	valid, _, err := svc.Generate("ops", ports.RoleAdmin)
	require.NoError(t, err)

	expired := NewJWTTokenService(testJWTSecret, time.Hour, "settlement-gateway")
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expiredTok, _, err := expired.Generate("ops", ports.RoleAdmin)
	require.NoError(t, err)

	otherIssuer, _, err := NewJWTTokenService(testJWTSecret, time.Hour, "someone-else").Generate("ops", ports.RoleAdmin)
	require.NoError(t, err)

	otherSecret, _, err := NewJWTTokenService("another-secret", time.Hour, "settlement-gateway").Generate("ops", ports.RoleAdmin)
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "ops", "role": "admin"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noSubject, _, err := svc.Generate("", ports.RoleAdmin)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"expired", expiredTok},
		{"wrong issuer", otherIssuer},
		{"wrong secret", otherSecret},
		{"alg none", none},
		{"garbage", "not.a.jwt"},
		{"missing subject", noSubject},
		{"tampered", valid + "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Validate(tt.token)
			assert.Error(t, err)
		})
	}
}
