package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/robo-agendamentos/pkg/logging"
)

func serveWithToken(t *testing.T, secret, header string) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/notifications/pickup", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	called := false
	TriggerJWT(secret, logging.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		claims, ok := CallerClaimsFromContext(r.Context())
		require.True(t, ok)
		assert.Equal(t, "erp-sync", claims.Subject)
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)
	return rec, called
}

func TestTriggerJWT(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		header string
		want   int
	}{
		{"no secret configured", "", "Bearer " + signedToken(t, jwt.SigningMethodHS256, "secret"), http.StatusUnauthorized},
		{"missing header", "secret", "", http.StatusUnauthorized},
		{"not bearer", "secret", "Basic abc", http.StatusUnauthorized},
		{"wrong secret", "secret", "Bearer " + signedToken(t, jwt.SigningMethodHS256, "wrong"), http.StatusUnauthorized},
		{"valid", "secret", "Bearer " + signedToken(t, jwt.SigningMethodHS256, "secret"), http.StatusOK},
		{"valid hs512", "secret", "Bearer " + signedToken(t, jwt.SigningMethodHS512, "secret"), http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec, called := serveWithToken(t, tc.secret, tc.header)
			assert.Equal(t, tc.want, rec.Code)
			assert.Equal(t, tc.want == http.StatusOK, called)
		})
	}
}

func TestTriggerJWTRejectsExpired(t *testing.T) {
	claims := jwt.RegisteredClaims{Subject: "erp-sync", ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	rec, called := serveWithToken(t, "secret", "Bearer "+signed)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, called)
}

func signedToken(t *testing.T, method jwt.SigningMethod, secret string) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   "erp-sync",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(5 * time.Minute)),
	}
	signed, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}
