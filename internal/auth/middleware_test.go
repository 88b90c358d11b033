package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "operator-secret"

func signToken(t *testing.T, secret string, claims jwt.RegisteredClaims) string {
	t.Helper()
	if claims.ExpiresAt == nil {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Hour))
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func newGuardedRouter(guard gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/kyc/stats", guard, func(c *gin.Context) {
		operator, _ := GetOperator(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"operator": operator})
	})
	return router
}

func serve(router *gin.Engine, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/kyc/stats", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestOperatorGuardWithoutSecretPassesThrough(t *testing.T) {
	router := newGuardedRouter(OperatorGuard("  ", ""))

	resp := serve(router, "")

	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestOperatorGuardValidatesTokens(t *testing.T) {
	router := newGuardedRouter(OperatorGuard(testSecret, "kyc-ops"))

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + signToken(t, "other", jwt.RegisteredClaims{Subject: "ops", Audience: jwt.ClaimStrings{"kyc-ops"}}), http.StatusUnauthorized},
		{"wrong audience", "Bearer " + signToken(t, testSecret, jwt.RegisteredClaims{Subject: "ops", Audience: jwt.ClaimStrings{"other"}}), http.StatusUnauthorized},
		{"no subject", "Bearer " + signToken(t, testSecret, jwt.RegisteredClaims{Audience: jwt.ClaimStrings{"kyc-ops"}}), http.StatusUnauthorized},
		{"expired", "Bearer " + signToken(t, testSecret, jwt.RegisteredClaims{Subject: "ops", Audience: jwt.ClaimStrings{"kyc-ops"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))}), http.StatusUnauthorized},
		{"valid", "Bearer " + signToken(t, testSecret, jwt.RegisteredClaims{Subject: "ops", Audience: jwt.ClaimStrings{"kyc-ops"}}), http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := serve(router, tc.header)
			assert.Equal(t, tc.status, resp.Code)
			if tc.status == http.StatusOK {
				assert.JSONEq(t, `{"operator":"ops"}`, resp.Body.String())
			}
		})
	}
}
