package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"backoffice/internal/logger"
	"backoffice/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

func signToken(t *testing.T, secret []byte, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)
	return token
}

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestLogger(logger.NewNop()))
	r.GET("/me", RequireAuth(testSecret), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id":      UserID(c),
			"role":         c.GetString(ContextUserRole),
			"session_user": session.UserIDFrom(c.Request.Context()),
		})
	})
	return r
}

func TestRequireAuth(t *testing.T) {
	valid := signToken(t, testSecret, jwt.MapClaims{"sub": 42, "role": "buyer", "exp": time.Now().Add(time.Hour).Unix()})
	expired := signToken(t, testSecret, jwt.MapClaims{"sub": 42, "exp": time.Now().Add(-time.Hour).Unix()})
	forged := signToken(t, []byte("other"), jwt.MapClaims{"sub": 42})

	tests := []struct {
		name   string
		header string
		cookie string
		status int
	}{
		{name: "missing", status: http.StatusUnauthorized},
		{name: "bad format", header: "Token " + valid, status: http.StatusUnauthorized},
		{name: "expired", header: "Bearer " + expired, status: http.StatusUnauthorized},
		{name: "wrong secret", header: "Bearer " + forged, status: http.StatusUnauthorized},
		{name: "bearer", header: "Bearer " + valid, status: http.StatusOK},
		{name: "cookie", cookie: valid, status: http.StatusOK},
	}

	router := newRouter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "access_token", Value: tt.cookie})
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			assert.NotEmpty(t, w.Header().Get(HeaderRequestID))
			if tt.status == http.StatusOK {
				assert.JSONEq(t, `{"user_id":"42","role":"buyer","session_user":"42"}`, w.Body.String())
			}
		})
	}
}

func TestRequestIDIsPropagated(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(HeaderRequestID, "req-1")
	w := httptest.NewRecorder()
	newRouter().ServeHTTP(w, req)
	assert.Equal(t, "req-1", w.Header().Get(HeaderRequestID))
}
