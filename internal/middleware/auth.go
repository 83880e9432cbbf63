package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"backoffice/internal/session"
	"backoffice/internal/upstream"
	"backoffice/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	ContextUserID   = "userID"
	ContextUserRole = "userRole"
)

// RequireAuth validates the access token issued by the REST API and forwards it
// on upstream calls made while serving the request. The token is read from the
// access_token cookie, falling back to the Authorization header.
func RequireAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, cookieErr := c.Cookie("access_token")
		if cookieErr != nil || tokenString == "" {
			authHeader := c.GetHeader("Authorization")
			if authHeader == "" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authorization is missing"))
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid authorization format. Expected 'Bearer <token>'"))
				return
			}
			tokenString = parts[1]
		}

		claims, err := ParseToken(tokenString, secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid token"))
			return
		}

		userID := SubjectOf(claims)
		if userID != "" {
			c.Set(ContextUserID, userID)
		}
		if role, ok := claims["role"].(string); ok {
			c.Set(ContextUserRole, role)
		}
		ctx := upstream.WithToken(c.Request.Context(), tokenString)
		c.Request = c.Request.WithContext(session.WithUserID(ctx, userID))

		c.Next()
	}
}

// ParseToken verifies an HMAC-signed token and returns its claims.
func ParseToken(tokenString string, secret []byte) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

// SubjectOf returns the "sub" claim as a string, or "" when it is missing.
func SubjectOf(claims jwt.MapClaims) string {
	sub, ok := claims["sub"]
	if !ok || sub == nil {
		return ""
	}
	return fmt.Sprint(sub)
}

// UserID returns the authenticated user, or "" on unauthenticated routes.
func UserID(c *gin.Context) string {
	return c.GetString(ContextUserID)
}
