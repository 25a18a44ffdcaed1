package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/frostdev-ops/pma-watch-bridge/pkg/utils"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Context keys set by AuthMiddleware
const (
	ContextUserID   = "user_id"
	ContextUsername = "username"
)

// AuthMiddleware requires an HMAC-signed bearer token and copies its
// user_id and username claims into the gin context.
func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithExpirationRequired(),
	)
	keyFunc := func(*jwt.Token) (interface{}, error) {
		return []byte(jwtSecret), nil
	}

	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			unauthorized(c, "Authorization header required")
			return
		}

		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" || strings.Contains(raw, " ") {
			unauthorized(c, "Invalid authorization header format")
			return
		}

		claims := jwt.MapClaims{}
		if _, err := parser.ParseWithClaims(raw, claims, keyFunc); err != nil {
			unauthorized(c, "Invalid token")
			return
		}

		for _, key := range []string{ContextUserID, ContextUsername} {
			if v := claimString(claims[key]); v != "" {
				c.Set(key, v)
			}
		}

		c.Next()
	}
}

func unauthorized(c *gin.Context, message string) {
	utils.SendError(c, http.StatusUnauthorized, message)
	c.Abort()
}

// claimString renders string and numeric claims; JSON numbers decode as float64
func claimString(v interface{}) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case float64:
		return fmt.Sprintf("%.0f", value)
	default:
		return fmt.Sprint(value)
	}
}
