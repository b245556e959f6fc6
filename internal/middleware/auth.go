package middleware

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"whatsapp-connector/internal/config"
	"whatsapp-connector/pkg/response"
)

const (
	// AdminIDKey is the gin context key for the authenticated administrator
	AdminIDKey = "admin_id"
	// TokenKey is the gin context key for the raw JWT token
	TokenKey = "token"
)

// Claims carries the administrator identity issued by the platform backend
type Claims struct {
	AdminID string `json:"admin_id"`
	Email   string `json:"email"`
	jwt.RegisteredClaims
}

// AuthMiddleware validates the bearer token and puts the administrator
// identity on the request context
func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Unauthorized(c, "Authorization header required")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			response.Unauthorized(c, "Invalid authorization header format")
			return
		}
		tokenString := parts[1]

		token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(cfg.JWT.Secret), nil
		})

		if err != nil {
			switch {
			case errors.Is(err, jwt.ErrTokenExpired):
				response.Unauthorized(c, "Token has expired")
			case errors.Is(err, jwt.ErrTokenNotValidYet):
				response.Unauthorized(c, "Token not valid yet")
			default:
				response.Unauthorized(c, "Invalid token")
			}
			return
		}

		claims, ok := token.Claims.(*Claims)
		if !ok || !token.Valid {
			response.Unauthorized(c, "Invalid token claims")
			return
		}

		if cfg.JWT.Issuer != "" && claims.Issuer != cfg.JWT.Issuer {
			response.Unauthorized(c, "Invalid token issuer")
			return
		}
		if cfg.JWT.Audience != "" && !hasAudience(claims.Audience, cfg.JWT.Audience) {
			response.Unauthorized(c, "Invalid token audience")
			return
		}

		adminID := claims.AdminID
		if adminID == "" {
			// Tokens minted without the custom claim carry the admin in sub.
			adminID = claims.Subject
		}
		if adminID == "" {
			response.Unauthorized(c, "Token carries no administrator identity")
			return
		}

		c.Set(AdminIDKey, adminID)
		c.Set(TokenKey, tokenString)
		c.Next()
	}
}

func hasAudience(audience jwt.ClaimStrings, want string) bool {
	for _, aud := range audience {
		if aud == want {
			return true
		}
	}
	return false
}

// GetAdminID retrieves the authenticated administrator from the gin context
func GetAdminID(c *gin.Context) (string, error) {
	value, exists := c.Get(AdminIDKey)
	if !exists {
		return "", fmt.Errorf("administrator identity not found in context")
	}

	adminID, ok := value.(string)
	if !ok || adminID == "" {
		return "", fmt.Errorf("invalid administrator identity in context")
	}

	return adminID, nil
}
