package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"go-echo-foodgram/internal/models"
)

type JWTClaims struct {
	UserID uint   `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

type contextKey string

const (
	UserIDKey contextKey = "user_id"
	RoleKey   contextKey = "role"
)

// AccountLookup resolves the current role of a token's user. ok is false
// when the account no longer exists.
type AccountLookup interface {
	AccountRole(ctx context.Context, userID uint) (role string, ok bool, err error)
}

// OptionalJWTAuth identifies the caller when a valid token is present and
// otherwise continues as anonymous. The role comes from the account row,
// not the token; tokens of deleted accounts are rejected.
func OptionalJWTAuth(secret string, accounts AccountLookup) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tokenString, ok := bearerToken(c.Request())
			if !ok {
				return next(c)
			}

			claims, err := parseToken(secret, tokenString)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
			}

			role, found, err := accounts.AccountRole(c.Request().Context(), claims.UserID)
			if err != nil {
				return fmt.Errorf("resolve account %d: %w", claims.UserID, err)
			}
			if !found {
				return echo.NewHTTPError(http.StatusUnauthorized, "user no longer exists")
			}

			setIdentity(c, claims.UserID, role)
			return next(c)
		}
	}
}

// bearerToken accepts both "Bearer <jwt>" and "Token <jwt>".
func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}

	parts := strings.Fields(authHeader)
	if len(parts) != 2 {
		return "", false
	}
	switch strings.ToLower(parts[0]) {
	case "bearer", "token":
		return parts[1], true
	}
	return "", false
}

func parseToken(secret, tokenString string) (*JWTClaims, error) {
	claims := &JWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid token signing method")
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

func setIdentity(c echo.Context, userID uint, role string) {
	if role != models.RoleAdmin {
		role = models.RoleUser
	}
	c.Set(string(UserIDKey), userID)
	c.Set(string(RoleKey), role)
}

func GetUserID(c echo.Context) (uint, bool) {
	userID, ok := c.Get(string(UserIDKey)).(uint)
	return userID, ok
}

// GetRole returns the caller's role, anonymous when no token was accepted.
func GetRole(c echo.Context) string {
	if role, ok := c.Get(string(RoleKey)).(string); ok {
		return role
	}
	return models.RoleAnonymous
}
