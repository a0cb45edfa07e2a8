package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"go-echo-foodgram/internal/logging"
	"go-echo-foodgram/internal/models"
)

type Authorizer interface {
	Enforce(role, route, method string) (bool, error)
}

// Authorize checks the caller's role against the route template and method.
// It must run after OptionalJWTAuth.
func Authorize(authz Authorizer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			route := c.Path()
			// Unmatched routes fall through to the 404/405 handlers.
			if route == "" || strings.HasSuffix(route, "/*") {
				return next(c)
			}

			role := GetRole(c)
			allowed, err := authz.Enforce(role, route, c.Request().Method)
			if err != nil {
				logging.Error(c.Request().Context()).Err(err).Str("route", route).Msg("authorization failed")
				return echo.NewHTTPError(http.StatusInternalServerError, "authorization failed")
			}
			if allowed {
				return next(c)
			}

			if role == models.RoleAnonymous {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication credentials were not provided")
			}
			return echo.NewHTTPError(http.StatusForbidden, "you do not have permission to perform this action")
		}
	}
}
