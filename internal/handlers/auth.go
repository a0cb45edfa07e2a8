package handlers

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"go-echo-foodgram/internal/services"
)

type Authenticator interface {
	Login(ctx context.Context, input services.LoginInput) (string, error)
}

type AuthHandler struct {
	authService Authenticator
}

func NewAuthHandler(authService Authenticator) *AuthHandler {
	return &AuthHandler{authService: authService}
}

type TokenResponse struct {
	AuthToken string `json:"auth_token"`
}

func (h *AuthHandler) Login(c echo.Context) error {
	var input services.LoginInput
	if err := bindAndValidate(c, &input); err != nil {
		return err
	}

	token, err := h.authService.Login(c.Request().Context(), input)
	if err != nil {
		return serviceError(err)
	}

	return c.JSON(http.StatusOK, TokenResponse{AuthToken: token})
}

// Logout is a no-op for stateless tokens; clients discard theirs.
func (h *AuthHandler) Logout(c echo.Context) error {
	return c.NoContent(http.StatusNoContent)
}
