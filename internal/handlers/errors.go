package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"go-echo-foodgram/internal/middleware"
	"go-echo-foodgram/internal/services"
)

// statusFor maps service sentinels to HTTP status codes.
var statusFor = map[error]int{
	services.ErrUserNotFound:       http.StatusNotFound,
	services.ErrTagNotFound:        http.StatusNotFound,
	services.ErrIngredientNotFound: http.StatusNotFound,
	services.ErrRecipeNotFound:     http.StatusNotFound,
	services.ErrNotAuthor:          http.StatusForbidden,
	services.ErrUserExists:         http.StatusBadRequest,
	services.ErrInvalidCredentials: http.StatusBadRequest,
	services.ErrWrongPassword:      http.StatusBadRequest,
	services.ErrSelfSubscription:   http.StatusBadRequest,
	services.ErrAlreadySubscribed:  http.StatusBadRequest,
	services.ErrNotSubscribed:      http.StatusBadRequest,
	services.ErrTagExists:          http.StatusBadRequest,
	services.ErrIngredientExists:   http.StatusBadRequest,
	services.ErrIngredientInUse:    http.StatusBadRequest,
	services.ErrAlreadyFavorited:   http.StatusBadRequest,
	services.ErrNotFavorited:       http.StatusBadRequest,
	services.ErrAlreadyInCart:      http.StatusBadRequest,
	services.ErrNotInCart:          http.StatusBadRequest,
	services.ErrUnknownListFormat:  http.StatusBadRequest,
}

// serviceError turns known service errors into HTTP errors. Anything else,
// validation errors included, goes to the error handler untouched.
func serviceError(err error) error {
	for sentinel, code := range statusFor {
		if errors.Is(err, sentinel) {
			return echo.NewHTTPError(code, sentinel.Error()).SetInternal(err)
		}
	}
	return err
}

func parseID(c echo.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, echo.NewHTTPError(http.StatusNotFound, "not found")
	}
	return uint(id), nil
}

// bindAndValidate decodes the body and runs the struct validator.
func bindAndValidate(c echo.Context, input interface{}) error {
	if err := c.Bind(input); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body").SetInternal(err)
	}
	return c.Validate(input)
}

// viewer returns the caller's id, nil for anonymous requests.
func viewer(c echo.Context) *uint {
	if id, ok := middleware.GetUserID(c); ok {
		return &id
	}
	return nil
}

func currentUser(c echo.Context) (uint, error) {
	id, ok := middleware.GetUserID(c)
	if !ok {
		return 0, echo.NewHTTPError(http.StatusUnauthorized, "authentication credentials were not provided")
	}
	return id, nil
}

func actor(c echo.Context) (services.Actor, error) {
	id, err := currentUser(c)
	if err != nil {
		return services.Actor{}, err
	}
	return services.Actor{UserID: id, Role: middleware.GetRole(c)}, nil
}
