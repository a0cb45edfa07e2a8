package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"go-echo-foodgram/internal/models"
	"go-echo-foodgram/internal/services"
)

type Registrar interface {
	Register(ctx context.Context, input services.RegisterInput) (*models.User, error)
}

type UserService interface {
	List(ctx context.Context, viewerID *uint, page services.Page) (*services.Paginated[models.UserResponse], error)
	Get(ctx context.Context, id uint, viewerID *uint) (*models.UserResponse, error)
	SetPassword(ctx context.Context, userID uint, input services.SetPasswordInput) error
	Delete(ctx context.Context, id uint) error
}

type SubscriptionService interface {
	List(ctx context.Context, userID uint, page services.Page, recipesLimit int) (*services.Paginated[models.SubscriptionResponse], error)
	Subscribe(ctx context.Context, userID, authorID uint, recipesLimit int) (*models.SubscriptionResponse, error)
	Unsubscribe(ctx context.Context, userID, authorID uint) error
}

type UserHandler struct {
	registrar     Registrar
	users         UserService
	subscriptions SubscriptionService
	pageSize      int
}

func NewUserHandler(registrar Registrar, users UserService, subscriptions SubscriptionService, pageSize int) *UserHandler {
	return &UserHandler{
		registrar:     registrar,
		users:         users,
		subscriptions: subscriptions,
		pageSize:      pageSize,
	}
}

func (h *UserHandler) Register(c echo.Context) error {
	var input services.RegisterInput
	if err := bindAndValidate(c, &input); err != nil {
		return err
	}

	user, err := h.registrar.Register(c.Request().Context(), input)
	if err != nil {
		return serviceError(err)
	}

	return c.JSON(http.StatusCreated, user.ToResponse(false))
}

func (h *UserHandler) List(c echo.Context) error {
	result, err := h.users.List(c.Request().Context(), viewer(c), pageFromQuery(c, h.pageSize))
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, paginate(c, result))
}

func (h *UserHandler) Get(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	user, err := h.users.Get(c.Request().Context(), id, viewer(c))
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, user)
}

func (h *UserHandler) Me(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	user, err := h.users.Get(c.Request().Context(), userID, &userID)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, user)
}

func (h *UserHandler) SetPassword(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	var input services.SetPasswordInput
	if err := bindAndValidate(c, &input); err != nil {
		return err
	}

	if err := h.users.SetPassword(c.Request().Context(), userID, input); err != nil {
		return serviceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *UserHandler) Delete(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	if err := h.users.Delete(c.Request().Context(), id); err != nil {
		return serviceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *UserHandler) Subscriptions(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	result, err := h.subscriptions.List(c.Request().Context(), userID, pageFromQuery(c, h.pageSize), recipesLimit(c))
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, paginate(c, result))
}

func (h *UserHandler) Subscribe(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	authorID, err := parseID(c, "id")
	if err != nil {
		return err
	}

	author, err := h.subscriptions.Subscribe(c.Request().Context(), userID, authorID, recipesLimit(c))
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusCreated, author)
}

func (h *UserHandler) Unsubscribe(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	authorID, err := parseID(c, "id")
	if err != nil {
		return err
	}

	if err := h.subscriptions.Unsubscribe(c.Request().Context(), userID, authorID); err != nil {
		return serviceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// recipesLimit reads ?recipes_limit; missing or invalid means no limit.
func recipesLimit(c echo.Context) int {
	n, err := strconv.Atoi(c.QueryParam("recipes_limit"))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
