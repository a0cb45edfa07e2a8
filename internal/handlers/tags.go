package handlers

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"go-echo-foodgram/internal/models"
	"go-echo-foodgram/internal/services"
)

type TagService interface {
	List(ctx context.Context) ([]models.Tag, error)
	Get(ctx context.Context, id uint) (*models.Tag, error)
	Create(ctx context.Context, input services.CreateTagInput) (*models.Tag, error)
	Update(ctx context.Context, id uint, input services.UpdateTagInput) (*models.Tag, error)
	Delete(ctx context.Context, id uint) error
}

type TagHandler struct {
	tags TagService
}

func NewTagHandler(tags TagService) *TagHandler {
	return &TagHandler{tags: tags}
}

func (h *TagHandler) List(c echo.Context) error {
	tags, err := h.tags.List(c.Request().Context())
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, tags)
}

func (h *TagHandler) Get(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	tag, err := h.tags.Get(c.Request().Context(), id)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, tag)
}

func (h *TagHandler) Create(c echo.Context) error {
	var input services.CreateTagInput
	if err := bindAndValidate(c, &input); err != nil {
		return err
	}
	tag, err := h.tags.Create(c.Request().Context(), input)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusCreated, tag)
}

func (h *TagHandler) Update(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var input services.UpdateTagInput
	if err := bindAndValidate(c, &input); err != nil {
		return err
	}
	tag, err := h.tags.Update(c.Request().Context(), id, input)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, tag)
}

func (h *TagHandler) Delete(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	if err := h.tags.Delete(c.Request().Context(), id); err != nil {
		return serviceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
