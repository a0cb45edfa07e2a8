package handlers

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"go-echo-foodgram/internal/models"
	"go-echo-foodgram/internal/services"
)

type IngredientService interface {
	Search(ctx context.Context, prefix string) ([]models.Ingredient, error)
	Get(ctx context.Context, id uint) (*models.Ingredient, error)
	Create(ctx context.Context, input services.IngredientInput) (*models.Ingredient, error)
	Update(ctx context.Context, id uint, input services.UpdateIngredientInput) (*models.Ingredient, error)
	Delete(ctx context.Context, id uint) error
}

type IngredientHandler struct {
	ingredients IngredientService
}

func NewIngredientHandler(ingredients IngredientService) *IngredientHandler {
	return &IngredientHandler{ingredients: ingredients}
}

func (h *IngredientHandler) List(c echo.Context) error {
	ingredients, err := h.ingredients.Search(c.Request().Context(), c.QueryParam("name"))
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, ingredients)
}

func (h *IngredientHandler) Get(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	ingredient, err := h.ingredients.Get(c.Request().Context(), id)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, ingredient)
}

func (h *IngredientHandler) Create(c echo.Context) error {
	var input services.IngredientInput
	if err := bindAndValidate(c, &input); err != nil {
		return err
	}
	ingredient, err := h.ingredients.Create(c.Request().Context(), input)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusCreated, ingredient)
}

func (h *IngredientHandler) Update(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var input services.UpdateIngredientInput
	if err := bindAndValidate(c, &input); err != nil {
		return err
	}
	ingredient, err := h.ingredients.Update(c.Request().Context(), id, input)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, ingredient)
}

func (h *IngredientHandler) Delete(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	if err := h.ingredients.Delete(c.Request().Context(), id); err != nil {
		return serviceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
