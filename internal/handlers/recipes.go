package handlers

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"go-echo-foodgram/internal/logging"
	"go-echo-foodgram/internal/models"
	"go-echo-foodgram/internal/services"
)

var shoppingListDownloads = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "foodgram",
	Name:      "shopping_list_downloads_total",
	Help:      "Shopping list downloads by format.",
}, []string{"format"})

type RecipeService interface {
	List(ctx context.Context, viewerID *uint, filter services.RecipeFilter, page services.Page) (*services.Paginated[models.RecipeResponse], error)
	Get(ctx context.Context, id uint, viewerID *uint) (*models.RecipeResponse, error)
	Create(ctx context.Context, authorID uint, input services.CreateRecipeInput) (*models.RecipeResponse, error)
	Update(ctx context.Context, id uint, actor services.Actor, input services.UpdateRecipeInput) (*models.RecipeResponse, error)
	Delete(ctx context.Context, id uint, actor services.Actor) error
}

// RecipeCollection is a per-user recipe set: favorites or the shopping cart.
type RecipeCollection interface {
	Add(ctx context.Context, userID, recipeID uint) (*models.RecipeShortResponse, error)
	Remove(ctx context.Context, userID, recipeID uint) error
}

type ShoppingListService interface {
	Items(ctx context.Context, userID uint) ([]models.ShoppingListItem, error)
}

type RecipePublisher interface {
	EnqueueRecipePublished(ctx context.Context, recipeID, authorID uint, recipeName string) error
}

type RecipeHandler struct {
	recipes      RecipeService
	favorites    RecipeCollection
	cart         RecipeCollection
	shoppingList ShoppingListService
	publisher    RecipePublisher
	pageSize     int
}

func NewRecipeHandler(
	recipes RecipeService,
	favorites RecipeCollection,
	cart RecipeCollection,
	shoppingList ShoppingListService,
	publisher RecipePublisher,
	pageSize int,
) *RecipeHandler {
	return &RecipeHandler{
		recipes:      recipes,
		favorites:    favorites,
		cart:         cart,
		shoppingList: shoppingList,
		publisher:    publisher,
		pageSize:     pageSize,
	}
}

func (h *RecipeHandler) List(c echo.Context) error {
	filter := services.RecipeFilter{
		Tags:             c.QueryParams()["tags"],
		IsFavorited:      queryFlag(c, "is_favorited"),
		IsInShoppingCart: queryFlag(c, "is_in_shopping_cart"),
	}
	if author := c.QueryParam("author"); author != "" {
		id, err := strconv.ParseUint(author, 10, 64)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "author must be a user id")
		}
		authorID := uint(id)
		filter.AuthorID = &authorID
	}

	result, err := h.recipes.List(c.Request().Context(), viewer(c), filter, pageFromQuery(c, h.pageSize))
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, paginate(c, result))
}

func (h *RecipeHandler) Get(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	recipe, err := h.recipes.Get(c.Request().Context(), id, viewer(c))
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, recipe)
}

func (h *RecipeHandler) Create(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	var input services.CreateRecipeInput
	if err := bindAndValidate(c, &input); err != nil {
		return err
	}

	recipe, err := h.recipes.Create(ctx, userID, input)
	if err != nil {
		return serviceError(err)
	}

	if h.publisher != nil {
		if err := h.publisher.EnqueueRecipePublished(ctx, recipe.ID, userID, recipe.Name); err != nil {
			logging.Warn(ctx).Err(err).Uint("recipe_id", recipe.ID).Msg("failed to enqueue recipe notification")
		}
	}

	return c.JSON(http.StatusCreated, recipe)
}

func (h *RecipeHandler) Update(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	var input services.UpdateRecipeInput
	if err := bindAndValidate(c, &input); err != nil {
		return err
	}

	recipe, err := h.recipes.Update(c.Request().Context(), id, a, input)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, recipe)
}

func (h *RecipeHandler) Delete(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	if err := h.recipes.Delete(c.Request().Context(), id, a); err != nil {
		return serviceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *RecipeHandler) AddFavorite(c echo.Context) error {
	return h.add(c, h.favorites)
}

func (h *RecipeHandler) RemoveFavorite(c echo.Context) error {
	return h.remove(c, h.favorites)
}

func (h *RecipeHandler) AddToCart(c echo.Context) error {
	return h.add(c, h.cart)
}

func (h *RecipeHandler) RemoveFromCart(c echo.Context) error {
	return h.remove(c, h.cart)
}

func (h *RecipeHandler) add(c echo.Context, collection RecipeCollection) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	recipeID, err := parseID(c, "id")
	if err != nil {
		return err
	}

	short, err := collection.Add(c.Request().Context(), userID, recipeID)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusCreated, short)
}

func (h *RecipeHandler) remove(c echo.Context, collection RecipeCollection) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	recipeID, err := parseID(c, "id")
	if err != nil {
		return err
	}

	if err := collection.Remove(c.Request().Context(), userID, recipeID); err != nil {
		return serviceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *RecipeHandler) DownloadShoppingCart(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	format, err := services.ParseShoppingListFormat(c.QueryParam("format"))
	if err != nil {
		return serviceError(err)
	}

	items, err := h.shoppingList.Items(c.Request().Context(), userID)
	if err != nil {
		return serviceError(err)
	}

	var buf bytes.Buffer
	if err := services.RenderShoppingList(&buf, format, items); err != nil {
		return err
	}

	shoppingListDownloads.WithLabelValues(string(format)).Inc()

	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename=%q", format.Filename()))
	return c.Blob(http.StatusOK, format.ContentType(), buf.Bytes())
}

func queryFlag(c echo.Context, name string) bool {
	switch c.QueryParam(name) {
	case "1", "true", "True":
		return true
	}
	return false
}
