package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-echo-foodgram/internal/middleware"
	"go-echo-foodgram/internal/models"
	"go-echo-foodgram/internal/services"
)

func newEcho() *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = middleware.ErrorHandler
	e.Validator = middleware.Validator{}
	return e
}

// asUser fakes what the JWT middleware stores on the context.
func asUser(id uint, role string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set(string(middleware.UserIDKey), id)
			c.Set(string(middleware.RoleKey), role)
			return next(c)
		}
	}
}

func do(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

type fakeRegistrar struct {
	err error
	got services.RegisterInput
}

func (f *fakeRegistrar) Register(_ context.Context, input services.RegisterInput) (*models.User, error) {
	f.got = input
	if f.err != nil {
		return nil, f.err
	}
	return &models.User{ID: 1, Email: input.Email, Username: input.Username, FirstName: input.FirstName, LastName: input.LastName}, nil
}

type fakeUsers struct {
	users []models.UserResponse
}

func (f *fakeUsers) List(_ context.Context, _ *uint, page services.Page) (*services.Paginated[models.UserResponse], error) {
	end := min(page.Offset()+page.Limit, len(f.users))
	start := min(page.Offset(), end)
	return &services.Paginated[models.UserResponse]{Count: int64(len(f.users)), Page: page, Results: f.users[start:end]}, nil
}

func (f *fakeUsers) Get(_ context.Context, id uint, _ *uint) (*models.UserResponse, error) {
	for _, u := range f.users {
		if u.ID == id {
			return &u, nil
		}
	}
	return nil, services.ErrUserNotFound
}

func (f *fakeUsers) SetPassword(context.Context, uint, services.SetPasswordInput) error {
	return services.ErrWrongPassword
}

func (f *fakeUsers) Delete(context.Context, uint) error { return nil }

type fakeSubscriptions struct {
	limit int
}

func (f *fakeSubscriptions) List(_ context.Context, _ uint, page services.Page, limit int) (*services.Paginated[models.SubscriptionResponse], error) {
	f.limit = limit
	return &services.Paginated[models.SubscriptionResponse]{Page: page}, nil
}

func (f *fakeSubscriptions) Subscribe(_ context.Context, userID, authorID uint, limit int) (*models.SubscriptionResponse, error) {
	if userID == authorID {
		return nil, services.ErrSelfSubscription
	}
	f.limit = limit
	return &models.SubscriptionResponse{UserResponse: models.UserResponse{ID: authorID, IsSubscribed: true}}, nil
}

func (f *fakeSubscriptions) Unsubscribe(context.Context, uint, uint) error {
	return services.ErrNotSubscribed
}

func TestUserHandler_Register(t *testing.T) {
	reg := &fakeRegistrar{}
	h := NewUserHandler(reg, &fakeUsers{}, &fakeSubscriptions{}, 6)
	e := newEcho()
	e.POST("/api/users", h.Register)

	rec := do(e, http.MethodPost, "/api/users", `{"email":"not-an-email","username":"bad name","first_name":"A","last_name":"B","password":"short"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body middleware.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body.Fields, "email")
	assert.Contains(t, body.Fields, "username")
	assert.Contains(t, body.Fields, "password")

	rec = do(e, http.MethodPost, "/api/users", `{"email":"anna@example.com","username":"anna","first_name":"Anna","last_name":"Cook","password":"long-enough"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"id":1,"email":"anna@example.com","username":"anna","first_name":"Anna","last_name":"Cook","is_subscribed":false}`, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "password")

	reg.err = services.ErrUserExists
	rec = do(e, http.MethodPost, "/api/users", `{"email":"anna@example.com","username":"anna","first_name":"Anna","last_name":"Cook","password":"long-enough"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUserHandler_ListPagination(t *testing.T) {
	users := make([]models.UserResponse, 7)
	for i := range users {
		users[i] = models.UserResponse{ID: uint(i + 1)}
	}
	h := NewUserHandler(&fakeRegistrar{}, &fakeUsers{users: users}, &fakeSubscriptions{}, 3)
	e := newEcho()
	e.GET("/api/users", h.List)

	rec := do(e, http.MethodGet, "/api/users?page=2", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var page PaginatedResponse[models.UserResponse]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.EqualValues(t, 7, page.Count)
	require.Len(t, page.Results, 3)
	assert.EqualValues(t, 4, page.Results[0].ID)
	require.NotNil(t, page.Next)
	assert.Equal(t, "http://example.com/api/users?page=3", *page.Next)
	require.NotNil(t, page.Previous)
	assert.Equal(t, "http://example.com/api/users", *page.Previous)

	rec = do(e, http.MethodGet, "/api/users?page=3&limit=3", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Nil(t, page.Next)
	assert.Len(t, page.Results, 1)
}

func TestUserHandler_Subscriptions(t *testing.T) {
	subs := &fakeSubscriptions{}
	h := NewUserHandler(&fakeRegistrar{}, &fakeUsers{}, subs, 6)
	e := newEcho()
	g := e.Group("/api/users", asUser(5, models.RoleUser))
	g.POST("/:id/subscribe", h.Subscribe)
	g.DELETE("/:id/subscribe", h.Unsubscribe)
	g.GET("/subscriptions", h.Subscriptions)
	g.POST("/set_password", h.SetPassword)

	rec := do(e, http.MethodPost, "/api/users/5/subscribe", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), services.ErrSelfSubscription.Error())

	rec = do(e, http.MethodPost, "/api/users/9/subscribe?recipes_limit=2", "")
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 2, subs.limit)

	rec = do(e, http.MethodDelete, "/api/users/9/subscribe", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(e, http.MethodPost, "/api/users/abc/subscribe", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(e, http.MethodGet, "/api/users/subscriptions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"count":0,"next":null,"previous":null,"results":[]}`, rec.Body.String())
	assert.Zero(t, subs.limit)

	rec = do(e, http.MethodPost, "/api/users/set_password", `{"new_password":"another-pass","current_password":"wrong-one"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUserHandler_MeRequiresUser(t *testing.T) {
	h := NewUserHandler(&fakeRegistrar{}, &fakeUsers{}, &fakeSubscriptions{}, 6)
	e := newEcho()
	e.GET("/api/users/me", h.Me)

	assert.Equal(t, http.StatusUnauthorized, do(e, http.MethodGet, "/api/users/me", "").Code)
}

type fakeRecipes struct {
	filter  services.RecipeFilter
	viewer  *uint
	created services.CreateRecipeInput
	actor   services.Actor
}

func (f *fakeRecipes) List(_ context.Context, viewerID *uint, filter services.RecipeFilter, page services.Page) (*services.Paginated[models.RecipeResponse], error) {
	f.filter, f.viewer = filter, viewerID
	return &services.Paginated[models.RecipeResponse]{Page: page}, nil
}

func (f *fakeRecipes) Get(_ context.Context, id uint, _ *uint) (*models.RecipeResponse, error) {
	if id != 1 {
		return nil, services.ErrRecipeNotFound
	}
	return &models.RecipeResponse{ID: 1, Name: "Pancakes"}, nil
}

func (f *fakeRecipes) Create(_ context.Context, authorID uint, input services.CreateRecipeInput) (*models.RecipeResponse, error) {
	f.created = input
	return &models.RecipeResponse{ID: 42, Name: input.Name, Author: models.UserResponse{ID: authorID}}, nil
}

func (f *fakeRecipes) Update(_ context.Context, _ uint, a services.Actor, _ services.UpdateRecipeInput) (*models.RecipeResponse, error) {
	f.actor = a
	return nil, services.ErrNotAuthor
}

func (f *fakeRecipes) Delete(_ context.Context, _ uint, a services.Actor) error {
	f.actor = a
	return nil
}

type fakeCollection struct {
	members map[uint]bool
	already error
	missing error
}

func (f *fakeCollection) Add(_ context.Context, _ uint, recipeID uint) (*models.RecipeShortResponse, error) {
	if f.members[recipeID] {
		return nil, f.already
	}
	f.members[recipeID] = true
	return &models.RecipeShortResponse{ID: recipeID, Name: "Pancakes", CookingTime: 20}, nil
}

func (f *fakeCollection) Remove(_ context.Context, _ uint, recipeID uint) error {
	if !f.members[recipeID] {
		return f.missing
	}
	delete(f.members, recipeID)
	return nil
}

type fakeShoppingList struct {
	items []models.ShoppingListItem
}

func (f *fakeShoppingList) Items(context.Context, uint) ([]models.ShoppingListItem, error) {
	return f.items, nil
}

type fakePublisher struct {
	published []uint
	err       error
}

func (f *fakePublisher) EnqueueRecipePublished(_ context.Context, recipeID, _ uint, _ string) error {
	f.published = append(f.published, recipeID)
	return f.err
}

func newRecipeHandler(recipes *fakeRecipes, pub *fakePublisher, list *fakeShoppingList) *RecipeHandler {
	favorites := &fakeCollection{members: map[uint]bool{}, already: services.ErrAlreadyFavorited, missing: services.ErrNotFavorited}
	cart := &fakeCollection{members: map[uint]bool{}, already: services.ErrAlreadyInCart, missing: services.ErrNotInCart}
	return NewRecipeHandler(recipes, favorites, cart, list, pub, 6)
}

func TestRecipeHandler_ListFilters(t *testing.T) {
	recipes := &fakeRecipes{}
	h := newRecipeHandler(recipes, &fakePublisher{}, &fakeShoppingList{})
	e := newEcho()
	e.GET("/api/recipes", h.List)
	e.GET("/api/recipes/:id", h.Get)

	rec := do(e, http.MethodGet, "/api/recipes?tags=breakfast&tags=lunch&author=3&is_favorited=1&is_in_shopping_cart=0", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"breakfast", "lunch"}, recipes.filter.Tags)
	require.NotNil(t, recipes.filter.AuthorID)
	assert.EqualValues(t, 3, *recipes.filter.AuthorID)
	assert.True(t, recipes.filter.IsFavorited)
	assert.False(t, recipes.filter.IsInShoppingCart)
	assert.Nil(t, recipes.viewer)

	assert.Equal(t, http.StatusBadRequest, do(e, http.MethodGet, "/api/recipes?author=chef", "").Code)
	assert.Equal(t, http.StatusNotFound, do(e, http.MethodGet, "/api/recipes/2", "").Code)
	assert.Equal(t, http.StatusOK, do(e, http.MethodGet, "/api/recipes/1", "").Code)
}

func TestRecipeHandler_Create(t *testing.T) {
	recipes := &fakeRecipes{}
	pub := &fakePublisher{err: errors.New("redis down")}
	h := newRecipeHandler(recipes, pub, &fakeShoppingList{})
	e := newEcho()
	e.POST("/api/recipes", h.Create, asUser(7, models.RoleUser))

	rec := do(e, http.MethodPost, "/api/recipes", `{"ingredients":[{"id":1,"amount":0},{"id":1,"amount":3}],"tags":[],"image":"","name":"","text":"","cooking_time":0}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body middleware.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	for _, field := range []string{"ingredients", "tags", "image", "name", "text", "cooking_time"} {
		assert.Contains(t, body.Fields, field)
	}
	assert.Empty(t, pub.published)

	rec = do(e, http.MethodPost, "/api/recipes", `{"ingredients":[{"id":1,"amount":200}],"tags":[1],"image":"data:image/png;base64,AAAA","name":"Pancakes","text":"Fry.","cooking_time":15}`)
	require.Equal(t, http.StatusCreated, rec.Code, "enqueue failures do not fail the request")
	assert.Equal(t, []uint{42}, pub.published)
	assert.Equal(t, 15, recipes.created.CookingTime)
}

func TestRecipeHandler_UpdateDeleteUseActor(t *testing.T) {
	recipes := &fakeRecipes{}
	h := newRecipeHandler(recipes, &fakePublisher{}, &fakeShoppingList{})
	e := newEcho()
	g := e.Group("/api/recipes", asUser(3, models.RoleAdmin))
	g.PATCH("/:id", h.Update)
	g.DELETE("/:id", h.Delete)

	rec := do(e, http.MethodPatch, "/api/recipes/1", `{"name":"Crepes"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(e, http.MethodDelete, "/api/recipes/1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, services.Actor{UserID: 3, Role: models.RoleAdmin}, recipes.actor)
}

func TestRecipeHandler_FavoriteAndCart(t *testing.T) {
	h := newRecipeHandler(&fakeRecipes{}, &fakePublisher{}, &fakeShoppingList{})
	e := newEcho()
	g := e.Group("/api/recipes", asUser(1, models.RoleUser))
	g.POST("/:id/favorite", h.AddFavorite)
	g.DELETE("/:id/favorite", h.RemoveFavorite)
	g.POST("/:id/shopping_cart", h.AddToCart)
	g.DELETE("/:id/shopping_cart", h.RemoveFromCart)

	rec := do(e, http.MethodPost, "/api/recipes/1/favorite", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"id":1,"name":"Pancakes","image":"","cooking_time":20}`, rec.Body.String())

	rec = do(e, http.MethodPost, "/api/recipes/1/favorite", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), services.ErrAlreadyFavorited.Error())

	assert.Equal(t, http.StatusNoContent, do(e, http.MethodDelete, "/api/recipes/1/favorite", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(e, http.MethodDelete, "/api/recipes/1/favorite", "").Code)

	assert.Equal(t, http.StatusCreated, do(e, http.MethodPost, "/api/recipes/1/shopping_cart", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(e, http.MethodPost, "/api/recipes/1/shopping_cart", "").Code)
	assert.Equal(t, http.StatusNoContent, do(e, http.MethodDelete, "/api/recipes/1/shopping_cart", "").Code)
}

func TestRecipeHandler_DownloadShoppingCart(t *testing.T) {
	list := &fakeShoppingList{items: []models.ShoppingListItem{
		{Name: "flour", MeasurementUnit: "g", Amount: 700},
		{Name: "milk", MeasurementUnit: "ml", Amount: 300},
	}}
	h := newRecipeHandler(&fakeRecipes{}, &fakePublisher{}, list)
	e := newEcho()
	e.GET("/api/recipes/download_shopping_cart", h.DownloadShoppingCart, asUser(1, models.RoleUser))

	rec := do(e, http.MethodGet, "/api/recipes/download_shopping_cart", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get(echo.HeaderContentType))
	assert.Equal(t, `attachment; filename="shopping_list.txt"`, rec.Header().Get(echo.HeaderContentDisposition))
	assert.Equal(t, "Shopping list:\n- flour (g) — 700\n- milk (ml) — 300\n", rec.Body.String())

	rec = do(e, http.MethodGet, "/api/recipes/download_shopping_cart?format=csv", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "name,measurement_unit,amount\nflour,g,700\nmilk,ml,300\n", rec.Body.String())

	rec = do(e, http.MethodGet, "/api/recipes/download_shopping_cart?format=pdf", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"unknown shopping list format"}`, rec.Body.String())
}

func TestHealthHandler(t *testing.T) {
	h := &HealthHandler{
		checkDB:    func(context.Context) error { return nil },
		checkRedis: func(context.Context) error { return nil },
	}
	e := newEcho()
	e.GET("/api/health", h.Check)

	rec := do(e, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy","database":"healthy","redis":"healthy"}`, rec.Body.String())

	h.checkRedis = func(context.Context) error { return errors.New("connection refused") }
	rec = do(e, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"degraded","database":"healthy","redis":"unhealthy"}`, rec.Body.String())
}

func TestHealthHandlerClose(t *testing.T) {
	h := NewHealthHandler(nil, "127.0.0.1:1")
	require.NotNil(t, h.close)
	assert.NoError(t, h.Close())
	assert.Error(t, h.checkRedis(context.Background()), "inspector is closed")

	assert.NoError(t, (&HealthHandler{}).Close())
}
