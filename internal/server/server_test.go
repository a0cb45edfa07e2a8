package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-echo-foodgram/internal/authz"
	"go-echo-foodgram/internal/handlers"
	"go-echo-foodgram/internal/middleware"
	"go-echo-foodgram/internal/models"
	"go-echo-foodgram/internal/services"
)

const testSecret = "server-test-secret"

type stubTags struct{}

func (stubTags) List(context.Context) ([]models.Tag, error) {
	return []models.Tag{{ID: 1, Name: "Breakfast", Color: "#E26C2D", Slug: "breakfast"}}, nil
}

func (stubTags) Get(_ context.Context, id uint) (*models.Tag, error) {
	return &models.Tag{ID: id, Name: "Breakfast", Color: "#E26C2D", Slug: "breakfast"}, nil
}

func (stubTags) Create(_ context.Context, in services.CreateTagInput) (*models.Tag, error) {
	return &models.Tag{ID: 2, Name: in.Name, Color: in.Color, Slug: in.Slug}, nil
}

func (stubTags) Update(_ context.Context, id uint, _ services.UpdateTagInput) (*models.Tag, error) {
	return &models.Tag{ID: id}, nil
}

func (stubTags) Delete(context.Context, uint) error { return nil }

type stubAuth struct{}

func (stubAuth) Login(context.Context, services.LoginInput) (string, error) { return "token", nil }

type stubAccounts struct {
	mu    sync.Mutex
	roles map[uint]string
}

func (a *stubAccounts) AccountRole(_ context.Context, id uint) (string, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	role, ok := a.roles[id]
	return role, ok, nil
}

func (a *stubAccounts) delete(id uint) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.roles, id)
}

type stubFavorites struct{}

func (stubFavorites) Add(_ context.Context, _, recipeID uint) (*models.RecipeShortResponse, error) {
	return &models.RecipeShortResponse{ID: recipeID, Name: "Syrniki", CookingTime: 20}, nil
}

func (stubFavorites) Remove(context.Context, uint, uint) error { return nil }

func newTestServer(t *testing.T, loginRate float64) *echo.Echo {
	t.Helper()
	return newTestServerWithAccounts(t, loginRate, &stubAccounts{roles: map[uint]string{
		1: models.RoleAdmin,
		3: models.RoleUser,
	}})
}

func newTestServerWithAccounts(t *testing.T, loginRate float64, accounts middleware.AccountLookup) *echo.Echo {
	t.Helper()
	enforcer, err := authz.NewEnforcer()
	require.NoError(t, err)

	health := handlers.NewHealthHandler(nil, "")
	t.Cleanup(func() { _ = health.Close() })

	return New(Options{
		ServiceName:    "test",
		JWTSecret:      testSecret,
		AllowOrigins:   []string{"*"},
		LoginRateLimit: loginRate,
	}, Handlers{
		Health:      health,
		Auth:        handlers.NewAuthHandler(stubAuth{}),
		Users:       handlers.NewUserHandler(nil, nil, nil, 6),
		Tags:        handlers.NewTagHandler(stubTags{}),
		Ingredients: handlers.NewIngredientHandler(nil),
		Recipes:     handlers.NewRecipeHandler(nil, stubFavorites{}, nil, nil, nil, 6),
	}, accounts, enforcer)
}

func tokenFor(t *testing.T, userID uint, role string) string {
	t.Helper()
	claims := middleware.JWTClaims{
		UserID: userID,
		Email:  "cook@example.com",
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return "Token " + token
}

func do(e *echo.Echo, method, path, auth, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if auth != "" {
		req.Header.Set(echo.HeaderAuthorization, auth)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestPublicReadWithTrailingSlash(t *testing.T) {
	e := newTestServer(t, 0)

	rec := do(e, http.MethodGet, "/api/tags/", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"slug":"breakfast"`)
}

func TestAdminRoutesRequireRole(t *testing.T) {
	e := newTestServer(t, 0)
	body := `{"name":"Lunch","color":"#49B64E","slug":"lunch"}`

	rec := do(e, http.MethodPost, "/api/tags", "", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(e, http.MethodPost, "/api/tags", tokenFor(t, 3, models.RoleUser), body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(e, http.MethodPost, "/api/tags", tokenFor(t, 1, models.RoleAdmin), body)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"Lunch"`)
}

func TestInvalidPayloadIsRejectedBeforeService(t *testing.T) {
	e := newTestServer(t, 0)

	rec := do(e, http.MethodPost, "/api/tags", tokenFor(t, 1, models.RoleAdmin), `{"name":"Lunch","color":"green","slug":"lunch"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"color"`)

	rec = do(e, http.MethodPost, "/api/tags", tokenFor(t, 1, models.RoleAdmin), `{"name":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnknownRouteIsNotFound(t *testing.T) {
	e := newTestServer(t, 0)

	rec := do(e, http.MethodGet, "/api/nope", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLoginIsRateLimited(t *testing.T) {
	e := newTestServer(t, 1)
	body := `{"email":"cook@example.com","password":"secret-pass"}`

	rec := do(e, http.MethodPost, "/api/auth/token/login", "", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"auth_token":"token"`)

	rec = do(e, http.MethodPost, "/api/auth/token/login", "", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	e := newTestServer(t, 0)
	do(e, http.MethodGet, "/api/tags", "", "")

	rec := do(e, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "foodgram_http_requests_total")
}

func TestDeletedUserTokenIsRejected(t *testing.T) {
	accounts := &stubAccounts{roles: map[uint]string{5: models.RoleUser}}
	e := newTestServerWithAccounts(t, 0, accounts)
	token := tokenFor(t, 5, models.RoleUser)

	rec := do(e, http.MethodPost, "/api/recipes/1/favorite", token, "")
	require.Equal(t, http.StatusCreated, rec.Code)

	accounts.delete(5)

	rec = do(e, http.MethodPost, "/api/recipes/1/favorite", token, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "user no longer exists")
}

func TestDemotedAdminLosesAdminRoutes(t *testing.T) {
	accounts := &stubAccounts{roles: map[uint]string{1: models.RoleUser}}
	e := newTestServerWithAccounts(t, 0, accounts)

	rec := do(e, http.MethodPost, "/api/tags", tokenFor(t, 1, models.RoleAdmin), `{"name":"Lunch","color":"#49B64E","slug":"lunch"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
