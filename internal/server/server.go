// Package server assembles the Echo application: middleware stack, routes
// and the static media mount.
package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"golang.org/x/time/rate"

	"go-echo-foodgram/internal/handlers"
	"go-echo-foodgram/internal/middleware"
)

type Options struct {
	ServiceName    string
	Development    bool
	JWTSecret      string
	AllowOrigins   []string
	LoginRateLimit float64
	// MediaURL and MediaRoot mount locally stored images; leave empty when
	// images live in object storage.
	MediaURL  string
	MediaRoot string
}

type Handlers struct {
	Health      *handlers.HealthHandler
	Auth        *handlers.AuthHandler
	Users       *handlers.UserHandler
	Tags        *handlers.TagHandler
	Ingredients *handlers.IngredientHandler
	Recipes     *handlers.RecipeHandler
}

func New(opts Options, h Handlers, accounts middleware.AccountLookup, authz middleware.Authorizer) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.JSONSerializer = JSONSerializer{}
	e.Validator = middleware.Validator{}
	e.HTTPErrorHandler = middleware.ErrorHandler

	e.Pre(echomiddleware.RemoveTrailingSlash())

	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(otelecho.Middleware(opts.ServiceName, otelecho.WithSkipper(func(c echo.Context) bool {
		return c.Path() == "/api/health" || c.Path() == "/metrics"
	})))
	e.Use(middleware.ActiveRequests())
	e.Use(middleware.Metrics())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: opts.AllowOrigins,
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
	}))

	if opts.Development {
		e.Use(echomiddleware.Logger())
	}

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	if opts.MediaURL != "" && opts.MediaRoot != "" {
		e.Static(opts.MediaURL, opts.MediaRoot)
	}

	api := e.Group("/api", middleware.OptionalJWTAuth(opts.JWTSecret, accounts), middleware.Authorize(authz))

	api.GET("/health", h.Health.Check)

	api.POST("/auth/token/login", h.Auth.Login, loginRateLimiter(opts.LoginRateLimit))
	api.POST("/auth/token/logout", h.Auth.Logout)

	api.GET("/users", h.Users.List)
	api.POST("/users", h.Users.Register)
	api.GET("/users/me", h.Users.Me)
	api.POST("/users/set_password", h.Users.SetPassword)
	api.GET("/users/subscriptions", h.Users.Subscriptions)
	api.GET("/users/:id", h.Users.Get)
	api.DELETE("/users/:id", h.Users.Delete)
	api.POST("/users/:id/subscribe", h.Users.Subscribe)
	api.DELETE("/users/:id/subscribe", h.Users.Unsubscribe)

	api.GET("/tags", h.Tags.List)
	api.POST("/tags", h.Tags.Create)
	api.GET("/tags/:id", h.Tags.Get)
	api.PATCH("/tags/:id", h.Tags.Update)
	api.DELETE("/tags/:id", h.Tags.Delete)

	api.GET("/ingredients", h.Ingredients.List)
	api.POST("/ingredients", h.Ingredients.Create)
	api.GET("/ingredients/:id", h.Ingredients.Get)
	api.PATCH("/ingredients/:id", h.Ingredients.Update)
	api.DELETE("/ingredients/:id", h.Ingredients.Delete)

	api.GET("/recipes", h.Recipes.List)
	api.POST("/recipes", h.Recipes.Create)
	api.GET("/recipes/download_shopping_cart", h.Recipes.DownloadShoppingCart)
	api.GET("/recipes/:id", h.Recipes.Get)
	api.PATCH("/recipes/:id", h.Recipes.Update)
	api.DELETE("/recipes/:id", h.Recipes.Delete)
	api.POST("/recipes/:id/favorite", h.Recipes.AddFavorite)
	api.DELETE("/recipes/:id/favorite", h.Recipes.RemoveFavorite)
	api.POST("/recipes/:id/shopping_cart", h.Recipes.AddToCart)
	api.DELETE("/recipes/:id/shopping_cart", h.Recipes.RemoveFromCart)

	return e
}

// loginRateLimiter throttles token requests per client IP.
func loginRateLimiter(perSecond float64) echo.MiddlewareFunc {
	if perSecond <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}

	store := echomiddleware.NewRateLimiterMemoryStoreWithConfig(echomiddleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(perSecond),
		Burst:     burst,
		ExpiresIn: 3 * time.Minute,
	})
	return echomiddleware.RateLimiterWithConfig(echomiddleware.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		DenyHandler: func(c echo.Context, _ string, _ error) error {
			return echo.NewHTTPError(http.StatusTooManyRequests, "too many login attempts")
		},
	})
}
