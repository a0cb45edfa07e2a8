package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-echo-foodgram/config"
	"go-echo-foodgram/internal/authz"
	"go-echo-foodgram/internal/database"
	"go-echo-foodgram/internal/handlers"
	"go-echo-foodgram/internal/images"
	"go-echo-foodgram/internal/jobs"
	"go-echo-foodgram/internal/logging"
	"go-echo-foodgram/internal/middleware"
	"go-echo-foodgram/internal/server"
	"go-echo-foodgram/internal/services"
	"go-echo-foodgram/internal/telemetry"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logging.Init(cfg.OTelServiceName, cfg.IsDevelopment())

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Options{
		ServiceName: cfg.OTelServiceName,
		Endpoint:    cfg.OTelEndpoint,
		Environment: cfg.Environment,
	})
	if err != nil {
		logging.Logger().Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logging.Logger().Error().Err(err).Msg("failed to shutdown telemetry")
		}
	}()

	if err := middleware.InitMetrics(); err != nil {
		logging.Logger().Fatal().Err(err).Msg("failed to initialize metrics")
	}

	db, err := database.New(database.Config{DatabaseURL: cfg.DatabaseURL, Debug: cfg.IsDevelopment()})
	if err != nil {
		logging.Logger().Fatal().Err(err).Msg("failed to initialize database")
	}
	defer database.Close(db)

	if err := database.Migrate(db); err != nil {
		logging.Logger().Fatal().Err(err).Msg("failed to run database migrations")
	}

	enforcer, err := authz.NewEnforcer()
	if err != nil {
		logging.Logger().Fatal().Err(err).Msg("failed to load authorization policy")
	}

	store, err := imageStore(ctx, cfg)
	if err != nil {
		logging.Logger().Fatal().Err(err).Msg("failed to initialize image storage")
	}

	redisAddr := cfg.RedisAddr()
	jobClient, err := jobs.NewClient(redisAddr)
	if err != nil {
		logging.Logger().Fatal().Err(err).Msg("failed to create job client")
	}
	defer jobClient.Close()

	authService := services.NewAuthService(db, cfg.JWTSecret, cfg.JWTExpiresIn)
	userService := services.NewUserService(db)
	subscriptionService := services.NewSubscriptionService(db)
	tagService := services.NewTagService(db)
	ingredientService := services.NewIngredientService(db)
	recipeService := services.NewRecipeService(db, store)

	healthHandler := handlers.NewHealthHandler(db, redisAddr)
	defer healthHandler.Close()

	h := server.Handlers{
		Health:      healthHandler,
		Auth:        handlers.NewAuthHandler(authService),
		Users:       handlers.NewUserHandler(authService, userService, subscriptionService, cfg.PageSize),
		Tags:        handlers.NewTagHandler(tagService),
		Ingredients: handlers.NewIngredientHandler(ingredientService),
		Recipes: handlers.NewRecipeHandler(
			recipeService,
			services.NewFavoriteService(db),
			services.NewShoppingCartService(db),
			services.NewShoppingListService(db),
			jobClient,
			cfg.PageSize,
		),
	}

	opts := server.Options{
		ServiceName:    cfg.OTelServiceName,
		Development:    cfg.IsDevelopment(),
		JWTSecret:      cfg.JWTSecret,
		AllowOrigins:   cfg.AllowOrigins(),
		LoginRateLimit: cfg.LoginRateLimit,
	}
	if cfg.ImageStorage == "local" {
		opts.MediaURL = cfg.MediaURL
		opts.MediaRoot = cfg.MediaRoot
	}

	e := server.New(opts, h, userService, enforcer)

	go func() {
		addr := fmt.Sprintf(":%s", cfg.Port)
		logging.Logger().Info().Str("port", cfg.Port).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logging.Logger().Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Logger().Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logging.Logger().Error().Err(err).Msg("failed to shutdown server")
	}
}

func imageStore(ctx context.Context, cfg *config.Config) (images.Store, error) {
	if cfg.ImageStorage == "s3" {
		return images.NewS3Store(ctx, images.S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			PublicURL: cfg.S3PublicURL,
		})
	}
	return images.NewLocalStore(cfg.MediaRoot, cfg.MediaURL), nil
}
