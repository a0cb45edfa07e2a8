package services

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"go-echo-foodgram/internal/logging"
	"go-echo-foodgram/internal/models"
)

var (
	ErrAlreadyFavorited = errors.New("recipe is already in favorites")
	ErrNotFavorited     = errors.New("recipe is not in favorites")
	ErrAlreadyInCart    = errors.New("recipe is already in the shopping cart")
	ErrNotInCart        = errors.New("recipe is not in the shopping cart")
)

// CollectionService manages one per-user set of recipes, favorites or the
// shopping cart, backed by a (user_id, recipe_id) unique table.
type CollectionService struct {
	db         *gorm.DB
	name       string
	model      interface{}
	newRow     func(userID, recipeID uint) interface{}
	errAlready error
	errMissing error
	changes    metric.Int64Counter
}

func NewFavoriteService(db *gorm.DB) *CollectionService {
	return &CollectionService{
		db:    db,
		name:  "favorite",
		model: &models.Favorite{},
		newRow: func(userID, recipeID uint) interface{} {
			return &models.Favorite{UserID: userID, RecipeID: recipeID}
		},
		errAlready: ErrAlreadyFavorited,
		errMissing: ErrNotFavorited,
		changes:    newCounter("favorites.changes", "Recipes added to and removed from favorites"),
	}
}

func NewShoppingCartService(db *gorm.DB) *CollectionService {
	return &CollectionService{
		db:    db,
		name:  "shopping_cart",
		model: &models.ShoppingCart{},
		newRow: func(userID, recipeID uint) interface{} {
			return &models.ShoppingCart{UserID: userID, RecipeID: recipeID}
		},
		errAlready: ErrAlreadyInCart,
		errMissing: ErrNotInCart,
		changes:    newCounter("shopping_cart.changes", "Recipes added to and removed from shopping carts"),
	}
}

func (s *CollectionService) Add(ctx context.Context, userID, recipeID uint) (*models.RecipeShortResponse, error) {
	ctx, span := tracer.Start(ctx, s.name+".add")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("user.id", int64(userID)),
		attribute.Int64("recipe.id", int64(recipeID)),
	)

	var recipe models.Recipe
	if err := s.db.WithContext(ctx).First(&recipe, recipeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecipeNotFound
		}
		return nil, err
	}

	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(s.newRow(userID, recipeID))
	if res.Error != nil {
		return nil, fmt.Errorf("add to %s: %w", s.name, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, s.errAlready
	}

	if s.changes != nil {
		s.changes.Add(ctx, 1, metric.WithAttributes(attribute.String("action", "add")))
	}

	logging.Info(ctx).
		Uint("user_id", userID).
		Uint("recipe_id", recipeID).
		Str("collection", s.name).
		Msg("recipe added")

	short := recipe.ToShortResponse()
	return &short, nil
}

func (s *CollectionService) Remove(ctx context.Context, userID, recipeID uint) error {
	ctx, span := tracer.Start(ctx, s.name+".remove")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("user.id", int64(userID)),
		attribute.Int64("recipe.id", int64(recipeID)),
	)

	var exists int64
	if err := s.db.WithContext(ctx).Model(&models.Recipe{}).Where("id = ?", recipeID).Count(&exists).Error; err != nil {
		return err
	}
	if exists == 0 {
		return ErrRecipeNotFound
	}

	res := s.db.WithContext(ctx).
		Where("user_id = ? AND recipe_id = ?", userID, recipeID).
		Delete(s.model)
	if res.Error != nil {
		return fmt.Errorf("remove from %s: %w", s.name, res.Error)
	}
	if res.RowsAffected == 0 {
		return s.errMissing
	}

	if s.changes != nil {
		s.changes.Add(ctx, 1, metric.WithAttributes(attribute.String("action", "remove")))
	}

	logging.Info(ctx).
		Uint("user_id", userID).
		Uint("recipe_id", recipeID).
		Str("collection", s.name).
		Msg("recipe removed")

	return nil
}
