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
	ErrSelfSubscription  = errors.New("you cannot subscribe to yourself")
	ErrAlreadySubscribed = errors.New("already subscribed to this author")
	ErrNotSubscribed     = errors.New("not subscribed to this author")
)

type SubscriptionService struct {
	db      *gorm.DB
	changes metric.Int64Counter
}

func NewSubscriptionService(db *gorm.DB) *SubscriptionService {
	return &SubscriptionService{
		db:      db,
		changes: newCounter("subscriptions.changes", "Subscriptions created and removed"),
	}
}

// List returns the authors userID follows, newest subscription first.
// recipesLimit <= 0 embeds every recipe of each author.
func (s *SubscriptionService) List(ctx context.Context, userID uint, page Page, recipesLimit int) (*Paginated[models.SubscriptionResponse], error) {
	ctx, span := tracer.Start(ctx, "subscription.list")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("user.id", int64(userID)),
		attribute.Int("pagination.page", page.Number),
		attribute.Int("recipes.limit", recipesLimit),
	)

	base := s.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("user_id = ?", userID)

	var count int64
	if err := base.Count(&count).Error; err != nil {
		return nil, err
	}

	var subs []models.Subscription
	if err := s.db.WithContext(ctx).
		Preload("Author").
		Where("user_id = ?", userID).
		Order("id DESC").
		Offset(page.Offset()).
		Limit(page.Limit).
		Find(&subs).Error; err != nil {
		return nil, err
	}

	results := make([]models.SubscriptionResponse, len(subs))
	for i := range subs {
		resp, err := s.authorResponse(ctx, &subs[i].Author, recipesLimit)
		if err != nil {
			return nil, err
		}
		results[i] = *resp
	}

	return &Paginated[models.SubscriptionResponse]{Count: count, Page: page, Results: results}, nil
}

func (s *SubscriptionService) Subscribe(ctx context.Context, userID, authorID uint, recipesLimit int) (*models.SubscriptionResponse, error) {
	ctx, span := tracer.Start(ctx, "subscription.create")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("user.id", int64(userID)),
		attribute.Int64("author.id", int64(authorID)),
	)

	author, err := findUser(ctx, s.db, authorID)
	if err != nil {
		return nil, err
	}
	if userID == authorID {
		return nil, ErrSelfSubscription
	}

	sub := models.Subscription{UserID: userID, AuthorID: authorID}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&sub)
	if res.Error != nil {
		return nil, fmt.Errorf("create subscription: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrAlreadySubscribed
	}

	if s.changes != nil {
		s.changes.Add(ctx, 1, metric.WithAttributes(attribute.String("action", "subscribe")))
	}

	logging.Info(ctx).
		Uint("user_id", userID).
		Uint("author_id", authorID).
		Msg("subscribed")

	return s.authorResponse(ctx, author, recipesLimit)
}

func (s *SubscriptionService) Unsubscribe(ctx context.Context, userID, authorID uint) error {
	ctx, span := tracer.Start(ctx, "subscription.delete")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("user.id", int64(userID)),
		attribute.Int64("author.id", int64(authorID)),
	)

	if _, err := findUser(ctx, s.db, authorID); err != nil {
		return err
	}

	res := s.db.WithContext(ctx).
		Where("user_id = ? AND author_id = ?", userID, authorID).
		Delete(&models.Subscription{})
	if res.Error != nil {
		return fmt.Errorf("delete subscription: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotSubscribed
	}

	if s.changes != nil {
		s.changes.Add(ctx, 1, metric.WithAttributes(attribute.String("action", "unsubscribe")))
	}

	logging.Info(ctx).
		Uint("user_id", userID).
		Uint("author_id", authorID).
		Msg("unsubscribed")

	return nil
}

// Subscribers returns the users following authorID.
func (s *SubscriptionService) Subscribers(ctx context.Context, authorID uint) ([]models.User, error) {
	var users []models.User
	err := s.db.WithContext(ctx).
		Joins("JOIN subscriptions ON subscriptions.user_id = users.id").
		Where("subscriptions.author_id = ?", authorID).
		Order("users.id").
		Find(&users).Error
	return users, err
}

func (s *SubscriptionService) authorResponse(ctx context.Context, author *models.User, recipesLimit int) (*models.SubscriptionResponse, error) {
	var total int64
	if err := s.db.WithContext(ctx).
		Model(&models.Recipe{}).
		Where("author_id = ?", author.ID).
		Count(&total).Error; err != nil {
		return nil, err
	}

	query := s.db.WithContext(ctx).
		Where("author_id = ?", author.ID).
		Order("pub_date DESC, id DESC")
	if recipesLimit > 0 {
		query = query.Limit(recipesLimit)
	}

	var recipes []models.Recipe
	if err := query.Find(&recipes).Error; err != nil {
		return nil, err
	}

	short := make([]models.RecipeShortResponse, len(recipes))
	for i := range recipes {
		short[i] = recipes[i].ToShortResponse()
	}

	return &models.SubscriptionResponse{
		UserResponse: author.ToResponse(true),
		Recipes:      short,
		RecipesCount: total,
	}, nil
}
