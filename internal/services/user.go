package services

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"go-echo-foodgram/internal/logging"
	"go-echo-foodgram/internal/models"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrWrongPassword = errors.New("current password is incorrect")
)

type UserService struct {
	db *gorm.DB
}

func NewUserService(db *gorm.DB) *UserService {
	return &UserService{db: db}
}

type SetPasswordInput struct {
	NewPassword     string `json:"new_password" validate:"required,min=8,max=150"`
	CurrentPassword string `json:"current_password" validate:"required"`
}

// List returns users ordered by username; viewerID marks is_subscribed.
func (s *UserService) List(ctx context.Context, viewerID *uint, page Page) (*Paginated[models.UserResponse], error) {
	ctx, span := tracer.Start(ctx, "user.list")
	defer span.End()

	span.SetAttributes(
		attribute.Int("pagination.page", page.Number),
		attribute.Int("pagination.limit", page.Limit),
	)

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Count(&count).Error; err != nil {
		return nil, err
	}

	var users []models.User
	if err := s.db.WithContext(ctx).
		Order("username").
		Offset(page.Offset()).
		Limit(page.Limit).
		Find(&users).Error; err != nil {
		return nil, err
	}

	ids := make([]uint, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}
	subscribed, err := subscribedAuthors(ctx, s.db, viewerID, ids)
	if err != nil {
		return nil, err
	}

	results := make([]models.UserResponse, len(users))
	for i := range users {
		results[i] = users[i].ToResponse(subscribed[users[i].ID])
	}

	return &Paginated[models.UserResponse]{Count: count, Page: page, Results: results}, nil
}

func (s *UserService) Get(ctx context.Context, id uint, viewerID *uint) (*models.UserResponse, error) {
	ctx, span := tracer.Start(ctx, "user.get")
	defer span.End()

	span.SetAttributes(attribute.Int64("user.id", int64(id)))

	user, err := findUser(ctx, s.db, id)
	if err != nil {
		return nil, err
	}

	subscribed, err := subscribedAuthors(ctx, s.db, viewerID, []uint{id})
	if err != nil {
		return nil, err
	}

	resp := user.ToResponse(subscribed[id])
	return &resp, nil
}

// AccountRole reports the stored role of a token's user; ok is false once
// the account has been deleted.
func (s *UserService) AccountRole(ctx context.Context, id uint) (role string, ok bool, err error) {
	var user models.User
	err = s.db.WithContext(ctx).Select("id", "is_admin").First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return user.Role(), true, nil
}

func (s *UserService) SetPassword(ctx context.Context, userID uint, input SetPasswordInput) error {
	ctx, span := tracer.Start(ctx, "user.set_password")
	defer span.End()

	span.SetAttributes(attribute.Int64("user.id", int64(userID)))

	user, err := findUser(ctx, s.db, userID)
	if err != nil {
		return err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.CurrentPassword)); err != nil {
		return ErrWrongPassword
	}

	hashed, err := hashPassword(input.NewPassword)
	if err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Model(user).Update("password_hash", hashed).Error; err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	logging.Info(ctx).Uint("user_id", userID).Msg("password changed")
	return nil
}

// Delete removes a user; recipes, subscriptions, favorites and cart rows
// go with it through cascading foreign keys.
func (s *UserService) Delete(ctx context.Context, id uint) error {
	ctx, span := tracer.Start(ctx, "user.delete")
	defer span.End()

	span.SetAttributes(attribute.Int64("user.id", int64(id)))

	res := s.db.WithContext(ctx).Delete(&models.User{}, id)
	if res.Error != nil {
		return fmt.Errorf("delete user: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}

	logging.Info(ctx).Uint("user_id", id).Msg("user deleted")
	return nil
}

func findUser(ctx context.Context, db *gorm.DB, id uint) (*models.User, error) {
	var user models.User
	if err := db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// subscribedAuthors reports which of authorIDs the viewer follows.
func subscribedAuthors(ctx context.Context, db *gorm.DB, viewerID *uint, authorIDs []uint) (map[uint]bool, error) {
	result := make(map[uint]bool)
	if viewerID == nil || len(authorIDs) == 0 {
		return result, nil
	}

	var followed []uint
	if err := db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("user_id = ? AND author_id IN ?", *viewerID, authorIDs).
		Pluck("author_id", &followed).Error; err != nil {
		return nil, err
	}

	for _, id := range followed {
		result[id] = true
	}
	return result, nil
}
