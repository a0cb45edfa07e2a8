package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"go-echo-foodgram/internal/logging"
	"go-echo-foodgram/internal/middleware"
	"go-echo-foodgram/internal/models"
)

var (
	ErrUserExists         = errors.New("user with this email or username already exists")
	ErrInvalidCredentials = errors.New("unable to log in with provided credentials")
)

type AuthService struct {
	db           *gorm.DB
	jwtSecret    string
	jwtExpiresIn time.Duration

	registrations metric.Int64Counter
	logins        metric.Int64Counter
}

func NewAuthService(db *gorm.DB, jwtSecret string, jwtExpiresIn time.Duration) *AuthService {
	return &AuthService{
		db:            db,
		jwtSecret:     jwtSecret,
		jwtExpiresIn:  jwtExpiresIn,
		registrations: newCounter("auth.registration.total", "Total number of user registrations"),
		logins:        newCounter("auth.login.attempts", "Total number of login attempts"),
	}
}

type RegisterInput struct {
	Email     string `json:"email" validate:"required,email,max=254"`
	Username  string `json:"username" validate:"required,max=150,username"`
	FirstName string `json:"first_name" validate:"required,max=150"`
	LastName  string `json:"last_name" validate:"required,max=150"`
	Password  string `json:"password" validate:"required,min=8,max=150"`
}

type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*models.User, error) {
	return s.createUser(ctx, input, false)
}

// CreateSuperuser registers an administrator account.
func (s *AuthService) CreateSuperuser(ctx context.Context, input RegisterInput) (*models.User, error) {
	return s.createUser(ctx, input, true)
}

func (s *AuthService) createUser(ctx context.Context, input RegisterInput, admin bool) (*models.User, error) {
	ctx, span := tracer.Start(ctx, "user.register")
	defer span.End()

	span.SetAttributes(
		attribute.String("user.username", input.Username),
		attribute.Bool("user.admin", admin),
	)

	hashedPassword, err := hashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	user := models.User{
		Email:        input.Email,
		Username:     input.Username,
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		PasswordHash: hashedPassword,
		IsAdmin:      admin,
	}

	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			span.SetAttributes(attribute.Bool("user.exists", true))
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	if s.registrations != nil {
		s.registrations.Add(ctx, 1, metric.WithAttributes(attribute.Bool("admin", admin)))
	}

	span.SetAttributes(attribute.Int64("user.id", int64(user.ID)))

	logging.Info(ctx).
		Uint("user_id", user.ID).
		Str("username", user.Username).
		Bool("admin", admin).
		Msg("user registered")

	return &user, nil
}

func (s *AuthService) Login(ctx context.Context, input LoginInput) (string, error) {
	ctx, span := tracer.Start(ctx, "user.login")
	defer span.End()

	span.SetAttributes(attribute.String("user.email", input.Email))

	if s.logins != nil {
		s.logins.Add(ctx, 1)
	}

	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", input.Email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.SetAttributes(attribute.Bool("login.success", false))
			return "", ErrInvalidCredentials
		}
		return "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		span.SetAttributes(attribute.Bool("login.success", false))
		return "", ErrInvalidCredentials
	}

	token, err := s.GenerateToken(&user)
	if err != nil {
		return "", err
	}

	span.SetAttributes(
		attribute.Int64("user.id", int64(user.ID)),
		attribute.Bool("login.success", true),
	)

	logging.Info(ctx).
		Uint("user_id", user.ID).
		Msg("user logged in")

	return token, nil
}

func (s *AuthService) GenerateToken(user *models.User) (string, error) {
	now := time.Now()
	claims := middleware.JWTClaims{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprint(user.ID),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.jwtExpiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.jwtSecret))
}

func hashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}
