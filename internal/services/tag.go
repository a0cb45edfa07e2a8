package services

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"go-echo-foodgram/internal/logging"
	"go-echo-foodgram/internal/models"
)

var (
	ErrTagNotFound = errors.New("tag not found")
	ErrTagExists   = errors.New("tag with this name, color or slug already exists")
)

type TagService struct {
	db *gorm.DB
}

func NewTagService(db *gorm.DB) *TagService {
	return &TagService{db: db}
}

type CreateTagInput struct {
	Name  string `json:"name" validate:"required,max=200"`
	Color string `json:"color" validate:"required,hexcolor6"`
	Slug  string `json:"slug" validate:"required,max=200,slug"`
}

type UpdateTagInput struct {
	Name  *string `json:"name" validate:"omitempty,max=200"`
	Color *string `json:"color" validate:"omitempty,hexcolor6"`
	Slug  *string `json:"slug" validate:"omitempty,max=200,slug"`
}

func (s *TagService) List(ctx context.Context) ([]models.Tag, error) {
	ctx, span := tracer.Start(ctx, "tag.list")
	defer span.End()

	tags := make([]models.Tag, 0)
	if err := s.db.WithContext(ctx).Order("id").Find(&tags).Error; err != nil {
		return nil, err
	}
	return tags, nil
}

func (s *TagService) Get(ctx context.Context, id uint) (*models.Tag, error) {
	ctx, span := tracer.Start(ctx, "tag.get")
	defer span.End()

	span.SetAttributes(attribute.Int64("tag.id", int64(id)))

	var tag models.Tag
	if err := s.db.WithContext(ctx).First(&tag, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTagNotFound
		}
		return nil, err
	}
	return &tag, nil
}

func (s *TagService) Create(ctx context.Context, input CreateTagInput) (*models.Tag, error) {
	ctx, span := tracer.Start(ctx, "tag.create")
	defer span.End()

	tag := models.Tag{Name: input.Name, Color: input.Color, Slug: input.Slug}
	if err := s.db.WithContext(ctx).Create(&tag).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrTagExists
		}
		return nil, fmt.Errorf("create tag: %w", err)
	}

	logging.Info(ctx).Uint("tag_id", tag.ID).Str("slug", tag.Slug).Msg("tag created")
	return &tag, nil
}

func (s *TagService) Update(ctx context.Context, id uint, input UpdateTagInput) (*models.Tag, error) {
	ctx, span := tracer.Start(ctx, "tag.update")
	defer span.End()

	span.SetAttributes(attribute.Int64("tag.id", int64(id)))

	tag, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := make(map[string]interface{})
	if input.Name != nil {
		updates["name"] = *input.Name
	}
	if input.Color != nil {
		updates["color"] = *input.Color
	}
	if input.Slug != nil {
		updates["slug"] = *input.Slug
	}

	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(tag).Updates(updates).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return nil, ErrTagExists
			}
			return nil, fmt.Errorf("update tag: %w", err)
		}
	}

	logging.Info(ctx).Uint("tag_id", tag.ID).Msg("tag updated")
	return tag, nil
}

func (s *TagService) Delete(ctx context.Context, id uint) error {
	ctx, span := tracer.Start(ctx, "tag.delete")
	defer span.End()

	span.SetAttributes(attribute.Int64("tag.id", int64(id)))

	res := s.db.WithContext(ctx).Delete(&models.Tag{}, id)
	if res.Error != nil {
		return fmt.Errorf("delete tag: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrTagNotFound
	}

	logging.Info(ctx).Uint("tag_id", id).Msg("tag deleted")
	return nil
}
