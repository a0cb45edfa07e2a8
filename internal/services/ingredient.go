package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-json"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"go-echo-foodgram/internal/logging"
	"go-echo-foodgram/internal/models"
)

var (
	ErrIngredientNotFound = errors.New("ingredient not found")
	ErrIngredientExists   = errors.New("ingredient with this name and measurement unit already exists")
	ErrIngredientInUse    = errors.New("ingredient is used by recipes")
	ErrUnknownFormat      = errors.New("unknown fixture format")
)

const loadBatchSize = 500

type IngredientService struct {
	db *gorm.DB
}

func NewIngredientService(db *gorm.DB) *IngredientService {
	return &IngredientService{db: db}
}

type IngredientInput struct {
	Name            string `json:"name" validate:"required,max=200"`
	MeasurementUnit string `json:"measurement_unit" validate:"required,max=200"`
}

type UpdateIngredientInput struct {
	Name            *string `json:"name" validate:"omitempty,min=1,max=200"`
	MeasurementUnit *string `json:"measurement_unit" validate:"omitempty,min=1,max=200"`
}

// Search lists ingredients whose name starts with prefix, case-insensitively.
func (s *IngredientService) Search(ctx context.Context, prefix string) ([]models.Ingredient, error) {
	ctx, span := tracer.Start(ctx, "ingredient.search")
	defer span.End()

	span.SetAttributes(attribute.String("search.prefix", prefix))

	query := s.db.WithContext(ctx).Model(&models.Ingredient{})
	if prefix != "" {
		query = query.Where("name ILIKE ?", escapeLike(prefix)+"%")
	}

	ingredients := make([]models.Ingredient, 0)
	if err := query.Order("name").Order("measurement_unit").Find(&ingredients).Error; err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int("result.count", len(ingredients)))
	return ingredients, nil
}

func (s *IngredientService) Get(ctx context.Context, id uint) (*models.Ingredient, error) {
	ctx, span := tracer.Start(ctx, "ingredient.get")
	defer span.End()

	span.SetAttributes(attribute.Int64("ingredient.id", int64(id)))

	var ingredient models.Ingredient
	if err := s.db.WithContext(ctx).First(&ingredient, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrIngredientNotFound
		}
		return nil, err
	}
	return &ingredient, nil
}

func (s *IngredientService) Create(ctx context.Context, input IngredientInput) (*models.Ingredient, error) {
	ctx, span := tracer.Start(ctx, "ingredient.create")
	defer span.End()

	ingredient := models.Ingredient{Name: input.Name, MeasurementUnit: input.MeasurementUnit}
	if err := s.db.WithContext(ctx).Create(&ingredient).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrIngredientExists
		}
		return nil, fmt.Errorf("create ingredient: %w", err)
	}

	logging.Info(ctx).Uint("ingredient_id", ingredient.ID).Msg("ingredient created")
	return &ingredient, nil
}

func (s *IngredientService) Update(ctx context.Context, id uint, input UpdateIngredientInput) (*models.Ingredient, error) {
	ctx, span := tracer.Start(ctx, "ingredient.update")
	defer span.End()

	ingredient, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := make(map[string]interface{})
	if input.Name != nil {
		updates["name"] = *input.Name
	}
	if input.MeasurementUnit != nil {
		updates["measurement_unit"] = *input.MeasurementUnit
	}

	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(ingredient).Updates(updates).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return nil, ErrIngredientExists
			}
			return nil, fmt.Errorf("update ingredient: %w", err)
		}
	}

	logging.Info(ctx).Uint("ingredient_id", id).Msg("ingredient updated")
	return ingredient, nil
}

func (s *IngredientService) Delete(ctx context.Context, id uint) error {
	ctx, span := tracer.Start(ctx, "ingredient.delete")
	defer span.End()

	span.SetAttributes(attribute.Int64("ingredient.id", int64(id)))

	res := s.db.WithContext(ctx).Delete(&models.Ingredient{}, id)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrForeignKeyViolated) {
			return ErrIngredientInUse
		}
		return fmt.Errorf("delete ingredient: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrIngredientNotFound
	}

	logging.Info(ctx).Uint("ingredient_id", id).Msg("ingredient deleted")
	return nil
}

// Load bulk-inserts ingredients from a fixture, skipping pairs already
// present. format is "csv" (rows of name,unit) or "json". It returns the
// number of rows read and the number actually inserted.
func (s *IngredientService) Load(ctx context.Context, r io.Reader, format string) (read, created int, err error) {
	ctx, span := tracer.Start(ctx, "ingredient.load")
	defer span.End()

	var items []models.Ingredient
	switch strings.ToLower(format) {
	case "csv":
		items, err = parseIngredientCSV(r)
	case "json":
		items, err = parseIngredientJSON(r)
	default:
		return 0, 0, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	if err != nil {
		return 0, 0, err
	}

	for start := 0; start < len(items); start += loadBatchSize {
		end := min(start+loadBatchSize, len(items))
		batch := items[start:end]
		res := s.db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "name"}, {Name: "measurement_unit"}},
				DoNothing: true,
			}).
			Create(&batch)
		if res.Error != nil {
			return len(items), created, fmt.Errorf("insert ingredients: %w", res.Error)
		}
		created += int(res.RowsAffected)
	}

	span.SetAttributes(
		attribute.Int("load.read", len(items)),
		attribute.Int("load.created", created),
	)

	logging.Info(ctx).
		Int("read", len(items)).
		Int("created", created).
		Msg("ingredients loaded")

	return len(items), created, nil
}

func parseIngredientCSV(r io.Reader) ([]models.Ingredient, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 2
	reader.TrimLeadingSpace = true

	seen := make(map[models.Ingredient]bool)
	var items []models.Ingredient
	for line := 1; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}
		item := models.Ingredient{
			Name:            strings.TrimSpace(record[0]),
			MeasurementUnit: strings.TrimSpace(record[1]),
		}
		if line == 1 && item.Name == "name" && item.MeasurementUnit == "measurement_unit" {
			continue
		}
		if item.Name == "" || item.MeasurementUnit == "" || seen[item] {
			continue
		}
		seen[item] = true
		items = append(items, item)
	}
	return items, nil
}

func parseIngredientJSON(r io.Reader) ([]models.Ingredient, error) {
	var rows []IngredientInput
	if err := json.NewDecoder(r).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode json fixture: %w", err)
	}

	seen := make(map[models.Ingredient]bool)
	items := make([]models.Ingredient, 0, len(rows))
	for _, row := range rows {
		item := models.Ingredient{
			Name:            strings.TrimSpace(row.Name),
			MeasurementUnit: strings.TrimSpace(row.MeasurementUnit),
		}
		if item.Name == "" || item.MeasurementUnit == "" || seen[item] {
			continue
		}
		seen[item] = true
		items = append(items, item)
	}
	return items, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
