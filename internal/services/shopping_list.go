package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"go-echo-foodgram/internal/models"
)

var ErrUnknownListFormat = errors.New("unknown shopping list format")

type ShoppingListFormat string

const (
	FormatText ShoppingListFormat = "txt"
	FormatCSV  ShoppingListFormat = "csv"
)

func ParseShoppingListFormat(s string) (ShoppingListFormat, error) {
	switch ShoppingListFormat(s) {
	case "", FormatText:
		return FormatText, nil
	case FormatCSV:
		return FormatCSV, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownListFormat, s)
}

func (f ShoppingListFormat) ContentType() string {
	if f == FormatCSV {
		return "text/csv; charset=utf-8"
	}
	return "text/plain; charset=utf-8"
}

func (f ShoppingListFormat) Filename() string {
	return "shopping_list." + string(f)
}

type ShoppingListService struct {
	db *gorm.DB
}

func NewShoppingListService(db *gorm.DB) *ShoppingListService {
	return &ShoppingListService{db: db}
}

// Items sums the ingredient amounts of every recipe in the user's cart,
// grouped by ingredient name and measurement unit.
func (s *ShoppingListService) Items(ctx context.Context, userID uint) ([]models.ShoppingListItem, error) {
	ctx, span := tracer.Start(ctx, "shopping_list.aggregate")
	defer span.End()

	span.SetAttributes(attribute.Int64("user.id", int64(userID)))

	items := make([]models.ShoppingListItem, 0)
	err := s.db.WithContext(ctx).
		Table("recipe_ingredient_amounts AS ri").
		Select("i.name AS name, i.measurement_unit AS measurement_unit, SUM(ri.amount) AS amount").
		Joins("JOIN ingredients i ON i.id = ri.ingredient_id").
		Joins("JOIN shopping_carts sc ON sc.recipe_id = ri.recipe_id").
		Where("sc.user_id = ?", userID).
		Group("i.name, i.measurement_unit").
		Order("i.name, i.measurement_unit").
		Scan(&items).Error
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int("result.count", len(items)))
	return items, nil
}

func RenderShoppingList(w io.Writer, format ShoppingListFormat, items []models.ShoppingListItem) error {
	if format == FormatCSV {
		cw := csv.NewWriter(w)
		if err := cw.Write([]string{"name", "measurement_unit", "amount"}); err != nil {
			return err
		}
		for _, item := range items {
			if err := cw.Write([]string{item.Name, item.MeasurementUnit, strconv.FormatInt(item.Amount, 10)}); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	}

	if _, err := io.WriteString(w, "Shopping list:\n"); err != nil {
		return err
	}
	for _, item := range items {
		if _, err := fmt.Fprintf(w, "- %s (%s) — %d\n", item.Name, item.MeasurementUnit, item.Amount); err != nil {
			return err
		}
	}
	return nil
}
