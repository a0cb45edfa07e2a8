package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-echo-foodgram/internal/models"
)

func TestNewPage(t *testing.T) {
	tests := []struct {
		name                 string
		number, limit, deflt int
		want                 Page
	}{
		{name: "defaults", want: Page{Number: 1, Limit: DefaultPageSize}},
		{name: "configured default", deflt: 10, want: Page{Number: 1, Limit: 10}},
		{name: "explicit", number: 3, limit: 20, want: Page{Number: 3, Limit: 20}},
		{name: "clamped", number: -1, limit: 1000, want: Page{Number: 1, Limit: MaxPageSize}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewPage(tt.number, tt.limit, tt.deflt))
		})
	}
}

func TestPageNavigation(t *testing.T) {
	p := NewPage(2, 6, 0)
	assert.Equal(t, 6, p.Offset())
	assert.True(t, p.HasPrevious())
	assert.True(t, p.HasNext(13))
	assert.False(t, p.HasNext(12))
	assert.False(t, NewPage(1, 6, 0).HasPrevious())
}

func TestActorCanModify(t *testing.T) {
	author := Actor{UserID: 1, Role: models.RoleUser}
	other := Actor{UserID: 2, Role: models.RoleUser}
	admin := Actor{UserID: 3, Role: models.RoleAdmin}

	assert.True(t, author.canModify(1))
	assert.False(t, other.canModify(1))
	assert.True(t, admin.canModify(1))
}

func TestParseIngredientCSV(t *testing.T) {
	input := "name,measurement_unit\nflour, g\nmilk,ml\nflour,g\n,kg\n"
	items, err := parseIngredientCSV(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []models.Ingredient{
		{Name: "flour", MeasurementUnit: "g"},
		{Name: "milk", MeasurementUnit: "ml"},
	}, items)

	_, err = parseIngredientCSV(strings.NewReader("flour,g,extra\n"))
	assert.Error(t, err)
}

func TestParseIngredientJSON(t *testing.T) {
	input := `[{"name":"salt","measurement_unit":"g"},{"name":" salt ","measurement_unit":"g"},{"name":"","measurement_unit":"g"}]`
	items, err := parseIngredientJSON(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []models.Ingredient{{Name: "salt", MeasurementUnit: "g"}}, items)
}

func TestMissingIDs(t *testing.T) {
	assert.Equal(t, []uint{2, 9}, missingIDs([]uint{9, 1, 2}, []uint{1}))
	assert.Empty(t, missingIDs([]uint{1}, []uint{1}))
	assert.Equal(t, "2, 9", joinIDs([]uint{2, 9}))
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `50\% \_off\\`, escapeLike(`50% _off\`))
}
