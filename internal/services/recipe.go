package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"gorm.io/gorm"

	"go-echo-foodgram/internal/images"
	"go-echo-foodgram/internal/logging"
	"go-echo-foodgram/internal/models"
	"go-echo-foodgram/internal/validation"
)

var (
	ErrRecipeNotFound = errors.New("recipe not found")
	ErrNotAuthor      = errors.New("only the author or an administrator can change this recipe")
)

type RecipeService struct {
	db     *gorm.DB
	images images.Store

	created metric.Int64Counter
}

func NewRecipeService(db *gorm.DB, store images.Store) *RecipeService {
	return &RecipeService{
		db:      db,
		images:  store,
		created: newCounter("recipes.created", "Total number of recipes created"),
	}
}

type IngredientAmountInput struct {
	ID     uint `json:"id" validate:"required"`
	Amount int  `json:"amount" validate:"min=1,max=32000"`
}

type CreateRecipeInput struct {
	Ingredients []IngredientAmountInput `json:"ingredients" validate:"required,min=1,unique=ID,dive"`
	Tags        []uint                  `json:"tags" validate:"required,min=1,unique"`
	Image       string                  `json:"image" validate:"required"`
	Name        string                  `json:"name" validate:"required,max=200"`
	Text        string                  `json:"text" validate:"required"`
	CookingTime int                     `json:"cooking_time" validate:"min=1,max=32000"`
}

type UpdateRecipeInput struct {
	Ingredients *[]IngredientAmountInput `json:"ingredients" validate:"omitempty,min=1,unique=ID,dive"`
	Tags        *[]uint                  `json:"tags" validate:"omitempty,min=1,unique"`
	Image       *string                  `json:"image" validate:"omitempty,min=1"`
	Name        *string                  `json:"name" validate:"omitempty,min=1,max=200"`
	Text        *string                  `json:"text" validate:"omitempty,min=1"`
	CookingTime *int                     `json:"cooking_time" validate:"omitempty,min=1,max=32000"`
}

type RecipeFilter struct {
	AuthorID         *uint
	Tags             []string
	IsFavorited      bool
	IsInShoppingCart bool
}

func (s *RecipeService) List(ctx context.Context, viewerID *uint, filter RecipeFilter, page Page) (*Paginated[models.RecipeResponse], error) {
	ctx, span := tracer.Start(ctx, "recipe.list")
	defer span.End()

	span.SetAttributes(
		attribute.Int("pagination.page", page.Number),
		attribute.Int("pagination.limit", page.Limit),
		attribute.StringSlice("filter.tags", filter.Tags),
		attribute.Bool("filter.is_favorited", filter.IsFavorited),
		attribute.Bool("filter.is_in_shopping_cart", filter.IsInShoppingCart),
	)

	query := s.db.WithContext(ctx).Model(&models.Recipe{})

	if filter.AuthorID != nil {
		query = query.Where("recipes.author_id = ?", *filter.AuthorID)
		span.SetAttributes(attribute.Int64("filter.author", int64(*filter.AuthorID)))
	}

	if len(filter.Tags) > 0 {
		tagged := s.db.Table("recipe_tags").
			Select("recipe_tags.recipe_id").
			Joins("JOIN tags ON tags.id = recipe_tags.tag_id").
			Where("tags.slug IN ?", filter.Tags)
		query = query.Where("recipes.id IN (?)", tagged)
	}

	// Membership filters only apply to an identified caller.
	if viewerID != nil {
		if filter.IsFavorited {
			query = query.Where("recipes.id IN (?)",
				s.db.Model(&models.Favorite{}).Select("recipe_id").Where("user_id = ?", *viewerID))
		}
		if filter.IsInShoppingCart {
			query = query.Where("recipes.id IN (?)",
				s.db.Model(&models.ShoppingCart{}).Select("recipe_id").Where("user_id = ?", *viewerID))
		}
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return nil, err
	}

	var recipes []models.Recipe
	if err := preloadRecipe(query).
		Order("recipes.pub_date DESC").
		Order("recipes.id DESC").
		Offset(page.Offset()).
		Limit(page.Limit).
		Find(&recipes).Error; err != nil {
		return nil, err
	}

	results, err := s.responses(ctx, viewerID, recipes)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.Int64("result.total_count", count),
		attribute.Int("result.count", len(results)),
	)

	return &Paginated[models.RecipeResponse]{Count: count, Page: page, Results: results}, nil
}

func (s *RecipeService) Get(ctx context.Context, id uint, viewerID *uint) (*models.RecipeResponse, error) {
	ctx, span := tracer.Start(ctx, "recipe.get")
	defer span.End()

	span.SetAttributes(attribute.Int64("recipe.id", int64(id)))

	recipe, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.response(ctx, viewerID, recipe)
}

func (s *RecipeService) Create(ctx context.Context, authorID uint, input CreateRecipeInput) (*models.RecipeResponse, error) {
	ctx, span := tracer.Start(ctx, "recipe.create")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("author.id", int64(authorID)),
		attribute.String("recipe.name", input.Name),
		attribute.Int("recipe.ingredients", len(input.Ingredients)),
	)

	tags, err := s.resolveTags(ctx, input.Tags)
	if err != nil {
		return nil, err
	}
	if err := s.checkIngredients(ctx, input.Ingredients); err != nil {
		return nil, err
	}

	imageURL, err := s.saveImage(ctx, input.Image)
	if err != nil {
		return nil, err
	}

	recipe := models.Recipe{
		AuthorID:    authorID,
		Name:        input.Name,
		Image:       imageURL,
		Text:        input.Text,
		CookingTime: input.CookingTime,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Tags", "Ingredients", "Author").Create(&recipe).Error; err != nil {
			return fmt.Errorf("create recipe: %w", err)
		}
		if err := tx.Model(&recipe).Association("Tags").Replace(tags); err != nil {
			return fmt.Errorf("set recipe tags: %w", err)
		}
		return createAmounts(tx, recipe.ID, input.Ingredients)
	})
	if err != nil {
		s.discardImage(ctx, imageURL)
		return nil, err
	}

	if s.created != nil {
		s.created.Add(ctx, 1)
	}

	span.SetAttributes(attribute.Int64("recipe.id", int64(recipe.ID)))

	logging.Info(ctx).
		Uint("recipe_id", recipe.ID).
		Uint("author_id", authorID).
		Msg("recipe created")

	return s.Get(ctx, recipe.ID, &authorID)
}

func (s *RecipeService) Update(ctx context.Context, id uint, actor Actor, input UpdateRecipeInput) (*models.RecipeResponse, error) {
	ctx, span := tracer.Start(ctx, "recipe.update")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("recipe.id", int64(id)),
		attribute.Int64("user.id", int64(actor.UserID)),
	)

	recipe, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.canModify(recipe.AuthorID) {
		return nil, ErrNotAuthor
	}

	var tags []models.Tag
	if input.Tags != nil {
		if tags, err = s.resolveTags(ctx, *input.Tags); err != nil {
			return nil, err
		}
	}
	if input.Ingredients != nil {
		if err := s.checkIngredients(ctx, *input.Ingredients); err != nil {
			return nil, err
		}
	}

	updates := make(map[string]interface{})
	if input.Name != nil {
		updates["name"] = *input.Name
	}
	if input.Text != nil {
		updates["text"] = *input.Text
	}
	if input.CookingTime != nil {
		updates["cooking_time"] = *input.CookingTime
	}

	oldImage := recipe.Image
	if input.Image != nil {
		imageURL, err := s.saveImage(ctx, *input.Image)
		if err != nil {
			return nil, err
		}
		updates["image"] = imageURL
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(updates) > 0 {
			if err := tx.Model(&models.Recipe{ID: recipe.ID}).Updates(updates).Error; err != nil {
				return fmt.Errorf("update recipe: %w", err)
			}
		}
		if input.Tags != nil {
			if err := tx.Model(&models.Recipe{ID: recipe.ID}).Association("Tags").Replace(tags); err != nil {
				return fmt.Errorf("replace recipe tags: %w", err)
			}
		}
		if input.Ingredients != nil {
			if err := tx.Where("recipe_id = ?", recipe.ID).Delete(&models.RecipeIngredientAmount{}).Error; err != nil {
				return fmt.Errorf("clear recipe ingredients: %w", err)
			}
			return createAmounts(tx, recipe.ID, *input.Ingredients)
		}
		return nil
	})
	if err != nil {
		if url, ok := updates["image"].(string); ok {
			s.discardImage(ctx, url)
		}
		return nil, err
	}

	if _, ok := updates["image"]; ok {
		s.discardImage(ctx, oldImage)
	}

	logging.Info(ctx).
		Uint("recipe_id", recipe.ID).
		Uint("user_id", actor.UserID).
		Msg("recipe updated")

	viewer := actor.UserID
	return s.Get(ctx, recipe.ID, &viewer)
}

func (s *RecipeService) Delete(ctx context.Context, id uint, actor Actor) error {
	ctx, span := tracer.Start(ctx, "recipe.delete")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("recipe.id", int64(id)),
		attribute.Int64("user.id", int64(actor.UserID)),
	)

	var recipe models.Recipe
	if err := s.db.WithContext(ctx).First(&recipe, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrRecipeNotFound
		}
		return err
	}
	if !actor.canModify(recipe.AuthorID) {
		return ErrNotAuthor
	}

	if err := s.db.WithContext(ctx).Delete(&recipe).Error; err != nil {
		return fmt.Errorf("delete recipe: %w", err)
	}
	s.discardImage(ctx, recipe.Image)

	logging.Info(ctx).
		Uint("recipe_id", id).
		Uint("user_id", actor.UserID).
		Msg("recipe deleted")

	return nil
}

func (s *RecipeService) load(ctx context.Context, id uint) (*models.Recipe, error) {
	var recipe models.Recipe
	if err := preloadRecipe(s.db.WithContext(ctx)).First(&recipe, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecipeNotFound
		}
		return nil, err
	}
	return &recipe, nil
}

func preloadRecipe(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Author").
		Preload("Tags", func(db *gorm.DB) *gorm.DB { return db.Order("tags.id") }).
		Preload("Ingredients", func(db *gorm.DB) *gorm.DB { return db.Order("recipe_ingredient_amounts.id") }).
		Preload("Ingredients.Ingredient")
}

func createAmounts(tx *gorm.DB, recipeID uint, inputs []IngredientAmountInput) error {
	amounts := make([]models.RecipeIngredientAmount, len(inputs))
	for i, in := range inputs {
		amounts[i] = models.RecipeIngredientAmount{
			RecipeID:     recipeID,
			IngredientID: in.ID,
			Amount:       in.Amount,
		}
	}
	if err := tx.Omit("Ingredient").Create(&amounts).Error; err != nil {
		return fmt.Errorf("create recipe ingredients: %w", err)
	}
	return nil
}

// resolveTags loads the referenced tags and rejects unknown ids.
func (s *RecipeService) resolveTags(ctx context.Context, ids []uint) ([]models.Tag, error) {
	var tags []models.Tag
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&tags).Error; err != nil {
		return nil, err
	}

	found := make([]uint, len(tags))
	for i, t := range tags {
		found[i] = t.ID
	}
	if missing := missingIDs(ids, found); len(missing) > 0 {
		return nil, validation.NewFieldError("tags", "unknown tag ids: "+joinIDs(missing))
	}
	return tags, nil
}

func (s *RecipeService) checkIngredients(ctx context.Context, inputs []IngredientAmountInput) error {
	ids := make([]uint, len(inputs))
	for i, in := range inputs {
		ids[i] = in.ID
	}

	var found []uint
	if err := s.db.WithContext(ctx).
		Model(&models.Ingredient{}).
		Where("id IN ?", ids).
		Pluck("id", &found).Error; err != nil {
		return err
	}

	if missing := missingIDs(ids, found); len(missing) > 0 {
		return validation.NewFieldError("ingredients", "unknown ingredient ids: "+joinIDs(missing))
	}
	return nil
}

func (s *RecipeService) saveImage(ctx context.Context, dataURI string) (string, error) {
	url, err := images.Save(ctx, s.images, dataURI)
	if err != nil {
		if errors.Is(err, images.ErrInvalidDataURI) ||
			errors.Is(err, images.ErrUnsupportedImage) ||
			errors.Is(err, images.ErrImageTooLarge) {
			return "", validation.NewFieldError("image", err.Error())
		}
		return "", err
	}
	return url, nil
}

func (s *RecipeService) discardImage(ctx context.Context, url string) {
	if url == "" {
		return
	}
	if err := s.images.Delete(ctx, url); err != nil {
		logging.Warn(ctx).Err(err).Str("image", url).Msg("failed to remove recipe image")
	}
}

func (s *RecipeService) response(ctx context.Context, viewerID *uint, recipe *models.Recipe) (*models.RecipeResponse, error) {
	results, err := s.responses(ctx, viewerID, []models.Recipe{*recipe})
	if err != nil {
		return nil, err
	}
	return &results[0], nil
}

// responses attaches the caller-relative flags with one query per relation.
func (s *RecipeService) responses(ctx context.Context, viewerID *uint, recipes []models.Recipe) ([]models.RecipeResponse, error) {
	results := make([]models.RecipeResponse, len(recipes))
	if len(recipes) == 0 {
		return results, nil
	}

	recipeIDs := make([]uint, len(recipes))
	authorIDs := make([]uint, len(recipes))
	for i, r := range recipes {
		recipeIDs[i] = r.ID
		authorIDs[i] = r.AuthorID
	}

	favorited, err := memberRecipes(ctx, s.db, &models.Favorite{}, viewerID, recipeIDs)
	if err != nil {
		return nil, err
	}
	inCart, err := memberRecipes(ctx, s.db, &models.ShoppingCart{}, viewerID, recipeIDs)
	if err != nil {
		return nil, err
	}
	subscribed, err := subscribedAuthors(ctx, s.db, viewerID, authorIDs)
	if err != nil {
		return nil, err
	}

	for i := range recipes {
		results[i] = recipes[i].ToResponse(models.RecipeFlags{
			AuthorSubscribed: subscribed[recipes[i].AuthorID],
			Favorited:        favorited[recipes[i].ID],
			InShoppingCart:   inCart[recipes[i].ID],
		})
	}
	return results, nil
}

func memberRecipes(ctx context.Context, db *gorm.DB, model interface{}, viewerID *uint, recipeIDs []uint) (map[uint]bool, error) {
	result := make(map[uint]bool)
	if viewerID == nil {
		return result, nil
	}

	var ids []uint
	if err := db.WithContext(ctx).
		Model(model).
		Where("user_id = ? AND recipe_id IN ?", *viewerID, recipeIDs).
		Pluck("recipe_id", &ids).Error; err != nil {
		return nil, err
	}
	for _, id := range ids {
		result[id] = true
	}
	return result, nil
}

func missingIDs(want, found []uint) []uint {
	present := make(map[uint]bool, len(found))
	for _, id := range found {
		present[id] = true
	}
	var missing []uint
	for _, id := range want {
		if !present[id] {
			missing = append(missing, id)
		}
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
	return missing
}

func joinIDs(ids []uint) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return strings.Join(parts, ", ")
}
