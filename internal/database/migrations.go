package database

import (
	"gorm.io/gorm"

	"go-echo-foodgram/internal/models"
)

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Subscription{},
		&models.Tag{},
		&models.Ingredient{},
		&models.Recipe{},
		&models.RecipeIngredientAmount{},
		&models.Favorite{},
		&models.ShoppingCart{},
	)
}
