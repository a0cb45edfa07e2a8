package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"go-echo-foodgram/config"
	"go-echo-foodgram/internal/database"
	"go-echo-foodgram/internal/logging"
)

var db *gorm.DB

var rootCmd = &cobra.Command{
	Use:          "manage",
	Short:        "Foodgram operational commands",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logging.Init(cfg.OTelServiceName+"-manage", cfg.IsDevelopment())

		db, err = database.New(database.Config{DatabaseURL: cfg.DatabaseURL})
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}

		return database.Migrate(db)
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if db == nil {
			return nil
		}
		return database.Close(db)
	},
}
