package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"go-echo-foodgram/internal/services"
)

var loadDataFlags struct {
	path   string
	format string
}

var loadDataCmd = &cobra.Command{
	Use:   "loaddata",
	Short: "Load ingredient reference data from a CSV or JSON fixture",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := fixtureFormat(loadDataFlags.path, loadDataFlags.format)
		if err != nil {
			return err
		}

		f, err := os.Open(loadDataFlags.path)
		if err != nil {
			return fmt.Errorf("open fixture: %w", err)
		}
		defer f.Close()

		read, created, err := services.NewIngredientService(db).Load(cmd.Context(), f, format)
		if err != nil {
			return err
		}

		cmd.Printf("read %d ingredients, created %d\n", read, created)
		return nil
	},
}

// fixtureFormat returns the explicit format or infers it from the file extension.
func fixtureFormat(path, explicit string) (string, error) {
	if explicit != "" {
		return strings.ToLower(explicit), nil
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv", ".json":
		return ext[1:], nil
	default:
		return "", fmt.Errorf("cannot infer fixture format from %q, pass --format", path)
	}
}

func init() {
	loadDataCmd.Flags().StringVar(&loadDataFlags.path, "path", "data/ingredients.csv", "fixture file")
	loadDataCmd.Flags().StringVar(&loadDataFlags.format, "format", "", "csv or json (default: from extension)")
	rootCmd.AddCommand(loadDataCmd)
}
