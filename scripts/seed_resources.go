package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"parish/internal/config"
	"parish/internal/database"
	"parish/internal/models"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type resourcesFile struct {
	Resources []models.Resource `yaml:"resources"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	var (
		resourcesPath = flag.String("resources", "configs/config.yaml", "YAML file with a resources list")
		dbPath        = flag.String("db", "./data/parish.db", "path to sqlite db")
	)
	flag.Parse()

	data, err := os.ReadFile(*resourcesPath)
	if err != nil {
		return fmt.Errorf("read resources: %w", err)
	}
	var file resourcesFile
	if err = yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse resources: %w", err)
	}
	if len(file.Resources) == 0 {
		return fmt.Errorf("no resources in yaml")
	}
	for i := range file.Resources {
		if file.Resources[i].Status == "" {
			file.Resources[i].Status = models.ResourceAvailable
		}
	}
	if err := config.ValidateResources(file.Resources); err != nil {
		return err
	}

	db, err := database.NewDB(*dbPath, &logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	before, err := db.ListResources(ctx)
	if err != nil {
		return err
	}
	if err := db.SyncResources(ctx, file.Resources); err != nil {
		return fmt.Errorf("sync resources: %w", err)
	}
	after, err := db.ListResources(ctx)
	if err != nil {
		return err
	}

	logger.Info().
		Int("in_file", len(file.Resources)).
		Int("created", len(after)-len(before)).
		Int("total", len(after)).
		Msg("resources seeded")
	return nil
}
