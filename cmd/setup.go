package main

import (
	"context"
	"fmt"
	"os"

	"github.com/desertthunder/stemdeck/internal/services"
	"github.com/desertthunder/stemdeck/internal/shared"
	"github.com/urfave/cli/v3"
)

// Setup creates the config file when missing, initializes the database, runs migrations
// and probes the backend.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")

	var config *shared.Config
	if _, err := os.Stat(configPath); err == nil {
		if config, err = shared.LoadConfig(configPath); err != nil {
			r.logger.Warn("failed to load config, using defaults", "error", err)
			config = shared.DefaultConfig()
		}
	} else {
		r.logger.Info("config file not found, creating from template", "path", configPath)
		if err := shared.CreateConfigFile(configPath); err != nil {
			r.logger.Warn("failed to create config file, using defaults", "error", err)
			config = shared.DefaultConfig()
		} else {
			r.logger.Info("config file created", "path", configPath)
			if config, err = shared.LoadConfig(configPath); err != nil {
				r.logger.Warn("failed to load created config, using defaults", "error", err)
				config = shared.DefaultConfig()
			}
		}
	}
	config.ApplyEnv()

	r.logger.Info("initializing database", "path", config.Database.Path)

	db, err := shared.NewDatabase(config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer db.Close()

	shared.ConfigureDatabase(db, config.Database.MaxOpenConns, config.Database.MaxIdleConns)

	r.logger.Info("running database migrations")
	applied, err := shared.RunMigrations(db)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	r.logger.Infof("setup complete for database: %v", config.Database.Path)

	r.writePlain("✓ Config: %s\n", configPath)
	r.writePlain("✓ Database: %s (%d migration(s) applied)\n", config.Database.Path, applied)

	if cmd.Bool("skip-ping") {
		return nil
	}

	api := services.NewAnalyzerService(services.AnalyzerOpts{
		BaseURL: config.Backend.URL,
		Token:   config.Backend.Token,
		Timeout: config.Backend.Timeout(),
		Client:  r.httpClient,
	})
	if err := api.Ping(ctx); err != nil {
		r.logger.Warn("backend not reachable", "url", api.BaseURL(), "error", err)
		r.writePlain("✗ Backend: %s unreachable (%v)\n", api.BaseURL(), err)
		r.writePlain("  Start the analysis service, or run 'stemdeck replay --fixtures DIR' for offline use.\n")
		return nil
	}
	r.writePlain("✓ Backend: %s\n", api.BaseURL())
	return nil
}
