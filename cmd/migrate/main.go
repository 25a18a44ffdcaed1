package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/frostdev-ops/pma-watch-bridge/internal/config"
	"github.com/frostdev-ops/pma-watch-bridge/internal/core/watches"
	"github.com/frostdev-ops/pma-watch-bridge/internal/database"
	"github.com/frostdev-ops/pma-watch-bridge/pkg/logger"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

func main() {
	migrationsPath := flag.String("migrations", "./migrations", "path to the migrations directory")
	databasePath := flag.String("db", "./data/watched_entities.db", "path to the sqlite database")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] up|down|version|seed <file.yaml>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	log := logger.New(logger.Options{Level: *logLevel, Format: "text"})

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}
	command := flag.Arg(0)

	if command == "seed" {
		if flag.NArg() < 2 {
			log.Fatal("seed needs a YAML file")
		}
		if err := seed(*databasePath, *migrationsPath, flag.Arg(1)); err != nil {
			log.Fatalf("Seed failed: %v", err)
		}
		return
	}

	m, err := migrate.New("file://"+*migrationsPath, "sqlite://"+*databasePath)
	if err != nil {
		log.Fatalf("Failed to create migrate instance: %v", err)
	}
	defer m.Close()

	switch command {
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatalf("An error occurred while migrating up: %v", err)
		}
		log.Info("Migrations applied successfully.")
	case "down":
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatalf("An error occurred while migrating down: %v", err)
		}
		log.Info("Migrations rolled back successfully.")
	case "version":
		v, dirty, err := m.Version()
		if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
			log.Fatalf("Failed to read version: %v", err)
		}
		log.WithField("dirty", dirty).Infof("Schema version %d", v)
	default:
		log.Fatalf("Unknown command: %s. Use `up`, `down`, `version` or `seed`.", command)
	}
}

func seed(databasePath, migrationsPath, file string) error {
	log := logger.New(logger.Options{Format: "text"})

	db, err := database.Initialize(config.DatabaseConfig{Path: databasePath, MaxConnections: 1})
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.Migrate(db.DB, migrationsPath); err != nil {
		return err
	}

	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("failed to open seed file: %w", err)
	}
	defer f.Close()

	repos := database.NewRepositories(db, log)
	_, err = watches.ImportSeed(context.Background(), repos.Watches, f, log)
	return err
}
