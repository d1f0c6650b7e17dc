package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	_ "github.com/lib/pq"

	"storage-booking-backend/internal/config"
	"storage-booking-backend/internal/logger"
	"storage-booking-backend/internal/security"
	"storage-booking-backend/internal/seed"
)

func main() {
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	dataPath := flag.String("data", "config/seed.dev.yaml", "Path to seed data file")
	schemaPath := flag.String("schema", "", "Optional SQL schema file applied before seeding (e.g. migrations/001_schema.sql)")
	printTokens := flag.Bool("tokens", false, "Print an access token for every seeded user")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	lg := logger.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)

	data, err := seed.Load(*dataPath)
	if err != nil {
		log.Fatalf("Failed to load seed data: %v", err)
	}

	if cfg.Database.Driver == config.DriverPostgres {
		db, err := sql.Open("postgres", cfg.GetDatabaseConnectionString())
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()

		ctx := context.Background()
		if *schemaPath != "" {
			schema, err := os.ReadFile(*schemaPath)
			if err != nil {
				log.Fatalf("Failed to read schema: %v", err)
			}
			if _, err := db.ExecContext(ctx, string(schema)); err != nil {
				log.Fatalf("Failed to apply schema: %v", err)
			}
			lg.Info("Schema applied", "file", *schemaPath)
		}

		if err := data.ApplyPostgres(ctx, db); err != nil {
			log.Fatalf("Failed to populate data: %v", err)
		}
		lg.Info("Seed data populated", "users", len(data.Users), "items", len(data.Items))
	} else {
		lg.Info("Memory driver configured, the server loads database.seed_file itself")
	}

	if *printTokens {
		tm := security.NewTokenManager(cfg.JWT.Secret, cfg.AccessTokenTTL())
		for _, u := range data.Users {
			token, err := tm.GenerateAccessToken(u.ID, u.Email)
			if err != nil {
				log.Fatalf("Failed to sign token for %s: %v", u.ID, err)
			}
			fmt.Printf("%s\t%s\n", u.ID, token)
		}
	}
}
