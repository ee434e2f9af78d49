package main

import (
	"flag"
	"log/slog"
	"os"

	"quip-clash/internal/config"
	"quip-clash/internal/db"
)

func main() {
	filePath := flag.String("file", "prompts.csv", "path to prompts csv")
	migrateFirst := flag.Bool("migrate", false, "run auto-migrations before loading")
	flag.Parse()

	if err := config.LoadDotEnv(".env"); err != nil {
		slog.Warn("failed to load .env", "error", err)
	}
	cfg := config.Load()

	conn, err := db.Open(cfg)
	if err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	if *migrateFirst {
		if err := db.Migrate(conn); err != nil {
			slog.Error("migration failed", "error", err)
			os.Exit(1)
		}
	}

	loaded, err := db.LoadPromptLibrary(conn, *filePath)
	if err != nil {
		slog.Error("failed to load prompts", "file", *filePath, "error", err)
		os.Exit(1)
	}
	slog.Info("loaded prompts", "count", loaded, "file", *filePath)
}
