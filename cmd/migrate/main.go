// Command migrate applies or rolls back the principal directory schema.
//
//	migrate            # up
//	migrate -down      # roll everything back
package main

import (
	"flag"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/iliyamo/campus-auth/internal/config"
	"github.com/iliyamo/campus-auth/internal/database"
)

func main() {
	down := flag.Bool("down", false, "roll back all migrations instead of applying them")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	direction := "up"
	if *down {
		direction = "down"
	}
	if err := database.Migrate(cfg.DSN(), direction); err != nil {
		log.Error("migration failed", "direction", direction, "err", err)
		os.Exit(1)
	}
	log.Info("migrations applied", "direction", direction)
}
