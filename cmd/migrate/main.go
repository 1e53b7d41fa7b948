// migrate applies or rolls back the embedded schema migrations.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"ledgerline/backend/internal/config"
	"ledgerline/backend/internal/db/migrate"
)

func main() {
	direction := flag.String("direction", "up", "up applies pending migrations, down rolls the last batch back")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	if cfg.DatabaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
		os.Exit(1)
	}

	switch err := migrate.Run(cfg.DatabaseURL, migrate.Direction(*direction)); {
	case errors.Is(err, migrate.ErrNoChange):
		fmt.Println("schema already up to date")
	case err != nil:
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}
