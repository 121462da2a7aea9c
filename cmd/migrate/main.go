// Command migrate runs schema operations for the backend.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"

	"studyhub/internal/config"
	"studyhub/internal/database"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func usage() error {
	return fmt.Errorf("usage: go run ./cmd/migrate <auto|status>")
}

func run() error {
	flag.Parse()
	if flag.NArg() < 1 {
		return usage()
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}

	ctx := context.Background()
	switch strings.ToLower(strings.TrimSpace(flag.Arg(0))) {
	case "auto":
		if err := database.Migrate(ctx, db); err != nil {
			return err
		}
		log.Println("automigrations applied")
	case "status":
		statuses, err := database.SchemaStatus(ctx, db)
		if err != nil {
			return fmt.Errorf("schema status failed: %w", err)
		}
		missing := 0
		for _, st := range statuses {
			state := "ok"
			if !st.Exists {
				state = "missing"
				missing++
			}
			log.Printf("%-12s %s", st.Table, state)
		}
		log.Printf("tables=%d missing=%d", len(statuses), missing)
	default:
		return usage()
	}
	return nil
}
