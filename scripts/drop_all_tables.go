package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"callagent/internal/repository/postgres"
)

func main() {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	// Read environment to determine table prefix
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "dev" // Default to dev
	}
	if env == "prod" {
		log.Fatal("refusing to drop production tables")
	}

	ctx := context.Background()
	pool, err := postgres.CreateConnectionPool(ctx, dbURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	tables := postgres.NewTableNames(env + "_")
	if err := postgres.DropTables(ctx, pool, tables); err != nil {
		log.Fatalf("Failed to drop tables: %v", err)
	}

	fmt.Printf("All tables dropped successfully (prefix: %s_)\n", env)
}
